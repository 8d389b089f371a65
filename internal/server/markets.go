package server

import (
	"net/http"

	"github.com/google/uuid"
)

type marketInfo struct {
	Index  uint16 `json:"index"`
	Symbol string `json:"symbol"`
	Status string `json:"status"`
}

// ListMarkets handles GET /markets.
func (s *Server) ListMarkets(w http.ResponseWriter, r *http.Request) {
	out := make([]marketInfo, 0)
	for _, idx := range s.eng.MarketIndexes() {
		m, ok := s.eng.Market(idx)
		if !ok {
			continue
		}
		out = append(out, marketInfo{Index: m.Index, Symbol: m.Symbol, Status: m.Status.String()})
	}
	WriteJSON(w, http.StatusOK, out)
}

// MarketSnapshot handles GET /markets/{index}/book.
func (s *Server) MarketSnapshot(w http.ResponseWriter, r *http.Request) {
	idx, err := marketIndexParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	snap, err := s.eng.Snapshot(idx)
	if err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

type fundingResponse struct {
	Rate       int64 `json:"rate"`
	MarkTwap   int64 `json:"markTwap"`
	OracleTwap int64 `json:"oracleTwap"`
}

// UpdateFunding handles POST /markets/{index}/funding. Keeper-cranked.
func (s *Server) UpdateFunding(w http.ResponseWriter, r *http.Request) {
	idx, err := marketIndexParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	upd, err := s.eng.UpdateFundingRate(idx)
	if err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, fundingResponse{
		Rate:       upd.Rate,
		MarkTwap:   upd.MarkTwap,
		OracleTwap: upd.OracleTwap,
	})
}

// ExpireOrders handles POST /markets/{index}/expire. Keeper-cranked.
func (s *Server) ExpireOrders(w http.ResponseWriter, r *http.Request) {
	idx, err := marketIndexParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	expired, err := s.eng.ExpireOrders(idx)
	if err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"expired": expired})
}

type settlePnlRequest struct {
	Owner      string `json:"owner"`
	SubAccount uint16 `json:"subAccount"`
}

type settlePnlResponse struct {
	Amount      int64 `json:"amount"`
	OraclePrice int64 `json:"oraclePrice"`
}

// SettlePnl handles POST /markets/{index}/settle-pnl.
func (s *Server) SettlePnl(w http.ResponseWriter, r *http.Request) {
	idx, err := marketIndexParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	var req settlePnlRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}
	owner, err := uuid.Parse(req.Owner)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", "owner must be a UUID")
		return
	}

	res, err := s.eng.SettlePnl(owner, req.SubAccount, idx)
	if err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, settlePnlResponse{Amount: res.Amount, OraclePrice: res.OraclePrice})
}

type setOracleRequest struct {
	Price      int64  `json:"price"`
	Confidence uint64 `json:"confidence"`
}

// SetOracle handles POST /markets/{index}/oracle. Only available when the
// deployment feeds the oracle over HTTP; otherwise 404.
func (s *Server) SetOracle(w http.ResponseWriter, r *http.Request) {
	if s.oracleSet == nil {
		WriteError(w, http.StatusNotFound, "OracleFeedDisabled", "Validation", "oracle is not fed over HTTP")
		return
	}

	idx, err := marketIndexParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	var req setOracleRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}
	if req.Price <= 0 {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", "price must be > 0")
		return
	}

	s.oracleSet(idx, req.Price, req.Confidence)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type repegRequest struct {
	Peg int64 `json:"peg"`
}

// Repeg handles POST /markets/{index}/repeg. Admin.
func (s *Server) Repeg(w http.ResponseWriter, r *http.Request) {
	idx, err := marketIndexParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	var req repegRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	if err := s.eng.RepegMarket(idx, req.Peg); err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type recenterRequest struct {
	SqrtK int64 `json:"sqrtK"`
}

// Recenter handles POST /markets/{index}/recenter. Admin.
func (s *Server) Recenter(w http.ResponseWriter, r *http.Request) {
	idx, err := marketIndexParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	var req recenterRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	if err := s.eng.RecenterMarket(idx, req.SqrtK); err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type liquidateRequest struct {
	LiquidatorOwner string `json:"liquidatorOwner"`
	LiquidatorSub   uint16 `json:"liquidatorSub"`
	VictimOwner     string `json:"victimOwner"`
	VictimSub       uint16 `json:"victimSub"`
	MarketIndex     uint16 `json:"marketIndex"`
	MaxBase         int64  `json:"maxBase"`
}

type liquidateResponse struct {
	BaseTransfer    int64 `json:"baseTransfer"`
	QuoteTransfer   int64 `json:"quoteTransfer"`
	LiquidatorFee   int64 `json:"liquidatorFee"`
	InsuranceFee    int64 `json:"insuranceFee"`
	OraclePrice     int64 `json:"oraclePrice"`
	VictimRemaining int64 `json:"victimRemaining"`
	CoveredDeficit  int64 `json:"coveredDeficit"`
}

// Liquidate handles POST /liquidations.
func (s *Server) Liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}
	liqOwner, err := uuid.Parse(req.LiquidatorOwner)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", "liquidatorOwner must be a UUID")
		return
	}
	victimOwner, err := uuid.Parse(req.VictimOwner)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", "victimOwner must be a UUID")
		return
	}

	res, err := s.eng.Liquidate(liqOwner, req.LiquidatorSub, victimOwner, req.VictimSub, req.MarketIndex, req.MaxBase)
	if err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, liquidateResponse{
		BaseTransfer:    res.Transfer.BaseTransfer,
		QuoteTransfer:   res.Transfer.QuoteTransfer,
		LiquidatorFee:   res.Transfer.LiquidatorFee,
		InsuranceFee:    res.Transfer.InsuranceFee,
		OraclePrice:     res.OraclePrice,
		VictimRemaining: res.VictimRemaining,
		CoveredDeficit:  res.CoveredDeficit,
	})
}
