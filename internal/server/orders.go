package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"PerpEngine/internal/book"
	"PerpEngine/internal/engine"
)

// orderRequest is the JSON form of an order placement. Prices and amounts
// are raw fixed-point integers in engine precision.
type orderRequest struct {
	Owner       string `json:"owner"`
	SubAccount  uint16 `json:"subAccount"`
	MarketIndex uint16 `json:"marketIndex"`

	Direction string `json:"direction"`
	OrderType string `json:"orderType"`

	BaseAssetAmount   int64 `json:"baseAssetAmount"`
	Price             int64 `json:"price"`
	OraclePriceOffset int64 `json:"oraclePriceOffset"`

	AuctionStartPrice int64  `json:"auctionStartPrice"`
	AuctionEndPrice   int64  `json:"auctionEndPrice"`
	AuctionDuration   uint64 `json:"auctionDuration"`

	UserOrderID       uint8  `json:"userOrderId"`
	PostOnly          string `json:"postOnly"`
	ReduceOnly        bool   `json:"reduceOnly"`
	ImmediateOrCancel bool   `json:"immediateOrCancel"`
	MaxTs             int64  `json:"maxTs"`

	TriggerCondition string `json:"triggerCondition"`
	TriggerPrice     int64  `json:"triggerPrice"`
}

// makerRef is a maker order reference in fill requests.
type makerRef struct {
	Owner      string `json:"owner"`
	SubAccount uint16 `json:"subAccount"`
	OrderID    uint32 `json:"orderId"`
}

type placeAndTakeRequest struct {
	Order  orderRequest `json:"order"`
	Makers []makerRef   `json:"makers"`
}

type fillRequest struct {
	Makers []makerRef `json:"makers"`
}

// orderResponse is the JSON view of a placed order.
type orderResponse struct {
	Owner       uuid.UUID `json:"owner"`
	SubAccount  uint16    `json:"subAccount"`
	OrderID     uint32    `json:"orderId"`
	UserOrderID uint8     `json:"userOrderId,omitempty"`
	MarketIndex uint16    `json:"marketIndex"`
	Direction   string    `json:"direction"`
	OrderType   string    `json:"orderType"`
	Base        int64     `json:"baseAssetAmount"`
	Price       int64     `json:"price"`
}

type fillLegResponse struct {
	Source string    `json:"source"`
	Maker  *makerRef `json:"maker,omitempty"`
	Price  int64     `json:"price"`
	Base   int64     `json:"base"`
	Quote  int64     `json:"quote"`
}

type fillResponse struct {
	MarketIndex  uint16            `json:"marketIndex"`
	Fills        []fillLegResponse `json:"fills"`
	FilledBase   int64             `json:"filledBase"`
	FilledQuote  int64             `json:"filledQuote"`
	TakerFee     int64             `json:"takerFee"`
	TakerRemoved bool              `json:"takerRemoved"`
}

// PlaceOrder handles POST /orders.
func (s *Server) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	params, err := buildOrderParams(req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	o, err := s.eng.PlaceOrder(params)
	if err != nil {
		mapEngineError(w, err)
		return
	}
	if o == nil {
		// Try-post-only skipped silently.
		WriteJSON(w, http.StatusOK, map[string]bool{"placed": false})
		return
	}
	WriteJSON(w, http.StatusCreated, buildOrderResponse(o))
}

// PlaceAndTake handles POST /orders/take.
func (s *Server) PlaceAndTake(w http.ResponseWriter, r *http.Request) {
	var req placeAndTakeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	params, err := buildOrderParams(req.Order)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}
	makers, err := buildMakerKeys(req.Makers)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	res, err := s.eng.PlaceAndTake(params, makers)
	if err != nil {
		mapEngineError(w, err)
		return
	}
	if res == nil {
		WriteJSON(w, http.StatusOK, map[string]bool{"placed": false})
		return
	}
	WriteJSON(w, http.StatusOK, buildFillResponse(res))
}

// FillOrder handles POST /orders/{owner}/{sub}/{orderID}/fill.
func (s *Server) FillOrder(w http.ResponseWriter, r *http.Request) {
	owner, sub, err := ownerParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}
	orderID, err := orderIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	var req fillRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}
	makers, err := buildMakerKeys(req.Makers)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	res, err := s.eng.FillOrder(owner, sub, orderID, makers)
	if err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildFillResponse(res))
}

// TriggerOrder handles POST /orders/{owner}/{sub}/{orderID}/trigger.
func (s *Server) TriggerOrder(w http.ResponseWriter, r *http.Request) {
	owner, sub, err := ownerParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}
	orderID, err := orderIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	if err := s.eng.TriggerOrder(owner, sub, orderID); err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
}

// CancelOrder handles DELETE /orders/{owner}/{sub}/{orderID}.
func (s *Server) CancelOrder(w http.ResponseWriter, r *http.Request) {
	owner, sub, err := ownerParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}
	orderID, err := orderIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	if err := s.eng.CancelOrder(owner, sub, orderID); err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

// --- request building ---

func buildOrderParams(req orderRequest) (engine.OrderParams, error) {
	owner, err := uuid.Parse(req.Owner)
	if err != nil {
		return engine.OrderParams{}, fmt.Errorf("owner must be a UUID")
	}
	direction, err := parseDirection(req.Direction)
	if err != nil {
		return engine.OrderParams{}, err
	}
	orderType, err := parseOrderType(req.OrderType)
	if err != nil {
		return engine.OrderParams{}, err
	}
	postOnly, err := parsePostOnly(req.PostOnly)
	if err != nil {
		return engine.OrderParams{}, err
	}
	triggerCond, err := parseTriggerCondition(req.TriggerCondition)
	if err != nil {
		return engine.OrderParams{}, err
	}

	return engine.OrderParams{
		Owner:             owner,
		SubAccount:        req.SubAccount,
		MarketIndex:       req.MarketIndex,
		Direction:         direction,
		OrderType:         orderType,
		BaseAssetAmount:   req.BaseAssetAmount,
		Price:             req.Price,
		OraclePriceOffset: req.OraclePriceOffset,
		AuctionStartPrice: req.AuctionStartPrice,
		AuctionEndPrice:   req.AuctionEndPrice,
		AuctionDuration:   req.AuctionDuration,
		UserOrderID:       req.UserOrderID,
		PostOnly:          postOnly,
		ReduceOnly:        req.ReduceOnly,
		ImmediateOrCancel: req.ImmediateOrCancel,
		MaxTs:             req.MaxTs,
		TriggerCondition:  triggerCond,
		TriggerPrice:      req.TriggerPrice,
	}, nil
}

func buildMakerKeys(refs []makerRef) ([]book.OrderKey, error) {
	keys := make([]book.OrderKey, 0, len(refs))
	for _, ref := range refs {
		owner, err := uuid.Parse(ref.Owner)
		if err != nil {
			return nil, fmt.Errorf("maker owner must be a UUID")
		}
		keys = append(keys, book.OrderKey{Owner: owner, SubAccount: ref.SubAccount, OrderID: ref.OrderID})
	}
	return keys, nil
}

func parseDirection(s string) (book.Direction, error) {
	switch strings.ToLower(s) {
	case "long", "buy":
		return book.DirectionLong, nil
	case "short", "sell":
		return book.DirectionShort, nil
	default:
		return 0, fmt.Errorf("direction must be long or short, got %q", s)
	}
}

func parseOrderType(s string) (book.OrderType, error) {
	switch strings.ToLower(s) {
	case "limit":
		return book.OrderTypeLimit, nil
	case "market":
		return book.OrderTypeMarket, nil
	case "oracle":
		return book.OrderTypeOracle, nil
	case "triggermarket", "trigger_market":
		return book.OrderTypeTriggerMarket, nil
	case "triggerlimit", "trigger_limit":
		return book.OrderTypeTriggerLimit, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

func parsePostOnly(s string) (book.PostOnlyParam, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return book.PostOnlyNone, nil
	case "must":
		return book.MustPostOnly, nil
	case "try":
		return book.TryPostOnly, nil
	default:
		return 0, fmt.Errorf("postOnly must be none, must or try, got %q", s)
	}
}

func parseTriggerCondition(s string) (book.TriggerCondition, error) {
	switch strings.ToLower(s) {
	case "", "above":
		return book.TriggerAbove, nil
	case "below":
		return book.TriggerBelow, nil
	default:
		return 0, fmt.Errorf("triggerCondition must be above or below, got %q", s)
	}
}

// --- response building ---

func buildOrderResponse(o *book.Order) orderResponse {
	return orderResponse{
		Owner:       o.Owner,
		SubAccount:  o.SubAccount,
		OrderID:     o.OrderID,
		UserOrderID: o.UserOrderID,
		MarketIndex: o.MarketIndex,
		Direction:   o.Direction.String(),
		OrderType:   o.OrderType.String(),
		Base:        o.BaseAssetAmount,
		Price:       o.Price,
	}
}

func buildFillResponse(res *engine.FillResult) fillResponse {
	out := fillResponse{
		MarketIndex:  res.MarketIndex,
		Fills:        make([]fillLegResponse, 0, len(res.Fills)),
		FilledBase:   res.FilledBase,
		FilledQuote:  res.FilledQuote,
		TakerFee:     res.TakerFee,
		TakerRemoved: res.TakerRemoved,
	}
	for _, f := range res.Fills {
		leg := fillLegResponse{
			Source: string(f.Source),
			Price:  f.Price,
			Base:   f.Base,
			Quote:  f.Quote,
		}
		if f.Maker != nil {
			leg.Maker = &makerRef{
				Owner:      f.Maker.Owner.String(),
				SubAccount: f.Maker.SubAccount,
				OrderID:    f.Maker.OrderID,
			}
		}
		out.Fills = append(out.Fills, leg)
	}
	return out
}
