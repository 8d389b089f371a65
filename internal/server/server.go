package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PerpEngine/internal/engine"
)

// OracleSetFunc pushes a new oracle reading for a market. Wired by the
// binary when the deployment uses the HTTP oracle feed; nil disables the
// endpoint.
type OracleSetFunc func(marketIndex uint16, price int64, confidence uint64)

// Server exposes the engine over HTTP/JSON.
type Server struct {
	eng       *engine.Engine
	oracleSet OracleSetFunc
	log       zerolog.Logger
}

func New(eng *engine.Engine, oracleSet OracleSetFunc, log zerolog.Logger) *Server {
	return &Server{eng: eng, oracleSet: oracleSet, log: log}
}

// Router builds the chi router with all routes and request logging.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestLogging)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Accounts.
	r.Post("/accounts", s.CreateAccount)
	r.Get("/accounts/{owner}/{sub}", s.GetAccount)
	r.Post("/accounts/{owner}/{sub}/deposits", s.Deposit)
	r.Delete("/accounts/{owner}/{sub}/orders", s.CancelAllOrders)
	r.Delete("/accounts/{owner}/{sub}/orders/by-alias/{userOrderID}", s.CancelByAlias)

	// Orders.
	r.Post("/orders", s.PlaceOrder)
	r.Post("/orders/take", s.PlaceAndTake)
	r.Post("/orders/{owner}/{sub}/{orderID}/fill", s.FillOrder)
	r.Post("/orders/{owner}/{sub}/{orderID}/trigger", s.TriggerOrder)
	r.Delete("/orders/{owner}/{sub}/{orderID}", s.CancelOrder)

	// Markets and keeper operations.
	r.Get("/markets", s.ListMarkets)
	r.Get("/markets/{index}/book", s.MarketSnapshot)
	r.Post("/markets/{index}/funding", s.UpdateFunding)
	r.Post("/markets/{index}/expire", s.ExpireOrders)
	r.Post("/markets/{index}/settle-pnl", s.SettlePnl)
	r.Post("/markets/{index}/oracle", s.SetOracle)
	r.Post("/markets/{index}/repeg", s.Repeg)
	r.Post("/markets/{index}/recenter", s.Recenter)

	r.Post("/liquidations", s.Liquidate)

	return r
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// statusWriter captures the response status for the request log.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// mapEngineError translates typed engine rejections to HTTP statuses.
// Not-found codes map to 404; validation to 400; everything else a
// rejected-state conflict.
func mapEngineError(w http.ResponseWriter, err error) {
	code := engine.CodeOf(err)
	kind := engine.KindOf(err)

	status := http.StatusConflict
	switch {
	case errors.Is(err, engine.ErrMarketNotFound), errors.Is(err, engine.ErrOrderNotFound),
		errors.Is(err, engine.ErrAccountNotFound):
		status = http.StatusNotFound
	case kind == engine.RejectValidation:
		status = http.StatusBadRequest
	case code == "Internal":
		status = http.StatusInternalServerError
	}

	WriteError(w, status, code, kind.String(), err.Error())
}

// --- URL parameter helpers ---

func ownerParam(r *http.Request) (uuid.UUID, uint16, error) {
	owner, err := uuid.Parse(chi.URLParam(r, "owner"))
	if err != nil {
		return uuid.Nil, 0, errors.New("owner must be a UUID")
	}
	sub, err := strconv.ParseUint(chi.URLParam(r, "sub"), 10, 16)
	if err != nil {
		return uuid.Nil, 0, errors.New("sub must be a uint16")
	}
	return owner, uint16(sub), nil
}

func orderIDParam(r *http.Request) (uint32, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "orderID"), 10, 32)
	if err != nil {
		return 0, errors.New("orderID must be a uint32")
	}
	return uint32(id), nil
}

func marketIndexParam(r *http.Request) (uint16, error) {
	idx, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 16)
	if err != nil {
		return 0, errors.New("index must be a uint16")
	}
	return uint16(idx), nil
}
