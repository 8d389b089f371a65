package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createAccountRequest struct {
	Owner      string `json:"owner"`
	SubAccount uint16 `json:"subAccount"`
}

type createAccountResponse struct {
	Owner      uuid.UUID `json:"owner"`
	SubAccount uint16    `json:"subAccount"`
}

// CreateAccount handles POST /accounts. Owner is optional: a fresh UUID is
// assigned when omitted.
func (s *Server) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	owner := uuid.New()
	if req.Owner != "" {
		parsed, err := uuid.Parse(req.Owner)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", "owner must be a UUID")
			return
		}
		owner = parsed
	}

	if err := s.eng.CreateAccount(owner, req.SubAccount); err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, createAccountResponse{Owner: owner, SubAccount: req.SubAccount})
}

// GetAccount handles GET /accounts/{owner}/{sub}.
func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	owner, sub, err := ownerParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	view, err := s.eng.AccountSnapshot(owner, sub)
	if err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

type depositRequest struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

// Deposit handles POST /accounts/{owner}/{sub}/deposits.
func (s *Server) Deposit(w http.ResponseWriter, r *http.Request) {
	owner, sub, err := ownerParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	var req depositRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	if err := s.eng.Deposit(owner, sub, req.Asset, req.Amount); err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CancelAllOrders handles DELETE /accounts/{owner}/{sub}/orders. An
// optional ?market=N query limits the sweep to one market.
func (s *Server) CancelAllOrders(w http.ResponseWriter, r *http.Request) {
	owner, sub, err := ownerParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}

	var canceled int
	if q := r.URL.Query().Get("market"); q != "" {
		mi, err := strconv.ParseUint(q, 10, 16)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", "market must be a uint16")
			return
		}
		canceled, err = s.eng.CancelMarketOrders(owner, sub, uint16(mi))
		if err != nil {
			mapEngineError(w, err)
			return
		}
	} else {
		canceled, err = s.eng.CancelAllOrders(owner, sub)
		if err != nil {
			mapEngineError(w, err)
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]int{"canceled": canceled})
}

// CancelByAlias handles DELETE /accounts/{owner}/{sub}/orders/by-alias/{userOrderID}.
func (s *Server) CancelByAlias(w http.ResponseWriter, r *http.Request) {
	owner, sub, err := ownerParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", err.Error())
		return
	}
	alias, err := strconv.ParseUint(chi.URLParam(r, "userOrderID"), 10, 8)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "InvalidRequest", "Validation", "userOrderID must be a uint8")
		return
	}

	if err := s.eng.CancelByUserOrderID(owner, sub, uint8(alias)); err != nil {
		mapEngineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}
