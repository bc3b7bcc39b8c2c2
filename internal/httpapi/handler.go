// Package httpapi exposes the register over HTTP for terminal frontends.
// Handlers are a thin JSON boundary; all order-building rules live in the
// register and domain packages.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warungtech/pos-register/internal/backend"
	"github.com/warungtech/pos-register/internal/domain/basket"
	"github.com/warungtech/pos-register/internal/domain/customer"
	"github.com/warungtech/pos-register/internal/domain/lot"
	"github.com/warungtech/pos-register/internal/register"
)

const maxBodyBytes = 1 << 20

// LotSearcher is the lot search backing the catalog endpoint, either the
// platform client directly or the Redis cache in front of it.
type LotSearcher interface {
	SearchSellableLots(ctx context.Context, f backend.SearchFilter) ([]lot.Lot, error)
}

// SaleReader serves the cash-up view from the local sales journal.
type SaleReader interface {
	Recent(ctx context.Context, limit int) ([]register.Sale, error)
}

// Handler serves the terminal API.
type Handler struct {
	sessions *Manager
	lots     LotSearcher
	journal  SaleReader
}

// NewHandler constructs a Handler. journal may be nil when no database is
// configured; the cash-up endpoint then responds 404.
func NewHandler(sessions *Manager, lots LotSearcher, journal SaleReader) *Handler {
	return &Handler{sessions: sessions, lots: lots, journal: journal}
}

// Register mounts all terminal routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/lots/search", h.searchLots)
	mux.HandleFunc("GET /api/v1/session", h.snapshot)
	mux.HandleFunc("POST /api/v1/session/refresh", h.refresh)
	mux.HandleFunc("POST /api/v1/basket/lines", h.addLine)
	mux.HandleFunc("PUT /api/v1/basket/lines/{id}", h.setQuantity)
	mux.HandleFunc("DELETE /api/v1/basket/lines/{id}", h.removeLine)
	mux.HandleFunc("POST /api/v1/customers/lookup", h.lookupCustomer)
	mux.HandleFunc("POST /api/v1/customers", h.createCustomer)
	mux.HandleFunc("DELETE /api/v1/customers/current", h.clearCustomer)
	mux.HandleFunc("POST /api/v1/redemption", h.requestRedeem)
	mux.HandleFunc("POST /api/v1/orders/finalize", h.finalize)
	mux.HandleFunc("POST /api/v1/orders/pending/cancel", h.cancelPending)
	mux.HandleFunc("DELETE /api/v1/alerts/{id}", h.dismissAlert)
	mux.HandleFunc("GET /api/v1/sales/recent", h.recentSales)
}

// session resolves the terminal session from the X-Terminal-ID header.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*register.Session, bool) {
	id := r.Header.Get("X-Terminal-ID")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing X-Terminal-ID header")
		return nil, false
	}
	return h.sessions.Get(r.Context(), id), true
}

func (h *Handler) searchLots(w http.ResponseWriter, r *http.Request) {
	var f backend.SearchFilter
	if !decodeBody(w, r, &f) {
		return
	}
	lots, err := h.lots.SearchSellableLots(r.Context(), f)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	if lots == nil {
		lots = []lot.Lot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lots": lots})
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Refresh(r.Context()); err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var l lot.Lot
	if !decodeBody(w, r, &l) {
		return
	}
	if l.ProductID == "" || l.LotID == "" {
		writeError(w, http.StatusBadRequest, "product_id and lot_id are required")
		return
	}
	res := s.AddLot(l)
	writeJSON(w, http.StatusOK, map[string]any{
		"line":        res.Line,
		"merged":      res.Merged,
		"at_capacity": res.AtCapacity,
		"snapshot":    s.Snapshot(),
	})
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Quantity decimal.Decimal `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.SetQuantity(r.PathValue("id"), req.Quantity); err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RemoveLine(r.PathValue("id")); err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) lookupCustomer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Phone string `json:"phone"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}
	if _, err := s.LookupCustomer(r.Context(), req.Phone); err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in customer.CreateInput
	if !decodeBody(w, r, &in) {
		return
	}
	if _, err := s.CreateCustomer(r.Context(), in); err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) clearCustomer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.ClearCustomer()
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) requestRedeem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Points int64 `json:"points"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Points < 0 {
		writeError(w, http.StatusBadRequest, "points must not be negative")
		return
	}
	applied := s.RequestRedeem(req.Points)
	writeJSON(w, http.StatusOK, map[string]any{
		"applied":  applied,
		"snapshot": s.Snapshot(),
	})
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := s.Finalize(r.Context())
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":   res,
		"snapshot": s.Snapshot(),
	})
}

func (h *Handler) cancelPending(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.CancelPending(); err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) dismissAlert(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !s.DismissAlert(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "alert not found or not dismissable")
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) recentSales(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotFound, "sales journal not configured")
		return
	}
	sales, err := h.journal.Recent(r.Context(), 50)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	if sales == nil {
		sales = []register.Sale{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

// --- JSON plumbing ---

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

// writeMappedError translates domain and transport errors to HTTP statuses.
// State-machine guards map to 409, local validation to 4xx, and platform
// failures to 502 with the server message when one exists.
func writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, basket.ErrLineNotFound):
		writeError(w, http.StatusNotFound, "basket line not found")
	case errors.Is(err, register.ErrEmptyBasket):
		writeError(w, http.StatusUnprocessableEntity, "basket is empty")
	case errors.Is(err, register.ErrNoOrderContext):
		writeError(w, http.StatusConflict, "order context not loaded")
	case errors.Is(err, register.ErrSubmitInProgress):
		writeError(w, http.StatusConflict, "submission already in progress")
	case errors.Is(err, register.ErrPendingInProgress):
		writeError(w, http.StatusConflict, "pending order awaiting confirmation")
	case errors.Is(err, register.ErrNoPendingOrder):
		writeError(w, http.StatusConflict, "no pending order")
	case errors.Is(err, customer.ErrFullNameRequired),
		errors.Is(err, customer.ErrPhoneRequired),
		errors.Is(err, customer.ErrEmailRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		var re register.RemoteError
		if errors.As(err, &re) && re.RemoteMessage() != "" {
			writeError(w, http.StatusBadGateway, re.RemoteMessage())
			return
		}
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "platform request failed")
	}
}
