package trade

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/metrics"
	"github.com/papertrade/trading-engine/internal/model"
)

// AccountHeader carries the verified account identifier. The auth layer in
// front of the engine sets it after validating the session; the engine
// trusts it without re-verifying.
const AccountHeader = "X-Account-ID"

// Service exposes the executor over HTTP.
type Service struct {
	exec  *Executor
	wsHub *WSHub // optional fill broadcast; nil disables it
}

// NewService creates the HTTP service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(exec *Executor, hub *WSHub) *Service {
	return &Service{exec: exec, wsHub: hub}
}

// Routes mounts all trade endpoints on a fresh router.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/trades/buy", s.Buy)
	r.Post("/trades/sell", s.Sell)
	r.Get("/trades", s.History)
	r.Patch("/trades/{tradeID}/note", s.SetNote)
	r.Delete("/trades/{tradeID}", s.DeleteTrade)
	r.Delete("/trades", s.ResetHistory)
	r.Get("/dashboard", s.Dashboard)
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}

	return r
}

// TradeRequest is the JSON body for POST /trades/buy and /trades/sell.
// decimal.Decimal accepts both JSON numbers and numeric strings, so the
// loosely-typed payloads the web client sends still parse exactly.
type TradeRequest struct {
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Buy handles POST /api/v1/trades/buy.
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, model.SideBuy)
}

// Sell handles POST /api/v1/trades/sell.
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, model.SideSell)
}

func (s *Service) execute(w http.ResponseWriter, r *http.Request, side model.Side) {
	accountID := r.Header.Get(AccountHeader)

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidInput, "invalid request body")
		return
	}

	start := time.Now()
	res, err := s.exec.Execute(r.Context(), accountID, req.Symbol, side, req.Price, req.Quantity)
	if err != nil {
		metrics.TradeRejections.WithLabelValues(Code(err)).Inc()
		writeError(w, err, err.Error())
		return
	}
	metrics.TradesTotal.WithLabelValues(string(side)).Inc()
	metrics.TradeLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "trade_executed",
			Symbol:   res.Entry.Symbol,
			Side:     string(side),
			Price:    res.Entry.Price.String(),
			Quantity: res.Entry.Quantity.String(),
			Total:    res.Entry.Total.String(),
			At:       res.Entry.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, res)
}

// History handles GET /api/v1/trades with search, filter, sort, and
// pagination query parameters.
func (s *Service) History(w http.ResponseWriter, r *http.Request) {
	accountID := r.Header.Get(AccountHeader)
	qp := r.URL.Query()

	q := HistoryQuery{
		Symbol:    qp.Get("search"),
		Side:      model.Side(qp.Get("side")),
		SortField: qp.Get("sort_by"),
		SortOrder: qp.Get("order"),
	}

	var err error
	if q.Page, err = intParam(qp.Get("page"), 1); err != nil {
		writeError(w, ErrInvalidInput, "page must be an integer")
		return
	}
	if q.Limit, err = intParam(qp.Get("limit"), DefaultPageSize); err != nil {
		writeError(w, ErrInvalidInput, "limit must be an integer")
		return
	}

	page, err := s.exec.History(r.Context(), accountID, q)
	if err != nil {
		writeError(w, err, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// noteRequest is the JSON body for PATCH /trades/{tradeID}/note.
type noteRequest struct {
	Note string `json:"note"`
}

// SetNote handles PATCH /api/v1/trades/{tradeID}/note.
func (s *Service) SetNote(w http.ResponseWriter, r *http.Request) {
	accountID := r.Header.Get(AccountHeader)
	tradeID := chi.URLParam(r, "tradeID")

	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidInput, "invalid request body")
		return
	}

	if err := s.exec.SetNote(r.Context(), accountID, tradeID, req.Note); err != nil {
		writeError(w, err, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "note updated"})
}

// DeleteTrade handles DELETE /api/v1/trades/{tradeID}. Removes the ledger
// row only; the trade's effect on balance and holdings stands.
func (s *Service) DeleteTrade(w http.ResponseWriter, r *http.Request) {
	accountID := r.Header.Get(AccountHeader)
	tradeID := chi.URLParam(r, "tradeID")

	if err := s.exec.DeleteTrade(r.Context(), accountID, tradeID); err != nil {
		writeError(w, err, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "trade deleted"})
}

// ResetHistory handles DELETE /api/v1/trades.
func (s *Service) ResetHistory(w http.ResponseWriter, r *http.Request) {
	accountID := r.Header.Get(AccountHeader)

	deleted, err := s.exec.ResetHistory(r.Context(), accountID)
	if err != nil {
		writeError(w, err, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "trade history cleared",
		"deleted": deleted,
	})
}

// Dashboard handles GET /api/v1/dashboard.
func (s *Service) Dashboard(w http.ResponseWriter, r *http.Request) {
	accountID := r.Header.Get(AccountHeader)

	dash, err := s.exec.Dashboard(r.Context(), accountID)
	if err != nil {
		writeError(w, err, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dash)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with the stable failure code.
func writeError(w http.ResponseWriter, err error, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  Code(err),
	})
}
