package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"saldo/internal/core"
	"saldo/internal/storage"
)

const dateLayout = "2006-01-02"

// --- request/response shapes ---

type movementRequest struct {
	CategoryID  int64  `json:"category_id"`
	AccountID   int64  `json:"account_id"`
	ToAccountID *int64 `json:"to_account_id,omitempty"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Date        string `json:"transaction_date"`
}

type movementResponse struct {
	ID          int64     `json:"id"`
	CategoryID  int64     `json:"category_id"`
	AccountID   int64     `json:"account_id"`
	ToAccountID *int64    `json:"to_account_id,omitempty"`
	Type        string    `json:"type"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	Date        string    `json:"transaction_date"`
	CreatedAt   time.Time `json:"created_at"`
}

type accountRequest struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Balance string `json:"balance"`
	Icon    string `json:"icon"`
}

type accountResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Balance string `json:"balance"`
	Icon    string `json:"icon"`
}

type billRequest struct {
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
	Amount     string `json:"amount"`
	DueDate    string `json:"due_date"`
	Frequency  string `json:"frequency"`
}

type billResponse struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
	Amount     string `json:"amount"`
	DueDate    string `json:"due_date"`
	Frequency  string `json:"frequency"`
	IsPaid     bool   `json:"is_paid"`
}

func toMovementResponse(m core.Movement) movementResponse {
	return movementResponse{
		ID:          m.ID,
		CategoryID:  m.CategoryID,
		AccountID:   m.AccountID,
		ToAccountID: m.ToAccountID,
		Type:        string(m.Kind),
		Amount:      m.Amount.StringFixed(2),
		Description: m.Description,
		Date:        m.Date.Format(dateLayout),
		CreatedAt:   m.CreatedAt,
	}
}

func toMovementResponses(ms []core.Movement) []movementResponse {
	out := make([]movementResponse, len(ms))
	for i, m := range ms {
		out[i] = toMovementResponse(m)
	}
	return out
}

func toAccountResponse(a core.Account) accountResponse {
	return accountResponse{
		ID:      a.ID,
		Name:    a.Name,
		Kind:    string(a.Kind),
		Balance: a.Balance.StringFixed(2),
		Icon:    a.Icon,
	}
}

func toBillResponse(b core.BillReminder) billResponse {
	return billResponse{
		ID:         b.ID,
		CategoryID: b.CategoryID,
		Name:       b.Name,
		Amount:     b.Amount.StringFixed(2),
		DueDate:    b.DueDate.Format(dateLayout),
		Frequency:  string(b.Frequency),
		IsPaid:     b.IsPaid,
	}
}

func toBillResponses(bs []core.BillReminder) []billResponse {
	out := make([]billResponse, len(bs))
	for i, b := range bs {
		out[i] = toBillResponse(b)
	}
	return out
}

// --- movements ---

func (s *Server) handleCreateMovement(w http.ResponseWriter, r *http.Request) {
	draft, ok := s.decodeDraft(w, r)
	if !ok {
		return
	}
	created, err := s.ledger.CreateMovement(r.Context(), ownerID(r), draft)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementResponse(created))
}

func (s *Server) handleGetMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := s.ledger.GetMovement(r.Context(), ownerID(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementResponse(m))
}

func (s *Server) handleUpdateMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	draft, ok := s.decodeDraft(w, r)
	if !ok {
		return
	}
	updated, err := s.ledger.UpdateMovement(r.Context(), ownerID(r), id, draft)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementResponse(updated))
}

func (s *Server) handleDeleteMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.DeleteMovement(r.Context(), ownerID(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := storage.MovementFilter{
		Kind: core.MovementKind(q.Get("type")),
	}
	filter.CategoryID, _ = strconv.ParseInt(q.Get("category_id"), 10, 64)
	filter.AccountID, _ = strconv.ParseInt(q.Get("account_id"), 10, 64)
	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "date_from is not a valid date")
			return
		}
		filter.DateFrom = t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "date_to is not a valid date")
			return
		}
		filter.DateTo = t
	}
	page, _ := strconv.Atoi(q.Get("page"))

	result, err := s.query.ListMovements(r.Context(), ownerID(r), filter, page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"movements": toMovementResponses(result.Movements),
		"page":      result.Page,
		"page_size": result.PageSize,
		"total":     result.Total,
	})
}

// --- dashboard ---

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var rng core.DateRange
	q := r.URL.Query()
	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "start_date is not a valid date")
			return
		}
		rng.Start = t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "end_date is not a valid date")
			return
		}
		rng.End = t
	}

	view, err := s.dashboard.Dashboard(r.Context(), ownerID(r), rng)
	if err != nil {
		respondError(w, r, err)
		return
	}

	byCategory := make([]map[string]any, len(view.ByCategory))
	for i, c := range view.ByCategory {
		byCategory[i] = map[string]any{
			"category": c.Category,
			"icon":     c.Icon,
			"color":    c.Color,
			"amount":   c.Amount.StringFixed(2),
		}
	}
	trend := make([]map[string]any, len(view.Trend))
	for i, m := range view.Trend {
		trend[i] = map[string]any{
			"month":    m.Month,
			"income":   m.Income.StringFixed(2),
			"expenses": m.Expense.StringFixed(2),
			"net":      m.Net.StringFixed(2),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats": map[string]string{
			"total_balance":    view.Stats.TotalBalance.StringFixed(2),
			"monthly_income":   view.Stats.Income.StringFixed(2),
			"monthly_expenses": view.Stats.Expense.StringFixed(2),
			"net_income":       view.Stats.Net.StringFixed(2),
		},
		"recent_movements":     toMovementResponses(view.Recent),
		"expenses_by_category": byCategory,
		"upcoming_bills":       toBillResponses(view.UpcomingBills),
		"monthly_trends":       trend,
		"date_range": map[string]string{
			"start_date": view.Range.Start.Format(dateLayout),
			"end_date":   view.Range.End.Format(dateLayout),
		},
	})
}

// --- accounts ---

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.ListAccounts(r.Context(), ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = toAccountResponse(a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	balance, err := core.ParseBalance(req.Balance)
	if err != nil {
		respondError(w, r, err)
		return
	}
	created, err := s.ledger.CreateAccount(r.Context(), core.Account{
		OwnerID: ownerID(r),
		Name:    req.Name,
		Kind:    core.AccountKind(req.Kind),
		Balance: balance,
		Icon:    req.Icon,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(created))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.DeleteAccount(r.Context(), ownerID(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- categories ---

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.ledger.ListCategories(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]map[string]any, len(categories))
	for i, c := range categories {
		out[i] = map[string]any{
			"id":    c.ID,
			"name":  c.Name,
			"icon":  c.Icon,
			"color": c.Color,
			"type":  string(c.Kind),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// --- bills ---

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := s.ledger.ListBillReminders(r.Context(), ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillResponses(bills))
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	due, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "due_date is not a valid date")
		return
	}
	created, err := s.ledger.CreateBillReminder(r.Context(), core.BillReminder{
		OwnerID:    ownerID(r),
		CategoryID: req.CategoryID,
		Name:       req.Name,
		Amount:     amount,
		DueDate:    due,
		Frequency:  core.Frequency(req.Frequency),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBillResponse(created))
}

func (s *Server) handleSetBillPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Paid bool `json:"paid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.ledger.MarkBillPaid(r.Context(), ownerID(r), id, req.Paid); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func (s *Server) decodeDraft(w http.ResponseWriter, r *http.Request) (core.MovementDraft, bool) {
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return core.MovementDraft{}, false
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		respondError(w, r, err)
		return core.MovementDraft{}, false
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "transaction_date is not a valid date")
		return core.MovementDraft{}, false
	}
	return core.MovementDraft{
		CategoryID:  req.CategoryID,
		AccountID:   req.AccountID,
		ToAccountID: req.ToAccountID,
		Kind:        core.MovementKind(req.Type),
		Amount:      amount,
		Description: req.Description,
		Date:        date,
	}, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// respondError maps the core error taxonomy onto HTTP statuses: validation
// 422, not found 404, forbidden 403, conflict 409, everything else 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, core.ErrConflict):
		writeError(w, http.StatusConflict, "temporary storage failure, retry the request")
	default:
		slog.ErrorContext(r.Context(), "Unhandled error", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
