package http

import (
	"net/http"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/services"
)

type createExpenseRequest struct {
	Description  string     `json:"description"`
	Amount       core.Money `json:"amount"`
	Category     string     `json:"category"`
	Date         core.Date  `json:"date"`
	Installments int        `json:"installments"`
	Recurring    bool       `json:"recurring"`
}

type updateExpenseRequest struct {
	Description *string     `json:"description"`
	Amount      *core.Money `json:"amount"`
	Category    *string     `json:"category"`
	Date        *core.Date  `json:"date"`
	Recurring   *bool       `json:"recurring"`
}

type expensesResponse struct {
	Expenses []core.Expense `json:"expenses"`
}

// handleCreateExpense stores an expense. More than one installment splits
// it into monthly records that are all returned.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Date.IsZero() {
		req.Date = core.DateOf(s.now())
	}

	created, err := s.ledger.CreateExpense(r.Context(), core.Expense{
		Owner:             owner,
		Description:       sanitizeInput(req.Description),
		Amount:            req.Amount,
		Category:          sanitizeInput(req.Category),
		Date:              req.Date,
		TotalInstallments: req.Installments,
		Recurring:         req.Recurring,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.mutated(owner)
	s.events.LogMutation(r.Context(), applog.OpCreate, owner, "expense", created[0].ID)
	writeJSON(w, http.StatusCreated, expensesResponse{Expenses: created})
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.ledger.GetExpense(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Description != nil {
		d := sanitizeInput(*req.Description)
		req.Description = &d
	}
	if req.Category != nil {
		c := sanitizeInput(*req.Category)
		req.Category = &c
	}

	id := r.PathValue("id")
	updated, err := s.ledger.UpdateExpense(r.Context(), owner, id, services.ExpenseUpdate{
		Description: req.Description,
		Amount:      req.Amount,
		Category:    req.Category,
		Date:        req.Date,
		Recurring:   req.Recurring,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.mutated(owner)
	s.events.LogMutation(r.Context(), applog.OpUpdate, owner, "expense", id)
	writeJSON(w, http.StatusOK, expensesResponse{Expenses: updated})
}

// handleDeleteExpense removes an expense along with its installment siblings.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	removed, err := s.ledger.DeleteExpense(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.mutated(owner)
	s.events.LogMutation(r.Context(), applog.OpDelete, owner, "expense", id)
	writeJSON(w, http.StatusOK, map[string][]string{"deleted": removed})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	month, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.ledger.ListExpenses(r.Context(), owner, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, expensesResponse{Expenses: list})
}
