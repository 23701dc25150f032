package http

import (
	"net/http"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
)

type fixedIncomeRequest struct {
	Amount core.Money `json:"amount"`
	// Extras replaces the month's extras when present; omitted keeps them.
	Extras []extraIncomeRequest `json:"extras"`
}

type extraIncomeRequest struct {
	Description string     `json:"description"`
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
	Date        core.Date  `json:"date"`
}

func (req extraIncomeRequest) income(owner string, month core.MonthKey) core.ExtraIncome {
	return core.ExtraIncome{
		Owner:       owner,
		Month:       month,
		Description: sanitizeInput(req.Description),
		Amount:      req.Amount,
		Category:    sanitizeInput(req.Category),
		Date:        req.Date,
	}
}

func (s *Server) handleGetFixedIncome(w http.ResponseWriter, r *http.Request) {
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
	f, err := s.ledger.GetFixedIncome(r.Context(), owner, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleSetFixedIncome(w http.ResponseWriter, r *http.Request) {
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
	var req fixedIncomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	f := core.FixedIncome{Owner: owner, Month: month, Amount: req.Amount}
	if req.Extras != nil {
		f.Extras = make([]core.ExtraIncome, 0, len(req.Extras))
		for _, x := range req.Extras {
			f.Extras = append(f.Extras, x.income(owner, month))
		}
	}
	saved, err := s.ledger.SetFixedIncome(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.mutated(owner)
	s.events.LogMutation(r.Context(), applog.OpUpdate, owner, "fixed_income", month.String())
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleListExtraIncomes(w http.ResponseWriter, r *http.Request) {
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
	list, err := s.ledger.ListExtraIncomes(r.Context(), owner, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []core.ExtraIncome{}
	}
	writeJSON(w, http.StatusOK, map[string][]core.ExtraIncome{"extra_incomes": list})
}

// handleAddExtraIncome stores a one-off income for the month in the path.
// A missing date means today.
func (s *Server) handleAddExtraIncome(w http.ResponseWriter, r *http.Request) {
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
	var req extraIncomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	x, err := s.ledger.AddExtraIncome(r.Context(), req.income(owner, month))
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.mutated(owner)
	s.events.LogMutation(r.Context(), applog.OpCreate, owner, "extra_income", x.ID)
	writeJSON(w, http.StatusCreated, x)
}

func (s *Server) handleDeleteExtraIncome(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := s.ledger.DeleteExtraIncome(r.Context(), owner, id); err != nil {
		writeError(w, r, err)
		return
	}

	s.mutated(owner)
	s.events.LogMutation(r.Context(), applog.OpDelete, owner, "extra_income", id)
	w.WriteHeader(http.StatusNoContent)
}
