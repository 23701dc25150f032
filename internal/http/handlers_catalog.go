package http

import (
	"net/http"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/services"
)

type categoryRequest struct {
	Name  *string `json:"name"`
	Icon  *string `json:"icon"`
	Color *string `json:"color"`
}

type limitRequest struct {
	Category          string     `json:"category"`
	Amount            core.Money `json:"amount"`
	WarningPercentage int        `json:"warning_percentage"`
}

type goalRequest struct {
	Name    string     `json:"name"`
	Target  core.Money `json:"target"`
	Current core.Money `json:"current"`
}

type contributionRequest struct {
	Amount core.Money `json:"amount"`
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return sanitizeInput(*p)
}

// Categories

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.ledger.ListCategories(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []core.Category{}
	}
	writeJSON(w, http.StatusOK, map[string][]core.Category{"categories": list})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.CreateCategory(r.Context(), core.Category{
		Owner: owner,
		Name:  deref(req.Name),
		Icon:  deref(req.Icon),
		Color: deref(req.Color),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.events.LogMutation(r.Context(), applog.OpCreate, owner, "category", c.ID)
	writeJSON(w, http.StatusCreated, c)
}

// handleUpdateCategory renames or restyles a category. A rename reaches the
// owner's expenses and limit, so cached reports are dropped.
func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	upd := services.CategoryUpdate{Icon: req.Icon, Color: req.Color}
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		upd.Name = &name
	}

	id := r.PathValue("id")
	c, err := s.ledger.UpdateCategory(r.Context(), owner, id, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.mutated(owner)
	s.events.LogMutation(r.Context(), applog.OpUpdate, owner, "category", id)
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := s.ledger.DeleteCategory(r.Context(), owner, id); err != nil {
		writeError(w, r, err)
		return
	}

	s.events.LogMutation(r.Context(), applog.OpDelete, owner, "category", id)
	w.WriteHeader(http.StatusNoContent)
}

// Spending limits

func (s *Server) handleListLimits(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.ledger.ListLimits(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []core.SpendingLimit{}
	}
	writeJSON(w, http.StatusOK, map[string][]core.SpendingLimit{"limits": list})
}

func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req limitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	l, err := s.ledger.SetLimit(r.Context(), core.SpendingLimit{
		Owner:             owner,
		Category:          sanitizeInput(req.Category),
		Amount:            req.Amount,
		WarningPercentage: req.WarningPercentage,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.mutated(owner)
	s.events.LogMutation(r.Context(), applog.OpUpdate, owner, "limit", l.Category)
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleDeleteLimit(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	category := r.PathValue("category")
	if err := s.ledger.DeleteLimit(r.Context(), owner, category); err != nil {
		writeError(w, r, err)
		return
	}

	s.mutated(owner)
	s.events.LogMutation(r.Context(), applog.OpDelete, owner, "limit", category)
	w.WriteHeader(http.StatusNoContent)
}

// Goals

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.ledger.ListGoals(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]services.GoalProgress, 0, len(list))
	for _, g := range list {
		out = append(out, services.GoalProgress{Goal: g, Progress: g.Progress()})
	}
	writeJSON(w, http.StatusOK, map[string][]services.GoalProgress{"goals": out})
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.ledger.CreateGoal(r.Context(), core.Goal{
		Owner:   owner,
		Name:    sanitizeInput(req.Name),
		Target:  req.Target,
		Current: req.Current,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.mutated(owner)
	s.events.LogMutation(r.Context(), applog.OpCreate, owner, "goal", g.ID)
	writeJSON(w, http.StatusCreated, services.GoalProgress{Goal: g, Progress: g.Progress()})
}

// handleContribute adds to a goal; a negative amount withdraws.
func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req contributionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	g, err := s.ledger.Contribute(r.Context(), owner, id, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.mutated(owner)
	s.events.LogMutation(r.Context(), applog.OpUpdate, owner, "goal", id)
	writeJSON(w, http.StatusOK, services.GoalProgress{Goal: g, Progress: g.Progress()})
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := s.ledger.DeleteGoal(r.Context(), owner, id); err != nil {
		writeError(w, r, err)
		return
	}

	s.mutated(owner)
	s.events.LogMutation(r.Context(), applog.OpDelete, owner, "goal", id)
	w.WriteHeader(http.StatusNoContent)
}
