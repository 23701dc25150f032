// Package memory is an in-process ledger store with the same semantics as the
// SQLite repository. Nothing survives a restart.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"finanzas/internal/core"
)

type ownerKey struct {
	owner string
	key   string
}

type Store struct {
	mu         sync.RWMutex
	expenses   map[string]core.Expense
	fixed      map[ownerKey]core.FixedIncome
	extras     map[string]core.ExtraIncome
	categories map[string]core.Category
	limits     map[ownerKey]core.SpendingLimit
	goals      map[string]core.Goal
}

func New() *Store {
	return &Store{
		expenses:   make(map[string]core.Expense),
		fixed:      make(map[ownerKey]core.FixedIncome),
		extras:     make(map[string]core.ExtraIncome),
		categories: make(map[string]core.Category),
		limits:     make(map[ownerKey]core.SpendingLimit),
		goals:      make(map[string]core.Goal),
	}
}

// NewFromFiles returns a store whose owner starts with the categories listed
// in base/seed_categories.txt, one per line. Blank lines and # comments are
// ignored; a missing file seeds nothing.
func NewFromFiles(base, owner string) *Store {
	s := New()
	for _, name := range readLines(filepath.Join(base, "seed_categories.txt")) {
		_ = s.InsertCategory(context.Background(), core.Category{
			ID:    uuid.NewString(),
			Owner: owner,
			Name:  name,
		})
	}
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(context.Context) error { return nil }

// Expenses

func (s *Store) InsertExpenses(_ context.Context, es []core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range es {
		if _, ok := s.expenses[e.ID]; ok {
			return fmt.Errorf("insert expense %s: duplicate id", e.ID)
		}
	}
	for _, e := range es {
		s.expenses[e.ID] = e
	}
	return nil
}

func (s *Store) GetExpense(_ context.Context, owner, id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[id]
	if !ok || e.Owner != owner {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return e, nil
}

func (s *Store) filterExpenses(keep func(core.Expense) bool) []core.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) ListExpenses(_ context.Context, owner string, month core.MonthKey) ([]core.Expense, error) {
	out := s.filterExpenses(func(e core.Expense) bool { return e.Owner == owner && e.Month == month })
	sortExpenses(out)
	return out, nil
}

func (s *Store) ListAllExpenses(_ context.Context, owner string) ([]core.Expense, error) {
	out := s.filterExpenses(func(e core.Expense) bool { return e.Owner == owner })
	sortExpenses(out)
	return out, nil
}

func (s *Store) ListSiblings(_ context.Context, owner, originalID string) ([]core.Expense, error) {
	out := s.filterExpenses(func(e core.Expense) bool { return e.Owner == owner && e.OriginalID == originalID })
	sort.Slice(out, func(i, j int) bool {
		if out[i].Installment != out[j].Installment {
			return out[i].Installment < out[j].Installment
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateExpenses(_ context.Context, es []core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range es {
		if cur, ok := s.expenses[e.ID]; !ok || cur.Owner != e.Owner {
			return fmt.Errorf("expense %s: %w", e.ID, core.ErrNotFound)
		}
	}
	for _, e := range es {
		e.CreatedAt = s.expenses[e.ID].CreatedAt
		s.expenses[e.ID] = e
	}
	return nil
}

func (s *Store) DeleteExpenses(_ context.Context, owner string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if e, ok := s.expenses[id]; !ok || e.Owner != owner {
			return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
		}
	}
	for _, id := range ids {
		delete(s.expenses, id)
	}
	return nil
}

func (s *Store) CountExpensesByCategory(_ context.Context, owner, category string) (int, error) {
	return len(s.filterExpenses(func(e core.Expense) bool {
		return e.Owner == owner && e.Category == category
	})), nil
}

func sortExpenses(es []core.Expense) {
	sort.Slice(es, func(i, j int) bool {
		a, b := es[i], es[j]
		if a.Month != b.Month {
			return a.Month.String() < b.Month.String()
		}
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Incomes

func (s *Store) GetFixedIncome(_ context.Context, owner string, month core.MonthKey) (core.FixedIncome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fixed[ownerKey{owner, month.String()}]
	if !ok {
		return core.FixedIncome{}, fmt.Errorf("fixed income %s: %w", month, core.ErrNotFound)
	}
	f.Extras = slices.Clone(f.Extras)
	return f, nil
}

func (s *Store) UpsertFixedIncome(_ context.Context, f core.FixedIncome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.Extras = slices.Clone(f.Extras)
	if f.Extras == nil {
		f.Extras = []core.ExtraIncome{}
	}
	s.fixed[ownerKey{f.Owner, f.Month.String()}] = f
	return nil
}

func (s *Store) ListFixedIncomes(_ context.Context, owner string) ([]core.FixedIncome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.FixedIncome
	for k, f := range s.fixed {
		if k.owner == owner {
			f.Extras = slices.Clone(f.Extras)
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.String() < out[j].Month.String() })
	return out, nil
}

func (s *Store) InsertExtraIncome(_ context.Context, x core.ExtraIncome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.extras[x.ID]; ok {
		return fmt.Errorf("insert extra income %s: duplicate id", x.ID)
	}
	s.extras[x.ID] = x
	return nil
}

func (s *Store) GetExtraIncome(_ context.Context, owner, id string) (core.ExtraIncome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	x, ok := s.extras[id]
	if !ok || x.Owner != owner {
		return core.ExtraIncome{}, fmt.Errorf("extra income %s: %w", id, core.ErrNotFound)
	}
	return x, nil
}

func (s *Store) DeleteExtraIncome(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, ok := s.extras[id]
	if !ok || x.Owner != owner {
		return fmt.Errorf("extra income %s: %w", id, core.ErrNotFound)
	}
	delete(s.extras, id)
	return nil
}

func (s *Store) filterExtras(keep func(core.ExtraIncome) bool) []core.ExtraIncome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.ExtraIncome
	for _, x := range s.extras {
		if keep(x) {
			out = append(out, x)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Month != b.Month {
			return a.Month.String() < b.Month.String()
		}
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func (s *Store) ListExtraIncomes(_ context.Context, owner string, month core.MonthKey) ([]core.ExtraIncome, error) {
	return s.filterExtras(func(x core.ExtraIncome) bool { return x.Owner == owner && x.Month == month }), nil
}

func (s *Store) ListAllExtraIncomes(_ context.Context, owner string) ([]core.ExtraIncome, error) {
	return s.filterExtras(func(x core.ExtraIncome) bool { return x.Owner == owner }), nil
}

// Categories

func (s *Store) nameTaken(owner, name, exceptID string) bool {
	for _, c := range s.categories {
		if c.Owner == owner && c.Name == name && c.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) InsertCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(c.Owner, c.Name, "") {
		return fmt.Errorf("insert category %q: %w", c.Name, core.ErrDuplicateCategory)
	}
	s.categories[c.ID] = c
	return nil
}

func (s *Store) GetCategory(_ context.Context, owner, id string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok || c.Owner != owner {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (s *Store) FindCategoryByName(_ context.Context, owner, name string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.Owner == owner && c.Name == name {
			return c, nil
		}
	}
	return core.Category{}, fmt.Errorf("category %s: %w", name, core.ErrNotFound)
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category, previousName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.categories[c.ID]; !ok || cur.Owner != c.Owner {
		return fmt.Errorf("category %s: %w", c.ID, core.ErrNotFound)
	}
	if s.nameTaken(c.Owner, c.Name, c.ID) {
		return fmt.Errorf("rename category to %q: %w", c.Name, core.ErrDuplicateCategory)
	}
	s.categories[c.ID] = c
	if previousName == "" || previousName == c.Name {
		return nil
	}
	for id, e := range s.expenses {
		if e.Owner == c.Owner && e.Category == previousName {
			e.Category = c.Name
			s.expenses[id] = e
		}
	}
	if l, ok := s.limits[ownerKey{c.Owner, previousName}]; ok {
		delete(s.limits, ownerKey{c.Owner, previousName})
		// A limit already set on the new name wins over the renamed one.
		if _, taken := s.limits[ownerKey{c.Owner, c.Name}]; !taken {
			l.Category = c.Name
			s.limits[ownerKey{c.Owner, c.Name}] = l
		}
	}
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.Owner != owner {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) ListCategories(_ context.Context, owner string) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.Owner == owner {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Spending limits

func (s *Store) UpsertLimit(_ context.Context, l core.SpendingLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ownerKey{l.Owner, l.Category}
	if cur, ok := s.limits[k]; ok {
		l.ID = cur.ID
	}
	s.limits[k] = l
	return nil
}

func (s *Store) DeleteLimit(_ context.Context, owner, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ownerKey{owner, category}
	if _, ok := s.limits[k]; !ok {
		return fmt.Errorf("spending limit %s: %w", category, core.ErrNotFound)
	}
	delete(s.limits, k)
	return nil
}

func (s *Store) ListLimits(_ context.Context, owner string) ([]core.SpendingLimit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.SpendingLimit
	for k, l := range s.limits {
		if k.owner == owner {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// Goals

func (s *Store) InsertGoal(_ context.Context, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; ok {
		return fmt.Errorf("insert goal %s: duplicate id", g.ID)
	}
	s.goals[g.ID] = g
	return nil
}

func (s *Store) GetGoal(_ context.Context, owner, id string) (core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok || g.Owner != owner {
		return core.Goal{}, fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
	}
	return g, nil
}

func (s *Store) UpdateGoal(_ context.Context, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.goals[g.ID]
	if !ok || cur.Owner != g.Owner {
		return fmt.Errorf("goal %s: %w", g.ID, core.ErrNotFound)
	}
	g.CreatedAt = cur.CreatedAt
	s.goals[g.ID] = g
	return nil
}

func (s *Store) DeleteGoal(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok || g.Owner != owner {
		return fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
	}
	delete(s.goals, id)
	return nil
}

func (s *Store) ListGoals(_ context.Context, owner string) ([]core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Goal
	for _, g := range s.goals {
		if g.Owner == owner {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
