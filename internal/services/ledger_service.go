package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	"finanzas/internal/ledger"
)

const (
	defaultCategoryIcon  = "📦"
	defaultCategoryColor = "#6B7280"
)

// Publisher announces stored changes so the mirror worker can follow them.
type Publisher interface {
	PublishRecordSync(ctx context.Context, ref amqp.RecordRef) error
	PublishRecordDelete(ctx context.Context, ref amqp.RecordRef) error
}

// CategoryInUseError refuses to delete a category that expenses still use.
type CategoryInUseError struct {
	Name     string
	Expenses int
}

func (e *CategoryInUseError) Error() string {
	return fmt.Sprintf("No se puede eliminar la categoría %q: tiene %d gastos asociados. Reasigna o elimina esos gastos primero.", e.Name, e.Expenses)
}

func (e *CategoryInUseError) Unwrap() error { return core.ErrCategoryInUse }

// LedgerService validates and persists ledger mutations. Storage comes first;
// a failed publish is logged and never undoes a stored change.
type LedgerService struct {
	store     Store
	publisher Publisher
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

type Option func(*LedgerService)

// WithPublisher enables change notifications. Pass only a non-nil publisher.
func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *LedgerService) { s.newID = newID }
}

func NewLedgerService(store Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default().With("component", "ledger_service"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store exposes the underlying store for read-only collaborators such as the
// sync worker.
func (s *LedgerService) Store() Store { return s.store }

// Expenses

// CreateExpense stores a new expense. An expense with Installment 0 and more
// than one installment is split into monthly siblings first. The category is
// created on the fly when the owner does not have it yet.
func (s *LedgerService) CreateExpense(ctx context.Context, e core.Expense) ([]core.Expense, error) {
	now := s.now()
	e.Description = strings.TrimSpace(e.Description)
	e.Category = strings.TrimSpace(e.Category)
	if e.TotalInstallments == 0 {
		e.TotalInstallments = 1
	}
	if e.Month.IsZero() && !e.Date.IsZero() {
		e.Month = core.MonthKeyOf(e.Date.Time)
	}
	if err := e.Validate(now); err != nil {
		return nil, err
	}
	e.CreatedAt = now

	var records []core.Expense
	if e.Installment == 0 && e.TotalInstallments > 1 {
		records = ledger.SplitInstallments(e, s.newID)
	} else {
		if e.Installment == 0 {
			e.Installment = 1
		}
		if e.OriginalAmount.Cents == 0 {
			e.OriginalAmount = e.Amount
		}
		if e.ID == "" {
			e.ID = s.newID()
		}
		records = []core.Expense{e}
	}

	if err := s.ensureCategory(ctx, e.Owner, e.Category); err != nil {
		return nil, err
	}
	if err := s.store.InsertExpenses(ctx, records); err != nil {
		return nil, fmt.Errorf("save expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense created",
		"owner", e.Owner,
		"id", records[0].ID,
		"installments", len(records),
		"amount_cents", e.Amount.Cents,
		"category", e.Category)

	for _, r := range records {
		s.publishSync(ctx, expenseRef(r))
	}
	return records, nil
}

// ExpenseUpdate carries the fields to change; nil means unchanged.
type ExpenseUpdate struct {
	Description *string
	Amount      *core.Money
	Category    *string
	Date        *core.Date
	Recurring   *bool
}

// UpdateExpense applies upd to an expense. Description, category, recurring
// flag and amount reach every installment sibling; the amount is per
// installment, so OriginalAmount becomes amount times the installment count.
// A new date only moves the edited record.
func (s *LedgerService) UpdateExpense(ctx context.Context, owner, id string, upd ExpenseUpdate) ([]core.Expense, error) {
	cur, err := s.store.GetExpense(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	group := []core.Expense{cur}
	if cur.IsInstallment() && cur.OriginalID != "" {
		if group, err = s.store.ListSiblings(ctx, owner, cur.OriginalID); err != nil {
			return nil, fmt.Errorf("load installments: %w", err)
		}
	}

	now := s.now()
	for i := range group {
		e := &group[i]
		if upd.Description != nil {
			e.Description = strings.TrimSpace(*upd.Description)
		}
		if upd.Category != nil {
			e.Category = strings.TrimSpace(*upd.Category)
		}
		if upd.Recurring != nil {
			e.Recurring = *upd.Recurring
		}
		if upd.Amount != nil {
			e.Amount = *upd.Amount
			e.OriginalAmount = core.Money{Cents: upd.Amount.Cents * int64(e.TotalInstallments)}
		}
		if upd.Date != nil && e.ID == id {
			e.Date = *upd.Date
			e.Month = core.MonthKeyOf(upd.Date.Time)
		}
		if err := e.Validate(now); err != nil {
			return nil, err
		}
	}

	if upd.Category != nil {
		if err := s.ensureCategory(ctx, owner, strings.TrimSpace(*upd.Category)); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdateExpenses(ctx, group); err != nil {
		return nil, fmt.Errorf("update expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense updated", "owner", owner, "id", id, "records", len(group))
	for _, e := range group {
		s.publishSync(ctx, expenseRef(e))
	}
	return group, nil
}

// DeleteExpense removes an expense together with its installment siblings
// and returns the removed IDs.
func (s *LedgerService) DeleteExpense(ctx context.Context, owner, id string) ([]string, error) {
	cur, err := s.store.GetExpense(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	group := []core.Expense{cur}
	if cur.IsInstallment() && cur.OriginalID != "" {
		if group, err = s.store.ListSiblings(ctx, owner, cur.OriginalID); err != nil {
			return nil, fmt.Errorf("load installments: %w", err)
		}
	}
	ids := make([]string, len(group))
	for i, e := range group {
		ids[i] = e.ID
	}
	if err := s.store.DeleteExpenses(ctx, owner, ids); err != nil {
		return nil, fmt.Errorf("delete expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense deleted", "owner", owner, "id", id, "records", len(ids))
	for _, e := range group {
		s.publishDelete(ctx, expenseRef(e))
	}
	return ids, nil
}

func (s *LedgerService) GetExpense(ctx context.Context, owner, id string) (core.Expense, error) {
	return s.store.GetExpense(ctx, owner, id)
}

func (s *LedgerService) ListExpenses(ctx context.Context, owner string, month core.MonthKey) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, owner, month)
}

func (s *LedgerService) ListAllExpenses(ctx context.Context, owner string) ([]core.Expense, error) {
	return s.store.ListAllExpenses(ctx, owner)
}

// Incomes

// SetFixedIncome creates or replaces the owner's income record for a month.
// When f.Extras is nil the extras already stored for that month are kept.
func (s *LedgerService) SetFixedIncome(ctx context.Context, f core.FixedIncome) (core.FixedIncome, error) {
	if f.Extras == nil {
		prev, err := s.store.GetFixedIncome(ctx, f.Owner, f.Month)
		switch {
		case err == nil:
			f.Extras = prev.Extras
		case !errors.Is(err, core.ErrNotFound):
			return core.FixedIncome{}, fmt.Errorf("load fixed income: %w", err)
		}
	}
	for i := range f.Extras {
		x := &f.Extras[i]
		if x.ID == "" {
			x.ID = s.newID()
		}
		x.Owner = f.Owner
		if x.Month.IsZero() {
			x.Month = f.Month
		}
	}
	if err := f.Validate(); err != nil {
		return core.FixedIncome{}, err
	}
	f.UpdatedAt = s.now()

	if err := s.store.UpsertFixedIncome(ctx, f); err != nil {
		return core.FixedIncome{}, fmt.Errorf("save fixed income: %w", err)
	}
	s.logger.InfoContext(ctx, "Fixed income set",
		"owner", f.Owner,
		"month", f.Month.String(),
		"amount_cents", f.Amount.Cents,
		"extras", len(f.Extras))
	s.publishSync(ctx, amqp.RecordRef{Kind: amqp.KindFixedIncome, Owner: f.Owner, ID: f.Month.String(), Month: f.Month.String()})
	return f, nil
}

// GetFixedIncome returns core.ErrNotFound when the month has no record.
func (s *LedgerService) GetFixedIncome(ctx context.Context, owner string, month core.MonthKey) (core.FixedIncome, error) {
	return s.store.GetFixedIncome(ctx, owner, month)
}

func (s *LedgerService) ListFixedIncomes(ctx context.Context, owner string) ([]core.FixedIncome, error) {
	return s.store.ListFixedIncomes(ctx, owner)
}

// AddExtraIncome stores a one-off income. A missing date means today, a
// missing month follows the date.
func (s *LedgerService) AddExtraIncome(ctx context.Context, x core.ExtraIncome) (core.ExtraIncome, error) {
	now := s.now()
	x.Description = strings.TrimSpace(x.Description)
	if x.Date.IsZero() {
		x.Date = core.DateOf(now)
	}
	if x.Month.IsZero() {
		x.Month = core.MonthKeyOf(x.Date.Time)
	}
	if strings.TrimSpace(x.Category) == "" {
		x.Category = core.DefaultIncomeCategory
	}
	if err := x.Validate(); err != nil {
		return core.ExtraIncome{}, err
	}
	if x.ID == "" {
		x.ID = s.newID()
	}
	x.CreatedAt = now

	if err := s.store.InsertExtraIncome(ctx, x); err != nil {
		return core.ExtraIncome{}, fmt.Errorf("save extra income: %w", err)
	}
	s.logger.InfoContext(ctx, "Extra income added",
		"owner", x.Owner,
		"id", x.ID,
		"month", x.Month.String(),
		"amount_cents", x.Amount.Cents)
	s.publishSync(ctx, extraRef(x))
	return x, nil
}

func (s *LedgerService) DeleteExtraIncome(ctx context.Context, owner, id string) error {
	x, err := s.store.GetExtraIncome(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteExtraIncome(ctx, owner, id); err != nil {
		return fmt.Errorf("delete extra income: %w", err)
	}
	s.logger.InfoContext(ctx, "Extra income deleted", "owner", owner, "id", id)
	s.publishDelete(ctx, extraRef(x))
	return nil
}

func (s *LedgerService) GetExtraIncome(ctx context.Context, owner, id string) (core.ExtraIncome, error) {
	return s.store.GetExtraIncome(ctx, owner, id)
}

func (s *LedgerService) ListExtraIncomes(ctx context.Context, owner string, month core.MonthKey) ([]core.ExtraIncome, error) {
	return s.store.ListExtraIncomes(ctx, owner, month)
}

func (s *LedgerService) ListAllExtraIncomes(ctx context.Context, owner string) ([]core.ExtraIncome, error) {
	return s.store.ListAllExtraIncomes(ctx, owner)
}

// Categories

func (s *LedgerService) ensureCategory(ctx context.Context, owner, name string) error {
	_, err := s.store.FindCategoryByName(ctx, owner, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("look up category: %w", err)
	}
	_, err = s.CreateCategory(ctx, core.Category{Owner: owner, Name: name})
	if errors.Is(err, core.ErrDuplicateCategory) {
		// created concurrently
		return nil
	}
	return err
}

// CreateCategory stores a category; names are unique per owner.
func (s *LedgerService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if _, err := s.store.FindCategoryByName(ctx, c.Owner, c.Name); err == nil {
		return core.Category{}, fmt.Errorf("category %q: %w", c.Name, core.ErrDuplicateCategory)
	}
	if c.ID == "" {
		c.ID = s.newID()
	}
	if c.Icon == "" {
		c.Icon = defaultCategoryIcon
	}
	if c.Color == "" {
		c.Color = defaultCategoryColor
	}
	if err := s.store.InsertCategory(ctx, c); err != nil {
		return core.Category{}, err
	}
	s.logger.InfoContext(ctx, "Category created", "owner", c.Owner, "name", c.Name)
	return c, nil
}

type CategoryUpdate struct {
	Name  *string
	Icon  *string
	Color *string
}

// UpdateCategory edits a category. A rename carries the owner's expenses and
// spending limit along.
func (s *LedgerService) UpdateCategory(ctx context.Context, owner, id string, upd CategoryUpdate) (core.Category, error) {
	c, err := s.store.GetCategory(ctx, owner, id)
	if err != nil {
		return core.Category{}, err
	}
	previous := c.Name
	if upd.Name != nil {
		c.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Icon != nil {
		c.Icon = *upd.Icon
	}
	if upd.Color != nil {
		c.Color = *upd.Color
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.store.UpdateCategory(ctx, c, previous); err != nil {
		return core.Category{}, err
	}
	s.logger.InfoContext(ctx, "Category updated", "owner", owner, "id", id, "name", c.Name, "previous", previous)
	return c, nil
}

// DeleteCategory refuses with a *CategoryInUseError while expenses still
// reference the category.
func (s *LedgerService) DeleteCategory(ctx context.Context, owner, id string) error {
	c, err := s.store.GetCategory(ctx, owner, id)
	if err != nil {
		return err
	}
	n, err := s.store.CountExpensesByCategory(ctx, owner, c.Name)
	if err != nil {
		return fmt.Errorf("count category expenses: %w", err)
	}
	if n > 0 {
		return &CategoryInUseError{Name: c.Name, Expenses: n}
	}
	if err := s.store.DeleteCategory(ctx, owner, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.logger.InfoContext(ctx, "Category deleted", "owner", owner, "name", c.Name)
	return nil
}

func (s *LedgerService) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	return s.store.ListCategories(ctx, owner)
}

// Spending limits

// SetLimit creates or replaces the limit of l.Category. A zero warning
// percentage means the default.
func (s *LedgerService) SetLimit(ctx context.Context, l core.SpendingLimit) (core.SpendingLimit, error) {
	l.Category = strings.TrimSpace(l.Category)
	if l.WarningPercentage == 0 {
		l.WarningPercentage = core.DefaultWarningPercentage
	}
	if err := l.Validate(); err != nil {
		return core.SpendingLimit{}, err
	}
	if l.ID == "" {
		l.ID = s.newID()
	}
	if err := s.store.UpsertLimit(ctx, l); err != nil {
		return core.SpendingLimit{}, fmt.Errorf("save spending limit: %w", err)
	}
	s.logger.InfoContext(ctx, "Spending limit set",
		"owner", l.Owner,
		"category", l.Category,
		"amount_cents", l.Amount.Cents,
		"warning", l.WarningPercentage)
	return l, nil
}

func (s *LedgerService) DeleteLimit(ctx context.Context, owner, category string) error {
	return s.store.DeleteLimit(ctx, owner, category)
}

func (s *LedgerService) ListLimits(ctx context.Context, owner string) ([]core.SpendingLimit, error) {
	return s.store.ListLimits(ctx, owner)
}

// Goals

func (s *LedgerService) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	g.Name = strings.TrimSpace(g.Name)
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	if g.ID == "" {
		g.ID = s.newID()
	}
	g.CreatedAt = s.now()
	if err := s.store.InsertGoal(ctx, g); err != nil {
		return core.Goal{}, fmt.Errorf("save goal: %w", err)
	}
	s.logger.InfoContext(ctx, "Goal created", "owner", g.Owner, "name", g.Name, "target_cents", g.Target.Cents)
	return g, nil
}

// Contribute adds amount to a goal's saved total. A negative amount
// withdraws, but the total never drops below zero.
func (s *LedgerService) Contribute(ctx context.Context, owner, id string, amount core.Money) (core.Goal, error) {
	if amount.Cents == 0 {
		return core.Goal{}, fmt.Errorf("%w: contribution cannot be zero", core.ErrInvalidAmount)
	}
	g, err := s.store.GetGoal(ctx, owner, id)
	if err != nil {
		return core.Goal{}, err
	}
	g.Current = g.Current.Add(amount)
	if g.Current.Cents < 0 {
		return core.Goal{}, fmt.Errorf("%w: withdrawal exceeds saved amount", core.ErrInvalidAmount)
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	if err := s.store.UpdateGoal(ctx, g); err != nil {
		return core.Goal{}, fmt.Errorf("update goal: %w", err)
	}
	s.logger.InfoContext(ctx, "Goal contribution", "owner", owner, "id", id, "amount_cents", amount.Cents)
	return g, nil
}

func (s *LedgerService) DeleteGoal(ctx context.Context, owner, id string) error {
	return s.store.DeleteGoal(ctx, owner, id)
}

func (s *LedgerService) ListGoals(ctx context.Context, owner string) ([]core.Goal, error) {
	return s.store.ListGoals(ctx, owner)
}

// Fan-out

func expenseRef(e core.Expense) amqp.RecordRef {
	return amqp.RecordRef{Kind: amqp.KindExpense, Owner: e.Owner, ID: e.ID, Month: e.Month.String()}
}

func extraRef(x core.ExtraIncome) amqp.RecordRef {
	return amqp.RecordRef{Kind: amqp.KindExtraIncome, Owner: x.Owner, ID: x.ID, Month: x.Month.String()}
}

func (s *LedgerService) publishSync(ctx context.Context, ref amqp.RecordRef) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRecordSync(ctx, ref); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sync message",
			"kind", ref.Kind, "id", ref.ID, "error", err)
	}
}

func (s *LedgerService) publishDelete(ctx context.Context, ref amqp.RecordRef) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRecordDelete(ctx, ref); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish delete message",
			"kind", ref.Kind, "id", ref.ID, "error", err)
	}
}

// Close closes the store and, when it can be closed, the publisher.
func (s *LedgerService) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}
