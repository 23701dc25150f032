package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxDescriptionLength     = 200
	MaxInstallments          = 60
	DefaultWarningPercentage = 80
	MinWarningPercentage     = 50
	MaxWarningPercentage     = 100

	// DefaultCategory is the bucket used when a record arrives without one.
	DefaultCategory = "Otros"
	// DefaultIncomeCategory is assigned to extra incomes created from bank statements.
	DefaultIncomeCategory = "other"
)

type (
	Expense struct {
		ID                string    `json:"id"`
		Owner             string    `json:"owner"`
		Description       string    `json:"description"`
		Amount            Money     `json:"amount"`
		Category          string    `json:"category"`
		Date              Date      `json:"date"`
		Month             MonthKey  `json:"month"`
		Installment       int       `json:"installment"`        // 1-based; 0 means "not split yet"
		TotalInstallments int       `json:"total_installments"`
		OriginalAmount    Money     `json:"original_amount"`
		OriginalID        string    `json:"original_id"`        // shared by installment siblings
		Recurring         bool      `json:"recurring"`
		CreatedAt         time.Time `json:"created_at"`
	}

	// FixedIncome is the single income record of an owner for one month.
	// Extras holds one-off adjustments attached to that record.
	FixedIncome struct {
		Owner     string        `json:"owner"`
		Month     MonthKey      `json:"month"`
		Amount    Money         `json:"amount"`
		Extras    []ExtraIncome `json:"extras"`
		UpdatedAt time.Time     `json:"updated_at"`
	}

	ExtraIncome struct {
		ID          string    `json:"id"`
		Owner       string    `json:"owner"`
		Month       MonthKey  `json:"month"`
		Description string    `json:"description"`
		Amount      Money     `json:"amount"`
		Category    string    `json:"category"`
		Date        Date      `json:"date"`
		CreatedAt   time.Time `json:"created_at"`
	}

	Category struct {
		ID    string `json:"id"`
		Owner string `json:"owner"`
		Name  string `json:"name"`
		Icon  string `json:"icon"`
		Color string `json:"color"`
	}

	SpendingLimit struct {
		ID                string `json:"id"`
		Owner             string `json:"owner"`
		Category          string `json:"category"`
		Amount            Money  `json:"amount"`
		WarningPercentage int    `json:"warning_percentage"`
	}

	Goal struct {
		ID        string    `json:"id"`
		Owner     string    `json:"owner"`
		Name      string    `json:"name"`
		Target    Money     `json:"target"`
		Current   Money     `json:"current"`
		CreatedAt time.Time `json:"created_at"`
	}

	// BankTransaction is one statement line; Amount is signed (negative = debit).
	BankTransaction struct {
		Date        Date   `json:"date"`
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		Reference   string `json:"reference"`
	}
)

var (
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDate         = errors.New("invalid date")
	ErrFutureDate          = errors.New("date is in the future")
	ErrEmptyDescription    = errors.New("empty description")
	ErrDescriptionTooLong  = errors.New("description too long (max 200 characters)")
	ErrInvalidDescription  = errors.New("description contains invalid characters")
	ErrEmptyCategory       = errors.New("empty category")
	ErrEmptyName           = errors.New("empty name")
	ErrInvalidInstallments = errors.New("invalid installments")
	ErrInvalidWarning      = errors.New("warning percentage must be between 50 and 100")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateCategory   = errors.New("category already exists")
	ErrCategoryInUse       = errors.New("category in use")
)

var descriptionPattern = regexp.MustCompile(`^[\p{L}\p{N}\s.,;:!?¿¡()\-_/&%#@+'*$€°]+$`)

// ValidateDescription checks presence, length and character set.
func ValidateDescription(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(s) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if !descriptionPattern.MatchString(s) {
		return ErrInvalidDescription
	}
	return nil
}

// Validate checks the expense against the field rules. now anchors the
// date window: a first installment cannot be in the future, later siblings
// may reach ten years ahead.
func (e Expense) Validate(now time.Time) error {
	if err := ValidateDescription(e.Description); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if e.TotalInstallments < 1 || e.TotalInstallments > MaxInstallments {
		return fmt.Errorf("%w: total %d", ErrInvalidInstallments, e.TotalInstallments)
	}
	if e.Installment < 0 || e.Installment > e.TotalInstallments {
		return fmt.Errorf("%w: installment %d of %d", ErrInvalidInstallments, e.Installment, e.TotalInstallments)
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if e.Date.Before(now.AddDate(-100, 0, 0)) {
		return fmt.Errorf("%w: older than 100 years", ErrInvalidDate)
	}
	if e.Installment <= 1 {
		if e.Date.After(EndOfDay(now)) {
			return ErrFutureDate
		}
	} else if e.Date.After(now.AddDate(10, 0, 0)) {
		return fmt.Errorf("%w: more than 10 years ahead", ErrInvalidDate)
	}
	if e.Month.IsZero() {
		return ErrInvalidMonth
	}
	return nil
}

func (f FixedIncome) Validate() error {
	if f.Month.IsZero() {
		return ErrInvalidMonth
	}
	if err := f.Amount.Validate(); err != nil {
		return err
	}
	for _, x := range f.Extras {
		if err := x.Amount.Validate(); err != nil {
			return fmt.Errorf("extra %q: %w", x.Description, err)
		}
	}
	return nil
}

func (x ExtraIncome) Validate() error {
	if x.Month.IsZero() {
		return ErrInvalidMonth
	}
	if err := ValidateDescription(x.Description); err != nil {
		return err
	}
	return x.Amount.Validate()
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(c.Name) > 50 {
		return fmt.Errorf("%w: name too long", ErrInvalidDescription)
	}
	return nil
}

func (l SpendingLimit) Validate() error {
	if strings.TrimSpace(l.Category) == "" {
		return ErrEmptyCategory
	}
	if err := l.Amount.Validate(); err != nil {
		return err
	}
	if l.WarningPercentage < MinWarningPercentage || l.WarningPercentage > MaxWarningPercentage {
		return ErrInvalidWarning
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if g.Target.Cents <= 0 {
		return fmt.Errorf("%w: target must be positive", ErrInvalidAmount)
	}
	return g.Current.Validate()
}

// Progress returns current/target as a percentage clamped to [0,100].
func (g Goal) Progress() float64 {
	if g.Target.Cents <= 0 {
		return 0
	}
	p := float64(g.Current.Cents) / float64(g.Target.Cents) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// IsInstallment reports whether the expense belongs to a sibling group.
func (e Expense) IsInstallment() bool {
	return e.TotalInstallments > 1
}
