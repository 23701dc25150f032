package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"finanzas/internal/core"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite repository ready", "path", dbPath)
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers; used by readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func requireAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		(se.Code() == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE"))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

func parseDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseISODate(s)
}

// Expenses

const expenseColumns = `id, owner, description, amount_cents, category, date, month,
	installment, total_installments, original_amount_cents, original_id, recurring, created_at`

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e                    core.Expense
		date, month, created string
	)
	err := s.Scan(&e.ID, &e.Owner, &e.Description, &e.Amount.Cents, &e.Category, &date, &month,
		&e.Installment, &e.TotalInstallments, &e.OriginalAmount.Cents, &e.OriginalID, &e.Recurring, &created)
	if err != nil {
		return core.Expense{}, err
	}
	if e.Date, err = parseDate(date); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", e.ID, err)
	}
	if e.Month, err = core.ParseMonthKey(month); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", e.ID, err)
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s created_at: %w", e.ID, err)
	}
	return e, nil
}

func collectExpenses(rows *sql.Rows) ([]core.Expense, error) {
	defer rows.Close()
	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertExpenses(ctx context.Context, es []core.Expense) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO expenses (`+expenseColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert expense: %w", err)
		}
		defer stmt.Close()
		for _, e := range es {
			_, err := stmt.ExecContext(ctx, e.ID, e.Owner, e.Description, e.Amount.Cents, e.Category,
				e.Date.ISO(), e.Month.String(), e.Installment, e.TotalInstallments,
				e.OriginalAmount.Cents, e.OriginalID, e.Recurring, formatTime(e.CreatedAt))
			if err != nil {
				return fmt.Errorf("insert expense %s: %w", e.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "Expenses saved to SQLite", "count", len(es))
	return nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, owner, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE owner = ? AND id = ?`, owner, id)
	e, err := scanExpense(row)
	if err != nil {
		return core.Expense{}, notFound(err, "expense", id)
	}
	return e, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, owner string, month core.MonthKey) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE owner = ? AND month = ? ORDER BY date, created_at, id`, owner, month.String())
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return collectExpenses(rows)
}

func (r *SQLiteRepository) ListAllExpenses(ctx context.Context, owner string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE owner = ? ORDER BY month, date, created_at, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list all expenses: %w", err)
	}
	return collectExpenses(rows)
}

func (r *SQLiteRepository) ListSiblings(ctx context.Context, owner, originalID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE owner = ? AND original_id = ? ORDER BY installment, id`, owner, originalID)
	if err != nil {
		return nil, fmt.Errorf("list installment siblings: %w", err)
	}
	return collectExpenses(rows)
}

func (r *SQLiteRepository) UpdateExpenses(ctx context.Context, es []core.Expense) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range es {
			res, err := tx.ExecContext(ctx, `UPDATE expenses SET
				description = ?, amount_cents = ?, category = ?, date = ?, month = ?,
				installment = ?, total_installments = ?, original_amount_cents = ?,
				original_id = ?, recurring = ?
				WHERE owner = ? AND id = ?`,
				e.Description, e.Amount.Cents, e.Category, e.Date.ISO(), e.Month.String(),
				e.Installment, e.TotalInstallments, e.OriginalAmount.Cents,
				e.OriginalID, e.Recurring, e.Owner, e.ID)
			if err != nil {
				return fmt.Errorf("update expense %s: %w", e.ID, err)
			}
			if err := requireAffected(res, "expense", e.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteExpenses(ctx context.Context, owner string, ids []string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE owner = ? AND id = ?`, owner, id)
			if err != nil {
				return fmt.Errorf("delete expense %s: %w", id, err)
			}
			if err := requireAffected(res, "expense", id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) CountExpensesByCategory(ctx context.Context, owner, category string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses WHERE owner = ? AND category = ?`,
		owner, category).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count expenses by category: %w", err)
	}
	return n, nil
}

// Incomes

func scanFixedIncome(s scanner) (core.FixedIncome, error) {
	var (
		f                      core.FixedIncome
		month, extras, updated string
	)
	if err := s.Scan(&f.Owner, &month, &f.Amount.Cents, &extras, &updated); err != nil {
		return core.FixedIncome{}, err
	}
	var err error
	if f.Month, err = core.ParseMonthKey(month); err != nil {
		return core.FixedIncome{}, err
	}
	if err := json.Unmarshal([]byte(extras), &f.Extras); err != nil {
		return core.FixedIncome{}, fmt.Errorf("decode extras for %s: %w", month, err)
	}
	if f.UpdatedAt, err = parseTime(updated); err != nil {
		return core.FixedIncome{}, fmt.Errorf("fixed income updated_at: %w", err)
	}
	return f, nil
}

func (r *SQLiteRepository) GetFixedIncome(ctx context.Context, owner string, month core.MonthKey) (core.FixedIncome, error) {
	row := r.db.QueryRowContext(ctx, `SELECT owner, month, amount_cents, extras, updated_at
		FROM fixed_incomes WHERE owner = ? AND month = ?`, owner, month.String())
	f, err := scanFixedIncome(row)
	if err != nil {
		return core.FixedIncome{}, notFound(err, "fixed income", month.String())
	}
	return f, nil
}

func (r *SQLiteRepository) UpsertFixedIncome(ctx context.Context, f core.FixedIncome) error {
	extras := f.Extras
	if extras == nil {
		extras = []core.ExtraIncome{}
	}
	encoded, err := json.Marshal(extras)
	if err != nil {
		return fmt.Errorf("encode extras: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO fixed_incomes (owner, month, amount_cents, extras, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner, month) DO UPDATE SET
			amount_cents = excluded.amount_cents,
			extras = excluded.extras,
			updated_at = excluded.updated_at`,
		f.Owner, f.Month.String(), f.Amount.Cents, string(encoded), formatTime(f.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert fixed income: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListFixedIncomes(ctx context.Context, owner string) ([]core.FixedIncome, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT owner, month, amount_cents, extras, updated_at
		FROM fixed_incomes WHERE owner = ? ORDER BY month`, owner)
	if err != nil {
		return nil, fmt.Errorf("list fixed incomes: %w", err)
	}
	defer rows.Close()
	var out []core.FixedIncome
	for rows.Next() {
		f, err := scanFixedIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fixed income: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const extraIncomeColumns = `id, owner, month, description, amount_cents, category, date, created_at`

func scanExtraIncome(s scanner) (core.ExtraIncome, error) {
	var (
		x                    core.ExtraIncome
		month, date, created string
	)
	err := s.Scan(&x.ID, &x.Owner, &month, &x.Description, &x.Amount.Cents, &x.Category, &date, &created)
	if err != nil {
		return core.ExtraIncome{}, err
	}
	if x.Month, err = core.ParseMonthKey(month); err != nil {
		return core.ExtraIncome{}, err
	}
	if x.Date, err = parseDate(date); err != nil {
		return core.ExtraIncome{}, err
	}
	if x.CreatedAt, err = parseTime(created); err != nil {
		return core.ExtraIncome{}, err
	}
	return x, nil
}

func collectExtraIncomes(rows *sql.Rows) ([]core.ExtraIncome, error) {
	defer rows.Close()
	var out []core.ExtraIncome
	for rows.Next() {
		x, err := scanExtraIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan extra income: %w", err)
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertExtraIncome(ctx context.Context, x core.ExtraIncome) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO extra_incomes (`+extraIncomeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		x.ID, x.Owner, x.Month.String(), x.Description, x.Amount.Cents, x.Category,
		x.Date.ISO(), formatTime(x.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert extra income: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetExtraIncome(ctx context.Context, owner, id string) (core.ExtraIncome, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+extraIncomeColumns+` FROM extra_incomes
		WHERE owner = ? AND id = ?`, owner, id)
	x, err := scanExtraIncome(row)
	if err != nil {
		return core.ExtraIncome{}, notFound(err, "extra income", id)
	}
	return x, nil
}

func (r *SQLiteRepository) DeleteExtraIncome(ctx context.Context, owner, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM extra_incomes WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete extra income: %w", err)
	}
	return requireAffected(res, "extra income", id)
}

func (r *SQLiteRepository) ListExtraIncomes(ctx context.Context, owner string, month core.MonthKey) ([]core.ExtraIncome, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+extraIncomeColumns+` FROM extra_incomes
		WHERE owner = ? AND month = ? ORDER BY date, created_at, id`, owner, month.String())
	if err != nil {
		return nil, fmt.Errorf("list extra incomes: %w", err)
	}
	return collectExtraIncomes(rows)
}

func (r *SQLiteRepository) ListAllExtraIncomes(ctx context.Context, owner string) ([]core.ExtraIncome, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+extraIncomeColumns+` FROM extra_incomes
		WHERE owner = ? ORDER BY month, date, created_at, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list all extra incomes: %w", err)
	}
	return collectExtraIncomes(rows)
}

// Categories

func scanCategory(s scanner) (core.Category, error) {
	var c core.Category
	err := s.Scan(&c.ID, &c.Owner, &c.Name, &c.Icon, &c.Color)
	return c, err
}

func (r *SQLiteRepository) InsertCategory(ctx context.Context, c core.Category) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO categories (id, owner, name, icon, color)
		VALUES (?, ?, ?, ?, ?)`, c.ID, c.Owner, c.Name, c.Icon, c.Color)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert category %q: %w", c.Name, core.ErrDuplicateCategory)
	}
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, owner, id string) (core.Category, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, owner, name, icon, color FROM categories
		WHERE owner = ? AND id = ?`, owner, id)
	c, err := scanCategory(row)
	if err != nil {
		return core.Category{}, notFound(err, "category", id)
	}
	return c, nil
}

func (r *SQLiteRepository) FindCategoryByName(ctx context.Context, owner, name string) (core.Category, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, owner, name, icon, color FROM categories
		WHERE owner = ? AND name = ?`, owner, name)
	c, err := scanCategory(row)
	if err != nil {
		return core.Category{}, notFound(err, "category", name)
	}
	return c, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category, previousName string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE categories SET name = ?, icon = ?, color = ?
			WHERE owner = ? AND id = ?`, c.Name, c.Icon, c.Color, c.Owner, c.ID)
		if isUniqueViolation(err) {
			return fmt.Errorf("rename category to %q: %w", c.Name, core.ErrDuplicateCategory)
		}
		if err != nil {
			return fmt.Errorf("update category: %w", err)
		}
		if err := requireAffected(res, "category", c.ID); err != nil {
			return err
		}
		if previousName == "" || previousName == c.Name {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE expenses SET category = ? WHERE owner = ? AND category = ?`,
			c.Name, c.Owner, previousName); err != nil {
			return fmt.Errorf("rename category on expenses: %w", err)
		}
		// A limit already set on the new name wins over the renamed one.
		if _, err := tx.ExecContext(ctx, `DELETE FROM spending_limits WHERE owner = ? AND category = ?
			AND EXISTS (SELECT 1 FROM spending_limits WHERE owner = ? AND category = ?)`,
			c.Owner, previousName, c.Owner, c.Name); err != nil {
			return fmt.Errorf("merge limits on rename: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE spending_limits SET category = ? WHERE owner = ? AND category = ?`,
			c.Name, c.Owner, previousName); err != nil {
			return fmt.Errorf("rename category on limits: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, owner, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return requireAffected(res, "category", id)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, owner, name, icon, color FROM categories
		WHERE owner = ? ORDER BY name`, owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Spending limits

func (r *SQLiteRepository) UpsertLimit(ctx context.Context, l core.SpendingLimit) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO spending_limits (id, owner, category, amount_cents, warning_percentage)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner, category) DO UPDATE SET
			amount_cents = excluded.amount_cents,
			warning_percentage = excluded.warning_percentage`,
		l.ID, l.Owner, l.Category, l.Amount.Cents, l.WarningPercentage)
	if err != nil {
		return fmt.Errorf("upsert spending limit: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteLimit(ctx context.Context, owner, category string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM spending_limits WHERE owner = ? AND category = ?`, owner, category)
	if err != nil {
		return fmt.Errorf("delete spending limit: %w", err)
	}
	return requireAffected(res, "spending limit", category)
}

func (r *SQLiteRepository) ListLimits(ctx context.Context, owner string) ([]core.SpendingLimit, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, owner, category, amount_cents, warning_percentage
		FROM spending_limits WHERE owner = ? ORDER BY category`, owner)
	if err != nil {
		return nil, fmt.Errorf("list spending limits: %w", err)
	}
	defer rows.Close()
	var out []core.SpendingLimit
	for rows.Next() {
		var l core.SpendingLimit
		if err := rows.Scan(&l.ID, &l.Owner, &l.Category, &l.Amount.Cents, &l.WarningPercentage); err != nil {
			return nil, fmt.Errorf("scan spending limit: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Goals

func scanGoal(s scanner) (core.Goal, error) {
	var (
		g       core.Goal
		created string
	)
	if err := s.Scan(&g.ID, &g.Owner, &g.Name, &g.Target.Cents, &g.Current.Cents, &created); err != nil {
		return core.Goal{}, err
	}
	var err error
	if g.CreatedAt, err = parseTime(created); err != nil {
		return core.Goal{}, fmt.Errorf("goal %s created_at: %w", g.ID, err)
	}
	return g, nil
}

func (r *SQLiteRepository) InsertGoal(ctx context.Context, g core.Goal) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO goals (id, owner, name, target_cents, current_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, g.ID, g.Owner, g.Name, g.Target.Cents, g.Current.Cents, formatTime(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, owner, id string) (core.Goal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, owner, name, target_cents, current_cents, created_at
		FROM goals WHERE owner = ? AND id = ?`, owner, id)
	g, err := scanGoal(row)
	if err != nil {
		return core.Goal{}, notFound(err, "goal", id)
	}
	return g, nil
}

func (r *SQLiteRepository) UpdateGoal(ctx context.Context, g core.Goal) error {
	res, err := r.db.ExecContext(ctx, `UPDATE goals SET name = ?, target_cents = ?, current_cents = ?
		WHERE owner = ? AND id = ?`, g.Name, g.Target.Cents, g.Current.Cents, g.Owner, g.ID)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return requireAffected(res, "goal", g.ID)
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, owner, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return requireAffected(res, "goal", id)
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, owner string) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, owner, name, target_cents, current_cents, created_at
		FROM goals WHERE owner = ? ORDER BY created_at, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()
	var out []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
