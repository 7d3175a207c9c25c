/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists alert triggers and the ledger snapshot (entries, budgets, goals)
  that projections and budget summaries are computed from.

INTERFACES IMPLEMENTED:
  alert.TriggerStore:   Exactly-once trigger rows
  api.SnapshotSource:   Owners and their finance.Snapshot

KEY TABLES:
  alert_triggers:  One row per (budget_id, reference_month, threshold)
  ledger_entries:  Payables and receivables per owner
  budgets:         Monthly limits per category, thresholds as JSON array
  finance_goals:   Net target per owner and month

UNIQUENESS:
  idx_alert_triggers_key is the source of truth for dedup. FindOrCreate
  inserts with ON CONFLICT DO NOTHING and checks RowsAffected, so
  concurrent writers in any number of processes resolve to one row without
  a retry loop. A unique violation on another constraint is reported as
  alert.ErrDuplicateTrigger for the caller's race recovery.

WAL MODE:
  SQLite is opened with WAL and a busy timeout so readers don't block and
  writers wait for each other instead of failing with SQLITE_BUSY.

USAGE:
  store, err := sqlite.New("./data/cashflow.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  dedup := alert.NewDeduplicator(store, logger)

MIGRATION:
  Versioned migrations are embedded from migrations/ and applied with
  golang-migrate on New().

SEE ALSO:
  - alert/store.go: TriggerStore contract
  - alert/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/cashflow-engine/alert"
	"github.com/warp/cashflow-engine/finance"
)

const (
	monthLayout = "2006-01-02"
	timeLayout  = time.RFC3339Nano
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// TRIGGER STORE (alert.TriggerStore interface)
// =============================================================================

const triggerColumns = "id, budget_id, reference_month, threshold, triggered_at, created_at"

// FindOrCreate inserts t unless its key already exists.
func (s *Store) FindOrCreate(ctx context.Context, t alert.Trigger) (alert.Trigger, bool, error) {
	key := t.Key()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_triggers (`+triggerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(budget_id, reference_month, threshold) DO NOTHING
	`,
		t.ID,
		t.BudgetID,
		t.ReferenceMonth.UTC().Format(monthLayout),
		t.Threshold,
		t.TriggeredAt.UTC().Format(timeLayout),
		t.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return alert.Trigger{}, false, &alert.StoreError{Op: "insert", Key: key, Err: alert.ErrDuplicateTrigger}
		}
		return alert.Trigger{}, false, fmt.Errorf("failed to insert alert trigger: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return alert.Trigger{}, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return t, true, nil
	}

	existing, err := s.Find(ctx, key)
	if errors.Is(err, alert.ErrTriggerNotFound) {
		// Conflict reported but the winning row is not visible yet.
		return alert.Trigger{}, false, &alert.StoreError{Op: "insert", Key: key, Err: alert.ErrDuplicateTrigger}
	}
	if err != nil {
		return alert.Trigger{}, false, err
	}
	return existing, false, nil
}

// Find retrieves the trigger for key.
func (s *Store) Find(ctx context.Context, key alert.Key) (alert.Trigger, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+triggerColumns+" FROM alert_triggers WHERE budget_id = ? AND reference_month = ? AND threshold = ?",
		key.BudgetID, key.ReferenceMonth.UTC().Format(monthLayout), key.Threshold,
	)

	t, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return alert.Trigger{}, alert.ErrTriggerNotFound
	}
	if err != nil {
		return alert.Trigger{}, fmt.Errorf("failed to load alert trigger %s: %w", key, err)
	}
	return t, nil
}

// Touch moves TriggeredAt forward for key.
func (s *Store) Touch(ctx context.Context, key alert.Key, at time.Time) (alert.Trigger, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE alert_triggers SET triggered_at = ? WHERE budget_id = ? AND reference_month = ? AND threshold = ?",
		at.UTC().Format(timeLayout), key.BudgetID, key.ReferenceMonth.UTC().Format(monthLayout), key.Threshold,
	)
	if err != nil {
		return alert.Trigger{}, fmt.Errorf("failed to touch alert trigger %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return alert.Trigger{}, alert.ErrTriggerNotFound
	}
	return s.Find(ctx, key)
}

// List returns a budget's triggers ordered by month then threshold.
func (s *Store) List(ctx context.Context, budgetID int64) ([]alert.Trigger, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+triggerColumns+" FROM alert_triggers WHERE budget_id = ? ORDER BY reference_month, threshold",
		budgetID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert triggers: %w", err)
	}
	defer rows.Close()

	var triggers []alert.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row scanner) (alert.Trigger, error) {
	var t alert.Trigger
	var month, triggeredAt, createdAt string

	if err := row.Scan(&t.ID, &t.BudgetID, &month, &t.Threshold, &triggeredAt, &createdAt); err != nil {
		return alert.Trigger{}, err
	}

	var err error
	if t.ReferenceMonth, err = time.Parse(monthLayout, month); err != nil {
		return alert.Trigger{}, fmt.Errorf("bad reference_month %q: %w", month, err)
	}
	if t.TriggeredAt, err = time.Parse(timeLayout, triggeredAt); err != nil {
		return alert.Trigger{}, fmt.Errorf("bad triggered_at %q: %w", triggeredAt, err)
	}
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return alert.Trigger{}, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	return t, nil
}

// =============================================================================
// LEDGER SNAPSHOT (api.SnapshotSource interface)
// =============================================================================

// SaveEntry upserts a ledger entry for owner.
func (s *Store) SaveEntry(ctx context.Context, ownerID int64, e finance.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, owner_id, entry_type, status, value, due_date, recurring, recurring_interval, category_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			entry_type = excluded.entry_type,
			status = excluded.status,
			value = excluded.value,
			due_date = excluded.due_date,
			recurring = excluded.recurring,
			recurring_interval = excluded.recurring_interval,
			category_id = excluded.category_id
	`,
		e.ID, ownerID, string(e.Type), string(e.Status), e.Value, e.DueDate,
		e.Recurring, nullString(string(e.RecurringInterval)), e.CategoryID,
	)
	if err != nil {
		return fmt.Errorf("failed to save ledger entry %s: %w", e.ID, err)
	}
	return nil
}

// SaveBudget upserts a budget. Thresholds are normalized before storage.
func (s *Store) SaveBudget(ctx context.Context, b finance.Budget) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (id, owner_id, category_id, name, monthly_limit, thresholds, reference_month)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			category_id = excluded.category_id,
			name = excluded.name,
			monthly_limit = excluded.monthly_limit,
			thresholds = excluded.thresholds,
			reference_month = excluded.reference_month
	`,
		b.ID, b.OwnerID, b.CategoryID, b.Name, b.MonthlyLimit.String(),
		finance.FormatThresholds(b.Thresholds), nullString(b.ReferenceMonth),
	)
	if err != nil {
		return fmt.Errorf("failed to save budget %d: %w", b.ID, err)
	}
	return nil
}

// SaveGoal upserts the goal of owner for g.Month.
func (s *Store) SaveGoal(ctx context.Context, ownerID int64, g finance.FinanceGoal) error {
	month, err := finance.ParseMonth(g.Month)
	if err != nil {
		return fmt.Errorf("invalid goal month %q: %w", g.Month, err)
	}

	var target sql.NullString
	if g.TargetNetAmount != nil {
		target = sql.NullString{String: g.TargetNetAmount.String(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO finance_goals (owner_id, month, target_net_amount, notes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, month) DO UPDATE SET
			target_net_amount = excluded.target_net_amount,
			notes = excluded.notes
	`, ownerID, finance.MonthKey(month), target, g.Notes)
	if err != nil {
		return fmt.Errorf("failed to save goal %s: %w", g.Month, err)
	}
	return nil
}

// ListOwners returns every owner with at least one budget or entry.
func (s *Store) ListOwners(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id FROM budgets
		UNION
		SELECT owner_id FROM ledger_entries
		ORDER BY owner_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

// LoadSnapshot reads everything the engine needs for one owner.
func (s *Store) LoadSnapshot(ctx context.Context, ownerID int64) (finance.Snapshot, error) {
	var snap finance.Snapshot
	var err error

	if snap.Entries, err = s.loadEntries(ctx, ownerID); err != nil {
		return finance.Snapshot{}, err
	}
	if snap.Budgets, err = s.loadBudgets(ctx, ownerID); err != nil {
		return finance.Snapshot{}, err
	}
	if snap.Goals, err = s.loadGoals(ctx, ownerID); err != nil {
		return finance.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) loadEntries(ctx context.Context, ownerID int64) ([]finance.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_type, status, value, due_date, recurring, recurring_interval, category_id
		FROM ledger_entries WHERE owner_id = ? ORDER BY due_date, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []finance.LedgerEntry
	for rows.Next() {
		var e finance.LedgerEntry
		var interval sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &e.Status, &e.Value, &e.DueDate, &e.Recurring, &interval, &e.CategoryID); err != nil {
			return nil, err
		}
		e.RecurringInterval = finance.Interval(interval.String)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) loadBudgets(ctx context.Context, ownerID int64) ([]finance.Budget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, category_id, name, monthly_limit, thresholds, reference_month
		FROM budgets WHERE owner_id = ? ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load budgets: %w", err)
	}
	defer rows.Close()

	var budgets []finance.Budget
	for rows.Next() {
		var b finance.Budget
		var limit, thresholds string
		var referenceMonth sql.NullString
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.CategoryID, &b.Name, &limit, &thresholds, &referenceMonth); err != nil {
			return nil, err
		}
		if b.MonthlyLimit, err = decimal.NewFromString(limit); err != nil {
			return nil, fmt.Errorf("budget %d has invalid monthly_limit %q: %w", b.ID, limit, err)
		}
		b.Thresholds = finance.ParseThresholds(thresholds)
		b.ReferenceMonth = referenceMonth.String
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (s *Store) loadGoals(ctx context.Context, ownerID int64) ([]finance.FinanceGoal, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT month, target_net_amount, notes FROM finance_goals WHERE owner_id = ? ORDER BY month",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load goals: %w", err)
	}
	defer rows.Close()

	var goals []finance.FinanceGoal
	for rows.Next() {
		var g finance.FinanceGoal
		var target sql.NullString
		if err := rows.Scan(&g.Month, &target, &g.Notes); err != nil {
			return nil, err
		}
		if target.Valid {
			amount, err := decimal.NewFromString(target.String)
			if err != nil {
				return nil, fmt.Errorf("goal %s has invalid target %q: %w", g.Month, target.String, err)
			}
			g.TargetNetAmount = &amount
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ alert.TriggerStore = (*Store)(nil)
