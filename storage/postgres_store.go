package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"sales-funnel-analytics/models"
	"sales-funnel-analytics/utils"
)

const batchSize = 50

// PostgresStore mirrors the latest raw snapshot into PostgreSQL and reads it
// back. Each write replaces the previous snapshot; no history is kept.
type PostgresStore struct {
	db     *sql.DB
	logger *utils.Logger
}

// NewPostgresStore opens a connection to PostgreSQL, waits for it to accept
// connections, runs schema migrations and returns a ready-to-use store.
func NewPostgresStore(ctx context.Context, dsn string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, Logger: logger}
	if err := retry.Do(ctx, "postgres ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	ps := &PostgresStore{db: db, logger: logger}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return ps, nil
}

// dealColumns maps models.RawFields to column names, in the same order.
func dealColumns() []string {
	cols := make([]string, len(models.RawFields))
	for i, f := range models.RawFields {
		cols[i] = strings.ToLower(f)
	}
	return cols
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	var defs []string
	for _, c := range dealColumns() {
		defs = append(defs, fmt.Sprintf("%s TEXT", c))
	}

	_, err := ps.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS crm_deals (
			seq INTEGER PRIMARY KEY,
			%s
		);

		CREATE TABLE IF NOT EXISTS crm_users (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS crm_categories (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS crm_snapshot (
			singleton  BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			fetched_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_crm_deals_assigned ON crm_deals(assigned_by_id);
	`, strings.Join(defs, ",\n\t\t\t")))
	if err != nil {
		return err
	}

	// Mirrors created before a field joined RawFields lack its column.
	for _, c := range dealColumns() {
		if _, err := ps.db.ExecContext(ctx,
			fmt.Sprintf("ALTER TABLE crm_deals ADD COLUMN IF NOT EXISTS %s TEXT", c)); err != nil {
			return err
		}
	}
	return nil
}

// WriteSnapshot replaces the stored snapshot with snap inside one transaction.
func (ps *PostgresStore) WriteSnapshot(ctx context.Context, snap *models.Snapshot) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"crm_deals", "crm_users", "crm_categories", "crm_snapshot"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("postgres: clear %s: %w", table, err)
		}
	}

	cols := append([]string{"seq"}, dealColumns()...)
	rows := make([][]any, len(snap.Deals))
	for i, d := range snap.Deals {
		row := make([]any, 0, len(cols))
		row = append(row, i)
		for _, f := range models.RawFields {
			if s, ok := rawText(d[f]); ok {
				row = append(row, s)
			} else {
				row = append(row, nil)
			}
		}
		rows[i] = row
	}
	if err := insertBatches(ctx, tx, "crm_deals", cols, rows); err != nil {
		return err
	}
	if err := insertBatches(ctx, tx, "crm_users", []string{"id", "name"}, lookupRows(snap.Users)); err != nil {
		return err
	}
	if err := insertBatches(ctx, tx, "crm_categories", []string{"id", "name"}, lookupRows(snap.Categories)); err != nil {
		return err
	}

	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO crm_snapshot (fetched_at) VALUES ($1)", fetchedAt); err != nil {
		return fmt.Errorf("postgres: record snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	ps.logger.Info("[postgres] Mirrored %d deals, %d users, %d categories",
		len(snap.Deals), len(snap.Users), len(snap.Categories))
	return nil
}

func lookupRows(m map[string]string) [][]any {
	rows := make([][]any, 0, len(m))
	for _, id := range slices.SortedFunc(maps.Keys(m), utils.CompareIDs) {
		rows = append(rows, []any{id, m[id]})
	}
	return rows
}

func insertBatches(ctx context.Context, tx *sql.Tx, table string, cols []string, rows [][]any) error {
	for i := 0; i < len(rows); i += batchSize {
		batch := rows[i:min(i+batchSize, len(rows))]
		args := make([]any, 0, len(batch)*len(cols))
		for _, r := range batch {
			args = append(args, r...)
		}
		if _, err := tx.ExecContext(ctx, insertQuery(table, cols, len(batch)), args...); err != nil {
			return fmt.Errorf("postgres: insert %s: %w", table, err)
		}
	}
	return nil
}

// insertQuery builds a multi-row INSERT with numbered placeholders.
func insertQuery(table string, cols []string, n int) string {
	valueStrings := make([]string, 0, n)
	for row := 0; row < n; row++ {
		ph := make([]string, len(cols))
		for c := range cols {
			ph[c] = fmt.Sprintf("$%d", row*len(cols)+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		table, strings.Join(cols, ", "), strings.Join(valueStrings, ","))
}

// Snapshot reads the mirrored snapshot back in its original deal order.
// Empty lookup tables read as nil maps.
func (ps *PostgresStore) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	cols := dealColumns()
	rows, err := ps.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM crm_deals ORDER BY seq", strings.Join(cols, ", ")))
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch deals: %w", err)
	}
	defer rows.Close()

	snap := &models.Snapshot{}
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("postgres: scan deal: %w", err)
		}

		d := make(models.RawDeal, len(cols))
		for i, f := range models.RawFields {
			if vals[i].Valid {
				d[f] = vals[i].String
			} else {
				d[f] = nil
			}
		}
		snap.Deals = append(snap.Deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: fetch deals: %w", err)
	}

	if snap.Users, err = ps.lookup(ctx, "crm_users"); err != nil {
		return nil, err
	}
	if snap.Categories, err = ps.lookup(ctx, "crm_categories"); err != nil {
		return nil, err
	}

	err = ps.db.QueryRowContext(ctx, "SELECT fetched_at FROM crm_snapshot").Scan(&snap.FetchedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		snap.FetchedAt = time.Now()
	case err != nil:
		return nil, fmt.Errorf("postgres: fetch snapshot time: %w", err)
	}

	ps.logger.Info("[postgres] Loaded %d deals from mirror", len(snap.Deals))
	return snap, nil
}

func (ps *PostgresStore) lookup(ctx context.Context, table string) (map[string]string, error) {
	rows, err := ps.db.QueryContext(ctx, "SELECT id, name FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch %s: %w", table, err)
	}
	defer rows.Close()

	var m map[string]string
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", table, err)
		}
		if m == nil {
			m = make(map[string]string)
		}
		m[id] = name
	}
	return m, rows.Err()
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}
