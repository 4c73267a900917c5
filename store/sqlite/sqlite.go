/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements purchasing.Store (the engine's transactional boundary) plus the
  order ledger, the registries and the read models the HTTP layer needs.

KEY TABLES:
  order_items:        Order ledger, one row per station request
  daily_lists:        One row per date; locked_at is the freeze flag
  daily_list_items:   Merged lines, unique per (list, supplier, item, unit)
  receiving_records:  One-to-one with daily_list_items
  stations, suppliers, units: Registries with a soft "active" flag

CONCURRENCY:
  Uses sync.RWMutex so writers are serialized, the same way SQLite itself
  serializes them. The receiving lock is additionally a conditional UPDATE,
  which is what makes concurrent commits safe on any backend.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/app.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := purchasing.NewEngine(store, logger)

MIGRATION:
  Schema is created and default registries seeded once, in New().

SEE ALSO:
  - purchasing/store.go: Interface definitions
  - queries.go:          Registries and read models
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/kitchen-orders/purchasing"
)

// Store implements purchasing.Store and the application queries using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ purchasing.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := store.seed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Registries
	CREATE TABLE IF NOT EXISTS stations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS suppliers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS units (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1,
		deleted_at TEXT
	);

	-- Order ledger
	CREATE TABLE IF NOT EXISTS order_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		station_id INTEGER NOT NULL REFERENCES stations(id),
		supplier_id INTEGER NOT NULL REFERENCES suppliers(id),
		item_name TEXT NOT NULL,
		quantity TEXT NOT NULL,
		quantity_value TEXT NOT NULL DEFAULT '0',
		unit TEXT NOT NULL,
		note TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_order_items_date
		ON order_items(date);
	CREATE INDEX IF NOT EXISTS idx_order_items_supplier
		ON order_items(supplier_id);

	-- Daily lists (one per date)
	CREATE TABLE IF NOT EXISTS daily_lists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL UNIQUE,
		locked_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_list_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		daily_list_id INTEGER NOT NULL REFERENCES daily_lists(id),
		supplier_id INTEGER NOT NULL REFERENCES suppliers(id),
		item_name TEXT NOT NULL,
		unit TEXT NOT NULL,
		total_quantity TEXT NOT NULL,
		source_count INTEGER NOT NULL,
		UNIQUE(daily_list_id, supplier_id, item_name, unit)
	);

	CREATE INDEX IF NOT EXISTS idx_daily_list_items_list
		ON daily_list_items(daily_list_id);

	-- Receiving (one record per daily list item)
	CREATE TABLE IF NOT EXISTS receiving_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		daily_list_item_id INTEGER NOT NULL UNIQUE REFERENCES daily_list_items(id),
		quality_ok INTEGER NOT NULL,
		unit_price TEXT,
		input_unit_price TEXT,
		price_unit TEXT,
		receive_note TEXT NOT NULL DEFAULT '',
		received_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

var (
	defaultStations  = []string{"Hot", "Cold", "Prep", "Pastry", "Fish", "GM"}
	defaultSuppliers = []string{"菜佬", "盒马", "员工餐", "香记", "心意", "西诺蒂斯", "美食富", "花草", "杂货", "试菜"}
	defaultUnits     = []string{"个", "斤", "千克", "克", "箱", "包", "袋", "盒", "瓶", "把", "条", "桶"}
)

// seed makes sure the default stations and suppliers exist and are active,
// and adds the default unit library without reviving deleted units.
func (s *Store) seed() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range defaultStations {
		if _, err := tx.Exec(
			"INSERT INTO stations(name, is_active) VALUES (?, 1) ON CONFLICT(name) DO UPDATE SET is_active = 1",
			name,
		); err != nil {
			return err
		}
	}
	for _, name := range defaultSuppliers {
		if _, err := tx.Exec(
			"INSERT INTO suppliers(name, is_active) VALUES (?, 1) ON CONFLICT(name) DO UPDATE SET is_active = 1",
			name,
		); err != nil {
			return err
		}
	}
	for _, name := range defaultUnits {
		if _, err := tx.Exec("INSERT INTO units(name, is_active) VALUES (?, 1) ON CONFLICT(name) DO NOTHING", name); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// =============================================================================
// TRANSACTIONAL STORE (purchasing.Store interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx purchasing.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

var _ purchasing.Tx = (*txStore)(nil)

func (ts *txStore) OrderLines(ctx context.Context, date string) ([]purchasing.OrderLine, error) {
	rows, err := ts.tx.QueryContext(ctx, `
		SELECT id, date, station_id, supplier_id, item_name, unit, quantity, quantity_value, note, created_at
		FROM order_items
		WHERE date = ?
		ORDER BY id ASC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load order lines: %w", err)
	}
	defer rows.Close()

	var lines []purchasing.OrderLine
	for rows.Next() {
		var (
			o         purchasing.OrderLine
			note      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&o.ID, &o.Date, &o.StationID, &o.SupplierID, &o.ItemName, &o.Unit,
			&o.Quantity, &o.QuantityValue, &note, &createdAt); err != nil {
			return nil, err
		}
		o.Note = note.String
		o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		lines = append(lines, o)
	}
	return lines, rows.Err()
}

func (ts *txStore) DailyList(ctx context.Context, date string) (*purchasing.DailyList, error) {
	return scanDailyList(ts.tx.QueryRowContext(ctx,
		"SELECT id, date, locked_at FROM daily_lists WHERE date = ?", date))
}

func (ts *txStore) EnsureDailyList(ctx context.Context, date string) (*purchasing.DailyList, error) {
	_, err := ts.tx.ExecContext(ctx,
		"INSERT INTO daily_lists (date, created_at) VALUES (?, ?) ON CONFLICT(date) DO NOTHING",
		date, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create daily list: %w", err)
	}
	return ts.DailyList(ctx, date)
}

func (ts *txStore) Lines(ctx context.Context, dailyListID int64) ([]purchasing.DailyListLine, error) {
	rows, err := ts.tx.QueryContext(ctx, `
		SELECT id, daily_list_id, supplier_id, item_name, unit, total_quantity, source_count
		FROM daily_list_items
		WHERE daily_list_id = ?
		ORDER BY id ASC
	`, dailyListID)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily list items: %w", err)
	}
	defer rows.Close()

	var lines []purchasing.DailyListLine
	for rows.Next() {
		var l purchasing.DailyListLine
		if err := rows.Scan(&l.ID, &l.DailyListID, &l.SupplierID, &l.ItemName, &l.Unit,
			&l.TotalQuantity, &l.SourceCount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (ts *txStore) InsertLine(ctx context.Context, line purchasing.DailyListLine) (int64, error) {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO daily_list_items (daily_list_id, supplier_id, item_name, unit, total_quantity, source_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, line.DailyListID, line.SupplierID, line.ItemName, line.Unit, line.TotalQuantity.String(), line.SourceCount)
	if err != nil {
		return 0, fmt.Errorf("failed to insert daily list item: %w", err)
	}
	return res.LastInsertId()
}

func (ts *txStore) UpdateLineTotals(ctx context.Context, lineID int64, total decimal.Decimal, sourceCount int) error {
	_, err := ts.tx.ExecContext(ctx,
		"UPDATE daily_list_items SET total_quantity = ?, source_count = ? WHERE id = ?",
		total.String(), sourceCount, lineID,
	)
	if err != nil {
		return fmt.Errorf("failed to update daily list item %d: %w", lineID, err)
	}
	return nil
}

func (ts *txStore) DeleteLine(ctx context.Context, lineID int64) error {
	if _, err := ts.tx.ExecContext(ctx, "DELETE FROM daily_list_items WHERE id = ?", lineID); err != nil {
		return fmt.Errorf("failed to delete daily list item %d: %w", lineID, err)
	}
	return nil
}

func (ts *txStore) ReceivedLineIDs(ctx context.Context, dailyListID int64) (map[int64]bool, error) {
	rows, err := ts.tx.QueryContext(ctx, `
		SELECT rr.daily_list_item_id
		FROM receiving_records rr
		JOIN daily_list_items dli ON dli.id = rr.daily_list_item_id
		WHERE dli.daily_list_id = ?
	`, dailyListID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (ts *txStore) UpsertReceivingRecord(ctx context.Context, rec purchasing.ReceivingRecord) error {
	query := `
		INSERT INTO receiving_records
		(daily_list_item_id, quality_ok, unit_price, input_unit_price, price_unit, receive_note, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(daily_list_item_id) DO UPDATE SET
			quality_ok = excluded.quality_ok,
			unit_price = excluded.unit_price,
			input_unit_price = excluded.input_unit_price,
			price_unit = excluded.price_unit,
			receive_note = excluded.receive_note,
			received_at = excluded.received_at
	`

	_, err := ts.tx.ExecContext(ctx, query,
		rec.DailyListItemID,
		rec.QualityOK,
		rec.UnitPrice,
		rec.InputUnitPrice,
		nullString(rec.PriceUnit),
		rec.ReceiveNote,
		rec.ReceivedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert receiving record for item %d: %w", rec.DailyListItemID, err)
	}
	return nil
}

func (ts *txStore) LockDailyList(ctx context.Context, dailyListID int64, at time.Time) (bool, error) {
	res, err := ts.tx.ExecContext(ctx,
		"UPDATE daily_lists SET locked_at = ? WHERE id = ? AND locked_at IS NULL",
		at.UTC().Format(time.RFC3339), dailyListID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to lock daily list: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (ts *txStore) UnlockDailyList(ctx context.Context, dailyListID int64) error {
	if _, err := ts.tx.ExecContext(ctx, "UPDATE daily_lists SET locked_at = NULL WHERE id = ?", dailyListID); err != nil {
		return fmt.Errorf("failed to unlock daily list: %w", err)
	}
	return nil
}

// =============================================================================
// ORDER LEDGER
// =============================================================================

// NewOrderLine is a station's order submission.
type NewOrderLine struct {
	Date       string
	StationID  int64
	SupplierID int64
	ItemName   string
	Quantity   string
	Unit       string
	Note       string
}

// CreateOrderLine appends one order line and returns its ID.
func (s *Store) CreateOrderLine(ctx context.Context, line NewOrderLine) (int64, error) {
	ids, err := s.CreateOrderLines(ctx, []NewOrderLine{line})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// CreateOrderLines appends order lines atomically and returns their IDs.
func (s *Store) CreateOrderLines(ctx context.Context, lines []NewOrderLine) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO order_items
		(date, station_id, supplier_id, item_name, quantity, quantity_value, unit, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC().Format(time.RFC3339)

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		quantity := strings.TrimSpace(l.Quantity)
		res, err := sqlTx.ExecContext(ctx, query,
			l.Date,
			l.StationID,
			l.SupplierID,
			strings.TrimSpace(l.ItemName),
			quantity,
			purchasing.NormalizeQuantity(quantity).String(),
			strings.TrimSpace(l.Unit),
			nullString(strings.TrimSpace(l.Note)),
			now,
		)
		if err != nil {
			if isForeignKeyError(err) {
				return nil, fmt.Errorf("%w: unknown station %d or supplier %d",
					purchasing.ErrMalformedInput, l.StationID, l.SupplierID)
			}
			return nil, fmt.Errorf("failed to insert order line: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// OrderLineView is an order line joined with station and supplier names.
type OrderLineView struct {
	purchasing.OrderLine
	StationName  string
	SupplierName string
}

// ListOrderLines returns the order lines of a date, newest first.
func (s *Store) ListOrderLines(ctx context.Context, date string) ([]OrderLineView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT oi.id, oi.date, oi.station_id, st.name, oi.supplier_id, sp.name,
		       oi.item_name, oi.unit, oi.quantity, oi.quantity_value, oi.note, oi.created_at
		FROM order_items oi
		JOIN stations st ON st.id = oi.station_id
		JOIN suppliers sp ON sp.id = oi.supplier_id
		WHERE oi.date = ?
		ORDER BY oi.created_at DESC, oi.id DESC
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderLineView
	for rows.Next() {
		var (
			v         OrderLineView
			note      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&v.ID, &v.Date, &v.StationID, &v.StationName, &v.SupplierID, &v.SupplierName,
			&v.ItemName, &v.Unit, &v.Quantity, &v.QuantityValue, &note, &createdAt); err != nil {
			return nil, err
		}
		v.Note = note.String
		v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteOrderLine removes an order line. Returns purchasing.ErrNotFound if
// nothing was deleted.
func (s *Store) DeleteOrderLine(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM order_items WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order line %d: %w", id, purchasing.ErrNotFound)
	}
	return nil
}

// Helper functions

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDailyList(row rowScanner) (*purchasing.DailyList, error) {
	var (
		list     purchasing.DailyList
		lockedAt sql.NullString
	)
	err := row.Scan(&list.ID, &list.Date, &lockedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	list.LockedAt, err = parseNullTime(lockedAt)
	if err != nil {
		return nil, fmt.Errorf("daily list %s: locked_at: %w", list.Date, err)
	}
	return &list, nil
}

// parseNullTime reads an RFC3339 column. Unparsable text is an error, never
// a null.
func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", v.String, err)
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKeyError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
