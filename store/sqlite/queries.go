package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/kitchen-orders/purchasing"
)

// =============================================================================
// REGISTRIES
// =============================================================================

// Station is a kitchen section that submits orders.
type Station struct {
	ID       int64
	Name     string
	IsActive bool
}

// Supplier is a vendor order lines are addressed to.
type Supplier struct {
	ID       int64
	Name     string
	IsActive bool
}

// Unit is an entry of the unit library offered to stations.
type Unit struct {
	ID        int64
	Name      string
	IsActive  bool
	DeletedAt *time.Time
}

// ListStations returns the active stations.
func (s *Store) ListStations(ctx context.Context) ([]Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, is_active FROM stations WHERE is_active = 1 ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Station
	for rows.Next() {
		var st Station
		if err := rows.Scan(&st.ID, &st.Name, &st.IsActive); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListSuppliers returns suppliers, only active ones unless includeInactive.
func (s *Store) ListSuppliers(ctx context.Context, includeInactive bool) ([]Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, name, is_active FROM suppliers"
	if !includeInactive {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		var sp Supplier
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.IsActive); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// AddSupplier creates a supplier, or re-activates the one with that name.
func (s *Store) AddSupplier(ctx context.Context, name string) (*Supplier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: supplier name is required", purchasing.ErrMalformedInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO suppliers(name, is_active) VALUES (?, 1) ON CONFLICT(name) DO UPDATE SET is_active = 1",
		name,
	); err != nil {
		return nil, fmt.Errorf("failed to add supplier: %w", err)
	}

	var sp Supplier
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, is_active FROM suppliers WHERE name = ?", name,
	).Scan(&sp.ID, &sp.Name, &sp.IsActive)
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

// SetSupplierActive toggles a supplier. Inactive suppliers keep their history.
func (s *Store) SetSupplierActive(ctx context.Context, id int64, active bool) (*Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE suppliers SET is_active = ? WHERE id = ?", active, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("supplier %d: %w", id, purchasing.ErrNotFound)
	}

	var sp Supplier
	err = s.db.QueryRowContext(ctx,
		"SELECT id, name, is_active FROM suppliers WHERE id = ?", id,
	).Scan(&sp.ID, &sp.Name, &sp.IsActive)
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

// ListUnits returns the unit library. Soft-deleted units are never listed.
func (s *Store) ListUnits(ctx context.Context, includeInactive bool) ([]Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, name, is_active, deleted_at FROM units WHERE deleted_at IS NULL"
	if !includeInactive {
		query += " AND is_active = 1"
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UnitNames returns the names of the active units.
func (s *Store) UnitNames(ctx context.Context) ([]string, error) {
	list, err := s.ListUnits(ctx, false)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, u := range list {
		names = append(names, u.Name)
	}
	return names, nil
}

// AddUnit creates a unit, or revives the one with that name.
func (s *Store) AddUnit(ctx context.Context, name string) (*Unit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: unit name is required", purchasing.ErrMalformedInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO units(name, is_active) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET is_active = 1, deleted_at = NULL
	`, name); err != nil {
		return nil, fmt.Errorf("failed to add unit: %w", err)
	}

	return scanUnit(s.db.QueryRowContext(ctx,
		"SELECT id, name, is_active, deleted_at FROM units WHERE name = ?", name))
}

// RenameUnit changes a unit's name. Names stay unique.
func (s *Store) RenameUnit(ctx context.Context, id int64, name string) (*Unit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: unit name is required", purchasing.ErrMalformedInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE units SET name = ? WHERE id = ? AND deleted_at IS NULL", name, id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: unit %q already exists", purchasing.ErrMalformedInput, name)
		}
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("unit %d: %w", id, purchasing.ErrNotFound)
	}
	return s.getUnit(ctx, id)
}

// SetUnitActive toggles a unit.
func (s *Store) SetUnitActive(ctx context.Context, id int64, active bool) (*Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE units SET is_active = ? WHERE id = ? AND deleted_at IS NULL", active, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("unit %d: %w", id, purchasing.ErrNotFound)
	}
	return s.getUnit(ctx, id)
}

// SoftDeleteUnit hides a unit from every listing. Adding the name again
// brings it back.
func (s *Store) SoftDeleteUnit(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE units SET is_active = 0, deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unit %d: %w", id, purchasing.ErrNotFound)
	}
	return nil
}

// getUnit reads a unit without taking the lock.
func (s *Store) getUnit(ctx context.Context, id int64) (*Unit, error) {
	return scanUnit(s.db.QueryRowContext(ctx,
		"SELECT id, name, is_active, deleted_at FROM units WHERE id = ?", id))
}

func scanUnit(row rowScanner) (*Unit, error) {
	var (
		u         Unit
		deletedAt sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &u.IsActive, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.DeletedAt, err = parseNullTime(deletedAt)
	if err != nil {
		return nil, fmt.Errorf("unit %d: deleted_at: %w", u.ID, err)
	}
	return &u, nil
}

// =============================================================================
// READ MODELS
// =============================================================================

// DailyListItem is a daily list line as the receiving screen shows it.
type DailyListItem struct {
	purchasing.DailyListLine
	SupplierName string
	Receiving    *purchasing.ReceivingRecord
}

// DailyListMeta returns the metadata of date's list, or nil if none exists.
func (s *Store) DailyListMeta(ctx context.Context, date string) (*purchasing.DailyListMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := scanDailyList(s.db.QueryRowContext(ctx,
		"SELECT id, date, locked_at FROM daily_lists WHERE date = ?", date))
	if err != nil || list == nil {
		return nil, err
	}
	meta := list.Meta()
	return &meta, nil
}

// DailyListItems returns the lines of date's list with supplier names and
// receiving data, grouped by supplier.
func (s *Store) DailyListItems(ctx context.Context, date string) ([]DailyListItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT dli.id, dli.daily_list_id, dli.supplier_id, sp.name, dli.item_name, dli.unit,
		       dli.total_quantity, dli.source_count,
		       rr.id, rr.quality_ok, rr.unit_price, rr.input_unit_price, rr.price_unit,
		       rr.receive_note, rr.received_at
		FROM daily_list_items dli
		JOIN daily_lists dl ON dl.id = dli.daily_list_id
		JOIN suppliers sp ON sp.id = dli.supplier_id
		LEFT JOIN receiving_records rr ON rr.daily_list_item_id = dli.id
		WHERE dl.date = ?
		ORDER BY sp.name ASC, dli.item_name ASC, dli.id ASC
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyListItem
	for rows.Next() {
		var (
			item DailyListItem
			rec  receivingColumns
		)
		if err := rows.Scan(&item.ID, &item.DailyListID, &item.SupplierID, &item.SupplierName,
			&item.ItemName, &item.Unit, &item.TotalQuantity, &item.SourceCount,
			&rec.id, &rec.qualityOK, &rec.unitPrice, &rec.inputUnitPrice, &rec.priceUnit,
			&rec.receiveNote, &rec.receivedAt); err != nil {
			return nil, err
		}
		if item.Receiving, err = rec.record(item.ID); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Report row statuses.
const (
	StatusReceived          = "received"
	StatusRejected          = "rejected"
	StatusNoReceivingRecord = "no_receiving_record"
)

// ReceivingReportRow is one line of the receiving export.
type ReceivingReportRow struct {
	Date          string
	SupplierName  string
	ItemName      string
	Unit          string
	TotalQuantity decimal.Decimal
	Receiving     *purchasing.ReceivingRecord
	Amount        decimal.NullDecimal
	Status        string
}

// ReceivingReport returns every daily list line dated from..to inclusive.
// Lines without a receiving record are reported as no_receiving_record.
func (s *Store) ReceivingReport(ctx context.Context, from, to string) ([]ReceivingReportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT dl.date, sp.name, dli.id, dli.item_name, dli.unit, dli.total_quantity,
		       rr.id, rr.quality_ok, rr.unit_price, rr.input_unit_price, rr.price_unit,
		       rr.receive_note, rr.received_at
		FROM daily_list_items dli
		JOIN daily_lists dl ON dl.id = dli.daily_list_id
		JOIN suppliers sp ON sp.id = dli.supplier_id
		LEFT JOIN receiving_records rr ON rr.daily_list_item_id = dli.id
		WHERE dl.date BETWEEN ? AND ?
		ORDER BY dl.date ASC, sp.name ASC, dli.item_name ASC, dli.id ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReceivingReportRow
	for rows.Next() {
		var (
			row    ReceivingReportRow
			lineID int64
			rec    receivingColumns
		)
		if err := rows.Scan(&row.Date, &row.SupplierName, &lineID, &row.ItemName, &row.Unit,
			&row.TotalQuantity,
			&rec.id, &rec.qualityOK, &rec.unitPrice, &rec.inputUnitPrice, &rec.priceUnit,
			&rec.receiveNote, &rec.receivedAt); err != nil {
			return nil, err
		}
		if row.Receiving, err = rec.record(lineID); err != nil {
			return nil, err
		}

		switch {
		case row.Receiving == nil:
			row.Status = StatusNoReceivingRecord
		case !row.Receiving.QualityOK:
			row.Status = StatusRejected
		default:
			row.Status = StatusReceived
			if row.Receiving.UnitPrice.Valid {
				row.Amount = decimal.NewNullDecimal(row.TotalQuantity.Mul(row.Receiving.UnitPrice.Decimal))
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// receivingColumns receives the LEFT JOINed receiving_records columns.
type receivingColumns struct {
	id             sql.NullInt64
	qualityOK      sql.NullBool
	unitPrice      decimal.NullDecimal
	inputUnitPrice decimal.NullDecimal
	priceUnit      sql.NullString
	receiveNote    sql.NullString
	receivedAt     sql.NullString
}

func (c receivingColumns) record(lineID int64) (*purchasing.ReceivingRecord, error) {
	if !c.id.Valid {
		return nil, nil
	}
	rec := &purchasing.ReceivingRecord{
		ID:              c.id.Int64,
		DailyListItemID: lineID,
		QualityOK:       c.qualityOK.Bool,
		UnitPrice:       c.unitPrice,
		InputUnitPrice:  c.inputUnitPrice,
		PriceUnit:       c.priceUnit.String,
		ReceiveNote:     c.receiveNote.String,
	}
	t, err := parseNullTime(c.receivedAt)
	if err != nil {
		return nil, fmt.Errorf("receiving record %d: received_at: %w", c.id.Int64, err)
	}
	if t != nil {
		rec.ReceivedAt = *t
	}
	return rec, nil
}
