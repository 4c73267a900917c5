// Package store provides purchasing.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/kitchen-orders/purchasing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a purchasing.Store backed by maps. WithTx runs fn against a copy
// of the state and swaps it in only on success, so a failed transaction
// leaves no trace.
type Memory struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	nextID    int64
	orders    map[int64]purchasing.OrderLine
	lists     map[string]purchasing.DailyList
	lines     map[int64]purchasing.DailyListLine
	receiving map[int64]purchasing.ReceivingRecord // by daily list item ID
}

func NewMemory() *Memory {
	return &Memory{state: &state{
		orders:    make(map[int64]purchasing.OrderLine),
		lists:     make(map[string]purchasing.DailyList),
		lines:     make(map[int64]purchasing.DailyListLine),
		receiving: make(map[int64]purchasing.ReceivingRecord),
	}}
}

func (s *state) clone() *state {
	c := &state{
		nextID:    s.nextID,
		orders:    make(map[int64]purchasing.OrderLine, len(s.orders)),
		lists:     make(map[string]purchasing.DailyList, len(s.lists)),
		lines:     make(map[int64]purchasing.DailyListLine, len(s.lines)),
		receiving: make(map[int64]purchasing.ReceivingRecord, len(s.receiving)),
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.lists {
		c.lists[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = v
	}
	for k, v := range s.receiving {
		c.receiving[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// WithTx executes fn atomically.
func (m *Memory) WithTx(_ context.Context, fn func(purchasing.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// =============================================================================
// ORDER LEDGER HELPERS (outside the engine's transactions)
// =============================================================================

// AddOrderLine appends an order line, normalizing its quantity, and returns it.
func (m *Memory) AddOrderLine(line purchasing.OrderLine) purchasing.OrderLine {
	m.mu.Lock()
	defer m.mu.Unlock()

	line.ID = m.state.id()
	line.QuantityValue = purchasing.NormalizeQuantity(line.Quantity)
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}
	m.state.orders[line.ID] = line
	return line
}

// DeleteOrderLine removes an order line. Returns false if it did not exist.
func (m *Memory) DeleteOrderLine(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.orders[id]; !ok {
		return false
	}
	delete(m.state.orders, id)
	return true
}

// Lines returns the committed lines of date's list ordered by ID.
func (m *Memory) Lines(date string) []purchasing.DailyListLine {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.state.lists[date]
	if !ok {
		return nil
	}
	return m.state.linesOf(list.ID)
}

// ReceivingRecords returns all committed receiving records ordered by line ID.
func (m *Memory) ReceivingRecords() []purchasing.ReceivingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]purchasing.ReceivingRecord, 0, len(m.state.receiving))
	for _, r := range m.state.receiving {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DailyListItemID < out[j].DailyListItemID })
	return out
}

func (s *state) linesOf(listID int64) []purchasing.DailyListLine {
	var out []purchasing.DailyListLine
	for _, l := range s.lines {
		if l.DailyListID == listID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// TRANSACTION
// =============================================================================

type memTx struct {
	s *state
}

var _ purchasing.Tx = (*memTx)(nil)

func (t *memTx) OrderLines(_ context.Context, date string) ([]purchasing.OrderLine, error) {
	var out []purchasing.OrderLine
	for _, o := range t.s.orders {
		if o.Date == date {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) DailyList(_ context.Context, date string) (*purchasing.DailyList, error) {
	list, ok := t.s.lists[date]
	if !ok {
		return nil, nil
	}
	return &list, nil
}

func (t *memTx) EnsureDailyList(_ context.Context, date string) (*purchasing.DailyList, error) {
	if list, ok := t.s.lists[date]; ok {
		return &list, nil
	}
	list := purchasing.DailyList{ID: t.s.id(), Date: date}
	t.s.lists[date] = list
	return &list, nil
}

func (t *memTx) Lines(_ context.Context, dailyListID int64) ([]purchasing.DailyListLine, error) {
	return t.s.linesOf(dailyListID), nil
}

func (t *memTx) InsertLine(_ context.Context, line purchasing.DailyListLine) (int64, error) {
	line.ID = t.s.id()
	t.s.lines[line.ID] = line
	return line.ID, nil
}

func (t *memTx) UpdateLineTotals(_ context.Context, lineID int64, total decimal.Decimal, sourceCount int) error {
	line, ok := t.s.lines[lineID]
	if !ok {
		return purchasing.ErrNotFound
	}
	line.TotalQuantity = total
	line.SourceCount = sourceCount
	t.s.lines[lineID] = line
	return nil
}

func (t *memTx) DeleteLine(_ context.Context, lineID int64) error {
	delete(t.s.lines, lineID)
	return nil
}

func (t *memTx) ReceivedLineIDs(_ context.Context, dailyListID int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for id := range t.s.receiving {
		if line, ok := t.s.lines[id]; ok && line.DailyListID == dailyListID {
			out[id] = true
		}
	}
	return out, nil
}

func (t *memTx) UpsertReceivingRecord(_ context.Context, rec purchasing.ReceivingRecord) error {
	if existing, ok := t.s.receiving[rec.DailyListItemID]; ok {
		rec.ID = existing.ID
	} else {
		rec.ID = t.s.id()
	}
	t.s.receiving[rec.DailyListItemID] = rec
	return nil
}

func (t *memTx) LockDailyList(_ context.Context, dailyListID int64, at time.Time) (bool, error) {
	for date, list := range t.s.lists {
		if list.ID != dailyListID {
			continue
		}
		if list.LockedAt != nil {
			return false, nil
		}
		locked := at
		list.LockedAt = &locked
		t.s.lists[date] = list
		return true, nil
	}
	return false, nil
}

func (t *memTx) UnlockDailyList(_ context.Context, dailyListID int64) error {
	for date, list := range t.s.lists {
		if list.ID == dailyListID {
			list.LockedAt = nil
			t.s.lists[date] = list
			return nil
		}
	}
	return purchasing.ErrNotFound
}
