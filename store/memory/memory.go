// Package memory provides an in-memory vacation.Store for tests and dev.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data state
}

type state struct {
	employees    map[string]vacation.Employee
	lots         map[string]vacation.GrantLot
	dedup        map[string]string // dedup key -> lot id
	consumptions map[string]vacation.Consumption
	requests     map[string]vacation.TimeOffRequest
	configs      map[string]vacation.ConfigRecord
	audit        []vacation.AuditEntry
}

func newState() state {
	return state{
		employees:    make(map[string]vacation.Employee),
		lots:         make(map[string]vacation.GrantLot),
		dedup:        make(map[string]string),
		consumptions: make(map[string]vacation.Consumption),
		requests:     make(map[string]vacation.TimeOffRequest),
		configs:      make(map[string]vacation.ConfigRecord),
	}
}

func (s state) clone() state {
	return state{
		employees:    maps.Clone(s.employees),
		lots:         maps.Clone(s.lots),
		dedup:        maps.Clone(s.dedup),
		consumptions: maps.Clone(s.consumptions),
		requests:     maps.Clone(s.requests),
		configs:      maps.Clone(s.configs),
		audit:        slices.Clone(s.audit),
	}
}

func New() *Memory {
	return &Memory{data: newState()}
}

var _ vacation.Store = (*Memory)(nil)

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx serializes transactions and restores the previous state when fn
// fails. Reads outside a transaction see uncommitted writes.
func (m *Memory) WithTx(ctx context.Context, fn func(vacation.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := m.data.clone()
	m.mu.RUnlock()

	if err := fn(&txMemory{m}); err != nil {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// txMemory runs nested WithTx calls inside the outer transaction.
type txMemory struct {
	*Memory
}

func (t *txMemory) WithTx(_ context.Context, fn func(vacation.Store) error) error {
	return fn(t)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, emp vacation.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.employees[emp.ID] = emp
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id string) (*vacation.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emp, ok := m.data.employees[id]
	if !ok {
		return nil, nil
	}
	return &emp, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]vacation.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Collect(maps.Values(m.data.employees))
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) ListActiveEmployees(ctx context.Context) ([]vacation.Employee, error) {
	all, _ := m.ListEmployees(ctx)
	out := all[:0]
	for _, e := range all {
		if e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// GRANT LOTS
// =============================================================================

func (m *Memory) CreateLot(_ context.Context, lot vacation.GrantLot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.data.dedup[lot.DedupKey]; dup {
		return generic.ErrDuplicateDedupKey
	}
	m.data.lots[lot.ID] = lot
	m.data.dedup[lot.DedupKey] = lot.ID
	return nil
}

func (m *Memory) UpdateLot(_ context.Context, lot vacation.GrantLot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.data.lots[lot.ID]
	if !ok {
		return generic.ErrLotNotFound
	}
	if old.DedupKey != lot.DedupKey {
		if owner, dup := m.data.dedup[lot.DedupKey]; dup && owner != lot.ID {
			return generic.ErrDuplicateDedupKey
		}
		delete(m.data.dedup, old.DedupKey)
		m.data.dedup[lot.DedupKey] = lot.ID
	}
	m.data.lots[lot.ID] = lot
	return nil
}

func (m *Memory) DeleteLot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lot, ok := m.data.lots[id]; ok {
		delete(m.data.dedup, lot.DedupKey)
		delete(m.data.lots, id)
	}
	return nil
}

func (m *Memory) GetLot(_ context.Context, id string) (*vacation.GrantLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lot, ok := m.data.lots[id]
	if !ok {
		return nil, nil
	}
	return &lot, nil
}

func (m *Memory) GetLotByDedupKey(_ context.Context, key string) (*vacation.GrantLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.data.dedup[key]
	if !ok {
		return nil, nil
	}
	lot := m.data.lots[id]
	return &lot, nil
}

func (m *Memory) filterLots(keep func(vacation.GrantLot) bool) []vacation.GrantLot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []vacation.GrantLot
	for _, l := range m.data.lots {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GrantDate.Equal(out[j].GrantDate) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].GrantDate.Before(out[j].GrantDate)
	})
	return out
}

func (m *Memory) ListLots(_ context.Context, employeeID string) ([]vacation.GrantLot, error) {
	return m.filterLots(func(l vacation.GrantLot) bool { return l.EmployeeID == employeeID }), nil
}

func (m *Memory) ListLotsByGrantDate(_ context.Context, employeeID string, date generic.TimePoint) ([]vacation.GrantLot, error) {
	return m.filterLots(func(l vacation.GrantLot) bool {
		return l.EmployeeID == employeeID && l.GrantDate.Equal(date)
	}), nil
}

func (m *Memory) ListUsableLots(_ context.Context, employeeID string, asOf generic.TimePoint) ([]vacation.GrantLot, error) {
	out := m.filterLots(func(l vacation.GrantLot) bool {
		return l.EmployeeID == employeeID && l.UsableOn(asOf)
	})
	slices.Reverse(out)
	return out, nil
}

func (m *Memory) SetLotRemaining(_ context.Context, id string, expected, next decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lot, ok := m.data.lots[id]
	if !ok {
		return generic.ErrLotNotFound
	}
	if !lot.DaysRemaining.Equal(expected) {
		return generic.ErrConcurrentModification
	}
	lot.DaysRemaining = next
	m.data.lots[id] = lot
	return nil
}

func (m *Memory) ExpireLots(_ context.Context, asOf generic.TimePoint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, lot := range m.data.lots {
		if lot.ExpiryDate.Before(asOf) && lot.DaysRemaining.IsPositive() {
			lot.DaysRemaining = decimal.Zero
			m.data.lots[id] = lot
			n++
		}
	}
	return n, nil
}

// =============================================================================
// CONSUMPTIONS
// =============================================================================

func (m *Memory) CreateConsumption(_ context.Context, c vacation.Consumption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.consumptions[c.ID] = c
	return nil
}

func (m *Memory) listConsumptions(keep func(vacation.Consumption) bool) []vacation.Consumption {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []vacation.Consumption
	for _, c := range m.data.consumptions {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) ListConsumptionsByRequest(_ context.Context, requestID string) ([]vacation.Consumption, error) {
	return m.listConsumptions(func(c vacation.Consumption) bool { return c.RequestID == requestID }), nil
}

func (m *Memory) ListConsumptionsByLot(_ context.Context, lotID string) ([]vacation.Consumption, error) {
	return m.listConsumptions(func(c vacation.Consumption) bool { return c.LotID == lotID }), nil
}

func (m *Memory) DeleteConsumptionsByRequest(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.DeleteFunc(m.data.consumptions, func(_ string, c vacation.Consumption) bool {
		return c.RequestID == requestID
	})
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) SaveRequest(_ context.Context, r vacation.TimeOffRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Breakdown = slices.Clone(r.Breakdown)
	m.data.requests[r.ID] = r
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id string) (*vacation.TimeOffRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.data.requests[id]
	if !ok {
		return nil, nil
	}
	r.Breakdown = slices.Clone(r.Breakdown)
	return &r, nil
}

func (m *Memory) DeleteRequest(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data.requests, id)
	return nil
}

func (m *Memory) ListRequests(_ context.Context, employeeID string, statuses ...vacation.RequestStatus) ([]vacation.TimeOffRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []vacation.TimeOffRequest
	for _, r := range m.data.requests {
		if r.EmployeeID != employeeID {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, r.Status) {
			continue
		}
		r.Breakdown = slices.Clone(r.Breakdown)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out, nil
}

// =============================================================================
// CONFIGS
// =============================================================================

func (m *Memory) SaveConfig(_ context.Context, rec vacation.ConfigRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data.configs[rec.Version]; ok {
		rec.CreatedAt = old.CreatedAt
		rec.IsActive = rec.IsActive || old.IsActive
	}
	rec.Payload = slices.Clone(rec.Payload)
	m.data.configs[rec.Version] = rec
	return nil
}

func (m *Memory) GetConfig(_ context.Context, version string) (*vacation.ConfigRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data.configs[version]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) GetActiveConfig(_ context.Context) (*vacation.ConfigRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.data.configs {
		if rec.IsActive {
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListConfigs(_ context.Context) ([]vacation.ConfigRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Collect(maps.Values(m.data.configs))
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *Memory) ActivateConfig(_ context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.configs[version]; !ok {
		return generic.ErrConfigNotFound
	}
	for v, rec := range m.data.configs {
		rec.IsActive = v == version
		m.data.configs[v] = rec
	}
	return nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry vacation.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.audit = append(m.data.audit, entry)
	return nil
}

// ListAudit returns the newest entries first. An empty employeeID lists all.
func (m *Memory) ListAudit(_ context.Context, employeeID string, limit int) ([]vacation.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []vacation.AuditEntry
	for i := len(m.data.audit) - 1; i >= 0; i-- {
		e := m.data.audit[i]
		if employeeID != "" && e.EmployeeID != employeeID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
