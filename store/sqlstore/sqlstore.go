/*
Package sqlstore implements vacation.Store on database/sql.

PURPOSE:
  One implementation shared by SQLite and PostgreSQL. The driver packages
  (store/sqlite, store/postgres) supply a Dialect and open the *sql.DB.

STORAGE FORMAT:
  Dates are TEXT "YYYY-MM-DD" so lexical order is date order.
  Day quantities are TEXT decimal strings written with decimal.String(),
  so zero is always "0" and guarded updates can compare strings.
  Timestamps are RFC3339 TEXT.

KEY TABLES:
  employees:            employee records with join date and pattern
  grant_lots:           one row per grant, dedup_key UNIQUE
  consumptions:         per-request draws against lots
  time_off_requests:    leave requests, breakdown as JSON
  vacation_app_configs: versioned AppConfig payloads
  audit_log:            append-only audit trail

CONCURRENCY:
  No Go-side lock. The database serializes writers; SetLotRemaining is a
  compare-and-set on days_remaining. Code running inside WithTx must use
  the Store it is handed, never the root one.
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
)

// Dialect covers what differs between SQL engines.
type Dialect interface {
	Name() string
	// Rebind rewrites `?` placeholders into the engine's form.
	Rebind(query string) string
	IsUniqueViolation(err error) bool
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements vacation.Store.
type Store struct {
	db      *sql.DB
	q       querier
	dialect Dialect
	inTx    bool
}

var _ vacation.Store = (*Store)(nil)

// New wraps an open database. Call Migrate before first use.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, q: db, dialect: dialect}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS employees (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	employee_type TEXT NOT NULL DEFAULT '',
	weekly_pattern INTEGER NOT NULL DEFAULT 0,
	default_pattern TEXT NOT NULL DEFAULT '',
	join_date TEXT NOT NULL DEFAULT '',
	config_version TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS grant_lots (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	grant_date TEXT NOT NULL,
	days_granted TEXT NOT NULL,
	days_remaining TEXT NOT NULL,
	expiry_date TEXT NOT NULL,
	dedup_key TEXT NOT NULL UNIQUE,
	config_version TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_grant_lots_employee_grant
	ON grant_lots(employee_id, grant_date);
CREATE INDEX IF NOT EXISTS idx_grant_lots_expiry
	ON grant_lots(expiry_date);

CREATE TABLE IF NOT EXISTS consumptions (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	request_id TEXT NOT NULL,
	lot_id TEXT NOT NULL,
	date TEXT NOT NULL,
	days TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consumptions_request ON consumptions(request_id);
CREATE INDEX IF NOT EXISTS idx_consumptions_lot ON consumptions(lot_id);

CREATE TABLE IF NOT EXISTS time_off_requests (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	unit TEXT NOT NULL,
	hours_per_day INTEGER NOT NULL DEFAULT 0,
	requested_amount TEXT NOT NULL,
	total_days TEXT NOT NULL,
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	supervisor_id TEXT NOT NULL DEFAULT '',
	approved_by TEXT NOT NULL DEFAULT '',
	approved_at TEXT,
	finalized_by TEXT NOT NULL DEFAULT '',
	finalized_at TEXT,
	rejected_by TEXT NOT NULL DEFAULT '',
	rejected_at TEXT,
	rejection_reason TEXT NOT NULL DEFAULT '',
	breakdown_json TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_employee_status
	ON time_off_requests(employee_id, status);

CREATE TABLE IF NOT EXISTS vacation_app_configs (
	version TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_employee ON audit_log(employee_id, created_at);
`

// Migrate creates the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate %s schema: %w", s.dialect.Name(), err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. Nested calls join the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(vacation.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &Store{db: s.db, q: sqlTx, dialect: s.dialect, inTx: true}
	if err := fn(txStore); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `id, name, email, employee_type, weekly_pattern, default_pattern,
	join_date, config_version, active, created_at`

func (s *Store) SaveEmployee(ctx context.Context, emp vacation.Employee) error {
	created := emp.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			employee_type = excluded.employee_type,
			weekly_pattern = excluded.weekly_pattern,
			default_pattern = excluded.default_pattern,
			join_date = excluded.join_date,
			config_version = excluded.config_version,
			active = excluded.active
	`,
		emp.ID, emp.Name, emp.Email, emp.EmployeeType, emp.WeeklyPattern,
		emp.DefaultPattern.String(), formatDate(emp.JoinDate), emp.ConfigVersion,
		emp.Active, formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee %s: %w", emp.ID, err)
	}
	return nil
}

func scanEmployee(row interface{ Scan(...any) error }) (vacation.Employee, error) {
	var (
		emp               vacation.Employee
		pattern, joinDate string
		createdAt         string
	)
	err := row.Scan(&emp.ID, &emp.Name, &emp.Email, &emp.EmployeeType, &emp.WeeklyPattern,
		&pattern, &joinDate, &emp.ConfigVersion, &emp.Active, &createdAt)
	if err != nil {
		return emp, err
	}
	if emp.DefaultPattern, err = vacation.ParsePattern(pattern); err != nil {
		return emp, fmt.Errorf("employee %s has invalid default_pattern %q: %v", emp.ID, pattern, err)
	}
	emp.JoinDate = parseDate(joinDate)
	emp.CreatedAt = parseTime(createdAt)
	return emp, nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*vacation.Employee, error) {
	emp, err := scanEmployee(s.queryRow(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee %s: %w", id, err)
	}
	return &emp, nil
}

func (s *Store) listEmployees(ctx context.Context, where string, args ...any) ([]vacation.Employee, error) {
	rows, err := s.query(ctx, "SELECT "+employeeColumns+" FROM employees "+where+" ORDER BY name, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var out []vacation.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

func (s *Store) ListEmployees(ctx context.Context) ([]vacation.Employee, error) {
	return s.listEmployees(ctx, "")
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]vacation.Employee, error) {
	return s.listEmployees(ctx, "WHERE active = ?", true)
}

// =============================================================================
// GRANT LOTS
// =============================================================================

const lotColumns = `id, employee_id, grant_date, days_granted, days_remaining, expiry_date,
	dedup_key, config_version, created_at, updated_at`

// CreateLot inserts a lot. A dedup key already present is skipped by the
// database, so the surrounding transaction stays usable, and reported as
// generic.ErrDuplicateDedupKey.
func (s *Store) CreateLot(ctx context.Context, lot vacation.GrantLot) error {
	res, err := s.exec(ctx, `
		INSERT INTO grant_lots (`+lotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedup_key) DO NOTHING
	`,
		lot.ID, lot.EmployeeID, formatDate(lot.GrantDate),
		lot.DaysGranted.String(), lot.DaysRemaining.String(), formatDate(lot.ExpiryDate),
		lot.DedupKey, lot.ConfigVersion, formatTime(lot.CreatedAt), formatTime(lot.UpdatedAt),
	)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return generic.ErrDuplicateDedupKey
		}
		return fmt.Errorf("failed to create lot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create lot: %w", err)
	}
	if n == 0 {
		return generic.ErrDuplicateDedupKey
	}
	return nil
}

func (s *Store) UpdateLot(ctx context.Context, lot vacation.GrantLot) error {
	res, err := s.exec(ctx, `
		UPDATE grant_lots SET
			days_granted = ?, days_remaining = ?, expiry_date = ?,
			dedup_key = ?, config_version = ?, updated_at = ?
		WHERE id = ?
	`,
		lot.DaysGranted.String(), lot.DaysRemaining.String(), formatDate(lot.ExpiryDate),
		lot.DedupKey, lot.ConfigVersion, formatTime(lot.UpdatedAt), lot.ID,
	)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return generic.ErrDuplicateDedupKey
		}
		return fmt.Errorf("failed to update lot %s: %w", lot.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrLotNotFound, lot.ID)
	}
	return nil
}

func (s *Store) DeleteLot(ctx context.Context, id string) error {
	_, err := s.exec(ctx, "DELETE FROM grant_lots WHERE id = ?", id)
	return err
}

func scanLot(row interface{ Scan(...any) error }) (vacation.GrantLot, error) {
	var (
		lot                   vacation.GrantLot
		grantDate, expiryDate string
		granted, remaining    string
		createdAt, updatedAt  string
	)
	err := row.Scan(&lot.ID, &lot.EmployeeID, &grantDate, &granted, &remaining, &expiryDate,
		&lot.DedupKey, &lot.ConfigVersion, &createdAt, &updatedAt)
	if err != nil {
		return lot, err
	}
	lot.GrantDate = parseDate(grantDate)
	lot.ExpiryDate = parseDate(expiryDate)
	lot.DaysGranted = generic.ParseDays(granted)
	lot.DaysRemaining = generic.ParseDays(remaining)
	lot.CreatedAt = parseTime(createdAt)
	lot.UpdatedAt = parseTime(updatedAt)
	return lot, nil
}

func (s *Store) getLot(ctx context.Context, where string, arg any) (*vacation.GrantLot, error) {
	lot, err := scanLot(s.queryRow(ctx, "SELECT "+lotColumns+" FROM grant_lots WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return &lot, nil
}

func (s *Store) GetLot(ctx context.Context, id string) (*vacation.GrantLot, error) {
	return s.getLot(ctx, "id = ?", id)
}

func (s *Store) GetLotByDedupKey(ctx context.Context, key string) (*vacation.GrantLot, error) {
	return s.getLot(ctx, "dedup_key = ?", key)
}

func (s *Store) queryLots(ctx context.Context, tail string, args ...any) ([]vacation.GrantLot, error) {
	rows, err := s.query(ctx, "SELECT "+lotColumns+" FROM grant_lots "+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	var out []vacation.GrantLot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		out = append(out, lot)
	}
	return out, rows.Err()
}

func (s *Store) ListLots(ctx context.Context, employeeID string) ([]vacation.GrantLot, error) {
	return s.queryLots(ctx, "WHERE employee_id = ? ORDER BY grant_date ASC, created_at ASC", employeeID)
}

func (s *Store) ListLotsByGrantDate(ctx context.Context, employeeID string, date generic.TimePoint) ([]vacation.GrantLot, error) {
	return s.queryLots(ctx, "WHERE employee_id = ? AND grant_date = ? ORDER BY created_at ASC",
		employeeID, formatDate(date))
}

func (s *Store) ListUsableLots(ctx context.Context, employeeID string, asOf generic.TimePoint) ([]vacation.GrantLot, error) {
	lots, err := s.queryLots(ctx,
		"WHERE employee_id = ? AND expiry_date >= ? AND days_remaining <> '0' ORDER BY grant_date DESC, created_at DESC",
		employeeID, formatDate(asOf))
	if err != nil {
		return nil, err
	}
	out := lots[:0]
	for _, l := range lots {
		if l.UsableOn(asOf) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) SetLotRemaining(ctx context.Context, id string, expected, next decimal.Decimal) error {
	res, err := s.exec(ctx,
		"UPDATE grant_lots SET days_remaining = ?, updated_at = ? WHERE id = ? AND days_remaining = ?",
		next.String(), formatTime(time.Now().UTC()), id, expected.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update lot %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	lot, err := s.GetLot(ctx, id)
	if err != nil {
		return err
	}
	if lot == nil {
		return fmt.Errorf("%w: %s", generic.ErrLotNotFound, id)
	}
	return fmt.Errorf("%w: lot %s", generic.ErrConcurrentModification, id)
}

func (s *Store) ExpireLots(ctx context.Context, asOf generic.TimePoint) (int, error) {
	res, err := s.exec(ctx,
		"UPDATE grant_lots SET days_remaining = '0', updated_at = ? WHERE expiry_date < ? AND days_remaining <> '0'",
		formatTime(time.Now().UTC()), formatDate(asOf),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire lots: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// CONSUMPTIONS
// =============================================================================

func (s *Store) CreateConsumption(ctx context.Context, c vacation.Consumption) error {
	_, err := s.exec(ctx, `
		INSERT INTO consumptions (id, employee_id, request_id, lot_id, date, days, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.EmployeeID, c.RequestID, c.LotID, formatDate(c.Date), c.Days.String(), formatTime(c.CreatedAt))
	return err
}

func (s *Store) queryConsumptions(ctx context.Context, where string, arg any) ([]vacation.Consumption, error) {
	rows, err := s.query(ctx, `
		SELECT id, employee_id, request_id, lot_id, date, days, created_at
		FROM consumptions WHERE `+where+` ORDER BY created_at ASC, id ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query consumptions: %w", err)
	}
	defer rows.Close()

	var out []vacation.Consumption
	for rows.Next() {
		var c vacation.Consumption
		var date, days, createdAt string
		if err := rows.Scan(&c.ID, &c.EmployeeID, &c.RequestID, &c.LotID, &date, &days, &createdAt); err != nil {
			return nil, err
		}
		c.Date = parseDate(date)
		c.Days = generic.ParseDays(days)
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListConsumptionsByRequest(ctx context.Context, requestID string) ([]vacation.Consumption, error) {
	return s.queryConsumptions(ctx, "request_id = ?", requestID)
}

func (s *Store) ListConsumptionsByLot(ctx context.Context, lotID string) ([]vacation.Consumption, error) {
	return s.queryConsumptions(ctx, "lot_id = ?", lotID)
}

func (s *Store) DeleteConsumptionsByRequest(ctx context.Context, requestID string) error {
	_, err := s.exec(ctx, "DELETE FROM consumptions WHERE request_id = ?", requestID)
	return err
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, start_date, end_date, unit, hours_per_day,
	requested_amount, total_days, status, reason, supervisor_id,
	approved_by, approved_at, finalized_by, finalized_at,
	rejected_by, rejected_at, rejection_reason, breakdown_json, created_at, updated_at`

type drawJSON struct {
	LotID string `json:"lotId"`
	Days  string `json:"days"`
}

func (s *Store) SaveRequest(ctx context.Context, r vacation.TimeOffRequest) error {
	draws := make([]drawJSON, 0, len(r.Breakdown))
	for _, d := range r.Breakdown {
		draws = append(draws, drawJSON{LotID: d.LotID, Days: d.Days.String()})
	}
	breakdown, err := json.Marshal(draws)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown: %w", err)
	}

	_, err = s.exec(ctx, `
		INSERT INTO time_off_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			unit = excluded.unit,
			hours_per_day = excluded.hours_per_day,
			requested_amount = excluded.requested_amount,
			total_days = excluded.total_days,
			status = excluded.status,
			reason = excluded.reason,
			supervisor_id = excluded.supervisor_id,
			approved_by = excluded.approved_by,
			approved_at = excluded.approved_at,
			finalized_by = excluded.finalized_by,
			finalized_at = excluded.finalized_at,
			rejected_by = excluded.rejected_by,
			rejected_at = excluded.rejected_at,
			rejection_reason = excluded.rejection_reason,
			breakdown_json = excluded.breakdown_json,
			updated_at = excluded.updated_at
	`,
		r.ID, r.EmployeeID, formatDate(r.StartDate), formatDate(r.EndDate), string(r.Unit), r.HoursPerDay,
		r.RequestedAmount.String(), r.TotalDays.String(), string(r.Status), r.Reason, r.SupervisorID,
		r.ApprovedBy, nullTime(r.ApprovedAt), r.FinalizedBy, nullTime(r.FinalizedAt),
		r.RejectedBy, nullTime(r.RejectedAt), r.RejectionReason, string(breakdown),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save request %s: %w", r.ID, err)
	}
	return nil
}

func scanRequest(row interface{ Scan(...any) error }) (vacation.TimeOffRequest, error) {
	var (
		r                                   vacation.TimeOffRequest
		startDate, endDate, unit, status    string
		requested, total, breakdown         string
		approvedAt, finalizedAt, rejectedAt sql.NullString
		createdAt, updatedAt                string
	)
	err := row.Scan(&r.ID, &r.EmployeeID, &startDate, &endDate, &unit, &r.HoursPerDay,
		&requested, &total, &status, &r.Reason, &r.SupervisorID,
		&r.ApprovedBy, &approvedAt, &r.FinalizedBy, &finalizedAt,
		&r.RejectedBy, &rejectedAt, &r.RejectionReason, &breakdown, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	r.StartDate = parseDate(startDate)
	r.EndDate = parseDate(endDate)
	r.Unit = vacation.RequestUnit(unit)
	r.Status = vacation.RequestStatus(status)
	r.RequestedAmount = generic.ParseDays(requested)
	r.TotalDays = generic.ParseDays(total)
	r.ApprovedAt = parseNullTime(approvedAt)
	r.FinalizedAt = parseNullTime(finalizedAt)
	r.RejectedAt = parseNullTime(rejectedAt)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)

	var draws []drawJSON
	if breakdown != "" {
		if err := json.Unmarshal([]byte(breakdown), &draws); err != nil {
			return r, fmt.Errorf("failed to decode breakdown of %s: %w", r.ID, err)
		}
	}
	for _, d := range draws {
		r.Breakdown = append(r.Breakdown, vacation.Draw{LotID: d.LotID, Days: generic.ParseDays(d.Days)})
	}
	return r, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*vacation.TimeOffRequest, error) {
	r, err := scanRequest(s.queryRow(ctx, "SELECT "+requestColumns+" FROM time_off_requests WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request %s: %w", id, err)
	}
	return &r, nil
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	_, err := s.exec(ctx, "DELETE FROM time_off_requests WHERE id = ?", id)
	return err
}

func (s *Store) ListRequests(ctx context.Context, employeeID string, statuses ...vacation.RequestStatus) ([]vacation.TimeOffRequest, error) {
	query := "SELECT " + requestColumns + " FROM time_off_requests WHERE employee_id = ?"
	args := []any{employeeID}
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += " AND status IN (" + strings.Join(marks, ", ") + ")"
	}
	query += " ORDER BY start_date ASC, created_at ASC"

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []vacation.TimeOffRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// CONFIGS
// =============================================================================

func (s *Store) SaveConfig(ctx context.Context, rec vacation.ConfigRecord) error {
	_, err := s.exec(ctx, `
		INSERT INTO vacation_app_configs (version, payload, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			payload = excluded.payload,
			is_active = vacation_app_configs.is_active OR excluded.is_active,
			updated_at = excluded.updated_at
	`, rec.Version, string(rec.Payload), rec.IsActive, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save config %s: %w", rec.Version, err)
	}
	return nil
}

const configColumns = "version, payload, is_active, created_at, updated_at"

func scanConfig(row interface{ Scan(...any) error }) (vacation.ConfigRecord, error) {
	var rec vacation.ConfigRecord
	var payload, createdAt, updatedAt string
	if err := row.Scan(&rec.Version, &payload, &rec.IsActive, &createdAt, &updatedAt); err != nil {
		return rec, err
	}
	rec.Payload = []byte(payload)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}

func (s *Store) getConfig(ctx context.Context, where string, args ...any) (*vacation.ConfigRecord, error) {
	rec, err := scanConfig(s.queryRow(ctx, "SELECT "+configColumns+" FROM vacation_app_configs WHERE "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return &rec, nil
}

func (s *Store) GetConfig(ctx context.Context, version string) (*vacation.ConfigRecord, error) {
	return s.getConfig(ctx, "version = ?", version)
}

func (s *Store) GetActiveConfig(ctx context.Context) (*vacation.ConfigRecord, error) {
	return s.getConfig(ctx, "is_active = ? ORDER BY updated_at DESC LIMIT 1", true)
}

func (s *Store) ListConfigs(ctx context.Context) ([]vacation.ConfigRecord, error) {
	rows, err := s.query(ctx, "SELECT "+configColumns+" FROM vacation_app_configs ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	var out []vacation.ConfigRecord
	for rows.Next() {
		rec, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) ActivateConfig(ctx context.Context, version string) error {
	return s.WithTx(ctx, func(vs vacation.Store) error {
		tx := vs.(*Store)
		rec, err := tx.GetConfig(ctx, version)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: %s", generic.ErrConfigNotFound, version)
		}
		_, err = tx.exec(ctx, "UPDATE vacation_app_configs SET is_active = (version = ?), updated_at = ?",
			version, formatTime(time.Now().UTC()))
		if err != nil {
			return fmt.Errorf("failed to activate config %s: %w", version, err)
		}
		return nil
	})
}

// =============================================================================
// AUDIT
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e vacation.AuditEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO audit_log (id, employee_id, actor, action, entity_type, entity_id, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.EmployeeID, e.Actor, string(e.Action), e.EntityType, e.EntityID, string(payload), formatTime(e.CreatedAt))
	return err
}

func (s *Store) ListAudit(ctx context.Context, employeeID string, limit int) ([]vacation.AuditEntry, error) {
	query := "SELECT id, employee_id, actor, action, entity_type, entity_id, payload_json, created_at FROM audit_log"
	var args []any
	if employeeID != "" {
		query += " WHERE employee_id = ?"
		args = append(args, employeeID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit: %w", err)
	}
	defer rows.Close()

	var out []vacation.AuditEntry
	for rows.Next() {
		var e vacation.AuditEntry
		var action, payload, createdAt string
		if err := rows.Scan(&e.ID, &e.EmployeeID, &e.Actor, &action, &e.EntityType, &e.EntityID, &payload, &createdAt); err != nil {
			return nil, err
		}
		e.Action = vacation.AuditAction(action)
		e.CreatedAt = parseTime(createdAt)
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				return nil, fmt.Errorf("audit entry %s has invalid payload_json: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Helper functions

func formatDate(tp generic.TimePoint) string {
	if tp.IsZero() {
		return ""
	}
	return tp.String()
}

func parseDate(s string) generic.TimePoint {
	if s == "" {
		return generic.TimePoint{}
	}
	tp, err := generic.ParseTimePoint(s)
	if err != nil {
		return generic.TimePoint{}
	}
	return tp
}

// timeLayout is fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}
