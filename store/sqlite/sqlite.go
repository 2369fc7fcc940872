/*
Package sqlite provides the SQLite-backed implementation of engine.Store.

PURPOSE:
  Production persistence for policies, schedule trackers, grant buckets,
  usages and approval requests, plus scheduler run records. The same
  patterns apply to PostgreSQL with minor dialect changes.

KEY TABLES:
  policies:       policy definitions, recurrence/approval rules as JSON
  trackers:       per-employee-per-policy grant cursors
  grants:         entitlement buckets; version column for optimistic locks
  usages:         debit records, allocations as JSON
  requests:       approval workflows, slots as JSON
  scheduler_runs: one row per daily job invocation

DECIMALS AND DATES:
  Balances are stored as TEXT via decimal.String() so no precision is lost
  in the round-trip. Calendar days are "2006-01-02" strings, instants are
  RFC3339.

OPTIMISTIC LOCKING:
  UpdateGrant runs UPDATE ... WHERE id = ? AND version = ?; zero affected
  rows means a concurrent writer won and the caller gets
  engine.ErrConcurrentModification.

WAL MODE:
  The database is opened with WAL journaling: readers don't block and
  there is a single writer at a time.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/engine"
	"github.com/warp/vacation-engine/timeunit"
)

const (
	dayFormat = "2006-01-02"
)

// Store implements engine.Store on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		vacation_type TEXT NOT NULL,
		grant_method TEXT NOT NULL,
		grant_time TEXT,
		flexible_grant BOOLEAN DEFAULT FALSE,
		minute_grant BOOLEAN DEFAULT FALSE,
		recurrence_json TEXT NOT NULL,
		effective_type TEXT,
		expiration_type TEXT,
		approval_json TEXT NOT NULL,
		deleted BOOLEAN DEFAULT FALSE,
		version INTEGER DEFAULT 1,
		created_by TEXT, created_by_type TEXT, created_ip TEXT,
		created_at TEXT NOT NULL,
		modified_by TEXT, modified_by_type TEXT, modified_ip TEXT,
		modified_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_method ON policies(grant_method);

	CREATE TABLE IF NOT EXISTS trackers (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		last_granted_at TEXT,
		next_grant_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(employee_id, policy_id)
	);

	CREATE TABLE IF NOT EXISTS grants (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		policy_id TEXT,
		vacation_type TEXT NOT NULL,
		grant_time TEXT NOT NULL,
		remain_time TEXT NOT NULL,
		occur_date TEXT NOT NULL,
		start_date TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT,
		version INTEGER DEFAULT 0,
		created_by TEXT, created_by_type TEXT, created_ip TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot paths: balance listing and the daily expire job.
	CREATE INDEX IF NOT EXISTS idx_grants_employee_type
		ON grants(employee_id, vacation_type, expiry_date);
	CREATE INDEX IF NOT EXISTS idx_grants_status_expiry
		ON grants(status, expiry_date);
	CREATE INDEX IF NOT EXISTS idx_grants_policy
		ON grants(policy_id) WHERE policy_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS usages (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		vacation_type TEXT NOT NULL,
		time_unit TEXT NOT NULL,
		unit_count INTEGER NOT NULL,
		used_time TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		allocations_json TEXT NOT NULL,
		deleted BOOLEAN DEFAULT FALSE,
		created_by TEXT, created_by_type TEXT, created_ip TEXT,
		created_at TEXT NOT NULL,
		deleted_by TEXT, deleted_by_type TEXT, deleted_ip TEXT,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_usages_employee_start
		ON usages(employee_id, start_date);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		sequential BOOLEAN DEFAULT FALSE,
		slots_json TEXT NOT NULL,
		status TEXT NOT NULL,
		materialized BOOLEAN DEFAULT FALSE,
		created_by TEXT, created_by_type TEXT, created_ip TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_employee ON requests(employee_id);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		department TEXT,
		department_head BOOLEAN DEFAULT FALSE,
		active BOOLEAN DEFAULT TRUE,
		hire_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scheduler_runs (
		id TEXT PRIMARY KEY,
		run_date TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		expired INTEGER DEFAULT 0,
		issued INTEGER DEFAULT 0,
		refreshed INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_scheduler_runs_date ON scheduler_runs(run_date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// dbtx abstracts *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// POLICIES
// =============================================================================

func (s *Store) SavePolicy(ctx context.Context, p *engine.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePolicy(ctx, s.db, p)
}

func savePolicy(ctx context.Context, db dbtx, p *engine.Policy) error {
	recJSON, err := json.Marshal(recurrenceRecord(p.Recurrence))
	if err != nil {
		return err
	}
	apprJSON, err := json.Marshal(p.Approval)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO policies
		(id, name, description, vacation_type, grant_method, grant_time,
		 flexible_grant, minute_grant, recurrence_json, effective_type,
		 expiration_type, approval_json, deleted, version,
		 created_by, created_by_type, created_ip, created_at,
		 modified_by, modified_by_type, modified_ip, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.VacationType, p.GrantMethod,
		nullDecimal(p.GrantTime), p.FlexibleGrant, p.MinuteGrant,
		string(recJSON), p.EffectiveType, p.ExpirationType, string(apprJSON),
		p.Deleted, p.Version,
		p.CreatedBy.ID, p.CreatedBy.Type, p.CreatedBy.IP, p.CreatedAt.Format(time.RFC3339),
		p.ModifiedBy.ID, p.ModifiedBy.Type, p.ModifiedBy.IP, p.ModifiedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p *engine.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePolicy(ctx, s.db, p)
}

func updatePolicy(ctx context.Context, db dbtx, p *engine.Policy) error {
	recJSON, err := json.Marshal(recurrenceRecord(p.Recurrence))
	if err != nil {
		return err
	}
	apprJSON, err := json.Marshal(p.Approval)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE policies SET
			name = ?, description = ?, grant_time = ?, recurrence_json = ?,
			effective_type = ?, expiration_type = ?, approval_json = ?,
			deleted = ?, version = ?,
			modified_by = ?, modified_by_type = ?, modified_ip = ?, modified_at = ?
		WHERE id = ?`,
		p.Name, p.Description, nullDecimal(p.GrantTime), string(recJSON),
		p.EffectiveType, p.ExpirationType, string(apprJSON),
		p.Deleted, p.Version,
		p.ModifiedBy.ID, p.ModifiedBy.Type, p.ModifiedBy.IP, p.ModifiedAt.Format(time.RFC3339),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrPolicyNotFound, p.ID)
	}
	return nil
}

const policyColumns = `id, name, description, vacation_type, grant_method, grant_time,
	flexible_grant, minute_grant, recurrence_json, effective_type,
	expiration_type, approval_json, deleted, version,
	created_by, created_by_type, created_ip, created_at,
	modified_by, modified_by_type, modified_ip, modified_at`

func (s *Store) GetPolicy(ctx context.Context, id engine.PolicyID) (*engine.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPolicy(ctx, s.db, id)
}

func getPolicy(ctx context.Context, db dbtx, id engine.PolicyID) (*engine.Policy, error) {
	row := db.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = ?`, id)
	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", engine.ErrPolicyNotFound, id)
	}
	return p, err
}

func (s *Store) ListPolicies(ctx context.Context, includeDeleted bool) ([]*engine.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPolicies(ctx, s.db, includeDeleted)
}

func listPolicies(ctx context.Context, db dbtx, includeDeleted bool) ([]*engine.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies`
	if !includeDeleted {
		query += ` WHERE deleted = FALSE`
	}
	query += ` ORDER BY created_at ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*engine.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) PolicyReferenced(ctx context.Context, id engine.PolicyID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return policyReferenced(ctx, s.db, id)
}

func policyReferenced(ctx context.Context, db dbtx, id engine.PolicyID) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM grants WHERE policy_id = ?`, id).Scan(&n)
	return n > 0, err
}

type scannable interface {
	Scan(dest ...any) error
}

// recurrenceRec is the JSON shape of engine.Recurrence.
type recurrenceRec struct {
	RepeatUnit     string `json:"repeat_unit,omitempty"`
	RepeatInterval int    `json:"repeat_interval,omitempty"`
	GrantTiming    string `json:"grant_timing,omitempty"`
	SpecificMonths []int  `json:"specific_months,omitempty"`
	SpecificDays   []int  `json:"specific_days,omitempty"`
	FirstGrantDate string `json:"first_grant_date,omitempty"`
}

func recurrenceRecord(r engine.Recurrence) recurrenceRec {
	rec := recurrenceRec{
		RepeatUnit:     string(r.RepeatUnit),
		RepeatInterval: r.RepeatInterval,
		GrantTiming:    string(r.GrantTiming),
		SpecificDays:   r.SpecificDays,
	}
	for _, m := range r.SpecificMonths {
		rec.SpecificMonths = append(rec.SpecificMonths, int(m))
	}
	if !r.FirstGrantDate.IsZero() {
		rec.FirstGrantDate = r.FirstGrantDate.String()
	}
	return rec
}

func (rec recurrenceRec) toRecurrence() (engine.Recurrence, error) {
	r := engine.Recurrence{
		RepeatUnit:     engine.RepeatUnit(rec.RepeatUnit),
		RepeatInterval: rec.RepeatInterval,
		GrantTiming:    engine.GrantTiming(rec.GrantTiming),
		SpecificDays:   rec.SpecificDays,
	}
	for _, m := range rec.SpecificMonths {
		r.SpecificMonths = append(r.SpecificMonths, time.Month(m))
	}
	if rec.FirstGrantDate != "" {
		d, err := engine.ParseDate(rec.FirstGrantDate)
		if err != nil {
			return r, err
		}
		r.FirstGrantDate = d
	}
	return r, nil
}

func scanPolicy(row scannable) (*engine.Policy, error) {
	var p engine.Policy
	var grantTime, description sql.NullString
	var recJSON, apprJSON string
	var effType, expType sql.NullString
	var createdAt, modifiedAt string
	err := row.Scan(
		&p.ID, &p.Name, &description, &p.VacationType, &p.GrantMethod, &grantTime,
		&p.FlexibleGrant, &p.MinuteGrant, &recJSON, &effType, &expType, &apprJSON,
		&p.Deleted, &p.Version,
		&p.CreatedBy.ID, &p.CreatedBy.Type, &p.CreatedBy.IP, &createdAt,
		&p.ModifiedBy.ID, &p.ModifiedBy.Type, &p.ModifiedBy.IP, &modifiedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.EffectiveType = engine.EffectiveType(effType.String)
	p.ExpirationType = engine.ExpirationType(expType.String)
	if grantTime.Valid && grantTime.String != "" {
		d, err := decimal.NewFromString(grantTime.String)
		if err != nil {
			return nil, fmt.Errorf("bad grant_time: %w", err)
		}
		p.GrantTime = &d
	}
	var rec recurrenceRec
	if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
		return nil, fmt.Errorf("bad recurrence_json: %w", err)
	}
	if p.Recurrence, err = rec.toRecurrence(); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(apprJSON), &p.Approval); err != nil {
		return nil, fmt.Errorf("bad approval_json: %w", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.ModifiedAt, _ = time.Parse(time.RFC3339, modifiedAt)
	return &p, nil
}

// =============================================================================
// TRACKERS
// =============================================================================

func (s *Store) SaveTracker(ctx context.Context, t *engine.ScheduleTracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveTracker(ctx, s.db, t)
}

func saveTracker(ctx context.Context, db dbtx, t *engine.ScheduleTracker) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO trackers
		(id, employee_id, policy_id, last_granted_at, next_grant_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.EmployeeID, t.PolicyID, nullDay(t.LastGrantedAt),
		t.NextGrantDate.String(),
		t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save tracker: %w", err)
	}
	return nil
}

func (s *Store) UpdateTracker(ctx context.Context, t *engine.ScheduleTracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateTracker(ctx, s.db, t)
}

func updateTracker(ctx context.Context, db dbtx, t *engine.ScheduleTracker) error {
	res, err := db.ExecContext(ctx, `
		UPDATE trackers SET last_granted_at = ?, next_grant_date = ?, updated_at = ?
		WHERE id = ?`,
		nullDay(t.LastGrantedAt), t.NextGrantDate.String(),
		t.UpdatedAt.Format(time.RFC3339), t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tracker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrTrackerNotFound, t.ID)
	}
	return nil
}

const trackerColumns = `id, employee_id, policy_id, last_granted_at, next_grant_date, created_at, updated_at`

func (s *Store) GetTracker(ctx context.Context, employee engine.EmployeeID, policy engine.PolicyID) (*engine.ScheduleTracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+trackerColumns+` FROM trackers WHERE employee_id = ? AND policy_id = ?`,
		employee, policy)
	t, err := scanTracker(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", engine.ErrTrackerNotFound, employee, policy)
	}
	return t, err
}

func (s *Store) ListTrackers(ctx context.Context) ([]*engine.ScheduleTracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTrackers(ctx, s.db)
}

func listTrackers(ctx context.Context, db dbtx) ([]*engine.ScheduleTracker, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+trackerColumns+` FROM trackers ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*engine.ScheduleTracker
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTracker(row scannable) (*engine.ScheduleTracker, error) {
	var t engine.ScheduleTracker
	var last sql.NullString
	var next, createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.EmployeeID, &t.PolicyID, &last, &next, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if last.Valid && last.String != "" {
		d, err := engine.ParseDate(last.String)
		if err != nil {
			return nil, err
		}
		t.LastGrantedAt = &d
	}
	var err error
	if t.NextGrantDate, err = engine.ParseDate(next); err != nil {
		return nil, err
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &t, nil
}

// =============================================================================
// GRANTS
// =============================================================================

func (s *Store) SaveGrant(ctx context.Context, g *engine.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveGrant(ctx, s.db, g)
}

func saveGrant(ctx context.Context, db dbtx, g *engine.Grant) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO grants
		(id, employee_id, policy_id, vacation_type, grant_time, remain_time,
		 occur_date, start_date, expiry_date, status, description, version,
		 created_by, created_by_type, created_ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.EmployeeID, nullString(string(g.PolicyID)), g.VacationType,
		g.GrantTime.String(), g.RemainTime.String(),
		g.OccurDate.String(), g.StartDate.String(), g.ExpiryDate.String(),
		g.Status, g.Description, g.Version,
		g.CreatedBy.ID, g.CreatedBy.Type, g.CreatedBy.IP,
		g.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save grant: %w", err)
	}
	return nil
}

// UpdateGrant is the optimistic-locking write: the WHERE clause pins the
// version the caller read.
func (s *Store) UpdateGrant(ctx context.Context, g *engine.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateGrant(ctx, s.db, g)
}

func updateGrant(ctx context.Context, db dbtx, g *engine.Grant) error {
	res, err := db.ExecContext(ctx, `
		UPDATE grants SET
			grant_time = ?, remain_time = ?, status = ?, description = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		g.GrantTime.String(), g.RemainTime.String(), g.Status, g.Description,
		g.ID, g.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update grant: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Either missing or a version conflict; distinguish for the caller.
		var exists int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM grants WHERE id = ?`, g.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", engine.ErrGrantNotFound, g.ID)
		}
		return engine.ErrConcurrentModification
	}
	g.Version++
	return nil
}

const grantColumns = `id, employee_id, policy_id, vacation_type, grant_time, remain_time,
	occur_date, start_date, expiry_date, status, description, version,
	created_by, created_by_type, created_ip, created_at`

func (s *Store) GetGrant(ctx context.Context, id engine.GrantID) (*engine.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getGrant(ctx, s.db, id)
}

func getGrant(ctx context.Context, db dbtx, id engine.GrantID) (*engine.Grant, error) {
	row := db.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM grants WHERE id = ?`, id)
	g, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", engine.ErrGrantNotFound, id)
	}
	return g, err
}

func (s *Store) ListGrants(ctx context.Context, employee engine.EmployeeID, vtype engine.VacationType) ([]*engine.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listGrants(ctx, s.db, employee, vtype)
}

func listGrants(ctx context.Context, db dbtx, employee engine.EmployeeID, vtype engine.VacationType) ([]*engine.Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM grants WHERE employee_id = ?`
	args := []any{employee}
	if vtype != "" {
		query += ` AND vacation_type = ?`
		args = append(args, vtype)
	}
	query += ` ORDER BY expiry_date ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func (s *Store) ListExpirable(ctx context.Context, asOf engine.Date) ([]*engine.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listExpirable(ctx, s.db, asOf)
}

func listExpirable(ctx context.Context, db dbtx, asOf engine.Date) ([]*engine.Grant, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM grants WHERE status = ? AND expiry_date < ? ORDER BY id ASC`,
		engine.GrantActive, asOf.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func collectGrants(rows *sql.Rows) ([]*engine.Grant, error) {
	var out []*engine.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGrant(row scannable) (*engine.Grant, error) {
	var g engine.Grant
	var policyID, description sql.NullString
	var grantTime, remainTime, occur, start, expiry, createdAt string
	err := row.Scan(
		&g.ID, &g.EmployeeID, &policyID, &g.VacationType, &grantTime, &remainTime,
		&occur, &start, &expiry, &g.Status, &description, &g.Version,
		&g.CreatedBy.ID, &g.CreatedBy.Type, &g.CreatedBy.IP, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	g.PolicyID = engine.PolicyID(policyID.String)
	g.Description = description.String
	if g.GrantTime, err = decimal.NewFromString(grantTime); err != nil {
		return nil, fmt.Errorf("bad grant_time: %w", err)
	}
	if g.RemainTime, err = decimal.NewFromString(remainTime); err != nil {
		return nil, fmt.Errorf("bad remain_time: %w", err)
	}
	if g.OccurDate, err = engine.ParseDate(occur); err != nil {
		return nil, err
	}
	if g.StartDate, err = engine.ParseDate(start); err != nil {
		return nil, err
	}
	if g.ExpiryDate, err = engine.ParseDate(expiry); err != nil {
		return nil, err
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &g, nil
}

// =============================================================================
// USAGES
// =============================================================================

func (s *Store) SaveUsage(ctx context.Context, u *engine.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveUsage(ctx, s.db, u)
}

type allocationRec struct {
	GrantID string `json:"grant_id"`
	Amount  string `json:"amount"`
}

func allocationsJSON(allocs []engine.UsageAllocation) (string, error) {
	recs := make([]allocationRec, len(allocs))
	for i, a := range allocs {
		recs[i] = allocationRec{GrantID: string(a.GrantID), Amount: a.Amount.String()}
	}
	b, err := json.Marshal(recs)
	return string(b), err
}

func parseAllocations(raw string) ([]engine.UsageAllocation, error) {
	var recs []allocationRec
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil, fmt.Errorf("bad allocations_json: %w", err)
	}
	out := make([]engine.UsageAllocation, len(recs))
	for i, r := range recs {
		amt, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("bad allocation amount: %w", err)
		}
		out[i] = engine.UsageAllocation{GrantID: engine.GrantID(r.GrantID), Amount: amt}
	}
	return out, nil
}

func saveUsage(ctx context.Context, db dbtx, u *engine.Usage) error {
	allocs, err := allocationsJSON(u.Allocations)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO usages
		(id, employee_id, vacation_type, time_unit, unit_count, used_time,
		 start_date, end_date, allocations_json, deleted,
		 created_by, created_by_type, created_ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.EmployeeID, u.VacationType, u.TimeUnit, u.Count, u.UsedTime.String(),
		u.StartDate.UTC().Format(time.RFC3339), u.EndDate.UTC().Format(time.RFC3339),
		allocs, u.Deleted,
		u.CreatedBy.ID, u.CreatedBy.Type, u.CreatedBy.IP,
		u.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save usage: %w", err)
	}
	return nil
}

func (s *Store) UpdateUsage(ctx context.Context, u *engine.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateUsage(ctx, s.db, u)
}

func updateUsage(ctx context.Context, db dbtx, u *engine.Usage) error {
	var deletedBy, deletedByType, deletedIP, deletedAt any
	if u.DeletedBy != nil {
		deletedBy, deletedByType, deletedIP = u.DeletedBy.ID, u.DeletedBy.Type, u.DeletedBy.IP
	}
	if u.DeletedAt != nil {
		deletedAt = u.DeletedAt.Format(time.RFC3339)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE usages SET deleted = ?, deleted_by = ?, deleted_by_type = ?, deleted_ip = ?, deleted_at = ?
		WHERE id = ?`,
		u.Deleted, deletedBy, deletedByType, deletedIP, deletedAt, u.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update usage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrUsageNotFound, u.ID)
	}
	return nil
}

const usageColumns = `id, employee_id, vacation_type, time_unit, unit_count, used_time,
	start_date, end_date, allocations_json, deleted,
	created_by, created_by_type, created_ip, created_at,
	deleted_by, deleted_by_type, deleted_ip, deleted_at`

func (s *Store) GetUsage(ctx context.Context, id engine.UsageID) (*engine.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUsage(ctx, s.db, id)
}

func getUsage(ctx context.Context, db dbtx, id engine.UsageID) (*engine.Usage, error) {
	row := db.QueryRowContext(ctx, `SELECT `+usageColumns+` FROM usages WHERE id = ?`, id)
	u, err := scanUsage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", engine.ErrUsageNotFound, id)
	}
	return u, err
}

func (s *Store) ListUsages(ctx context.Context, employee engine.EmployeeID, from, to time.Time) ([]*engine.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUsages(ctx, s.db, employee, from, to)
}

func listUsages(ctx context.Context, db dbtx, employee engine.EmployeeID, from, to time.Time) ([]*engine.Usage, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+usageColumns+` FROM usages
		WHERE employee_id = ? AND deleted = FALSE
		  AND start_date < ? AND end_date >= ?
		ORDER BY start_date ASC`,
		employee, to.UTC().Format(time.RFC3339), from.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*engine.Usage
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUsage(row scannable) (*engine.Usage, error) {
	var u engine.Usage
	var usedTime, start, end, allocs, createdAt string
	var deletedBy, deletedByType, deletedIP, deletedAt sql.NullString
	err := row.Scan(
		&u.ID, &u.EmployeeID, &u.VacationType, &u.TimeUnit, &u.Count, &usedTime,
		&start, &end, &allocs, &u.Deleted,
		&u.CreatedBy.ID, &u.CreatedBy.Type, &u.CreatedBy.IP, &createdAt,
		&deletedBy, &deletedByType, &deletedIP, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if u.UsedTime, err = decimal.NewFromString(usedTime); err != nil {
		return nil, fmt.Errorf("bad used_time: %w", err)
	}
	if u.StartDate, err = time.Parse(time.RFC3339, start); err != nil {
		return nil, err
	}
	if u.EndDate, err = time.Parse(time.RFC3339, end); err != nil {
		return nil, err
	}
	if u.Allocations, err = parseAllocations(allocs); err != nil {
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if deletedBy.Valid {
		u.DeletedBy = &engine.Actor{
			ID:   deletedBy.String,
			Type: engine.ActorType(deletedByType.String),
			IP:   deletedIP.String,
		}
	}
	if deletedAt.Valid && deletedAt.String != "" {
		t, err := time.Parse(time.RFC3339, deletedAt.String)
		if err == nil {
			u.DeletedAt = &t
		}
	}
	return &u, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

type slotRec struct {
	Approver  string  `json:"approver"`
	Order     int     `json:"order"`
	Status    string  `json:"status"`
	Reason    string  `json:"reason,omitempty"`
	DecidedAt *string `json:"decided_at,omitempty"`
}

type payloadRec struct {
	VacationType string `json:"vacation_type"`
	TimeUnit     string `json:"time_unit"`
	Count        int    `json:"count"`
	Amount       string `json:"amount"`
	WindowStart  string `json:"window_start"`
	WindowEnd    string `json:"window_end"`
	Reason       string `json:"reason"`
}

func (s *Store) SaveRequest(ctx context.Context, r *engine.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRequest(ctx, s.db, r)
}

func requestJSON(r *engine.ApprovalRequest) (payload, slots string, err error) {
	p := payloadRec{
		VacationType: string(r.Payload.VacationType),
		TimeUnit:     string(r.Payload.TimeUnit),
		Count:        r.Payload.Count,
		Amount:       r.Payload.Amount.String(),
		WindowStart:  r.Payload.WindowStart.UTC().Format(time.RFC3339),
		WindowEnd:    r.Payload.WindowEnd.UTC().Format(time.RFC3339),
		Reason:       r.Payload.Reason,
	}
	pb, err := json.Marshal(p)
	if err != nil {
		return "", "", err
	}
	recs := make([]slotRec, len(r.Slots))
	for i, s := range r.Slots {
		recs[i] = slotRec{
			Approver: string(s.Approver),
			Order:    s.Order,
			Status:   string(s.Status),
			Reason:   s.Reason,
		}
		if s.DecidedAt != nil {
			ts := s.DecidedAt.Format(time.RFC3339)
			recs[i].DecidedAt = &ts
		}
	}
	sb, err := json.Marshal(recs)
	if err != nil {
		return "", "", err
	}
	return string(pb), string(sb), nil
}

func saveRequest(ctx context.Context, db dbtx, r *engine.ApprovalRequest) error {
	payload, slots, err := requestJSON(r)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO requests
		(id, employee_id, kind, policy_id, payload_json, sequential, slots_json,
		 status, materialized, created_by, created_by_type, created_ip,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.EmployeeID, r.Kind, r.PolicyID, payload, r.Sequential, slots,
		r.Status, r.Materialized,
		r.CreatedBy.ID, r.CreatedBy.Type, r.CreatedBy.IP,
		r.CreatedAt.Format(time.RFC3339), r.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}
	return nil
}

func (s *Store) UpdateRequest(ctx context.Context, r *engine.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateRequest(ctx, s.db, r)
}

func updateRequest(ctx context.Context, db dbtx, r *engine.ApprovalRequest) error {
	_, slots, err := requestJSON(r)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE requests SET slots_json = ?, status = ?, materialized = ?, updated_at = ?
		WHERE id = ?`,
		slots, r.Status, r.Materialized, r.UpdatedAt.Format(time.RFC3339), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrRequestNotFound, r.ID)
	}
	return nil
}

const requestColumns = `id, employee_id, kind, policy_id, payload_json, sequential, slots_json,
	status, materialized, created_by, created_by_type, created_ip, created_at, updated_at`

func (s *Store) GetRequest(ctx context.Context, id engine.RequestID) (*engine.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequest(ctx, s.db, id)
}

func getRequest(ctx context.Context, db dbtx, id engine.RequestID) (*engine.ApprovalRequest, error) {
	row := db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", engine.ErrRequestNotFound, id)
	}
	return r, err
}

func (s *Store) ListPendingRequests(ctx context.Context) ([]*engine.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPendingRequests(ctx, s.db)
}

func listPendingRequests(ctx context.Context, db dbtx) ([]*engine.ApprovalRequest, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE status = ? ORDER BY created_at ASC`,
		engine.RequestPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*engine.ApprovalRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row scannable) (*engine.ApprovalRequest, error) {
	var r engine.ApprovalRequest
	var payload, slots, createdAt, updatedAt string
	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.Kind, &r.PolicyID, &payload, &r.Sequential, &slots,
		&r.Status, &r.Materialized,
		&r.CreatedBy.ID, &r.CreatedBy.Type, &r.CreatedBy.IP, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	var p payloadRec
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("bad payload_json: %w", err)
	}
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("bad payload amount: %w", err)
	}
	ws, err := time.Parse(time.RFC3339, p.WindowStart)
	if err != nil {
		return nil, err
	}
	we, err := time.Parse(time.RFC3339, p.WindowEnd)
	if err != nil {
		return nil, err
	}
	r.Payload = engine.LeavePayload{
		VacationType: engine.VacationType(p.VacationType),
		TimeUnit:     timeunit.Unit(p.TimeUnit),
		Count:        p.Count,
		Amount:       amount,
		WindowStart:  ws,
		WindowEnd:    we,
		Reason:       p.Reason,
	}
	var recs []slotRec
	if err := json.Unmarshal([]byte(slots), &recs); err != nil {
		return nil, fmt.Errorf("bad slots_json: %w", err)
	}
	r.Slots = make([]engine.ApprovalSlot, len(recs))
	for i, rec := range recs {
		r.Slots[i] = engine.ApprovalSlot{
			Approver: engine.EmployeeID(rec.Approver),
			Order:    rec.Order,
			Status:   engine.ApprovalStatus(rec.Status),
			Reason:   rec.Reason,
		}
		if rec.DecidedAt != nil {
			t, err := time.Parse(time.RFC3339, *rec.DecidedAt)
			if err == nil {
				r.Slots[i].DecidedAt = &t
			}
		}
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

// =============================================================================
// SCHEDULER RUNS
// =============================================================================

// SchedulerRun records one daily job invocation for operator follow-up.
type SchedulerRun struct {
	ID          string
	RunDate     engine.Date
	Trigger     string // "cron" or "manual"
	Report      engine.RunReport
	StartedAt   time.Time
	CompletedAt *time.Time
}

func (s *Store) SaveSchedulerRun(ctx context.Context, run SchedulerRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var completed any
	if run.CompletedAt != nil {
		completed = run.CompletedAt.Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduler_runs
		(id, run_date, trigger_kind, expired, issued, refreshed, failed, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			expired = excluded.expired, issued = excluded.issued,
			refreshed = excluded.refreshed, failed = excluded.failed,
			completed_at = excluded.completed_at`,
		run.ID, run.RunDate.String(), run.Trigger,
		run.Report.Expired, run.Report.Issued, run.Report.Refreshed, run.Report.Failed,
		run.StartedAt.Format(time.RFC3339), completed,
	)
	return err
}

func (s *Store) ListSchedulerRuns(ctx context.Context, limit int) ([]SchedulerRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_date, trigger_kind, expired, issued, refreshed, failed, started_at, completed_at
		FROM scheduler_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SchedulerRun
	for rows.Next() {
		var run SchedulerRun
		var runDate, startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&run.ID, &runDate, &run.Trigger,
			&run.Report.Expired, &run.Report.Issued, &run.Report.Refreshed, &run.Report.Failed,
			&startedAt, &completedAt); err != nil {
			return nil, err
		}
		if run.RunDate, err = engine.ParseDate(runDate); err != nil {
			return nil, err
		}
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if completedAt.Valid {
			t, err := time.Parse(time.RFC3339, completedAt.String)
			if err == nil {
				run.CompletedAt = &t
			}
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn against a transactional view of the store.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txView{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// txView routes every store call through the open transaction.
type txView struct {
	tx *sql.Tx
}

func (v *txView) SavePolicy(ctx context.Context, p *engine.Policy) error   { return savePolicy(ctx, v.tx, p) }
func (v *txView) UpdatePolicy(ctx context.Context, p *engine.Policy) error { return updatePolicy(ctx, v.tx, p) }
func (v *txView) GetPolicy(ctx context.Context, id engine.PolicyID) (*engine.Policy, error) {
	return getPolicy(ctx, v.tx, id)
}
func (v *txView) ListPolicies(ctx context.Context, includeDeleted bool) ([]*engine.Policy, error) {
	return listPolicies(ctx, v.tx, includeDeleted)
}
func (v *txView) PolicyReferenced(ctx context.Context, id engine.PolicyID) (bool, error) {
	return policyReferenced(ctx, v.tx, id)
}
func (v *txView) SaveTracker(ctx context.Context, t *engine.ScheduleTracker) error {
	return saveTracker(ctx, v.tx, t)
}
func (v *txView) UpdateTracker(ctx context.Context, t *engine.ScheduleTracker) error {
	return updateTracker(ctx, v.tx, t)
}
func (v *txView) GetTracker(ctx context.Context, employee engine.EmployeeID, policy engine.PolicyID) (*engine.ScheduleTracker, error) {
	row := v.tx.QueryRowContext(ctx,
		`SELECT `+trackerColumns+` FROM trackers WHERE employee_id = ? AND policy_id = ?`,
		employee, policy)
	t, err := scanTracker(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", engine.ErrTrackerNotFound, employee, policy)
	}
	return t, err
}
func (v *txView) ListTrackers(ctx context.Context) ([]*engine.ScheduleTracker, error) {
	return listTrackers(ctx, v.tx)
}
func (v *txView) SaveGrant(ctx context.Context, g *engine.Grant) error   { return saveGrant(ctx, v.tx, g) }
func (v *txView) UpdateGrant(ctx context.Context, g *engine.Grant) error { return updateGrant(ctx, v.tx, g) }
func (v *txView) GetGrant(ctx context.Context, id engine.GrantID) (*engine.Grant, error) {
	return getGrant(ctx, v.tx, id)
}
func (v *txView) ListGrants(ctx context.Context, employee engine.EmployeeID, vtype engine.VacationType) ([]*engine.Grant, error) {
	return listGrants(ctx, v.tx, employee, vtype)
}
func (v *txView) ListExpirable(ctx context.Context, asOf engine.Date) ([]*engine.Grant, error) {
	return listExpirable(ctx, v.tx, asOf)
}
func (v *txView) SaveUsage(ctx context.Context, u *engine.Usage) error   { return saveUsage(ctx, v.tx, u) }
func (v *txView) UpdateUsage(ctx context.Context, u *engine.Usage) error { return updateUsage(ctx, v.tx, u) }
func (v *txView) GetUsage(ctx context.Context, id engine.UsageID) (*engine.Usage, error) {
	return getUsage(ctx, v.tx, id)
}
func (v *txView) ListUsages(ctx context.Context, employee engine.EmployeeID, from, to time.Time) ([]*engine.Usage, error) {
	return listUsages(ctx, v.tx, employee, from, to)
}
func (v *txView) SaveRequest(ctx context.Context, r *engine.ApprovalRequest) error {
	return saveRequest(ctx, v.tx, r)
}
func (v *txView) UpdateRequest(ctx context.Context, r *engine.ApprovalRequest) error {
	return updateRequest(ctx, v.tx, r)
}
func (v *txView) GetRequest(ctx context.Context, id engine.RequestID) (*engine.ApprovalRequest, error) {
	return getRequest(ctx, v.tx, id)
}
func (v *txView) ListPendingRequests(ctx context.Context) ([]*engine.ApprovalRequest, error) {
	return listPendingRequests(ctx, v.tx)
}

// Nested transactions are not supported; fn runs in the current one.
func (v *txView) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	return fn(v)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullDay(d *engine.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}
