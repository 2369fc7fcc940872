/*
service.go - The exposed engine operations

PURPOSE:
  Service orchestrates every operation consumed by the controller layer:
  policy lifecycle, assignment, manual grants, request-based leave with
  approval, usage registration/deletion, balances and monthly stats.
  Everything validates synchronously and surfaces typed errors; there is
  no silent fallback for malformed input.

CONCURRENCY:
  Usage registration serializes concurrent debits per employee through
  version-checked grant updates inside one store transaction, retried a
  bounded number of times on conflict. Approval decisions read and write
  slot state inside one transaction, and materialization is guarded by
  the request's Materialized flag so it happens exactly once.

SEE ALSO:
  - scheduler.go: the daily batch jobs
  - api/handlers.go: the HTTP surface over these operations
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/timeunit"
)

// debitRetries bounds the optimistic-retry loop on concurrent debits.
const debitRetries = 3

// Service exposes the vacation engine operations.
type Service struct {
	Store      Store
	Directory  Directory
	Clock      Clock
	Registry   *TypeRegistry
	Strategies *StrategyFactory
}

func NewService(store Store, dir Directory, clock Clock, registry *TypeRegistry) *Service {
	return &Service{
		Store:      store,
		Directory:  dir,
		Clock:      clock,
		Registry:   registry,
		Strategies: NewStrategyFactory(),
	}
}

// =============================================================================
// POLICY LIFECYCLE
// =============================================================================

// CreatePolicy validates and persists a new policy through the strategy
// matching its grant method.
func (s *Service) CreatePolicy(ctx context.Context, p *Policy, actor Actor) (PolicyID, error) {
	if !s.Registry.Known(p.VacationType) {
		return "", &ConfigError{Field: "vacationType", Constraint: fmt.Sprintf("unknown type %q", p.VacationType)}
	}
	strategy, err := s.Strategies.For(p.GrantMethod)
	if err != nil {
		return "", err
	}
	if err := strategy.NormalizePolicy(p); err != nil {
		return "", err
	}
	if p.ID == "" {
		p.ID = PolicyID(uuid.NewString())
	}
	now := s.Clock.Now()
	p.Version = 1
	p.CreatedBy = actor
	p.CreatedAt = now
	p.ModifiedBy = actor
	p.ModifiedAt = now
	if err := s.Store.SavePolicy(ctx, p); err != nil {
		return "", err
	}
	return p.ID, nil
}

// PolicyEdit carries the editable fields. Nil means "leave unchanged".
type PolicyEdit struct {
	Name        *string
	Description *string

	// Core fields below are additive-only: rejected once grants reference
	// the policy.
	GrantTime      *decimal.Decimal
	Recurrence     *Recurrence
	EffectiveType  *EffectiveType
	ExpirationType *ExpirationType
}

func (e *PolicyEdit) touchesCore() bool {
	return e.GrantTime != nil || e.Recurrence != nil ||
		e.EffectiveType != nil || e.ExpirationType != nil
}

// EditPolicy applies a non-breaking edit. Descriptive fields are always
// editable; core fields freeze once any grant references the policy.
func (s *Service) EditPolicy(ctx context.Context, id PolicyID, edit PolicyEdit, actor Actor) error {
	p, err := s.Store.GetPolicy(ctx, id)
	if err != nil {
		return err
	}
	if edit.touchesCore() {
		referenced, err := s.Store.PolicyReferenced(ctx, id)
		if err != nil {
			return err
		}
		if referenced {
			return ErrPolicyInUse
		}
	}
	if edit.Name != nil {
		p.Name = *edit.Name
	}
	if edit.Description != nil {
		p.Description = *edit.Description
	}
	if edit.GrantTime != nil {
		p.GrantTime = edit.GrantTime
	}
	if edit.Recurrence != nil {
		p.Recurrence = *edit.Recurrence
	}
	if edit.EffectiveType != nil {
		p.EffectiveType = *edit.EffectiveType
	}
	if edit.ExpirationType != nil {
		p.ExpirationType = *edit.ExpirationType
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.Version++
	p.ModifiedBy = actor
	p.ModifiedAt = s.Clock.Now()
	return s.Store.UpdatePolicy(ctx, p)
}

// RetirePolicy soft-marks a policy. Policies are never physically deleted.
func (s *Service) RetirePolicy(ctx context.Context, id PolicyID, actor Actor) error {
	p, err := s.Store.GetPolicy(ctx, id)
	if err != nil {
		return err
	}
	p.Deleted = true
	p.ModifiedBy = actor
	p.ModifiedAt = s.Clock.Now()
	return s.Store.UpdatePolicy(ctx, p)
}

// AssignPolicy links an employee to a policy. REPEAT_GRANT assignments get
// a schedule tracker with the initial next-grant cursor; other methods
// need no tracker.
func (s *Service) AssignPolicy(ctx context.Context, policyID PolicyID, employee EmployeeID, actor Actor) error {
	if err := s.requireActiveEmployee(ctx, employee); err != nil {
		return err
	}
	p, err := s.Store.GetPolicy(ctx, policyID)
	if err != nil {
		return err
	}
	if p.Deleted {
		return fmt.Errorf("%w: %s", ErrPolicyNotFound, policyID)
	}
	if !p.IsRepeat() {
		return nil
	}
	if existing, err := s.Store.GetTracker(ctx, employee, policyID); err == nil && existing != nil {
		return nil // already assigned
	} else if err != nil && !errors.Is(err, ErrTrackerNotFound) {
		return err
	}
	now := s.Clock.Now()
	tracker := &ScheduleTracker{
		ID:            TrackerID(uuid.NewString()),
		EmployeeID:    employee,
		PolicyID:      policyID,
		NextGrantDate: InitialGrantDate(p, s.Clock.Today()),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return s.Store.SaveTracker(ctx, tracker)
}

// =============================================================================
// GRANTS
// =============================================================================

// ManualGrant mints a bucket directly. PolicyID is optional; when present
// the policy supplies the validity window unless an explicit one is given.
func (s *Service) ManualGrant(ctx context.Context, employee EmployeeID, vtype VacationType, amount decimal.Decimal, start, expiry Date, description string, policyID PolicyID, actor Actor) (GrantID, error) {
	if err := s.requireActiveEmployee(ctx, employee); err != nil {
		return "", err
	}
	if !s.Registry.Known(vtype) {
		return "", &ConfigError{Field: "vacationType", Constraint: fmt.Sprintf("unknown type %q", vtype)}
	}
	if !amount.IsPositive() {
		return "", &ConfigError{Field: "amount", Constraint: "must be positive"}
	}
	var policy *Policy
	if policyID != "" {
		p, err := s.Store.GetPolicy(ctx, policyID)
		if err != nil {
			return "", err
		}
		policy = p
	}
	strategy, _ := s.Strategies.For(MethodManualGrant)
	return strategy.RegisterGrant(ctx, s.Store, s.Registry, GrantConfig{
		Policy:      policy,
		EmployeeID:  employee,
		Type:        vtype,
		Amount:      amount,
		GrantDate:   s.Clock.Today(),
		StartDate:   start,
		ExpiryDate:  expiry,
		Description: description,
		Actor:       actor,
		Now:         s.Clock.Now(),
	})
}

// =============================================================================
// REQUEST-BASED LEAVE
// =============================================================================

// LeaveSubmission is the input to SubmitOnRequestLeave.
type LeaveSubmission struct {
	EmployeeID EmployeeID
	PolicyID   PolicyID
	Kind       RequestKind
	TimeUnit   timeunit.Unit
	Count      int
	Window     [2]time.Time
	Reason     string
	Approvers  []EmployeeID
}

// SubmitOnRequestLeave opens an approval workflow for request-based leave.
// The grant or usage described by the payload materializes only when every
// approver has approved.
func (s *Service) SubmitOnRequestLeave(ctx context.Context, sub LeaveSubmission, actor Actor) (RequestID, error) {
	if err := s.requireActiveEmployee(ctx, sub.EmployeeID); err != nil {
		return "", err
	}
	p, err := s.Store.GetPolicy(ctx, sub.PolicyID)
	if err != nil {
		return "", err
	}
	if p.GrantMethod != MethodOnRequest {
		return "", &ConfigError{Field: "policy", Constraint: "not an ON_REQUEST policy"}
	}
	if sub.Reason == "" {
		return "", ErrReasonRequired
	}
	if sub.Window[1].Before(sub.Window[0]) {
		return "", fmt.Errorf("%w: end before start", ErrInvalidWindow)
	}

	amount, err := timeunit.Quantize(sub.TimeUnit, sub.Count)
	if err != nil {
		return "", err
	}

	slots, err := newSlots(sub.Approvers)
	if err != nil {
		return "", err
	}
	if p.Approval.RequireDepartmentHead {
		dept, err := s.Directory.EmployeeDepartment(ctx, sub.EmployeeID)
		if err != nil {
			return "", err
		}
		for _, a := range sub.Approvers {
			head, err := s.Directory.IsDepartmentHead(ctx, a, dept)
			if err != nil {
				return "", err
			}
			if !head {
				return "", fmt.Errorf("%w: %s is not a department head for %s", ErrUnauthorizedApprover, a, dept)
			}
		}
	}

	kind := sub.Kind
	if kind == "" {
		kind = KindUsage
	}
	now := s.Clock.Now()
	req := &ApprovalRequest{
		ID:         RequestID(uuid.NewString()),
		EmployeeID: sub.EmployeeID,
		Kind:       kind,
		PolicyID:   sub.PolicyID,
		Payload: LeavePayload{
			VacationType: p.VacationType,
			TimeUnit:     sub.TimeUnit,
			Count:        sub.Count,
			Amount:       amount,
			WindowStart:  sub.Window[0],
			WindowEnd:    sub.Window[1],
			Reason:       sub.Reason,
		},
		Sequential: p.Approval.Sequential,
		Slots:      slots,
		Status:     RequestPending,
		CreatedBy:  actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Store.SaveRequest(ctx, req); err != nil {
		return "", err
	}
	return req.ID, nil
}

// DecideApproval records one approver's decision. Reading slot state,
// writing the new state and materializing on full approval all happen in
// one store transaction.
func (s *Service) DecideApproval(ctx context.Context, id RequestID, approver EmployeeID, approve bool, reason string, actor Actor) error {
	return s.Store.WithTx(ctx, func(tx Store) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := req.Decide(approver, approve, reason, s.Clock.Now()); err != nil {
			return err
		}
		if req.Status == RequestApproved && !req.Materialized {
			req.Materialized = true
			if err := s.materialize(ctx, tx, req, actor); err != nil {
				return err
			}
		}
		return tx.UpdateRequest(ctx, req)
	})
}

// CancelRequest withdraws a request while every slot is still pending.
func (s *Service) CancelRequest(ctx context.Context, id RequestID, actor Actor) error {
	return s.Store.WithTx(ctx, func(tx Store) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := req.Cancel(s.Clock.Now()); err != nil {
			return err
		}
		return tx.UpdateRequest(ctx, req)
	})
}

// materialize creates the grant or usage a fully-approved request asked for.
func (s *Service) materialize(ctx context.Context, tx Store, req *ApprovalRequest, actor Actor) error {
	p, err := tx.GetPolicy(ctx, req.PolicyID)
	if err != nil {
		return err
	}
	switch req.Kind {
	case KindGrant:
		amount := req.Payload.Amount
		if p.GrantTime != nil {
			amount = *p.GrantTime
		}
		strategy, _ := s.Strategies.For(MethodOnRequest)
		_, err := strategy.RegisterGrant(ctx, tx, s.Registry, GrantConfig{
			Policy:      p,
			EmployeeID:  req.EmployeeID,
			Type:        req.Payload.VacationType,
			Amount:      amount,
			GrantDate:   s.Clock.Today(),
			Description: req.Payload.Reason,
			Actor:       actor,
			Now:         s.Clock.Now(),
		})
		return err
	case KindUsage:
		_, err := s.registerUsageTx(ctx, tx, usageInput{
			Employee: req.EmployeeID,
			Type:     req.Payload.VacationType,
			Unit:     req.Payload.TimeUnit,
			Count:    req.Payload.Count,
			Start:    req.Payload.WindowStart,
			End:      req.Payload.WindowEnd,
			Actor:    actor,
		})
		return err
	default:
		return fmt.Errorf("unknown request kind %q", req.Kind)
	}
}

// =============================================================================
// USAGE
// =============================================================================

type usageInput struct {
	Employee EmployeeID
	Type     VacationType
	Unit     timeunit.Unit
	Count    int
	Start    time.Time
	End      time.Time
	Actor    Actor
}

// RegisterUsage quantizes the request and debits eligible grants,
// soonest-to-expire first. Concurrent debits against the same employee's
// buckets serialize through version-checked updates with bounded retries.
func (s *Service) RegisterUsage(ctx context.Context, employee EmployeeID, vtype VacationType, unit timeunit.Unit, count int, start, end time.Time, actor Actor) (UsageID, error) {
	if err := s.requireActiveEmployee(ctx, employee); err != nil {
		return "", err
	}
	in := usageInput{Employee: employee, Type: vtype, Unit: unit, Count: count, Start: start, End: end, Actor: actor}

	var id UsageID
	var err error
	for attempt := 0; attempt < debitRetries; attempt++ {
		err = s.Store.WithTx(ctx, func(tx Store) error {
			id, err = s.registerUsageTx(ctx, tx, in)
			return err
		})
		if !IsRetryable(err) {
			return id, err
		}
	}
	return "", err
}

func (s *Service) registerUsageTx(ctx context.Context, tx Store, in usageInput) (UsageID, error) {
	if in.End.Before(in.Start) {
		return "", fmt.Errorf("%w: end before start", ErrInvalidWindow)
	}
	amount, err := timeunit.Quantize(in.Unit, in.Count)
	if err != nil {
		return "", err
	}

	all, err := tx.ListGrants(ctx, in.Employee, in.Type)
	if err != nil {
		return "", err
	}
	day := DateOf(in.Start)
	var eligible []*Grant
	for _, g := range all {
		if g.UsableOn(day) {
			eligible = append(eligible, g)
		}
	}

	allocs, err := allocate(eligible, amount, in.Employee, in.Type)
	if err != nil {
		return "", err
	}
	for _, g := range eligible {
		// Only persist touched rows.
		for _, a := range allocs {
			if a.GrantID == g.ID {
				if err := tx.UpdateGrant(ctx, g); err != nil {
					return "", err
				}
				break
			}
		}
	}

	u := &Usage{
		ID:           UsageID(uuid.NewString()),
		EmployeeID:   in.Employee,
		VacationType: in.Type,
		TimeUnit:     in.Unit,
		Count:        in.Count,
		UsedTime:     amount,
		StartDate:    in.Start,
		EndDate:      in.End,
		Allocations:  allocs,
		CreatedBy:    in.Actor,
		CreatedAt:    s.Clock.Now(),
	}
	if err := tx.SaveUsage(ctx, u); err != nil {
		return "", err
	}
	return u.ID, nil
}

// DeleteUsage reverses every allocation and soft-marks the usage. Rejected
// when the absence already ended - historical balances cannot be inflated
// after the fact.
func (s *Service) DeleteUsage(ctx context.Context, id UsageID, actor Actor) error {
	return s.Store.WithTx(ctx, func(tx Store) error {
		u, err := tx.GetUsage(ctx, id)
		if err != nil {
			return err
		}
		if u.Deleted {
			return fmt.Errorf("%w: %s", ErrUsageNotFound, id)
		}
		if u.EndDate.Before(s.Clock.Now()) {
			return fmt.Errorf("%w: usage already ended, cannot delete", ErrInvalidWindow)
		}
		for _, a := range u.Allocations {
			g, err := tx.GetGrant(ctx, a.GrantID)
			if err != nil {
				return err
			}
			g.Restore(a.Amount)
			if err := tx.UpdateGrant(ctx, g); err != nil {
				return err
			}
		}
		now := s.Clock.Now()
		u.Deleted = true
		u.DeletedBy = &actor
		u.DeletedAt = &now
		return tx.UpdateUsage(ctx, u)
	})
}

// =============================================================================
// READ SIDE
// =============================================================================

// GrantSummary is one bucket in a balance view.
type GrantSummary struct {
	GrantID      GrantID
	PolicyID     PolicyID
	VacationType VacationType
	GrantTime    decimal.Decimal
	RemainTime   decimal.Decimal
	RemainLabel  string
	StartDate    Date
	ExpiryDate   Date
	Status       GrantStatus
	Description  string
}

// GetBalance lists an employee's buckets (optionally one type) with
// humanized remaining balances.
func (s *Service) GetBalance(ctx context.Context, employee EmployeeID, vtype VacationType) ([]GrantSummary, error) {
	if exists, err := s.Directory.EmployeeExists(ctx, employee); err != nil {
		return nil, err
	} else if !exists {
		return nil, fmt.Errorf("%w: %s", ErrEmployeeNotFound, employee)
	}
	grants, err := s.Store.ListGrants(ctx, employee, vtype)
	if err != nil {
		return nil, err
	}
	out := make([]GrantSummary, 0, len(grants))
	for _, g := range grants {
		label, err := timeunit.Humanize(g.RemainTime)
		if err != nil {
			return nil, fmt.Errorf("grant %s: %w", g.ID, err)
		}
		out = append(out, GrantSummary{
			GrantID:      g.ID,
			PolicyID:     g.PolicyID,
			VacationType: g.VacationType,
			GrantTime:    g.GrantTime,
			RemainTime:   g.RemainTime,
			RemainLabel:  label,
			StartDate:    g.StartDate,
			ExpiryDate:   g.ExpiryDate,
			Status:       g.Status,
			Description:  g.Description,
		})
	}
	return out, nil
}

// MonthlyUsageStats aggregates an employee's usages in one calendar month.
type MonthlyUsageStats struct {
	EmployeeID EmployeeID
	Year       int
	Month      time.Month
	TotalUsed  decimal.Decimal
	UsedLabel  string
	Count      int
	ByType     map[VacationType]decimal.Decimal
}

func (s *Service) GetMonthlyUsageStats(ctx context.Context, employee EmployeeID, year int, month time.Month) (*MonthlyUsageStats, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	usages, err := s.Store.ListUsages(ctx, employee, from, to)
	if err != nil {
		return nil, err
	}
	stats := &MonthlyUsageStats{
		EmployeeID: employee,
		Year:       year,
		Month:      month,
		TotalUsed:  decimal.Zero,
		ByType:     make(map[VacationType]decimal.Decimal),
	}
	for _, u := range usages {
		stats.TotalUsed = stats.TotalUsed.Add(u.UsedTime)
		stats.Count++
		cur := stats.ByType[u.VacationType]
		stats.ByType[u.VacationType] = cur.Add(u.UsedTime)
	}
	label, err := timeunit.Humanize(stats.TotalUsed)
	if err != nil {
		return nil, err
	}
	stats.UsedLabel = label
	return stats, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) requireActiveEmployee(ctx context.Context, id EmployeeID) error {
	exists, err := s.Directory.EmployeeExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrEmployeeNotFound, id)
	}
	active, err := s.Directory.EmployeeActive(ctx, id)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("%w: %s", ErrEmployeeInactive, id)
	}
	return nil
}
