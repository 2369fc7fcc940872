// Package store provides an in-memory engine.Store implementation,
// used by tests and local development.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/vacation-engine/engine"
)

// Memory implements engine.Store with maps. All reads return copies so
// callers cannot mutate stored state outside Update calls.
type Memory struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	policies map[engine.PolicyID]*engine.Policy
	trackers map[engine.TrackerID]*engine.ScheduleTracker
	grants   map[engine.GrantID]*engine.Grant
	usages   map[engine.UsageID]*engine.Usage
	requests map[engine.RequestID]*engine.ApprovalRequest
}

func NewMemory() *Memory {
	return &Memory{
		policies: make(map[engine.PolicyID]*engine.Policy),
		trackers: make(map[engine.TrackerID]*engine.ScheduleTracker),
		grants:   make(map[engine.GrantID]*engine.Grant),
		usages:   make(map[engine.UsageID]*engine.Usage),
		requests: make(map[engine.RequestID]*engine.ApprovalRequest),
	}
}

// =============================================================================
// POLICIES
// =============================================================================

func (m *Memory) SavePolicy(_ context.Context, p *engine.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.ID] = clonePolicy(p)
	return nil
}

func (m *Memory) UpdatePolicy(_ context.Context, p *engine.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[p.ID]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrPolicyNotFound, p.ID)
	}
	m.policies[p.ID] = clonePolicy(p)
	return nil
}

func (m *Memory) GetPolicy(_ context.Context, id engine.PolicyID) (*engine.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrPolicyNotFound, id)
	}
	return clonePolicy(p), nil
}

func (m *Memory) ListPolicies(_ context.Context, includeDeleted bool) ([]*engine.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.Policy
	for _, p := range m.policies {
		if p.Deleted && !includeDeleted {
			continue
		}
		out = append(out, clonePolicy(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) PolicyReferenced(_ context.Context, id engine.PolicyID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.grants {
		if g.PolicyID == id {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// TRACKERS
// =============================================================================

func (m *Memory) SaveTracker(_ context.Context, t *engine.ScheduleTracker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackers[t.ID] = cloneTracker(t)
	return nil
}

func (m *Memory) UpdateTracker(_ context.Context, t *engine.ScheduleTracker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trackers[t.ID]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrTrackerNotFound, t.ID)
	}
	m.trackers[t.ID] = cloneTracker(t)
	return nil
}

func (m *Memory) GetTracker(_ context.Context, employee engine.EmployeeID, policy engine.PolicyID) (*engine.ScheduleTracker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.trackers {
		if t.EmployeeID == employee && t.PolicyID == policy {
			return cloneTracker(t), nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", engine.ErrTrackerNotFound, employee, policy)
}

func (m *Memory) ListTrackers(_ context.Context) ([]*engine.ScheduleTracker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*engine.ScheduleTracker, 0, len(m.trackers))
	for _, t := range m.trackers {
		out = append(out, cloneTracker(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// GRANTS
// =============================================================================

func (m *Memory) SaveGrant(_ context.Context, g *engine.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[g.ID] = cloneGrant(g)
	return nil
}

// UpdateGrant enforces optimistic locking: the incoming version must match
// the stored row.
func (m *Memory) UpdateGrant(_ context.Context, g *engine.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.grants[g.ID]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrGrantNotFound, g.ID)
	}
	if stored.Version != g.Version {
		return engine.ErrConcurrentModification
	}
	g.Version++
	m.grants[g.ID] = cloneGrant(g)
	return nil
}

func (m *Memory) GetGrant(_ context.Context, id engine.GrantID) (*engine.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrGrantNotFound, id)
	}
	return cloneGrant(g), nil
}

func (m *Memory) ListGrants(_ context.Context, employee engine.EmployeeID, vtype engine.VacationType) ([]*engine.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.Grant
	for _, g := range m.grants {
		if g.EmployeeID != employee {
			continue
		}
		if vtype != "" && g.VacationType != vtype {
			continue
		}
		out = append(out, cloneGrant(g))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ListExpirable(_ context.Context, asOf engine.Date) ([]*engine.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.Grant
	for _, g := range m.grants {
		if g.Status == engine.GrantActive && g.ExpiryDate.Before(asOf) {
			out = append(out, cloneGrant(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// USAGES
// =============================================================================

func (m *Memory) SaveUsage(_ context.Context, u *engine.Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usages[u.ID] = cloneUsage(u)
	return nil
}

func (m *Memory) UpdateUsage(_ context.Context, u *engine.Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usages[u.ID]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrUsageNotFound, u.ID)
	}
	m.usages[u.ID] = cloneUsage(u)
	return nil
}

func (m *Memory) GetUsage(_ context.Context, id engine.UsageID) (*engine.Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.usages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUsageNotFound, id)
	}
	return cloneUsage(u), nil
}

func (m *Memory) ListUsages(_ context.Context, employee engine.EmployeeID, from, to time.Time) ([]*engine.Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.Usage
	for _, u := range m.usages {
		if u.EmployeeID != employee || u.Deleted {
			continue
		}
		if u.StartDate.Before(to) && !u.EndDate.Before(from) {
			out = append(out, cloneUsage(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) SaveRequest(_ context.Context, r *engine.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.ID] = cloneRequest(r)
	return nil
}

func (m *Memory) UpdateRequest(_ context.Context, r *engine.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrRequestNotFound, r.ID)
	}
	m.requests[r.ID] = cloneRequest(r)
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id engine.RequestID) (*engine.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrRequestNotFound, id)
	}
	return cloneRequest(r), nil
}

func (m *Memory) ListPendingRequests(_ context.Context) ([]*engine.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.ApprovalRequest
	for _, r := range m.requests {
		if r.Status == engine.RequestPending {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx serializes transactions with txMu: a rollback restores the
// snapshot taken under the same lock, so concurrent transactions cannot
// clobber each other's committed writes.
func (m *Memory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	policies map[engine.PolicyID]*engine.Policy
	trackers map[engine.TrackerID]*engine.ScheduleTracker
	grants   map[engine.GrantID]*engine.Grant
	usages   map[engine.UsageID]*engine.Usage
	requests map[engine.RequestID]*engine.ApprovalRequest
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := memorySnapshot{
		policies: make(map[engine.PolicyID]*engine.Policy, len(m.policies)),
		trackers: make(map[engine.TrackerID]*engine.ScheduleTracker, len(m.trackers)),
		grants:   make(map[engine.GrantID]*engine.Grant, len(m.grants)),
		usages:   make(map[engine.UsageID]*engine.Usage, len(m.usages)),
		requests: make(map[engine.RequestID]*engine.ApprovalRequest, len(m.requests)),
	}
	for k, v := range m.policies {
		s.policies[k] = clonePolicy(v)
	}
	for k, v := range m.trackers {
		s.trackers[k] = cloneTracker(v)
	}
	for k, v := range m.grants {
		s.grants[k] = cloneGrant(v)
	}
	for k, v := range m.usages {
		s.usages[k] = cloneUsage(v)
	}
	for k, v := range m.requests {
		s.requests[k] = cloneRequest(v)
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies = s.policies
	m.trackers = s.trackers
	m.grants = s.grants
	m.usages = s.usages
	m.requests = s.requests
}

// =============================================================================
// CLONES
// =============================================================================

func clonePolicy(p *engine.Policy) *engine.Policy {
	c := *p
	if p.GrantTime != nil {
		gt := *p.GrantTime
		c.GrantTime = &gt
	}
	c.Recurrence.SpecificMonths = append([]time.Month(nil), p.Recurrence.SpecificMonths...)
	c.Recurrence.SpecificDays = append([]int(nil), p.Recurrence.SpecificDays...)
	return &c
}

func cloneTracker(t *engine.ScheduleTracker) *engine.ScheduleTracker {
	c := *t
	if t.LastGrantedAt != nil {
		d := *t.LastGrantedAt
		c.LastGrantedAt = &d
	}
	return &c
}

func cloneGrant(g *engine.Grant) *engine.Grant {
	c := *g
	return &c
}

func cloneUsage(u *engine.Usage) *engine.Usage {
	c := *u
	c.Allocations = append([]engine.UsageAllocation(nil), u.Allocations...)
	if u.DeletedBy != nil {
		a := *u.DeletedBy
		c.DeletedBy = &a
	}
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func cloneRequest(r *engine.ApprovalRequest) *engine.ApprovalRequest {
	c := *r
	c.Slots = make([]engine.ApprovalSlot, len(r.Slots))
	for i, s := range r.Slots {
		c.Slots[i] = s
		if s.DecidedAt != nil {
			t := *s.DecidedAt
			c.Slots[i].DecidedAt = &t
		}
	}
	return &c
}
