/*
store.go - Persistence interfaces

PURPOSE:
  Defines the boundary between the engine and the database. One interface
  per entity family, composed into Store; implementations exist for SQLite
  (store/sqlite) and in-memory (engine/store, used by tests).

OPTIMISTIC LOCKING:
  UpdateGrant compares the grant's Version against the stored row and
  fails with ErrConcurrentModification on mismatch, incrementing the
  version on success. This is the serialization point for concurrent
  debits against the same employee's buckets.

TRANSACTIONS:
  WithTx runs fn against a transactional view; an error rolls everything
  back. Approval decisions and usage writes use it so slot updates,
  grant debits and usage rows commit or vanish together.
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// PER-ENTITY STORES
// =============================================================================

type PolicyStore interface {
	SavePolicy(ctx context.Context, p *Policy) error
	UpdatePolicy(ctx context.Context, p *Policy) error
	GetPolicy(ctx context.Context, id PolicyID) (*Policy, error)
	ListPolicies(ctx context.Context, includeDeleted bool) ([]*Policy, error)

	// PolicyReferenced reports whether any grant references the policy;
	// referenced policies freeze their core fields.
	PolicyReferenced(ctx context.Context, id PolicyID) (bool, error)
}

type TrackerStore interface {
	SaveTracker(ctx context.Context, t *ScheduleTracker) error
	UpdateTracker(ctx context.Context, t *ScheduleTracker) error
	GetTracker(ctx context.Context, employee EmployeeID, policy PolicyID) (*ScheduleTracker, error)
	ListTrackers(ctx context.Context) ([]*ScheduleTracker, error)
}

type GrantStore interface {
	SaveGrant(ctx context.Context, g *Grant) error

	// UpdateGrant is version-checked: mismatch returns
	// ErrConcurrentModification, success increments g.Version.
	UpdateGrant(ctx context.Context, g *Grant) error

	GetGrant(ctx context.Context, id GrantID) (*Grant, error)

	// ListGrants returns an employee's grants, optionally filtered by type
	// (empty vtype = all), ordered by ascending expiry date.
	ListGrants(ctx context.Context, employee EmployeeID, vtype VacationType) ([]*Grant, error)

	// ListExpirable returns every ACTIVE grant whose expiry date is before asOf.
	ListExpirable(ctx context.Context, asOf Date) ([]*Grant, error)
}

type UsageStore interface {
	SaveUsage(ctx context.Context, u *Usage) error
	UpdateUsage(ctx context.Context, u *Usage) error
	GetUsage(ctx context.Context, id UsageID) (*Usage, error)

	// ListUsages returns non-deleted usages overlapping [from, to).
	ListUsages(ctx context.Context, employee EmployeeID, from, to time.Time) ([]*Usage, error)
}

type RequestStore interface {
	SaveRequest(ctx context.Context, r *ApprovalRequest) error
	UpdateRequest(ctx context.Context, r *ApprovalRequest) error
	GetRequest(ctx context.Context, id RequestID) (*ApprovalRequest, error)
	ListPendingRequests(ctx context.Context) ([]*ApprovalRequest, error)
}

// =============================================================================
// COMPOSED STORE
// =============================================================================

// Store is the full persistence surface the engine depends on.
type Store interface {
	PolicyStore
	TrackerStore
	GrantStore
	UsageStore
	RequestStore

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
