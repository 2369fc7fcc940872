/*
Package engine implements the vacation entitlement engine.

PURPOSE:
  Policies describe how a category of leave is granted and when it expires.
  Grants are time-bounded entitlement buckets with their own remaining
  balance. Usages debit grants through an exact decimal-day quantization.
  A daily scheduler expires stale buckets and issues recurring grants, and
  an approval workflow gates request-based leave.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed identifiers: EmployeeID, PolicyID, GrantID, UsageID, RequestID
  - VacationType + TypeRegistry: configured leave categories
  - Directory: the external employee-directory collaborator
  - Actor: explicit audit context threaded through every write path

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every balance, no floats
  2. Type safety: IDs cannot be mixed accidentally
  3. Explicitness: audit context and registries are passed in, never global

SEE ALSO:
  - policy.go: policy definition and validation
  - grant.go / usage.go: the two ledgers
  - scheduler.go: the daily batch jobs
*/
package engine

import "context"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type PolicyID string
type GrantID string
type UsageID string
type RequestID string
type TrackerID string

// DepartmentRef identifies a department in the external directory.
type DepartmentRef string

// =============================================================================
// VACATION TYPES - Configured leave categories
// =============================================================================

// VacationType tags a category of leave (annual, maternity, wedding, ...).
type VacationType string

// AccrualStyle controls how ON_REQUEST grants of a type materialize.
type AccrualStyle string

const (
	// AccrualDiscrete: every grant creates its own bucket.
	AccrualDiscrete AccrualStyle = "discrete"

	// AccrualMerge: a same-type, same-year ACTIVE bucket is topped up
	// instead of duplicated. Used for accrual categories such as overtime
	// compensation where many small grants accumulate.
	AccrualMerge AccrualStyle = "merge"
)

// VacationTypeDef describes one configured leave category.
type VacationTypeDef struct {
	Type  VacationType
	Style AccrualStyle
	Label string
}

// TypeRegistry is the closed set of leave categories for a deployment.
// It is built once at startup and passed by reference; there is no global
// registration and nothing mutates it afterwards.
type TypeRegistry struct {
	defs map[VacationType]VacationTypeDef
}

func NewTypeRegistry(defs ...VacationTypeDef) *TypeRegistry {
	m := make(map[VacationType]VacationTypeDef, len(defs))
	for _, d := range defs {
		m[d.Type] = d
	}
	return &TypeRegistry{defs: m}
}

func (r *TypeRegistry) Known(t VacationType) bool {
	_, ok := r.defs[t]
	return ok
}

func (r *TypeRegistry) Style(t VacationType) AccrualStyle {
	if d, ok := r.defs[t]; ok {
		return d.Style
	}
	return AccrualDiscrete
}

func (r *TypeRegistry) All() []VacationTypeDef {
	out := make([]VacationTypeDef, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}

// DefaultTypes is the standard category list used by cmd/server; deployments
// replace it with their own configuration.
func DefaultTypes() []VacationTypeDef {
	return []VacationTypeDef{
		{Type: "annual", Style: AccrualDiscrete, Label: "Annual leave"},
		{Type: "maternity", Style: AccrualDiscrete, Label: "Maternity leave"},
		{Type: "wedding", Style: AccrualDiscrete, Label: "Wedding leave"},
		{Type: "sick", Style: AccrualDiscrete, Label: "Sick leave"},
		{Type: "overtime", Style: AccrualMerge, Label: "Overtime compensation"},
	}
}

// =============================================================================
// DIRECTORY - External employee-directory collaborator
// =============================================================================

// Directory is the read-only view of the employee directory the engine
// consumes. Identity and lifecycle live elsewhere.
type Directory interface {
	EmployeeExists(ctx context.Context, id EmployeeID) (bool, error)
	EmployeeActive(ctx context.Context, id EmployeeID) (bool, error)
	EmployeeDepartment(ctx context.Context, id EmployeeID) (DepartmentRef, error)

	// IsDepartmentHead reports whether the employee holds the department-head
	// capability for the given department. Used for approver authorization.
	IsDepartmentHead(ctx context.Context, id EmployeeID, dept DepartmentRef) (bool, error)
}

// =============================================================================
// ACTOR - Explicit audit context on every write path
// =============================================================================

// ActorType classifies who performed a write.
type ActorType string

const (
	ActorEmployee ActorType = "employee"
	ActorManager  ActorType = "manager"
	ActorAdmin    ActorType = "admin"
	ActorSystem   ActorType = "system"
)

// Actor is supplied by the caller on every mutating operation. No listener
// or interceptor fills these in implicitly.
type Actor struct {
	ID   string
	Type ActorType
	IP   string
}

// SystemActor is used by the daily scheduler.
func SystemActor() Actor {
	return Actor{ID: "scheduler", Type: ActorSystem}
}
