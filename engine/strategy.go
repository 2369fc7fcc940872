/*
strategy.go - Per-grant-method strategies

PURPOSE:
  Each grant method behaves differently at two points: policy construction
  (which recurrence fields are legal) and grant registration (how a bucket
  comes into being). One strategy per method, selected through a small
  factory keyed on the GrantMethod enum - no subtype inheritance.

STRATEGIES:
  OnRequest:   recurrence forced empty; grants materialize from approved
               requests and merge into same-year buckets for accrual types
  ManualGrant: recurrence forced empty; an administrator mints the bucket
               directly, optionally with an explicit validity window
  RepeatGrant: recurrence validated; buckets minted by the daily scheduler
               with windows derived from the policy

SEE ALSO:
  - policy.go: validation rules per method
  - service.go: wires the factory into the exposed operations
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// GRANT CONFIG - Input to grant registration
// =============================================================================

// GrantConfig carries everything needed to mint one bucket.
type GrantConfig struct {
	Policy     *Policy // nil for ad-hoc manual grants
	EmployeeID EmployeeID
	Type       VacationType
	Amount     decimal.Decimal
	GrantDate  Date

	// Explicit window; zero values fall back to the policy's
	// effective/expiration computation.
	StartDate  Date
	ExpiryDate Date

	Description string
	Actor       Actor
	Now         time.Time
}

// GrantStrategy is the per-method behavior behind registerGrant.
type GrantStrategy interface {
	Method() GrantMethod

	// NormalizePolicy is the construction entry point: it forces or
	// validates the recurrence fields for this method.
	NormalizePolicy(p *Policy) error

	// RegisterGrant mints (or merges) one bucket and returns its id.
	RegisterGrant(ctx context.Context, store Store, registry *TypeRegistry, cfg GrantConfig) (GrantID, error)
}

// =============================================================================
// FACTORY
// =============================================================================

// StrategyFactory resolves a strategy from the policy's grant method.
// Built once at startup; never mutated.
type StrategyFactory struct {
	byMethod map[GrantMethod]GrantStrategy
}

func NewStrategyFactory() *StrategyFactory {
	return &StrategyFactory{byMethod: map[GrantMethod]GrantStrategy{
		MethodOnRequest:   onRequestStrategy{},
		MethodManualGrant: manualGrantStrategy{},
		MethodRepeatGrant: repeatGrantStrategy{},
	}}
}

func (f *StrategyFactory) For(m GrantMethod) (GrantStrategy, error) {
	s, ok := f.byMethod[m]
	if !ok {
		return nil, &ConfigError{Field: "grantMethod", Constraint: fmt.Sprintf("unknown method %q", m)}
	}
	return s, nil
}

// =============================================================================
// ON_REQUEST
// =============================================================================

type onRequestStrategy struct{}

func (onRequestStrategy) Method() GrantMethod { return MethodOnRequest }

func (onRequestStrategy) NormalizePolicy(p *Policy) error {
	p.Recurrence = Recurrence{}
	return p.Validate()
}

// RegisterGrant materializes an approved request. Accrual-style types top
// up an existing same-year ACTIVE bucket instead of creating a sibling.
func (onRequestStrategy) RegisterGrant(ctx context.Context, store Store, registry *TypeRegistry, cfg GrantConfig) (GrantID, error) {
	if registry.Style(cfg.Type) == AccrualMerge {
		grants, err := store.ListGrants(ctx, cfg.EmployeeID, cfg.Type)
		if err != nil {
			return "", err
		}
		for _, g := range grants {
			if g.Status == GrantActive && g.OccurDate.Year() == cfg.GrantDate.Year() {
				g.TopUp(cfg.Amount)
				if err := store.UpdateGrant(ctx, g); err != nil {
					return "", err
				}
				return g.ID, nil
			}
		}
	}
	return mintGrant(ctx, store, cfg)
}

// =============================================================================
// MANUAL_GRANT
// =============================================================================

type manualGrantStrategy struct{}

func (manualGrantStrategy) Method() GrantMethod { return MethodManualGrant }

func (manualGrantStrategy) NormalizePolicy(p *Policy) error {
	p.Recurrence = Recurrence{}
	return p.Validate()
}

func (manualGrantStrategy) RegisterGrant(ctx context.Context, store Store, _ *TypeRegistry, cfg GrantConfig) (GrantID, error) {
	return mintGrant(ctx, store, cfg)
}

// =============================================================================
// REPEAT_GRANT
// =============================================================================

type repeatGrantStrategy struct{}

func (repeatGrantStrategy) Method() GrantMethod { return MethodRepeatGrant }

func (repeatGrantStrategy) NormalizePolicy(p *Policy) error {
	return p.Validate()
}

func (repeatGrantStrategy) RegisterGrant(ctx context.Context, store Store, _ *TypeRegistry, cfg GrantConfig) (GrantID, error) {
	return mintGrant(ctx, store, cfg)
}

// =============================================================================
// COMMON MINT PATH
// =============================================================================

func mintGrant(ctx context.Context, store Store, cfg GrantConfig) (GrantID, error) {
	start := cfg.StartDate
	expiry := cfg.ExpiryDate
	if start.IsZero() {
		if cfg.Policy != nil {
			start = cfg.Policy.StartDateFor(cfg.GrantDate)
		} else {
			start = cfg.GrantDate
		}
	}
	if expiry.IsZero() {
		if cfg.Policy != nil {
			expiry = cfg.Policy.ExpiryDateFor(start)
		} else {
			expiry = start.EndOfYear()
		}
	}
	if expiry.Before(start) {
		return "", fmt.Errorf("%w: expiry %s before start %s", ErrInvalidWindow, expiry, start)
	}

	g := &Grant{
		ID:           GrantID(uuid.NewString()),
		EmployeeID:   cfg.EmployeeID,
		VacationType: cfg.Type,
		GrantTime:    cfg.Amount,
		RemainTime:   cfg.Amount,
		OccurDate:    cfg.GrantDate,
		StartDate:    start,
		ExpiryDate:   expiry,
		Status:       GrantActive,
		Description:  cfg.Description,
		CreatedBy:    cfg.Actor,
		CreatedAt:    cfg.Now,
	}
	if cfg.Policy != nil {
		g.PolicyID = cfg.Policy.ID
	}
	if err := store.SaveGrant(ctx, g); err != nil {
		return "", err
	}
	return g.ID, nil
}
