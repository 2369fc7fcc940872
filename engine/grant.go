/*
grant.go - Grant buckets (the entitlement ledger)

PURPOSE:
  A Grant is one time-bounded pool of entitlement: its original amount,
  its remaining balance, its validity window and its lifecycle state.
  Balances never live anywhere else; every debit and restore goes through
  a grant's RemainTime under the 0 <= RemainTime <= GrantTime invariant.

LIFECYCLE:
  ACTIVE -> EXPIRED, driven only by expiryDate < today. Terminal; an
  expired bucket's remaining time simply becomes unusable.

CONCURRENCY:
  Grants carry a Version column. Stores reject an update whose version
  does not match the stored row (ErrConcurrentModification), and the
  usage path retries its selection-and-debit loop on that signal.
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// GRANT - One entitlement bucket
// =============================================================================

type GrantStatus string

const (
	GrantActive  GrantStatus = "ACTIVE"
	GrantExpired GrantStatus = "EXPIRED"
)

type Grant struct {
	ID         GrantID
	EmployeeID EmployeeID

	// PolicyID is empty for ad-hoc manual grants.
	PolicyID PolicyID

	VacationType VacationType

	// GrantTime is the original amount in decimal days; RemainTime is the
	// mutable remaining balance, monotonically non-increasing outside of
	// usage deletion and admin correction.
	GrantTime  decimal.Decimal
	RemainTime decimal.Decimal

	// OccurDate is the day the grant was issued; StartDate/ExpiryDate bound
	// the validity window.
	OccurDate  Date
	StartDate  Date
	ExpiryDate Date

	Status      GrantStatus
	Description string

	// Version supports optimistic locking on debit/restore.
	Version int

	CreatedBy Actor
	CreatedAt time.Time
}

// UsableOn reports whether the bucket can cover leave on the given day.
func (g *Grant) UsableOn(day Date) bool {
	return g.Status == GrantActive &&
		g.RemainTime.IsPositive() &&
		g.StartDate.BeforeOrEqual(day) &&
		day.BeforeOrEqual(g.ExpiryDate)
}

// Debit reduces the remaining balance. The caller has already verified the
// amount fits; a violation here means the invariant was broken upstream.
func (g *Grant) Debit(amount decimal.Decimal) error {
	next := g.RemainTime.Sub(amount)
	if next.IsNegative() {
		return &InsufficientBalanceError{
			EmployeeID: g.EmployeeID,
			Type:       g.VacationType,
			Available:  g.RemainTime,
			Requested:  amount,
		}
	}
	g.RemainTime = next
	return nil
}

// Restore returns a previously debited amount, capped by the invariant
// RemainTime <= GrantTime.
func (g *Grant) Restore(amount decimal.Decimal) {
	next := g.RemainTime.Add(amount)
	if next.GreaterThan(g.GrantTime) {
		next = g.GrantTime
	}
	g.RemainTime = next
}

// TopUp raises both the original and remaining amount. Used when an
// accrual-style grant merges into an existing same-year bucket.
func (g *Grant) TopUp(amount decimal.Decimal) {
	g.GrantTime = g.GrantTime.Add(amount)
	g.RemainTime = g.RemainTime.Add(amount)
}

// Expire transitions the bucket to its terminal state. Idempotent.
func (g *Grant) Expire() {
	g.Status = GrantExpired
}
