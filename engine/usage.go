/*
usage.go - Usage records (debits against grant buckets)

PURPOSE:
  A Usage is one concrete absence, quantized into decimal days and debited
  against one or more grant buckets. The allocation list records exactly
  how much came out of each bucket so deletion can restore row-for-row.

DELETION:
  Deleting a usage reverses every allocation on its referenced grants and
  soft-marks the usage. Deletion is rejected when the absence has already
  ended - a completed historical absence cannot be un-recorded to
  fabricate balance.

SEE ALSO:
  - service.go: RegisterUsage / DeleteUsage orchestration
  - timeunit: the quantization table
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/timeunit"
)

// =============================================================================
// USAGE - One debit record
// =============================================================================

// UsageAllocation records the amount debited from a single grant bucket.
type UsageAllocation struct {
	GrantID GrantID
	Amount  decimal.Decimal
}

type Usage struct {
	ID         UsageID
	EmployeeID EmployeeID

	VacationType VacationType

	// TimeUnit/Count are the granular request; UsedTime is its quantized
	// decimal-day value.
	TimeUnit timeunit.Unit
	Count    int
	UsedTime decimal.Decimal

	// The actual absence window.
	StartDate time.Time
	EndDate   time.Time

	Allocations []UsageAllocation

	Deleted bool

	CreatedBy Actor
	CreatedAt time.Time
	DeletedBy *Actor
	DeletedAt *time.Time
}

// allocate spreads amount across grants ordered soonest-to-expire first,
// mutating each touched grant's RemainTime. Returns the allocation list or
// an InsufficientBalanceError without touching any grant.
func allocate(grants []*Grant, amount decimal.Decimal, employee EmployeeID, vtype VacationType) ([]UsageAllocation, error) {
	available := decimal.Zero
	for _, g := range grants {
		available = available.Add(g.RemainTime)
	}
	if available.LessThan(amount) {
		return nil, &InsufficientBalanceError{
			EmployeeID: employee,
			Type:       vtype,
			Available:  available,
			Requested:  amount,
		}
	}

	var allocs []UsageAllocation
	remaining := amount
	for _, g := range grants {
		if remaining.IsZero() {
			break
		}
		take := g.RemainTime
		if take.GreaterThan(remaining) {
			take = remaining
		}
		if take.IsZero() {
			continue
		}
		if err := g.Debit(take); err != nil {
			return nil, err
		}
		allocs = append(allocs, UsageAllocation{GrantID: g.ID, Amount: take})
		remaining = remaining.Sub(take)
	}
	return allocs, nil
}
