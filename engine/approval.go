/*
approval.go - Approval workflow for request-based leave

PURPOSE:
  ON_REQUEST leave goes through an ordered list of approver slots. The
  request finalizes (and the grant materializes) only once every slot is
  APPROVED; a single REJECTED closes the chain with no side effect.

STATE MACHINE:
  Per slot:    PENDING -> APPROVED | REJECTED (terminal per slot)
  Per request: derived from slots - all approved => APPROVED,
               any rejected => REJECTED, else PENDING.
               CANCELLED only while every slot is still PENDING.

SEQUENTIAL MODE:
  When the request mandates sequential approval, a later-ordered slot
  cannot be decided while an earlier one is still pending.

MATERIALIZATION:
  Exactly-once: the Materialized flag is checked and set inside the same
  store transaction that records the final slot decision, so two approvers
  racing into "all approved" cannot both mint the grant.
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/timeunit"
)

// =============================================================================
// APPROVAL REQUEST
// =============================================================================

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCancelled RequestStatus = "CANCELLED"
)

// ApprovalSlot is one required approver's decision.
type ApprovalSlot struct {
	Approver  EmployeeID
	Order     int
	Status    ApprovalStatus
	Reason    string
	DecidedAt *time.Time
}

// RequestKind says what materializes on full approval: a new entitlement
// bucket (e.g. overtime compensation) or a usage debit against existing
// buckets.
type RequestKind string

const (
	KindGrant RequestKind = "grant"
	KindUsage RequestKind = "usage"
)

// LeavePayload describes the leave the request asks for. It is applied
// verbatim on materialization.
type LeavePayload struct {
	VacationType VacationType
	TimeUnit     timeunit.Unit
	Count        int
	Amount       decimal.Decimal // quantized at submission
	WindowStart  time.Time
	WindowEnd    time.Time
	Reason       string
}

type ApprovalRequest struct {
	ID         RequestID
	EmployeeID EmployeeID
	Kind       RequestKind
	PolicyID   PolicyID
	Payload    LeavePayload

	// Sequential mandates in-order slot decisions.
	Sequential bool

	Slots []ApprovalSlot

	Status RequestStatus

	// Materialized guards exactly-once grant creation.
	Materialized bool

	CreatedBy Actor
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeriveStatus recomputes the overall status from the slots. Cancellation
// is sticky; it is set explicitly, never derived.
func (r *ApprovalRequest) DeriveStatus() RequestStatus {
	if r.Status == RequestCancelled {
		return RequestCancelled
	}
	approved := 0
	for _, s := range r.Slots {
		switch s.Status {
		case ApprovalRejected:
			return RequestRejected
		case ApprovalApproved:
			approved++
		}
	}
	if approved == len(r.Slots) {
		return RequestApproved
	}
	return RequestPending
}

// slotIndex finds the acting approver's slot.
func (r *ApprovalRequest) slotIndex(approver EmployeeID) int {
	for i := range r.Slots {
		if r.Slots[i].Approver == approver {
			return i
		}
	}
	return -1
}

// Decide records one approver's decision, enforcing authorization, terminal
// slots, sequential ordering and the rejection-reason rule. The caller
// persists the request and handles materialization.
func (r *ApprovalRequest) Decide(approver EmployeeID, approve bool, reason string, at time.Time) error {
	if r.Status == RequestRejected || r.Status == RequestApproved || r.Status == RequestCancelled {
		return ErrRequestClosed
	}
	idx := r.slotIndex(approver)
	if idx < 0 {
		return ErrUnauthorizedApprover
	}
	slot := &r.Slots[idx]
	if slot.Status != ApprovalPending {
		return ErrAlreadyDecided
	}
	if r.Sequential {
		for i := range r.Slots {
			if r.Slots[i].Order < slot.Order && r.Slots[i].Status == ApprovalPending {
				return ErrOutOfSequenceApproval
			}
		}
	}
	if !approve && reason == "" {
		return ErrRejectionWithoutReason
	}

	if approve {
		slot.Status = ApprovalApproved
	} else {
		slot.Status = ApprovalRejected
	}
	slot.Reason = reason
	slot.DecidedAt = &at

	r.Status = r.DeriveStatus()
	r.UpdatedAt = at
	return nil
}

// Cancel withdraws the request. Permitted only while no decision has been
// recorded on any slot.
func (r *ApprovalRequest) Cancel(at time.Time) error {
	if r.Status != RequestPending {
		return ErrRequestClosed
	}
	for _, s := range r.Slots {
		if s.Status != ApprovalPending {
			return ErrRequestNotCancelable
		}
	}
	r.Status = RequestCancelled
	r.UpdatedAt = at
	return nil
}

// newSlots validates and builds the ordered slot list from an approver list.
func newSlots(approvers []EmployeeID) ([]ApprovalSlot, error) {
	if len(approvers) == 0 {
		return nil, ErrNoApprovers
	}
	seen := make(map[EmployeeID]bool, len(approvers))
	slots := make([]ApprovalSlot, len(approvers))
	for i, a := range approvers {
		if seen[a] {
			return nil, ErrDuplicateApprover
		}
		seen[a] = true
		slots[i] = ApprovalSlot{Approver: a, Order: i + 1, Status: ApprovalPending}
	}
	return slots, nil
}
