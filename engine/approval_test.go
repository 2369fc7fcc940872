package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vacation-engine/engine"
	"github.com/warp/vacation-engine/timeunit"
)

// =============================================================================
// SETUP
// =============================================================================

// submitLeave creates an ON_REQUEST policy and submits a usage-kind leave
// request for emp-1 with the given approvers.
func submitLeave(t *testing.T, svc *engine.Service, approvers []engine.EmployeeID, sequential bool) engine.RequestID {
	t.Helper()
	ctx := context.Background()

	p := &engine.Policy{
		Name:         "requested annual",
		VacationType: "annual",
		GrantMethod:  engine.MethodOnRequest,
		Approval:     engine.ApprovalRule{Sequential: sequential},
	}
	policyID, err := svc.CreatePolicy(ctx, p, admin())
	require.NoError(t, err)

	id, err := svc.SubmitOnRequestLeave(ctx, engine.LeaveSubmission{
		EmployeeID: "emp-1",
		PolicyID:   policyID,
		TimeUnit:   timeunit.DayOff,
		Count:      1,
		Window:     [2]time.Time{at(2025, time.July, 1, 9), at(2025, time.July, 1, 18)},
		Reason:     "summer vacation",
		Approvers:  approvers,
	}, engine.Actor{ID: "emp-1", Type: engine.ActorEmployee})
	require.NoError(t, err)
	return id
}

func grantDays(t *testing.T, svc *engine.Service, days string) {
	t.Helper()
	_, err := svc.ManualGrant(context.Background(), "emp-1", "annual", dec(days),
		engine.Date{}, engine.Date{}, "", "", admin())
	require.NoError(t, err)
}

// =============================================================================
// SUBMISSION RULES
// =============================================================================

func TestSubmitLeave_ReasonRequired(t *testing.T) {
	dir := newFakeDirectory("emp-1", "mgr-1")
	svc, _ := newTestService(dir)
	ctx := context.Background()

	p := &engine.Policy{
		Name:         "requested annual",
		VacationType: "annual",
		GrantMethod:  engine.MethodOnRequest,
	}
	policyID, err := svc.CreatePolicy(ctx, p, admin())
	require.NoError(t, err)

	_, err = svc.SubmitOnRequestLeave(ctx, engine.LeaveSubmission{
		EmployeeID: "emp-1",
		PolicyID:   policyID,
		TimeUnit:   timeunit.DayOff,
		Count:      1,
		Window:     [2]time.Time{at(2025, time.July, 1, 9), at(2025, time.July, 1, 18)},
		Approvers:  []engine.EmployeeID{"mgr-1"},
	}, engine.Actor{ID: "emp-1", Type: engine.ActorEmployee})
	assert.ErrorIs(t, err, engine.ErrReasonRequired)
}

func TestSubmitLeave_DuplicateApprovers_Rejected(t *testing.T) {
	dir := newFakeDirectory("emp-1", "mgr-1")
	svc, _ := newTestService(dir)
	ctx := context.Background()

	p := &engine.Policy{
		Name:         "requested annual",
		VacationType: "annual",
		GrantMethod:  engine.MethodOnRequest,
	}
	policyID, err := svc.CreatePolicy(ctx, p, admin())
	require.NoError(t, err)

	_, err = svc.SubmitOnRequestLeave(ctx, engine.LeaveSubmission{
		EmployeeID: "emp-1",
		PolicyID:   policyID,
		TimeUnit:   timeunit.DayOff,
		Count:      1,
		Window:     [2]time.Time{at(2025, time.July, 1, 9), at(2025, time.July, 1, 18)},
		Reason:     "summer vacation",
		Approvers:  []engine.EmployeeID{"mgr-1", "mgr-1"},
	}, engine.Actor{ID: "emp-1", Type: engine.ActorEmployee})
	assert.ErrorIs(t, err, engine.ErrDuplicateApprover)
}

func TestSubmitLeave_DepartmentHeadRule(t *testing.T) {
	// GIVEN: A policy requiring department-head approvers
	// WHEN: A non-head and then a head of the requester's department approve
	// THEN: Only the head passes authorization at submission

	dir := newFakeDirectory("emp-1", "mgr-1", "head-1")
	dir.heads["head-1"] = "eng"
	svc, _ := newTestService(dir)
	ctx := context.Background()

	p := &engine.Policy{
		Name:         "requested annual",
		VacationType: "annual",
		GrantMethod:  engine.MethodOnRequest,
		Approval:     engine.ApprovalRule{RequireDepartmentHead: true},
	}
	policyID, err := svc.CreatePolicy(ctx, p, admin())
	require.NoError(t, err)

	sub := engine.LeaveSubmission{
		EmployeeID: "emp-1",
		PolicyID:   policyID,
		TimeUnit:   timeunit.DayOff,
		Count:      1,
		Window:     [2]time.Time{at(2025, time.July, 1, 9), at(2025, time.July, 1, 18)},
		Reason:     "summer vacation",
		Approvers:  []engine.EmployeeID{"mgr-1"},
	}
	actor := engine.Actor{ID: "emp-1", Type: engine.ActorEmployee}

	_, err = svc.SubmitOnRequestLeave(ctx, sub, actor)
	assert.ErrorIs(t, err, engine.ErrUnauthorizedApprover)

	sub.Approvers = []engine.EmployeeID{"head-1"}
	_, err = svc.SubmitOnRequestLeave(ctx, sub, actor)
	assert.NoError(t, err)
}

// =============================================================================
// DECISIONS
// =============================================================================

func TestDecideApproval_TwoApprovers_MaterializesOnFullApprovalOnly(t *testing.T) {
	// GIVEN: A usage-kind request with two approvers and enough balance
	// WHEN: The first approves, then the second
	// THEN: The usage materializes only after the second decision

	dir := newFakeDirectory("emp-1", "mgr-1", "mgr-2")
	svc, mem := newTestService(dir)
	ctx := context.Background()

	grantDays(t, svc, "5")
	reqID := submitLeave(t, svc, []engine.EmployeeID{"mgr-1", "mgr-2"}, false)

	mgr1 := engine.Actor{ID: "mgr-1", Type: engine.ActorManager}
	require.NoError(t, svc.DecideApproval(ctx, reqID, "mgr-1", true, "", mgr1))

	req, err := mem.GetRequest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, engine.RequestPending, req.Status)
	assert.False(t, req.Materialized)

	// Balance untouched while pending.
	grants, err := mem.ListGrants(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.True(t, grants[0].RemainTime.Equal(dec("5")))

	mgr2 := engine.Actor{ID: "mgr-2", Type: engine.ActorManager}
	require.NoError(t, svc.DecideApproval(ctx, reqID, "mgr-2", true, "", mgr2))

	req, err = mem.GetRequest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, engine.RequestApproved, req.Status)
	assert.True(t, req.Materialized)

	grants, err = mem.ListGrants(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.True(t, grants[0].RemainTime.Equal(dec("4")))
}

func TestDecideApproval_Rejection_ClosesChain(t *testing.T) {
	// GIVEN: A two-approver request
	// WHEN: The first rejects with a reason
	// THEN: The request is terminally rejected; the second cannot decide
	//       and nothing ever materializes

	dir := newFakeDirectory("emp-1", "mgr-1", "mgr-2")
	svc, mem := newTestService(dir)
	ctx := context.Background()

	grantDays(t, svc, "5")
	reqID := submitLeave(t, svc, []engine.EmployeeID{"mgr-1", "mgr-2"}, false)

	mgr1 := engine.Actor{ID: "mgr-1", Type: engine.ActorManager}
	require.NoError(t, svc.DecideApproval(ctx, reqID, "mgr-1", false, "team is understaffed", mgr1))

	mgr2 := engine.Actor{ID: "mgr-2", Type: engine.ActorManager}
	err := svc.DecideApproval(ctx, reqID, "mgr-2", true, "", mgr2)
	assert.ErrorIs(t, err, engine.ErrRequestClosed)

	req, err := mem.GetRequest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, engine.RequestRejected, req.Status)
	assert.False(t, req.Materialized)

	grants, err := mem.ListGrants(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.True(t, grants[0].RemainTime.Equal(dec("5")))
}

func TestDecideApproval_RejectionRequiresReason(t *testing.T) {
	dir := newFakeDirectory("emp-1", "mgr-1")
	svc, _ := newTestService(dir)

	grantDays(t, svc, "5")
	reqID := submitLeave(t, svc, []engine.EmployeeID{"mgr-1"}, false)

	mgr1 := engine.Actor{ID: "mgr-1", Type: engine.ActorManager}
	err := svc.DecideApproval(context.Background(), reqID, "mgr-1", false, "", mgr1)
	assert.ErrorIs(t, err, engine.ErrRejectionWithoutReason)
}

func TestDecideApproval_Sequential_EnforcesOrder(t *testing.T) {
	dir := newFakeDirectory("emp-1", "mgr-1", "mgr-2")
	svc, _ := newTestService(dir)
	ctx := context.Background()

	grantDays(t, svc, "5")
	reqID := submitLeave(t, svc, []engine.EmployeeID{"mgr-1", "mgr-2"}, true)

	mgr2 := engine.Actor{ID: "mgr-2", Type: engine.ActorManager}
	err := svc.DecideApproval(ctx, reqID, "mgr-2", true, "", mgr2)
	assert.ErrorIs(t, err, engine.ErrOutOfSequenceApproval)

	mgr1 := engine.Actor{ID: "mgr-1", Type: engine.ActorManager}
	require.NoError(t, svc.DecideApproval(ctx, reqID, "mgr-1", true, "", mgr1))
	require.NoError(t, svc.DecideApproval(ctx, reqID, "mgr-2", true, "", mgr2))
}

func TestDecideApproval_UnauthorizedApprover(t *testing.T) {
	dir := newFakeDirectory("emp-1", "mgr-1", "intruder")
	svc, _ := newTestService(dir)

	grantDays(t, svc, "5")
	reqID := submitLeave(t, svc, []engine.EmployeeID{"mgr-1"}, false)

	err := svc.DecideApproval(context.Background(), reqID, "intruder", true, "",
		engine.Actor{ID: "intruder", Type: engine.ActorManager})
	assert.ErrorIs(t, err, engine.ErrUnauthorizedApprover)
}

func TestDecideApproval_DoubleDecision_Rejected(t *testing.T) {
	dir := newFakeDirectory("emp-1", "mgr-1", "mgr-2")
	svc, _ := newTestService(dir)
	ctx := context.Background()

	grantDays(t, svc, "5")
	reqID := submitLeave(t, svc, []engine.EmployeeID{"mgr-1", "mgr-2"}, false)

	mgr1 := engine.Actor{ID: "mgr-1", Type: engine.ActorManager}
	require.NoError(t, svc.DecideApproval(ctx, reqID, "mgr-1", true, "", mgr1))
	err := svc.DecideApproval(ctx, reqID, "mgr-1", true, "", mgr1)
	assert.ErrorIs(t, err, engine.ErrAlreadyDecided)
}

func TestDecideApproval_InsufficientBalance_RollsBackDecision(t *testing.T) {
	// GIVEN: A single-approver request but no balance at all
	// WHEN: The approver approves
	// THEN: Materialization fails and the whole decision rolls back, so the
	//       request stays pending and retriable after a grant arrives

	dir := newFakeDirectory("emp-1", "mgr-1")
	svc, mem := newTestService(dir)
	ctx := context.Background()

	reqID := submitLeave(t, svc, []engine.EmployeeID{"mgr-1"}, false)

	mgr1 := engine.Actor{ID: "mgr-1", Type: engine.ActorManager}
	err := svc.DecideApproval(ctx, reqID, "mgr-1", true, "", mgr1)
	require.ErrorIs(t, err, engine.ErrInsufficientBalance)

	req, err := mem.GetRequest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, engine.RequestPending, req.Status)
	assert.False(t, req.Materialized)

	grantDays(t, svc, "5")
	require.NoError(t, svc.DecideApproval(ctx, reqID, "mgr-1", true, "", mgr1))
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancelRequest_OnlyWhileFullyPending(t *testing.T) {
	dir := newFakeDirectory("emp-1", "mgr-1", "mgr-2")
	svc, mem := newTestService(dir)
	ctx := context.Background()

	grantDays(t, svc, "5")
	emp := engine.Actor{ID: "emp-1", Type: engine.ActorEmployee}

	// Cancelable before any decision.
	reqID := submitLeave(t, svc, []engine.EmployeeID{"mgr-1", "mgr-2"}, false)
	require.NoError(t, svc.CancelRequest(ctx, reqID, emp))

	req, err := mem.GetRequest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, engine.RequestCancelled, req.Status)

	// Not cancelable once a decision is recorded.
	reqID = submitLeave(t, svc, []engine.EmployeeID{"mgr-1", "mgr-2"}, false)
	mgr1 := engine.Actor{ID: "mgr-1", Type: engine.ActorManager}
	require.NoError(t, svc.DecideApproval(ctx, reqID, "mgr-1", true, "", mgr1))

	err = svc.CancelRequest(ctx, reqID, emp)
	assert.ErrorIs(t, err, engine.ErrRequestNotCancelable)
}

// =============================================================================
// GRANT-KIND REQUESTS AND ACCRUAL MERGE
// =============================================================================

func TestGrantKindRequest_AccrualMerge_TopsUpSameYearBucket(t *testing.T) {
	// GIVEN: Overtime compensation is an accrual-merge type
	// WHEN: Two grant-kind requests are approved in the same year
	// THEN: The second tops up the first bucket instead of creating a sibling

	dir := newFakeDirectory("emp-1", "mgr-1")
	svc, mem := newTestService(dir)
	ctx := context.Background()

	p := &engine.Policy{
		Name:         "overtime compensation",
		VacationType: "overtime",
		GrantMethod:  engine.MethodOnRequest,
	}
	policyID, err := svc.CreatePolicy(ctx, p, admin())
	require.NoError(t, err)

	emp := engine.Actor{ID: "emp-1", Type: engine.ActorEmployee}
	mgr1 := engine.Actor{ID: "mgr-1", Type: engine.ActorManager}

	for i := 0; i < 2; i++ {
		reqID, err := svc.SubmitOnRequestLeave(ctx, engine.LeaveSubmission{
			EmployeeID: "emp-1",
			PolicyID:   policyID,
			Kind:       engine.KindGrant,
			TimeUnit:   timeunit.MorningOff,
			Count:      1,
			Window:     [2]time.Time{at(2025, time.June, 14, 9), at(2025, time.June, 14, 13)},
			Reason:     "weekend release work",
			Approvers:  []engine.EmployeeID{"mgr-1"},
		}, emp)
		require.NoError(t, err)
		require.NoError(t, svc.DecideApproval(ctx, reqID, "mgr-1", true, "", mgr1))
	}

	grants, err := mem.ListGrants(ctx, "emp-1", "overtime")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].GrantTime.Equal(dec("1")))
	assert.True(t, grants[0].RemainTime.Equal(dec("1")))
}
