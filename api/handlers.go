/*
handlers.go - HTTP API handlers for the vacation entitlement engine

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the engine service.

ENDPOINTS:
  Employees:
    GET    /api/employees               List all employees
    POST   /api/employees               Create/update employee
    GET    /api/employees/{id}          Get employee details
    GET    /api/employees/{id}/balance  Grant buckets with humanized balances
    GET    /api/employees/{id}/stats    Monthly usage statistics
    POST   /api/employees/{id}/requests Submit request-based leave

  Policies:
    GET    /api/policies                List policies
    POST   /api/policies                Create policy
    GET    /api/policies/{id}           Get policy
    PUT    /api/policies/{id}           Edit policy (additive-only once referenced)
    DELETE /api/policies/{id}           Retire policy (soft)
    POST   /api/policies/{id}/assign    Assign policy to employee

  Usages:
    POST   /api/usages                  Register usage (direct debit)
    DELETE /api/usages/{id}             Delete usage (restores allocations)

  Requests:
    GET    /api/requests/pending        List pending approval requests
    POST   /api/requests/{id}/decisions Record one approver's decision
    POST   /api/requests/{id}/cancel    Cancel while still fully pending

  Admin:
    POST   /api/admin/grants            Manual grant
    GET    /api/admin/scheduler/runs    Daily job run records
    POST   /api/admin/scheduler/run     Trigger the daily jobs now

AUDIT CONTEXT:
  Every write path requires the caller's identity via the X-Actor-Id and
  X-Actor-Type headers; the remote address is recorded alongside. There is
  no session inference - missing headers are a 400.

ERROR HANDLING:
  Engine errors map onto status codes:
  - 400: validation, balance, workflow-rule violations
  - 404: missing records
  - 409: optimistic-lock conflict that survived retries
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - engine/service.go: The operations behind these handlers
*/
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/engine"
	"github.com/warp/vacation-engine/store/sqlite"
	"github.com/warp/vacation-engine/timeunit"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *engine.Service
	Store   *sqlite.Store

	// Jobs is set after construction; nil disables the scheduler endpoints.
	Jobs *DailyScheduler
}

func NewHandler(service *engine.Service, store *sqlite.Store) *Handler {
	return &Handler{Service: service, Store: store}
}

// actorFrom builds the audit context from request headers.
func actorFrom(r *http.Request) (engine.Actor, error) {
	id := r.Header.Get("X-Actor-Id")
	if id == "" {
		return engine.Actor{}, errors.New("missing X-Actor-Id header")
	}
	atype := engine.ActorType(r.Header.Get("X-Actor-Type"))
	if atype == "" {
		atype = engine.ActorEmployee
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return engine.Actor{ID: id, Type: atype, IP: host}, nil
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := engine.EmployeeID(chi.URLParam(r, "id"))
	e, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(e))
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	e := sqlite.Employee{
		ID:             engine.EmployeeID(req.ID),
		Name:           req.Name,
		Email:          req.Email,
		Department:     engine.DepartmentRef(req.Department),
		DepartmentHead: req.DepartmentHead,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	if req.HireDate != "" {
		hire, err := time.Parse("2006-01-02", req.HireDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid hire_date format (use YYYY-MM-DD)", err)
			return
		}
		e.HireDate = hire
	}
	if err := h.Store.SaveEmployee(r.Context(), e); err != nil {
		writeEngineError(w, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(&e))
}

func toEmployeeDTO(e *sqlite.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:             string(e.ID),
		Name:           e.Name,
		Email:          e.Email,
		Department:     string(e.Department),
		DepartmentHead: e.DepartmentHead,
		Active:         e.Active,
	}
	if !e.HireDate.IsZero() {
		dto.HireDate = e.HireDate.Format("2006-01-02")
	}
	if !e.CreatedAt.IsZero() {
		dto.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// BALANCE AND STATS
// =============================================================================

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	employee := engine.EmployeeID(chi.URLParam(r, "id"))
	vtype := engine.VacationType(r.URL.Query().Get("type"))

	summaries, err := h.Service.GetBalance(r.Context(), employee, vtype)
	if err != nil {
		writeEngineError(w, "Failed to get balance", err)
		return
	}
	dtos := make([]GrantSummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = GrantSummaryDTO{
			GrantID:      string(s.GrantID),
			PolicyID:     string(s.PolicyID),
			VacationType: string(s.VacationType),
			GrantTime:    s.GrantTime.String(),
			RemainTime:   s.RemainTime.String(),
			RemainLabel:  s.RemainLabel,
			StartDate:    s.StartDate.String(),
			ExpiryDate:   s.ExpiryDate.String(),
			Status:       string(s.Status),
			Description:  s.Description,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetMonthlyStats(w http.ResponseWriter, r *http.Request) {
	employee := engine.EmployeeID(chi.URLParam(r, "id"))
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	stats, err := h.Service.GetMonthlyUsageStats(r.Context(), employee, year, time.Month(month))
	if err != nil {
		writeEngineError(w, "Failed to compute stats", err)
		return
	}
	byType := make(map[string]string, len(stats.ByType))
	for t, v := range stats.ByType {
		byType[string(t)] = v.String()
	}
	writeJSON(w, http.StatusOK, MonthlyStatsDTO{
		EmployeeID: string(stats.EmployeeID),
		Year:       stats.Year,
		Month:      int(stats.Month),
		TotalUsed:  stats.TotalUsed.String(),
		UsedLabel:  stats.UsedLabel,
		Count:      stats.Count,
		ByType:     byType,
	})
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	policies, err := h.Store.ListPolicies(r.Context(), includeDeleted)
	if err != nil {
		writeEngineError(w, "Failed to list policies", err)
		return
	}
	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = toPolicyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := engine.PolicyID(chi.URLParam(r, "id"))
	p, err := h.Store.GetPolicy(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(p))
}

func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audit context", err)
		return
	}
	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p, err := policyFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy", err)
		return
	}
	id, err := h.Service.CreatePolicy(r.Context(), p, actor)
	if err != nil {
		writeEngineError(w, "Failed to create policy", err)
		return
	}
	p.ID = id
	writeJSON(w, http.StatusCreated, toPolicyDTO(p))
}

func (h *Handler) EditPolicy(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audit context", err)
		return
	}
	id := engine.PolicyID(chi.URLParam(r, "id"))
	var req EditPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	edit := engine.PolicyEdit{
		Name:        req.Name,
		Description: req.Description,
	}
	if req.GrantTime != nil {
		gt, err := decimal.NewFromString(*req.GrantTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid grant_time", err)
			return
		}
		edit.GrantTime = &gt
	}
	if req.Recurrence != nil {
		rec, err := recurrenceFromDTO(*req.Recurrence)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid recurrence", err)
			return
		}
		edit.Recurrence = &rec
	}
	if req.EffectiveType != nil {
		et := engine.EffectiveType(*req.EffectiveType)
		edit.EffectiveType = &et
	}
	if req.ExpirationType != nil {
		xt := engine.ExpirationType(*req.ExpirationType)
		edit.ExpirationType = &xt
	}
	if err := h.Service.EditPolicy(r.Context(), id, edit, actor); err != nil {
		writeEngineError(w, "Failed to edit policy", err)
		return
	}
	p, err := h.Store.GetPolicy(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to reload policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(p))
}

func (h *Handler) RetirePolicy(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audit context", err)
		return
	}
	id := engine.PolicyID(chi.URLParam(r, "id"))
	if err := h.Service.RetirePolicy(r.Context(), id, actor); err != nil {
		writeEngineError(w, "Failed to retire policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AssignPolicy(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audit context", err)
		return
	}
	id := engine.PolicyID(chi.URLParam(r, "id"))
	var req AssignPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Service.AssignPolicy(r.Context(), id, engine.EmployeeID(req.EmployeeID), actor); err != nil {
		writeEngineError(w, "Failed to assign policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func policyFromRequest(req CreatePolicyRequest) (*engine.Policy, error) {
	p := &engine.Policy{
		Name:          req.Name,
		Description:   req.Description,
		VacationType:  engine.VacationType(req.VacationType),
		GrantMethod:   engine.GrantMethod(req.GrantMethod),
		FlexibleGrant: req.FlexibleGrant,
		MinuteGrant:   req.MinuteGrant,
		EffectiveType: engine.EffectiveType(req.EffectiveType),
		ExpirationType: engine.ExpirationType(req.ExpirationType),
		Approval: engine.ApprovalRule{
			Sequential:            req.Approval.Sequential,
			RequireDepartmentHead: req.Approval.RequireDepartmentHead,
		},
	}
	if req.GrantTime != "" {
		gt, err := decimal.NewFromString(req.GrantTime)
		if err != nil {
			return nil, err
		}
		p.GrantTime = &gt
	}
	if req.Recurrence != nil {
		rec, err := recurrenceFromDTO(*req.Recurrence)
		if err != nil {
			return nil, err
		}
		p.Recurrence = rec
	}
	return p, nil
}

func recurrenceFromDTO(dto RecurrenceDTO) (engine.Recurrence, error) {
	r := engine.Recurrence{
		RepeatUnit:     engine.RepeatUnit(dto.RepeatUnit),
		RepeatInterval: dto.RepeatInterval,
		GrantTiming:    engine.GrantTiming(dto.GrantTiming),
		SpecificDays:   dto.SpecificDays,
	}
	for _, m := range dto.SpecificMonths {
		r.SpecificMonths = append(r.SpecificMonths, time.Month(m))
	}
	if dto.FirstGrantDate != "" {
		d, err := engine.ParseDate(dto.FirstGrantDate)
		if err != nil {
			return r, err
		}
		r.FirstGrantDate = d
	}
	return r, nil
}

func toPolicyDTO(p *engine.Policy) PolicyDTO {
	dto := PolicyDTO{
		ID:             string(p.ID),
		Name:           p.Name,
		Description:    p.Description,
		VacationType:   string(p.VacationType),
		GrantMethod:    string(p.GrantMethod),
		FlexibleGrant:  p.FlexibleGrant,
		MinuteGrant:    p.MinuteGrant,
		EffectiveType:  string(p.EffectiveType),
		ExpirationType: string(p.ExpirationType),
		Approval: ApprovalRuleDTO{
			Sequential:            p.Approval.Sequential,
			RequireDepartmentHead: p.Approval.RequireDepartmentHead,
		},
		Deleted: p.Deleted,
		Version: p.Version,
	}
	if p.GrantTime != nil {
		dto.GrantTime = p.GrantTime.String()
	}
	if !p.Recurrence.IsZero() {
		rec := RecurrenceDTO{
			RepeatUnit:     string(p.Recurrence.RepeatUnit),
			RepeatInterval: p.Recurrence.RepeatInterval,
			GrantTiming:    string(p.Recurrence.GrantTiming),
			SpecificDays:   p.Recurrence.SpecificDays,
		}
		for _, m := range p.Recurrence.SpecificMonths {
			rec.SpecificMonths = append(rec.SpecificMonths, int(m))
		}
		if !p.Recurrence.FirstGrantDate.IsZero() {
			rec.FirstGrantDate = p.Recurrence.FirstGrantDate.String()
		}
		dto.Recurrence = &rec
	}
	if !p.CreatedAt.IsZero() {
		dto.CreatedAt = p.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// GRANT HANDLERS
// =============================================================================

func (h *Handler) ManualGrant(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audit context", err)
		return
	}
	var req ManualGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	var start, expiry engine.Date
	if req.StartDate != "" {
		if start, err = engine.ParseDate(req.StartDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date", err)
			return
		}
	}
	if req.ExpiryDate != "" {
		if expiry, err = engine.ParseDate(req.ExpiryDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid expiry_date", err)
			return
		}
	}
	id, err := h.Service.ManualGrant(r.Context(),
		engine.EmployeeID(req.EmployeeID), engine.VacationType(req.VacationType),
		amount, start, expiry, req.Description, engine.PolicyID(req.PolicyID), actor)
	if err != nil {
		writeEngineError(w, "Failed to grant", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"grant_id": string(id)})
}

// =============================================================================
// USAGE HANDLERS
// =============================================================================

func (h *Handler) RegisterUsage(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audit context", err)
		return
	}
	var req RegisterUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date (use RFC3339)", err)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date (use RFC3339)", err)
		return
	}
	id, err := h.Service.RegisterUsage(r.Context(),
		engine.EmployeeID(req.EmployeeID), engine.VacationType(req.VacationType),
		timeunit.Unit(req.TimeUnit), req.Count, start, end, actor)
	if err != nil {
		writeEngineError(w, "Failed to register usage", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"usage_id": string(id)})
}

func (h *Handler) DeleteUsage(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audit context", err)
		return
	}
	id := engine.UsageID(chi.URLParam(r, "id"))
	if err := h.Service.DeleteUsage(r.Context(), id, actor); err != nil {
		writeEngineError(w, "Failed to delete usage", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// APPROVAL REQUEST HANDLERS
// =============================================================================

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audit context", err)
		return
	}
	employee := engine.EmployeeID(chi.URLParam(r, "id"))
	var req SubmitLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date (use RFC3339)", err)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date (use RFC3339)", err)
		return
	}
	approvers := make([]engine.EmployeeID, len(req.Approvers))
	for i, a := range req.Approvers {
		approvers[i] = engine.EmployeeID(a)
	}
	id, err := h.Service.SubmitOnRequestLeave(r.Context(), engine.LeaveSubmission{
		EmployeeID: employee,
		PolicyID:   engine.PolicyID(req.PolicyID),
		Kind:       engine.RequestKind(req.Kind),
		TimeUnit:   timeunit.Unit(req.TimeUnit),
		Count:      req.Count,
		Window:     [2]time.Time{start, end},
		Reason:     req.Reason,
		Approvers:  approvers,
	}, actor)
	if err != nil {
		writeEngineError(w, "Failed to submit request", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"request_id": string(id)})
}

func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Store.ListPendingRequests(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to list requests", err)
		return
	}
	dtos := make([]RequestDTO, len(requests))
	for i, req := range requests {
		dtos[i] = toRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := engine.RequestID(chi.URLParam(r, "id"))
	req, err := h.Store.GetRequest(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

func (h *Handler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audit context", err)
		return
	}
	id := engine.RequestID(chi.URLParam(r, "id"))
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	err = h.Service.DecideApproval(r.Context(), id,
		engine.EmployeeID(req.Approver), req.Approve, req.Reason, actor)
	if err != nil {
		writeEngineError(w, "Failed to record decision", err)
		return
	}
	updated, err := h.Store.GetRequest(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to reload request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(updated))
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audit context", err)
		return
	}
	id := engine.RequestID(chi.URLParam(r, "id"))
	if err := h.Service.CancelRequest(r.Context(), id, actor); err != nil {
		writeEngineError(w, "Failed to cancel request", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toRequestDTO(req *engine.ApprovalRequest) RequestDTO {
	dto := RequestDTO{
		ID:           string(req.ID),
		EmployeeID:   string(req.EmployeeID),
		Kind:         string(req.Kind),
		PolicyID:     string(req.PolicyID),
		VacationType: string(req.Payload.VacationType),
		TimeUnit:     string(req.Payload.TimeUnit),
		Count:        req.Payload.Count,
		Amount:       req.Payload.Amount.String(),
		WindowStart:  req.Payload.WindowStart.Format(time.RFC3339),
		WindowEnd:    req.Payload.WindowEnd.Format(time.RFC3339),
		Reason:       req.Payload.Reason,
		Sequential:   req.Sequential,
		Status:       string(req.Status),
		Slots:        make([]ApprovalSlotDTO, len(req.Slots)),
	}
	for i, s := range req.Slots {
		dto.Slots[i] = ApprovalSlotDTO{
			Approver: string(s.Approver),
			Order:    s.Order,
			Status:   string(s.Status),
			Reason:   s.Reason,
		}
		if s.DecidedAt != nil {
			dto.Slots[i].DecidedAt = s.DecidedAt.Format(time.RFC3339)
		}
	}
	if !req.CreatedAt.IsZero() {
		dto.CreatedAt = req.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// SCHEDULER HANDLERS
// =============================================================================

func (h *Handler) ListSchedulerRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.Store.ListSchedulerRuns(r.Context(), limit)
	if err != nil {
		writeEngineError(w, "Failed to list runs", err)
		return
	}
	dtos := make([]SchedulerRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = SchedulerRunDTO{
			ID:        run.ID,
			RunDate:   run.RunDate.String(),
			Trigger:   run.Trigger,
			Expired:   run.Report.Expired,
			Issued:    run.Report.Issued,
			Refreshed: run.Report.Refreshed,
			Failed:    run.Report.Failed,
			StartedAt: run.StartedAt.Format(time.RFC3339),
		}
		if run.CompletedAt != nil {
			dtos[i].CompletedAt = run.CompletedAt.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) TriggerScheduler(w http.ResponseWriter, r *http.Request) {
	if h.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not running", nil)
		return
	}
	report := h.Jobs.RunNow(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{
		"expired":   report.Expired,
		"issued":    report.Issued,
		"refreshed": report.Refreshed,
		"failed":    report.Failed,
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsClientError(err) || isUnitError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, engine.ErrConcurrentModification):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func isUnitError(err error) bool {
	return errors.Is(err, timeunit.ErrUnknownUnit) ||
		errors.Is(err, timeunit.ErrInvalidCount) ||
		errors.Is(err, timeunit.ErrUnrepresentable)
}
