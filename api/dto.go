/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/service.go: The operations behind them
*/
package api

// ErrorResponse is the JSON body for every error status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Department     string `json:"department,omitempty"`
	DepartmentHead bool   `json:"department_head"`
	Active         bool   `json:"active"`
	HireDate       string `json:"hire_date,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

type CreateEmployeeRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Department     string `json:"department"`
	DepartmentHead bool   `json:"department_head"`
	HireDate       string `json:"hire_date"`
}

// =============================================================================
// POLICIES
// =============================================================================

// RecurrenceDTO mirrors engine.Recurrence for REPEAT_GRANT policies.
type RecurrenceDTO struct {
	RepeatUnit     string `json:"repeat_unit,omitempty"`
	RepeatInterval int    `json:"repeat_interval,omitempty"`
	GrantTiming    string `json:"grant_timing,omitempty"`
	SpecificMonths []int  `json:"specific_months,omitempty"`
	SpecificDays   []int  `json:"specific_days,omitempty"`
	FirstGrantDate string `json:"first_grant_date,omitempty"`
}

type ApprovalRuleDTO struct {
	Sequential            bool `json:"sequential"`
	RequireDepartmentHead bool `json:"require_department_head"`
}

type PolicyDTO struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	VacationType   string          `json:"vacation_type"`
	GrantMethod    string          `json:"grant_method"`
	GrantTime      string          `json:"grant_time,omitempty"`
	FlexibleGrant  bool            `json:"flexible_grant"`
	MinuteGrant    bool            `json:"minute_grant"`
	Recurrence     *RecurrenceDTO  `json:"recurrence,omitempty"`
	EffectiveType  string          `json:"effective_type,omitempty"`
	ExpirationType string          `json:"expiration_type,omitempty"`
	Approval       ApprovalRuleDTO `json:"approval"`
	Deleted        bool            `json:"deleted"`
	Version        int             `json:"version"`
	CreatedAt      string          `json:"created_at,omitempty"`
}

type CreatePolicyRequest struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	VacationType   string          `json:"vacation_type"`
	GrantMethod    string          `json:"grant_method"`
	GrantTime      string          `json:"grant_time"`
	FlexibleGrant  bool            `json:"flexible_grant"`
	MinuteGrant    bool            `json:"minute_grant"`
	Recurrence     *RecurrenceDTO  `json:"recurrence"`
	EffectiveType  string          `json:"effective_type"`
	ExpirationType string          `json:"expiration_type"`
	Approval       ApprovalRuleDTO `json:"approval"`
}

// EditPolicyRequest carries partial updates; absent fields stay unchanged.
type EditPolicyRequest struct {
	Name           *string        `json:"name"`
	Description    *string        `json:"description"`
	GrantTime      *string        `json:"grant_time"`
	Recurrence     *RecurrenceDTO `json:"recurrence"`
	EffectiveType  *string        `json:"effective_type"`
	ExpirationType *string        `json:"expiration_type"`
}

type AssignPolicyRequest struct {
	EmployeeID string `json:"employee_id"`
}

// =============================================================================
// GRANTS AND BALANCE
// =============================================================================

type ManualGrantRequest struct {
	EmployeeID   string `json:"employee_id"`
	VacationType string `json:"vacation_type"`
	Amount       string `json:"amount"`
	StartDate    string `json:"start_date"`
	ExpiryDate   string `json:"expiry_date"`
	Description  string `json:"description"`
	PolicyID     string `json:"policy_id"`
}

type GrantSummaryDTO struct {
	GrantID      string `json:"grant_id"`
	PolicyID     string `json:"policy_id,omitempty"`
	VacationType string `json:"vacation_type"`
	GrantTime    string `json:"grant_time"`
	RemainTime   string `json:"remain_time"`
	RemainLabel  string `json:"remain_label"`
	StartDate    string `json:"start_date"`
	ExpiryDate   string `json:"expiry_date"`
	Status       string `json:"status"`
	Description  string `json:"description,omitempty"`
}

// =============================================================================
// USAGES
// =============================================================================

type RegisterUsageRequest struct {
	EmployeeID   string `json:"employee_id"`
	VacationType string `json:"vacation_type"`
	TimeUnit     string `json:"time_unit"`
	Count        int    `json:"count"`
	StartDate    string `json:"start_date"` // RFC3339
	EndDate      string `json:"end_date"`   // RFC3339
}

type MonthlyStatsDTO struct {
	EmployeeID string            `json:"employee_id"`
	Year       int               `json:"year"`
	Month      int               `json:"month"`
	TotalUsed  string            `json:"total_used"`
	UsedLabel  string            `json:"used_label"`
	Count      int               `json:"count"`
	ByType     map[string]string `json:"by_type"`
}

// =============================================================================
// APPROVAL REQUESTS
// =============================================================================

type SubmitLeaveRequest struct {
	PolicyID  string   `json:"policy_id"`
	Kind      string   `json:"kind"` // "grant" or "usage", defaults to usage
	TimeUnit  string   `json:"time_unit"`
	Count     int      `json:"count"`
	StartDate string   `json:"start_date"` // RFC3339
	EndDate   string   `json:"end_date"`   // RFC3339
	Reason    string   `json:"reason"`
	Approvers []string `json:"approvers"`
}

type DecisionRequest struct {
	Approver string `json:"approver"`
	Approve  bool   `json:"approve"`
	Reason   string `json:"reason"`
}

type ApprovalSlotDTO struct {
	Approver  string `json:"approver"`
	Order     int    `json:"order"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	DecidedAt string `json:"decided_at,omitempty"`
}

type RequestDTO struct {
	ID           string            `json:"id"`
	EmployeeID   string            `json:"employee_id"`
	Kind         string            `json:"kind"`
	PolicyID     string            `json:"policy_id"`
	VacationType string            `json:"vacation_type"`
	TimeUnit     string            `json:"time_unit"`
	Count        int               `json:"count"`
	Amount       string            `json:"amount"`
	WindowStart  string            `json:"window_start"`
	WindowEnd    string            `json:"window_end"`
	Reason       string            `json:"reason"`
	Sequential   bool              `json:"sequential"`
	Slots        []ApprovalSlotDTO `json:"slots"`
	Status       string            `json:"status"`
	CreatedAt    string            `json:"created_at,omitempty"`
}

// =============================================================================
// SCHEDULER
// =============================================================================

type SchedulerRunDTO struct {
	ID          string `json:"id"`
	RunDate     string `json:"run_date"`
	Trigger     string `json:"trigger"`
	Expired     int    `json:"expired"`
	Issued      int    `json:"issued"`
	Refreshed   int    `json:"refreshed"`
	Failed      int    `json:"failed"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}
