package messagequeue

import "time"

// DecisionPayload is the schema for governance.decisions messages
// (and governance.decisions.denied, which carries the same shape).
type DecisionPayload struct {
	TenantID   string `json:"tenant_id"`
	ProjectID  string `json:"project_id,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
	Tool       string `json:"tool"`
	Decision   string `json:"decision"`
	Risk       string `json:"risk"`
	Source     string `json:"source"`
	Reason     string `json:"reason,omitempty"`
	RuleID     string `json:"rule_id,omitempty"`
}

// ControlChangedPayload is the schema for governance.controls.changed messages.
type ControlChangedPayload struct {
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id,omitempty"` // empty for a global change
	Mode      string `json:"mode"`
	Reason    string `json:"reason,omitempty"`
	SetBy     string `json:"set_by"`
}

// TaskTransitionPayload is the schema for governance.tasks.transition messages.
type TaskTransitionPayload struct {
	TenantID   string `json:"tenant_id"`
	TaskID     string `json:"task_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorType  string `json:"actor_type"`
	ActorID    string `json:"actor_id"`
	EventID    string `json:"event_id"`
}

// ApprovalRequiredPayload is the schema for governance.approvals.required messages.
type ApprovalRequiredPayload struct {
	TenantID   string     `json:"tenant_id"`
	ApprovalID string     `json:"approval_id"`
	ProjectID  string     `json:"project_id,omitempty"`
	TaskID     string     `json:"task_id,omitempty"`
	Tool       string     `json:"tool,omitempty"`
	Risk       string     `json:"risk"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ApprovalDecidedPayload is the schema for governance.approvals.decided messages.
type ApprovalDecidedPayload struct {
	TenantID   string `json:"tenant_id"`
	ApprovalID string `json:"approval_id"`
	State      string `json:"state"`
	DecidedBy  string `json:"decided_by"`
	Note       string `json:"note,omitempty"`
}

// DeploymentChangePayload is the schema for governance.deployments.change messages.
type DeploymentChangePayload struct {
	TenantID      string `json:"tenant_id"`
	DeploymentID  string `json:"deployment_id"`
	EnvironmentID string `json:"environment_id"`
	Action        string `json:"action"` // "create", "activate", "rollback"
	Status        string `json:"status"`
}

// BackfillProgressPayload is the schema for governance.backfill.progress messages.
type BackfillProgressPayload struct {
	Done          bool `json:"done"`
	TasksUpdated  int  `json:"tasks_updated"`
	EventsUpdated int  `json:"events_updated"`
	TasksOffset   int  `json:"tasks_offset"`
	EventsOffset  int  `json:"events_offset"`
}
