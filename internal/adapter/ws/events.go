package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventDecision         = "decision.verdict"
	EventControlChanged   = "control.changed"
	EventTaskTransition   = "task.transition"
	EventApprovalRequired = "approval.required"
	EventApprovalDecided  = "approval.decided"
	EventDeploymentChange = "deployment.change"
)

// DecisionEvent is broadcast for every action evaluation verdict.
type DecisionEvent struct {
	InstanceID string `json:"instance_id,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	Tool       string `json:"tool"`
	Risk       string `json:"risk"`
	Outcome    string `json:"outcome"`
	RuleID     string `json:"rule_id,omitempty"`
	Source     string `json:"source"`
	Reason     string `json:"reason,omitempty"`
}

// ControlChangedEvent is broadcast when an operator changes the
// governance mode.
type ControlChangedEvent struct {
	ProjectID string `json:"project_id,omitempty"`
	Mode      string `json:"mode"`
	SetBy     string `json:"set_by"`
	Reason    string `json:"reason,omitempty"`
}

// TaskTransitionEvent is broadcast when a task changes status.
type TaskTransitionEvent struct {
	TaskID    string `json:"task_id"`
	ProjectID string `json:"project_id,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
	ActorID   string `json:"actor_id,omitempty"`
}

// ApprovalEvent is broadcast when an approval is requested or decided.
type ApprovalEvent struct {
	ApprovalID string `json:"approval_id"`
	ProjectID  string `json:"project_id,omitempty"`
	Tool       string `json:"tool"`
	Risk       string `json:"risk"`
	State      string `json:"state"`
	DecidedBy  string `json:"decided_by,omitempty"`
}

// DeploymentChangeEvent is broadcast on deployment create, activate
// and rollback.
type DeploymentChangeEvent struct {
	DeploymentID  string `json:"deployment_id"`
	EnvironmentID string `json:"environment_id"`
	Action        string `json:"action"`
	Status        string `json:"status"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
