// Package event defines the append-only task event log and the
// deterministic event identity that makes audit backfill idempotent.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Type identifies the kind of task event.
type Type string

const (
	TypeTaskTransition    Type = "TASK_TRANSITION"
	TypeMessageAppended   Type = "MESSAGE_APPENDED"
	TypeRunStarted        Type = "RUN_STARTED"
	TypeRunFinished       Type = "RUN_FINISHED"
	TypeToolCall          Type = "TOOL_CALL"
	TypeApprovalRequested Type = "APPROVAL_REQUESTED"
	TypeApprovalDecided   Type = "APPROVAL_DECIDED"
	TypePolicyDenied      Type = "POLICY_DENIED"
)

// TaskEvent is one immutable row in the audit trail. EventID is derived
// from identity fields only; re-deriving the same inputs yields the
// same ID, so replays and backfills insert nothing twice.
type TaskEvent struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	TenantID    string          `json:"tenant_id"`
	TaskID      string          `json:"task_id"`
	Type        Type            `json:"type"`
	ActorType   string          `json:"actor_type"`
	ActorID     string          `json:"actor_id"`
	RelatedID   string          `json:"related_id,omitempty"`
	RuleID      string          `json:"rule_id,omitempty"`
	InstanceID  string          `json:"instance_id,omitempty"`
	BeforeState json.RawMessage `json:"before_state,omitempty"`
	AfterState  json.RawMessage `json:"after_state,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// StatusDelta is the lifecycle-status change carried by a transition
// event. It participates in the event identity; free-text metadata and
// timestamps do not.
type StatusDelta struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// String renders the delta for identity hashing ("" for the zero delta).
func (d StatusDelta) String() string {
	if d.From == "" && d.To == "" {
		return ""
	}
	return d.From + ">" + d.To
}

// BuildEventID derives the deterministic event identity. Exactly these
// fields participate: taskID, eventType, actorType, actorID, relatedID,
// ruleID, and the status delta. Anything else (timestamps, metadata)
// must never influence the ID.
func BuildEventID(taskID string, eventType Type, actorType, actorID, relatedID, ruleID string, delta StatusDelta) string {
	canonical := strings.Join([]string{
		taskID,
		string(eventType),
		actorType,
		actorID,
		relatedID,
		ruleID,
		delta.String(),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// DeriveEventID recomputes the event identity for an existing row.
// Used by backfill to patch historical rows that predate event IDs.
func DeriveEventID(ev *TaskEvent) string {
	var delta StatusDelta
	if ev.Type == TypeTaskTransition {
		delta = deltaFromStates(ev.BeforeState, ev.AfterState)
	}
	return BuildEventID(ev.TaskID, ev.Type, ev.ActorType, ev.ActorID, ev.RelatedID, ev.RuleID, delta)
}

// deltaFromStates extracts {status: X} from before/after state blobs.
func deltaFromStates(before, after json.RawMessage) StatusDelta {
	var d StatusDelta
	var s struct {
		Status string `json:"status"`
	}
	if len(before) > 0 && json.Unmarshal(before, &s) == nil {
		d.From = s.Status
	}
	s.Status = ""
	if len(after) > 0 && json.Unmarshal(after, &s) == nil {
		d.To = s.Status
	}
	return d
}

// StatusState renders a {"status": s} state blob for transition events.
func StatusState(status string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"status": status})
	return data
}
