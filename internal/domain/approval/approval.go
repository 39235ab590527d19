// Package approval defines pending-gate records. An operation that
// returns NEEDS_APPROVAL persists a pending approval and returns
// immediately; a later human decision resumes the flow out-of-band.
// Expiry is evaluated lazily by readers, never by a timer.
package approval

import (
	"time"

	"github.com/wardenhq/warden/internal/domain/risk"
)

// State is the lifecycle state of an approval record.
type State string

const (
	StatePending  State = "PENDING"
	StateApproved State = "APPROVED"
	StateDenied   State = "DENIED"
	StateExpired  State = "EXPIRED"
	StateCanceled State = "CANCELED"
)

// Decision is the verb applied to a pending approval.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionDeny    Decision = "DENY"
	DecisionExpire  Decision = "EXPIRE"
	DecisionCancel  Decision = "CANCEL"
)

// Approval is one gate instance awaiting (or having received) a decision.
type Approval struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	ProjectID     string     `json:"project_id,omitempty"`
	TaskID        string     `json:"task_id,omitempty"`
	InstanceID    string     `json:"instance_id,omitempty"`
	Tool          string     `json:"tool,omitempty"`
	Risk          risk.Level `json:"risk"`
	Justification string     `json:"justification,omitempty"`
	RequestedBy   string     `json:"requested_by"`
	State         State      `json:"state"`
	DecidedBy     string     `json:"decided_by,omitempty"`
	DecisionNote  string     `json:"decision_note,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Expired reports whether a pending approval has lapsed as of now.
// Decided approvals never expire retroactively.
func (a *Approval) Expired(now time.Time) bool {
	return a.State == StatePending && a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// StateFor maps a decision verb to the resulting record state.
func StateFor(d Decision) (State, bool) {
	switch d {
	case DecisionApprove:
		return StateApproved, true
	case DecisionDeny:
		return StateDenied, true
	case DecisionExpire:
		return StateExpired, true
	case DecisionCancel:
		return StateCanceled, true
	}
	return "", false
}
