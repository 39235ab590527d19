// Package task defines the Task entity and its status state machine.
// Status is mutated exclusively through the transition operation; the
// adjacency table below is the single source of truth for which moves
// are legal.
package task

import "time"

// Status represents the current state of a task.
type Status string

const (
	StatusInbox         Status = "INBOX"
	StatusAssigned      Status = "ASSIGNED"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusReview        Status = "REVIEW"
	StatusNeedsApproval Status = "NEEDS_APPROVAL"
	StatusBlocked       Status = "BLOCKED"
	StatusFailed        Status = "FAILED"
	StatusDone          Status = "DONE"
	StatusCanceled      Status = "CANCELED"
)

// transitions encodes the legal status graph as data. Terminal states
// (DONE, CANCELED) have no outgoing edges; FAILED can be retried back
// into the working set.
var transitions = map[Status][]Status{
	StatusInbox:         {StatusAssigned, StatusCanceled},
	StatusAssigned:      {StatusInProgress, StatusInbox, StatusBlocked, StatusCanceled},
	StatusInProgress:    {StatusReview, StatusNeedsApproval, StatusBlocked, StatusFailed, StatusDone, StatusCanceled},
	StatusReview:        {StatusInProgress, StatusNeedsApproval, StatusDone, StatusFailed, StatusCanceled},
	StatusNeedsApproval: {StatusInProgress, StatusReview, StatusBlocked, StatusCanceled},
	StatusBlocked:       {StatusAssigned, StatusInProgress, StatusFailed, StatusCanceled},
	StatusFailed:        {StatusAssigned, StatusInProgress, StatusCanceled},
	StatusDone:          {},
	StatusCanceled:      {},
}

// CanTransition reports whether moving from one status to another is
// legal per the adjacency table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the legal targets from a status. The returned
// slice is a copy.
func NextStatuses(from Status) []Status {
	next := transitions[from]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// ValidStatus reports whether s is a member of the closed status enum.
func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// Task represents a unit of work on the shared backlog.
type Task struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	ProjectID  string `json:"project_id"`
	InstanceID string `json:"instance_id,omitempty"` // registry instance working the task
	// LegacyAgentID is the pre-registry assignee reference; backfill
	// resolves it into InstanceID.
	LegacyAgentID string    `json:"legacy_agent_id,omitempty"`
	Title         string    `json:"title"`
	Status        Status    `json:"status"`
	BudgetUSD     float64   `json:"budget_usd,omitempty"`
	SpentUSD      float64   `json:"spent_usd"`
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Transition is the persisted record of one status change.
type Transition struct {
	ID             string    `json:"id"`
	TaskID         string    `json:"task_id"`
	FromStatus     Status    `json:"from_status"`
	ToStatus       Status    `json:"to_status"`
	ActorType      string    `json:"actor_type"`
	ActorID        string    `json:"actor_id"`
	Reason         string    `json:"reason,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	ProjectID     string  `json:"project_id"`
	Title         string  `json:"title"`
	LegacyAgentID string  `json:"legacy_agent_id,omitempty"`
	BudgetUSD     float64 `json:"budget_usd,omitempty"`
}
