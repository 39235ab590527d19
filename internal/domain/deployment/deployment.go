// Package deployment defines the rollout state machine that promotes
// agent versions through environments. At most one deployment is ACTIVE
// per environment at any time.
package deployment

import "time"

// Status is the lifecycle status of a deployment.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusActive      Status = "ACTIVE"
	StatusRollingBack Status = "ROLLING_BACK"
	StatusRetired     Status = "RETIRED"
)

// Deployment is one edge in a template's rollout history.
type Deployment struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	TemplateID        string     `json:"template_id"`
	EnvironmentID     string     `json:"environment_id"`
	TargetVersionID   string     `json:"target_version_id"`
	PreviousVersionID string     `json:"previous_version_id,omitempty"`
	Status            Status     `json:"status"`
	ActivatedAt       *time.Time `json:"activated_at,omitempty"`
	RetiredAt         *time.Time `json:"retired_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a deployment.
type CreateRequest struct {
	TemplateID        string `json:"template_id"`
	EnvironmentID     string `json:"environment_id"`
	TargetVersionID   string `json:"target_version_id"`
	PreviousVersionID string `json:"previous_version_id,omitempty"`
	ActorID           string `json:"actor_id,omitempty"`
}

// ChangeRecord is an audit row for deployment lifecycle changes.
type ChangeRecord struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	DeploymentID string    `json:"deployment_id"`
	Action       string    `json:"action"` // "create", "activate", "rollback"
	Detail       string    `json:"detail,omitempty"`
	ActorID      string    `json:"actor_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CanRollback reports whether a deployment carries enough history to
// roll back: it must know its previous version.
func (d *Deployment) CanRollback() bool {
	return d.PreviousVersionID != ""
}
