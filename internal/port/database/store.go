// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/wardenhq/warden/internal/domain/approval"
	"github.com/wardenhq/warden/internal/domain/control"
	"github.com/wardenhq/warden/internal/domain/deployment"
	"github.com/wardenhq/warden/internal/domain/event"
	"github.com/wardenhq/warden/internal/domain/policy"
	"github.com/wardenhq/warden/internal/domain/registry"
	"github.com/wardenhq/warden/internal/domain/task"
	"github.com/wardenhq/warden/internal/domain/tenant"
)

// EventPatch identifies one historical event row repaired by backfill.
type EventPatch struct {
	ID         string
	EventID    string
	TenantID   string
	InstanceID string
}

// TaskRef is the minimal projection backfill needs to repair a task's
// missing instance reference. InstanceID is non-empty when the row has
// already been repaired.
type TaskRef struct {
	ID            string
	LegacyAgentID string
	InstanceID    string
}

// Store is the port interface for database operations. All tenant-scoped
// methods read the tenant ID from the request context.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, t *tenant.Tenant) error
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error)
	UpdateTenant(ctx context.Context, id string, req tenant.UpdateRequest) (*tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)

	// Operator controls (append-only mode-change log)
	InsertControl(ctx context.Context, rec *control.Record) error
	// LatestControl returns the most recent control record for the given
	// project scope ("" for global), or ErrNotFound if none exists.
	LatestControl(ctx context.Context, projectID string) (*control.Record, error)
	ListControls(ctx context.Context, limit int) ([]control.Record, error)

	// Policy envelopes
	CreateEnvelope(ctx context.Context, env *policy.Envelope) error
	GetEnvelope(ctx context.Context, id string) (*policy.Envelope, error)
	// ListEnvelopesForScope returns all envelopes (active or not) bound
	// to one scope reference.
	ListEnvelopesForScope(ctx context.Context, ref policy.ScopeRef) ([]policy.Envelope, error)
	UpdateEnvelope(ctx context.Context, env *policy.Envelope) error
	DeleteEnvelope(ctx context.Context, id string) error

	// Agent registry
	CreateTemplate(ctx context.Context, t *registry.Template) error
	GetTemplate(ctx context.Context, id string) (*registry.Template, error)
	GetTemplateBySlug(ctx context.Context, slug string) (*registry.Template, error)
	CreateVersion(ctx context.Context, v *registry.Version) error
	GetVersion(ctx context.Context, id string) (*registry.Version, error)
	GetVersionByGenomeHash(ctx context.Context, templateID, genomeHash string) (*registry.Version, error)
	NextVersionNumber(ctx context.Context, templateID string) (int, error)
	UpdateVersionStatus(ctx context.Context, id string, status registry.VersionStatus) error
	CreateInstance(ctx context.Context, inst *registry.Instance) error
	GetInstance(ctx context.Context, id string) (*registry.Instance, error)
	GetInstanceByLegacyAgent(ctx context.Context, legacyAgentID string) (*registry.Instance, error)
	UpdateInstanceStatus(ctx context.Context, id string, status registry.InstanceStatus) error
	GetLegacyAgent(ctx context.Context, id string) (*registry.LegacyAgent, error)

	// Tasks
	CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, projectID string) ([]task.Task, error)
	// TransitionTask atomically writes the new status (guarded by the
	// optimistic version), the transition record, and the audit event.
	TransitionTask(ctx context.Context, t *task.Task, to task.Status, tr *task.Transition, ev *event.TaskEvent) error
	GetTransitionByKey(ctx context.Context, taskID, idempotencyKey string) (*task.Transition, error)

	// Task events
	// InsertEvent appends an event; a duplicate event_id inserts nothing
	// and reports inserted=false.
	InsertEvent(ctx context.Context, ev *event.TaskEvent) (inserted bool, err error)
	ListEventsByTask(ctx context.Context, taskID string) ([]event.TaskEvent, error)

	// Deployments
	CreateDeployment(ctx context.Context, d *deployment.Deployment) error
	GetDeployment(ctx context.Context, id string) (*deployment.Deployment, error)
	ListDeployments(ctx context.Context, environmentID string) ([]deployment.Deployment, error)
	// ActivateDeployment marks the target ACTIVE and retires every other
	// ACTIVE deployment in the same environment, in one transaction.
	ActivateDeployment(ctx context.Context, id string) (*deployment.Deployment, error)
	UpdateDeploymentStatus(ctx context.Context, id string, status deployment.Status) error
	InsertChangeRecord(ctx context.Context, rec *deployment.ChangeRecord) error
	ListChangeRecords(ctx context.Context, deploymentID string) ([]deployment.ChangeRecord, error)

	// Approvals
	CreateApproval(ctx context.Context, a *approval.Approval) error
	GetApproval(ctx context.Context, id string) (*approval.Approval, error)
	ListOpenApprovals(ctx context.Context, projectID string) ([]approval.Approval, error)
	// DecideApproval moves a PENDING approval to a terminal state; it
	// fails with ErrConflict if the approval was already decided.
	DecideApproval(ctx context.Context, id string, state approval.State, decidedBy, note string) (*approval.Approval, error)

	// Backfill. The list methods page over STABLE candidate sets
	// (rows ordered by id, membership unaffected by repairs) so a
	// chunked run can advance its offset by the page size without
	// skipping rows that were patched mid-run.
	ListLegacyTaskRefs(ctx context.Context, offset, limit int) ([]TaskRef, error)
	SetTaskInstanceRef(ctx context.Context, taskID, instanceID string) error
	ListEventsForBackfill(ctx context.Context, offset, limit int) ([]event.TaskEvent, error)
	PatchEvent(ctx context.Context, p EventPatch) error
	CountTasksMissingInstanceRef(ctx context.Context) (int64, error)
	CountEventsMissingEventID(ctx context.Context) (int64, error)
	CountEventsMissingTenantRef(ctx context.Context) (int64, error)
}
