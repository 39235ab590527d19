package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/approval"
	"github.com/wardenhq/warden/internal/domain/control"
	"github.com/wardenhq/warden/internal/domain/deployment"
	"github.com/wardenhq/warden/internal/domain/event"
	"github.com/wardenhq/warden/internal/domain/policy"
	"github.com/wardenhq/warden/internal/domain/registry"
	"github.com/wardenhq/warden/internal/domain/task"
	"github.com/wardenhq/warden/internal/domain/tenant"
	"github.com/wardenhq/warden/internal/port/database"
	"github.com/wardenhq/warden/internal/port/messagequeue"
)

// Ensure mockStore implements database.Store at compile time.
var _ database.Store = (*mockStore)(nil)

// mockStore is an in-memory implementation of database.Store for testing.
type mockStore struct {
	mu sync.Mutex

	tenants       []tenant.Tenant
	controls      []control.Record
	envelopes     []policy.Envelope
	templates     []registry.Template
	versions      []registry.Version
	instances     []registry.Instance
	legacyAgents  []registry.LegacyAgent
	tasks         []task.Task
	transitions   []task.Transition
	events        []event.TaskEvent
	deployments   []deployment.Deployment
	changeRecords []deployment.ChangeRecord
	approvals     []approval.Approval

	nextID int

	// Error hooks — set these to inject failures.
	latestControlErr  error
	listEnvelopesErr  error
	transitionErr     error
	decideApprovalErr error
}

func (m *mockStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// --- Tenants ---

func (m *mockStore) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].Slug == t.Slug {
			return fmt.Errorf("tenant slug %q: %w", t.Slug, domain.ErrConflict)
		}
	}
	t.ID = m.id("tenant")
	t.Enabled = true
	t.CreatedAt = time.Now()
	m.tenants = append(m.tenants, *t)
	return nil
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			t := m.tenants[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetTenantBySlug(_ context.Context, slug string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].Slug == slug {
			t := m.tenants[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) UpdateTenant(_ context.Context, id string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			if req.Name != "" {
				m.tenants[i].Name = req.Name
			}
			if req.Enabled != nil {
				m.tenants[i].Enabled = *req.Enabled
			}
			t := m.tenants[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tenant.Tenant(nil), m.tenants...), nil
}

// --- Operator controls ---

func (m *mockStore) InsertControl(_ context.Context, rec *control.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.id("ctl")
	rec.CreatedAt = time.Now()
	m.controls = append(m.controls, *rec)
	return nil
}

func (m *mockStore) LatestControl(_ context.Context, projectID string) (*control.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latestControlErr != nil {
		return nil, m.latestControlErr
	}
	for i := len(m.controls) - 1; i >= 0; i-- {
		if m.controls[i].ProjectID == projectID {
			rec := m.controls[i]
			return &rec, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListControls(_ context.Context, limit int) ([]control.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]control.Record(nil), m.controls...)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Policy envelopes ---

func (m *mockStore) CreateEnvelope(_ context.Context, env *policy.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.envelopes {
		if m.envelopes[i].ScopeKind == env.ScopeKind && m.envelopes[i].ScopeID == env.ScopeID && m.envelopes[i].Name == env.Name {
			return fmt.Errorf("envelope %q: %w", env.Name, domain.ErrConflict)
		}
	}
	env.ID = m.id("env")
	m.envelopes = append(m.envelopes, *env)
	return nil
}

func (m *mockStore) GetEnvelope(_ context.Context, id string) (*policy.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.envelopes {
		if m.envelopes[i].ID == id {
			env := m.envelopes[i]
			return &env, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListEnvelopesForScope(_ context.Context, ref policy.ScopeRef) ([]policy.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listEnvelopesErr != nil {
		return nil, m.listEnvelopesErr
	}
	var out []policy.Envelope
	for i := range m.envelopes {
		if m.envelopes[i].ScopeKind == ref.Kind && m.envelopes[i].ScopeID == ref.ID {
			out = append(out, m.envelopes[i])
		}
	}
	return out, nil
}

func (m *mockStore) UpdateEnvelope(_ context.Context, env *policy.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.envelopes {
		if m.envelopes[i].ID == env.ID {
			m.envelopes[i] = *env
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) DeleteEnvelope(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.envelopes {
		if m.envelopes[i].ID == id {
			m.envelopes = append(m.envelopes[:i], m.envelopes[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Agent registry ---

func (m *mockStore) CreateTemplate(_ context.Context, t *registry.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.templates {
		if m.templates[i].Slug == t.Slug {
			return fmt.Errorf("template slug %q: %w", t.Slug, domain.ErrConflict)
		}
	}
	t.ID = m.id("tmpl")
	m.templates = append(m.templates, *t)
	return nil
}

func (m *mockStore) GetTemplate(_ context.Context, id string) (*registry.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.templates {
		if m.templates[i].ID == id {
			t := m.templates[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetTemplateBySlug(_ context.Context, slug string) (*registry.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.templates {
		if m.templates[i].Slug == slug {
			t := m.templates[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreateVersion(_ context.Context, v *registry.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.versions {
		if m.versions[i].TemplateID == v.TemplateID && m.versions[i].GenomeHash == v.GenomeHash {
			return fmt.Errorf("version genome %s: %w", v.GenomeHash, domain.ErrConflict)
		}
	}
	v.ID = m.id("ver")
	m.versions = append(m.versions, *v)
	return nil
}

func (m *mockStore) GetVersion(_ context.Context, id string) (*registry.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.versions {
		if m.versions[i].ID == id {
			v := m.versions[i]
			return &v, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetVersionByGenomeHash(_ context.Context, templateID, genomeHash string) (*registry.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.versions {
		if m.versions[i].TemplateID == templateID && m.versions[i].GenomeHash == genomeHash {
			v := m.versions[i]
			return &v, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) NextVersionNumber(_ context.Context, templateID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for i := range m.versions {
		if m.versions[i].TemplateID == templateID && m.versions[i].Number > max {
			max = m.versions[i].Number
		}
	}
	return max + 1, nil
}

func (m *mockStore) UpdateVersionStatus(_ context.Context, id string, status registry.VersionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.versions {
		if m.versions[i].ID == id {
			m.versions[i].Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CreateInstance(_ context.Context, inst *registry.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.instances {
		if inst.LegacyAgentID != "" && m.instances[i].LegacyAgentID == inst.LegacyAgentID {
			return fmt.Errorf("instance for legacy agent %s: %w", inst.LegacyAgentID, domain.ErrConflict)
		}
	}
	inst.ID = m.id("inst")
	m.instances = append(m.instances, *inst)
	return nil
}

func (m *mockStore) GetInstance(_ context.Context, id string) (*registry.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.instances {
		if m.instances[i].ID == id {
			inst := m.instances[i]
			return &inst, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetInstanceByLegacyAgent(_ context.Context, legacyAgentID string) (*registry.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.instances {
		if m.instances[i].LegacyAgentID == legacyAgentID {
			inst := m.instances[i]
			return &inst, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) UpdateInstanceStatus(_ context.Context, id string, status registry.InstanceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.instances {
		if m.instances[i].ID == id {
			m.instances[i].Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) GetLegacyAgent(_ context.Context, id string) (*registry.LegacyAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.legacyAgents {
		if m.legacyAgents[i].ID == id {
			a := m.legacyAgents[i]
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

// --- Tasks ---

func (m *mockStore) CreateTask(_ context.Context, req task.CreateRequest) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := task.Task{
		ID:            m.id("task"),
		ProjectID:     req.ProjectID,
		Title:         req.Title,
		LegacyAgentID: req.LegacyAgentID,
		BudgetUSD:     req.BudgetUSD,
		Status:        task.StatusInbox,
		Version:       1,
	}
	m.tasks = append(m.tasks, t)
	return &t, nil
}

func (m *mockStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			t := m.tasks[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListTasks(_ context.Context, projectID string) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for i := range m.tasks {
		if projectID == "" || m.tasks[i].ProjectID == projectID {
			out = append(out, m.tasks[i])
		}
	}
	return out, nil
}

func (m *mockStore) TransitionTask(_ context.Context, t *task.Task, to task.Status, tr *task.Transition, ev *event.TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transitionErr != nil {
		return m.transitionErr
	}
	for i := range m.tasks {
		if m.tasks[i].ID == t.ID {
			if m.tasks[i].Version != t.Version {
				return fmt.Errorf("task %s version %d: %w", t.ID, t.Version, domain.ErrConflict)
			}
			m.tasks[i].Status = to
			m.tasks[i].Version++
			t.Status = to
			t.Version = m.tasks[i].Version
			tr.ID = m.id("tr")
			m.transitions = append(m.transitions, *tr)
			m.insertEventLocked(ev)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) GetTransitionByKey(_ context.Context, taskID, idempotencyKey string) (*task.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.transitions {
		if m.transitions[i].TaskID == taskID && m.transitions[i].IdempotencyKey == idempotencyKey {
			tr := m.transitions[i]
			return &tr, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) SetTaskInstanceRef(_ context.Context, taskID, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID == taskID {
			m.tasks[i].InstanceID = instanceID
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Events ---

func (m *mockStore) InsertEvent(_ context.Context, ev *event.TaskEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertEventLocked(ev), nil
}

func (m *mockStore) insertEventLocked(ev *event.TaskEvent) bool {
	for i := range m.events {
		if ev.EventID != "" && m.events[i].EventID == ev.EventID {
			return false
		}
	}
	ev.ID = m.id("ev")
	m.events = append(m.events, *ev)
	return true
}

func (m *mockStore) ListEventsByTask(_ context.Context, taskID string) ([]event.TaskEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.TaskEvent
	for i := range m.events {
		if m.events[i].TaskID == taskID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

// --- Deployments ---

func (m *mockStore) CreateDeployment(_ context.Context, d *deployment.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.id("dep")
	d.CreatedAt = time.Now()
	m.deployments = append(m.deployments, *d)
	return nil
}

func (m *mockStore) GetDeployment(_ context.Context, id string) (*deployment.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.deployments {
		if m.deployments[i].ID == id {
			d := m.deployments[i]
			return &d, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListDeployments(_ context.Context, environmentID string) ([]deployment.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []deployment.Deployment
	for i := range m.deployments {
		if environmentID == "" || m.deployments[i].EnvironmentID == environmentID {
			out = append(out, m.deployments[i])
		}
	}
	return out, nil
}

func (m *mockStore) ActivateDeployment(_ context.Context, id string) (*deployment.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *deployment.Deployment
	for i := range m.deployments {
		if m.deployments[i].ID == id {
			target = &m.deployments[i]
			break
		}
	}
	if target == nil {
		return nil, domain.ErrNotFound
	}
	now := time.Now()
	for i := range m.deployments {
		if m.deployments[i].EnvironmentID == target.EnvironmentID &&
			m.deployments[i].Status == deployment.StatusActive &&
			m.deployments[i].ID != id {
			m.deployments[i].Status = deployment.StatusRetired
			m.deployments[i].RetiredAt = &now
		}
	}
	target.Status = deployment.StatusActive
	target.ActivatedAt = &now
	d := *target
	return &d, nil
}

func (m *mockStore) UpdateDeploymentStatus(_ context.Context, id string, status deployment.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.deployments {
		if m.deployments[i].ID == id {
			m.deployments[i].Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) InsertChangeRecord(_ context.Context, rec *deployment.ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.id("chg")
	rec.CreatedAt = time.Now()
	m.changeRecords = append(m.changeRecords, *rec)
	return nil
}

func (m *mockStore) ListChangeRecords(_ context.Context, deploymentID string) ([]deployment.ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []deployment.ChangeRecord
	for i := range m.changeRecords {
		if m.changeRecords[i].DeploymentID == deploymentID {
			out = append(out, m.changeRecords[i])
		}
	}
	return out, nil
}

// --- Approvals ---

func (m *mockStore) CreateApproval(_ context.Context, a *approval.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id("appr")
	a.CreatedAt = time.Now()
	m.approvals = append(m.approvals, *a)
	return nil
}

func (m *mockStore) GetApproval(_ context.Context, id string) (*approval.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.approvals {
		if m.approvals[i].ID == id {
			a := m.approvals[i]
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListOpenApprovals(_ context.Context, projectID string) ([]approval.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []approval.Approval
	for i := range m.approvals {
		if m.approvals[i].State != approval.StatePending {
			continue
		}
		if projectID == "" || m.approvals[i].ProjectID == projectID {
			out = append(out, m.approvals[i])
		}
	}
	return out, nil
}

func (m *mockStore) DecideApproval(_ context.Context, id string, state approval.State, decidedBy, note string) (*approval.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decideApprovalErr != nil {
		return nil, m.decideApprovalErr
	}
	for i := range m.approvals {
		if m.approvals[i].ID == id {
			if m.approvals[i].State != approval.StatePending {
				return nil, fmt.Errorf("approval %s already decided: %w", id, domain.ErrConflict)
			}
			now := time.Now()
			m.approvals[i].State = state
			m.approvals[i].DecidedBy = decidedBy
			m.approvals[i].DecisionNote = note
			m.approvals[i].DecidedAt = &now
			a := m.approvals[i]
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

// --- Backfill ---

func (m *mockStore) ListLegacyTaskRefs(_ context.Context, offset, limit int) ([]database.TaskRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []database.TaskRef
	for i := range m.tasks {
		if m.tasks[i].LegacyAgentID != "" {
			all = append(all, database.TaskRef{
				ID:            m.tasks[i].ID,
				LegacyAgentID: m.tasks[i].LegacyAgentID,
				InstanceID:    m.tasks[i].InstanceID,
			})
		}
	}
	return page(all, offset, limit), nil
}

func (m *mockStore) ListEventsForBackfill(_ context.Context, offset, limit int) ([]event.TaskEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]event.TaskEvent, len(m.events))
	copy(all, m.events)
	return page(all, offset, limit), nil
}

func (m *mockStore) PatchEvent(_ context.Context, p database.EventPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == p.ID {
			if m.events[i].EventID == "" {
				m.events[i].EventID = p.EventID
			}
			if m.events[i].TenantID == "" {
				m.events[i].TenantID = p.TenantID
			}
			if m.events[i].InstanceID == "" {
				m.events[i].InstanceID = p.InstanceID
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CountTasksMissingInstanceRef(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.tasks {
		if m.tasks[i].InstanceID == "" && m.tasks[i].LegacyAgentID != "" {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) CountEventsMissingEventID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.events {
		if m.events[i].EventID == "" {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) CountEventsMissingTenantRef(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.events {
		if m.events[i].TenantID == "" {
			n++
		}
	}
	return n, nil
}

func page[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return append([]T(nil), all[offset:end]...)
}

// mockQueue records published messages.
type mockQueue struct {
	mu        sync.Mutex
	published []publishedMsg
}

type publishedMsg struct {
	subject string
	data    []byte
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, publishedMsg{subject: subject, data: data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.published))
	for i, p := range q.published {
		out[i] = p.subject
	}
	return out
}

func (q *mockQueue) publishedTo(subject string) bool {
	for _, s := range q.subjects() {
		if s == subject {
			return true
		}
	}
	return false
}

// Ensure mockQueue implements messagequeue.Queue at compile time.
var _ messagequeue.Queue = (*mockQueue)(nil)
