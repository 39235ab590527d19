package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	wardenhttp "github.com/wardenhq/warden/internal/adapter/http"
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
	"github.com/wardenhq/warden/internal/service"
)

var errNotFound = fmt.Errorf("stub: %w", domain.ErrNotFound)

// stubStore is a minimal in-memory database.Store for handler tests.
// The full store behavior is covered by the service-level tests; here
// only the methods the exercised endpoints reach are backed by state.
type stubStore struct {
	mu        sync.Mutex
	seq       int
	tenants   map[string]tenant.Tenant
	controls  []control.Record
	envelopes map[string]policy.Envelope
	tasks     map[string]task.Task
	events    []event.TaskEvent
	approvals map[string]approval.Approval
}

func newStubStore() *stubStore {
	return &stubStore{
		tenants:   map[string]tenant.Tenant{},
		envelopes: map[string]policy.Envelope{},
		tasks:     map[string]task.Task{},
		approvals: map[string]approval.Approval{},
	}
}

func (s *stubStore) id(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// Tenants

func (s *stubStore) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id("tenant")
	s.tenants[t.ID] = *t
	return nil
}

func (s *stubStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, errNotFound
	}
	return &t, nil
}

func (s *stubStore) GetTenantBySlug(_ context.Context, slug string) (*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.Slug == slug {
			return &t, nil
		}
	}
	return nil, errNotFound
}

func (s *stubStore) UpdateTenant(_ context.Context, id string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, errNotFound
	}
	if req.Name != "" {
		t.Name = req.Name
	}
	if req.Enabled != nil {
		t.Enabled = *req.Enabled
	}
	s.tenants[id] = t
	return &t, nil
}

func (s *stubStore) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tenant.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	return out, nil
}

// Operator controls

func (s *stubStore) InsertControl(_ context.Context, rec *control.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.id("ctl")
	rec.CreatedAt = time.Now()
	s.controls = append(s.controls, *rec)
	return nil
}

func (s *stubStore) LatestControl(_ context.Context, projectID string) (*control.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.controls) - 1; i >= 0; i-- {
		if s.controls[i].ProjectID == projectID {
			rec := s.controls[i]
			return &rec, nil
		}
	}
	return nil, errNotFound
}

func (s *stubStore) ListControls(_ context.Context, limit int) ([]control.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []control.Record{}
	for i := len(s.controls) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.controls[i])
	}
	return out, nil
}

// Policy envelopes

func (s *stubStore) CreateEnvelope(_ context.Context, env *policy.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	env.ID = s.id("env")
	s.envelopes[env.ID] = *env
	return nil
}

func (s *stubStore) GetEnvelope(_ context.Context, id string) (*policy.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.envelopes[id]
	if !ok {
		return nil, errNotFound
	}
	return &env, nil
}

func (s *stubStore) ListEnvelopesForScope(_ context.Context, ref policy.ScopeRef) ([]policy.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []policy.Envelope
	for _, env := range s.envelopes {
		if env.ScopeKind == ref.Kind && env.ScopeID == ref.ID {
			out = append(out, env)
		}
	}
	return out, nil
}

func (s *stubStore) UpdateEnvelope(_ context.Context, env *policy.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.envelopes[env.ID]; !ok {
		return errNotFound
	}
	s.envelopes[env.ID] = *env
	return nil
}

func (s *stubStore) DeleteEnvelope(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.envelopes[id]; !ok {
		return errNotFound
	}
	delete(s.envelopes, id)
	return nil
}

// Agent registry (empty: resolution failures are what the handler tests need)

func (s *stubStore) CreateTemplate(_ context.Context, _ *registry.Template) error { return nil }
func (s *stubStore) GetTemplate(_ context.Context, _ string) (*registry.Template, error) {
	return nil, errNotFound
}
func (s *stubStore) GetTemplateBySlug(_ context.Context, _ string) (*registry.Template, error) {
	return nil, errNotFound
}
func (s *stubStore) CreateVersion(_ context.Context, _ *registry.Version) error { return nil }
func (s *stubStore) GetVersion(_ context.Context, _ string) (*registry.Version, error) {
	return nil, errNotFound
}
func (s *stubStore) GetVersionByGenomeHash(_ context.Context, _, _ string) (*registry.Version, error) {
	return nil, errNotFound
}
func (s *stubStore) NextVersionNumber(_ context.Context, _ string) (int, error) { return 1, nil }
func (s *stubStore) UpdateVersionStatus(_ context.Context, _ string, _ registry.VersionStatus) error {
	return errNotFound
}
func (s *stubStore) CreateInstance(_ context.Context, _ *registry.Instance) error { return nil }
func (s *stubStore) GetInstance(_ context.Context, _ string) (*registry.Instance, error) {
	return nil, errNotFound
}
func (s *stubStore) GetInstanceByLegacyAgent(_ context.Context, _ string) (*registry.Instance, error) {
	return nil, errNotFound
}
func (s *stubStore) UpdateInstanceStatus(_ context.Context, _ string, _ registry.InstanceStatus) error {
	return errNotFound
}
func (s *stubStore) GetLegacyAgent(_ context.Context, _ string) (*registry.LegacyAgent, error) {
	return nil, errNotFound
}

// Tasks

func (s *stubStore) CreateTask(_ context.Context, req task.CreateRequest) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := task.Task{
		ID:            s.id("task"),
		ProjectID:     req.ProjectID,
		Title:         req.Title,
		LegacyAgentID: req.LegacyAgentID,
		BudgetUSD:     req.BudgetUSD,
		Status:        task.StatusInbox,
		Version:       1,
		CreatedAt:     time.Now(),
	}
	s.tasks[t.ID] = t
	return &t, nil
}

func (s *stubStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errNotFound
	}
	return &t, nil
}

func (s *stubStore) ListTasks(_ context.Context, projectID string) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []task.Task
	for _, t := range s.tasks {
		if projectID == "" || t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubStore) TransitionTask(_ context.Context, t *task.Task, to task.Status, _ *task.Transition, ev *event.TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tasks[t.ID]
	if !ok {
		return errNotFound
	}
	stored.Status = to
	stored.Version++
	s.tasks[t.ID] = stored
	*t = stored
	s.events = append(s.events, *ev)
	return nil
}

func (s *stubStore) GetTransitionByKey(_ context.Context, _, _ string) (*task.Transition, error) {
	return nil, errNotFound
}

// Task events

func (s *stubStore) InsertEvent(_ context.Context, ev *event.TaskEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return true, nil
}

func (s *stubStore) ListEventsByTask(_ context.Context, taskID string) ([]event.TaskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.TaskEvent
	for _, ev := range s.events {
		if ev.TaskID == taskID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Deployments

func (s *stubStore) CreateDeployment(_ context.Context, _ *deployment.Deployment) error { return nil }
func (s *stubStore) GetDeployment(_ context.Context, _ string) (*deployment.Deployment, error) {
	return nil, errNotFound
}
func (s *stubStore) ListDeployments(_ context.Context, _ string) ([]deployment.Deployment, error) {
	return nil, nil
}
func (s *stubStore) ActivateDeployment(_ context.Context, _ string) (*deployment.Deployment, error) {
	return nil, errNotFound
}
func (s *stubStore) UpdateDeploymentStatus(_ context.Context, _ string, _ deployment.Status) error {
	return errNotFound
}
func (s *stubStore) InsertChangeRecord(_ context.Context, _ *deployment.ChangeRecord) error {
	return nil
}
func (s *stubStore) ListChangeRecords(_ context.Context, _ string) ([]deployment.ChangeRecord, error) {
	return nil, nil
}

// Approvals

func (s *stubStore) CreateApproval(_ context.Context, a *approval.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id("appr")
	s.approvals[a.ID] = *a
	return nil
}

func (s *stubStore) GetApproval(_ context.Context, id string) (*approval.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[id]
	if !ok {
		return nil, errNotFound
	}
	return &a, nil
}

func (s *stubStore) ListOpenApprovals(_ context.Context, _ string) ([]approval.Approval, error) {
	return nil, nil
}

func (s *stubStore) DecideApproval(_ context.Context, id string, state approval.State, decidedBy, note string) (*approval.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[id]
	if !ok {
		return nil, errNotFound
	}
	if a.State != approval.StatePending {
		return nil, fmt.Errorf("stub: approval already decided: %w", domain.ErrConflict)
	}
	a.State = state
	a.DecidedBy = decidedBy
	a.DecisionNote = note
	s.approvals[id] = a
	return &a, nil
}

// Backfill

func (s *stubStore) ListLegacyTaskRefs(_ context.Context, _, _ int) ([]database.TaskRef, error) {
	return nil, nil
}
func (s *stubStore) SetTaskInstanceRef(_ context.Context, _, _ string) error { return nil }
func (s *stubStore) ListEventsForBackfill(_ context.Context, _, _ int) ([]event.TaskEvent, error) {
	return nil, nil
}
func (s *stubStore) PatchEvent(_ context.Context, _ database.EventPatch) error { return nil }
func (s *stubStore) CountTasksMissingInstanceRef(_ context.Context) (int64, error) {
	return 0, nil
}
func (s *stubStore) CountEventsMissingEventID(_ context.Context) (int64, error) { return 0, nil }
func (s *stubStore) CountEventsMissingTenantRef(_ context.Context) (int64, error) {
	return 0, nil
}

var _ database.Store = (*stubStore)(nil)

// stubQueue implements messagequeue.Queue.
type stubQueue struct {
	connected bool
}

func (q *stubQueue) Publish(_ context.Context, _ string, _ []byte) error { return nil }
func (q *stubQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (q *stubQueue) Drain() error      { return nil }
func (q *stubQueue) Close() error      { return nil }
func (q *stubQueue) IsConnected() bool { return q.connected }

var _ messagequeue.Queue = (*stubQueue)(nil)

func newTestRouter() (chi.Router, *stubStore) {
	store := newStubStore()
	controls := service.NewControlService(store, nil, nil, nil, time.Minute)
	policies := service.NewPolicyService(store)
	reg := service.NewRegistryService(store)
	approvals := service.NewApprovalService(store, nil, nil, time.Hour)
	handlers := &wardenhttp.Handlers{
		Gatekeeper:  service.NewGatekeeperService(store, reg, controls, policies, approvals, nil, nil, nil),
		Controls:    controls,
		Policies:    policies,
		Registry:    reg,
		Tasks:       service.NewTaskService(store, controls, approvals, nil, nil, nil),
		Deployments: service.NewDeploymentService(store, nil, nil),
		Approvals:   approvals,
		Backfill:    service.NewBackfillService(store, nil, nil),
		Tenants:     service.NewTenantService(store),
		Queue:       &stubQueue{connected: true},
	}

	r := chi.NewRouter()
	wardenhttp.MountRoutes(r, handlers)
	return r, store
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVersionEndpoint(t *testing.T) {
	r, _ := newTestRouter()
	req := httptest.NewRequest("GET", "/api/v1/", http.NoBody)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHealthOK(t *testing.T) {
	r, _ := newTestRouter()
	req := httptest.NewRequest("GET", "/health", http.NoBody)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSetAndResolveControlMode(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/controls", map[string]string{
		"mode":   "PAUSED",
		"reason": "incident",
		"set_by": "operator-1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest("GET", "/api/v1/controls/effective", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var eff control.Effective
	if err := json.NewDecoder(rec.Body).Decode(&eff); err != nil {
		t.Fatal(err)
	}
	if eff.Mode != control.ModePaused || eff.Source != "global" {
		t.Fatalf("expected global PAUSED, got %s from %s", eff.Mode, eff.Source)
	}
}

func TestSetControlModeUnknown(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/controls", map[string]string{
		"mode":   "SIESTA",
		"set_by": "operator-1",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGateRejectsUnknownActorType(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/gate", map[string]string{
		"actor_type": "ROBOT",
		"operation":  "TOOL_CALL",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGateDefaultAllows(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/gate", map[string]string{
		"actor_type": "AGENT",
		"operation":  "TOOL_CALL",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var verdict control.Verdict
	if err := json.NewDecoder(w.Body).Decode(&verdict); err != nil {
		t.Fatal(err)
	}
	if verdict.Decision != control.DecisionAllow {
		t.Fatalf("expected ALLOW, got %s", verdict.Decision)
	}
}

func TestCreateTaskMissingProject(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/tasks", map[string]string{"title": "orphan"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTaskTransitionFlow(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/tasks", map[string]string{
		"project_id": "proj-1",
		"title":      "wire the gate",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created task.Task
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, r, "POST", "/api/v1/tasks/"+created.ID+"/transition", map[string]string{
		"to":         "ASSIGNED",
		"actor_type": "HUMAN",
		"actor_id":   "operator-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated struct {
		Task     task.Task `json:"task"`
		Decision string    `json:"decision"`
	}
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatal(err)
	}
	if updated.Decision != "ALLOW" {
		t.Fatalf("expected ALLOW decision, got %s", updated.Decision)
	}
	if updated.Task.Status != task.StatusAssigned {
		t.Fatalf("expected ASSIGNED, got %s", updated.Task.Status)
	}

	// The transition shows up in the audit trail.
	req := httptest.NewRequest("GET", "/api/v1/tasks/"+created.ID+"/events", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var events []event.TaskEvent
	if err := json.NewDecoder(rec.Body).Decode(&events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != event.TypeTaskTransition {
		t.Fatalf("expected one transition event, got %+v", events)
	}
}

func TestTaskTransitionIllegalMove(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/tasks", map[string]string{
		"project_id": "proj-1",
		"title":      "skip ahead",
	})
	var created task.Task
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, r, "POST", "/api/v1/tasks/"+created.ID+"/transition", map[string]string{
		"to":         "DONE",
		"actor_type": "HUMAN",
		"actor_id":   "operator-1",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Errors []struct {
			Code string `json:"code"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Code != "INVALID_TRANSITION" {
		t.Fatalf("expected structured INVALID_TRANSITION error, got %+v", resp)
	}
}

func TestTaskTransitionGateDenied(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/tasks", map[string]string{
		"project_id": "proj-1",
		"title":      "paused work",
	})
	var created task.Task
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}

	doJSON(t, r, "POST", "/api/v1/controls", map[string]string{
		"mode":       "PAUSED",
		"project_id": "proj-1",
		"set_by":     "operator-1",
	})

	w = doJSON(t, r, "POST", "/api/v1/tasks/"+created.ID+"/transition", map[string]string{
		"to":         "ASSIGNED",
		"actor_type": "AGENT",
		"actor_id":   "inst-1",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTaskTransitionHumanPausedHeldForApproval(t *testing.T) {
	r, store := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/tasks", map[string]string{
		"project_id": "proj-1",
		"title":      "paused but human",
	})
	var created task.Task
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}

	doJSON(t, r, "POST", "/api/v1/controls", map[string]string{
		"mode":       "PAUSED",
		"project_id": "proj-1",
		"set_by":     "operator-1",
	})

	w = doJSON(t, r, "POST", "/api/v1/tasks/"+created.ID+"/transition", map[string]string{
		"to":         "ASSIGNED",
		"actor_type": "HUMAN",
		"actor_id":   "operator-1",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var res struct {
		Task       task.Task `json:"task"`
		Decision   string    `json:"decision"`
		ApprovalID string    `json:"approval_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Decision != "NEEDS_APPROVAL" || res.ApprovalID == "" {
		t.Fatalf("expected pending approval reference, got %+v", res)
	}
	if res.Task.Status != task.StatusInbox {
		t.Fatalf("held transition must not move the task, got %s", res.Task.Status)
	}

	w = doJSON(t, r, "GET", "/api/v1/approvals/"+res.ApprovalID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected the approval to be fetchable, got %d", w.Code)
	}
	if _, ok := store.approvals[res.ApprovalID]; !ok {
		t.Fatal("approval not persisted")
	}
}

func TestResolveAgentMissingIdentifier(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/agents/resolve", map[string]any{
		"create_if_missing": true,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestResolveAgentUnknown(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/agents/resolve", map[string]any{
		"legacy_agent_id":   "ghost",
		"create_if_missing": true,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestEvaluateActionRequiresTool(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/actions/evaluate", map[string]string{
		"instance_id": "inst-1",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestEnvelopeCRUD(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/policies/envelopes", policy.Envelope{
		Name:      "project-lockdown",
		ScopeKind: policy.ScopeProject,
		ScopeID:   "proj-1",
		Active:    true,
		ToolPolicies: map[string]policy.Decision{
			"shell": policy.DecisionDeny,
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var env policy.Envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/v1/policies/envelopes?scope_kind=project&scope_id=proj-1", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var envelopes []policy.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&envelopes); err != nil {
		t.Fatal(err)
	}
	if len(envelopes) != 1 || envelopes[0].ID != env.ID {
		t.Fatalf("expected the created envelope, got %+v", envelopes)
	}

	req = httptest.NewRequest("DELETE", "/api/v1/policies/envelopes/"+env.ID, http.NoBody)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestListEnvelopesRequiresScope(t *testing.T) {
	r, _ := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/policies/envelopes", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDecideApprovalNotFound(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/approvals/ghost/decide", map[string]string{
		"decision":   "APPROVE",
		"decided_by": "operator-1",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestMigrationHealthClean(t *testing.T) {
	r, _ := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/migrations/health", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health service.MigrationHealth
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if !health.Healthy() {
		t.Fatalf("expected healthy migration state, got %+v", health)
	}
}

func TestCreateTenantInvalidSlug(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/tenants", tenant.CreateRequest{
		Name: "Acme",
		Slug: "Not A Slug",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateAndGetTenant(t *testing.T) {
	r, _ := newTestRouter()

	w := doJSON(t, r, "POST", "/api/v1/tenants", tenant.CreateRequest{
		Name: "Acme",
		Slug: "acme",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created tenant.Tenant
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/v1/tenants/"+created.ID, http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	r, _ := newTestRouter()

	req := httptest.NewRequest("POST", "/api/v1/tasks", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
