package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wardenhq/warden/internal/adapter/otel"
	"github.com/wardenhq/warden/internal/adapter/ws"
	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/approval"
	"github.com/wardenhq/warden/internal/domain/control"
	"github.com/wardenhq/warden/internal/domain/event"
	"github.com/wardenhq/warden/internal/domain/risk"
	"github.com/wardenhq/warden/internal/domain/task"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/port/database"
	"github.com/wardenhq/warden/internal/port/messagequeue"
)

// ErrGateDenied marks a transition rejected by the operator control
// gate rather than by the task state machine.
var ErrGateDenied = errors.New("operation denied by operator control")

// TaskService manages tasks and their status transitions. A transition
// is validated against the adjacency table, gated by the operator
// control for the task's project, and persisted atomically with its
// transition record and audit event.
type TaskService struct {
	store     database.Store
	control   *ControlService
	approvals *ApprovalService
	queue     messagequeue.Queue
	hub       *ws.Hub
	metrics   *otel.Metrics
}

// NewTaskService creates a TaskService. queue, hub and metrics may be nil.
func NewTaskService(store database.Store, control *ControlService, approvals *ApprovalService, q messagequeue.Queue, hub *ws.Hub, m *otel.Metrics) *TaskService {
	return &TaskService{store: store, control: control, approvals: approvals, queue: q, hub: hub, metrics: m}
}

// Create validates and creates a new task in INBOX.
func (s *TaskService) Create(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if req.ProjectID == "" {
		return nil, fmt.Errorf("%w: project_id is required", domain.ErrValidation)
	}
	return s.store.CreateTask(ctx, req)
}

// Get returns a task by ID.
func (s *TaskService) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.store.GetTask(ctx, id)
}

// List returns tasks, optionally filtered by project.
func (s *TaskService) List(ctx context.Context, projectID string) ([]task.Task, error) {
	return s.store.ListTasks(ctx, projectID)
}

// ListEvents returns the audit trail for a task, oldest first.
func (s *TaskService) ListEvents(ctx context.Context, taskID string) ([]event.TaskEvent, error) {
	return s.store.ListEventsByTask(ctx, taskID)
}

// TransitionRequest carries one status-change attempt.
type TransitionRequest struct {
	To             task.Status `json:"to"`
	ActorType      string      `json:"actor_type"`
	ActorID        string      `json:"actor_id"`
	Reason         string      `json:"reason,omitempty"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

// TransitionResult is one transition attempt's outcome. A gate verdict
// of NEEDS_APPROVAL is not a failure: the task is left unchanged and
// ApprovalID references the pending record a human decides later.
type TransitionResult struct {
	Task       *task.Task       `json:"task"`
	Decision   control.Decision `json:"decision"`
	ApprovalID string           `json:"approval_id,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Transition applies a status change. A repeated idempotency key
// replays the original outcome without re-applying anything. The
// status write, the transition record, and the audit event land in one
// transaction; a concurrent transition on the same task loses with
// ErrConflict. A gate verdict of NEEDS_APPROVAL parks the request in
// the approval queue instead of applying it; only DENY is an error.
func (s *TaskService) Transition(ctx context.Context, taskID string, req TransitionRequest) (*TransitionResult, error) {
	if !task.ValidStatus(req.To) {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, req.To)
	}
	if req.ActorType == "" || req.ActorID == "" {
		return nil, fmt.Errorf("%w: actor_type and actor_id are required", domain.ErrValidation)
	}

	if req.IdempotencyKey != "" {
		if prior, err := s.store.GetTransitionByKey(ctx, taskID, req.IdempotencyKey); err == nil {
			slog.Info("transition replayed from idempotency key",
				"task_id", taskID, "key", req.IdempotencyKey, "to", prior.ToStatus)
			t, err := s.store.GetTask(ctx, taskID)
			if err != nil {
				return nil, err
			}
			return &TransitionResult{Task: t, Decision: control.DecisionAllow}, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !task.CanTransition(t.Status, req.To) {
		return nil, fmt.Errorf("%w: %s -> %s (allowed: %s)",
			domain.ErrInvalidTransition, t.Status, req.To, joinStatuses(task.NextStatuses(t.Status)))
	}

	if s.control != nil {
		verdict, err := s.control.Gate(ctx, t.ProjectID, actorKind(req.ActorType), control.OpTransition)
		if err != nil {
			return nil, err
		}
		switch verdict.Decision {
		case control.DecisionAllow:
		case control.DecisionNeedsApproval:
			return s.holdForApproval(ctx, t, req, verdict.Reason)
		default:
			return nil, fmt.Errorf("%w: %s", ErrGateDenied, verdict.Reason)
		}
	}

	from := t.Status
	tr := &task.Transition{
		TaskID:         taskID,
		FromStatus:     from,
		ToStatus:       req.To,
		ActorType:      req.ActorType,
		ActorID:        req.ActorID,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	}

	delta := event.StatusDelta{From: string(from), To: string(req.To)}
	ev := &event.TaskEvent{
		EventID:     event.BuildEventID(taskID, event.TypeTaskTransition, req.ActorType, req.ActorID, "", "", delta),
		TaskID:      taskID,
		Type:        event.TypeTaskTransition,
		ActorType:   req.ActorType,
		ActorID:     req.ActorID,
		InstanceID:  t.InstanceID,
		BeforeState: event.StatusState(string(from)),
		AfterState:  event.StatusState(string(req.To)),
	}

	if err := s.store.TransitionTask(ctx, t, req.To, tr, ev); err != nil {
		return nil, err
	}

	s.metrics.RecordTransition(ctx, string(req.To))

	s.publishTransition(ctx, t, from, req, ev.EventID)
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventTaskTransition, ws.TaskTransitionEvent{
			TaskID:    taskID,
			ProjectID: t.ProjectID,
			From:      string(from),
			To:        string(req.To),
			ActorID:   req.ActorID,
		})
	}

	return &TransitionResult{Task: t, Decision: control.DecisionAllow}, nil
}

// holdForApproval parks a gated transition in the approval queue. The
// task stays untouched; the pending record carries the requested move
// so a human can re-drive it after approving.
func (s *TaskService) holdForApproval(ctx context.Context, t *task.Task, req TransitionRequest, reason string) (*TransitionResult, error) {
	if s.approvals == nil {
		// No approval queue wired (admin tooling); degrade to a denial.
		return nil, fmt.Errorf("%w: %s", ErrGateDenied, reason)
	}

	justification := fmt.Sprintf("transition %s -> %s held by operator control: %s", t.Status, req.To, reason)
	if req.Reason != "" {
		justification = req.Reason + " (" + justification + ")"
	}
	a, err := s.approvals.Request(ctx, &approval.Approval{
		ProjectID:     t.ProjectID,
		TaskID:        t.ID,
		InstanceID:    t.InstanceID,
		Tool:          "task.transition",
		Risk:          risk.LevelYellow,
		Justification: justification,
		RequestedBy:   req.ActorID,
	})
	if err != nil {
		return nil, err
	}

	ev := &event.TaskEvent{
		EventID: event.BuildEventID(t.ID, event.TypeApprovalRequested, req.ActorType, req.ActorID,
			a.ID, "control-gate", event.StatusDelta{}),
		TaskID:     t.ID,
		Type:       event.TypeApprovalRequested,
		ActorType:  req.ActorType,
		ActorID:    req.ActorID,
		RelatedID:  a.ID,
		RuleID:     "control-gate",
		InstanceID: t.InstanceID,
	}
	if _, err := s.store.InsertEvent(ctx, ev); err != nil {
		logStoreError("insert transition approval event", err)
	}

	return &TransitionResult{
		Task:       t,
		Decision:   control.DecisionNeedsApproval,
		ApprovalID: a.ID,
		Reason:     reason,
	}, nil
}

func (s *TaskService) publishTransition(ctx context.Context, t *task.Task, from task.Status, req TransitionRequest, eventID string) {
	if s.queue == nil {
		return
	}
	publish(ctx, s.queue, messagequeue.SubjectTaskTransition, messagequeue.TaskTransitionPayload{
		TenantID:   middleware.TenantIDFromContext(ctx),
		TaskID:     t.ID,
		FromStatus: string(from),
		ToStatus:   string(t.Status),
		ActorType:  req.ActorType,
		ActorID:    req.ActorID,
		EventID:    eventID,
	})
}

// actorKind maps free-form actor types onto the gate's actor kinds.
// Unrecognized types are treated as agents (most restrictive non-human).
func actorKind(actorType string) control.ActorKind {
	switch strings.ToUpper(actorType) {
	case "HUMAN", "USER", "OPERATOR":
		return control.ActorHuman
	case "SYSTEM":
		return control.ActorSystem
	default:
		return control.ActorAgent
	}
}

func joinStatuses(statuses []task.Status) string {
	parts := make([]string, len(statuses))
	for i, st := range statuses {
		parts[i] = string(st)
	}
	return strings.Join(parts, ", ")
}
