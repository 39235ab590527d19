package service

import (
	"context"
	"fmt"
	"time"

	"github.com/wardenhq/warden/internal/adapter/ws"
	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/approval"
	"github.com/wardenhq/warden/internal/domain/event"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/port/database"
	"github.com/wardenhq/warden/internal/port/messagequeue"
)

// ApprovalService manages the human approval queue for NEEDS_APPROVAL
// verdicts. Expiry is lazy: readers compare expires_at, nothing sweeps.
type ApprovalService struct {
	store      database.Store
	queue      messagequeue.Queue
	hub        *ws.Hub
	defaultTTL time.Duration
	now        func() time.Time
}

// NewApprovalService creates an ApprovalService. queue and hub may be nil.
func NewApprovalService(store database.Store, q messagequeue.Queue, hub *ws.Hub, defaultTTL time.Duration) *ApprovalService {
	return &ApprovalService{store: store, queue: q, hub: hub, defaultTTL: defaultTTL, now: time.Now}
}

// Request opens a PENDING approval and announces it. The expiry window
// defaults to the service TTL when the request does not set one.
func (s *ApprovalService) Request(ctx context.Context, a *approval.Approval) (*approval.Approval, error) {
	if a.Tool == "" {
		return nil, fmt.Errorf("%w: tool is required", domain.ErrValidation)
	}
	if a.RequestedBy == "" {
		return nil, fmt.Errorf("%w: requested_by is required", domain.ErrValidation)
	}

	a.State = approval.StatePending
	if a.ExpiresAt == nil {
		expires := s.now().Add(s.defaultTTL)
		a.ExpiresAt = &expires
	}

	if err := s.store.CreateApproval(ctx, a); err != nil {
		return nil, err
	}

	publish(ctx, s.queue, messagequeue.SubjectApprovalRequired, messagequeue.ApprovalRequiredPayload{
		TenantID:   middleware.TenantIDFromContext(ctx),
		ApprovalID: a.ID,
		ProjectID:  a.ProjectID,
		TaskID:     a.TaskID,
		Tool:       a.Tool,
		Risk:       string(a.Risk),
		ExpiresAt:  a.ExpiresAt,
	})
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventApprovalRequired, ws.ApprovalEvent{
			ApprovalID: a.ID,
			ProjectID:  a.ProjectID,
			Tool:       a.Tool,
			Risk:       string(a.Risk),
			State:      string(a.State),
		})
	}

	return a, nil
}

// Get returns one approval, patched to EXPIRED if its window has
// passed while still PENDING.
func (s *ApprovalService) Get(ctx context.Context, id string) (*approval.Approval, error) {
	a, err := s.store.GetApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.lazyExpire(ctx, a), nil
}

// ListOpen returns PENDING approvals for a project scope ("" = all),
// expiring overdue ones as they pass through.
func (s *ApprovalService) ListOpen(ctx context.Context, projectID string) ([]approval.Approval, error) {
	approvals, err := s.store.ListOpenApprovals(ctx, projectID)
	if err != nil {
		return nil, err
	}

	open := approvals[:0]
	for i := range approvals {
		a := s.lazyExpire(ctx, &approvals[i])
		if a.State == approval.StatePending {
			open = append(open, *a)
		}
	}
	return open, nil
}

// Decide resolves a PENDING approval. Deciding an already-decided
// approval fails with ErrConflict; an expired window decides as
// EXPIRE regardless of the requested decision.
func (s *ApprovalService) Decide(ctx context.Context, id string, decision approval.Decision, decidedBy, note string) (*approval.Approval, error) {
	state, ok := approval.StateFor(decision)
	if !ok {
		return nil, fmt.Errorf("%w: unknown decision %q", domain.ErrValidation, decision)
	}
	if decidedBy == "" {
		return nil, fmt.Errorf("%w: decided_by is required", domain.ErrValidation)
	}

	current, err := s.store.GetApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Expired(s.now()) {
		state = approval.StateExpired
		if note == "" {
			note = "approval window expired"
		}
	}

	a, err := s.store.DecideApproval(ctx, id, state, decidedBy, note)
	if err != nil {
		return nil, err
	}

	s.appendDecisionEvent(ctx, a)

	publish(ctx, s.queue, messagequeue.SubjectApprovalDecided, messagequeue.ApprovalDecidedPayload{
		TenantID:   middleware.TenantIDFromContext(ctx),
		ApprovalID: a.ID,
		State:      string(a.State),
		DecidedBy:  decidedBy,
		Note:       note,
	})
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventApprovalDecided, ws.ApprovalEvent{
			ApprovalID: a.ID,
			ProjectID:  a.ProjectID,
			Tool:       a.Tool,
			Risk:       string(a.Risk),
			State:      string(a.State),
			DecidedBy:  decidedBy,
		})
	}

	return a, nil
}

// lazyExpire patches an overdue PENDING approval to EXPIRED. The write
// races other readers harmlessly: DecideApproval's state guard makes
// whoever lands first win, and EXPIRED is the outcome either way.
func (s *ApprovalService) lazyExpire(ctx context.Context, a *approval.Approval) *approval.Approval {
	if !a.Expired(s.now()) {
		return a
	}
	decided, err := s.store.DecideApproval(ctx, a.ID, approval.StateExpired, "system", "approval window expired")
	if err != nil {
		a.State = approval.StateExpired
		return a
	}
	s.appendDecisionEvent(ctx, decided)
	return decided
}

// appendDecisionEvent writes the APPROVAL_DECIDED audit event for
// approvals attached to a task. The deterministic event ID makes a
// replayed decision append nothing.
func (s *ApprovalService) appendDecisionEvent(ctx context.Context, a *approval.Approval) {
	if a.TaskID == "" {
		return
	}
	ev := &event.TaskEvent{
		EventID:    event.BuildEventID(a.TaskID, event.TypeApprovalDecided, "HUMAN", a.DecidedBy, a.ID, "", event.StatusDelta{}),
		TaskID:     a.TaskID,
		Type:       event.TypeApprovalDecided,
		ActorType:  "HUMAN",
		ActorID:    a.DecidedBy,
		RelatedID:  a.ID,
		InstanceID: a.InstanceID,
		Metadata:   event.StatusState(string(a.State)),
	}
	if _, err := s.store.InsertEvent(ctx, ev); err != nil {
		logStoreError("insert approval event", err)
	}
}
