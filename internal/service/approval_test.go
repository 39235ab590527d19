package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/approval"
	"github.com/wardenhq/warden/internal/domain/risk"
	"github.com/wardenhq/warden/internal/port/messagequeue"
)

func pendingApproval(t *testing.T, svc *ApprovalService) *approval.Approval {
	t.Helper()
	a, err := svc.Request(context.Background(), &approval.Approval{
		ProjectID:   "proj-1",
		Tool:        "git_push",
		Risk:        risk.LevelRed,
		RequestedBy: "inst-9",
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestApprovalRequestDefaultsExpiry(t *testing.T) {
	q := &mockQueue{}
	svc := NewApprovalService(&mockStore{}, q, nil, time.Hour)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	a := pendingApproval(t, svc)
	if a.State != approval.StatePending {
		t.Errorf("expected PENDING, got %s", a.State)
	}
	if a.ExpiresAt == nil || !a.ExpiresAt.Equal(base.Add(time.Hour)) {
		t.Errorf("expected expiry at base+1h, got %v", a.ExpiresAt)
	}
	if !q.publishedTo(messagequeue.SubjectApprovalRequired) {
		t.Errorf("expected publish on %s", messagequeue.SubjectApprovalRequired)
	}
}

func TestApprovalRequestValidation(t *testing.T) {
	svc := NewApprovalService(&mockStore{}, nil, nil, time.Hour)
	ctx := context.Background()

	if _, err := svc.Request(ctx, &approval.Approval{RequestedBy: "x"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing tool: expected ErrValidation, got %v", err)
	}
	if _, err := svc.Request(ctx, &approval.Approval{Tool: "git_push"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing requested_by: expected ErrValidation, got %v", err)
	}
}

func TestApprovalDecideApprove(t *testing.T) {
	q := &mockQueue{}
	svc := NewApprovalService(&mockStore{}, q, nil, time.Hour)
	a := pendingApproval(t, svc)

	decided, err := svc.Decide(context.Background(), a.ID, approval.DecisionApprove, "op-1", "looks fine")
	if err != nil {
		t.Fatal(err)
	}
	if decided.State != approval.StateApproved {
		t.Errorf("expected APPROVED, got %s", decided.State)
	}
	if decided.DecidedBy != "op-1" {
		t.Errorf("expected decided_by op-1, got %q", decided.DecidedBy)
	}
	if !q.publishedTo(messagequeue.SubjectApprovalDecided) {
		t.Errorf("expected publish on %s", messagequeue.SubjectApprovalDecided)
	}
}

func TestApprovalDecideTwiceConflicts(t *testing.T) {
	svc := NewApprovalService(&mockStore{}, nil, nil, time.Hour)
	a := pendingApproval(t, svc)
	ctx := context.Background()

	if _, err := svc.Decide(ctx, a.ID, approval.DecisionApprove, "op-1", ""); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Decide(ctx, a.ID, approval.DecisionDeny, "op-2", "")
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("second decision: expected ErrConflict, got %v", err)
	}
}

func TestApprovalDecideUnknownDecision(t *testing.T) {
	svc := NewApprovalService(&mockStore{}, nil, nil, time.Hour)
	a := pendingApproval(t, svc)

	_, err := svc.Decide(context.Background(), a.ID, "SHRUG", "op-1", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestApprovalExpiredWindowDecidesAsExpired(t *testing.T) {
	svc := NewApprovalService(&mockStore{}, nil, nil, time.Hour)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	a := pendingApproval(t, svc)

	// The operator shows up after the window closed.
	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	decided, err := svc.Decide(context.Background(), a.ID, approval.DecisionApprove, "op-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if decided.State != approval.StateExpired {
		t.Errorf("late decision must land as EXPIRED, got %s", decided.State)
	}
	if decided.DecisionNote != "approval window expired" {
		t.Errorf("unexpected note %q", decided.DecisionNote)
	}
}

func TestApprovalListOpenExpiresLazily(t *testing.T) {
	store := &mockStore{}
	svc := NewApprovalService(store, nil, nil, time.Hour)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	stale := pendingApproval(t, svc)
	svc.now = func() time.Time { return base.Add(30 * time.Minute) }
	fresh := pendingApproval(t, svc)

	// Past the first window, before the second.
	svc.now = func() time.Time { return base.Add(90 * time.Minute) }
	open, err := svc.ListOpen(context.Background(), "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].ID != fresh.ID {
		t.Fatalf("expected only the fresh approval, got %+v", open)
	}

	got, err := svc.Get(context.Background(), stale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != approval.StateExpired {
		t.Errorf("stale approval should read as EXPIRED, got %s", got.State)
	}
}
