package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenhq/warden/internal/adapter/ws"
	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/control"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/port/cache"
	"github.com/wardenhq/warden/internal/port/database"
	"github.com/wardenhq/warden/internal/port/messagequeue"
)

// ControlService manages operator controls: the append-only mode-change
// log and the gate verdicts derived from it. Effective modes are cached
// with a short TTL and invalidated on every mode change.
type ControlService struct {
	store    database.Store
	cache    cache.Cache
	queue    messagequeue.Queue
	hub      *ws.Hub
	cacheTTL time.Duration
}

// NewControlService creates a ControlService. cache and queue may be
// nil (tests, CLI tools); hub may be nil when no dashboard is attached.
func NewControlService(store database.Store, c cache.Cache, q messagequeue.Queue, hub *ws.Hub, cacheTTL time.Duration) *ControlService {
	return &ControlService{store: store, cache: c, queue: q, hub: hub, cacheTTL: cacheTTL}
}

// SetMode appends a mode change for a scope (projectID "" = global),
// invalidates the cached effective mode, and publishes the change.
func (s *ControlService) SetMode(ctx context.Context, projectID string, mode control.Mode, reason, setBy string) (*control.Record, error) {
	if !control.ValidMode(mode) {
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrValidation, mode)
	}
	if setBy == "" {
		return nil, fmt.Errorf("%w: set_by is required", domain.ErrValidation)
	}

	rec := &control.Record{
		ProjectID: projectID,
		Mode:      mode,
		Reason:    reason,
		SetBy:     setBy,
	}
	if err := s.store.InsertControl(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert control: %w", err)
	}

	s.invalidate(ctx, projectID)

	publish(ctx, s.queue, messagequeue.SubjectControlChanged, messagequeue.ControlChangedPayload{
		TenantID:  middleware.TenantIDFromContext(ctx),
		ProjectID: projectID,
		Mode:      string(mode),
		Reason:    reason,
		SetBy:     setBy,
	})
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventControlChanged, ws.ControlChangedEvent{
			ProjectID: projectID,
			Mode:      string(mode),
			SetBy:     setBy,
			Reason:    reason,
		})
	}

	return rec, nil
}

// EffectiveMode resolves the operating mode for a project scope: the
// latest project-scoped record wins, else the latest global record,
// else NORMAL.
func (s *ControlService) EffectiveMode(ctx context.Context, projectID string) (control.Effective, error) {
	if eff, ok := s.cached(ctx, projectID); ok {
		return eff, nil
	}

	eff, err := s.resolve(ctx, projectID)
	if err != nil {
		return control.Effective{}, err
	}

	s.storeCached(ctx, projectID, eff)
	return eff, nil
}

func (s *ControlService) resolve(ctx context.Context, projectID string) (control.Effective, error) {
	if projectID != "" {
		rec, err := s.store.LatestControl(ctx, projectID)
		switch {
		case err == nil:
			return control.Effective{Mode: rec.Mode, Reason: rec.Reason, Source: "project"}, nil
		case !errors.Is(err, domain.ErrNotFound):
			return control.Effective{}, fmt.Errorf("latest project control: %w", err)
		}
	}

	rec, err := s.store.LatestControl(ctx, "")
	switch {
	case err == nil:
		return control.Effective{Mode: rec.Mode, Reason: rec.Reason, Source: "global"}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return control.Effective{}, fmt.Errorf("latest global control: %w", err)
	}

	return control.Effective{Mode: control.ModeNormal, Source: "default"}, nil
}

// Gate renders the verdict for one operation under the scope's
// effective mode.
func (s *ControlService) Gate(ctx context.Context, projectID string, actor control.ActorKind, op control.Operation) (control.Verdict, error) {
	eff, err := s.EffectiveMode(ctx, projectID)
	if err != nil {
		return control.Verdict{}, err
	}
	return control.Decide(eff.Mode, actor, op), nil
}

// History returns the most recent mode changes, newest first.
func (s *ControlService) History(ctx context.Context, limit int) ([]control.Record, error) {
	return s.store.ListControls(ctx, limit)
}

// --- cache plumbing ---

func (s *ControlService) cacheKey(ctx context.Context, projectID string) string {
	scope := projectID
	if scope == "" {
		scope = "global"
	}
	return "control:" + middleware.TenantIDFromContext(ctx) + ":" + scope
}

func (s *ControlService) cached(ctx context.Context, projectID string) (control.Effective, bool) {
	if s.cache == nil {
		return control.Effective{}, false
	}
	data, ok, err := s.cache.Get(ctx, s.cacheKey(ctx, projectID))
	if err != nil || !ok {
		return control.Effective{}, false
	}
	var eff control.Effective
	if err := json.Unmarshal(data, &eff); err != nil {
		return control.Effective{}, false
	}
	return eff, true
}

func (s *ControlService) storeCached(ctx context.Context, projectID string, eff control.Effective) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(eff)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(ctx, projectID), data, s.cacheTTL); err != nil {
		slog.Debug("control cache set failed", "error", err)
	}
}

func (s *ControlService) invalidate(ctx context.Context, projectID string) {
	if s.cache == nil {
		return
	}
	// A project change shadows the global fallback for that project
	// only; a global change can affect every project. Rather than
	// tracking scopes, drop both keys and let TTL handle the rest.
	_ = s.cache.Delete(ctx, s.cacheKey(ctx, projectID))
	_ = s.cache.Delete(ctx, s.cacheKey(ctx, ""))
}

