package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/internal/adapter/otel"
	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/event"
	"github.com/wardenhq/warden/internal/port/database"
	"github.com/wardenhq/warden/internal/port/messagequeue"
)

const defaultBackfillBatch = 100

// BackfillService repairs historical rows that predate the registry and
// the deterministic event identity: tasks missing their instance
// reference, events missing their event ID or tenant reference. Work is
// chunked so callers drive it in bounded steps.
type BackfillService struct {
	store   database.Store
	queue   messagequeue.Queue
	metrics *otel.Metrics
}

// NewBackfillService creates a BackfillService. queue and metrics may be nil.
func NewBackfillService(store database.Store, q messagequeue.Queue, m *otel.Metrics) *BackfillService {
	return &BackfillService{store: store, queue: q, metrics: m}
}

// BackfillRequest selects the next chunk of each backfill stream.
type BackfillRequest struct {
	TasksOffset  int `json:"tasks_offset"`
	EventsOffset int `json:"events_offset"`
	BatchSize    int `json:"batch_size,omitempty"`
}

// BackfillResult reports one chunk's progress. Done means both streams
// returned short pages; the offsets resume the next call.
type BackfillResult struct {
	Done             bool `json:"done"`
	TasksUpdated     int  `json:"tasks_updated"`
	EventsUpdated    int  `json:"events_updated"`
	NextTasksOffset  int  `json:"next_tasks_offset"`
	NextEventsOffset int  `json:"next_events_offset"`
}

// MigrationHealth counts rows still drifted from the target schema.
type MigrationHealth struct {
	TasksMissingInstanceRef int64 `json:"tasks_missing_instance_ref"`
	EventsMissingEventID    int64 `json:"events_missing_event_id"`
	EventsMissingTenantRef  int64 `json:"events_missing_tenant_ref"`
}

// Healthy reports whether every drift counter has reached zero.
func (h MigrationHealth) Healthy() bool {
	return h.TasksMissingInstanceRef == 0 && h.EventsMissingEventID == 0 && h.EventsMissingTenantRef == 0
}

// Run processes one chunk of both backfill streams and publishes
// progress. Rows that cannot be repaired yet (a legacy agent with no
// registry instance) are skipped, not failed; the health counters keep
// reporting them until they resolve.
func (s *BackfillService) Run(ctx context.Context, req BackfillRequest) (*BackfillResult, error) {
	batch := req.BatchSize
	if batch <= 0 {
		batch = defaultBackfillBatch
	}

	ctx, span := otel.StartBackfillSpan(ctx, req.TasksOffset, batch)
	defer span.End()

	res := &BackfillResult{
		NextTasksOffset:  req.TasksOffset,
		NextEventsOffset: req.EventsOffset,
	}

	tasksDone, err := s.patchTasks(ctx, res, req.TasksOffset, batch)
	if err != nil {
		return nil, err
	}
	eventsDone, err := s.patchEvents(ctx, res, req.EventsOffset, batch)
	if err != nil {
		return nil, err
	}
	res.Done = tasksDone && eventsDone

	if s.metrics != nil && res.TasksUpdated+res.EventsUpdated > 0 {
		s.metrics.BackfillPatched.Add(ctx, int64(res.TasksUpdated+res.EventsUpdated))
	}

	publish(ctx, s.queue, messagequeue.SubjectBackfillProgress, messagequeue.BackfillProgressPayload{
		Done:          res.Done,
		TasksUpdated:  res.TasksUpdated,
		EventsUpdated: res.EventsUpdated,
		TasksOffset:   res.NextTasksOffset,
		EventsOffset:  res.NextEventsOffset,
	})

	slog.Info("backfill chunk processed",
		"tasks_updated", res.TasksUpdated, "events_updated", res.EventsUpdated,
		"done", res.Done)
	return res, nil
}

// patchTasks links tasks still keyed by legacy agent IDs to their
// registry instances. It pages over every legacy-keyed task (a stable,
// id-ordered set) so the offset advances by the page size; rows that
// already carry an instance ref are stepped over. Reports done=true on
// a short page.
func (s *BackfillService) patchTasks(ctx context.Context, res *BackfillResult, offset, batch int) (bool, error) {
	refs, err := s.store.ListLegacyTaskRefs(ctx, offset, batch)
	if err != nil {
		return false, fmt.Errorf("list legacy task refs: %w", err)
	}

	for _, ref := range refs {
		if ref.InstanceID != "" {
			continue
		}
		inst, err := s.store.GetInstanceByLegacyAgent(ctx, ref.LegacyAgentID)
		if errors.Is(err, domain.ErrNotFound) {
			// No registry identity yet: a later evaluate call will
			// materialize one and a future run picks the task up.
			continue
		}
		if err != nil {
			return false, fmt.Errorf("resolve legacy agent %s: %w", ref.LegacyAgentID, err)
		}
		if err := s.store.SetTaskInstanceRef(ctx, ref.ID, inst.ID); err != nil {
			return false, fmt.Errorf("set instance ref on task %s: %w", ref.ID, err)
		}
		res.TasksUpdated++
	}

	res.NextTasksOffset = offset + len(refs)
	return len(refs) < batch, nil
}

// patchEvents walks the event log in id order, re-deriving missing
// event IDs and filling missing tenant and instance references from
// the owning task's row. Complete rows are stepped over, so the offset
// advances by the page size.
func (s *BackfillService) patchEvents(ctx context.Context, res *BackfillResult, offset, batch int) (bool, error) {
	events, err := s.store.ListEventsForBackfill(ctx, offset, batch)
	if err != nil {
		return false, fmt.Errorf("list events for backfill: %w", err)
	}

	for i := range events {
		ev := &events[i]
		if ev.EventID != "" && ev.TenantID != "" && ev.InstanceID != "" {
			continue
		}
		patch := database.EventPatch{
			ID:         ev.ID,
			EventID:    ev.EventID,
			TenantID:   ev.TenantID,
			InstanceID: ev.InstanceID,
		}
		if patch.EventID == "" {
			patch.EventID = event.DeriveEventID(ev)
		}
		if patch.TenantID == "" || patch.InstanceID == "" {
			t, err := s.store.GetTask(ctx, ev.TaskID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return false, fmt.Errorf("load task %s for event %s: %w", ev.TaskID, ev.ID, err)
			}
			if err == nil {
				if patch.TenantID == "" {
					patch.TenantID = t.TenantID
				}
				if patch.InstanceID == "" {
					patch.InstanceID = t.InstanceID
				}
			}
		}
		if err := s.store.PatchEvent(ctx, patch); err != nil {
			return false, fmt.Errorf("patch event %s: %w", ev.ID, err)
		}
		res.EventsUpdated++
	}

	res.NextEventsOffset = offset + len(events)
	return len(events) < batch, nil
}

// Health runs the three drift counters concurrently.
func (s *BackfillService) Health(ctx context.Context) (*MigrationHealth, error) {
	var h MigrationHealth

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountTasksMissingInstanceRef(ctx)
		h.TasksMissingInstanceRef = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountEventsMissingEventID(ctx)
		h.EventsMissingEventID = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountEventsMissingTenantRef(ctx)
		h.EventsMissingTenantRef = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("migration health: %w", err)
	}
	return &h, nil
}
