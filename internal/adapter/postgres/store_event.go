package postgres

import (
	"context"
	"fmt"

	"github.com/wardenhq/warden/internal/domain/event"
	"github.com/wardenhq/warden/internal/port/database"
)

// --- Task Events ---

// InsertEvent appends an audit event. Duplicate event IDs insert
// nothing: the deterministic ID makes replays and backfills at-most-once.
func (s *Store) InsertEvent(ctx context.Context, ev *event.TaskEvent) (bool, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO task_events (event_id, tenant_id, task_id, type, actor_type, actor_id, related_id, rule_id, instance_id, before_state, after_state, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (event_id) DO NOTHING
		 RETURNING id, created_at`,
		ev.EventID, tenantFromCtx(ctx), ev.TaskID, string(ev.Type), ev.ActorType, ev.ActorID,
		ev.RelatedID, ev.RuleID, nullIfEmpty(ev.InstanceID), ev.BeforeState, ev.AfterState, ev.Metadata,
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert event: %w", err)
	}
	return true, nil
}

func (s *Store) ListEventsByTask(ctx context.Context, taskID string) ([]event.TaskEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(event_id, ''), COALESCE(tenant_id::text, ''), task_id, type, actor_type, actor_id, related_id, rule_id, COALESCE(instance_id::text, ''), before_state, after_state, metadata, created_at
		 FROM task_events WHERE task_id = $1 AND tenant_id = $2 ORDER BY created_at ASC`,
		taskID, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list events for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var events []event.TaskEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Backfill ---

// ListLegacyTaskRefs pages through every task that references a legacy
// agent, repaired or not. The legacy ref is never cleared, so the set
// is stable: offsets advance by page size across chunked calls even
// while rows in earlier pages are being patched.
func (s *Store) ListLegacyTaskRefs(ctx context.Context, offset, limit int) ([]database.TaskRef, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(legacy_agent_id::text, ''), COALESCE(instance_id::text, '')
		 FROM tasks WHERE tenant_id = $1 AND legacy_agent_id IS NOT NULL
		 ORDER BY id ASC OFFSET $2 LIMIT $3`, tenantFromCtx(ctx), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list legacy task refs: %w", err)
	}
	defer rows.Close()

	var refs []database.TaskRef
	for rows.Next() {
		var r database.TaskRef
		if err := rows.Scan(&r.ID, &r.LegacyAgentID, &r.InstanceID); err != nil {
			return nil, fmt.Errorf("scan task ref: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

func (s *Store) SetTaskInstanceRef(ctx context.Context, taskID, instanceID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET instance_id = $2, updated_at = now()
		 WHERE id = $1 AND tenant_id = $3 AND instance_id IS NULL`,
		taskID, instanceID, tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("set task instance ref %s: %w", taskID, err)
	}
	// Zero rows means another backfill run already patched it; not an error.
	_ = tag
	return nil
}

// ListEventsForBackfill walks the whole event log in id order. Patched
// rows stay in place, so offsets are stable; the service skips rows
// that already carry their identity and tenant refs.
func (s *Store) ListEventsForBackfill(ctx context.Context, offset, limit int) ([]event.TaskEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(event_id, ''), COALESCE(tenant_id::text, ''), task_id, type, actor_type, actor_id, related_id, rule_id, COALESCE(instance_id::text, ''), before_state, after_state, metadata, created_at
		 FROM task_events
		 ORDER BY id ASC OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list events for backfill: %w", err)
	}
	defer rows.Close()

	var events []event.TaskEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PatchEvent repairs derived references on a historical event row.
// Empty patch fields leave the column untouched.
func (s *Store) PatchEvent(ctx context.Context, p database.EventPatch) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE task_events SET
		   event_id = COALESCE(NULLIF($2, ''), event_id),
		   tenant_id = COALESCE(NULLIF($3, '')::uuid, tenant_id),
		   instance_id = COALESCE(NULLIF($4, '')::uuid, instance_id)
		 WHERE id = $1`,
		p.ID, p.EventID, p.TenantID, p.InstanceID)
	if err != nil {
		return fmt.Errorf("patch event %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) CountTasksMissingInstanceRef(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE tenant_id = $1 AND instance_id IS NULL AND legacy_agent_id IS NOT NULL`,
		tenantFromCtx(ctx)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks missing instance ref: %w", err)
	}
	return n, nil
}

func (s *Store) CountEventsMissingEventID(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM task_events WHERE event_id IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events missing event_id: %w", err)
	}
	return n, nil
}

func (s *Store) CountEventsMissingTenantRef(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM task_events WHERE tenant_id IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events missing tenant: %w", err)
	}
	return n, nil
}

func scanEvent(row scannable) (event.TaskEvent, error) {
	var ev event.TaskEvent
	err := row.Scan(&ev.ID, &ev.EventID, &ev.TenantID, &ev.TaskID, &ev.Type, &ev.ActorType, &ev.ActorID,
		&ev.RelatedID, &ev.RuleID, &ev.InstanceID, &ev.BeforeState, &ev.AfterState, &ev.Metadata, &ev.CreatedAt)
	return ev, err
}
