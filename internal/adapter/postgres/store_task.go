package postgres

import (
	"context"
	"fmt"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/event"
	"github.com/wardenhq/warden/internal/domain/task"
)

// --- Tasks ---

func (s *Store) CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (tenant_id, project_id, legacy_agent_id, title, budget_usd)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, tenant_id, project_id, COALESCE(instance_id::text, ''), COALESCE(legacy_agent_id::text, ''), title, status, budget_usd, spent_usd, version, created_at, updated_at`,
		tenantFromCtx(ctx), req.ProjectID, nullIfEmpty(req.LegacyAgentID), req.Title, req.BudgetUSD)

	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, project_id, COALESCE(instance_id::text, ''), COALESCE(legacy_agent_id::text, ''), title, status, budget_usd, spent_usd, version, created_at, updated_at
		 FROM tasks WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))

	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return &t, nil
}

func (s *Store) ListTasks(ctx context.Context, projectID string) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, project_id, COALESCE(instance_id::text, ''), COALESCE(legacy_agent_id::text, ''), title, status, budget_usd, spent_usd, version, created_at, updated_at
		 FROM tasks WHERE project_id = $1 AND tenant_id = $2 ORDER BY created_at DESC`, projectID, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// TransitionTask writes the new status, the transition record, and the
// audit event in one transaction. The status update is guarded by the
// optimistic version column: a concurrent transition that got there
// first leaves zero rows affected and the call fails with ErrConflict.
func (s *Store) TransitionTask(ctx context.Context, t *task.Task, to task.Status, tr *task.Transition, ev *event.TaskEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tid := tenantFromCtx(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE tasks SET status = $2, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $3 AND tenant_id = $4`,
		t.ID, string(to), t.Version, tid)
	if err != nil {
		return fmt.Errorf("transition task %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transition task %s: %w", t.ID, domain.ErrConflict)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO task_transitions (tenant_id, task_id, from_status, to_status, actor_type, actor_id, reason, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		tid, tr.TaskID, string(tr.FromStatus), string(tr.ToStatus), tr.ActorType, tr.ActorID,
		tr.Reason, nullIfEmpty(tr.IdempotencyKey),
	).Scan(&tr.ID, &tr.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transition task %s: idempotency key replay: %w", t.ID, domain.ErrConflict)
		}
		return fmt.Errorf("insert transition: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO task_events (event_id, tenant_id, task_id, type, actor_type, actor_id, related_id, rule_id, instance_id, before_state, after_state, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (event_id) DO NOTHING
		 RETURNING id, created_at`,
		ev.EventID, tid, ev.TaskID, string(ev.Type), ev.ActorType, ev.ActorID, ev.RelatedID,
		ev.RuleID, nullIfEmpty(ev.InstanceID), ev.BeforeState, ev.AfterState, ev.Metadata,
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil && !isNoRows(err) {
		return fmt.Errorf("insert transition event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	t.Status = to
	t.Version++
	return nil
}

func (s *Store) GetTransitionByKey(ctx context.Context, taskID, idempotencyKey string) (*task.Transition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, task_id, from_status, to_status, actor_type, actor_id, reason, COALESCE(idempotency_key, ''), created_at
		 FROM task_transitions WHERE task_id = $1 AND idempotency_key = $2 AND tenant_id = $3`,
		taskID, idempotencyKey, tenantFromCtx(ctx))

	var tr task.Transition
	err := row.Scan(&tr.ID, &tr.TaskID, &tr.FromStatus, &tr.ToStatus, &tr.ActorType, &tr.ActorID,
		&tr.Reason, &tr.IdempotencyKey, &tr.CreatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get transition by key %s", idempotencyKey)
	}
	return &tr, nil
}

func scanTask(row scannable) (task.Task, error) {
	var t task.Task
	err := row.Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.InstanceID, &t.LegacyAgentID, &t.Title,
		&t.Status, &t.BudgetUSD, &t.SpentUSD, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}
