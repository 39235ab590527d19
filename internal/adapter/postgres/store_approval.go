package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/approval"
)

// --- Approvals ---

func (s *Store) CreateApproval(ctx context.Context, a *approval.Approval) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO approvals (tenant_id, project_id, task_id, instance_id, tool, risk, justification, requested_by, state, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		tenantFromCtx(ctx), nullIfEmpty(a.ProjectID), nullIfEmpty(a.TaskID), nullIfEmpty(a.InstanceID),
		a.Tool, string(a.Risk), a.Justification, a.RequestedBy, string(a.State), a.ExpiresAt,
	).Scan(&a.ID, &a.CreatedAt)
}

func (s *Store) GetApproval(ctx context.Context, id string) (*approval.Approval, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, COALESCE(project_id::text, ''), COALESCE(task_id::text, ''), COALESCE(instance_id::text, ''), tool, risk, justification, requested_by, state, decided_by, decision_note, expires_at, decided_at, created_at
		 FROM approvals WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))

	a, err := scanApproval(row)
	if err != nil {
		return nil, notFoundWrap(err, "get approval %s", id)
	}
	return &a, nil
}

// ListOpenApprovals returns PENDING approvals for a project scope; an
// empty projectID lists all pending approvals for the tenant. Lazy
// expiry is the caller's concern.
func (s *Store) ListOpenApprovals(ctx context.Context, projectID string) ([]approval.Approval, error) {
	const sel = `SELECT id, tenant_id, COALESCE(project_id::text, ''), COALESCE(task_id::text, ''), COALESCE(instance_id::text, ''), tool, risk, justification, requested_by, state, decided_by, decision_note, expires_at, decided_at, created_at
		 FROM approvals WHERE tenant_id = $1 AND state = 'PENDING'`

	var rows pgx.Rows
	var err error
	if projectID == "" {
		rows, err = s.pool.Query(ctx, sel+` ORDER BY created_at ASC`, tenantFromCtx(ctx))
	} else {
		rows, err = s.pool.Query(ctx, sel+` AND project_id = $2 ORDER BY created_at ASC`, tenantFromCtx(ctx), projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("list open approvals: %w", err)
	}
	defer rows.Close()

	var approvals []approval.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

// DecideApproval moves a PENDING approval to a terminal state. The
// state guard in the WHERE clause makes concurrent decisions
// first-writer-wins; the loser gets ErrConflict.
func (s *Store) DecideApproval(ctx context.Context, id string, state approval.State, decidedBy, note string) (*approval.Approval, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE approvals SET state = $2, decided_by = $3, decision_note = $4, decided_at = now()
		 WHERE id = $1 AND tenant_id = $5 AND state = 'PENDING'
		 RETURNING id, tenant_id, COALESCE(project_id::text, ''), COALESCE(task_id::text, ''), COALESCE(instance_id::text, ''), tool, risk, justification, requested_by, state, decided_by, decision_note, expires_at, decided_at, created_at`,
		id, string(state), decidedBy, note, tenantFromCtx(ctx))

	a, err := scanApproval(row)
	if err != nil {
		if isNoRows(err) {
			// Either absent or already decided; disambiguate for the caller.
			if _, getErr := s.GetApproval(ctx, id); getErr == nil {
				return nil, fmt.Errorf("decide approval %s: already decided: %w", id, domain.ErrConflict)
			}
			return nil, fmt.Errorf("decide approval %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("decide approval %s: %w", id, err)
	}
	return &a, nil
}

func scanApproval(row scannable) (approval.Approval, error) {
	var a approval.Approval
	err := row.Scan(&a.ID, &a.TenantID, &a.ProjectID, &a.TaskID, &a.InstanceID, &a.Tool, &a.Risk,
		&a.Justification, &a.RequestedBy, &a.State, &a.DecidedBy, &a.DecisionNote,
		&a.ExpiresAt, &a.DecidedAt, &a.CreatedAt)
	return a, err
}
