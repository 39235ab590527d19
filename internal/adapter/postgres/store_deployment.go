package postgres

import (
	"context"
	"fmt"

	"github.com/wardenhq/warden/internal/domain/deployment"
)

// --- Deployments ---

func (s *Store) CreateDeployment(ctx context.Context, d *deployment.Deployment) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO deployments (tenant_id, template_id, environment_id, target_version_id, previous_version_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		tenantFromCtx(ctx), d.TemplateID, d.EnvironmentID, d.TargetVersionID,
		nullIfEmpty(d.PreviousVersionID), string(d.Status),
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (s *Store) GetDeployment(ctx context.Context, id string) (*deployment.Deployment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, template_id, environment_id, target_version_id, COALESCE(previous_version_id::text, ''), status, activated_at, retired_at, created_at, updated_at
		 FROM deployments WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))

	d, err := scanDeployment(row)
	if err != nil {
		return nil, notFoundWrap(err, "get deployment %s", id)
	}
	return &d, nil
}

func (s *Store) ListDeployments(ctx context.Context, environmentID string) ([]deployment.Deployment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, template_id, environment_id, target_version_id, COALESCE(previous_version_id::text, ''), status, activated_at, retired_at, created_at, updated_at
		 FROM deployments WHERE environment_id = $1 AND tenant_id = $2 ORDER BY created_at DESC`,
		environmentID, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var deployments []deployment.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

// ActivateDeployment retires every other ACTIVE deployment in the
// environment and then marks the target ACTIVE, in one transaction.
// Retiring first keeps the partial unique index satisfied throughout.
func (s *Store) ActivateDeployment(ctx context.Context, id string) (*deployment.Deployment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tid := tenantFromCtx(ctx)

	var envID string
	err = tx.QueryRow(ctx,
		`SELECT environment_id FROM deployments WHERE id = $1 AND tenant_id = $2`, id, tid,
	).Scan(&envID)
	if err != nil {
		return nil, notFoundWrap(err, "activate deployment %s", id)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE deployments SET status = 'RETIRED', retired_at = now(), updated_at = now()
		 WHERE tenant_id = $1 AND environment_id = $2 AND status = 'ACTIVE' AND id <> $3`,
		tid, envID, id); err != nil {
		return nil, fmt.Errorf("retire previous active deployments: %w", err)
	}

	row := tx.QueryRow(ctx,
		`UPDATE deployments SET status = 'ACTIVE', activated_at = now(), updated_at = now()
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING id, tenant_id, template_id, environment_id, target_version_id, COALESCE(previous_version_id::text, ''), status, activated_at, retired_at, created_at, updated_at`,
		id, tid)

	d, err := scanDeployment(row)
	if err != nil {
		return nil, notFoundWrap(err, "activate deployment %s", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit activation: %w", err)
	}
	return &d, nil
}

func (s *Store) UpdateDeploymentStatus(ctx context.Context, id string, status deployment.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE deployments SET status = $2,
		   retired_at = CASE WHEN $2 = 'RETIRED' THEN now() ELSE retired_at END,
		   updated_at = now()
		 WHERE id = $1 AND tenant_id = $3`,
		id, string(status), tenantFromCtx(ctx))
	return execExpectOne(tag, err, "update deployment status %s", id)
}

// --- Change Records ---

func (s *Store) InsertChangeRecord(ctx context.Context, rec *deployment.ChangeRecord) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO change_records (tenant_id, deployment_id, action, detail, actor_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		tenantFromCtx(ctx), rec.DeploymentID, rec.Action, rec.Detail, rec.ActorID,
	).Scan(&rec.ID, &rec.CreatedAt)
}

func (s *Store) ListChangeRecords(ctx context.Context, deploymentID string) ([]deployment.ChangeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, deployment_id, action, detail, actor_id, created_at
		 FROM change_records WHERE deployment_id = $1 AND tenant_id = $2 ORDER BY created_at ASC`,
		deploymentID, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list change records: %w", err)
	}
	defer rows.Close()

	var records []deployment.ChangeRecord
	for rows.Next() {
		var rec deployment.ChangeRecord
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.DeploymentID, &rec.Action, &rec.Detail, &rec.ActorID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan change record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanDeployment(row scannable) (deployment.Deployment, error) {
	var d deployment.Deployment
	err := row.Scan(&d.ID, &d.TenantID, &d.TemplateID, &d.EnvironmentID, &d.TargetVersionID,
		&d.PreviousVersionID, &d.Status, &d.ActivatedAt, &d.RetiredAt, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}
