package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/registry"
)

// --- Agent Templates ---

// CreateTemplate inserts a template. A duplicate (tenant, slug) returns
// domain.ErrConflict so callers can re-fetch (find-or-create).
func (s *Store) CreateTemplate(ctx context.Context, t *registry.Template) error {
	metaJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal template metadata: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO agent_templates (tenant_id, project_id, name, slug, active, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		tenantFromCtx(ctx), nullIfEmpty(t.ProjectID), t.Name, t.Slug, t.Active, metaJSON,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create template %s: %w", t.Slug, domain.ErrConflict)
		}
		return fmt.Errorf("create template %s: %w", t.Slug, err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*registry.Template, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, COALESCE(project_id::text, ''), name, slug, active, metadata, created_at, updated_at
		 FROM agent_templates WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))

	t, err := scanTemplate(row)
	if err != nil {
		return nil, notFoundWrap(err, "get template %s", id)
	}
	return &t, nil
}

func (s *Store) GetTemplateBySlug(ctx context.Context, slug string) (*registry.Template, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, COALESCE(project_id::text, ''), name, slug, active, metadata, created_at, updated_at
		 FROM agent_templates WHERE slug = $1 AND tenant_id = $2`, slug, tenantFromCtx(ctx))

	t, err := scanTemplate(row)
	if err != nil {
		return nil, notFoundWrap(err, "get template by slug %s", slug)
	}
	return &t, nil
}

// --- Agent Versions ---

// CreateVersion inserts a version. A duplicate (template, genome_hash)
// returns domain.ErrConflict: the genome already has a row.
func (s *Store) CreateVersion(ctx context.Context, v *registry.Version) error {
	genomeJSON, err := json.Marshal(v.Genome)
	if err != nil {
		return fmt.Errorf("marshal genome: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO agent_versions (template_id, tenant_id, number, genome, genome_hash, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		v.TemplateID, tenantFromCtx(ctx), v.Number, genomeJSON, v.GenomeHash, string(v.Status),
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create version for template %s: %w", v.TemplateID, domain.ErrConflict)
		}
		return fmt.Errorf("create version for template %s: %w", v.TemplateID, err)
	}
	return nil
}

func (s *Store) GetVersion(ctx context.Context, id string) (*registry.Version, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, template_id, tenant_id, number, genome, genome_hash, status, created_at, updated_at
		 FROM agent_versions WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))

	v, err := scanVersion(row)
	if err != nil {
		return nil, notFoundWrap(err, "get version %s", id)
	}
	return &v, nil
}

func (s *Store) GetVersionByGenomeHash(ctx context.Context, templateID, genomeHash string) (*registry.Version, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, template_id, tenant_id, number, genome, genome_hash, status, created_at, updated_at
		 FROM agent_versions WHERE template_id = $1 AND genome_hash = $2 AND tenant_id = $3`,
		templateID, genomeHash, tenantFromCtx(ctx))

	v, err := scanVersion(row)
	if err != nil {
		return nil, notFoundWrap(err, "get version by genome hash %s", genomeHash)
	}
	return &v, nil
}

// NextVersionNumber returns the next monotonically increasing version
// number under a template.
func (s *Store) NextVersionNumber(ctx context.Context, templateID string) (int, error) {
	var next int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(number), 0) + 1 FROM agent_versions WHERE template_id = $1 AND tenant_id = $2`,
		templateID, tenantFromCtx(ctx)).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next version number for template %s: %w", templateID, err)
	}
	return next, nil
}

func (s *Store) UpdateVersionStatus(ctx context.Context, id string, status registry.VersionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_versions SET status = $2, updated_at = now() WHERE id = $1 AND tenant_id = $3`,
		id, string(status), tenantFromCtx(ctx))
	return execExpectOne(tag, err, "update version status %s", id)
}

// --- Agent Instances ---

// CreateInstance inserts an instance. A duplicate legacy_agent_id
// returns domain.ErrConflict so the resolver can re-fetch.
func (s *Store) CreateInstance(ctx context.Context, inst *registry.Instance) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO agent_instances (template_id, version_id, tenant_id, environment_id, legacy_agent_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		inst.TemplateID, inst.VersionID, tenantFromCtx(ctx), inst.EnvironmentID,
		nullIfEmpty(inst.LegacyAgentID), string(inst.Status),
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create instance for legacy agent %s: %w", inst.LegacyAgentID, domain.ErrConflict)
		}
		return fmt.Errorf("create instance: %w", err)
	}
	return nil
}

func (s *Store) GetInstance(ctx context.Context, id string) (*registry.Instance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, template_id, version_id, tenant_id, environment_id, COALESCE(legacy_agent_id::text, ''), status, retired_at, created_at, updated_at
		 FROM agent_instances WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))

	inst, err := scanInstance(row)
	if err != nil {
		return nil, notFoundWrap(err, "get instance %s", id)
	}
	return &inst, nil
}

func (s *Store) GetInstanceByLegacyAgent(ctx context.Context, legacyAgentID string) (*registry.Instance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, template_id, version_id, tenant_id, environment_id, COALESCE(legacy_agent_id::text, ''), status, retired_at, created_at, updated_at
		 FROM agent_instances WHERE legacy_agent_id = $1 AND tenant_id = $2`, legacyAgentID, tenantFromCtx(ctx))

	inst, err := scanInstance(row)
	if err != nil {
		return nil, notFoundWrap(err, "get instance by legacy agent %s", legacyAgentID)
	}
	return &inst, nil
}

func (s *Store) UpdateInstanceStatus(ctx context.Context, id string, status registry.InstanceStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_instances
		 SET status = $2, retired_at = CASE WHEN $2 = 'RETIRED' THEN now() ELSE retired_at END, updated_at = now()
		 WHERE id = $1 AND tenant_id = $3`,
		id, string(status), tenantFromCtx(ctx))
	return execExpectOne(tag, err, "update instance status %s", id)
}

// --- Legacy Agents ---

func (s *Store) GetLegacyAgent(ctx context.Context, id string) (*registry.LegacyAgent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, COALESCE(project_id::text, ''), name, role, config, created_at
		 FROM legacy_agents WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))

	var a registry.LegacyAgent
	var configJSON []byte
	err := row.Scan(&a.ID, &a.TenantID, &a.ProjectID, &a.Name, &a.Role, &configJSON, &a.CreatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get legacy agent %s", id)
	}
	if configJSON != nil {
		if err := json.Unmarshal(configJSON, &a.Config); err != nil {
			return nil, fmt.Errorf("unmarshal legacy agent config: %w", err)
		}
	}
	return &a, nil
}

// --- Scanners ---

func scanTemplate(row scannable) (registry.Template, error) {
	var t registry.Template
	var metaJSON []byte
	err := row.Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.Name, &t.Slug, &t.Active, &metaJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if metaJSON != nil {
		if err := json.Unmarshal(metaJSON, &t.Metadata); err != nil {
			return t, fmt.Errorf("unmarshal template metadata: %w", err)
		}
	}
	return t, nil
}

func scanVersion(row scannable) (registry.Version, error) {
	var v registry.Version
	var genomeJSON []byte
	err := row.Scan(&v.ID, &v.TemplateID, &v.TenantID, &v.Number, &genomeJSON, &v.GenomeHash, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return v, err
	}
	if genomeJSON != nil {
		if err := json.Unmarshal(genomeJSON, &v.Genome); err != nil {
			return v, fmt.Errorf("unmarshal genome: %w", err)
		}
	}
	return v, nil
}

func scanInstance(row scannable) (registry.Instance, error) {
	var inst registry.Instance
	err := row.Scan(&inst.ID, &inst.TemplateID, &inst.VersionID, &inst.TenantID, &inst.EnvironmentID,
		&inst.LegacyAgentID, &inst.Status, &inst.RetiredAt, &inst.CreatedAt, &inst.UpdatedAt)
	return inst, err
}
