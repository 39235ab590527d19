package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/registry"
	"github.com/wardenhq/warden/internal/port/database"
)

// RegistryService resolves agent identities into the registry triple
// (template, version, instance), materializing missing records from
// legacy agent data, and manages version lifecycle status.
type RegistryService struct {
	store database.Store
}

// NewRegistryService creates a RegistryService.
func NewRegistryService(store database.Store) *RegistryService {
	return &RegistryService{store: store}
}

// ResolveRequest identifies the agent to resolve. Exactly one of
// InstanceID or LegacyAgentID must be set.
type ResolveRequest struct {
	InstanceID      string `json:"instance_id,omitempty"`
	LegacyAgentID   string `json:"legacy_agent_id,omitempty"`
	CreateIfMissing bool   `json:"create_if_missing,omitempty"`
}

// Resolve returns the registry triple for an agent reference. A legacy
// agent ID with CreateIfMissing materializes template, version, and
// instance on first sight; repeated calls converge on the same triple.
func (s *RegistryService) Resolve(ctx context.Context, req ResolveRequest) (*registry.Triple, error) {
	switch {
	case req.InstanceID != "":
		inst, err := s.store.GetInstance(ctx, req.InstanceID)
		if err != nil {
			return nil, err
		}
		return &registry.Triple{InstanceID: inst.ID, VersionID: inst.VersionID, TemplateID: inst.TemplateID}, nil

	case req.LegacyAgentID != "":
		inst, err := s.store.GetInstanceByLegacyAgent(ctx, req.LegacyAgentID)
		if err == nil {
			return &registry.Triple{InstanceID: inst.ID, VersionID: inst.VersionID, TemplateID: inst.TemplateID}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if !req.CreateIfMissing {
			return nil, fmt.Errorf("legacy agent %s has no instance: %w", req.LegacyAgentID, domain.ErrNotFound)
		}
		return s.materialize(ctx, req.LegacyAgentID)

	default:
		return nil, fmt.Errorf("%w: instance_id or legacy_agent_id is required", domain.ErrValidation)
	}
}

// materialize builds the registry triple for a legacy agent: slugged
// template find-or-create, genome-hash version dedup, instance keyed by
// the legacy ID. Every insert treats a unique violation as "someone
// else won the race" and re-fetches.
func (s *RegistryService) materialize(ctx context.Context, legacyAgentID string) (*registry.Triple, error) {
	legacy, err := s.store.GetLegacyAgent(ctx, legacyAgentID)
	if err != nil {
		return nil, fmt.Errorf("legacy agent %s: %w", legacyAgentID, err)
	}

	tmpl, err := s.findOrCreateTemplate(ctx, legacy)
	if err != nil {
		return nil, err
	}

	genome := registry.GenomeFromLegacyConfig(legacy)
	ver, err := s.findOrCreateVersion(ctx, tmpl.ID, genome)
	if err != nil {
		return nil, err
	}

	inst, err := s.findOrCreateInstance(ctx, tmpl.ID, ver.ID, legacy)
	if err != nil {
		return nil, err
	}

	slog.Info("materialized registry identity",
		"legacy_agent_id", legacyAgentID,
		"template_id", tmpl.ID, "version_id", ver.ID, "instance_id", inst.ID)

	return &registry.Triple{InstanceID: inst.ID, VersionID: ver.ID, TemplateID: tmpl.ID}, nil
}

func (s *RegistryService) findOrCreateTemplate(ctx context.Context, legacy *registry.LegacyAgent) (*registry.Template, error) {
	slug := registry.Slugify(legacy.Name)

	tmpl, err := s.store.GetTemplateBySlug(ctx, slug)
	if err == nil {
		return tmpl, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	created := &registry.Template{
		ProjectID: legacy.ProjectID,
		Name:      legacy.Name,
		Slug:      slug,
		Active:    true,
	}
	if legacy.Role != "" {
		created.Metadata = map[string]string{"role": legacy.Role}
	}
	err = s.store.CreateTemplate(ctx, created)
	if err == nil {
		return created, nil
	}
	if errors.Is(err, domain.ErrConflict) {
		return s.store.GetTemplateBySlug(ctx, slug)
	}
	return nil, fmt.Errorf("create template %q: %w", slug, err)
}

func (s *RegistryService) findOrCreateVersion(ctx context.Context, templateID string, genome registry.Genome) (*registry.Version, error) {
	hash := genome.Hash()

	ver, err := s.store.GetVersionByGenomeHash(ctx, templateID, hash)
	if err == nil {
		return ver, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	number, err := s.store.NextVersionNumber(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("next version number: %w", err)
	}

	created := &registry.Version{
		TemplateID: templateID,
		Number:     number,
		Genome:     genome,
		GenomeHash: hash,
		Status:     registry.VersionDraft,
	}
	err = s.store.CreateVersion(ctx, created)
	if err == nil {
		return created, nil
	}
	if errors.Is(err, domain.ErrConflict) {
		return s.store.GetVersionByGenomeHash(ctx, templateID, hash)
	}
	return nil, fmt.Errorf("create version for template %s: %w", templateID, err)
}

func (s *RegistryService) findOrCreateInstance(ctx context.Context, templateID, versionID string, legacy *registry.LegacyAgent) (*registry.Instance, error) {
	created := &registry.Instance{
		TemplateID:    templateID,
		VersionID:     versionID,
		LegacyAgentID: legacy.ID,
		Status:        registry.InstanceActive,
	}
	err := s.store.CreateInstance(ctx, created)
	if err == nil {
		return created, nil
	}
	if errors.Is(err, domain.ErrConflict) {
		return s.store.GetInstanceByLegacyAgent(ctx, legacy.ID)
	}
	return nil, fmt.Errorf("create instance for legacy agent %s: %w", legacy.ID, err)
}

// AdvanceVersionStatus moves a version along its lifecycle ladder.
// Backward moves and unknown statuses fail with ErrInvalidTransition.
func (s *RegistryService) AdvanceVersionStatus(ctx context.Context, versionID string, to registry.VersionStatus) (*registry.Version, error) {
	ver, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if !registry.CanAdvanceVersion(ver.Status, to) {
		return nil, fmt.Errorf("%w: version status %s cannot move to %s", domain.ErrInvalidTransition, ver.Status, to)
	}
	if err := s.store.UpdateVersionStatus(ctx, versionID, to); err != nil {
		return nil, err
	}
	ver.Status = to
	return ver, nil
}

// SetInstanceStatus moves an instance between operational statuses per
// the instance adjacency table.
func (s *RegistryService) SetInstanceStatus(ctx context.Context, instanceID string, to registry.InstanceStatus) (*registry.Instance, error) {
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if !registry.CanTransitionInstance(inst.Status, to) {
		return nil, fmt.Errorf("%w: instance status %s cannot move to %s", domain.ErrInvalidTransition, inst.Status, to)
	}
	if err := s.store.UpdateInstanceStatus(ctx, instanceID, to); err != nil {
		return nil, err
	}
	inst.Status = to
	return inst, nil
}

// GetInstance returns one instance by ID.
func (s *RegistryService) GetInstance(ctx context.Context, id string) (*registry.Instance, error) {
	return s.store.GetInstance(ctx, id)
}
