package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/policy"
	"github.com/wardenhq/warden/internal/domain/risk"
	"github.com/wardenhq/warden/internal/port/database"
)

// PolicyService evaluates tool calls against the two policy tiers:
// scoped envelopes first (version > project > tenant), then the legacy
// allowlist/autonomy fallback. It also owns envelope CRUD.
type PolicyService struct {
	store database.Store
}

// NewPolicyService creates a PolicyService.
func NewPolicyService(store database.Store) *PolicyService {
	return &PolicyService{store: store}
}

// EvaluateRequest carries everything one policy decision needs.
type EvaluateRequest struct {
	Tool   string
	Args   map[string]any
	Scope  policy.Scope
	Role   policy.Role
	Budget policy.Budget
}

// Decide runs the two-tier evaluation. Envelope tiers are scanned in
// strict precedence order; the first tier that produces a decision
// wins. When no envelope decides, the legacy evaluator runs; its ALLOW
// outcome doubles as the outer default.
func (s *PolicyService) Decide(ctx context.Context, req EvaluateRequest) (policy.Result, error) {
	level := risk.Classify(req.Tool, req.Args)

	for _, ref := range req.Scope.Refs() {
		envelopes, err := s.store.ListEnvelopesForScope(ctx, ref)
		if err != nil {
			return policy.Result{}, fmt.Errorf("list envelopes for %s %s: %w", ref.Kind, ref.ID, err)
		}
		if res, ok := policy.EvaluateEnvelopes(envelopes, req.Tool, level); ok {
			return res, nil
		}
	}

	return policy.EvaluateLegacy(req.Tool, req.Args, policy.DefaultAllowlists(), policy.AutonomyFor(req.Role), req.Budget), nil
}

// --- envelope management ---

// CreateEnvelope validates and persists a new envelope.
func (s *PolicyService) CreateEnvelope(ctx context.Context, env *policy.Envelope) error {
	if err := env.Validate(); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	return s.store.CreateEnvelope(ctx, env)
}

// GetEnvelope returns one envelope by ID.
func (s *PolicyService) GetEnvelope(ctx context.Context, id string) (*policy.Envelope, error) {
	return s.store.GetEnvelope(ctx, id)
}

// ListEnvelopes returns all envelopes bound to a scope reference.
func (s *PolicyService) ListEnvelopes(ctx context.Context, ref policy.ScopeRef) ([]policy.Envelope, error) {
	return s.store.ListEnvelopesForScope(ctx, ref)
}

// UpdateEnvelope validates and persists envelope changes.
func (s *PolicyService) UpdateEnvelope(ctx context.Context, env *policy.Envelope) error {
	if err := env.Validate(); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	return s.store.UpdateEnvelope(ctx, env)
}

// DeleteEnvelope removes an envelope.
func (s *PolicyService) DeleteEnvelope(ctx context.Context, id string) error {
	return s.store.DeleteEnvelope(ctx, id)
}

// SeedFromDirectory loads envelope YAML files from dir and creates any
// that do not yet exist (matched by scope + name). Used at startup to
// bootstrap a fresh database; a missing directory is not an error.
func (s *PolicyService) SeedFromDirectory(ctx context.Context, dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	envelopes, err := policy.LoadFromDirectory(dir)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range envelopes {
		env := envelopes[i]
		existing, err := s.store.ListEnvelopesForScope(ctx, policy.ScopeRef{Kind: env.ScopeKind, ID: env.ScopeID})
		if err != nil {
			return created, fmt.Errorf("seed envelope %q: %w", env.Name, err)
		}
		if containsEnvelopeName(existing, env.Name) {
			continue
		}
		if err := s.store.CreateEnvelope(ctx, &env); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return created, fmt.Errorf("seed envelope %q: %w", env.Name, err)
		}
		created++
	}

	if created > 0 {
		slog.Info("seeded policy envelopes", "dir", dir, "created", created)
	}
	return created, nil
}

func containsEnvelopeName(envelopes []policy.Envelope, name string) bool {
	for i := range envelopes {
		if envelopes[i].Name == name {
			return true
		}
	}
	return false
}
