package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/tenant"
	"github.com/wardenhq/warden/internal/port/database"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// TenantService manages tenant records.
type TenantService struct {
	store database.Store
}

// NewTenantService creates a TenantService.
func NewTenantService(store database.Store) *TenantService {
	return &TenantService{store: store}
}

// Create validates and persists a new tenant. Slugs are lowercased and
// must match the slug pattern; duplicates fail with ErrConflict.
func (s *TenantService) Create(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !slugRegex.MatchString(slug) {
		return nil, fmt.Errorf("%w: slug must be 3-64 chars of [a-z0-9-], starting and ending alphanumeric", domain.ErrValidation)
	}

	t := &tenant.Tenant{Name: req.Name, Slug: slug}
	if err := s.store.CreateTenant(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns one tenant by ID.
func (s *TenantService) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// GetBySlug returns one tenant by slug.
func (s *TenantService) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	return s.store.GetTenantBySlug(ctx, strings.ToLower(slug))
}

// Update applies name and enabled changes.
func (s *TenantService) Update(ctx context.Context, id string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	return s.store.UpdateTenant(ctx, id, req)
}

// List returns all tenants, oldest first.
func (s *TenantService) List(ctx context.Context) ([]tenant.Tenant, error) {
	return s.store.ListTenants(ctx)
}

// ValidateExists fails with ErrValidation when the tenant is missing or
// disabled. Used when binding requests to an explicit tenant header.
func (s *TenantService) ValidateExists(ctx context.Context, id string) error {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: unknown tenant %s", domain.ErrValidation, id)
		}
		return err
	}
	if !t.Enabled {
		return fmt.Errorf("%w: tenant %s is disabled", domain.ErrValidation, id)
	}
	return nil
}
