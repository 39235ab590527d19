package service

import (
	"context"
	"fmt"

	"github.com/wardenhq/warden/internal/adapter/ws"
	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/domain/deployment"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/port/database"
	"github.com/wardenhq/warden/internal/port/messagequeue"
)

// DeploymentService manages version deployments per environment: at
// most one ACTIVE deployment per environment, every state change
// recorded and published.
type DeploymentService struct {
	store database.Store
	queue messagequeue.Queue
	hub   *ws.Hub
}

// NewDeploymentService creates a DeploymentService. queue and hub may be nil.
func NewDeploymentService(store database.Store, q messagequeue.Queue, hub *ws.Hub) *DeploymentService {
	return &DeploymentService{store: store, queue: q, hub: hub}
}

// Create records a new PENDING deployment targeting a version. The
// previous version is captured from the currently active deployment in
// the environment, enabling rollback later.
func (s *DeploymentService) Create(ctx context.Context, req deployment.CreateRequest) (*deployment.Deployment, error) {
	if req.TemplateID == "" || req.EnvironmentID == "" || req.TargetVersionID == "" {
		return nil, fmt.Errorf("%w: template_id, environment_id and target_version_id are required", domain.ErrValidation)
	}

	d := &deployment.Deployment{
		TemplateID:      req.TemplateID,
		EnvironmentID:   req.EnvironmentID,
		TargetVersionID: req.TargetVersionID,
		Status:          deployment.StatusPending,
	}
	if req.PreviousVersionID != "" {
		d.PreviousVersionID = req.PreviousVersionID
	} else if current := s.activeIn(ctx, req.EnvironmentID); current != nil {
		d.PreviousVersionID = current.TargetVersionID
	}

	if err := s.store.CreateDeployment(ctx, d); err != nil {
		return nil, err
	}
	s.record(ctx, d, "create", fmt.Sprintf("deployment created targeting version %s", d.TargetVersionID), req.ActorID)
	s.announce(ctx, d, "create")
	return d, nil
}

// Activate marks a deployment ACTIVE, retiring any other ACTIVE
// deployment in the environment in the same transaction.
func (s *DeploymentService) Activate(ctx context.Context, id, actorID string) (*deployment.Deployment, error) {
	d, err := s.store.ActivateDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, d, "activate", fmt.Sprintf("version %s activated in environment %s", d.TargetVersionID, d.EnvironmentID), actorID)
	s.announce(ctx, d, "activate")
	return d, nil
}

// Rollback retires a deployment and activates a swap targeting its
// previous version. Deployments without a previous version cannot roll
// back.
func (s *DeploymentService) Rollback(ctx context.Context, id, actorID string) (*deployment.Deployment, error) {
	d, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.CanRollback() {
		return nil, fmt.Errorf("%w: deployment %s has no previous version to roll back to", domain.ErrValidation, id)
	}

	if err := s.store.UpdateDeploymentStatus(ctx, id, deployment.StatusRollingBack); err != nil {
		return nil, err
	}
	s.record(ctx, d, "rollback", fmt.Sprintf("rolling back to version %s", d.PreviousVersionID), actorID)

	// The swap inverts target and previous so rolling forward again
	// stays possible.
	swap := &deployment.Deployment{
		TemplateID:        d.TemplateID,
		EnvironmentID:     d.EnvironmentID,
		TargetVersionID:   d.PreviousVersionID,
		PreviousVersionID: d.TargetVersionID,
		Status:            deployment.StatusPending,
	}
	if err := s.store.CreateDeployment(ctx, swap); err != nil {
		return nil, err
	}

	activated, err := s.store.ActivateDeployment(ctx, swap.ID)
	if err != nil {
		return nil, err
	}

	// Activation retired the original as a sibling; mark the rollback
	// as finished explicitly in case it was not the active one.
	if err := s.store.UpdateDeploymentStatus(ctx, id, deployment.StatusRetired); err != nil && !isNotFound(err) {
		return nil, err
	}

	s.record(ctx, activated, "rollback", fmt.Sprintf("rollback deployment activated for version %s", activated.TargetVersionID), actorID)
	s.announce(ctx, activated, "rollback")
	return activated, nil
}

// Get returns one deployment.
func (s *DeploymentService) Get(ctx context.Context, id string) (*deployment.Deployment, error) {
	return s.store.GetDeployment(ctx, id)
}

// List returns deployments for an environment, newest first.
func (s *DeploymentService) List(ctx context.Context, environmentID string) ([]deployment.Deployment, error) {
	return s.store.ListDeployments(ctx, environmentID)
}

// History returns the change records for a deployment, oldest first.
func (s *DeploymentService) History(ctx context.Context, deploymentID string) ([]deployment.ChangeRecord, error) {
	return s.store.ListChangeRecords(ctx, deploymentID)
}

// activeIn returns the environment's ACTIVE deployment, or nil.
func (s *DeploymentService) activeIn(ctx context.Context, environmentID string) *deployment.Deployment {
	deployments, err := s.store.ListDeployments(ctx, environmentID)
	if err != nil {
		return nil
	}
	for i := range deployments {
		if deployments[i].Status == deployment.StatusActive {
			return &deployments[i]
		}
	}
	return nil
}

func (s *DeploymentService) record(ctx context.Context, d *deployment.Deployment, action, detail, actorID string) {
	rec := &deployment.ChangeRecord{
		DeploymentID: d.ID,
		Action:       action,
		Detail:       detail,
		ActorID:      actorID,
	}
	if err := s.store.InsertChangeRecord(ctx, rec); err != nil {
		// Change records are audit, not control flow; the deployment
		// write already committed.
		logStoreError("insert change record", err)
	}
}

func (s *DeploymentService) announce(ctx context.Context, d *deployment.Deployment, action string) {
	publish(ctx, s.queue, messagequeue.SubjectDeploymentChange, messagequeue.DeploymentChangePayload{
		TenantID:      middleware.TenantIDFromContext(ctx),
		DeploymentID:  d.ID,
		EnvironmentID: d.EnvironmentID,
		Action:        action,
		Status:        string(d.Status),
	})
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventDeploymentChange, ws.DeploymentChangeEvent{
			DeploymentID:  d.ID,
			EnvironmentID: d.EnvironmentID,
			Action:        action,
			Status:        string(d.Status),
		})
	}
}
