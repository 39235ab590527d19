package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wardenhq/warden/internal/domain/policy"
)

// --- Policy Envelopes ---

func (s *Store) CreateEnvelope(ctx context.Context, env *policy.Envelope) error {
	toolJSON, err := json.Marshal(env.ToolPolicies)
	if err != nil {
		return fmt.Errorf("marshal tool_policies: %w", err)
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO policy_envelopes (tenant_id, name, scope_kind, scope_id, priority, active, tool_policies, require_approval_on_risk, default_decision)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		tenantFromCtx(ctx), env.Name, string(env.ScopeKind), env.ScopeID, env.Priority, env.Active,
		toolJSON, riskLevelsToText(env.RequireApprovalOnRisk), string(env.DefaultDecision),
	).Scan(&env.ID, &env.CreatedAt, &env.UpdatedAt)
}

func (s *Store) GetEnvelope(ctx context.Context, id string) (*policy.Envelope, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, scope_kind, scope_id, priority, active, tool_policies, require_approval_on_risk, default_decision, created_at, updated_at
		 FROM policy_envelopes WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))

	env, err := scanEnvelope(row)
	if err != nil {
		return nil, notFoundWrap(err, "get envelope %s", id)
	}
	return &env, nil
}

// ListEnvelopesForScope returns every envelope bound to one scope ref,
// active or not. Callers filter and sort; the precedence scan belongs
// to the policy engine.
func (s *Store) ListEnvelopesForScope(ctx context.Context, ref policy.ScopeRef) ([]policy.Envelope, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, scope_kind, scope_id, priority, active, tool_policies, require_approval_on_risk, default_decision, created_at, updated_at
		 FROM policy_envelopes
		 WHERE tenant_id = $1 AND scope_kind = $2 AND scope_id = $3
		 ORDER BY priority DESC, created_at ASC`,
		tenantFromCtx(ctx), string(ref.Kind), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list envelopes for %s/%s: %w", ref.Kind, ref.ID, err)
	}
	defer rows.Close()

	var envelopes []policy.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, rows.Err()
}

func (s *Store) UpdateEnvelope(ctx context.Context, env *policy.Envelope) error {
	toolJSON, err := json.Marshal(env.ToolPolicies)
	if err != nil {
		return fmt.Errorf("marshal tool_policies: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE policy_envelopes
		 SET name = $2, priority = $3, active = $4, tool_policies = $5, require_approval_on_risk = $6, default_decision = $7, updated_at = now()
		 WHERE id = $1 AND tenant_id = $8`,
		env.ID, env.Name, env.Priority, env.Active, toolJSON,
		riskLevelsToText(env.RequireApprovalOnRisk), string(env.DefaultDecision), tenantFromCtx(ctx))
	return execExpectOne(tag, err, "update envelope %s", env.ID)
}

func (s *Store) DeleteEnvelope(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM policy_envelopes WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "delete envelope %s", id)
}

func scanEnvelope(row scannable) (policy.Envelope, error) {
	var env policy.Envelope
	var toolJSON []byte
	var riskText []string
	err := row.Scan(&env.ID, &env.TenantID, &env.Name, &env.ScopeKind, &env.ScopeID, &env.Priority,
		&env.Active, &toolJSON, &riskText, &env.DefaultDecision, &env.CreatedAt, &env.UpdatedAt)
	if err != nil {
		return env, err
	}
	if toolJSON != nil {
		if err := json.Unmarshal(toolJSON, &env.ToolPolicies); err != nil {
			return env, fmt.Errorf("unmarshal tool_policies: %w", err)
		}
	}
	env.RequireApprovalOnRisk = textToRiskLevels(riskText)
	return env, nil
}
