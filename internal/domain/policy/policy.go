// Package policy defines the domain model for Warden's policy layer.
// Two tiers govern agent actions: scoped policy envelopes (version >
// project > tenant precedence) and a legacy allowlist/autonomy fallback
// used when no envelope produces a decision.
package policy

import (
	"time"

	"github.com/wardenhq/warden/internal/domain/risk"
)

// Decision is the outcome of a policy evaluation.
type Decision string

const (
	DecisionAllow         Decision = "ALLOW"
	DecisionDeny          Decision = "DENY"
	DecisionNeedsApproval Decision = "NEEDS_APPROVAL"
)

// ScopeKind identifies the level an envelope (or a decision) is bound to.
type ScopeKind string

const (
	ScopeVersion ScopeKind = "version"
	ScopeProject ScopeKind = "project"
	ScopeTenant  ScopeKind = "tenant"
	ScopeLegacy  ScopeKind = "legacy"
	ScopeSystem  ScopeKind = "system"
)

// ScopeRef is a tagged scope variant: exactly one kind with its identifier.
type ScopeRef struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

// Scope carries the identifiers supplied with an evaluation request.
// Unset fields simply exclude that tier from the precedence scan.
type Scope struct {
	VersionID string `json:"version_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
}

// Refs expands the scope into its tagged variants in strict precedence
// order: version, then project, then tenant. A version-scoped envelope
// always wins over a project- or tenant-scoped one, regardless of priority.
func (s Scope) Refs() []ScopeRef {
	refs := make([]ScopeRef, 0, 3)
	if s.VersionID != "" {
		refs = append(refs, ScopeRef{Kind: ScopeVersion, ID: s.VersionID})
	}
	if s.ProjectID != "" {
		refs = append(refs, ScopeRef{Kind: ScopeProject, ID: s.ProjectID})
	}
	if s.TenantID != "" {
		refs = append(refs, ScopeRef{Kind: ScopeTenant, ID: s.TenantID})
	}
	return refs
}

// Envelope is a named, prioritized rule set scoped to exactly one of
// version, project, or tenant. Within a scope, higher priority envelopes
// are evaluated first.
type Envelope struct {
	ID                    string              `json:"id" yaml:"-"`
	TenantID              string              `json:"tenant_id" yaml:"-"`
	Name                  string              `json:"name" yaml:"name"`
	ScopeKind             ScopeKind           `json:"scope_kind" yaml:"scope_kind"`
	ScopeID               string              `json:"scope_id" yaml:"scope_id"`
	Priority              int                 `json:"priority" yaml:"priority"`
	Active                bool                `json:"active" yaml:"active"`
	ToolPolicies          map[string]Decision `json:"tool_policies,omitempty" yaml:"tool_policies,omitempty"`
	RequireApprovalOnRisk []risk.Level        `json:"require_approval_on_risk,omitempty" yaml:"require_approval_on_risk,omitempty"`
	DefaultDecision       Decision            `json:"default_decision,omitempty" yaml:"default_decision,omitempty"`
	CreatedAt             time.Time           `json:"created_at" yaml:"-"`
	UpdatedAt             time.Time           `json:"updated_at" yaml:"-"`
}

// Result captures a policy decision and the rule context that produced it.
type Result struct {
	Decision   Decision   `json:"decision"`
	Source     ScopeKind  `json:"source"`
	EnvelopeID string     `json:"envelope_id,omitempty"`
	RuleID     string     `json:"rule_id,omitempty"`
	Risk       risk.Level `json:"risk"`
	Reason     string     `json:"reason"`
}

// ValidDecision reports whether d is a known decision value.
func ValidDecision(d Decision) bool {
	switch d {
	case DecisionAllow, DecisionDeny, DecisionNeedsApproval:
		return true
	}
	return false
}
