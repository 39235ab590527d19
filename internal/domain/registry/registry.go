// Package registry defines the agent registry: templates (an agent
// role), versions (immutable, content-addressed configuration
// snapshots), and instances (a running binding of template + version +
// environment). Legacy opaque agent identifiers resolve into this
// triple, lazily materializing missing records.
package registry

import (
	"regexp"
	"strings"
	"time"
)

// Template is a named, slugged family of agent configurations within a
// tenant/project. Identity is immutable; templates are deactivated,
// never deleted.
type Template struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	ProjectID string            `json:"project_id,omitempty"`
	Name      string            `json:"name"`
	Slug      string            `json:"slug"`
	Active    bool              `json:"active"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Version is an immutable configuration snapshot of a template. Two
// versions with identical genomes collapse to the same row: GenomeHash
// is the content address.
type Version struct {
	ID         string        `json:"id"`
	TemplateID string        `json:"template_id"`
	TenantID   string        `json:"tenant_id"`
	Number     int           `json:"number"`
	Genome     Genome        `json:"genome"`
	GenomeHash string        `json:"genome_hash"`
	Status     VersionStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Instance is a running, assignable binding of (template, version,
// environment). Exactly one instance exists per legacy agent identifier.
type Instance struct {
	ID            string         `json:"id"`
	TemplateID    string         `json:"template_id"`
	VersionID     string         `json:"version_id"`
	TenantID      string         `json:"tenant_id"`
	EnvironmentID string         `json:"environment_id,omitempty"`
	LegacyAgentID string         `json:"legacy_agent_id,omitempty"`
	Status        InstanceStatus `json:"status"`
	RetiredAt     *time.Time     `json:"retired_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Triple is the resolved registry identity of an agent.
type Triple struct {
	InstanceID string `json:"instance_id"`
	VersionID  string `json:"version_id"`
	TemplateID string `json:"template_id"`
}

// LegacyAgent is a pre-registry agent record: the resolver's source of
// truth when materializing templates, versions, and instances.
type LegacyAgent struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	ProjectID string            `json:"project_id,omitempty"`
	Name      string            `json:"name"`
	Role      string            `json:"role,omitempty"`
	Config    map[string]string `json:"config,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// VersionStatus is the lifecycle status of a version.
type VersionStatus string

const (
	VersionDraft      VersionStatus = "DRAFT"
	VersionTesting    VersionStatus = "TESTING"
	VersionCandidate  VersionStatus = "CANDIDATE"
	VersionApproved   VersionStatus = "APPROVED"
	VersionDeprecated VersionStatus = "DEPRECATED"
	VersionRetired    VersionStatus = "RETIRED"
)

// versionRank orders version statuses along the lifecycle ladder.
var versionRank = map[VersionStatus]int{
	VersionDraft:      0,
	VersionTesting:    1,
	VersionCandidate:  2,
	VersionApproved:   3,
	VersionDeprecated: 4,
	VersionRetired:    5,
}

// CanAdvanceVersion reports whether a version status change is legal.
// The ladder is forward-only: skipping stages is allowed (DRAFT straight
// to APPROVED), moving backward is not, and RETIRED is terminal.
func CanAdvanceVersion(from, to VersionStatus) bool {
	fromRank, okFrom := versionRank[from]
	toRank, okTo := versionRank[to]
	if !okFrom || !okTo {
		return false
	}
	return toRank > fromRank
}

// InstanceStatus is the operational status of an instance.
type InstanceStatus string

const (
	InstanceProvisioning InstanceStatus = "PROVISIONING"
	InstanceActive       InstanceStatus = "ACTIVE"
	InstancePaused       InstanceStatus = "PAUSED"
	InstanceReadonly     InstanceStatus = "READONLY"
	InstanceDraining     InstanceStatus = "DRAINING"
	InstanceQuarantined  InstanceStatus = "QUARANTINED"
	InstanceRetired      InstanceStatus = "RETIRED"
)

// instanceTransitions is the adjacency table for instance statuses.
var instanceTransitions = map[InstanceStatus][]InstanceStatus{
	InstanceProvisioning: {InstanceActive, InstanceRetired},
	InstanceActive:       {InstancePaused, InstanceReadonly, InstanceDraining, InstanceQuarantined, InstanceRetired},
	InstancePaused:       {InstanceActive, InstanceRetired},
	InstanceReadonly:     {InstanceActive, InstanceRetired},
	InstanceDraining:     {InstanceActive, InstanceRetired},
	InstanceQuarantined:  {InstanceActive, InstanceRetired},
	InstanceRetired:      {},
}

// CanTransitionInstance reports whether an instance status change is legal.
func CanTransitionInstance(from, to InstanceStatus) bool {
	for _, next := range instanceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var slugCleanup = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a deterministic slug from an agent name: lowercase,
// non-alphanumeric runs collapsed to single hyphens, trimmed.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugCleanup.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "agent"
	}
	return s
}
