package registry

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Genome is the content-addressed configuration bundle identifying one
// agent version: model settings plus hashes of the prompt and tool
// manifests. Two genomes with the same canonical form are the same
// version. Provenance records lineage only and stays out of the
// canonical form, so legacy agents with identical configuration
// collapse to one version.
type Genome struct {
	Model            ModelConfig       `json:"model"`
	PromptBundleHash string            `json:"prompt_bundle_hash,omitempty"`
	ToolManifestHash string            `json:"tool_manifest_hash,omitempty"`
	Provenance       Provenance        `json:"provenance"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// ModelConfig holds the model invocation settings that are part of the
// genome's identity.
type ModelConfig struct {
	Provider    string  `json:"provider,omitempty"`
	Name        string  `json:"name,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Provenance records where a genome came from.
type Provenance struct {
	Source        string `json:"source,omitempty"` // "legacy-migration", "api", "rollout"
	LegacyAgentID string `json:"legacy_agent_id,omitempty"`
	MigratedFrom  string `json:"migrated_from,omitempty"`
}

// Hash returns the blake2b-256 content address of the genome in hex.
// Only the canonical form participates: map keys are sorted and
// provenance is excluded, so genomes differing only in map iteration
// order or in where they came from hash identically.
func (g Genome) Hash() string {
	sum := blake2b.Sum256([]byte(g.canonical()))
	return hex.EncodeToString(sum[:])
}

// canonical renders the genome as a deterministic string. JSON marshal
// of the struct is already field-ordered; Extra needs explicit sorting.
func (g Genome) canonical() string {
	base := struct {
		Model            ModelConfig `json:"model"`
		PromptBundleHash string      `json:"prompt_bundle_hash"`
		ToolManifestHash string      `json:"tool_manifest_hash"`
	}{g.Model, g.PromptBundleHash, g.ToolManifestHash}

	data, err := json.Marshal(base)
	if err != nil {
		// Marshal of a plain struct cannot fail; keep a degenerate fallback.
		data = []byte(fmt.Sprintf("%+v", base))
	}

	var sb strings.Builder
	sb.Write(data)

	keys := make([]string, 0, len(g.Extra))
	for k := range g.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString("|")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(g.Extra[k])
	}

	return sb.String()
}

// GenomeFromLegacyConfig builds a genome from a legacy agent's stored
// configuration map. Known keys map onto structured fields; the rest
// are preserved in Extra so they still participate in the hash.
func GenomeFromLegacyConfig(legacy *LegacyAgent) Genome {
	g := Genome{
		Provenance: Provenance{
			Source:        "legacy-migration",
			LegacyAgentID: legacy.ID,
		},
	}

	extra := make(map[string]string)
	for k, v := range legacy.Config {
		switch k {
		case "model_provider":
			g.Model.Provider = v
		case "model", "model_name":
			g.Model.Name = v
		case "prompt_bundle_hash":
			g.PromptBundleHash = v
		case "tool_manifest_hash":
			g.ToolManifestHash = v
		default:
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		g.Extra = extra
	}

	return g
}
