// Package risk classifies tool calls into risk levels.
// Classification is a pure function of the tool name and its arguments:
// a static table assigns the base level, and credential-like or
// production-referencing arguments force an upgrade to RED.
package risk

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Level is the risk classification of a tool call.
type Level string

const (
	LevelGreen  Level = "GREEN"
	LevelYellow Level = "YELLOW"
	LevelRed    Level = "RED"
)

// baseRisk maps known tool names to their base risk level.
// Reads and introspection are GREEN, local mutations are YELLOW,
// irreversible / external / secret-adjacent tools are RED.
var baseRisk = map[string]Level{
	// Read-only tools
	"read_file":    LevelGreen,
	"list_files":   LevelGreen,
	"search_code":  LevelGreen,
	"get_task":     LevelGreen,
	"list_tasks":   LevelGreen,
	"read_docs":    LevelGreen,
	"git_status":   LevelGreen,
	"git_log":      LevelGreen,
	"git_diff":     LevelGreen,
	"http_get":     LevelGreen,
	"inspect_env":  LevelGreen,
	"list_agents":  LevelGreen,
	"view_metrics": LevelGreen,

	// Local mutations
	"write_file":     LevelYellow,
	"edit_file":      LevelYellow,
	"create_file":    LevelYellow,
	"move_file":      LevelYellow,
	"shell":          LevelYellow,
	"run_tests":      LevelYellow,
	"git_commit":     LevelYellow,
	"git_branch":     LevelYellow,
	"install_deps":   LevelYellow,
	"update_task":    LevelYellow,
	"create_task":    LevelYellow,
	"assign_task":    LevelYellow,
	"post_message":   LevelYellow,
	"http_post":      LevelYellow,
	"format_code":    LevelYellow,
	"generate_docs":  LevelYellow,
	"create_comment": LevelYellow,

	// Irreversible, external, or secret-adjacent
	"delete_file":     LevelRed,
	"git_push":        LevelRed,
	"git_force_push":  LevelRed,
	"deploy":          LevelRed,
	"rollback":        LevelRed,
	"merge_pr":        LevelRed,
	"send_email":      LevelRed,
	"publish_package": LevelRed,
	"manage_secrets":  LevelRed,
	"drop_table":      LevelRed,
	"provision_infra": LevelRed,
	"delete_branch":   LevelRed,
	"payment":         LevelRed,
}

// secretPatterns match credential-like material in serialized arguments.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)api[_-]?key\s*[:=]`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]{16,}`),
	regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`),
	regexp.MustCompile(`(?i)secret[_-]?(key|token)?\s*[:=]`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
}

// productionPatterns match references to production systems.
var productionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bproduction\b`),
	regexp.MustCompile(`(?i)\bprod\b`),
	regexp.MustCompile(`(?i)\blive\b`),
	regexp.MustCompile(`(?i)\b(main|master)\b.{0,20}\bbranch\b`),
	regexp.MustCompile(`(?i)\bbranch\b.{0,20}\b(main|master)\b`),
	regexp.MustCompile(`(?i)(push|merge|deploy).{0,30}\b(main|master)\b`),
}

// Classify returns the risk level for a tool call. Unknown tools default
// to YELLOW: the classifier fails toward caution, not toward blanket
// denial. Credential-like or production-referencing arguments force RED
// regardless of the base level.
func Classify(tool string, args map[string]any) Level {
	level, ok := baseRisk[strings.ToLower(tool)]
	if !ok {
		level = LevelYellow
	}

	if len(args) > 0 {
		serialized := serializeArgs(args)
		if matchesAny(secretPatterns, serialized) || matchesAny(productionPatterns, serialized) {
			return LevelRed
		}
	}

	return level
}

// ContainsSecrets reports whether the serialized arguments match the
// credential pattern set. Exposed so callers can distinguish a secret
// upgrade from a production upgrade in audit reasons.
func ContainsSecrets(args map[string]any) bool {
	if len(args) == 0 {
		return false
	}
	return matchesAny(secretPatterns, serializeArgs(args))
}

// ReferencesProduction reports whether the serialized arguments match the
// production indicator set.
func ReferencesProduction(args map[string]any) bool {
	if len(args) == 0 {
		return false
	}
	return matchesAny(productionPatterns, serializeArgs(args))
}

// serializeArgs renders arguments as JSON for pattern matching. Marshal
// failures degrade to fmt-style key scanning rather than skipping checks.
func serializeArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		var sb strings.Builder
		for k, v := range args {
			sb.WriteString(k)
			sb.WriteString("=")
			if s, ok := v.(string); ok {
				sb.WriteString(s)
			}
			sb.WriteString(" ")
		}
		return sb.String()
	}
	return string(data)
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
