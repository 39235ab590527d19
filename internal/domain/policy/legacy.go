package policy

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/wardenhq/warden/internal/domain/risk"
)

// Role is the autonomy level of an acting agent.
type Role string

const (
	RoleIntern     Role = "INTERN"
	RoleSpecialist Role = "SPECIALIST"
	RoleLead       Role = "LEAD"
	RoleCEO        Role = "CEO"
)

// AutonomyRule holds the approval defaults for one role.
type AutonomyRule struct {
	Role                      Role `json:"role" yaml:"role"`
	RequiresApprovalForYellow bool `json:"requires_approval_for_yellow" yaml:"requires_approval_for_yellow"`
}

// Allowlists is the legacy allow/block rule set, grouped by tool family.
type Allowlists struct {
	// Shell commands: blocklist is substring match and checked first,
	// allowlist is prefix match.
	ShellBlocklist []string `json:"shell_blocklist,omitempty" yaml:"shell_blocklist,omitempty"`
	ShellAllowlist []string `json:"shell_allowlist,omitempty" yaml:"shell_allowlist,omitempty"`

	// Network hosts: exact hostname or suffix-domain match.
	HostAllowlist []string `json:"host_allowlist,omitempty" yaml:"host_allowlist,omitempty"`

	// File paths: glob patterns. Write blocks are checked before write allows.
	FileReadAllow  []string `json:"file_read_allow,omitempty" yaml:"file_read_allow,omitempty"`
	FileWriteAllow []string `json:"file_write_allow,omitempty" yaml:"file_write_allow,omitempty"`
	FileWriteBlock []string `json:"file_write_block,omitempty" yaml:"file_write_block,omitempty"`
}

// Budget holds the cost inputs for the legacy budget check. A zero cap
// means that cap is not enforced.
type Budget struct {
	EstimatedCostUSD  float64 `json:"estimated_cost_usd"`
	PerRunCapUSD      float64 `json:"per_run_cap_usd"`
	TaskRemainingUSD  float64 `json:"task_remaining_usd"`
	DailyRemainingUSD float64 `json:"daily_remaining_usd"`

	taskSet, dailySet bool
}

// WithTaskRemaining marks the task budget as enforced.
func (b Budget) WithTaskRemaining(usd float64) Budget {
	b.TaskRemainingUSD = usd
	b.taskSet = true
	return b
}

// WithDailyRemaining marks the daily budget as enforced.
func (b Budget) WithDailyRemaining(usd float64) Budget {
	b.DailyRemainingUSD = usd
	b.dailySet = true
	return b
}

// Exceeded reports whether any enforced budget cap is blown, with the
// name of the failing check.
func (b Budget) Exceeded() (bool, string) {
	if b.PerRunCapUSD > 0 && b.EstimatedCostUSD > b.PerRunCapUSD {
		return true, "per-run cap"
	}
	if b.taskSet && b.EstimatedCostUSD > b.TaskRemainingUSD {
		return true, "task budget"
	}
	if b.dailySet && b.EstimatedCostUSD > b.DailyRemainingUSD {
		return true, "daily budget"
	}
	return false, ""
}

// EvaluateLegacy is the tier-2 fallback evaluator. It classifies risk,
// runs the allowlist checks for the tool family, then applies autonomy
// and budget rules. Any allowlist failure is DENY with RED risk, no
// matter the role or classified risk.
func EvaluateLegacy(tool string, args map[string]any, lists Allowlists, rule AutonomyRule, budget Budget) Result {
	level := risk.Classify(tool, args)

	if ok, ruleID, reason := checkAllowlists(tool, args, lists); !ok {
		return Result{
			Decision: DecisionDeny,
			Source:   ScopeLegacy,
			RuleID:   ruleID,
			Risk:     risk.LevelRed,
			Reason:   reason,
		}
	}

	if level == risk.LevelRed {
		return Result{
			Decision: DecisionNeedsApproval,
			Source:   ScopeLegacy,
			RuleID:   "risk:RED",
			Risk:     level,
			Reason:   "RED risk always requires approval",
		}
	}

	if level == risk.LevelYellow && rule.RequiresApprovalForYellow {
		return Result{
			Decision: DecisionNeedsApproval,
			Source:   ScopeLegacy,
			RuleID:   "autonomy:" + string(rule.Role),
			Risk:     level,
			Reason:   fmt.Sprintf("role %s requires approval for YELLOW risk", rule.Role),
		}
	}

	if exceeded, check := budget.Exceeded(); exceeded {
		return Result{
			Decision: DecisionNeedsApproval,
			Source:   ScopeLegacy,
			RuleID:   "budget:" + check,
			Risk:     level,
			Reason:   fmt.Sprintf("estimated cost exceeds %s", check),
		}
	}

	return Result{
		Decision: DecisionAllow,
		Source:   ScopeLegacy,
		Risk:     level,
		Reason:   "allowlist and autonomy checks passed",
	}
}

// checkAllowlists runs the allow/block checks appropriate to the tool
// family. Tools outside a known family pass through.
func checkAllowlists(tool string, args map[string]any, lists Allowlists) (ok bool, ruleID, reason string) {
	switch family(tool) {
	case "shell":
		cmd := stringArg(args, "command")
		if cmd == "" {
			return true, "", ""
		}
		// Blocklist first: substring match.
		for _, blocked := range lists.ShellBlocklist {
			if strings.Contains(cmd, blocked) {
				return false, "shell-block:" + blocked,
					fmt.Sprintf("command matches blocked pattern %q", blocked)
			}
		}
		if len(lists.ShellAllowlist) > 0 && !prefixMatch(lists.ShellAllowlist, cmd) {
			return false, "shell-allow",
				"command does not match any allowed prefix"
		}

	case "network":
		host := hostArg(args)
		if host == "" {
			return true, "", ""
		}
		if len(lists.HostAllowlist) > 0 && !hostMatch(lists.HostAllowlist, host) {
			return false, "host-allow",
				fmt.Sprintf("host %q is not on the allowlist", host)
		}

	case "file-read":
		path := stringArg(args, "path")
		if path == "" {
			return true, "", ""
		}
		if len(lists.FileReadAllow) > 0 && !globMatch(lists.FileReadAllow, path) {
			return false, "file-read-allow",
				fmt.Sprintf("path %q is not readable under the allowlist", path)
		}

	case "file-write":
		path := stringArg(args, "path")
		if path == "" {
			return true, "", ""
		}
		// Block patterns win over allow patterns.
		if globMatch(lists.FileWriteBlock, path) {
			return false, "file-write-block",
				fmt.Sprintf("path %q matches a write block pattern", path)
		}
		if len(lists.FileWriteAllow) > 0 && !globMatch(lists.FileWriteAllow, path) {
			return false, "file-write-allow",
				fmt.Sprintf("path %q is not writable under the allowlist", path)
		}
	}

	return true, "", ""
}

// family buckets tool names into allowlist families.
func family(tool string) string {
	switch strings.ToLower(tool) {
	case "shell", "run_tests", "install_deps":
		return "shell"
	case "http_get", "http_post", "fetch_url":
		return "network"
	case "read_file", "list_files", "search_code":
		return "file-read"
	case "write_file", "edit_file", "create_file", "delete_file", "move_file":
		return "file-write"
	}
	return ""
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}

// hostArg extracts a hostname from either a "host" or "url" argument.
func hostArg(args map[string]any) string {
	if h := stringArg(args, "host"); h != "" {
		return h
	}
	u := stringArg(args, "url")
	if u == "" {
		return ""
	}
	// Strip scheme and path, then the port. SplitHostPort keeps
	// bracketed IPv6 literals intact; a portless value passes through.
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		u = u[:i]
	}
	if host, _, err := net.SplitHostPort(u); err == nil {
		return host
	}
	return strings.Trim(u, "[]")
}

// prefixMatch reports whether cmd equals an allowed prefix or starts
// with one followed by a space ("go" matches "go test", not "gofmt").
func prefixMatch(prefixes []string, cmd string) bool {
	for _, p := range prefixes {
		if cmd == p || strings.HasPrefix(cmd, p+" ") {
			return true
		}
	}
	return false
}

// hostMatch matches exact hostnames or suffix domains (".example.com"
// style entries match any subdomain; bare domains match themselves and
// their subdomains).
func hostMatch(allowed []string, host string) bool {
	host = strings.ToLower(host)
	for _, a := range allowed {
		a = strings.ToLower(a)
		if host == a {
			return true
		}
		suffix := a
		if !strings.HasPrefix(suffix, ".") {
			suffix = "." + suffix
		}
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func globMatch(patterns []string, path string) bool {
	for _, p := range patterns {
		if matched, err := filepath.Match(p, path); err == nil && matched {
			return true
		}
		// Support ** for recursive directory matching.
		if strings.Contains(p, "**") {
			if matchDoubleStar(p, path) {
				return true
			}
		}
	}
	return false
}

// matchDoubleStar handles ** glob patterns for recursive path matching.
func matchDoubleStar(pattern, value string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(value, "/"))
}

// matchSegments recursively matches pattern segments against value segments.
func matchSegments(pat, val []string) bool {
	for len(pat) > 0 && len(val) > 0 {
		if pat[0] == "**" {
			pat = pat[1:]
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(val); i++ {
				if matchSegments(pat, val[i:]) {
					return true
				}
			}
			return false
		}
		matched, _ := filepath.Match(pat[0], val[0])
		if !matched {
			return false
		}
		pat = pat[1:]
		val = val[1:]
	}
	for _, p := range pat {
		if p != "**" {
			return false
		}
	}
	return len(val) == 0
}
