package policy

import (
	"fmt"
	"sort"

	"github.com/wardenhq/warden/internal/domain/risk"
)

// Evaluate checks a tool call against one envelope's rules, in order:
//  1. an exact tool-name entry in ToolPolicies,
//  2. the classified risk level appearing in RequireApprovalOnRisk,
//  3. the envelope's DefaultDecision.
//
// The boolean reports whether the envelope produced a decision at all.
func (e *Envelope) Evaluate(tool string, level risk.Level) (Result, bool) {
	if d, ok := e.ToolPolicies[tool]; ok {
		return Result{
			Decision:   d,
			Source:     e.ScopeKind,
			EnvelopeID: e.ID,
			RuleID:     "tool:" + tool,
			Risk:       level,
			Reason:     fmt.Sprintf("envelope %q tool policy for %q: %s", e.Name, tool, d),
		}, true
	}

	for _, l := range e.RequireApprovalOnRisk {
		if l == level {
			return Result{
				Decision:   DecisionNeedsApproval,
				Source:     e.ScopeKind,
				EnvelopeID: e.ID,
				RuleID:     "risk:" + string(level),
				Risk:       level,
				Reason:     fmt.Sprintf("envelope %q requires approval for %s risk", e.Name, level),
			}, true
		}
	}

	if e.DefaultDecision != "" {
		return Result{
			Decision:   e.DefaultDecision,
			Source:     e.ScopeKind,
			EnvelopeID: e.ID,
			RuleID:     "default",
			Risk:       level,
			Reason:     fmt.Sprintf("envelope %q default decision: %s", e.Name, e.DefaultDecision),
		}, true
	}

	return Result{}, false
}

// EvaluateEnvelopes scans active envelopes of a single scope in descending
// priority order and returns the first decision produced. Inactive
// envelopes are skipped. The boolean reports whether any envelope decided.
func EvaluateEnvelopes(envelopes []Envelope, tool string, level risk.Level) (Result, bool) {
	sorted := make([]Envelope, 0, len(envelopes))
	for _, e := range envelopes {
		if e.Active {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	for i := range sorted {
		if res, ok := sorted[i].Evaluate(tool, level); ok {
			return res, true
		}
	}
	return Result{}, false
}
