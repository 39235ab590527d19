// Package control defines the operator control gate: a circuit breaker
// that gates every actor operation behind the current operating mode.
// Deciding is a pure, total function of (mode, actor, operation).
package control

import (
	"fmt"
	"time"
)

// Mode is the operating mode of a scope (a project, or the whole system).
type Mode string

const (
	ModeNormal      Mode = "NORMAL"
	ModePaused      Mode = "PAUSED"
	ModeDraining    Mode = "DRAINING"
	ModeQuarantined Mode = "QUARANTINED"
)

// ActorKind identifies who is attempting an operation.
type ActorKind string

const (
	ActorAgent  ActorKind = "AGENT"
	ActorHuman  ActorKind = "HUMAN"
	ActorSystem ActorKind = "SYSTEM"
)

// Operation is the class of gated operation.
type Operation string

const (
	OpRunStart   Operation = "RUN_START"
	OpTransition Operation = "TRANSITION"
	OpToolCall   Operation = "TOOL_CALL"
)

// Decision is the gate's verdict.
type Decision string

const (
	DecisionAllow         Decision = "ALLOW"
	DecisionDeny          Decision = "DENY"
	DecisionNeedsApproval Decision = "NEEDS_APPROVAL"
)

// Record is one appended mode change. The effective mode for a scope is
// the most recent record matching that scope, falling back to the most
// recent global record, falling back to NORMAL.
type Record struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	ProjectID string    `json:"project_id,omitempty"` // empty = global
	Mode      Mode      `json:"mode"`
	Reason    string    `json:"reason,omitempty"`
	SetBy     string    `json:"set_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Effective is the resolved operating mode for a scope.
type Effective struct {
	Mode   Mode   `json:"mode"`
	Reason string `json:"reason,omitempty"`
	Source string `json:"source"` // "project", "global", or "default"
}

// Verdict is the gate's full answer for one operation.
type Verdict struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason"`
}

// ValidMode reports whether m is a known operating mode.
func ValidMode(m Mode) bool {
	switch m {
	case ModeNormal, ModePaused, ModeDraining, ModeQuarantined:
		return true
	}
	return false
}

// Decide renders the gate verdict for (mode, actor, operation).
// The table:
//
//	NORMAL:      everything ALLOW
//	PAUSED:      humans NEEDS_APPROVAL, agents/system DENY
//	DRAINING:    RUN_START DENY for everyone; otherwise system
//	             NEEDS_APPROVAL, agents/humans ALLOW
//	QUARANTINED: humans NEEDS_APPROVAL, agents/system DENY
func Decide(mode Mode, actor ActorKind, op Operation) Verdict {
	switch mode {
	case ModeNormal:
		return Verdict{Decision: DecisionAllow, Reason: "operating mode NORMAL"}

	case ModePaused:
		if actor == ActorHuman {
			return Verdict{
				Decision: DecisionNeedsApproval,
				Reason:   "operations are PAUSED: human actions require approval",
			}
		}
		return Verdict{
			Decision: DecisionDeny,
			Reason:   fmt.Sprintf("operations are PAUSED: %s actions denied", actor),
		}

	case ModeDraining:
		if op == OpRunStart {
			return Verdict{
				Decision: DecisionDeny,
				Reason:   "scope is DRAINING: new runs denied",
			}
		}
		if actor == ActorSystem {
			return Verdict{
				Decision: DecisionNeedsApproval,
				Reason:   "scope is DRAINING: system actions require approval",
			}
		}
		return Verdict{
			Decision: DecisionAllow,
			Reason:   "scope is DRAINING: in-flight work may continue",
		}

	case ModeQuarantined:
		if actor == ActorHuman {
			return Verdict{
				Decision: DecisionNeedsApproval,
				Reason:   "scope is QUARANTINED: human actions require approval",
			}
		}
		return Verdict{
			Decision: DecisionDeny,
			Reason:   fmt.Sprintf("scope is QUARANTINED: %s actions denied", actor),
		}
	}

	// Unknown modes behave like QUARANTINED for non-humans: deny.
	return Verdict{
		Decision: DecisionDeny,
		Reason:   fmt.Sprintf("unknown operating mode %q: denied", mode),
	}
}
