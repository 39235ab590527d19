package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wardenhq/warden/internal/adapter/otel"
	"github.com/wardenhq/warden/internal/adapter/ws"
	"github.com/wardenhq/warden/internal/domain/approval"
	"github.com/wardenhq/warden/internal/domain/control"
	"github.com/wardenhq/warden/internal/domain/event"
	"github.com/wardenhq/warden/internal/domain/policy"
	"github.com/wardenhq/warden/internal/domain/registry"
	"github.com/wardenhq/warden/internal/domain/risk"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/port/database"
	"github.com/wardenhq/warden/internal/port/messagequeue"
)

// GatekeeperService is the single entry point for "may this agent do
// this": registry resolution, the operator gate, and the two policy
// tiers, with every verdict audited and announced.
type GatekeeperService struct {
	store     database.Store
	registry  *RegistryService
	control   *ControlService
	policy    *PolicyService
	approvals *ApprovalService
	queue     messagequeue.Queue
	hub       *ws.Hub
	metrics   *otel.Metrics
}

// NewGatekeeperService wires the gatekeeper. queue, hub and metrics may
// be nil.
func NewGatekeeperService(
	store database.Store,
	reg *RegistryService,
	ctl *ControlService,
	pol *PolicyService,
	appr *ApprovalService,
	q messagequeue.Queue,
	hub *ws.Hub,
	m *otel.Metrics,
) *GatekeeperService {
	return &GatekeeperService{
		store: store, registry: reg, control: ctl, policy: pol,
		approvals: appr, queue: q, hub: hub, metrics: m,
	}
}

// ActionRequest describes one tool call awaiting judgment.
type ActionRequest struct {
	InstanceID    string         `json:"instance_id,omitempty"`
	LegacyAgentID string         `json:"legacy_agent_id,omitempty"`
	TaskID        string         `json:"task_id,omitempty"`
	ProjectID     string         `json:"project_id,omitempty"`
	Tool          string         `json:"tool"`
	Args          map[string]any `json:"args,omitempty"`
	ActorType     string         `json:"actor_type,omitempty"`
	Role          policy.Role    `json:"role,omitempty"`
	Justification string         `json:"justification,omitempty"`
	Budget        policy.Budget  `json:"budget,omitempty"`
}

// ActionVerdict is the gatekeeper's answer.
type ActionVerdict struct {
	Decision   policy.Decision  `json:"decision"`
	Risk       risk.Level       `json:"risk"`
	Source     policy.ScopeKind `json:"source"`
	RuleID     string           `json:"rule_id,omitempty"`
	Reason     string           `json:"reason"`
	ApprovalID string           `json:"approval_id,omitempty"`
	InstanceID string           `json:"instance_id,omitempty"`
}

// EvaluateAction renders a verdict for one tool call. The pipeline:
// resolve the agent's registry identity (materializing legacy agents),
// consult the operator gate, then the policy tiers. ALLOW appends a
// TOOL_CALL event; NEEDS_APPROVAL opens an approval; DENY appends a
// POLICY_DENIED event and publishes on the denied subject too.
func (g *GatekeeperService) EvaluateAction(ctx context.Context, req ActionRequest) (*ActionVerdict, error) {
	ctx, span := otel.StartEvaluateSpan(ctx, req.InstanceID, req.Tool)
	defer span.End()
	start := time.Now()

	triple, err := g.registry.Resolve(ctx, ResolveRequest{
		InstanceID:      req.InstanceID,
		LegacyAgentID:   req.LegacyAgentID,
		CreateIfMissing: true,
	})
	if err != nil {
		return nil, err
	}

	level := risk.Classify(req.Tool, req.Args)

	gate, err := g.control.Gate(ctx, req.ProjectID, actorKind(req.ActorType), control.OpToolCall)
	if err != nil {
		return nil, err
	}

	var verdict *ActionVerdict
	if gate.Decision != control.DecisionAllow {
		verdict = &ActionVerdict{
			Decision:   policy.Decision(gate.Decision),
			Risk:       level,
			Source:     policy.ScopeSystem,
			RuleID:     "control-gate",
			Reason:     gate.Reason,
			InstanceID: triple.InstanceID,
		}
	} else {
		res, err := g.policy.Decide(ctx, EvaluateRequest{
			Tool: req.Tool,
			Args: req.Args,
			Scope: policy.Scope{
				VersionID: triple.VersionID,
				ProjectID: req.ProjectID,
				TenantID:  middleware.TenantIDFromContext(ctx),
			},
			Role:   req.Role,
			Budget: req.Budget,
		})
		if err != nil {
			return nil, err
		}
		verdict = &ActionVerdict{
			Decision:   res.Decision,
			Risk:       res.Risk,
			Source:     res.Source,
			RuleID:     res.RuleID,
			Reason:     res.Reason,
			InstanceID: triple.InstanceID,
		}
	}

	if err := g.settle(ctx, req, triple, verdict); err != nil {
		return nil, err
	}

	g.metrics.RecordDecision(ctx, string(verdict.Decision), string(verdict.Source))
	g.metrics.RecordEvaluateDuration(ctx, time.Since(start).Seconds())

	g.announce(ctx, req, verdict)
	return verdict, nil
}

// settle applies the verdict's side effects: the audit event and, for
// NEEDS_APPROVAL, the pending approval.
func (g *GatekeeperService) settle(ctx context.Context, req ActionRequest, triple *registry.Triple, verdict *ActionVerdict) error {
	switch verdict.Decision {
	case policy.DecisionAllow:
		g.appendEvent(ctx, req, triple, verdict, event.TypeToolCall)

	case policy.DecisionNeedsApproval:
		a, err := g.approvals.Request(ctx, &approval.Approval{
			ProjectID:     req.ProjectID,
			TaskID:        req.TaskID,
			InstanceID:    triple.InstanceID,
			Tool:          req.Tool,
			Risk:          verdict.Risk,
			Justification: req.Justification,
			RequestedBy:   requestedBy(req),
		})
		if err != nil {
			return err
		}
		verdict.ApprovalID = a.ID
		g.appendEvent(ctx, req, triple, verdict, event.TypeApprovalRequested)

	case policy.DecisionDeny:
		g.appendEvent(ctx, req, triple, verdict, event.TypePolicyDenied)
	}
	return nil
}

func (g *GatekeeperService) appendEvent(ctx context.Context, req ActionRequest, triple *registry.Triple, verdict *ActionVerdict, evType event.Type) {
	if req.TaskID == "" {
		return
	}
	meta, _ := json.Marshal(map[string]string{
		"tool":     req.Tool,
		"decision": string(verdict.Decision),
		"risk":     string(verdict.Risk),
		"source":   string(verdict.Source),
	})
	ev := &event.TaskEvent{
		EventID: event.BuildEventID(req.TaskID, evType, req.ActorType, triple.InstanceID,
			verdict.ApprovalID, verdict.RuleID, event.StatusDelta{}),
		TaskID:     req.TaskID,
		Type:       evType,
		ActorType:  req.ActorType,
		ActorID:    triple.InstanceID,
		RelatedID:  verdict.ApprovalID,
		RuleID:     verdict.RuleID,
		InstanceID: triple.InstanceID,
		Metadata:   meta,
	}
	if _, err := g.store.InsertEvent(ctx, ev); err != nil {
		logStoreError("insert gatekeeper event", err)
	}
}

func (g *GatekeeperService) announce(ctx context.Context, req ActionRequest, verdict *ActionVerdict) {
	payload := messagequeue.DecisionPayload{
		TenantID:   middleware.TenantIDFromContext(ctx),
		ProjectID:  req.ProjectID,
		InstanceID: verdict.InstanceID,
		Tool:       req.Tool,
		Decision:   string(verdict.Decision),
		Risk:       string(verdict.Risk),
		Source:     string(verdict.Source),
		Reason:     verdict.Reason,
		RuleID:     verdict.RuleID,
	}
	publish(ctx, g.queue, messagequeue.SubjectDecision, payload)
	if verdict.Decision == policy.DecisionDeny {
		publish(ctx, g.queue, messagequeue.SubjectPolicyDenied, payload)
	}

	if g.hub != nil {
		g.hub.BroadcastEvent(ctx, ws.EventDecision, ws.DecisionEvent{
			InstanceID: verdict.InstanceID,
			TaskID:     req.TaskID,
			Tool:       req.Tool,
			Risk:       string(verdict.Risk),
			Outcome:    string(verdict.Decision),
			RuleID:     verdict.RuleID,
			Source:     string(verdict.Source),
			Reason:     verdict.Reason,
		})
	}
}

func requestedBy(req ActionRequest) string {
	if req.InstanceID != "" {
		return req.InstanceID
	}
	return req.LegacyAgentID
}
