package abac

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hybridauth/internal/apierr"
)

// DefaultDenyReason is returned whenever no candidate policy matches a
// request, per spec (I2).
const DefaultDenyReason = "No matching policy found"

// Engine is the Decision Engine (C4): it resolves attributes, fetches
// candidates, arbitrates by priority/effect, and writes the audit trail.
// Grounded on internal/policy.Engine.Evaluate/Explain in the teacher repo,
// generalized from its fixed approval-workflow logic to the spec's
// deny-overrides/continue-on-allow arbitration.
type Engine struct {
	store     *Store
	resolver  *Resolver
	evaluator *Evaluator
	matcher   *Matcher
	logger    *slog.Logger
}

func NewEngine(store *Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		resolver:  NewResolver(),
		evaluator: NewEvaluator(),
		matcher:   NewMatcher(),
		logger:    logger,
	}
}

// Check implements spec §4.4's algorithm: attribute resolution, candidate
// matching, deny-overrides-with-continue-on-allow arbitration, and a
// synchronous audit write. The returned error is non-nil only on an
// INTERNAL failure (beginning the transaction, reading attributes or
// candidate policies, writing the audit record, or committing) — a deny
// decision is a normal, successful return (spec §7).
func (e *Engine) Check(ctx context.Context, req AccessRequest) (Decision, error) {
	start := time.Now()

	// Spec §5: attribute reads and the audit write are one logical
	// transaction per decision, the same way internal/workflow.Store wraps
	// its multi-statement save under a single BeginTx/Commit.
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return Decision{}, err
	}
	defer tx.Rollback()

	var resourceJSON []byte
	if req.ResourceObject != nil {
		resourceJSON, _ = json.Marshal(req.ResourceObject)
	}
	resourceAttrs, err := e.store.GetResourceAttributesTx(ctx, tx, req.ResourceType, req.ResourceID)
	if err != nil {
		return Decision{}, err
	}
	subjectBag, resourceBag, envBag := e.resolver.Resolve(req.Subject, req.ResourceType, req.ResourceID,
		resourceJSON, resourceAttrs, req.Context)
	bags := Bags{Subject: subjectBag, Resource: resourceBag, Environment: envBag}

	candidatePool, err := e.store.ListCandidatePoliciesTx(ctx, tx, req.Action, req.ResourceType)
	if err != nil {
		return Decision{}, err
	}
	candidates := e.matcher.Candidates(candidatePool, req.Subject)

	decision := EffectDeny
	reason := DefaultDenyReason
	var matched *Policy
	evaluated := make([]int64, 0, len(candidates))

	for i := range candidates {
		p := candidates[i]
		evaluated = append(evaluated, p.ID)
		if !e.evaluator.EvaluateGroup(p.Conditions, bags) {
			continue
		}
		matchedCopy := p
		decision = p.Effect
		reason = fmt.Sprintf("Policy '%s' matched", p.Name)
		matched = &matchedCopy
		if p.Effect == EffectDeny {
			break
		}
		// Effect is ALLOW: keep iterating so a later, equal-or-lower
		// priority DENY can still override (spec §4.4 step 5, §9).
	}

	elapsedMS := time.Since(start).Milliseconds()

	rec := &AuditRecord{
		SubjectID:         req.Subject.ID,
		Action:            req.Action,
		ResourceType:      req.ResourceType,
		ResourceID:        req.ResourceID,
		Decision:          decision,
		SubjectBag:        subjectBag,
		ResourceBag:       resourceBag,
		EnvironmentBag:    envBag,
		EvaluatedPolicies: evaluated,
		EvaluationTimeMS:  elapsedMS,
		Reason:            reason,
	}
	if matched != nil {
		id := matched.ID
		rec.MatchedPolicyID = &id
	}
	if req.Context != nil {
		rec.IPAddress = req.Context.IPAddress
		rec.UserAgent = req.Context.UserAgent
		rec.Endpoint = req.Context.Endpoint
	}

	if err := e.store.InsertAuditTx(ctx, tx, rec); err != nil {
		e.logger.Error("audit write failed", "subject", req.Subject.ID, "action", req.Action, "error", err)
		return Decision{}, apierr.NewInternal(err, "audit write failed, no decision granted")
	}
	if err := tx.Commit(); err != nil {
		e.logger.Error("decision transaction commit failed", "subject", req.Subject.ID, "action", req.Action, "error", err)
		return Decision{}, apierr.NewInternal(err, "commit decision, no access granted")
	}

	allowed := decision == EffectAllow
	e.logger.Debug("access decision", "subject", req.Subject.ID, "action", req.Action,
		"resource_type", req.ResourceType, "effect", decision, "reason", reason)

	return Decision{
		Allowed:       allowed,
		Reason:        reason,
		MatchedPolicy: matched,
		EvaluatedIDs:  evaluated,
		ElapsedMS:     elapsedMS,
	}, nil
}

// EvaluateHybrid combines a role check with an optional ABAC decision. Per
// spec §4.4 and the third Open Question in §9, no permission-string branch
// is implemented — only roles and/or an ABAC action/resource_type pair.
func (e *Engine) EvaluateHybrid(ctx context.Context, req HybridRequest) (bool, error) {
	haveRoleCheck := len(req.RequiredRoles) > 0
	haveABACCheck := req.ABACAction != "" && req.ABACResourceType != ""

	var roleOK bool
	if haveRoleCheck {
		roleOK = rolesIntersect(req.RequiredRoles, req.Subject.EffectiveRoles())
	}

	var abacOK bool
	if haveABACCheck {
		decision, err := e.Check(ctx, AccessRequest{
			Subject:      req.Subject,
			Action:       req.ABACAction,
			ResourceType: req.ABACResourceType,
			ResourceID:   req.ResourceID,
			Context:      req.Context,
		})
		if err != nil {
			return false, err
		}
		abacOK = decision.Allowed
	}

	switch {
	case haveRoleCheck && haveABACCheck:
		if req.RequireAll {
			return roleOK && abacOK, nil
		}
		return roleOK || abacOK, nil
	case haveRoleCheck:
		return roleOK, nil
	case haveABACCheck:
		return abacOK, nil
	default:
		return false, nil
	}
}

// CreatePolicy enforces name uniqueness (CONFLICT on violation).
func (e *Engine) CreatePolicy(ctx context.Context, p Policy) (Policy, error) {
	return e.store.CreatePolicy(ctx, p)
}

// UpdatePolicy applies a partial update.
func (e *Engine) UpdatePolicy(ctx context.Context, id int64, patch PolicyPatch) (Policy, error) {
	return e.store.UpdatePolicy(ctx, id, patch)
}

// DeletePolicy removes a policy by id (NOT_FOUND if absent).
func (e *Engine) DeletePolicy(ctx context.Context, id int64) error {
	return e.store.DeletePolicy(ctx, id)
}

// ListPolicies returns policies matching f.
func (e *Engine) ListPolicies(ctx context.Context, f PolicyFilter) ([]Policy, error) {
	return e.store.ListPolicies(ctx, f)
}

// ExpandTemplate materializes a PolicyTemplate plus parameters into an
// unsaved Policy, per SPEC_FULL §4.10.
func ExpandTemplate(tmpl PolicyTemplate, params map[string]string) (Policy, error) {
	for _, req := range tmpl.RequiredParameters {
		if _, ok := params[req]; !ok {
			return Policy{}, apierr.NewInvalid("missing required template parameter %q", req)
		}
	}

	raw, err := json.Marshal(tmpl.TemplateConfig)
	if err != nil {
		return Policy{}, apierr.NewInvalid("invalid template config: %v", err)
	}
	substituted := substituteParams(string(raw), params)

	var cfg struct {
		Name         string          `json:"name"`
		Description  string          `json:"description"`
		Effect       PolicyEffect    `json:"effect"`
		Priority     int             `json:"priority"`
		Action       string          `json:"action"`
		ResourceType string          `json:"resource_type"`
		Conditions   *ConditionGroup `json:"conditions"`
	}
	if err := json.Unmarshal([]byte(substituted), &cfg); err != nil {
		return Policy{}, apierr.NewInvalid("template config did not resolve to a valid policy: %v", err)
	}

	return Policy{
		Name:         cfg.Name,
		Description:  cfg.Description,
		Effect:       cfg.Effect,
		Priority:     cfg.Priority,
		Action:       cfg.Action,
		ResourceType: cfg.ResourceType,
		Conditions:   cfg.Conditions,
		IsActive:     true,
	}, nil
}

func substituteParams(s string, params map[string]string) string {
	for k, v := range params {
		s = strings.ReplaceAll(s, "{{"+k+"}}", v)
	}
	return s
}
