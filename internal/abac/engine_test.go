package abac

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"hybridauth/internal/apierr"
	"hybridauth/internal/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "abac_test")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	db, err := store.Open(filepath.Join(tmpDir, "abac.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertSubject(t *testing.T, db *store.DB, id int64, role string) {
	t.Helper()
	_, err := db.SQL.Exec(db.Rebind(
		`INSERT INTO subjects (id, email, username, role, roles, is_active, is_superuser) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		id, "", "", role, "[]", true, false)
	if err != nil {
		t.Fatalf("insert subject: %v", err)
	}
}

func newTestEngine(t *testing.T) (*Engine, *store.DB) {
	db := newTestDB(t)
	return NewEngine(NewStore(db), nil), db
}

func mustCreatePolicy(t *testing.T, e *Engine, p Policy) Policy {
	t.Helper()
	p.IsActive = true
	created, err := e.CreatePolicy(context.Background(), p)
	if err != nil {
		t.Fatalf("create policy %q: %v", p.Name, err)
	}
	return created
}

// Scenario 1: simple allow.
func TestCheck_SimpleAllow(t *testing.T) {
	e, db := newTestEngine(t)
	insertSubject(t, db, 1, "user")
	mustCreatePolicy(t, e, Policy{
		Name: "allow-read-invoice", Effect: EffectAllow, Priority: 10,
		Action: "read", ResourceType: "invoice",
	})

	sub, err := e.store.GetSubject(context.Background(), 1)
	if err != nil {
		t.Fatalf("get subject: %v", err)
	}

	d, err := e.Check(context.Background(), AccessRequest{
		Subject: sub, Action: "read", ResourceType: "invoice", ResourceID: "7",
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allow, got deny: %s", d.Reason)
	}
	if d.MatchedPolicy == nil || d.MatchedPolicy.Name != "allow-read-invoice" {
		t.Fatalf("expected matched policy allow-read-invoice, got %v", d.MatchedPolicy)
	}
}

// Scenario 2 / Invariant I1: deny overrides allow at equal priority.
func TestCheck_DenyOverridesAllowAtEqualPriority(t *testing.T) {
	e, db := newTestEngine(t)
	insertSubject(t, db, 5, "user")
	mustCreatePolicy(t, e, Policy{
		Name: "allow-approve", Effect: EffectAllow, Priority: 100,
		Action: "approve", ResourceType: "Invoice",
	})
	mustCreatePolicy(t, e, Policy{
		Name: "deny-approve-own", Effect: EffectDeny, Priority: 100,
		Action: "approve", ResourceType: "Invoice",
		Conditions: &ConditionGroup{All: []Condition{
			{Attribute: "user.id", Operator: OpEQ, Value: "{{resource.created_by}}"},
		}},
	})

	sub, err := e.store.GetSubject(context.Background(), 5)
	if err != nil {
		t.Fatalf("get subject: %v", err)
	}

	d, err := e.Check(context.Background(), AccessRequest{
		Subject: sub, Action: "approve", ResourceType: "Invoice", ResourceID: "9",
		ResourceObject: map[string]any{"created_by": float64(5)},
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected deny, got allow: %s", d.Reason)
	}
	if d.MatchedPolicy == nil || d.MatchedPolicy.Name != "deny-approve-own" {
		t.Fatalf("expected matched policy deny-approve-own, got %v", d.MatchedPolicy)
	}
}

// Invariant I2: default deny with no matching policy.
func TestCheck_DefaultDeny(t *testing.T) {
	e, db := newTestEngine(t)
	insertSubject(t, db, 2, "user")
	sub, _ := e.store.GetSubject(context.Background(), 2)

	d, err := e.Check(context.Background(), AccessRequest{
		Subject: sub, Action: "delete", ResourceType: "account",
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected deny by default")
	}
	if d.Reason != DefaultDenyReason {
		t.Fatalf("reason = %q, want %q", d.Reason, DefaultDenyReason)
	}
}

// Invariant I3: priority ordering among ALLOW-only candidates.
func TestCheck_PriorityOrdering(t *testing.T) {
	e, db := newTestEngine(t)
	insertSubject(t, db, 3, "user")
	mustCreatePolicy(t, e, Policy{Name: "low", Effect: EffectAllow, Priority: 1, Action: "read", ResourceType: "doc"})
	high := mustCreatePolicy(t, e, Policy{Name: "high", Effect: EffectAllow, Priority: 50, Action: "read", ResourceType: "doc"})

	sub, _ := e.store.GetSubject(context.Background(), 3)
	d, err := e.Check(context.Background(), AccessRequest{Subject: sub, Action: "read", ResourceType: "doc"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.MatchedPolicy == nil || d.MatchedPolicy.ID != high.ID {
		t.Fatalf("expected highest-priority policy %d matched, got %v", high.ID, d.MatchedPolicy)
	}
}

// Invariant I4: audit completeness — exactly one record per check, decision matches.
func TestCheck_AuditCompleteness(t *testing.T) {
	e, db := newTestEngine(t)
	insertSubject(t, db, 4, "user")
	sub, _ := e.store.GetSubject(context.Background(), 4)

	d, err := e.Check(context.Background(), AccessRequest{Subject: sub, Action: "read", ResourceType: "doc"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	records, err := e.store.ListAudit(context.Background(), AuditFilter{SubjectID: &sub.ID})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	wantDecision := EffectDeny
	if d.Allowed {
		wantDecision = EffectAllow
	}
	if records[0].Decision != wantDecision {
		t.Fatalf("audit decision = %s, want %s", records[0].Decision, wantDecision)
	}
}

// Invariant I7: wildcard action/resource_type match everything.
func TestCheck_WildcardMatch(t *testing.T) {
	e, db := newTestEngine(t)
	insertSubject(t, db, 6, "user")
	mustCreatePolicy(t, e, Policy{Name: "allow-all", Effect: EffectAllow, Priority: 1, Action: "*", ResourceType: "*"})

	sub, _ := e.store.GetSubject(context.Background(), 6)
	for _, action := range []string{"read", "write", "anything"} {
		d, err := e.Check(context.Background(), AccessRequest{Subject: sub, Action: action, ResourceType: "whatever"})
		if err != nil {
			t.Fatalf("check(%s): %v", action, err)
		}
		if !d.Allowed {
			t.Fatalf("action %q: expected wildcard allow, got deny", action)
		}
	}
}

// Scenario 4: missing profile attribute is not equality, audit still written.
func TestCheck_MissingProfileAttributeNotEqual(t *testing.T) {
	e, db := newTestEngine(t)
	insertSubject(t, db, 8, "user") // no SubjectProfile row
	mustCreatePolicy(t, e, Policy{
		Name: "dept-gate", Effect: EffectAllow, Priority: 1, Action: "view", ResourceType: "report",
		Conditions: &ConditionGroup{All: []Condition{
			{Attribute: "user.department_id", Operator: OpEQ, Value: float64(3)},
		}},
	})

	sub, _ := e.store.GetSubject(context.Background(), 8)
	d, err := e.Check(context.Background(), AccessRequest{Subject: sub, Action: "view", ResourceType: "report"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected deny: missing attribute must not satisfy EQ")
	}

	records, err := e.store.ListAudit(context.Background(), AuditFilter{SubjectID: &sub.ID})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected audit write even on deny, got %d records", len(records))
	}
}

func TestCreatePolicy_DuplicateNameConflict(t *testing.T) {
	e, _ := newTestEngine(t)
	mustCreatePolicy(t, e, Policy{Name: "dup", Effect: EffectAllow, Action: "read", ResourceType: "doc"})
	_, err := e.CreatePolicy(context.Background(), Policy{Name: "dup", Effect: EffectAllow, Action: "read", ResourceType: "doc", IsActive: true})
	if err == nil {
		t.Fatal("expected conflict error on duplicate name")
	}
}

func TestDeletePolicy_NotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.DeletePolicy(context.Background(), 9999); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestExpandTemplate_SubstitutesParamsIntoPolicy(t *testing.T) {
	tmpl := PolicyTemplate{
		Name:               "department-approval-limit",
		RequiredParameters: []string{"department", "limit"},
		TemplateConfig: map[string]any{
			"name":          "approve-{{department}}-under-{{limit}}",
			"effect":        "ALLOW",
			"priority":      10,
			"action":        "approve",
			"resource_type": "expense",
			"conditions": map[string]any{
				"all": []map[string]any{
					{"attribute": "user.department", "operator": "EQ", "value": "{{department}}"},
				},
			},
		},
	}

	p, err := ExpandTemplate(tmpl, map[string]string{"department": "finance", "limit": "5000"})
	if err != nil {
		t.Fatalf("expand template: %v", err)
	}
	if p.Name != "approve-finance-under-5000" {
		t.Fatalf("name = %q, want substituted value", p.Name)
	}
	if p.Effect != EffectAllow || p.Action != "approve" || p.ResourceType != "expense" || p.Priority != 10 {
		t.Fatalf("unexpected expanded policy: %+v", p)
	}
	if !p.IsActive {
		t.Fatal("expanded policy should default to active")
	}
	if p.Conditions == nil || len(p.Conditions.All) != 1 || p.Conditions.All[0].Value != "finance" {
		t.Fatalf("expected condition value substituted to %q, got %+v", "finance", p.Conditions)
	}
}

func TestExpandTemplate_MissingRequiredParameterIsInvalid(t *testing.T) {
	tmpl := PolicyTemplate{
		Name:               "department-approval-limit",
		RequiredParameters: []string{"department", "limit"},
		TemplateConfig: map[string]any{
			"name": "approve-{{department}}-under-{{limit}}", "effect": "ALLOW",
			"action": "approve", "resource_type": "expense",
		},
	}

	_, err := ExpandTemplate(tmpl, map[string]string{"department": "finance"})
	if err == nil {
		t.Fatal("expected error for missing required parameter")
	}
	if !apierr.Is(err, apierr.Invalid) {
		t.Fatalf("expected INVALID error kind, got %v", err)
	}
}

// TestExpandTemplate_ThenCreatePolicy exercises the documented seeding path
// (SPEC_FULL §4.10): expand, then hand the result to CreatePolicy unchanged.
func TestExpandTemplate_ThenCreatePolicy(t *testing.T) {
	e, _ := newTestEngine(t)
	tmpl := PolicyTemplate{
		Name:               "read-access",
		RequiredParameters: []string{"resource"},
		TemplateConfig: map[string]any{
			"name": "read-{{resource}}", "effect": "ALLOW", "priority": 1,
			"action": "read", "resource_type": "{{resource}}",
		},
	}
	expanded, err := ExpandTemplate(tmpl, map[string]string{"resource": "invoice"})
	if err != nil {
		t.Fatalf("expand template: %v", err)
	}
	created, err := e.CreatePolicy(context.Background(), expanded)
	if err != nil {
		t.Fatalf("create policy from expanded template: %v", err)
	}
	if created.ID == 0 || created.Name != "read-invoice" {
		t.Fatalf("unexpected created policy: %+v", created)
	}
}
