package workflow

import "testing"

func TestCanView_EmptyRoleListIsOpen(t *testing.T) {
	w := WorkflowDefinition{CreatedBy: 99}
	s := Subject{ID: 1, Roles: []string{"whoever"}}
	if !CanView(s, w) {
		t.Fatal("expected an empty view-role list to be viewable by anyone")
	}
}

func TestCanView_ScopedRequiresRoleOrOrgMatch(t *testing.T) {
	dept := int64(3)
	w := WorkflowDefinition{CreatedBy: 99, ViewRoles: []string{"hr"}, DepartmentID: &dept}

	noMatch := Subject{ID: 1, Roles: []string{"eng"}}
	if CanView(noMatch, w) {
		t.Fatal("expected no match to be denied view")
	}

	roleMatch := Subject{ID: 2, Roles: []string{"hr"}}
	if !CanView(roleMatch, w) {
		t.Fatal("expected role match to grant view")
	}

	orgMatch := Subject{ID: 3, Roles: []string{"eng"}, DepartmentID: &dept}
	if !CanView(orgMatch, w) {
		t.Fatal("expected department match to grant view")
	}

	creator := Subject{ID: 99}
	if !CanView(creator, w) {
		t.Fatal("expected creator to always view own workflow")
	}
}

func TestCanPublish_CreatorNeedsPublisherRole(t *testing.T) {
	w := WorkflowDefinition{CreatedBy: 1}

	creatorNoRole := Subject{ID: 1, Roles: []string{"engineer"}}
	if CanPublish(creatorNoRole, w) {
		t.Fatal("expected creator without a publisher role to be denied publish")
	}

	creatorWithRole := Subject{ID: 1, Roles: []string{"manager"}}
	if !CanPublish(creatorWithRole, w) {
		t.Fatal("expected creator with manager role to publish")
	}

	admin := Subject{ID: 2, IsAdmin: true}
	if !CanPublish(admin, w) {
		t.Fatal("expected admin to always publish")
	}
}

func TestCanUse_RequiresActiveStatus(t *testing.T) {
	w := WorkflowDefinition{Status: StatusDraft, UseRoles: []string{"hr"}}
	s := Subject{ID: 1, Roles: []string{"hr"}}
	if CanUse(s, w) {
		t.Fatal("expected DRAFT workflow to be unusable regardless of role match")
	}
	w.Status = StatusActive
	if !CanUse(s, w) {
		t.Fatal("expected ACTIVE workflow with role match to be usable")
	}
}

func TestValidatePublishable_FlagsMissingApprover(t *testing.T) {
	stages := []WorkflowStage{
		{NodeID: "n2", NodeType: NodeApproval},
	}
	raw := simpleGraphBytes(t)
	diags := ValidatePublishable(raw, stages)
	found := false
	for _, d := range diags {
		if d.Code == "APPROVAL_MISSING_APPROVER" && d.NodeID == "n2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected APPROVAL_MISSING_APPROVER diagnostic, got %v", diags)
	}
}

func simpleGraphBytes(t *testing.T) []byte {
	t.Helper()
	return simpleGraph(t, "")
}
