package abac

import "testing"

func TestCandidates_RoleScopeFilter(t *testing.T) {
	m := NewMatcher()
	policies := []Policy{
		{ID: 1, IsActive: true, RoleRequirements: []string{"manager"}},
		{ID: 2, IsActive: true},
	}
	subject := Subject{ID: 1, Role: "engineer"}

	got := m.Candidates(policies, subject)
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("expected only the unscoped policy to survive, got %+v", got)
	}
}

func TestCandidates_DepartmentScopeRequiresProfile(t *testing.T) {
	m := NewMatcher()
	policies := []Policy{{ID: 1, IsActive: true, DepartmentIDs: []int64{3}}}

	noProfile := Subject{ID: 1}
	if got := m.Candidates(policies, noProfile); len(got) != 0 {
		t.Fatalf("subject without profile should drop department-scoped policy, got %+v", got)
	}

	dept := int64(3)
	withProfile := Subject{ID: 2, Profile: &SubjectProfile{DepartmentID: &dept}}
	if got := m.Candidates(policies, withProfile); len(got) != 1 {
		t.Fatalf("subject with matching department should keep the policy, got %+v", got)
	}
}

func TestCandidates_PriorityOrderingTieBreak(t *testing.T) {
	m := NewMatcher()
	policies := []Policy{
		{ID: 5, IsActive: true, Priority: 10},
		{ID: 2, IsActive: true, Priority: 10},
		{ID: 9, IsActive: true, Priority: 20},
	}
	got := m.Candidates(policies, Subject{ID: 1})
	if len(got) != 3 || got[0].ID != 9 || got[1].ID != 2 || got[2].ID != 5 {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestMatchesActionOrWildcard(t *testing.T) {
	if !MatchesActionOrWildcard("*", "read") {
		t.Error("wildcard should match any action")
	}
	if !MatchesActionOrWildcard("read", "read") {
		t.Error("exact match should match")
	}
	if MatchesActionOrWildcard("write", "read") {
		t.Error("mismatched literal should not match")
	}
}
