package workflow

// CanView implements the Visibility Gate's (C9) view predicate: admin, the
// creator, an empty view-role list (open to anyone), a role intersection,
// or a department/division match.
func CanView(s Subject, w WorkflowDefinition) bool {
	if s.IsAdmin || s.ID == w.CreatedBy {
		return true
	}
	if len(w.ViewRoles) == 0 {
		return true
	}
	if s.hasAnyRole(w.ViewRoles) {
		return true
	}
	return sameScope(s.DepartmentID, w.DepartmentID) || sameScope(s.DivisionID, w.DivisionID)
}

// CanEdit implements the edit predicate: admin, the creator, or a role
// intersection with the workflow's edit-role list.
func CanEdit(s Subject, w WorkflowDefinition) bool {
	if s.IsAdmin || s.ID == w.CreatedBy {
		return true
	}
	return s.hasAnyRole(w.EditRoles)
}

// publisherRoles is the fixed role set spec §4.9 grants publish rights to
// when the caller is the creator but not an admin.
var publisherRoles = []string{"manager", "supervisor", "department_head"}

// CanPublish implements the publish predicate: admin, or the creator with
// at least one of the manager/supervisor/department_head roles.
func CanPublish(s Subject, w WorkflowDefinition) bool {
	if s.IsAdmin {
		return true
	}
	return s.ID == w.CreatedBy && s.hasAnyRole(publisherRoles)
}

// CanUse implements the use predicate: only an ACTIVE workflow is usable,
// and only by an admin, a role match, or a department match.
func CanUse(s Subject, w WorkflowDefinition) bool {
	if w.Status != StatusActive {
		return false
	}
	if s.IsAdmin {
		return true
	}
	if s.hasAnyRole(w.UseRoles) {
		return true
	}
	return sameScope(s.DepartmentID, w.DepartmentID)
}

func sameScope(a, b *int64) bool {
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// ValidatePublishable runs the Graph Validator (C6) plus the publish
// completeness check from spec §4.9: every APPROVAL stage must declare at
// least one of required_role, required_roles, or specific_users.
func ValidatePublishable(raw []byte, stages []WorkflowStage) []Diagnostic {
	_, diags, err := Validate(raw)
	if err != nil {
		return diags
	}
	for _, st := range stages {
		if st.NodeType != NodeApproval {
			continue
		}
		if st.RequiredRole != "" || len(st.RequiredRoles) > 0 || len(st.SpecificUsers) > 0 {
			continue
		}
		diags = append(diags, Diagnostic{
			Code:    "APPROVAL_MISSING_APPROVER",
			Message: "approval stage has no required_role, required_roles, or specific_users",
			NodeID:  st.NodeID,
		})
	}
	return diags
}
