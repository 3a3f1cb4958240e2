package seed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"hybridauth/internal/abac"
	"hybridauth/internal/store"
)

// applier holds the name-to-id caches needed to resolve a seed document's
// string references (department/division names) into the foreign keys the
// schema actually stores.
type applier struct {
	db            *store.DB
	departmentIDs map[string]int64
	divisionIDs   map[string]int64
}

func newApplier(db *store.DB) *applier {
	return &applier{
		db:            db,
		departmentIDs: map[string]int64{},
		divisionIDs:   map[string]int64{},
	}
}

func (a *applier) upsertDepartment(ctx context.Context, name string) (id int64, created bool, err error) {
	row := a.db.SQL.QueryRowContext(ctx, a.db.Rebind(`SELECT id FROM departments WHERE name = ?`), name)
	if err := row.Scan(&id); err == nil {
		return id, false, nil
	} else if err != sql.ErrNoRows {
		return 0, false, err
	}
	res, err := a.db.SQL.ExecContext(ctx, a.db.Rebind(`INSERT INTO departments (name) VALUES (?)`), name)
	if err != nil {
		return 0, false, err
	}
	id, err = res.LastInsertId()
	return id, true, err
}

func (a *applier) upsertDivision(ctx context.Context, name string) (id int64, created bool, err error) {
	row := a.db.SQL.QueryRowContext(ctx, a.db.Rebind(`SELECT id FROM divisions WHERE name = ?`), name)
	if err := row.Scan(&id); err == nil {
		return id, false, nil
	} else if err != sql.ErrNoRows {
		return 0, false, err
	}
	res, err := a.db.SQL.ExecContext(ctx, a.db.Rebind(`INSERT INTO divisions (name) VALUES (?)`), name)
	if err != nil {
		return 0, false, err
	}
	id, err = res.LastInsertId()
	return id, true, err
}

func (a *applier) upsertSubject(ctx context.Context, s Subject) (created bool, err error) {
	var subjectID int64
	row := a.db.SQL.QueryRowContext(ctx, a.db.Rebind(`SELECT id FROM subjects WHERE email = ?`), s.Email)
	err = row.Scan(&subjectID)
	switch {
	case err == nil:
		created = false
	case err == sql.ErrNoRows:
		rolesJSON, _ := json.Marshal(s.Roles)
		res, insErr := a.db.SQL.ExecContext(ctx, a.db.Rebind(
			`INSERT INTO subjects (email, username, role, roles, is_active, is_superuser)
			 VALUES (?, ?, ?, ?, ?, ?)`),
			s.Email, s.Username, s.Role, string(rolesJSON), boolParam(s.IsEnabled()), boolParam(s.IsSuperuser))
		if insErr != nil {
			return false, insErr
		}
		subjectID, err = res.LastInsertId()
		if err != nil {
			return false, err
		}
		created = true
	default:
		return false, err
	}

	if s.Profile == nil {
		return created, nil
	}
	var deptID, divID *int64
	if s.Profile.Department != "" {
		id, ok := a.departmentIDs[s.Profile.Department]
		if !ok {
			return created, fmt.Errorf("profile references unknown department %q (list it under departments:)", s.Profile.Department)
		}
		deptID = &id
	}
	if s.Profile.Division != "" {
		id, ok := a.divisionIDs[s.Profile.Division]
		if !ok {
			return created, fmt.Errorf("profile references unknown division %q (list it under divisions:)", s.Profile.Division)
		}
		divID = &id
	}
	customJSON, _ := json.Marshal(s.Profile.CustomAttributes)

	_, err = a.db.SQL.ExecContext(ctx, a.db.Rebind(`
		INSERT INTO subject_profiles
			(subject_id, department_id, division_id, team_id, job_title, job_level,
			 approval_limit_amount, can_approve_own_department, can_approve_all_departments,
			 office_location, country_code, timezone, custom_attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject_id) DO UPDATE SET
			department_id = excluded.department_id,
			division_id = excluded.division_id,
			team_id = excluded.team_id,
			job_title = excluded.job_title,
			job_level = excluded.job_level,
			approval_limit_amount = excluded.approval_limit_amount,
			can_approve_own_department = excluded.can_approve_own_department,
			can_approve_all_departments = excluded.can_approve_all_departments,
			office_location = excluded.office_location,
			country_code = excluded.country_code,
			timezone = excluded.timezone,
			custom_attributes = excluded.custom_attributes`),
		subjectID, deptID, divID, s.Profile.TeamID, s.Profile.JobTitle, s.Profile.JobLevel,
		s.Profile.ApprovalLimitAmount, boolParam(s.Profile.CanApproveOwnDepartment),
		boolParam(s.Profile.CanApproveAllDepartments), s.Profile.OfficeLocation,
		s.Profile.CountryCode, s.Profile.Timezone, string(customJSON))
	return created, err
}

func (a *applier) upsertPolicy(ctx context.Context, p Policy) (created bool, err error) {
	var existingID int64
	row := a.db.SQL.QueryRowContext(ctx, a.db.Rebind(`SELECT id FROM policies WHERE name = ?`), p.Name)
	if err := row.Scan(&existingID); err == nil {
		return false, nil // seeding never overwrites an existing policy
	} else if err != sql.ErrNoRows {
		return false, err
	}

	deptIDs, err := a.resolveDepartmentIDs(p.Departments)
	if err != nil {
		return false, err
	}
	divIDs, err := a.resolveDivisionIDs(p.Divisions)
	if err != nil {
		return false, err
	}

	s := abac.NewStore(a.db)
	_, err = s.CreatePolicy(ctx, abac.Policy{
		Name:             p.Name,
		Description:      p.Description,
		Effect:           abac.PolicyEffect(p.Effect),
		Priority:         p.Priority,
		Action:           p.Action,
		ResourceType:     p.ResourceType,
		Conditions:       p.Conditions,
		DepartmentIDs:    deptIDs,
		DivisionIDs:      divIDs,
		RoleRequirements: p.RequiredRoles,
		IsActive:         true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *applier) resolveDepartmentIDs(names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(names))
	for _, n := range names {
		id, ok := a.departmentIDs[n]
		if !ok {
			return nil, fmt.Errorf("policy references unknown department %q", n)
		}
		out = append(out, id)
	}
	return out, nil
}

func (a *applier) resolveDivisionIDs(names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(names))
	for _, n := range names {
		id, ok := a.divisionIDs[n]
		if !ok {
			return nil, fmt.Errorf("policy references unknown division %q", n)
		}
		out = append(out, id)
	}
	return out, nil
}

func (a *applier) upsertTemplate(ctx context.Context, t PolicyTemplate) (created bool, err error) {
	var existingID int64
	row := a.db.SQL.QueryRowContext(ctx, a.db.Rebind(`SELECT id FROM policy_templates WHERE name = ?`), t.Name)
	if err := row.Scan(&existingID); err == nil {
		return false, nil
	} else if err != sql.ErrNoRows {
		return false, err
	}

	cfgJSON, err := json.Marshal(t.TemplateConfig)
	if err != nil {
		return false, err
	}
	paramsJSON, _ := json.Marshal(t.RequiredParameters)

	_, err = a.db.SQL.ExecContext(ctx, a.db.Rebind(`
		INSERT INTO policy_templates (name, description, category, template_config, required_parameters, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		t.Name, t.Description, t.Category, string(cfgJSON), string(paramsJSON), boolParam(true), timeNow())
	return true, err
}

// applyPolicyFromTemplate loads the named PolicyTemplate, expands it with
// abac.ExpandTemplate, and hands the result to CreatePolicy unchanged, per
// SPEC_FULL §4.10. Idempotent the same way upsertPolicy is: an existing
// policy of the expanded name is left untouched.
func (a *applier) applyPolicyFromTemplate(ctx context.Context, pft PolicyFromTemplate) (created bool, err error) {
	s := abac.NewStore(a.db)
	tmpl, err := s.GetPolicyTemplateByName(ctx, pft.Template)
	if err != nil {
		return false, err
	}
	p, err := abac.ExpandTemplate(tmpl, pft.Params)
	if err != nil {
		return false, err
	}

	var existingID int64
	row := a.db.SQL.QueryRowContext(ctx, a.db.Rebind(`SELECT id FROM policies WHERE name = ?`), p.Name)
	if err := row.Scan(&existingID); err == nil {
		return false, nil
	} else if err != sql.ErrNoRows {
		return false, err
	}

	if _, err := s.CreatePolicy(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}

// boolParam mirrors internal/abac.Store's helper: both the SQLite and
// Postgres drivers accept a Go bool parameter directly.
func boolParam(b bool) any { return b }
