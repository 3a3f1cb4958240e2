package abac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"hybridauth/internal/apierr"
	"hybridauth/internal/store"
)

// Store is the persistence layer for policies, subject profiles, resource
// attributes, and the audit log. Modeled on internal/audit.Store's
// dispatch-by-backend query style in the teacher repo, generalized across
// the abac tables created by internal/store.Open.
type Store struct {
	db *store.DB
}

func NewStore(db *store.DB) *Store { return &Store{db: db} }

// execer is satisfied by both *sql.DB and *sql.Tx, letting the same query
// code run standalone or inside a caller-supplied transaction — needed so
// Engine.Check can run its attribute reads and audit write as the single
// logical transaction spec §5 requires.
type execer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// BeginTx starts a transaction for callers (Engine.Check) that need to span
// several Store calls atomically.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierr.NewInternal(err, "begin transaction")
	}
	return tx, nil
}

// ListPolicies returns policies matching f, ordered by priority descending
// then id ascending.
func (s *Store) ListPolicies(ctx context.Context, f PolicyFilter) ([]Policy, error) {
	query := `SELECT id, name, description, effect, priority, action, resource_type,
		conditions, department_ids, division_ids, role_requirements, is_active,
		created_by, created_at, updated_at FROM policies WHERE 1=1`
	var args []any
	if f.ResourceType != nil {
		query += " AND resource_type = ?"
		args = append(args, *f.ResourceType)
	}
	if f.Action != nil {
		query += " AND action = ?"
		args = append(args, *f.Action)
	}
	if f.Active != nil {
		query += " AND is_active = ?"
		args = append(args, *f.Active)
	}
	query += " ORDER BY priority DESC, id ASC"

	rows, err := s.db.SQL.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, apierr.NewInternal(err, "list policies")
	}
	defer rows.Close()
	return scanPolicies(rows)
}

// ListCandidatePolicies is the Policy Matcher's (C3) initial DB-side
// pre-filter: active, wildcard-aware action/resource_type selection. Scope
// and role filtering happen afterward in Matcher.Candidates.
func (s *Store) ListCandidatePolicies(ctx context.Context, action, resourceType string) ([]Policy, error) {
	return s.listCandidatePolicies(ctx, s.db.SQL, action, resourceType)
}

// ListCandidatePoliciesTx is ListCandidatePolicies run inside the caller's
// transaction, per spec §5's "one logical transaction per decision".
func (s *Store) ListCandidatePoliciesTx(ctx context.Context, tx *sql.Tx, action, resourceType string) ([]Policy, error) {
	return s.listCandidatePolicies(ctx, tx, action, resourceType)
}

func (s *Store) listCandidatePolicies(ctx context.Context, q execer, action, resourceType string) ([]Policy, error) {
	query := `SELECT id, name, description, effect, priority, action, resource_type,
		conditions, department_ids, division_ids, role_requirements, is_active,
		created_by, created_at, updated_at FROM policies
		WHERE is_active = ? AND (action = ? OR action = '*') AND (resource_type = ? OR resource_type = '*')`
	rows, err := q.QueryContext(ctx, s.db.Rebind(query), boolParam(true), action, resourceType)
	if err != nil {
		return nil, apierr.NewInternal(err, "list candidate policies")
	}
	defer rows.Close()
	return scanPolicies(rows)
}

func scanPolicies(rows *sql.Rows) ([]Policy, error) {
	var out []Policy
	for rows.Next() {
		var (
			p                                            Policy
			conditionsJSON, deptJSON, divJSON, rolesJSON sql.NullString
			createdAt, updatedAt                         store.ScanTime
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Effect, &p.Priority,
			&p.Action, &p.ResourceType, &conditionsJSON, &deptJSON, &divJSON, &rolesJSON,
			&p.IsActive, &p.CreatedBy, &createdAt, &updatedAt); err != nil {
			return nil, apierr.NewInternal(err, "scan policy row")
		}
		p.CreatedAt, p.UpdatedAt = createdAt.Time(), updatedAt.Time()
		if conditionsJSON.Valid && conditionsJSON.String != "" {
			var cg ConditionGroup
			if err := json.Unmarshal([]byte(conditionsJSON.String), &cg); err == nil {
				p.Conditions = &cg
			}
		}
		if deptJSON.Valid && deptJSON.String != "" {
			_ = json.Unmarshal([]byte(deptJSON.String), &p.DepartmentIDs)
		}
		if divJSON.Valid && divJSON.String != "" {
			_ = json.Unmarshal([]byte(divJSON.String), &p.DivisionIDs)
		}
		if rolesJSON.Valid && rolesJSON.String != "" {
			_ = json.Unmarshal([]byte(rolesJSON.String), &p.RoleRequirements)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePolicy inserts a new policy. A duplicate name surfaces as CONFLICT
// (P1).
func (s *Store) CreatePolicy(ctx context.Context, p Policy) (Policy, error) {
	if p.Effect == "" || p.Action == "" || p.ResourceType == "" {
		return Policy{}, apierr.NewInvalid("effect, action, and resource_type are required")
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	conditionsJSON, err := marshalOptional(p.Conditions)
	if err != nil {
		return Policy{}, apierr.NewInvalid("invalid conditions: %v", err)
	}
	deptJSON, _ := json.Marshal(orEmpty(p.DepartmentIDs))
	divJSON, _ := json.Marshal(orEmpty(p.DivisionIDs))
	rolesJSON, _ := json.Marshal(orEmptyStr(p.RoleRequirements))

	query := s.db.Rebind(`INSERT INTO policies
		(name, description, effect, priority, action, resource_type, conditions,
		 department_ids, division_ids, role_requirements, is_active, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	res, err := s.db.SQL.ExecContext(ctx, query, p.Name, p.Description, p.Effect, p.Priority,
		p.Action, p.ResourceType, conditionsJSON, string(deptJSON), string(divJSON), string(rolesJSON),
		boolParam(p.IsActive), p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Policy{}, apierr.NewConflict("policy %q already exists", p.Name)
		}
		return Policy{}, apierr.NewInternal(err, "create policy")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Policy{}, apierr.NewInternal(err, "read inserted policy id")
	}
	p.ID = id
	return p, nil
}

// UpdatePolicy applies a partial update and returns the persisted policy.
func (s *Store) UpdatePolicy(ctx context.Context, id int64, patch PolicyPatch) (Policy, error) {
	existing, err := s.getPolicyByID(ctx, id)
	if err != nil {
		return Policy{}, err
	}
	if patch.Description != nil {
		existing.Description = *patch.Description
	}
	if patch.Effect != nil {
		existing.Effect = *patch.Effect
	}
	if patch.Priority != nil {
		existing.Priority = *patch.Priority
	}
	if patch.Action != nil {
		existing.Action = *patch.Action
	}
	if patch.ResourceType != nil {
		existing.ResourceType = *patch.ResourceType
	}
	if patch.Conditions != nil {
		existing.Conditions = *patch.Conditions
	}
	if patch.DepartmentIDs != nil {
		existing.DepartmentIDs = *patch.DepartmentIDs
	}
	if patch.DivisionIDs != nil {
		existing.DivisionIDs = *patch.DivisionIDs
	}
	if patch.RoleRequirements != nil {
		existing.RoleRequirements = *patch.RoleRequirements
	}
	if patch.IsActive != nil {
		existing.IsActive = *patch.IsActive
	}
	existing.UpdatedAt = time.Now().UTC()

	conditionsJSON, err := marshalOptional(existing.Conditions)
	if err != nil {
		return Policy{}, apierr.NewInvalid("invalid conditions: %v", err)
	}
	deptJSON, _ := json.Marshal(orEmpty(existing.DepartmentIDs))
	divJSON, _ := json.Marshal(orEmpty(existing.DivisionIDs))
	rolesJSON, _ := json.Marshal(orEmptyStr(existing.RoleRequirements))

	query := s.db.Rebind(`UPDATE policies SET description=?, effect=?, priority=?, action=?,
		resource_type=?, conditions=?, department_ids=?, division_ids=?, role_requirements=?,
		is_active=?, updated_at=? WHERE id=?`)
	_, err = s.db.SQL.ExecContext(ctx, query, existing.Description, existing.Effect, existing.Priority,
		existing.Action, existing.ResourceType, conditionsJSON, string(deptJSON), string(divJSON),
		string(rolesJSON), boolParam(existing.IsActive), existing.UpdatedAt, id)
	if err != nil {
		if isUniqueViolation(err) {
			return Policy{}, apierr.NewConflict("policy name conflict")
		}
		return Policy{}, apierr.NewInternal(err, "update policy %d", id)
	}
	return existing, nil
}

func (s *Store) getPolicyByID(ctx context.Context, id int64) (Policy, error) {
	policies, err := s.ListPolicies(ctx, PolicyFilter{})
	if err != nil {
		return Policy{}, err
	}
	for _, p := range policies {
		if p.ID == id {
			return p, nil
		}
	}
	return Policy{}, apierr.NewNotFound("policy %d not found", id)
}

// DeletePolicy removes a policy by id.
func (s *Store) DeletePolicy(ctx context.Context, id int64) error {
	res, err := s.db.SQL.ExecContext(ctx, s.db.Rebind("DELETE FROM policies WHERE id = ?"), id)
	if err != nil {
		return apierr.NewInternal(err, "delete policy %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.NewInternal(err, "delete policy %d", id)
	}
	if n == 0 {
		return apierr.NewNotFound("policy %d not found", id)
	}
	return nil
}

// GetSubject loads a subject and its profile (if any).
func (s *Store) GetSubject(ctx context.Context, id int64) (Subject, error) {
	var sub Subject
	var rolesJSON string
	row := s.db.SQL.QueryRowContext(ctx, s.db.Rebind(
		`SELECT id, email, username, role, roles, is_active, is_superuser FROM subjects WHERE id = ?`), id)
	if err := row.Scan(&sub.ID, &sub.Email, &sub.Username, &sub.Role, &rolesJSON, &sub.IsActive, &sub.IsSuperuser); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Subject{}, apierr.NewNotFound("subject %d not found", id)
		}
		return Subject{}, apierr.NewInternal(err, "load subject %d", id)
	}
	_ = json.Unmarshal([]byte(rolesJSON), &sub.Roles)

	profile, err := s.GetSubjectProfile(ctx, id)
	if err == nil {
		sub.Profile = &profile
	} else if !apierr.Is(err, apierr.NotFound) {
		return Subject{}, err
	}
	return sub, nil
}

// GetSubjectProfile loads a SubjectProfile by subject id.
func (s *Store) GetSubjectProfile(ctx context.Context, subjectID int64) (SubjectProfile, error) {
	var p SubjectProfile
	var customJSON sql.NullString
	p.SubjectID = subjectID
	row := s.db.SQL.QueryRowContext(ctx, s.db.Rebind(`SELECT department_id, division_id, team_id,
		job_title, job_level, approval_limit_amount, can_approve_own_department,
		can_approve_all_departments, office_location, country_code, timezone, custom_attributes
		FROM subject_profiles WHERE subject_id = ?`), subjectID)
	if err := row.Scan(&p.DepartmentID, &p.DivisionID, &p.TeamID, &p.JobTitle, &p.JobLevel,
		&p.ApprovalLimitAmount, &p.CanApproveOwnDepartment, &p.CanApproveAllDepartments,
		&p.OfficeLocation, &p.CountryCode, &p.Timezone, &customJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SubjectProfile{}, apierr.NewNotFound("no profile for subject %d", subjectID)
		}
		return SubjectProfile{}, apierr.NewInternal(err, "load profile for subject %d", subjectID)
	}
	if customJSON.Valid && customJSON.String != "" {
		_ = json.Unmarshal([]byte(customJSON.String), &p.CustomAttributes)
	}
	return p, nil
}

// UpdateSubjectProfile applies a partial update, upserting the row if it
// does not yet exist.
func (s *Store) UpdateSubjectProfile(ctx context.Context, subjectID int64, patch SubjectProfilePatch) (SubjectProfile, error) {
	existing, err := s.GetSubjectProfile(ctx, subjectID)
	if err != nil && !apierr.Is(err, apierr.NotFound) {
		return SubjectProfile{}, err
	}
	existing.SubjectID = subjectID

	if patch.DepartmentID != nil {
		existing.DepartmentID = *patch.DepartmentID
	}
	if patch.DivisionID != nil {
		existing.DivisionID = *patch.DivisionID
	}
	if patch.TeamID != nil {
		existing.TeamID = *patch.TeamID
	}
	if patch.JobTitle != nil {
		existing.JobTitle = *patch.JobTitle
	}
	if patch.JobLevel != nil {
		existing.JobLevel = *patch.JobLevel
	}
	if patch.ApprovalLimitAmount != nil {
		existing.ApprovalLimitAmount = *patch.ApprovalLimitAmount
	}
	if patch.CanApproveOwnDepartment != nil {
		existing.CanApproveOwnDepartment = *patch.CanApproveOwnDepartment
	}
	if patch.CanApproveAllDepartments != nil {
		existing.CanApproveAllDepartments = *patch.CanApproveAllDepartments
	}
	if patch.OfficeLocation != nil {
		existing.OfficeLocation = *patch.OfficeLocation
	}
	if patch.CountryCode != nil {
		existing.CountryCode = *patch.CountryCode
	}
	if patch.Timezone != nil {
		existing.Timezone = *patch.Timezone
	}
	if patch.CustomAttributes != nil {
		existing.CustomAttributes = patch.CustomAttributes
	}

	customJSON, _ := json.Marshal(existing.CustomAttributes)
	query := s.db.Rebind(`INSERT INTO subject_profiles
		(subject_id, department_id, division_id, team_id, job_title, job_level,
		 approval_limit_amount, can_approve_own_department, can_approve_all_departments,
		 office_location, country_code, timezone, custom_attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET department_id=excluded.department_id,
		 division_id=excluded.division_id, team_id=excluded.team_id, job_title=excluded.job_title,
		 job_level=excluded.job_level, approval_limit_amount=excluded.approval_limit_amount,
		 can_approve_own_department=excluded.can_approve_own_department,
		 can_approve_all_departments=excluded.can_approve_all_departments,
		 office_location=excluded.office_location, country_code=excluded.country_code,
		 timezone=excluded.timezone, custom_attributes=excluded.custom_attributes`)
	_, err = s.db.SQL.ExecContext(ctx, query, subjectID, existing.DepartmentID, existing.DivisionID,
		existing.TeamID, existing.JobTitle, existing.JobLevel, existing.ApprovalLimitAmount,
		boolParam(existing.CanApproveOwnDepartment), boolParam(existing.CanApproveAllDepartments),
		existing.OfficeLocation, existing.CountryCode, existing.Timezone, string(customJSON))
	if err != nil {
		return SubjectProfile{}, apierr.NewInternal(err, "upsert profile for subject %d", subjectID)
	}
	return existing, nil
}

// GetResourceAttributes loads the persisted dynamic attributes for a
// resource.
func (s *Store) GetResourceAttributes(ctx context.Context, resourceType, resourceID string) ([]ResourceAttribute, error) {
	return s.getResourceAttributes(ctx, s.db.SQL, resourceType, resourceID)
}

// GetResourceAttributesTx is GetResourceAttributes run inside the caller's
// transaction.
func (s *Store) GetResourceAttributesTx(ctx context.Context, tx *sql.Tx, resourceType, resourceID string) ([]ResourceAttribute, error) {
	return s.getResourceAttributes(ctx, tx, resourceType, resourceID)
}

func (s *Store) getResourceAttributes(ctx context.Context, q execer, resourceType, resourceID string) ([]ResourceAttribute, error) {
	rows, err := q.QueryContext(ctx, s.db.Rebind(`SELECT id, resource_type, resource_id,
		attribute_name, attribute_value, attribute_type, created_at, updated_at
		FROM resource_attributes WHERE resource_type = ? AND resource_id = ?`), resourceType, resourceID)
	if err != nil {
		return nil, apierr.NewInternal(err, "load resource attributes for %s/%s", resourceType, resourceID)
	}
	defer rows.Close()
	var out []ResourceAttribute
	for rows.Next() {
		var a ResourceAttribute
		var createdAt, updatedAt store.ScanTime
		if err := rows.Scan(&a.ID, &a.ResourceType, &a.ResourceID, &a.AttributeName,
			&a.AttributeValue, &a.AttributeType, &createdAt, &updatedAt); err != nil {
			return nil, apierr.NewInternal(err, "scan resource attribute row")
		}
		a.CreatedAt, a.UpdatedAt = createdAt.Time(), updatedAt.Time()
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetPolicyTemplateByName loads a PolicyTemplate for ExpandTemplate, per
// SPEC_FULL §4.10.
func (s *Store) GetPolicyTemplateByName(ctx context.Context, name string) (PolicyTemplate, error) {
	var t PolicyTemplate
	var cfgJSON, paramsJSON string
	var createdAt store.ScanTime
	row := s.db.SQL.QueryRowContext(ctx, s.db.Rebind(`SELECT id, name, description, category,
		template_config, required_parameters, is_active, created_at
		FROM policy_templates WHERE name = ?`), name)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Category, &cfgJSON, &paramsJSON,
		&t.IsActive, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PolicyTemplate{}, apierr.NewNotFound("policy template %q not found", name)
		}
		return PolicyTemplate{}, apierr.NewInternal(err, "load policy template %q", name)
	}
	t.CreatedAt = createdAt.Time()
	_ = json.Unmarshal([]byte(cfgJSON), &t.TemplateConfig)
	_ = json.Unmarshal([]byte(paramsJSON), &t.RequiredParameters)
	return t, nil
}

// InsertAudit persists one AuditRecord. Failure here must fail the calling
// decision with INTERNAL, per spec §4.5 — no access is granted on a failed
// audit write.
func (s *Store) InsertAudit(ctx context.Context, rec *AuditRecord) error {
	return s.insertAudit(ctx, s.db.SQL, rec)
}

// InsertAuditTx is InsertAudit run inside the caller's transaction.
func (s *Store) InsertAuditTx(ctx context.Context, tx *sql.Tx, rec *AuditRecord) error {
	return s.insertAudit(ctx, tx, rec)
}

func (s *Store) insertAudit(ctx context.Context, q execer, rec *AuditRecord) error {
	if rec.EventID == "" {
		rec.EventID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()

	subjectJSON, _ := json.Marshal(rec.SubjectBag)
	resourceJSON, _ := json.Marshal(rec.ResourceBag)
	envJSON, _ := json.Marshal(rec.EnvironmentBag)
	evaluatedJSON, _ := json.Marshal(orEmpty(rec.EvaluatedPolicies))

	query := s.db.Rebind(`INSERT INTO audit_records
		(event_id, subject_id, action, resource_type, resource_id, decision, matched_policy_id,
		 subject_bag, resource_bag, environment_bag, evaluated_policies, evaluation_time_ms,
		 reason, ip_address, user_agent, endpoint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	res, err := q.ExecContext(ctx, query, rec.EventID, rec.SubjectID, rec.Action,
		rec.ResourceType, rec.ResourceID, rec.Decision, rec.MatchedPolicyID, string(subjectJSON),
		string(resourceJSON), string(envJSON), string(evaluatedJSON), rec.EvaluationTimeMS,
		rec.Reason, rec.IPAddress, rec.UserAgent, rec.Endpoint, rec.CreatedAt)
	if err != nil {
		return apierr.NewInternal(err, "write audit record")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apierr.NewInternal(err, "read inserted audit id")
	}
	rec.ID = id
	return nil
}

// ListAudit returns audit records matching f, newest first. Limit is
// clamped to 1000 per spec §6.
func (s *Store) ListAudit(ctx context.Context, f AuditFilter) ([]AuditRecord, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	query := `SELECT id, event_id, subject_id, action, resource_type, resource_id, decision,
		matched_policy_id, subject_bag, resource_bag, environment_bag, evaluated_policies,
		evaluation_time_ms, reason, ip_address, user_agent, endpoint, created_at
		FROM audit_records WHERE 1=1`
	var args []any
	if f.SubjectID != nil {
		query += " AND subject_id = ?"
		args = append(args, *f.SubjectID)
	}
	if f.ResourceType != nil {
		query += " AND resource_type = ?"
		args = append(args, *f.ResourceType)
	}
	if f.Action != nil {
		query += " AND action = ?"
		args = append(args, *f.Action)
	}
	if f.Decision != nil {
		query += " AND decision = ?"
		args = append(args, *f.Decision)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.SQL.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, apierr.NewInternal(err, "list audit records")
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var (
			rec                                                        AuditRecord
			subjectJSON, resourceJSON, envJSON, evaluatedJSON           sql.NullString
			matchedPolicyID                                            sql.NullInt64
			createdAt                                                  store.ScanTime
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.SubjectID, &rec.Action, &rec.ResourceType,
			&rec.ResourceID, &rec.Decision, &matchedPolicyID, &subjectJSON, &resourceJSON, &envJSON,
			&evaluatedJSON, &rec.EvaluationTimeMS, &rec.Reason, &rec.IPAddress, &rec.UserAgent,
			&rec.Endpoint, &createdAt); err != nil {
			return nil, apierr.NewInternal(err, "scan audit row")
		}
		rec.CreatedAt = createdAt.Time()
		if matchedPolicyID.Valid {
			id := matchedPolicyID.Int64
			rec.MatchedPolicyID = &id
		}
		if subjectJSON.Valid {
			_ = json.Unmarshal([]byte(subjectJSON.String), &rec.SubjectBag)
		}
		if resourceJSON.Valid {
			_ = json.Unmarshal([]byte(resourceJSON.String), &rec.ResourceBag)
		}
		if envJSON.Valid {
			_ = json.Unmarshal([]byte(envJSON.String), &rec.EnvironmentBag)
		}
		if evaluatedJSON.Valid {
			_ = json.Unmarshal([]byte(evaluatedJSON.String), &rec.EvaluatedPolicies)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func marshalOptional(cg *ConditionGroup) (string, error) {
	if cg == nil {
		return "", nil
	}
	b, err := json.Marshal(cg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func orEmpty(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func orEmptyStr(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

// boolParam exists so call sites read the same whether the backend stores
// booleans as an INTEGER (SQLite) or a native BOOLEAN (Postgres) — both
// drivers accept a Go bool as a parameter.
func boolParam(b bool) any { return b }

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
