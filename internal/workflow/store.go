package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"hybridauth/internal/apierr"
	"hybridauth/internal/store"
)

// Store is the persistence layer for WorkflowDefinition, the compiled
// WorkflowStage/ConditionalRoute projection, and WorkflowVersion snapshots.
// Modeled on internal/abac.Store's query style over the shared *store.DB.
type Store struct {
	db *store.DB
}

func NewStore(db *store.DB) *Store { return &Store{db: db} }

// ListDefinitions returns workflows matching f, newest first.
func (s *Store) ListDefinitions(ctx context.Context, f WorkflowFilter) ([]WorkflowDefinition, error) {
	query := `SELECT id, name, model_name, graph, version, status, created_by, department_id,
		division_id, view_roles, edit_roles, use_roles, created_at, updated_at, published_at
		FROM workflow_definitions WHERE 1=1`
	var args []any
	if f.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*f.Status))
	}
	if f.DepartmentID != nil {
		query += " AND department_id = ?"
		args = append(args, *f.DepartmentID)
	}
	query += " ORDER BY id DESC"

	rows, err := s.db.SQL.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, apierr.NewInternal(err, "list workflows")
	}
	defer rows.Close()

	var out []WorkflowDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// row is satisfied by both *sql.Row and *sql.Rows.
type row interface {
	Scan(dest ...any) error
}

func scanDefinition(r row) (WorkflowDefinition, error) {
	var (
		d                                      WorkflowDefinition
		graph                                  string
		viewJSON, editJSON, useJSON            sql.NullString
		modelName                              sql.NullString
		createdAt, updatedAt                   store.ScanTime
		publishedAt                            store.NullScanTime
	)
	if err := r.Scan(&d.ID, &d.Name, &modelName, &graph, &d.Version, &d.Status, &d.CreatedBy,
		&d.DepartmentID, &d.DivisionID, &viewJSON, &editJSON, &useJSON, &createdAt, &updatedAt,
		&publishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WorkflowDefinition{}, apierr.NewNotFound("workflow not found")
		}
		return WorkflowDefinition{}, apierr.NewInternal(err, "scan workflow row")
	}
	d.CreatedAt, d.UpdatedAt = createdAt.Time(), updatedAt.Time()
	d.ModelName = modelName.String
	d.Graph = json.RawMessage(graph)
	if viewJSON.Valid {
		_ = json.Unmarshal([]byte(viewJSON.String), &d.ViewRoles)
	}
	if editJSON.Valid {
		_ = json.Unmarshal([]byte(editJSON.String), &d.EditRoles)
	}
	if useJSON.Valid {
		_ = json.Unmarshal([]byte(useJSON.String), &d.UseRoles)
	}
	if publishedAt.Valid {
		t := publishedAt.ScanTime.Time()
		d.PublishedAt = &t
	}
	return d, nil
}

// GetDefinition loads one workflow by id.
func (s *Store) GetDefinition(ctx context.Context, id int64) (WorkflowDefinition, error) {
	query := s.db.Rebind(`SELECT id, name, model_name, graph, version, status, created_by,
		department_id, division_id, view_roles, edit_roles, use_roles, created_at, updated_at,
		published_at FROM workflow_definitions WHERE id = ?`)
	d, err := scanDefinition(s.db.SQL.QueryRowContext(ctx, query, id))
	if err != nil {
		if apierr.Is(err, apierr.NotFound) {
			return WorkflowDefinition{}, apierr.NewNotFound("workflow %d not found", id)
		}
		return WorkflowDefinition{}, err
	}
	return d, nil
}

// CreateDraft inserts a brand-new DRAFT definition at version 1 and compiles
// its initial stage/route projection, all within one transaction.
func (s *Store) CreateDraft(ctx context.Context, req SaveGraphRequest, creator int64) (WorkflowDefinition, error) {
	doc, _, err := Validate(req.Graph)
	if err != nil {
		return WorkflowDefinition{}, err
	}

	tx, err := s.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return WorkflowDefinition{}, apierr.NewInternal(err, "begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	viewJSON, _ := json.Marshal(orEmptyStrs(req.ViewRoles))
	editJSON, _ := json.Marshal(orEmptyStrs(req.EditRoles))
	useJSON, _ := json.Marshal(orEmptyStrs(req.UseRoles))

	query := s.db.Rebind(`INSERT INTO workflow_definitions
		(name, model_name, graph, version, status, created_by, department_id, division_id,
		 view_roles, edit_roles, use_roles, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	res, err := tx.ExecContext(ctx, query, req.Name, req.ModelName, string(req.Graph), StatusDraft,
		creator, req.DepartmentID, req.DivisionID, string(viewJSON), string(editJSON), string(useJSON),
		now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return WorkflowDefinition{}, apierr.NewConflict("workflow %q already exists", req.Name)
		}
		return WorkflowDefinition{}, apierr.NewInternal(err, "create workflow")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return WorkflowDefinition{}, apierr.NewInternal(err, "read inserted workflow id")
	}

	if err := s.replaceStages(ctx, tx, id, doc); err != nil {
		return WorkflowDefinition{}, err
	}
	if err := tx.Commit(); err != nil {
		return WorkflowDefinition{}, apierr.NewInternal(err, "commit create workflow")
	}

	return s.GetDefinition(ctx, id)
}

// SaveGraph implements C7+C8 atomically: snapshot the pre-edit graph/version
// (C8), destroy-and-rebuild stages/routes from the new graph (C7), and bump
// the version by exactly one (I5/W4).
func (s *Store) SaveGraph(ctx context.Context, id int64, req SaveGraphRequest, editor int64) (WorkflowDefinition, error) {
	doc, _, err := Validate(req.Graph)
	if err != nil {
		return WorkflowDefinition{}, err
	}

	existing, err := s.GetDefinition(ctx, id)
	if err != nil {
		return WorkflowDefinition{}, err
	}

	tx, err := s.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return WorkflowDefinition{}, apierr.NewInternal(err, "begin transaction")
	}
	defer tx.Rollback()

	snapQuery := s.db.Rebind(`INSERT INTO workflow_versions
		(workflow_id, version_number, graph, change_description, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, snapQuery, id, existing.Version, string(existing.Graph),
		req.ChangeDescription, editor, time.Now().UTC()); err != nil {
		return WorkflowDefinition{}, apierr.NewInternal(err, "snapshot version %d", existing.Version)
	}

	if err := s.replaceStages(ctx, tx, id, doc); err != nil {
		return WorkflowDefinition{}, err
	}

	newVersion := existing.Version + 1
	now := time.Now().UTC()
	var nameUpdate, modelUpdate = existing.Name, existing.ModelName
	if req.Name != "" {
		nameUpdate = req.Name
	}
	if req.ModelName != "" {
		modelUpdate = req.ModelName
	}
	viewJSON, _ := json.Marshal(orEmptyStrs(coalesceRoles(req.ViewRoles, existing.ViewRoles)))
	editJSON, _ := json.Marshal(orEmptyStrs(coalesceRoles(req.EditRoles, existing.EditRoles)))
	useJSON, _ := json.Marshal(orEmptyStrs(coalesceRoles(req.UseRoles, existing.UseRoles)))

	updQuery := s.db.Rebind(`UPDATE workflow_definitions SET name=?, model_name=?, graph=?,
		version=?, department_id=?, division_id=?, view_roles=?, edit_roles=?, use_roles=?,
		updated_at=? WHERE id=?`)
	if _, err := tx.ExecContext(ctx, updQuery, nameUpdate, modelUpdate, string(req.Graph), newVersion,
		coalescePtr(req.DepartmentID, existing.DepartmentID), coalescePtr(req.DivisionID, existing.DivisionID),
		string(viewJSON), string(editJSON), string(useJSON), now, id); err != nil {
		if isUniqueViolation(err) {
			return WorkflowDefinition{}, apierr.NewConflict("workflow name conflict")
		}
		return WorkflowDefinition{}, apierr.NewInternal(err, "update workflow %d", id)
	}

	if err := tx.Commit(); err != nil {
		return WorkflowDefinition{}, apierr.NewInternal(err, "commit save workflow")
	}
	return s.GetDefinition(ctx, id)
}

// replaceStages is the transactional heart of the Stage Compiler (C7): under
// the caller's transaction, delete every existing stage/route for the
// workflow, then recreate them from doc. Either all of it commits with the
// caller's transaction or none of it does.
func (s *Store) replaceStages(ctx context.Context, tx *sql.Tx, workflowID int64, doc graphDoc) error {
	delRoutes := s.db.Rebind(`DELETE FROM conditional_routes WHERE from_stage_id IN
		(SELECT id FROM workflow_stages WHERE workflow_id = ?)`)
	if _, err := tx.ExecContext(ctx, delRoutes, workflowID); err != nil {
		return apierr.NewInternal(err, "delete routes for workflow %d", workflowID)
	}
	delStages := s.db.Rebind(`DELETE FROM workflow_stages WHERE workflow_id = ?`)
	if _, err := tx.ExecContext(ctx, delStages, workflowID); err != nil {
		return apierr.NewInternal(err, "delete stages for workflow %d", workflowID)
	}

	stages, edges := Compile(doc)
	nodeToStageID := make(map[string]int64, len(stages))

	insQuery := s.db.Rebind(`INSERT INTO workflow_stages
		(workflow_id, node_id, node_type, order_index, required_role, required_roles,
		 specific_users, approval_type, required_count, condition_config, sla_hours,
		 escalation_config, notification_template, action_hook, position_x, position_y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, st := range stages {
		rolesJSON, _ := json.Marshal(orEmptyStrs(st.RequiredRoles))
		usersJSON, _ := json.Marshal(orEmptyInt64s(st.SpecificUsers))
		condJSON, _ := marshalMapOptional(st.ConditionConfig)
		escJSON, _ := marshalMapOptional(st.EscalationConfig)

		res, err := tx.ExecContext(ctx, insQuery, workflowID, st.NodeID, st.NodeType, st.OrderIndex,
			st.RequiredRole, string(rolesJSON), string(usersJSON), st.ApprovalType, st.RequiredCount,
			condJSON, st.SLAHours, escJSON, st.NotificationTemplate, st.ActionHook, st.PositionX, st.PositionY)
		if err != nil {
			return apierr.NewInternal(err, "insert stage %s", st.NodeID)
		}
		stageID, err := res.LastInsertId()
		if err != nil {
			return apierr.NewInternal(err, "read inserted stage id for %s", st.NodeID)
		}
		nodeToStageID[st.NodeID] = stageID
	}

	routeQuery := s.db.Rebind(`INSERT INTO conditional_routes
		(from_stage_id, to_stage_id, label, field, operator, value, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	nextUpdate := s.db.Rebind(`UPDATE workflow_stages SET next_stage_id = ? WHERE id = ?`)
	nextStageSet := make(map[int64]bool, len(stages))

	for _, e := range edges {
		fromID, fromOK := nodeToStageID[e.SourceNodeID]
		toID, toOK := nodeToStageID[e.TargetNodeID]
		if !fromOK || !toOK {
			continue
		}
		if e.Conditional {
			if _, err := tx.ExecContext(ctx, routeQuery, fromID, toID, e.Label, e.Field, e.Operator,
				e.Value, e.Priority); err != nil {
				return apierr.NewInternal(err, "insert route %d->%d", fromID, toID)
			}
			continue
		}
		if nextStageSet[fromID] {
			// Implicit-else: a default successor is already set for this
			// stage; subsequent unconditional edges are accepted without a
			// route record, per spec §4.7 step 3.
			continue
		}
		if _, err := tx.ExecContext(ctx, nextUpdate, toID, fromID); err != nil {
			return apierr.NewInternal(err, "set next_stage_id for stage %d", fromID)
		}
		nextStageSet[fromID] = true
	}
	return nil
}

// GetStages returns the compiled stages for a workflow, ordered by position.
func (s *Store) GetStages(ctx context.Context, workflowID int64) ([]WorkflowStage, error) {
	query := s.db.Rebind(`SELECT id, workflow_id, node_id, node_type, order_index, required_role,
		required_roles, specific_users, approval_type, required_count, condition_config, sla_hours,
		escalation_config, notification_template, action_hook, position_x, position_y, next_stage_id
		FROM workflow_stages WHERE workflow_id = ? ORDER BY order_index ASC`)
	rows, err := s.db.SQL.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, apierr.NewInternal(err, "list stages for workflow %d", workflowID)
	}
	defer rows.Close()

	var out []WorkflowStage
	for rows.Next() {
		var (
			st                                         WorkflowStage
			rolesJSON, usersJSON                       sql.NullString
			condJSON, escJSON                          sql.NullString
			approvalType                               sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.WorkflowID, &st.NodeID, &st.NodeType, &st.OrderIndex,
			&st.RequiredRole, &rolesJSON, &usersJSON, &approvalType, &st.RequiredCount, &condJSON,
			&st.SLAHours, &escJSON, &st.NotificationTemplate, &st.ActionHook, &st.PositionX,
			&st.PositionY, &st.NextStageID); err != nil {
			return nil, apierr.NewInternal(err, "scan stage row")
		}
		st.ApprovalType = ApprovalType(approvalType.String)
		if rolesJSON.Valid && rolesJSON.String != "" {
			_ = json.Unmarshal([]byte(rolesJSON.String), &st.RequiredRoles)
		}
		if usersJSON.Valid && usersJSON.String != "" {
			_ = json.Unmarshal([]byte(usersJSON.String), &st.SpecificUsers)
		}
		if condJSON.Valid && condJSON.String != "" {
			_ = json.Unmarshal([]byte(condJSON.String), &st.ConditionConfig)
		}
		if escJSON.Valid && escJSON.String != "" {
			_ = json.Unmarshal([]byte(escJSON.String), &st.EscalationConfig)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetRoutes returns every ConditionalRoute whose from_stage belongs to the
// workflow.
func (s *Store) GetRoutes(ctx context.Context, workflowID int64) ([]ConditionalRoute, error) {
	query := s.db.Rebind(`SELECT r.id, r.from_stage_id, r.to_stage_id, r.label, r.field,
		r.operator, r.value, r.priority FROM conditional_routes r
		JOIN workflow_stages s ON s.id = r.from_stage_id WHERE s.workflow_id = ?
		ORDER BY r.priority DESC, r.id ASC`)
	rows, err := s.db.SQL.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, apierr.NewInternal(err, "list routes for workflow %d", workflowID)
	}
	defer rows.Close()

	var out []ConditionalRoute
	for rows.Next() {
		var rt ConditionalRoute
		if err := rows.Scan(&rt.ID, &rt.FromStageID, &rt.ToStageID, &rt.Label, &rt.Field,
			&rt.Operator, &rt.Value, &rt.Priority); err != nil {
			return nil, apierr.NewInternal(err, "scan route row")
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// SetActive transitions a workflow to ACTIVE, stamping published_at on its
// first publish only (W5).
func (s *Store) SetActive(ctx context.Context, id int64) (WorkflowDefinition, error) {
	existing, err := s.GetDefinition(ctx, id)
	if err != nil {
		return WorkflowDefinition{}, err
	}
	now := time.Now().UTC()
	publishedAt := now
	if existing.PublishedAt != nil {
		publishedAt = *existing.PublishedAt
	}
	query := s.db.Rebind(`UPDATE workflow_definitions SET status = ?, published_at = ?, updated_at = ?
		WHERE id = ?`)
	if _, err := s.db.SQL.ExecContext(ctx, query, StatusActive, publishedAt, now, id); err != nil {
		return WorkflowDefinition{}, apierr.NewInternal(err, "publish workflow %d", id)
	}
	return s.GetDefinition(ctx, id)
}

// DeleteWorkflow cascades: versions, routes, stages, then the definition
// itself (W1).
func (s *Store) DeleteWorkflow(ctx context.Context, id int64) error {
	tx, err := s.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return apierr.NewInternal(err, "begin transaction")
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM workflow_versions WHERE workflow_id = ?`,
		`DELETE FROM conditional_routes WHERE from_stage_id IN (SELECT id FROM workflow_stages WHERE workflow_id = ?)`,
		`DELETE FROM workflow_stages WHERE workflow_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(stmt), id); err != nil {
			return apierr.NewInternal(err, "cascade delete for workflow %d", id)
		}
	}
	res, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM workflow_definitions WHERE id = ?`), id)
	if err != nil {
		return apierr.NewInternal(err, "delete workflow %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.NewInternal(err, "delete workflow %d", id)
	}
	if n == 0 {
		return apierr.NewNotFound("workflow %d not found", id)
	}
	return tx.Commit()
}

func orEmptyStrs(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func orEmptyInt64s(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func marshalMapOptional(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func coalesceRoles(next, existing []string) []string {
	if next != nil {
		return next
	}
	return existing
}

func coalescePtr(next, existing *int64) *int64 {
	if next != nil {
		return next
	}
	return existing
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
