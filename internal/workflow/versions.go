package workflow

import (
	"context"
	"database/sql"
	"encoding/json"

	"hybridauth/internal/apierr"
	"hybridauth/internal/store"
)

// ListVersions is the Version Store's (C8) read path: the immutable
// snapshot history for a workflow, newest first. The snapshot-on-save write
// path lives in Store.SaveGraph, inside the same transaction as the stage
// recompilation — a version row and its stage projection always advance
// together (I5).
func (s *Store) ListVersions(ctx context.Context, workflowID int64) ([]WorkflowVersion, error) {
	query := s.db.Rebind(`SELECT id, workflow_id, version_number, graph, change_description,
		created_by, created_at FROM workflow_versions WHERE workflow_id = ?
		ORDER BY version_number DESC`)
	rows, err := s.db.SQL.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, apierr.NewInternal(err, "list versions for workflow %d", workflowID)
	}
	defer rows.Close()

	var out []WorkflowVersion
	for rows.Next() {
		var (
			v         WorkflowVersion
			graph     string
			desc      sql.NullString
			createdAt store.ScanTime
		)
		if err := rows.Scan(&v.ID, &v.WorkflowID, &v.VersionNumber, &graph, &desc, &v.CreatedBy,
			&createdAt); err != nil {
			return nil, apierr.NewInternal(err, "scan version row")
		}
		v.CreatedAt = createdAt.Time()
		v.Graph = json.RawMessage(graph)
		v.ChangeDescription = desc.String
		out = append(out, v)
	}
	return out, rows.Err()
}
