package workflow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"hybridauth/internal/apierr"
	"hybridauth/internal/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "workflow_test")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	db, err := store.Open(filepath.Join(tmpDir, "workflow.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// simpleGraph builds a start -> approval(hr) -> end chain, the fixture in
// spec scenario 5.
func simpleGraph(t *testing.T, approverRole string) json.RawMessage {
	t.Helper()
	doc := map[string]any{
		"nodes": []map[string]any{
			{"id": "n1", "type": "start", "position": map[string]float64{"x": 0, "y": 0}, "data": map[string]any{}},
			{"id": "n2", "type": "APPROVAL", "position": map[string]float64{"x": 1, "y": 0},
				"data": map[string]any{"required_role": approverRole}},
			{"id": "n3", "type": "END", "position": map[string]float64{"x": 2, "y": 0}, "data": map[string]any{}},
		},
		"edges": []map[string]any{
			{"id": "e1", "source": "n1", "target": "n2"},
			{"id": "e2", "source": "n2", "target": "n3"},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal graph: %v", err)
	}
	return raw
}

func newTestService(t *testing.T) (*Service, *store.DB) {
	db := newTestDB(t)
	return NewService(db, nil), db
}

// Scenario 5: workflow save compiles stages, chains next_stage_id, and
// starts at version 1.
func TestSaveWorkflowGraph_CreateCompilesStages(t *testing.T) {
	svc, _ := newTestService(t)
	caller := Subject{ID: 1, IsAdmin: true}

	w, err := svc.SaveWorkflowGraph(context.Background(), caller, SaveGraphRequest{
		Name: "onboarding", Graph: simpleGraph(t, "hr"),
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if w.Version != 1 {
		t.Fatalf("version = %d, want 1", w.Version)
	}
	if w.Status != StatusDraft {
		t.Fatalf("status = %s, want DRAFT", w.Status)
	}

	stages, err := svc.store.GetStages(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("get stages: %v", err)
	}
	if len(stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(stages))
	}

	byNode := make(map[string]WorkflowStage, len(stages))
	for _, s := range stages {
		byNode[s.NodeID] = s
	}
	start, approval, end := byNode["n1"], byNode["n2"], byNode["n3"]
	if start.NodeType != NodeStart {
		t.Fatalf("n1 type = %s, want START", start.NodeType)
	}
	if approval.NextStageID == nil || *approval.NextStageID != end.ID {
		t.Fatalf("approval.next_stage_id = %v, want %d", approval.NextStageID, end.ID)
	}
	if start.NextStageID == nil || *start.NextStageID != approval.ID {
		t.Fatalf("start.next_stage_id = %v, want %d", start.NextStageID, approval.ID)
	}
	if end.NextStageID != nil {
		t.Fatalf("end.next_stage_id = %v, want nil", end.NextStageID)
	}
}

// Invariant I5 / W4: saving again snapshots the prior version and bumps by
// exactly one.
func TestSaveWorkflowGraph_VersionMonotonicity(t *testing.T) {
	svc, _ := newTestService(t)
	caller := Subject{ID: 1, IsAdmin: true}

	created, err := svc.SaveWorkflowGraph(context.Background(), caller, SaveGraphRequest{
		Name: "wf", Graph: simpleGraph(t, "hr"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	id := created.ID
	updated, err := svc.SaveWorkflowGraph(context.Background(), caller, SaveGraphRequest{
		ID: &id, Graph: simpleGraph(t, "finance"), ChangeDescription: "swap approver",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != created.Version+1 {
		t.Fatalf("version = %d, want %d", updated.Version, created.Version+1)
	}

	versions, err := svc.ListVersions(context.Background(), caller, id)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("expected 1 version snapshot, got %d", len(versions))
	}
	if versions[0].VersionNumber != created.Version {
		t.Fatalf("snapshot version_number = %d, want %d (pre-edit)", versions[0].VersionNumber, created.Version)
	}
}

// Invariant I6: after a save, the stage set matches the saved graph's nodes
// exactly — re-saving with fewer nodes drops the removed stage.
func TestSaveWorkflowGraph_AtomicRecompilation(t *testing.T) {
	svc, _ := newTestService(t)
	caller := Subject{ID: 1, IsAdmin: true}

	created, err := svc.SaveWorkflowGraph(context.Background(), caller, SaveGraphRequest{
		Name: "wf", Graph: simpleGraph(t, "hr"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	twoNodeDoc := map[string]any{
		"nodes": []map[string]any{
			{"id": "n1", "type": "start", "position": map[string]float64{"x": 0, "y": 0}, "data": map[string]any{}},
			{"id": "n3", "type": "END", "position": map[string]float64{"x": 2, "y": 0}, "data": map[string]any{}},
		},
		"edges": []map[string]any{
			{"id": "e1", "source": "n1", "target": "n3"},
		},
	}
	raw, _ := json.Marshal(twoNodeDoc)
	id := created.ID
	if _, err := svc.SaveWorkflowGraph(context.Background(), caller, SaveGraphRequest{ID: &id, Graph: raw}); err != nil {
		t.Fatalf("resave: %v", err)
	}

	stages, err := svc.store.GetStages(context.Background(), id)
	if err != nil {
		t.Fatalf("get stages: %v", err)
	}
	if len(stages) != 2 {
		t.Fatalf("expected 2 stages after recompile, got %d", len(stages))
	}
	for _, s := range stages {
		if s.NodeID == "n2" {
			t.Fatal("stale stage n2 survived recompilation")
		}
	}
}

// Scenario 6: publish rejects an incomplete approval stage.
func TestPublishWorkflow_RejectsIncompleteApproval(t *testing.T) {
	svc, _ := newTestService(t)
	caller := Subject{ID: 1, IsAdmin: true}

	w, err := svc.SaveWorkflowGraph(context.Background(), caller, SaveGraphRequest{
		Name: "incomplete", Graph: simpleGraph(t, ""),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.PublishWorkflow(context.Background(), caller, w.ID)
	if err == nil {
		t.Fatal("expected publish to fail on incomplete approval stage")
	}
	if !apierr.Is(err, apierr.Invalid) {
		t.Fatalf("expected INVALID, got %v", err)
	}
}

// W5: published_at is set on first publish and never moves on republish.
func TestPublishWorkflow_SetsPublishedAtOnce(t *testing.T) {
	svc, _ := newTestService(t)
	caller := Subject{ID: 1, IsAdmin: true}

	w, err := svc.SaveWorkflowGraph(context.Background(), caller, SaveGraphRequest{
		Name: "publishable", Graph: simpleGraph(t, "hr"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	published, err := svc.PublishWorkflow(context.Background(), caller, w.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.PublishedAt == nil {
		t.Fatal("expected published_at to be set")
	}
	firstPublishedAt := *published.PublishedAt

	id := w.ID
	if _, err := svc.SaveWorkflowGraph(context.Background(), caller, SaveGraphRequest{ID: &id, Graph: simpleGraph(t, "hr")}); err != nil {
		t.Fatalf("resave: %v", err)
	}
	republished, err := svc.PublishWorkflow(context.Background(), caller, w.ID)
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if !republished.PublishedAt.Equal(firstPublishedAt) {
		t.Fatalf("published_at changed on republish: %v -> %v", firstPublishedAt, *republished.PublishedAt)
	}
}

func TestVisibilityGate_EditForbiddenForOutsider(t *testing.T) {
	svc, _ := newTestService(t)
	creator := Subject{ID: 1}
	outsider := Subject{ID: 2, Roles: []string{"viewer"}}

	w, err := svc.SaveWorkflowGraph(context.Background(), creator, SaveGraphRequest{
		Name: "scoped", Graph: simpleGraph(t, "hr"), EditRoles: []string{"editor"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	id := w.ID
	_, err = svc.SaveWorkflowGraph(context.Background(), outsider, SaveGraphRequest{ID: &id, Graph: simpleGraph(t, "hr")})
	if !apierr.Is(err, apierr.Forbidden) {
		t.Fatalf("expected FORBIDDEN for outsider edit, got %v", err)
	}
}

func TestCloneWorkflow_StartsFreshDraft(t *testing.T) {
	svc, _ := newTestService(t)
	caller := Subject{ID: 1, IsAdmin: true}

	w, err := svc.SaveWorkflowGraph(context.Background(), caller, SaveGraphRequest{
		Name: "original", Graph: simpleGraph(t, "hr"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.PublishWorkflow(context.Background(), caller, w.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}

	clone, err := svc.CloneWorkflow(context.Background(), caller, w.ID, "original-copy")
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if clone.Version != 1 {
		t.Fatalf("clone version = %d, want 1", clone.Version)
	}
	if clone.Status != StatusDraft {
		t.Fatalf("clone status = %s, want DRAFT", clone.Status)
	}
	if clone.ID == w.ID {
		t.Fatal("clone must be a distinct workflow")
	}
}

func TestDeleteWorkflow_CascadesStagesAndVersions(t *testing.T) {
	svc, _ := newTestService(t)
	caller := Subject{ID: 1, IsAdmin: true}

	w, err := svc.SaveWorkflowGraph(context.Background(), caller, SaveGraphRequest{
		Name: "to-delete", Graph: simpleGraph(t, "hr"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.DeleteWorkflow(context.Background(), caller, w.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetWorkflow(context.Background(), caller, w.ID); !apierr.Is(err, apierr.NotFound) {
		t.Fatalf("expected NOT_FOUND after delete, got %v", err)
	}
	stages, err := svc.store.GetStages(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("get stages: %v", err)
	}
	if len(stages) != 0 {
		t.Fatalf("expected stages cascaded away, got %d", len(stages))
	}
}

func TestExportDOT_RendersCompiledStages(t *testing.T) {
	svc, _ := newTestService(t)
	caller := Subject{ID: 1, IsAdmin: true}

	w, err := svc.SaveWorkflowGraph(context.Background(), caller, SaveGraphRequest{
		Name: "dot-me", Graph: simpleGraph(t, "hr"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	dot, err := svc.ExportDOT(context.Background(), caller, w.ID)
	if err != nil {
		t.Fatalf("export dot: %v", err)
	}
	if dot == "" {
		t.Fatal("expected non-empty DOT document")
	}
}
