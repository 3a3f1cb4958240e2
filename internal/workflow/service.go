package workflow

import (
	"context"
	"log/slog"

	"hybridauth/internal/apierr"
	"hybridauth/internal/store"
)

// Service implements the WorkflowService interface from SPEC_FULL §6a: the
// Visibility Gate (C9) guards every operation, the Graph Validator (C6) and
// Stage Compiler (C7) run on save, and the Version Store (C8) snapshots
// every edit. Mirrors internal/abac.Service's construction style over a
// shared *store.DB.
type Service struct {
	store  *Store
	logger *slog.Logger
}

func NewService(db *store.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: NewStore(db), logger: logger}
}

// ListWorkflows returns the workflows matching f that caller may view.
func (s *Service) ListWorkflows(ctx context.Context, caller Subject, f WorkflowFilter) ([]WorkflowDefinition, error) {
	all, err := s.store.ListDefinitions(ctx, f)
	if err != nil {
		return nil, err
	}
	visible := make([]WorkflowDefinition, 0, len(all))
	for _, w := range all {
		if CanView(caller, w) {
			visible = append(visible, w)
		}
	}
	return visible, nil
}

// GetWorkflow returns a workflow if caller may view it.
func (s *Service) GetWorkflow(ctx context.Context, caller Subject, id int64) (WorkflowDefinition, error) {
	w, err := s.store.GetDefinition(ctx, id)
	if err != nil {
		return WorkflowDefinition{}, err
	}
	if !CanView(caller, w) {
		return WorkflowDefinition{}, apierr.NewForbidden("not permitted to view workflow %d", id)
	}
	return w, nil
}

// SaveWorkflowGraph creates a new DRAFT (req.ID == nil) or saves an edit to
// an existing workflow (req.ID != nil), enforcing the edit predicate on the
// latter.
func (s *Service) SaveWorkflowGraph(ctx context.Context, caller Subject, req SaveGraphRequest) (WorkflowDefinition, error) {
	if _, _, err := Validate(req.Graph); err != nil {
		return WorkflowDefinition{}, err
	}
	req.Graph = NormalizeForStorage(req.Graph)

	if req.ID == nil {
		w, err := s.store.CreateDraft(ctx, req, caller.ID)
		if err != nil {
			return WorkflowDefinition{}, err
		}
		s.logger.Debug("workflow created", "workflow", w.ID, "name", w.Name, "creator", caller.ID)
		return w, nil
	}

	existing, err := s.store.GetDefinition(ctx, *req.ID)
	if err != nil {
		return WorkflowDefinition{}, err
	}
	if !CanEdit(caller, existing) {
		return WorkflowDefinition{}, apierr.NewForbidden("not permitted to edit workflow %d", *req.ID)
	}

	w, err := s.store.SaveGraph(ctx, *req.ID, req, caller.ID)
	if err != nil {
		s.logger.Warn("workflow save failed", "workflow", *req.ID, "error", err)
		return WorkflowDefinition{}, err
	}
	s.logger.Debug("workflow saved", "workflow", w.ID, "version", w.Version)
	return w, nil
}

// PublishWorkflow transitions a workflow to ACTIVE after enforcing the
// publish predicate and completeness validation (spec §4.9).
func (s *Service) PublishWorkflow(ctx context.Context, caller Subject, id int64) (WorkflowDefinition, error) {
	existing, err := s.store.GetDefinition(ctx, id)
	if err != nil {
		return WorkflowDefinition{}, err
	}
	if !CanPublish(caller, existing) {
		return WorkflowDefinition{}, apierr.NewForbidden("not permitted to publish workflow %d", id)
	}

	stages, err := s.store.GetStages(ctx, id)
	if err != nil {
		return WorkflowDefinition{}, err
	}
	if diags := ValidatePublishable(existing.Graph, stages); len(diags) > 0 {
		return WorkflowDefinition{}, apierr.NewInvalid("workflow %d is not publishable: %v", id, diags)
	}

	w, err := s.store.SetActive(ctx, id)
	if err != nil {
		return WorkflowDefinition{}, err
	}
	s.logger.Debug("workflow published", "workflow", w.ID)
	return w, nil
}

// CloneWorkflow copies a viewable workflow's current graph into a brand-new
// DRAFT definition at version 1, with no version history of its own.
func (s *Service) CloneWorkflow(ctx context.Context, caller Subject, id int64, newName string) (WorkflowDefinition, error) {
	src, err := s.store.GetDefinition(ctx, id)
	if err != nil {
		return WorkflowDefinition{}, err
	}
	if !CanView(caller, src) {
		return WorkflowDefinition{}, apierr.NewForbidden("not permitted to view workflow %d", id)
	}

	req := SaveGraphRequest{
		Name:         newName,
		ModelName:    src.ModelName,
		Graph:        src.Graph,
		DepartmentID: src.DepartmentID,
		DivisionID:   src.DivisionID,
		ViewRoles:    src.ViewRoles,
		EditRoles:    src.EditRoles,
		UseRoles:     src.UseRoles,
	}
	return s.store.CreateDraft(ctx, req, caller.ID)
}

// ListVersions returns the version history of a workflow caller may view.
func (s *Service) ListVersions(ctx context.Context, caller Subject, id int64) ([]WorkflowVersion, error) {
	w, err := s.store.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(caller, w) {
		return nil, apierr.NewForbidden("not permitted to view workflow %d", id)
	}
	return s.store.ListVersions(ctx, id)
}

// DeleteWorkflow removes a workflow and its derived stages/routes/versions
// (W1). Only an editor may delete.
func (s *Service) DeleteWorkflow(ctx context.Context, caller Subject, id int64) error {
	w, err := s.store.GetDefinition(ctx, id)
	if err != nil {
		return err
	}
	if !CanEdit(caller, w) {
		return apierr.NewForbidden("not permitted to delete workflow %d", id)
	}
	return s.store.DeleteWorkflow(ctx, id)
}

// ExportDOT renders the compiled stage/route graph of a viewable workflow as
// a Graphviz DOT document (SPEC_FULL §4.11).
func (s *Service) ExportDOT(ctx context.Context, caller Subject, id int64) (string, error) {
	w, err := s.store.GetDefinition(ctx, id)
	if err != nil {
		return "", err
	}
	if !CanView(caller, w) {
		return "", apierr.NewForbidden("not permitted to view workflow %d", id)
	}
	stages, err := s.store.GetStages(ctx, id)
	if err != nil {
		return "", err
	}
	routes, err := s.store.GetRoutes(ctx, id)
	if err != nil {
		return "", err
	}
	return ExportDOT(w.Name, stages, routes)
}
