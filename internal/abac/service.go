package abac

import (
	"context"
	"log/slog"

	"hybridauth/internal/store"
)

// Service implements the AccessService interface from SPEC_FULL §6a over a
// shared *store.DB, mirroring the teacher/pack's NewXService(db, logger)
// construction style.
type Service struct {
	engine *Engine
	store  *Store
}

func NewService(db *store.DB, logger *slog.Logger) *Service {
	s := NewStore(db)
	return &Service{
		engine: NewEngine(s, logger),
		store:  s,
	}
}

func (s *Service) ListPolicies(ctx context.Context, f PolicyFilter) ([]Policy, error) {
	return s.engine.ListPolicies(ctx, f)
}

func (s *Service) CreatePolicy(ctx context.Context, p Policy) (Policy, error) {
	return s.engine.CreatePolicy(ctx, p)
}

func (s *Service) UpdatePolicy(ctx context.Context, id int64, patch PolicyPatch) (Policy, error) {
	return s.engine.UpdatePolicy(ctx, id, patch)
}

func (s *Service) DeletePolicy(ctx context.Context, id int64) error {
	return s.engine.DeletePolicy(ctx, id)
}

func (s *Service) CheckAccess(ctx context.Context, req AccessRequest) (Decision, error) {
	return s.engine.Check(ctx, req)
}

func (s *Service) ListAudit(ctx context.Context, f AuditFilter) ([]AuditRecord, error) {
	return s.store.ListAudit(ctx, f)
}

func (s *Service) GetSubjectProfile(ctx context.Context, subjectID int64) (SubjectProfile, error) {
	return s.store.GetSubjectProfile(ctx, subjectID)
}

func (s *Service) UpdateSubjectProfile(ctx context.Context, subjectID int64, patch SubjectProfilePatch) (SubjectProfile, error) {
	return s.store.UpdateSubjectProfile(ctx, subjectID, patch)
}

func (s *Service) EvaluateHybrid(ctx context.Context, req HybridRequest) (bool, error) {
	return s.engine.EvaluateHybrid(ctx, req)
}
