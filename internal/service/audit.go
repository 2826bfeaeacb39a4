package service

import (
	"context"

	"credserver/internal/model"
	"credserver/internal/repository"
)

const (
	defaultAuditLimit = 10
	maxAuditLimit     = 100
)

// ErrAuditDisabled is returned when no audit database is configured.
var ErrAuditDisabled = repository.ErrAuditDisabled

// RefreshEventListResult is the service-level DTO for paginated refresh events.
type RefreshEventListResult struct {
	Items []model.RefreshEvent `json:"data"`
	Total int                  `json:"total"`
}

// AuditService exposes the refresh history.
type AuditService interface {
	// List returns refresh events newest first using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*RefreshEventListResult, error)
}

type auditService struct {
	repo repository.RefreshEventRepository
}

// NewAuditService constructs a new AuditService.
func NewAuditService(repo repository.RefreshEventRepository) AuditService {
	if repo == nil {
		repo = repository.NopRefreshEventRepository{}
	}
	return &auditService{repo: repo}
}

func (s *auditService) List(ctx context.Context, limit, offset int) (*RefreshEventListResult, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &RefreshEventListResult{Items: res.Items, Total: res.Total}, nil
}
