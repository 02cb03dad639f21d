package audit

import (
	"context"
	"fmt"
)

// RepositoryPort is the read surface the service needs.
type RepositoryPort interface {
	ListByEntity(ctx context.Context, entityType string, entityID int64) ([]Entry, error)
	Timeline(ctx context.Context, f TimelineFilters) ([]Entry, error)
}

// Result wraps a timeline window with paging information.
type Result struct {
	Rows    []Entry
	Page    int
	HasNext bool
}

// Service coordinates audit reads.
type Service struct {
	repo RepositoryPort
}

// NewService creates the audit read service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListForOrder returns one purchase order's history in creation order.
func (s *Service) ListForOrder(ctx context.Context, orderID int64) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.ListByEntity(ctx, EntityPurchaseOrder, orderID)
}

// Timeline returns a filtered window across all entities. The repository
// fetches one extra row so HasNext can be reported without a count query.
func (s *Service) Timeline(ctx context.Context, f TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	f.PageSize = pageSize
	if f.Page <= 0 {
		f.Page = 1
	}
	rows, err := s.repo.Timeline(ctx, f)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	return Result{Rows: rows, Page: f.Page, HasNext: hasNext}, nil
}
