package masterdata

import (
	"context"
	"errors"
	"strings"
)

// Service is the catalog read surface consumed by handlers and the order
// lifecycle (supplier/warehouse/SKU existence checks).
type Service interface {
	ListSuppliers(ctx context.Context, f ListFilters) ([]Supplier, int, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	SupplierExists(ctx context.Context, id int64) (bool, error)

	ListWarehouses(ctx context.Context, f ListFilters) ([]Warehouse, int, error)
	WarehouseExists(ctx context.Context, code string) (bool, error)

	ListSKUs(ctx context.Context, f ListFilters) ([]SKU, int, error)
	SKUExists(ctx context.Context, code string) (bool, error)
}

type service struct {
	repo Repository
}

// NewService creates a new master data service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) ListSuppliers(ctx context.Context, f ListFilters) ([]Supplier, int, error) {
	return s.repo.ListSuppliers(ctx, f)
}

func (s *service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, errors.New("invalid supplier ID")
	}
	return s.repo.GetSupplier(ctx, id)
}

func (s *service) SupplierExists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	return s.repo.SupplierExists(ctx, id)
}

func (s *service) ListWarehouses(ctx context.Context, f ListFilters) ([]Warehouse, int, error) {
	return s.repo.ListWarehouses(ctx, f)
}

func (s *service) WarehouseExists(ctx context.Context, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}
	return s.repo.WarehouseExists(ctx, code)
}

func (s *service) ListSKUs(ctx context.Context, f ListFilters) ([]SKU, int, error) {
	return s.repo.ListSKUs(ctx, f)
}

func (s *service) SKUExists(ctx context.Context, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}
	return s.repo.SKUExists(ctx, code)
}
