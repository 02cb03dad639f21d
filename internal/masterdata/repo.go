package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewind-ops/tradewind/internal/shared"
)

// Repository reads the replicated reference catalogs.
type Repository interface {
	ListSuppliers(ctx context.Context, f ListFilters) ([]Supplier, int, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	SupplierExists(ctx context.Context, id int64) (bool, error)

	ListWarehouses(ctx context.Context, f ListFilters) ([]Warehouse, int, error)
	WarehouseExists(ctx context.Context, code string) (bool, error)

	ListSKUs(ctx context.Context, f ListFilters) ([]SKU, int, error)
	SKUExists(ctx context.Context, code string) (bool, error)
}

type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

func (r *repo) ListSuppliers(ctx context.Context, f ListFilters) ([]Supplier, int, error) {
	limit, offset := pageWindow(f)
	rows, err := r.db.Query(ctx, `
		SELECT id, code, name, country_code, active, created_at, updated_at, COUNT(*) OVER ()
		FROM suppliers
		WHERE ($1::text = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%')
		  AND ($2::bool IS NULL OR active = $2)
		ORDER BY name
		LIMIT $3 OFFSET $4`, f.Search, f.IsActive, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out   []Supplier
		total int
	)
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.CountryCode, &s.Active, &s.CreatedAt, &s.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *repo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx, `
		SELECT id, code, name, country_code, active, created_at, updated_at
		FROM suppliers WHERE id = $1`, id).
		Scan(&s.ID, &s.Code, &s.Name, &s.CountryCode, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, &shared.NotFoundError{Entity: "supplier", ID: id}
	}
	return s, err
}

func (r *repo) SupplierExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1 AND active)`, id).Scan(&exists)
	return exists, err
}

func (r *repo) ListWarehouses(ctx context.Context, f ListFilters) ([]Warehouse, int, error) {
	limit, offset := pageWindow(f)
	rows, err := r.db.Query(ctx, `
		SELECT id, code, name, region, active, created_at, updated_at, COUNT(*) OVER ()
		FROM warehouses
		WHERE ($1::text = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%')
		  AND ($2::bool IS NULL OR active = $2)
		ORDER BY code
		LIMIT $3 OFFSET $4`, f.Search, f.IsActive, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out   []Warehouse
		total int
	)
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.Region, &w.Active, &w.CreatedAt, &w.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	return out, total, rows.Err()
}

func (r *repo) WarehouseExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM warehouses WHERE code = $1 AND active)`, code).Scan(&exists)
	return exists, err
}

func (r *repo) ListSKUs(ctx context.Context, f ListFilters) ([]SKU, int, error) {
	limit, offset := pageWindow(f)
	rows, err := r.db.Query(ctx, `
		SELECT id, code, description, active, created_at, updated_at, COUNT(*) OVER ()
		FROM skus
		WHERE ($1::text = '' OR code ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
		  AND ($2::bool IS NULL OR active = $2)
		ORDER BY code
		LIMIT $3 OFFSET $4`, f.Search, f.IsActive, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out   []SKU
		total int
	)
	for rows.Next() {
		var s SKU
		if err := rows.Scan(&s.ID, &s.Code, &s.Description, &s.Active, &s.CreatedAt, &s.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *repo) SKUExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM skus WHERE code = $1 AND active)`, code).Scan(&exists)
	return exists, err
}

func pageWindow(f ListFilters) (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
