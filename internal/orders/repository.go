package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewind-ops/tradewind/internal/audit"
	"github.com/tradewind-ops/tradewind/internal/platform/db"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx so the read helpers can
// serve both paths.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the postgres-backed order repository.
func NewRepository(pool *pgxpool.Pool) RepositoryPort {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return fetchOrder(ctx, r.pool, id, false)
}

func (r *repository) ListOrders(ctx context.Context, f ListFilters) ([]Order, int, error) {
	limit, offset := pageWindow(f.Page, f.PerPage)
	rows, err := r.pool.Query(ctx, `
SELECT `+orderColumns+`, COUNT(*) OVER () AS total
FROM purchase_orders
WHERE ($1 = '' OR status = $1)
  AND ($2 = 0 OR supplier_id = $2)
  AND ($3::uuid IS NULL OR split_group_id = $3)
  AND ($4 = '' OR order_number ILIKE '%' || $4 || '%' OR po_number ILIKE '%' || $4 || '%')
ORDER BY id DESC
LIMIT $5 OFFSET $6`,
		string(f.Status), f.SupplierID, f.SplitGroupID, f.Search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		orders []Order
		total  int
	)
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o, &total); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LoadOrderForUpdate(ctx context.Context, id int64) (*Order, error) {
	return fetchOrder(ctx, r.tx, id, true)
}

func (r *txRepository) NextOrderNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.tx.QueryRow(ctx, `SELECT nextval('purchase_order_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("TW-PO-%06d", n), nil
}

func (r *txRepository) InsertOrder(ctx context.Context, o *Order) error {
	return r.tx.QueryRow(ctx, `
INSERT INTO purchase_orders (
	order_number, po_number, status, supplier_id, split_group_id, split_parent_id,
	cargo_ready_date, incoterms, payment_terms, notes, is_legacy, version, posted_at,
	rejection, manufacturing, ocean, warehouse, shipped, generated,
	created_by, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
RETURNING id`,
		o.OrderNumber, o.PONumber, string(o.Status), o.SupplierID, o.SplitGroupID, o.SplitParentID,
		o.CargoReadyDate, o.Incoterms, o.PaymentTerms, o.Notes, o.IsLegacy, o.Version, o.PostedAt,
		o.Rejection, o.Manufacturing, o.Ocean, o.Warehouse, o.Shipped, o.Generated,
		o.CreatedBy, o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
}

// UpdateOrder writes the full header and bumps the row only when the stored
// version is exactly one behind. Zero rows touched means somebody else got
// there first.
func (r *txRepository) UpdateOrder(ctx context.Context, o *Order) error {
	cmd, err := r.tx.Exec(ctx, `
UPDATE purchase_orders SET
	po_number=$2, status=$3, supplier_id=$4, split_group_id=$5, split_parent_id=$6,
	cargo_ready_date=$7, incoterms=$8, payment_terms=$9, notes=$10, is_legacy=$11,
	version=$12, posted_at=$13, rejection=$14, manufacturing=$15, ocean=$16,
	warehouse=$17, shipped=$18, generated=$19, updated_at=$20
WHERE id=$1 AND version=$21`,
		o.ID,
		o.PONumber, string(o.Status), o.SupplierID, o.SplitGroupID, o.SplitParentID,
		o.CargoReadyDate, o.Incoterms, o.PaymentTerms, o.Notes, o.IsLegacy,
		o.Version, o.PostedAt, o.Rejection, o.Manufacturing, o.Ocean,
		o.Warehouse, o.Shipped, o.Generated, o.UpdatedAt,
		o.Version-1)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return &shared.ConflictError{Detail: "order version changed, reload and retry"}
	}
	return nil
}

func (r *txRepository) InsertLine(ctx context.Context, l *Line) error {
	return r.tx.QueryRow(ctx, `
INSERT INTO purchase_order_lines (
	order_id, sku_code, description, lot_ref, pi_number, commodity_code, country_of_origin,
	material, net_weight_kg, carton_weight_kg, side1_cm, side2_cm, side3_cm, legacy_dims,
	packaging_type, units_ordered, units_per_carton, quantity, unit_cost, total_cost,
	currency, status, quantity_received, line_notes, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
RETURNING id`,
		l.OrderID, l.SKUCode, l.Description, l.LotRef, l.PINumber, l.CommodityCode, l.CountryOfOrigin,
		l.Material, l.NetWeightKg, l.CartonWeightKg, l.Side1Cm, l.Side2Cm, l.Side3Cm, l.LegacyDims,
		l.PackagingType, l.UnitsOrdered, l.UnitsPerCarton, l.Quantity, l.UnitCost, l.TotalCost,
		l.Currency, string(l.Status), l.QuantityReceived, l.LineNotes, l.CreatedAt, l.UpdatedAt).Scan(&l.ID)
}

func (r *txRepository) UpdateLine(ctx context.Context, l *Line) error {
	cmd, err := r.tx.Exec(ctx, `
UPDATE purchase_order_lines SET
	sku_code=$2, description=$3, lot_ref=$4, pi_number=$5, commodity_code=$6,
	country_of_origin=$7, material=$8, net_weight_kg=$9, carton_weight_kg=$10,
	side1_cm=$11, side2_cm=$12, side3_cm=$13, legacy_dims=$14, packaging_type=$15,
	units_ordered=$16, units_per_carton=$17, quantity=$18, unit_cost=$19, total_cost=$20,
	currency=$21, status=$22, quantity_received=$23, line_notes=$24, updated_at=$25
WHERE id=$1`,
		l.ID,
		l.SKUCode, l.Description, l.LotRef, l.PINumber, l.CommodityCode,
		l.CountryOfOrigin, l.Material, l.NetWeightKg, l.CartonWeightKg,
		l.Side1Cm, l.Side2Cm, l.Side3Cm, l.LegacyDims, l.PackagingType,
		l.UnitsOrdered, l.UnitsPerCarton, l.Quantity, l.UnitCost, l.TotalCost,
		l.Currency, string(l.Status), l.QuantityReceived, l.LineNotes, l.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "order line", ID: l.ID}
	}
	return nil
}

func (r *txRepository) DeleteLine(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE id=$1`, id)
	return err
}

// UpsertDocument inserts or replaces the (order, stage, type) slot. The order
// row is already locked, so the lookup cannot race a concurrent upload.
func (r *txRepository) UpsertDocument(ctx context.Context, d *Document) (bool, error) {
	var existingID int64
	err := r.tx.QueryRow(ctx,
		`SELECT id FROM purchase_order_documents WHERE order_id=$1 AND stage=$2 AND document_type=$3`,
		d.OrderID, string(d.Stage), d.DocumentType).Scan(&existingID)
	switch {
	case err == nil:
		d.ID = existingID
		_, err = r.tx.Exec(ctx, `
UPDATE purchase_order_documents SET
	file_name=$2, content_type=$3, size_bytes=$4, storage_key=$5, uploaded_by=$6, uploaded_at=$7
WHERE id=$1`,
			d.ID, d.FileName, d.ContentType, d.SizeBytes, d.StorageKey, d.UploadedBy, d.UploadedAt)
		return true, err
	case errors.Is(err, pgx.ErrNoRows):
		err = r.tx.QueryRow(ctx, `
INSERT INTO purchase_order_documents (
	order_id, stage, document_type, file_name, content_type, size_bytes, storage_key, uploaded_by, uploaded_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id`,
			d.OrderID, string(d.Stage), d.DocumentType, d.FileName, d.ContentType,
			d.SizeBytes, d.StorageKey, d.UploadedBy, d.UploadedAt).Scan(&d.ID)
		return false, err
	default:
		return false, err
	}
}

func (r *txRepository) AppendAudit(ctx context.Context, e audit.Entry) error {
	return audit.InsertEntry(ctx, r.tx, e)
}

const orderColumns = `id, order_number, po_number, status, supplier_id, split_group_id, split_parent_id,
cargo_ready_date, incoterms, payment_terms, notes, is_legacy, version, posted_at,
rejection, manufacturing, ocean, warehouse, shipped, generated,
created_by, created_at, updated_at`

func fetchOrder(ctx context.Context, q querier, id int64, forUpdate bool) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var o Order
	if err := scanOrder(q.QueryRow(ctx, query, id), &o, nil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &shared.NotFoundError{Entity: "purchase order", ID: id}
		}
		return nil, err
	}
	if err := loadLines(ctx, q, &o); err != nil {
		return nil, err
	}
	if err := loadDocuments(ctx, q, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// scanOrder reads one header row. total is non-nil for list queries carrying
// a COUNT(*) OVER () column.
func scanOrder(row pgx.Row, o *Order, total *int) error {
	var status string
	dest := []any{
		&o.ID, &o.OrderNumber, &o.PONumber, &status, &o.SupplierID, &o.SplitGroupID, &o.SplitParentID,
		&o.CargoReadyDate, &o.Incoterms, &o.PaymentTerms, &o.Notes, &o.IsLegacy, &o.Version, &o.PostedAt,
		&o.Rejection, &o.Manufacturing, &o.Ocean, &o.Warehouse, &o.Shipped, &o.Generated,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	}
	if total != nil {
		dest = append(dest, total)
	}
	if err := row.Scan(dest...); err != nil {
		return err
	}
	o.Status = Status(status)
	return nil
}

func loadLines(ctx context.Context, q querier, o *Order) error {
	rows, err := q.Query(ctx, `
SELECT id, order_id, sku_code, description, lot_ref, pi_number, commodity_code, country_of_origin,
	material, net_weight_kg, carton_weight_kg, side1_cm, side2_cm, side3_cm, legacy_dims,
	packaging_type, units_ordered, units_per_carton, quantity, unit_cost, total_cost,
	currency, status, quantity_received, line_notes, created_at, updated_at
FROM purchase_order_lines WHERE order_id=$1 ORDER BY id ASC`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l      Line
			status string
		)
		if err := rows.Scan(
			&l.ID, &l.OrderID, &l.SKUCode, &l.Description, &l.LotRef, &l.PINumber, &l.CommodityCode, &l.CountryOfOrigin,
			&l.Material, &l.NetWeightKg, &l.CartonWeightKg, &l.Side1Cm, &l.Side2Cm, &l.Side3Cm, &l.LegacyDims,
			&l.PackagingType, &l.UnitsOrdered, &l.UnitsPerCarton, &l.Quantity, &l.UnitCost, &l.TotalCost,
			&l.Currency, &status, &l.QuantityReceived, &l.LineNotes, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return err
		}
		l.Status = LineStatus(status)
		o.Lines = append(o.Lines, l)
	}
	return rows.Err()
}

func loadDocuments(ctx context.Context, q querier, o *Order) error {
	rows, err := q.Query(ctx, `
SELECT id, order_id, stage, document_type, file_name, content_type, size_bytes, storage_key, uploaded_by, uploaded_at
FROM purchase_order_documents WHERE order_id=$1 ORDER BY id ASC`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			d     Document
			stage string
		)
		if err := rows.Scan(&d.ID, &d.OrderID, &stage, &d.DocumentType, &d.FileName, &d.ContentType,
			&d.SizeBytes, &d.StorageKey, &d.UploadedBy, &d.UploadedAt); err != nil {
			return err
		}
		d.Stage = Status(stage)
		o.Documents = append(o.Documents, d)
	}
	return rows.Err()
}

func pageWindow(page, perPage int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return perPage, (page - 1) * perPage
}
