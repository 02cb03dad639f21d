package costs

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewind-ops/tradewind/internal/audit"
	"github.com/tradewind-ops/tradewind/internal/orders"
	"github.com/tradewind-ops/tradewind/internal/platform/db"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

// LockedOrder is the slice of order state cost mutations need: enough to
// refuse read-only orders and to bump the optimistic version.
type LockedOrder struct {
	ID       int64
	Status   orders.Status
	PostedAt *time.Time
	Version  int64
}

// ReadOnly mirrors the order aggregate's rule.
func (o LockedOrder) ReadOnly() bool {
	return o.PostedAt != nil || o.Status.Terminal()
}

// RepositoryPort is the storage surface of the cost service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEntries(ctx context.Context, orderID int64) ([]Entry, error)
	GetAdjustment(ctx context.Context, orderID int64) (*Adjustment, error)
}

// TxRepository is the write surface inside one transaction.
type TxRepository interface {
	LockOrder(ctx context.Context, orderID int64) (LockedOrder, error)
	UpsertEntry(ctx context.Context, e *Entry) (replaced bool, err error)
	DeleteEntry(ctx context.Context, orderID int64, category Category, costName string) (Entry, error)
	UpsertAdjustment(ctx context.Context, a *Adjustment) (replaced bool, err error)
	DeleteAdjustment(ctx context.Context, orderID int64) (Adjustment, error)
	BumpOrderVersion(ctx context.Context, orderID, fromVersion int64, at time.Time) error
	AppendAudit(ctx context.Context, e audit.Entry) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the postgres-backed cost repository.
func NewRepository(pool *pgxpool.Pool) RepositoryPort {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) ListEntries(ctx context.Context, orderID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, order_id, category, cost_name, amount, currency, notes, created_by, created_at, updated_at
FROM purchase_order_costs WHERE order_id=$1 ORDER BY category, cost_name`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			category string
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &category, &e.CostName, &e.Amount, &e.Currency,
			&e.Notes, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Category = Category(category)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetAdjustment(ctx context.Context, orderID int64) (*Adjustment, error) {
	var a Adjustment
	err := r.pool.QueryRow(ctx, `
SELECT id, order_id, amount, currency, reason, created_by, created_at, updated_at
FROM supplier_adjustments WHERE order_id=$1`, orderID).
		Scan(&a.ID, &a.OrderID, &a.Amount, &a.Currency, &a.Reason, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockOrder(ctx context.Context, orderID int64) (LockedOrder, error) {
	var (
		o      LockedOrder
		status string
	)
	err := r.tx.QueryRow(ctx,
		`SELECT id, status, posted_at, version FROM purchase_orders WHERE id=$1 FOR UPDATE`, orderID).
		Scan(&o.ID, &status, &o.PostedAt, &o.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return LockedOrder{}, &shared.NotFoundError{Entity: "purchase order", ID: orderID}
	}
	if err != nil {
		return LockedOrder{}, err
	}
	o.Status = orders.Status(status)
	return o, nil
}

func (r *txRepository) UpsertEntry(ctx context.Context, e *Entry) (bool, error) {
	var existingID int64
	err := r.tx.QueryRow(ctx,
		`SELECT id FROM purchase_order_costs WHERE order_id=$1 AND category=$2 AND cost_name=$3`,
		e.OrderID, string(e.Category), e.CostName).Scan(&existingID)
	switch {
	case err == nil:
		e.ID = existingID
		_, err = r.tx.Exec(ctx, `
UPDATE purchase_order_costs SET amount=$2, currency=$3, notes=$4, updated_at=$5 WHERE id=$1`,
			e.ID, e.Amount, e.Currency, e.Notes, e.UpdatedAt)
		return true, err
	case errors.Is(err, pgx.ErrNoRows):
		err = r.tx.QueryRow(ctx, `
INSERT INTO purchase_order_costs (order_id, category, cost_name, amount, currency, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id`,
			e.OrderID, string(e.Category), e.CostName, e.Amount, e.Currency, e.Notes,
			e.CreatedBy, e.CreatedAt, e.UpdatedAt).Scan(&e.ID)
		return false, err
	default:
		return false, err
	}
}

func (r *txRepository) DeleteEntry(ctx context.Context, orderID int64, category Category, costName string) (Entry, error) {
	var (
		e   Entry
		cat string
	)
	err := r.tx.QueryRow(ctx, `
DELETE FROM purchase_order_costs WHERE order_id=$1 AND category=$2 AND cost_name=$3
RETURNING id, order_id, category, cost_name, amount, currency, notes, created_by, created_at, updated_at`,
		orderID, string(category), costName).
		Scan(&e.ID, &e.OrderID, &cat, &e.CostName, &e.Amount, &e.Currency, &e.Notes,
			&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, &shared.NotFoundError{Entity: "cost entry", ID: costName}
	}
	if err != nil {
		return Entry{}, err
	}
	e.Category = Category(cat)
	return e, nil
}

func (r *txRepository) UpsertAdjustment(ctx context.Context, a *Adjustment) (bool, error) {
	var existingID int64
	err := r.tx.QueryRow(ctx,
		`SELECT id FROM supplier_adjustments WHERE order_id=$1`, a.OrderID).Scan(&existingID)
	switch {
	case err == nil:
		a.ID = existingID
		_, err = r.tx.Exec(ctx, `
UPDATE supplier_adjustments SET amount=$2, currency=$3, reason=$4, updated_at=$5 WHERE id=$1`,
			a.ID, a.Amount, a.Currency, a.Reason, a.UpdatedAt)
		return true, err
	case errors.Is(err, pgx.ErrNoRows):
		err = r.tx.QueryRow(ctx, `
INSERT INTO supplier_adjustments (order_id, amount, currency, reason, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id`,
			a.OrderID, a.Amount, a.Currency, a.Reason, a.CreatedBy, a.CreatedAt, a.UpdatedAt).Scan(&a.ID)
		return false, err
	default:
		return false, err
	}
}

func (r *txRepository) DeleteAdjustment(ctx context.Context, orderID int64) (Adjustment, error) {
	var a Adjustment
	err := r.tx.QueryRow(ctx, `
DELETE FROM supplier_adjustments WHERE order_id=$1
RETURNING id, order_id, amount, currency, reason, created_by, created_at, updated_at`, orderID).
		Scan(&a.ID, &a.OrderID, &a.Amount, &a.Currency, &a.Reason, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Adjustment{}, &shared.NotFoundError{Entity: "supplier adjustment", ID: orderID}
	}
	return a, err
}

// BumpOrderVersion advances the order version so cached ledgers keyed by the
// old version fall away.
func (r *txRepository) BumpOrderVersion(ctx context.Context, orderID, fromVersion int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx,
		`UPDATE purchase_orders SET version=version+1, updated_at=$3 WHERE id=$1 AND version=$2`,
		orderID, fromVersion, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return &shared.ConflictError{Detail: "order version changed, reload and retry"}
	}
	return nil
}

func (r *txRepository) AppendAudit(ctx context.Context, e audit.Entry) error {
	return audit.InsertEntry(ctx, r.tx, e)
}
