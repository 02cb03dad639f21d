package costs

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/tradewind-ops/tradewind/internal/audit"
	"github.com/tradewind-ops/tradewind/internal/orders"
	"github.com/tradewind-ops/tradewind/internal/platform/cache"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

// OrderReader loads the order aggregate the ledger is computed from.
type OrderReader interface {
	GetOrder(ctx context.Context, id int64) (*orders.Order, error)
}

// RateRequest describes the shipment to the rating collaborator.
type RateRequest struct {
	OrderID       int64   `json:"orderId"`
	WarehouseCode string  `json:"warehouseCode"`
	Cartons       int     `json:"cartons"`
	Units         int     `json:"units"`
	NetWeightKg   float64 `json:"netWeightKg"`
}

// RatePort quotes system cost rows for a received shipment.
type RatePort interface {
	Quote(ctx context.Context, req RateRequest) ([]RatedCost, error)
}

// Service computes ledgers and manages the stored cost rows.
type Service struct {
	repo   RepositoryPort
	orders OrderReader
	rates  RatePort
	cache  *cache.Cache
	group  singleflight.Group
	now    func() time.Time
}

// NewService constructs the cost service. rates may be nil when no rating
// collaborator is configured; the ledger then carries stored rows only.
func NewService(repo RepositoryPort, orderReader OrderReader, rates RatePort, ledgerCache *cache.Cache) *Service {
	return &Service{
		repo:   repo,
		orders: orderReader,
		rates:  rates,
		cache:  ledgerCache,
		now:    time.Now,
	}
}

// WithNow overrides the clock, used by tests for deterministic timestamps.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// EntryInput stores or replaces one manual cost row.
type EntryInput struct {
	Category Category        `json:"category"`
	CostName string          `json:"costName"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Notes    string          `json:"notes"`
}

// AdjustmentInput stores or replaces the supplier adjustment.
type AdjustmentInput struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Reason   string          `json:"reason"`
}

// Ledger returns the landed cost read model for the order's current version.
// Results are cached per (order, version): any order mutation bumps the
// version, so stale ledgers simply stop being addressed and expire.
func (s *Service) Ledger(ctx context.Context, orderID int64) (*Ledger, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	key, err := s.cache.BuildKey(ctx, "ledger", fmt.Sprintf("%d", o.ID), fmt.Sprintf("v%d", o.Version))
	if err != nil {
		return nil, err
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var ledger Ledger
		err := s.cache.FetchJSON(ctx, key, &ledger, func(ctx context.Context) (any, error) {
			return s.compute(ctx, o)
		})
		if err != nil {
			return nil, err
		}
		return &ledger, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Ledger), nil
}

// compute assembles the ledger from the order, the stored rows and the
// rating quote. Manual rows shadow system rows with the same cost name.
func (s *Service) compute(ctx context.Context, o *orders.Order) (*Ledger, error) {
	entries, err := s.repo.ListEntries(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	adjustment, err := s.repo.GetAdjustment(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	rated, err := s.quote(ctx, o)
	if err != nil {
		return nil, err
	}

	byCategory := map[Category][]LedgerRow{}

	for _, line := range o.ActiveLines() {
		byCategory[CategoryProduct] = append(byCategory[CategoryProduct], LedgerRow{
			Category: CategoryProduct,
			CostName: line.SKUCode,
			Amount:   line.TotalCost,
			Currency: line.Currency,
			Source:   SourceOrder,
		})
	}
	if o.Ocean != nil && o.Ocean.FreightCost != nil {
		byCategory[CategoryForwarding] = append(byCategory[CategoryForwarding], LedgerRow{
			Category: CategoryForwarding,
			CostName: "freight",
			Amount:   *o.Ocean.FreightCost,
			Currency: o.Ocean.FreightCurrency,
			Source:   SourceOrder,
		})
	}
	if o.Warehouse != nil && !o.Warehouse.DutyAmount.IsZero() {
		byCategory[CategoryDuty] = append(byCategory[CategoryDuty], LedgerRow{
			Category: CategoryDuty,
			CostName: "duty",
			Amount:   o.Warehouse.DutyAmount,
			Currency: o.Warehouse.DutyCurrency,
			Source:   SourceOrder,
		})
	}
	if adjustment != nil {
		byCategory[CategorySupplierAdjustment] = append(byCategory[CategorySupplierAdjustment], LedgerRow{
			Category: CategorySupplierAdjustment,
			CostName: "supplier-adjustment",
			Amount:   adjustment.Amount,
			Currency: adjustment.Currency,
			Source:   SourceManual,
			Notes:    adjustment.Reason,
		})
	}

	manualNames := map[Category]map[string]bool{}
	for _, e := range entries {
		byCategory[e.Category] = append(byCategory[e.Category], LedgerRow{
			Category: e.Category,
			CostName: e.CostName,
			Amount:   e.Amount,
			Currency: e.Currency,
			Source:   SourceManual,
			Notes:    e.Notes,
		})
		if manualNames[e.Category] == nil {
			manualNames[e.Category] = map[string]bool{}
		}
		manualNames[e.Category][e.CostName] = true
	}
	for _, rc := range rated {
		if manualNames[rc.Category][rc.CostName] {
			continue
		}
		byCategory[rc.Category] = append(byCategory[rc.Category], LedgerRow{
			Category: rc.Category,
			CostName: rc.CostName,
			Amount:   rc.Amount,
			Currency: rc.Currency,
			Source:   SourceSystem,
		})
	}

	ledger := &Ledger{
		OrderID:      o.ID,
		OrderVersion: o.Version,
		ComputedAt:   s.now(),
	}
	for _, category := range ledgerOrder {
		rows := byCategory[category]
		subtotal := decimal.Zero
		for _, row := range rows {
			subtotal = subtotal.Add(row.Amount)
		}
		if rows == nil {
			rows = []LedgerRow{}
		}
		ledger.Categories = append(ledger.Categories, CategoryTotal{
			Category: category,
			Rows:     rows,
			Subtotal: subtotal,
		})
	}
	ledger.ProductSubtotal = ledger.subtotal(CategoryProduct)
	ledger.ForwardingSubtotal = ledger.subtotal(CategoryForwarding)
	ledger.InboundSubtotal = ledger.subtotal(CategoryInbound)
	ledger.StorageSubtotal = ledger.subtotal(CategoryStorage)
	ledger.DutyAmount = ledger.subtotal(CategoryDuty)
	ledger.SupplierAdjustmentAmount = ledger.subtotal(CategorySupplierAdjustment)
	ledger.OutboundSubtotal = ledger.subtotal(CategoryOutbound)
	ledger.LandedTotal = ledger.ProductSubtotal.
		Add(ledger.ForwardingSubtotal).
		Add(ledger.InboundSubtotal).
		Add(ledger.StorageSubtotal).
		Add(ledger.DutyAmount).
		Add(ledger.SupplierAdjustmentAmount)
	return ledger, nil
}

// quote asks the rating collaborator for system rows. Rates only make sense
// once the shipment has warehouse data; earlier stages carry none.
func (s *Service) quote(ctx context.Context, o *orders.Order) ([]RatedCost, error) {
	if s.rates == nil || o.Warehouse == nil {
		return nil, nil
	}
	req := RateRequest{OrderID: o.ID, WarehouseCode: o.Warehouse.WarehouseCode}
	for _, line := range o.ActiveLines() {
		req.Cartons += line.Quantity
		req.Units += line.UnitsOrdered
		req.NetWeightKg += line.NetWeightKg * float64(line.UnitsOrdered)
	}
	return s.rates.Quote(ctx, req)
}

// UpsertManualEntry stores a manual cost row. Only inbound and storage rows
// may be entered by hand.
func (s *Service) UpsertManualEntry(ctx context.Context, orderID int64, input EntryInput) (*Entry, error) {
	violations := map[string]string{}
	if !input.Category.ManualAllowed() {
		violations["category"] = "manual entries are limited to INBOUND and STORAGE"
	}
	if input.CostName == "" {
		violations["costName"] = "cost name is required"
	}
	if !input.Amount.IsPositive() {
		violations["amount"] = "amount must be greater than zero"
	}
	if input.Currency == "" {
		violations["currency"] = "currency is required"
	}
	if err := shared.NewValidationError(violations); err != nil {
		return nil, err
	}

	actor := shared.ActorFromContext(ctx)
	now := s.now()
	entry := &Entry{
		OrderID:   orderID,
		Category:  input.Category,
		CostName:  input.CostName,
		Amount:    input.Amount,
		Currency:  input.Currency,
		Notes:     input.Notes,
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.ReadOnly() {
			return &shared.StateError{Detail: "order is read-only"}
		}
		replaced, err := tx.UpsertEntry(ctx, entry)
		if err != nil {
			return err
		}
		if err := tx.BumpOrderVersion(ctx, orderID, o.Version, now); err != nil {
			return err
		}
		newValue := map[string]any{
			"category": string(entry.Category),
			"costName": entry.CostName,
			"amount":   entry.Amount.String(),
			"currency": entry.Currency,
		}
		oldValue := map[string]any{}
		if replaced {
			oldValue["costName"] = entry.CostName
		}
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   orderID,
			Action:     audit.ActionCostUpsert,
			OldValue:   oldValue,
			NewValue:   newValue,
			ChangedBy:  actor,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteManualEntry removes one manual cost row.
func (s *Service) DeleteManualEntry(ctx context.Context, orderID int64, category Category, costName string) error {
	if !category.ManualAllowed() {
		return shared.NewValidationError(map[string]string{"category": "manual entries are limited to INBOUND and STORAGE"})
	}
	actor := shared.ActorFromContext(ctx)
	now := s.now()
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.ReadOnly() {
			return &shared.StateError{Detail: "order is read-only"}
		}
		removed, err := tx.DeleteEntry(ctx, orderID, category, costName)
		if err != nil {
			return err
		}
		if err := tx.BumpOrderVersion(ctx, orderID, o.Version, now); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   orderID,
			Action:     audit.ActionVoid,
			OldValue: map[string]any{
				"category": string(removed.Category),
				"costName": removed.CostName,
				"amount":   removed.Amount.String(),
				"currency": removed.Currency,
			},
			ChangedBy: actor,
			CreatedAt: now,
		})
	})
}

// UpsertAdjustment stores the single signed supplier adjustment.
func (s *Service) UpsertAdjustment(ctx context.Context, orderID int64, input AdjustmentInput) (*Adjustment, error) {
	violations := map[string]string{}
	if input.Amount.IsZero() {
		violations["amount"] = "amount must not be zero"
	}
	if input.Currency == "" {
		violations["currency"] = "currency is required"
	}
	if input.Reason == "" {
		violations["reason"] = "reason is required"
	}
	if err := shared.NewValidationError(violations); err != nil {
		return nil, err
	}

	actor := shared.ActorFromContext(ctx)
	now := s.now()
	adjustment := &Adjustment{
		OrderID:   orderID,
		Amount:    input.Amount,
		Currency:  input.Currency,
		Reason:    input.Reason,
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.ReadOnly() {
			return &shared.StateError{Detail: "order is read-only"}
		}
		replaced, err := tx.UpsertAdjustment(ctx, adjustment)
		if err != nil {
			return err
		}
		if err := tx.BumpOrderVersion(ctx, orderID, o.Version, now); err != nil {
			return err
		}
		oldValue := map[string]any{}
		if replaced {
			oldValue["replaced"] = true
		}
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   orderID,
			Action:     audit.ActionAdjustmentUpsert,
			OldValue:   oldValue,
			NewValue: map[string]any{
				"amount":   adjustment.Amount.String(),
				"currency": adjustment.Currency,
				"reason":   adjustment.Reason,
			},
			ChangedBy: actor,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return adjustment, nil
}

// DeleteAdjustment removes the supplier adjustment.
func (s *Service) DeleteAdjustment(ctx context.Context, orderID int64) error {
	actor := shared.ActorFromContext(ctx)
	now := s.now()
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.ReadOnly() {
			return &shared.StateError{Detail: "order is read-only"}
		}
		removed, err := tx.DeleteAdjustment(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.BumpOrderVersion(ctx, orderID, o.Version, now); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   orderID,
			Action:     audit.ActionVoid,
			OldValue: map[string]any{
				"adjustment": removed.Amount.String(),
				"currency":   removed.Currency,
				"reason":     removed.Reason,
			},
			ChangedBy: actor,
			CreatedAt: now,
		})
	})
}
