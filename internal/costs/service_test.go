package costs

import (
	"context"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tradewind-ops/tradewind/internal/audit"
	"github.com/tradewind-ops/tradewind/internal/orders"
	"github.com/tradewind-ops/tradewind/internal/platform/cache"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

type memoryCostRepo struct {
	order      LockedOrder
	entries    map[string]Entry
	adjustment *Adjustment
	audits     []audit.Entry
	nextID     int64
}

func newMemoryCostRepo(order LockedOrder) *memoryCostRepo {
	return &memoryCostRepo{order: order, entries: make(map[string]Entry)}
}

func entryKey(category Category, costName string) string {
	return string(category) + "/" + costName
}

func (r *memoryCostRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryCostRepo) ListEntries(ctx context.Context, orderID int64) ([]Entry, error) {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.entries[k])
	}
	return out, nil
}

func (r *memoryCostRepo) GetAdjustment(ctx context.Context, orderID int64) (*Adjustment, error) {
	if r.adjustment == nil {
		return nil, nil
	}
	a := *r.adjustment
	return &a, nil
}

func (r *memoryCostRepo) LockOrder(ctx context.Context, orderID int64) (LockedOrder, error) {
	if r.order.ID != orderID {
		return LockedOrder{}, &shared.NotFoundError{Entity: "purchase order", ID: orderID}
	}
	return r.order, nil
}

func (r *memoryCostRepo) UpsertEntry(ctx context.Context, e *Entry) (bool, error) {
	key := entryKey(e.Category, e.CostName)
	if existing, ok := r.entries[key]; ok {
		e.ID = existing.ID
		r.entries[key] = *e
		return true, nil
	}
	r.nextID++
	e.ID = r.nextID
	r.entries[key] = *e
	return false, nil
}

func (r *memoryCostRepo) DeleteEntry(ctx context.Context, orderID int64, category Category, costName string) (Entry, error) {
	key := entryKey(category, costName)
	existing, ok := r.entries[key]
	if !ok {
		return Entry{}, &shared.NotFoundError{Entity: "cost entry", ID: costName}
	}
	delete(r.entries, key)
	return existing, nil
}

func (r *memoryCostRepo) UpsertAdjustment(ctx context.Context, a *Adjustment) (bool, error) {
	replaced := r.adjustment != nil
	if replaced {
		a.ID = r.adjustment.ID
	} else {
		r.nextID++
		a.ID = r.nextID
	}
	stored := *a
	r.adjustment = &stored
	return replaced, nil
}

func (r *memoryCostRepo) DeleteAdjustment(ctx context.Context, orderID int64) (Adjustment, error) {
	if r.adjustment == nil {
		return Adjustment{}, &shared.NotFoundError{Entity: "supplier adjustment", ID: orderID}
	}
	removed := *r.adjustment
	r.adjustment = nil
	return removed, nil
}

func (r *memoryCostRepo) BumpOrderVersion(ctx context.Context, orderID, fromVersion int64, at time.Time) error {
	if r.order.Version != fromVersion {
		return &shared.ConflictError{Detail: "order version changed, reload and retry"}
	}
	r.order.Version++
	return nil
}

func (r *memoryCostRepo) AppendAudit(ctx context.Context, e audit.Entry) error {
	r.audits = append(r.audits, e)
	return nil
}

type stubOrderReader struct {
	order *orders.Order
}

func (s *stubOrderReader) GetOrder(ctx context.Context, id int64) (*orders.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, &shared.NotFoundError{Entity: "purchase order", ID: id}
	}
	o := *s.order
	return &o, nil
}

type stubRates struct {
	rows    []RatedCost
	calls   int
	lastReq RateRequest
	err     error
}

func (s *stubRates) Quote(ctx context.Context, req RateRequest) ([]RatedCost, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func warehouseOrder() *orders.Order {
	freight := decimal.RequireFromString("2400.00")
	return &orders.Order{
		ID:      42,
		Status:  orders.StatusWarehouse,
		Version: 7,
		Lines: []orders.Line{
			{
				ID: 1, SKUCode: "TW-TOTE-CANVAS", NetWeightKg: 0.32,
				UnitsOrdered: 480, UnitsPerCarton: 24, Quantity: 20,
				TotalCost: decimal.RequireFromString("1512.00"), Currency: "USD",
				Status: orders.LineStatusPending,
			},
			{
				ID: 2, SKUCode: "TW-POUCH-S", NetWeightKg: 0.08,
				UnitsOrdered: 240, UnitsPerCarton: 48, Quantity: 5,
				TotalCost: decimal.RequireFromString("196.80"), Currency: "USD",
				Status: orders.LineStatusPending,
			},
			{
				ID: 3, SKUCode: "TW-GHOST", UnitsOrdered: 100, UnitsPerCarton: 10, Quantity: 10,
				TotalCost: decimal.RequireFromString("999.00"), Currency: "USD",
				Status: orders.LineStatusCancelled,
			},
		},
		Ocean: &orders.OceanData{
			FreightCost:     &freight,
			FreightCurrency: "USD",
		},
		Warehouse: &orders.WarehouseData{
			WarehouseCode: "LAX-1",
			DutyAmount:    decimal.RequireFromString("312.40"),
			DutyCurrency:  "USD",
		},
	}
}

func TestLedgerComposition(t *testing.T) {
	o := warehouseOrder()
	repo := newMemoryCostRepo(LockedOrder{ID: o.ID, Status: o.Status, Version: o.Version})
	rates := &stubRates{rows: []RatedCost{
		{Category: CategoryInbound, CostName: "drayage", Amount: decimal.RequireFromString("999.00"), Currency: "USD"},
		{Category: CategoryInbound, CostName: "palletizing", Amount: decimal.RequireFromString("40.00"), Currency: "USD"},
		{Category: CategoryOutbound, CostName: "parcel-out", Amount: decimal.RequireFromString("75.00"), Currency: "USD"},
	}}
	svc := NewService(repo, &stubOrderReader{order: o}, rates, nil)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	_, err := svc.UpsertManualEntry(ctx, o.ID, EntryInput{
		Category: CategoryInbound, CostName: "drayage",
		Amount: decimal.RequireFromString("150.00"), Currency: "USD",
		Notes: "actual invoice from carrier",
	})
	require.NoError(t, err)
	_, err = svc.UpsertManualEntry(ctx, o.ID, EntryInput{
		Category: CategoryStorage, CostName: "handling",
		Amount: decimal.RequireFromString("60.00"), Currency: "USD",
	})
	require.NoError(t, err)

	credit := decimal.RequireFromString("-25.00")
	_, err = svc.UpsertAdjustment(ctx, o.ID, AdjustmentInput{
		Amount: credit, Currency: "USD", Reason: "defect credit on lot 7",
	})
	require.NoError(t, err)

	o.Version = repo.order.Version
	ledger, err := svc.Ledger(ctx, o.ID)
	require.NoError(t, err)

	require.Equal(t, o.ID, ledger.OrderID)
	require.Equal(t, o.Version, ledger.OrderVersion)
	require.Equal(t, "1708.8", ledger.ProductSubtotal.String())
	require.Equal(t, "2400", ledger.ForwardingSubtotal.String())
	require.Equal(t, "190", ledger.InboundSubtotal.String())
	require.Equal(t, "60", ledger.StorageSubtotal.String())
	require.Equal(t, "312.4", ledger.DutyAmount.String())
	require.Equal(t, "-25", ledger.SupplierAdjustmentAmount.String())
	require.Equal(t, "75", ledger.OutboundSubtotal.String())
	// Landed total excludes outbound.
	require.Equal(t, "4646.2", ledger.LandedTotal.String())

	// The manual drayage row shadows the rated one.
	var inbound *CategoryTotal
	for i := range ledger.Categories {
		if ledger.Categories[i].Category == CategoryInbound {
			inbound = &ledger.Categories[i]
		}
	}
	require.NotNil(t, inbound)
	require.Len(t, inbound.Rows, 2)
	for _, row := range inbound.Rows {
		if row.CostName == "drayage" {
			require.Equal(t, SourceManual, row.Source)
			require.Equal(t, "150", row.Amount.String())
		}
	}

	// Every category appears, in presentation order.
	require.Len(t, ledger.Categories, len(ledgerOrder))
	for i, ct := range ledger.Categories {
		require.Equal(t, ledgerOrder[i], ct.Category)
	}

	// The quote aggregates active lines only.
	require.Equal(t, "LAX-1", rates.lastReq.WarehouseCode)
	require.Equal(t, 25, rates.lastReq.Cartons)
	require.Equal(t, 720, rates.lastReq.Units)
	require.InDelta(t, 172.8, rates.lastReq.NetWeightKg, 0.001)
}

func TestLedgerSkipsQuoteBeforeWarehouse(t *testing.T) {
	o := warehouseOrder()
	o.Warehouse = nil
	o.Status = orders.StatusOcean
	repo := newMemoryCostRepo(LockedOrder{ID: o.ID, Status: o.Status, Version: o.Version})
	rates := &stubRates{rows: []RatedCost{
		{Category: CategoryOutbound, CostName: "parcel-out", Amount: decimal.RequireFromString("75.00")},
	}}
	svc := NewService(repo, &stubOrderReader{order: o}, rates, nil)

	ledger, err := svc.Ledger(context.Background(), o.ID)
	require.NoError(t, err)
	require.Zero(t, rates.calls)
	require.Equal(t, "0", ledger.OutboundSubtotal.String())
}

func TestLedgerCachesPerOrderVersion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ledgerCache := cache.NewCache(client, "tradewind-test", time.Minute)

	o := warehouseOrder()
	repo := newMemoryCostRepo(LockedOrder{ID: o.ID, Status: o.Status, Version: o.Version})
	rates := &stubRates{rows: []RatedCost{
		{Category: CategoryInbound, CostName: "palletizing", Amount: decimal.RequireFromString("40.00"), Currency: "USD"},
	}}
	reader := &stubOrderReader{order: o}
	svc := NewService(repo, reader, rates, ledgerCache)
	ctx := context.Background()

	first, err := svc.Ledger(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, 1, rates.calls)

	second, err := svc.Ledger(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, 1, rates.calls, "second read must come from cache")
	require.True(t, first.LandedTotal.Equal(second.LandedTotal))

	// A version bump addresses a fresh key; the stale entry is never read.
	o.Version++
	third, err := svc.Ledger(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, 2, rates.calls)
	require.Equal(t, o.Version, third.OrderVersion)
}

func TestManualEntryRules(t *testing.T) {
	o := warehouseOrder()
	repo := newMemoryCostRepo(LockedOrder{ID: o.ID, Status: o.Status, Version: o.Version})
	svc := NewService(repo, &stubOrderReader{order: o}, nil, nil)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	_, err := svc.UpsertManualEntry(ctx, o.ID, EntryInput{
		Category: CategoryProduct, CostName: "extra",
		Amount: decimal.RequireFromString("10.00"), Currency: "USD",
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "category")

	_, err = svc.UpsertManualEntry(ctx, o.ID, EntryInput{
		Category: CategoryInbound, CostName: "drayage",
		Amount: decimal.Zero, Currency: "USD",
	})
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "amount")

	entry, err := svc.UpsertManualEntry(ctx, o.ID, EntryInput{
		Category: CategoryInbound, CostName: "drayage",
		Amount: decimal.RequireFromString("150.00"), Currency: "USD",
	})
	require.NoError(t, err)
	require.NotZero(t, entry.ID)
	require.Equal(t, "ops:ana", entry.CreatedBy)
	versionAfterInsert := repo.order.Version
	require.Equal(t, o.Version+1, versionAfterInsert)

	// Same (category, name) replaces.
	replacement, err := svc.UpsertManualEntry(ctx, o.ID, EntryInput{
		Category: CategoryInbound, CostName: "drayage",
		Amount: decimal.RequireFromString("175.00"), Currency: "USD",
	})
	require.NoError(t, err)
	require.Equal(t, entry.ID, replacement.ID)
	entries, err := repo.ListEntries(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "175", entries[0].Amount.String())

	require.NoError(t, svc.DeleteManualEntry(ctx, o.ID, CategoryInbound, "drayage"))
	entries, err = repo.ListEntries(ctx, o.ID)
	require.NoError(t, err)
	require.Empty(t, entries)

	var nferr *shared.NotFoundError
	err = svc.DeleteManualEntry(ctx, o.ID, CategoryInbound, "drayage")
	require.ErrorAs(t, err, &nferr)

	posted := time.Now()
	repo.order.PostedAt = &posted
	_, err = svc.UpsertManualEntry(ctx, o.ID, EntryInput{
		Category: CategoryInbound, CostName: "drayage",
		Amount: decimal.RequireFromString("150.00"), Currency: "USD",
	})
	var serr *shared.StateError
	require.ErrorAs(t, err, &serr)
}

func TestAdjustmentLifecycle(t *testing.T) {
	o := warehouseOrder()
	repo := newMemoryCostRepo(LockedOrder{ID: o.ID, Status: o.Status, Version: o.Version})
	svc := NewService(repo, &stubOrderReader{order: o}, nil, nil)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	_, err := svc.UpsertAdjustment(ctx, o.ID, AdjustmentInput{Currency: "USD", Reason: "missing reason amount"})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "amount")

	first, err := svc.UpsertAdjustment(ctx, o.ID, AdjustmentInput{
		Amount: decimal.RequireFromString("-25.00"), Currency: "USD", Reason: "defect credit",
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := svc.UpsertAdjustment(ctx, o.ID, AdjustmentInput{
		Amount: decimal.RequireFromString("-40.00"), Currency: "USD", Reason: "larger credit after recount",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	require.NoError(t, svc.DeleteAdjustment(ctx, o.ID))
	adj, err := repo.GetAdjustment(ctx, o.ID)
	require.NoError(t, err)
	require.Nil(t, adj)

	actions := make([]string, 0, len(repo.audits))
	for _, e := range repo.audits {
		actions = append(actions, e.Action)
	}
	require.Contains(t, actions, audit.ActionAdjustmentUpsert)
	require.Contains(t, actions, audit.ActionVoid)
}
