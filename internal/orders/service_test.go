package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tradewind-ops/tradewind/internal/audit"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

type memoryOrderRepo struct {
	orders map[int64]Order
	lines  map[int64]Line
	docs   map[int64]Document
	audits []audit.Entry
	nextID int64
	seq    int64
}

type memoryOrderTx struct {
	repo *memoryOrderRepo
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{
		orders: make(map[int64]Order),
		lines:  make(map[int64]Line),
		docs:   make(map[int64]Document),
	}
}

func (r *memoryOrderRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryOrderTx{repo: r})
}

func (r *memoryOrderRepo) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return r.assemble(id)
}

func (r *memoryOrderRepo) ListOrders(ctx context.Context, f ListFilters) ([]Order, int, error) {
	ids := make([]int64, 0, len(r.orders))
	for id, o := range r.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.SupplierID > 0 && o.SupplierID != f.SupplierID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.assemble(id)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	return out, len(out), nil
}

// assemble rebuilds the aggregate from the header, line and document tables,
// the way the SQL repository joins them back together.
func (r *memoryOrderRepo) assemble(id int64) (*Order, error) {
	header, ok := r.orders[id]
	if !ok {
		return nil, &shared.NotFoundError{Entity: "purchase order", ID: id}
	}
	o := header
	lineIDs := make([]int64, 0, len(r.lines))
	for lid, l := range r.lines {
		if l.OrderID == id {
			lineIDs = append(lineIDs, lid)
		}
	}
	sort.Slice(lineIDs, func(i, j int) bool { return lineIDs[i] < lineIDs[j] })
	for _, lid := range lineIDs {
		o.Lines = append(o.Lines, r.lines[lid])
	}
	docIDs := make([]int64, 0, len(r.docs))
	for did, d := range r.docs {
		if d.OrderID == id {
			docIDs = append(docIDs, did)
		}
	}
	sort.Slice(docIDs, func(i, j int) bool { return docIDs[i] < docIDs[j] })
	for _, did := range docIDs {
		o.Documents = append(o.Documents, r.docs[did])
	}
	return &o, nil
}

func (r *memoryOrderRepo) storeHeader(o *Order) {
	header := *o
	header.Lines = nil
	header.Documents = nil
	r.orders[o.ID] = header
}

func (tx *memoryOrderTx) LoadOrderForUpdate(ctx context.Context, id int64) (*Order, error) {
	return tx.repo.assemble(id)
}

func (tx *memoryOrderTx) NextOrderNumber(ctx context.Context) (string, error) {
	tx.repo.seq++
	return fmt.Sprintf("TW-PO-%06d", tx.repo.seq), nil
}

func (tx *memoryOrderTx) InsertOrder(ctx context.Context, o *Order) error {
	tx.repo.nextID++
	o.ID = tx.repo.nextID
	tx.repo.storeHeader(o)
	return nil
}

func (tx *memoryOrderTx) UpdateOrder(ctx context.Context, o *Order) error {
	if _, ok := tx.repo.orders[o.ID]; !ok {
		return &shared.NotFoundError{Entity: "purchase order", ID: o.ID}
	}
	tx.repo.storeHeader(o)
	return nil
}

func (tx *memoryOrderTx) InsertLine(ctx context.Context, l *Line) error {
	tx.repo.nextID++
	l.ID = tx.repo.nextID
	tx.repo.lines[l.ID] = *l
	return nil
}

func (tx *memoryOrderTx) UpdateLine(ctx context.Context, l *Line) error {
	tx.repo.lines[l.ID] = *l
	return nil
}

func (tx *memoryOrderTx) DeleteLine(ctx context.Context, id int64) error {
	delete(tx.repo.lines, id)
	return nil
}

func (tx *memoryOrderTx) UpsertDocument(ctx context.Context, d *Document) (bool, error) {
	for did, existing := range tx.repo.docs {
		if existing.OrderID == d.OrderID && existing.Stage == d.Stage && existing.DocumentType == d.DocumentType {
			d.ID = did
			tx.repo.docs[did] = *d
			return true, nil
		}
	}
	tx.repo.nextID++
	d.ID = tx.repo.nextID
	tx.repo.docs[d.ID] = *d
	return false, nil
}

func (tx *memoryOrderTx) AppendAudit(ctx context.Context, e audit.Entry) error {
	tx.repo.audits = append(tx.repo.audits, e)
	return nil
}

func (r *memoryOrderRepo) auditActions() []string {
	out := make([]string, 0, len(r.audits))
	for _, e := range r.audits {
		out = append(out, e.Action)
	}
	return out
}

type stubCatalog struct {
	missingSuppliers  map[int64]bool
	missingSKUs       map[string]bool
	missingWarehouses map[string]bool
}

func (c *stubCatalog) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return !c.missingSuppliers[id], nil
}

func (c *stubCatalog) WarehouseExists(ctx context.Context, code string) (bool, error) {
	return !c.missingWarehouses[code], nil
}

func (c *stubCatalog) SKUExists(ctx context.Context, code string) (bool, error) {
	return !c.missingSKUs[code], nil
}

type stubSlots struct {
	requests []UploadSlotRequest
	err      error
}

func (s *stubSlots) IssueSlot(ctx context.Context, req UploadSlotRequest) (*UploadSlot, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.requests = append(s.requests, req)
	return &UploadSlot{
		StorageKey: fmt.Sprintf("orders/%d/%s/%s", req.OrderID, req.Stage, req.FileName),
		UploadURL:  "http://docstore.local/upload",
		ExpiresAt:  time.Now().Add(15 * time.Minute),
	}, nil
}

type renderRequest struct {
	OrderID     int64
	Kind        OutputKind
	RequestedBy string
}

type stubQueue struct {
	renders []renderRequest
	err     error
}

func (q *stubQueue) EnqueueRender(ctx context.Context, orderID int64, kind OutputKind, requestedBy string) error {
	if q.err != nil {
		return q.err
	}
	q.renders = append(q.renders, renderRequest{OrderID: orderID, Kind: kind, RequestedBy: requestedBy})
	return nil
}

func newTestService(repo *memoryOrderRepo) (*Service, *stubCatalog, *stubQueue) {
	catalog := &stubCatalog{}
	queue := &stubQueue{}
	svc := NewService(repo, catalog, &stubSlots{}, queue, nil)
	return svc, catalog, queue
}

func completeDraft() CreateOrderInput {
	cargoReady := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	return CreateOrderInput{
		SupplierID:     7,
		CargoReadyDate: &cargoReady,
		Incoterms:      "FOB Ningbo",
		PaymentTerms:   "30% deposit, 70% against BL",
		Lines: []LineInput{{
			SKUCode:         "TW-TOTE-CANVAS",
			Description:     "Canvas tote bag",
			PINumber:        "PI-2025-18",
			CommodityCode:   "4202.92",
			CountryOfOrigin: "CN",
			NetWeightKg:     0.32,
			CartonWeightKg:  1.1,
			Side1Cm:         60,
			Side2Cm:         40,
			Side3Cm:         35,
			UnitsOrdered:    480,
			UnitsPerCarton:  24,
			UnitCost:        decimal.RequireFromString("3.15"),
			Currency:        "USD",
		}},
	}
}

func registerStageDocs(t *testing.T, svc *Service, ctx context.Context, orderID int64, stage Status, types []string) {
	t.Helper()
	for _, docType := range types {
		_, err := svc.RegisterDocument(ctx, orderID, RegisterDocumentInput{
			Stage:        stage,
			DocumentType: docType,
			FileName:     docType + ".pdf",
			ContentType:  "application/pdf",
			SizeBytes:    1024,
			StorageKey:   "objects/" + docType,
		})
		require.NoError(t, err)
	}
}

func TestOrderLifecycleToShipped(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _, _ := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	o, err := svc.Create(ctx, completeDraft())
	require.NoError(t, err)
	require.Equal(t, StatusRFQ, o.Status)
	require.Equal(t, "TW-PO-000001", o.OrderNumber)
	require.Equal(t, "ops:ana", o.CreatedBy)
	require.Len(t, o.Lines, 1)
	require.Equal(t, 20, o.Lines[0].Quantity)
	require.Equal(t, "1512", o.Lines[0].TotalCost.String())

	result, err := svc.Transition(ctx, o.ID, TransitionInput{TargetStatus: StatusIssued})
	require.NoError(t, err)
	require.Equal(t, StatusIssued, result.Order.Status)

	registerStageDocs(t, svc, ctx, o.ID, StatusIssued, []string{"pi-confirmation-PI-2025-18"})
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	result, err = svc.Transition(ctx, o.ID, TransitionInput{
		TargetStatus:  StatusManufacturing,
		Manufacturing: &ManufacturingData{StartDate: &start, FactoryRef: "FAC-12"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusManufacturing, result.Order.Status)
	require.Equal(t, "FAC-12", result.Order.Manufacturing.FactoryRef)

	registerStageDocs(t, svc, ctx, o.ID, StatusManufacturing, []string{"artwork-tw-tote-canvas", "inspection-report"})
	result, err = svc.Transition(ctx, o.ID, TransitionInput{
		TargetStatus: StatusOcean,
		Ocean: &OceanData{
			HouseBillOfLading:   "HBL-4471",
			VesselName:          "EVER GIVEN",
			PortOfLoading:       "CNNGB",
			PortOfDischarge:     "USLAX",
			CommercialInvoiceNo: "CI-2025-88",
			PackingListRef:      "PL-2025-88",
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusOcean, result.Order.Status)

	_, err = svc.AddContainer(ctx, o.ID, ContainerInput{ContainerNo: "MSKU1234567", ContainerType: "40HC", CartonCount: 20})
	require.NoError(t, err)
	_, err = svc.SetFreight(ctx, o.ID, FreightInput{Amount: decimal.RequireFromString("2400.00"), Currency: "USD"})
	require.NoError(t, err)

	registerStageDocs(t, svc, ctx, o.ID, StatusOcean, []string{"commercial-invoice", "bill-of-lading", "packing-list"})
	result, err = svc.Transition(ctx, o.ID, TransitionInput{TargetStatus: StatusWarehouse})
	require.NoError(t, err)
	require.Equal(t, StatusWarehouse, result.Order.Status)

	loaded, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	cleared := time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC)
	received := time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)
	receivedOrder, err := svc.Receive(ctx, o.ID, ReceiveInput{
		WarehouseCode:      "LAX-1",
		ReceiveType:        "FULL",
		CustomsEntryNo:     "ENTRY-99120",
		CustomsClearedDate: &cleared,
		ReceivedDate:       &received,
		DutyAmount:         decimal.RequireFromString("312.40"),
		DutyCurrency:       "USD",
		Receipts:           []LineReceipt{{LineID: loaded.Lines[0].ID, QuantityReceived: 20}},
	})
	require.NoError(t, err)
	require.NotNil(t, receivedOrder.PostedAt)
	require.Equal(t, StatusWarehouse, receivedOrder.Status)
	require.Equal(t, LineStatusPosted, receivedOrder.Lines[0].Status)
	require.True(t, receivedOrder.ReadOnly())

	registerStageDocs(t, svc, ctx, o.ID, StatusWarehouse, []string{"goods-received-note", "customs-clearance"})
	shippedDate := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	shipped, err := svc.Ship(ctx, o.ID, ShipInput{
		ShippedDate: &shippedDate,
		Carrier:     "UPS Freight",
		TrackingRef: "1Z999AA10123456784",
	})
	require.NoError(t, err)
	require.Equal(t, StatusShipped, shipped.Status)
	require.True(t, shipped.Status.Terminal())

	// one entry per mutating call, in call order
	require.Equal(t, []string{
		audit.ActionCreate,
		audit.ActionStatusTransition,
		audit.ActionDocumentUpload,
		audit.ActionStatusTransition,
		audit.ActionDocumentUpload,
		audit.ActionDocumentUpload,
		audit.ActionStatusTransition,
		audit.ActionContainerAdd,
		audit.ActionCostUpsert,
		audit.ActionDocumentUpload,
		audit.ActionDocumentUpload,
		audit.ActionDocumentUpload,
		audit.ActionStatusTransition,
		audit.ActionReceive,
		audit.ActionDocumentUpload,
		audit.ActionDocumentUpload,
		audit.ActionShip,
	}, repo.auditActions())
}

func TestIssueGateCollectsAllViolations(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _, _ := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	input := completeDraft()
	input.CargoReadyDate = nil
	input.Incoterms = ""
	input.Lines[0].CommodityCode = ""
	input.Lines[0].Side3Cm = 0
	o, err := svc.Create(ctx, input)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, o.ID, TransitionInput{TargetStatus: StatusIssued})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "cargoReadyDate")
	require.Contains(t, verr.Fields, "incoterms")
	require.Contains(t, verr.Fields, "lines[0].commodityCode")
	require.Contains(t, verr.Fields, "lines[0].cartonDims")

	reloaded, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRFQ, reloaded.Status)
}

func TestTransitionPatchesApplyBeforeGate(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _, _ := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	input := completeDraft()
	input.Lines[0].CommodityCode = ""
	o, err := svc.Create(ctx, input)
	require.NoError(t, err)

	code := "4202.92"
	result, err := svc.Transition(ctx, o.ID, TransitionInput{
		TargetStatus: StatusIssued,
		LinePatches:  []LinePatch{{LineID: o.Lines[0].ID, CommodityCode: &code}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusIssued, result.Order.Status)
	require.Equal(t, code, result.Order.Lines[0].CommodityCode)
}

func TestRejectRequiresReasonAndReopenClearsIt(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _, _ := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	o, err := svc.Create(ctx, completeDraft())
	require.NoError(t, err)
	_, err = svc.Transition(ctx, o.ID, TransitionInput{TargetStatus: StatusIssued})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, o.ID, TransitionInput{TargetStatus: StatusRejected})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "rejection.reason")

	result, err := svc.Transition(ctx, o.ID, TransitionInput{
		TargetStatus:    StatusRejected,
		RejectionReason: "supplier cannot hold quoted price",
	})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, result.Order.Status)
	require.NotNil(t, result.Order.Rejection)
	require.Equal(t, "ops:ana", result.Order.Rejection.RejectedBy)

	result, err = svc.Transition(ctx, o.ID, TransitionInput{TargetStatus: StatusRFQ})
	require.NoError(t, err)
	require.Equal(t, StatusRFQ, result.Order.Status)
	require.Nil(t, result.Order.Rejection)

	// re-issuing after a reopen runs the full gate again
	blank := ""
	_, err = svc.Transition(ctx, o.ID, TransitionInput{
		TargetStatus: StatusIssued,
		LinePatches:  []LinePatch{{LineID: result.Order.Lines[0].ID, CommodityCode: &blank}},
	})
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "lines[0].commodityCode")

	code := "4202.92"
	reissued, err := svc.Transition(ctx, o.ID, TransitionInput{
		TargetStatus: StatusIssued,
		LinePatches:  []LinePatch{{LineID: result.Order.Lines[0].ID, CommodityCode: &code}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusIssued, reissued.Order.Status)
}

func TestWarehouseToShippedRunsThroughReceiveAndShip(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _, _ := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	o := orderAtWarehouse(t, svc, ctx)
	_, err := svc.Transition(ctx, o.ID, TransitionInput{TargetStatus: StatusShipped})
	var serr *shared.StateError
	require.ErrorAs(t, err, &serr)

	_, err = svc.Ship(ctx, o.ID, ShipInput{TrackingRef: "1Z"})
	require.ErrorAs(t, err, &serr)
	require.Contains(t, serr.Detail, "received")
}

func TestCancelRefusedAfterReceive(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _, _ := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	o := orderAtWarehouse(t, svc, ctx)
	receiveAll(t, svc, ctx, o.ID)

	_, err := svc.Transition(ctx, o.ID, TransitionInput{TargetStatus: StatusCancelled})
	var serr *shared.StateError
	require.ErrorAs(t, err, &serr)
}

func TestVersionConflict(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _, _ := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	o, err := svc.Create(ctx, completeDraft())
	require.NoError(t, err)

	notes := "updated"
	stale := int64(99)
	_, err = svc.UpdateDetails(ctx, o.ID, UpdateDetailsInput{Notes: &notes, ExpectedVersion: &stale})
	var cerr *shared.ConflictError
	require.ErrorAs(t, err, &cerr)

	current := o.Version
	updated, err := svc.UpdateDetails(ctx, o.ID, UpdateDetailsInput{Notes: &notes, ExpectedVersion: &current})
	require.NoError(t, err)
	require.Equal(t, current+1, updated.Version)
	require.Equal(t, notes, updated.Notes)
}

func TestReadOnlyAfterReceive(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _, _ := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	o := orderAtWarehouse(t, svc, ctx)
	receiveAll(t, svc, ctx, o.ID)

	notes := "late edit"
	_, err := svc.UpdateDetails(ctx, o.ID, UpdateDetailsInput{Notes: &notes})
	var serr *shared.StateError
	require.ErrorAs(t, err, &serr)

	_, err = svc.AddLine(ctx, o.ID, completeDraft().Lines[0])
	require.ErrorAs(t, err, &serr)

	loaded, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	_, err = svc.UpdateLine(ctx, o.ID, loaded.Lines[0].ID, LinePatch{Description: &notes})
	require.ErrorAs(t, err, &serr)

	// Stage documents stay writable: receiving produces the GRN and customs
	// paper that ship later requires.
	_, err = svc.RegisterDocument(ctx, o.ID, RegisterDocumentInput{
		Stage:        StatusWarehouse,
		DocumentType: "goods-received-note",
		FileName:     "grn.pdf",
		SizeBytes:    512,
		StorageKey:   "objects/grn.pdf",
	})
	require.NoError(t, err)
}

func TestLineManagement(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, catalog, _ := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	o, err := svc.Create(ctx, completeDraft())
	require.NoError(t, err)

	catalog.missingSKUs = map[string]bool{"TW-GHOST": true}
	ghost := completeDraft().Lines[0]
	ghost.SKUCode = "TW-GHOST"
	_, err = svc.AddLine(ctx, o.ID, ghost)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "lines[0].skuCode")

	second := completeDraft().Lines[0]
	second.SKUCode = "TW-POUCH-S"
	second.UnitsOrdered = 481
	updated, err := svc.AddLine(ctx, o.ID, second)
	require.NoError(t, err)
	require.Len(t, updated.Lines, 2)
	require.Equal(t, 21, updated.Lines[1].Quantity)

	units := 960
	updated, err = svc.UpdateLine(ctx, o.ID, updated.Lines[1].ID, LinePatch{UnitsOrdered: &units})
	require.NoError(t, err)
	require.Equal(t, 40, updated.Lines[1].Quantity)

	posted := LineStatusPosted
	_, err = svc.UpdateLine(ctx, o.ID, updated.Lines[1].ID, LinePatch{Status: &posted})
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "status")

	updated, err = svc.DeleteLine(ctx, o.ID, updated.Lines[1].ID)
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
}

func TestReceiveValidation(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _, _ := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	o := orderAtWarehouse(t, svc, ctx)
	loaded, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	lineID := loaded.Lines[0].ID
	cleared := time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC)
	received := time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)

	// Missing coverage.
	_, err = svc.Receive(ctx, o.ID, ReceiveInput{
		WarehouseCode:      "LAX-1",
		ReceiveType:        "FULL",
		CustomsEntryNo:     "ENTRY-1",
		CustomsClearedDate: &cleared,
		ReceivedDate:       &received,
		DutyCurrency:       "USD",
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "receipts")

	// Short receipt without discrepancy notes.
	_, err = svc.Receive(ctx, o.ID, ReceiveInput{
		WarehouseCode:      "LAX-1",
		ReceiveType:        "FULL",
		CustomsEntryNo:     "ENTRY-1",
		CustomsClearedDate: &cleared,
		ReceivedDate:       &received,
		DutyCurrency:       "USD",
		Receipts:           []LineReceipt{{LineID: lineID, QuantityReceived: 18}},
	})
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "discrepancyNotes")

	// Short receipt with notes posts and keeps the delta visible.
	updated, err := svc.Receive(ctx, o.ID, ReceiveInput{
		WarehouseCode:      "LAX-1",
		ReceiveType:        "FULL",
		CustomsEntryNo:     "ENTRY-1",
		CustomsClearedDate: &cleared,
		ReceivedDate:       &received,
		DutyCurrency:       "USD",
		DiscrepancyNotes:   "two cartons water damaged, refused at dock",
		Receipts:           []LineReceipt{{LineID: lineID, QuantityReceived: 18}},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.PostedAt)
	require.Equal(t, 18, *updated.Lines[0].QuantityReceived)
	require.Equal(t, 20, updated.Lines[0].Quantity)

	_, err = svc.Receive(ctx, o.ID, ReceiveInput{
		WarehouseCode:      "LAX-1",
		ReceiveType:        "FULL",
		CustomsEntryNo:     "ENTRY-1",
		CustomsClearedDate: &cleared,
		ReceivedDate:       &received,
		DutyCurrency:       "USD",
		Receipts:           []LineReceipt{{LineID: lineID, QuantityReceived: 20}},
	})
	var serr *shared.StateError
	require.ErrorAs(t, err, &serr)
	require.Contains(t, serr.Detail, "already received")
}

func TestContainerAndFreightOnlyInOcean(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _, _ := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	o, err := svc.Create(ctx, completeDraft())
	require.NoError(t, err)

	_, err = svc.AddContainer(ctx, o.ID, ContainerInput{ContainerNo: "MSKU1", ContainerType: "40HC", CartonCount: 10})
	var serr *shared.StateError
	require.ErrorAs(t, err, &serr)

	_, err = svc.SetFreight(ctx, o.ID, FreightInput{Amount: decimal.RequireFromString("100"), Currency: "USD"})
	require.ErrorAs(t, err, &serr)

	advanceToOcean(t, svc, ctx, o.ID)

	updated, err := svc.AddContainer(ctx, o.ID, ContainerInput{ContainerNo: "MSKU1234567", ContainerType: "40HC", CartonCount: 20})
	require.NoError(t, err)
	require.Len(t, updated.Ocean.Containers, 1)

	_, err = svc.AddContainer(ctx, o.ID, ContainerInput{ContainerNo: "MSKU1234567", ContainerType: "20GP", CartonCount: 5})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "containerNo")

	updated, err = svc.UpdateContainer(ctx, o.ID, "MSKU1234567", ContainerInput{ContainerNo: "MSKU7654321", ContainerType: "40HC", SealNo: "SL-1", CartonCount: 20})
	require.NoError(t, err)
	require.Equal(t, "MSKU7654321", updated.Ocean.Containers[0].ContainerNo)

	updated, err = svc.RemoveContainer(ctx, o.ID, "MSKU7654321")
	require.NoError(t, err)
	require.Empty(t, updated.Ocean.Containers)

	_, err = svc.RemoveContainer(ctx, o.ID, "MSKU7654321")
	var nferr *shared.NotFoundError
	require.ErrorAs(t, err, &nferr)
}

func TestGeneratedOutputsLifecycle(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _, queue := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	o, err := svc.Create(ctx, completeDraft())
	require.NoError(t, err)

	err = svc.RequestOutput(ctx, o.ID, OutputKind("invoice-pdf"))
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, svc.RequestOutput(ctx, o.ID, OutputRFQPdf))
	require.Len(t, queue.renders, 1)
	require.Equal(t, renderRequest{OrderID: o.ID, Kind: OutputRFQPdf, RequestedBy: "ops:ana"}, queue.renders[0])

	queue.err = errors.New("redis gone")
	err = svc.RequestOutput(ctx, o.ID, OutputRFQPdf)
	var derr *shared.ExternalDependencyError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, "job queue", derr.Collaborator)

	require.NoError(t, svc.RecordGeneratedOutput(ctx, o.ID, OutputRFQPdf, "objects/rfq.pdf", "ops:ana"))
	loaded, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	doc := loaded.Generated.Get(OutputRFQPdf)
	require.NotNil(t, doc)
	require.Equal(t, "objects/rfq.pdf", doc.StorageKey)
	require.False(t, doc.OutOfDate)

	notes := "supplier confirmed new dates"
	_, err = svc.UpdateDetails(ctx, o.ID, UpdateDetailsInput{Notes: &notes})
	require.NoError(t, err)
	loaded, err = svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, loaded.Generated.Get(OutputRFQPdf).OutOfDate)
}

func TestIssueUploadSlot(t *testing.T) {
	repo := newMemoryOrderRepo()
	slots := &stubSlots{}
	svc := NewService(repo, &stubCatalog{}, slots, &stubQueue{}, nil)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	o, err := svc.Create(ctx, completeDraft())
	require.NoError(t, err)

	_, err = svc.IssueUploadSlot(ctx, o.ID, UploadSlotRequest{Stage: "ISSUED", DocumentType: "pi-confirmation-PI-2025-18"})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "fileName")

	slot, err := svc.IssueUploadSlot(ctx, o.ID, UploadSlotRequest{
		Stage:        "ISSUED",
		DocumentType: "pi-confirmation-PI-2025-18",
		FileName:     "pi.pdf",
		ContentType:  "application/pdf",
		SizeBytes:    2048,
	})
	require.NoError(t, err)
	require.NotEmpty(t, slot.StorageKey)
	require.Len(t, slots.requests, 1)
	require.Equal(t, o.ID, slots.requests[0].OrderID)
}

func TestDocumentChecklistAndReplace(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _, _ := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), "ops:ana")

	o, err := svc.Create(ctx, completeDraft())
	require.NoError(t, err)
	_, err = svc.Transition(ctx, o.ID, TransitionInput{TargetStatus: StatusIssued})
	require.NoError(t, err)

	items, err := svc.DocumentChecklist(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "pi-confirmation-PI-2025-18", items[0].ID)
	require.False(t, items[0].Registered)

	registerStageDocs(t, svc, ctx, o.ID, StatusIssued, []string{"pi-confirmation-PI-2025-18"})
	items, err = svc.DocumentChecklist(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, items[0].Registered)

	// Re-registering the same slot replaces rather than duplicates.
	registerStageDocs(t, svc, ctx, o.ID, StatusIssued, []string{"pi-confirmation-PI-2025-18"})
	loaded, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Documents, 1)
	require.Contains(t, repo.auditActions(), audit.ActionDocumentReplace)
}

// orderAtWarehouse walks a fresh order through every gate up to WAREHOUSE.
func orderAtWarehouse(t *testing.T, svc *Service, ctx context.Context) *Order {
	t.Helper()
	o, err := svc.Create(ctx, completeDraft())
	require.NoError(t, err)
	advanceToOcean(t, svc, ctx, o.ID)
	_, err = svc.SetFreight(ctx, o.ID, FreightInput{Amount: decimal.RequireFromString("2400.00"), Currency: "USD"})
	require.NoError(t, err)
	registerStageDocs(t, svc, ctx, o.ID, StatusOcean, []string{"commercial-invoice", "bill-of-lading", "packing-list"})
	result, err := svc.Transition(ctx, o.ID, TransitionInput{TargetStatus: StatusWarehouse})
	require.NoError(t, err)
	return result.Order
}

// advanceToOcean moves a fresh RFQ order to OCEAN, registering the stage
// documents each gate demands.
func advanceToOcean(t *testing.T, svc *Service, ctx context.Context, orderID int64) {
	t.Helper()
	_, err := svc.Transition(ctx, orderID, TransitionInput{TargetStatus: StatusIssued})
	require.NoError(t, err)
	registerStageDocs(t, svc, ctx, orderID, StatusIssued, []string{"pi-confirmation-PI-2025-18"})
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.Transition(ctx, orderID, TransitionInput{
		TargetStatus:  StatusManufacturing,
		Manufacturing: &ManufacturingData{StartDate: &start},
	})
	require.NoError(t, err)
	registerStageDocs(t, svc, ctx, orderID, StatusManufacturing, []string{"artwork-tw-tote-canvas", "inspection-report"})
	_, err = svc.Transition(ctx, orderID, TransitionInput{
		TargetStatus: StatusOcean,
		Ocean: &OceanData{
			HouseBillOfLading:   "HBL-4471",
			VesselName:          "EVER GIVEN",
			PortOfLoading:       "CNNGB",
			PortOfDischarge:     "USLAX",
			CommercialInvoiceNo: "CI-2025-88",
			PackingListRef:      "PL-2025-88",
		},
	})
	require.NoError(t, err)
}

// receiveAll posts a clean full receipt for every active line.
func receiveAll(t *testing.T, svc *Service, ctx context.Context, orderID int64) {
	t.Helper()
	loaded, err := svc.Get(ctx, orderID)
	require.NoError(t, err)
	receipts := make([]LineReceipt, 0, len(loaded.Lines))
	for _, l := range loaded.ActiveLines() {
		receipts = append(receipts, LineReceipt{LineID: l.ID, QuantityReceived: l.Quantity})
	}
	cleared := time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC)
	received := time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)
	_, err = svc.Receive(ctx, orderID, ReceiveInput{
		WarehouseCode:      "LAX-1",
		ReceiveType:        "FULL",
		CustomsEntryNo:     "ENTRY-99120",
		CustomsClearedDate: &cleared,
		ReceivedDate:       &received,
		DutyAmount:         decimal.Zero,
		DutyCurrency:       "USD",
		Receipts:           receipts,
	})
	require.NoError(t, err)
}
