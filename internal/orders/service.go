package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradewind-ops/tradewind/internal/audit"
	"github.com/tradewind-ops/tradewind/internal/observability"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (*Order, error)
	ListOrders(ctx context.Context, f ListFilters) ([]Order, int, error)
}

// TxRepository is the write surface available inside one transaction. Every
// mutating service operation loads the order with a row lock, validates
// against that snapshot, and commits its writes plus audit entries together.
type TxRepository interface {
	LoadOrderForUpdate(ctx context.Context, id int64) (*Order, error)
	NextOrderNumber(ctx context.Context) (string, error)
	InsertOrder(ctx context.Context, o *Order) error
	UpdateOrder(ctx context.Context, o *Order) error
	InsertLine(ctx context.Context, l *Line) error
	UpdateLine(ctx context.Context, l *Line) error
	DeleteLine(ctx context.Context, id int64) error
	UpsertDocument(ctx context.Context, d *Document) (replaced bool, err error)
	AppendAudit(ctx context.Context, e audit.Entry) error
}

// CatalogPort resolves reference data owned by the external catalog system.
type CatalogPort interface {
	SupplierExists(ctx context.Context, id int64) (bool, error)
	WarehouseExists(ctx context.Context, code string) (bool, error)
	SKUExists(ctx context.Context, code string) (bool, error)
}

// UploadSlotRequest asks the document store for a write location.
type UploadSlotRequest struct {
	OrderID      int64  `json:"orderId"`
	Stage        string `json:"stage"`
	DocumentType string `json:"documentType"`
	FileName     string `json:"fileName"`
	ContentType  string `json:"contentType"`
	SizeBytes    int64  `json:"sizeBytes"`
}

// UploadSlot is the document store's answer: where the client may PUT bytes.
type UploadSlot struct {
	StorageKey string    `json:"storageKey"`
	UploadURL  string    `json:"uploadUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// SlotPort is the document store collaborator.
type SlotPort interface {
	IssueSlot(ctx context.Context, req UploadSlotRequest) (*UploadSlot, error)
}

// OutputQueuer enqueues background rendering of generated artifacts.
type OutputQueuer interface {
	EnqueueRender(ctx context.Context, orderID int64, kind OutputKind, requestedBy string) error
}

// ListFilters narrows the order listing.
type ListFilters struct {
	Status       Status
	SupplierID   int64
	SplitGroupID *uuid.UUID
	Search       string
	Page         int
	PerPage      int
}

// Service orchestrates the purchase order lifecycle.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	slots   SlotPort
	outputs OutputQueuer
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs the order service.
func NewService(repo RepositoryPort, catalog CatalogPort, slots SlotPort, outputs OutputQueuer, metrics *observability.Metrics) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		slots:   slots,
		outputs: outputs,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithNow overrides the clock, used by tests for deterministic timestamps.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateOrderInput describes the creation payload. Orders always start in
// RFQ; most fields only become mandatory at the issue gate.
type CreateOrderInput struct {
	PONumber       string      `json:"poNumber"`
	SupplierID     int64       `json:"supplierId" validate:"required,gt=0"`
	CargoReadyDate *time.Time  `json:"cargoReadyDate"`
	Incoterms      string      `json:"incoterms"`
	PaymentTerms   string      `json:"paymentTerms"`
	Notes          string      `json:"notes"`
	IsLegacy       bool        `json:"isLegacy"`
	Lines          []LineInput `json:"lines" validate:"dive"`
}

// LineInput describes one new line.
type LineInput struct {
	SKUCode         string          `json:"skuCode" validate:"required"`
	Description     string          `json:"description"`
	LotRef          string          `json:"lotRef"`
	PINumber        string          `json:"piNumber"`
	CommodityCode   string          `json:"commodityCode"`
	CountryOfOrigin string          `json:"countryOfOrigin"`
	Material        string          `json:"material"`
	NetWeightKg     float64         `json:"netWeightKg"`
	CartonWeightKg  float64         `json:"cartonWeightKg"`
	Side1Cm         float64         `json:"side1Cm"`
	Side2Cm         float64         `json:"side2Cm"`
	Side3Cm         float64         `json:"side3Cm"`
	LegacyDims      string          `json:"legacyDims"`
	PackagingType   string          `json:"packagingType"`
	UnitsOrdered    int             `json:"unitsOrdered" validate:"required,gt=0"`
	UnitsPerCarton  int             `json:"unitsPerCarton" validate:"required,gt=0"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	TotalCost       decimal.Decimal `json:"totalCost"`
	Currency        string          `json:"currency"`
	LineNotes       string          `json:"lineNotes"`
}

// UpdateDetailsInput patches header fields. Nil pointers leave fields alone.
type UpdateDetailsInput struct {
	PONumber        *string    `json:"poNumber"`
	SupplierID      *int64     `json:"supplierId"`
	CargoReadyDate  *time.Time `json:"cargoReadyDate"`
	Incoterms       *string    `json:"incoterms"`
	PaymentTerms    *string    `json:"paymentTerms"`
	Notes           *string    `json:"notes"`
	ExpectedVersion *int64     `json:"expectedVersion"`
}

// LinePatch updates one line. Nil pointers leave fields alone. Status may
// only move between PENDING and CANCELLED; POSTED is set by Receive alone.
type LinePatch struct {
	LineID          int64            `json:"lineId"`
	Description     *string          `json:"description"`
	LotRef          *string          `json:"lotRef"`
	PINumber        *string          `json:"piNumber"`
	CommodityCode   *string          `json:"commodityCode"`
	CountryOfOrigin *string          `json:"countryOfOrigin"`
	Material        *string          `json:"material"`
	NetWeightKg     *float64         `json:"netWeightKg"`
	CartonWeightKg  *float64         `json:"cartonWeightKg"`
	Side1Cm         *float64         `json:"side1Cm"`
	Side2Cm         *float64         `json:"side2Cm"`
	Side3Cm         *float64         `json:"side3Cm"`
	LegacyDims      *string          `json:"legacyDims"`
	PackagingType   *string          `json:"packagingType"`
	UnitsOrdered    *int             `json:"unitsOrdered"`
	UnitsPerCarton  *int             `json:"unitsPerCarton"`
	UnitCost        *decimal.Decimal `json:"unitCost"`
	TotalCost       *decimal.Decimal `json:"totalCost"`
	Currency        *string          `json:"currency"`
	Status          *LineStatus      `json:"status"`
	LineNotes       *string          `json:"lineNotes"`
}

// Create persists a new RFQ order with its initial lines.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (*Order, error) {
	violations := map[string]string{}
	if input.SupplierID <= 0 {
		violations["supplierId"] = "supplier is required"
	} else {
		ok, err := s.catalog.SupplierExists(ctx, input.SupplierID)
		if err != nil {
			return nil, err
		}
		if !ok {
			violations["supplierId"] = "unknown or inactive supplier"
		}
	}
	lines := make([]Line, 0, len(input.Lines))
	for i, li := range input.Lines {
		line, lineViolations, err := s.buildLine(ctx, i, li)
		if err != nil {
			return nil, err
		}
		for k, msg := range lineViolations {
			violations[k] = msg
		}
		lines = append(lines, line)
	}
	if err := shared.NewValidationError(violations); err != nil {
		return nil, err
	}

	now := s.now()
	actor := shared.ActorFromContext(ctx)
	o := &Order{
		PONumber:       input.PONumber,
		Status:         StatusRFQ,
		SupplierID:     input.SupplierID,
		CargoReadyDate: input.CargoReadyDate,
		Incoterms:      input.Incoterms,
		PaymentTerms:   input.PaymentTerms,
		Notes:          input.Notes,
		IsLegacy:       input.IsLegacy,
		Version:        1,
		CreatedBy:      actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextOrderNumber(ctx)
		if err != nil {
			return err
		}
		o.OrderNumber = number
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		for i := range lines {
			lines[i].OrderID = o.ID
			lines[i].CreatedAt = now
			lines[i].UpdatedAt = now
			if err := tx.InsertLine(ctx, &lines[i]); err != nil {
				return err
			}
		}
		o.Lines = lines
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   o.ID,
			Action:     audit.ActionCreate,
			NewValue:   map[string]any{"orderNumber": o.OrderNumber, "supplierId": o.SupplierID, "status": string(o.Status)},
			ChangedBy:  actor,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Get loads the full aggregate.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns a filtered page of orders.
func (s *Service) List(ctx context.Context, f ListFilters) ([]Order, shared.Pagination, error) {
	items, total, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(f.Page, f.PerPage, total), nil
}

// UpdateDetails patches header fields on an editable order.
func (s *Service) UpdateDetails(ctx context.Context, id int64, input UpdateDetailsInput) (*Order, error) {
	actor := shared.ActorFromContext(ctx)
	var updated *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LoadOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := checkVersion(o, input.ExpectedVersion); err != nil {
			return err
		}
		if o.ReadOnly() {
			return &shared.StateError{Detail: "order is read-only"}
		}

		oldValue := map[string]any{}
		newValue := map[string]any{}
		if input.PONumber != nil && *input.PONumber != o.PONumber {
			oldValue["poNumber"], newValue["poNumber"] = o.PONumber, *input.PONumber
			o.PONumber = *input.PONumber
		}
		if input.SupplierID != nil && *input.SupplierID != o.SupplierID {
			ok, err := s.catalog.SupplierExists(ctx, *input.SupplierID)
			if err != nil {
				return err
			}
			if !ok {
				return shared.NewValidationError(map[string]string{"supplierId": "unknown or inactive supplier"})
			}
			oldValue["supplierId"], newValue["supplierId"] = o.SupplierID, *input.SupplierID
			o.SupplierID = *input.SupplierID
		}
		if input.CargoReadyDate != nil && !input.CargoReadyDate.Equal(derefTime(o.CargoReadyDate)) {
			oldValue["cargoReadyDate"], newValue["cargoReadyDate"] = o.CargoReadyDate, input.CargoReadyDate
			o.CargoReadyDate = input.CargoReadyDate
		}
		if input.Incoterms != nil && *input.Incoterms != o.Incoterms {
			oldValue["incoterms"], newValue["incoterms"] = o.Incoterms, *input.Incoterms
			o.Incoterms = *input.Incoterms
		}
		if input.PaymentTerms != nil && *input.PaymentTerms != o.PaymentTerms {
			oldValue["paymentTerms"], newValue["paymentTerms"] = o.PaymentTerms, *input.PaymentTerms
			o.PaymentTerms = *input.PaymentTerms
		}
		if input.Notes != nil && *input.Notes != o.Notes {
			oldValue["notes"], newValue["notes"] = o.Notes, *input.Notes
			o.Notes = *input.Notes
		}
		if len(newValue) == 0 {
			updated = o
			return nil
		}

		now := s.now()
		o.UpdatedAt = now
		o.Generated.MarkStale()
		o.Version++
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   o.ID,
			Action:     audit.ActionUpdateDetails,
			OldValue:   oldValue,
			NewValue:   newValue,
			ChangedBy:  actor,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AddLine appends a line to an editable order.
func (s *Service) AddLine(ctx context.Context, orderID int64, input LineInput) (*Order, error) {
	line, violations, err := s.buildLine(ctx, 0, input)
	if err != nil {
		return nil, err
	}
	if err := shared.NewValidationError(violations); err != nil {
		return nil, err
	}
	actor := shared.ActorFromContext(ctx)
	var updated *Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LoadOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.ReadOnly() {
			return &shared.StateError{Detail: "order is read-only"}
		}
		now := s.now()
		line.OrderID = o.ID
		line.CreatedAt = now
		line.UpdatedAt = now
		if err := tx.InsertLine(ctx, &line); err != nil {
			return err
		}
		o.Lines = append(o.Lines, line)
		o.UpdatedAt = now
		o.Generated.MarkStale()
		o.Version++
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   o.ID,
			Action:     audit.ActionLineAdd,
			NewValue:   map[string]any{"lineId": line.ID, "skuCode": line.SKUCode, "unitsOrdered": line.UnitsOrdered, "quantity": line.Quantity},
			ChangedBy:  actor,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateLine patches one line on an editable order.
func (s *Service) UpdateLine(ctx context.Context, orderID, lineID int64, patch LinePatch) (*Order, error) {
	actor := shared.ActorFromContext(ctx)
	var updated *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LoadOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.ReadOnly() {
			return &shared.StateError{Detail: "order is read-only"}
		}
		line := o.LineByID(lineID)
		if line == nil {
			return &shared.NotFoundError{Entity: "order line", ID: lineID}
		}
		if line.Status == LineStatusPosted {
			return &shared.StateError{Detail: "posted lines cannot change"}
		}

		patch.LineID = lineID
		oldValue, newValue, violations := applyLinePatch(line, patch)
		if err := shared.NewValidationError(violations); err != nil {
			return err
		}
		if len(newValue) == 0 {
			updated = o
			return nil
		}
		now := s.now()
		line.UpdatedAt = now
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		o.UpdatedAt = now
		o.Generated.MarkStale()
		o.Version++
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		oldValue["lineId"] = lineID
		newValue["lineId"] = lineID
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   o.ID,
			Action:     audit.ActionLineUpdate,
			OldValue:   oldValue,
			NewValue:   newValue,
			ChangedBy:  actor,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteLine removes a line from an editable order.
func (s *Service) DeleteLine(ctx context.Context, orderID, lineID int64) (*Order, error) {
	actor := shared.ActorFromContext(ctx)
	var updated *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LoadOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.ReadOnly() {
			return &shared.StateError{Detail: "order is read-only"}
		}
		line := o.LineByID(lineID)
		if line == nil {
			return &shared.NotFoundError{Entity: "order line", ID: lineID}
		}
		if line.Status == LineStatusPosted {
			return &shared.StateError{Detail: "posted lines cannot change"}
		}
		if err := tx.DeleteLine(ctx, lineID); err != nil {
			return err
		}
		removed := *line
		kept := o.Lines[:0]
		for i := range o.Lines {
			if o.Lines[i].ID != lineID {
				kept = append(kept, o.Lines[i])
			}
		}
		o.Lines = kept
		now := s.now()
		o.UpdatedAt = now
		o.Generated.MarkStale()
		o.Version++
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   o.ID,
			Action:     audit.ActionLineDelete,
			OldValue:   map[string]any{"lineId": removed.ID, "skuCode": removed.SKUCode, "unitsOrdered": removed.UnitsOrdered, "quantity": removed.Quantity},
			ChangedBy:  actor,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// buildLine converts a LineInput, deriving carton quantity and defaulting
// total cost from unit cost.
func (s *Service) buildLine(ctx context.Context, idx int, input LineInput) (Line, map[string]string, error) {
	violations := map[string]string{}
	if input.SKUCode == "" {
		violations[lineField(idx, "skuCode")] = "SKU code is required"
	} else {
		ok, err := s.catalog.SKUExists(ctx, input.SKUCode)
		if err != nil {
			return Line{}, nil, err
		}
		if !ok {
			violations[lineField(idx, "skuCode")] = "unknown or inactive SKU"
		}
	}
	if input.UnitsOrdered <= 0 {
		violations[lineField(idx, "unitsOrdered")] = "units ordered must be greater than zero"
	}
	if input.UnitsPerCarton <= 0 {
		violations[lineField(idx, "unitsPerCarton")] = "units per carton must be greater than zero"
	}
	line := Line{
		SKUCode:         input.SKUCode,
		Description:     input.Description,
		LotRef:          input.LotRef,
		PINumber:        input.PINumber,
		CommodityCode:   input.CommodityCode,
		CountryOfOrigin: input.CountryOfOrigin,
		Material:        input.Material,
		NetWeightKg:     input.NetWeightKg,
		CartonWeightKg:  input.CartonWeightKg,
		Side1Cm:         input.Side1Cm,
		Side2Cm:         input.Side2Cm,
		Side3Cm:         input.Side3Cm,
		LegacyDims:      input.LegacyDims,
		PackagingType:   input.PackagingType,
		UnitsOrdered:    input.UnitsOrdered,
		UnitsPerCarton:  input.UnitsPerCarton,
		UnitCost:        input.UnitCost,
		TotalCost:       input.TotalCost,
		Currency:        input.Currency,
		Status:          LineStatusPending,
		LineNotes:       input.LineNotes,
	}
	line.RecalcQuantity()
	if line.TotalCost.IsZero() && line.UnitCost.IsPositive() {
		line.TotalCost = line.UnitCost.Mul(decimal.NewFromInt(int64(line.UnitsOrdered)))
	}
	return line, violations, nil
}

// applyLinePatch applies non-nil fields and re-derives quantity when the
// units change. Returns the changed-field diff for the audit entry.
func applyLinePatch(line *Line, patch LinePatch) (oldValue, newValue map[string]any, violations map[string]string) {
	oldValue = map[string]any{}
	newValue = map[string]any{}
	violations = map[string]string{}

	setString := func(name string, dst *string, src *string) {
		if src != nil && *src != *dst {
			oldValue[name], newValue[name] = *dst, *src
			*dst = *src
		}
	}
	setFloat := func(name string, dst *float64, src *float64) {
		if src != nil && *src != *dst {
			oldValue[name], newValue[name] = *dst, *src
			*dst = *src
		}
	}

	setString("description", &line.Description, patch.Description)
	setString("lotRef", &line.LotRef, patch.LotRef)
	setString("piNumber", &line.PINumber, patch.PINumber)
	setString("commodityCode", &line.CommodityCode, patch.CommodityCode)
	setString("countryOfOrigin", &line.CountryOfOrigin, patch.CountryOfOrigin)
	setString("material", &line.Material, patch.Material)
	setString("legacyDims", &line.LegacyDims, patch.LegacyDims)
	setString("packagingType", &line.PackagingType, patch.PackagingType)
	setString("currency", &line.Currency, patch.Currency)
	setString("lineNotes", &line.LineNotes, patch.LineNotes)
	setFloat("netWeightKg", &line.NetWeightKg, patch.NetWeightKg)
	setFloat("cartonWeightKg", &line.CartonWeightKg, patch.CartonWeightKg)
	setFloat("side1Cm", &line.Side1Cm, patch.Side1Cm)
	setFloat("side2Cm", &line.Side2Cm, patch.Side2Cm)
	setFloat("side3Cm", &line.Side3Cm, patch.Side3Cm)

	if patch.UnitsOrdered != nil {
		if *patch.UnitsOrdered <= 0 {
			violations["unitsOrdered"] = "units ordered must be greater than zero"
		} else if *patch.UnitsOrdered != line.UnitsOrdered {
			oldValue["unitsOrdered"], newValue["unitsOrdered"] = line.UnitsOrdered, *patch.UnitsOrdered
			line.UnitsOrdered = *patch.UnitsOrdered
		}
	}
	if patch.UnitsPerCarton != nil {
		if *patch.UnitsPerCarton <= 0 {
			violations["unitsPerCarton"] = "units per carton must be greater than zero"
		} else if *patch.UnitsPerCarton != line.UnitsPerCarton {
			oldValue["unitsPerCarton"], newValue["unitsPerCarton"] = line.UnitsPerCarton, *patch.UnitsPerCarton
			line.UnitsPerCarton = *patch.UnitsPerCarton
		}
	}
	_, unitsChanged := newValue["unitsOrdered"]
	_, cartonChanged := newValue["unitsPerCarton"]
	if unitsChanged || cartonChanged {
		before := line.Quantity
		line.RecalcQuantity()
		if line.Quantity != before {
			oldValue["quantity"], newValue["quantity"] = before, line.Quantity
		}
	}
	if patch.UnitCost != nil && !patch.UnitCost.Equal(line.UnitCost) {
		oldValue["unitCost"], newValue["unitCost"] = line.UnitCost.String(), patch.UnitCost.String()
		line.UnitCost = *patch.UnitCost
	}
	if patch.TotalCost != nil && !patch.TotalCost.Equal(line.TotalCost) {
		oldValue["totalCost"], newValue["totalCost"] = line.TotalCost.String(), patch.TotalCost.String()
		line.TotalCost = *patch.TotalCost
	}
	if patch.Status != nil && *patch.Status != line.Status {
		switch *patch.Status {
		case LineStatusPending, LineStatusCancelled:
			oldValue["status"], newValue["status"] = string(line.Status), string(*patch.Status)
			line.Status = *patch.Status
		default:
			violations["status"] = "line status can only move between PENDING and CANCELLED"
		}
	}
	return oldValue, newValue, violations
}

func checkVersion(o *Order, expected *int64) error {
	if expected != nil && *expected != o.Version {
		return &shared.ConflictError{Detail: "order version changed, reload and retry"}
	}
	return nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
