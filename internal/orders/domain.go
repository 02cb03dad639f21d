// Package orders implements the purchase order lifecycle: stage-gated status
// transitions, line management, split shipments, document requirements,
// warehouse receiving and final shipment.
package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a purchase order.
type Status string

// Lifecycle states. SHIPPED and CANCELLED are terminal.
const (
	StatusRFQ           Status = "RFQ"
	StatusIssued        Status = "ISSUED"
	StatusManufacturing Status = "MANUFACTURING"
	StatusOcean         Status = "OCEAN"
	StatusWarehouse     Status = "WAREHOUSE"
	StatusShipped       Status = "SHIPPED"
	StatusRejected      Status = "REJECTED"
	StatusCancelled     Status = "CANCELLED"
)

// allowedTransitions lists the transitions the generic engine accepts.
// WAREHOUSE never appears with SHIPPED here: that edge runs through
// Receive and Ship, which carry their own rules.
var allowedTransitions = map[Status][]Status{
	StatusRFQ:           {StatusIssued, StatusCancelled},
	StatusIssued:        {StatusManufacturing, StatusRejected, StatusCancelled},
	StatusManufacturing: {StatusOcean, StatusCancelled},
	StatusOcean:         {StatusWarehouse, StatusCancelled},
	StatusWarehouse:     {StatusCancelled},
	StatusRejected:      {StatusRFQ, StatusCancelled},
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusRFQ, StatusIssued, StatusManufacturing, StatusOcean,
		StatusWarehouse, StatusShipped, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions exist from s.
func (s Status) Terminal() bool {
	return s == StatusShipped || s == StatusCancelled
}

// CanTransitionTo reports whether the generic engine accepts s -> target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// LineStatus tracks one line's own lifecycle.
type LineStatus string

const (
	LineStatusPending   LineStatus = "PENDING"
	LineStatusPosted    LineStatus = "POSTED"
	LineStatusCancelled LineStatus = "CANCELLED"
)

// RejectionInfo records why an issued order was rejected. Cleared when the
// order is reopened to RFQ.
type RejectionInfo struct {
	Reason     string    `json:"reason"`
	RejectedBy string    `json:"rejectedBy"`
	RejectedAt time.Time `json:"rejectedAt"`
}

// Container is one ocean container on the shipment.
type Container struct {
	ContainerNo   string `json:"containerNo"`
	ContainerType string `json:"containerType"`
	SealNo        string `json:"sealNo,omitempty"`
	CartonCount   int    `json:"cartonCount"`
}

// ManufacturingData is the stage record filled when production starts.
type ManufacturingData struct {
	StartDate         *time.Time `json:"startDate,omitempty"`
	EstCompletionDate *time.Time `json:"estCompletionDate,omitempty"`
	FactoryRef        string     `json:"factoryRef,omitempty"`
	Notes             string     `json:"notes,omitempty"`
}

// OceanData is the stage record for the sea leg. FreightCost is the single
// forwarding cost scalar; it is editable only while the order sits in OCEAN.
type OceanData struct {
	HouseBillOfLading   string           `json:"houseBillOfLading,omitempty"`
	VesselName          string           `json:"vesselName,omitempty"`
	PortOfLoading       string           `json:"portOfLoading,omitempty"`
	PortOfDischarge     string           `json:"portOfDischarge,omitempty"`
	CommercialInvoiceNo string           `json:"commercialInvoiceNo,omitempty"`
	PackingListRef      string           `json:"packingListRef,omitempty"`
	ETD                 *time.Time       `json:"etd,omitempty"`
	ETA                 *time.Time       `json:"eta,omitempty"`
	FreightCost         *decimal.Decimal `json:"freightCost,omitempty"`
	FreightCurrency     string           `json:"freightCurrency,omitempty"`
	Containers          []Container      `json:"containers,omitempty"`
}

// WarehouseData is the stage record written by Receive.
type WarehouseData struct {
	WarehouseCode      string          `json:"warehouseCode"`
	ReceiveType        string          `json:"receiveType"`
	CustomsEntryNo     string          `json:"customsEntryNo"`
	CustomsClearedDate *time.Time      `json:"customsClearedDate,omitempty"`
	ReceivedDate       *time.Time      `json:"receivedDate,omitempty"`
	DutyAmount         decimal.Decimal `json:"dutyAmount"`
	DutyCurrency       string          `json:"dutyCurrency"`
	DiscrepancyNotes   string          `json:"discrepancyNotes,omitempty"`
}

// ShippedData records the outbound hand-off to the end customer.
type ShippedData struct {
	ShippedDate   *time.Time `json:"shippedDate,omitempty"`
	Carrier       string     `json:"carrier,omitempty"`
	TrackingRef   string     `json:"trackingRef,omitempty"`
	DeliveredDate *time.Time `json:"deliveredDate,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

// OutputKind identifies a generated artifact.
type OutputKind string

const (
	OutputRFQPdf        OutputKind = "rfq-pdf"
	OutputPOPdf         OutputKind = "po-pdf"
	OutputShippingMarks OutputKind = "shipping-marks"
)

// Valid reports whether k is a known output kind.
func (k OutputKind) Valid() bool {
	switch k {
	case OutputRFQPdf, OutputPOPdf, OutputShippingMarks:
		return true
	}
	return false
}

// GeneratedDoc is the metadata of one rendered artifact.
type GeneratedDoc struct {
	StorageKey  string    `json:"storageKey"`
	GeneratedAt time.Time `json:"generatedAt"`
	GeneratedBy string    `json:"generatedBy"`
	OutOfDate   bool      `json:"outOfDate"`
}

// GeneratedOutputs tracks the rendered artifacts of one order.
type GeneratedOutputs struct {
	RFQPdf        *GeneratedDoc `json:"rfqPdf,omitempty"`
	POPdf         *GeneratedDoc `json:"poPdf,omitempty"`
	ShippingMarks *GeneratedDoc `json:"shippingMarks,omitempty"`
}

// MarkStale flags every existing artifact as out of date. Called after any
// mutation of order details or lines.
func (g *GeneratedOutputs) MarkStale() {
	for _, doc := range []*GeneratedDoc{g.RFQPdf, g.POPdf, g.ShippingMarks} {
		if doc != nil {
			doc.OutOfDate = true
		}
	}
}

// Get returns the slot for kind, or nil.
func (g *GeneratedOutputs) Get(kind OutputKind) *GeneratedDoc {
	switch kind {
	case OutputRFQPdf:
		return g.RFQPdf
	case OutputPOPdf:
		return g.POPdf
	case OutputShippingMarks:
		return g.ShippingMarks
	}
	return nil
}

// Set stores the slot for kind.
func (g *GeneratedOutputs) Set(kind OutputKind, doc *GeneratedDoc) {
	switch kind {
	case OutputRFQPdf:
		g.RFQPdf = doc
	case OutputPOPdf:
		g.POPdf = doc
	case OutputShippingMarks:
		g.ShippingMarks = doc
	}
}

// Order is the purchase order aggregate. Stage sub-records are non-nil only
// for stages the order has reached.
type Order struct {
	ID             int64              `json:"id"`
	OrderNumber    string             `json:"orderNumber"`
	PONumber       string             `json:"poNumber,omitempty"`
	Status         Status             `json:"status"`
	SupplierID     int64              `json:"supplierId"`
	SplitGroupID   *uuid.UUID         `json:"splitGroupId,omitempty"`
	SplitParentID  *int64             `json:"splitParentId,omitempty"`
	CargoReadyDate *time.Time         `json:"cargoReadyDate,omitempty"`
	Incoterms      string             `json:"incoterms,omitempty"`
	PaymentTerms   string             `json:"paymentTerms,omitempty"`
	Notes          string             `json:"notes,omitempty"`
	IsLegacy       bool               `json:"isLegacy"`
	Version        int64              `json:"version"`
	PostedAt       *time.Time         `json:"postedAt,omitempty"`
	Rejection      *RejectionInfo     `json:"rejection,omitempty"`
	Manufacturing  *ManufacturingData `json:"manufacturing,omitempty"`
	Ocean          *OceanData         `json:"ocean,omitempty"`
	Warehouse      *WarehouseData     `json:"warehouse,omitempty"`
	Shipped        *ShippedData       `json:"shipped,omitempty"`
	Generated      GeneratedOutputs   `json:"generated"`
	CreatedBy      string             `json:"createdBy"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`

	Lines     []Line     `json:"lines,omitempty"`
	Documents []Document `json:"documents,omitempty"`
}

// ReadOnly reports whether the order accepts no further field mutations.
// Posting (Receive) locks the order permanently, as does any terminal state.
func (o *Order) ReadOnly() bool {
	return o.PostedAt != nil || o.Status.Terminal()
}

// ActiveLines returns the lines that participate in validation, aggregates
// and document requirements. Cancelled lines never count.
func (o *Order) ActiveLines() []Line {
	out := make([]Line, 0, len(o.Lines))
	for _, l := range o.Lines {
		if l.Status != LineStatusCancelled {
			out = append(out, l)
		}
	}
	return out
}

// LineByID finds a line on the loaded aggregate.
func (o *Order) LineByID(id int64) *Line {
	for i := range o.Lines {
		if o.Lines[i].ID == id {
			return &o.Lines[i]
		}
	}
	return nil
}

// DocumentRegistered reports whether a document of the given type exists for
// the stage.
func (o *Order) DocumentRegistered(stage Status, documentType string) bool {
	for _, d := range o.Documents {
		if d.Stage == stage && d.DocumentType == documentType {
			return true
		}
	}
	return false
}

// Line is one SKU position on an order. Quantity is always derived from
// UnitsOrdered and UnitsPerCarton, never set directly.
type Line struct {
	ID               int64           `json:"id"`
	OrderID          int64           `json:"orderId"`
	SKUCode          string          `json:"skuCode"`
	Description      string          `json:"description,omitempty"`
	LotRef           string          `json:"lotRef,omitempty"`
	PINumber         string          `json:"piNumber,omitempty"`
	CommodityCode    string          `json:"commodityCode,omitempty"`
	CountryOfOrigin  string          `json:"countryOfOrigin,omitempty"`
	Material         string          `json:"material,omitempty"`
	NetWeightKg      float64         `json:"netWeightKg"`
	CartonWeightKg   float64         `json:"cartonWeightKg"`
	Side1Cm          float64         `json:"side1Cm"`
	Side2Cm          float64         `json:"side2Cm"`
	Side3Cm          float64         `json:"side3Cm"`
	LegacyDims       string          `json:"legacyDims,omitempty"`
	PackagingType    string          `json:"packagingType,omitempty"`
	UnitsOrdered     int             `json:"unitsOrdered"`
	UnitsPerCarton   int             `json:"unitsPerCarton"`
	Quantity         int             `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unitCost"`
	TotalCost        decimal.Decimal `json:"totalCost"`
	Currency         string          `json:"currency,omitempty"`
	Status           LineStatus      `json:"status"`
	QuantityReceived *int            `json:"quantityReceived,omitempty"`
	LineNotes        string          `json:"lineNotes,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Active reports whether the line participates in aggregates.
func (l *Line) Active() bool {
	return l.Status != LineStatusCancelled
}

// HasCartonDims reports whether carton geometry is captured: the full
// triplet, or a free-form legacy string on legacy orders.
func (l *Line) HasCartonDims(legacyOrder bool) bool {
	if l.Side1Cm > 0 && l.Side2Cm > 0 && l.Side3Cm > 0 {
		return true
	}
	return legacyOrder && l.LegacyDims != ""
}

// RecalcQuantity re-derives carton quantity after units fields change.
func (l *Line) RecalcQuantity() {
	l.Quantity = CartonQuantity(l.UnitsOrdered, l.UnitsPerCarton)
}

// CartonQuantity returns ceil(unitsOrdered / unitsPerCarton), 0 when either
// input is not positive.
func CartonQuantity(unitsOrdered, unitsPerCarton int) int {
	if unitsOrdered <= 0 || unitsPerCarton <= 0 {
		return 0
	}
	return (unitsOrdered + unitsPerCarton - 1) / unitsPerCarton
}

// Document is one registered stage document. At most one document exists per
// (order, stage, type); registering again replaces it.
type Document struct {
	ID           int64     `json:"id"`
	OrderID      int64     `json:"orderId"`
	Stage        Status    `json:"stage"`
	DocumentType string    `json:"documentType"`
	FileName     string    `json:"fileName"`
	ContentType  string    `json:"contentType,omitempty"`
	SizeBytes    int64     `json:"sizeBytes"`
	StorageKey   string    `json:"storageKey"`
	UploadedBy   string    `json:"uploadedBy"`
	UploadedAt   time.Time `json:"uploadedAt"`
}
