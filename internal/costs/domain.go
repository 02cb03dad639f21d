// Package costs maintains the landed cost ledger of a purchase order:
// stored manual entries, the single supplier adjustment, and system rates
// quoted by the rating collaborator, merged into one read model.
package costs

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category buckets every ledger row.
type Category string

const (
	CategoryProduct            Category = "PRODUCT"
	CategoryForwarding         Category = "FORWARDING"
	CategoryInbound            Category = "INBOUND"
	CategoryStorage            Category = "STORAGE"
	CategoryDuty               Category = "DUTY"
	CategorySupplierAdjustment Category = "SUPPLIER_ADJUSTMENT"
	CategoryOutbound           Category = "OUTBOUND"
)

// ledgerOrder fixes the presentation order of categories.
var ledgerOrder = []Category{
	CategoryProduct,
	CategoryForwarding,
	CategoryInbound,
	CategoryStorage,
	CategoryDuty,
	CategorySupplierAdjustment,
	CategoryOutbound,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range ledgerOrder {
		if c == known {
			return true
		}
	}
	return false
}

// ManualAllowed reports whether users may store entries in this category.
// Product, forwarding, duty and the adjustment live on the order itself;
// outbound is always system-rated.
func (c Category) ManualAllowed() bool {
	return c == CategoryInbound || c == CategoryStorage
}

// Source tells where a ledger row came from.
type Source string

const (
	SourceOrder  Source = "ORDER"
	SourceManual Source = "MANUAL"
	SourceSystem Source = "SYSTEM"
)

// Entry is one stored manual cost row, unique per (order, category, name).
type Entry struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"orderId"`
	Category  Category        `json:"category"`
	CostName  string          `json:"costName"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Notes     string          `json:"notes,omitempty"`
	CreatedBy string          `json:"createdBy"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Adjustment is the single signed supplier adjustment of an order. Negative
// amounts are credits from the supplier.
type Adjustment struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"orderId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reason    string          `json:"reason"`
	CreatedBy string          `json:"createdBy"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// RatedCost is one system row quoted by the rating collaborator.
type RatedCost struct {
	Category Category        `json:"category"`
	CostName string          `json:"costName"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// LedgerRow is one line of the read model.
type LedgerRow struct {
	Category Category        `json:"category"`
	CostName string          `json:"costName"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	Source   Source          `json:"source"`
	Notes    string          `json:"notes,omitempty"`
}

// CategoryTotal groups the rows of one category with their subtotal.
type CategoryTotal struct {
	Category Category        `json:"category"`
	Rows     []LedgerRow     `json:"rows"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Ledger is the landed cost read model for one order version. Outbound is
// reported but excluded from the landed total: it is spent after the goods
// arrive and belongs to fulfilment, not acquisition.
type Ledger struct {
	OrderID                  int64           `json:"orderId"`
	OrderVersion             int64           `json:"orderVersion"`
	Categories               []CategoryTotal `json:"categories"`
	ProductSubtotal          decimal.Decimal `json:"productSubtotal"`
	ForwardingSubtotal       decimal.Decimal `json:"forwardingSubtotal"`
	InboundSubtotal          decimal.Decimal `json:"inboundSubtotal"`
	StorageSubtotal          decimal.Decimal `json:"storageSubtotal"`
	DutyAmount               decimal.Decimal `json:"dutyAmount"`
	SupplierAdjustmentAmount decimal.Decimal `json:"supplierAdjustmentAmount"`
	OutboundSubtotal         decimal.Decimal `json:"outboundSubtotal"`
	LandedTotal              decimal.Decimal `json:"landedTotal"`
	ComputedAt               time.Time       `json:"computedAt"`
}

func (l *Ledger) subtotal(c Category) decimal.Decimal {
	for _, ct := range l.Categories {
		if ct.Category == c {
			return ct.Subtotal
		}
	}
	return decimal.Zero
}
