package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradewind-ops/tradewind/internal/orders"
	"github.com/tradewind-ops/tradewind/web"
)

// OrderSheet is the template payload for the RFQ and PO documents.
type OrderSheet struct {
	OrderNumber    string
	PONumber       string
	Status         string
	SupplierName   string
	CargoReadyDate *time.Time
	Incoterms      string
	PaymentTerms   string
	Notes          string
	Lines          []SheetLine
	TotalUnits     int
	TotalCartons   int
	TotalCost      string
	Currency       string
}

// SheetLine is one row of an order sheet.
type SheetLine struct {
	No              int
	SKUCode         string
	Description     string
	CommodityCode   string
	CountryOfOrigin string
	UnitsOrdered    int
	UnitsPerCarton  int
	Cartons         int
	UnitCost        string
	TotalCost       string
	Currency        string
}

// MarksSheet is the template payload for the shipping marks document.
type MarksSheet struct {
	OrderNumber  string
	SupplierName string
	Marks        []CartonMark
	Containers   []ContainerRow
}

// CartonMark is the stencil block for one line.
type CartonMark struct {
	SKUCode         string
	LotRef          string
	Cartons         int
	UnitsPerCarton  int
	NetWeight       string
	GrossWeight     string
	Dimensions      string
	CountryOfOrigin string
	Material        string
}

// ContainerRow mirrors the container table on the marks document.
type ContainerRow struct {
	ContainerNo   string
	ContainerType string
	SealNo        string
	CartonCount   int
}

// Renderer builds the HTML for generated order documents from the embedded
// templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the report templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("January 2, 2006")
		},
		"formatDatePtr": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return ""
			}
			return t.Format("January 2, 2006")
		},
		"now": func() string {
			return time.Now().UTC().Format("January 2, 2006 at 15:04 MST")
		},
		"lower": strings.ToLower,
	}
	tpl, err := template.New("reports").Funcs(funcMap).ParseFS(web.Templates, "templates/reports/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse report templates: %w", err)
	}
	return &Renderer{templates: tpl}, nil
}

// BuildHTML renders the HTML source of the requested artifact.
func (r *Renderer) BuildHTML(kind orders.OutputKind, o *orders.Order, supplierName string) (string, error) {
	if r == nil || r.templates == nil {
		return "", fmt.Errorf("renderer not initialized")
	}
	var (
		name    string
		payload any
	)
	switch kind {
	case orders.OutputRFQPdf:
		name = "reports/rfq_pdf.html"
		payload = buildOrderSheet(o, supplierName)
	case orders.OutputPOPdf:
		name = "reports/po_pdf.html"
		payload = buildOrderSheet(o, supplierName)
	case orders.OutputShippingMarks:
		name = "reports/shipping_marks_pdf.html"
		payload = buildMarksSheet(o, supplierName)
	default:
		return "", fmt.Errorf("unknown output kind %q", kind)
	}
	buf := &bytes.Buffer{}
	if err := r.templates.ExecuteTemplate(buf, name, payload); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildOrderSheet(o *orders.Order, supplierName string) OrderSheet {
	sheet := OrderSheet{
		OrderNumber:    o.OrderNumber,
		PONumber:       o.PONumber,
		Status:         string(o.Status),
		SupplierName:   supplierName,
		CargoReadyDate: o.CargoReadyDate,
		Incoterms:      o.Incoterms,
		PaymentTerms:   o.PaymentTerms,
		Notes:          o.Notes,
	}
	total := decimal.Zero
	for i, l := range o.ActiveLines() {
		sheet.Lines = append(sheet.Lines, SheetLine{
			No:              i + 1,
			SKUCode:         l.SKUCode,
			Description:     l.Description,
			CommodityCode:   l.CommodityCode,
			CountryOfOrigin: l.CountryOfOrigin,
			UnitsOrdered:    l.UnitsOrdered,
			UnitsPerCarton:  l.UnitsPerCarton,
			Cartons:         l.Quantity,
			UnitCost:        l.UnitCost.StringFixed(2),
			TotalCost:       l.TotalCost.StringFixed(2),
			Currency:        l.Currency,
		})
		sheet.TotalUnits += l.UnitsOrdered
		sheet.TotalCartons += l.Quantity
		total = total.Add(l.TotalCost)
		if sheet.Currency == "" {
			sheet.Currency = l.Currency
		}
	}
	sheet.TotalCost = total.StringFixed(2)
	return sheet
}

func buildMarksSheet(o *orders.Order, supplierName string) MarksSheet {
	sheet := MarksSheet{
		OrderNumber:  o.OrderNumber,
		SupplierName: supplierName,
	}
	for _, l := range o.ActiveLines() {
		gross := l.NetWeightKg + l.CartonWeightKg
		sheet.Marks = append(sheet.Marks, CartonMark{
			SKUCode:         l.SKUCode,
			LotRef:          l.LotRef,
			Cartons:         l.Quantity,
			UnitsPerCarton:  l.UnitsPerCarton,
			NetWeight:       formatNum(l.NetWeightKg),
			GrossWeight:     formatNum(gross),
			Dimensions:      lineDimensions(l),
			CountryOfOrigin: l.CountryOfOrigin,
			Material:        l.Material,
		})
	}
	if o.Ocean != nil {
		for _, c := range o.Ocean.Containers {
			sheet.Containers = append(sheet.Containers, ContainerRow{
				ContainerNo:   c.ContainerNo,
				ContainerType: c.ContainerType,
				SealNo:        c.SealNo,
				CartonCount:   c.CartonCount,
			})
		}
	}
	return sheet
}

func lineDimensions(l orders.Line) string {
	if l.Side1Cm > 0 && l.Side2Cm > 0 && l.Side3Cm > 0 {
		return fmt.Sprintf("%s x %s x %s cm", formatNum(l.Side1Cm), formatNum(l.Side2Cm), formatNum(l.Side3Cm))
	}
	return l.LegacyDims
}

func formatNum(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" {
		return "0"
	}
	return s
}
