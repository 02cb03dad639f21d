package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SplitRequest allocates, per line, how many cartons leave on the current
// shipment. Residual cartons stay behind on a newly created sibling order.
type SplitRequest struct {
	Lines []SplitLine `json:"lines"`
}

// SplitLine is one line's allocation.
type SplitLine struct {
	LineID          int64 `json:"lineId"`
	ShipNowQuantity int   `json:"shipNowQuantity"`
}

// splitViolations validates an allocation against the order's active lines.
// Every active line needs exactly one entry, every quantity must stay within
// [0, line quantity], and at least one line must actually ship.
func splitViolations(o *Order, req SplitRequest) map[string]string {
	v := map[string]string{}
	covered := map[int64]bool{}
	anyShipping := false
	for i, sl := range req.Lines {
		line := o.LineByID(sl.LineID)
		if line == nil || !line.Active() {
			v[splitField(i, "lineId")] = "unknown or cancelled line"
			continue
		}
		if covered[sl.LineID] {
			v[splitField(i, "lineId")] = "duplicate allocation for line"
			continue
		}
		covered[sl.LineID] = true
		if sl.ShipNowQuantity < 0 || sl.ShipNowQuantity > line.Quantity {
			v[splitField(i, "shipNowQuantity")] = fmt.Sprintf("must be between 0 and %d", line.Quantity)
			continue
		}
		if sl.ShipNowQuantity > 0 {
			anyShipping = true
		}
	}
	for i := range o.Lines {
		l := &o.Lines[i]
		if l.Active() && !covered[l.ID] {
			v["split.lines"] = "every active line requires an allocation"
			break
		}
	}
	if _, incomplete := v["split.lines"]; !incomplete && !anyShipping {
		v["split.lines"] = "at least one line must ship now"
	}
	return v
}

// applySplit rewrites o's lines to the ship-now allocation and returns the
// residual sibling order, or nil when every line ships in full. The sibling
// stays in MANUFACTURING, shares the split group, and inherits the issued
// and manufacturing stage documents so it can advance on its own later.
//
// Carton conservation holds per line: ship-now quantity plus the residual
// line's quantity equals the quantity before the split. Units and total cost
// are conserved the same way.
func applySplit(o *Order, req SplitRequest, now time.Time) (sibling *Order, removedLineIDs []int64) {
	if o.SplitGroupID == nil {
		group := uuid.New()
		o.SplitGroupID = &group
	}
	parentID := o.ID
	sibling = &Order{
		PONumber:       o.PONumber,
		Status:         StatusManufacturing,
		SupplierID:     o.SupplierID,
		SplitGroupID:   o.SplitGroupID,
		SplitParentID:  &parentID,
		CargoReadyDate: o.CargoReadyDate,
		Incoterms:      o.Incoterms,
		PaymentTerms:   o.PaymentTerms,
		Notes:          o.Notes,
		IsLegacy:       o.IsLegacy,
		CreatedBy:      o.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if o.Manufacturing != nil {
		manufacturing := *o.Manufacturing
		sibling.Manufacturing = &manufacturing
	}

	allocations := map[int64]int{}
	for _, sl := range req.Lines {
		allocations[sl.LineID] = sl.ShipNowQuantity
	}

	kept := o.Lines[:0]
	for i := range o.Lines {
		line := o.Lines[i]
		if !line.Active() {
			kept = append(kept, line)
			continue
		}
		shipNow := allocations[line.ID]
		residualCartons := line.Quantity - shipNow
		switch {
		case residualCartons == 0:
			kept = append(kept, line)
		case shipNow == 0:
			moved := line
			moved.ID = 0
			moved.OrderID = 0
			moved.UpdatedAt = now
			sibling.Lines = append(sibling.Lines, moved)
			removedLineIDs = append(removedLineIDs, line.ID)
		default:
			residualUnits := residualCartons * line.UnitsPerCarton
			residualCost := prorateCost(line.TotalCost, residualUnits, line.UnitsOrdered)

			residual := line
			residual.ID = 0
			residual.OrderID = 0
			residual.UnitsOrdered = residualUnits
			residual.RecalcQuantity()
			residual.TotalCost = residualCost
			residual.UpdatedAt = now
			sibling.Lines = append(sibling.Lines, residual)

			line.UnitsOrdered -= residualUnits
			line.RecalcQuantity()
			line.TotalCost = line.TotalCost.Sub(residualCost)
			line.UpdatedAt = now
			kept = append(kept, line)
		}
	}
	o.Lines = kept

	if len(sibling.Lines) == 0 {
		return nil, nil
	}
	for _, d := range o.Documents {
		if d.Stage == StatusIssued || d.Stage == StatusManufacturing {
			doc := d
			doc.ID = 0
			doc.OrderID = 0
			sibling.Documents = append(sibling.Documents, doc)
		}
	}
	return sibling, removedLineIDs
}

// prorateCost splits a line's total cost by unit share, rounding the residual
// half so the two parts always sum back to the original.
func prorateCost(total decimal.Decimal, residualUnits, totalUnits int) decimal.Decimal {
	if totalUnits <= 0 {
		return decimal.Zero
	}
	ratio := decimal.NewFromInt(int64(residualUnits)).Div(decimal.NewFromInt(int64(totalUnits)))
	return total.Mul(ratio).Round(2)
}

func splitField(idx int, name string) string {
	return fmt.Sprintf("split.lines[%d].%s", idx, name)
}
