package orders

import "fmt"

// gateViolations collects every completeness rule blocking o from entering
// target. An empty map means the gate passes. Callers must have merged any
// pending stage data and line patches into o first, so the evaluation sees
// exactly what would be committed. Only edges allowedTransitions accepts
// reach this function.
func gateViolations(o *Order, target Status) map[string]string {
	v := map[string]string{}
	switch target {
	case StatusIssued:
		issueGate(o, v)
	case StatusManufacturing:
		manufacturingGate(o, v)
	case StatusOcean:
		oceanGate(o, v)
	case StatusWarehouse:
		warehouseGate(o, v)
	case StatusRejected:
		if o.Rejection == nil || o.Rejection.Reason == "" {
			v["rejection.reason"] = "rejection reason is required"
		}
	}
	return v
}

// issueGate checks commercial completeness before the RFQ becomes a binding
// order. Every active line must be fully described.
func issueGate(o *Order, v map[string]string) {
	if o.SupplierID <= 0 {
		v["supplierId"] = "supplier is required"
	}
	if o.CargoReadyDate == nil {
		v["cargoReadyDate"] = "expected cargo ready date is required"
	}
	if o.Incoterms == "" {
		v["incoterms"] = "incoterms are required"
	}
	if o.PaymentTerms == "" {
		v["paymentTerms"] = "payment terms are required"
	}
	active := 0
	for i := range o.Lines {
		l := &o.Lines[i]
		if !l.Active() {
			continue
		}
		active++
		if l.CommodityCode == "" {
			v[lineField(i, "commodityCode")] = "commodity code is required"
		}
		if l.CountryOfOrigin == "" {
			v[lineField(i, "countryOfOrigin")] = "country of origin is required"
		}
		if !l.HasCartonDims(o.IsLegacy) {
			v[lineField(i, "cartonDims")] = "carton dimensions are required"
		}
		if l.NetWeightKg <= 0 {
			v[lineField(i, "netWeightKg")] = "net weight must be greater than zero"
		}
		if !l.TotalCost.IsPositive() {
			v[lineField(i, "totalCost")] = "total cost must be greater than zero"
		}
	}
	if active == 0 {
		v["lines"] = "at least one active line is required"
	}
}

// manufacturingGate requires confirmed PI references, a production start
// date, and the issued-stage documents.
func manufacturingGate(o *Order, v map[string]string) {
	for i := range o.Lines {
		l := &o.Lines[i]
		if !l.Active() {
			continue
		}
		if SanitizePINumber(l.PINumber) == "" {
			v[lineField(i, "piNumber")] = "PI number is required"
		}
	}
	if o.Manufacturing == nil || o.Manufacturing.StartDate == nil {
		v["manufacturing.startDate"] = "production start date is required"
	}
	requireDocuments(o, StatusIssued, v)
}

// oceanGate requires the full sea-leg paper trail and the manufacturing
// documents before cargo leaves the factory.
func oceanGate(o *Order, v map[string]string) {
	fields := map[string]string{}
	if o.Ocean != nil {
		fields["houseBillOfLading"] = o.Ocean.HouseBillOfLading
		fields["vesselName"] = o.Ocean.VesselName
		fields["portOfLoading"] = o.Ocean.PortOfLoading
		fields["portOfDischarge"] = o.Ocean.PortOfDischarge
		fields["commercialInvoiceNo"] = o.Ocean.CommercialInvoiceNo
		fields["packingListRef"] = o.Ocean.PackingListRef
	}
	for _, name := range []string{"houseBillOfLading", "vesselName", "portOfLoading", "portOfDischarge", "commercialInvoiceNo", "packingListRef"} {
		if fields[name] == "" {
			v["ocean."+name] = name + " is required"
		}
	}
	requireDocuments(o, StatusManufacturing, v)
}

// warehouseGate requires the forwarding cost and the ocean documents before
// the order can clear into the warehouse.
func warehouseGate(o *Order, v map[string]string) {
	if o.Ocean == nil || o.Ocean.FreightCost == nil || !o.Ocean.FreightCost.IsPositive() {
		v["ocean.freightCost"] = "positive freight cost is required"
	}
	requireDocuments(o, StatusOcean, v)
}

// receiveViolations validates the one-shot warehouse receipt. Every field is
// required and every active line must be covered exactly once.
func receiveViolations(o *Order, input ReceiveInput) map[string]string {
	v := map[string]string{}
	if input.WarehouseCode == "" {
		v["warehouseCode"] = "warehouse is required"
	}
	if input.ReceiveType == "" {
		v["receiveType"] = "receive type is required"
	}
	if input.CustomsEntryNo == "" {
		v["customsEntryNo"] = "customs entry number is required"
	}
	if input.CustomsClearedDate == nil {
		v["customsClearedDate"] = "customs cleared date is required"
	}
	if input.ReceivedDate == nil {
		v["receivedDate"] = "received date is required"
	}
	if input.DutyCurrency == "" {
		v["dutyCurrency"] = "duty currency is required"
	}
	if input.DutyAmount.IsNegative() {
		v["dutyAmount"] = "duty amount must be zero or greater"
	}

	covered := map[int64]bool{}
	discrepancy := false
	for i, receipt := range input.Receipts {
		line := o.LineByID(receipt.LineID)
		if line == nil || !line.Active() {
			v[receiptField(i, "lineId")] = "unknown or cancelled line"
			continue
		}
		if covered[receipt.LineID] {
			v[receiptField(i, "lineId")] = "duplicate receipt for line"
			continue
		}
		covered[receipt.LineID] = true
		if receipt.QuantityReceived < 0 {
			v[receiptField(i, "quantityReceived")] = "quantity received must be zero or greater"
			continue
		}
		if receipt.QuantityReceived != line.Quantity {
			discrepancy = true
		}
	}
	for i := range o.Lines {
		l := &o.Lines[i]
		if l.Active() && !covered[l.ID] {
			v["receipts"] = "every active line requires a receipt"
			break
		}
	}
	if discrepancy && input.DiscrepancyNotes == "" {
		v["discrepancyNotes"] = "discrepancy notes are required when received quantities differ"
	}
	return v
}

// shipViolations validates the outbound hand-off. The warehouse documents
// must already be registered.
func shipViolations(o *Order, input ShipInput) map[string]string {
	v := map[string]string{}
	if input.ShippedDate == nil {
		v["shippedDate"] = "shipped date is required"
	}
	if input.TrackingRef == "" {
		v["trackingRef"] = "tracking reference is required"
	}
	requireDocuments(o, StatusWarehouse, v)
	return v
}

// requireDocuments adds a violation for every stage requirement that has no
// registered document.
func requireDocuments(o *Order, stage Status, v map[string]string) {
	for _, req := range RequiredDocuments(stage, o.Lines) {
		if !o.DocumentRegistered(stage, req.ID) {
			v["documents."+req.ID] = "required document is missing"
		}
	}
}

func lineField(idx int, name string) string {
	return fmt.Sprintf("lines[%d].%s", idx, name)
}

func receiptField(idx int, name string) string {
	return fmt.Sprintf("receipts[%d].%s", idx, name)
}
