package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradewind-ops/tradewind/internal/audit"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

// TransitionInput drives one lifecycle step. Stage payloads are merged into
// the order before the gate runs, so a single call can both complete a stage
// record and advance. LinePatches are applied the same way: the gate judges
// the order as it would be committed.
type TransitionInput struct {
	TargetStatus    Status             `json:"targetStatus"`
	ExpectedVersion *int64             `json:"expectedVersion"`
	Manufacturing   *ManufacturingData `json:"manufacturing,omitempty"`
	Ocean           *OceanData         `json:"ocean,omitempty"`
	RejectionReason string             `json:"rejectionReason,omitempty"`
	LinePatches     []LinePatch        `json:"linePatches,omitempty"`
	Split           *SplitRequest      `json:"split,omitempty"`
}

// TransitionResult carries the advanced order and, when a split occurred,
// the residual sibling created in the same transaction.
type TransitionResult struct {
	Order *Order `json:"order"`
	Split *Order `json:"split,omitempty"`
}

// LineReceipt is the received carton count for one line.
type LineReceipt struct {
	LineID           int64 `json:"lineId"`
	QuantityReceived int   `json:"quantityReceived"`
}

// ReceiveInput posts the one-shot warehouse receipt.
type ReceiveInput struct {
	WarehouseCode      string          `json:"warehouseCode"`
	ReceiveType        string          `json:"receiveType"`
	CustomsEntryNo     string          `json:"customsEntryNo"`
	CustomsClearedDate *time.Time      `json:"customsClearedDate"`
	ReceivedDate       *time.Time      `json:"receivedDate"`
	DutyAmount         decimal.Decimal `json:"dutyAmount"`
	DutyCurrency       string          `json:"dutyCurrency"`
	DiscrepancyNotes   string          `json:"discrepancyNotes"`
	Receipts           []LineReceipt   `json:"receipts"`
	ExpectedVersion    *int64          `json:"expectedVersion"`
}

// ShipInput closes the order out of the warehouse.
type ShipInput struct {
	ShippedDate     *time.Time `json:"shippedDate"`
	Carrier         string     `json:"carrier"`
	TrackingRef     string     `json:"trackingRef"`
	DeliveredDate   *time.Time `json:"deliveredDate"`
	Notes           string     `json:"notes"`
	ExpectedVersion *int64     `json:"expectedVersion"`
}

// Transition moves the order along the lifecycle. The whole step runs inside
// one transaction: line patches, stage merges, gate evaluation, the optional
// split, version bump and audit either all commit or none do.
func (s *Service) Transition(ctx context.Context, orderID int64, input TransitionInput) (*TransitionResult, error) {
	target := input.TargetStatus
	if !target.Valid() {
		return nil, shared.NewValidationError(map[string]string{"targetStatus": "unknown status"})
	}
	actor := shared.ActorFromContext(ctx)
	var (
		result TransitionResult
		from   Status
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LoadOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkVersion(o, input.ExpectedVersion); err != nil {
			return err
		}
		from = o.Status
		if from.Terminal() {
			return &shared.StateError{Detail: fmt.Sprintf("order is %s and cannot change", from)}
		}
		if from == StatusWarehouse && target == StatusShipped {
			return &shared.StateError{Detail: "shipping runs through receive and ship, not a plain transition"}
		}
		if !from.CanTransitionTo(target) {
			return &shared.StateError{Detail: fmt.Sprintf("cannot move from %s to %s", from, target)}
		}
		if target == StatusCancelled && o.PostedAt != nil {
			return &shared.StateError{Detail: "received orders cannot be cancelled"}
		}
		if input.Split != nil && target != StatusOcean {
			return &shared.StateError{Detail: "splitting is only available when moving to ocean"}
		}

		violations := map[string]string{}
		patchedIDs, patchOld, patchNew := s.applyTransitionPatches(o, input.LinePatches, violations)

		now := s.now()
		switch target {
		case StatusManufacturing:
			mergeManufacturing(o, input.Manufacturing)
		case StatusOcean:
			mergeOcean(o, input.Ocean)
		case StatusRejected:
			o.Rejection = &RejectionInfo{Reason: input.RejectionReason, RejectedBy: actor, RejectedAt: now}
		}
		if target == StatusIssued && o.SupplierID > 0 {
			ok, err := s.catalog.SupplierExists(ctx, o.SupplierID)
			if err != nil {
				return err
			}
			if !ok {
				violations["supplierId"] = "unknown or inactive supplier"
			}
		}
		for k, msg := range gateViolations(o, target) {
			violations[k] = msg
		}
		if input.Split != nil {
			for k, msg := range splitViolations(o, *input.Split) {
				violations[k] = msg
			}
		}
		if err := shared.NewValidationError(violations); err != nil {
			return err
		}

		if from == StatusRejected && target == StatusRFQ {
			o.Rejection = nil
		}
		o.Status = target
		o.UpdatedAt = now
		o.Generated.MarkStale()

		var sibling *Order
		var removed []int64
		if input.Split != nil {
			sibling, removed = applySplit(o, *input.Split, now)
		}

		o.Version++
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		for i := range o.Lines {
			if err := tx.UpdateLine(ctx, &o.Lines[i]); err != nil {
				return err
			}
		}
		for _, id := range removed {
			if err := tx.DeleteLine(ctx, id); err != nil {
				return err
			}
		}

		oldValue := map[string]any{"status": string(from)}
		newValue := map[string]any{"status": string(target)}
		for k, v := range patchOld {
			oldValue[k] = v
		}
		for k, v := range patchNew {
			newValue[k] = v
		}
		if len(patchedIDs) > 0 {
			newValue["patchedLines"] = patchedIDs
		}
		if target == StatusRejected {
			newValue["rejectionReason"] = input.RejectionReason
		}

		if sibling != nil {
			number, err := tx.NextOrderNumber(ctx)
			if err != nil {
				return err
			}
			sibling.OrderNumber = number
			sibling.Version = 1
			if err := tx.InsertOrder(ctx, sibling); err != nil {
				return err
			}
			for i := range sibling.Lines {
				sibling.Lines[i].OrderID = sibling.ID
				if err := tx.InsertLine(ctx, &sibling.Lines[i]); err != nil {
					return err
				}
			}
			for i := range sibling.Documents {
				sibling.Documents[i].OrderID = sibling.ID
				if _, err := tx.UpsertDocument(ctx, &sibling.Documents[i]); err != nil {
					return err
				}
			}
			newValue["splitOrderId"] = sibling.ID
			newValue["splitOrderNumber"] = sibling.OrderNumber
			newValue["splitGroupId"] = o.SplitGroupID.String()
			if err := tx.AppendAudit(ctx, audit.Entry{
				EntityType: audit.EntityPurchaseOrder,
				EntityID:   sibling.ID,
				Action:     audit.ActionCreate,
				NewValue: map[string]any{
					"orderNumber":   sibling.OrderNumber,
					"splitGroupId":  sibling.SplitGroupID.String(),
					"splitParentId": orderID,
					"status":        string(sibling.Status),
				},
				ChangedBy: actor,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		if err := tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   o.ID,
			Action:     audit.ActionStatusTransition,
			OldValue:   oldValue,
			NewValue:   newValue,
			ChangedBy:  actor,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		result.Order = o
		result.Split = sibling
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(from), string(target))
	return &result, nil
}

// Receive posts the warehouse receipt. It is one-shot: postedAt is set, all
// active lines become POSTED, and the order turns permanently read-only while
// staying in WAREHOUSE until Ship closes it out.
func (s *Service) Receive(ctx context.Context, orderID int64, input ReceiveInput) (*Order, error) {
	actor := shared.ActorFromContext(ctx)
	var updated *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LoadOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkVersion(o, input.ExpectedVersion); err != nil {
			return err
		}
		if o.Status != StatusWarehouse {
			return &shared.StateError{Detail: "receiving is only available in warehouse"}
		}
		if o.PostedAt != nil {
			return &shared.StateError{Detail: "order is already received"}
		}

		violations := receiveViolations(o, input)
		if input.WarehouseCode != "" {
			ok, err := s.catalog.WarehouseExists(ctx, input.WarehouseCode)
			if err != nil {
				return err
			}
			if !ok {
				violations["warehouseCode"] = "unknown or inactive warehouse"
			}
		}
		if err := shared.NewValidationError(violations); err != nil {
			return err
		}

		now := s.now()
		o.Warehouse = &WarehouseData{
			WarehouseCode:      input.WarehouseCode,
			ReceiveType:        input.ReceiveType,
			CustomsEntryNo:     input.CustomsEntryNo,
			CustomsClearedDate: input.CustomsClearedDate,
			ReceivedDate:       input.ReceivedDate,
			DutyAmount:         input.DutyAmount,
			DutyCurrency:       input.DutyCurrency,
			DiscrepancyNotes:   input.DiscrepancyNotes,
		}
		discrepancies := 0
		for _, receipt := range input.Receipts {
			line := o.LineByID(receipt.LineID)
			qty := receipt.QuantityReceived
			line.QuantityReceived = &qty
			line.Status = LineStatusPosted
			line.UpdatedAt = now
			if qty != line.Quantity {
				discrepancies++
			}
			if err := tx.UpdateLine(ctx, line); err != nil {
				return err
			}
		}
		o.PostedAt = &now
		o.UpdatedAt = now
		o.Version++
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   o.ID,
			Action:     audit.ActionReceive,
			OldValue:   map[string]any{"postedAt": nil},
			NewValue: map[string]any{
				"postedAt":      now,
				"warehouseCode": input.WarehouseCode,
				"receiveType":   input.ReceiveType,
				"discrepancies": discrepancies,
			},
			ChangedBy: actor,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Ship records the outbound hand-off and moves the received order to SHIPPED.
func (s *Service) Ship(ctx context.Context, orderID int64, input ShipInput) (*Order, error) {
	actor := shared.ActorFromContext(ctx)
	var updated *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LoadOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkVersion(o, input.ExpectedVersion); err != nil {
			return err
		}
		if o.Status != StatusWarehouse {
			return &shared.StateError{Detail: "shipping is only available in warehouse"}
		}
		if o.PostedAt == nil {
			return &shared.StateError{Detail: "order must be received before shipping"}
		}
		if err := shared.NewValidationError(shipViolations(o, input)); err != nil {
			return err
		}

		now := s.now()
		o.Shipped = &ShippedData{
			ShippedDate:   input.ShippedDate,
			Carrier:       input.Carrier,
			TrackingRef:   input.TrackingRef,
			DeliveredDate: input.DeliveredDate,
			Notes:         input.Notes,
		}
		o.Status = StatusShipped
		o.UpdatedAt = now
		o.Version++
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   o.ID,
			Action:     audit.ActionShip,
			OldValue:   map[string]any{"status": string(StatusWarehouse)},
			NewValue: map[string]any{
				"status":      string(StatusShipped),
				"carrier":     input.Carrier,
				"trackingRef": input.TrackingRef,
			},
			ChangedBy: actor,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusWarehouse), string(StatusShipped))
	return updated, nil
}

// applyTransitionPatches applies the line patches bundled with a transition.
// Patch violations land in the shared map so the caller reports them together
// with the gate result.
func (s *Service) applyTransitionPatches(o *Order, patches []LinePatch, violations map[string]string) (ids []int64, oldValue, newValue map[string]any) {
	oldValue = map[string]any{}
	newValue = map[string]any{}
	for i, patch := range patches {
		line := o.LineByID(patch.LineID)
		if line == nil {
			violations[fmt.Sprintf("linePatches[%d].lineId", i)] = "unknown line"
			continue
		}
		if line.Status == LineStatusPosted {
			violations[fmt.Sprintf("linePatches[%d].lineId", i)] = "posted lines cannot change"
			continue
		}
		po, pn, pv := applyLinePatch(line, patch)
		for k, msg := range pv {
			violations[fmt.Sprintf("lines[%d].%s", lineIndex(o, patch.LineID), k)] = msg
		}
		if len(pn) > 0 {
			line.UpdatedAt = s.now()
			ids = append(ids, patch.LineID)
			prefix := fmt.Sprintf("lines[%d].", lineIndex(o, patch.LineID))
			for k, v := range po {
				oldValue[prefix+k] = v
			}
			for k, v := range pn {
				newValue[prefix+k] = v
			}
		}
	}
	return ids, oldValue, newValue
}

func lineIndex(o *Order, lineID int64) int {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

// mergeManufacturing overlays non-zero input fields onto the stage record.
func mergeManufacturing(o *Order, input *ManufacturingData) {
	if input == nil {
		return
	}
	if o.Manufacturing == nil {
		o.Manufacturing = &ManufacturingData{}
	}
	if input.StartDate != nil {
		o.Manufacturing.StartDate = input.StartDate
	}
	if input.EstCompletionDate != nil {
		o.Manufacturing.EstCompletionDate = input.EstCompletionDate
	}
	if input.FactoryRef != "" {
		o.Manufacturing.FactoryRef = input.FactoryRef
	}
	if input.Notes != "" {
		o.Manufacturing.Notes = input.Notes
	}
}

// mergeOcean overlays non-zero input fields onto the sea-leg record. Freight
// and containers are managed by their own endpoints and never merge here.
func mergeOcean(o *Order, input *OceanData) {
	if input == nil {
		return
	}
	if o.Ocean == nil {
		o.Ocean = &OceanData{}
	}
	if input.HouseBillOfLading != "" {
		o.Ocean.HouseBillOfLading = input.HouseBillOfLading
	}
	if input.VesselName != "" {
		o.Ocean.VesselName = input.VesselName
	}
	if input.PortOfLoading != "" {
		o.Ocean.PortOfLoading = input.PortOfLoading
	}
	if input.PortOfDischarge != "" {
		o.Ocean.PortOfDischarge = input.PortOfDischarge
	}
	if input.CommercialInvoiceNo != "" {
		o.Ocean.CommercialInvoiceNo = input.CommercialInvoiceNo
	}
	if input.PackingListRef != "" {
		o.Ocean.PackingListRef = input.PackingListRef
	}
	if input.ETD != nil {
		o.Ocean.ETD = input.ETD
	}
	if input.ETA != nil {
		o.Ocean.ETA = input.ETA
	}
}
