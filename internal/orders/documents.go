package orders

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tradewind-ops/tradewind/internal/audit"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

// ChecklistItem pairs one stage requirement with whatever document currently
// satisfies it.
type ChecklistItem struct {
	DocumentRequirement
	Registered bool      `json:"registered"`
	Document   *Document `json:"document,omitempty"`
}

// RegisterDocumentInput records an uploaded file against a stage slot.
type RegisterDocumentInput struct {
	Stage        Status `json:"stage"`
	DocumentType string `json:"documentType"`
	FileName     string `json:"fileName"`
	ContentType  string `json:"contentType"`
	SizeBytes    int64  `json:"sizeBytes"`
	StorageKey   string `json:"storageKey"`
}

// ContainerInput adds or updates one container on the sea leg.
type ContainerInput struct {
	ContainerNo   string `json:"containerNo"`
	ContainerType string `json:"containerType"`
	SealNo        string `json:"sealNo"`
	CartonCount   int    `json:"cartonCount"`
}

// FreightInput sets the forwarding cost scalar.
type FreightInput struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	ExpectedVersion *int64          `json:"expectedVersion"`
}

// DocumentChecklist resolves the current stage's requirements against the
// registered documents.
func (s *Service) DocumentChecklist(ctx context.Context, orderID int64) ([]ChecklistItem, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	requirements := RequiredDocuments(o.Status, o.Lines)
	items := make([]ChecklistItem, 0, len(requirements))
	for _, req := range requirements {
		item := ChecklistItem{DocumentRequirement: req}
		for i := range o.Documents {
			d := &o.Documents[i]
			if d.Stage == o.Status && d.DocumentType == req.ID {
				item.Registered = true
				item.Document = d
				break
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// IssueUploadSlot asks the document store for a signed upload location. The
// document only appears on the order once RegisterDocument confirms the
// upload.
func (s *Service) IssueUploadSlot(ctx context.Context, orderID int64, req UploadSlotRequest) (*UploadSlot, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	violations := map[string]string{}
	if !Status(req.Stage).Valid() {
		violations["stage"] = "unknown stage"
	}
	if req.DocumentType == "" {
		violations["documentType"] = "document type is required"
	}
	if req.FileName == "" {
		violations["fileName"] = "file name is required"
	}
	if req.SizeBytes <= 0 {
		violations["sizeBytes"] = "size must be greater than zero"
	}
	if err := shared.NewValidationError(violations); err != nil {
		return nil, err
	}
	req.OrderID = o.ID
	return s.slots.IssueSlot(ctx, req)
}

// RegisterDocument links an uploaded file to its (stage, type) slot. A second
// registration for the same slot replaces the first. Documents stay writable
// after posting, since the goods received note and customs clearance are
// produced by receiving itself; only terminal orders refuse new paper.
func (s *Service) RegisterDocument(ctx context.Context, orderID int64, input RegisterDocumentInput) (*Order, error) {
	violations := map[string]string{}
	if !input.Stage.Valid() || input.Stage.Terminal() || input.Stage == StatusRFQ || input.Stage == StatusRejected {
		violations["stage"] = "documents attach to ISSUED, MANUFACTURING, OCEAN or WAREHOUSE"
	}
	if input.DocumentType == "" {
		violations["documentType"] = "document type is required"
	}
	if input.FileName == "" {
		violations["fileName"] = "file name is required"
	}
	if input.StorageKey == "" {
		violations["storageKey"] = "storage key is required"
	}
	if input.SizeBytes <= 0 {
		violations["sizeBytes"] = "size must be greater than zero"
	}
	if err := shared.NewValidationError(violations); err != nil {
		return nil, err
	}

	actor := shared.ActorFromContext(ctx)
	var updated *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LoadOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return &shared.StateError{Detail: "order is closed"}
		}
		now := s.now()
		var previousKey string
		for i := range o.Documents {
			d := &o.Documents[i]
			if d.Stage == input.Stage && d.DocumentType == input.DocumentType {
				previousKey = d.StorageKey
				break
			}
		}
		doc := &Document{
			OrderID:      o.ID,
			Stage:        input.Stage,
			DocumentType: input.DocumentType,
			FileName:     input.FileName,
			ContentType:  input.ContentType,
			SizeBytes:    input.SizeBytes,
			StorageKey:   input.StorageKey,
			UploadedBy:   actor,
			UploadedAt:   now,
		}
		replaced, err := tx.UpsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		refreshDocument(o, doc)
		o.UpdatedAt = now
		o.Version++
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o

		action := audit.ActionDocumentUpload
		oldValue := map[string]any{}
		if replaced {
			action = audit.ActionDocumentReplace
			oldValue["storageKey"] = previousKey
		}
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   o.ID,
			Action:     action,
			OldValue:   oldValue,
			NewValue: map[string]any{
				"stage":        string(input.Stage),
				"documentType": input.DocumentType,
				"fileName":     input.FileName,
				"storageKey":   input.StorageKey,
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

// refreshDocument swaps the registered document into the loaded aggregate.
func refreshDocument(o *Order, doc *Document) {
	for i := range o.Documents {
		d := &o.Documents[i]
		if d.Stage == doc.Stage && d.DocumentType == doc.DocumentType {
			doc.ID = d.ID
			o.Documents[i] = *doc
			return
		}
	}
	o.Documents = append(o.Documents, *doc)
}

// AddContainer appends a container while the order sits in OCEAN.
func (s *Service) AddContainer(ctx context.Context, orderID int64, input ContainerInput) (*Order, error) {
	return s.mutateContainers(ctx, orderID, audit.ActionContainerAdd, func(o *Order) (map[string]any, map[string]any, error) {
		violations := containerViolations(input)
		for _, c := range o.Ocean.Containers {
			if c.ContainerNo == input.ContainerNo {
				violations["containerNo"] = "container is already on this shipment"
			}
		}
		if err := shared.NewValidationError(violations); err != nil {
			return nil, nil, err
		}
		c := Container{
			ContainerNo:   input.ContainerNo,
			ContainerType: input.ContainerType,
			SealNo:        input.SealNo,
			CartonCount:   input.CartonCount,
		}
		o.Ocean.Containers = append(o.Ocean.Containers, c)
		return nil, map[string]any{"containerNo": c.ContainerNo, "containerType": c.ContainerType, "cartonCount": c.CartonCount}, nil
	})
}

// UpdateContainer replaces the container identified by containerNo.
func (s *Service) UpdateContainer(ctx context.Context, orderID int64, containerNo string, input ContainerInput) (*Order, error) {
	return s.mutateContainers(ctx, orderID, audit.ActionContainerUpdate, func(o *Order) (map[string]any, map[string]any, error) {
		idx := containerIndex(o, containerNo)
		if idx < 0 {
			return nil, nil, &shared.NotFoundError{Entity: "container", ID: containerNo}
		}
		violations := containerViolations(input)
		if input.ContainerNo != containerNo && containerIndex(o, input.ContainerNo) >= 0 {
			violations["containerNo"] = "container is already on this shipment"
		}
		if err := shared.NewValidationError(violations); err != nil {
			return nil, nil, err
		}
		old := o.Ocean.Containers[idx]
		o.Ocean.Containers[idx] = Container{
			ContainerNo:   input.ContainerNo,
			ContainerType: input.ContainerType,
			SealNo:        input.SealNo,
			CartonCount:   input.CartonCount,
		}
		oldValue := map[string]any{"containerNo": old.ContainerNo, "containerType": old.ContainerType, "cartonCount": old.CartonCount}
		newValue := map[string]any{"containerNo": input.ContainerNo, "containerType": input.ContainerType, "cartonCount": input.CartonCount}
		return oldValue, newValue, nil
	})
}

// RemoveContainer drops the container identified by containerNo.
func (s *Service) RemoveContainer(ctx context.Context, orderID int64, containerNo string) (*Order, error) {
	return s.mutateContainers(ctx, orderID, audit.ActionContainerRemove, func(o *Order) (map[string]any, map[string]any, error) {
		idx := containerIndex(o, containerNo)
		if idx < 0 {
			return nil, nil, &shared.NotFoundError{Entity: "container", ID: containerNo}
		}
		old := o.Ocean.Containers[idx]
		o.Ocean.Containers = append(o.Ocean.Containers[:idx], o.Ocean.Containers[idx+1:]...)
		return map[string]any{"containerNo": old.ContainerNo, "containerType": old.ContainerType, "cartonCount": old.CartonCount}, nil, nil
	})
}

// mutateContainers wraps the shared guard and bookkeeping of container edits.
func (s *Service) mutateContainers(ctx context.Context, orderID int64, action string, mutate func(*Order) (map[string]any, map[string]any, error)) (*Order, error) {
	actor := shared.ActorFromContext(ctx)
	var updated *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LoadOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusOcean || o.ReadOnly() {
			return &shared.StateError{Detail: "containers are editable only while the order is in ocean"}
		}
		if o.Ocean == nil {
			o.Ocean = &OceanData{}
		}
		oldValue, newValue, err := mutate(o)
		if err != nil {
			return err
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
			Action:     action,
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

func containerViolations(input ContainerInput) map[string]string {
	v := map[string]string{}
	if input.ContainerNo == "" {
		v["containerNo"] = "container number is required"
	}
	if input.ContainerType == "" {
		v["containerType"] = "container type is required"
	}
	if input.CartonCount <= 0 {
		v["cartonCount"] = "carton count must be greater than zero"
	}
	return v
}

func containerIndex(o *Order, containerNo string) int {
	if o.Ocean == nil {
		return -1
	}
	for i, c := range o.Ocean.Containers {
		if c.ContainerNo == containerNo {
			return i
		}
	}
	return -1
}

// SetFreight updates the forwarding cost scalar, allowed only in OCEAN.
func (s *Service) SetFreight(ctx context.Context, orderID int64, input FreightInput) (*Order, error) {
	violations := map[string]string{}
	if !input.Amount.IsPositive() {
		violations["amount"] = "freight cost must be greater than zero"
	}
	if input.Currency == "" {
		violations["currency"] = "currency is required"
	}
	if err := shared.NewValidationError(violations); err != nil {
		return nil, err
	}

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
		if o.Status != StatusOcean || o.ReadOnly() {
			return &shared.StateError{Detail: "freight is editable only while the order is in ocean"}
		}
		if o.Ocean == nil {
			o.Ocean = &OceanData{}
		}
		oldValue := map[string]any{}
		if o.Ocean.FreightCost != nil {
			oldValue["freightCost"] = o.Ocean.FreightCost.String()
			oldValue["freightCurrency"] = o.Ocean.FreightCurrency
		}
		amount := input.Amount
		o.Ocean.FreightCost = &amount
		o.Ocean.FreightCurrency = input.Currency
		now := s.now()
		o.UpdatedAt = now
		o.Version++
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   o.ID,
			Action:     audit.ActionCostUpsert,
			OldValue:   oldValue,
			NewValue:   map[string]any{"costName": "freight", "freightCost": amount.String(), "freightCurrency": input.Currency},
			ChangedBy:  actor,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RequestOutput queues background rendering of a generated artifact.
func (s *Service) RequestOutput(ctx context.Context, orderID int64, kind OutputKind) error {
	if !kind.Valid() {
		return shared.NewValidationError(map[string]string{"kind": "unknown output kind"})
	}
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return err
	}
	actor := shared.ActorFromContext(ctx)
	if err := s.outputs.EnqueueRender(ctx, orderID, kind, actor); err != nil {
		return &shared.ExternalDependencyError{Collaborator: "job queue", Err: err}
	}
	return nil
}

// RecordGeneratedOutput stores the metadata of a finished render. Called by
// the worker once the artifact sits in the document store.
func (s *Service) RecordGeneratedOutput(ctx context.Context, orderID int64, kind OutputKind, storageKey, requestedBy string) error {
	if !kind.Valid() {
		return shared.NewValidationError(map[string]string{"kind": "unknown output kind"})
	}
	actor := shared.ActorFromContext(ctx)
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LoadOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.now()
		o.Generated.Set(kind, &GeneratedDoc{
			StorageKey:  storageKey,
			GeneratedAt: now,
			GeneratedBy: requestedBy,
			OutOfDate:   false,
		})
		o.UpdatedAt = now
		o.Version++
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.Entry{
			EntityType: audit.EntityPurchaseOrder,
			EntityID:   o.ID,
			Action:     audit.ActionUpdateDetails,
			NewValue:   map[string]any{"generated": string(kind), "storageKey": storageKey, "requestedBy": requestedBy},
			ChangedBy:  actor,
			CreatedAt:  now,
		})
	})
}
