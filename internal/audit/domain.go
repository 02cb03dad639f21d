// Package audit provides the append-only change history for purchase orders.
// Entries are written in the same transaction as the change they describe;
// no update or delete surface exists.
package audit

import "time"

// Action kinds recorded against purchase orders.
const (
	ActionCreate           = "CREATE"
	ActionUpdateDetails    = "UPDATE_DETAILS"
	ActionStatusTransition = "STATUS_TRANSITION"
	ActionLineAdd          = "LINE_ADD"
	ActionLineUpdate       = "LINE_UPDATE"
	ActionLineDelete       = "LINE_DELETE"
	ActionContainerAdd     = "CONTAINER_ADD"
	ActionContainerUpdate  = "CONTAINER_UPDATE"
	ActionContainerRemove  = "CONTAINER_REMOVE"
	ActionDocumentUpload   = "DOCUMENT_UPLOAD"
	ActionDocumentReplace  = "DOCUMENT_REPLACE"
	ActionCostUpsert       = "COST_UPSERT"
	ActionAdjustmentUpsert = "ADJUSTMENT_UPSERT"
	ActionReceive          = "RECEIVE"
	ActionShip             = "SHIP"
	ActionVoid             = "VOID"
)

// EntityPurchaseOrder is the entity type every order-scoped entry carries.
const EntityPurchaseOrder = "purchase_order"

// Entry is one immutable change record. OldValue and NewValue hold only the
// fields the operation changed.
type Entry struct {
	ID         int64          `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   int64          `json:"entityId"`
	Action     string         `json:"action"`
	OldValue   map[string]any `json:"oldValue,omitempty"`
	NewValue   map[string]any `json:"newValue,omitempty"`
	ChangedBy  string         `json:"changedBy"`
	CreatedAt  time.Time      `json:"createdAt"`
}
