package orders

import "github.com/go-chi/chi/v5"

// MountRoutes registers the purchase order routes. Patterns stay flat so the
// costs routes can share the /orders/{id} prefix from their own package.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)

	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handleUpdateDetails)
	r.Post("/{id}/transition", h.handleTransition)
	r.Post("/{id}/receive", h.handleReceive)
	r.Post("/{id}/ship", h.handleShip)

	r.Post("/{id}/lines", h.handleAddLine)
	r.Patch("/{id}/lines/{lineID}", h.handleUpdateLine)
	r.Delete("/{id}/lines/{lineID}", h.handleDeleteLine)

	r.Get("/{id}/documents", h.handleListDocuments)
	r.Get("/{id}/documents/checklist", h.handleChecklist)
	r.Post("/{id}/documents/slots", h.handleIssueSlot)
	r.Post("/{id}/documents", h.handleRegisterDocument)

	r.Post("/{id}/containers", h.handleAddContainer)
	r.Put("/{id}/containers/{containerNo}", h.handleUpdateContainer)
	r.Delete("/{id}/containers/{containerNo}", h.handleRemoveContainer)

	r.Put("/{id}/freight", h.handleSetFreight)

	r.Get("/{id}/outputs", h.handleListOutputs)
	r.Post("/{id}/outputs/{kind}", h.handleRequestOutput)
}
