package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tradewind-ops/tradewind/internal/platform/httpx"
	"github.com/tradewind-ops/tradewind/internal/shared"
)

// Handler wires the purchase order HTTP endpoints.
type Handler struct {
	svc      *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{svc: svc, logger: logger, validate: v}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateOrderInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if fields := h.structViolations(input); fields != nil {
		httpx.RespondError(w, &shared.ValidationError{Fields: fields})
		return
	}
	o, err := h.svc.Create(r.Context(), input)
	if err != nil {
		h.logError(r, "create order", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	f, err := listFiltersFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	items, pagination, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.logError(r, "list orders", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": pagination,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	o, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var input UpdateDetailsInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	o, err := h.svc.UpdateDetails(r.Context(), id, input)
	if err != nil {
		h.logError(r, "update order details", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var input TransitionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	result, err := h.svc.Transition(r.Context(), id, input)
	if err != nil {
		h.logError(r, "transition order", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var input ReceiveInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	o, err := h.svc.Receive(r.Context(), id, input)
	if err != nil {
		h.logError(r, "receive order", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleShip(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var input ShipInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	o, err := h.svc.Ship(r.Context(), id, input)
	if err != nil {
		h.logError(r, "ship order", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleAddLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var input LineInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	o, err := h.svc.AddLine(r.Context(), id, input)
	if err != nil {
		h.logError(r, "add order line", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	var patch LinePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	o, err := h.svc.UpdateLine(r.Context(), id, lineID, patch)
	if err != nil {
		h.logError(r, "update order line", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleDeleteLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	o, err := h.svc.DeleteLine(r.Context(), id, lineID)
	if err != nil {
		h.logError(r, "delete order line", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleChecklist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.DocumentChecklist(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	o, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	docs := o.Documents
	if docs == nil {
		docs = []Document{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": docs})
}

func (h *Handler) handleIssueSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req UploadSlotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	slot, err := h.svc.IssueUploadSlot(r.Context(), id, req)
	if err != nil {
		h.logError(r, "issue upload slot", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, slot)
}

func (h *Handler) handleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var input RegisterDocumentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	o, err := h.svc.RegisterDocument(r.Context(), id, input)
	if err != nil {
		h.logError(r, "register document", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) handleAddContainer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var input ContainerInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	o, err := h.svc.AddContainer(r.Context(), id, input)
	if err != nil {
		h.logError(r, "add container", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) handleUpdateContainer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	containerNo := chi.URLParam(r, "containerNo")
	var input ContainerInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	o, err := h.svc.UpdateContainer(r.Context(), id, containerNo, input)
	if err != nil {
		h.logError(r, "update container", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleRemoveContainer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	containerNo := chi.URLParam(r, "containerNo")
	o, err := h.svc.RemoveContainer(r.Context(), id, containerNo)
	if err != nil {
		h.logError(r, "remove container", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleSetFreight(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var input FreightInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	o, err := h.svc.SetFreight(r.Context(), id, input)
	if err != nil {
		h.logError(r, "set freight", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleRequestOutput(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	kind := OutputKind(chi.URLParam(r, "kind"))
	if err := h.svc.RequestOutput(r.Context(), id, kind); err != nil {
		h.logError(r, "request output", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"status": "queued", "kind": kind})
}

func (h *Handler) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	o, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o.Generated)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return 0, false
	}
	return id, true
}

// structViolations runs tag validation and flattens the result into the
// field-path map the error responder expects.
func (h *Handler) structViolations(input any) map[string]string {
	err := h.validate.Struct(input)
	if err == nil {
		return nil
	}
	fields := map[string]string{}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		fields["_"] = err.Error()
		return fields
	}
	for _, fieldErr := range errs {
		// Namespace is "CreateOrderInput.lines[0].skuCode"; drop the root.
		path := fieldErr.Namespace()
		if i := strings.Index(path, "."); i >= 0 {
			path = path[i+1:]
		}
		fields[path] = violationMessage(fieldErr)
	}
	return fields
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "is invalid"
	}
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	switch err.(type) {
	case *shared.ValidationError, *shared.NotFoundError, *shared.ConflictError, *shared.StateError:
		return
	}
	h.logger.Error(msg, slog.Any("error", err), slog.String("path", r.URL.Path))
}

func listFiltersFromQuery(r *http.Request) (ListFilters, error) {
	q := r.URL.Query()
	page, perPage := shared.PageFromQuery(q)
	f := ListFilters{
		Status:  Status(q.Get("status")),
		Search:  q.Get("search"),
		Page:    page,
		PerPage: perPage,
	}
	if raw := q.Get("supplierId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ListFilters{}, errors.New("invalid supplierId")
		}
		f.SupplierID = id
	}
	if raw := q.Get("splitGroupId"); raw != "" {
		group, err := uuid.Parse(raw)
		if err != nil {
			return ListFilters{}, errors.New("invalid splitGroupId")
		}
		f.SplitGroupID = &group
	}
	if f.Status != "" && !f.Status.Valid() {
		f.Status = ""
	}
	return f, nil
}
