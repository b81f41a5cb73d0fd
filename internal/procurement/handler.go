package procurement

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Handler wires the JSON API for requests, orders and goods received.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-requests", func(r chi.Router) {
		r.Get("/", h.listRequests)
		r.Post("/", h.createRequest)
		r.Get("/{id}", h.findRequest)
		r.Patch("/{id}", h.updateRequest)
		r.Delete("/{id}", h.removeRequest)
	})
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/{id}", h.findOrder)
		r.Patch("/{id}", h.updateOrder)
		r.Delete("/{id}", h.removeOrder)
	})
	r.Route("/goods-received", func(r chi.Router) {
		r.Get("/", h.listReceived)
		r.Post("/", h.createReceived)
		r.Get("/{id}", h.findReceived)
		r.Patch("/{id}", h.updateReceived)
		r.Delete("/{id}", h.removeReceived)
	})
}

type linesPayload struct {
	Items []LineInput `json:"items" validate:"required,min=1,dive"`
}

type updateRequestPayload struct {
	Items []LineInput `json:"items" validate:"omitempty,dive"`
}

type createOrderPayload struct {
	PurchaseRequestID uuid.UUID   `json:"purchase_request_id" validate:"required"`
	Items             []LineInput `json:"items" validate:"required,min=1,dive"`
}

type createReceivedPayload struct {
	PurchaseOrderID uuid.UUID   `json:"purchase_order_id" validate:"required"`
	Items           []LineInput `json:"items" validate:"required,min=1,dive"`
}

type listResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var payload linesPayload
	if !h.decode(w, r, &payload) {
		return
	}
	pr, err := h.service.CreateRequest(r.Context(), payload.Items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pr)
}

func (h *Handler) updateRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload updateRequestPayload
	if !h.decode(w, r, &payload) {
		return
	}
	pr, err := h.service.UpdateRequest(r.Context(), id, payload.Items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

func (h *Handler) removeRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	pr, err := h.service.RemoveRequest(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

func (h *Handler) findRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	pr, err := h.service.FindRequest(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	items, total, err := h.service.ListRequests(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[PurchaseRequest]{Data: items, Pagination: shared.NewPagination(filter.Limit, filter.Offset, total)})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var payload createOrderPayload
	if !h.decode(w, r, &payload) {
		return
	}
	po, err := h.service.CreateOrder(r.Context(), payload.PurchaseRequestID, payload.Items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload linesPayload
	if !h.decode(w, r, &payload) {
		return
	}
	po, err := h.service.UpdateOrder(r.Context(), id, payload.Items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) removeOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	po, err := h.service.RemoveOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) findOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	po, err := h.service.FindOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	if raw := r.URL.Query().Get("purchase_request_id"); raw != "" {
		parent, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "purchase_request_id must be a UUID")
			return
		}
		filter.ParentID = parent
	}
	orders, total, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[PurchaseOrder]{Data: orders, Pagination: shared.NewPagination(filter.Limit, filter.Offset, total)})
}

func (h *Handler) createReceived(w http.ResponseWriter, r *http.Request) {
	var payload createReceivedPayload
	if !h.decode(w, r, &payload) {
		return
	}
	gr, err := h.service.CreateReceived(r.Context(), CreateReceivedInput{
		PurchaseOrderID: payload.PurchaseOrderID,
		Items:           payload.Items,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, gr)
}

func (h *Handler) updateReceived(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload linesPayload
	if !h.decode(w, r, &payload) {
		return
	}
	gr, err := h.service.UpdateReceived(r.Context(), id, payload.Items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, gr)
}

func (h *Handler) removeReceived(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	gr, err := h.service.RemoveReceived(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, gr)
}

func (h *Handler) findReceived(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	gr, err := h.service.FindReceived(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, gr)
}

func (h *Handler) listReceived(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	if raw := r.URL.Query().Get("purchase_order_id"); raw != "" {
		parent, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "purchase_order_id must be a UUID")
			return
		}
		filter.ParentID = parent
	}
	records, total, err := h.service.ListReceived(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[GoodsReceived]{Data: records, Pagination: shared.NewPagination(filter.Limit, filter.Offset, total)})
}

func listFilter(r *http.Request) ListFilter {
	limit, offset := shared.PageFromQuery(r.URL.Query())
	return ListFilter{Status: r.URL.Query().Get("status"), Limit: limit, Offset: offset}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.ValidationFailed(w, err)
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// fail maps engine errors onto problem responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var quantity *InsufficientQuantityError
	switch {
	case errors.As(err, &quantity):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:      "Insufficient Quantity",
			Status:     http.StatusUnprocessableEntity,
			Detail:     "requested quantities exceed what is available",
			Violations: quantity.Violations,
		})
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	default:
		h.logger.Error("procurement request failed", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
