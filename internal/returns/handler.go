package returns

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stitchworks-erp/stitchworks-erp/internal/platform/httpx"
	"github.com/stitchworks-erp/stitchworks-erp/internal/shared"
)

// Handler exposes the returns lifecycle over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers returns routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders/{orderNumber}", h.searchOrder)
	r.Post("/", h.initiate)
	r.Get("/queue", h.queue)
	r.Post("/pickup-batch", h.pickupBatch)
	r.Get("/report/summary", h.reportSummary)

	r.Route("/lines/{lineID}", func(r chi.Router) {
		r.Get("/", h.getLine)
		r.Post("/pickup", h.schedulePickup)
		r.Post("/transit", h.markInTransit)
		r.Post("/receive", h.receive)
		r.Post("/qc", h.recordQC)
		r.Get("/refund-preview", h.refundPreview)
		r.Post("/refund", h.processRefund)
		r.Get("/refund", h.getRefund)
		r.Post("/exchange", h.createExchange)
		r.Post("/complete", h.complete)
		r.Post("/cancel", h.cancel)
		r.Put("/notes", h.updateNotes)
	})
}

func lineIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	return id, err == nil && id > 0
}

// respondError maps returns errors onto problem responses. Transition and
// uniqueness failures are conflicts; malformed requests are 400s.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var transitionErr *TransitionError
	var validationErr *ValidationError
	switch {
	case errors.As(err, &transitionErr),
		errors.Is(err, ErrQCAlreadyRecorded),
		errors.Is(err, ErrRefundAlreadyPosted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &validationErr), errors.Is(err, ErrNonPositiveRefund):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) searchOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	if orderNumber == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "order number is required")
		return
	}
	result, err := h.service.SearchOrderForReturn(r.Context(), orderNumber)
	if err != nil {
		h.respondError(w, "search order for return", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines, err := h.service.InitiateReturn(r.Context(), req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "initiate return", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"lines": lines})
}

func (h *Handler) queue(w http.ResponseWriter, r *http.Request) {
	var orderID int64
	if raw := r.URL.Query().Get("order_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "order_id must be a positive integer")
			return
		}
		orderID = id
	}
	items, err := h.service.Queue(r.Context(), orderID)
	if err != nil {
		h.respondError(w, "returns queue", err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	p := shared.NewPagination(page, perPage, len(items))
	start := (p.Page - 1) * p.PerPage
	if start > len(items) {
		start = len(items)
	}
	end := start + p.PerPage
	if end > len(items) {
		end = len(items)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items[start:end], "pagination": p})
}

func (h *Handler) getLine(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	item, err := h.service.GetLine(r.Context(), id)
	if err != nil {
		h.respondError(w, "get return line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) schedulePickup(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	var req SchedulePickupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := h.service.SchedulePickup(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "schedule pickup", err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) pickupBatch(w http.ResponseWriter, r *http.Request) {
	var req PickupBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	results := h.service.SchedulePickupBatch(r.Context(), req, shared.ActorFromContext(r.Context()))
	httpx.JSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) markInTransit(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	line, err := h.service.MarkInTransit(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "mark in transit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	var req ReceiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := h.service.Receive(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "receive return", err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) recordQC(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	var req RecordQCRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.RecordQC(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "record qc", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) refundPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	var gross, clawback float64
	if raw := r.URL.Query().Get("gross"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "gross must be a non-negative number")
			return
		}
		gross = v
	}
	if raw := r.URL.Query().Get("clawback"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "clawback must be a non-negative number")
			return
		}
		clawback = v
	}
	preview, err := h.service.RefundPreview(r.Context(), id, gross, clawback)
	if err != nil {
		h.respondError(w, "refund preview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func (h *Handler) processRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	var req ProcessRefundRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	record, err := h.service.ProcessRefund(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "process refund", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, record)
}

func (h *Handler) getRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	record, err := h.service.Refund(r.Context(), id)
	if err != nil {
		h.respondError(w, "get refund", err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func (h *Handler) createExchange(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	line, err := h.service.CreateExchange(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "create exchange", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	line, err := h.service.Complete(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "complete return", err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	var req struct {
		Reason string `json:"reason,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
			return
		}
	}
	line, err := h.service.Cancel(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "cancel return", err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) updateNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := lineIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be a positive integer")
		return
	}
	var req UpdateNotesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := h.service.UpdateNotes(r.Context(), id, req.Notes, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "update notes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) reportSummary(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		// Inclusive end of day.
		to = t.Add(24*time.Hour - time.Nanosecond)
	}
	summary, err := h.service.Report(r.Context(), from, to)
	if err != nil {
		h.respondError(w, "returns summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
