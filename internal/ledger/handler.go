package ledger

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

// Handler exposes the ledger read endpoints and manual posting.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.balances)
	r.Get("/entries", h.listEntries)
	r.Post("/entries", h.postEntry)
}

// PostEntryRequest is the manual posting payload.
type PostEntryRequest struct {
	SKUID       int64  `json:"sku_id" validate:"required,gt=0"`
	TxnType     string `json:"txn_type" validate:"required,oneof=IN OUT"`
	Qty         int    `json:"qty" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required"`
	ReferenceID string `json:"reference_id,omitempty"`
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	var skuIDs []int64
	for _, raw := range r.URL.Query()["sku_id"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sku_id must be a positive integer")
			return
		}
		skuIDs = append(skuIDs, id)
	}
	if len(skuIDs) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "at least one sku_id is required")
		return
	}

	balances, err := h.service.SKUBalances(r.Context(), skuIDs)
	if err != nil {
		h.logger.Error("sku balances", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	filter := EntryFilter{}
	if raw := r.URL.Query().Get("sku_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sku_id must be an integer")
			return
		}
		filter.SKUID = id
	}
	if raw := r.URL.Query().Get("reason"); raw != "" {
		filter.Reason = Reason(raw)
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.From = t
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.To = t
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Offset = n
		}
	}

	entries, err := h.service.Entries(r.Context(), filter)
	if err != nil {
		h.logger.Error("list ledger entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	var req PostEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	entry, err := h.service.Post(r.Context(), PostInput{
		SKUID:       req.SKUID,
		TxnType:     TxnType(req.TxnType),
		Qty:         req.Qty,
		Reason:      Reason(req.Reason),
		ReferenceID: req.ReferenceID,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrIdempotencyConflict):
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
		case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidTxnType), errors.Is(err, ErrInvalidReason):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("post ledger entry", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}
