package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"did-registry/internal/events"
	"did-registry/internal/platform/middleware"
	"did-registry/internal/registry/models"
	"did-registry/pkg/domain"
	dErrors "did-registry/pkg/domain-errors"
	"did-registry/pkg/requestcontext"
)

// Service defines the registry operations the transport exposes.
type Service interface {
	Register(ctx context.Context, did domain.DID, document string) error
	Update(ctx context.Context, did domain.DID, document string) error
	AddDelegate(ctx context.Context, did domain.DID, delegate domain.Address) error
	RemoveDelegate(ctx context.Context, did domain.DID, delegate domain.Address) error
	Deactivate(ctx context.Context, did domain.DID) error
	Resolve(ctx context.Context, did domain.DID) (*models.Resolution, error)
	IsDelegate(ctx context.Context, did domain.DID, addr domain.Address) (bool, error)
	Exists(ctx context.Context, did domain.DID) (bool, error)
	Changes(ctx context.Context, did domain.DID) ([]events.Event, error)
	ChangesTail(ctx context.Context, after uint64, limit int) ([]events.Event, error)
}

// Handler is the thin HTTP layer over the registry service. Reads are public;
// mutations sit behind the auth middleware.
type Handler struct {
	registry  Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

// New creates a registry Handler.
func New(registry Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{registry: registry, logger: logger, validator: validator}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/dids", func(r chi.Router) {
		// Public reads
		r.Get("/{did}", h.handleResolve)
		r.Get("/{did}/exists", h.handleExists)
		r.Get("/{did}/delegates/{address}", h.handleIsDelegate)
		r.Get("/{did}/events", h.handleChanges)

		// Authenticated mutations
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.validator, h.logger))
			r.Post("/", h.handleRegister)
			r.Put("/{did}/document", h.handleUpdate)
			r.Post("/{did}/delegates", h.handleAddDelegate)
			r.Delete("/{did}/delegates/{address}", h.handleRemoveDelegate)
			r.Delete("/{did}", h.handleDeactivate)
		})
	})
	r.Get("/events", h.handleChangesTail)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid register request", err)
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	did, err := req.Validate()
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.registry.Register(ctx, did, req.Document); err != nil {
		h.warn(ctx, "register failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, err := pathDID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid update request", err)
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.registry.Update(ctx, did, req.Document); err != nil {
		h.warn(ctx, "update failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddDelegate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, err := pathDID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req DelegateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid delegate request", err)
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	delegate, err := req.Validate()
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.registry.AddDelegate(ctx, did, delegate); err != nil {
		h.warn(ctx, "add delegate failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveDelegate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, err := pathDID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	delegate, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.registry.RemoveDelegate(ctx, did, delegate); err != nil {
		h.warn(ctx, "remove delegate failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, err := pathDID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.registry.Deactivate(ctx, did); err != nil {
		h.warn(ctx, "deactivate failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, err := pathDID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	resolution, err := h.registry.Resolve(ctx, did)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResolveResponse(resolution))
}

func (h *Handler) handleExists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, err := pathDID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	exists, err := h.registry.Exists(ctx, did)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, existsResponse{DID: did.String(), Exists: exists})
}

func (h *Handler) handleIsDelegate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, err := pathDID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}

	isDelegate, err := h.registry.IsDelegate(ctx, did, addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, delegateResponse{DID: did.String(), Address: addr.String(), Delegate: isDelegate})
}

func (h *Handler) handleChanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did, err := pathDID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := h.registry.Changes(ctx, did)
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: list})
}

func (h *Handler) handleChangesTail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid after parameter"))
			return
		}
		after = parsed
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit parameter"))
			return
		}
		limit = parsed
	}

	list, err := h.registry.ChangesTail(ctx, after, limit)
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to tail events"))
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: list})
}

func pathDID(r *http.Request) (domain.DID, error) {
	return domain.ParseDID(chi.URLParam(r, "did"))
}

func (h *Handler) warn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
