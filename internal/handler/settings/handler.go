package settings

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/model/settings"
	"github.com/zhouzirui/design-desk/backend/internal/service/ai"
	"github.com/zhouzirui/design-desk/backend/pkg/utils"
)

// ModelLister lists the models the configured completion endpoint offers.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Handler serves the runtime settings API.
type Handler struct {
	store  settings.Store
	models ModelLister
	log    zerolog.Logger
}

// New creates a settings handler. models may be nil, in which case the model
// listing route answers 503.
func New(store settings.Store, models ModelLister, logger zerolog.Logger) *Handler {
	return &Handler{
		store:  store,
		models: models,
		log:    logger.With().Str("component", "settings_handler").Logger(),
	}
}

// RegisterRoutes registers the settings routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.handleGetSettings)
	r.Put("/settings", h.handlePutSettings)
	r.Get("/settings/models", h.handleListModels)
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "model listing is not available")
		return
	}

	models, err := h.models.ListModels(r.Context())
	switch {
	case errors.Is(err, ai.ErrProviderNotConfigured):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.log.Warn().Err(err).Msg("failed to list provider models")
		utils.RespondError(w, http.StatusBadGateway, "failed to fetch models from the completion endpoint")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string][]string{"models": models})
}

// handleGetSettings lists every known key. Secret values are never echoed.
func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	out, err := h.snapshot(r)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read settings")
		utils.RespondError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

// handlePutSettings upserts the known keys of the payload; other keys are ignored.
func (h *Handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var payload map[string]*string
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated := make([]string, 0, len(payload))
	for key, value := range payload {
		if !settings.IsKnown(key) || value == nil {
			continue
		}
		// Clients round-trip the masked value; keep the stored secret.
		if settings.IsSecret(key) && *value == settings.Obfuscated {
			continue
		}
		if err := h.store.Set(r.Context(), key, strings.TrimSpace(*value)); err != nil {
			h.log.Error().Err(err).Str("key", key).Msg("failed to save setting")
			utils.RespondError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		updated = append(updated, key)
	}
	h.log.Info().Strs("keys", updated).Msg("settings updated")

	out, err := h.snapshot(r)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read settings")
		utils.RespondError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) snapshot(r *http.Request) (map[string]*string, error) {
	out := make(map[string]*string, len(settings.Keys))
	for _, key := range settings.Keys {
		value, err := settings.Value(r.Context(), h.store, key)
		if err != nil {
			return nil, err
		}
		switch {
		case value == "":
			out[key] = nil
		case settings.IsSecret(key):
			masked := settings.Obfuscated
			out[key] = &masked
		default:
			v := value
			out[key] = &v
		}
	}
	return out, nil
}
