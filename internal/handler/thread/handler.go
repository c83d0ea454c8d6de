package thread

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/pkg/utils"
)

// Handler serves thread and message CRUD.
type Handler struct {
	store chat.Store
	log   zerolog.Logger
}

// New creates a thread handler.
func New(store chat.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   logger.With().Str("component", "thread_handler").Logger(),
	}
}

// RegisterRoutes registers thread and message routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/threads", h.handleCreateThread)
	r.Get("/threads", h.handleListThreads)
	r.Get("/threads/{threadID}", h.handleGetThread)
	r.Put("/threads/{threadID}", h.handleUpdateThread)
	r.Delete("/threads/{threadID}", h.handleDeleteThread)

	r.Post("/messages", h.handleCreateMessage)
	r.Put("/messages/{messageID}", h.handleUpdateMessage)
	r.Delete("/messages/{messageID}", h.handleDeleteMessage)
}

type threadDetail struct {
	chat.Thread
	Messages []chat.Message `json:"messages"`
}

func (h *Handler) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string         `json:"thread_name"`
		Metadata map[string]any `json:"metadata"`
	}
	// An empty body creates an unnamed thread.
	if err := utils.DecodeJSON(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	thread, err := h.store.CreateThread(r.Context(), chat.Thread{
		Name:     strings.TrimSpace(payload.Name),
		Metadata: payload.Metadata,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, thread)
}

func (h *Handler) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.store.ListThreads(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if threads == nil {
		threads = []chat.ThreadSummary{}
	}
	utils.RespondJSON(w, http.StatusOK, threads)
}

func (h *Handler) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	thread, err := h.store.GetThread(r.Context(), threadID)
	if err != nil {
		h.fail(w, err)
		return
	}
	messages, err := h.store.ListMessages(r.Context(), threadID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, threadDetail{Thread: thread, Messages: messages})
}

func (h *Handler) handleUpdateThread(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     *string        `json:"thread_name"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	thread, err := h.store.GetThread(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if payload.Name != nil {
		if name := strings.TrimSpace(*payload.Name); name != "" {
			thread.Name = name
		}
	}
	thread.Metadata = chat.MergeMetadata(thread.Metadata, payload.Metadata)

	updated, err := h.store.UpdateThread(r.Context(), thread)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteThread(r.Context(), chi.URLParam(r, "threadID")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MessagePayload is the body of message creation and turn submission.
type MessagePayload struct {
	ThreadID string         `json:"thread_id"`
	Sender   string         `json:"sender"`
	Kind     string         `json:"type"`
	Body     string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

// Validate reports the first missing required field.
func (p MessagePayload) Validate() error {
	switch {
	case strings.TrimSpace(p.ThreadID) == "":
		return errors.New("thread_id is required")
	case strings.TrimSpace(p.Sender) == "":
		return errors.New("sender is required")
	case strings.TrimSpace(p.Kind) == "":
		return errors.New("type is required")
	case strings.TrimSpace(p.Body) == "":
		return errors.New("message is required")
	}
	return nil
}

func (h *Handler) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var payload MessagePayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := payload.Validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	message, err := h.store.CreateMessage(r.Context(), chat.Message{
		ThreadID: payload.ThreadID,
		Sender:   payload.Sender,
		Kind:     payload.Kind,
		Body:     payload.Body,
		Metadata: payload.Metadata,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, message)
}

func (h *Handler) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Sender   *string        `json:"sender"`
		Kind     *string        `json:"type"`
		Body     *string        `json:"message"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := h.store.GetMessage(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if payload.Sender != nil {
		message.Sender = *payload.Sender
	}
	if payload.Kind != nil {
		message.Kind = *payload.Kind
	}
	if payload.Body != nil {
		message.Body = *payload.Body
	}
	message.Metadata = chat.MergeMetadata(message.Metadata, payload.Metadata)

	updated, err := h.store.UpdateMessage(r.Context(), message)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteMessage(r.Context(), chi.URLParam(r, "messageID")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrThreadNotFound), errors.Is(err, chat.ErrMessageNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error().Err(err).Msg("store operation failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
