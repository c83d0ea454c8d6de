package stream

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/handler/thread"
	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/service/turn"
	"github.com/zhouzirui/design-desk/backend/pkg/utils"
)

// Submitter starts a conversation turn.
type Submitter interface {
	Submit(ctx context.Context, req turn.Request) (*turn.Turn, error)
}

// Handler streams turn replies as Server-Sent Events.
type Handler struct {
	turns Submitter
	log   zerolog.Logger
}

// New creates a stream handler.
func New(turns Submitter, logger zerolog.Logger) *Handler {
	return &Handler{
		turns: turns,
		log:   logger.With().Str("component", "stream_handler").Logger(),
	}
}

// RegisterRoutes registers the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/messages/send", h.handleSend)
}

// StartEvent opens a reply stream.
type StartEvent struct {
	ThreadID           string `json:"thread_id"`
	ThreadName         string `json:"thread_name"`
	UserMessageID      string `json:"user_message_id"`
	AssistantMessageID string `json:"assistant_message_id"`
}

// DeltaEvent carries one fragment.
type DeltaEvent struct {
	Content string `json:"content"`
}

// EndEvent closes a reply stream.
type EndEvent struct {
	AssistantMessageID string `json:"assistant_message_id"`
	Finished           bool   `json:"finished"`
}

// ErrorEvent reports a failure after the stream started.
type ErrorEvent struct {
	Error string `json:"error"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var payload thread.MessagePayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := payload.Validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.turns.Submit(r.Context(), turn.Request{
		ThreadID: payload.ThreadID,
		Sender:   payload.Sender,
		Kind:     payload.Kind,
		Body:     payload.Body,
		Metadata: payload.Metadata,
	})
	if err != nil {
		status, message := SubmitStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("thread", payload.ThreadID).Msg("failed to submit turn")
		}
		utils.RespondError(w, status, message)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, "start", StartEvent{
		ThreadID:           t.Thread.ID,
		ThreadName:         t.Thread.Name,
		UserMessageID:      t.UserMessage.ID,
		AssistantMessageID: t.AssistantMessage.ID,
	}); err != nil {
		h.log.Warn().Err(err).Msg("client went away before the reply started")
	}

	for frag, err := range t.Fragments {
		if err != nil {
			_ = utils.SendSSEEvent(w, flusher, "error", ErrorEvent{Error: err.Error()})
			break
		}
		if err := utils.SendSSEEvent(w, flusher, "delta", DeltaEvent{Content: frag}); err != nil {
			h.log.Warn().Err(err).Str("reply", t.AssistantMessage.ID).Msg("client went away mid-stream")
			return
		}
	}

	_ = utils.SendSSEEvent(w, flusher, "end", EndEvent{AssistantMessageID: t.AssistantMessage.ID, Finished: true})
}

// SubmitStatus maps a Submit error to an HTTP status and client message.
func SubmitStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrThreadNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, turn.ErrCompletionUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "failed to start the turn"
	}
}
