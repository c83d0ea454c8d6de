package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/handler/stream"
	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/service/turn"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	maxFrameBytes = 1 << 20
	// queued inbound messages while a turn is streaming
	inboundBuffer = 16
)

// Handler runs turns over a WebSocket bound to one thread.
type Handler struct {
	turns    stream.Submitter
	threads  chat.Store
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New creates a WebSocket handler. Origins follow the CORS allow list.
func New(turns stream.Submitter, threads chat.Store, allowedOrigins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		turns:   turns,
		threads: threads,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logger.With().Str("component", "ws_handler").Logger(),
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{threadID}", h.handleWebSocket)
}

// InboundFrame is a client frame. Only "message" frames run a turn.
type InboundFrame struct {
	Type     string         `json:"type"`
	Sender   string         `json:"sender"`
	Kind     string         `json:"message_type"`
	Body     string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

// OutboundFrame is a server frame: connected, start, delta, end or error.
type OutboundFrame struct {
	Type      string `json:"type"`
	ThreadID  string `json:"thread_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	if _, err := h.threads.GetThread(r.Context(), threadID); err != nil {
		if errors.Is(err, chat.ErrThreadNotFound) {
			http.Error(w, "thread not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("thread", threadID).Msg("failed to look up thread")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.With().Str("thread", threadID).Logger()
	log.Info().Msg("websocket connected")

	// Cancelled when the socket closes, which aborts the turn in flight.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	inbound := make(chan InboundFrame, inboundBuffer)
	go h.readLoop(ctx, cancel, conn, inbound, log)
	go h.pingLoop(ctx, conn)

	h.write(conn, OutboundFrame{Type: "connected", ThreadID: threadID}, log)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("websocket closed")
			return
		case frame, ok := <-inbound:
			if !ok {
				return
			}
			h.runTurn(ctx, conn, threadID, frame, log)
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, inbound chan<- InboundFrame, log zerolog.Logger) {
	defer cancel()
	defer close(inbound)

	for {
		var frame InboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				log.Warn().Err(err).Msg("dropping malformed frame")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		select {
		case inbound <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) runTurn(ctx context.Context, conn *websocket.Conn, threadID string, frame InboundFrame, log zerolog.Logger) {
	if frame.Type != "message" {
		h.sendError(conn, threadID, "unsupported frame type "+frame.Type, log)
		return
	}
	if strings.TrimSpace(frame.Body) == "" {
		h.sendError(conn, threadID, "message is required", log)
		return
	}

	sender := frame.Sender
	if sender == "" {
		sender = "User"
	}
	kind := frame.Kind
	if kind == "" {
		kind = "user"
	}

	t, err := h.turns.Submit(ctx, turn.Request{
		ThreadID: threadID,
		Sender:   sender,
		Kind:     kind,
		Body:     frame.Body,
		Metadata: frame.Metadata,
	})
	if err != nil {
		_, message := stream.SubmitStatus(err)
		h.sendError(conn, threadID, message, log)
		return
	}

	if !h.write(conn, OutboundFrame{Type: "start", ThreadID: threadID, Data: stream.StartEvent{
		ThreadID:           t.Thread.ID,
		ThreadName:         t.Thread.Name,
		UserMessageID:      t.UserMessage.ID,
		AssistantMessageID: t.AssistantMessage.ID,
	}}, log) {
		return
	}

	for frag, err := range t.Fragments {
		if err != nil {
			h.sendError(conn, threadID, err.Error(), log)
			break
		}
		if !h.write(conn, OutboundFrame{Type: "delta", ThreadID: threadID, Data: stream.DeltaEvent{Content: frag}}, log) {
			return
		}
	}

	h.write(conn, OutboundFrame{Type: "end", ThreadID: threadID, Data: stream.EndEvent{
		AssistantMessageID: t.AssistantMessage.ID,
		Finished:           true,
	}}, log)
}

// write sends one frame and reports whether the connection is still usable.
func (h *Handler) write(conn *websocket.Conn, frame OutboundFrame, log zerolog.Logger) bool {
	frame.Timestamp = time.Now().Unix()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		log.Warn().Err(err).Str("frame", frame.Type).Msg("write failed")
		return false
	}
	return true
}

func (h *Handler) sendError(conn *websocket.Conn, threadID, message string, log zerolog.Logger) {
	h.write(conn, OutboundFrame{Type: "error", ThreadID: threadID, Data: stream.ErrorEvent{Error: message}}, log)
}

// pingLoop keeps the read deadline alive. WriteControl may run alongside the
// frame writer.
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func originChecker(allowedOrigins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowedOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
