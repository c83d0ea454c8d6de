package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/model/settings"
	"github.com/zhouzirui/design-desk/backend/internal/service/agents"
	"github.com/zhouzirui/design-desk/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/design-desk/backend/internal/service/chat"
	"github.com/zhouzirui/design-desk/backend/internal/service/routing"
	"github.com/zhouzirui/design-desk/backend/internal/service/turn"
)

// scriptedModel answers title and routing calls by their system prompt and
// streams a fixed reply for everything else.
type scriptedModel struct {
	mu        sync.Mutex
	directive string
	reply     []string
	streamed  [][]*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if len(input) > 0 && strings.Contains(input[0].Content, "You name chat threads") {
		return schema.AssistantMessage("\"Centering a div\"", nil), nil
	}
	return schema.AssistantMessage(m.directive, nil), nil
}

func (m *scriptedModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.mu.Lock()
	m.streamed = append(m.streamed, input)
	m.mu.Unlock()

	msgs := make([]*schema.Message, 0, len(m.reply))
	for _, part := range m.reply {
		msgs = append(msgs, schema.AssistantMessage(part, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

type app struct {
	router  http.Handler
	threads *chatservice.Service
	model   *scriptedModel
}

func newApp(t *testing.T, seed map[string]string) *app {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	threads := chatservice.NewService()
	settingsStore := settings.NewMemoryStore(seed)
	fake := &scriptedModel{directive: "<continue_conversation/>", reply: []string{"Use flex", "box and\n", "justify-content:   center."}}

	titles, err := ai.NewService(ctx, fake, log)
	if err != nil {
		t.Fatalf("ai.NewService err: %v", err)
	}
	router, err := routing.NewRouter(ctx, fake, log)
	if err != nil {
		t.Fatalf("routing.NewRouter err: %v", err)
	}
	dispatcher := routing.NewDispatcher(agents.NewService(fake, nil, log), log)
	orchestrator := turn.NewOrchestrator(threads, settingsStore, router, dispatcher, titles, log)

	return &app{
		router: NewRouter(Deps{
			Threads:        threads,
			Settings:       settingsStore,
			Turns:          orchestrator,
			AllowedOrigins: []string{"*"},
			Logger:         log,
		}),
		threads: threads,
		model:   fake,
	}
}

func (a *app) send(t *testing.T, threadID, message string) string {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{
		"thread_id": threadID, "sender": "User", "type": "user", "message": message,
	})
	resp := httptest.NewRecorder()
	a.router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/messages/send", bytes.NewReader(payload)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	return resp.Body.String()
}

func TestFirstMessageTurnEndToEnd(t *testing.T) {
	a := newApp(t, nil)
	ctx := context.Background()
	thread, _ := a.threads.CreateThread(ctx, chat.Thread{})

	body := a.send(t, thread.ID, "How do I center a div?")
	if !strings.Contains(body, `"thread_name":"Centering a div"`) {
		t.Fatalf("start event missing title: %s", body)
	}
	if !strings.Contains(body, "event: end") {
		t.Fatalf("stream not terminated: %s", body)
	}

	messages, err := a.threads.ListMessages(ctx, thread.ID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if got := messages[1].Body; got != "Use flexbox and\njustify-content: center." {
		t.Fatalf("unexpected reply body %q", got)
	}

	// Plain chat gets the history plus the new message and no system prompt.
	streamed := a.model.streamed[0]
	if streamed[0].Role == schema.System {
		t.Fatalf("plain chat must not carry a system prompt")
	}
	if last := streamed[len(streamed)-1]; last.Content != "How do I center a div?" {
		t.Fatalf("unexpected last message %q", last.Content)
	}
}

func TestGatedDirectiveWithoutToken(t *testing.T) {
	a := newApp(t, nil)
	a.model.directive = "<review_design>http://x/img1</review_design>"
	thread, _ := a.threads.CreateThread(context.Background(), chat.Thread{})

	body := a.send(t, thread.ID, "Review http://x/img1")
	want, _ := json.Marshal(routing.FigmaDisabledMessage)
	if !strings.Contains(body, string(want)) {
		t.Fatalf("expected configuration error fragment, got %s", body)
	}
	if len(a.model.streamed) != 0 {
		t.Fatalf("no handler may run for a disabled integration")
	}
}

func TestMultipleReviewsEndToEnd(t *testing.T) {
	a := newApp(t, map[string]string{settings.KeyFigmaToken: "figd_x"})
	a.model.directive = "<review_design>http://x/img1</review_design><review_design>http://x/img2</review_design>"
	thread, _ := a.threads.CreateThread(context.Background(), chat.Thread{})

	body := a.send(t, thread.ID, "Review both")
	first := strings.Index(body, "(1 of 2)")
	second := strings.Index(body, "(2 of 2)")
	if first < 0 || second < first {
		t.Fatalf("progress fragments out of order: %s", body)
	}
	if len(a.model.streamed) != 2 {
		t.Fatalf("expected two review calls, got %d", len(a.model.streamed))
	}
}

func TestSendUnknownThread(t *testing.T) {
	a := newApp(t, nil)
	payload := []byte(`{"thread_id":"missing","sender":"User","type":"user","message":"hi"}`)

	resp := httptest.NewRecorder()
	a.router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/messages/send", bytes.NewReader(payload)))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	a := newApp(t, nil)

	resp := httptest.NewRecorder()
	a.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	a.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
