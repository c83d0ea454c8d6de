// Package turn drives one conversation turn: title, persistence, routing,
// dispatch and the final write of the assistant reply.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/metrics"
	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/model/settings"
	"github.com/zhouzirui/design-desk/backend/internal/service/ai"
	"github.com/zhouzirui/design-desk/backend/internal/service/fragment"
)

var (
	// ErrCompletionUnavailable is returned when no completion service is wired.
	ErrCompletionUnavailable = errors.New("completion service is not configured")
	// ErrInterrupted is recorded when the consumer stops reading mid-turn.
	ErrInterrupted = errors.New("response stream was interrupted")
)

// Classifier produces the raw routing directive for a history.
type Classifier interface {
	Classify(ctx context.Context, history []chat.Message, caps settings.Capabilities) string
}

// Dispatcher turns a directive into the reply fragments.
type Dispatcher interface {
	Dispatch(ctx context.Context, directive, userMessage string, history []chat.Message, caps settings.Capabilities) fragment.Stream
}

// Titler names a thread after its first message.
type Titler interface {
	GenerateTitle(ctx context.Context, message string) (string, error)
}

// Request is one inbound user message.
type Request struct {
	ThreadID string
	Sender   string
	Kind     string
	Body     string
	Metadata map[string]any
}

// Turn is a submitted turn. AssistantMessage is the empty placeholder; its
// body is written once Fragments has been drained or abandoned.
type Turn struct {
	Thread           chat.Thread
	UserMessage      chat.Message
	AssistantMessage chat.Message
	Fragments        fragment.Stream
}

// Orchestrator runs turns against a message store.
type Orchestrator struct {
	store      chat.Store
	settings   settings.Store
	classifier Classifier
	dispatcher Dispatcher
	titler     Titler
	locks      *threadLocks
	log        zerolog.Logger
}

// NewOrchestrator wires a turn orchestrator. classifier and dispatcher may be
// nil when no completion service is configured; Submit then fails with
// ErrCompletionUnavailable.
func NewOrchestrator(store chat.Store, settingsStore settings.Store, classifier Classifier, dispatcher Dispatcher, titler Titler, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		settings:   settingsStore,
		classifier: classifier,
		dispatcher: dispatcher,
		titler:     titler,
		locks:      newThreadLocks(),
		log:        logger.With().Str("component", "turn").Logger(),
	}
}

// Submit persists the user message and the reply placeholder and returns the
// lazy reply stream. Lookup failures are returned before anything is written.
//
// Submissions to one thread are serialised up to the history snapshot, so the
// first-message title check and message order cannot interleave. Streaming
// happens outside that region.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Turn, error) {
	if o.classifier == nil || o.dispatcher == nil {
		return nil, ErrCompletionUnavailable
	}
	started := time.Now()

	unlock := o.locks.lock(req.ThreadID)
	defer unlock()

	thread, err := o.store.GetThread(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}

	count, err := o.store.CountMessages(ctx, thread.ID)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if count == 0 {
		thread, err = o.retitle(ctx, thread, req.Body)
		if err != nil {
			return nil, err
		}
	}

	user, err := o.store.CreateMessage(ctx, chat.Message{
		ThreadID: thread.ID,
		Sender:   req.Sender,
		Kind:     req.Kind,
		Body:     req.Body,
		Metadata: req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	placeholder, err := o.store.CreateMessage(ctx, chat.Message{
		ThreadID: thread.ID,
		Sender:   chat.AssistantSender,
		Kind:     chat.AssistantKind,
	})
	if err != nil {
		return nil, fmt.Errorf("save reply placeholder: %w", err)
	}

	history, err := o.store.ListMessages(ctx, thread.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	caps, err := settings.LoadCapabilities(ctx, o.settings)
	if err != nil {
		o.log.Warn().Err(err).Msg("failed to read capabilities, integrations disabled for this turn")
		caps = settings.Capabilities{}
	}

	o.log.Info().
		Str("thread", thread.ID).
		Str("user_message", user.ID).
		Str("reply", placeholder.ID).
		Int("history", len(history)).
		Msg("turn submitted")

	return &Turn{
		Thread:           thread,
		UserMessage:      user,
		AssistantMessage: placeholder,
		Fragments:        o.reply(ctx, placeholder, req.Body, history, caps, started),
	}, nil
}

func (o *Orchestrator) retitle(ctx context.Context, thread chat.Thread, body string) (chat.Thread, error) {
	title := ""
	if o.titler != nil {
		generated, err := o.titler.GenerateTitle(ctx, body)
		if err != nil {
			o.log.Warn().Err(err).Str("thread", thread.ID).Msg("title generation failed, using message text")
		}
		title = generated
	}
	if title == "" {
		title = ai.FallbackTitle(body)
	}

	thread.Name = title
	updated, err := o.store.UpdateThread(ctx, thread)
	if err != nil {
		return chat.Thread{}, fmt.Errorf("rename thread: %w", err)
	}
	return updated, nil
}

// reply routes, dispatches and accumulates. The placeholder is always written
// back, whether the stream completes, fails or is abandoned by the consumer.
func (o *Orchestrator) reply(ctx context.Context, placeholder chat.Message, userMessage string, history []chat.Message, caps settings.Capabilities, started time.Time) fragment.Stream {
	return func(yield func(string, error) bool) {
		var (
			body    strings.Builder
			failure error
		)
		defer func() {
			o.finish(ctx, placeholder, body.String(), failure, started)
		}()

		directive := o.classifier.Classify(ctx, history, caps)
		// A classification cut short by cancellation is not a directive.
		if err := ctx.Err(); err != nil {
			failure = err
			return
		}

		for frag, err := range o.dispatcher.Dispatch(ctx, directive, userMessage, history, caps) {
			if err != nil {
				failure = err
				break
			}
			body.WriteString(frag)
			metrics.FragmentsTotal.Inc()
			if !yield(frag, nil) {
				failure = ErrInterrupted
				return
			}
		}

		if failure != nil && ctx.Err() == nil {
			yield("\nError occurred: "+failure.Error(), nil)
		}
	}
}

func (o *Orchestrator) finish(ctx context.Context, reply chat.Message, body string, failure error, started time.Time) {
	outcome := "completed"
	reply.Body = body
	if failure != nil {
		outcome = "failed"
		if errors.Is(failure, ErrInterrupted) || errors.Is(failure, context.Canceled) || errors.Is(failure, context.DeadlineExceeded) {
			outcome = "cancelled"
		}
		if strings.TrimSpace(body) == "" {
			reply.Body = "Error: " + failure.Error()
		}
		reply.Metadata = chat.MergeMetadata(reply.Metadata, map[string]any{
			chat.MetadataErrorKey: failure.Error(),
		})
	}

	// The request context is usually gone by now when the client disconnected.
	if _, err := o.store.UpdateMessage(context.WithoutCancel(ctx), reply); err != nil {
		o.log.Error().Err(err).Str("reply", reply.ID).Msg("failed to persist assistant reply")
	}

	elapsed := time.Since(started)
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	metrics.TurnDuration.Observe(elapsed.Seconds())

	event := o.log.Info()
	if failure != nil {
		event = o.log.Warn().Err(failure)
	}
	event.
		Str("thread", reply.ThreadID).
		Str("reply", reply.ID).
		Str("outcome", outcome).
		Int("length", len(reply.Body)).
		Dur("elapsed", elapsed).
		Msg("turn finished")
}
