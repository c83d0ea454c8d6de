package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/metrics"
	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/model/settings"
	"github.com/zhouzirui/design-desk/backend/internal/service/fragment"
)

// Handlers is the set of task handlers a directive can select.
type Handlers interface {
	ExtractImages(ctx context.Context, designURL string) fragment.Stream
	ReviewDesign(ctx context.Context, imageURL string, history []chat.Message) fragment.Stream
	ReviewFrame(ctx context.Context, frameURL string, history []chat.Message) fragment.Stream
	ReviewTone(ctx context.Context, imageURL string, history []chat.Message) fragment.Stream
	Clarify(ctx context.Context, history []chat.Message) fragment.Stream
	ActivePRs(ctx context.Context) fragment.Stream
	Chat(ctx context.Context, history []chat.Message, userMessage string) fragment.Stream
}

// Action is the rule a directive resolved to.
type Action string

const (
	ActionExtract   Action = "extract_images"
	ActionClarify   Action = "clarify"
	ActionReview    Action = "review_design"
	ActionTone      Action = "tone_review"
	ActionActivePRs Action = "active_prs"
	ActionChat      Action = "chat"
	ActionEcho      Action = "echo"
)

// Fixed fragments for disabled integrations.
const (
	FigmaDisabledMessage    = "Error: the Figma integration is not configured. Add a Figma access token in settings to extract or review designs."
	CodeHostDisabledMessage = "Error: the GitHub integration is not configured. Add a GitHub token in settings to look up pull requests."
)

// Resolve applies the rules in priority order; the first match wins.
func Resolve(d Directive) Action {
	switch {
	case d.Has(ExtractImages):
		return ActionExtract
	case d.Has(MoreInfo, FollowUp):
		return ActionClarify
	case d.Has(ReviewDesign, ReviewDesignFrame):
		return ActionReview
	case d.Has(ToneReview):
		return ActionTone
	case d.Has(ActivePRs):
		return ActionActivePRs
	case d.Has(ContinueConversation), d.Blank():
		return ActionChat
	default:
		return ActionEcho
	}
}

// Dispatcher relays the output of the handler a directive selects.
type Dispatcher struct {
	handlers Handlers
	log      zerolog.Logger
}

// NewDispatcher creates a dispatcher over handlers.
func NewDispatcher(handlers Handlers, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: handlers,
		log:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch selects one handler for directive and relays its fragments. Handler
// failures become inline error fragments; only cancellation of ctx ends the
// stream with an error.
func (d *Dispatcher) Dispatch(ctx context.Context, directive, userMessage string, history []chat.Message, caps settings.Capabilities) fragment.Stream {
	return func(yield func(string, error) bool) {
		parsed := ParseDirective(directive)
		action := Resolve(parsed)
		metrics.DirectivesTotal.WithLabelValues(string(action)).Inc()
		d.log.Info().Str("action", string(action)).Int("tags", len(parsed.Tags)).Msg("dispatching directive")

		for frag, err := range d.plan(ctx, action, parsed, userMessage, history, caps) {
			if !yield(frag, err) || err != nil {
				return
			}
		}
	}
}

func (d *Dispatcher) plan(ctx context.Context, action Action, parsed Directive, userMessage string, history []chat.Message, caps settings.Capabilities) fragment.Stream {
	switch action {
	case ActionExtract:
		if !caps.Figma {
			return fragment.Text(FigmaDisabledMessage)
		}
		// Later extraction tags of the same turn are ignored.
		first := parsed.All(ExtractImages)[0]
		return d.guard(ctx, "Figma image extraction", 1, 1, d.handlers.ExtractImages(ctx, first.Arg))

	case ActionClarify:
		return d.guard(ctx, "clarification", 1, 1, d.handlers.Clarify(ctx, history))

	case ActionReview:
		if !caps.Figma {
			return fragment.Text(FigmaDisabledMessage)
		}
		return d.each(ctx, parsed.All(ReviewDesign, ReviewDesignFrame), "> Reviewing %s (%d of %d)...\n\n", func(tag Tag) (string, fragment.Stream) {
			if tag.Kind == ReviewDesignFrame {
				return "frame review", d.handlers.ReviewFrame(ctx, tag.Arg, history)
			}
			return "design review", d.handlers.ReviewDesign(ctx, tag.Arg, history)
		})

	case ActionTone:
		if !caps.Figma {
			return fragment.Text(FigmaDisabledMessage)
		}
		return d.each(ctx, parsed.All(ToneReview), "> Reviewing copy in %s (%d of %d)...\n\n", func(tag Tag) (string, fragment.Stream) {
			return "tone review", d.handlers.ReviewTone(ctx, tag.Arg, history)
		})

	case ActionActivePRs:
		if !caps.CodeHost {
			return fragment.Text(CodeHostDisabledMessage)
		}
		return d.guard(ctx, "pull request lookup", 1, 1, d.handlers.ActivePRs(ctx))

	case ActionChat:
		return d.guard(ctx, "chat", 1, 1, d.handlers.Chat(ctx, history, userMessage))

	default:
		return fragment.Text(parsed.Raw)
	}
}

// each runs one handler per tag, strictly one after another. With more than
// one tag each run is preceded by a numbered progress fragment.
func (d *Dispatcher) each(ctx context.Context, tags []Tag, progress string, start func(Tag) (string, fragment.Stream)) fragment.Stream {
	return func(yield func(string, error) bool) {
		total := len(tags)
		for i, tag := range tags {
			if total > 1 && !yield(fmt.Sprintf(progress, tag.Arg, i+1, total), nil) {
				return
			}
			name, stream := start(tag)
			for frag, err := range d.guard(ctx, name, i+1, total, stream) {
				if !yield(frag, err) || err != nil {
					return
				}
			}
		}
	}
}

// guard turns a handler failure into one descriptive fragment so siblings and
// the outer stream carry on.
func (d *Dispatcher) guard(ctx context.Context, name string, attempt, total int, s fragment.Stream) fragment.Stream {
	return func(yield func(string, error) bool) {
		for frag, err := range s {
			if err == nil {
				if !yield(frag, nil) {
					return
				}
				continue
			}

			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				metrics.HandlerRunsTotal.WithLabelValues(name, "cancelled").Inc()
				yield("", err)
				return
			}

			metrics.HandlerRunsTotal.WithLabelValues(name, "failed").Inc()
			d.log.Error().Err(err).Str("handler", name).Int("attempt", attempt).Int("of", total).Msg("handler failed")
			yield(FailureMessage(name, attempt, total, err), nil)
			return
		}
		metrics.HandlerRunsTotal.WithLabelValues(name, "ok").Inc()
	}
}

// FailureMessage formats a handler error for the output stream.
func FailureMessage(name string, attempt, total int, err error) string {
	return fmt.Sprintf("\n\nError in %s (attempt %d of %d): %v\n\n", name, attempt, total, err)
}
