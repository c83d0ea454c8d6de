// Package fragment defines the pull-based text stream every task handler
// produces and the normalizer that turns completion deltas into line fragments.
//
// A Stream is consumed with range. Breaking out of the loop stops the producer,
// which closes any upstream completion stream it holds. A non-nil error is
// always the last element of a Stream.
package fragment

import (
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Stream is a lazy sequence of text fragments.
type Stream = iter.Seq2[string, error]

// Text emits each non-empty string as one fragment.
func Text(parts ...string) Stream {
	return func(yield func(string, error) bool) {
		for _, part := range parts {
			if part == "" {
				continue
			}
			if !yield(part, nil) {
				return
			}
		}
	}
}

// Concat relays each stream in order. The first error ends the whole sequence.
func Concat(streams ...Stream) Stream {
	return func(yield func(string, error) bool) {
		for _, s := range streams {
			for frag, err := range s {
				if !yield(frag, err) || err != nil {
					return
				}
			}
		}
	}
}

// Collect drains a stream, returning the fragments seen before any error.
func Collect(s Stream) ([]string, error) {
	var out []string
	for frag, err := range s {
		if err != nil {
			return out, err
		}
		out = append(out, frag)
	}
	return out, nil
}

// Normalize relays a completion stream through a Normalizer. The reader is
// closed when the stream ends or the consumer stops early.
func Normalize(reader *schema.StreamReader[*schema.Message]) Stream {
	return func(yield func(string, error) bool) {
		defer reader.Close()

		var n Normalizer
		for {
			chunk, err := reader.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield("", err)
				return
			}
			if chunk == nil || chunk.Content == "" {
				continue
			}
			for _, frag := range n.Push(chunk.Content) {
				if !yield(frag, nil) {
					return
				}
			}
		}

		if tail, ok := n.Flush(); ok {
			yield(tail, nil)
		}
	}
}

// SoftLimit is the buffer length that triggers a split attempt without a newline.
const SoftLimit = 80

// Normalizer line-buffers deltas. Complete lines are emitted with whitespace
// runs collapsed and a trailing newline; blank lines are dropped.
type Normalizer struct {
	buf strings.Builder
}

// Push appends delta and returns every line it completed.
func (n *Normalizer) Push(delta string) []string {
	n.buf.WriteString(delta)
	if !strings.Contains(n.buf.String(), "\n") && n.buf.Len() <= SoftLimit {
		return nil
	}

	parts := strings.Split(n.buf.String(), "\n")
	var out []string
	for _, part := range parts[:len(parts)-1] {
		if normalized := collapse(part); normalized != "" {
			out = append(out, normalized+"\n")
		}
	}

	rest := parts[len(parts)-1]
	n.buf.Reset()
	n.buf.WriteString(rest)
	return out
}

// Flush returns the normalized remainder, without a trailing newline.
func (n *Normalizer) Flush() (string, bool) {
	normalized := collapse(n.buf.String())
	n.buf.Reset()
	return normalized, normalized != ""
}

// Lines normalizes a complete text the same way a stream of deltas would be.
func Lines(text string) string {
	var n Normalizer
	var b strings.Builder
	for _, frag := range n.Push(text) {
		b.WriteString(frag)
	}
	if tail, ok := n.Flush(); ok {
		b.WriteString(tail)
	}
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
