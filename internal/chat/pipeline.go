package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parroquiasbdebarinas-lang/Server/internal/metrics"
	"github.com/parroquiasbdebarinas-lang/Server/internal/protocol"
)

// HistoryAppender is the slice of the history store the pipeline needs.
// Trim enforces the retention bound after each append.
type HistoryAppender interface {
	Append(ctx context.Context, m Message) error
	Trim(ctx context.Context, keep int) error
}

// Broadcaster fans an event out to the currently admitted connections.
type Broadcaster interface {
	BroadcastAll(payload []byte) error
	BroadcastAdmins(payload []byte) error
}

// Session is the pipeline's view of a connected client: where it connects
// from, how to reach it, and how to force it off.
type Session interface {
	Addr() string
	Send(payload []byte) error
	Terminate()
}

// Scrubber replaces profane spans in text with a mask token.
type Scrubber interface {
	Scrub(text string) string
}

// Pipeline transforms an inbound chat message: ban re-check, profanity
// scrub, identity assignment, persistence, retention trim, sanitized fan-out.
type Pipeline struct {
	gate    *Gate
	filter  Scrubber
	history HistoryAppender
	bus     Broadcaster
	retain  int

	// now is swappable for tests.
	now func() time.Time
}

// NewPipeline wires a Pipeline. retain is the history retention bound; zero
// disables trimming.
func NewPipeline(gate *Gate, filter Scrubber, history HistoryAppender, bus Broadcaster, retain int) *Pipeline {
	return &Pipeline{
		gate:    gate,
		filter:  filter,
		history: history,
		bus:     bus,
		retain:  retain,
		now:     time.Now,
	}
}

// Ingest processes one inbound chat event from sender. A banned sender gets
// the rejection notice and is disconnected without anything being persisted
// or broadcast. Persistence failures are returned to the caller and nothing
// is broadcast; the sender's connection stays up.
func (p *Pipeline) Ingest(ctx context.Context, sender Session, user, text string) error {
	decision, err := p.gate.Admit(ctx, sender.Addr())
	if err != nil {
		return fmt.Errorf("pipeline: ban check: %w", err)
	}
	if !decision.Allowed {
		notice, _ := protocol.NewServerMessage(protocol.TypeBanned, protocol.BannedMsg{Reason: decision.Notice})
		_ = sender.Send(notice)
		sender.Terminate()
		return nil
	}

	msg := Message{
		ID:        uuid.New().String(),
		User:      user,
		Text:      p.filter.Scrub(text),
		IP:        sender.Addr(),
		Timestamp: p.now().UnixMilli(),
	}

	if err := p.history.Append(ctx, msg); err != nil {
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("pipeline: persist message: %w", err)
	}

	// Retention is applied after the new message is stored, oldest-first.
	if p.retain > 0 {
		if err := p.history.Trim(ctx, p.retain); err != nil {
			return fmt.Errorf("pipeline: trim history: %w", err)
		}
	}

	payload, err := protocol.NewServerMessage(protocol.TypeChatMessage, msg.Sanitized())
	if err != nil {
		return fmt.Errorf("pipeline: encode broadcast: %w", err)
	}
	if err := p.bus.BroadcastAll(payload); err != nil {
		return fmt.Errorf("pipeline: broadcast: %w", err)
	}

	metrics.MessagesTotal.WithLabelValues("chat").Inc()
	return nil
}
