package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrClosed = errors.New("progress stream closed")

// Stream is the consumer-side channel. Publish blocks while the buffer is
// full, so a slow reader slows the relay down instead of losing events.
type Stream struct {
	mu     sync.Mutex
	ch     chan Event
	last   int
	closed bool
}

func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 16
	}
	return &Stream{ch: make(chan Event, buffer)}
}

func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Publish delivers e in order. A terminal event closes the stream.
func (s *Stream) Publish(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if e.Progress < s.last {
		e.Progress = s.last
	}
	e.Progress = clamp(e.Progress)

	select {
	case s.ch <- e:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.last = e.Progress
	if e.Type.Terminal() {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Close ends the stream without a terminal event, for abandoned relays.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Source is anything that can list events after a sequence number, such as
// a workflow progress query.
type Source interface {
	Since(ctx context.Context, after int) ([]Event, error)
}

// Relay polls src and publishes new events until a terminal event has been
// forwarded. The stream is always closed on return.
func Relay(ctx context.Context, src Source, s *Stream, interval time.Duration) error {
	defer s.Close()
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := 0
	for {
		events, err := src.Since(ctx, seen)
		if err != nil {
			return fmt.Errorf("poll progress: %w", err)
		}
		for _, e := range events {
			if e.Seq <= seen {
				continue
			}
			seen = e.Seq
			if err := s.Publish(ctx, e); err != nil {
				return err
			}
			if e.Type.Terminal() {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
