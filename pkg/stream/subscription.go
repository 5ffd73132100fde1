package stream

import (
	"context"
	"io"
	"time"
)

// Subscription is one HTTP client's handle onto a Manager's broadcast.
type Subscription struct {
	id      string
	queue   chan []byte
	manager *Manager
}

// Next blocks up to 30s for the next MJPEG part. On timeout it checks ctx
// for cancellation and either loops again or exits; it returns io.EOF once
// the manager closes the subscription's queue (end-of-stream sentinel).
func (s *Subscription) Next(ctx context.Context) ([]byte, error) {
	for {
		select {
		case part, ok := <-s.queue:
			if !ok {
				return nil, io.EOF
			}
			return part, nil
		case <-time.After(subscriberGetTimeout):
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close unsubscribes from the manager. Safe to call more than once.
func (s *Subscription) Close() error {
	s.manager.unsubscribe(s.id)
	return nil
}
