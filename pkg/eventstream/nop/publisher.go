// Package nop provides the publisher used when no event stream is
// configured.
package nop

import (
	"context"

	"github.com/papercomputeco/recall/pkg/eventstream"
)

// Publisher drops every envelope.
type Publisher struct{}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish rejects nil envelopes and discards the rest.
func (*Publisher) Publish(_ context.Context, env *eventstream.Envelope) error {
	if env == nil {
		return eventstream.ErrNilEvent
	}
	return nil
}

func (*Publisher) Close() error { return nil }
