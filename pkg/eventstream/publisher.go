package eventstream

import (
	"context"
	"errors"
)

// ErrNilEvent is returned by Publish when env is nil.
var ErrNilEvent = errors.New("nil event")

// Publisher delivers envelopes to a stream. Publish must not be called
// after Close.
type Publisher interface {
	Publish(ctx context.Context, env *Envelope) error
	Close() error
}
