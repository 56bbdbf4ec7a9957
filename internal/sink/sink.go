// Package sink delivers formatted messages to the outbound channel.
package sink

import "context"

// Message is one outbound delivery. Image is optional.
type Message struct {
	Text  string
	Image []byte
}

// Sink sends a message to the configured destination. Errors are shaped for
// the retry classifier: rate limits carry a wait hint, transport hiccups are
// retryable, auth and malformed requests are permanent.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}
