// Package feed provides the content source the collection job pulls from
// and the parsing of its raw digest into prioritized items.
package feed

import (
	"context"
	"errors"
	"fmt"

	"tidings/internal/retry"
)

// Source fetches one raw content digest per collection run.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// ProviderError is a content-provider failure, split into retryable
// (network, rate limit) and fatal (auth, malformed request) conditions for
// the retry classifier.
type ProviderError struct {
	Op        string
	Status    int
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	msg := e.Op
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify extends the default retry classifier with provider knowledge.
func Classify(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return retry.DefaultClassifier(err)
}
