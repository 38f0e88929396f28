// Package embedding defines the port for the external embedding model
// used by the translation memory index.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the embedding provider cannot be reached.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Provider turns text into a fixed-length vector. Calls are I/O-bound and
// potentially slow; callers bound them with contexts and cache results.
type Provider interface {
	Embed(ctx context.Context, text, domain string) ([]float32, error)
}
