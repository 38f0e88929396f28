// Package terminology defines the port for the external medical
// terminology service consumed by the accuracy scorer.
package terminology

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the terminology service cannot be
// reached. The scorer treats it as a degrade-not-abort condition.
var ErrUnavailable = errors.New("terminology service unavailable")

// Lookup resolves domain terms and their expected translations.
type Lookup interface {
	// ExtractTerms returns the domain terms found in text.
	ExtractTerms(ctx context.Context, text, lang string) ([]string, error)

	// LookupTerm returns the expected translation of a term, or an empty
	// string when the term has no entry for the pair.
	LookupTerm(ctx context.Context, term, sourceLang, targetLang string) (string, error)
}
