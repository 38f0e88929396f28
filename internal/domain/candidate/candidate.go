// Package candidate defines the immutable translation candidate entering the QA gate.
package candidate

import (
	"errors"
	"time"
)

var (
	ErrSourceRequired     = errors.New("source_text is required")
	ErrTranslationMissing = errors.New("translated_text is required")
	ErrLangPairRequired   = errors.New("source_lang and target_lang are required")
	ErrSameLanguage       = errors.New("source_lang and target_lang must differ")
	ErrDomainRequired     = errors.New("domain is required")
)

// Candidate is a single translation submitted for quality assurance.
// It is immutable once created; downstream stages attach reports and
// review state under the candidate's ID rather than mutating it.
type Candidate struct {
	ID             string    `json:"id"`
	SourceText     string    `json:"source_text"`
	TranslatedText string    `json:"translated_text"`
	SourceLang     string    `json:"source_lang"`
	TargetLang     string    `json:"target_lang"`
	Domain         string    `json:"domain"`
	ContentType    string    `json:"content_type"`
	SubmittedBy    string    `json:"submitted_by"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Validate checks the candidate for structural correctness before it
// enters the pipeline. A candidate failing validation is rejected at the
// door; scoring never sees it.
func (c *Candidate) Validate() error {
	if c.SourceText == "" {
		return ErrSourceRequired
	}
	if c.TranslatedText == "" {
		return ErrTranslationMissing
	}
	if c.SourceLang == "" || c.TargetLang == "" {
		return ErrLangPairRequired
	}
	if c.SourceLang == c.TargetLang {
		return ErrSameLanguage
	}
	if c.Domain == "" {
		return ErrDomainRequired
	}
	return nil
}

// LanguagePair returns the candidate's language pair as "src>tgt",
// the canonical form used for memory filters and event payloads.
func (c *Candidate) LanguagePair() string {
	return c.SourceLang + ">" + c.TargetLang
}
