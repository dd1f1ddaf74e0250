// Package translate turns variant expressions into canonical allele identifiers
// through an external normalization service.
package translate

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/teranos/anvil/errors"
)

// Format names the syntax of a variant expression
type Format string

const (
	FormatGnomad Format = "gnomad" // CHROM-POS-REF-ALT
	FormatHGVS   Format = "hgvs"
	FormatSPDI   Format = "spdi"
	FormatBeacon Format = "beacon"
)

// Formats lists every supported format
var Formats = []Format{FormatGnomad, FormatHGVS, FormatSPDI, FormatBeacon}

// ParseFormat validates a format name (case-insensitive)
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", errors.Wrapf(errors.ErrInvalidRequest, "unknown expression format %q", s)
}

// Allele is the normalized variant returned by the service.
// Values handed out by a CachingTranslator are shared; treat them as immutable.
type Allele struct {
	ID       string          `json:"id" yaml:"id"`
	Type     string          `json:"type,omitempty" yaml:"type,omitempty"`
	Digest   string          `json:"digest,omitempty" yaml:"digest,omitempty"`
	Location json.RawMessage `json:"location,omitempty" yaml:"-"`
	State    json.RawMessage `json:"state,omitempty" yaml:"-"`
}

// Service translates a single expression. Implementations report rejected
// input as *TranslationError and transport trouble as ErrServiceUnavailable.
type Service interface {
	Translate(ctx context.Context, expression string, format Format) (*Allele, error)
}

// Factory builds one Service per worker
type Factory func() (Service, error)

// TranslationError is a deterministic rejection of an expression:
// bad reference, unparsable expression, unsupported variant.
type TranslationError struct {
	Expression string
	Format     Format
	// Message is the service's text verbatim; it keys the error histogram
	Message string
	Err     error
}

func (e *TranslationError) Error() string {
	return e.Message
}

func (e *TranslationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return errors.ErrTranslation
}

// Is lets errors.Is(err, ErrTranslation) match any TranslationError
func (e *TranslationError) Is(target error) bool {
	return target == errors.ErrTranslation
}

// NewTranslationError builds a TranslationError with the exact service message
func NewTranslationError(expression string, format Format, message string) *TranslationError {
	return &TranslationError{Expression: expression, Format: format, Message: message}
}

// IsTranslationError reports whether err is a deterministic rejection
func IsTranslationError(err error) bool {
	var te *TranslationError
	return errors.As(err, &te)
}

// CacheKey is the memoization key for an (expression, format) pair
func CacheKey(expression string, format Format) string {
	return expression + "-" + string(format)
}
