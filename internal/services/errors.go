package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrProviderUnavailable is returned when neither content provider has credentials.
	ErrProviderUnavailable = errors.New("no content provider is configured")
	// ErrQuotaExceeded marks a metered API that refused the call for quota reasons.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrSearchBlocked marks a scraping attempt that was blocked or rate limited.
	ErrSearchBlocked = errors.New("search backend blocked the request")
)

type ErrorKind int

const (
	KindUpstream ErrorKind = iota
	KindUnavailable
	KindTimeout
	KindAuth
	KindQuota
	KindParse
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindParse:
		return "parse"
	case KindValidation:
		return "validation"
	default:
		return "upstream"
	}
}

// ProviderError is a classified failure of a single provider call.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ParseError means the provider answered but the text was not a JSON object.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse model output: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError means the JSON parsed but broke the lesson contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GenerationError is terminal and carries the last failure of every provider tried.
type GenerationError struct {
	Failures map[string]error
}

func (e *GenerationError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failures[name]))
	}
	return "lesson generation failed (" + strings.Join(parts, "; ") + ")"
}

// KindOf classifies any error returned from a provider call or the parser.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	var parseErr *ParseError
	var valErr *ValidationError
	switch {
	case err == nil:
		return KindUpstream
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &pe):
		return pe.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, ErrProviderUnavailable):
		return KindUnavailable
	}
	return KindUpstream
}

// IsContentError reports whether err is a parse or validation failure, the
// two kinds that earn one same-provider retry at a lower temperature.
func IsContentError(err error) bool {
	k := KindOf(err)
	return k == KindParse || k == KindValidation
}

// classifyStatus maps an HTTP status to a provider error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindQuota
	case status == 408 || status == 504:
		return KindTimeout
	}
	return KindUpstream
}
