package feeds

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/urdh/homepage/cache"
)

// Error is a failed call to an upstream API.
type Error struct {
	// Source names the upstream, e.g. "github".
	Source string

	// Status is the HTTP status reported to our own clients. Zero means
	// "inherit": the status of Err is used, or 500 if it has none.
	Status int

	// Msg describes what went wrong.
	Msg string

	// Body holds the response body of a failed upstream call, if any.
	Body []byte

	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode implements cache.StatusCoder.
func (e *Error) StatusCode() int {
	if e.Status >= 400 && e.Status <= 599 {
		return e.Status
	}
	if e.Err != nil {
		return cache.StatusOf(e.Err)
	}
	return http.StatusInternalServerError
}

// StripURL removes the request URL from transport errors. Upstream URLs
// carry API keys in their query string.
func StripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

// Secret holds a credential. It formats as a fixed placeholder so it can be
// logged or wrapped in errors without leaking.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// MarshalText keeps secrets out of JSON and structured logs.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Reveal returns the raw credential.
func (s Secret) Reveal() string { return string(s) }
