package cache

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrProducerPanic is wrapped by the ProducerError returned when a producer
// panics instead of returning.
var ErrProducerPanic = errors.New("cache: producer panicked")

// StatusCoder is implemented by errors that know which HTTP status they should
// be reported with.
type StatusCoder interface {
	error
	StatusCode() int
}

// StatusOf returns the HTTP status for err: the status of the first
// StatusCoder in its chain, or 500 when there is none.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code <= 599 {
			return code
		}
	}
	return http.StatusInternalServerError
}

// ProducerError carries an error returned by a producer, unchanged.
type ProducerError struct {
	Key string
	Err error
}

func (e *ProducerError) Error() string { return e.Err.Error() }

func (e *ProducerError) Unwrap() error { return e.Err }

// StatusCode forwards the status of the wrapped error.
func (e *ProducerError) StatusCode() int { return StatusOf(e.Err) }

// SerializationError reports that a producer succeeded but its value could not
// be encoded to JSON.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("could not serialize value for %q: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) StatusCode() int { return http.StatusInternalServerError }
