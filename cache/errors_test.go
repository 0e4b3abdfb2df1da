package cache

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"plain", errors.New("x"), http.StatusInternalServerError},
		{"coded", statusError{code: http.StatusNotFound}, http.StatusNotFound},
		{"wrapped", fmt.Errorf("ctx: %w", statusError{code: http.StatusTooManyRequests}), http.StatusTooManyRequests},
		{"producer", &ProducerError{Key: "k", Err: statusError{code: http.StatusBadGateway}}, http.StatusBadGateway},
		{"producer plain", &ProducerError{Key: "k", Err: errors.New("x")}, http.StatusInternalServerError},
		{"serialization", &SerializationError{Key: "k", Err: errors.New("x")}, http.StatusInternalServerError},
		{"not an error status", statusError{code: http.StatusOK}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusOf(tc.err); got != tc.want {
				t.Fatalf("StatusOf = %d, want %d", got, tc.want)
			}
		})
	}
}
