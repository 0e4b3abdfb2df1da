package feeds

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"

	"github.com/urdh/homepage/cache"
)

func TestError_StatusCode(t *testing.T) {
	upstream := &Error{Source: "goodreads", Status: http.StatusNotFound, Msg: "goodreads returned 404 Not Found"}

	if got := (&Error{Msg: "x"}).StatusCode(); got != http.StatusInternalServerError {
		t.Fatalf("bare error: got %d, want 500", got)
	}
	if got := (&Error{Err: upstream}).StatusCode(); got != http.StatusNotFound {
		t.Fatalf("inherited status: got %d, want 404", got)
	}
	if got := (&Error{Status: http.StatusInternalServerError, Err: upstream}).StatusCode(); got != http.StatusInternalServerError {
		t.Fatalf("overridden status: got %d, want 500", got)
	}
	if got := cache.StatusOf(fmt.Errorf("wrapped: %w", upstream)); got != http.StatusNotFound {
		t.Fatalf("StatusOf: got %d, want 404", got)
	}
}

func TestError_Message(t *testing.T) {
	inner := errors.New("connection refused")
	e := &Error{Source: "github", Msg: "could not query GitHub API", Err: inner}
	if e.Error() != "could not query GitHub API: connection refused" {
		t.Fatalf("message = %q", e.Error())
	}
	if !errors.Is(e, inner) {
		t.Fatal("Error does not unwrap")
	}
}

func TestStripURL(t *testing.T) {
	inner := errors.New("dial tcp: refused")
	err := &url.Error{Op: "Get", URL: "https://example.com/?key=hunter2", Err: inner}

	got := StripURL(fmt.Errorf("fetch: %w", err))
	if got != inner {
		t.Fatalf("got %v, want inner error", got)
	}
	if strings.Contains(got.Error(), "hunter2") {
		t.Fatal("secret leaked")
	}
	if plain := errors.New("x"); StripURL(plain) != plain {
		t.Fatal("StripURL changed an unrelated error")
	}
}

func TestSecret_NeverFormats(t *testing.T) {
	s := Secret("hunter2")

	var sb strings.Builder
	logger := hclog.New(&hclog.LoggerOptions{Output: &sb, JSONFormat: true})
	logger.Info("configured", "key", s)
	fmt.Fprintf(&sb, "%v %s %#v %+v", s, s, s, s)
	raw, _ := json.Marshal(map[string]Secret{"key": s})
	sb.Write(raw)

	if strings.Contains(sb.String(), "hunter2") {
		t.Fatalf("secret leaked: %s", sb.String())
	}
	if s.Reveal() != "hunter2" {
		t.Fatal("Reveal lost the value")
	}
}
