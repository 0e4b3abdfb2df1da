package feeds

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetch_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != UserAgent {
			t.Errorf("User-Agent = %q", ua)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, err := Fetch(t.Context(), NewHTTPClient(DefaultTimeout), "test", srv.URL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("body = %s", body)
	}
}

func TestFetch_NonSuccessCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Fetch(t.Context(), NewHTTPClient(DefaultTimeout), "test", srv.URL, nil)
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if fe.StatusCode() != http.StatusForbidden {
		t.Fatalf("status = %d", fe.StatusCode())
	}
	if !strings.Contains(string(fe.Body), "nope") {
		t.Fatalf("body = %q", fe.Body)
	}
}

func TestFetch_TransportErrorHidesURL(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := Fetch(t.Context(), NewHTTPClient(DefaultTimeout), "test", addr+"/?key=hunter2", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Fatalf("error leaks the URL: %v", err)
	}
	if !transient(err) {
		t.Fatal("connection failure not considered transient")
	}
}
