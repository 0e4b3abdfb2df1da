package site

import (
	"io"
	"net/http"

	"github.com/felixge/httpsnoop"
)

// ErrorPages replaces the body of responses whose status has a page in
// pages, provided the handler wrote no body of its own. Responses that
// already carry a body, such as the JSON errors of the feeds, pass through.
func ErrorPages(pages map[int]Page) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ew := &errorPageWriter{w: w, pages: pages}
			next.ServeHTTP(httpsnoop.Wrap(w, httpsnoop.Hooks{
				WriteHeader: func(httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc { return ew.WriteHeader },
				Write:       func(httpsnoop.WriteFunc) httpsnoop.WriteFunc { return ew.Write },
				ReadFrom:    func(httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc { return ew.ReadFrom },
				Flush:       func(httpsnoop.FlushFunc) httpsnoop.FlushFunc { return ew.Flush },
			}), r)
			ew.finish()
		})
	}
}

// errorPageWriter holds back a status that has a page until it knows
// whether a body follows.
type errorPageWriter struct {
	w           http.ResponseWriter
	pages       map[int]Page
	pending     int
	wroteHeader bool
}

func (e *errorPageWriter) WriteHeader(code int) {
	if e.wroteHeader || e.pending != 0 {
		return
	}
	if _, ok := e.pages[code]; ok {
		e.pending = code
		return
	}
	e.wroteHeader = true
	e.w.WriteHeader(code)
}

func (e *errorPageWriter) Write(b []byte) (int, error) {
	if len(b) == 0 && e.pending != 0 {
		return 0, nil
	}
	e.commit()
	return e.w.Write(b)
}

func (e *errorPageWriter) ReadFrom(src io.Reader) (int64, error) {
	return io.Copy(writerFunc(e.Write), src)
}

func (e *errorPageWriter) Flush() {
	e.commit()
	if f, ok := e.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (e *errorPageWriter) commit() {
	if e.pending != 0 {
		e.w.WriteHeader(e.pending)
		e.pending = 0
	}
	e.wroteHeader = true
}

// finish writes the page for a held-back status that got no body.
func (e *errorPageWriter) finish() {
	if e.pending == 0 {
		return
	}
	p := e.pages[e.pending]
	e.w.Header().Set("Content-Type", p.ContentType)
	e.w.Header().Del("Content-Length")
	e.w.WriteHeader(e.pending)
	_, _ = e.w.Write(p.Body)
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) { return f(b) }
