package site

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/felixge/httpsnoop"
)

// ETag buffers GET and HEAD responses and tags successful ones with a strong
// entity tag derived from the body. A matching If-None-Match gets 304. HEAD
// responses are only tagged by the handler itself, since their body is empty.
func ETag(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		buf := &bufferedResponse{}
		next.ServeHTTP(httpsnoop.Wrap(w, httpsnoop.Hooks{
			WriteHeader: func(httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc { return buf.WriteHeader },
			Write:       func(httpsnoop.WriteFunc) httpsnoop.WriteFunc { return buf.Write },
			ReadFrom:    func(httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc { return buf.ReadFrom },
			Flush:       func(httpsnoop.FlushFunc) httpsnoop.FlushFunc { return func() {} },
		}), r)
		buf.flush(w, r)
	})
}

type bufferedResponse struct {
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.WriteHeader(http.StatusOK)
	return b.body.Write(p)
}

func (b *bufferedResponse) ReadFrom(src io.Reader) (int64, error) {
	b.WriteHeader(http.StatusOK)
	return b.body.ReadFrom(src)
}

func (b *bufferedResponse) flush(w http.ResponseWriter, r *http.Request) {
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}

	if status == http.StatusOK {
		h := w.Header()
		tag := h.Get("ETag")
		if tag == "" && r.Method != http.MethodHead {
			tag = strongETag(b.body.Bytes())
			h.Set("ETag", tag)
		}
		if tag != "" && noneMatch(r.Header.Get("If-None-Match"), tag) {
			h.Del("Content-Type")
			h.Del("Content-Length")
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.WriteHeader(status)
	_, _ = w.Write(b.body.Bytes())
}

func strongETag(body []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
}

// noneMatch reports whether an If-None-Match header matches tag. The
// comparison is weak, as required for If-None-Match.
func noneMatch(header, tag string) bool {
	if header == "" {
		return false
	}
	tag = strings.TrimPrefix(tag, "W/")
	for candidate := range strings.SplitSeq(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}
