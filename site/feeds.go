package site

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-hclog"
	"github.com/rs/cors"

	"github.com/urdh/homepage/cache"
	"github.com/urdh/homepage/contextx"
	"github.com/urdh/homepage/feeds"
)

// allowCORS lets any origin read the feeds.
var allowCORS = cors.New(cors.Options{
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{http.MethodHead, http.MethodGet},
	AllowedHeaders: []string{"*"},
})

// feedHandler serves f through memo.
func feedHandler(memo *cache.Memo, f feeds.Feed, logger hclog.Logger) http.HandlerFunc {
	cacheControl := fmt.Sprintf("s-maxage=%d, stale-while-revalidate", int64(f.TTL.Seconds()))

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := memo.Resolve(r.Context(), f.CacheKey(), f.TTL, f.Producer)
		if err != nil {
			if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
				// The client went away; the producer carries on without it.
				return
			}
			code := cache.StatusOf(err)
			logger.Warn("feed failed",
				"feed", f.Name,
				"status", code,
				"error", err,
				"request_id", contextx.RequestIDFromContext(r.Context()),
			)
			writeError(w, code, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", cacheControl)
		w.Header().Set("ETag", strongETag(body))
		_, _ = w.Write(body)
	}
}

// errorBody is the JSON document sent with every failed feed request.
type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Error: err.Error()})
}
