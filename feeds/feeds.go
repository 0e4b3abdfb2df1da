// Package feeds binds the site's upstream API integrations to the cache.
//
// Each integration lives in its own subpackage and exposes a client that
// satisfies cache.Producer. A Feed pairs such a producer with the route it
// is served on and how long its result stays fresh.
package feeds

import (
	"time"

	"github.com/urdh/homepage/cache"
)

// Feed describes one cached JSON document served by the site.
type Feed struct {
	// Name identifies the feed in logs and in RPC requests.
	Name string

	// Path is the HTTP route the feed is served on.
	Path string

	// Key is the cache key. Defaults to Name.
	Key string

	// TTL is how long a produced value is served before the producer runs
	// again.
	TTL time.Duration

	Producer cache.Producer
}

// CacheKey returns the key the feed is cached under.
func (f Feed) CacheKey() string {
	if f.Key != "" {
		return f.Key
	}
	return f.Name
}

const (
	BooksTTL   = 24 * time.Hour
	CommitsTTL = 5 * time.Minute
	TracksTTL  = 150 * time.Second
)

// Books returns the "currently reading" feed.
func Books(p cache.Producer) Feed {
	return Feed{Name: "books", Path: "/currently-reading.json", TTL: BooksTTL, Producer: p}
}

// Commits returns the "recent commits" feed.
func Commits(p cache.Producer) Feed {
	return Feed{Name: "commits", Path: "/recent-commits.json", TTL: CommitsTTL, Producer: p}
}

// Tracks returns the "recently played" feed.
func Tracks(p cache.Producer) Feed {
	return Feed{Name: "tracks", Path: "/recent-tracks.json", TTL: TracksTTL, Producer: p}
}

// Set is an ordered collection of feeds with lookup by name.
type Set []Feed

// Lookup returns the feed called name.
func (s Set) Lookup(name string) (Feed, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Feed{}, false
}

// Names returns the feed names in order.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}
