// Package lastfm fetches the tracks a Last.fm user played most recently.
package lastfm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/urdh/homepage/feeds"
)

const (
	DefaultUser    = "TinyGuy"
	DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

	// MaxTracks is how many tracks RecentTracks returns at most.
	MaxTracks = 5
)

// Track is one scrobble. A track that is playing right now is dated with the
// time it was fetched.
type Track struct {
	Artist string    `json:"artist"`
	Title  string    `json:"title"`
	URL    string    `json:"url"`
	Date   time.Time `json:"date"`
}

// APIError is an error payload returned by Last.fm.
type APIError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithUser selects whose scrobbles are read.
func WithUser(user string) Option { return func(c *Client) { c.user = user } }

// WithHTTPClient replaces the pooled default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithGuard wraps every upstream request in g.
func WithGuard(g *feeds.Guard) Option { return func(c *Client) { c.guard = g } }

// WithLogger sets the client's logger.
func WithLogger(l hclog.Logger) Option { return func(c *Client) { c.logger = l } }

// Client reads recent tracks from the Last.fm API.
type Client struct {
	baseURL string
	user    string
	apiKey  feeds.Secret
	http    *http.Client
	guard   *feeds.Guard
	logger  hclog.Logger
	nowFunc func() time.Time
}

// New creates a Client authenticating with apiKey.
func New(apiKey feeds.Secret, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		user:    DefaultUser,
		apiKey:  apiKey,
		logger:  hclog.NewNullLogger(),
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = feeds.NewHTTPClient(feeds.DefaultTimeout)
	}
	return c
}

// Produce implements cache.Producer.
func (c *Client) Produce(ctx context.Context) (any, error) {
	return c.RecentTracks(ctx)
}

type recentTracksResponse struct {
	RecentTracks struct {
		// A single track is sent as an object rather than an array.
		Track json.RawMessage `json:"track"`
	} `json:"recenttracks"`
}

type rawTrack struct {
	Artist struct {
		Text string `json:"#text"`
	} `json:"artist"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Date *struct {
		UTS string `json:"uts"`
	} `json:"date"`
}

// RecentTracks returns the user's most recent tracks, newest first.
func (c *Client) RecentTracks(ctx context.Context) ([]Track, error) {
	q := url.Values{}
	q.Set("method", "user.getrecenttracks")
	q.Set("user", c.user)
	q.Set("api_key", c.apiKey.Reveal())
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(MaxTracks))

	body, err := feeds.Call(ctx, c.guard, func(ctx context.Context) ([]byte, error) {
		return feeds.Fetch(ctx, c.http, "lastfm", c.baseURL+"?"+q.Encode(), http.Header{"Accept": {"application/json"}})
	})
	if err != nil {
		var fe *feeds.Error
		if errors.As(err, &fe) {
			if apiErr := parseAPIError(fe.Body); apiErr != nil {
				return nil, wrap(apiErr)
			}
		}
		return nil, wrap(err)
	}

	// Last.fm also reports errors with a 200.
	if apiErr := parseAPIError(body); apiErr != nil {
		return nil, wrap(apiErr)
	}

	var resp recentTracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, wrap(fmt.Errorf("could not decode response: %w", err))
	}

	raw, err := decodeTracks(resp.RecentTracks.Track)
	if err != nil {
		return nil, wrap(err)
	}

	now := c.nowFunc().UTC().Truncate(time.Second)
	tracks := make([]Track, 0, MaxTracks)
	for _, rt := range raw {
		if len(tracks) == MaxTracks {
			break
		}
		date := now
		if rt.Date != nil {
			uts, err := strconv.ParseInt(rt.Date.UTS, 10, 64)
			if err != nil {
				c.logger.Debug("skipping track with bad timestamp", "track", rt.Name, "uts", rt.Date.UTS)
				continue
			}
			date = time.Unix(uts, 0).UTC()
		}
		tracks = append(tracks, Track{
			Artist: rt.Artist.Text,
			Title:  rt.Name,
			URL:    rt.URL,
			Date:   date,
		})
	}
	return tracks, nil
}

func decodeTracks(raw json.RawMessage) ([]rawTrack, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		var one rawTrack
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("could not decode track: %w", err)
		}
		return []rawTrack{one}, nil
	}
	var many []rawTrack
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("could not decode tracks: %w", err)
	}
	return many, nil
}

func parseAPIError(body []byte) *APIError {
	var e APIError
	if json.Unmarshal(body, &e) != nil || e.Code == 0 {
		return nil
	}
	return &e
}

func wrap(err error) error {
	return &feeds.Error{
		Source: "lastfm",
		Status: http.StatusInternalServerError,
		Msg:    "could not query last.fm",
		Err:    err,
	}
}
