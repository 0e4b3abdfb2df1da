// Package goodreads fetches the books a Goodreads user is currently reading.
package goodreads

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/hashicorp/go-hclog"

	"github.com/urdh/homepage/feeds"
)

const (
	DefaultUser    = "27549920"
	DefaultBaseURL = "https://www.goodreads.com"

	// BookURLPrefix is joined with a book id to form its public page.
	BookURLPrefix = "https://www.goodreads.com/book/show/"
)

// currentlyReading selects the review of every "currently reading" status
// update.
const currentlyReading = `//update[@type='readstatus']/object/read_status[status='currently-reading']/review`

// Book is one book on the currently-reading shelf.
type Book struct {
	Title   string    `json:"title"`
	Authors []string  `json:"authors"`
	URL     string    `json:"url"`
	Date    Timestamp `json:"date"`
}

// timestampLayout is RFC 3339 with a numeric offset even for UTC.
const timestampLayout = "2006-01-02T15:04:05.999999999-07:00"

// Timestamp is a review time that keeps the offset Goodreads reported. A UTC
// time is encoded as "+00:00", never "Z".
type Timestamp struct {
	time.Time
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(timestampLayout) + `"`), nil
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") } }

// WithUser selects whose updates are read.
func WithUser(user string) Option { return func(c *Client) { c.user = user } }

// WithHTTPClient replaces the pooled default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithGuard wraps every upstream request in g.
func WithGuard(g *feeds.Guard) Option { return func(c *Client) { c.guard = g } }

// WithLogger sets the client's logger.
func WithLogger(l hclog.Logger) Option { return func(c *Client) { c.logger = l } }

// Client reads a user's profile from the Goodreads XML API.
type Client struct {
	baseURL string
	user    string
	apiKey  feeds.Secret
	http    *http.Client
	guard   *feeds.Guard
	logger  hclog.Logger
}

// New creates a Client authenticating with apiKey.
func New(apiKey feeds.Secret, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		user:    DefaultUser,
		apiKey:  apiKey,
		logger:  hclog.NewNullLogger(),
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
	return c.CurrentlyReading(ctx)
}

// CurrentlyReading returns the books in the user's recent "currently
// reading" updates. An upstream error status is passed on as is.
func (c *Client) CurrentlyReading(ctx context.Context) ([]Book, error) {
	u := c.baseURL + "/user/show/" + url.PathEscape(c.user) + ".xml?" + url.Values{"key": {c.apiKey.Reveal()}}.Encode()

	body, err := feeds.Call(ctx, c.guard, func(ctx context.Context) ([]byte, error) {
		return feeds.Fetch(ctx, c.http, "goodreads", u, http.Header{"Accept": {"application/xml"}})
	})
	if err != nil {
		return nil, &feeds.Error{Source: "goodreads", Err: err}
	}
	return c.parse(body)
}

func (c *Client) parse(body []byte) ([]Book, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &feeds.Error{Source: "goodreads", Status: http.StatusInternalServerError, Msg: "could not parse XML", Err: err}
	}
	reviews, err := xmlquery.QueryAll(doc, currentlyReading)
	if err != nil {
		return nil, &feeds.Error{Source: "goodreads", Status: http.StatusInternalServerError, Msg: "XPath query failed", Err: err}
	}

	books := make([]Book, 0, len(reviews))
	for _, review := range reviews {
		book, ok := convertReview(review)
		if !ok {
			c.logger.Debug("skipping incomplete review")
			continue
		}
		books = append(books, book)
	}
	return books, nil
}

// convertReview reads a review element. It reports false when the title,
// book id or creation time is missing.
func convertReview(review *xmlquery.Node) (Book, bool) {
	book := review.SelectElement("book")
	if book == nil {
		return Book{}, false
	}
	title := text(book.SelectElement("title"))
	id := text(book.SelectElement("id"))
	created := text(review.SelectElement("created_at"))
	if title == "" || id == "" || created == "" {
		return Book{}, false
	}
	date, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return Book{}, false
	}

	authors := []string{}
	for _, a := range book.SelectElements("author") {
		if name := text(a.SelectElement("name")); name != "" {
			authors = append(authors, name)
		}
	}

	return Book{
		Title:   title,
		Authors: authors,
		URL:     fmt.Sprintf("%s%s", BookURLPrefix, id),
		Date:    Timestamp{date},
	}, true
}

func text(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}
