// Package github fetches the most recent commits pushed by a GitHub user.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/urdh/homepage/feeds"
)

const (
	DefaultUser    = "urdh"
	DefaultBaseURL = "https://api.github.com"

	// MaxCommits is how many commits RecentCommits returns at most.
	MaxCommits = 5
)

// Commit is the head commit of one push.
type Commit struct {
	SHA     string    `json:"sha"`
	URL     string    `json:"url"`
	Message string    `json:"message"`
	Repo    string    `json:"repo"`
	Date    time.Time `json:"date"`
}

// BadRepoNameError is returned for a push to a repository whose name is not
// of the form owner/repo.
type BadRepoNameError struct {
	RepoName string
}

func (e *BadRepoNameError) Error() string {
	return fmt.Sprintf("could not parse repository name %q", e.RepoName)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") } }

// WithUser selects whose events are read.
func WithUser(user string) Option { return func(c *Client) { c.user = user } }

// WithToken authenticates requests, raising the API rate limit.
func WithToken(token feeds.Secret) Option { return func(c *Client) { c.token = token } }

// WithHTTPClient replaces the pooled default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithGuard wraps every upstream request in g.
func WithGuard(g *feeds.Guard) Option { return func(c *Client) { c.guard = g } }

// WithLogger sets the client's logger.
func WithLogger(l hclog.Logger) Option { return func(c *Client) { c.logger = l } }

// Client reads public events from the GitHub REST API.
type Client struct {
	baseURL string
	user    string
	token   feeds.Secret
	http    *http.Client
	guard   *feeds.Guard
	logger  hclog.Logger
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		user:    DefaultUser,
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
	return c.RecentCommits(ctx)
}

type event struct {
	Type string `json:"type"`
	Repo struct {
		Name string `json:"name"`
	} `json:"repo"`
	Payload struct {
		Head string `json:"head"`
	} `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

type commitResponse struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
	} `json:"commit"`
}

// RecentCommits returns the head commits of the user's most recent pushes,
// newest first. Events that cannot be decoded are skipped.
func (c *Client) RecentCommits(ctx context.Context) ([]Commit, error) {
	var raw []json.RawMessage
	if err := c.get(ctx, "/users/"+url.PathEscape(c.user)+"/events/public", &raw); err != nil {
		return nil, wrap(err)
	}

	commits := make([]Commit, 0, MaxCommits)
	for _, r := range raw {
		if len(commits) == MaxCommits {
			break
		}
		var ev event
		if err := json.Unmarshal(r, &ev); err != nil {
			c.logger.Trace("skipping undecodable event", "error", err)
			continue
		}
		if ev.Type != "PushEvent" || ev.Payload.Head == "" {
			continue
		}
		commit, err := c.headCommit(ctx, ev)
		if err != nil {
			return nil, wrap(err)
		}
		commits = append(commits, commit)
	}
	return commits, nil
}

func (c *Client) headCommit(ctx context.Context, ev event) (Commit, error) {
	owner, repo, ok := strings.Cut(ev.Repo.Name, "/")
	if !ok {
		return Commit{}, &BadRepoNameError{RepoName: ev.Repo.Name}
	}

	var resp commitResponse
	path := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/commits/" + url.PathEscape(ev.Payload.Head)
	if err := c.get(ctx, path, &resp); err != nil {
		return Commit{}, err
	}

	message, _, _ := strings.Cut(resp.Commit.Message, "\n")
	return Commit{
		SHA:     resp.SHA,
		URL:     resp.HTMLURL,
		Message: strings.TrimSuffix(message, "\r"),
		Repo:    ev.Repo.Name,
		Date:    ev.CreatedAt,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	header := http.Header{
		"Accept":               {"application/vnd.github+json"},
		"X-Github-Api-Version": {"2022-11-28"},
	}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token.Reveal())
	}

	body, err := feeds.Call(ctx, c.guard, func(ctx context.Context) ([]byte, error) {
		return feeds.Fetch(ctx, c.http, "github", c.baseURL+path, header)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}

// wrap reports every GitHub failure as a server error; upstream statuses are
// not forwarded.
func wrap(err error) error {
	return &feeds.Error{
		Source: "github",
		Status: http.StatusInternalServerError,
		Msg:    "could not query GitHub API",
		Err:    err,
	}
}
