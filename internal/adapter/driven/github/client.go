// Package github implements the BlobStore port on top of the GitHub contents
// API using the go-github library.
package github

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/gitlicense/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BlobStore = (*Client)(nil)

// Client stores blobs as files on one branch of one GitHub repository. The
// blob version is the git blob SHA reported by the contents API.
type Client struct {
	gh     *gh.Client
	owner  string
	repo   string
	branch string
}

// NewClient creates a new GitHub contents client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching, always revalidated)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token, repoFullName, branch string) (*Client, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	client := gh.NewClient(NewHTTPClient(nil)).WithAuthToken(token)

	return &Client{
		gh:     client,
		owner:  owner,
		repo:   repo,
		branch: branch,
	}, nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, repoFullName, branch string) (*Client, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{
		gh:     client,
		owner:  owner,
		repo:   repo,
		branch: branch,
	}, nil
}

// NewHTTPClient builds the caching, rate-limited http.Client used by NewClient.
// base is the innermost transport; nil selects http.DefaultTransport.
//
// Every request is forced to revalidate its cached entry, so a conditional
// request (If-None-Match) is always sent and a stale blob SHA is never served
// from cache. Unchanged documents still cost a 304 that does not count against
// the primary rate limit.
func NewHTTPClient(base http.RoundTripper) *http.Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = base
	return github_ratelimit.NewClient(revalidateTransport{next: cacheTransport})
}

// revalidateTransport marks every request as requiring revalidation.
type revalidateTransport struct {
	next http.RoundTripper
}

func (t revalidateTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Cache-Control") != "" {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Cache-Control", "max-age=0")
	return t.next.RoundTrip(clone)
}

// Location returns the "owner/repo@branch" the client writes to.
func (c *Client) Location() string {
	return fmt.Sprintf("%s/%s@%s", c.owner, c.repo, c.branch)
}

// logRateLimit logs rate limit information from a GitHub API response.
func logRateLimit(resp *gh.Response, endpoint string) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// statusCode extracts the HTTP status from a go-github error, or 0.
func statusCode(err error) int {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
