package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"repodesk/internal/model"
)

// Client looks up repository metadata on api.github.com (or a GitHub
// Enterprise API set with WithBaseURL) to enrich freshly cloned repositories.
type Client struct {
	Client *github.Client
	HTTP   *http.Client

	// Descriptions are looked up once per OWNER/NAME; concurrent clones of the
	// same repository share one request.
	group        singleflight.Group
	descriptions sync.Map
}

type options struct {
	verbose bool
	writer  io.Writer
	baseURL string
	timeout time.Duration
}

type Option func(*options)

// WithVerbose logs each GitHub call to writer (stderr when nil), keeping
// stdout free for structured output.
func WithVerbose(enabled bool, writer io.Writer) Option {
	return func(o *options) {
		o.verbose = enabled
		o.writer = writer
	}
}

// WithBaseURL points the client at another API root, such as a GitHub
// Enterprise server.
func WithBaseURL(raw string) Option {
	return func(o *options) { o.baseURL = raw }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// verboseTransport prints one line per call once the response (or error)
// is in.
type verboseTransport struct {
	base http.RoundTripper
	w    io.Writer
}

func (t *verboseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	took := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		_, _ = fmt.Fprintf(t.w, "[verbose] github: %s %s -> error after %s: %v\n", req.Method, req.URL.Path, took, err)
		return resp, err
	}
	_, _ = fmt.Fprintf(t.w, "[verbose] github: %s %s -> %d %s in %s\n", req.Method, req.URL.Path, resp.StatusCode, http.StatusText(resp.StatusCode), took)
	return resp, err
}

// NewClient builds a GitHub client. An empty token yields an unauthenticated
// client subject to the public rate limit.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	o := &options{timeout: 10 * time.Second}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}

	var transport http.RoundTripper = http.DefaultTransport
	if o.verbose {
		w := o.writer
		if w == nil {
			w = os.Stderr
		}
		transport = &verboseTransport{base: transport, w: w}
	}
	if token = strings.TrimSpace(token); token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   transport,
		}
	}
	hc := &http.Client{Transport: transport, Timeout: o.timeout}

	gc := github.NewClient(hc)
	gc.UserAgent = "repodesk"
	if o.baseURL != "" {
		u, err := url.Parse(strings.TrimRight(o.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github client: parse base url: %w", err)
		}
		gc.BaseURL = u
	}
	return &Client{Client: gc, HTTP: hc}, nil
}

// RepositoryDescription returns the GitHub description of owner/name. A
// repository that does not exist (or is not visible to the token) has no
// description rather than an error.
func (c *Client) RepositoryDescription(ctx context.Context, owner, name string) (string, error) {
	if c == nil || c.Client == nil {
		return "", errors.New("github client is nil")
	}
	key := strings.ToLower(owner + "/" + name)
	if v, ok := c.descriptions.Load(key); ok {
		return v.(string), nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		repo, resp, err := c.Client.Repositories.Get(ctx, owner, name)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				c.descriptions.Store(key, "")
				return "", nil
			}
			return "", err
		}
		desc := strings.TrimSpace(repo.GetDescription())
		c.descriptions.Store(key, desc)
		return desc, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Describe looks up the description of a github.com source URL in HTTPS or
// SSH form. Other hosts yield an empty description.
func (c *Client) Describe(ctx context.Context, repoURL string) (string, error) {
	owner, name, ok := model.GitHubOwnerRepo(repoURL)
	if !ok {
		return "", nil
	}
	return c.RepositoryDescription(ctx, owner, name)
}
