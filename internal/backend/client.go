package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"repodesk/internal/model"
)

// Client talks to the documentation service over HTTP JSON.
type Client struct {
	base     *url.URL
	http     *http.Client
	throttle *Throttle
	logger   *slog.Logger
}

var _ Backend = (*Client)(nil)

type options struct {
	token      string
	timeout    time.Duration
	verbose    bool
	writer     io.Writer
	httpClient *http.Client
	throttle   *Throttle
	logger     *slog.Logger
}

type Option func(*options)

// WithToken authenticates every request with a static bearer token.
func WithToken(token string) Option {
	return func(o *options) { o.token = strings.TrimSpace(token) }
}

// WithVerbose writes one line per request and response to writer (stderr by
// default) so structured output on stdout stays clean.
func WithVerbose(enabled bool, writer io.Writer) Option {
	return func(o *options) {
		o.verbose = enabled
		o.writer = writer
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHTTPClient replaces the base client; auth and logging wrap its transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithThrottle(t *Throttle) Option {
	return func(o *options) { o.throttle = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// loggingRoundTripper emits one line per request and response (including
// latency) when verbose logging is enabled.
type loggingRoundTripper struct {
	base http.RoundTripper
	w    io.Writer
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	if t.w != nil {
		_, _ = fmt.Fprintf(t.w, "[verbose] backend: %s %s\n", req.Method, req.URL.String())
	}
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start)
	if t.w != nil {
		if err != nil {
			_, _ = fmt.Fprintf(t.w, "[verbose] backend: error after %s: %v\n", dur.Truncate(time.Millisecond), err)
		} else {
			_, _ = fmt.Fprintf(t.w, "[verbose] backend: %d %s (%s)\n", resp.StatusCode, http.StatusText(resp.StatusCode), dur.Truncate(time.Millisecond))
		}
	}
	return resp, err
}

// NewClient builds a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("backend client: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend client: base url %q must be http or https", baseURL)
	}
	base.Path = strings.TrimRight(base.Path, "/")

	o := &options{timeout: 30 * time.Second}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.verbose && o.writer == nil {
		o.writer = os.Stderr
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.throttle == nil {
		o.throttle = NewThrottle()
	}

	hc := &http.Client{}
	if o.httpClient != nil {
		cp := *o.httpClient
		hc = &cp
	}
	transport := hc.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, w: o.writer}
	}
	if o.token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: o.token, TokenType: "Bearer"})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	hc.Transport = transport
	if hc.Timeout == 0 {
		hc.Timeout = o.timeout
	}

	return &Client{base: base, http: hc, throttle: o.throttle, logger: o.logger}, nil
}

func (c *Client) endpoint(p string) string {
	u := *c.base
	p, u.RawQuery, _ = strings.Cut(p, "?")
	u.Path = c.base.Path + p
	return u.String()
}

// do sends body as JSON and decodes a 2xx answer into out (when non-nil).
func (c *Client) do(ctx context.Context, method, p string, body, out any) error {
	if ctx == nil {
		return fmt.Errorf("%s %s: nil context", method, p)
	}
	if err := c.throttle.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", method, p, err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(p), reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, p, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, p, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.throttle.Observe(resp)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, p, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: p, StatusCode: resp.StatusCode, Detail: decodeDetail(raw)}
		c.logger.Debug("backend request failed", "method", method, "path", p, "status", resp.StatusCode, "detail", apiErr.Detail)
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, p, err)
	}
	return nil
}

func (c *Client) SubmitClone(ctx context.Context, repoURL string) (string, error) {
	var out taskCreated
	if err := c.do(ctx, http.MethodPost, "/repos/clone", cloneRequest{RepoURL: repoURL}, &out); err != nil {
		return "", asSubmissionError(err)
	}
	if out.TaskID == "" {
		return "", &model.SubmissionError{Detail: "service returned no task id"}
	}
	return out.TaskID, nil
}

func (c *Client) TaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	var out TaskStatus
	err := c.do(ctx, http.MethodGet, "/repos/tasks/"+url.PathEscape(taskID), nil, &out)
	if err != nil {
		return TaskStatus{}, err
	}
	if out.TaskID == "" {
		out.TaskID = taskID
	}
	return out, nil
}

func (c *Client) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	var items []repositoryItem
	if err := c.do(ctx, http.MethodGet, "/repos/list", nil, &items); err != nil {
		return nil, err
	}
	out := make([]model.Repository, 0, len(items))
	for _, it := range items {
		out = append(out, it.toModel())
	}
	return out, nil
}

// UpdateRepository sends name and description changes. SpecificPrompt is not
// part of this endpoint; use SavePrompt.
func (c *Client) UpdateRepository(ctx context.Context, id string, patch model.RepositoryPatch) error {
	req := updateRepositoryRequest{RepoID: wireID(id), Name: patch.Name, Description: patch.Description}
	err := c.do(ctx, http.MethodPost, "/repos/update", req, nil)
	if err == nil {
		return nil
	}
	if patch.Name != nil {
		err = asDuplicate(err, model.KindRepository, *patch.Name)
	}
	return asNotFound(err, model.KindRepository, id)
}

func (c *Client) DeleteRepository(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodPost, "/repos/delete", deleteRepositoryRequest{RepoID: wireID(id)}, nil)
	return asNotFound(err, model.KindRepository, id)
}

func (c *Client) GenerateDocumentation(ctx context.Context, repoIDs []string) (GenerateResponse, error) {
	var out GenerateResponse
	err := c.do(ctx, http.MethodPost, "/ai/generate", generateRequest{RepoIDs: wireIDs(repoIDs)}, &out)
	if err != nil {
		return GenerateResponse{}, asSubmissionError(err)
	}
	return out, nil
}

func (c *Client) SavePrompt(ctx context.Context, repoID, prompt string) (PromptResponse, error) {
	var out PromptResponse
	err := c.do(ctx, http.MethodPost, "/prompts/repo", promptRequest{RepoID: wireID(repoID), Prompt: prompt}, &out)
	if err != nil {
		return PromptResponse{}, asNotFound(err, model.KindRepository, repoID)
	}
	return out, nil
}

func (c *Client) ListDocumentation(ctx context.Context) ([]model.Documentation, error) {
	var items []documentItem
	if err := c.do(ctx, http.MethodGet, "/docs/list", nil, &items); err != nil {
		return nil, err
	}
	out := make([]model.Documentation, 0, len(items))
	for _, it := range items {
		out = append(out, it.toModel())
	}
	return out, nil
}

func (c *Client) GetDocumentation(ctx context.Context, id string) (model.Documentation, error) {
	var item documentItem
	if err := c.do(ctx, http.MethodGet, "/docs/"+url.PathEscape(id), nil, &item); err != nil {
		return model.Documentation{}, asNotFound(err, model.KindDocumentation, id)
	}
	return item.toModel(), nil
}

func (c *Client) DeleteDocumentation(ctx context.Context, ids []string) (DeleteDocumentationResponse, error) {
	var out DeleteDocumentationResponse
	if err := c.do(ctx, http.MethodPost, "/docs/delete", deleteDocumentsRequest{DocIDs: ids}, &out); err != nil {
		return DeleteDocumentationResponse{}, err
	}
	return out, nil
}

// RegenerateDocumentation rebuilds each document from its repository. The
// service answers per batch; Errors names the documents it could not rebuild.
func (c *Client) RegenerateDocumentation(ctx context.Context, ids []string) (RegenerateDocumentationResponse, error) {
	var out RegenerateDocumentationResponse
	if err := c.do(ctx, http.MethodPost, "/docs/update", deleteDocumentsRequest{DocIDs: ids}, &out); err != nil {
		return RegenerateDocumentationResponse{}, err
	}
	return out, nil
}

func (c *Client) SearchDocumentation(ctx context.Context, query string) ([]model.SearchHit, error) {
	var items []searchItem
	q := url.Values{"query": {query}}.Encode()
	if err := c.do(ctx, http.MethodGet, "/docs/search?"+q, nil, &items); err != nil {
		return nil, err
	}
	out := make([]model.SearchHit, 0, len(items))
	for _, it := range items {
		out = append(out, it.toModel())
	}
	return out, nil
}

func (c *Client) UpdateGoal(ctx context.Context, docID, goal string) error {
	err := c.do(ctx, http.MethodPut, "/docs/"+url.PathEscape(docID)+"/goal", goalRequest{Goal: goal}, nil)
	return asNotFound(err, model.KindDocumentation, docID)
}

func (c *Client) ListTemplates(ctx context.Context) ([]model.Template, error) {
	var items []templateItem
	if err := c.do(ctx, http.MethodGet, "/prompt-templates", nil, &items); err != nil {
		return nil, err
	}
	out := make([]model.Template, 0, len(items))
	for _, it := range items {
		out = append(out, it.toModel())
	}
	return out, nil
}

func (c *Client) CreateTemplate(ctx context.Context, tpl model.Template) (model.Template, error) {
	req := templateRequest{Name: &tpl.Name, Description: &tpl.Description, Content: &tpl.Content}
	var item templateItem
	if err := c.do(ctx, http.MethodPost, "/prompt-templates", req, &item); err != nil {
		return model.Template{}, asDuplicate(err, model.KindTemplate, tpl.Name)
	}
	return item.toModel(), nil
}

func (c *Client) UpdateTemplate(ctx context.Context, id string, patch model.TemplatePatch) (model.Template, error) {
	req := templateRequest{Name: patch.Name, Description: patch.Description, Content: patch.Content}
	var item templateItem
	err := c.do(ctx, http.MethodPut, "/prompt-templates/"+url.PathEscape(id), req, &item)
	if err != nil {
		if patch.Name != nil {
			err = asDuplicate(err, model.KindTemplate, *patch.Name)
		}
		return model.Template{}, asNotFound(err, model.KindTemplate, id)
	}
	return item.toModel(), nil
}

func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/prompt-templates/"+url.PathEscape(id), nil, nil)
	return asNotFound(err, model.KindTemplate, id)
}

func (c *Client) GeneralPrompt(ctx context.Context) (string, error) {
	var out generalPromptBody
	if err := c.do(ctx, http.MethodGet, "/prompts/general", nil, &out); err != nil {
		return "", err
	}
	return out.Prompt, nil
}

func (c *Client) SaveGeneralPrompt(ctx context.Context, prompt string) error {
	err := c.do(ctx, http.MethodPost, "/prompts/general", generalPromptBody{Prompt: prompt}, nil)
	return asValidation(err, "prompt")
}

func (c *Client) GeneralSettings(ctx context.Context) (model.GeneralSettings, error) {
	var out settingsItem
	if err := c.do(ctx, http.MethodGet, "/settings/general", nil, &out); err != nil {
		return model.GeneralSettings{}, err
	}
	return out.toModel(), nil
}

// SaveGeneralSettings validates the interval before sending; the service
// echoes the stored settings.
func (c *Client) SaveGeneralSettings(ctx context.Context, s model.GeneralSettings) (model.GeneralSettings, error) {
	if err := s.Validate(); err != nil {
		return model.GeneralSettings{}, err
	}
	req := settingsItem{Prompt: s.Prompt, CheckInterval: s.CheckInterval, Disabled: s.Disabled}
	var out settingsItem
	if err := c.do(ctx, http.MethodPut, "/settings/general", req, &out); err != nil {
		return model.GeneralSettings{}, asValidation(err, "check_interval")
	}
	return out.toModel(), nil
}
