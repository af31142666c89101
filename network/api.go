package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the public corpus API.
const DefaultBaseURL = "https://api.corpus.swecha.org/api/v1"

// Timeouts holds the per call kind deadlines. Larger payloads get more time.
type Timeouts struct {
	// JSON applies to plain JSON calls (auth, categories, contributions).
	JSON time.Duration
	// Form applies to form-encoded calls (record finalize).
	Form time.Duration
	// Upload applies to multipart chunk uploads.
	Upload time.Duration
}

// DefaultTimeouts ...
func DefaultTimeouts() Timeouts {
	return Timeouts{
		JSON:   10 * time.Second,
		Form:   30 * time.Second,
		Upload: 60 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	defaults := DefaultTimeouts()
	if t.JSON <= 0 {
		t.JSON = defaults.JSON
	}
	if t.Form <= 0 {
		t.Form = defaults.Form
	}
	if t.Upload <= 0 {
		t.Upload = defaults.Upload
	}
	return t
}

// ClientParams ...
type ClientParams struct {
	BaseURL  string
	Timeouts Timeouts
	// RetryMax is the number of transport level retries for idempotent (GET) calls.
	// POST calls are never retried by the transport.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Client talks to the corpus API. It holds no session state: the bearer token is passed
// to every authenticated call, so one Client can serve any number of sessions.
type Client struct {
	httpClient *retryablehttp.Client
	baseURL    string
	timeouts   Timeouts
	logger     log.Logger
}

// NewClient ...
func NewClient(params ClientParams, logger log.Logger) *Client {
	httpClient := retryhttp.NewClient(logger)
	httpClient.RetryMax = params.RetryMax
	if params.RetryWaitMin > 0 {
		httpClient.RetryWaitMin = params.RetryWaitMin
	}
	if params.RetryWaitMax > 0 {
		httpClient.RetryWaitMax = params.RetryWaitMax
	}
	httpClient.CheckRetry = createRetryPolicy(logger)
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return newClient(httpClient, params, logger)
}

func newClient(httpClient *retryablehttp.Client, params ClientParams, logger log.Logger) *Client {
	baseURL := strings.TrimRight(params.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		timeouts:   params.Timeouts.withDefaults(),
		logger:     logger,
	}
}

// BaseURL ...
func (c *Client) BaseURL() string {
	return c.baseURL
}

type idempotentKey struct{}

func withIdempotent(ctx context.Context) context.Context {
	return context.WithValue(ctx, idempotentKey{}, true)
}

func isIdempotent(ctx context.Context) bool {
	idempotent, _ := ctx.Value(idempotentKey{}).(bool)
	return idempotent
}

// createRetryPolicy only lets the default policy run for requests marked idempotent.
// A retried signup or finalize could create duplicate accounts or records.
func createRetryPolicy(logger log.Logger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, requestErr error) (bool, error) {
		if !isIdempotent(ctx) {
			return false, nil
		}
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, requestErr)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; requestErr=%+v", retry, err, requestErr)
		return retry, err
	}
}

type apiRequest struct {
	method      string
	path        string
	token       string
	body        []byte
	contentType string
	timeout     time.Duration
	expected    int
	dump        bool
}

func (c *Client) do(ctx context.Context, r apiRequest, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if r.method == http.MethodGet {
		ctx = withIdempotent(ctx)
	}

	var body interface{}
	if r.body != nil {
		body = r.body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if r.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", r.token))
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")

	if r.dump {
		dump, err := httputil.DumpRequest(req.Request, false)
		if err != nil {
			c.logger.Warnf("error while dumping request: %s", err)
		}
		c.logger.Debugf("Request dump: %s", string(dump))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, r.method, r.path, err)
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf("close response body: %s", err)
		}
	}(resp.Body)

	if r.dump {
		dump, err := httputil.DumpResponse(resp, true)
		if err != nil {
			c.logger.Warnf("error while dumping response: %s", err)
		}
		c.logger.Debugf("Response dump: %s", string(dump))
	}

	if resp.StatusCode != r.expected {
		return unwrapError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s %s: %w", ErrTransport, r.method, r.path, ctx.Err())
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty response body", ErrUnexpectedResponse)
		}
		return fmt.Errorf("%w: decode response: %w", ErrUnexpectedResponse, err)
	}

	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, payload interface{}, expected int, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	r := apiRequest{
		method:   method,
		path:     path,
		token:    token,
		body:     body,
		timeout:  c.timeouts.JSON,
		expected: expected,
	}
	if body != nil {
		r.contentType = "application/json"
	}

	return c.do(ctx, r, out)
}
