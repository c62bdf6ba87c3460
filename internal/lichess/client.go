package lichess

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const DefaultBaseURL = "https://lichess.org"

// Client talks to the Lichess Board API. Short calls go through fasthttp;
// the long-lived NDJSON streams use a net/http client so reads follow ctx.
type Client struct {
	baseURL string
	token   string
	http    *fasthttp.Client
	stream  *http.Client

	defaultTimeout time.Duration
	retry          RetryPolicy
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithRetry(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithDialer replaces the fasthttp dialer (in-memory listeners in tests).
func WithDialer(d fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = d }
}

func WithStreamClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.stream = h
		}
	}
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          strings.TrimSpace(token),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		stream:         &http.Client{},
		defaultTimeout: 10 * time.Second,
		retry:          DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitMove posts one UCI move. Transient failures are retried here and
// nowhere else.
func (c *Client) SubmitMove(ctx context.Context, gameID, uci string) error {
	path := "/api/board/game/" + url.PathEscape(gameID) + "/move/" + url.PathEscape(uci)
	return c.retry.Do(ctx, "submit_move", func(ctx context.Context) error {
		return c.doForm(ctx, fasthttp.MethodPost, path, nil, nil)
	})
}

func (c *Client) Resign(ctx context.Context, gameID string) error {
	path := "/api/board/game/" + url.PathEscape(gameID) + "/resign"
	return c.retry.Do(ctx, "resign", func(ctx context.Context) error {
		return c.doForm(ctx, fasthttp.MethodPost, path, nil, nil)
	})
}

func (c *Client) doForm(ctx context.Context, method, path string, form url.Values, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if form != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBodyString(form.Encode())
	}

	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return &APIError{Status: status, Body: truncate(string(resp.Body()), 512)}
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
