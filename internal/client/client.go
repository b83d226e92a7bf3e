// Package client talks to the agent backend: thread creation, thread state
// and streaming runs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const maxErrorBody = 4 * 1024

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

type Options struct {
	BaseURL string
	Token   string
	// Timeout bounds non-streaming calls. Streaming runs are bounded only by
	// their context.
	Timeout time.Duration
	// Headers are sent with every request.
	Headers    http.Header
	HTTPClient *http.Client
}

// Client is the backend HTTP client.
type Client struct {
	opts   Options
	client *http.Client
}

func New(opts Options) *Client {
	c := &Client{opts: opts, client: opts.HTTPClient}
	if c.client == nil {
		c.client = &http.Client{
			// No timeout; streaming responses can be long-lived
			Timeout: 0,
		}
	}
	return c
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, nil, false, "health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// CreateThread creates a thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, struct{}{}, false, "threads")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out createThreadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode thread response: %w", err)
	}
	if out.ThreadID == "" {
		return "", errors.New("decode thread response: empty thread_id")
	}

	log.Debug().Str("thread_id", out.ThreadID).Msg("thread created")
	return out.ThreadID, nil
}

// ThreadState fetches the backend's view of a thread.
func (c *Client) ThreadState(ctx context.Context, threadID string) (*ThreadState, error) {
	resp, err := c.do(ctx, http.MethodGet, nil, false, "threads", threadID, "state")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ThreadState
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode thread state: %w", err)
	}
	return &out, nil
}

// StreamRun starts a run and returns the response body, which the caller must
// close. Cancelling ctx aborts both the request and any pending body read.
func (c *Client) StreamRun(ctx context.Context, threadID string, req RunRequest) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodPost, req, true, "threads", threadID, "runs", "stream")
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("thread_id", threadID).
		Int("status", resp.StatusCode).
		Str("content_type", resp.Header.Get("Content-Type")).
		Int("messages", len(req.Input.Messages)).
		Msg("run stream opened")
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, method string, body any, streaming bool, segments ...string) (*http.Response, error) {
	target, err := buildURL(c.opts.BaseURL, segments...)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	var cancel context.CancelFunc
	if !streaming && c.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = prepareHeaders(c.opts.Headers, c.opts.Token, streaming)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		if cancel != nil {
			cancel()
		}
		return nil, &HTTPError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	log.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend request")

	if cancel != nil {
		resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	}
	return resp, nil
}

// cancelBody releases a per-request timeout once the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
