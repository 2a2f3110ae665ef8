// Package inference talks to an OpenAI-compatible chat-completions backend
// (NVIDIA NIM, LM Studio, ...) with per-attempt timeouts and exponential backoff.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	logx "planbot/pkg/logx"
)

type Config struct {
	Endpoint string
	APIKey   string
	Model    string

	// Timeout bounds a single attempt.
	Timeout       time.Duration
	MaxRetries    int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	Temperature float64
	MaxTokens   int
	// JSONMode asks the backend for response_format {"type":"json_object"}.
	JSONMode bool
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2000
	}
	return c
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	Temperature    float64   `json:"temperature"`
	MaxTokens      int       `json:"max_tokens,omitempty"`
	ResponseFormat any       `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithSleeper(s Sleeper) Option         { return func(c *Client) { c.sleep = s } }
func WithMetrics(m *Metrics) Option        { return func(c *Client) { c.metrics = m } }

// Client is safe for concurrent use; each Complete call owns its retry state.
type Client struct {
	cfg     Config
	log     logx.Logger
	http    *http.Client
	sleep   Sleeper
	metrics *Metrics
}

func New(cfg Config, log logx.Logger, opts ...Option) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{
		cfg:   cfg.withDefaults(),
		log:   log,
		sleep: sleepCtx,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          32,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// retryState lives for one Complete call.
type retryState struct {
	attempt int // retries performed so far
	class   errClass
	delay   time.Duration
	last    error
}

// Complete sends system+user messages and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if strings.TrimSpace(c.cfg.Endpoint) == "" {
		return "", &ServiceError{Err: errors.New("inference endpoint is not configured")}
	}
	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if c.cfg.JSONMode {
		req.ResponseFormat = map[string]string{"type": "json_object"}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", &ServiceError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	var st retryState
	for {
		if st.attempt > 0 {
			st.delay = Backoff(c.cfg.RetryBase, c.cfg.RetryMaxDelay, st.attempt)
			c.log.Debug("inference retry scheduled",
				logx.Int("attempt", st.attempt+1),
				logx.Duration("delay", st.delay),
				logx.Err(st.last),
			)
			if err := c.sleep(ctx, st.delay); err != nil {
				return "", err
			}
		}

		start := time.Now()
		content, err := c.attempt(ctx, payload)
		c.metrics.observe(time.Since(start), err, classify(err))
		if err == nil {
			return content, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		st.last, st.class = err, classify(err)
		if st.class == classFatal {
			c.log.Warn("inference failed (fatal)", logx.Int("attempts", st.attempt+1), logx.Err(err))
			return "", &ServiceError{Attempts: st.attempt + 1, Err: err}
		}
		if st.attempt >= c.cfg.MaxRetries {
			c.log.Warn("inference retries exhausted", logx.Int("attempts", st.attempt+1), logx.Err(err))
			return "", &ServiceUnavailableError{Attempts: st.attempt + 1, Err: err}
		}
		st.attempt++
	}
}

func (c *Client) attempt(parent context.Context, payload []byte) (string, error) {
	ctx, cancel := context.WithTimeout(parent, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", fmt.Errorf("read response: %w", err)
		}
		return "", fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedReply)
	}
	return decoded.Choices[0].Message.Content, nil
}

// Backoff returns the delay before retry k (k >= 1): base * 2^(k-1), capped at maxDelay.
func Backoff(base, maxDelay time.Duration, k int) time.Duration {
	if k < 1 {
		return 0
	}
	d := base
	for i := 1; i < k; i++ {
		d *= 2
		if maxDelay > 0 && d >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
