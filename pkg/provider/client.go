// Package provider talks to the remote text-generation endpoint: it sends one
// POST per call, classifies failures and reduces the response union to text.
package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pario-ai/chatgate/pkg/models"
)

const (
	// DefaultTimeout bounds a single attempt, including reading the body.
	DefaultTimeout = 30 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 4 << 20
)

// Client is an HTTP client for a Hugging Face style inference endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New creates a Client for baseURL, authenticating with apiKey.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeyFingerprint identifies the configured API key in logs without
// revealing any of it.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// Generate performs exactly one POST {baseURL}/{modelPath} and returns the
// normalized result. Failures are returned as *Error unless the context was
// cancelled, in which case the context error is returned.
func (c *Client) Generate(ctx context.Context, modelPath string, req models.ProviderRequest) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, errors.Wrap(err, "encode request")
	}

	target := c.baseURL + "/" + strings.TrimPrefix(modelPath, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return Result{}, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	logger := log.WithFields(log.Fields{"model": modelPath, "key": c.KeyFingerprint()})
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		logger.Debugf("POST %s failed after %v: %v", target, time.Since(start), err)
		return Result{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, classifyTransportError(errors.Wrap(err, "read response"))
	}
	logger.Debugf("POST %s -> %d (%v)", target, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, ErrorFromStatus(resp.StatusCode, respBody, resp.Header)
	}
	return ParseResult(respBody)
}

func classifyTransportError(err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Cause: err}
	}
	return &Error{Kind: KindNetwork, Cause: err}
}
