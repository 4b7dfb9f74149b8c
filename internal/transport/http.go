package transport

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/roach88/beacon/internal/payload"
)

// DefaultTimeout bounds every collector call.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// HTTPClient is the default Transport: JSON over HTTPS, event batches
// gzip compressed, every body signed with HMAC-SHA256 of the game secret.
type HTTPClient struct {
	baseURL  string
	gameKey  string
	secret   string
	client   *http.Client
	compress bool
	logger   *slog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithTimeout sets the per-request timeout. Default: 10s.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.client = hc
	}
}

// WithoutCompression sends event batches uncompressed.
func WithoutCompression() HTTPOption {
	return func(c *HTTPClient) {
		c.compress = false
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// NewHTTPClient creates a client for the collector at baseURL.
func NewHTTPClient(baseURL, gameKey, secret string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		gameKey:  gameKey,
		secret:   secret,
		client:   &http.Client{Timeout: DefaultTimeout},
		compress: true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostInit requests remote config and server time.
func (c *HTTPClient) PostInit(ctx context.Context, req InitRequest) (Outcome, *ConfigDocument) {
	body, err := json.Marshal(req)
	if err != nil {
		c.logger.Warn("init request encode failed", "error", err)
		return EncodeFailed, nil
	}

	outcome, data := c.post(ctx, "init", body, false)
	if !outcome.Success() {
		return outcome, nil
	}

	var doc ConfigDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.Warn("init response decode failed", "error", err)
		return DecodeFailed, nil
	}
	if doc.ServerTS <= 0 {
		c.logger.Warn("init response missing server_ts")
		return BadResponse, nil
	}
	return outcome, &doc
}

// PostEvents uploads one batch. The response body is returned for every
// outcome that produced one so callers can inspect validation errors.
func (c *HTTPClient) PostEvents(ctx context.Context, events []payload.Object) (Outcome, []byte) {
	body, err := payload.MarshalBatch(events)
	if err != nil {
		c.logger.Warn("event batch encode failed", "error", err, "count", len(events))
		return EncodeFailed, nil
	}
	return c.post(ctx, "events", body, c.compress)
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, body []byte, compress bool) (Outcome, []byte) {
	if compress {
		zipped, err := gzipBytes(body)
		if err != nil {
			c.logger.Warn("gzip failed", "endpoint", endpoint, "error", err)
			return EncodeFailed, nil
		}
		body = zipped
	}

	url := fmt.Sprintf("%s/v2/%s/%s", c.baseURL, c.gameKey, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("build request failed", "endpoint", endpoint, "error", err)
		return EncodeFailed, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", Sign(c.secret, body))
	if compress {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		outcome := classifyError(err)
		c.logger.Debug("collector unreachable", "endpoint", endpoint, "outcome", outcome.String(), "error", err)
		return outcome, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Warn("read response failed", "endpoint", endpoint, "error", err)
		return BadResponse, nil
	}

	outcome := classifyStatus(resp.StatusCode)
	c.logger.Debug("collector response",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"outcome", outcome.String(),
	)
	return outcome, data
}

// Sign returns base64(HMAC-SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func classifyStatus(code int) Outcome {
	switch code {
	case http.StatusOK:
		return OK
	case http.StatusCreated:
		return Created
	case http.StatusUnauthorized:
		return Unauthorized
	case http.StatusBadRequest:
		return BadRequest
	default:
		return UnknownCode
	}
}

func classifyError(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Timeout
	}
	return NoResponse
}
