// Package transport sends one HTTP request and reports either the response
// (any status code) or a transport-level failure.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"collection-runner/internal/models"
	"collection-runner/internal/validator"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxRedirects    = 5
	DefaultMaxResponseSize = 50 * 1024 * 1024 // 50MB
	DefaultUserAgent       = "collection-runner"
)

// Call is a fully resolved request ready to be sent.
type Call struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// FromRequest builds a Call from a (resolved) request.
func FromRequest(req models.Request) Call {
	call := Call{
		Method:  req.Method,
		URL:     req.URL,
		Headers: req.Headers,
		Params:  req.Params,
	}
	if req.HasBody() {
		call.Body = req.Body
	}
	return call
}

// Response is an HTTP response, including 4xx and 5xx ones.
type Response struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	// Data is the decoded JSON body, or the raw body as a string when it is not JSON.
	Data any `json:"data"`
}

// Transport performs a single call. A non-nil error means no HTTP response was
// received (DNS, TLS, timeout, refused connection, blocked URL).
type Transport interface {
	Do(ctx context.Context, call Call) (*Response, error)
}

// HTTP is the net/http backed Transport.
type HTTP struct {
	client          *http.Client
	guard           *validator.URLGuard
	userAgent       string
	timeout         time.Duration
	maxRedirects    int
	maxResponseSize int64
}

type Option func(*HTTP)

// Zero values leave the defaults in place.

func WithTimeout(d time.Duration) Option {
	return func(h *HTTP) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithMaxRedirects(n int) Option {
	return func(h *HTTP) {
		if n >= 0 {
			h.maxRedirects = n
		}
	}
}

func WithMaxResponseSize(n int64) Option {
	return func(h *HTTP) {
		if n > 0 {
			h.maxResponseSize = n
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(h *HTTP) {
		if ua != "" {
			h.userAgent = ua
		}
	}
}

// WithURLGuard enables SSRF checks on the target URL and every redirect.
func WithURLGuard(g *validator.URLGuard) Option {
	return func(h *HTTP) { h.guard = g }
}

func NewHTTP(opts ...Option) *HTTP {
	h := &HTTP{
		userAgent:       DefaultUserAgent,
		timeout:         DefaultTimeout,
		maxRedirects:    DefaultMaxRedirects,
		maxResponseSize: DefaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.client = &http.Client{
		Timeout: h.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= h.maxRedirects {
				return fmt.Errorf("stopped after %d redirects", h.maxRedirects)
			}
			if h.guard != nil {
				if err := h.guard.Check(req.Context(), req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
			}
			return nil
		},
	}
	return h
}

func (h *HTTP) Do(ctx context.Context, call Call) (*Response, error) {
	target, err := buildURL(call.URL, call.Params)
	if err != nil {
		return nil, err
	}

	if h.guard != nil {
		if err := h.guard.Check(ctx, target); err != nil {
			return nil, fmt.Errorf("URL blocked: %w", err)
		}
	}

	// Only methods with request bodies carry one
	var bodyReader io.Reader
	method := strings.ToUpper(call.Method)
	supportsBody := method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete
	if len(call.Body) > 0 && supportsBody {
		bodyReader = bytes.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range call.Headers {
		req.Header.Set(key, value)
	}
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := readLimited(resp.Body, h.maxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	raw, err = decodeContent(resp.Header.Get("Content-Encoding"), raw, h.maxResponseSize)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		headers[key] = strings.Join(values, ", ")
	}

	return &Response{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    headers,
		Data:       decodeData(raw),
	}, nil
}

func buildURL(rawURL string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	query := parsed.Query()
	for key, value := range params {
		query.Set(key, value)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// ErrResponseTooLarge is returned when a response body, before or after
// decompression, is larger than the configured limit.
var ErrResponseTooLarge = errors.New("response too large")

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrResponseTooLarge, limit)
	}
	return body, nil
}

func decodeContent(encoding string, body []byte, limit int64) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to decode gzip response: %w", err)
		}
		defer r.Close()
		decoded, err := readLimited(r, limit)
		if err != nil && !errors.Is(err, ErrResponseTooLarge) {
			return nil, fmt.Errorf("failed to decode gzip response: %w", err)
		}
		return decoded, err
	case "br":
		decoded, err := readLimited(brotli.NewReader(bytes.NewReader(body)), limit)
		if err != nil && !errors.Is(err, ErrResponseTooLarge) {
			return nil, fmt.Errorf("failed to decode brotli response: %w", err)
		}
		return decoded, err
	default:
		return body, nil
	}
}

// decodeData returns the JSON value of body, or body as a string.
func decodeData(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return string(body)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(body)
	}
	return v
}
