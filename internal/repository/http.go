package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/oskrba/internal/model"
)

// StatePath is the blob API endpoint, relative to the base URL.
const StatePath = "/api/app-state"

// StatusError is returned when the blob API answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote store returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote store returned %d", e.Code)
}

// HTTP stores the state in the blob API.
type HTTP struct {
	url    string
	client *http.Client
	token  string
	logger *slog.Logger
}

// HTTPOption configures an HTTP repository.
type HTTPOption func(*HTTP)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithToken sends token as a bearer token on every request.
func WithToken(token string) HTTPOption {
	return func(h *HTTP) { h.token = token }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTP) { h.logger = l }
}

// NewHTTP creates a repository for the blob API at baseURL.
func NewHTTP(baseURL string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		url:    strings.TrimRight(baseURL, "/") + StatePath,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load fetches the stored state. A 204 response or an unreadable body is
// reported as no state.
func (h *HTTP) Load(ctx context.Context) (*model.AppState, error) {
	resp, err := h.do(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading remote state: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var st model.AppState
	if err := json.Unmarshal(data, &st); err != nil {
		h.logger.Warn("discarding malformed remote state", "error", err)
		return nil, nil
	}
	st.Normalize()
	return &st, nil
}

// Save replaces the stored state.
func (h *HTTP) Save(ctx context.Context, state model.AppState) error {
	state.Normalize()
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	resp, err := h.do(ctx, http.MethodPut, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Clear deletes the stored state.
func (h *HTTP) Clear(ctx context.Context) error {
	resp, err := h.do(ctx, http.MethodDelete, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// do sends a request and converts non-2xx responses into a *StatusError.
func (h *HTTP) do(ctx context.Context, method string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.url, reader)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, h.url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		var e struct {
			Message string `json:"message"`
		}
		json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		return nil, &StatusError{Code: resp.StatusCode, Message: e.Message}
	}
	return resp, nil
}
