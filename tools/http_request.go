package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPRequestTool lets the model fetch URLs.
type HTTPRequestTool struct {
	client *http.Client
	// MaxBytes caps how much of the response body is returned.
	MaxBytes int64
}

// NewHTTPRequestTool creates a new HTTP tool with an optional timeout.
func NewHTTPRequestTool(timeout time.Duration) *HTTPRequestTool {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRequestTool{client: &http.Client{Timeout: timeout}, MaxBytes: 64 << 10}
}

func (t *HTTPRequestTool) Name() string { return "http_request" }
func (t *HTTPRequestTool) Description() string {
	return "Perform an HTTP request and return the status and body."
}
func (t *HTTPRequestTool) Schema() map[string]any {
	return ObjectSchema(map[string]any{
		"method":  map[string]any{"type": "string", "description": "HTTP method, default GET"},
		"url":     map[string]any{"type": "string"},
		"body":    map[string]any{"type": "string"},
		"headers": map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
	}, "url")
}

type httpRequestArgs struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

func (t *HTTPRequestTool) Execute(ctx context.Context, arguments string) (string, error) {
	var args httpRequestArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if args.URL == "" {
		return "", fmt.Errorf("url is required")
	}
	method := strings.ToUpper(strings.TrimSpace(args.Method))
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if args.Body != "" {
		body = strings.NewReader(args.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, args.URL, body)
	if err != nil {
		return "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, t.MaxBytes))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %s\n%s", resp.StatusCode, http.StatusText(resp.StatusCode), b), nil
}
