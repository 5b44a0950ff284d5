package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ServiceClient calls the external extraction service over HTTP. Calls
// can take tens of seconds; the configured timeout is the only bound.
type ServiceClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

func NewServiceClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *ServiceClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &ServiceClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
	}
}

func (c *ServiceClient) Extract(ctx context.Context, req Request) (Result, error) {
	raw, err := c.sendJSON(ctx, c.baseURL+"/v1/extract", req)
	if err != nil {
		return Result{Raw: raw}, err
	}
	items, err := DecodeResponse(raw)
	if err != nil {
		return Result{Raw: raw}, err
	}
	return Result{Items: items, Raw: raw}, nil
}

// sendJSON posts a JSON body and returns the raw response bytes.
func (c *ServiceClient) sendJSON(ctx context.Context, url string, body any) ([]byte, error) {
	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		c.logger.Error("extractor.http.encode_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		c.logger.Error("extractor.http.build_request_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Info("extractor.http.request",
		"req_id", reqID,
		"url", url,
		"content_length", len(bs),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("extractor.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Warn("extractor.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	c.logger.Info("extractor.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, fmt.Errorf("extractor returned status %d", resp.StatusCode)
	}
	return raw, nil
}
