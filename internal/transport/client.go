package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/EternisAI/silo-c2/internal/api/http/dto"
)

const (
	DefaultTimeout = 10 * time.Second

	// Bodies larger than this are not read back from the backend.
	maxResponseBytes = 1 << 20
)

var ErrUnexpectedStatus = errors.New("unexpected status from backend")

// Client performs the agent's two outbound calls. Failures are returned, never
// retried; the next poll cycle is the retry.
type Client struct {
	httpClient *http.Client
	checkinURL string
	resultsURL string
}

func NewClient(checkinURL, resultsURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		checkinURL: checkinURL,
		resultsURL: resultsURL,
	}
}

func (c *Client) Checkin(ctx context.Context, req dto.CheckinRequest) (*dto.CheckinResponse, error) {
	var resp dto.CheckinResponse
	if err := c.postJSON(ctx, c.checkinURL, req, &resp); err != nil {
		return nil, fmt.Errorf("check-in failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) SubmitResult(ctx context.Context, req dto.ResultRequest) error {
	if err := c.postJSON(ctx, c.resultsURL, req, nil); err != nil {
		return fmt.Errorf("result submission failed: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: HTTP %d: %s", ErrUnexpectedStatus, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
