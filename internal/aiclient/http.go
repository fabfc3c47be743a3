package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

// eventStreamContentType marks a streaming response body.
const eventStreamContentType = "text/event-stream"

// HTTPClient posts chat requests to the dedicated AI endpoint.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient creates a client for the given endpoint. No overall
// request timeout is set: streamed replies are open-ended and are
// bounded by the caller's context instead.
func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// errorResponse is the body of a non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
}

// completeResponse is the body of a non-streaming 2xx reply.
type completeResponse struct {
	Response  string `json:"response"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Chat sends the request and returns either the raw event-stream body
// or the decoded complete value, depending on the response content type.
func (c *HTTPClient) Chat(ctx context.Context, req Request) (*Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", eventStreamContentType)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("AI endpoint error (status %d): %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("AI endpoint error (status %d): %s", resp.StatusCode, string(raw))
	}

	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mediaType == eventStreamContentType {
		// Hand the body to the decoder; the orchestrator closes it.
		return &Reply{Stream: resp.Body}, nil
	}

	defer resp.Body.Close()
	var complete completeResponse
	if err := json.NewDecoder(resp.Body).Decode(&complete); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &Reply{Response: complete.Response, Reasoning: complete.Reasoning}, nil
}

// NowStrings formats the wall clock the way the endpoint expects:
// date, time and IANA timezone as separate strings.
func NowStrings(now time.Time) (date, clock, timezone string) {
	return now.Format("2006-01-02"), now.Format("15:04"), now.Location().String()
}
