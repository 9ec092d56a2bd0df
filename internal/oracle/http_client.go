package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient posts randomness requests to an oracle executor's webhook. The
// executor later calls back into the engine's fulfillment endpoint.
type HTTPClient struct {
	Endpoint string
	HTTP     *http.Client
}

func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		Endpoint: endpoint,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

type requestPayload struct {
	RequestID        uint64 `json:"requestId"`
	KeyHash          string `json:"keyHash"`
	SubscriptionID   uint64 `json:"subscriptionId"`
	CallbackGasLimit uint32 `json:"callbackGasLimit"`
	Confirmations    uint16 `json:"confirmations"`
}

func (c *HTTPClient) RequestRandomness(ctx context.Context, requestID uint64, cfg Config) error {
	if c.Endpoint == "" {
		return fmt.Errorf("oracle endpoint not configured")
	}

	body, err := json.Marshal(requestPayload{
		RequestID:        requestID,
		KeyHash:          cfg.KeyHash,
		SubscriptionID:   cfg.SubscriptionID,
		CallbackGasLimit: cfg.CallbackGasLimit,
		Confirmations:    cfg.Confirmations,
	})
	if err != nil {
		return fmt.Errorf("marshal oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("oracle request rejected: %s", resp.Status)
	}
	return nil
}
