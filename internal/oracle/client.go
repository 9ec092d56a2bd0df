// Package oracle abstracts the external randomness oracle. The engine only
// ever sends a request out; fulfillment arrives later through the callback
// surface and is routed to the randomness coordinator.
package oracle

import (
	"context"
)

// Config mirrors the oracle-side tuning the operator can set: VRF key hash,
// subscription, callback gas and confirmation depth.
type Config struct {
	KeyHash          string `json:"keyHash"`
	SubscriptionID   uint64 `json:"subscriptionId"`
	CallbackGasLimit uint32 `json:"callbackGasLimit"`
	Confirmations    uint16 `json:"confirmations"`
}

// Client sends randomness requests to the oracle's executor.
type Client interface {
	// RequestRandomness asks the oracle to produce a seed for the given
	// engine-scoped request id. The seed arrives asynchronously.
	RequestRandomness(ctx context.Context, requestID uint64, cfg Config) error
}
