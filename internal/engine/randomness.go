package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"chiprails/internal/oracle"

	"github.com/rs/zerolog"
)

// RandomnessRequest is the two-phase protocol record binding an outbound
// oracle request to its eventual seed. A seed backs at most one shoe
// commitment: Consumed flips the first time a commit takes it.
type RandomnessRequest struct {
	RequestID   uint64    `json:"requestId"`
	Fulfilled   bool      `json:"fulfilled"`
	Seed        *big.Int  `json:"seed,omitempty"`
	Consumed    bool      `json:"consumed"`
	RequestedAt time.Time `json:"requestedAt"`
	FulfilledAt time.Time `json:"fulfilledAt,omitempty"`
}

// RandomnessCoordinator owns RandomnessRequest records. Fulfillment is the
// one out-of-band event in the engine: it arrives from the oracle's executor
// and is accepted exactly once per request.
type RandomnessCoordinator struct {
	mu       sync.Mutex
	access   *AccessControl
	client   oracle.Client
	config   oracle.Config
	requests map[uint64]*RandomnessRequest
	nextID   uint64
	log      zerolog.Logger
}

func NewRandomnessCoordinator(access *AccessControl, client oracle.Client, log zerolog.Logger) *RandomnessCoordinator {
	return &RandomnessCoordinator{
		access:   access,
		client:   client,
		requests: make(map[uint64]*RandomnessRequest),
		nextID:   1,
		log:      log.With().Str("component", "randomness").Logger(),
	}
}

// SetOracleConfig replaces the oracle tuning passed with outbound requests.
// Operator only.
func (c *RandomnessCoordinator) SetOracleConfig(caller string, cfg oracle.Config) error {
	if err := c.access.RequireOperator(caller); err != nil {
		return fmt.Errorf("set oracle config: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	c.log.Info().Str("key_hash", cfg.KeyHash).Uint64("subscription_id", cfg.SubscriptionID).Msg("oracle config updated")
	return nil
}

// OracleConfig returns the current oracle tuning.
func (c *RandomnessCoordinator) OracleConfig() oracle.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// RequestSeed creates an unfulfilled request and asks the oracle for a seed.
// The record is only kept if the outbound call succeeds, so a failed request
// leaves no dangling state.
func (c *RandomnessCoordinator) RequestSeed(ctx context.Context, caller string) (uint64, error) {
	if err := c.access.RequireOperator(caller); err != nil {
		return 0, fmt.Errorf("request seed: %w", err)
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	cfg := c.config
	c.mu.Unlock()

	// The oracle call happens outside the lock; a failed call burns the id
	// but records nothing, so there is no dangling unfulfillable request.
	if err := c.client.RequestRandomness(ctx, id, cfg); err != nil {
		return 0, fmt.Errorf("oracle request %d: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests[id] = &RandomnessRequest{
		RequestID:   id,
		RequestedAt: time.Now().UTC(),
	}
	c.log.Info().Uint64("request_id", id).Msg("seed requested")
	return id, nil
}

// Fulfill records the oracle's seed for a request. A second fulfillment for
// the same request is rejected, never overwritten.
func (c *RandomnessCoordinator) Fulfill(requestID uint64, seed *big.Int) error {
	if seed == nil {
		return fmt.Errorf("fulfill %d: nil seed", requestID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.requests[requestID]
	if !ok {
		return fmt.Errorf("fulfill %d: %w", requestID, ErrUnknownRequest)
	}
	if req.Fulfilled {
		return fmt.Errorf("fulfill %d: %w", requestID, ErrAlreadyFulfilled)
	}

	req.Fulfilled = true
	req.Seed = new(big.Int).Set(seed)
	req.FulfilledAt = time.Now().UTC()
	c.log.Info().Uint64("request_id", requestID).Msg("seed fulfilled")
	return nil
}

// TakeUnconsumedSeed hands out the most recently fulfilled, not-yet-consumed
// seed and marks it consumed, so no commitment can ever bind to a seed a
// previous shoe already used.
func (c *RandomnessCoordinator) TakeUnconsumedSeed() (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var newest *RandomnessRequest
	for _, req := range c.requests {
		if !req.Fulfilled || req.Consumed {
			continue
		}
		if newest == nil || req.RequestID > newest.RequestID {
			newest = req
		}
	}
	if newest == nil {
		return nil, ErrNoSeedAvailable
	}

	newest.Consumed = true
	c.log.Info().Uint64("request_id", newest.RequestID).Msg("seed consumed")
	return new(big.Int).Set(newest.Seed), nil
}

// Request returns a copy of the record, for the read-only surface.
func (c *RandomnessCoordinator) Request(requestID uint64) (RandomnessRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.requests[requestID]
	if !ok {
		return RandomnessRequest{}, ErrUnknownRequest
	}
	out := *req
	if req.Seed != nil {
		out.Seed = new(big.Int).Set(req.Seed)
	}
	return out, nil
}
