package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"chiprails/internal/oracle"

	"github.com/rs/zerolog"
)

const testOperator = "0xoperator"

func newTestCoordinator(t *testing.T) (*RandomnessCoordinator, *oracle.FakeClient) {
	t.Helper()
	client := oracle.NewFakeClient()
	access := NewAccessControl(testOperator)
	return NewRandomnessCoordinator(access, client, zerolog.Nop()), client
}

func TestRequestSeed_OperatorOnly(t *testing.T) {
	c, client := newTestCoordinator(t)

	if _, err := c.RequestSeed(context.Background(), "0xplayer"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(client.Requests()) != 0 {
		t.Fatal("unauthorized request must not reach the oracle")
	}

	id, err := c.RequestSeed(context.Background(), testOperator)
	if err != nil {
		t.Fatalf("request seed: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first request id 1, got %d", id)
	}
	if got := client.Requests(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("oracle saw %v", got)
	}
}

func TestRequestSeed_OracleFailureLeavesNoRecord(t *testing.T) {
	c, client := newTestCoordinator(t)
	client.Err = errors.New("oracle down")

	if _, err := c.RequestSeed(context.Background(), testOperator); err == nil {
		t.Fatal("expected oracle error")
	}
	client.Err = nil

	id, err := c.RequestSeed(context.Background(), testOperator)
	if err != nil {
		t.Fatalf("request seed: %v", err)
	}
	// The failed attempt burned an id but must not be fulfillable.
	if err := c.Fulfill(1, big.NewInt(7)); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("expected ErrUnknownRequest for burned id, got %v", err)
	}
	if err := c.Fulfill(id, big.NewInt(7)); err != nil {
		t.Fatalf("fulfill live request: %v", err)
	}
}

func TestFulfill_ExactlyOnce(t *testing.T) {
	c, _ := newTestCoordinator(t)

	if err := c.Fulfill(99, big.NewInt(1)); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("expected ErrUnknownRequest, got %v", err)
	}

	id, err := c.RequestSeed(context.Background(), testOperator)
	if err != nil {
		t.Fatalf("request seed: %v", err)
	}
	if err := c.Fulfill(id, big.NewInt(123456)); err != nil {
		t.Fatalf("first fulfill: %v", err)
	}
	if err := c.Fulfill(id, big.NewInt(999)); !errors.Is(err, ErrAlreadyFulfilled) {
		t.Fatalf("expected ErrAlreadyFulfilled, got %v", err)
	}

	// The stored seed must not have been overwritten.
	req, err := c.Request(id)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if req.Seed.Cmp(big.NewInt(123456)) != 0 {
		t.Fatalf("seed overwritten: %s", req.Seed)
	}
}

func TestTakeUnconsumedSeed(t *testing.T) {
	c, _ := newTestCoordinator(t)

	if _, err := c.TakeUnconsumedSeed(); !errors.Is(err, ErrNoSeedAvailable) {
		t.Fatalf("expected ErrNoSeedAvailable, got %v", err)
	}

	first, _ := c.RequestSeed(context.Background(), testOperator)
	second, _ := c.RequestSeed(context.Background(), testOperator)
	if err := c.Fulfill(first, big.NewInt(111)); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if err := c.Fulfill(second, big.NewInt(222)); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	// Most recently fulfilled unconsumed seed first.
	seed, err := c.TakeUnconsumedSeed()
	if err != nil {
		t.Fatalf("take seed: %v", err)
	}
	if seed.Cmp(big.NewInt(222)) != 0 {
		t.Fatalf("expected newest seed 222, got %s", seed)
	}

	seed, err = c.TakeUnconsumedSeed()
	if err != nil {
		t.Fatalf("take second seed: %v", err)
	}
	if seed.Cmp(big.NewInt(111)) != 0 {
		t.Fatalf("expected older seed 111, got %s", seed)
	}

	// Every seed backs at most one commitment.
	if _, err := c.TakeUnconsumedSeed(); !errors.Is(err, ErrNoSeedAvailable) {
		t.Fatalf("expected ErrNoSeedAvailable once all consumed, got %v", err)
	}
}

func TestOracleConfig_PassThrough(t *testing.T) {
	c, client := newTestCoordinator(t)

	cfg := oracle.Config{KeyHash: "0xabcd", SubscriptionID: 9999, CallbackGasLimit: 500000, Confirmations: 5}
	if err := c.SetOracleConfig("0xplayer", cfg); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := c.SetOracleConfig(testOperator, cfg); err != nil {
		t.Fatalf("set config: %v", err)
	}

	if _, err := c.RequestSeed(context.Background(), testOperator); err != nil {
		t.Fatalf("request seed: %v", err)
	}
	if got := client.LastConfig(); got != cfg {
		t.Fatalf("oracle received config %+v", got)
	}
}
