package oracle

import (
	"context"
	"sync"
)

// FakeClient records outbound requests so tests can drive fulfillment by hand.
type FakeClient struct {
	mu       sync.Mutex
	requests []uint64
	configs  []Config
	Err      error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

func (f *FakeClient) RequestRandomness(_ context.Context, requestID uint64, cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.requests = append(f.requests, requestID)
	f.configs = append(f.configs, cfg)
	return nil
}

// Requests returns the request ids seen so far, oldest first.
func (f *FakeClient) Requests() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(f.requests))
	copy(out, f.requests)
	return out
}

// LastConfig returns the config sent with the most recent request.
func (f *FakeClient) LastConfig() Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.configs) == 0 {
		return Config{}
	}
	return f.configs[len(f.configs)-1]
}
