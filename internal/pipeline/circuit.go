package pipeline

import (
	"context"
	"sync"
)

// HostCircuit skips hosts after consecutive fetch failures within one batch
type HostCircuit struct {
	mu        sync.Mutex
	threshold int
	failures  map[string]int
}

// NewHostCircuit opens a host after threshold consecutive failures.
// A non-positive threshold never opens.
func NewHostCircuit(threshold int) *HostCircuit {
	return &HostCircuit{threshold: threshold, failures: make(map[string]int)}
}

// Open reports whether host should be skipped
func (c *HostCircuit) Open(host string) bool {
	if c == nil || c.threshold <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures[host] >= c.threshold
}

// Fail records a failure for host
func (c *HostCircuit) Fail(host string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.failures[host]++
	c.mu.Unlock()
}

// Succeed clears the failure count for host
func (c *HostCircuit) Succeed(host string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.failures, host)
	c.mu.Unlock()
}

type circuitKey struct{}

// withCircuit scopes c to one batch run
func withCircuit(ctx context.Context, c *HostCircuit) context.Context {
	return context.WithValue(ctx, circuitKey{}, c)
}

// circuitFrom returns the batch's circuit, or nil outside a batch
func circuitFrom(ctx context.Context) *HostCircuit {
	c, _ := ctx.Value(circuitKey{}).(*HostCircuit)
	return c
}
