package directory

import (
	"context"
	"sync"

	"contrava/pkg/platform/sentinel"
)

// InMemory is a Directory fake for development and tests.
type InMemory struct {
	mu      sync.RWMutex
	drivers map[string]Driver
	agents  map[string]Agent
}

// NewInMemory creates an empty in-memory directory.
func NewInMemory() *InMemory {
	return &InMemory{
		drivers: make(map[string]Driver),
		agents:  make(map[string]Agent),
	}
}

// AddDriver registers a driver the fake will resolve.
func (d *InMemory) AddDriver(driver Driver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drivers[driver.Ref] = driver
}

// AddAgent registers an agent the fake will resolve.
func (d *InMemory) AddAgent(agent Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[agent.Ref] = agent
}

// Driver looks up a driver reference.
func (d *InMemory) Driver(ctx context.Context, ref string) (*Driver, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	driver, ok := d.drivers[ref]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &driver, nil
}

// Agent looks up an agent reference.
func (d *InMemory) Agent(ctx context.Context, ref string) (*Agent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	agent, ok := d.agents[ref]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &agent, nil
}
