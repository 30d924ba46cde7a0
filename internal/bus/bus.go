// Package bus is the broadcast contract the core writes live updates to.
// The core only publishes; subscribers are external viewers (and tests).
package bus

import "sync"

// Well-known channels.
const (
	ChannelLiveEvents = "events.live"
	ChannelScenario   = "scenario.events"
)

// Publisher is the write side: fire-and-forget, no acknowledgment.
type Publisher interface {
	Publish(channel string, message interface{})
}

// Nop discards everything. Useful default when no viewer transport is wired.
type Nop struct{}

func (Nop) Publish(string, interface{}) {}

// Memory is an in-process fan-out bus. Each subscriber gets a buffered
// channel; a full subscriber drops the message rather than blocking the
// publisher, matching the fire-and-forget contract.
type Memory struct {
	mu   sync.RWMutex
	subs map[string][]chan interface{}
}

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]chan interface{})}
}

// Publish delivers message to every subscriber of channel without blocking.
func (m *Memory) Publish(channel string, message interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs[channel] {
		select {
		case ch <- message:
		default: // slow viewer loses messages, never slows the core
		}
	}
}

// Subscribe returns a receive channel for one bus channel with the given
// buffer size.
func (m *Memory) Subscribe(channel string, buffer int) <-chan interface{} {
	ch := make(chan interface{}, buffer)
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], ch)
	m.mu.Unlock()
	return ch
}
