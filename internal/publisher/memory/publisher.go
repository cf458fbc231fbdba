// Package memory records run events in process so tests can assert on
// what would have been published.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// PublishedMessage is one recorded publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// Publisher appends every publish to an in-process log.
type Publisher struct {
	mu  sync.Mutex
	seq int
	log []PublishedMessage
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message. IDs count up from mem-1 per Publisher.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.log = append(p.log, PublishedMessage{Topic: topic, Payload: payload})
	return fmt.Sprintf("mem-%d", p.seq), nil
}

// Messages returns a copy of the recorded publishes in publish order.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.log)
}
