// Package memory provides an in-process publisher used when no Pub/Sub
// project is configured, and by tests that inspect run-summary delivery.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher keeps everything published on it, in order.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// Message is one recorded publish call.
type Message struct {
	Topic   string
	Payload any
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the payload under its topic and returns a synthetic
// server ID, mirroring the Pub/Sub publisher's contract.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Topic: topic, Payload: payload})
	return fmt.Sprintf("mem-%s-%d", topic, len(p.messages)), nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
