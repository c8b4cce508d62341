package appointment_test

import (
	"context"
	"sync"

	"github.com/clinicflow/clinicflow/core/broker"
	"github.com/clinicflow/clinicflow/core/command"
)

type nopPublisher struct {
	mu sync.Mutex
	n  int
}

func (p *nopPublisher) Publish(context.Context, string, []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return nil
}

func (p *nopPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

type failureNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *failureNotifier) NotifyFailure(_ context.Context, userID string, _ command.FailureResponse) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, userID)
	return nil
}

func (n *failureNotifier) users() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

func brokerMsg(data []byte) broker.Message {
	return broker.Message{Topic: "appointment-scheduled-dlq", Data: data}
}
