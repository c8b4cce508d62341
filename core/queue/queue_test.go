package queue_test

import (
	"context"
	"errors"
	"sync"

	"github.com/clinicflow/clinicflow/core/broker"
	"github.com/clinicflow/clinicflow/core/escalation"
)

type publishedMsg struct {
	Topic string
	Key   string
	Data  []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []publishedMsg
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, data []byte) error {
	return p.PublishKeyed(ctx, topic, "", data)
}

func (p *recordingPublisher) PublishKeyed(_ context.Context, topic, key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, publishedMsg{Topic: topic, Key: key, Data: data})
	return nil
}

func (p *recordingPublisher) all() []publishedMsg {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMsg(nil), p.msgs...)
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []escalation.Alert
}

func (a *recordingAlerter) Alert(_ context.Context, alert escalation.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
}

func (a *recordingAlerter) all() []escalation.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]escalation.Alert(nil), a.alerts...)
}

var errBrokerDown = errors.New("broker down")

type reminderPayload struct {
	AppointmentID string `json:"appointmentId"`
	UserID        string `json:"userId"`
}

func brokerMessage(data string) broker.Message {
	return broker.Message{Data: []byte(data)}
}
