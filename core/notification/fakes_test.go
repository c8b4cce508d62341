package notification_test

import (
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/clinicflow/clinicflow/core/email"
	"github.com/clinicflow/clinicflow/core/escalation"
	"github.com/clinicflow/clinicflow/core/notification"
)

type memStore struct {
	mu        sync.Mutex
	rows      map[string]notification.Notification
	order     []string
	createErr error
	creates   int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]notification.Notification)}
}

func (s *memStore) Create(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return s.createErr
	}
	key := n.ID.String()
	if _, ok := s.rows[key]; !ok {
		s.order = append(s.order, key)
	}
	s.rows[key] = *n
	return nil
}

func (s *memStore) ListRecent(_ context.Context, userID string, limit int) ([]notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notification.Notification
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		if n := s.rows[s.order[i]]; n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memCache struct {
	mu          sync.Mutex
	lists       map[string][]notification.Notification
	invalidated []string
	getErr      error
}

func newMemCache() *memCache {
	return &memCache{lists: make(map[string][]notification.Notification)}
}

func (c *memCache) Get(_ context.Context, userID string) ([]notification.Notification, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	l, ok := c.lists[userID]
	return l, ok, nil
}

func (c *memCache) Set(_ context.Context, userID string, list []notification.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[userID] = list
	return nil
}

func (c *memCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lists, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

type pushed struct {
	UserID  string
	Event   string
	Payload any
}

type recordingSink struct {
	mu     sync.Mutex
	pushes []pushed
	err    error
}

func (s *recordingSink) Send(_ context.Context, userID, event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.pushes = append(s.pushes, pushed{userID, event, payload})
	return nil
}

func (s *recordingSink) all() []pushed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pushed(nil), s.pushes...)
}

type staticDirectory map[string]notification.User

func (d staticDirectory) FindByID(_ context.Context, id string) (notification.User, error) {
	u, ok := d[id]
	if !ok {
		return notification.User{}, notification.ErrUserNotFound
	}
	return u, nil
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendEmail(ctx context.Context, params email.SendEmailParams) error {
	return m.Called(ctx, params).Error(0)
}

type panickingMailer struct{}

func (panickingMailer) SendEmail(context.Context, email.SendEmailParams) error {
	panic("smtp client exploded")
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

func (a *recordingAlerter) bySeverity(s escalation.Severity) []escalation.Alert {
	var out []escalation.Alert
	for _, al := range a.all() {
		if al.Severity == s {
			out = append(out, al)
		}
	}
	return out
}

type publishedMsg struct {
	Topic string
	Key   string
	Data  []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []publishedMsg
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, data []byte) error {
	return p.PublishKeyed(ctx, topic, "", data)
}

func (p *recordingPublisher) PublishKeyed(_ context.Context, topic, key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, publishedMsg{Topic: topic, Key: key, Data: data})
	return nil
}

func (p *recordingPublisher) all() []publishedMsg {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMsg(nil), p.msgs...)
}

var errStoreDown = errors.New("store down")
