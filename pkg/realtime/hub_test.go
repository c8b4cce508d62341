package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/pkg/realtime"
)

type fakeSocket struct {
	mu       sync.Mutex
	frames   [][]byte
	writeErr error
	closed   bool
}

func (s *fakeSocket) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) Frames() []realtime.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.Frame, 0, len(s.frames))
	for _, raw := range s.frames {
		var f realtime.Frame
		_ = json.Unmarshal(raw, &f)
		out = append(out, f)
	}
	return out
}

func (s *fakeSocket) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestHub_Send(t *testing.T) {
	t.Parallel()

	t.Run("no connection is a no-op", func(t *testing.T) {
		t.Parallel()

		hub := realtime.NewHub()
		require.NoError(t, hub.Send(context.Background(), "ghost", "notification.new", map[string]string{"a": "b"}))
		assert.Equal(t, int64(1), hub.Stats().NoConnection)
		assert.Equal(t, int64(0), hub.Stats().Sent)
	})

	t.Run("delivers to every connection of the user only", func(t *testing.T) {
		t.Parallel()

		hub := realtime.NewHub(realtime.WithShards(4))
		phone, laptop, other := &fakeSocket{}, &fakeSocket{}, &fakeSocket{}

		_, err := hub.Register("patient-1", phone)
		require.NoError(t, err)
		_, err = hub.Register("patient-1", laptop)
		require.NoError(t, err)
		_, err = hub.Register("doctor-1", other)
		require.NoError(t, err)

		require.NoError(t, hub.Send(context.Background(), "patient-1", "notification.new", map[string]string{"message": "hi"}))

		for _, s := range []*fakeSocket{phone, laptop} {
			frames := s.Frames()
			require.Len(t, frames, 1)
			assert.Equal(t, "notification.new", frames[0].Event)
			assert.Equal(t, map[string]any{"message": "hi"}, frames[0].Payload)
			assert.False(t, frames[0].SentAt.IsZero())
		}
		assert.Empty(t, other.Frames())
		assert.Equal(t, int64(2), hub.Stats().Sent)
	})

	t.Run("failed write drops the connection without error", func(t *testing.T) {
		t.Parallel()

		hub := realtime.NewHub()
		broken := &fakeSocket{writeErr: errors.New("broken pipe")}
		_, err := hub.Register("u1", broken)
		require.NoError(t, err)

		require.NoError(t, hub.Send(context.Background(), "u1", "command.failed", nil))

		assert.False(t, hub.Connected("u1"))
		assert.True(t, broken.IsClosed())
		stats := hub.Stats()
		assert.Equal(t, int64(1), stats.WriteFailures)
		assert.Equal(t, int64(0), stats.Connections)
	})

	t.Run("validates arguments", func(t *testing.T) {
		t.Parallel()

		hub := realtime.NewHub()
		assert.ErrorIs(t, hub.Send(context.Background(), "", "e", nil), realtime.ErrUserIDRequired)
		assert.ErrorIs(t, hub.Send(context.Background(), "u", "", nil), realtime.ErrEventRequired)
	})

	t.Run("unencodable payload", func(t *testing.T) {
		t.Parallel()

		hub := realtime.NewHub()
		_, err := hub.Register("u1", &fakeSocket{})
		require.NoError(t, err)

		assert.Error(t, hub.Send(context.Background(), "u1", "e", make(chan int)))
	})
}

func TestHub_RegisterUnregister(t *testing.T) {
	t.Parallel()

	hub := realtime.NewHub()

	_, err := hub.Register("", &fakeSocket{})
	assert.ErrorIs(t, err, realtime.ErrUserIDRequired)

	s := &fakeSocket{}
	c, err := hub.Register("u1", s)
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UserID())
	assert.True(t, hub.Connected("u1"))
	assert.Equal(t, int64(1), hub.Stats().Connections)

	hub.Unregister(c)
	hub.Unregister(c)
	hub.Unregister(nil)

	assert.False(t, hub.Connected("u1"))
	assert.True(t, s.IsClosed())
	assert.Equal(t, int64(0), hub.Stats().Connections)
}

func TestHub_Close(t *testing.T) {
	t.Parallel()

	hub := realtime.NewHub()
	sockets := make([]*fakeSocket, 5)
	for i := range sockets {
		sockets[i] = &fakeSocket{}
		_, err := hub.Register(fmt.Sprintf("u%d", i), sockets[i])
		require.NoError(t, err)
	}

	hub.Close()

	for _, s := range sockets {
		assert.True(t, s.IsClosed())
	}
	assert.Equal(t, int64(0), hub.Stats().Connections)
	assert.ErrorIs(t, hub.Send(context.Background(), "u1", "e", nil), realtime.ErrHubClosed)

	_, err := hub.Register("u1", &fakeSocket{})
	assert.ErrorIs(t, err, realtime.ErrHubClosed)
}

func TestHub_Concurrent(t *testing.T) {
	t.Parallel()

	hub := realtime.NewHub(realtime.WithShards(8))
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%10)
			c, err := hub.Register(user, &fakeSocket{})
			if err != nil {
				return
			}
			_ = hub.Send(context.Background(), user, "ping", i)
			hub.Unregister(c)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(0), hub.Stats().Connections)
}
