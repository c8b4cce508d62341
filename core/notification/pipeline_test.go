package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/core/broker"
	"github.com/clinicflow/clinicflow/core/command"
	"github.com/clinicflow/clinicflow/core/email"
	"github.com/clinicflow/clinicflow/core/escalation"
	"github.com/clinicflow/clinicflow/core/notification"
	"github.com/clinicflow/clinicflow/core/queue"
	"github.com/clinicflow/clinicflow/pkg/async"
)

type fixture struct {
	storage   *queue.MemoryStorage
	worker    *queue.Worker
	pipeline  *notification.Pipeline
	store     *memStore
	cache     *memCache
	sink      *recordingSink
	mailer    *mockMailer
	alerter   *recordingAlerter
	publisher *recordingPublisher
}

var users = staticDirectory{
	"patient-1": {ID: "patient-1", Name: "Ann", Email: "ann@example.com"},
	"doctor-1":  {ID: "doctor-1", Name: "Dr. Bo"},
}

func newFixture(t *testing.T, opts ...notification.Option) *fixture {
	t.Helper()

	f := &fixture{
		storage:   queue.NewMemoryStorage(),
		store:     newMemStore(),
		cache:     newMemCache(),
		sink:      &recordingSink{},
		mailer:    &mockMailer{},
		alerter:   &recordingAlerter{},
		publisher: &recordingPublisher{},
	}

	enqueuer, err := queue.NewEnqueuer(f.storage)
	require.NoError(t, err)

	f.pipeline, err = notification.NewPipeline(enqueuer, f.store, append([]notification.Option{
		notification.WithCache(f.cache),
		notification.WithSink(f.sink),
		notification.WithDirectory(users),
		notification.WithMailer(f.mailer),
		notification.WithAlerter(f.alerter),
	}, opts...)...)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	f.worker, err = queue.NewWorker(f.storage,
		queue.WithQueues(notification.QueueName),
		queue.WithDeadLetterPublisher(f.publisher),
		queue.WithAlerter(f.alerter),
		queue.WithWorkerClock(func() time.Time { return past }),
	)
	require.NoError(t, err)
	require.NoError(t, f.worker.RegisterHandler(f.pipeline.TaskHandler()))

	return f
}

func TestNewPipeline(t *testing.T) {
	t.Parallel()

	_, err := notification.NewPipeline(nil, newMemStore())
	assert.ErrorIs(t, err, notification.ErrEnqueuerNil)

	enqueuer, err := queue.NewEnqueuer(queue.NewMemoryStorage())
	require.NoError(t, err)
	_, err = notification.NewPipeline(enqueuer, nil)
	assert.ErrorIs(t, err, notification.ErrStoreNil)
}

func TestSendNotifications(t *testing.T) {
	t.Parallel()

	t.Run("schedules a delivery task with the notification budget", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		before := time.Now()

		id, err := f.pipeline.SendNotifications(context.Background(), "patient-1", "Reminder", "trace-1", time.Hour,
			map[string]any{"appointmentId": "appt-1"})
		require.NoError(t, err)

		task, err := f.storage.GetTask(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, notification.QueueName, task.Queue)
		assert.Equal(t, notification.TaskDeliver, task.TaskName)
		assert.Equal(t, notification.DefaultMaxAttempts, task.MaxAttempts)
		assert.Equal(t, notification.DeadLetterTopic, task.DeadLetterTopic)
		assert.Equal(t, notification.DefaultBackoffBase, task.BackoffBase)
		assert.Equal(t, "trace-1", task.TraceID)
		assert.Equal(t, "patient-1", task.OwnerID)
		assert.WithinDuration(t, before.Add(time.Hour), task.ScheduledAt, 5*time.Second)

		var payload notification.Task
		require.NoError(t, json.Unmarshal(task.Payload, &payload))
		assert.Equal(t, "Reminder", payload.Message)
		assert.Equal(t, "appt-1", payload.Metadata["appointmentId"])

		assert.Equal(t, int64(1), f.pipeline.Stats().Scheduled)
	})

	t.Run("negative delay fires immediately", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		id, err := f.pipeline.SendNotifications(context.Background(), "patient-1", "now", "", -time.Minute, nil)
		require.NoError(t, err)

		task, err := f.storage.GetTask(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, task.ScheduledAt.After(time.Now()))
	})

	t.Run("custom budget", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, notification.WithMaxAttempts(7), notification.WithBackoffBase(time.Minute))
		id, err := f.pipeline.SendNotifications(context.Background(), "patient-1", "x", "", 0, nil)
		require.NoError(t, err)

		task, err := f.storage.GetTask(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 7, task.MaxAttempts)
		assert.Equal(t, time.Minute, task.BackoffBase)
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.pipeline.SendNotifications(context.Background(), "", "m", "", 0, nil)
		assert.ErrorIs(t, err, notification.ErrUserIDRequired)
		_, err = f.pipeline.SendNotifications(context.Background(), "u", "", "", 0, nil)
		assert.ErrorIs(t, err, notification.ErrMessageRequired)
	})
}

func TestDeliver(t *testing.T) {
	t.Parallel()

	t.Run("worker persists, invalidates and pushes", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.cache.lists["patient-1"] = []notification.Notification{{Message: "stale"}}

		id, err := f.pipeline.SendNotifications(context.Background(), "patient-1", "Your appointment is confirmed", "trace-9", 0, nil)
		require.NoError(t, err)

		require.NoError(t, f.worker.ProcessNext(context.Background()))

		require.Equal(t, 1, f.store.count())
		stored := f.store.rows[id.String()]
		assert.Equal(t, "Your appointment is confirmed", stored.Message)
		assert.Equal(t, "trace-9", stored.TraceID)

		assert.Equal(t, []string{"patient-1"}, f.cache.invalidated)
		_, cached := f.cache.lists["patient-1"]
		assert.False(t, cached)

		pushes := f.sink.all()
		require.Len(t, pushes, 1)
		assert.Equal(t, "patient-1", pushes[0].UserID)
		assert.Equal(t, notification.EventNew, pushes[0].Event)

		assert.Equal(t, int64(1), f.pipeline.Stats().Delivered)
	})

	t.Run("redelivery of the same task does not duplicate", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := queue.WithTaskInfo(context.Background(), queue.TaskInfo{ID: uuid.NewString()})
		task := notification.Task{UserID: "patient-1", Message: "hello"}

		require.NoError(t, f.pipeline.Deliver(ctx, task))
		require.NoError(t, f.pipeline.Deliver(ctx, task))

		assert.Equal(t, 1, f.store.count())
		assert.Len(t, f.sink.all(), 2)
	})

	t.Run("store failure is returned for retry", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.store.createErr = errStoreDown

		err := f.pipeline.Deliver(context.Background(), notification.Task{UserID: "patient-1", Message: "x"})
		assert.ErrorIs(t, err, errStoreDown)
		assert.Empty(t, f.sink.all())
	})
}

func TestDeliveryExhaustion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.createErr = errStoreDown
	ctx := context.Background()

	id, err := f.pipeline.SendNotifications(ctx, "patient-1", "Reminder: appointment in 1 hour", "trace-7", 0, nil)
	require.NoError(t, err)

	for range notification.DefaultMaxAttempts {
		require.NoError(t, f.worker.ProcessNext(ctx))
	}
	assert.ErrorIs(t, f.worker.ProcessNext(ctx), queue.ErrNoTaskToClaim)
	assert.Equal(t, notification.DefaultMaxAttempts, f.store.creates)

	dlq := f.storage.DeadLetters()
	require.Len(t, dlq, 1)

	msgs := f.publisher.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, notification.DeadLetterTopic, msgs[0].Topic)
	assert.Equal(t, "patient-1", msgs[0].Key)

	job, err := queue.DecodeDeadJob(msgs[0].Data)
	require.NoError(t, err)
	assert.Equal(t, id.String(), job.JobID)
	assert.Equal(t, notification.DefaultMaxAttempts, job.Attempts)

	f.mailer.On("SendEmail", mock.Anything, mock.MatchedBy(func(p email.SendEmailParams) bool {
		return p.SendTo == "ann@example.com" && p.Tag == "notification-failed"
	})).Return(nil).Once()

	handler := f.pipeline.DeadLetterHandler()
	require.NoError(t, handler(ctx, broker.Message{Topic: msgs[0].Topic, Data: msgs[0].Data}))

	f.mailer.AssertExpectations(t)
	f.mailer.AssertNumberOfCalls(t, "SendEmail", 1)
	alerts := f.alerter.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, escalation.SeverityWarning, alerts[0].Severity)
	assert.Equal(t, "trace-7", alerts[0].TraceID)
	assert.Equal(t, job.JobID, alerts[0].JobID)
	assert.Equal(t, int64(1), f.pipeline.Stats().UserEmails)
}

func deadJob(t *testing.T, userID string) queue.DeadJob {
	t.Helper()
	payload, err := json.Marshal(notification.Task{UserID: userID, Message: "m", TraceID: "trace-x"})
	require.NoError(t, err)
	return queue.DeadJob{
		JobID:    uuid.NewString(),
		Queue:    notification.QueueName,
		TaskName: notification.TaskDeliver,
		Payload:  payload,
		Error:    "store down",
		Attempts: 3,
		OwnerID:  userID,
	}
}

func TestHandleDeadLetter(t *testing.T) {
	t.Parallel()

	t.Run("user email failure does not suppress the admin alert", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		mailErr := errors.New("smtp refused")
		f.mailer.On("SendEmail", mock.Anything, mock.Anything).Return(mailErr).Once()

		err := f.pipeline.HandleDeadLetter(context.Background(), deadJob(t, "patient-1"))
		assert.ErrorIs(t, err, mailErr)

		f.mailer.AssertNumberOfCalls(t, "SendEmail", 1)
		alerts := f.alerter.all()
		require.Len(t, alerts, 1)
		assert.Equal(t, escalation.SeverityWarning, alerts[0].Severity)
		assert.Equal(t, "patient-1", alerts[0].UserID)
		assert.Equal(t, int64(0), f.pipeline.Stats().UserEmails)
	})

	t.Run("mailer panic is contained", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, notification.WithMailer(panickingMailer{}))

		var err error
		require.NotPanics(t, func() {
			err = f.pipeline.HandleDeadLetter(context.Background(), deadJob(t, "patient-1"))
		})
		assert.ErrorIs(t, err, async.ErrPanic)
		assert.Len(t, f.alerter.all(), 1)
	})

	t.Run("user without email address", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		err := f.pipeline.HandleDeadLetter(context.Background(), deadJob(t, "doctor-1"))
		assert.ErrorIs(t, err, notification.ErrNoEmailAddress)
		f.mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
		assert.Len(t, f.alerter.all(), 1)
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		err := f.pipeline.HandleDeadLetter(context.Background(), deadJob(t, "nobody"))
		assert.ErrorIs(t, err, notification.ErrUserNotFound)
	})

	t.Run("cancelled consumer context still emails and alerts", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.mailer.On("SendEmail", mock.Anything, mock.MatchedBy(func(p email.SendEmailParams) bool {
			return p.SendTo == "ann@example.com" &&
				strings.Contains(p.BodyHTML, "Notification not delivered") &&
				strings.Contains(p.BodyHTML, "after 3 attempts")
		})).Return(nil).Once()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.NoError(t, f.pipeline.HandleDeadLetter(ctx, deadJob(t, "patient-1")))
		f.mailer.AssertExpectations(t)
		assert.Len(t, f.alerter.all(), 1)
		assert.Equal(t, int64(1), f.pipeline.Stats().UserEmails)
	})

	t.Run("malformed payload falls back to job owner", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.mailer.On("SendEmail", mock.Anything, mock.Anything).Return(nil).Once()

		job := deadJob(t, "patient-1")
		job.Payload = json.RawMessage(`"not an object"`)
		job.TraceID = "trace-owner"

		require.NoError(t, f.pipeline.HandleDeadLetter(context.Background(), job))
		warnings := f.alerter.bySeverity(escalation.SeverityWarning)
		require.Len(t, warnings, 1)
		assert.Equal(t, "patient-1", warnings[0].UserID)
		assert.Equal(t, "trace-owner", warnings[0].TraceID)
	})
}

func TestNotifyFailure(t *testing.T) {
	t.Parallel()

	resp := command.NewFailureResponse("trace-1", "Your request failed after 5 retries.")

	t.Run("pushes command.failed", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.pipeline.NotifyFailure(context.Background(), "patient-1", resp))

		pushes := f.sink.all()
		require.Len(t, pushes, 1)
		assert.Equal(t, command.EventCommandFailed, pushes[0].Event)
		assert.Equal(t, resp, pushes[0].Payload)
	})

	t.Run("sink failure is returned", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.sink.err = errors.New("closed")
		assert.Error(t, f.pipeline.NotifyFailure(context.Background(), "patient-1", resp))
		assert.Equal(t, int64(1), f.pipeline.Stats().PushFailures)
	})

	t.Run("requires user", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		assert.ErrorIs(t, f.pipeline.NotifyFailure(context.Background(), "", resp), notification.ErrUserIDRequired)
	})
}

func TestRecent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.pipeline.Deliver(ctx, notification.Task{UserID: "patient-1", Message: "one"}))

	list, err := f.pipeline.Recent(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	cached, ok := f.cache.lists["patient-1"]
	require.True(t, ok)
	assert.Equal(t, list, cached)

	f.cache.lists["patient-1"] = []notification.Notification{{Message: "from cache"}}
	list, err = f.pipeline.Recent(ctx, "patient-1")
	require.NoError(t, err)
	assert.Equal(t, "from cache", list[0].Message)

	f.cache.getErr = errors.New("redis down")
	list, err = f.pipeline.Recent(ctx, "patient-1")
	require.NoError(t, err)
	assert.Equal(t, "one", list[0].Message)

	_, err = f.pipeline.Recent(ctx, "")
	assert.ErrorIs(t, err, notification.ErrUserIDRequired)
}
