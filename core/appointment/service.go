package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/core/broker"
	"github.com/clinicflow/clinicflow/core/command"
	"github.com/clinicflow/clinicflow/core/escalation"
	"github.com/clinicflow/clinicflow/core/logger"
	"github.com/clinicflow/clinicflow/core/queue"
	"github.com/clinicflow/clinicflow/pkg/async"
)

// Repository is the appointment data store.
type Repository interface {
	FindByID(ctx context.Context, id string) (Appointment, error)
	Create(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, id string, patch Patch) error
}

// CommandPublisher publishes command envelopes. *command.Router implements it.
type CommandPublisher interface {
	Publish(ctx context.Context, topic string, env command.Envelope) error
}

// Notifier schedules user notifications. *notification.Pipeline implements it.
type Notifier interface {
	SendNotifications(ctx context.Context, userID, message, traceID string, delay time.Duration, metadata map[string]any) (uuid.UUID, error)
}

// Scheduler enqueues delayed jobs. *queue.Enqueuer and *queue.Service implement it.
type Scheduler interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// Alerter raises administrator alerts.
type Alerter interface {
	Alert(ctx context.Context, a escalation.Alert)
}

// Service applies the state machine to commands and scheduled jobs.
type Service struct {
	repo      Repository
	commands  CommandPublisher
	notifier  Notifier
	scheduler Scheduler
	alerter   Alerter

	topic          string
	jobQueue       string
	jobDLQ         string
	jobMaxAttempts int
	jobBackoffBase time.Duration
	logger         *slog.Logger
	now            func() time.Time

	submitted    atomic.Int64
	transitioned atomic.Int64
	replayed     atomic.Int64
	staleJobs    atomic.Int64
	deadJobs     atomic.Int64
}

// Stats provides observability counters.
type Stats struct {
	Submitted    int64 // commands published by Submit and SubmitCreate
	Transitioned int64 // transitions persisted
	Replayed     int64 // redelivered commands whose side effects were replayed
	StaleJobs    int64 // scheduled jobs rejected by the state machine
	DeadJobs     int64 // exhausted scheduled jobs
}

// NewService creates a Service.
func NewService(repo Repository, commands CommandPublisher, notifier Notifier, scheduler Scheduler, opts ...Option) (*Service, error) {
	switch {
	case repo == nil:
		return nil, ErrRepositoryNil
	case commands == nil:
		return nil, ErrCommandsNil
	case notifier == nil:
		return nil, ErrNotifierNil
	case scheduler == nil:
		return nil, ErrSchedulerNil
	}

	s := &Service{
		repo:           repo,
		commands:       commands,
		notifier:       notifier,
		scheduler:      scheduler,
		topic:          CommandTopic,
		jobQueue:       JobQueue,
		jobDLQ:         JobDeadLetterTopic,
		jobMaxAttempts: DefaultJobMaxAttempts,
		jobBackoffBase: DefaultJobBackoffBase,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register installs the command handlers on r.
func (s *Service) Register(r *command.Router) {
	r.Handle(command.ActionCreate, s.HandleCreate)
	r.Handle(command.ActionUpdate, s.HandleUpdate)
}

// TaskHandler returns the queue handler for scheduled status jobs.
func (s *Service) TaskHandler() queue.Handler {
	return queue.NewNamedTaskHandler(TaskScheduledStatus, s.HandleScheduledStatus)
}

// DeadLetterHandler returns the broker handler for exhausted scheduled jobs.
func (s *Service) DeadLetterHandler() broker.Handler {
	return queue.NewDeadJobHandler(s.HandleScheduledDeadLetter)
}

// Topic returns the command topic.
func (s *Service) Topic() string {
	return s.topic
}

// Submit validates cmd synchronously and publishes an update command.
// Role and reason rejections are returned to the caller as *TransitionError.
// It returns the trace id of the published command.
func (s *Service) Submit(ctx context.Context, cmd UpdateStatus) (string, error) {
	if err := cmd.validate(); err != nil {
		return "", &PayloadError{Err: err}
	}
	if err := Precheck(cmd.Status, cmd.Role, cmd.Reason); err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			te.AppointmentID = cmd.AppointmentID
		}
		return "", err
	}

	env, err := command.NewEnvelope(command.ActionUpdate, cmd)
	if err != nil {
		return "", err
	}
	if err := s.commands.Publish(ctx, s.topic, env); err != nil {
		return "", &command.TransportError{Topic: s.topic, Op: "submit", TraceID: env.TraceID, Err: err}
	}

	s.submitted.Add(1)
	s.logger.InfoContext(ctx, "status change submitted",
		logger.AppointmentID(cmd.AppointmentID),
		logger.Status(string(cmd.Status)),
		logger.TraceID(env.TraceID))

	return env.TraceID, nil
}

// SubmitCreate publishes a create command. A missing appointment id is
// generated so redelivered creates stay idempotent. It returns the
// appointment id and the trace id.
func (s *Service) SubmitCreate(ctx context.Context, cmd Create) (string, string, error) {
	if cmd.AppointmentID == "" {
		cmd.AppointmentID = uuid.NewString()
	}
	if err := cmd.validate(); err != nil {
		return "", "", &PayloadError{Err: err}
	}

	env, err := command.NewEnvelope(command.ActionCreate, cmd)
	if err != nil {
		return "", "", err
	}
	if err := s.commands.Publish(ctx, s.topic, env); err != nil {
		return "", "", &command.TransportError{Topic: s.topic, Op: "submit", TraceID: env.TraceID, Err: err}
	}

	s.submitted.Add(1)
	s.logger.InfoContext(ctx, "appointment creation submitted",
		logger.AppointmentID(cmd.AppointmentID),
		logger.TraceID(env.TraceID))

	return cmd.AppointmentID, env.TraceID, nil
}

// HandleCreate is the command handler for ActionCreate.
func (s *Service) HandleCreate(ctx context.Context, data json.RawMessage, traceID string) error {
	var cmd Create
	if err := json.Unmarshal(data, &cmd); err != nil {
		return &PayloadError{Err: err}
	}
	if err := cmd.validate(); err != nil {
		return &PayloadError{Err: err}
	}

	a := cmd.Appointment()
	if err := s.repo.Create(ctx, &a); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			s.logger.InfoContext(ctx, "appointment already created, skipping",
				logger.AppointmentID(a.ID), logger.TraceID(traceID))
			return nil
		}
		return fmt.Errorf("create appointment %s: %w", a.ID, err)
	}

	s.logger.InfoContext(ctx, "appointment created",
		logger.AppointmentID(a.ID), logger.TraceID(traceID))
	return nil
}

// HandleUpdate is the command handler for ActionUpdate. A redelivered command
// whose status is already persisted replays the side effects instead of
// being rejected.
func (s *Service) HandleUpdate(ctx context.Context, data json.RawMessage, traceID string) error {
	var cmd UpdateStatus
	if err := json.Unmarshal(data, &cmd); err != nil {
		return &PayloadError{Err: err}
	}
	if err := cmd.validate(); err != nil {
		return &PayloadError{Err: err}
	}

	current, err := s.repo.FindByID(ctx, cmd.AppointmentID)
	if err != nil {
		return fmt.Errorf("load appointment %s: %w", cmd.AppointmentID, err)
	}

	if current.Status == cmd.Status && command.RetryCountFromContext(ctx) > 0 {
		s.replayed.Add(1)
		s.logger.InfoContext(ctx, "status already applied, replaying side effects",
			logger.AppointmentID(current.ID),
			logger.Status(string(current.Status)),
			logger.TraceID(traceID))
		return s.dispatch(ctx, current, Replay(current), traceID)
	}

	return s.apply(ctx, current, cmd.Status, cmd.Role, cmd.Reason, traceID)
}

// HandleScheduledStatus runs a delayed status job as the system admin. A
// rejection by the state machine means the job is stale and is ignored.
func (s *Service) HandleScheduledStatus(ctx context.Context, job ScheduledStatus) error {
	traceID := logger.TraceIDFromContext(ctx)
	if job.AppointmentID == "" || !job.Status.Valid() {
		return &PayloadError{Err: fmt.Errorf("scheduled job %+v", job)}
	}

	current, err := s.repo.FindByID(ctx, job.AppointmentID)
	if err != nil {
		return fmt.Errorf("load appointment %s: %w", job.AppointmentID, err)
	}

	err = s.apply(ctx, current, job.Status, RoleAdmin, "", traceID)

	var te *TransitionError
	if errors.As(err, &te) {
		s.staleJobs.Add(1)
		s.logger.InfoContext(ctx, "stale scheduled transition ignored",
			logger.AppointmentID(current.ID),
			slog.String("current_status", string(current.Status)),
			slog.String("requested_status", string(job.Status)),
			logger.TraceID(traceID),
			logger.Error(err))
		return nil
	}
	return err
}

// HandleScheduledDeadLetter alerts the administrator about an exhausted status job.
func (s *Service) HandleScheduledDeadLetter(ctx context.Context, dead queue.DeadJob) error {
	s.deadJobs.Add(1)

	var job ScheduledStatus
	_ = json.Unmarshal(dead.Payload, &job)

	s.logger.ErrorContext(ctx, "scheduled appointment transition exhausted",
		logger.JobID(dead.JobID),
		logger.AppointmentID(job.AppointmentID),
		logger.TraceID(dead.TraceID),
		logger.Attempts(dead.Attempts),
		slog.String("reason", dead.Error))

	if s.alerter != nil {
		s.alerter.Alert(ctx, escalation.Alert{
			Severity: escalation.SeverityWarning,
			Subject:  fmt.Sprintf("Scheduled %s transition failed", job.Status),
			Reason:   dead.Error,
			TraceID:  dead.TraceID,
			UserID:   dead.OwnerID,
			JobID:    dead.JobID,
			Source:   s.jobDLQ,
			Details: map[string]string{
				"appointment_id": job.AppointmentID,
				"status":         string(job.Status),
				"attempts":       strconv.Itoa(dead.Attempts),
			},
		})
	}
	return nil
}

func (s *Service) apply(ctx context.Context, current Appointment, requested Status, actor Role, reason, traceID string) error {
	d, err := Transition(current, requested, actor, reason)
	if err != nil {
		return err
	}

	if err := s.repo.Update(ctx, current.ID, d.Patch); err != nil {
		return fmt.Errorf("update appointment %s: %w", current.ID, err)
	}
	s.transitioned.Add(1)

	s.logger.InfoContext(ctx, "appointment transitioned",
		logger.AppointmentID(current.ID),
		slog.String("from", string(d.From)),
		slog.String("to", string(d.To)),
		slog.String("actor", string(actor)),
		logger.TraceID(traceID))

	return s.dispatch(ctx, d.Patch.Apply(current), d, traceID)
}

// dispatch sends the decision's side effects. Immediate notifications are
// fanned out concurrently; every effect is attempted and all errors are joined.
func (s *Service) dispatch(ctx context.Context, a Appointment, d Decision, traceID string) error {
	if !d.HasEffects() {
		return nil
	}

	metadata := map[string]any{
		"appointmentId": a.ID,
		"status":        string(a.Status),
	}

	futures := make([]*async.ExecFuture, 0, len(d.Notify))
	for _, n := range d.Notify {
		futures = append(futures, async.Exec(ctx, n, func(ctx context.Context, n Notice) error {
			return s.notify(ctx, n, 0, traceID, metadata)
		}))
	}
	errs := []error{async.JoinAll(futures...)}

	for _, n := range d.Remind {
		errs = append(errs, s.notify(ctx, n, n.At.Sub(s.now()), traceID, metadata))
	}

	if d.Schedule != nil {
		errs = append(errs, s.schedule(ctx, a, *d.Schedule, traceID))
	}

	return errors.Join(errs...)
}

func (s *Service) notify(ctx context.Context, n Notice, delay time.Duration, traceID string, metadata map[string]any) error {
	if n.UserID == "" {
		s.logger.WarnContext(ctx, "notification without recipient skipped", logger.TraceID(traceID))
		return nil
	}
	if _, err := s.notifier.SendNotifications(ctx, n.UserID, n.Message, traceID, delay, metadata); err != nil {
		return fmt.Errorf("notify %s: %w", n.UserID, err)
	}
	return nil
}

func (s *Service) schedule(ctx context.Context, a Appointment, st ScheduledTransition, traceID string) error {
	id, err := s.scheduler.Enqueue(ctx, ScheduledStatus{AppointmentID: a.ID, Status: st.Status},
		queue.WithQueue(s.jobQueue),
		queue.WithTaskName(TaskScheduledStatus),
		queue.WithScheduledAt(st.At),
		queue.WithMaxAttempts(s.jobMaxAttempts),
		queue.WithBackoff(queue.Exponential(s.jobBackoffBase)),
		queue.WithDeadLetterTopic(s.jobDLQ),
		queue.WithTraceID(traceID),
		queue.WithOwner(a.PatientID),
	)
	if err != nil {
		return fmt.Errorf("schedule %s for appointment %s: %w", st.Status, a.ID, err)
	}

	s.logger.InfoContext(ctx, "status transition scheduled",
		logger.AppointmentID(a.ID),
		logger.Status(string(st.Status)),
		logger.JobID(id.String()),
		slog.Time("run_at", st.At),
		logger.TraceID(traceID))
	return nil
}

// Stats returns a snapshot of service counters.
func (s *Service) Stats() Stats {
	return Stats{
		Submitted:    s.submitted.Load(),
		Transitioned: s.transitioned.Load(),
		Replayed:     s.replayed.Load(),
		StaleJobs:    s.staleJobs.Load(),
		DeadJobs:     s.deadJobs.Load(),
	}
}
