package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue is specified.
const DefaultQueueName = "default"

// TaskStatus tracks the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Priority represents task priority (0-100, higher runs first).
type Priority int8

const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within 0-100.
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Task is a scheduled job.
//
// RetryCount is the number of attempts that already failed. MaxAttempts
// bounds the total number of attempts, the first one included.
type Task struct {
	ID              uuid.UUID     `json:"id"`
	Queue           string        `json:"queue"`
	TaskName        string        `json:"task_name"`
	Payload         []byte        `json:"payload,omitempty"`
	Status          TaskStatus    `json:"status"`
	Priority        Priority      `json:"priority"`
	RetryCount      int           `json:"retry_count"`
	MaxAttempts     int           `json:"max_attempts"`
	BackoffBase     time.Duration `json:"backoff_base"`
	DeadLetterTopic string        `json:"dead_letter_topic,omitempty"`
	TraceID         string        `json:"trace_id,omitempty"`
	OwnerID         string        `json:"owner_id,omitempty"`
	ScheduledAt     time.Time     `json:"scheduled_at"`
	LockedUntil     *time.Time    `json:"locked_until,omitempty"`
	LockedBy        *uuid.UUID    `json:"locked_by,omitempty"`
	ProcessedAt     *time.Time    `json:"processed_at,omitempty"`
	Error           *string       `json:"error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Backoff returns the retry policy of the task.
func (t *Task) Backoff() Backoff {
	return Exponential(t.BackoffBase)
}

// TasksDlq is a task that exhausted its attempts, kept for inspection.
type TasksDlq struct {
	ID              uuid.UUID `json:"id"`
	TaskID          uuid.UUID `json:"task_id"`
	Queue           string    `json:"queue"`
	TaskName        string    `json:"task_name"`
	Payload         []byte    `json:"payload,omitempty"`
	Priority        Priority  `json:"priority"`
	Error           string    `json:"error"`
	RetryCount      int       `json:"retry_count"`
	DeadLetterTopic string    `json:"dead_letter_topic,omitempty"`
	TraceID         string    `json:"trace_id,omitempty"`
	OwnerID         string    `json:"owner_id,omitempty"`
	FailedAt        time.Time `json:"failed_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// DeadJob is published to a task's dead-letter topic once it is exhausted.
type DeadJob struct {
	JobID    string          `json:"jobId"`
	Queue    string          `json:"queue"`
	TaskName string          `json:"taskName"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    string          `json:"error"`
	Attempts int             `json:"attempts"`
	TraceID  string          `json:"traceId,omitempty"`
	OwnerID  string          `json:"ownerId,omitempty"`
	FailedAt time.Time       `json:"failedAt"`
}

// NewDeadJob builds the dead-letter record for task.
func NewDeadJob(task *Task, reason string, attempts int, at time.Time) DeadJob {
	return DeadJob{
		JobID:    task.ID.String(),
		Queue:    task.Queue,
		TaskName: task.TaskName,
		Payload:  json.RawMessage(task.Payload),
		Error:    reason,
		Attempts: attempts,
		TraceID:  task.TraceID,
		OwnerID:  task.OwnerID,
		FailedAt: at.UTC(),
	}
}
