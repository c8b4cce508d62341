package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Handler processes tasks of one type.
type Handler interface {
	// Name is the task name the handler is registered under.
	Name() string
	// Handle processes the raw JSON payload.
	Handle(ctx context.Context, payload json.RawMessage) error
}

// TaskHandlerFunc is a type-safe handler function.
type TaskHandlerFunc[T any] func(ctx context.Context, payload T) error

// NewTaskHandler creates a handler named after the payload type.
func NewTaskHandler[T any](handler TaskHandlerFunc[T]) Handler {
	var payload T
	return NewNamedTaskHandler(qualifiedStructName(payload), handler)
}

// NewNamedTaskHandler creates a handler with an explicit task name.
func NewNamedTaskHandler[T any](name string, handler TaskHandlerFunc[T]) Handler {
	return &taskHandler[T]{name: name, handler: handler}
}

type taskHandler[T any] struct {
	name    string
	handler TaskHandlerFunc[T]
}

func (h *taskHandler[T]) Name() string {
	return h.name
}

func (h *taskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("decode %s payload: %w", h.name, err)
	}
	return h.handler(ctx, t)
}

// qualifiedStructName derives a task name from a payload type.
func qualifiedStructName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}

// TaskInfo describes the task being handled.
type TaskInfo struct {
	ID          string
	Queue       string
	TaskName    string
	Attempt     int
	MaxAttempts int
	TraceID     string
	OwnerID     string
}

type taskInfoCtx struct{}

// WithTaskInfo attaches task info to ctx.
func WithTaskInfo(ctx context.Context, info TaskInfo) context.Context {
	return context.WithValue(ctx, taskInfoCtx{}, info)
}

// TaskInfoFromContext returns the info of the task being handled.
func TaskInfoFromContext(ctx context.Context) (TaskInfo, bool) {
	info, ok := ctx.Value(taskInfoCtx{}).(TaskInfo)
	return info, ok
}
