package command

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Action names the operation a command requests.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// DeadLetterSuffix is appended to a topic name to form its dead-letter topic.
const DeadLetterSuffix = "-dlq"

// DeadLetterTopic returns the dead-letter topic for topic.
func DeadLetterTopic(topic string) string {
	return topic + DeadLetterSuffix
}

// Envelope is the unit published on a command topic.
type Envelope struct {
	TraceID    string          `json:"traceId"`
	Action     Action          `json:"action"`
	Data       json.RawMessage `json:"data"`
	RetryCount int             `json:"retryCount"`
}

// NewEnvelope marshals payload into a fresh envelope with a new trace id.
func NewEnvelope(action Action, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", action, err)
	}
	return Envelope{
		TraceID: uuid.NewString(),
		Action:  action,
		Data:    data,
	}, nil
}

// Next returns the envelope to publish for the next retry.
func (e Envelope) Next() Envelope {
	return Envelope{
		TraceID:    e.TraceID,
		Action:     e.Action,
		Data:       append(json.RawMessage(nil), e.Data...),
		RetryCount: e.RetryCount + 1,
	}
}

// PartitionKey returns the entity id the command targets, used to pin all
// commands for one appointment to a single consumer lane when the broker
// supports keyed publishing. Empty when the payload carries no id.
func (e Envelope) PartitionKey() string {
	for _, path := range []string{"appointmentId", "id"} {
		if v := gjson.GetBytes(e.Data, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// DecodeEnvelope parses and validates a raw envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.TraceID == "" {
		return Envelope{}, fmt.Errorf("%w: missing traceId", ErrMalformedEnvelope)
	}
	if env.Action == "" {
		return Envelope{}, fmt.Errorf("%w: missing action", ErrMalformedEnvelope)
	}
	if env.RetryCount < 0 {
		return Envelope{}, fmt.Errorf("%w: negative retryCount", ErrMalformedEnvelope)
	}
	return env, nil
}

// DeadLetter is an envelope that exhausted its retries, plus the failure.
type DeadLetter struct {
	TraceID       string          `json:"traceId"`
	Action        Action          `json:"action"`
	Data          json.RawMessage `json:"data"`
	RetryCount    int             `json:"retryCount"`
	FailureReason string          `json:"failureReason"`
	FailedAt      time.Time       `json:"failedAt"`
}

// NewDeadLetter builds the dead-letter record for env.
func NewDeadLetter(env Envelope, reason error, at time.Time) DeadLetter {
	msg := "unknown error"
	if reason != nil {
		msg = reason.Error()
	}
	return DeadLetter{
		TraceID:       env.TraceID,
		Action:        env.Action,
		Data:          env.Data,
		RetryCount:    env.RetryCount,
		FailureReason: msg,
		FailedAt:      at.UTC(),
	}
}

// Envelope returns the original envelope.
func (d DeadLetter) Envelope() Envelope {
	return Envelope{TraceID: d.TraceID, Action: d.Action, Data: d.Data, RetryCount: d.RetryCount}
}

// EventCommandFailed is the real-time event carrying a FailureResponse.
const EventCommandFailed = "command.failed"

// StatusFailed is the only FailureResponse status.
const StatusFailed = "failed"

// FailureResponse is pushed to the originating user when a command cannot complete.
type FailureResponse struct {
	Status  string `json:"status"`
	TraceID string `json:"traceId"`
	Message string `json:"message"`
}

// NewFailureResponse builds a failed response for traceID.
func NewFailureResponse(traceID, message string) FailureResponse {
	return FailureResponse{Status: StatusFailed, TraceID: traceID, Message: message}
}
