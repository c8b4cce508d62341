package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clinicflow/clinicflow/core/broker"
)

// DecodeDeadJob parses a DeadJob published by a worker.
func DecodeDeadJob(data []byte) (DeadJob, error) {
	var job DeadJob
	if err := json.Unmarshal(data, &job); err != nil {
		return DeadJob{}, fmt.Errorf("decode dead job: %w", err)
	}
	if job.JobID == "" {
		return DeadJob{}, fmt.Errorf("decode dead job: missing jobId")
	}
	return job, nil
}

// NewDeadJobHandler adapts fn into a broker handler for a dead-letter topic.
func NewDeadJobHandler(fn func(ctx context.Context, job DeadJob) error) broker.Handler {
	return func(ctx context.Context, msg broker.Message) error {
		job, err := DecodeDeadJob(msg.Data)
		if err != nil {
			return err
		}
		return fn(ctx, job)
	}
}
