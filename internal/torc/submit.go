// Package torc implements the pipeline orchestrator (C8): provisions the
// shared PVC, sequences Tif -> Texam -> Tof, and surfaces terminal state,
// grounded on original_source/poiesis/core/services/torc/torc.py and
// torc_execution_template.py.
package torc

import (
	"context"

	batchv1 "k8s.io/api/batch/v1"

	"github.com/poiesis-tes/poiesis/internal/broker"
	"github.com/poiesis-tes/poiesis/internal/orchestrator"
	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
	"github.com/poiesis-tes/poiesis/internal/task"
)

// submitAndWait builds and submits a stage Job, then blocks on the task's
// channel for exactly one message, treating ERROR status as failure — the
// procedure shared by Tif/Texam/Tof submission (spec.md §4.8), factored
// out of TorcExecutionTemplate's duplicated start_job/wait pair.
func submitAndWait(ctx context.Context, orch orchestrator.Port, brk broker.Port, taskID string, job *batchv1.Job) error {
	if _, err := orch.CreateJob(ctx, job); err != nil {
		return err
	}

	msg, err := brk.Next(ctx, task.TaskChannel(taskID))
	if err != nil {
		return err
	}
	if msg.Status == broker.StatusError {
		kind := msg.Kind
		if kind == "" {
			kind = poiesiserr.PlatformError
		}
		return poiesiserr.New(kind, job.Name+" reported failure: "+msg.Text)
	}
	return nil
}
