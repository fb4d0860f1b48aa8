// Package texam implements the executor engine (C7): launches executor
// containers strictly sequentially, monitors each to a terminal condition,
// captures logs, and propagates cascading failure to the remaining
// executors — grounded on
// original_source/poiesis/core/services/texam/texam.py.
package texam

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"

	"github.com/poiesis-tes/poiesis/internal/broker"
	"github.com/poiesis-tes/poiesis/internal/config"
	"github.com/poiesis-tes/poiesis/internal/logging"
	"github.com/poiesis-tes/poiesis/internal/manifest"
	"github.com/poiesis-tes/poiesis/internal/orchestrator"
	"github.com/poiesis-tes/poiesis/internal/persistence"
	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
	"github.com/poiesis-tes/poiesis/internal/securitycontext"
	"github.com/poiesis-tes/poiesis/internal/task"
	"github.com/poiesis-tes/poiesis/internal/tes"
)

// Deps bundles the ports and config Texam needs.
type Deps struct {
	Persist    persistence.Port
	Orch       orchestrator.Port
	Broker     broker.Port
	Config     *config.Config
	ExecSecCtx *securitycontext.Document
	Log        *logging.Logger
}

// Run drives the sequential executor chain for t, recording per-executor
// outcomes and cascading failure to subsequent executors (spec.md §4.7).
// Returns an error iff any executor did not SUCCEED.
func Run(ctx context.Context, taskID string, t tes.Task, d Deps) error {
	channel := task.TaskChannel(taskID)
	mounts := ComputeVolumeMounts(t.Volumes, t.Inputs, t.Outputs)

	var firstFailure = -1
	var chainErr error

	for i, executor := range t.Executors {
		if err := d.Persist.AppendExecutorLog(ctx, taskID); err != nil {
			return err
		}

		name := task.EncodeExecutorName(taskID, i)

		if firstFailure >= 0 {
			stderr := fmt.Sprintf("Executor %d failed to start because executor %d failed.", i, firstFailure)
			_ = d.Persist.UpdateExecutorLog(ctx, name, persistence.PhaseFailed, "", stderr)
			continue
		}

		command := BuildCommand(executor.Command, executor.Stdin, executor.Stdout, executor.Stderr, executor.IgnoreError)
		job := manifest.BuildExecutorJob(manifest.ExecutorJobInput{
			TaskID:       taskID,
			Index:        i,
			Image:        executor.Image,
			Command:      []string{command},
			Env:          executor.Env,
			VolumeMounts: mounts,
			Config:       d.Config,
			ExecSecCtx:   d.ExecSecCtx,
		})

		if err := createJobWithBackoff(ctx, d.Orch, job, d.Config.BackoffLimitSeconds, d.Log); err != nil {
			stderr := "Failed to create executor job after multiple retries."
			_ = d.Persist.UpdateExecutorLog(ctx, name, persistence.PhaseFailed, "", stderr)
			firstFailure = i
			chainErr = err
			continue
		}

		result := monitorExecutor(ctx, d.Orch, name, d.Config.MonitorTimeoutSeconds, d.Log)

		stdout := result.stdout
		if result.terminalCondition {
			if logs, logErr := fetchPodLog(ctx, d.Orch, name); logErr == nil {
				stdout = logs
			} else {
				d.Log.Warnf("%v", logErr)
			}
		}

		if err := d.Persist.UpdateExecutorLog(ctx, name, result.phase, stdout, result.stderr); err != nil {
			return err
		}

		if result.phase != persistence.PhaseSucceeded {
			firstFailure = i
			chainErr = poiesiserr.New(poiesiserr.ExecutorFailure,
				fmt.Sprintf("executor %d failed: %s", i, result.stderr))
		}
	}

	if chainErr != nil {
		kind, _ := poiesiserr.KindOf(chainErr)
		_ = d.Broker.Publish(ctx, channel, broker.Message{
			Status: broker.StatusError,
			Kind:   kind,
			Text:   "TExAM job failed to run all jobs successfully.",
		})
		return chainErr
	}

	return d.Broker.Publish(ctx, channel, broker.Message{
		Status: broker.StatusSuccess,
		Text:   fmt.Sprintf("TExAM job for %s has been completed.", taskID),
	})
}

// createJobWithBackoff attempts create_job with exponential backoff
// starting at 1 second and doubling per attempt; once the next delay would
// reach backoffLimit seconds it gives up and returns the last error. After
// every failed attempt it deletes the half-created Job (spec.md §4.7).
func createJobWithBackoff(ctx context.Context, orch orchestrator.Port, job *batchv1.Job, backoffLimitSeconds int, log *logging.Logger) error {
	backoff := 1 * time.Second
	cap := time.Duration(backoffLimitSeconds) * time.Second

	var lastErr error
	for {
		if _, err := orch.CreateJob(ctx, job); err == nil {
			return nil
		} else {
			lastErr = err
		}

		_ = orch.DeleteJob(ctx, job.Name)

		if backoff >= cap {
			log.Errorf("create executor job %s: giving up after reaching backoff cap: %v", job.Name, lastErr)
			return lastErr
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > cap {
			backoff = cap
		}
	}
}
