package torc

import (
	"context"
	"math"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"

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

// Deps bundles the ports and config Torc needs.
type Deps struct {
	Persist     persistence.Port
	Orch        orchestrator.Port
	Broker      broker.Port
	Config      *config.Config
	InfraSecCtx *securitycontext.Document
	Log         *logging.Logger
}

const maxAttempts = 3

// backoffSchedule is the 1,2,4-second retry backoff (spec.md §4.8).
var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Run executes the template method with retry: up to 3 attempts,
// provisioning a PVC, sequencing Tif -> Texam -> Tof, and writing the
// task's terminal state (spec.md §4.8).
func Run(ctx context.Context, taskID string, t tes.Task, d Deps) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := runAttempt(ctx, taskID, t, d)
		if err == nil {
			return nil
		}

		now := time.Now().UTC()
		_ = d.Persist.SetSystemLogs(ctx, taskID, []string{err.Error()})
		_ = d.Persist.SetTaskLogEnd(ctx, taskID, now)
		_ = d.Orch.DeletePVC(ctx, task.PVCName(taskID))

		// A clean per-executor non-zero exit is not a platform fault: it
		// does not get restaged inputs or a fresh attempt, it goes
		// straight to EXECUTOR_ERROR (spec.md §8 scenario 2).
		if poiesiserr.Is(err, poiesiserr.ExecutorFailure) {
			_ = d.Persist.UpdateTaskState(ctx, taskID, tes.StateExecutorErr)
			return err
		}

		lastErr = err

		if attempt < maxAttempts-1 {
			d.Log.Warnf("torc attempt %d for task %s failed: %v; retrying", attempt+1, taskID, err)
			select {
			case <-time.After(backoffSchedule[attempt]):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
	}

	_ = d.Persist.UpdateTaskState(ctx, taskID, tes.StateSystemErr)
	return poiesiserr.Wrap(poiesiserr.PlatformError, "torc exhausted retries", lastErr)
}

func runAttempt(ctx context.Context, taskID string, t tes.Task, d Deps) error {
	if err := d.Persist.UpdateTaskState(ctx, taskID, tes.StateRunning); err != nil {
		return err
	}
	if err := d.Persist.AppendTaskLog(ctx, taskID); err != nil {
		return err
	}

	pvc := manifest.BuildPVC(taskID, pvcSizeGi(t, d.Config), d.Config)
	if _, err := d.Orch.CreatePVC(ctx, pvc); err != nil {
		return err
	}

	if len(t.Inputs) > 0 {
		tifJob := buildStageJob(d, manifest.ComponentTif, task.TifName(taskID), "tif", taskID)
		if err := submitAndWait(ctx, d.Orch, d.Broker, taskID, tifJob); err != nil {
			return err
		}
	}

	texamJob := buildStageJob(d, manifest.ComponentTexam, task.TexamName(taskID), "texam", taskID)
	if err := submitAndWait(ctx, d.Orch, d.Broker, taskID, texamJob); err != nil {
		return err
	}

	if len(t.Outputs) > 0 {
		tofJob := buildStageJob(d, manifest.ComponentTof, task.TofName(taskID), "tof", taskID)
		if err := submitAndWait(ctx, d.Orch, d.Broker, taskID, tofJob); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if err := d.Persist.SetSystemLogs(ctx, taskID, nil); err != nil {
		return err
	}
	if err := d.Persist.SetTaskLogEnd(ctx, taskID, now); err != nil {
		return err
	}
	if err := d.Persist.UpdateTaskState(ctx, taskID, tes.StateComplete); err != nil {
		return err
	}
	return d.Orch.DeletePVC(ctx, task.PVCName(taskID))
}

// pvcSizeGi picks the shared PVC's size: the task's requested disk_gb,
// rounded up to a whole Gi, or the engine's configured default when the
// task declares none (spec.md §4.8 step 2, "create_pvc(id, sizeGi) ...
// default size 1Gi").
func pvcSizeGi(t tes.Task, cfg *config.Config) int64 {
	if t.Resources != nil && t.Resources.DiskGB > 0 {
		return int64(math.Ceil(t.Resources.DiskGB))
	}
	return cfg.PVCDefaultSizeGi
}

// buildStageJob constructs the stage Job and stamps it with SERVICE_TYPE so
// the single poiesis binary dispatches into the right stage entrypoint
// (cmd/poiesis's SERVICE_TYPE switch).
func buildStageJob(d Deps, component manifest.Component, name, serviceType, taskID string) *batchv1.Job {
	job := manifest.BuildStageJob(manifest.StageJobInput{
		Name:        name,
		Component:   component,
		TaskID:      taskID,
		PartOf:      task.TorcName(taskID),
		Image:       d.Config.Image,
		Args:        []string{serviceType},
		Config:      d.Config,
		InfraSecCtx: d.InfraSecCtx,
	})
	job.Spec.Template.Spec.Containers[0].Env = append(job.Spec.Template.Spec.Containers[0].Env,
		corev1.EnvVar{Name: "SERVICE_TYPE", Value: serviceType})
	return job
}
