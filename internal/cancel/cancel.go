// Package cancel implements the cancel controller (C9): validates the
// request, flips the task into CANCELING, and tears down its derived
// Kubernetes resources in the background, grounded on
// original_source/poiesis/core/services/cancel/cancel.py.
package cancel

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesis-tes/poiesis/internal/config"
	"github.com/poiesis-tes/poiesis/internal/logging"
	"github.com/poiesis-tes/poiesis/internal/orchestrator"
	"github.com/poiesis-tes/poiesis/internal/persistence"
	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
	"github.com/poiesis-tes/poiesis/internal/tes"
)

// Deps bundles the ports Cancel needs.
type Deps struct {
	Persist persistence.Port
	Orch    orchestrator.Port
	Config  *config.Config
	Log     *logging.Logger
}

const cleanupMaxAttempts = 3

// Request runs the preconditions and the CANCELING transition synchronously,
// then launches resource teardown in the background so the caller gets an
// immediate response (spec.md §4.9). userID is the caller's identity from
// the bearer token; empty means auth is disabled.
func Request(ctx context.Context, taskID, userID string, d Deps) error {
	doc, err := d.Persist.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if userID != "" && doc.UserID != "" && doc.UserID != userID {
		return poiesiserr.New(poiesiserr.NotFound, "task not found")
	}

	switch doc.Task.State {
	case tes.StateComplete, tes.StateCanceled, tes.StateCanceling,
		tes.StateExecutorErr, tes.StateSystemErr, tes.StatePreempted:
		return poiesiserr.New(poiesiserr.BadRequest,
			fmt.Sprintf("task %s cannot be canceled from state %s", taskID, doc.Task.State))
	}

	if err := d.Persist.UpdateTaskState(ctx, taskID, tes.StateCanceling); err != nil {
		return err
	}

	go cleanup(context.Background(), taskID, d)
	return nil
}

// cleanup deletes every Job/Pod/PVC labeled with taskID, retrying each
// resource class up to 3 times with 2^(attempt+1) second backoff before
// giving up on it, then marks the task CANCELED regardless (spec.md §4.9:
// best-effort teardown, the state transition is what callers observe).
func cleanup(ctx context.Context, taskID string, d Deps) {
	selector := fmt.Sprintf("tes-task-id=%s", taskID)

	deleters := []struct {
		name string
		del  func(context.Context, string) error
	}{
		{"jobs", d.Orch.DeleteJobsByLabel},
		{"pods", d.Orch.DeletePodsByLabel},
		{"pvcs", d.Orch.DeletePVCsByLabel},
	}

	for _, dl := range deleters {
		var lastErr error
		for attempt := 0; attempt < cleanupMaxAttempts; attempt++ {
			if err := dl.del(ctx, selector); err == nil {
				lastErr = nil
				break
			} else {
				lastErr = err
			}
			time.Sleep(time.Duration(1<<uint(attempt+1)) * time.Second)
		}
		if lastErr != nil {
			d.Log.Errorf("cancel cleanup: giving up deleting %s for task %s: %v", dl.name, taskID, lastErr)
		}
	}

	if err := d.Persist.UpdateTaskState(ctx, taskID, tes.StateCanceled); err != nil {
		d.Log.Errorf("cancel cleanup: failed to mark task %s CANCELED: %v", taskID, err)
	}
}
