package texam

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/poiesis-tes/poiesis/internal/logging"
	"github.com/poiesis-tes/poiesis/internal/orchestrator"
	"github.com/poiesis-tes/poiesis/internal/persistence"
)

// criticalWaitingReasons is the set of container waiting reasons the
// engine treats as terminal without waiting out the platform's backoff
// (spec.md §4.7, glossary "Critical waiting reason").
var criticalWaitingReasons = map[string]bool{
	"ImagePullBackOff":  true,
	"ErrImagePull":      true,
	"CrashLoopBackOff":  true,
	"InvalidImageName":  true,
	"ImageInspectError": true,
}

// monitorResult is the terminal observation for one executor Job.
// terminalCondition is true only when the watch observed a real
// Complete=True or Failed=True Job condition, as opposed to a watch
// timeout, a watch error, or a critical pod waiting reason; those
// synthetic failures have no pod worth fetching logs from.
type monitorResult struct {
	phase             persistence.ExecutorPhase
	stderr            string
	stdout            string
	terminalCondition bool
}

const podPollInterval = 2 * time.Second

// monitorExecutor watches executorName to a terminal Job condition,
// concurrently polling its pod for a critical waiting reason so a doomed
// image pull does not have to wait out the platform's backoff (spec.md
// §4.7).
func monitorExecutor(ctx context.Context, orch orchestrator.Port, executorName string, timeoutSeconds int, log *logging.Logger) monitorResult {
	watchCtx := ctx
	var cancel context.CancelFunc
	if timeoutSeconds > 0 {
		watchCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		defer cancel()
	}

	fieldSelector := fmt.Sprintf("metadata.name=%s", executorName)
	jobEvents, err := orch.WatchJobs(watchCtx, fieldSelector, int64(timeoutSeconds))
	if err != nil {
		return monitorResult{phase: persistence.PhaseFailed, stderr: fmt.Sprintf("failed to watch executor job: %v", err)}
	}

	criticalCh := make(chan string, 1)
	pollCtx, stopPoll := context.WithCancel(watchCtx)
	defer stopPoll()
	go pollForCriticalReason(pollCtx, orch, executorName, criticalCh)

	for {
		select {
		case reason := <-criticalCh:
			return monitorResult{phase: persistence.PhaseFailed, stderr: reason}

		case ev, ok := <-jobEvents:
			if !ok {
				// watch ended before a terminal event was observed: timeout.
				t := timeoutSeconds
				return monitorResult{
					phase:  persistence.PhaseFailed,
					stderr: fmt.Sprintf("Job monitoring timed out after %d seconds.", t),
				}
			}
			if ev.Job == nil {
				continue
			}
			for _, cond := range ev.Job.Status.Conditions {
				if cond.Type == "Complete" && cond.Status == "True" {
					return monitorResult{phase: persistence.PhaseSucceeded, terminalCondition: true}
				}
				if cond.Type == "Failed" && cond.Status == "True" {
					return monitorResult{phase: persistence.PhaseFailed, stderr: "Job failed: " + cond.Message, terminalCondition: true}
				}
			}

		case <-watchCtx.Done():
			return monitorResult{
				phase:  persistence.PhaseFailed,
				stderr: fmt.Sprintf("Job monitoring timed out after %d seconds.", timeoutSeconds),
			}
		}
	}
}

func pollForCriticalReason(ctx context.Context, orch orchestrator.Port, executorName string, out chan<- string) {
	ticker := time.NewTicker(podPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pods, err := orch.ListPods(ctx, fmt.Sprintf("job-name=%s", executorName))
			if err != nil || len(pods) == 0 {
				continue
			}
			if reason, ok := findCriticalWaitingReason(pods[0]); ok {
				select {
				case out <- fmt.Sprintf("Pod stuck in critical waiting state: %s", reason):
				default:
				}
				return
			}
		}
	}
}

func findCriticalWaitingReason(pod corev1.Pod) (string, bool) {
	if pod.Status.Phase != corev1.PodPending {
		return "", false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && criticalWaitingReasons[cs.State.Waiting.Reason] {
			return cs.State.Waiting.Reason, true
		}
	}
	return "", false
}

// fetchPodLog locates the pod for executorName via label job-name=<name>
// and retrieves its log, retrying up to 3 attempts with a 1-second delay
// (spec.md §4.7).
func fetchPodLog(ctx context.Context, orch orchestrator.Port, executorName string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		pods, err := orch.ListPods(ctx, fmt.Sprintf("job-name=%s", executorName))
		if err == nil && len(pods) > 0 {
			logs, logErr := orch.GetPodLog(ctx, pods[0].Name)
			if logErr == nil {
				return logs, nil
			}
			lastErr = logErr
		} else if err != nil {
			lastErr = err
		}
		time.Sleep(1 * time.Second)
	}
	return "", fmt.Errorf("failed to get logs for executor %s after 3 attempts: %w", executorName, lastErr)
}
