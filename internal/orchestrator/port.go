// Package orchestrator defines the container-orchestrator port (C2) and its
// Kubernetes implementation. Grounded on
// original_source/poiesis/core/adaptors/kubernetes/kubernetes.py for the
// method shape (create/get/delete Job, Pod, PVC, ConfigMap; list-by-label;
// NotFound-swallowing deletes) and on the typed-clientset idiom used by
// _examples/gravitational-gravity.
package orchestrator

import (
	"context"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
)

// JobEvent and PodEvent carry one watch notification plus the event type
// (Added/Modified/Deleted), mirroring client-go's watch.Event but typed to
// the resource kind being observed.
type JobEvent struct {
	Type string
	Job  *batchv1.Job
}

type PodEvent struct {
	Type string
	Pod  *corev1.Pod
}

// Port is the narrow orchestrator contract (spec.md §4.2). NotFound on
// delete is swallowed; other API errors propagate as PlatformError.
type Port interface {
	CreateJob(ctx context.Context, spec *batchv1.Job) (*batchv1.Job, error)
	GetJob(ctx context.Context, name string) (*batchv1.Job, error)
	DeleteJob(ctx context.Context, name string) error

	CreatePod(ctx context.Context, spec *corev1.Pod) (string, error)
	GetPod(ctx context.Context, name string) (*corev1.Pod, error)
	ListPods(ctx context.Context, labelSelector string) ([]corev1.Pod, error)
	GetPodLog(ctx context.Context, name string) (string, error)
	DeletePod(ctx context.Context, name string) error
	DeletePodsByLabel(ctx context.Context, labelSelector string) error

	CreatePVC(ctx context.Context, spec *corev1.PersistentVolumeClaim) (string, error)
	DeletePVC(ctx context.Context, name string) error
	ListPVCsByLabel(ctx context.Context, labelSelector string) ([]corev1.PersistentVolumeClaim, error)
	DeletePVCsByLabel(ctx context.Context, labelSelector string) error

	CreateConfigMap(ctx context.Context, spec *corev1.ConfigMap) (*corev1.ConfigMap, error)
	PatchConfigMap(ctx context.Context, name string, spec *corev1.ConfigMap) (*corev1.ConfigMap, error)

	// WatchPods streams every pod event for labelSelector until the watch
	// ends (timeoutSeconds elapses, ctx is done, or the server closes it);
	// the channel is then closed. Deciding which event is terminal is left
	// to the caller.
	WatchPods(ctx context.Context, labelSelector string, timeoutSeconds int64) (<-chan PodEvent, error)
	// WatchJobs streams every job event for fieldSelector (typically
	// metadata.name=<job>) until the watch ends, as WatchPods does; the
	// caller decides which condition is terminal.
	WatchJobs(ctx context.Context, fieldSelector string, timeoutSeconds int64) (<-chan JobEvent, error)

	DeleteJobsByLabel(ctx context.Context, labelSelector string) error
	ListJobsByLabel(ctx context.Context, labelSelector string) ([]batchv1.Job, error)
}
