package orchestrator

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/poiesis-tes/poiesis/internal/logging"
	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
)

// K8sPort is the Kubernetes client-go implementation of Port.
type K8sPort struct {
	clientset kubernetes.Interface
	namespace string
	log       *logging.Logger
}

// NewK8sPort wraps an already-constructed clientset (in-cluster config or
// kubeconfig, resolved by the caller) scoped to namespace.
func NewK8sPort(clientset kubernetes.Interface, namespace string, log *logging.Logger) *K8sPort {
	return &K8sPort{clientset: clientset, namespace: namespace, log: log}
}

func wrapPlatformErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return poiesiserr.Wrap(poiesiserr.PlatformError, op, err)
}

func (k *K8sPort) CreateJob(ctx context.Context, spec *batchv1.Job) (*batchv1.Job, error) {
	job, err := k.clientset.BatchV1().Jobs(k.namespace).Create(ctx, spec, metav1.CreateOptions{})
	if err != nil {
		return nil, wrapPlatformErr("create job", err)
	}
	return job, nil
}

func (k *K8sPort) GetJob(ctx context.Context, name string) (*batchv1.Job, error) {
	job, err := k.clientset.BatchV1().Jobs(k.namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, poiesiserr.New(poiesiserr.NotFound, fmt.Sprintf("job %s not found", name))
	}
	if err != nil {
		return nil, wrapPlatformErr("get job", err)
	}
	return job, nil
}

func (k *K8sPort) DeleteJob(ctx context.Context, name string) error {
	propagation := metav1.DeletePropagationForeground
	err := k.clientset.BatchV1().Jobs(k.namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &propagation})
	if err != nil && !apierrors.IsNotFound(err) {
		return wrapPlatformErr("delete job", err)
	}
	return nil
}

func (k *K8sPort) CreatePod(ctx context.Context, spec *corev1.Pod) (string, error) {
	pod, err := k.clientset.CoreV1().Pods(k.namespace).Create(ctx, spec, metav1.CreateOptions{})
	if err != nil {
		return "", wrapPlatformErr("create pod", err)
	}
	return pod.Name, nil
}

func (k *K8sPort) GetPod(ctx context.Context, name string) (*corev1.Pod, error) {
	pod, err := k.clientset.CoreV1().Pods(k.namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, poiesiserr.New(poiesiserr.NotFound, fmt.Sprintf("pod %s not found", name))
	}
	if err != nil {
		return nil, wrapPlatformErr("get pod", err)
	}
	return pod, nil
}

func (k *K8sPort) ListPods(ctx context.Context, labelSelector string) ([]corev1.Pod, error) {
	list, err := k.clientset.CoreV1().Pods(k.namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, wrapPlatformErr("list pods", err)
	}
	return list.Items, nil
}

func (k *K8sPort) GetPodLog(ctx context.Context, name string) (string, error) {
	req := k.clientset.CoreV1().Pods(k.namespace).GetLogs(name, &corev1.PodLogOptions{})
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", wrapPlatformErr("get pod log", err)
	}
	defer stream.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, readErr := stream.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	return string(buf), nil
}

func (k *K8sPort) DeletePod(ctx context.Context, name string) error {
	err := k.clientset.CoreV1().Pods(k.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return wrapPlatformErr("delete pod", err)
	}
	return nil
}

func (k *K8sPort) DeletePodsByLabel(ctx context.Context, labelSelector string) error {
	err := k.clientset.CoreV1().Pods(k.namespace).DeleteCollection(ctx, metav1.DeleteOptions{}, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil && !apierrors.IsNotFound(err) {
		return wrapPlatformErr("delete pods by label", err)
	}
	return nil
}

func (k *K8sPort) CreatePVC(ctx context.Context, spec *corev1.PersistentVolumeClaim) (string, error) {
	pvc, err := k.clientset.CoreV1().PersistentVolumeClaims(k.namespace).Create(ctx, spec, metav1.CreateOptions{})
	if err != nil {
		return "", wrapPlatformErr("create pvc", err)
	}
	return pvc.Name, nil
}

func (k *K8sPort) DeletePVC(ctx context.Context, name string) error {
	err := k.clientset.CoreV1().PersistentVolumeClaims(k.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return wrapPlatformErr("delete pvc", err)
	}
	return nil
}

func (k *K8sPort) ListPVCsByLabel(ctx context.Context, labelSelector string) ([]corev1.PersistentVolumeClaim, error) {
	list, err := k.clientset.CoreV1().PersistentVolumeClaims(k.namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, wrapPlatformErr("list pvcs", err)
	}
	return list.Items, nil
}

func (k *K8sPort) DeletePVCsByLabel(ctx context.Context, labelSelector string) error {
	err := k.clientset.CoreV1().PersistentVolumeClaims(k.namespace).DeleteCollection(ctx, metav1.DeleteOptions{}, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil && !apierrors.IsNotFound(err) {
		return wrapPlatformErr("delete pvcs by label", err)
	}
	return nil
}

func (k *K8sPort) CreateConfigMap(ctx context.Context, spec *corev1.ConfigMap) (*corev1.ConfigMap, error) {
	cm, err := k.clientset.CoreV1().ConfigMaps(k.namespace).Create(ctx, spec, metav1.CreateOptions{})
	if err != nil {
		return nil, wrapPlatformErr("create configmap", err)
	}
	return cm, nil
}

func (k *K8sPort) PatchConfigMap(ctx context.Context, name string, spec *corev1.ConfigMap) (*corev1.ConfigMap, error) {
	cm, err := k.clientset.CoreV1().ConfigMaps(k.namespace).Update(ctx, spec, metav1.UpdateOptions{})
	if err != nil {
		return nil, wrapPlatformErr("patch configmap", err)
	}
	return cm, nil
}

func (k *K8sPort) WatchPods(ctx context.Context, labelSelector string, timeoutSeconds int64) (<-chan PodEvent, error) {
	opts := metav1.ListOptions{LabelSelector: labelSelector}
	if timeoutSeconds > 0 {
		opts.TimeoutSeconds = &timeoutSeconds
	}
	w, err := k.clientset.CoreV1().Pods(k.namespace).Watch(ctx, opts)
	if err != nil {
		return nil, wrapPlatformErr("watch pods", err)
	}

	out := make(chan PodEvent)
	go func() {
		defer close(out)
		defer w.Stop()
		for ev := range w.ResultChan() {
			pod, ok := ev.Object.(*corev1.Pod)
			if !ok {
				continue
			}
			select {
			case out <- PodEvent{Type: string(ev.Type), Pod: pod}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (k *K8sPort) WatchJobs(ctx context.Context, fieldSelector string, timeoutSeconds int64) (<-chan JobEvent, error) {
	opts := metav1.ListOptions{FieldSelector: fieldSelector}
	if timeoutSeconds > 0 {
		opts.TimeoutSeconds = &timeoutSeconds
	}
	w, err := k.clientset.BatchV1().Jobs(k.namespace).Watch(ctx, opts)
	if err != nil {
		return nil, wrapPlatformErr("watch jobs", err)
	}

	out := make(chan JobEvent)
	go func() {
		defer close(out)
		defer w.Stop()
		for ev := range w.ResultChan() {
			if ev.Type == watch.Error {
				continue
			}
			job, ok := ev.Object.(*batchv1.Job)
			if !ok {
				continue
			}
			select {
			case out <- JobEvent{Type: string(ev.Type), Job: job}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (k *K8sPort) DeleteJobsByLabel(ctx context.Context, labelSelector string) error {
	jobs, err := k.ListJobsByLabel(ctx, labelSelector)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := k.DeleteJob(ctx, j.Name); err != nil {
			return err
		}
	}
	return nil
}

func (k *K8sPort) ListJobsByLabel(ctx context.Context, labelSelector string) ([]batchv1.Job, error) {
	list, err := k.clientset.BatchV1().Jobs(k.namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, wrapPlatformErr("list jobs", err)
	}
	return list.Items, nil
}
