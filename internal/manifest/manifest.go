// Package manifest deterministically constructs the Job/Pod/PVC specs
// every stage submits (C10): labels, env, volumes, and security contexts,
// grounded on
// original_source/poiesis/core/services/torc/torc_execution_template.py's
// create_job (env injection helpers get_message_broker_envs/get_mongo_envs/
// get_s3_envs/get_secret_names/get_configmap_names).
package manifest

import (
	"sort"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/poiesis-tes/poiesis/internal/config"
	"github.com/poiesis-tes/poiesis/internal/securitycontext"
	"github.com/poiesis-tes/poiesis/internal/task"
)

// Component names the stage a derived Job runs (spec.md §3 entity table).
type Component string

const (
	ComponentTorc  Component = "torc"
	ComponentTif   Component = "tif"
	ComponentTexam Component = "texam"
	ComponentTof   Component = "tof"
	ComponentTE    Component = "te"
	ComponentPVC   Component = "pvc"
)

// Labels builds the canonical label set for a derived resource (spec.md
// §3). partOf distinguishes the owning parent (poiesis-api for Torc,
// torc-<taskId> for its children). The Executor Job is the one entity
// whose parent association key is "parent" rather than "part-of"
// (spec.md §3 entity table: "component=te, parent=texam-<taskId>").
func Labels(component Component, taskID, partOf string) map[string]string {
	l := map[string]string{
		"component":   string(component),
		"tes-task-id": taskID,
	}
	if partOf == "" {
		return l
	}
	key := "part-of"
	if component == ComponentTE {
		key = "parent"
	}
	l[key] = partOf
	return l
}

// envFromSecret builds a single env var sourced from a Kubernetes Secret
// key, the projection pattern used for broker/mongo/s3 credentials
// (spec.md §4.10 "Standard env vars").
func envFromSecret(name, secretName, key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: secretName},
				Key:                  key,
			},
		},
	}
}

func envVar(name, value string) corev1.EnvVar {
	return corev1.EnvVar{Name: name, Value: value}
}

// StandardEnv builds the env vars every stage container receives:
// broker host/port/password, document-store URI (via Secret), object-store
// credentials, namespace, SA, restart/image-pull policies, job TTL, PVC
// access mode/storage class, and log level (spec.md §4.10).
func StandardEnv(cfg *config.Config, taskID string) []corev1.EnvVar {
	env := []corev1.EnvVar{
		envVar("POIESIS_TASK_ID", taskID),
		envVar("POIESIS_K8S_NAMESPACE", cfg.Namespace),
		envVar("POIESIS_SERVICE_ACCOUNT_NAME", cfg.ServiceAccountName),
		envVar("POIESIS_RESTART_POLICY", cfg.RestartPolicy),
		envVar("POIESIS_IMAGE_PULL_POLICY", cfg.ImagePullPolicy),
		envVar("POIESIS_PVC_ACCESS_MODE", cfg.PVCAccessMode),
		envVar("POIESIS_PVC_STORAGE_CLASS", cfg.PVCStorageClass),
		envVar("POIESIS_JOB_TTL", itoa(int(cfg.JobTTLSeconds))),
		envVar("LOG_LEVEL", cfg.LogLevel),
		envVar("MESSAGE_BROKER_HOST", cfg.MessageBrokerHost),
		envVar("MESSAGE_BROKER_PORT", cfg.MessageBrokerPort),
		envVar("MONITOR_TIMEOUT_SECONDS", itoa(cfg.MonitorTimeoutSeconds)),
		envVar("AWS_REGION", cfg.AWSRegion),
		envVar("S3_URL", cfg.S3URL),
	}
	if cfg.MessageBrokerPassword != "" && cfg.RedisSecretName != "" {
		env = append(env, envFromSecret("MESSAGE_BROKER_PASSWORD", cfg.RedisSecretName, "password"))
	}
	if cfg.MongoSecretName != "" {
		env = append(env, envFromSecret("POIESIS_MONGODB_URI", cfg.MongoSecretName, cfg.MongoURISecretKey))
	}
	if cfg.S3SecretName != "" {
		env = append(env,
			envFromSecret("AWS_ACCESS_KEY_ID", cfg.S3SecretName, "access-key-id"),
			envFromSecret("AWS_SECRET_ACCESS_KEY", cfg.S3SecretName, "secret-access-key"),
		)
	}
	return env
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// StageJobInput describes one Torc/Tif/Texam/Tof stage container.
type StageJobInput struct {
	Name      string
	Component Component
	TaskID    string
	PartOf    string
	Image     string
	Args      []string
	Config    *config.Config
	InfraSecCtx *securitycontext.Document
}

// BuildStageJob builds the Job manifest for an infrastructure stage
// (Torc/Tif/Texam/Tof): backoff_limit=0 (the engine, not the platform,
// owns retry policy), restartPolicy=Never, the shared PVC mounted at the
// staging root, the task ConfigMap mounted at /etc/poiesis/task (where
// cmd/poiesis reads task.json), and the standard env projection (spec.md
// §4.10).
func BuildStageJob(in StageJobInput) *batchv1.Job {
	podSecCtx, containerSecCtx := securitycontext.Toggle(in.Config.InfrastructureSecurityContextEnabled, in.InfraSecCtx)

	backoffLimit := int32(0)
	ttl := in.Config.JobTTLSeconds

	container := corev1.Container{
		Name:            in.Name,
		Image:           in.Image,
		Args:            in.Args,
		Env:             StandardEnv(in.Config, in.TaskID),
		ImagePullPolicy: corev1.PullPolicy(in.Config.ImagePullPolicy),
		SecurityContext: containerSecCtx,
		VolumeMounts: []corev1.VolumeMount{
			{Name: "staging", MountPath: "/transfer"},
			{Name: "task-config", MountPath: "/etc/poiesis/task", ReadOnly: true},
		},
	}

	pod := corev1.PodSpec{
		ServiceAccountName: in.Config.ServiceAccountName,
		RestartPolicy:      corev1.RestartPolicy(in.Config.RestartPolicy),
		SecurityContext:    podSecCtx,
		Containers:         []corev1.Container{container},
		Volumes: []corev1.Volume{
			{
				Name: "staging",
				VolumeSource: corev1.VolumeSource{
					PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
						ClaimName: task.PVCName(in.TaskID),
					},
				},
			},
			{
				Name: "task-config",
				VolumeSource: corev1.VolumeSource{
					ConfigMap: &corev1.ConfigMapVolumeSource{
						LocalObjectReference: corev1.LocalObjectReference{Name: task.ConfigMapName(in.TaskID)},
					},
				},
			},
		},
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:   in.Name,
			Labels: Labels(in.Component, in.TaskID, in.PartOf),
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: Labels(in.Component, in.TaskID, in.PartOf)},
				Spec:       pod,
			},
		},
	}
}

// ExecutorJobInput describes one executor container (spec.md §4.7).
type ExecutorJobInput struct {
	TaskID       string
	Index        int
	Image        string
	Command      []string
	Env          map[string]string
	VolumeMounts []corev1.VolumeMount
	Config       *config.Config
	ExecSecCtx   *securitycontext.Document
}

// BuildExecutorJob builds the Job manifest for a single task executor:
// backoff_limit=0, restartPolicy=Never, volume mounts computed by Texam's
// covering-set algorithm.
func BuildExecutorJob(in ExecutorJobInput) *batchv1.Job {
	name := task.EncodeExecutorName(in.TaskID, in.Index)
	podSecCtx, containerSecCtx := securitycontext.Toggle(in.Config.ExecutorSecurityContextEnabled, in.ExecSecCtx)

	keys := make([]string, 0, len(in.Env))
	for k := range in.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var env []corev1.EnvVar
	for _, k := range keys {
		env = append(env, envVar(k, in.Env[k]))
	}

	backoffLimit := int32(0)
	ttl := in.Config.JobTTLSeconds

	volumes := []corev1.Volume{
		{
			Name: "staging",
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
					ClaimName: task.PVCName(in.TaskID),
				},
			},
		},
	}

	container := corev1.Container{
		Name:            "executor",
		Image:           in.Image,
		Command:         []string{"/bin/sh", "-c"},
		Args:            []string{joinCommand(in.Command)},
		Env:             env,
		ImagePullPolicy: corev1.PullPolicy(in.Config.ImagePullPolicy),
		SecurityContext: containerSecCtx,
		VolumeMounts:    in.VolumeMounts,
	}

	pod := corev1.PodSpec{
		ServiceAccountName: in.Config.ServiceAccountName,
		RestartPolicy:      corev1.RestartPolicy(in.Config.RestartPolicy),
		SecurityContext:    podSecCtx,
		Containers:         []corev1.Container{container},
		Volumes:            volumes,
	}

	labels := Labels(ComponentTE, in.TaskID, task.TexamName(in.TaskID))
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       pod,
			},
		},
	}
}

func joinCommand(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// BuildPVC builds the shared per-task PVC (spec.md §3 entity table).
func BuildPVC(taskID string, sizeGi int64, cfg *config.Config) *corev1.PersistentVolumeClaim {
	quantity := resource.MustParse(itoa(int(sizeGi)) + "Gi")
	var storageClass *string
	if cfg.PVCStorageClass != "" {
		storageClass = &cfg.PVCStorageClass
	}
	return &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:   task.PVCName(taskID),
			Labels: Labels(ComponentPVC, taskID, task.TorcName(taskID)),
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{
				corev1.PersistentVolumeAccessMode(cfg.PVCAccessMode),
			},
			StorageClassName: storageClass,
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: quantity,
				},
			},
		},
	}
}

// BuildTaskConfigMap builds the ConfigMap carrying the serialized TesTask,
// owned by the Torc Job so the orchestrator cascades its deletion
// (spec.md §3 entity table).
func BuildTaskConfigMap(taskID, taskJSON string, torcJobUID string) *corev1.ConfigMap {
	controller := true
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:   task.ConfigMapName(taskID),
			Labels: Labels(Component("task-configmap"), taskID, task.TorcName(taskID)),
			OwnerReferences: []metav1.OwnerReference{
				{
					APIVersion: "batch/v1",
					Kind:       "Job",
					Name:       task.TorcName(taskID),
					UID:        types.UID(torcJobUID),
					Controller: &controller,
				},
			},
		},
		Data: map[string]string{"task.json": taskJSON},
	}
}
