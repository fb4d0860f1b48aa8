// Package tes defines the GA4GH Task Execution Service v1.1.0 task model.
// These are hand-written rather than generated from the OpenAPI document
// (no codegen step in this module); they cover exactly the fields the
// engine reads or writes.
package tes

// State is the TES task state enum (spec.md §3).
type State string

const (
	StateUnknown      State = "UNKNOWN"
	StateQueued       State = "QUEUED"
	StateInitializing State = "INITIALIZING"
	StateRunning      State = "RUNNING"
	StatePaused       State = "PAUSED"
	StateComplete     State = "COMPLETE"
	StateExecutorErr  State = "EXECUTOR_ERROR"
	StateSystemErr    State = "SYSTEM_ERROR"
	StateCanceled     State = "CANCELED"
	StateCanceling    State = "CANCELING"
	StatePreempted    State = "PREEMPTED"
)

// Terminal reports whether a state never transitions further.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateExecutorErr, StateSystemErr, StateCanceled, StatePreempted:
		return true
	default:
		return false
	}
}

// View controls how much of a task is returned by get/list (spec.md §6).
type View string

const (
	ViewMinimal View = "MINIMAL"
	ViewBasic   View = "BASIC"
	ViewFull    View = "FULL"
)

// Task is the user-submitted, declarative unit of work. The user-supplied
// fields are immutable once accepted; State and Logs are written by the
// engine, and the remaining engine-owned fields live in internal/task.Doc.
type Task struct {
	ID          string            `json:"id,omitempty" bson:"id,omitempty"`
	State       State             `json:"state,omitempty" bson:"state,omitempty"`
	Name        string            `json:"name,omitempty" bson:"name,omitempty"`
	Description string            `json:"description,omitempty" bson:"description,omitempty"`
	Inputs      []Input           `json:"inputs,omitempty" bson:"inputs,omitempty"`
	Outputs     []Output          `json:"outputs,omitempty" bson:"outputs,omitempty"`
	Resources   *Resources        `json:"resources,omitempty" bson:"resources,omitempty"`
	Executors   []Executor        `json:"executors" bson:"executors"`
	Volumes     []string          `json:"volumes,omitempty" bson:"volumes,omitempty"`
	Tags        map[string]string `json:"tags,omitempty" bson:"tags,omitempty"`
	Logs        []TaskLog         `json:"logs,omitempty" bson:"logs,omitempty"`
	CreationTime string           `json:"creation_time,omitempty" bson:"creation_time,omitempty"`
}

// Input describes one file or directory to stage before executors run.
type Input struct {
	Name        string `json:"name,omitempty" bson:"name,omitempty"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	URL         string `json:"url,omitempty" bson:"url,omitempty"`
	Path        string `json:"path" bson:"path"`
	Type        string `json:"type,omitempty" bson:"type,omitempty"` // FILE or DIRECTORY
	Content     string `json:"content,omitempty" bson:"content,omitempty"`
	StreamOnly  bool   `json:"streamable,omitempty" bson:"streamable,omitempty"`
}

// Output describes one file or directory to stage after executors finish.
type Output struct {
	Name        string `json:"name,omitempty" bson:"name,omitempty"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	URL         string `json:"url,omitempty" bson:"url,omitempty"`
	Path        string `json:"path" bson:"path"`
	PathPrefix  string `json:"path_prefix,omitempty" bson:"path_prefix,omitempty"`
	Type        string `json:"type,omitempty" bson:"type,omitempty"`
}

// Resources captures the per-task resource request. Only disk_gb is used,
// to size the shared PVC; the other fields are not applied to the executor
// Job's container resource requests.
type Resources struct {
	CPUCores    int64    `json:"cpu_cores,omitempty" bson:"cpu_cores,omitempty"`
	RAMGB       float64  `json:"ram_gb,omitempty" bson:"ram_gb,omitempty"`
	DiskGB      float64  `json:"disk_gb,omitempty" bson:"disk_gb,omitempty"`
	Preemptible bool     `json:"preemptible,omitempty" bson:"preemptible,omitempty"`
	Zones       []string `json:"zones,omitempty" bson:"zones,omitempty"`
}

// Executor is one container in the sequential executor chain.
type Executor struct {
	Image       string            `json:"image" bson:"image"`
	Command     []string          `json:"command" bson:"command"`
	Workdir     string            `json:"workdir,omitempty" bson:"workdir,omitempty"`
	Stdin       string            `json:"stdin,omitempty" bson:"stdin,omitempty"`
	Stdout      string            `json:"stdout,omitempty" bson:"stdout,omitempty"`
	Stderr      string            `json:"stderr,omitempty" bson:"stderr,omitempty"`
	Env         map[string]string `json:"env,omitempty" bson:"env,omitempty"`
	IgnoreError bool              `json:"ignore_error,omitempty" bson:"ignore_error,omitempty"`
}

// ExecutorLog records the outcome of a single executor within one attempt.
type ExecutorLog struct {
	StartTime string `json:"start_time,omitempty" bson:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty" bson:"end_time,omitempty"`
	Stdout    string `json:"stdout,omitempty" bson:"stdout,omitempty"`
	Stderr    string `json:"stderr,omitempty" bson:"stderr,omitempty"`
	ExitCode  int    `json:"exit_code" bson:"exit_code"`
}

// OutputFileLog records one file actually produced by Tof.
type OutputFileLog struct {
	URL       string `json:"url" bson:"url"`
	Path      string `json:"path" bson:"path"`
	SizeBytes string `json:"size_bytes,omitempty" bson:"size_bytes,omitempty"`
}

// TaskLog is one execution attempt. A new TaskLog is appended at the start
// of every Torc attempt, including retries after PVC-creation failure.
type TaskLog struct {
	StartTime  string            `json:"start_time,omitempty" bson:"start_time,omitempty"`
	EndTime    string            `json:"end_time,omitempty" bson:"end_time,omitempty"`
	Logs       []ExecutorLog     `json:"logs,omitempty" bson:"logs,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Outputs    []OutputFileLog   `json:"outputs,omitempty" bson:"outputs,omitempty"`
	SystemLogs []string          `json:"system_logs,omitempty" bson:"system_logs,omitempty"`
}

// ListFilter narrows ListTasks (spec.md §6).
type ListFilter struct {
	NamePrefix string
	State      State
	TagKey     []string
	TagValue   []string
	UserID     string
}

// ServiceInfo backs GET /service-info; carried as a mostly-inert sibling
// collection to `tasks` per spec.md §6 "Persisted layout".
type ServiceInfo struct {
	ID             string `json:"id" bson:"id"`
	Name           string `json:"name" bson:"name"`
	Doc            string `json:"doc,omitempty" bson:"doc,omitempty"`
	Organization   string `json:"organization,omitempty" bson:"organization,omitempty"`
	Version        string `json:"version,omitempty" bson:"version,omitempty"`
}
