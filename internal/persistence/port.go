// Package persistence defines the document-store port (C1) and its
// MongoDB implementation. Every updater is the sole writer of the fields
// it touches, per spec.md §4.1's "no cross-document transactions"
// guarantee.
package persistence

import (
	"context"
	"time"

	"github.com/poiesis-tes/poiesis/internal/task"
	"github.com/poiesis-tes/poiesis/internal/tes"
)

// Port is the durable storage contract for task documents and append-only
// logs (spec.md §4.1).
type Port interface {
	InsertTask(ctx context.Context, doc *task.Doc) (string, error)
	GetTask(ctx context.Context, taskID string) (*task.Doc, error)
	UpdateTaskState(ctx context.Context, taskID string, newState tes.State) error
	AppendTaskLog(ctx context.Context, taskID string) error
	AppendExecutorLog(ctx context.Context, taskID string) error
	SetTaskLogEnd(ctx context.Context, taskID string, when time.Time) error
	SetSystemLogs(ctx context.Context, taskID string, lines []string) error
	UpdateExecutorLog(ctx context.Context, executorName string, phase ExecutorPhase, stdout, stderr string) error
	ListTasks(ctx context.Context, filter tes.ListFilter, pageSize int, pageToken string) ([]*task.Doc, string, error)

	GetServiceInfo(ctx context.Context) (*tes.ServiceInfo, error)
	PutServiceInfo(ctx context.Context, info *tes.ServiceInfo) error
}

// ExecutorPhase is the terminal phase Texam observed for one executor.
type ExecutorPhase string

const (
	PhaseSucceeded ExecutorPhase = "SUCCEEDED"
	PhaseFailed    ExecutorPhase = "FAILED"
)
