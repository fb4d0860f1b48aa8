// Package task holds the engine-owned wrapper around a tes.Task (state,
// ownership, timestamps) and the state-machine invariants of spec.md §3.
package task

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
	"github.com/poiesis-tes/poiesis/internal/tes"
)

// Doc is the full persisted document: the immutable user-supplied Task plus
// engine-owned bookkeeping fields.
type Doc struct {
	Task        tes.Task `bson:"inline"`
	UserID      string   `bson:"user_id"`
	ServiceHash string   `bson:"service_hash"`
	TESVersion  string   `bson:"tes_version"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
	// Ordinal is the document's insertion-order identifier, used to build
	// opaque keyset pagination tokens (spec.md §6).
	Ordinal int64 `bson:"ordinal"`
}

// transitions enumerates the legal next-states for every non-terminal
// state (spec.md §3 invariant 2). CANCELING may be entered from any
// non-terminal state; terminal states have no outgoing edges.
var transitions = map[tes.State][]tes.State{
	tes.StateInitializing: {tes.StateQueued, tes.StateCanceling, tes.StateSystemErr},
	tes.StateQueued:       {tes.StateRunning, tes.StateCanceling, tes.StateSystemErr},
	tes.StateRunning: {
		tes.StateComplete, tes.StateExecutorErr, tes.StateSystemErr,
		tes.StateCanceled, tes.StateCanceling,
	},
	tes.StateCanceling: {tes.StateCanceled},
}

// ValidateTransition reports whether moving from `from` to `to` is legal.
// A no-op transition (from == to) is always legal, matching
// update_task_state's "no-op if equal" contract (spec.md §4.1).
func ValidateTransition(from, to tes.State) error {
	if from == to {
		return nil
	}
	if from.Terminal() {
		return poiesiserr.New(poiesiserr.BadRequest,
			fmt.Sprintf("cannot transition out of terminal state %s", from))
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return poiesiserr.New(poiesiserr.BadRequest,
		fmt.Sprintf("illegal state transition %s -> %s", from, to))
}

// executorNamePattern matches te-<uuid>-<idx> (spec.md §6).
var executorNamePattern = regexp.MustCompile(`^te-([0-9a-fA-F-]{36})-(\d+)$`)

// EncodeExecutorName builds the derived Job/Pod name for executor `idx` of
// task `taskID` (spec.md §3 entity table).
func EncodeExecutorName(taskID string, idx int) string {
	return fmt.Sprintf("te-%s-%d", taskID, idx)
}

// DecodeExecutorName inverts EncodeExecutorName, rejecting names that do
// not match the expected pattern (spec.md §9 "implicit task-id parsing").
func DecodeExecutorName(name string) (taskID string, idx int, err error) {
	m := executorNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", 0, poiesiserr.New(poiesiserr.BadRequest,
			fmt.Sprintf("executor name %q does not match te-<uuid>-<int>", name))
	}
	n, convErr := strconv.Atoi(m[2])
	if convErr != nil {
		return "", 0, poiesiserr.Wrap(poiesiserr.BadRequest, "executor index not an integer", convErr)
	}
	return m[1], n, nil
}

// Names with these fixed prefixes are reserved for engine-derived resources
// (spec.md §6).
const (
	PrefixPVC   = "pvc-"
	PrefixTorc  = "torc-"
	PrefixTif   = "tif-"
	PrefixTexam = "texam-"
	PrefixTof   = "tof-"
	PrefixTask  = "tes-task-"
)

func PVCName(taskID string) string   { return PrefixPVC + taskID }
func TorcName(taskID string) string  { return PrefixTorc + taskID }
func TifName(taskID string) string   { return PrefixTif + taskID }
func TexamName(taskID string) string { return PrefixTexam + taskID }
func TofName(taskID string) string   { return PrefixTof + taskID }
func ConfigMapName(taskID string) string { return PrefixTask + taskID }

// TaskChannel is the broker channel name for a task: one channel per task,
// named by its UUID (spec.md §6).
func TaskChannel(taskID string) string { return taskID }

// StripTagValue reports whether an empty tag filter value means "key
// exists" per spec.md §6.
func StripTagValue(v string) bool { return strings.TrimSpace(v) == "" }
