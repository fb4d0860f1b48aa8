package api

import "github.com/poiesis-tes/poiesis/internal/tes"

// applyView projects t down to the fields the requested view exposes
// (spec.md §6). MINIMAL returns only id/state (plus the required-but-empty
// executors array); BASIC strips the large/sensitive fields; FULL returns
// everything.
func applyView(t tes.Task, view tes.View) tes.Task {
	switch view {
	case tes.ViewMinimal:
		return tes.Task{ID: t.ID, State: t.State, Executors: []tes.Executor{}}
	case tes.ViewBasic:
		stripped := t
		stripped.Inputs = stripInputContent(t.Inputs)
		stripped.Logs = stripTaskLogs(t.Logs)
		return stripped
	default:
		return t
	}
}

func stripInputContent(inputs []tes.Input) []tes.Input {
	if inputs == nil {
		return nil
	}
	out := make([]tes.Input, len(inputs))
	for i, in := range inputs {
		in.Content = ""
		out[i] = in
	}
	return out
}

func stripTaskLogs(logs []tes.TaskLog) []tes.TaskLog {
	if logs == nil {
		return nil
	}
	out := make([]tes.TaskLog, len(logs))
	for i, l := range logs {
		l.SystemLogs = nil
		l.Logs = stripExecutorLogs(l.Logs)
		out[i] = l
	}
	return out
}

func stripExecutorLogs(logs []tes.ExecutorLog) []tes.ExecutorLog {
	if logs == nil {
		return nil
	}
	out := make([]tes.ExecutorLog, len(logs))
	for i, l := range logs {
		l.Stdout = ""
		l.Stderr = ""
		out[i] = l
	}
	return out
}
