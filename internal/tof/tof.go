// Package tof implements the output filer runtime (C6): symmetric to Tif,
// uploading each declared output from the shared staging volume, including
// glob-matched outputs.
package tof

import (
	"context"
	"fmt"

	"github.com/poiesis-tes/poiesis/internal/broker"
	"github.com/poiesis-tes/poiesis/internal/filer"
	"github.com/poiesis-tes/poiesis/internal/logging"
	"github.com/poiesis-tes/poiesis/internal/task"
	"github.com/poiesis-tes/poiesis/internal/tes"
)

const stagingRoot = "/transfer"

// Run uploads every output of t from the staging volume. On the first
// failure it publishes ERROR on the task's channel and returns the error;
// on success it publishes SUCCESS.
func Run(ctx context.Context, taskID string, t tes.Task, factory *filer.Factory, brk broker.Port, log *logging.Logger) error {
	channel := task.TaskChannel(taskID)

	for _, output := range t.Outputs {
		if err := uploadOne(ctx, output, factory, log); err != nil {
			reason := fmt.Sprintf("TOF failed: %v", err)
			log.Errorf("%s", reason)
			_ = brk.Publish(ctx, channel, broker.Message{Text: reason, Status: broker.StatusError})
			return err
		}
	}

	log.Infof("output filer completed for task %s", taskID)
	return brk.Publish(ctx, channel, broker.Message{Text: "Filer completed", Status: broker.StatusSuccess})
}

func uploadOne(ctx context.Context, output tes.Output, factory *filer.Factory, log *logging.Logger) error {
	strategy, err := factory.For(output.URL)
	if err != nil {
		return err
	}

	if filer.HasGlobMeta(output.Path) || output.PathPrefix != "" {
		items, err := filer.ResolveGlob(stagingRoot, output.Path, output.PathPrefix, log)
		if err != nil {
			return err
		}
		return strategy.UploadGlob(ctx, items, output.URL)
	}

	containerPath := filer.ContainerPath(stagingRoot, output.Path)
	if output.Type == "DIRECTORY" {
		return strategy.UploadDir(ctx, containerPath, output.URL)
	}
	return strategy.UploadFile(ctx, containerPath, output.URL)
}
