// Package tif implements the input filer runtime (C5): for each declared
// input, dispatch to a filer strategy and download it onto the shared
// staging volume, publishing exactly one terminal message on the task's
// channel.
package tif

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

// Run downloads every input of t onto the staging volume. On the first
// failure it publishes ERROR on the task's channel and returns the error;
// on success it publishes SUCCESS. Callers (cmd/poiesis) translate a
// non-nil return into a non-zero process exit.
func Run(ctx context.Context, taskID string, t tes.Task, factory *filer.Factory, brk broker.Port, log *logging.Logger) error {
	channel := task.TaskChannel(taskID)

	for _, input := range t.Inputs {
		if err := downloadOne(ctx, input, factory); err != nil {
			reason := fmt.Sprintf("TIF failed: %v", err)
			log.Errorf("%s", reason)
			_ = brk.Publish(ctx, channel, broker.Message{Text: reason, Status: broker.StatusError})
			return err
		}
	}

	log.Infof("filer completed for task %s", taskID)
	return brk.Publish(ctx, channel, broker.Message{Text: "Filer completed", Status: broker.StatusSuccess})
}

func downloadOne(ctx context.Context, input tes.Input, factory *filer.Factory) error {
	containerPath := filer.ContainerPath(stagingRoot, input.Path)

	if input.URL == "" {
		strategy, err := factory.For("")
		if err != nil {
			return err
		}
		return strategy.DownloadFile(ctx, input.Content, containerPath)
	}

	strategy, err := factory.For(input.URL)
	if err != nil {
		return err
	}
	if input.Type == "DIRECTORY" {
		return strategy.DownloadDir(ctx, input.URL, containerPath)
	}
	return strategy.DownloadFile(ctx, input.URL, containerPath)
}
