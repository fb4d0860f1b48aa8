package filer

import (
	"context"
	"os"

	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
)

// ContentStrategy downloads by writing TesInput.content directly to the
// container path. Upload is unsupported (per TES — content is an
// inline-input-only concept).
type ContentStrategy struct{}

// DownloadFile writes content (the uri argument, repurposed to carry the
// inline content since Content has no URL) to containerPath.
func (c *ContentStrategy) DownloadFile(ctx context.Context, content, containerPath string) error {
	if err := ensureParentDir(containerPath); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "create parent dir", err)
	}
	if err := os.WriteFile(containerPath, []byte(content), 0o644); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "write content input", err)
	}
	return nil
}

func (c *ContentStrategy) DownloadDir(ctx context.Context, uri, containerPath string) error {
	return unsupported("content", "directory download")
}

func (c *ContentStrategy) UploadFile(ctx context.Context, containerPath, uri string) error {
	return unsupported("content", "upload")
}

func (c *ContentStrategy) UploadDir(ctx context.Context, containerPath, uri string) error {
	return unsupported("content", "upload")
}

func (c *ContentStrategy) UploadGlob(ctx context.Context, items []GlobItem, baseURI string) error {
	return unsupported("content", "upload")
}
