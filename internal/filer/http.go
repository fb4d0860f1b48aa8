package filer

import (
	"context"
	"io"
	"net/http"

	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
)

// HTTPStrategy streams a GET response to the container path. Uploads,
// directory downloads, and globs are unsupported (spec.md §4.4).
type HTTPStrategy struct {
	client *http.Client
}

func NewHTTPStrategy() *HTTPStrategy {
	return &HTTPStrategy{client: &http.Client{}}
}

func (h *HTTPStrategy) DownloadFile(ctx context.Context, uri, containerPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.BadRequest, "build http request", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "http get", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return poiesiserr.New(poiesiserr.TransferError, "http get returned status "+resp.Status)
	}

	if err := ensureParentDir(containerPath); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "create parent dir", err)
	}
	return streamTo(containerPath, resp.Body)
}

func (h *HTTPStrategy) DownloadDir(ctx context.Context, uri, containerPath string) error {
	return unsupported("http", "directory download")
}

func (h *HTTPStrategy) UploadFile(ctx context.Context, containerPath, uri string) error {
	return unsupported("http", "upload")
}

func (h *HTTPStrategy) UploadDir(ctx context.Context, containerPath, uri string) error {
	return unsupported("http", "upload")
}

func (h *HTTPStrategy) UploadGlob(ctx context.Context, items []GlobItem, baseURI string) error {
	return unsupported("http", "upload")
}

func streamTo(path string, r io.Reader) error {
	out, err := createFile(path)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "create destination file", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "stream download", err)
	}
	return nil
}
