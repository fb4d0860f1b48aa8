package filer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
)

// GCSStrategy is a supplemented filer scheme (gs://bucket/key), mirroring
// the teacher's own GCP state-storage dispatch, extended to task
// input/output staging.
type GCSStrategy struct {
	client *storage.Client
}

func NewGCSStrategy(ctx context.Context) (*GCSStrategy, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, poiesiserr.Wrap(poiesiserr.ConfigError, "build gcs client", err)
	}
	return &GCSStrategy{client: client}, nil
}

func parseGSURI(uri string) (bucket, key string, err error) {
	const scheme = "gs://"
	if !strings.HasPrefix(uri, scheme) {
		return "", "", poiesiserr.New(poiesiserr.BadRequest, fmt.Sprintf("not a gs uri: %s", uri))
	}
	rest := uri[len(scheme):]
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 {
		return "", "", poiesiserr.New(poiesiserr.BadRequest, fmt.Sprintf("gs uri missing key: %s", uri))
	}
	return parts[0], SanitizeKey(parts[1]), nil
}

func (g *GCSStrategy) DownloadFile(ctx context.Context, uri, containerPath string) error {
	bucket, key, err := parseGSURI(uri)
	if err != nil {
		return err
	}
	rc, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "gcs download", err)
	}
	defer rc.Close()

	if err := ensureParentDir(containerPath); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "create parent dir", err)
	}
	return streamTo(containerPath, rc)
}

func (g *GCSStrategy) DownloadDir(ctx context.Context, uri, containerPath string) error {
	bucket, prefix, err := parseGSURI(uri)
	if err != nil {
		return err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	it := g.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == storage.ErrObjectNotExist {
			break
		}
		if err != nil {
			if err.Error() == "no more items in iterator" {
				break
			}
			return poiesiserr.Wrap(poiesiserr.TransferError, "list gcs objects", err)
		}
		rel := strings.TrimPrefix(attrs.Name, prefix)
		if rel == "" {
			continue
		}
		dst := filepath.Join(containerPath, filepath.FromSlash(rel))
		if err := ensureParentDir(dst); err != nil {
			return poiesiserr.Wrap(poiesiserr.TransferError, "create parent dir", err)
		}
		rc, err := g.client.Bucket(bucket).Object(attrs.Name).NewReader(ctx)
		if err != nil {
			return poiesiserr.Wrap(poiesiserr.TransferError, "gcs download object", err)
		}
		err = streamTo(dst, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *GCSStrategy) UploadFile(ctx context.Context, containerPath, uri string) error {
	bucket, key, err := parseGSURI(uri)
	if err != nil {
		return err
	}
	in, err := os.Open(containerPath)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "open staged output", err)
	}
	defer in.Close()

	wc := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(wc, in); err != nil {
		wc.Close()
		return poiesiserr.Wrap(poiesiserr.TransferError, "gcs upload", err)
	}
	if err := wc.Close(); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "close gcs writer", err)
	}
	return nil
}

func (g *GCSStrategy) UploadDir(ctx context.Context, containerPath, uri string) error {
	bucket, prefix, err := parseGSURI(uri)
	if err != nil {
		return err
	}
	return filepath.Walk(containerPath, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(containerPath, p)
		if err != nil {
			return err
		}
		key := prefix + filepath.ToSlash(rel)
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		wc := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
		if _, err := io.Copy(wc, in); err != nil {
			wc.Close()
			return err
		}
		return wc.Close()
	})
}

func (g *GCSStrategy) UploadGlob(ctx context.Context, items []GlobItem, baseURI string) error {
	bucket, prefix, err := parseGSURI(baseURI)
	if err != nil {
		return err
	}
	for _, item := range items {
		itemURI := fmt.Sprintf("gs://%s/%s%s", bucket, prefix, item.RelativeKey)
		if item.IsDirectory {
			if err := g.UploadDir(ctx, item.ContainerPath, itemURI); err != nil {
				return err
			}
			continue
		}
		if err := g.UploadFile(ctx, item.ContainerPath, itemURI); err != nil {
			return err
		}
	}
	return nil
}
