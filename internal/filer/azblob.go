package filer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
)

// AzureBlobStrategy is a supplemented filer scheme (azblob://container/key)
// mirroring the teacher's own AWS/Azure/GCP state-storage dispatch, extended
// here to task input/output staging.
type AzureBlobStrategy struct {
	client *azblob.Client
}

func NewAzureBlobStrategy(accountName, accountKey string) (*AzureBlobStrategy, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, poiesiserr.Wrap(poiesiserr.ConfigError, "build azure credential", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, poiesiserr.Wrap(poiesiserr.ConfigError, "build azure blob client", err)
	}
	return &AzureBlobStrategy{client: client}, nil
}

func parseAzURI(uri string) (container, key string, err error) {
	const scheme = "azblob://"
	if !strings.HasPrefix(uri, scheme) {
		return "", "", poiesiserr.New(poiesiserr.BadRequest, fmt.Sprintf("not an azblob uri: %s", uri))
	}
	rest := uri[len(scheme):]
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 {
		return "", "", poiesiserr.New(poiesiserr.BadRequest, fmt.Sprintf("azblob uri missing key: %s", uri))
	}
	return parts[0], SanitizeKey(parts[1]), nil
}

func (a *AzureBlobStrategy) DownloadFile(ctx context.Context, uri, containerPath string) error {
	container, key, err := parseAzURI(uri)
	if err != nil {
		return err
	}
	if err := ensureParentDir(containerPath); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "create parent dir", err)
	}
	out, err := createFile(containerPath)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "create destination file", err)
	}
	defer out.Close()

	resp, err := a.client.DownloadStream(ctx, container, key, nil)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "azure blob download", err)
	}
	defer resp.Body.Close()
	return streamTo(containerPath, resp.Body)
}

func (a *AzureBlobStrategy) DownloadDir(ctx context.Context, uri, containerPath string) error {
	container, prefix, err := parseAzURI(uri)
	if err != nil {
		return err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	pager := a.client.NewListBlobsFlatPager(container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return poiesiserr.Wrap(poiesiserr.TransferError, "list azure blobs", err)
		}
		for _, item := range page.Segment.BlobItems {
			key := *item.Name
			rel := strings.TrimPrefix(key, prefix)
			if rel == "" {
				continue
			}
			dst := filepath.Join(containerPath, filepath.FromSlash(rel))
			if err := ensureParentDir(dst); err != nil {
				return poiesiserr.Wrap(poiesiserr.TransferError, "create parent dir", err)
			}
			resp, err := a.client.DownloadStream(ctx, container, key, nil)
			if err != nil {
				return poiesiserr.Wrap(poiesiserr.TransferError, "azure blob download", err)
			}
			err = streamTo(dst, resp.Body)
			resp.Body.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *AzureBlobStrategy) UploadFile(ctx context.Context, containerPath, uri string) error {
	container, key, err := parseAzURI(uri)
	if err != nil {
		return err
	}
	in, err := os.Open(containerPath)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "open staged output", err)
	}
	defer in.Close()

	if _, err := a.client.UploadStream(ctx, container, key, in, nil); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "azure blob upload", err)
	}
	return nil
}

func (a *AzureBlobStrategy) UploadDir(ctx context.Context, containerPath, uri string) error {
	container, prefix, err := parseAzURI(uri)
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
		_, err = a.client.UploadStream(ctx, container, key, in, nil)
		return err
	})
}

func (a *AzureBlobStrategy) UploadGlob(ctx context.Context, items []GlobItem, baseURI string) error {
	container, prefix, err := parseAzURI(baseURI)
	if err != nil {
		return err
	}
	for _, item := range items {
		itemURI := fmt.Sprintf("azblob://%s/%s%s", container, prefix, item.RelativeKey)
		if item.IsDirectory {
			if err := a.UploadDir(ctx, item.ContainerPath, itemURI); err != nil {
				return err
			}
			continue
		}
		if err := a.UploadFile(ctx, item.ContainerPath, itemURI); err != nil {
			return err
		}
	}
	return nil
}
