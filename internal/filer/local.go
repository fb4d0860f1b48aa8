package filer

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
)

// LocalStrategy copies to/from a path on the filer pod's local filesystem
// (the `file://` scheme), refusing directory-for-file or file-for-directory
// mismatches (spec.md §4.4).
type LocalStrategy struct{}

func NewLocalStrategy() *LocalStrategy { return &LocalStrategy{} }

func localPath(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", poiesiserr.Wrap(poiesiserr.BadRequest, "parse local uri", err)
	}
	return parsed.Path, nil
}

func (l *LocalStrategy) DownloadFile(ctx context.Context, uri, containerPath string) error {
	src, err := localPath(uri)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "stat local source", err)
	}
	if info.IsDir() {
		return poiesiserr.New(poiesiserr.TransferError, "local source is a directory, expected a file")
	}
	if err := ensureParentDir(containerPath); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "create parent dir", err)
	}
	return copyFile(src, containerPath)
}

func (l *LocalStrategy) DownloadDir(ctx context.Context, uri, containerPath string) error {
	src, err := localPath(uri)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "stat local source", err)
	}
	if !info.IsDir() {
		return poiesiserr.New(poiesiserr.TransferError, "local source is a file, expected a directory")
	}
	return copyTree(src, containerPath)
}

func (l *LocalStrategy) UploadFile(ctx context.Context, containerPath, uri string) error {
	dst, err := localPath(uri)
	if err != nil {
		return err
	}
	info, err := os.Stat(containerPath)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "stat staged output", err)
	}
	if info.IsDir() {
		return poiesiserr.New(poiesiserr.TransferError, "staged output is a directory, expected a file")
	}
	if err := ensureParentDir(dst); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "create destination dir", err)
	}
	return copyFile(containerPath, dst)
}

func (l *LocalStrategy) UploadDir(ctx context.Context, containerPath, uri string) error {
	dst, err := localPath(uri)
	if err != nil {
		return err
	}
	info, err := os.Stat(containerPath)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "stat staged output", err)
	}
	if !info.IsDir() {
		return poiesiserr.New(poiesiserr.TransferError, "staged output is a file, expected a directory")
	}
	return copyTree(containerPath, dst)
}

func (l *LocalStrategy) UploadGlob(ctx context.Context, items []GlobItem, baseURI string) error {
	base, err := localPath(baseURI)
	if err != nil {
		return err
	}
	for _, item := range items {
		dst := filepath.Join(base, item.RelativeKey)
		if item.IsDirectory {
			if err := copyTree(item.ContainerPath, dst); err != nil {
				return err
			}
			continue
		}
		if err := ensureParentDir(dst); err != nil {
			return poiesiserr.Wrap(poiesiserr.TransferError, "create destination dir", err)
		}
		if err := copyFile(item.ContainerPath, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "open source file", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "stat source file", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "open destination file", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "copy file", err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := ensureParentDir(target); err != nil {
			return err
		}
		return copyFile(p, target)
	})
}
