package filer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
)

// S3Strategy transfers to/from Amazon S3 (or an S3-compatible endpoint),
// grounded on original_source/poiesis/core/services/filer/strategy/s3_filer.py.
type S3Strategy struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	defaultURL string // fallback host when the URI is the bucket-only form
}

// NewS3Strategy builds an S3Strategy from the engine's AWS_* configuration
// (spec.md §6). accessKey/secretKey/region come from the environment;
// s3URL is the fallback host for s3://bucket/key URIs.
func NewS3Strategy(ctx context.Context, accessKey, secretKey, region, s3URL string) (*S3Strategy, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, poiesiserr.Wrap(poiesiserr.ConfigError, "load aws config", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &S3Strategy{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		defaultURL: s3URL,
	}, nil
}

// s3Location is the parsed (host, bucket, key) triple from an s3:// URI.
type s3Location struct {
	Host   string
	Bucket string
	Key    string
}

// parseS3URI handles both s3://bucket/key and s3://host[:port]/bucket/key
// forms (spec.md §8 round-trip). A netloc is treated as a host (rather than
// a bucket) when it contains a "." or ":" — the same heuristic as the
// Python original's _set_host_bucket_key.
func parseS3URI(uri, fallbackHost string) (s3Location, error) {
	const scheme = "s3://"
	if !strings.HasPrefix(uri, scheme) {
		return s3Location{}, poiesiserr.New(poiesiserr.BadRequest, fmt.Sprintf("not an s3 uri: %s", uri))
	}
	rest := uri[len(scheme):]
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 {
		return s3Location{}, poiesiserr.New(poiesiserr.BadRequest, fmt.Sprintf("s3 uri missing key: %s", uri))
	}
	netloc, remainder := parts[0], parts[1]

	if strings.ContainsAny(netloc, ".:") {
		// s3://host:port/bucket/key
		sub := strings.SplitN(remainder, "/", 2)
		if len(sub) < 2 {
			return s3Location{}, poiesiserr.New(poiesiserr.BadRequest, fmt.Sprintf("s3 uri missing key: %s", uri))
		}
		return s3Location{Host: netloc, Bucket: sub[0], Key: SanitizeKey(sub[1])}, nil
	}

	// s3://bucket/key — host falls back to S3_URL
	if fallbackHost == "" {
		return s3Location{}, poiesiserr.New(poiesiserr.ConfigError, "s3 uri has no host and S3_URL is not configured")
	}
	return s3Location{Host: fallbackHost, Bucket: netloc, Key: SanitizeKey(remainder)}, nil
}

func (s *S3Strategy) DownloadFile(ctx context.Context, uri, containerPath string) error {
	loc, err := parseS3URI(uri, s.defaultURL)
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

	if _, err := s.downloader.Download(ctx, out, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "s3 download", err)
	}
	return nil
}

// DownloadDir paginates list_objects_v2 under the key prefix, downloading
// each object and preserving its relative path (spec.md §4.4).
func (s *S3Strategy) DownloadDir(ctx context.Context, uri, containerPath string) error {
	loc, err := parseS3URI(uri, s.defaultURL)
	if err != nil {
		return err
	}
	prefix := loc.Key
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(loc.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return poiesiserr.Wrap(poiesiserr.TransferError, "list s3 objects", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, prefix)
			if rel == "" {
				continue
			}
			dst := filepath.Join(containerPath, filepath.FromSlash(rel))
			if err := ensureParentDir(dst); err != nil {
				return poiesiserr.Wrap(poiesiserr.TransferError, "create parent dir", err)
			}
			out, err := createFile(dst)
			if err != nil {
				return poiesiserr.Wrap(poiesiserr.TransferError, "create destination file", err)
			}
			_, err = s.downloader.Download(ctx, out, &s3.GetObjectInput{Bucket: aws.String(loc.Bucket), Key: aws.String(key)})
			out.Close()
			if err != nil {
				return poiesiserr.Wrap(poiesiserr.TransferError, "s3 download object", err)
			}
		}
	}
	return nil
}

func (s *S3Strategy) UploadFile(ctx context.Context, containerPath, uri string) error {
	loc, err := parseS3URI(uri, s.defaultURL)
	if err != nil {
		return err
	}
	in, err := os.Open(containerPath)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "open staged output", err)
	}
	defer in.Close()

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
		Body:   in,
	}); err != nil {
		return poiesiserr.Wrap(poiesiserr.TransferError, "s3 upload", err)
	}
	return nil
}

// UploadDir walks the local staged tree and uploads each file under
// key/<relative path>, POSIX-normalized (spec.md §4.4).
func (s *S3Strategy) UploadDir(ctx context.Context, containerPath, uri string) error {
	loc, err := parseS3URI(uri, s.defaultURL)
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
		key := path.Join(loc.Key, filepath.ToSlash(rel))
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{Bucket: aws.String(loc.Bucket), Key: aws.String(key), Body: in})
		return err
	})
}

// UploadGlob uploads file items directly; for directory items it recurses
// via UploadDir (spec.md §4.4 last bullet).
func (s *S3Strategy) UploadGlob(ctx context.Context, items []GlobItem, baseURI string) error {
	loc, err := parseS3URI(baseURI, s.defaultURL)
	if err != nil {
		return err
	}
	for _, item := range items {
		itemURI := fmt.Sprintf("s3://%s/%s", loc.Host, path.Join(loc.Bucket, loc.Key, item.RelativeKey))
		if item.IsDirectory {
			if err := s.UploadDir(ctx, item.ContainerPath, itemURI); err != nil {
				return err
			}
			continue
		}
		if err := s.UploadFile(ctx, item.ContainerPath, itemURI); err != nil {
			return err
		}
	}
	return nil
}
