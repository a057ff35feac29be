// Package objectstore uploads exported rasters to S3-compatible storage.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// FileExporter writes an export locally and returns its path.
type FileExporter interface {
	Export(ctx context.Context, key string, f raster.Frame, band string) (string, error)
}

// Putter is the subset of the MinIO client the uploader needs.
type Putter interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Options configures the MinIO connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// Uploader writes exports through a local FileExporter, then uploads the
// file and removes the local copy.
type Uploader struct {
	local  FileExporter
	client Putter
	bucket string
	logger *slog.Logger
}

// Connect creates the MinIO client and ensures the bucket exists.
func Connect(ctx context.Context, opts Options, local FileExporter, logger *slog.Logger) (*Uploader, error) {
	endpoint := strings.TrimPrefix(opts.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
		logger.Info("export bucket created", "bucket", opts.Bucket)
	}
	return New(client, opts.Bucket, local, logger), nil
}

// New wraps an existing client.
func New(client Putter, bucket string, local FileExporter, logger *slog.Logger) *Uploader {
	return &Uploader{local: local, client: client, bucket: bucket, logger: logger}
}

// Export returns an s3://bucket/key.tif URI.
func (u *Uploader) Export(ctx context.Context, key string, f raster.Frame, band string) (string, error) {
	file, err := u.local.Export(ctx, key, f, band)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(file); err != nil {
			u.logger.Warn("remove local export failed", "path", file, "error", err)
		}
	}()

	object := path.Clean(key) + ".tif"
	info, err := u.client.FPutObject(ctx, u.bucket, object, file, minio.PutObjectOptions{ContentType: "image/tiff"})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	u.logger.Debug("export uploaded", "bucket", u.bucket, "object", object, "bytes", info.Size)
	return fmt.Sprintf("s3://%s/%s", u.bucket, object), nil
}
