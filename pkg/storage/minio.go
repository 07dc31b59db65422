package storage

import (
	"context"
	"fmt"
	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"path/filepath"
	"strings"
)

var videoContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

// Mirror copies finished files to secondary storage.
type Mirror interface {
	Put(ctx context.Context, localPath string) error
}

// MinioMirror uploads files to a bucket under their base name, keeping the
// flat layout of the upload directory.
type MinioMirror struct {
	client *minio.Client
	bucket string
}

func NewMinioMirror(client *minio.Client, bucket string) *MinioMirror {
	return &MinioMirror{
		client: client,
		bucket: bucket,
	}
}

func (m *MinioMirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.bucket, err)
		}
	}
	return nil
}

func (m *MinioMirror) Put(ctx context.Context, localPath string) error {
	objectName := filepath.Base(localPath)
	_, err := m.client.FPutObject(ctx, m.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectName, err)
	}
	return nil
}

// contentType trusts well-known video extensions and sniffs everything else,
// since uploads are stored under whatever name the client sent.
func contentType(path string) string {
	if ct, ok := videoContentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mtype.String()
}
