// Package ingest loads the transactions parquet export into Postgres.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/seanankenbruck/transactions-ai/internal/config"
)

// Source is an open parquet file
type Source interface {
	io.ReaderAt
	io.Seeker
	io.Closer
}

// Location is a parsed file reference: a local path or s3://bucket/key
type Location struct {
	Bucket string
	Key    string
	Path   string
}

// Remote reports whether the file lives in object storage
func (l Location) Remote() bool {
	return l.Bucket != ""
}

func (l Location) String() string {
	if l.Remote() {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Path
}

// ParseLocation splits s3:// URLs; anything else is a local path
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("file location is required")
	}
	if !strings.HasPrefix(raw, "s3://") {
		return Location{Path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse %s: %w", raw, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, fmt.Errorf("s3 location must be s3://bucket/key, got %s", raw)
	}
	return Location{Bucket: u.Host, Key: key}, nil
}

// Open opens a local file or an object through the configured S3 endpoint
func Open(ctx context.Context, loc Location, storage config.StorageConfig) (Source, error) {
	if !loc.Remote() {
		f, err := os.Open(loc.Path)
		if err != nil {
			return nil, fmt.Errorf("parquet file not found: %w", err)
		}
		return f, nil
	}

	client, err := newObjectClient(storage)
	if err != nil {
		return nil, err
	}
	obj, err := client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", loc, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("stat %s: %w", loc, err)
	}
	return obj, nil
}

func newObjectClient(storage config.StorageConfig) (*minio.Client, error) {
	endpoint, secure := storage.Endpoint, storage.UseSSL
	if endpoint == "" {
		return nil, fmt.Errorf("STORAGE_ENDPOINT is required for s3:// sources")
	}
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = secure || u.Scheme == "https"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(storage.AccessKey, storage.SecretKey, ""),
		Secure: secure,
		Region: storage.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return client, nil
}
