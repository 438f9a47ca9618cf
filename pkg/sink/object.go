package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/ucsb-curriculum-client/pkg/logging"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// ObjectConfig configures an S3-compatible object store.
type ObjectConfig struct {
	// Endpoint is host:port or a URL; an https scheme enables TLS.
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string

	// Prefix is prepended to the object path, e.g. "catalogs".
	Prefix string
}

// ObjectSink uploads the catalog to <bucket>/<prefix>/<quarter>/classes.json.
type ObjectSink struct {
	client *minio.Client
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewObjectSink connects to the object store and checks that the bucket
// exists.
func NewObjectSink(ctx context.Context, cfg ObjectConfig) (*ObjectSink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object sink: bucket is required")
	}

	endpoint, secure := normalizeEndpoint(cfg.Endpoint)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("object sink: create client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("object sink: bucket check: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("object sink: bucket %q does not exist", cfg.Bucket)
	}

	return &ObjectSink{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logging.NewLogger("sink"),
	}, nil
}

// normalizeEndpoint strips a URL scheme, which minio-go does not accept, and
// derives TLS from it.
func normalizeEndpoint(endpoint string) (string, bool) {
	secure := strings.HasPrefix(endpoint, "https://")
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Host, u.Scheme == "https"
	}
	return endpoint, secure
}

// Name implements Sink.
func (o *ObjectSink) Name() string {
	return "object"
}

// ObjectName returns the object path for quarter.
func (o *ObjectSink) ObjectName(quarter string) string {
	return Key{Quarter: quarter}.ObjectName(o.prefix)
}

// Write implements Sink.
func (o *ObjectSink) Write(ctx context.Context, catalog Catalog) error {
	data, err := EncodeCourses(catalog.Courses)
	if err != nil {
		record(o.Name(), 0, err)
		return err
	}

	name := o.ObjectName(catalog.Quarter)
	info, err := o.client.PutObject(ctx, o.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"run-id":  catalog.RunID,
			"quarter": catalog.Quarter,
		},
	})
	if err != nil {
		record(o.Name(), 0, err)
		return fmt.Errorf("put object %s/%s: %w", o.bucket, name, err)
	}
	record(o.Name(), len(data), nil)

	o.logger.Info().
		Str("bucket", o.bucket).
		Str("object", name).
		Str("etag", info.ETag).
		Int("courses", len(catalog.Courses)).
		Msg("Catalog uploaded")

	return nil
}
