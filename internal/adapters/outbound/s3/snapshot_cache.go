// Package s3 provides an S3 implementation of the SnapshotCache port.
//
// Entries are stored as
//
//	<root>/<prefix>/<partition>/<prefix>_<start>_<end>.json[.gz]
//
// where partition is the 1000-block bucket of start. Find lists the prefix
// directory, so entries written by older layouts under the same directory
// are still found as long as the object name follows the grammar.
package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/archon-research/multiread/internal/pkg/cachename"
	"github.com/archon-research/multiread/internal/pkg/partition"
	"github.com/archon-research/multiread/internal/ports/outbound"
)

const gzipExt = ".gz"

// s3API defines the subset of S3 operations needed by the SnapshotCache.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Compile-time check that SnapshotCache implements outbound.SnapshotCache
var _ outbound.SnapshotCache = (*SnapshotCache)(nil)

// Config holds S3 cache configuration.
type Config struct {
	// Bucket is the S3 bucket holding the cache.
	Bucket string
	// Root is the key prefix all entries live under. Empty stores at the bucket root.
	Root string
	// Compress gzips entries on write. Reads handle both forms.
	Compress bool
}

// SnapshotCache implements outbound.SnapshotCache using the AWS SDK.
type SnapshotCache struct {
	client   s3API
	bucket   string
	root     string
	compress bool
	logger   *slog.Logger
}

// NewSnapshotCache creates an S3 snapshot cache with the given AWS config.
func NewSnapshotCache(awsCfg aws.Config, cfg Config, logger *slog.Logger, optFns ...func(*s3.Options)) (*SnapshotCache, error) {
	return newSnapshotCache(s3.NewFromConfig(awsCfg, optFns...), cfg, logger)
}

func newSnapshotCache(client s3API, cfg Config, logger *slog.Logger) (*SnapshotCache, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCache{
		client:   client,
		bucket:   cfg.Bucket,
		root:     strings.Trim(cfg.Root, "/"),
		compress: cfg.Compress,
		logger:   logger.With("component", "s3-snapshot-cache"),
	}, nil
}

// dir returns the key prefix that holds every entry for prefix.
func (c *SnapshotCache) dir(prefix string) string {
	if c.root == "" {
		return prefix + "/"
	}
	return c.root + "/" + prefix + "/"
}

// objectKey returns the key an entry for [start, end] is written to.
func (c *SnapshotCache) objectKey(prefix string, start, end int64) string {
	key := c.dir(prefix) + partition.GetPartition(start) + "/" + cachename.Format(prefix, start, end)
	if c.compress {
		key += gzipExt
	}
	return key
}

// Find returns the first entry, in key order, stored under prefix.
func (c *SnapshotCache) Find(ctx context.Context, prefix string) (*outbound.CacheEntry, error) {
	if err := cachename.ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	keys, err := c.listEntries(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	key := keys[0].key
	content, err := c.readObject(ctx, key)
	if isNotFound(err) {
		c.logger.Debug("cache entry removed while reading", "key", key)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(content) {
		return nil, fmt.Errorf("cache object %s is not valid JSON", key)
	}

	c.logger.Debug("cache hit", "key", key, "start", keys[0].start, "end", keys[0].end)
	return &outbound.CacheEntry{Content: content, Start: keys[0].start, End: keys[0].end}, nil
}

// Store uploads content for [start, end] and removes older entries for prefix.
func (c *SnapshotCache) Store(ctx context.Context, prefix string, start, end int64, content json.RawMessage) error {
	if err := cachename.ValidatePrefix(prefix); err != nil {
		return err
	}
	if !json.Valid(content) {
		return errors.New("cache content is not valid JSON")
	}

	body, contentEncoding, err := c.prepareBody(content)
	if err != nil {
		return err
	}

	key := c.objectKey(prefix, start, end)
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(c.bucket),
		Key:             aws.String(key),
		Body:            body,
		ContentType:     aws.String("application/json"),
		ContentEncoding: contentEncoding,
	})
	if err != nil {
		return fmt.Errorf("failed to write %s to S3: %w", key, err)
	}

	stale, err := c.listEntries(ctx, prefix)
	if err != nil {
		c.logger.Warn("failed to list stale cache entries", "prefix", prefix, "error", err)
		return nil
	}
	for _, e := range stale {
		if e.key == key {
			continue
		}
		if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(e.key),
		}); err != nil {
			c.logger.Warn("failed to remove stale cache entry", "key", e.key, "error", err)
		}
	}

	c.logger.Debug("cache stored", "key", key, "compressed", c.compress)
	return nil
}

type entryKey struct {
	key        string
	start, end int64
}

// listEntries returns every object under the prefix directory whose name
// follows the grammar, in the key order S3 lists them.
func (c *SnapshotCache) listEntries(ctx context.Context, prefix string) ([]entryKey, error) {
	var entries []entryKey

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.dir(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			name := strings.TrimSuffix(path.Base(*obj.Key), gzipExt)
			start, end, ok := cachename.Parse(name, prefix)
			if !ok {
				continue
			}
			entries = append(entries, entryKey{key: *obj.Key, start: start, end: end})
		}
	}

	return entries, nil
}

// readObject downloads key, decompressing it when the key ends in .gz.
func (c *SnapshotCache) readObject(ctx context.Context, key string) ([]byte, error) {
	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", c.bucket, key, err)
	}
	defer result.Body.Close()

	var r io.Reader = result.Body
	if strings.HasSuffix(key, gzipExt) {
		gzReader, err := gzip.NewReader(result.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader for %s: %w", key, err)
		}
		defer gzReader.Close()
		r = gzReader
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// prepareBody handles optional gzip compression for the upload body.
func (c *SnapshotCache) prepareBody(content []byte) (io.Reader, *string, error) {
	if !c.compress {
		return bytes.NewReader(content), nil, nil
	}

	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	if _, err := gzWriter.Write(content); err != nil {
		return nil, nil, fmt.Errorf("failed to compress content: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return bytes.NewReader(buf.Bytes()), aws.String("gzip"), nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey"
}
