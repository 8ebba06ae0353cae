package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/logcompliance/internal/platform/logger"
)

type BucketCategory string

const (
	// BucketCategorySource holds uploaded log files.
	BucketCategorySource BucketCategory = "source"
	// BucketCategoryResults holds phase artifacts and job metadata.
	BucketCategoryResults BucketCategory = "results"
)

const defaultMaxObjectBytes int64 = 32 << 20

// ErrObjectNotFound is returned (wrapped) when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

type BucketService interface {
	// ReadObject reads from an arbitrary bucket; start triggers name the bucket they came from.
	ReadObject(ctx context.Context, bucket, key string) ([]byte, error)
	ReadFile(ctx context.Context, category BucketCategory, key string) ([]byte, error)
	WriteFile(ctx context.Context, category BucketCategory, key string, data []byte) error
	FileExists(ctx context.Context, category BucketCategory, key string) (bool, error)
	BucketName(category BucketCategory) string
	Close() error
}

type BucketConfig struct {
	SourceBucket   string
	ResultsBucket  string
	MaxObjectBytes int64
	Storage        ObjectStorageConfig
}

type bucketService struct {
	log            *logger.Logger
	storageClient  *storage.Client
	sourceBucket   string
	resultsBucket  string
	maxObjectBytes int64
}

func NewBucketService(log *logger.Logger, cfg BucketConfig) (BucketService, error) {
	if err := cfg.Storage.Validate(); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if strings.TrimSpace(cfg.SourceBucket) == "" && strings.TrimSpace(cfg.ResultsBucket) == "" {
		return nil, fmt.Errorf("at least one of source or results bucket is required")
	}
	serviceLog := log.With("service", "BucketService")

	stClient, err := newStorageClientForMode(context.Background(), cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	maxBytes := cfg.MaxObjectBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxObjectBytes
	}

	serviceLog.Info(
		"Object storage initialized",
		"mode", cfg.Storage.Mode,
		"mode_source", cfg.Storage.ModeSource(),
		"emulator_host", cfg.Storage.EmulatorHost,
		"source_bucket", cfg.SourceBucket,
		"results_bucket", cfg.ResultsBucket,
	)

	return &bucketService{
		log:            serviceLog,
		storageClient:  stClient,
		sourceBucket:   strings.TrimSpace(cfg.SourceBucket),
		resultsBucket:  strings.TrimSpace(cfg.ResultsBucket),
		maxObjectBytes: maxBytes,
	}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg ObjectStorageConfig) (*storage.Client, error) {
	switch storageCfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptions(storageCfg.CredentialsJSON, storageCfg.CredentialsFile)
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		// The storage client reads the emulator endpoint from the environment.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", storageCfg.EmulatorEndpoint())
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: string(storageCfg.Mode),
		}
	}
}

func (bs *bucketService) BucketName(category BucketCategory) string {
	switch category {
	case BucketCategorySource:
		return bs.sourceBucket
	case BucketCategoryResults:
		return bs.resultsBucket
	default:
		return ""
	}
}

func (bs *bucketService) bucketFor(category BucketCategory) (string, error) {
	name := bs.BucketName(category)
	if name == "" {
		return "", fmt.Errorf("no bucket configured for category %q", category)
	}
	return name, nil
}

func (bs *bucketService) ReadObject(ctx context.Context, bucket, key string) ([]byte, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		bucket = bs.sourceBucket
	}
	if bucket == "" {
		return nil, fmt.Errorf("read %q: bucket is required", key)
	}
	return bs.read(ctx, bucket, key)
}

func (bs *bucketService) ReadFile(ctx context.Context, category BucketCategory, key string) ([]byte, error) {
	bucket, err := bs.bucketFor(category)
	if err != nil {
		return nil, err
	}
	return bs.read(ctx, bucket, key)
}

func (bs *bucketService) read(ctx context.Context, bucket, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := bs.storageClient.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open GCS reader for gs://%s/%s: %w", bucket, key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, bs.maxObjectBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, key, err)
	}
	if int64(len(data)) > bs.maxObjectBytes {
		return nil, fmt.Errorf("gs://%s/%s exceeds %d bytes", bucket, key, bs.maxObjectBytes)
	}
	return data, nil
}

// WriteFile uploads data as a single object; GCS never exposes a partially written object.
func (bs *bucketService) WriteFile(ctx context.Context, category BucketCategory, key string, data []byte) error {
	bucket, err := bs.bucketFor(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(bucket).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (bs *bucketService) FileExists(ctx context.Context, category BucketCategory, key string) (bool, error) {
	bucket, err := bs.bucketFor(category)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err = bs.storageClient.Bucket(bucket).Object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
}

func (bs *bucketService) Close() error {
	if bs == nil || bs.storageClient == nil {
		return nil
	}
	return bs.storageClient.Close()
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case s == "":
		return ""
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".log"), strings.HasSuffix(s, ".txt"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(s, ".ndjson"), strings.HasSuffix(s, ".jsonl"):
		return "application/x-ndjson"
	default:
		return ""
	}
}
