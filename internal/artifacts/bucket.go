package artifacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/logcompliance/internal/platform/gcp"
)

// BucketStore keeps objects in the results bucket.
type BucketStore struct {
	bucket gcp.BucketService
}

func NewBucketStore(bucket gcp.BucketService) (*BucketStore, error) {
	if bucket == nil {
		return nil, fmt.Errorf("bucket service required")
	}
	if bucket.BucketName(gcp.BucketCategoryResults) == "" {
		return nil, fmt.Errorf("results bucket required for bucket artifact store")
	}
	return &BucketStore{bucket: bucket}, nil
}

func (s *BucketStore) Put(ctx context.Context, jobID string, key Key, value []byte) error {
	return s.bucket.WriteFile(ctx, gcp.BucketCategoryResults, ObjectName(jobID, key), value)
}

func (s *BucketStore) Get(ctx context.Context, jobID string, key Key) ([]byte, error) {
	raw, err := s.bucket.ReadFile(ctx, gcp.BucketCategoryResults, ObjectName(jobID, key))
	if err != nil {
		if errors.Is(err, gcp.ErrObjectNotFound) {
			return nil, notFound(jobID, key, err)
		}
		return nil, err
	}
	return raw, nil
}

func (s *BucketStore) Exists(ctx context.Context, jobID string, key Key) (bool, error) {
	return s.bucket.FileExists(ctx, gcp.BucketCategoryResults, ObjectName(jobID, key))
}
