//go:build gcp

package objectstore

import "context"

func newGCSFromFactory(ctx context.Context, cfg FactoryConfig) (Store, error) {
	return NewGCSStore(ctx, GCSStoreConfig{Bucket: cfg.GCSBucket})
}
