//go:build !gcp

package objectstore

import (
	"context"
	"errors"
)

func newGCSFromFactory(ctx context.Context, cfg FactoryConfig) (Store, error) {
	return nil, errors.New("gcs backend requires building with -tags gcp")
}
