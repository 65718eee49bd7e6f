package bootstrap

import (
	"context"
	"fmt"

	"videohub/internal/cfg"
	"videohub/internal/storage"
)

func InitBlobs(ctx context.Context, sc cfg.StorageConfig) (storage.Blobs, error) {
	client, err := storage.NewS3Client(ctx, storage.S3Config{
		Endpoint:  sc.Endpoint,
		Region:    sc.Region,
		AccessKey: sc.AccessKey,
		SecretKey: sc.SecretKey,
		Bucket:    sc.Bucket,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return storage.NewS3Blobs(client, sc.Bucket), nil
}
