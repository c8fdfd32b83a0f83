package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type Store struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	log    *zap.SugaredLogger
}

// New connects to a MinIO (or S3 compatible) endpoint and creates the
// bucket if it doesn't exist.
func New(ctx context.Context, endpoint, key, secret, bucket string, secure bool, log *zap.SugaredLogger) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(key, secret, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: couldn't create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("minio: couldn't check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio: couldn't create bucket %s: %w", bucket, err)
		}
		log.Infow("minio: bucket created", "bucket", bucket)
	}
	return &Store{
		client: client,
		bucket: bucket,
		expiry: 24 * time.Hour,
		log:    log,
	}, nil
}

func (s *Store) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if _, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("minio: couldn't put object %s: %w", name, err)
	}
	s.log.Debugw("minio: put object", "bucket", s.bucket, "name", name, "size", len(data))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, name, s.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("minio: couldn't presign object %s: %w", name, err)
	}
	return u.String(), nil
}

func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio: couldn't get object %s: %w", name, err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("minio: couldn't read object %s: %w", name, err)
	}
	return b, nil
}
