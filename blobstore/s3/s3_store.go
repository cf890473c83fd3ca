// Package s3 implements blobstore.Store on Amazon S3, for runs whose
// output destination is an s3:// URL.
package s3

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store implements blobstore.Store for S3.
type Store struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewStore creates an S3 store writing under bucket and rootPrefix.
// rootPrefix is prepended to all keys (e.g. "results/").
func NewStore(client *s3.Client, bucket, rootPrefix string) *Store {
	return &Store{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   rootPrefix,
	}
}

// NewStoreFromEnv creates an S3 store using the default AWS credential and
// region resolution chain.
func NewStoreFromEnv(ctx context.Context, bucket, rootPrefix string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewStore(s3.NewFromConfig(cfg), bucket, rootPrefix), nil
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Put uploads the artifact. The upload manager switches to multipart
// transfers for large result files.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   bytes.NewReader(data),
	})
	return err
}
