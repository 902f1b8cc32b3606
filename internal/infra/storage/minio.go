package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	domain "github.com/bryanwahyu/sonarscan-api/internal/domain/scans"
)

const logContentType = "text/plain; charset=utf-8"

// Store archives scanner logs in a MinIO (or any S3 compatible) bucket.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
}

var _ domain.LogStore = (*Store)(nil)

// New connects to MinIO and makes sure the bucket exists.
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", bucket, err)
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region}, nil
}

// PutLog stores body under key and returns the object URL. The URL is only
// reachable directly when the bucket is public.
func (s *Store) PutLog(ctx context.Context, key string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: logContentType,
	})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", s.bucketName, key, err)
	}
	return objectURL(s.client.EndpointURL(), s.bucketName, key), nil
}

func objectURL(endpoint *url.URL, bucket, key string) string {
	u := url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host, Path: "/" + bucket + "/" + key}
	return u.String()
}
