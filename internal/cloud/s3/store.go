package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mschirtzinger/daysync/internal/cloud"
)

// object is a listing entry from the bucket.
type object struct {
	Key          string
	LastModified time.Time
}

// objectStore is the subset of bucket operations the provider needs.
type objectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]object, error)
}

// minioStore implements objectStore with minio-go.
type minioStore struct {
	client *minio.Client
	bucket string
}

func newMinioStore(cfg cloud.S3Config, transport http.RoundTripper) (*minioStore, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:    !cfg.Insecure,
		Region:    cfg.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &minioStore{client: client, bucket: cfg.BucketName}, nil
}

func (m *minioStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

func (m *minioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	// Request errors surface on the first read.
	return io.ReadAll(obj)
}

func (m *minioStore) List(ctx context.Context, prefix string) ([]object, error) {
	// Cancelling stops the lister goroutine when we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []object
	for info := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, info.Err
		}
		out = append(out, object{Key: info.Key, LastModified: info.LastModified})
	}
	return out, nil
}

// remoteError converts a minio error response to a *cloud.RemoteError.
// Errors without an HTTP status (network failures) pass through.
func remoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == 0 {
		return fmt.Errorf("s3 %s: %w", op, err)
	}
	status := fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if resp.Code != "" {
		status += " (" + resp.Code + ")"
	}
	return &cloud.RemoteError{
		Provider:   providerName,
		Op:         op,
		StatusCode: resp.StatusCode,
		Status:     status,
		Body:       resp.Message,
	}
}
