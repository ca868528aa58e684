// internal/s3/client.go
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectMissing is returned by Download when the key has no object behind
// it. Callers use it to tell "corrupted link" apart from transport failures.
var ErrObjectMissing = errors.New("object missing")

// API is the slice of the minio client the wrapper needs; tests substitute
// their own implementation.
type API interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

type Client struct {
	bucketName string
	client     API
}

func NewClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*Client, error) {
	const op = "s3.NewClient"

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &Client{bucketName: bucketName, client: mc}, nil
}

func (c *Client) Bucket() string { return c.bucketName }

func (c *Client) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	const op = "s3.Upload"

	_, err := c.client.PutObject(ctx, c.bucketName, key, r, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("%s: %s: %v", op, key, err)
	}
	return nil
}

func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	const op = "s3.Download"

	obj, err := c.client.GetObject(ctx, c.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %v", op, key, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, obj); err != nil {
		// Missing keys only surface on the first read.
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%s: %s: %w", op, key, ErrObjectMissing)
		}
		return nil, fmt.Errorf("%s: %s: %v", op, key, err)
	}
	return buf.Bytes(), nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	const op = "s3.Delete"

	if err := c.client.RemoveObject(ctx, c.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%s: %s: %v", op, key, err)
	}
	return nil
}

func (c *Client) PresignedGet(ctx context.Context, key string, expires time.Duration) (*url.URL, error) {
	const op = "s3.PresignedGet"

	u, err := c.client.PresignedGetObject(ctx, c.bucketName, key, expires, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %v", op, key, err)
	}
	return u, nil
}
