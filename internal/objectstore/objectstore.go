// Package objectstore wraps the S3-compatible client used for both the raw
// inbound email bodies and the extracted attachments, generalizing the
// source's single-bucket StorageService into a bucket-parameterized client.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tyrchen/mailflow/internal/config"
	"github.com/tyrchen/mailflow/internal/mailerr"
)

// Store is the object storage seam used by the attachment processor and the
// inbound/outbound pipelines. Kept as an interface so tests can substitute
// an in-memory fake without an S3 dependency.
type Store interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	HeadSize(ctx context.Context, bucket, key string) (int64, bool, error)
	Presign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	DeleteObjects(ctx context.Context, bucket string, keys []string) (int, error)
}

// Client is the S3/MinIO-backed implementation of Store.
type Client struct {
	s3            *s3.Client
	presignClient *s3.PresignClient
}

// New builds a Client from storage configuration, applying endpoint-URL
// normalization and path-style addressing for MinIO compatibility.
func New(cfg config.StorageConfig) *Client {
	var endpointURL string
	switch {
	case strings.HasPrefix(cfg.Endpoint, "http://"), strings.HasPrefix(cfg.Endpoint, "https://"):
		endpointURL = cfg.Endpoint
	default:
		protocol := "http"
		if cfg.UseSSL {
			protocol = "https"
		}
		endpointURL = protocol + "://" + cfg.Endpoint
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		BaseEndpoint: aws.String(endpointURL),
		UsePathStyle: true,
	})

	return &Client{
		s3:            client,
		presignClient: s3.NewPresignClient(client),
	}
}

// Put uploads body to bucket/key, classifying transport failures as
// StorageUnavailable so the retry combinator can back off and resubmit.
func (c *Client) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return mailerr.Wrap(mailerr.StorageUnavailable, err, fmt.Sprintf("put %s/%s", bucket, key))
	}
	return nil
}

// Get fetches the full object body from bucket/key.
func (c *Client) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mailerr.Wrap(mailerr.StorageUnavailable, err, fmt.Sprintf("get %s/%s", bucket, key))
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, mailerr.Wrap(mailerr.StorageUnavailable, err, "read object body")
	}
	return data, nil
}

// HeadSize returns the object's content length without fetching its body.
// The bool result is false when the object does not exist.
func (c *Client) HeadSize(ctx context.Context, bucket, key string) (int64, bool, error) {
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return 0, false, nil
		}
		return 0, false, mailerr.Wrap(mailerr.StorageUnavailable, err, fmt.Sprintf("head %s/%s", bucket, key))
	}
	if out.ContentLength == nil {
		return 0, true, nil
	}
	return *out.ContentLength, true, nil
}

// Presign generates a time-limited GET URL for bucket/key.
func (c *Client) Presign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	req, err := c.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", mailerr.Wrap(mailerr.StorageUnavailable, err, "presign get object")
	}
	return req.URL, nil
}

// DeleteObjects removes keys from bucket in batches of up to 1000, the S3
// DeleteObjects limit, returning the count actually removed.
func (c *Client) DeleteObjects(ctx context.Context, bucket string, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	const batchSize = 1000
	deleted := 0
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[i:end]
		ids := make([]types.ObjectIdentifier, len(batch))
		for j, k := range batch {
			ids[j] = types.ObjectIdentifier{Key: aws.String(k)}
		}
		out, err := c.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, mailerr.Wrap(mailerr.StorageUnavailable, err, "delete objects")
		}
		deleted += len(batch) - len(out.Errors)
	}
	return deleted, nil
}