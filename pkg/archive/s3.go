package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/profiledb/pkg/config"
)

// s3Uploader writes archive objects to S3-compatible storage.
type s3Uploader struct {
	log    logrus.FieldLogger
	cfg    *config.S3ArchiveConfig
	prefix string
	client *s3.Client
}

var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates an uploader for the configured bucket.
func NewS3Uploader(
	log logrus.FieldLogger,
	cfg *config.S3ArchiveConfig,
	prefix string,
) (Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	return &s3Uploader{
		log:    log.WithField("component", "s3-archive"),
		cfg:    cfg,
		prefix: prefix,
		client: newS3Client(cfg),
	}, nil
}

func newS3Client(cfg *config.S3ArchiveConfig) *s3.Client {
	return s3.New(s3.Options{}, func(o *s3.Options) {
		o.Region = cfg.Region
		if o.Region == "" {
			o.Region = "us-east-1"
		}

		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}

		o.UsePathStyle = cfg.ForcePathStyle

		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)
		}
	})
}

// Preflight writes a small marker object to fail fast on misconfiguration.
func (u *s3Uploader) Preflight(ctx context.Context) error {
	content := "profiledb write test: " + time.Now().UTC().Format(time.RFC3339)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(joinKey(u.prefix, ".profiledb-write-test")),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", u.cfg.Bucket, err)
	}

	return nil
}

// Put uploads data as a single object.
func (u *s3Uploader) Put(ctx context.Context, key string, data []byte) (string, error) {
	fullKey := joinKey(u.prefix, key)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(fullKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}

	if u.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(u.cfg.StorageClass)
	}

	u.log.WithFields(logrus.Fields{
		"key":    fullKey,
		"bucket": u.cfg.Bucket,
	}).Debug("Uploading object")

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("PutObject: %w", err)
	}

	return "s3://" + u.cfg.Bucket + "/" + fullKey, nil
}
