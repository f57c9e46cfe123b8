package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsCreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/crm"
)

type s3ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3FixtureSource reads fixture files stored under a bucket prefix.
type S3FixtureSource struct {
	client s3ObjectGetter
	bucket string
	prefix string
}

// ParseS3URL splits s3://bucket/prefix.
func ParseS3URL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 url: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 url %q", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// NewS3Client builds an S3 client from the default credential chain, with
// optional region and endpoint overrides.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		awsCfg.Credentials = awsCreds.NewStaticCredentialsProvider(key, os.Getenv("AWS_SECRET_ACCESS_KEY"), os.Getenv("AWS_SESSION_TOKEN"))
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3FixtureSource creates a source for cfg.Source.
func NewS3FixtureSource(ctx context.Context, cfg crm.FixtureConfig) (*S3FixtureSource, error) {
	bucket, prefix, err := ParseS3URL(cfg.Source)
	if err != nil {
		return nil, err
	}
	client, err := NewS3Client(ctx, cfg.S3Region, cfg.S3Endpoint)
	if err != nil {
		return nil, err
	}
	return newS3FixtureSource(client, bucket, prefix), nil
}

func newS3FixtureSource(client s3ObjectGetter, bucket, prefix string) *S3FixtureSource {
	return &S3FixtureSource{client: client, bucket: bucket, prefix: prefix}
}

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func (s *S3FixtureSource) ReadFixture(ctx context.Context, name string) ([]byte, bool, error) {
	key := objectKey(s.prefix, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, true, nil
}

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// UploadFixtures writes f as fixture files under bucket/prefix, so a later
// process can seed from the same s3:// URL.
func UploadFixtures(ctx context.Context, uploader s3Uploader, bucket, prefix string, f *Fixtures) ([]string, error) {
	files := []struct {
		name string
		data any
	}{
		{ContactsFile, f.Contacts},
		{DealsFile, f.Deals},
		{ActivitiesFile, f.Activities},
		{TasksFile, f.Tasks},
	}
	keys := make([]string, 0, len(files))
	for _, file := range files {
		body, err := json.MarshalIndent(file.data, "", "  ")
		if err != nil {
			return keys, fmt.Errorf("encode %s: %w", file.name, err)
		}
		key := objectKey(prefix, file.name)
		if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		}); err != nil {
			return keys, fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
