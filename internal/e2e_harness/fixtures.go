package e2e_harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/internal"
)

// SeedPostgres creates the four record tables and inserts f with its ids.
func SeedPostgres(ctx context.Context, db *sql.DB, names crm.TableNames, f *internal.Fixtures) error {
	for _, table := range []string{names.Contacts, names.Deals, names.Activities, names.Tasks} {
		if err := internal.CreatePostgresTable(ctx, db, table); err != nil {
			return err
		}
	}
	now := time.Now()
	if _, err := internal.SeedPostgresTable(ctx, db, internal.ContactKind, names.Contacts, f.Contacts, now); err != nil {
		return err
	}
	if _, err := internal.SeedPostgresTable(ctx, db, internal.DealKind, names.Deals, f.Deals, now); err != nil {
		return err
	}
	if _, err := internal.SeedPostgresTable(ctx, db, internal.ActivityKind, names.Activities, f.Activities, now); err != nil {
		return err
	}
	if _, err := internal.SeedPostgresTable(ctx, db, internal.TaskKind, names.Tasks, f.Tasks, now); err != nil {
		return err
	}
	return nil
}

// EnsureBucket creates bucket unless it already exists.
func EnsureBucket(ctx context.Context, client *s3.Client, bucket string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			code := apiErr.ErrorCode()
			if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
				return nil
			}
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}
