package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/factory"
	"github.com/lychee-technology/crm/internal"
)

type exportOptions struct {
	configPath string
	backend    string
	target     string
	region     string
	endpoint   string
}

func runExport(args []string) error {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: crm-tools export -target s3://bucket/prefix [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := exportOptions{}
	flags.StringVar(&opts.configPath, "config", getenvDefault("CONFIG_FILE", ""), "YAML config file (optional)")
	flags.StringVar(&opts.backend, "backend", getenvDefault("STORE_BACKEND", ""), "store backend to read from (memory, sqlite, postgres, remote)")
	flags.StringVar(&opts.target, "target", "", "destination s3://bucket/prefix")
	flags.StringVar(&opts.region, "s3-region", getenvDefault("AWS_REGION", ""), "AWS region of the bucket")
	flags.StringVar(&opts.endpoint, "s3-endpoint", getenvDefault("S3_ENDPOINT", ""), "custom S3 endpoint, e.g. a local MinIO")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.target == "" {
		flags.Usage()
		return fmt.Errorf("-target is required")
	}

	cfg, err := crm.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.backend != "" {
		cfg.Store.Backend = crm.StoreBackend(opts.backend)
	}
	cfg.Store.MockLatency.Enabled = false
	return exportFixtures(context.Background(), cfg, opts)
}

func exportFixtures(ctx context.Context, cfg *crm.Config, opts exportOptions) error {
	bucket, prefix, err := internal.ParseS3URL(opts.target)
	if err != nil {
		return err
	}

	services, err := factory.NewServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Shutdown()

	fixtures, err := snapshotFixtures(ctx, services)
	if err != nil {
		return err
	}

	if opts.endpoint != "" {
		if err := internal.S3HealthCheck(ctx, opts.endpoint, 0); err != nil {
			return err
		}
	}
	client, err := internal.NewS3Client(ctx, opts.region, opts.endpoint)
	if err != nil {
		return err
	}
	keys, err := internal.UploadFixtures(ctx, manager.NewUploader(client), bucket, prefix, fixtures)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Printf("Uploaded s3://%s/%s\n", bucket, key)
	}
	return nil
}

// snapshotFixtures reads every collection of services into a fixture set.
func snapshotFixtures(ctx context.Context, services *crm.Services) (*internal.Fixtures, error) {
	cols, err := internal.LoadCollections(ctx, services, internal.LoadAllSet)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return &internal.Fixtures{
		Contacts:   cols.Contacts,
		Deals:      cols.Deals,
		Activities: cols.Activities,
		Tasks:      cols.Tasks,
	}, nil
}
