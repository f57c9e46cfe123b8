package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/factory"
	"github.com/lychee-technology/crm/internal"
	"go.uber.org/zap"
)

func main() {
	csvFile := flag.String("csv", "", "Path to CSV file to import (required)")
	entity := flag.String("entity", "contact", "Target entity: contact, deal or task")
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config file (optional)")
	backend := flag.String("backend", os.Getenv("STORE_BACKEND"), "store backend override (memory, sqlite, postgres, remote)")
	batchSize := flag.Int("batch-size", 100, "Rows per import batch")
	concurrency := flag.Int("concurrency", 4, "Concurrent creates per batch")
	delimiter := flag.String("delimiter", ",", "CSV field delimiter")
	dryRun := flag.Bool("dry-run", false, "Parse and validate the CSV without storing records")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	if *verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Errorf("failed to build logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if *csvFile == "" {
		sugar.Error("Error: -csv flag is required")
		flag.Usage()
		os.Exit(1)
	}

	mapper, err := mapperFor(*entity)
	if err != nil {
		sugar.Fatalf("%v", err)
	}
	validator, err := internal.NewSchemaValidator()
	if err != nil {
		sugar.Fatalf("Failed to load record schemas: %v", err)
	}

	ctx := context.Background()

	var services *crm.Services
	if !*dryRun {
		crmCfg, err := crm.LoadConfig(*configPath)
		if err != nil {
			sugar.Fatalf("Failed to load config: %v", err)
		}
		if *backend != "" {
			crmCfg.Store.Backend = crm.StoreBackend(*backend)
		}
		crmCfg.Store.MockLatency.Enabled = false

		sugar.Infof("Opening %s store...", crmCfg.Store.Backend)
		services, err = factory.NewServices(ctx, crmCfg)
		if err != nil {
			sugar.Fatalf("Failed to open record services: %v", err)
		}
		defer services.Shutdown()
	} else {
		sugar.Infof("Dry run mode: validating CSV file %s", *csvFile)
	}

	sink, err := newSink(mapper.Entity(), services, validator)
	if err != nil {
		sugar.Fatalf("%v", err)
	}

	opts := DefaultImportOptions()
	if d := []rune(*delimiter); len(d) == 1 {
		opts.Delimiter = d[0]
	} else {
		sugar.Fatalf("Delimiter must be a single character, got %q", *delimiter)
	}

	importer := NewCSVImporter(sink, mapper, *batchSize, *concurrency)
	importer.SetLogger(sugar.Named("Import"))

	sugar.Infof("Starting import from: %s", *csvFile)
	sugar.Infof("Target entity: %s, Batch size: %d", mapper.Entity(), *batchSize)

	startTime := time.Now()
	result, err := importer.ImportFromFile(ctx, *csvFile, opts)
	if err != nil {
		sugar.Fatalf("Import failed: %v", err)
	}

	sugar.Infof("Import completed in %v", time.Since(startTime))
	printResult(result, sugar)

	if result.FailedCount > 0 {
		os.Exit(1)
	}
}

// newSink returns the record sink for entity. A nil services selects a dry
// run that only validates.
func newSink(entity crm.EntityKind, services *crm.Services, validator *internal.SchemaValidator) (RecordSink, error) {
	if services == nil {
		switch entity {
		case crm.EntityContact:
			return &dryRunSink[crm.Contact]{entity: entity, validator: validator}, nil
		case crm.EntityDeal:
			return &dryRunSink[crm.Deal]{entity: entity, validator: validator}, nil
		case crm.EntityTask:
			return &dryRunSink[crm.Task]{entity: entity, validator: validator}, nil
		}
		return nil, fmt.Errorf("no sink for entity %q", entity)
	}
	switch entity {
	case crm.EntityContact:
		return newServiceSink(internal.ContactKind, services.Contacts, validator), nil
	case crm.EntityDeal:
		return newServiceSink(internal.DealKind, services.Deals, validator), nil
	case crm.EntityTask:
		return newServiceSink(internal.TaskKind, services.Tasks, validator), nil
	}
	return nil, fmt.Errorf("no sink for entity %q", entity)
}

// printResult prints the import result summary.
func printResult(result *ImportResult, logger *zap.SugaredLogger) {
	rule := strings.Repeat("=", 52)
	logger.Info(rule)
	logger.Info("Import Summary")
	logger.Info(rule)
	logger.Infof("  Total rows:     %d", result.TotalRows)
	logger.Infof("  Successful:     %d", result.SuccessCount)
	logger.Infof("  Failed:         %d", result.FailedCount)
	logger.Infof("  Duration:       %v", result.Duration)
	if len(result.CreatedIDs) > 0 {
		logger.Debugf("  Created ids:    %v", result.CreatedIDs)
	}

	if result.FailedCount > 0 && result.TotalRows > 0 {
		successRate := float64(result.SuccessCount) / float64(result.TotalRows) * 100
		logger.Infof("  Success rate:   %.2f%%", successRate)
	}

	if len(result.Errors) > 0 {
		logger.Info("")
		logger.Infof("First %d errors:", min(10, len(result.Errors)))
		for i, err := range result.Errors {
			if i >= 10 {
				logger.Infof("  ... and %d more errors", len(result.Errors)-10)
				break
			}
			logger.Infof("  [%d] %s", i+1, err.Error())
		}
	}
}
