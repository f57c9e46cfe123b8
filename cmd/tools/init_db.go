package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/lychee-technology/crm"
	"github.com/lychee-technology/crm/internal"
)

type initDBOptions struct {
	configPath string
	host       string
	port       int
	database   string
	user       string
	password   string
	sslMode    string
	useIAM     bool
	region     string
	seed       bool
	fixtures   string
}

func runInitDB(args []string) error {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: crm-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := initDBOptions{}
	flags.StringVar(&opts.configPath, "config", getenvDefault("CONFIG_FILE", ""), "YAML config file (optional)")
	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", ""), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 0), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", ""), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", ""), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", ""), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", ""), "database sslmode")
	flags.BoolVar(&opts.useIAM, "iam", false, "authenticate with an IAM auth token instead of a password")
	flags.StringVar(&opts.region, "region", getenvDefault("AWS_REGION", ""), "AWS region for IAM auth")
	flags.BoolVar(&opts.seed, "seed", false, "insert fixture records after creating the tables")
	flags.StringVar(&opts.fixtures, "fixtures", getenvDefault("FIXTURES_SOURCE", ""), `fixture source: "embedded", a directory or s3://bucket/prefix`)

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := initDBConfig(opts)
	if err != nil {
		return err
	}
	return initDatabase(context.Background(), cfg, opts.seed)
}

// initDBConfig loads the config file and applies the flags that were set.
func initDBConfig(opts initDBOptions) (*crm.Config, error) {
	cfg, err := crm.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	db := &cfg.Database
	if opts.host != "" {
		db.Host = opts.host
	}
	if opts.port != 0 {
		db.Port = opts.port
	}
	if opts.database != "" {
		db.Database = opts.database
	}
	if opts.user != "" {
		db.Username = opts.user
	}
	if opts.password != "" {
		db.Password = opts.password
	}
	if opts.sslMode != "" {
		db.SSLMode = opts.sslMode
	}
	if opts.useIAM {
		db.UseIAM = true
	}
	if opts.region != "" {
		db.Region = opts.region
	}
	if opts.fixtures != "" {
		cfg.Fixtures.Source = opts.fixtures
	}
	if err := internal.ValidatePostgresConfig(*db); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initDatabase(ctx context.Context, cfg *crm.Config, seed bool) error {
	password := cfg.Database.Password
	if cfg.Database.UseIAM {
		provider, err := internal.NewIAMTokenProvider(ctx, cfg.Database)
		if err != nil {
			return err
		}
		if password, err = provider(ctx); err != nil {
			return err
		}
	}

	db, err := sql.Open("postgres", internal.PostgresURL(cfg.Database, password))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := withTx(ctx, db, func(tx *sql.Tx) error {
		return ensureTables(ctx, tx, cfg.Database.TableNames)
	}); err != nil {
		return err
	}

	if seed {
		src, err := internal.NewFixtureSource(ctx, cfg.Fixtures)
		if err != nil {
			return err
		}
		fixtures, err := internal.LoadFixtures(ctx, src)
		if err != nil {
			return err
		}
		if err := withTx(ctx, db, func(tx *sql.Tx) error {
			return seedTables(ctx, tx, cfg.Database.TableNames, fixtures, time.Now())
		}); err != nil {
			return err
		}
	}

	fmt.Println("Database initialized successfully.")
	return nil
}

func ensureTables(ctx context.Context, tx *sql.Tx, names crm.TableNames) error {
	for _, table := range []string{names.Contacts, names.Deals, names.Activities, names.Tasks} {
		if err := internal.CreatePostgresTable(ctx, tx, table); err != nil {
			return err
		}
		fmt.Printf("Created record table: %s\n", table)
	}
	return nil
}

func seedTables(ctx context.Context, tx *sql.Tx, names crm.TableNames, f *internal.Fixtures, now time.Time) error {
	report := func(table string, n int, err error) error {
		if err != nil {
			return err
		}
		fmt.Printf("Seeded %d records into %s\n", n, table)
		return nil
	}
	n, err := internal.SeedPostgresTable(ctx, tx, internal.ContactKind, names.Contacts, f.Contacts, now)
	if err := report(names.Contacts, n, err); err != nil {
		return err
	}
	n, err = internal.SeedPostgresTable(ctx, tx, internal.DealKind, names.Deals, f.Deals, now)
	if err := report(names.Deals, n, err); err != nil {
		return err
	}
	n, err = internal.SeedPostgresTable(ctx, tx, internal.ActivityKind, names.Activities, f.Activities, now)
	if err := report(names.Activities, n, err); err != nil {
		return err
	}
	n, err = internal.SeedPostgresTable(ctx, tx, internal.TaskKind, names.Tasks, f.Tasks, now)
	return report(names.Tasks, n, err)
}

func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
