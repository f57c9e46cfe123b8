package internal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/crm"
	"go.uber.org/zap"
)

// PostgresURL renders cfg as a postgres:// connection string.
func PostgresURL(cfg crm.DatabaseConfig, password string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, password),
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// IAMTokenProvider returns a fresh database password.
type IAMTokenProvider func(ctx context.Context) (string, error)

// NewIAMTokenProvider generates DSQL connect tokens from the default AWS
// credential chain.
func NewIAMTokenProvider(ctx context.Context, cfg crm.DatabaseConfig) (IAMTokenProvider, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newIAMTokenProvider(cfg, awsCfg.Region, awsCfg.Credentials), nil
}

func newIAMTokenProvider(cfg crm.DatabaseConfig, region string, creds aws.CredentialsProvider) IAMTokenProvider {
	endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return func(ctx context.Context) (string, error) {
		token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, region, creds)
		if err != nil {
			return "", fmt.Errorf("generate iam auth token: %w", err)
		}
		return token, nil
	}
}

// NewPostgresPool creates a connection pool from cfg and pings it. With
// UseIAM each new connection authenticates with a fresh IAM token.
func NewPostgresPool(ctx context.Context, cfg crm.DatabaseConfig) (*pgxpool.Pool, error) {
	if err := ValidatePostgresConfig(cfg); err != nil {
		return nil, err
	}
	poolConfig, err := pgxpool.ParseConfig(PostgresURL(cfg, cfg.Password))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.Timeout

	if cfg.UseIAM {
		tokens, err := NewIAMTokenProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
		poolConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
			token, err := tokens(ctx)
			if err != nil {
				return err
			}
			cc.Password = token
			return nil
		}
		zap.S().Infow("postgres pool uses IAM authentication", "host", cfg.Host, "region", cfg.Region)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := PostgresHealthCheck(ctx, pool, cfg.Timeout); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
