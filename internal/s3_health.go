package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lychee-technology/crm"
	"go.uber.org/zap"
)

// ValidateFixtureConfig performs basic sanity checks on S3 fixture settings.
func ValidateFixtureConfig(cfg crm.FixtureConfig) error {
	if !strings.HasPrefix(strings.TrimSpace(cfg.Source), "s3://") {
		if cfg.S3Endpoint != "" {
			return fmt.Errorf("fixtures.s3Endpoint is set but fixtures.source is not an s3:// URL")
		}
		return nil
	}
	if _, _, err := ParseS3URL(strings.TrimSpace(cfg.Source)); err != nil {
		return err
	}
	if cfg.S3Endpoint != "" {
		u, err := url.Parse(cfg.S3Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("fixtures.s3Endpoint must be an http(s) URL, got %q", cfg.S3Endpoint)
		}
	}
	return nil
}

// S3HealthCheck attempts a best-effort HTTP ping against a custom S3 endpoint.
// The request is anonymous, so 401/403 still count as reachable.
func S3HealthCheck(ctx context.Context, endpoint string, timeout time.Duration) error {
	if endpoint == "" {
		return fmt.Errorf("s3 endpoint not configured")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{
		Timeout: timeout,
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, endpoint, nil)
	if err != nil {
		return fmt.Errorf("s3 health request build failed: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("s3 health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		zap.S().Debugw("s3 endpoint rejected anonymous probe", "endpoint", endpoint, "status", resp.StatusCode)
		return nil
	}
	return fmt.Errorf("s3 endpoint returned unexpected status: %d", resp.StatusCode)
}
