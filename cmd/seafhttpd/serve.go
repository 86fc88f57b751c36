package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/repofs/seafhttp/internal/backend"
	"github.com/repofs/seafhttp/internal/config"
	"github.com/repofs/seafhttp/internal/httpd"
	"github.com/repofs/seafhttp/internal/metrics"
	"github.com/repofs/seafhttp/internal/tracing"
)

func serveCmd() *cobra.Command {
	var (
		addr       string
		tempDir    string
		serviceURL string
		s3Bucket   string
		s3Region   string
		s3Endpoint string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload service",
		Long: `Run the streaming upload/update HTTP service.

By default, received files are ingested into a filesystem-backed
repository under --temp-dir's parent. Set --s3-bucket to ingest into an
S3-compatible object store instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, tempDir, serviceURL, s3Bucket, s3Region, s3Endpoint)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&tempDir, "temp-dir", "", "directory for in-flight upload staging")
	cmd.Flags().StringVar(&serviceURL, "service-url", "", "externally-visible base URL for redirects")
	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket to ingest completed uploads into")
	cmd.Flags().StringVar(&s3Region, "s3-region", "", "AWS region for --s3-bucket")
	cmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "custom S3-compatible endpoint URL")

	return cmd
}

func runServe(addr, tempDir, serviceURL, s3Bucket, s3Region, s3Endpoint string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if addr != "" {
		cfg.Address = addr
	}
	if tempDir != "" {
		cfg.TempDir = tempDir
	}
	if serviceURL != "" {
		cfg.ServiceURL = serviceURL
	}
	if s3Bucket != "" {
		cfg.S3.Bucket = s3Bucket
	}
	if s3Region != "" {
		cfg.S3.Region = s3Region
	}
	if s3Endpoint != "" {
		cfg.S3.Endpoint = s3Endpoint
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := os.MkdirAll(cfg.TempDir, 0o770); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}

	be, err := buildBackend(cfg, logger)
	if err != nil {
		return fmt.Errorf("build backend: %w", err)
	}

	m := metrics.New(metrics.WithNamespace(cfg.MetricsNamespace))
	t := tracing.New(tracing.WithTracerName(cfg.MetricsNamespace))

	srv := httpd.New(cfg, be, m, t, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	return srv.ListenAndServe(ctx)
}

func buildBackend(cfg *config.Config, logger *slog.Logger) (backend.Backend, error) {
	if !cfg.UsesS3() {
		root := cfg.TempDir + "-repo"
		logger.Info("using filesystem-backed repository", "root", root)
		return backend.NewMemBackend(root)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.S3.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = &cfg.S3.Endpoint
		}
	})

	logger.Info("using S3-backed repository", "bucket", cfg.S3.Bucket, "region", cfg.S3.Region)
	return backend.NewS3Backend(client, cfg.S3.Bucket, staticTokenStore{}, alwaysOKQuota{}), nil
}

// staticTokenStore and alwaysOKQuota are placeholder TokenStore/QuotaChecker
// implementations for the S3 path until a real auth/quota service is wired
// in; token issuance and quota accounting are treated as an external
// system's responsibility here.
type staticTokenStore struct{}

func (staticTokenStore) Resolve(ctx context.Context, token string) (backend.Token, error) {
	return backend.Token{}, fmt.Errorf("seafhttpd: no token resolution service configured")
}

type alwaysOKQuota struct{}

func (alwaysOKQuota) CheckQuota(ctx context.Context, repoID string) error { return nil }
