package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"flashbot/internal/config"
)

// NewBackend builds the backend the configuration asks for. The choice
// is resolved once per process start; the only later change is the
// in-process quota failover from S3 to Dropbox.
func NewBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	switch cfg.Storage.Provider {
	case "local":
		return NewLocalBackend(cfg.Storage.Local.BaseDir)
	case "s3":
		s3b, err := NewS3Backend(ctx, S3Config{
			Bucket:        cfg.Storage.S3.Bucket,
			Region:        cfg.Storage.S3.Region,
			LimitRequests: cfg.Storage.S3.LimitRequests,
			RequestBudget: cfg.Storage.S3.RequestBudget,
		}, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Storage.S3.FailoverToDbx != nil && !*cfg.Storage.S3.FailoverToDbx {
			return s3b, nil
		}
		if cfg.Secrets.DropboxRefreshToken == "" {
			logger.Warn("dropbox failover is on but no dropbox credentials are set, running s3 without a standby")
			return s3b, nil
		}
		dbx, err := NewDropboxBackend(ctx, DropboxConfig{
			RefreshToken: cfg.Secrets.DropboxRefreshToken,
			AppKey:       cfg.Secrets.DropboxAppKey,
			AppSecret:    cfg.Secrets.DropboxAppSecret,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failover standby unavailable: %w", err)
		}
		return NewFailoverBackend(s3b, dbx, logger), nil
	case "dropbox":
		return NewDropboxBackend(ctx, DropboxConfig{
			RefreshToken: cfg.Secrets.DropboxRefreshToken,
			AppKey:       cfg.Secrets.DropboxAppKey,
			AppSecret:    cfg.Secrets.DropboxAppSecret,
		}, logger)
	case "postgres":
		return NewPostgresBackend(ctx, cfg.Secrets.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider: %q", cfg.Storage.Provider)
	}
}
