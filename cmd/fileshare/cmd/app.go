package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/zots0127/fileshare/internal/infrastructure/objectstore"
	infra "github.com/zots0127/fileshare/internal/infrastructure/repository"
	"github.com/zots0127/fileshare/pkg/config"
	"github.com/zots0127/fileshare/pkg/logging"
)

var defaultConfigFiles = []string{
	"fileshare.yaml",
	"fileshare.yml",
	"config.yaml",
	"/etc/fileshare/fileshare.yaml",
}

// app holds the components shared by every subcommand
type app struct {
	configs *config.ConfigManager
	config  *config.Config
	logger  *logging.Logger
	catalog *infra.SQLCatalog
	journal *infra.BadgerIntentJournal
	store   *objectstore.Gateway
}

// newApp loads configuration and opens the catalog, the journal and the
// object store. Close releases them in reverse order.
func newApp(ctx context.Context, configPath string) (*app, error) {
	a := &app{configs: config.NewConfigManager()}
	opened := false
	defer func() {
		if !opened {
			a.Close()
		}
	}()

	var err error
	a.config, err = a.configs.Load(resolveConfigPath(configPath))
	if err != nil {
		return nil, err
	}
	cfg := a.config

	a.logger, err = logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if path := a.configs.ConfigPath(); path != "" {
		a.logger.Info("configuration loaded", zap.String("path", path))
	} else {
		a.logger.Info("no configuration file found, using defaults and environment")
	}
	cfg.LogSummary(a.logger.Logger)

	a.catalog, err = infra.NewSQLCatalog(ctx, infra.CatalogConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	a.journal, err = infra.NewBadgerIntentJournal(infra.JournalConfig{
		Path:     cfg.Journal.Path,
		InMemory: cfg.Journal.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open intent journal: %w", err)
	}

	a.store, err = newObjectStore(ctx, cfg.Storage, a.logger.Logger)
	if err != nil {
		return nil, err
	}
	opened = true
	return a, nil
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*objectstore.Gateway, error) {
	transport, err := objectstore.NewTransport(objectstore.Config{
		Type:             cfg.Type,
		OperationTimeout: cfg.OperationTimeout,
		Local:            objectstore.LocalConfig{Root: cfg.Local.Root},
		S3: objectstore.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKey,
			SecretAccessKey: cfg.S3.SecretKey,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			DisableSSL:      !cfg.S3.UseSSL,
		},
		FTP: objectstore.FTPConfig{
			Address:     cfg.FTP.Address,
			Username:    cfg.FTP.Username,
			Password:    cfg.FTP.Password,
			Root:        cfg.FTP.Root,
			ExplicitTLS: cfg.FTP.ExplicitTLS,
			DialTimeout: cfg.FTP.DialTimeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	if s3, ok := transport.(*objectstore.S3Transport); ok && cfg.S3.CreateIfMissing {
		ctx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
		defer cancel()
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket %s: %w", cfg.S3.Bucket, err)
		}
	}

	return objectstore.NewGateway(transport, cfg.OperationTimeout, logger), nil
}

// Close releases everything newApp opened
func (a *app) Close() error {
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.catalog != nil {
		errs = append(errs, a.catalog.Close())
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// resolveConfigPath returns the explicit path, or the first default file that exists
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	for _, candidate := range defaultConfigFiles {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
