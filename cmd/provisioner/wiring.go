package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/EternisAI/silo-provisioner/internal/api/http/handler"
	"github.com/EternisAI/silo-provisioner/internal/db"
	"github.com/EternisAI/silo-provisioner/internal/keymanager"
	"github.com/EternisAI/silo-provisioner/internal/provisioning"
	"github.com/EternisAI/silo-provisioner/internal/results"
	"github.com/EternisAI/silo-provisioner/internal/tokenvault"
	"github.com/EternisAI/silo-provisioner/internal/transport"
	"github.com/EternisAI/silo-provisioner/internal/workbook"
)

func newOrchestrator(cfg Config, sink provisioning.Sink) *provisioning.Orchestrator {
	km := keymanager.NewClient(transport.New(keymanager.ServiceName, transport.Config{
		BaseURL:   cfg.KeyManager.Host,
		VerifySSL: cfg.Transport.VerifySSL,
		Timeout:   cfg.Transport.Timeout(),
	}), cfg.KeyManager.Username, cfg.KeyManager.Password)

	tv := tokenvault.NewClient(transport.New(tokenvault.ServiceName, transport.Config{
		BaseURL:   cfg.TokenVault.Host,
		VerifySSL: cfg.Transport.VerifySSL,
		Timeout:   cfg.Transport.Timeout(),
	}), cfg.TokenVault.Username, cfg.TokenVault.Password)

	opts := []provisioning.Option{
		provisioning.WithWorkers(cfg.Provisioning.Workers),
		provisioning.WithRetry(cfg.Retry.Attempts, time.Duration(cfg.Retry.BackoffSeconds)*time.Second),
	}
	if sink != nil {
		opts = append(opts, provisioning.WithSink(sink))
	}
	return provisioning.New(km, tv, cfg.Provisioning, opts...)
}

// openStore returns the Postgres store when a database is configured, otherwise an
// in-process store. The returned func releases it.
func openStore(ctx context.Context, cfg db.Config) (results.Store, func(), error) {
	if !cfg.Enabled() {
		slog.Info("No database configured, keeping runs in memory")
		return results.NewMemoryStore(), func() {}, nil
	}

	if err := db.Migrate(ctx, cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	pool, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return results.NewPostgresStore(pool), pool.Close, nil
}

func openWorkbook(path string) (handler.InputSource, error) {
	wb, err := workbook.Open(path)
	if err != nil {
		return nil, err
	}
	return wb, nil
}
