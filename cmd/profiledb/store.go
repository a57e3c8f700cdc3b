package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/profiledb/pkg/codec"
	"github.com/ethpandaops/profiledb/pkg/config"
	"github.com/ethpandaops/profiledb/pkg/runs"
	"github.com/ethpandaops/profiledb/pkg/storage"
)

// app bundles the components shared by the subcommands.
type app struct {
	cfg  *config.Config
	db   *storage.DB
	repo runs.Repository
}

// openApp loads the configuration and connects to the run store.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// The config file level applies unless --log-level was given.
	if !rootCmd.PersistentFlags().Changed("log-level") {
		level, err := logrus.ParseLevel(cfg.Global.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid global.log_level %q: %w", cfg.Global.LogLevel, err)
		}

		log.SetLevel(level)
	}

	c, err := codec.New(cfg.Capture.Serializer)
	if err != nil {
		return nil, err
	}

	db := storage.NewDB(log, &cfg.Database)
	if err := db.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting run store: %w", err)
	}

	repo := runs.NewRepository(log, db, runs.Options{
		Codec:       c,
		SavePost:    cfg.Capture.SavePost,
		ServerID:    cfg.Capture.ServerID,
		ExtraTagEnv: cfg.Capture.ExtraTagEnv,
	})

	return &app{cfg: cfg, db: db, repo: repo}, nil
}

func (a *app) close() {
	if err := a.db.Stop(); err != nil {
		log.WithError(err).Warn("Failed to close run store")
	}
}
