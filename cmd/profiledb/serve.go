package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/profiledb/pkg/api"
	"github.com/ethpandaops/profiledb/pkg/archive"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var exporter *archive.Exporter

	if a.cfg.Archive.Enabled() {
		exporter, err = newExporter(ctx, a)
		if err != nil {
			return err
		}
	}

	srv := api.NewServer(log, &a.cfg.API, a.repo, a.db, exporter)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	<-ctx.Done()
	log.Info("Shutting down API server")

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping api server: %w", err)
	}

	return nil
}

// newExporter builds the archive exporter and checks the destination.
func newExporter(ctx context.Context, a *app) (*archive.Exporter, error) {
	uploader, err := archive.NewUploader(log, &a.cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("creating archive uploader: %w", err)
	}

	if err := uploader.Preflight(ctx); err != nil {
		return nil, fmt.Errorf("archive preflight: %w", err)
	}

	return archive.NewExporter(log, a.repo, uploader, a.cfg.Archive.Concurrency), nil
}
