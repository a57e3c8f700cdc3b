package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/profiledb/pkg/query"
)

var exportOpts struct {
	runType int
	all     bool
	limit   int
}

var exportCmd = &cobra.Command{
	Use:   "export [run-id...]",
	Short: "Export runs to the configured archive",
	Long: `Export runs as compressed JSON documents to the configured archive
backend (S3 or a local directory). With --all, the most recent runs up to
--limit are exported.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().IntVar(&exportOpts.runType, "type", 0, "run type")
	exportCmd.Flags().BoolVar(&exportOpts.all, "all", false, "export the most recent runs")
	exportCmd.Flags().IntVar(&exportOpts.limit, "limit", 1000, "maximum runs exported with --all")

	rootCmd.AddCommand(exportCmd)
}

func errRequired(what string) error {
	return fmt.Errorf("%s is required", what)
}

func runExport(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !exportOpts.all {
		return errRequired("a run id or --all")
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if !a.cfg.Archive.Enabled() {
		return errors.New("no archive backend enabled in config")
	}

	exporter, err := newExporter(cmd.Context(), a)
	if err != nil {
		return err
	}

	ids := args

	if exportOpts.all {
		list, err := a.repo.GetRuns(cmd.Context(), query.Criteria{
			Select:  "id",
			OrderBy: []string{"timestamp"},
			Limit:   exportOpts.limit,
		})
		if err != nil {
			return err
		}

		for _, r := range list {
			ids = append(ids, r.ID)
		}
	}

	return exporter.ExportAll(cmd.Context(), ids, exportOpts.runType)
}
