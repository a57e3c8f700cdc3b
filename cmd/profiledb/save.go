package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/profiledb/pkg/runs"
)

var saveOpts struct {
	file       string
	id         string
	url        string
	serverName string
	runType    int
	timestamp  int64
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Store a profile read from a JSON file",
	Long: `Store a profile read from a JSON file (or stdin with --file -). The file
holds the call-graph map, e.g. {"main()": {"ct": 1, "wt": 1500, ...}, ...}.`,
	RunE: runSave,
}

func init() {
	f := saveCmd.Flags()
	f.StringVarP(&saveOpts.file, "file", "f", "-", "profile JSON file, - for stdin")
	f.StringVar(&saveOpts.id, "id", "", "run id (generated when empty)")
	f.StringVar(&saveOpts.url, "url", "", "request URL or command line")
	f.StringVar(&saveOpts.serverName, "server-name", "", "server host name")
	f.IntVar(&saveOpts.runType, "type", 0, "run type")
	f.Int64Var(&saveOpts.timestamp, "timestamp", 0, "unix timestamp (defaults to now)")

	rootCmd.AddCommand(saveCmd)
}

func runSave(cmd *cobra.Command, args []string) error {
	profile, err := readProfile(saveOpts.file, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	req := &runs.RequestDetails{
		URL:        saveOpts.url,
		ServerName: saveOpts.serverName,
	}

	if saveOpts.timestamp > 0 {
		req.Timestamp = time.Unix(saveOpts.timestamp, 0)
	}

	id, err := a.repo.SaveRun(cmd.Context(), profile, saveOpts.runType, saveOpts.id, req)
	if err != nil {
		return err
	}

	if ok, err := render(cmd.OutOrStdout(), map[string]string{"id": id}); ok {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)

	return nil
}

func readProfile(path string, stdin io.Reader) (runs.Profile, error) {
	var r io.Reader = stdin

	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening profile: %w", err)
		}
		defer func() { _ = f.Close() }()

		r = f
	}

	var profile runs.Profile
	if err := json.NewDecoder(r).Decode(&profile); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}

	if len(profile) == 0 {
		return nil, fmt.Errorf("profile is empty")
	}

	return profile, nil
}
