package main

import (
	"github.com/spf13/cobra"

	"github.com/ethpandaops/profiledb/pkg/query"
)

var listOpts struct {
	url          string
	canonicalURL string
	serverID     string
	limit        int
	days         int
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs, newest first",
	RunE:  runList,
}

var hardHitCmd = &cobra.Command{
	Use:   "hardhit",
	Short: "Rank URLs by number of recent runs",
	RunE:  runHardHit,
}

var urlStatsCmd = &cobra.Command{
	Use:   "urlstats",
	Short: "Show the metric history of a URL or canonical URL",
	RunE:  runURLStats,
}

func init() {
	for _, cmd := range []*cobra.Command{runsCmd, hardHitCmd, urlStatsCmd} {
		cmd.Flags().IntVar(&listOpts.limit, "limit", 25, "maximum rows")
		cmd.Flags().StringVar(&listOpts.serverID, "server-id", "", "only runs written by this server id")
	}

	for _, cmd := range []*cobra.Command{runsCmd, urlStatsCmd} {
		cmd.Flags().StringVar(&listOpts.url, "url", "", "exact URL")
		cmd.Flags().StringVar(&listOpts.canonicalURL, "canonical-url", "", "canonical URL")
	}

	hardHitCmd.Flags().IntVar(&listOpts.days, "days", 5, "look-back window in days")

	rootCmd.AddCommand(runsCmd, hardHitCmd, urlStatsCmd)
}

func listCriteria() query.Criteria {
	c := query.Criteria{Limit: listOpts.limit}

	if listOpts.url != "" {
		c = c.Eq("url", listOpts.url)
	}

	if listOpts.canonicalURL != "" {
		c = c.Eq("canonical_url", listOpts.canonicalURL)
	}

	if listOpts.serverID != "" {
		c = c.Eq("server_id", listOpts.serverID)
	}

	return c
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	c := listCriteria()
	c.OrderBy = []string{"timestamp"}

	list, err := a.repo.GetRuns(cmd.Context(), c)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if ok, err := render(out, list); ok {
		return err
	}

	rows := make([][]string, 0, len(list))
	for _, r := range list {
		rows = append(rows, []string{
			r.ID, unixTime(r.Timestamp), r.URL, wallTime(r.WT), wallTime(r.CPU), memory(r.PMU),
		})
	}

	return table(out, []string{"ID", "TIME", "URL", "WALL", "CPU", "PEAK MEM"}, rows)
}

func runHardHit(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	hits, err := a.repo.GetHardHit(cmd.Context(), listOpts.days, listCriteria())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if ok, err := render(out, hits); ok {
		return err
	}

	rows := make([][]string, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, []string{
			h.URL, itoa(int64(h.Type)), itoa(h.Count), wallTime(h.TotalWall), wallTime(int64(h.AvgWall)),
		})
	}

	return table(out, []string{"URL", "TYPE", "RUNS", "TOTAL WALL", "AVG WALL"}, rows)
}

func runURLStats(cmd *cobra.Command, args []string) error {
	if listOpts.url == "" && listOpts.canonicalURL == "" {
		return errRequired("--url or --canonical-url")
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	c := listCriteria()
	c.OrderBy = []string{"timestamp"}

	stats, err := a.repo.GetURLStats(cmd.Context(), c)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if ok, err := render(out, stats); ok {
		return err
	}

	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.ID, unixTime(s.Timestamp), wallTime(s.WT), wallTime(s.CPU), memory(s.PMU),
		})
	}

	return table(out, []string{"ID", "TIME", "WALL", "CPU", "PEAK MEM"}, rows)
}
