package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/profiledb/pkg/runs"
)

var showOpts struct {
	runType int
	top     int
}

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run with its comparative statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().IntVar(&showOpts.runType, "type", 0, "run type")
	showCmd.Flags().IntVar(&showOpts.top, "top", 10, "number of call-graph edges to list by wall time")

	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	details, err := a.repo.GetRun(cmd.Context(), args[0], showOpts.runType)
	if err != nil {
		return err
	}

	if details == nil {
		return fmt.Errorf("run %s not found", args[0])
	}

	out := cmd.OutOrStdout()

	if ok, err := render(out, details); ok {
		return err
	}

	r := details.Run
	fmt.Fprintf(out, "%s\n", details.Description)
	fmt.Fprintf(out, "  id:         %s\n", r.ID)
	fmt.Fprintf(out, "  url:        %s\n", r.URL)
	fmt.Fprintf(out, "  canonical:  %s\n", r.CanonicalURL)
	fmt.Fprintf(out, "  time:       %s\n", unixTime(r.Timestamp))
	fmt.Fprintf(out, "  server:     %s (%s)\n", r.ServerName, r.ServerID)
	fmt.Fprintf(out, "  wall time:  %s\n", wallTime(r.WT))
	fmt.Fprintf(out, "  cpu time:   %s\n", wallTime(r.CPU))
	fmt.Fprintf(out, "  peak mem:   %s\n", memory(r.PMU))
	fmt.Fprintln(out)

	if details.Comparison != nil {
		if err := printComparison(out, details.Comparison); err != nil {
			return err
		}

		fmt.Fprintln(out)
	}

	return printTopEdges(out, details.Profile, showOpts.top)
}

func printComparison(out io.Writer, c *runs.Comparison) error {
	var rows [][]string

	for _, stats := range []*runs.ComparativeStats{c.URL, c.Canonical} {
		if stats == nil {
			continue
		}

		rows = append(rows,
			comparisonRow(stats, "wt", wallTime),
			comparisonRow(stats, "cpu", wallTime),
			comparisonRow(stats, "pmu", memory),
		)
	}

	return table(out, []string{"SCOPE", "RUNS", "METRIC", "AVG", "MIN", "MAX", "P95"}, rows)
}

func comparisonRow(s *runs.ComparativeStats, metric string, format func(int64) string) []string {
	m := s.Metric(metric)

	opt := func(v *int64) string {
		if v == nil {
			return "-"
		}

		return format(*v)
	}

	avg := "-"
	if m.Avg != nil {
		avg = format(int64(*m.Avg))
	}

	return []string{
		string(s.Scope), itoa(s.Count), metric, avg, opt(m.Min), opt(m.Max), opt(m.P95),
	}
}

func printTopEdges(out io.Writer, profile runs.Profile, top int) error {
	edges := make([]string, 0, len(profile))
	for edge := range profile {
		edges = append(edges, edge)
	}

	sort.Slice(edges, func(i, j int) bool {
		wi, wj := profile[edges[i]]["wt"], profile[edges[j]]["wt"]
		if wi != wj {
			return wi > wj
		}

		return edges[i] < edges[j]
	})

	if top > 0 && len(edges) > top {
		edges = edges[:top]
	}

	rows := make([][]string, 0, len(edges))
	for _, edge := range edges {
		m := profile[edge]
		rows = append(rows, []string{
			edge, itoa(m["ct"]), wallTime(m["wt"]), wallTime(m["cpu"]), memory(m["mu"]),
		})
	}

	fmt.Fprintf(out, "Top %d of %d edges by wall time\n", len(edges), len(profile))

	return table(out, []string{"EDGE", "CALLS", "WALL", "CPU", "MEM"}, rows)
}
