package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var outputFormats = []string{outputTable, outputJSON, outputYAML}

func isValidOutput(format string) bool {
	for _, f := range outputFormats {
		if f == format {
			return true
		}
	}

	return false
}

// render writes v in the selected structured format. It returns false for
// the table format, leaving the caller to print rows.
func render(w io.Writer, v any) (bool, error) {
	switch outputFormat {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return true, enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(v); err != nil {
			return true, err
		}

		return true, enc.Close()
	default:
		return false, nil
	}
}

// table prints tab-separated rows with aligned columns.
func table(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for i, col := range header {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}

		fmt.Fprint(tw, col)
	}

	fmt.Fprintln(tw)

	for _, row := range rows {
		for i, col := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}

			fmt.Fprint(tw, col)
		}

		fmt.Fprintln(tw)
	}

	return tw.Flush()
}

// wallTime formats a microsecond counter.
func wallTime(us int64) string {
	return (time.Duration(us) * time.Microsecond).String()
}

// memory formats a byte counter.
func memory(b int64) string {
	return units.BytesSize(float64(b))
}

func unixTime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
