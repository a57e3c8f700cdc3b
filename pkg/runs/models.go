package runs

import (
	"time"

	"github.com/ethpandaops/profiledb/pkg/storage"
)

// MainFrame is the profile entry that carries whole-request totals.
const MainFrame = "main()"

// PostSkipped is the snapshot stored in place of POST data when saving POST
// bodies is disabled.
var PostSkipped = Snapshot{"Skipped": "Post data omitted by rule"}

// Metrics are the counters recorded for one call-graph edge, keyed by
// short names such as "ct", "wt", "cpu", "mu" and "pmu".
type Metrics map[string]int64

// Profile is a call-graph profile keyed by "parent==>child" edge (or
// MainFrame for the root).
type Profile map[string]Metrics

// Snapshot is a captured request superglobal (GET, COOKIE or POST). Loaded
// snapshots hold numbers as float64 and nested objects as map[string]any
// regardless of codec.
type Snapshot map[string]any

// RequestDetails describes the request a profile was captured for.
type RequestDetails struct {
	URL        string
	ServerName string
	Get        Snapshot
	Cookie     Snapshot
	Post       Snapshot
	// Timestamp defaults to the time of saving when zero.
	Timestamp time.Time
}

// Run is the scalar part of a stored profiling run.
type Run struct {
	ID           string `db:"id" json:"id" yaml:"id"`
	URL          string `db:"url" json:"url" yaml:"url"`
	CanonicalURL string `db:"canonical_url" json:"canonical_url" yaml:"canonical_url"`
	Timestamp    int64  `db:"timestamp" json:"timestamp" yaml:"timestamp"`
	ServerName   string `db:"server_name" json:"server_name" yaml:"server_name"`
	Type         int    `db:"type" json:"type" yaml:"type"`
	PMU          int64  `db:"pmu" json:"pmu" yaml:"pmu"`
	WT           int64  `db:"wt" json:"wt" yaml:"wt"`
	CPU          int64  `db:"cpu" json:"cpu" yaml:"cpu"`
	ServerID     string `db:"server_id" json:"server_id" yaml:"server_id"`
	ExtraTag     string `db:"extra_tag" json:"extra_tag" yaml:"extra_tag"`
}

// Time returns the run timestamp as a time.Time.
func (r *Run) Time() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// runColumns is the projection used when listing runs without payloads.
const runColumns = "id, url, canonical_url, timestamp, server_name, type, " +
	"pmu, wt, cpu, server_id, extra_tag"

// storedRun is a full details row including the binary columns.
type storedRun struct {
	Run

	Perfdata storage.Blob `db:"perfdata"`
	Get      storage.Blob `db:"get"`
	Cookie   storage.Blob `db:"cookie"`
	Post     storage.Blob `db:"post"`
}

// RunDetails is a fully decoded run.
type RunDetails struct {
	Run         Run         `json:"run" yaml:"run"`
	Profile     Profile     `json:"profile" yaml:"profile"`
	Get         Snapshot    `json:"get" yaml:"get"`
	Cookie      Snapshot    `json:"cookie" yaml:"cookie"`
	Post        Snapshot    `json:"post" yaml:"post"`
	Description string      `json:"description" yaml:"description"`
	Comparison  *Comparison `json:"comparison,omitempty" yaml:"comparison,omitempty"`
}

// HardHit aggregates the runs recorded for one URL and run type.
type HardHit struct {
	URL       string  `db:"url" json:"url" yaml:"url"`
	Type      int     `db:"type" json:"type" yaml:"type"`
	Count     int64   `db:"count" json:"count" yaml:"count"`
	TotalWall int64   `db:"total_wall" json:"total_wall" yaml:"total_wall"`
	AvgWall   float64 `db:"avg_wall" json:"avg_wall" yaml:"avg_wall"`
}

// URLStat is one data point of a URL's performance history.
type URLStat struct {
	ID        string `db:"id" json:"id" yaml:"id"`
	Timestamp int64  `db:"timestamp" json:"timestamp" yaml:"timestamp"`
	PMU       int64  `db:"pmu" json:"pmu" yaml:"pmu"`
	WT        int64  `db:"wt" json:"wt" yaml:"wt"`
	CPU       int64  `db:"cpu" json:"cpu" yaml:"cpu"`
}
