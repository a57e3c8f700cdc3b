package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethpandaops/profiledb/pkg/query"
	"github.com/ethpandaops/profiledb/pkg/storage"
)

// Scope names the column a comparison groups runs by.
type Scope string

const (
	// ScopeURL compares runs with the exact same URL.
	ScopeURL Scope = "url"
	// ScopeCanonical compares runs sharing a canonical URL.
	ScopeCanonical Scope = "canonical_url"
)

// percentileDivisor turns a row count into the descending offset of the
// 95th percentile: count/20 rows lie strictly above it.
const percentileDivisor = 20

// comparedMetrics are the run columns summarized by a comparison.
var comparedMetrics = []string{"wt", "cpu", "pmu"}

// MetricStats summarizes one metric across a set of runs. All fields are
// nil when the set is empty.
type MetricStats struct {
	Avg *float64 `json:"avg" yaml:"avg"`
	Min *int64   `json:"min" yaml:"min"`
	Max *int64   `json:"max" yaml:"max"`
	P95 *int64   `json:"p95" yaml:"p95"`
}

// ComparativeStats summarizes every run recorded under one scope value.
type ComparativeStats struct {
	Scope Scope       `json:"scope" yaml:"scope"`
	Value string      `json:"value" yaml:"value"`
	Count int64       `json:"count" yaml:"count"`
	WT    MetricStats `json:"wt" yaml:"wt"`
	CPU   MetricStats `json:"cpu" yaml:"cpu"`
	PMU   MetricStats `json:"pmu" yaml:"pmu"`
}

// Metric returns the summary of the named metric column.
func (s *ComparativeStats) Metric(name string) *MetricStats {
	switch name {
	case "wt":
		return &s.WT
	case "cpu":
		return &s.CPU
	case "pmu":
		return &s.PMU
	default:
		return nil
	}
}

// Comparison holds the statistics for a run's URL and canonical URL.
type Comparison struct {
	URL       *ComparativeStats `json:"url" yaml:"url"`
	Canonical *ComparativeStats `json:"canonical" yaml:"canonical"`
}

type aggregateRow struct {
	Count  int64           `db:"count"`
	AvgWT  sql.NullFloat64 `db:"avg_wt"`
	MinWT  sql.NullInt64   `db:"min_wt"`
	MaxWT  sql.NullInt64   `db:"max_wt"`
	AvgCPU sql.NullFloat64 `db:"avg_cpu"`
	MinCPU sql.NullInt64   `db:"min_cpu"`
	MaxCPU sql.NullInt64   `db:"max_cpu"`
	AvgPMU sql.NullFloat64 `db:"avg_pmu"`
	MinPMU sql.NullInt64   `db:"min_pmu"`
	MaxPMU sql.NullInt64   `db:"max_pmu"`
}

// Averages are cast so both backends return a float rather than NUMERIC.
const aggregateColumns = "COUNT(id) AS count, " +
	"CAST(AVG(wt) AS DOUBLE PRECISION) AS avg_wt, MIN(wt) AS min_wt, MAX(wt) AS max_wt, " +
	"CAST(AVG(cpu) AS DOUBLE PRECISION) AS avg_cpu, MIN(cpu) AS min_cpu, MAX(cpu) AS max_cpu, " +
	"CAST(AVG(pmu) AS DOUBLE PRECISION) AS avg_pmu, MIN(pmu) AS min_pmu, MAX(pmu) AS max_pmu"

// CompareRun computes the statistics for both scopes sequentially.
func (r *repository) CompareRun(
	ctx context.Context,
	url, canonicalURL string,
) (*Comparison, error) {
	byURL, err := r.compare(ctx, ScopeURL, url)
	if err != nil {
		return nil, err
	}

	byCanonical, err := r.compare(ctx, ScopeCanonical, canonicalURL)
	if err != nil {
		return nil, err
	}

	return &Comparison{URL: byURL, Canonical: byCanonical}, nil
}

func (r *repository) compare(
	ctx context.Context,
	scope Scope,
	value string,
) (*ComparativeStats, error) {
	stats := &ComparativeStats{Scope: scope, Value: value}

	scoped := query.Criteria{}.Eq(string(scope), value)
	if value == "" {
		scoped = query.Criteria{Where: string(scope) + " = ''"}
	}

	agg := scoped
	agg.Select = aggregateColumns

	stmt, err := query.Build(storage.TableDetails, agg)
	if err != nil {
		return nil, err
	}

	var row aggregateRow
	if err := r.db.Get(ctx, &row, stmt.SQL, stmt.Params); err != nil {
		return nil, fmt.Errorf("aggregating %s: %w", scope, err)
	}

	stats.Count = row.Count
	if row.Count == 0 {
		return stats, nil
	}

	stats.WT = metricStats(row.AvgWT, row.MinWT, row.MaxWT)
	stats.CPU = metricStats(row.AvgCPU, row.MinCPU, row.MaxCPU)
	stats.PMU = metricStats(row.AvgPMU, row.MinPMU, row.MaxPMU)

	offset := int(row.Count / percentileDivisor)

	for _, metric := range comparedMetrics {
		p95, err := r.percentile(ctx, scoped, metric, offset)
		if err != nil {
			return nil, fmt.Errorf("computing %s p95 for %s: %w", metric, scope, err)
		}

		stats.Metric(metric).P95 = p95
	}

	return stats, nil
}

// percentile returns the metric value at the given descending offset. Ties
// on the metric are broken by id, newest-id first.
func (r *repository) percentile(
	ctx context.Context,
	scoped query.Criteria,
	metric string,
	offset int,
) (*int64, error) {
	scoped.Select = metric
	scoped.OrderBy = []string{metric, "id"}
	scoped.Limit = 1
	scoped.Offset = offset

	stmt, err := query.Build(storage.TableDetails, scoped)
	if err != nil {
		return nil, err
	}

	var v int64
	if err := r.db.Get(ctx, &v, stmt.SQL, stmt.Params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &v, nil
}

func metricStats(avg sql.NullFloat64, lo, hi sql.NullInt64) MetricStats {
	var s MetricStats

	if avg.Valid {
		v := avg.Float64
		s.Avg = &v
	}

	if lo.Valid {
		v := lo.Int64
		s.Min = &v
	}

	if hi.Valid {
		v := hi.Int64
		s.Max = &v
	}

	return s
}
