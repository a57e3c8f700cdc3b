// Package runs stores profiling runs and computes comparative statistics
// across the runs recorded for the same URL.
package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/profiledb/pkg/codec"
	"github.com/ethpandaops/profiledb/pkg/query"
	"github.com/ethpandaops/profiledb/pkg/storage"
	"github.com/ethpandaops/profiledb/pkg/urlnorm"
)

// Repository persists and retrieves profiling runs.
type Repository interface {
	// SaveRun stores a profile and returns the run id. A new id is
	// generated when runID is empty.
	SaveRun(
		ctx context.Context, profile Profile, runType int, runID string,
		req *RequestDetails,
	) (string, error)
	// GetRun loads a run with its comparative statistics. It returns
	// (nil, nil) when no run has the given id.
	GetRun(ctx context.Context, runID string, runType int) (*RunDetails, error)
	// GetRuns lists runs matching c, without payloads.
	GetRuns(ctx context.Context, c query.Criteria) ([]Run, error)
	// GetHardHit ranks URLs by the number of runs recorded in the last
	// days days.
	GetHardHit(ctx context.Context, days int, c query.Criteria) ([]HardHit, error)
	// GetURLStats returns per-run metrics for the runs matching c.
	GetURLStats(ctx context.Context, c query.Criteria) ([]URLStat, error)
	// CompareRun computes comparative statistics for a URL and its
	// canonical form.
	CompareRun(ctx context.Context, url, canonicalURL string) (*Comparison, error)
}

// Options configure a Repository.
type Options struct {
	// Codec serializes profiles and snapshots. Defaults to JSON.
	Codec codec.Codec
	// SavePost stores POST snapshots verbatim instead of PostSkipped.
	SavePost bool
	// ServerID is written to every saved run.
	ServerID string
	// ExtraTagEnv names the environment variable read into extra_tag.
	ExtraTagEnv string
	// Normalize derives canonical URLs. Defaults to urlnorm.Canonical.
	Normalize urlnorm.Normalizer
	// Now defaults to time.Now.
	Now func() time.Time
	// NewID defaults to UUIDv7 generation.
	NewID func() (string, error)
}

// Compile-time interface check.
var _ Repository = (*repository)(nil)

type repository struct {
	log  logrus.FieldLogger
	db   storage.Adapter
	opts Options
}

// NewRepository creates a Repository on top of db.
func NewRepository(
	log logrus.FieldLogger,
	db storage.Adapter,
	opts Options,
) Repository {
	if opts.Codec == nil {
		opts.Codec, _ = codec.New(codec.FormatJSON)
	}

	if opts.Normalize == nil {
		opts.Normalize = urlnorm.Canonical
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.NewID == nil {
		opts.NewID = newRunID
	}

	return &repository{
		log:  log.WithField("component", "runs"),
		db:   db,
		opts: opts,
	}
}

func newRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating run id: %w", err)
	}

	return id.String(), nil
}

const insertRunSQL = `INSERT INTO details
	(id, url, canonical_url, timestamp, server_name, perfdata, type,
	 cookie, post, get, pmu, wt, cpu, server_id, extra_tag)
VALUES
	(:id, :url, :canonical_url, :timestamp, :server_name, :perfdata, :type,
	 :cookie, :post, :get, :pmu, :wt, :cpu, :server_id, :extra_tag)`

// SaveRun serializes and stores a single run.
func (r *repository) SaveRun(
	ctx context.Context,
	profile Profile,
	runType int,
	runID string,
	req *RequestDetails,
) (string, error) {
	if req == nil {
		req = &RequestDetails{}
	}

	if runID == "" {
		id, err := r.opts.NewID()
		if err != nil {
			return "", err
		}

		runID = id
	}

	perfdata, err := codec.Pack(r.opts.Codec, profile)
	if err != nil {
		return "", fmt.Errorf("encoding profile: %w", err)
	}

	post := req.Post
	if !r.opts.SavePost {
		post = PostSkipped
	}

	snapshots := make(map[string][]byte, 3)

	for name, snap := range map[string]Snapshot{
		"get":    req.Get,
		"cookie": req.Cookie,
		"post":   post,
	} {
		data, err := r.opts.Codec.Marshal(snap)
		if err != nil {
			return "", fmt.Errorf("encoding %s snapshot: %w", name, err)
		}

		snapshots[name] = data
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = r.opts.Now()
	}

	var extraTag string
	if r.opts.ExtraTagEnv != "" {
		extraTag = os.Getenv(r.opts.ExtraTagEnv)
	}

	totals := profile[MainFrame]

	dialect, err := r.dialect()
	if err != nil {
		return "", fmt.Errorf("saving run %s: %w", runID, err)
	}

	affected, err := r.db.Exec(ctx, insertRunSQL, map[string]any{
		"id":            runID,
		"url":           req.URL,
		"canonical_url": r.opts.Normalize(req.URL),
		"timestamp":     ts.Unix(),
		"server_name":   req.ServerName,
		"perfdata":      dialect.BindBinary(perfdata),
		"type":          runType,
		"cookie":        dialect.BindBinary(snapshots["cookie"]),
		"post":          dialect.BindBinary(snapshots["post"]),
		"get":           dialect.BindBinary(snapshots["get"]),
		"pmu":           nonNegative(totals["pmu"]),
		"wt":            nonNegative(totals["wt"]),
		"cpu":           nonNegative(totals["cpu"]),
		"server_id":     r.opts.ServerID,
		"extra_tag":     extraTag,
	})
	if err != nil {
		return "", fmt.Errorf("saving run %s: %w", runID, err)
	}

	if affected != 1 {
		return "", fmt.Errorf(
			"%w: saving run %s affected %d rows",
			storage.ErrIntegrityViolation, runID, affected,
		)
	}

	r.log.WithFields(logrus.Fields{
		"run_id": runID,
		"url":    req.URL,
		"type":   runType,
	}).Debug("Saved run")

	return runID, nil
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}

	return v
}

// GetRun loads, decodes and compares a single run.
func (r *repository) GetRun(
	ctx context.Context,
	runID string,
	runType int,
) (*RunDetails, error) {
	if runID == "" {
		return nil, nil
	}

	stmt, err := query.Build(storage.TableDetails, query.Criteria{
		Limit: 1,
	}.Eq("id", runID))
	if err != nil {
		return nil, err
	}

	var row storedRun
	if err := r.db.Get(ctx, &row, stmt.SQL, stmt.Params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}

	details := &RunDetails{
		Run:         row.Run,
		Description: fmt.Sprintf("Profiler run (type=%d)", runType),
	}

	if err := codec.Unpack(r.opts.Codec, row.Perfdata, &details.Profile); err != nil {
		return nil, fmt.Errorf("decoding run %s profile: %w", runID, err)
	}

	for _, s := range []struct {
		name string
		data []byte
		dest *Snapshot
	}{
		{name: "get", data: row.Get, dest: &details.Get},
		{name: "cookie", data: row.Cookie, dest: &details.Cookie},
		{name: "post", data: row.Post, dest: &details.Post},
	} {
		if len(s.data) == 0 {
			continue
		}

		if err := r.opts.Codec.Unmarshal(s.data, s.dest); err != nil {
			return nil, fmt.Errorf("decoding run %s %s snapshot: %w", runID, s.name, err)
		}
	}

	comparison, err := r.CompareRun(ctx, row.URL, row.CanonicalURL)
	if err != nil {
		return nil, fmt.Errorf("comparing run %s: %w", runID, err)
	}

	details.Comparison = comparison

	return details, nil
}

// GetRuns lists runs matching c.
func (r *repository) GetRuns(
	ctx context.Context,
	c query.Criteria,
) ([]Run, error) {
	if c.Select == "" {
		c.Select = runColumns
	}

	stmt, err := query.Build(storage.TableDetails, c)
	if err != nil {
		return nil, err
	}

	var out []Run
	if err := r.db.Select(ctx, &out, stmt.SQL, stmt.Params); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return out, nil
}

const hardHitColumns = "url, type, COUNT(id) AS count, " +
	"CAST(SUM(wt) AS BIGINT) AS total_wall, " +
	"CAST(AVG(wt) AS DOUBLE PRECISION) AS avg_wall"

// GetHardHit groups recent runs by URL and type, most frequent first.
func (r *repository) GetHardHit(
	ctx context.Context,
	days int,
	c query.Criteria,
) ([]HardHit, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: negative days %d", query.ErrInvalidCriteria, days)
	}

	dialect, err := r.dialect()
	if err != nil {
		return nil, fmt.Errorf("loading hard hits: %w", err)
	}

	since := "timestamp >= " + dialect.DateSub(days)
	if c.Where != "" {
		since += " AND (" + c.Where + ")"
	}

	c.Select = hardHitColumns
	c.Where = since
	c.GroupBy = "url, type"
	c.OrderBy = append([]string{"count"}, c.OrderBy...)

	stmt, err := query.Build(storage.TableDetails, c)
	if err != nil {
		return nil, err
	}

	var out []HardHit
	if err := r.db.Select(ctx, &out, stmt.SQL, stmt.Params); err != nil {
		return nil, fmt.Errorf("loading hard hits: %w", err)
	}

	return out, nil
}

// GetURLStats returns the metric history of the runs matching c.
func (r *repository) GetURLStats(
	ctx context.Context,
	c query.Criteria,
) ([]URLStat, error) {
	dialect, err := r.dialect()
	if err != nil {
		return nil, fmt.Errorf("loading url stats: %w", err)
	}

	c.Select = "id, " + dialect.UnixTimestamp("timestamp") +
		" AS timestamp, pmu, wt, cpu"

	stmt, err := query.Build(storage.TableDetails, c)
	if err != nil {
		return nil, err
	}

	var out []URLStat
	if err := r.db.Select(ctx, &out, stmt.SQL, stmt.Params); err != nil {
		return nil, fmt.Errorf("loading url stats: %w", err)
	}

	return out, nil
}

func (r *repository) dialect() (storage.Dialect, error) {
	d := r.db.Dialect()
	if d == nil {
		return nil, fmt.Errorf("%w: no database dialect", storage.ErrConnection)
	}

	return d, nil
}
