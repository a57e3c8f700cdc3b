// Package archive exports stored runs as self-contained, compressed JSON
// documents to S3-compatible storage or a local directory.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/profiledb/pkg/codec"
	"github.com/ethpandaops/profiledb/pkg/config"
	"github.com/ethpandaops/profiledb/pkg/runs"
)

// ErrRunNotFound is returned when exporting a run id that is not stored.
var ErrRunNotFound = errors.New("run not found")

const (
	// DocumentExt is appended to the run id to form the object name.
	DocumentExt = ".json.z"

	contentType = "application/zlib"

	defaultConcurrency = 4
)

// Uploader writes archive objects.
type Uploader interface {
	// Preflight verifies that the destination is reachable and writable.
	Preflight(ctx context.Context) error
	// Put stores data under key, relative to the configured prefix, and
	// returns the full location written.
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// NewUploader returns the uploader for the enabled archive backend.
func NewUploader(log logrus.FieldLogger, cfg *config.ArchiveConfig) (Uploader, error) {
	switch {
	case cfg.S3.Enabled:
		return NewS3Uploader(log, &cfg.S3, cfg.Prefix)
	case cfg.Local.Enabled:
		return NewLocalUploader(log, &cfg.Local, cfg.Prefix)
	default:
		return nil, fmt.Errorf("no archive backend enabled")
	}
}

// Document is the exported form of a run.
type Document struct {
	Run         runs.Run         `json:"run"`
	Description string           `json:"description"`
	Profile     runs.Profile     `json:"profile"`
	Comparison  *runs.Comparison `json:"comparison,omitempty"`
	ExportedAt  int64            `json:"exported_at"`
}

// Encode renders d as zlib-compressed JSON.
func (d *Document) Encode() ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshalling document: %w", err)
	}

	return codec.Compress(raw)
}

// DecodeDocument is the inverse of Document.Encode.
func DecodeDocument(data []byte) (*Document, error) {
	raw, err := codec.Decompress(data)
	if err != nil {
		return nil, err
	}

	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: document: %w", codec.ErrDecode, err)
	}

	return &d, nil
}

// Exporter loads runs from a repository and writes them to an Uploader.
type Exporter struct {
	log         logrus.FieldLogger
	repo        runs.Repository
	uploader    Uploader
	concurrency int
	now         func() time.Time
}

// NewExporter creates an Exporter. A concurrency below one uses the
// default.
func NewExporter(
	log logrus.FieldLogger,
	repo runs.Repository,
	uploader Uploader,
	concurrency int,
) *Exporter {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	return &Exporter{
		log:         log.WithField("component", "archive"),
		repo:        repo,
		uploader:    uploader,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Export writes a single run and returns the location written.
func (e *Exporter) Export(ctx context.Context, runID string, runType int) (string, error) {
	details, err := e.repo.GetRun(ctx, runID, runType)
	if err != nil {
		return "", fmt.Errorf("loading run %s: %w", runID, err)
	}

	if details == nil {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	doc := &Document{
		Run:         details.Run,
		Description: details.Description,
		Profile:     details.Profile,
		Comparison:  details.Comparison,
		ExportedAt:  e.now().Unix(),
	}

	data, err := doc.Encode()
	if err != nil {
		return "", fmt.Errorf("encoding run %s: %w", runID, err)
	}

	location, err := e.uploader.Put(ctx, objectKey(runID), data)
	if err != nil {
		return "", fmt.Errorf("uploading run %s: %w", runID, err)
	}

	e.log.WithFields(logrus.Fields{
		"run_id":   runID,
		"location": location,
		"bytes":    len(data),
	}).Debug("Exported run")

	return location, nil
}

// ExportAll exports runIDs with bounded parallelism. Every run is
// attempted; the failures are joined into the returned error.
func (e *Exporter) ExportAll(ctx context.Context, runIDs []string, runType int) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	var (
		exported atomic.Int64
		errs     = make([]error, len(runIDs))
	)

	for i, runID := range runIDs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			if _, err := e.Export(gCtx, runID, runType); err != nil {
				e.log.WithError(err).
					WithField("run_id", runID).
					Warn("Failed to export run")

				errs[i] = err

				return nil
			}

			exported.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("exporting runs: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"exported": exported.Load(),
		"total":    len(runIDs),
	}).Info("Export completed")

	return errors.Join(errs...)
}

// objectKey makes a run id safe to use as a file or object name.
func objectKey(runID string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(runID) + DocumentExt
}

// joinKey joins a prefix and key with a single slash.
func joinKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}

	return prefix + "/" + key
}
