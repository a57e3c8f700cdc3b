package runs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/profiledb/pkg/runs"
	"github.com/ethpandaops/profiledb/pkg/storage"
)

// fakeAdapter reports a fixed number of affected rows for every write.
type fakeAdapter struct {
	affected int64
	err      error
	params   map[string]any
}

var _ storage.Adapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) Exec(_ context.Context, _ string, params map[string]any) (int64, error) {
	f.params = params

	return f.affected, f.err
}

func (f *fakeAdapter) Select(context.Context, any, string, map[string]any) error {
	return f.err
}

func (f *fakeAdapter) Get(context.Context, any, string, map[string]any) error {
	return f.err
}

func (f *fakeAdapter) Escape(raw string) string { return raw }

func (f *fakeAdapter) Quote(raw string) string { return "'" + raw + "'" }

func (f *fakeAdapter) Dialect() storage.Dialect {
	d, _ := storage.DialectFor(storage.DriverSQLite)

	return d
}

func TestRepository_SaveRunAffectedRows(t *testing.T) {
	for _, affected := range []int64{0, 2} {
		db := &fakeAdapter{affected: affected}
		repo := runs.NewRepository(testLogger(), db, runs.Options{})

		_, err := repo.SaveRun(context.Background(), sampleProfile(), 0, "x", nil)
		require.ErrorIs(t, err, storage.ErrIntegrityViolation)
	}
}

func TestRepository_SaveRunPropagatesAdapterErrors(t *testing.T) {
	db := &fakeAdapter{err: storage.ErrTimeout}
	repo := runs.NewRepository(testLogger(), db, runs.Options{})

	_, err := repo.SaveRun(context.Background(), sampleProfile(), 0, "x", nil)
	require.ErrorIs(t, err, storage.ErrTimeout)

	_, err = repo.GetRun(context.Background(), "x", 0)
	require.ErrorIs(t, err, storage.ErrTimeout)
}

func TestRepository_SaveRunUsesInjectedCollaborators(t *testing.T) {
	db := &fakeAdapter{affected: 1}
	repo := runs.NewRepository(testLogger(), db, runs.Options{
		Normalize: func(string) string { return "canon" },
		NewID:     func() (string, error) { return "fixed-id", nil },
	})

	id, err := repo.SaveRun(context.Background(), sampleProfile(), 3, "", &runs.RequestDetails{URL: "/raw"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)
	assert.Equal(t, "canon", db.params["canonical_url"])
	assert.Equal(t, 3, db.params["type"])

	failing := runs.NewRepository(testLogger(), db, runs.Options{
		NewID: func() (string, error) { return "", errors.New("entropy exhausted") },
	})

	_, err = failing.SaveRun(context.Background(), sampleProfile(), 0, "", nil)
	require.Error(t, err)
}
