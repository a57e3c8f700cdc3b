package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/profiledb/pkg/codec"
	"github.com/ethpandaops/profiledb/pkg/config"
	"github.com/ethpandaops/profiledb/pkg/runs"
	"github.com/ethpandaops/profiledb/pkg/storage"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func setupRepository(t *testing.T) runs.Repository {
	t.Helper()

	db := storage.NewDB(testLogger(), &config.DatabaseConfig{
		Driver:       storage.DriverSQLite,
		QueryTimeout: 5 * time.Second,
		SQLite: config.SQLiteDatabaseConfig{
			Path: filepath.Join(t.TempDir(), "runs.db"),
		},
	})
	require.NoError(t, db.Start(context.Background()))

	t.Cleanup(func() { _ = db.Stop() })

	return runs.NewRepository(testLogger(), db, runs.Options{})
}

// memUploader records objects in memory.
type memUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    map[string]error
}

func newMemUploader() *memUploader {
	return &memUploader{
		objects: make(map[string][]byte),
		fail:    make(map[string]error),
	}
}

func (m *memUploader) Preflight(context.Context) error { return nil }

func (m *memUploader) Put(_ context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.fail[key]; ok {
		return "", err
	}

	m.objects[key] = data

	return "mem://" + key, nil
}

func TestJoinKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "a.json.z", want: "a.json.z"},
		{name: "prefix", prefix: "runs", key: "a.json.z", want: "runs/a.json.z"},
		{name: "slashes trimmed", prefix: "/archive/runs/", key: "a.json.z", want: "archive/runs/a.json.z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, joinKey(tt.prefix, tt.key))
		})
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "abc.json.z", objectKey("abc"))
	assert.Equal(t, "__etc_passwd.json.z", objectKey("../etc/passwd"))
}

func TestParseOwner(t *testing.T) {
	o, err := parseOwner("")
	require.NoError(t, err)
	assert.Nil(t, o)

	o, err = parseOwner("1000:100")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, 1000, o.uid)
	assert.Equal(t, 100, o.gid)

	for _, bad := range []string{"1000", "x:1", "1:y"} {
		_, err := parseOwner(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewUploader(t *testing.T) {
	_, err := NewUploader(testLogger(), &config.ArchiveConfig{})
	require.Error(t, err)

	up, err := NewUploader(testLogger(), &config.ArchiveConfig{
		Local: config.LocalArchiveConfig{Enabled: true, Dir: t.TempDir()},
	})
	require.NoError(t, err)
	assert.IsType(t, &localUploader{}, up)

	up, err = NewUploader(testLogger(), &config.ArchiveConfig{
		S3: config.S3ArchiveConfig{Enabled: true, Bucket: "runs"},
	})
	require.NoError(t, err)
	assert.IsType(t, &s3Uploader{}, up)

	_, err = NewS3Uploader(testLogger(), &config.S3ArchiveConfig{Enabled: true}, "")
	require.Error(t, err)
}

func TestLocalUploader_Put(t *testing.T) {
	dir := t.TempDir()

	up, err := NewLocalUploader(testLogger(), &config.LocalArchiveConfig{
		Enabled: true,
		Dir:     dir,
	}, "exports/")
	require.NoError(t, err)

	require.NoError(t, up.Preflight(context.Background()))

	location, err := up.Put(context.Background(), "run-1.json.z", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "exports", "run-1.json.z"), location)

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	entries, err := os.ReadDir(filepath.Join(dir, "exports"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestExporter_Export(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	profile := runs.Profile{runs.MainFrame: {"wt": 250, "cpu": 200, "pmu": 1024}}

	_, err := repo.SaveRun(ctx, profile, 1, "run-1", &runs.RequestDetails{URL: "/export"})
	require.NoError(t, err)

	up := newMemUploader()
	exp := NewExporter(testLogger(), repo, up, 2)
	exp.now = func() time.Time { return time.Unix(1700000000, 0) }

	location, err := exp.Export(ctx, "run-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "mem://run-1.json.z", location)

	doc, err := DecodeDocument(up.objects["run-1.json.z"])
	require.NoError(t, err)

	assert.Equal(t, "run-1", doc.Run.ID)
	assert.Equal(t, int64(250), doc.Run.WT)
	assert.Equal(t, profile, doc.Profile)
	assert.Equal(t, "Profiler run (type=1)", doc.Description)
	assert.Equal(t, int64(1700000000), doc.ExportedAt)
	require.NotNil(t, doc.Comparison)
	require.NotNil(t, doc.Comparison.URL)
	assert.Equal(t, int64(1), doc.Comparison.URL.Count)

	_, err = exp.Export(ctx, "missing", 0)
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestExporter_ExportAll(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		_, err := repo.SaveRun(ctx, runs.Profile{
			runs.MainFrame: {"wt": 1},
		}, 0, id, &runs.RequestDetails{URL: "/all"})
		require.NoError(t, err)
	}

	up := newMemUploader()
	boom := errors.New("bucket unavailable")
	up.fail["c.json.z"] = boom

	exp := NewExporter(testLogger(), repo, up, 0)

	err := exp.ExportAll(ctx, append(ids, "missing"), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.Len(t, up.objects, 4)
	assert.NotContains(t, up.objects, "c.json.z")
}

func TestDecodeDocument_Corrupt(t *testing.T) {
	_, err := DecodeDocument([]byte("garbage"))
	require.ErrorIs(t, err, codec.ErrDecode)

	compressed, err := codec.Compress([]byte("{not json"))
	require.NoError(t, err)

	_, err = DecodeDocument(compressed)
	require.ErrorIs(t, err, codec.ErrDecode)
}
