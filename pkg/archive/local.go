package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/profiledb/pkg/config"
)

// owner is a parsed "UID:GID" pair.
type owner struct {
	uid int
	gid int
}

// parseOwner parses "UID:GID". An empty string yields nil.
func parseOwner(s string) (*owner, error) {
	if s == "" {
		return nil, nil
	}

	uidStr, gidStr, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("invalid owner %q, expected UID:GID", s)
	}

	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UID %q: %w", uidStr, err)
	}

	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid GID %q: %w", gidStr, err)
	}

	return &owner{uid: uid, gid: gid}, nil
}

// chown is best effort.
func (o *owner) chown(path string) {
	if o == nil {
		return
	}

	_ = os.Chown(path, o.uid, o.gid)
}

// localUploader writes archive objects below a directory.
type localUploader struct {
	log   logrus.FieldLogger
	dir   string
	owner *owner
}

var _ Uploader = (*localUploader)(nil)

// NewLocalUploader creates an uploader writing to cfg.Dir/prefix.
func NewLocalUploader(
	log logrus.FieldLogger,
	cfg *config.LocalArchiveConfig,
	prefix string,
) (Uploader, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("local archive dir is required")
	}

	o, err := parseOwner(cfg.Owner)
	if err != nil {
		return nil, fmt.Errorf("parsing archive owner: %w", err)
	}

	return &localUploader{
		log:   log.WithField("component", "local-archive"),
		dir:   filepath.Join(cfg.Dir, filepath.FromSlash(strings.Trim(prefix, "/"))),
		owner: o,
	}, nil
}

// Preflight creates the target directory and checks it is writable.
func (u *localUploader) Preflight(_ context.Context) error {
	if err := u.mkdir(); err != nil {
		return err
	}

	f, err := os.CreateTemp(u.dir, ".profiledb-write-test-*")
	if err != nil {
		return fmt.Errorf("writing to %s: %w", u.dir, err)
	}

	name := f.Name()
	_ = f.Close()

	return os.Remove(name)
}

// Put writes data atomically through a temporary file.
func (u *localUploader) Put(_ context.Context, key string, data []byte) (string, error) {
	if err := u.mkdir(); err != nil {
		return "", err
	}

	path := filepath.Join(u.dir, filepath.FromSlash(key))

	tmp, err := os.CreateTemp(u.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("closing %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("renaming into %s: %w", path, err)
	}

	u.owner.chown(path)

	u.log.WithField("path", path).Debug("Wrote archive file")

	return path, nil
}

func (u *localUploader) mkdir() error {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", u.dir, err)
	}

	u.owner.chown(u.dir)

	return nil
}
