// Package storage persists batch artifacts (audit logs). Files always land
// on local disk; with storage type "aws" every write is mirrored to S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ignite/textdispatch/internal/config"
	"github.com/ignite/textdispatch/internal/pkg/logger"
)

var (
	// ErrNotFound is returned when an artifact does not exist.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidName is returned for names that would escape the store.
	ErrInvalidName = errors.New("invalid artifact name")
)

// ArtifactStore writes and reads named artifacts. Put replaces the whole
// artifact atomically; readers never see a partial file.
type ArtifactStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context) ([]string, error)
}

// New builds the store described by cfg.
func New(ctx context.Context, cfg config.StorageConfig) (ArtifactStore, error) {
	local, err := NewLocalStore(cfg.LocalPath)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "", "local":
		return local, nil
	case "aws":
		remote, err := NewS3Store(ctx, S3Options{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.AWSRegion,
			Profile:   cfg.GetAWSProfile(),
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing AWS storage: %w", err)
		}
		return &MirroredStore{Local: local, Remote: remote}, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// ValidateName rejects names containing path separators or dot segments.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// LocalStore keeps artifacts as files in one directory.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *LocalStore) Dir() string { return s.dir }

// Path returns the file path for an artifact name.
func (s *LocalStore) Path(name string) string { return filepath.Join(s.dir, name) }

// Put writes data to a temp file and renames it into place.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		return fmt.Errorf("renaming %s: %w", name, err)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	return f, nil
}

// List returns artifact names, newest name first.
func (s *LocalStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// MirroredStore writes locally first, then copies to a remote store. Reads
// prefer the local copy and fall back to the remote one.
type MirroredStore struct {
	Local  ArtifactStore
	Remote ArtifactStore
}

func (m *MirroredStore) Put(ctx context.Context, name string, data []byte) error {
	if err := m.Local.Put(ctx, name, data); err != nil {
		return err
	}
	if err := m.Remote.Put(ctx, name, data); err != nil {
		logger.Warn("remote mirror failed", "name", name, "error", err)
		return fmt.Errorf("mirroring %s: %w", name, err)
	}
	return nil
}

func (m *MirroredStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, err := m.Local.Open(ctx, name)
	if err == nil {
		return rc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return m.Remote.Open(ctx, name)
}

func (m *MirroredStore) List(ctx context.Context) ([]string, error) {
	return m.Local.List(ctx)
}
