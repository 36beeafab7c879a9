package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
)

// ErrProfileVersion reports a profile written by an incompatible build.
var ErrProfileVersion = errors.New("unsupported profile version")

// ProfileStore persists finished profiles.
type ProfileStore interface {
	SaveProfile(ctx context.Context, path m.Path, profile *m.Profile) error
	LoadProfile(ctx context.Context, path m.Path) (*m.Profile, error)
}

// MsgpackProfileStore stores profiles as msgpack files.
type MsgpackProfileStore struct {
	mu sync.RWMutex
}

// NewProfileStore returns a msgpack backed ProfileStore.
func NewProfileStore() *MsgpackProfileStore {
	return &MsgpackProfileStore{}
}

// SaveProfile writes profile to path atomically: it is encoded into a
// temporary file next to path and renamed into place.
func (s *MsgpackProfileStore) SaveProfile(ctx context.Context, path m.Path, profile *m.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(string(path))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".zeitdieb-*")
	if err != nil {
		return err
	}

	defer func() {
		_ = os.Remove(f.Name())
	}()

	if profile.Version == 0 {
		profile.Version = m.ProfileVersion
	}

	if err := msgpack.NewEncoder(f).Encode(profile); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode profile: %w", err)
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), string(path))
}

// LoadProfile reads a profile written by SaveProfile.
func (s *MsgpackProfileStore) LoadProfile(ctx context.Context, path m.Path) (*m.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// #nosec G304 - the profile path is chosen by the CLI user
	f, err := os.Open(string(path))
	if err != nil {
		return nil, err
	}

	defer func() { _ = f.Close() }()

	var profile m.Profile
	if err := msgpack.NewDecoder(f).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", path, err)
	}

	if profile.Version != m.ProfileVersion {
		return nil, fmt.Errorf("%s: %w %d", path, ErrProfileVersion, profile.Version)
	}

	return &profile, nil
}
