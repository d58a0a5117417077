package operators

import (
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

// spillStore is a disposable on-disk key set backing oversized dedup state.
// One store maps to one temporary pebble database, removed on Close.
type spillStore struct {
	db  *pebble.DB
	dir string
}

func newSpillStore(baseDir string) (*spillStore, error) {
	dir, err := os.MkdirTemp(baseDir, "sqlbridge-spill-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spill directory: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: true,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to open spill store: %w", err)
	}
	return &spillStore{db: db, dir: dir}, nil
}

func (s *spillStore) Has(key string) (bool, error) {
	_, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("spill store read failed: %w", err)
	}
	closer.Close()
	return true, nil
}

func (s *spillStore) Add(key string) error {
	if err := s.db.Set([]byte(key), []byte{}, pebble.NoSync); err != nil {
		return fmt.Errorf("spill store write failed: %w", err)
	}
	return nil
}

func (s *spillStore) Close() {
	if s.db != nil {
		s.db.Close()
	}
	os.RemoveAll(s.dir)
}
