// Package spill implements the temporary partition store used by the
// execution operators to hold intermediate rows that exceed the memory
// budget: hash join buckets, sort runs, and per-group aggregation buffers.
//
// A Store is scoped to a single statement. Partitions are written fully
// before they are read, are owned by exactly one operator instance, and are
// reclaimed no later than Store.Close, whether the statement completes or
// fails.
package spill

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/calyxdb/calyx/internal/errors"
	"github.com/calyxdb/calyx/internal/log"
)

// Options configures a Store.
type Options struct {
	// Compression enables lz4 framing of partition files.
	Compression bool
	// Logger receives debug records for partition lifecycle events.
	Logger log.Logger
}

// Store allocates and reclaims scratch partitions under a statement-scoped
// directory.
type Store struct {
	dir        string
	compress   bool
	logger     log.Logger
	partitions map[string]*Partition
	seq        int
	closed     bool
}

// NewStore creates a scratch directory under dir (the OS temp dir if empty)
// and returns a store rooted there.
func NewStore(dir string, opts Options) (*Store, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	root := filepath.Join(dir, "calyx-spill-"+uuid.NewString())
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, errors.ResourceErrorf(err, "failed to create spill directory %s", root)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Store{
		dir:        root,
		compress:   opts.Compression,
		logger:     logger,
		partitions: make(map[string]*Partition),
	}, nil
}

// Dir returns the scratch directory backing this store.
func (s *Store) Dir() string {
	return s.dir
}

// Create allocates a new empty partition. The name is a hint used in the
// file name; uniqueness is guaranteed by a store-wide sequence number.
func (s *Store) Create(name string) (*Partition, error) {
	if s.closed {
		return nil, errors.ResourceErrorf(nil, "spill store is closed")
	}
	s.seq++
	fileName := fmt.Sprintf("%06d-%s.run", s.seq, name)
	path := filepath.Join(s.dir, fileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, errors.ResourceErrorf(err, "failed to create partition %s", fileName)
	}

	p := newPartition(s, fileName, path, f)
	s.partitions[fileName] = p
	s.logger.Debug("spill partition created", "partition", fileName)
	return p, nil
}

// Remove reclaims a single partition. Safe to call more than once.
func (s *Store) Remove(p *Partition) error {
	if p == nil || p.deleted {
		return nil
	}
	p.deleted = true
	delete(s.partitions, p.name)
	closeErr := p.closeHandles()
	rmErr := os.Remove(p.path)
	s.logger.Debug("spill partition removed", "partition", p.name, "rows", p.rows)
	if closeErr != nil {
		return closeErr
	}
	if rmErr != nil {
		return errors.ResourceErrorf(rmErr, "failed to remove partition %s", p.name)
	}
	return nil
}

// Live returns the number of partitions not yet reclaimed.
func (s *Store) Live() int {
	return len(s.partitions)
}

// Close reclaims every remaining partition and removes the scratch
// directory. It is idempotent and safe after partial failure.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for _, p := range s.partitions {
		p.deleted = true
		_ = p.closeHandles()
	}
	s.partitions = nil
	if err := os.RemoveAll(s.dir); err != nil {
		return errors.ResourceErrorf(err, "failed to remove spill directory %s", s.dir)
	}
	return nil
}
