package spill

import (
	"bufio"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"

	"github.com/calyxdb/calyx/internal/errors"
	"github.com/calyxdb/calyx/internal/sql/types"
)

// Partition is a named scratch file holding an ordered sequence of rows.
// Rows are appended, the partition is sealed, and only then read; the store
// never overlaps a write pass with a read pass on the same partition.
type Partition struct {
	store *Store
	name  string
	path  string

	file *os.File
	buf  *bufio.Writer
	lzw  *lz4.Writer
	out  io.Writer // codec target: lzw when compressing, buf otherwise

	rows    int64
	sealed  bool
	deleted bool
}

func newPartition(s *Store, name, path string, f *os.File) *Partition {
	p := &Partition{
		store: s,
		name:  name,
		path:  path,
		file:  f,
		buf:   bufio.NewWriter(f),
	}
	if s.compress {
		p.lzw = lz4.NewWriter(p.buf)
		p.out = p.lzw
	} else {
		p.out = p.buf
	}
	return p
}

// Name returns the partition's file name within the store.
func (p *Partition) Name() string {
	return p.name
}

// Rows returns the number of rows appended so far.
func (p *Partition) Rows() int64 {
	return p.rows
}

// Append writes one row to the partition.
func (p *Partition) Append(values []types.Value) error {
	if p.deleted {
		return errors.ResourceErrorf(nil, "partition %s already deleted", p.name)
	}
	if p.sealed {
		return errors.ResourceErrorf(nil, "partition %s is sealed", p.name)
	}
	if err := writeRow(p.out, values); err != nil {
		return errors.ResourceErrorf(err, "failed to append to partition %s", p.name)
	}
	p.rows++
	return nil
}

// Flush pushes buffered rows to the file without sealing the partition.
func (p *Partition) Flush() error {
	if p.deleted || p.sealed {
		return nil
	}
	if p.lzw != nil {
		if err := p.lzw.Flush(); err != nil {
			return errors.ResourceErrorf(err, "failed to flush partition %s", p.name)
		}
	}
	if err := p.buf.Flush(); err != nil {
		return errors.ResourceErrorf(err, "failed to flush partition %s", p.name)
	}
	return nil
}

// Seal completes the write pass. After sealing, Append fails and readers may
// be opened. Idempotent.
func (p *Partition) Seal() error {
	if p.sealed || p.deleted {
		return nil
	}
	p.sealed = true
	if p.lzw != nil {
		if err := p.lzw.Close(); err != nil {
			return errors.ResourceErrorf(err, "failed to seal partition %s", p.name)
		}
		p.lzw = nil
	}
	if err := p.buf.Flush(); err != nil {
		return errors.ResourceErrorf(err, "failed to seal partition %s", p.name)
	}
	if err := p.file.Close(); err != nil {
		return errors.ResourceErrorf(err, "failed to seal partition %s", p.name)
	}
	p.file = nil
	return nil
}

// Delete reclaims the partition through its store.
func (p *Partition) Delete() error {
	return p.store.Remove(p)
}

// closeHandles releases open file handles without touching the file itself.
func (p *Partition) closeHandles() error {
	p.sealed = true
	p.lzw = nil
	if p.file != nil {
		err := p.file.Close()
		p.file = nil
		if err != nil {
			return errors.ResourceErrorf(err, "failed to close partition %s", p.name)
		}
	}
	return nil
}

// OpenReader seals the partition if needed and returns a sequential reader
// over its rows.
func (p *Partition) OpenReader() (*Reader, error) {
	if p.deleted {
		return nil, errors.ResourceErrorf(nil, "partition %s already deleted", p.name)
	}
	if err := p.Seal(); err != nil {
		return nil, err
	}
	f, err := os.Open(p.path)
	if err != nil {
		return nil, errors.ResourceErrorf(err, "failed to open partition %s", p.name)
	}
	var r io.Reader = bufio.NewReader(f)
	if p.store.compress {
		r = lz4.NewReader(r)
	}
	return &Reader{name: p.name, file: f, r: r}, nil
}

// Reader streams rows from a sealed partition.
type Reader struct {
	name string
	file *os.File
	r    io.Reader
}

// Next returns the next row, or (nil, nil) at end of partition.
func (r *Reader) Next() ([]types.Value, error) {
	values, err := readRow(r.r)
	if err != nil {
		return nil, errors.ResourceErrorf(err, "failed to read partition %s", r.name)
	}
	return values, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return errors.ResourceErrorf(err, "failed to close reader for %s", r.name)
	}
	return nil
}
