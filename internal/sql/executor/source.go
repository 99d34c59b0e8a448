package executor

import (
	"fmt"

	"github.com/calyxdb/calyx/internal/sql/types"
)

// BlockSource abstracts a relation as a scannable sequence of rows. It is
// the contract the engine consumes from the storage layer; operators never
// see the on-disk format.
type BlockSource interface {
	Schema() *Schema
	// Scan returns a fresh iterator over the relation. Unlike operators, a
	// source may be scanned any number of times.
	Scan() RowIterator
}

// SortedBlockSource is a BlockSource that can serve rows ordered by a
// supporting index.
type SortedBlockSource interface {
	BlockSource
	// ScanSorted returns an iterator ordered by the given key columns, or
	// ok=false if no supporting order exists.
	ScanSorted(keys []int) (RowIterator, bool)
}

// IndexBlockSource is a BlockSource with index-assisted point lookup.
type IndexBlockSource interface {
	BlockSource
	// IndexLookup returns the rows whose indexed column equals key, or
	// ok=false if the column has no index.
	IndexLookup(column int, key types.Value) (RowIterator, bool)
}

// MemorySource is an in-memory BlockSource, used for embedding small
// relations and throughout the tests.
type MemorySource struct {
	schema   *Schema
	rows     []*Row
	sortedBy []int
	indexes  map[int]map[string][]*Row
}

// NewMemorySource creates a memory source over the given rows.
func NewMemorySource(schema *Schema, rows []*Row) *MemorySource {
	return &MemorySource{schema: schema, rows: rows}
}

// WithSortOrder declares that the rows are already ordered by the given key
// columns; sort-merge join will then skip its sort phase for this source.
func (s *MemorySource) WithSortOrder(keys ...int) *MemorySource {
	s.sortedBy = keys
	return s
}

// WithIndex builds a point-lookup index over the given column.
func (s *MemorySource) WithIndex(column int) *MemorySource {
	if s.indexes == nil {
		s.indexes = make(map[int]map[string][]*Row)
	}
	idx := make(map[string][]*Row)
	for _, row := range s.rows {
		v := row.Values[column]
		if v.IsNull() {
			continue
		}
		key := string(types.EncodeKey(v))
		idx[key] = append(idx[key], row)
	}
	s.indexes[column] = idx
	return s
}

func (s *MemorySource) Schema() *Schema {
	return s.schema
}

func (s *MemorySource) Scan() RowIterator {
	return NewMemoryIterator(s.rows)
}

func (s *MemorySource) ScanSorted(keys []int) (RowIterator, bool) {
	if !keysMatch(s.sortedBy, keys) {
		return nil, false
	}
	return NewMemoryIterator(s.rows), true
}

func (s *MemorySource) IndexLookup(column int, key types.Value) (RowIterator, bool) {
	idx, ok := s.indexes[column]
	if !ok {
		return nil, false
	}
	if key.IsNull() {
		return NewMemoryIterator(nil), true
	}
	return NewMemoryIterator(idx[string(types.EncodeKey(key))]), true
}

func keysMatch(have, want []int) bool {
	if len(have) < len(want) {
		return false
	}
	for i, k := range want {
		if have[i] != k {
			return false
		}
	}
	return true
}

// ScanOperator streams a BlockSource. Unlike most operators it can be
// re-opened, since the underlying source is rescannable.
type ScanOperator struct {
	baseOperator
	source BlockSource
	iter   RowIterator
}

// NewScanOperator creates a scan over the given source.
func NewScanOperator(source BlockSource) *ScanOperator {
	return &ScanOperator{
		baseOperator: baseOperator{schema: source.Schema()},
		source:       source,
	}
}

// SortKeys reports the order the scan delivers rows in, if any.
func (s *ScanOperator) SortKeys() []int {
	if src, ok := s.source.(*MemorySource); ok {
		return src.sortedBy
	}
	return nil
}

func (s *ScanOperator) Open(ctx *ExecContext) error {
	s.ctx = ctx
	s.iter = s.source.Scan()
	return nil
}

func (s *ScanOperator) Next() (*Row, error) {
	if s.iter == nil {
		return nil, fmt.Errorf("scan not opened")
	}
	row, err := s.iter.Next()
	if err != nil {
		return nil, err
	}
	if row != nil && s.ctx != nil && s.ctx.Stats != nil {
		s.ctx.Stats.RowsRead++
	}
	return row, nil
}

func (s *ScanOperator) Close() error {
	if s.iter != nil {
		err := s.iter.Close()
		s.iter = nil
		return err
	}
	return nil
}
