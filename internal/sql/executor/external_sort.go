package executor

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/google/btree"

	"github.com/calyxdb/calyx/internal/sql/types"
	"github.com/calyxdb/calyx/internal/storage/spill"
)

// compareFunc orders two rows, returning -1, 0, or 1. It may fail on
// incomparable values.
type compareFunc func(a, b *Row) (int, error)

// compareByColumns builds a comparator over the given columns, ascending,
// NULLs first.
func compareByColumns(cols []int) compareFunc {
	return func(a, b *Row) (int, error) {
		for _, c := range cols {
			cmp, err := types.Compare(a.Values[c], b.Values[c])
			if err != nil {
				return 0, err
			}
			if cmp != 0 {
				return cmp, nil
			}
		}
		return 0, nil
	}
}

// externalSorter implements external merge sort under a block budget:
// accumulate up to memoryBlocks blocks of rows, sort in memory, and spill as
// a level-0 sorted run; then repeatedly merge memoryBlocks-1 runs at a time
// (one block reserved for output) until the remaining runs can be merged in
// a single streaming pass. Input that fits in memory never touches disk.
//
// In dedup mode the in-memory buffer is an ordered set, so duplicate rows
// (comparator equality) are dropped as they arrive, and merges suppress
// adjacent equal rows across runs.
type externalSorter struct {
	ctx          *ExecContext
	cmp          compareFunc
	memoryBlocks int
	maxRows      int
	dedup        bool

	buffer []*Row             // plain mode
	tree   *btree.BTreeG[*Row] // dedup mode
	runs   []*spill.Partition
	cmpErr error
}

func newExternalSorter(ctx *ExecContext, cmp compareFunc, memoryBlocks int, dedup bool) (*externalSorter, error) {
	if err := checkBudget("external sort", memoryBlocks, minSortBlocks); err != nil {
		return nil, err
	}
	s := &externalSorter{
		ctx:          ctx,
		cmp:          cmp,
		memoryBlocks: memoryBlocks,
		maxRows:      memoryBlocks * ctx.blockCapacity(),
		dedup:        dedup,
	}
	if dedup {
		s.tree = btree.NewG[*Row](8, s.rowLess)
	}
	return s, nil
}

func (s *externalSorter) rowLess(a, b *Row) bool {
	cmp, err := s.cmp(a, b)
	if err != nil && s.cmpErr == nil {
		s.cmpErr = err
	}
	return cmp < 0
}

// Add buffers a row, spilling a sorted run when the budget fills up.
func (s *externalSorter) Add(row *Row) error {
	if s.dedup {
		s.tree.ReplaceOrInsert(row)
		if s.cmpErr != nil {
			return s.cmpErr
		}
		if s.tree.Len() >= s.maxRows {
			return s.flushRun()
		}
		return nil
	}

	s.buffer = append(s.buffer, row)
	if len(s.buffer) >= s.maxRows {
		return s.flushRun()
	}
	return nil
}

// sortedBuffer returns the in-memory rows in sorted order and resets the
// buffer.
func (s *externalSorter) sortedBuffer() ([]*Row, error) {
	if s.dedup {
		rows := make([]*Row, 0, s.tree.Len())
		s.tree.Ascend(func(row *Row) bool {
			rows = append(rows, row)
			return true
		})
		s.tree.Clear(false)
		return rows, s.cmpErr
	}

	var sortErr error
	sort.SliceStable(s.buffer, func(i, j int) bool {
		cmp, err := s.cmp(s.buffer[i], s.buffer[j])
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return cmp < 0
	})
	rows := s.buffer
	s.buffer = nil
	return rows, sortErr
}

func (s *externalSorter) flushRun() error {
	rows, err := s.sortedBuffer()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	part, err := s.ctx.Spill.Create(fmt.Sprintf("sort-run-0-%d", len(s.runs)))
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := part.Append(row.Values); err != nil {
			part.Delete()
			return err
		}
	}
	if err := part.Seal(); err != nil {
		part.Delete()
		return err
	}
	s.runs = append(s.runs, part)
	if s.ctx.Stats != nil {
		s.ctx.Stats.SpilledRows += part.Rows()
		s.ctx.Stats.SpillPartitions++
	}
	s.ctx.logger().Debug("sort run spilled", "run", len(s.runs)-1, "rows", part.Rows())
	return nil
}

// Finish completes the sort and returns an iterator over the rows in order.
// Closing the iterator reclaims every remaining run; after Finish the sorter
// must not be reused.
func (s *externalSorter) Finish() (RowIterator, error) {
	if s.cmpErr != nil {
		s.cleanup()
		return nil, s.cmpErr
	}

	// Fully in memory: no I/O at all.
	if len(s.runs) == 0 {
		rows, err := s.sortedBuffer()
		if err != nil {
			return nil, err
		}
		return NewMemoryIterator(rows), nil
	}

	if err := s.flushRun(); err != nil {
		s.cleanup()
		return nil, err
	}

	// Merge passes until the remaining runs fit a single streaming merge.
	fan := s.memoryBlocks - 1
	level := 1
	for len(s.runs) > fan {
		s.ctx.logger().Debug("sort merge pass", "level", level, "runs", len(s.runs))
		var next []*spill.Partition
		for i := 0; i < len(s.runs); i += fan {
			end := min(i+fan, len(s.runs))
			out, err := s.mergeRunsTo(s.runs[i:end], level, len(next))
			if err != nil {
				remaining := make([]*spill.Partition, 0, len(s.runs)-i+len(next))
				remaining = append(remaining, s.runs[i:]...)
				remaining = append(remaining, next...)
				s.runs = remaining
				s.cleanup()
				return nil, err
			}
			next = append(next, out)
		}
		s.runs = next
		level++
	}

	// Final pass streams directly to the consumer.
	iter, err := newMergeIterator(s.runs, s.cmp, s.dedup, true)
	if err != nil {
		s.cleanup()
		return nil, err
	}
	s.runs = nil
	return iter, nil
}

// mergeRunsTo merges a subset of runs into one new run, deleting the merged
// runs on success.
func (s *externalSorter) mergeRunsTo(runs []*spill.Partition, level, ordinal int) (*spill.Partition, error) {
	merge, err := newMergeIterator(runs, s.cmp, s.dedup, false)
	if err != nil {
		return nil, err
	}
	defer merge.Close()

	out, err := s.ctx.Spill.Create(fmt.Sprintf("sort-run-%d-%d", level, ordinal))
	if err != nil {
		return nil, err
	}
	for {
		row, err := merge.Next()
		if err != nil {
			out.Delete()
			return nil, err
		}
		if row == nil {
			break
		}
		if err := out.Append(row.Values); err != nil {
			out.Delete()
			return nil, err
		}
	}
	if err := out.Seal(); err != nil {
		out.Delete()
		return nil, err
	}
	for _, run := range runs {
		run.Delete()
	}
	if s.ctx.Stats != nil {
		s.ctx.Stats.SpillPartitions++
	}
	return out, nil
}

// cleanup reclaims any runs still owned by the sorter.
func (s *externalSorter) cleanup() {
	for _, run := range s.runs {
		run.Delete()
	}
	s.runs = nil
	s.buffer = nil
	s.tree = nil
}

// mergeIterator performs a k-way merge of sorted runs, one open reader per
// run. With dedup it suppresses rows equal to the previously emitted one.
type mergeIterator struct {
	streams     []RowIterator
	parts       []*spill.Partition
	cmp         compareFunc
	dedup       bool
	deleteParts bool
	h           *mergeHeap
	last        *Row
	closed      bool
}

func newMergeIterator(parts []*spill.Partition, cmp compareFunc, dedup, deleteParts bool) (*mergeIterator, error) {
	m := &mergeIterator{
		parts:       parts,
		cmp:         cmp,
		dedup:       dedup,
		deleteParts: deleteParts,
	}
	for _, part := range parts {
		iter, err := newPartitionIterator(part)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.streams = append(m.streams, iter)
	}
	return m, nil
}

func (m *mergeIterator) init() error {
	m.h = &mergeHeap{cmp: m.cmp}
	for i, stream := range m.streams {
		row, err := stream.Next()
		if err != nil {
			return err
		}
		if row != nil {
			m.h.items = append(m.h.items, &mergeItem{row: row, streamIdx: i})
		}
	}
	heap.Init(m.h)
	return m.h.err
}

func (m *mergeIterator) Next() (*Row, error) {
	if m.h == nil {
		if err := m.init(); err != nil {
			return nil, err
		}
	}
	for m.h.Len() > 0 {
		item := heap.Pop(m.h).(*mergeItem)
		if m.h.err != nil {
			return nil, m.h.err
		}

		next, err := m.streams[item.streamIdx].Next()
		if err != nil {
			return nil, err
		}
		if next != nil {
			heap.Push(m.h, &mergeItem{row: next, streamIdx: item.streamIdx})
			if m.h.err != nil {
				return nil, m.h.err
			}
		}

		if m.dedup && m.last != nil {
			cmp, err := m.cmp(m.last, item.row)
			if err != nil {
				return nil, err
			}
			if cmp == 0 {
				continue
			}
		}
		m.last = item.row
		return item.row, nil
	}
	return nil, nil
}

func (m *mergeIterator) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var firstErr error
	for _, stream := range m.streams {
		if err := stream.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.deleteParts {
		for _, part := range m.parts {
			if err := part.Delete(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// mergeItem represents one run's current row in the merge heap.
type mergeItem struct {
	row       *Row
	streamIdx int
}

// mergeHeap implements heap.Interface for the k-way merge. Ties are broken
// by run ordinal to keep the merge stable.
type mergeHeap struct {
	items []*mergeItem
	cmp   compareFunc
	err   error
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Less(i, j int) bool {
	cmp, err := h.cmp(h.items[i].row, h.items[j].row)
	if err != nil && h.err == nil {
		h.err = err
	}
	if cmp != 0 {
		return cmp < 0
	}
	return h.items[i].streamIdx < h.items[j].streamIdx
}

func (h *mergeHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *mergeHeap) Push(x interface{}) {
	h.items = append(h.items, x.(*mergeItem))
}

func (h *mergeHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// SortOperator sorts its child's output by the given columns using the
// external sorter.
type SortOperator struct {
	baseOperator
	child        Operator
	keys         []int
	memoryBlocks int
	iter         RowIterator
}

// NewSortOperator creates a sort over child ordered by keys ascending.
func NewSortOperator(child Operator, keys []int, memoryBlocks int) *SortOperator {
	return &SortOperator{
		baseOperator: baseOperator{schema: child.Schema()},
		child:        child,
		keys:         keys,
		memoryBlocks: memoryBlocks,
	}
}

// SortKeys reports the output order.
func (s *SortOperator) SortKeys() []int {
	return s.keys
}

func (s *SortOperator) Open(ctx *ExecContext) error {
	s.ctx = ctx
	if err := s.child.Open(ctx); err != nil {
		return fmt.Errorf("failed to open child: %w", err)
	}

	sorter, err := newExternalSorter(ctx, compareByColumns(s.keys), s.memoryBlocks, false)
	if err != nil {
		return err
	}
	for {
		row, err := s.child.Next()
		if err != nil {
			sorter.cleanup()
			return err
		}
		if row == nil {
			break
		}
		if err := sorter.Add(row); err != nil {
			sorter.cleanup()
			return err
		}
	}
	s.iter, err = sorter.Finish()
	return err
}

func (s *SortOperator) Next() (*Row, error) {
	if s.iter == nil {
		return nil, fmt.Errorf("sort operator not opened")
	}
	return s.iter.Next()
}

func (s *SortOperator) Close() error {
	var firstErr error
	if s.iter != nil {
		if err := s.iter.Close(); err != nil {
			firstErr = err
		}
		s.iter = nil
	}
	if err := s.child.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
