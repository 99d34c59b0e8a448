package executor

import (
	"fmt"

	"github.com/calyxdb/calyx/internal/errors"
	"github.com/calyxdb/calyx/internal/storage/spill"
)

// maxHashDepth caps recursive repartitioning. Buckets still oversized at
// this depth (heavily skewed keys) are joined by the nested-loop fallback
// instead of partitioning further.
const maxHashDepth = 8

// bucketPair is one unit of pending hash-join work: a left and a right
// bucket holding rows with the same hash prefix. parentLeft/parentRight
// record the sizes of the buckets this pair was split from, so a split
// that made no progress can be detected.
type bucketPair struct {
	left        *spill.Partition
	right       *spill.Partition
	depth       int
	parentLeft  int64
	parentRight int64
}

// HashJoinOperator implements an external equijoin by recursive
// partitioning. Both inputs are hashed on their key columns into
// memoryBlocks-1 buckets per side, spilled to temporary storage, and each
// matching bucket pair is processed from an explicit work stack: pairs
// where either side fits in memory are joined by build-and-probe, pairs
// that are still too large are repartitioned at the next depth with a
// rehashed function, and degenerate buckets (single key, or depth cap
// reached) fall back to a memory-bounded nested-loop pass. Rows with NULL
// key values are dropped during the initial partitioning. Partitions are
// deleted as soon as they are consumed.
type HashJoinOperator struct {
	baseOperator
	left         Operator
	right        Operator
	leftKeys     []int
	rightKeys    []int
	memoryBlocks int

	stack   []bucketPair
	emitter pairEmitter
	done    bool
}

// pairEmitter streams the join output of one bucket pair.
type pairEmitter interface {
	next() (*Row, error)
	close() error
}

// NewHashJoin creates an external hash join on key-column equality.
func NewHashJoin(left, right Operator, leftKeys, rightKeys []int, memoryBlocks int) *HashJoinOperator {
	return &HashJoinOperator{
		baseOperator: baseOperator{schema: combineSchemas(left.Schema(), right.Schema())},
		left:         left,
		right:        right,
		leftKeys:     leftKeys,
		rightKeys:    rightKeys,
		memoryBlocks: memoryBlocks,
	}
}

func (h *HashJoinOperator) fanout() int {
	return h.memoryBlocks - 1
}

// fitRows is the row budget for an in-memory build side.
func (h *HashJoinOperator) fitRows() int64 {
	return int64((h.memoryBlocks - 1) * h.ctx.blockCapacity())
}

func (h *HashJoinOperator) Open(ctx *ExecContext) error {
	h.ctx = ctx
	h.stack = nil
	h.emitter = nil
	h.done = false

	if err := checkBudget("hash join", h.memoryBlocks, minJoinBlocks); err != nil {
		return err
	}
	if len(h.leftKeys) == 0 || len(h.leftKeys) != len(h.rightKeys) {
		return errors.ConfigurationErrorf("hash join requires matching, non-empty key column lists")
	}

	if err := h.left.Open(ctx); err != nil {
		return fmt.Errorf("failed to open left child: %w", err)
	}
	if err := h.right.Open(ctx); err != nil {
		return fmt.Errorf("failed to open right child: %w", err)
	}

	leftBuckets, err := h.partition(&operatorIterator{op: h.left}, h.leftKeys, 0, "L")
	if err != nil {
		return err
	}
	rightBuckets, err := h.partition(&operatorIterator{op: h.right}, h.rightKeys, 0, "R")
	if err != nil {
		deleteBuckets(leftBuckets)
		return err
	}
	h.pushPairs(leftBuckets, rightBuckets, 0, -1, -1)
	return nil
}

// partition hashes every row of iter into fanout spill buckets using the
// depth-salted hash. Rows with NULL keys cannot match and are skipped.
func (h *HashJoinOperator) partition(iter RowIterator, keys []int, depth int, side string) ([]*spill.Partition, error) {
	buckets := make([]*spill.Partition, h.fanout())
	for i := range buckets {
		part, err := h.ctx.Spill.Create(fmt.Sprintf("hj-%s-d%d-b%d", side, depth, i))
		if err != nil {
			deleteBuckets(buckets)
			return nil, err
		}
		buckets[i] = part
	}

	for {
		row, err := iter.Next()
		if err != nil {
			deleteBuckets(buckets)
			return nil, err
		}
		if row == nil {
			break
		}
		if hasNullKey(row, keys) {
			continue
		}
		idx := int(hashRowKey(row, keys, depth) % uint64(len(buckets)))
		if err := buckets[idx].Append(row.Values); err != nil {
			deleteBuckets(buckets)
			return nil, err
		}
		if h.ctx.Stats != nil {
			h.ctx.Stats.SpilledRows++
		}
	}
	for _, part := range buckets {
		if err := part.Seal(); err != nil {
			deleteBuckets(buckets)
			return nil, err
		}
	}
	if h.ctx.Stats != nil {
		h.ctx.Stats.SpillPartitions += int64(len(buckets))
	}
	return buckets, nil
}

// pushPairs pairs up matching buckets and queues the non-empty ones,
// deleting buckets whose counterpart holds no rows.
func (h *HashJoinOperator) pushPairs(left, right []*spill.Partition, depth int, parentLeft, parentRight int64) {
	for i := range left {
		if left[i].Rows() == 0 || right[i].Rows() == 0 {
			left[i].Delete()
			right[i].Delete()
			continue
		}
		h.stack = append(h.stack, bucketPair{
			left:        left[i],
			right:       right[i],
			depth:       depth,
			parentLeft:  parentLeft,
			parentRight: parentRight,
		})
	}
}

func (h *HashJoinOperator) Next() (*Row, error) {
	if h.done {
		return nil, nil
	}
	for {
		if h.emitter != nil {
			row, err := h.emitter.next()
			if err != nil {
				return nil, err
			}
			if row != nil {
				if h.ctx.Stats != nil {
					h.ctx.Stats.RowsReturned++
				}
				return row, nil
			}
			if err := h.emitter.close(); err != nil {
				return nil, err
			}
			h.emitter = nil
		}

		if len(h.stack) == 0 {
			h.done = true
			return nil, nil
		}
		pair := h.stack[len(h.stack)-1]
		h.stack = h.stack[:len(h.stack)-1]

		if err := h.processPair(pair); err != nil {
			pair.left.Delete()
			pair.right.Delete()
			return nil, err
		}
	}
}

// processPair decides how to join one bucket pair and installs the
// corresponding emitter, or repartitions the pair deeper.
func (h *HashJoinOperator) processPair(pair bucketPair) error {
	leftRows, rightRows := pair.left.Rows(), pair.right.Rows()

	if leftRows <= h.fitRows() || rightRows <= h.fitRows() {
		emitter, err := h.newProbeEmitter(pair)
		if err != nil {
			return err
		}
		h.emitter = emitter
		return nil
	}

	// A bucket that did not shrink relative to its parent is dominated by a
	// single key; rehashing cannot split it. Same for the depth cap.
	stuck := pair.depth >= maxHashDepth ||
		(leftRows == pair.parentLeft && rightRows == pair.parentRight)
	if stuck {
		emitter, err := h.newLoopEmitter(pair)
		if err != nil {
			return err
		}
		h.emitter = emitter
		return nil
	}

	return h.repartitionPair(pair)
}

// repartitionPair splits both buckets of the pair at the next depth and
// queues the children. The parent buckets are deleted immediately.
func (h *HashJoinOperator) repartitionPair(pair bucketPair) error {
	leftIter, err := newPartitionIterator(pair.left)
	if err != nil {
		return err
	}
	leftBuckets, err := h.partition(leftIter, h.leftKeys, pair.depth+1, "L")
	leftIter.Close()
	if err != nil {
		return err
	}

	rightIter, err := newPartitionIterator(pair.right)
	if err != nil {
		deleteBuckets(leftBuckets)
		return err
	}
	rightBuckets, err := h.partition(rightIter, h.rightKeys, pair.depth+1, "R")
	rightIter.Close()
	if err != nil {
		deleteBuckets(leftBuckets)
		return err
	}

	leftRows, rightRows := pair.left.Rows(), pair.right.Rows()
	pair.left.Delete()
	pair.right.Delete()
	h.pushPairs(leftBuckets, rightBuckets, pair.depth+1, leftRows, rightRows)
	return nil
}

func (h *HashJoinOperator) Close() error {
	var firstErr error
	if h.emitter != nil {
		if err := h.emitter.close(); err != nil {
			firstErr = err
		}
		h.emitter = nil
	}
	for _, pair := range h.stack {
		pair.left.Delete()
		pair.right.Delete()
	}
	h.stack = nil
	if err := h.left.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := h.right.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func deleteBuckets(buckets []*spill.Partition) {
	for _, part := range buckets {
		if part != nil {
			part.Delete()
		}
	}
}

// probeEmitter joins a bucket pair by building an in-memory hash table
// over the smaller side and streaming the larger side against it. The
// build map is keyed on the canonical key encoding, so equal keys of
// different numeric kinds land in the same entry.
type probeEmitter struct {
	pair        bucketPair
	build       map[string][]*Row
	buildIsLeft bool
	probeIter   RowIterator
	probeKeys   []int
	probeRow    *Row
	matches     []*Row
	matchIdx    int
}

func (h *HashJoinOperator) newProbeEmitter(pair bucketPair) (*probeEmitter, error) {
	buildPart, probePart := pair.left, pair.right
	buildKeys, probeKeys := h.leftKeys, h.rightKeys
	buildIsLeft := true
	if pair.right.Rows() < pair.left.Rows() {
		buildPart, probePart = pair.right, pair.left
		buildKeys, probeKeys = h.rightKeys, h.leftKeys
		buildIsLeft = false
	}

	buildIter, err := newPartitionIterator(buildPart)
	if err != nil {
		return nil, err
	}
	build := make(map[string][]*Row)
	for {
		row, err := buildIter.Next()
		if err != nil {
			buildIter.Close()
			return nil, err
		}
		if row == nil {
			break
		}
		key := encodeRowKey(row, buildKeys)
		build[key] = append(build[key], row)
	}
	buildIter.Close()

	probeIter, err := newPartitionIterator(probePart)
	if err != nil {
		return nil, err
	}
	return &probeEmitter{
		pair:        pair,
		build:       build,
		buildIsLeft: buildIsLeft,
		probeIter:   probeIter,
		probeKeys:   probeKeys,
	}, nil
}

func (p *probeEmitter) next() (*Row, error) {
	for {
		if p.matchIdx < len(p.matches) {
			match := p.matches[p.matchIdx]
			p.matchIdx++
			if p.buildIsLeft {
				return combineRows(match, p.probeRow), nil
			}
			return combineRows(p.probeRow, match), nil
		}

		row, err := p.probeIter.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, nil
		}
		p.probeRow = row
		p.matches = p.build[encodeRowKey(row, p.probeKeys)]
		p.matchIdx = 0
	}
}

func (p *probeEmitter) close() error {
	err := p.probeIter.Close()
	p.build = nil
	p.pair.left.Delete()
	p.pair.right.Delete()
	return err
}

// loopEmitter joins a degenerate bucket pair with a memory-bounded
// block-nested-loop pass: memoryBlocks-2 blocks of the left bucket are
// buffered at a time and the right bucket is rescanned per buffer.
type loopEmitter struct {
	pair      bucketPair
	leftKeys  []int
	rightKeys []int

	leftReader *chunkReader
	leftIter   RowIterator
	leftChunk  []*Row
	rightIter  RowIterator
	rightRow   *Row
	pos        int
}

func (h *HashJoinOperator) newLoopEmitter(pair bucketPair) (*loopEmitter, error) {
	leftIter, err := newPartitionIterator(pair.left)
	if err != nil {
		return nil, err
	}
	bufferRows := (h.memoryBlocks - 2) * h.ctx.blockCapacity()
	return &loopEmitter{
		pair:       pair,
		leftKeys:   h.leftKeys,
		rightKeys:  h.rightKeys,
		leftIter:   leftIter,
		leftReader: newChunkReader(leftIter, bufferRows),
	}, nil
}

func (l *loopEmitter) next() (*Row, error) {
	for {
		if l.leftChunk == nil {
			chunk, err := l.leftReader.NextChunk()
			if err != nil {
				return nil, err
			}
			if chunk == nil {
				return nil, nil
			}
			l.leftChunk = chunk
			if l.rightIter != nil {
				l.rightIter.Close()
			}
			if l.rightIter, err = newPartitionIterator(l.pair.right); err != nil {
				return nil, err
			}
			l.rightRow = nil
		}

		if l.rightRow == nil {
			row, err := l.rightIter.Next()
			if err != nil {
				return nil, err
			}
			if row == nil {
				l.rightIter.Close()
				l.rightIter = nil
				l.leftChunk = nil
				continue
			}
			l.rightRow = row
			l.pos = 0
		}

		for l.pos < len(l.leftChunk) {
			leftRow := l.leftChunk[l.pos]
			l.pos++
			cmp, err := compareKeys(leftRow, l.leftKeys, l.rightRow, l.rightKeys)
			if err != nil {
				return nil, err
			}
			if cmp == 0 {
				return combineRows(leftRow, l.rightRow), nil
			}
		}
		l.rightRow = nil
	}
}

func (l *loopEmitter) close() error {
	var firstErr error
	if l.rightIter != nil {
		if err := l.rightIter.Close(); err != nil {
			firstErr = err
		}
		l.rightIter = nil
	}
	if l.leftIter != nil {
		if err := l.leftIter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		l.leftIter = nil
	}
	l.pair.left.Delete()
	l.pair.right.Delete()
	return firstErr
}
