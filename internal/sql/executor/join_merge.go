package executor

import (
	"fmt"

	"github.com/calyxdb/calyx/internal/errors"
)

// MergeJoinOperator implements sort-merge equijoin. Each side that is not
// already ordered by its join key is run through the external sorter; the
// merge then advances two cursors, and on key equality buffers the entire
// left equal-key group (bounded by memoryBlocks-2 blocks) and crosses it
// against the right side's equal-key run, emitting all pairs. Output is
// ordered by the join key. Rows with NULL key values never match and are
// skipped on both sides.
type MergeJoinOperator struct {
	baseOperator
	left         Operator
	right        Operator
	leftKeys     []int
	rightKeys    []int
	memoryBlocks int

	leftIter  PeekableIterator
	rightIter PeekableIterator
	leftRow   *Row
	rightRow  *Row

	// Current equal-key group: the left rows are buffered, the right run is
	// streamed one row at a time and crossed against the buffer.
	leftGroup []*Row
	groupRow  *Row // representative left row holding the group key
	curRight  *Row
	leftIdx   int

	initialized bool
	done        bool
}

// NewMergeJoin creates a sort-merge join on key-column equality.
func NewMergeJoin(left, right Operator, leftKeys, rightKeys []int, memoryBlocks int) *MergeJoinOperator {
	return &MergeJoinOperator{
		baseOperator: baseOperator{schema: combineSchemas(left.Schema(), right.Schema())},
		left:         left,
		right:        right,
		leftKeys:     leftKeys,
		rightKeys:    rightKeys,
		memoryBlocks: memoryBlocks,
	}
}

func (m *MergeJoinOperator) Open(ctx *ExecContext) error {
	m.ctx = ctx
	m.initialized = false
	m.done = false
	m.leftGroup = nil
	m.curRight = nil

	if err := checkBudget("merge join", m.memoryBlocks, minJoinBlocks); err != nil {
		return err
	}
	if len(m.leftKeys) == 0 || len(m.leftKeys) != len(m.rightKeys) {
		return errors.ConfigurationErrorf("merge join requires matching, non-empty key column lists")
	}

	if err := m.left.Open(ctx); err != nil {
		return fmt.Errorf("failed to open left child: %w", err)
	}
	if err := m.right.Open(ctx); err != nil {
		return fmt.Errorf("failed to open right child: %w", err)
	}
	return nil
}

// sortKeysOf reports the declared output order of an operator, if any.
func sortKeysOf(op Operator) []int {
	if s, ok := op.(interface{ SortKeys() []int }); ok {
		return s.SortKeys()
	}
	return nil
}

// ensureSorted returns an iterator over op ordered by keys, sorting
// externally unless the operator already delivers that order.
func (m *MergeJoinOperator) ensureSorted(op Operator, keys []int) (RowIterator, error) {
	if keysMatch(sortKeysOf(op), keys) {
		return &operatorIterator{op: op}, nil
	}

	sorter, err := newExternalSorter(m.ctx, compareByColumns(keys), m.memoryBlocks, false)
	if err != nil {
		return nil, err
	}
	for {
		row, err := op.Next()
		if err != nil {
			sorter.cleanup()
			return nil, err
		}
		if row == nil {
			break
		}
		if err := sorter.Add(row); err != nil {
			sorter.cleanup()
			return nil, err
		}
	}
	return sorter.Finish()
}

func (m *MergeJoinOperator) initialize() error {
	leftSorted, err := m.ensureSorted(m.left, m.leftKeys)
	if err != nil {
		return fmt.Errorf("failed to sort left input: %w", err)
	}
	m.leftIter = ensurePeekable(leftSorted)

	rightSorted, err := m.ensureSorted(m.right, m.rightKeys)
	if err != nil {
		return fmt.Errorf("failed to sort right input: %w", err)
	}
	m.rightIter = ensurePeekable(rightSorted)

	if m.leftRow, err = m.nextNonNullKey(m.leftIter, m.leftKeys); err != nil {
		return err
	}
	if m.rightRow, err = m.nextNonNullKey(m.rightIter, m.rightKeys); err != nil {
		return err
	}
	m.initialized = true
	return nil
}

// nextNonNullKey advances past rows whose key contains NULL.
func (m *MergeJoinOperator) nextNonNullKey(iter PeekableIterator, keys []int) (*Row, error) {
	for {
		row, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if row == nil || !hasNullKey(row, keys) {
			return row, nil
		}
	}
}

func (m *MergeJoinOperator) Next() (*Row, error) {
	if m.done {
		return nil, nil
	}
	if !m.initialized {
		if err := m.initialize(); err != nil {
			return nil, err
		}
	}

	for {
		// Emit pending pairs from the current equal-key group.
		if m.curRight != nil {
			if m.leftIdx < len(m.leftGroup) {
				joined := combineRows(m.leftGroup[m.leftIdx], m.curRight)
				m.leftIdx++
				if m.ctx.Stats != nil {
					m.ctx.Stats.RowsReturned++
				}
				return joined, nil
			}

			// Current right row fully crossed; fetch the next right row of
			// the same key group, if any.
			next, err := m.rightIter.Peek()
			if err != nil {
				return nil, err
			}
			if next != nil && !hasNullKey(next, m.rightKeys) {
				cmp, err := compareKeys(m.groupRow, m.leftKeys, next, m.rightKeys)
				if err != nil {
					return nil, err
				}
				if cmp == 0 {
					m.curRight, _ = m.rightIter.Next()
					m.leftIdx = 0
					continue
				}
			}

			// Right group exhausted; resume the merge past it.
			m.curRight = nil
			m.leftGroup = nil
			m.groupRow = nil
			if m.rightRow, err = m.nextNonNullKey(m.rightIter, m.rightKeys); err != nil {
				return nil, err
			}
		}

		if m.leftRow == nil || m.rightRow == nil {
			m.done = true
			return nil, nil
		}

		cmp, err := compareKeys(m.leftRow, m.leftKeys, m.rightRow, m.rightKeys)
		if err != nil {
			return nil, err
		}
		switch {
		case cmp < 0:
			if m.leftRow, err = m.nextNonNullKey(m.leftIter, m.leftKeys); err != nil {
				return nil, err
			}
		case cmp > 0:
			if m.rightRow, err = m.nextNonNullKey(m.rightIter, m.rightKeys); err != nil {
				return nil, err
			}
		default:
			if err := m.collectLeftGroup(); err != nil {
				return nil, err
			}
			m.curRight = m.rightRow
			m.leftIdx = 0
		}
	}
}

// collectLeftGroup buffers every left row sharing the current key. The
// group must fit within memoryBlocks-2 blocks; a larger group cannot be
// crossed within the budget and fails hard rather than truncating results.
func (m *MergeJoinOperator) collectLeftGroup() error {
	budget := (m.memoryBlocks - 2) * m.ctx.blockCapacity()
	m.groupRow = m.leftRow
	m.leftGroup = []*Row{m.leftRow}

	for {
		next, err := m.leftIter.Peek()
		if err != nil {
			return err
		}
		if next == nil || hasNullKey(next, m.leftKeys) {
			break
		}
		cmp, err := compareKeys(m.groupRow, m.leftKeys, next, m.leftKeys)
		if err != nil {
			return err
		}
		if cmp != 0 {
			break
		}
		if len(m.leftGroup) >= budget {
			return errors.ConfigurationErrorf(
				"merge join equal-key group exceeds memory budget of %d blocks", m.memoryBlocks-2)
		}
		row, _ := m.leftIter.Next()
		m.leftGroup = append(m.leftGroup, row)
	}

	// Advance the left cursor past the group.
	var err error
	m.leftRow, err = m.nextNonNullKey(m.leftIter, m.leftKeys)
	return err
}

func (m *MergeJoinOperator) Close() error {
	var firstErr error
	if m.leftIter != nil {
		if err := m.leftIter.Close(); err != nil {
			firstErr = err
		}
		m.leftIter = nil
	}
	if m.rightIter != nil {
		if err := m.rightIter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.rightIter = nil
	}
	if err := m.left.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.right.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
