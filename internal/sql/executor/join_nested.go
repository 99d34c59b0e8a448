package executor

import (
	"fmt"
)

// BlockNestedLoopJoinOperator joins two inputs under an arbitrary predicate
// using multi-block buffering of the outer side: memoryBlocks-2 blocks
// buffer outer rows (one block is reserved for the inner stream and one for
// output), and the entire inner input is scanned once per outer buffer. The
// inner side is materialized to a spill partition at Open so it can be
// re-scanned while both children remain single-pass.
type BlockNestedLoopJoinOperator struct {
	baseOperator
	outer        Operator
	inner        Operator
	predicate    Predicate
	memoryBlocks int

	outerReader *chunkReader
	innerMat    *materializedInput
	outerChunk  []*Row
	innerIter   RowIterator
	innerRow    *Row
	pos         int
	done        bool
}

// NewBlockNestedLoopJoin creates a block-nested-loop join. The predicate may
// be arbitrary (not just equality); a nil predicate yields the cross
// product.
func NewBlockNestedLoopJoin(outer, inner Operator, predicate Predicate, memoryBlocks int) *BlockNestedLoopJoinOperator {
	return &BlockNestedLoopJoinOperator{
		baseOperator: baseOperator{schema: combineSchemas(outer.Schema(), inner.Schema())},
		outer:        outer,
		inner:        inner,
		predicate:    predicate,
		memoryBlocks: memoryBlocks,
	}
}

func (j *BlockNestedLoopJoinOperator) Open(ctx *ExecContext) error {
	j.ctx = ctx
	j.outerChunk = nil
	j.innerRow = nil
	j.done = false

	if err := checkBudget("block nested-loop join", j.memoryBlocks, minJoinBlocks); err != nil {
		return err
	}

	if err := j.outer.Open(ctx); err != nil {
		return fmt.Errorf("failed to open outer child: %w", err)
	}
	if err := j.inner.Open(ctx); err != nil {
		return fmt.Errorf("failed to open inner child: %w", err)
	}

	mat, err := materialize(ctx, &operatorIterator{op: j.inner}, "bnlj-inner")
	if err != nil {
		return err
	}
	j.innerMat = mat

	bufferRows := (j.memoryBlocks - 2) * ctx.blockCapacity()
	j.outerReader = newChunkReader(&operatorIterator{op: j.outer}, bufferRows)
	return nil
}

func (j *BlockNestedLoopJoinOperator) Next() (*Row, error) {
	if j.done {
		return nil, nil
	}
	if j.outerReader == nil {
		return nil, fmt.Errorf("join not opened")
	}

	for {
		// Load the next buffer of outer rows, restarting the inner scan.
		if j.outerChunk == nil {
			chunk, err := j.outerReader.NextChunk()
			if err != nil {
				return nil, err
			}
			if chunk == nil {
				j.done = true
				return nil, nil
			}
			j.outerChunk = chunk
			if j.innerIter != nil {
				j.innerIter.Close()
			}
			j.innerIter, err = j.innerMat.iterator()
			if err != nil {
				return nil, err
			}
			j.innerRow = nil
		}

		if j.innerRow == nil {
			row, err := j.innerIter.Next()
			if err != nil {
				return nil, err
			}
			if row == nil {
				// Inner exhausted for this outer buffer.
				j.innerIter.Close()
				j.innerIter = nil
				j.outerChunk = nil
				continue
			}
			j.innerRow = row
			j.pos = 0
		}

		for j.pos < len(j.outerChunk) {
			outerRow := j.outerChunk[j.pos]
			j.pos++

			joined := combineRows(outerRow, j.innerRow)
			if j.predicate != nil {
				ok, err := j.predicate(joined)
				if err != nil {
					return nil, fmt.Errorf("error evaluating join predicate: %w", err)
				}
				if !ok {
					continue
				}
			}
			if j.ctx.Stats != nil {
				j.ctx.Stats.RowsReturned++
			}
			return joined, nil
		}
		j.innerRow = nil
	}
}

func (j *BlockNestedLoopJoinOperator) Close() error {
	var firstErr error
	if j.innerIter != nil {
		if err := j.innerIter.Close(); err != nil {
			firstErr = err
		}
		j.innerIter = nil
	}
	if j.innerMat != nil {
		if err := j.innerMat.release(); err != nil && firstErr == nil {
			firstErr = err
		}
		j.innerMat = nil
	}
	if err := j.outer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := j.inner.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
