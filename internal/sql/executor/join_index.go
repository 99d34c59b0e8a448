package executor

import (
	"fmt"

	"github.com/calyxdb/calyx/internal/errors"
	"github.com/calyxdb/calyx/internal/sql/types"
)

// IndexNestedLoopJoinOperator joins a streamed outer input against an
// indexed inner source: for each outer row, the inner rows matching the
// outer key are fetched through the source's index instead of scanning.
// Requires the inner column to actually carry an index; outer rows with a
// NULL key produce no output.
type IndexNestedLoopJoinOperator struct {
	baseOperator
	outer       Operator
	inner       IndexBlockSource
	outerKey    int
	innerColumn int

	outerRow  *Row
	matchIter RowIterator
	done      bool
}

// NewIndexNestedLoopJoin creates an index nested-loop join of outer against
// the indexed innerColumn of inner.
func NewIndexNestedLoopJoin(outer Operator, inner IndexBlockSource, outerKey, innerColumn int) *IndexNestedLoopJoinOperator {
	return &IndexNestedLoopJoinOperator{
		baseOperator: baseOperator{schema: combineSchemas(outer.Schema(), inner.Schema())},
		outer:        outer,
		inner:        inner,
		outerKey:     outerKey,
		innerColumn:  innerColumn,
	}
}

func (j *IndexNestedLoopJoinOperator) Open(ctx *ExecContext) error {
	j.ctx = ctx
	j.outerRow = nil
	j.matchIter = nil
	j.done = false

	if err := j.outer.Open(ctx); err != nil {
		return fmt.Errorf("failed to open outer child: %w", err)
	}
	// Probe once up front so a missing index fails at Open, not mid-stream.
	probe, ok := j.inner.IndexLookup(j.innerColumn, types.NewNullValue())
	if !ok {
		return errors.ConfigurationErrorf("inner source has no index on column %d", j.innerColumn)
	}
	probe.Close()
	return nil
}

func (j *IndexNestedLoopJoinOperator) Next() (*Row, error) {
	if j.done {
		return nil, nil
	}
	for {
		if j.matchIter != nil {
			inner, err := j.matchIter.Next()
			if err != nil {
				return nil, err
			}
			if inner != nil {
				if j.ctx.Stats != nil {
					j.ctx.Stats.RowsReturned++
				}
				return combineRows(j.outerRow, inner), nil
			}
			j.matchIter.Close()
			j.matchIter = nil
		}

		outer, err := j.outer.Next()
		if err != nil {
			return nil, err
		}
		if outer == nil {
			j.done = true
			return nil, nil
		}
		key := outer.Values[j.outerKey]
		if key.IsNull() {
			continue
		}
		iter, ok := j.inner.IndexLookup(j.innerColumn, key)
		if !ok {
			return nil, errors.ConfigurationErrorf("inner source has no index on column %d", j.innerColumn)
		}
		j.outerRow = outer
		j.matchIter = iter
	}
}

func (j *IndexNestedLoopJoinOperator) Close() error {
	var firstErr error
	if j.matchIter != nil {
		if err := j.matchIter.Close(); err != nil {
			firstErr = err
		}
		j.matchIter = nil
	}
	if err := j.outer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
