package executor

import (
	"fmt"

	"github.com/calyxdb/calyx/internal/sql/types"
)

// DistinctOperator removes duplicate rows. It keys on the canonical encoding
// of the full row, so the duplicate set is assumed to fit in memory (bounded
// by distinct-row cardinality, not input size).
type DistinctOperator struct {
	baseOperator
	child       Operator
	seen        map[string]struct{}
	buffer      []*Row
	bufferIndex int
}

// NewDistinctOperator creates a new distinct operator.
func NewDistinctOperator(child Operator) *DistinctOperator {
	return &DistinctOperator{
		baseOperator: baseOperator{schema: child.Schema()},
		child:        child,
	}
}

func (d *DistinctOperator) Open(ctx *ExecContext) error {
	d.ctx = ctx
	d.seen = make(map[string]struct{})
	d.buffer = nil
	d.bufferIndex = 0

	if err := d.child.Open(ctx); err != nil {
		return fmt.Errorf("failed to open child operator: %w", err)
	}

	for {
		row, err := d.child.Next()
		if err != nil {
			return fmt.Errorf("error reading from child: %w", err)
		}
		if row == nil {
			break
		}
		key := string(types.EncodeKey(row.Values...))
		if _, exists := d.seen[key]; !exists {
			d.seen[key] = struct{}{}
			d.buffer = append(d.buffer, row)
		}
	}
	return nil
}

func (d *DistinctOperator) Next() (*Row, error) {
	if d.seen == nil {
		return nil, fmt.Errorf("distinct operator not opened")
	}
	if d.bufferIndex >= len(d.buffer) {
		return nil, nil
	}
	row := d.buffer[d.bufferIndex]
	d.bufferIndex++
	return row, nil
}

func (d *DistinctOperator) Close() error {
	d.seen = nil
	d.buffer = nil
	return d.child.Close()
}
