package executor

import (
	"fmt"

	"github.com/calyxdb/calyx/internal/storage/spill"
)

// partitionIterator streams rows back out of a spill partition.
type partitionIterator struct {
	reader *spill.Reader
}

func newPartitionIterator(part *spill.Partition) (*partitionIterator, error) {
	reader, err := part.OpenReader()
	if err != nil {
		return nil, err
	}
	return &partitionIterator{reader: reader}, nil
}

func (p *partitionIterator) Next() (*Row, error) {
	values, err := p.reader.Next()
	if err != nil {
		return nil, err
	}
	if values == nil {
		return nil, nil
	}
	return &Row{Values: values}, nil
}

func (p *partitionIterator) Close() error {
	return p.reader.Close()
}

// materializedInput spools a row stream into a spill partition so it can be
// scanned any number of times. Operators are single-pass; materializing is
// how a consumer such as block-nested-loop join re-reads its inner side.
type materializedInput struct {
	part *spill.Partition
}

// materialize drains iter into a fresh partition.
func materialize(ctx *ExecContext, iter RowIterator, name string) (*materializedInput, error) {
	part, err := ctx.Spill.Create(name)
	if err != nil {
		return nil, err
	}
	for {
		row, err := iter.Next()
		if err != nil {
			part.Delete()
			return nil, err
		}
		if row == nil {
			break
		}
		if err := part.Append(row.Values); err != nil {
			part.Delete()
			return nil, err
		}
		if ctx.Stats != nil {
			ctx.Stats.SpilledRows++
		}
	}
	if err := part.Seal(); err != nil {
		part.Delete()
		return nil, err
	}
	if ctx.Stats != nil {
		ctx.Stats.SpillPartitions++
	}
	return &materializedInput{part: part}, nil
}

func (m *materializedInput) rows() int64 {
	return m.part.Rows()
}

func (m *materializedInput) iterator() (RowIterator, error) {
	return newPartitionIterator(m.part)
}

func (m *materializedInput) release() error {
	if m.part == nil {
		return nil
	}
	err := m.part.Delete()
	m.part = nil
	return err
}

// MaterializeOperator spools its child to temporary storage at Open and then
// streams the spooled rows. It decouples the child's lifetime from the
// consumer's pull pattern.
type MaterializeOperator struct {
	baseOperator
	child Operator
	mat   *materializedInput
	iter  RowIterator
}

// NewMaterializeOperator creates a materializing wrapper over child.
func NewMaterializeOperator(child Operator) *MaterializeOperator {
	return &MaterializeOperator{
		baseOperator: baseOperator{schema: child.Schema()},
		child:        child,
	}
}

func (m *MaterializeOperator) Open(ctx *ExecContext) error {
	m.ctx = ctx
	if err := m.child.Open(ctx); err != nil {
		return fmt.Errorf("failed to open child: %w", err)
	}
	mat, err := materialize(ctx, &operatorIterator{op: m.child}, "materialize")
	if err != nil {
		return err
	}
	m.mat = mat
	m.iter, err = mat.iterator()
	if err != nil {
		mat.release()
		m.mat = nil
		return err
	}
	return nil
}

func (m *MaterializeOperator) Next() (*Row, error) {
	if m.iter == nil {
		return nil, fmt.Errorf("materialize operator not opened")
	}
	return m.iter.Next()
}

func (m *MaterializeOperator) Close() error {
	var firstErr error
	if m.iter != nil {
		if err := m.iter.Close(); err != nil {
			firstErr = err
		}
		m.iter = nil
	}
	if m.mat != nil {
		if err := m.mat.release(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.mat = nil
	}
	if err := m.child.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
