package executor

import (
	"fmt"

	"github.com/calyxdb/calyx/internal/sql/types"
)

// FilterOperator filters rows based on a predicate.
type FilterOperator struct {
	baseOperator
	child     Operator
	predicate Predicate
}

// NewFilterOperator creates a new filter operator.
func NewFilterOperator(child Operator, predicate Predicate) *FilterOperator {
	return &FilterOperator{
		baseOperator: baseOperator{schema: child.Schema()},
		child:        child,
		predicate:    predicate,
	}
}

func (f *FilterOperator) Open(ctx *ExecContext) error {
	f.ctx = ctx
	return f.child.Open(ctx)
}

func (f *FilterOperator) Next() (*Row, error) {
	for {
		row, err := f.child.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, nil
		}
		ok, err := f.predicate(row)
		if err != nil {
			return nil, fmt.Errorf("predicate evaluation failed: %w", err)
		}
		if ok {
			if f.ctx.Stats != nil {
				f.ctx.Stats.RowsReturned++
			}
			return row, nil
		}
	}
}

func (f *FilterOperator) Close() error {
	return f.child.Close()
}

// ProjectOperator projects columns and evaluates expressions.
type ProjectOperator struct {
	baseOperator
	child       Operator
	projections []Projection
}

// NewProjectOperator creates a new projection operator.
func NewProjectOperator(child Operator, projections []Projection, schema *Schema) *ProjectOperator {
	return &ProjectOperator{
		baseOperator: baseOperator{schema: schema},
		child:        child,
		projections:  projections,
	}
}

func (p *ProjectOperator) Open(ctx *ExecContext) error {
	p.ctx = ctx
	return p.child.Open(ctx)
}

func (p *ProjectOperator) Next() (*Row, error) {
	row, err := p.child.Next()
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	projected := &Row{Values: make([]types.Value, len(p.projections))}
	for i, proj := range p.projections {
		value, err := proj(row)
		if err != nil {
			return nil, fmt.Errorf("projection %d failed: %w", i, err)
		}
		projected.Values[i] = value
	}
	return projected, nil
}

func (p *ProjectOperator) Close() error {
	return p.child.Close()
}

// LimitOperator implements LIMIT and OFFSET.
type LimitOperator struct {
	baseOperator
	child    Operator
	limit    int64
	offset   int64
	rowCount int64
}

// NewLimitOperator creates a new limit operator. A negative limit means
// unlimited.
func NewLimitOperator(child Operator, limit, offset int64) *LimitOperator {
	return &LimitOperator{
		baseOperator: baseOperator{schema: child.Schema()},
		child:        child,
		limit:        limit,
		offset:       offset,
	}
}

func (l *LimitOperator) Open(ctx *ExecContext) error {
	l.ctx = ctx
	l.rowCount = 0
	return l.child.Open(ctx)
}

func (l *LimitOperator) Next() (*Row, error) {
	for l.rowCount < l.offset {
		row, err := l.child.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, nil
		}
		l.rowCount++
	}

	if l.limit >= 0 && l.rowCount >= l.offset+l.limit {
		return nil, nil
	}

	row, err := l.child.Next()
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	l.rowCount++
	return row, nil
}

func (l *LimitOperator) Close() error {
	return l.child.Close()
}

// ValuesOperator produces a fixed list of rows.
type ValuesOperator struct {
	baseOperator
	rows     []*Row
	position int
}

// NewValuesOperator creates an operator over literal rows.
func NewValuesOperator(schema *Schema, rows []*Row) *ValuesOperator {
	return &ValuesOperator{
		baseOperator: baseOperator{schema: schema},
		rows:         rows,
	}
}

func (v *ValuesOperator) Open(ctx *ExecContext) error {
	v.ctx = ctx
	v.position = 0
	return nil
}

func (v *ValuesOperator) Next() (*Row, error) {
	if v.position >= len(v.rows) {
		return nil, nil
	}
	row := v.rows[v.position]
	v.position++
	return row, nil
}

func (v *ValuesOperator) Close() error {
	return nil
}
