package executor

import (
	"fmt"

	"github.com/calyxdb/calyx/internal/errors"
	"github.com/calyxdb/calyx/internal/sql/types"
	"github.com/calyxdb/calyx/internal/storage/spill"
)

// AggregateFuncType identifies an aggregate function.
type AggregateFuncType int

const (
	AggCount AggregateFuncType = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

func (t AggregateFuncType) String() string {
	switch t {
	case AggCount:
		return "COUNT"
	case AggSum:
		return "SUM"
	case AggAvg:
		return "AVG"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	default:
		return fmt.Sprintf("AggregateFuncType(%d)", int(t))
	}
}

// AggregateExpr describes one aggregate in the output: the function, its
// argument column (-1 means COUNT(*)), whether duplicates are eliminated
// first, and the output column name.
type AggregateExpr struct {
	Type     AggregateFuncType
	Column   int
	Distinct bool
	Alias    string
}

// AggregateFunction accumulates values for one group and produces the
// final aggregate value. COUNT, SUM, AVG, MIN and MAX are all incremental:
// constant state per group regardless of input size.
type AggregateFunction interface {
	Accumulate(v types.Value) error
	Finalize() types.Value
}

func newAggregateFunction(expr AggregateExpr) AggregateFunction {
	switch expr.Type {
	case AggCount:
		return &countFunc{countNulls: expr.Column < 0}
	case AggSum:
		return &sumFunc{}
	case AggAvg:
		return &avgFunc{}
	case AggMin:
		return &extremumFunc{want: -1}
	case AggMax:
		return &extremumFunc{want: 1}
	default:
		return nil
	}
}

// countFunc counts rows (COUNT(*)) or non-NULL values (COUNT(col)).
type countFunc struct {
	countNulls bool
	n          int64
}

func (c *countFunc) Accumulate(v types.Value) error {
	if v.IsNull() && !c.countNulls {
		return nil
	}
	c.n++
	return nil
}

func (c *countFunc) Finalize() types.Value {
	return types.NewIntegerValue(c.n)
}

// sumFunc sums numeric values, staying integral until a float appears.
// NULL inputs are skipped; an all-NULL or empty group sums to NULL.
type sumFunc struct {
	intSum   int64
	floatSum float64
	isFloat  bool
	seen     bool
}

func (s *sumFunc) Accumulate(v types.Value) error {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case types.KindInt:
		n, _ := v.AsInt()
		if s.isFloat {
			s.floatSum += float64(n)
		} else {
			s.intSum += n
		}
	case types.KindFloat:
		f, _ := v.AsFloat()
		if !s.isFloat {
			s.floatSum = float64(s.intSum)
			s.isFloat = true
		}
		s.floatSum += f
	default:
		return errors.TypeMismatchErrorf("SUM requires a numeric argument, got %s", v.Kind().Name())
	}
	s.seen = true
	return nil
}

func (s *sumFunc) Finalize() types.Value {
	if !s.seen {
		return types.NewNullValue()
	}
	if s.isFloat {
		return types.NewFloatValue(s.floatSum)
	}
	return types.NewIntegerValue(s.intSum)
}

// avgFunc averages numeric values as a float. NULLs are skipped; an empty
// group averages to NULL.
type avgFunc struct {
	sum sumFunc
	n   int64
}

func (a *avgFunc) Accumulate(v types.Value) error {
	if v.IsNull() {
		return nil
	}
	if err := a.sum.Accumulate(v); err != nil {
		return errors.TypeMismatchErrorf("AVG requires a numeric argument, got %s", v.Kind().Name())
	}
	a.n++
	return nil
}

func (a *avgFunc) Finalize() types.Value {
	if a.n == 0 {
		return types.NewNullValue()
	}
	var total float64
	if a.sum.isFloat {
		total = a.sum.floatSum
	} else {
		total = float64(a.sum.intSum)
	}
	return types.NewFloatValue(total / float64(a.n))
}

// extremumFunc tracks MIN (want=-1) or MAX (want=1) under the standard
// value ordering. NULLs are skipped; an empty group yields NULL.
type extremumFunc struct {
	want int
	cur  types.Value
	seen bool
}

func (e *extremumFunc) Accumulate(v types.Value) error {
	if v.IsNull() {
		return nil
	}
	if !e.seen {
		e.cur = v
		e.seen = true
		return nil
	}
	cmp, err := types.Compare(v, e.cur)
	if err != nil {
		return err
	}
	if (e.want < 0 && cmp < 0) || (e.want > 0 && cmp > 0) {
		e.cur = v
	}
	return nil
}

func (e *extremumFunc) Finalize() types.Value {
	if !e.seen {
		return types.NewNullValue()
	}
	return e.cur
}

// aggGroup is the per-group state: the grouping key values, incremental
// function state, and, when distinct aggregates are present, a spill
// partition holding the distinct argument columns of every input row.
type aggGroup struct {
	key   []types.Value
	funcs []AggregateFunction
	part  *spill.Partition
}

// AggregateOperator implements grouped aggregation with optional HAVING.
// Groups are tracked in a hash table keyed on the canonical encoding of the
// grouping columns, so state is proportional to group cardinality, not
// input size. Incremental aggregates fold values as rows stream by.
// DISTINCT aggregates cannot fold incrementally: their argument values are
// spooled per group to temporary storage and, after input is exhausted,
// each group's spool is run through a duplicate-eliminating external sort
// per DISTINCT aggregate so every distinct value is folded exactly once.
// With no grouping columns the entire input forms one group, and exactly
// one row is produced even on empty input (COUNT is 0, the rest NULL).
type AggregateOperator struct {
	baseOperator
	child        Operator
	groupBy      []int
	aggregates   []AggregateExpr
	having       Predicate
	memoryBlocks int

	distinctCols []int // argument columns of the DISTINCT aggregates, in order

	results   []*Row
	resultIdx int
	opened    bool
}

// NewAggregateOperator creates a grouped aggregation. A nil having accepts
// every group.
func NewAggregateOperator(child Operator, groupBy []int, aggregates []AggregateExpr, having Predicate, memoryBlocks int) *AggregateOperator {
	op := &AggregateOperator{
		child:        child,
		groupBy:      groupBy,
		aggregates:   aggregates,
		having:       having,
		memoryBlocks: memoryBlocks,
	}
	for _, expr := range aggregates {
		if expr.Distinct {
			op.distinctCols = append(op.distinctCols, expr.Column)
		}
	}
	op.schema = op.buildSchema(child.Schema())
	return op
}

func (a *AggregateOperator) buildSchema(child *Schema) *Schema {
	schema := &Schema{}
	for _, col := range a.groupBy {
		schema.Columns = append(schema.Columns, child.Columns[col])
	}
	for _, expr := range a.aggregates {
		kind := types.KindInt
		switch expr.Type {
		case AggAvg:
			kind = types.KindFloat
		case AggSum, AggMin, AggMax:
			kind = child.Columns[expr.Column].Kind
		}
		name := expr.Alias
		if name == "" {
			name = expr.Type.String()
		}
		schema.Columns = append(schema.Columns, Column{Name: name, Kind: kind})
	}
	return schema
}

func (a *AggregateOperator) hasDistinct() bool {
	return len(a.distinctCols) > 0
}

func (a *AggregateOperator) Open(ctx *ExecContext) error {
	a.ctx = ctx
	a.results = nil
	a.resultIdx = 0
	a.opened = true

	if a.hasDistinct() {
		if err := checkBudget("aggregation with DISTINCT", a.memoryBlocks, minSortBlocks); err != nil {
			return err
		}
	}
	if err := a.child.Open(ctx); err != nil {
		return fmt.Errorf("failed to open child operator: %w", err)
	}

	groups, order, err := a.consumeInput()
	if err != nil {
		a.releaseGroups(groups)
		return err
	}
	if err := a.buildResults(groups, order); err != nil {
		a.releaseGroups(groups)
		return err
	}
	return nil
}

// argValue picks the aggregate's argument out of a row; COUNT(*) has none.
func argValue(row *Row, expr AggregateExpr) types.Value {
	if expr.Column < 0 {
		return types.NewNullValue()
	}
	return row.Values[expr.Column]
}

// consumeInput drains the child, folding incremental aggregates on the fly
// and spooling DISTINCT arguments per group. Group output order follows
// first appearance in the input.
func (a *AggregateOperator) consumeInput() (map[string]*aggGroup, []string, error) {
	groups := make(map[string]*aggGroup)
	var order []string

	for {
		row, err := a.child.Next()
		if err != nil {
			return groups, order, fmt.Errorf("error reading from child: %w", err)
		}
		if row == nil {
			break
		}

		key := encodeRowKey(row, a.groupBy)
		group, ok := groups[key]
		if !ok {
			group = a.newGroup(row)
			groups[key] = group
			order = append(order, key)
		}

		for i, expr := range a.aggregates {
			if expr.Distinct {
				continue
			}
			if err := group.funcs[i].Accumulate(argValue(row, expr)); err != nil {
				return groups, order, err
			}
		}
		if a.hasDistinct() {
			if group.part == nil {
				part, err := a.ctx.Spill.Create(fmt.Sprintf("agg-distinct-%d", len(groups)-1))
				if err != nil {
					return groups, order, err
				}
				group.part = part
			}
			spooled := make([]types.Value, len(a.distinctCols))
			for i, col := range a.distinctCols {
				spooled[i] = row.Values[col]
			}
			if err := group.part.Append(spooled); err != nil {
				return groups, order, err
			}
			if a.ctx.Stats != nil {
				a.ctx.Stats.SpilledRows++
			}
		}
	}

	// No grouping columns means one global group, present even when the
	// input was empty.
	if len(a.groupBy) == 0 && len(groups) == 0 {
		key := ""
		groups[key] = a.newGroup(nil)
		order = append(order, key)
	}
	return groups, order, nil
}

func (a *AggregateOperator) newGroup(row *Row) *aggGroup {
	group := &aggGroup{funcs: make([]AggregateFunction, len(a.aggregates))}
	for i, expr := range a.aggregates {
		group.funcs[i] = newAggregateFunction(expr)
	}
	if row != nil {
		group.key = keyOf(row, a.groupBy)
	}
	return group
}

// buildResults finalizes every group into an output row, folding DISTINCT
// aggregates from the group's deduplicated spool, and applies HAVING.
func (a *AggregateOperator) buildResults(groups map[string]*aggGroup, order []string) error {
	for _, key := range order {
		group := groups[key]
		if group.part != nil {
			if err := group.part.Seal(); err != nil {
				return err
			}
			if a.ctx.Stats != nil {
				a.ctx.Stats.SpillPartitions++
			}
			if err := a.foldDistinct(group); err != nil {
				return err
			}
			group.part.Delete()
			group.part = nil
		}

		values := make([]types.Value, 0, len(group.key)+len(group.funcs))
		values = append(values, group.key...)
		for _, fn := range group.funcs {
			values = append(values, fn.Finalize())
		}
		row := &Row{Values: values}

		if a.having != nil {
			ok, err := a.having(row)
			if err != nil {
				return fmt.Errorf("error evaluating HAVING predicate: %w", err)
			}
			if !ok {
				continue
			}
		}
		a.results = append(a.results, row)
	}
	return nil
}

// foldDistinct runs one duplicate-eliminating external sort per DISTINCT
// aggregate over the group's spooled argument values and folds each
// surviving value once.
func (a *AggregateOperator) foldDistinct(group *aggGroup) error {
	distinctIdx := 0
	for i, expr := range a.aggregates {
		if !expr.Distinct {
			continue
		}
		if err := a.foldDistinctOne(group, i, distinctIdx); err != nil {
			return err
		}
		distinctIdx++
	}
	return nil
}

func (a *AggregateOperator) foldDistinctOne(group *aggGroup, aggIdx, spoolCol int) error {
	sorter, err := newExternalSorter(a.ctx, compareByColumns([]int{0}), a.memoryBlocks, true)
	if err != nil {
		return err
	}

	reader, err := group.part.OpenReader()
	if err != nil {
		sorter.cleanup()
		return err
	}
	for {
		values, err := reader.Next()
		if err != nil {
			reader.Close()
			sorter.cleanup()
			return err
		}
		if values == nil {
			break
		}
		v := values[spoolCol]
		if v.IsNull() {
			continue
		}
		if err := sorter.Add(&Row{Values: []types.Value{v}}); err != nil {
			reader.Close()
			sorter.cleanup()
			return err
		}
	}
	reader.Close()

	iter, err := sorter.Finish()
	if err != nil {
		return err
	}
	defer iter.Close()
	for {
		row, err := iter.Next()
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		if err := group.funcs[aggIdx].Accumulate(row.Values[0]); err != nil {
			return err
		}
	}
}

func (a *AggregateOperator) releaseGroups(groups map[string]*aggGroup) {
	for _, group := range groups {
		if group.part != nil {
			group.part.Delete()
			group.part = nil
		}
	}
}

func (a *AggregateOperator) Next() (*Row, error) {
	if !a.opened {
		return nil, fmt.Errorf("aggregate operator not opened")
	}
	if a.resultIdx >= len(a.results) {
		return nil, nil
	}
	row := a.results[a.resultIdx]
	a.resultIdx++
	if a.ctx.Stats != nil {
		a.ctx.Stats.RowsReturned++
	}
	return row, nil
}

func (a *AggregateOperator) Close() error {
	a.results = nil
	a.opened = false
	return a.child.Close()
}
