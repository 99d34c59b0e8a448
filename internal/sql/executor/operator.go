// Package executor implements the memory-bounded physical operators of the
// engine: scans, block-nested-loop join, sort-merge join, external hash
// join, and grouped aggregation. Execution is pull-based and single
// threaded: each operator produces a lazy, single-pass sequence of rows, and
// a parent pulls from its children one row at a time.
package executor

import (
	"fmt"

	"github.com/calyxdb/calyx/internal/config"
	"github.com/calyxdb/calyx/internal/log"
	"github.com/calyxdb/calyx/internal/sql/types"
	"github.com/calyxdb/calyx/internal/storage/spill"
)

// Operator is the base interface for all execution operators.
type Operator interface {
	// Open initializes the operator.
	Open(ctx *ExecContext) error
	// Next returns the next row or nil when done.
	Next() (*Row, error)
	// Close cleans up resources. It must release every temporary partition
	// on every exit path, including early abandonment, and is idempotent.
	Close() error
	// Schema returns the output schema.
	Schema() *Schema
}

// Row represents a row of data.
type Row struct {
	Values []types.Value
}

// NewRow builds a row from the given values.
func NewRow(values ...types.Value) *Row {
	return &Row{Values: values}
}

// Schema represents the schema of a result set.
type Schema struct {
	Columns []Column
}

// Column represents a column in a schema.
type Column struct {
	Name string
	Kind types.Kind
}

// Predicate evaluates a boolean condition over a row. NULL results must be
// mapped to false by the predicate builder (three-valued logic).
type Predicate func(row *Row) (bool, error)

// Projection computes one output value from a row.
type Projection func(row *Row) (types.Value, error)

// ExecStats collects execution statistics.
type ExecStats struct {
	RowsRead        int64
	RowsReturned    int64
	SpilledRows     int64
	SpillPartitions int64
}

// ExecContext provides context for query execution: the memory model, the
// temporary partition store, and logging. One context serves one statement.
type ExecContext struct {
	// Config supplies BlockCapacity and the default memory budget.
	Config *config.Config
	// Spill is the temporary partition store for the statement.
	Spill *spill.Store
	// Logger receives operator debug events.
	Logger log.Logger
	// Stats collects statement-wide counters.
	Stats *ExecStats

	ownsSpill bool
}

// NewExecContext builds a context for one statement, creating a
// statement-scoped spill store. Close reclaims all temporary storage.
func NewExecContext(cfg *config.Config) (*ExecContext, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := log.Default()
	store, err := spill.NewStore(cfg.TempDir, spill.Options{
		Compression: cfg.Compression,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create spill store: %w", err)
	}
	return &ExecContext{
		Config:    cfg,
		Spill:     store,
		Logger:    logger,
		Stats:     &ExecStats{},
		ownsSpill: true,
	}, nil
}

// Close reclaims the statement's temporary storage.
func (c *ExecContext) Close() error {
	if c.ownsSpill && c.Spill != nil {
		return c.Spill.Close()
	}
	return nil
}

func (c *ExecContext) blockCapacity() int {
	if c == nil || c.Config == nil || c.Config.BlockCapacity < 1 {
		return config.DefaultBlockCapacity
	}
	return c.Config.BlockCapacity
}

func (c *ExecContext) logger() log.Logger {
	if c == nil || c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}

// baseOperator provides common functionality for operators.
type baseOperator struct {
	schema *Schema
	ctx    *ExecContext
}

func (o *baseOperator) Schema() *Schema {
	return o.schema
}

// combineRows concatenates a left and a right row.
func combineRows(left, right *Row) *Row {
	values := make([]types.Value, len(left.Values)+len(right.Values))
	copy(values, left.Values)
	copy(values[len(left.Values):], right.Values)
	return &Row{Values: values}
}

// combineSchemas concatenates the column lists of two schemas.
func combineSchemas(left, right *Schema) *Schema {
	columns := make([]Column, 0, len(left.Columns)+len(right.Columns))
	columns = append(columns, left.Columns...)
	columns = append(columns, right.Columns...)
	return &Schema{Columns: columns}
}

// Collect opens op, drains it, and closes it, returning every produced row.
func Collect(ctx *ExecContext, op Operator) ([]*Row, error) {
	if err := op.Open(ctx); err != nil {
		return nil, err
	}
	defer op.Close()

	var rows []*Row
	for {
		row, err := op.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return rows, nil
		}
		rows = append(rows, row)
	}
}
