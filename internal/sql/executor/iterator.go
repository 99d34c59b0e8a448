package executor

// RowIterator is a simplified row stream used inside operators.
type RowIterator interface {
	Next() (*Row, error)
	Close() error
}

// MemoryIterator iterates over rows held in memory.
type MemoryIterator struct {
	rows     []*Row
	position int
}

// NewMemoryIterator creates a new memory iterator.
func NewMemoryIterator(rows []*Row) *MemoryIterator {
	return &MemoryIterator{rows: rows}
}

func (m *MemoryIterator) Next() (*Row, error) {
	if m.position >= len(m.rows) {
		return nil, nil
	}
	row := m.rows[m.position]
	m.position++
	return row, nil
}

func (m *MemoryIterator) Close() error {
	m.rows = nil
	return nil
}

// operatorIterator wraps an Operator as a RowIterator. Closing the iterator
// does not close the operator; the operator's owner does that.
type operatorIterator struct {
	op Operator
}

func (o *operatorIterator) Next() (*Row, error) {
	return o.op.Next()
}

func (o *operatorIterator) Close() error {
	return nil
}

// BufferedIterator wraps a RowIterator to support one-row lookahead.
type BufferedIterator struct {
	base      RowIterator
	buffer    *Row
	hasBuffer bool
}

// NewBufferedIterator creates a new buffered iterator.
func NewBufferedIterator(base RowIterator) *BufferedIterator {
	return &BufferedIterator{base: base}
}

// Next returns the next row.
func (b *BufferedIterator) Next() (*Row, error) {
	if b.hasBuffer {
		row := b.buffer
		b.buffer = nil
		b.hasBuffer = false
		return row, nil
	}
	return b.base.Next()
}

// Peek returns the next row without consuming it.
func (b *BufferedIterator) Peek() (*Row, error) {
	if b.hasBuffer {
		return b.buffer, nil
	}
	row, err := b.base.Next()
	if err != nil {
		return nil, err
	}
	if row != nil {
		b.buffer = row
		b.hasBuffer = true
	}
	return row, nil
}

// Close closes the underlying iterator.
func (b *BufferedIterator) Close() error {
	return b.base.Close()
}

// PeekableIterator is an iterator that supports one-row lookahead.
type PeekableIterator interface {
	RowIterator
	Peek() (*Row, error)
}

// ensurePeekable wraps an iterator to make it peekable if needed.
func ensurePeekable(iter RowIterator) PeekableIterator {
	if peekable, ok := iter.(PeekableIterator); ok {
		return peekable
	}
	return NewBufferedIterator(iter)
}

// chunkReader groups rows from an iterator into chunks of at most maxRows,
// the row-count equivalent of a fixed number of memory blocks. The returned
// chunk stays valid until the following NextChunk call.
type chunkReader struct {
	iter    RowIterator
	maxRows int
	chunk   []*Row
}

func newChunkReader(iter RowIterator, maxRows int) *chunkReader {
	return &chunkReader{iter: iter, maxRows: maxRows}
}

// NextChunk returns the next chunk of rows, or nil at end of input.
func (c *chunkReader) NextChunk() ([]*Row, error) {
	c.chunk = c.chunk[:0]
	for len(c.chunk) < c.maxRows {
		row, err := c.iter.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		c.chunk = append(c.chunk, row)
	}
	if len(c.chunk) == 0 {
		return nil, nil
	}
	return c.chunk, nil
}
