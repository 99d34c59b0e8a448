package executor

import (
	"github.com/calyxdb/calyx/internal/errors"
)

// Minimum budgets for each operator family: a join needs one block for the
// inner stream and one for output besides the outer buffer; a merge needs
// at least two input runs plus an output block.
const (
	minJoinBlocks = 3
	minSortBlocks = 3
)

// checkBudget validates an operator's memory budget at Open time. A budget
// too small to make progress is a configuration error: retrying with the
// same budget cannot succeed.
func checkBudget(op string, memoryBlocks, minimum int) error {
	if memoryBlocks < minimum {
		return errors.ConfigurationErrorf(
			"%s needs at least %d memory blocks, got %d", op, minimum, memoryBlocks)
	}
	return nil
}
