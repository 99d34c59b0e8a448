package executor

import (
	"testing"

	"github.com/calyxdb/calyx/internal/errors"
	"github.com/calyxdb/calyx/internal/sql/types"
)

func kvRow(k int64, v string) *Row {
	return NewRow(types.NewIntegerValue(k), types.NewTextValue(v))
}

func kvSchema(kname, vname string) *Schema {
	return &Schema{Columns: []Column{
		{Name: kname, Kind: types.KindInt},
		{Name: vname, Kind: types.KindText},
	}}
}

func TestMergeJoinDuplicateKeys(t *testing.T) {
	// L = [(1,a),(1,b),(2,c)], R = [(1,x),(2,y),(2,z)]:
	// key 1 crosses 2x1 pairs, key 2 crosses 1x2 pairs.
	left := []*Row{kvRow(1, "a"), kvRow(1, "b"), kvRow(2, "c")}
	right := []*Row{kvRow(1, "x"), kvRow(2, "y"), kvRow(2, "z")}

	ctx := testContext(t)
	join := NewMergeJoin(
		scanOf(kvSchema("lk", "lv"), left),
		scanOf(kvSchema("rk", "rv"), right),
		[]int{0}, []int{0}, 4,
	)
	got, err := Collect(ctx, join)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	want := []*Row{
		combineRows(kvRow(1, "a"), kvRow(1, "x")),
		combineRows(kvRow(1, "b"), kvRow(1, "x")),
		combineRows(kvRow(2, "c"), kvRow(2, "y")),
		combineRows(kvRow(2, "c"), kvRow(2, "z")),
	}
	assertSameRows(t, want, got)
	// Output must come back ordered by the join key.
	assertSortedBy(t, got, 0)
}

func TestMergeJoinUnsortedInputs(t *testing.T) {
	left := genRows(60, 9)
	right := genRows(25, 9)
	want := expectedEquijoin(left, right, 1, 1)

	ctx := testContext(t)
	// Budget 4: the sort spills runs, and the 8-row group buffer still
	// holds the ~7 left rows sharing each key.
	join := NewMergeJoin(
		scanOf(intSchema("lid", "lk"), left),
		scanOf(intSchema("rid", "rk"), right),
		[]int{1}, []int{1}, 4,
	)
	got, err := Collect(ctx, join)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	assertSameRows(t, want, got)
	assertSortedBy(t, got, 1)
	if live := ctx.Spill.Live(); live != 0 {
		t.Errorf("expected no live partitions after close, got %d", live)
	}
}

func TestMergeJoinPresortedInputsSkipSort(t *testing.T) {
	leftSrc := NewMemorySource(kvSchema("lk", "lv"),
		[]*Row{kvRow(1, "a"), kvRow(2, "b"), kvRow(3, "c")}).WithSortOrder(0)
	rightSrc := NewMemorySource(kvSchema("rk", "rv"),
		[]*Row{kvRow(2, "x"), kvRow(3, "y")}).WithSortOrder(0)

	ctx := testContext(t)
	join := NewMergeJoin(NewScanOperator(leftSrc), NewScanOperator(rightSrc), []int{0}, []int{0}, 3)
	got, err := Collect(ctx, join)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	// Pre-sorted sides go straight to the merge: nothing may spill.
	if ctx.Stats.SpillPartitions != 0 {
		t.Errorf("expected no spills for pre-sorted inputs, got %d", ctx.Stats.SpillPartitions)
	}
}

func TestMergeJoinNullKeysNeverMatch(t *testing.T) {
	nullRow := NewRow(types.NewNullValue(), types.NewTextValue("n"))
	left := []*Row{kvRow(1, "a"), nullRow}
	right := []*Row{kvRow(1, "x"), nullRow}

	ctx := testContext(t)
	join := NewMergeJoin(
		scanOf(kvSchema("lk", "lv"), left),
		scanOf(kvSchema("rk", "rv"), right),
		[]int{0}, []int{0}, 3,
	)
	got, err := Collect(ctx, join)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
}

func TestMergeJoinOversizedGroupFails(t *testing.T) {
	// Budget 3 blocks * 4 rows allows a 4-row equal-key group; 5 rows with
	// the same key must fail rather than emit a truncated cross product.
	var left []*Row
	for i := 0; i < 5; i++ {
		left = append(left, kvRow(7, "l"))
	}
	right := []*Row{kvRow(7, "r")}

	ctx := testContext(t)
	join := NewMergeJoin(
		scanOf(kvSchema("lk", "lv"), left),
		scanOf(kvSchema("rk", "rv"), right),
		[]int{0}, []int{0}, 3,
	)
	_, err := Collect(ctx, join)
	if !errors.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if live := ctx.Spill.Live(); live != 0 {
		t.Errorf("expected no live partitions after error, got %d", live)
	}
}

func TestMergeJoinCrossKindNumericKeys(t *testing.T) {
	schema := &Schema{Columns: []Column{{Name: "k", Kind: types.KindFloat}}}
	left := []*Row{NewRow(types.NewIntegerValue(1)), NewRow(types.NewIntegerValue(2))}
	right := []*Row{NewRow(types.NewFloatValue(1.0)), NewRow(types.NewFloatValue(2.5))}

	ctx := testContext(t)
	join := NewMergeJoin(
		NewValuesOperator(schema, left),
		NewValuesOperator(schema, right),
		[]int{0}, []int{0}, 3,
	)
	got, err := Collect(ctx, join)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	// Integer 1 equals float 1.0 under coercion.
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
}
