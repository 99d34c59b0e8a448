package executor

import (
	"fmt"
	"testing"

	"github.com/calyxdb/calyx/internal/sql/types"
)

func TestHashJoinBudgetIndependence(t *testing.T) {
	left := genRows(120, 13)
	right := genRows(45, 13)
	want := expectedEquijoin(left, right, 1, 1)

	// Budget 3 with 4-row blocks forces repeated repartitioning; budget 16
	// probes nearly everything at depth 0. Results must be identical.
	for _, budget := range []int{3, 4, 16} {
		t.Run(fmt.Sprintf("budget=%d", budget), func(t *testing.T) {
			ctx := testContext(t)
			join := NewHashJoin(
				scanOf(intSchema("lid", "lk"), left),
				scanOf(intSchema("rid", "rk"), right),
				[]int{1}, []int{1}, budget,
			)
			got, err := Collect(ctx, join)
			if err != nil {
				t.Fatalf("join failed: %v", err)
			}
			assertSameRows(t, want, got)
			if live := ctx.Spill.Live(); live != 0 {
				t.Errorf("expected no live partitions after close, got %d", live)
			}
		})
	}
}

func TestHashJoinDegenerateSingleKey(t *testing.T) {
	// Every row shares one key: no amount of rehashing can split the
	// bucket, so the join must fall back to the nested-loop pass and
	// terminate with the full k*m cross of the key group.
	var left, right []*Row
	for i := 0; i < 30; i++ {
		left = append(left, NewRow(types.NewIntegerValue(int64(i)), types.NewIntegerValue(9)))
	}
	for i := 0; i < 20; i++ {
		right = append(right, NewRow(types.NewIntegerValue(int64(i)), types.NewIntegerValue(9)))
	}

	ctx := testContext(t)
	join := NewHashJoin(
		scanOf(intSchema("lid", "lk"), left),
		scanOf(intSchema("rid", "rk"), right),
		[]int{1}, []int{1}, 3,
	)
	got, err := Collect(ctx, join)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if len(got) != 30*20 {
		t.Fatalf("expected %d rows, got %d", 30*20, len(got))
	}
	if live := ctx.Spill.Live(); live != 0 {
		t.Errorf("expected no live partitions after close, got %d", live)
	}
}

func TestHashJoinNullKeysDropped(t *testing.T) {
	left := []*Row{
		NewRow(types.NewIntegerValue(1), types.NewIntegerValue(1)),
		NewRow(types.NewIntegerValue(2), types.NewNullValue()),
	}
	right := []*Row{
		NewRow(types.NewIntegerValue(3), types.NewIntegerValue(1)),
		NewRow(types.NewIntegerValue(4), types.NewNullValue()),
	}

	ctx := testContext(t)
	join := NewHashJoin(
		scanOf(intSchema("lid", "lk"), left),
		scanOf(intSchema("rid", "rk"), right),
		[]int{1}, []int{1}, 3,
	)
	got, err := Collect(ctx, join)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
}

func TestHashJoinCrossKindNumericKeys(t *testing.T) {
	schema := &Schema{Columns: []Column{{Name: "k", Kind: types.KindFloat}}}
	left := []*Row{NewRow(types.NewIntegerValue(1))}
	right := []*Row{NewRow(types.NewFloatValue(1.0))}

	ctx := testContext(t)
	join := NewHashJoin(
		NewValuesOperator(schema, left),
		NewValuesOperator(schema, right),
		[]int{0}, []int{0}, 3,
	)
	got, err := Collect(ctx, join)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	// Integer 1 and float 1.0 must hash to the same bucket and match.
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
}

func TestHashJoinColumnOrderPreserved(t *testing.T) {
	// Make the right side smaller so it becomes the build side; left
	// columns must still come first in the output.
	left := []*Row{
		combineRows(kvRow(1, "left-a"), kvRow(0, "pad")),
		combineRows(kvRow(2, "left-b"), kvRow(0, "pad")),
	}
	right := []*Row{kvRow(1, "right-x")}

	leftSchema := combineSchemas(kvSchema("lk", "lv"), kvSchema("p1", "p2"))
	ctx := testContext(t)
	join := NewHashJoin(
		NewValuesOperator(leftSchema, left),
		NewValuesOperator(kvSchema("rk", "rv"), right),
		[]int{0}, []int{0}, 3,
	)
	got, err := Collect(ctx, join)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	lv, err := got[0].Values[1].AsString()
	if err != nil || lv != "left-a" {
		t.Errorf("expected left columns first, got %v", got[0].Values)
	}
	rv, err := got[0].Values[5].AsString()
	if err != nil || rv != "right-x" {
		t.Errorf("expected right columns last, got %v", got[0].Values)
	}
}

func TestHashJoinAbandonedEarly(t *testing.T) {
	ctx := testContext(t)
	join := NewHashJoin(
		scanOf(intSchema("lid", "lk"), genRows(80, 5)),
		scanOf(intSchema("rid", "rk"), genRows(80, 5)),
		[]int{1}, []int{1}, 3,
	)
	if err := join.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := join.Next(); err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if err := join.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if live := ctx.Spill.Live(); live != 0 {
		t.Errorf("expected no live partitions after abandon, got %d", live)
	}
}
