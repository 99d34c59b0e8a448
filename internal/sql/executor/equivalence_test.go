package executor

import (
	"testing"
)

// TestJoinAlgorithmEquivalence runs the same equijoin through all three
// join families and checks that they produce the same multiset of rows.
func TestJoinAlgorithmEquivalence(t *testing.T) {
	left := genRows(90, 11)
	right := genRows(35, 11)
	want := expectedEquijoin(left, right, 1, 1)

	leftSchema, rightSchema := intSchema("lid", "lk"), intSchema("rid", "rk")
	algorithms := map[string]func() Operator{
		"block nested loop": func() Operator {
			return NewBlockNestedLoopJoin(
				scanOf(leftSchema, left), scanOf(rightSchema, right),
				columnsEqual(1, 3), 3)
		},
		// The merge join needs enough budget to buffer the up-to-9-row
		// equal-key groups of the left side.
		"sort merge": func() Operator {
			return NewMergeJoin(
				scanOf(leftSchema, left), scanOf(rightSchema, right),
				[]int{1}, []int{1}, 5)
		},
		"hash": func() Operator {
			return NewHashJoin(
				scanOf(leftSchema, left), scanOf(rightSchema, right),
				[]int{1}, []int{1}, 3)
		},
	}

	for name, build := range algorithms {
		t.Run(name, func(t *testing.T) {
			ctx := testContext(t)
			got, err := Collect(ctx, build())
			if err != nil {
				t.Fatalf("%s join failed: %v", name, err)
			}
			assertSameRows(t, want, got)
			if live := ctx.Spill.Live(); live != 0 {
				t.Errorf("%s join leaked %d partitions", name, live)
			}
		})
	}
}

// TestComposedPipeline exercises a realistic operator tree: join two
// relations, aggregate the result, sort it, and take the top rows.
func TestComposedPipeline(t *testing.T) {
	ctx := testContext(t)

	orders := genRows(100, 10)  // (order_id, customer_id)
	customers := genRows(10, 10) // (customer_id, region)

	join := NewHashJoin(
		scanOf(intSchema("order_id", "customer_id"), orders),
		scanOf(intSchema("customer_id", "region"), customers),
		[]int{1}, []int{0}, 4,
	)
	agg := NewAggregateOperator(
		join,
		[]int{1},
		[]AggregateExpr{{Type: AggCount, Column: -1, Alias: "orders"}},
		nil, 4,
	)
	sorted := NewSortOperator(agg, []int{0}, 4)
	top := NewLimitOperator(sorted, 3, 0)

	got, err := Collect(ctx, top)
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	// Each customer id 0..9 owns exactly 10 of the 100 orders.
	vals := intsOf(t, got)
	for i, row := range vals {
		if row[0] != int64(i) || row[1] != 10 {
			t.Errorf("row %d: expected (%d, 10), got %v", i, i, row)
		}
	}
	if live := ctx.Spill.Live(); live != 0 {
		t.Errorf("pipeline leaked %d partitions", live)
	}
}
