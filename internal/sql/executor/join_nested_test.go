package executor

import (
	"fmt"
	"testing"

	"github.com/calyxdb/calyx/internal/errors"
	"github.com/calyxdb/calyx/internal/sql/types"
)

// expectedEquijoin computes the reference result of an equijoin by brute
// force over the two inputs.
func expectedEquijoin(left, right []*Row, leftKey, rightKey int) []*Row {
	var out []*Row
	for _, l := range left {
		for _, r := range right {
			lv, rv := l.Values[leftKey], r.Values[rightKey]
			if lv.IsNull() || rv.IsNull() {
				continue
			}
			if cmp, err := types.Compare(lv, rv); err == nil && cmp == 0 {
				out = append(out, combineRows(l, r))
			}
		}
	}
	return out
}

func TestBlockNestedLoopJoin(t *testing.T) {
	outer := genRows(50, 7)  // (id, id%7)
	inner := genRows(20, 7)  // (id, id%7)
	want := expectedEquijoin(outer, inner, 1, 1)

	// The result must not depend on how many outer buffers the budget
	// allows: 3 blocks buffers 4 outer rows per pass, 16 buffers all 50.
	for _, budget := range []int{3, 4, 16} {
		t.Run(fmt.Sprintf("budget=%d", budget), func(t *testing.T) {
			ctx := testContext(t)
			join := NewBlockNestedLoopJoin(
				scanOf(intSchema("oid", "ok"), outer),
				scanOf(intSchema("iid", "ik"), inner),
				columnsEqual(1, 3),
				budget,
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

func TestBlockNestedLoopJoinCrossProduct(t *testing.T) {
	ctx := testContext(t)
	join := NewBlockNestedLoopJoin(
		scanOf(intSchema("a"), intRows([]int64{1}, []int64{2}, []int64{3})),
		scanOf(intSchema("b"), intRows([]int64{10}, []int64{20})),
		nil,
		3,
	)
	got, err := Collect(ctx, join)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if len(got) != 6 {
		t.Errorf("expected 6 rows in cross product, got %d", len(got))
	}
}

func TestBlockNestedLoopJoinArbitraryPredicate(t *testing.T) {
	ctx := testContext(t)
	lessThan := func(row *Row) (bool, error) {
		a, _ := row.Values[0].AsInt()
		b, _ := row.Values[1].AsInt()
		return a < b, nil
	}
	join := NewBlockNestedLoopJoin(
		scanOf(intSchema("a"), intRows([]int64{1}, []int64{5})),
		scanOf(intSchema("b"), intRows([]int64{2}, []int64{6})),
		lessThan,
		3,
	)
	got, err := Collect(ctx, join)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	// (1,2), (1,6), (5,6) satisfy a < b.
	if len(got) != 3 {
		t.Errorf("expected 3 rows, got %d", len(got))
	}
}

func TestBlockNestedLoopJoinEmptyInputs(t *testing.T) {
	for _, tt := range []struct {
		name         string
		outer, inner []*Row
	}{
		{"empty outer", nil, genRows(5, 2)},
		{"empty inner", genRows(5, 2), nil},
		{"both empty", nil, nil},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			join := NewBlockNestedLoopJoin(
				scanOf(intSchema("a", "b"), tt.outer),
				scanOf(intSchema("c", "d"), tt.inner),
				nil,
				3,
			)
			got, err := Collect(ctx, join)
			if err != nil {
				t.Fatalf("join failed: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("expected empty result, got %d rows", len(got))
			}
		})
	}
}

func TestBlockNestedLoopJoinBudgetTooSmall(t *testing.T) {
	ctx := testContext(t)
	join := NewBlockNestedLoopJoin(
		scanOf(intSchema("a"), nil),
		scanOf(intSchema("b"), nil),
		nil,
		2,
	)
	_, err := Collect(ctx, join)
	if !errors.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBlockNestedLoopJoinAbandonedEarly(t *testing.T) {
	ctx := testContext(t)
	join := NewBlockNestedLoopJoin(
		scanOf(intSchema("a", "b"), genRows(40, 2)),
		scanOf(intSchema("c", "d"), genRows(40, 2)),
		nil,
		3,
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
	if err := join.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if live := ctx.Spill.Live(); live != 0 {
		t.Errorf("expected no live partitions after abandon, got %d", live)
	}
}
