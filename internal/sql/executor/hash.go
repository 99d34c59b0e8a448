package executor

import (
	"hash/fnv"

	"github.com/calyxdb/calyx/internal/sql/types"
)

// keyOf projects a row onto the given key columns.
func keyOf(row *Row, cols []int) []types.Value {
	key := make([]types.Value, len(cols))
	for i, c := range cols {
		key[i] = row.Values[c]
	}
	return key
}

// hasNullKey reports whether any key column is NULL. Null join keys never
// match under three-valued logic and are excluded before hashing or merging.
func hasNullKey(row *Row, cols []int) bool {
	for _, c := range cols {
		if row.Values[c].IsNull() {
			return true
		}
	}
	return false
}

// encodeRowKey returns a canonical byte-string key for the given columns,
// usable as a map key. Equal keys encode identically across numeric kinds.
func encodeRowKey(row *Row, cols []int) string {
	dst := make([]byte, 0, 16*len(cols))
	for _, c := range cols {
		dst = types.AppendEncoded(dst, row.Values[c])
	}
	return string(dst)
}

// hashRowKey hashes the key columns of a row, salted with the hash join
// recursion depth so each partitioning level redistributes the rows of a
// single parent bucket. The salt and encoding must be identical between the
// two sides of a recursion branch; equal keys landing in different buckets
// would silently lose matches.
func hashRowKey(row *Row, cols []int, depth int) uint64 {
	hasher := fnv.New64a()
	hasher.Write([]byte{byte(depth)})
	var scratch [16]byte
	for _, c := range cols {
		b := types.AppendEncoded(scratch[:0], row.Values[c])
		hasher.Write(b)
	}
	return hasher.Sum64()
}

// compareKeys compares the key projections of two rows column by column.
func compareKeys(a *Row, acols []int, b *Row, bcols []int) (int, error) {
	for i := range acols {
		cmp, err := types.Compare(a.Values[acols[i]], b.Values[bcols[i]])
		if err != nil {
			return 0, err
		}
		if cmp != 0 {
			return cmp, nil
		}
	}
	return 0, nil
}
