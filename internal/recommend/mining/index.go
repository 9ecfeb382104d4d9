// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package mining

import "slices"

// itemIndex interns item identifiers as dense ints whose order matches the
// lexicographic order of the identifiers.
type itemIndex struct {
	ids   map[string]int
	names []string
}

func newItemIndex(transactions [][]string) *itemIndex {
	seen := make(map[string]struct{})
	for _, tx := range transactions {
		for _, item := range tx {
			seen[item] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for item := range seen {
		names = append(names, item)
	}
	slices.Sort(names)

	ids := make(map[string]int, len(names))
	for i, name := range names {
		ids[name] = i
	}
	return &itemIndex{ids: ids, names: names}
}

func (x *itemIndex) size() int {
	return len(x.names)
}

// encode maps each transaction to its sorted, de-duplicated item indices.
func (x *itemIndex) encode(transactions [][]string) [][]int {
	out := make([][]int, len(transactions))
	for i, tx := range transactions {
		enc := make([]int, 0, len(tx))
		for _, item := range tx {
			enc = append(enc, x.ids[item])
		}
		slices.Sort(enc)
		out[i] = slices.Compact(enc)
	}
	return out
}

func (x *itemIndex) decode(items []int) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = x.names[item]
	}
	return out
}
