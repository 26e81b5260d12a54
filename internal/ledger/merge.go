package ledger

import "sort"

// KeyFunc extracts the merge key of a row.
type KeyFunc func(Row) string

// ByDate keys rows by their calendar day.
func ByDate(r Row) string { return r.Date.Key() }

// Merge upserts incoming into existing keyed by date. See MergeBy.
func Merge(existing, incoming []Row) []Row {
	return MergeBy(existing, incoming, ByDate)
}

// MergeBy replaces every existing row whose key occurs in incoming with the
// incoming rows for that key, keeps the others, and returns the result sorted
// by key descending. Replacement is per key value, not per row: three stored
// rows for a day are all dropped when a single new row for that day arrives.
// The sort is stable, so rows sharing a key keep their relative order.
func MergeBy(existing, incoming []Row, key KeyFunc) []Row {
	touched := make(map[string]struct{}, len(incoming))
	for _, r := range incoming {
		touched[key(r)] = struct{}{}
	}

	merged := make([]Row, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if _, ok := touched[key(r)]; ok {
			continue
		}
		merged = append(merged, r)
	}
	merged = append(merged, incoming...)

	SortDescending(merged, key)
	return merged
}

// SortDescending orders rows by key, most recent first, keeping ties in place.
func SortDescending(rows []Row, key KeyFunc) {
	sort.SliceStable(rows, func(i, j int) bool {
		return key(rows[i]) > key(rows[j])
	})
}
