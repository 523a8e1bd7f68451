package models

import (
	"database/sql/driver"
	"sort"

	"github.com/lib/pq"
)

// Int64Set is a postgres bigint[] column holding product ids
type Int64Set []int64

// Scan implements sql.Scanner
func (s *Int64Set) Scan(src interface{}) error {
	var arr pq.Int64Array
	if err := arr.Scan(src); err != nil {
		return err
	}
	*s = Int64Set(arr)
	return nil
}

// Value implements driver.Valuer
func (s Int64Set) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	return pq.Int64Array(s).Value()
}

// Normalized returns a sorted, de-duplicated copy
func (s Int64Set) Normalized() []int64 {
	out := make([]int64, 0, len(s))
	seen := make(map[int64]struct{}, len(s))
	for _, id := range s {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
