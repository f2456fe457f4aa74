package generic

import (
	"math/rand"
	"sort"

	"golang.org/x/exp/constraints"
)

// SortBy sorts the slice in place by the key extracted from each element.
func SortBy[T any, K constraints.Ordered](s []T, key func(T) K) {
	sort.Slice(s, func(i, j int) bool {
		return key(s[i]) < key(s[j])
	})
}

// Pick returns a uniformly chosen element of the slice. The second return
// value is false if the slice is empty.
func Pick[T any](rnd *rand.Rand, s []T) (T, bool) {
	var zero T

	if len(s) == 0 {
		return zero, false
	}

	return s[rnd.Intn(len(s))], true
}

// Without returns a copy of the slice with all occurrences of val removed.
func Without[T comparable](s []T, val T) []T {
	res := make([]T, 0, len(s))

	for _, v := range s {
		if v != val {
			res = append(res, v)
		}
	}

	return res
}
