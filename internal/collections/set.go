package collections

import "github.com/maxpoletaev/treenet/internal/generic"

// Set is an unordered collection of unique values. It is not safe for
// concurrent use; callers are expected to guard it themselves.
type Set[T comparable] map[T]struct{}

func New[T comparable](sl ...T) Set[T] {
	set := make(Set[T], len(sl))
	for _, val := range sl {
		set.Add(val)
	}

	return set
}

func (s Set[T]) Add(val T) {
	s[val] = struct{}{}
}

func (s Set[T]) Remove(val T) bool {
	if _, ok := s[val]; !ok {
		return false
	}

	delete(s, val)

	return true
}

func (s Set[T]) Has(val T) bool {
	_, ok := s[val]
	return ok
}

// Merge adds all values of the other set into s.
func (s Set[T]) Merge(other Set[T]) {
	generic.MapCopy(other, s)
}

func (s Set[T]) Values() []T {
	return generic.MapKeys(s)
}
