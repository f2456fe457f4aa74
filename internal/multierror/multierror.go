package multierror

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Error combines errors produced by a fan-out operation, keyed by the target
// each error belongs to. It is safe to add errors from multiple goroutines.
type Error[T comparable] struct {
	mu     sync.Mutex
	errors map[T]error
}

// New creates a new Error.
func New[T comparable]() *Error[T] {
	return &Error[T]{
		errors: make(map[T]error),
	}
}

// Error returns the combined messages sorted by key.
func (m *Error[T]) Error() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := make([]string, 0, len(m.errors))
	for k, v := range m.errors {
		parts = append(parts, fmt.Sprintf("%v:%s", k, v))
	}

	sort.Strings(parts)

	return strings.Join(parts, "; ")
}

// Unwrap returns the collected errors so that errors.Is and errors.As can
// look through the combined error.
func (m *Error[T]) Unwrap() []error {
	m.mu.Lock()
	defer m.mu.Unlock()

	errs := make([]error, 0, len(m.errors))
	for _, v := range m.errors {
		errs = append(errs, v)
	}

	return errs
}

// Len returns the number of errors.
func (m *Error[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.errors)
}

// Add adds an error for the key. Nil errors are ignored.
func (m *Error[T]) Add(key T, err error) {
	if err == nil {
		return
	}

	m.mu.Lock()
	m.errors[key] = err
	m.mu.Unlock()
}

// Combined returns the Error if it contains any errors, nil otherwise.
func (m *Error[T]) Combined() error {
	if m.Len() == 0 {
		return nil
	}

	return m
}
