package locator

import "sync"

// Holder lazily builds one value and hands the same value back on every
// later call. It is owned by the composition root instead of living in a
// package-level variable.
type Holder[T any] struct {
	mu    sync.Mutex
	value T
	built bool
}

// Get returns the held value, calling build only if nothing was built yet.
// Arguments captured by later build funcs are ignored once a value exists.
// A failed build leaves the holder empty.
func (h *Holder[T]) Get(build func() (T, error)) (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.built {
		return h.value, nil
	}
	v, err := build()
	if err != nil {
		var zero T
		return zero, err
	}
	h.value = v
	h.built = true
	return v, nil
}
