package locator

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct{ name string }

func TestHolder_ReturnsSameInstance(t *testing.T) {
	var h Holder[*widget]

	first, err := h.Get(func() (*widget, error) { return &widget{name: "first"}, nil })
	require.NoError(t, err)

	second, err := h.Get(func() (*widget, error) { return &widget{name: "second"}, nil })
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "first", second.name)
}

func TestHolder_FailedBuildIsNotCached(t *testing.T) {
	var h Holder[*widget]

	_, err := h.Get(func() (*widget, error) { return nil, errors.New("no platform") })
	require.Error(t, err)

	w, err := h.Get(func() (*widget, error) { return &widget{name: "retry"}, nil })
	require.NoError(t, err)
	assert.Equal(t, "retry", w.name)
}

func TestHolder_ConcurrentGetBuildsOnce(t *testing.T) {
	var (
		h     Holder[*widget]
		mu    sync.Mutex
		calls int
		wg    sync.WaitGroup
	)
	results := make([]*widget, 16)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := h.Get(func() (*widget, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				return &widget{}, nil
			})
			assert.NoError(t, err)
			results[i] = w
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	for _, w := range results {
		assert.Same(t, results[0], w)
	}
}
