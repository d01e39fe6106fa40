package fnkit

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	assert.Nil(t, Chunk([]int{1, 2, 3}, 0))
	assert.Len(t, Chunk([]int{1, 2, 3, 4, 5, 6, 7}, 3), 3)
	chunks := Chunk([]int{1, 2, 3, 4, 5, 6, 7}, 3)
	assert.Equal(t, []int{1, 2, 3}, chunks[0])
	assert.Equal(t, []int{7}, chunks[2])
	assert.Empty(t, Chunk([]int{}, 3))
}

func TestUniquePreservesFirstSeenOrder(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Unique([]string{"a", "b", "a", "c", "b"}))
}

func TestMapAndFilter(t *testing.T) {
	doubled := Map([]int{1, 2, 3}, func(v int) int { return v * 2 })
	assert.Equal(t, []int{2, 4, 6}, doubled)

	evens := Filter([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 0 })
	assert.Equal(t, []int{2, 4}, evens)
}

func TestGroupBy(t *testing.T) {
	groups := GroupBy([]string{"aa", "ab", "ba"}, func(s string) byte { return s[0] })
	assert.Equal(t, []string{"aa", "ab"}, groups['a'])
	assert.Equal(t, []string{"ba"}, groups['b'])
}

func TestParMapPreservesOrder(t *testing.T) {
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}
	out, err := ParMap(context.Background(), items, 8, func(_ context.Context, v int) (string, error) {
		return strconv.Itoa(v), nil
	})
	require.NoError(t, err)
	require.Len(t, out, 50)
	for i, s := range out {
		assert.Equal(t, strconv.Itoa(i), s)
	}
}

func TestParMapBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	items := make([]int, 30)
	_, err := ParMap(context.Background(), items, 4, func(context.Context, int) (int, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		return 0, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(4))
}

func TestParMapPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ParMap(context.Background(), []int{1, 2, 3}, 2, func(_ context.Context, v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	got, err := Do(context.Background(), 5, nil, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	attempts := 0
	_, err := Do(context.Background(), 5, func(err error) bool { return !errors.Is(err, permanent) },
		func(context.Context) (int, error) {
			attempts++
			return 0, permanent
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), 3, nil, func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("always failing")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestResultCombinators(t *testing.T) {
	ok := Ok(2)
	assert.True(t, ok.IsOk())
	assert.Equal(t, 2, ok.UnwrapOr(9))

	errRes := Err[int](errors.New("nope"))
	assert.True(t, errRes.IsErr())
	assert.Equal(t, 9, errRes.UnwrapOr(9))

	mapped := MapResult(ok, func(v int) string { return strconv.Itoa(v * 10) })
	v, err := mapped.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "20", v)

	collected := Collect([]Result[int]{Ok(1), Ok(2)})
	vs, err := collected.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, vs)

	bad := Collect([]Result[int]{Ok(1), Err[int](errors.New("x"))})
	assert.True(t, bad.IsErr())
}
