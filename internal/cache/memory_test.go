package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFreshStaleAndTooStale(t *testing.T) {
	mem, err := NewMemory(1<<20, 10*time.Minute)
	require.NoError(t, err)
	defer mem.Close()

	clock := &fakeClock{now: time.Now()}
	mem.now = clock.Now

	require.NoError(t, mem.Set("price:EDU", []byte(`{"usd":"0.14"}`), 5*time.Minute))

	res, err := mem.Get("price:EDU", time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Hit)
	assert.False(t, res.Stale)
	assert.JSONEq(t, `{"usd":"0.14"}`, string(res.Value))

	clock.Advance(5*time.Minute + 30*time.Second)
	res, err = mem.Get("price:EDU", time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.False(t, res.TooStale)

	clock.Advance(time.Minute)
	res, err = mem.Get("price:EDU", time.Minute)
	require.NoError(t, err)
	assert.True(t, res.TooStale)
}

func TestMemoryMiss(t *testing.T) {
	mem, err := NewMemory(0, 0)
	require.NoError(t, err)
	defer mem.Close()

	res, err := mem.Get("missing", time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Hit)
	assert.NoError(t, mem.Prune())
}
