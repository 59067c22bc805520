package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCache_SetGet(t *testing.T) {
	t.Parallel()
	c := New(time.Minute)

	_, ok := c.Get("k")
	require.False(t, ok)

	c.Set("k", 42)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestCache_Expiry(t *testing.T) {
	t.Parallel()
	c := New(10 * time.Millisecond)

	c.Set("k", "v")
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("k")
	require.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	t.Parallel()
	c := New(time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Invalidate("a")
	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("b")
	require.True(t, ok)

	c.Clear()
	_, ok = c.Get("b")
	require.False(t, ok)
}
