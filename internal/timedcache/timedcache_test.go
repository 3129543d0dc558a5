package timedcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetGet(t *testing.T) {
	c := New[int](time.Minute, 0)

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.Set("a", 2, time.Minute)
	v, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v, "Set should overwrite the previous entry")

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := New[string](time.Minute, 0)

	c.Set("short", "x", 20*time.Millisecond)
	c.Set("long", "y", time.Minute)

	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok, "expired entry should be a miss")
	v, ok := c.Get("long")
	assert.True(t, ok)
	assert.Equal(t, "y", v)
}

func TestCache_RemoveAndClear(t *testing.T) {
	c := New[int](time.Minute, 0)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Remove("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_JanitorSweeps(t *testing.T) {
	c := New[int](time.Minute, 10*time.Millisecond)
	c.Set("a", 1, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)
}
