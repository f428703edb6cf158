package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	require.NoError(t, m.Set("k", []byte("v"), NoTTL))

	v, ok, err := m.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestMemory_GetAbsent(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	v, ok, err := m.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestMemory_TTLExpiryLazy(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	require.NoError(t, m.Set("k", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, ok, err := m.Get("k")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must read back as absent")
}

func TestMemory_RemoveAndFlush(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	require.NoError(t, m.Set("a", []byte("1"), NoTTL))
	require.NoError(t, m.Set("b", []byte("2"), NoTTL))

	require.NoError(t, m.Remove("a"))
	_, ok, _ := m.Get("a")
	assert.False(t, ok)

	require.NoError(t, m.Flush())
	_, ok, _ = m.Get("b")
	assert.False(t, ok)
}
