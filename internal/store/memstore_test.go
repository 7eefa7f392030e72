package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStoreGetPut(t *testing.T) {
	s := NewMemStore()
	_, ok, err := s.Get(1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(1, []byte("hello")))
	data, ok, err := s.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), data)
}

func TestMemStoreGeneratorIsSorted(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Put(3, []byte("c")))
	require.NoError(t, s.Put(1, []byte("a")))
	require.NoError(t, s.Put(2, []byte("b")))

	records, err := s.Generator()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, uint64(1), records[0].ID)
	require.Equal(t, uint64(2), records[1].ID)
	require.Equal(t, uint64(3), records[2].ID)
}

func TestLRUBlockStoreEvicts(t *testing.T) {
	backing := NewMemStore()
	cached := NewLRUBlockStore(backing, 2)

	require.NoError(t, cached.Put(1, []byte("a")))
	require.NoError(t, cached.Put(2, []byte("b")))
	require.NoError(t, cached.Put(3, []byte("c"))) // evicts 1 from the cache, not from backing

	data, ok, err := backing.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("a"), data)

	data, ok, err = cached.Get(1)
	require.NoError(t, err)
	require.True(t, ok) // falls through to backing on a cache miss
	require.Equal(t, []byte("a"), data)
}
