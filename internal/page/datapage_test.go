package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intCmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func TestLeafRoundTrip(t *testing.T) {
	leaf := &DataPage[int64, string]{ID: 7, IsLeaf: true}
	leaf.UpsertEntry(10, Some("ten"), intCmp)
	leaf.UpsertEntry(5, Some("five"), intCmp)
	leaf.UpsertEntry(20, None[string](), intCmp) // present but null

	data, err := leaf.Encode(Int64Codec{}, StringCodec{})
	require.NoError(t, err)

	got, err := DecodeDataPage[int64, string](data, Int64Codec{}, StringCodec{})
	require.NoError(t, err)
	require.True(t, got.IsLeaf)
	require.Equal(t, uint64(7), got.ID)
	require.Len(t, got.Entries, 3)
	require.Equal(t, int64(5), got.Entries[0].Key)
	require.Equal(t, int64(10), got.Entries[1].Key)
	require.Equal(t, int64(20), got.Entries[2].Key)
	require.True(t, got.Entries[1].Value.Valid)
	require.Equal(t, "ten", got.Entries[1].Value.Value)
	require.False(t, got.Entries[2].Value.Valid)
}

func TestInternalRoundTrip(t *testing.T) {
	internal := &DataPage[int64, string]{
		ID:     3,
		IsLeaf: false,
		Pointers: []Pointer[int64]{
			{Separator: Some(int64(10)), PageID: 1},
			{Separator: Some(int64(20)), PageID: 2},
			{Separator: None[int64](), PageID: 4},
		},
	}
	data, err := internal.Encode(Int64Codec{}, StringCodec{})
	require.NoError(t, err)

	got, err := DecodeDataPage[int64, string](data, Int64Codec{}, StringCodec{})
	require.NoError(t, err)
	require.False(t, got.IsLeaf)
	require.Len(t, got.Pointers, 3)
	require.False(t, got.Pointers[2].Separator.Valid)
}

func TestChildIndexEmpty(t *testing.T) {
	leaf := &DataPage[int64, string]{IsLeaf: true}
	idx, found := leaf.ChildIndex(5, intCmp)
	require.Equal(t, 0, idx)
	require.False(t, found)

	internal := &DataPage[int64, string]{IsLeaf: false}
	idx, found = internal.ChildIndex(5, intCmp)
	require.Equal(t, 0, idx)
	require.False(t, found)
}

func TestChildIndexInternalTieBreaksRight(t *testing.T) {
	internal := &DataPage[int64, string]{
		IsLeaf: false,
		Pointers: []Pointer[int64]{
			{Separator: Some(int64(10)), PageID: 1},
			{Separator: None[int64](), PageID: 2},
		},
	}
	idx, found := internal.ChildIndex(10, intCmp)
	require.True(t, found)
	require.Equal(t, 0, idx)
	// descent rule: chosen child is Pointers[idx+1] on an exact separator match
	require.Equal(t, uint64(2), internal.Pointers[idx+1].PageID)
}

func TestMetaPageRoundTrip(t *testing.T) {
	m := &MetaPage{RootID: 42}
	data, err := m.Encode()
	require.NoError(t, err)
	got, err := DecodeMetaPage(data)
	require.NoError(t, err)
	require.Equal(t, uint64(42), got.RootID)
}

func TestFreePageRoundTrip(t *testing.T) {
	f := &FreePage{ID: 9, Detached: true}
	data, err := f.Encode()
	require.NoError(t, err)
	got, err := DecodeFreePage(data)
	require.NoError(t, err)
	require.Equal(t, uint64(9), got.ID)
	require.True(t, got.Detached)
}

func TestDecodeDataPageRejectsWrongType(t *testing.T) {
	m := &MetaPage{RootID: 1}
	data, err := m.Encode()
	require.NoError(t, err)
	_, err = DecodeDataPage[int64, string](data, Int64Codec{}, StringCodec{})
	require.Error(t, err)
}
