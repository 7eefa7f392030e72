package driver_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"bplustree/btree"
	"bplustree/internal/driver"
	"bplustree/internal/page"
	"bplustree/internal/store"
)

func int64Cmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func TestReservedIDsNeverAllocated(t *testing.T) {
	raw := store.NewMemStoreWithPageSize(96)
	sd, err := driver.Open(raw)
	require.NoError(t, err)
	tr, err := btree.Open[int64, string](sd, page.Int64Codec{}, page.StringCodec{}, int64Cmp)
	require.NoError(t, err)

	for i := int64(0); i < 50; i++ {
		require.NoError(t, tr.Add(i, page.Some(fmt.Sprintf("v%d", i))))
	}

	records, err := raw.Generator()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(records), 3) // at least the 2 written metadata slots plus a data page

	haveReserved := map[uint64]bool{}
	for _, rec := range records {
		if rec.ID <= 2 {
			haveReserved[rec.ID] = true
			// a reserved slot only ever holds a meta page, never an allocated page
			_, err := page.DecodeMetaPage(rec.Data)
			require.NoError(t, err, "reserved id %d", rec.ID)
		}
	}
	// nothing has been freed yet, so the free-map tree (meta id 2) has not
	// written its metadata; the data tree (0) and id-map (1) have.
	require.Len(t, haveReserved, 2, "data/id-map metadata ids 0,1 must both exist")
	require.True(t, haveReserved[0])
	require.True(t, haveReserved[1])
}

func TestDeletesKeepRemainingKeysReachable(t *testing.T) {
	raw := store.NewMemStoreWithPageSize(96)
	sd, err := driver.Open(raw)
	require.NoError(t, err)
	tr, err := btree.Open[int64, string](sd, page.Int64Codec{}, page.StringCodec{}, int64Cmp)
	require.NoError(t, err)

	for i := int64(0); i < 30; i++ {
		require.NoError(t, tr.Add(i, page.Some(fmt.Sprintf("v%d", i))))
	}
	for i := int64(0); i < 20; i++ {
		_, found, err := tr.Delete(i)
		require.NoError(t, err)
		require.True(t, found)
	}

	// every remaining key is still reachable through the driver's mapping
	for i := int64(20); i < 30; i++ {
		v, found, err := tr.Find(i)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, fmt.Sprintf("v%d", i), v.Value)
	}
}

func TestReopenPreservesData(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/store.db"

	raw, err := store.Open(path, 256)
	require.NoError(t, err)
	sd, err := driver.Open(raw)
	require.NoError(t, err)
	tr, err := btree.Open[int64, string](sd, page.Int64Codec{}, page.StringCodec{}, int64Cmp)
	require.NoError(t, err)

	for i := int64(0); i < 40; i++ {
		require.NoError(t, tr.Add(i, page.Some(fmt.Sprintf("v%d", i))))
	}
	require.NoError(t, raw.Close())

	raw2, err := store.Open(path, 256)
	require.NoError(t, err)
	defer raw2.Close()
	sd2, err := driver.Open(raw2)
	require.NoError(t, err)
	tr2, err := btree.Open[int64, string](sd2, page.Int64Codec{}, page.StringCodec{}, int64Cmp)
	require.NoError(t, err)

	for i := int64(0); i < 40; i++ {
		v, found, err := tr2.Find(i)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, fmt.Sprintf("v%d", i), v.Value)
	}

	// a fresh insert after reopening must not collide with an existing id
	require.NoError(t, tr2.Add(1000, page.Some("new")))
	v, found, err := tr2.Find(1000)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "new", v.Value)
}
