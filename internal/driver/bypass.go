package driver

import (
	"bplustree/btree"
	"bplustree/internal/store"
)

// bypassDriver is the btree.Driver the id-map and free-map trees are
// opened against. It talks to the raw block store directly by internal id;
// it does not go through StorageDriver.Get/Put, which would recurse back
// into the very id-map tree being served. Fresh ids and frees for these two
// trees' own pages are still routed through the driver's shared allocator
// (nextInternalID/freeInternalID), since all three trees draw from the
// same physical id space.
type bypassDriver struct {
	sd     *StorageDriver
	metaID uint64
}

func (b *bypassDriver) MaxPageSize() int { return b.sd.raw.Options().MaxPageSize }

func (b *bypassDriver) GetMetadata() ([]byte, bool, error) { return b.sd.raw.Get(b.metaID) }

func (b *bypassDriver) PutMetadata(data []byte) error { return b.sd.raw.Put(b.metaID, data) }

func (b *bypassDriver) NewPageID() (uint64, error) { return b.sd.nextInternalID() }

func (b *bypassDriver) Get(id uint64) ([]byte, bool, error) { return b.sd.raw.Get(id) }

func (b *bypassDriver) Put(id uint64, data []byte) error { return b.sd.raw.Put(id, data) }

func (b *bypassDriver) Free(id uint64) error { return b.sd.freeInternalID(id, 0) }

func (b *bypassDriver) Generator() ([]store.Record, error) { return b.sd.raw.Generator() }

var _ btree.Driver = (*bypassDriver)(nil)
