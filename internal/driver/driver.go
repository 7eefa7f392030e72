// Package driver implements StorageDriver: the two-level indirection that
// sits between the public, external-facing B+ tree and the raw block
// store. External ids (the ones the public tree invents and hands to
// Put/Get/Free) are remapped onto internal ids (the raw store's own
// addressing), so that a page's external identity never has to move even
// when its physical slot is recycled.
//
// The id-map (external -> internal) and the free-map (internal -> the
// external id it last held, kept for audit) are themselves ordinary
// B+ trees, persisted through the same raw block store via a bypass
// adapter that talks to the store directly and never loops back through
// StorageDriver's own Get/Put.
package driver

import (
	"github.com/sirupsen/logrus"

	"bplustree/btree"
	"bplustree/internal/bperrors"
	"bplustree/internal/page"
	"bplustree/internal/store"
)

const (
	dataTreeMetaID = 0
	idMapMetaID    = 1
	freeMapMetaID  = 2
	firstFreeID    = 3 // no allocator ever hands out an id in [0,2]
)

func uint64Cmp(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// StorageDriver implements btree.Driver for the public, external-id tree.
type StorageDriver struct {
	raw store.BlockStore

	idMap   *btree.Tree[uint64, uint64]
	freeMap *btree.Tree[uint64, uint64]

	nextExtID uint64
	counter   uint64
	pending   []uint64

	log *logrus.Entry
}

// Open wires a StorageDriver on top of raw. raw is assumed dedicated to
// this driver: ids 0, 1 and 2 are reserved for the data tree's, id-map's
// and free-map's own metadata respectively.
func Open(raw store.BlockStore) (*StorageDriver, error) {
	sd := &StorageDriver{
		raw:       raw,
		nextExtID: 1,
		counter:   firstFreeID,
		log:       logrus.WithField("component", "storagedriver"),
	}

	idMapTree, err := btree.Open[uint64, uint64](
		&bypassDriver{sd: sd, metaID: idMapMetaID},
		page.Uint64Codec{}, page.Uint64Codec{}, uint64Cmp)
	if err != nil {
		return nil, err
	}
	sd.idMap = idMapTree

	freeMapTree, err := btree.Open[uint64, uint64](
		&bypassDriver{sd: sd, metaID: freeMapMetaID},
		page.Uint64Codec{}, page.Uint64Codec{}, uint64Cmp)
	if err != nil {
		return nil, err
	}
	sd.freeMap = freeMapTree

	// the counter must seed above any internal id already present, or a
	// store reopened from disk would start handing out ids that collide
	// with pages already on it.
	records, err := raw.Generator()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ID+1 > sd.counter {
			sd.counter = rec.ID + 1
		}
	}
	// likewise for the external id counter: replay the id-map to find the
	// highest external id already assigned.
	if err := sd.seedExtCounter(); err != nil {
		return nil, err
	}

	return sd, nil
}

func (sd *StorageDriver) seedExtCounter() error {
	var cur uint64
	for {
		next, ok, err := sd.idMap.FindNext(cur)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if next+1 > sd.nextExtID {
			sd.nextExtID = next + 1
		}
		// FindNext returns a key at or after its argument, so step past next.
		cur = next + 1
	}
	return nil
}

// btree.Driver implementation, operating on external ids.

func (sd *StorageDriver) MaxPageSize() int { return sd.raw.Options().MaxPageSize }

func (sd *StorageDriver) GetMetadata() ([]byte, bool, error) { return sd.raw.Get(dataTreeMetaID) }

func (sd *StorageDriver) PutMetadata(data []byte) error { return sd.raw.Put(dataTreeMetaID, data) }

func (sd *StorageDriver) NewPageID() (uint64, error) {
	id := sd.nextExtID
	sd.nextExtID++
	return id, nil
}

func (sd *StorageDriver) Get(extID uint64) ([]byte, bool, error) {
	intID, found, err := sd.idMap.Find(extID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, bperrors.ErrNoMapping
	}
	return sd.raw.Get(intID.Value)
}

func (sd *StorageDriver) Put(extID uint64, data []byte) error {
	intID, found, err := sd.idMap.Find(extID)
	if err != nil {
		return err
	}
	var internal uint64
	if found {
		internal = intID.Value
	} else {
		internal, err = sd.nextInternalID()
		if err != nil {
			return err
		}
		if err := sd.idMap.Add(extID, page.Some(internal)); err != nil {
			return err
		}
		sd.log.WithField("ext", extID).WithField("int", internal).Debug("mapped new page")
	}
	return sd.raw.Put(internal, data)
}

func (sd *StorageDriver) Free(extID uint64) error {
	intID, found, err := sd.idMap.Find(extID)
	if err != nil {
		return err
	}
	if !found {
		return bperrors.ErrNoMapping
	}
	if err := sd.freeInternalID(intID.Value, extID); err != nil {
		return err
	}
	_, _, err = sd.idMap.Delete(extID)
	return err
}

// nextInternalID function used for: the driver's allocator, the
// "Allocator (next_id)" at the heart of the design.
//
// Algorithm steps:
//  1. If the free-map tree is idle, drain the pending queue first
//     (ids freed while the free-map was busy, never indexed anywhere).
//  2. Else, if idle and the pending queue is empty, consult the free-map
//     for its lowest recorded id via find_next(0); reclaim it if found.
//  3. Otherwise (free-map busy, meaning this call is itself reentrant from
//     inside a free-map mutation) fall back to bumping the in-memory
//     counter.
func (sd *StorageDriver) nextInternalID() (uint64, error) {
	if !sd.freeMap.Busy() {
		if len(sd.pending) > 0 {
			id := sd.pending[0]
			sd.pending = sd.pending[1:]
			sd.log.WithField("int", id).Debug("allocated from pending queue")
			return id, nil
		}
		id, found, err := sd.freeMap.FindNext(0)
		if err != nil {
			return 0, err
		}
		if found {
			if err := sd.reclaim(id); err != nil {
				return 0, err
			}
			sd.log.WithField("int", id).Debug("recycled id from free-map")
			return id, nil
		}
	}
	id := sd.counter
	sd.counter++
	sd.log.WithField("int", id).Debug("allocated from counter")
	return id, nil
}

func (sd *StorageDriver) reclaim(internalID uint64) error {
	data, ok, err := sd.raw.Get(internalID)
	if err != nil {
		return err
	}
	if !ok {
		return bperrors.ErrCorrupt
	}
	fp, err := page.DecodeFreePage(data)
	if err != nil {
		return err
	}
	if fp.Detached {
		return bperrors.ErrCorrupt
	}
	fp.Detached = true
	encoded, err := fp.Encode()
	if err != nil {
		return err
	}
	if err := sd.raw.Put(internalID, encoded); err != nil {
		return err
	}
	_, _, err = sd.freeMap.Delete(internalID)
	return err
}

// freeInternalID records that internalID (previously mapped from extID, 0
// if it belongs to the id-map or free-map trees themselves rather than the
// public data tree) is no longer in use.
func (sd *StorageDriver) freeInternalID(internalID, extID uint64) error {
	fp := page.FreePage{ID: internalID}
	if !sd.freeMap.Busy() {
		if err := sd.freeMap.Add(internalID, page.Some(extID)); err != nil {
			return err
		}
		fp.Detached = false
	} else {
		sd.pending = append(sd.pending, internalID)
		fp.Detached = true
	}
	encoded, err := fp.Encode()
	if err != nil {
		return err
	}
	return sd.raw.Put(internalID, encoded)
}

func (sd *StorageDriver) Generator() ([]store.Record, error) { return sd.raw.Generator() }

var _ btree.Driver = (*StorageDriver)(nil)
