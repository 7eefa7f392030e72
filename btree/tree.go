package btree

import (
	"bplustree/internal/bperrors"
	"bplustree/internal/page"
)

// FillFactor is the minimum occupancy ratio for a non-root page: any
// serialized page smaller than MaxPageSize/FillFactor is below its fill
// ratio and triggers the underflow path out of store_page.
const FillFactor = 4

// Comparator orders two keys the same way sort.Search wants: negative if
// a < b, zero if equal, positive if a > b.
type Comparator[K any] func(a, b K) int

// Tree is an ordered K -> V index. It is not safe for concurrent use by
// multiple goroutines; a single in-flight mutation is enforced internally
// via Busy, not via a mutex, matching the single-writer model the format
// itself assumes.
type Tree[K any, V any] struct {
	driver Driver
	keys   page.KeyCodec[K]
	values page.ValueCodec[V]
	cmp    Comparator[K]

	busy    bool
	meta    page.MetaPage
	hasMeta bool
}

// Open attaches a Tree to driver, loading its root pointer if the driver
// already has metadata (a tree opened against a fresh driver starts empty
// and lazily creates its first leaf on the first Add).
func Open[K any, V any](driver Driver, keys page.KeyCodec[K], values page.ValueCodec[V], cmp Comparator[K]) (*Tree[K, V], error) {
	t := &Tree[K, V]{driver: driver, keys: keys, values: values, cmp: cmp}
	data, ok, err := driver.GetMetadata()
	if err != nil {
		return nil, err
	}
	if ok {
		m, err := page.DecodeMetaPage(data)
		if err != nil {
			return nil, err
		}
		t.meta = *m
		t.hasMeta = true
	}
	return t, nil
}

// Busy reports whether a mutation is currently in flight. Exported so the
// storage driver can use a tree's own latch to detect reentrancy into its
// private id-map/free-map trees without keeping a second flag.
func (t *Tree[K, V]) Busy() bool { return t.busy }

type pathElem[K any, V any] struct {
	page  *page.DataPage[K, V]
	index int // position within page.Pointers of the child this path element descended into
	found bool
}

func (t *Tree[K, V]) loadPage(id uint64) (*page.DataPage[K, V], error) {
	data, ok, err := t.driver.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, bperrors.Wrapf(bperrors.ErrCorrupt, "missing page %d", id)
	}
	return page.DecodeDataPage[K, V](data, t.keys, t.values)
}

func (t *Tree[K, V]) loadRoot() (*page.DataPage[K, V], error) {
	if !t.hasMeta || t.meta.RootID == 0 {
		return nil, nil
	}
	return t.loadPage(t.meta.RootID)
}

// findLeaf function used for: descending from the root to the leaf that
// key would live in, recording the path taken.
//
// Algorithm steps:
//  1. Load the root; an empty tree returns a nil leaf immediately.
//  2. At each internal page, call ChildIndex(key) and descend through
//     Pointers[index+1] on an exact separator match, Pointers[index]
//     otherwise.
//  3. Record (page, chosen child index, found) at each step.
//
// Return: the leaf (nil if the tree is empty), the path of internal pages
// walked to reach it, and any error.
func (t *Tree[K, V]) findLeaf(key K) (*page.DataPage[K, V], []pathElem[K, V], error) {
	root, err := t.loadRoot()
	if err != nil {
		return nil, nil, err
	}
	if root == nil {
		return nil, nil, nil
	}
	var path []pathElem[K, V]
	cur := root
	for !cur.IsLeaf {
		idx, found := cur.ChildIndex(key, t.cmp)
		chosen := idx
		if found {
			chosen++
		}
		path = append(path, pathElem[K, V]{page: cur, index: chosen, found: found})
		next, err := t.loadPage(cur.Pointers[chosen].PageID)
		if err != nil {
			return nil, nil, err
		}
		cur = next
	}
	return cur, path, nil
}

func (t *Tree[K, V]) leftmostKey(id uint64) (K, error) {
	var zero K
	cur, err := t.loadPage(id)
	if err != nil {
		return zero, err
	}
	for !cur.IsLeaf {
		next, err := t.loadPage(cur.Pointers[0].PageID)
		if err != nil {
			return zero, err
		}
		cur = next
	}
	if len(cur.Entries) == 0 {
		return zero, bperrors.ErrCorrupt
	}
	return cur.Entries[0].Key, nil
}

// Find looks key up. The returned bool is whether key is in the tree at
// all; the Optional distinguishes a present-but-null value from one that
// carries data.
func (t *Tree[K, V]) Find(key K) (page.Optional[V], bool, error) {
	leaf, _, err := t.findLeaf(key)
	if err != nil {
		return page.Optional[V]{}, false, err
	}
	if leaf == nil {
		return page.Optional[V]{}, false, nil
	}
	idx, found := leaf.ChildIndex(key, t.cmp)
	if !found {
		return page.Optional[V]{}, false, nil
	}
	return leaf.Entries[idx].Value, true, nil
}

// FindNext returns the smallest key greater than or equal to key, if one
// exists. An exact match on key itself is treated as its own successor
// (find_next(k) is "the next key at or after k").
func (t *Tree[K, V]) FindNext(key K) (K, bool, error) {
	var zero K
	leaf, path, err := t.findLeaf(key)
	if err != nil {
		return zero, false, err
	}
	if leaf == nil {
		return zero, false, nil
	}
	idx, found := leaf.ChildIndex(key, t.cmp)
	if found {
		return key, true, nil
	}
	if idx < len(leaf.Entries) {
		return leaf.Entries[idx].Key, true, nil
	}
	// key falls after every entry in this leaf: walk back up the path for
	// the nearest ancestor whose chosen child was not its last pointer,
	// then take the leftmost key of the next subtree over.
	for i := len(path) - 1; i >= 0; i-- {
		elem := path[i]
		if elem.index < len(elem.page.Pointers)-1 {
			k, err := t.leftmostKey(elem.page.Pointers[elem.index+1].PageID)
			if err != nil {
				return zero, false, err
			}
			return k, true, nil
		}
	}
	return zero, false, nil
}

// Add inserts key/value, overwriting any existing value for key.
func (t *Tree[K, V]) Add(key K, value page.Optional[V]) error {
	if t.busy {
		return bperrors.ErrBusy
	}
	t.busy = true
	defer func() { t.busy = false }()

	leaf, path, err := t.findLeafOrCreateRoot(key)
	if err != nil {
		return err
	}
	leaf.UpsertEntry(key, value, t.cmp)
	return t.storePage(leaf, path)
}

func (t *Tree[K, V]) findLeafOrCreateRoot(key K) (*page.DataPage[K, V], []pathElem[K, V], error) {
	leaf, path, err := t.findLeaf(key)
	if err != nil {
		return nil, nil, err
	}
	if leaf != nil {
		return leaf, path, nil
	}
	id, err := t.driver.NewPageID()
	if err != nil {
		return nil, nil, err
	}
	root := &page.DataPage[K, V]{ID: id, IsLeaf: true}
	t.meta = page.MetaPage{RootID: id}
	t.hasMeta = true
	if err := t.writeMeta(); err != nil {
		return nil, nil, err
	}
	return root, nil, nil
}

// Delete removes key if present, returning its value.
func (t *Tree[K, V]) Delete(key K) (page.Optional[V], bool, error) {
	if t.busy {
		return page.Optional[V]{}, false, bperrors.ErrBusy
	}
	t.busy = true
	defer func() { t.busy = false }()

	leaf, path, err := t.findLeaf(key)
	if err != nil {
		return page.Optional[V]{}, false, err
	}
	if leaf == nil {
		return page.Optional[V]{}, false, nil
	}
	val, found := leaf.DeleteEntry(key, t.cmp)
	if !found {
		return page.Optional[V]{}, false, nil
	}
	if err := t.storePage(leaf, path); err != nil {
		return page.Optional[V]{}, false, err
	}
	return val, true, nil
}

func (t *Tree[K, V]) writeMeta() error {
	data, err := t.meta.Encode()
	if err != nil {
		return err
	}
	return t.driver.PutMetadata(data)
}

// storePage function used for: deciding what a just-mutated page needs
// beyond a plain write.
//
// Algorithm steps:
//  1. Serialize the page.
//  2. Oversized -> split.
//  3. Root reduced to a single child -> collapse.
//  4. Non-root undersized -> underflow.
//  5. Otherwise write the bytes as-is, republishing meta if this write
//     changed which page is root.
func (t *Tree[K, V]) storePage(pg *page.DataPage[K, V], path []pathElem[K, V]) error {
	data, err := pg.Encode(t.keys, t.values)
	if err != nil {
		return err
	}
	maxSize := t.driver.MaxPageSize()
	isRoot := len(path) == 0

	switch {
	case len(data) > maxSize:
		return t.split(pg, path)
	case isRoot && !pg.IsLeaf && len(pg.Pointers) == 1:
		return t.collapseRoot(pg)
	case !isRoot && len(data) < maxSize/FillFactor:
		return t.underflow(pg, path)
	default:
		return t.writePage(pg, data, isRoot)
	}
}

func (t *Tree[K, V]) writePage(pg *page.DataPage[K, V], data []byte, isRoot bool) error {
	if err := t.driver.Put(pg.ID, data); err != nil {
		return err
	}
	if isRoot && t.meta.RootID != pg.ID {
		t.meta.RootID = pg.ID
		return t.writeMeta()
	}
	return nil
}

// split function used for: handling a page that grew past MaxPageSize.
//
// Algorithm steps:
//  1. Allocate a fresh id for the right half.
//  2. Leaves: move the upper half of entries across; the promoted key is
//     the right half's first key.
//  3. Internals: move the upper half of pointers across, dropping the
//     separator that sits at the split point (it becomes the promoted
//     key); the child that sat at the split point stays as the left
//     half's trailing pointer, now with a null separator.
//  4. No parent -> allocate a new root pointing at both halves.
//  5. Otherwise insert (promoted, left.ID) into the parent at the child's
//     old position, retarget what was there to the right half, and
//     recurse store_page on the parent.
func (t *Tree[K, V]) split(pg *page.DataPage[K, V], path []pathElem[K, V]) error {
	rightID, err := t.driver.NewPageID()
	if err != nil {
		return err
	}
	right := &page.DataPage[K, V]{ID: rightID, IsLeaf: pg.IsLeaf}
	var promoted K

	if pg.IsLeaf {
		mid := len(pg.Entries) / 2
		right.Entries = append(right.Entries, pg.Entries[mid:]...)
		pg.Entries = pg.Entries[:mid:mid]
		promoted = right.Entries[0].Key
	} else {
		mid := (len(pg.Pointers) - 1) / 2
		sep := pg.Pointers[mid].Separator
		if !sep.Valid {
			return bperrors.ErrCorrupt
		}
		promoted = sep.Value
		// pg.Pointers[mid]'s child stays on the left, trailing with a null
		// separator (its upper bound is now the promoted key, enforced by
		// the parent rather than recorded in this page). Everything after
		// it, already correctly separated, moves to the right untouched.
		leftTrailingChild := pg.Pointers[mid].PageID
		right.Pointers = append(right.Pointers, pg.Pointers[mid+1:]...)
		pg.Pointers = append(pg.Pointers[:mid:mid], page.Pointer[K]{Separator: page.None[K](), PageID: leftTrailingChild})
	}

	rightData, err := right.Encode(t.keys, t.values)
	if err != nil {
		return err
	}
	if err := t.driver.Put(right.ID, rightData); err != nil {
		return err
	}
	leftData, err := pg.Encode(t.keys, t.values)
	if err != nil {
		return err
	}
	if err := t.driver.Put(pg.ID, leftData); err != nil {
		return err
	}

	if len(path) == 0 {
		newRootID, err := t.driver.NewPageID()
		if err != nil {
			return err
		}
		newRoot := &page.DataPage[K, V]{
			ID:     newRootID,
			IsLeaf: false,
			Pointers: []page.Pointer[K]{
				{Separator: page.Some(promoted), PageID: pg.ID},
				{Separator: page.None[K](), PageID: right.ID},
			},
		}
		newRootData, err := newRoot.Encode(t.keys, t.values)
		if err != nil {
			return err
		}
		if err := t.driver.Put(newRoot.ID, newRootData); err != nil {
			return err
		}
		t.meta.RootID = newRoot.ID
		return t.writeMeta()
	}

	parentElem := path[len(path)-1]
	parent := parentElem.page
	insertIdx := parentElem.index

	parent.Pointers = append(parent.Pointers, page.Pointer[K]{})
	copy(parent.Pointers[insertIdx+1:], parent.Pointers[insertIdx:])
	parent.Pointers[insertIdx] = page.Pointer[K]{Separator: page.Some(promoted), PageID: pg.ID}
	parent.Pointers[insertIdx+1].PageID = right.ID

	return t.storePage(parent, path[:len(path)-1])
}

func (t *Tree[K, V]) collapseRoot(pg *page.DataPage[K, V]) error {
	onlyChild := pg.Pointers[0].PageID
	if err := t.driver.Free(pg.ID); err != nil {
		return err
	}
	t.meta.RootID = onlyChild
	return t.writeMeta()
}

func (t *Tree[K, V]) pageSize(pg *page.DataPage[K, V]) (int, error) {
	data, err := pg.Encode(t.keys, t.values)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// underflow function used for: handling a page that shrank below its fill
// ratio.
//
// Algorithm steps:
//  1. Identify a sibling: prefer the one to the right, else the one to
//     the left.
//  2. While the deficient side stays below ratio and the donor side is
//     still at or above it, rotate one element across from the donor and
//     re-serialize both.
//  3. If that leaves either side below ratio (or an internal page down to
//     one child), merge the lower page into the upper one instead, free
//     the lower page's id, and drop its pointer from the parent.
//  4. Recurse store_page on the parent.
func (t *Tree[K, V]) underflow(pg *page.DataPage[K, V], path []pathElem[K, V]) error {
	parentElem := path[len(path)-1]
	parent := parentElem.page
	childIdx := parentElem.index

	var siblingIdx int
	var pgIsLower bool
	if childIdx+1 < len(parent.Pointers) {
		siblingIdx = childIdx + 1
		pgIsLower = true
	} else if childIdx-1 >= 0 {
		siblingIdx = childIdx - 1
		pgIsLower = false
	} else {
		return bperrors.Wrapf(bperrors.ErrCorrupt, "underflowing page %d has no sibling", pg.ID)
	}

	sibling, err := t.loadPage(parent.Pointers[siblingIdx].PageID)
	if err != nil {
		return err
	}

	var lower, upper *page.DataPage[K, V]
	var lowerIdx int
	if pgIsLower {
		lower, upper, lowerIdx = pg, sibling, childIdx
	} else {
		lower, upper, lowerIdx = sibling, pg, siblingIdx
	}

	maxSize := t.driver.MaxPageSize()
	minSize := maxSize / FillFactor

	for {
		ll, err := t.pageSize(lower)
		if err != nil {
			return err
		}
		ul, err := t.pageSize(upper)
		if err != nil {
			return err
		}
		if pgIsLower && ll < minSize && ul >= minSize {
			t.rotate(lower, upper, parent, lowerIdx, true)
			continue
		}
		if !pgIsLower && ul < minSize && ll >= minSize {
			t.rotate(lower, upper, parent, lowerIdx, false)
			continue
		}
		break
	}

	ll, err := t.pageSize(lower)
	if err != nil {
		return err
	}
	ul, err := t.pageSize(upper)
	if err != nil {
		return err
	}
	needMerge := ll < minSize || ul < minSize ||
		(!lower.IsLeaf && len(lower.Pointers) <= 1) ||
		(!upper.IsLeaf && len(upper.Pointers) <= 1)

	if !needMerge {
		if err := t.putPage(lower); err != nil {
			return err
		}
		if err := t.putPage(upper); err != nil {
			return err
		}
		return t.storePage(parent, path[:len(path)-1])
	}

	if lower.IsLeaf {
		upper.Entries = append(append([]page.Entry[K, V]{}, lower.Entries...), upper.Entries...)
	} else {
		parentSep := parent.Pointers[lowerIdx].Separator
		if !parentSep.Valid || len(lower.Pointers) == 0 {
			return bperrors.ErrCorrupt
		}
		lower.Pointers[len(lower.Pointers)-1].Separator = parentSep
		upper.Pointers = append(append([]page.Pointer[K]{}, lower.Pointers...), upper.Pointers...)
	}

	if err := t.driver.Free(lower.ID); err != nil {
		return err
	}
	if err := t.putPage(upper); err != nil {
		return err
	}
	parent.Pointers = append(parent.Pointers[:lowerIdx], parent.Pointers[lowerIdx+1:]...)

	return t.storePage(parent, path[:len(path)-1])
}

func (t *Tree[K, V]) putPage(pg *page.DataPage[K, V]) error {
	data, err := pg.Encode(t.keys, t.values)
	if err != nil {
		return err
	}
	return t.driver.Put(pg.ID, data)
}

// rotate moves a single element across the lower/upper boundary:
// fromUpperToLower takes upper's first element onto lower's tail (borrow
// from the right); otherwise it takes lower's last element onto upper's
// head (borrow from the left). lowerIdx is lower's position in parent, and
// the separator at that position is the boundary being adjusted.
func (t *Tree[K, V]) rotate(lower, upper, parent *page.DataPage[K, V], lowerIdx int, fromUpperToLower bool) {
	if lower.IsLeaf {
		if fromUpperToLower {
			e := upper.Entries[0]
			upper.Entries = upper.Entries[1:]
			lower.Entries = append(lower.Entries, e)
			if len(upper.Entries) > 0 {
				parent.Pointers[lowerIdx].Separator = page.Some(upper.Entries[0].Key)
			}
		} else {
			e := lower.Entries[len(lower.Entries)-1]
			lower.Entries = lower.Entries[:len(lower.Entries)-1]
			upper.Entries = append([]page.Entry[K, V]{e}, upper.Entries...)
			parent.Pointers[lowerIdx].Separator = page.Some(e.Key)
		}
		return
	}

	if fromUpperToLower {
		moving := upper.Pointers[0]
		oldSep := moving.Separator
		parentSep := parent.Pointers[lowerIdx].Separator
		lower.Pointers[len(lower.Pointers)-1].Separator = parentSep
		lower.Pointers = append(lower.Pointers, page.Pointer[K]{Separator: page.None[K](), PageID: moving.PageID})
		upper.Pointers = upper.Pointers[1:]
		parent.Pointers[lowerIdx].Separator = oldSep
		return
	}

	moving := lower.Pointers[len(lower.Pointers)-1]
	lower.Pointers = lower.Pointers[:len(lower.Pointers)-1]
	newLastIdx := len(lower.Pointers) - 1
	oldSep := lower.Pointers[newLastIdx].Separator
	lower.Pointers[newLastIdx].Separator = page.None[K]()
	parentSep := parent.Pointers[lowerIdx].Separator
	upper.Pointers = append([]page.Pointer[K]{{Separator: parentSep, PageID: moving.PageID}}, upper.Pointers...)
	parent.Pointers[lowerIdx].Separator = oldSep
}
