package page

import "bytes"

// FreePage is written in place of a page's slot once the page is no longer
// reachable from any tree. Detached distinguishes two states the allocator
// cares about: false means the id is recorded in the free-map tree and
// available for find_next(0) to discover; true means the id was freed while
// the free-map tree itself was mid-mutation and is sitting in the driver's
// in-memory pending queue instead, not yet indexed anywhere, or that the
// allocator has already claimed the id from the free-map for reuse.
type FreePage struct {
	ID       uint64
	Detached bool
}

func (f *FreePage) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeEnvelope(&buf, f.ID, TypeFree); err != nil {
		return nil, err
	}
	var b byte
	if f.Detached {
		b = 1
	}
	if err := buf.WriteByte(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeFreePage(data []byte) (*FreePage, error) {
	r := bytes.NewReader(data)
	id, typ, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}
	if err := expectType(typ, TypeFree); err != nil {
		return nil, err
	}
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return &FreePage{ID: id, Detached: b == 1}, nil
}
