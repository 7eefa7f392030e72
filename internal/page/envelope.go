package page

import (
	"bytes"
	"encoding/binary"

	"bplustree/internal/bperrors"
)

// Type tags the page's body. Every serialized page starts with the same
// envelope so a reader can tell what it is looking at before it commits to
// parsing the body.
type Type byte

const (
	TypeData Type = 1
	TypeMeta Type = 2
	TypeFree Type = 3
)

// writeEnvelope function used for: writing the id+type header shared by
// every page kind.
//
// Algorithm steps:
//  1. Write the page id as a big-endian uint64.
//  2. Write the type tag as a single byte.
//
// Parameters: buf, the destination buffer; id, the page's own id; typ, the
// page kind.
// Return: any error from the underlying writes.
func writeEnvelope(buf *bytes.Buffer, id uint64, typ Type) error {
	if err := binary.Write(buf, binary.BigEndian, id); err != nil {
		return err
	}
	return binary.Write(buf, binary.BigEndian, byte(typ))
}

// readEnvelope reads the id+type header from r and leaves r positioned at
// the start of the body, so callers can keep decoding from the same cursor.
func readEnvelope(r *bytes.Reader) (id uint64, typ Type, err error) {
	if err = binary.Read(r, binary.BigEndian, &id); err != nil {
		return 0, 0, err
	}
	var b byte
	if err = binary.Read(r, binary.BigEndian, &b); err != nil {
		return 0, 0, err
	}
	return id, Type(b), nil
}

// expectType reports bperrors.ErrCorrupt if the decoded tag does not match
// what the caller asked to decode.
func expectType(got, want Type) error {
	if got != want {
		return bperrors.Wrapf(bperrors.ErrCorrupt, "page type tag %d, want %d", got, want)
	}
	return nil
}
