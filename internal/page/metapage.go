package page

import (
	"bytes"
	"encoding/binary"
)

// MetaPage holds a single cell: the id of the tree's current root. Writing
// a new MetaPage is the atomic operation that publishes a new root;
// nothing reads a root id from anywhere else.
type MetaPage struct {
	RootID uint64
}

// Encode function used for: serializing the meta page's envelope and its
// one payload field.
//
// Format: [envelope] [RootID]
func (m *MetaPage) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeEnvelope(&buf, 0, TypeMeta); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, m.RootID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMetaPage is the inverse of Encode. The envelope's id field carries
// no information for a meta page (it always lives at a driver-reserved
// slot) and is discarded.
func DecodeMetaPage(data []byte) (*MetaPage, error) {
	r := bytes.NewReader(data)
	_, typ, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}
	if err := expectType(typ, TypeMeta); err != nil {
		return nil, err
	}
	m := &MetaPage{}
	if err := binary.Read(r, binary.BigEndian, &m.RootID); err != nil {
		return nil, err
	}
	return m, nil
}
