package page

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Uint64Codec codes a bare uint64, used by the driver's private id-map and
// free-map trees, whose keys and values are always raw page ids.
type Uint64Codec struct{}

func (Uint64Codec) Encode(buf *bytes.Buffer, v uint64) error {
	return binary.Write(buf, binary.BigEndian, v)
}

func (Uint64Codec) Decode(r *bytes.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// Int64Codec codes a signed int64, most commonly used for small test and
// demo trees keyed by ordinary integers.
type Int64Codec struct{}

func (Int64Codec) Encode(buf *bytes.Buffer, v int64) error {
	return binary.Write(buf, binary.BigEndian, v)
}

func (Int64Codec) Decode(r *bytes.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// BytesCodec codes a length-prefixed byte slice. This is the codec a caller
// reaches for when they want the tree's opaque-bytes value model literally,
// without attaching any typed structure to V.
type BytesCodec struct{}

func (BytesCodec) Encode(buf *bytes.Buffer, v []byte) error {
	if err := binary.Write(buf, binary.BigEndian, uint32(len(v))); err != nil {
		return err
	}
	_, err := buf.Write(v)
	return err
}

func (BytesCodec) Decode(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// StringCodec codes a string via BytesCodec.
type StringCodec struct{}

func (StringCodec) Encode(buf *bytes.Buffer, v string) error {
	return BytesCodec{}.Encode(buf, []byte(v))
}

func (StringCodec) Decode(r *bytes.Reader) (string, error) {
	b, err := BytesCodec{}.Decode(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
