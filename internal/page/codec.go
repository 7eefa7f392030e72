package page

import "bytes"

// KeyCodec turns a key of type K into bytes and back. The codec never sees
// an Optional; presence is handled one layer up, at the Entry/Pointer
// level, so implementations only need to worry about K itself.
type KeyCodec[K any] interface {
	Encode(buf *bytes.Buffer, k K) error
	Decode(r *bytes.Reader) (K, error)
}

// ValueCodec is the value-side equivalent of KeyCodec.
type ValueCodec[V any] interface {
	Encode(buf *bytes.Buffer, v V) error
	Decode(r *bytes.Reader) (V, error)
}

func writeOptionalKey[K any](buf *bytes.Buffer, kc KeyCodec[K], k Optional[K]) error {
	if !k.Valid {
		return buf.WriteByte(0)
	}
	if err := buf.WriteByte(1); err != nil {
		return err
	}
	return kc.Encode(buf, k.Value)
}

func readOptionalKey[K any](r *bytes.Reader, kc KeyCodec[K]) (Optional[K], error) {
	present, err := r.ReadByte()
	if err != nil {
		return Optional[K]{}, err
	}
	if present == 0 {
		return None[K](), nil
	}
	k, err := kc.Decode(r)
	if err != nil {
		return Optional[K]{}, err
	}
	return Some(k), nil
}

func writeOptionalValue[V any](buf *bytes.Buffer, vc ValueCodec[V], v Optional[V]) error {
	if !v.Valid {
		return buf.WriteByte(0)
	}
	if err := buf.WriteByte(1); err != nil {
		return err
	}
	return vc.Encode(buf, v.Value)
}

func readOptionalValue[V any](r *bytes.Reader, vc ValueCodec[V]) (Optional[V], error) {
	present, err := r.ReadByte()
	if err != nil {
		return Optional[V]{}, err
	}
	if present == 0 {
		return None[V](), nil
	}
	v, err := vc.Decode(r)
	if err != nil {
		return Optional[V]{}, err
	}
	return Some(v), nil
}
