package native

import (
	"crypto/md5"
	"encoding/binary"
	"reflect"
	"unsafe"
)

// KeyKind is the memory layout of one key leaf.
type KeyKind int32

const (
	KeyBool KeyKind = iota + 1
	KeyInt8
	KeyUint8
	KeyInt16
	KeyUint16
	KeyInt32
	KeyUint32
	KeyInt64
	KeyUint64
	KeyFloat32
	KeyFloat64
	KeyString
)

// Size is the in-memory size of one leaf of kind k.
func (k KeyKind) Size() uintptr {
	switch k {
	case KeyBool, KeyInt8, KeyUint8:
		return 1
	case KeyInt16, KeyUint16:
		return 2
	case KeyInt32, KeyUint32, KeyFloat32:
		return 4
	case KeyInt64, KeyUint64, KeyFloat64:
		return 8
	case KeyString:
		return unsafe.Sizeof("")
	}
	return 0
}

// Align is the CDR alignment of one leaf of kind k.
func (k KeyKind) Align() int {
	switch k {
	case KeyString:
		return 4
	default:
		return int(k.Size())
	}
}

// KeyDescriptor locates one key leaf inside a sample. Count is zero for a
// scalar and the element count for a fixed array laid out every Stride bytes.
type KeyDescriptor struct {
	Name   string
	Offset uintptr
	Kind   KeyKind
	Count  int
	Stride uintptr
}

// Sertype describes a topic data type to the runtime.
type Sertype struct {
	TypeName string
	Type     reflect.Type
	Keys     []KeyDescriptor

	fixedKey bool
}

// NewSertype validates the descriptors against typ.
func NewSertype(typeName string, typ reflect.Type, keys []KeyDescriptor) (*Sertype, ReturnCode) {
	if typeName == "" || typ == nil || typ.Kind() != reflect.Struct {
		return nil, RetBadParameter
	}
	if err := checkSerializable(typ); err != nil {
		return nil, RetBadParameter
	}
	st := &Sertype{TypeName: typeName, Type: typ, Keys: append([]KeyDescriptor(nil), keys...), fixedKey: true}
	for _, k := range st.Keys {
		size := k.Kind.Size()
		if size == 0 || k.Count < 0 {
			return nil, RetBadParameter
		}
		end := k.Offset + size
		if k.Count > 0 {
			if k.Stride < size {
				return nil, RetBadParameter
			}
			end = k.Offset + uintptr(k.Count-1)*k.Stride + size
		}
		if end > typ.Size() {
			return nil, RetBadParameter
		}
		if k.Kind == KeyString {
			st.fixedKey = false
		}
	}
	return st, RetOK
}

// HasKey reports whether the type declares key fields.
func (st *Sertype) HasKey() bool { return len(st.Keys) > 0 }

// KeyCDR serializes the key leaves of the sample at p in big-endian CDR,
// without encapsulation header.
func (st *Sertype) KeyCDR(p unsafe.Pointer) []byte {
	var w keyWriter
	for _, k := range st.Keys {
		base := unsafe.Add(p, k.Offset)
		if k.Count == 0 {
			w.put(k.Kind, base)
			continue
		}
		for i := 0; i < k.Count; i++ {
			w.put(k.Kind, unsafe.Add(base, uintptr(i)*k.Stride))
		}
	}
	return w.buf
}

// KeyHash is the 16-byte instance key hash: the key CDR itself, zero
// padded, when the key is fixed size and fits, otherwise its MD5 digest.
func (st *Sertype) KeyHash(keyCDR []byte) [16]byte {
	return KeyHash(keyCDR, st.fixedKey)
}

// KeyHash computes the key hash of an already serialized key.
func KeyHash(keyCDR []byte, fixed bool) [16]byte {
	var h [16]byte
	if fixed && len(keyCDR) <= len(h) {
		copy(h[:], keyCDR)
		return h
	}
	return md5.Sum(keyCDR)
}

type keyWriter struct {
	buf []byte
}

func (w *keyWriter) align(n int) {
	for len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *keyWriter) put(k KeyKind, p unsafe.Pointer) {
	switch k {
	case KeyBool:
		if *(*bool)(p) {
			w.buf = append(w.buf, 1)
		} else {
			w.buf = append(w.buf, 0)
		}
	case KeyInt8, KeyUint8:
		w.buf = append(w.buf, *(*uint8)(p))
	case KeyInt16, KeyUint16:
		w.align(2)
		w.buf = binary.BigEndian.AppendUint16(w.buf, *(*uint16)(p))
	case KeyInt32, KeyUint32, KeyFloat32:
		w.align(4)
		w.buf = binary.BigEndian.AppendUint32(w.buf, *(*uint32)(p))
	case KeyInt64, KeyUint64, KeyFloat64:
		w.align(8)
		w.buf = binary.BigEndian.AppendUint64(w.buf, *(*uint64)(p))
	case KeyString:
		s := *(*string)(p)
		w.align(4)
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(s)+1))
		w.buf = append(w.buf, s...)
		w.buf = append(w.buf, 0)
	}
}

// KeyToSample writes the key leaves encoded in keyCDR into the sample at p,
// leaving the other fields untouched.
func (st *Sertype) KeyToSample(keyCDR []byte, p unsafe.Pointer) ReturnCode {
	r := keyReader{buf: keyCDR}
	for _, k := range st.Keys {
		base := unsafe.Add(p, k.Offset)
		n := max(k.Count, 1)
		for i := 0; i < n; i++ {
			if !r.get(k.Kind, unsafe.Add(base, uintptr(i)*k.Stride)) {
				return RetBadParameter
			}
		}
	}
	return RetOK
}

type keyReader struct {
	buf []byte
	pos int
}

func (r *keyReader) take(n, align int) []byte {
	for r.pos%align != 0 {
		r.pos++
	}
	if r.pos+n > len(r.buf) {
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *keyReader) get(k KeyKind, p unsafe.Pointer) bool {
	switch k {
	case KeyBool:
		b := r.take(1, 1)
		if b == nil {
			return false
		}
		*(*bool)(p) = b[0] != 0
	case KeyInt8, KeyUint8:
		b := r.take(1, 1)
		if b == nil {
			return false
		}
		*(*uint8)(p) = b[0]
	case KeyInt16, KeyUint16:
		b := r.take(2, 2)
		if b == nil {
			return false
		}
		*(*uint16)(p) = binary.BigEndian.Uint16(b)
	case KeyInt32, KeyUint32, KeyFloat32:
		b := r.take(4, 4)
		if b == nil {
			return false
		}
		*(*uint32)(p) = binary.BigEndian.Uint32(b)
	case KeyInt64, KeyUint64, KeyFloat64:
		b := r.take(8, 8)
		if b == nil {
			return false
		}
		*(*uint64)(p) = binary.BigEndian.Uint64(b)
	case KeyString:
		b := r.take(4, 4)
		if b == nil {
			return false
		}
		n := int(binary.BigEndian.Uint32(b))
		s := r.take(n, 1)
		if s == nil || n == 0 {
			return false
		}
		*(*string)(p) = string(s[:n-1])
	default:
		return false
	}
	return true
}
