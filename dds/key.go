package dds

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spaolacci/murmur3"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// KeyTag marks key fields:
//
//	type Reading struct {
//	    Sensor  SensorID `dds:"key"`
//	    Channel uint8    `dds:"key"`
//	    Value   float64
//	}
//
// A tagged struct field contributes its own tagged fields, or all of its
// fields when none is tagged.
const KeyTag = "dds"

// keyField is one key leaf: a scalar, a string or a fixed array of those.
type keyField struct {
	path   string
	index  []int
	kind   native.KeyKind
	count  int // array length, zero for a scalar
	offset uintptr
	stride uintptr
}

type keyLayout struct {
	typ    reflect.Type
	fields []keyField
	fixed  bool
}

type keyCacheKey struct {
	typ   reflect.Type
	paths string
}

var keyLayouts, _ = lru.New[keyCacheKey, *keyLayout](512)

// KeySpec is the ordered list of key fields of T. It is derived once per
// type and never changes.
type KeySpec[T any] struct {
	layout *keyLayout
}

// KeySpecFor derives the key of T from its dds:"key" tags. A type without
// tags is keyless: every sample belongs to one instance.
func KeySpecFor[T any]() (*KeySpec[T], error) {
	t := reflect.TypeFor[T]()
	ck := keyCacheKey{typ: t}
	if l, ok := keyLayouts.Get(ck); ok {
		return &KeySpec[T]{layout: l}, nil
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: topic type %s is not a struct", ErrBadParameter, t)
	}
	l := &keyLayout{typ: t, fixed: true}
	if err := l.addTagged(t, nil, "", 0); err != nil {
		return nil, err
	}
	keyLayouts.Add(ck, l)
	return &KeySpec[T]{layout: l}, nil
}

// NewKeySpec builds the key of T from dotted field paths, in order,
// ignoring tags. A path to a struct contributes that struct the way a
// tagged field does.
func NewKeySpec[T any](paths ...string) (*KeySpec[T], error) {
	t := reflect.TypeFor[T]()
	ck := keyCacheKey{typ: t, paths: "\x00" + strings.Join(paths, "\x00")}
	if l, ok := keyLayouts.Get(ck); ok {
		return &KeySpec[T]{layout: l}, nil
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: topic type %s is not a struct", ErrBadParameter, t)
	}
	l := &keyLayout{typ: t, fixed: true}
	for _, p := range paths {
		if err := l.addPath(t, p); err != nil {
			return nil, err
		}
	}
	keyLayouts.Add(ck, l)
	return &KeySpec[T]{layout: l}, nil
}

func (l *keyLayout) addPath(t reflect.Type, path string) error {
	var index []int
	var offset uintptr
	cur := t
	names := strings.Split(path, ".")
	for i, name := range names {
		if cur.Kind() != reflect.Struct {
			return fmt.Errorf("%w: key path %q: %s is not a struct", ErrBadParameter, path, strings.Join(names[:i], "."))
		}
		f, ok := cur.FieldByName(name)
		if !ok || len(f.Index) != 1 || !f.IsExported() {
			return fmt.Errorf("%w: key path %q: no exported field %s in %s", ErrBadParameter, path, name, cur)
		}
		index = append(index, f.Index[0])
		offset += f.Offset
		cur = f.Type
	}
	return l.addField(cur, index, path, offset)
}

// addTagged adds the tagged fields of struct t. With all set every field
// counts as tagged.
func (l *keyLayout) addTagged(t reflect.Type, index []int, prefix string, base uintptr) error {
	return l.addFields(t, index, prefix, base, false)
}

func (l *keyLayout) addFields(t reflect.Type, index []int, prefix string, base uintptr, all bool) error {
	for i := range t.NumField() {
		f := t.Field(i)
		if !all && !isKeyTag(f.Tag) {
			continue
		}
		if !f.IsExported() {
			return fmt.Errorf("%w: key field %s%s of %s is not exported", ErrBadParameter, prefix, f.Name, l.typ)
		}
		idx := append(slices.Clone(index), i)
		if err := l.addField(f.Type, idx, prefix+f.Name, base+f.Offset); err != nil {
			return err
		}
	}
	return nil
}

func (l *keyLayout) addField(t reflect.Type, index []int, path string, offset uintptr) error {
	if t.Kind() == reflect.Struct {
		return l.addFields(t, index, path+".", offset, !hasKeyTags(t))
	}
	kf := keyField{path: path, index: index, offset: offset}
	leaf := t
	if t.Kind() == reflect.Array {
		if t.Len() == 0 {
			return fmt.Errorf("%w: key field %s of %s is an empty array", ErrBadParameter, path, l.typ)
		}
		kf.count = t.Len()
		kf.stride = t.Elem().Size()
		leaf = t.Elem()
	}
	kind, ok := keyKindOf(leaf)
	if !ok {
		return fmt.Errorf("%w: key field %s of %s has unsupported type %s", ErrBadParameter, path, l.typ, t)
	}
	kf.kind = kind
	if kind == native.KeyString {
		l.fixed = false
	}
	l.fields = append(l.fields, kf)
	return nil
}

func isKeyTag(tag reflect.StructTag) bool {
	v, ok := tag.Lookup(KeyTag)
	return ok && slices.Contains(strings.Split(v, ","), "key")
}

func hasKeyTags(t reflect.Type) bool {
	for i := range t.NumField() {
		if isKeyTag(t.Field(i).Tag) {
			return true
		}
	}
	return false
}

func keyKindOf(t reflect.Type) (native.KeyKind, bool) {
	switch t.Kind() {
	case reflect.Bool:
		return native.KeyBool, true
	case reflect.Int8:
		return native.KeyInt8, true
	case reflect.Uint8:
		return native.KeyUint8, true
	case reflect.Int16:
		return native.KeyInt16, true
	case reflect.Uint16:
		return native.KeyUint16, true
	case reflect.Int32:
		return native.KeyInt32, true
	case reflect.Uint32:
		return native.KeyUint32, true
	case reflect.Int64:
		return native.KeyInt64, true
	case reflect.Uint64:
		return native.KeyUint64, true
	case reflect.Int:
		return native.KeyInt64, t.Size() == 8
	case reflect.Uint:
		return native.KeyUint64, t.Size() == 8
	case reflect.Float32:
		return native.KeyFloat32, true
	case reflect.Float64:
		return native.KeyFloat64, true
	case reflect.String:
		return native.KeyString, true
	}
	return 0, false
}

// descriptors returns the layout in the form the runtime reads raw samples.
func (l *keyLayout) descriptors() []native.KeyDescriptor {
	ds := make([]native.KeyDescriptor, len(l.fields))
	for i, f := range l.fields {
		ds[i] = native.KeyDescriptor{
			Name:   f.path,
			Offset: f.offset,
			Kind:   f.kind,
			Count:  f.count,
			Stride: f.stride,
		}
	}
	return ds
}

// Paths returns the dotted paths of the key fields in key order.
func (s *KeySpec[T]) Paths() []string {
	ps := make([]string, len(s.layout.fields))
	for i, f := range s.layout.fields {
		ps[i] = f.path
	}
	return ps
}

// IsKeyless reports whether T has no key fields.
func (s *KeySpec[T]) IsKeyless() bool { return len(s.layout.fields) == 0 }

// Extract reads the key of sample. A nil sample has the zero key.
func (s *KeySpec[T]) Extract(sample *T) InstanceKey {
	if sample == nil {
		return InstanceKey{}
	}
	v := reflect.ValueOf(sample).Elem()
	k := InstanceKey{fixed: s.layout.fixed}
	var enc keyEncoder
	for _, f := range s.layout.fields {
		fv := v.FieldByIndex(f.index)
		k.values = append(k.values, fv.Interface())
		if f.count == 0 {
			enc.put(fv)
			continue
		}
		for i := range f.count {
			enc.put(fv.Index(i))
		}
	}
	k.cdr = enc.buf
	return k
}

// keyEncoder writes key leaves as big-endian CDR.
type keyEncoder struct {
	buf []byte
}

func (e *keyEncoder) align(n int) {
	for len(e.buf)%n != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *keyEncoder) put(v reflect.Value) {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			e.buf = append(e.buf, 1)
		} else {
			e.buf = append(e.buf, 0)
		}
	case reflect.Int8:
		e.buf = append(e.buf, byte(v.Int()))
	case reflect.Uint8:
		e.buf = append(e.buf, byte(v.Uint()))
	case reflect.Int16:
		e.align(2)
		e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(v.Int()))
	case reflect.Uint16:
		e.align(2)
		e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(v.Uint()))
	case reflect.Int32:
		e.align(4)
		e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(v.Int()))
	case reflect.Uint32:
		e.align(4)
		e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(v.Uint()))
	case reflect.Float32:
		e.align(4)
		e.buf = binary.BigEndian.AppendUint32(e.buf, math.Float32bits(float32(v.Float())))
	case reflect.Int64, reflect.Int:
		e.align(8)
		e.buf = binary.BigEndian.AppendUint64(e.buf, uint64(v.Int()))
	case reflect.Uint64, reflect.Uint:
		e.align(8)
		e.buf = binary.BigEndian.AppendUint64(e.buf, v.Uint())
	case reflect.Float64:
		e.align(8)
		e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(v.Float()))
	case reflect.String:
		s := v.String()
		e.align(4)
		e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(len(s)+1))
		e.buf = append(e.buf, s...)
		e.buf = append(e.buf, 0)
	}
}

// InstanceKey is the key of one sample: the values of its key fields and
// their serialized form, which is what identifies the instance.
type InstanceKey struct {
	values []any
	cdr    []byte
	fixed  bool
}

// Values returns the key field values in key order.
func (k InstanceKey) Values() []any { return slices.Clone(k.values) }

// Bytes returns the key serialized as big-endian CDR.
func (k InstanceKey) Bytes() []byte { return bytes.Clone(k.cdr) }

// Hash returns the 16-byte key hash: the serialized key zero padded when
// the key has a fixed size of at most 16 bytes, its MD5 digest otherwise.
func (k InstanceKey) Hash() [16]byte {
	var h [16]byte
	if k.fixed && len(k.cdr) <= len(h) {
		copy(h[:], k.cdr)
		return h
	}
	return md5.Sum(k.cdr)
}

// Hash32 returns the murmur3 hash of the serialized key.
func (k InstanceKey) Hash32() uint32 { return murmur3.Sum32(k.cdr) }

// Equal compares the serialized keys.
func (k InstanceKey) Equal(o InstanceKey) bool { return bytes.Equal(k.cdr, o.cdr) }

func (k InstanceKey) String() string { return fmt.Sprint(k.values) }
