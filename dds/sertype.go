package dds

import (
	"fmt"
	"reflect"
	"unsafe"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// TypeNamer lets a topic type choose the type name registered with the
// runtime. Types without it are registered as "<package path>::<name>".
type TypeNamer interface {
	TypeName() string
}

// typeSupport is the runtime description of T together with its key.
type typeSupport[T any] struct {
	st   *native.Sertype
	keys *KeySpec[T]
}

func typeNameOf[T any]() string {
	var zero T
	if n, ok := any(&zero).(TypeNamer); ok {
		return n.TypeName()
	}
	if n, ok := any(zero).(TypeNamer); ok {
		return n.TypeName()
	}
	t := reflect.TypeFor[T]()
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "::" + t.Name()
}

func newTypeSupport[T any](typeName string, keys *KeySpec[T]) (*typeSupport[T], error) {
	if keys == nil {
		var err error
		if keys, err = KeySpecFor[T](); err != nil {
			return nil, err
		}
	}
	if typeName == "" {
		typeName = typeNameOf[T]()
	}
	st, rc := native.NewSertype(typeName, reflect.TypeFor[T](), keys.layout.descriptors())
	if rc != native.RetOK {
		return nil, NewDdsError(ErrorCode(rc), fmt.Sprintf("type %s cannot be registered", reflect.TypeFor[T]()))
	}
	return &typeSupport[T]{st: st, keys: keys}, nil
}

// codecs holds keyless sertypes used by MarshalCDR and UnmarshalCDR.
var codecs, _ = lru.New[reflect.Type, *native.Sertype](256)

func codecFor[T any]() (*native.Sertype, error) {
	t := reflect.TypeFor[T]()
	if st, ok := codecs.Get(t); ok {
		return st, nil
	}
	st, rc := native.NewSertype(typeNameOf[T](), t, nil)
	if rc != native.RetOK {
		return nil, NewDdsError(ErrorCode(rc), fmt.Sprintf("type %s has no CDR encoding", t))
	}
	codecs.Add(t, st)
	return st, nil
}

// MarshalCDR serializes v the way writers put it on the wire: XCDR1,
// little endian, with the 4-byte encapsulation header.
func MarshalCDR[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil sample", ErrBadParameter)
	}
	st, err := codecFor[T]()
	if err != nil {
		return nil, err
	}
	data, rc := native.SerdataFromSample(st, unsafe.Pointer(v))
	if err := retError(rc, "serialize %s", st.TypeName); err != nil {
		return nil, err
	}
	return data, nil
}

// UnmarshalCDR decodes data produced by MarshalCDR into v.
func UnmarshalCDR[T any](data []byte, v *T) error {
	if v == nil {
		return fmt.Errorf("%w: nil sample", ErrBadParameter)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: cannot deserialize empty CDR data", ErrBadParameter)
	}
	st, err := codecFor[T]()
	if err != nil {
		return err
	}
	return retError(native.SerdataToSample(st, data, unsafe.Pointer(v)), "deserialize %s", st.TypeName)
}
