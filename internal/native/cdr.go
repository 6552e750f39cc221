package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
)

// Sample payloads are XCDR1 little endian with a 4-byte encapsulation
// header; alignment is relative to the end of the header.
var cdrHeader = [4]byte{0x00, 0x01, 0x00, 0x00}

var errShortBuffer = errors.New("cdr: buffer too short")

func checkSerializable(t reflect.Type) error {
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return nil
	case reflect.Slice, reflect.Array:
		return checkSerializable(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			if err := checkSerializable(f.Type); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		return nil
	}
	return fmt.Errorf("cdr: unsupported kind %s", t.Kind())
}

type cdrWriter struct {
	buf []byte
}

func serialize(v reflect.Value) ([]byte, error) {
	w := cdrWriter{buf: append(make([]byte, 0, 64), cdrHeader[:]...)}
	if err := w.encode(v); err != nil {
		return nil, err
	}
	return w.buf, nil
}

func (w *cdrWriter) align(n int) {
	for (len(w.buf)-len(cdrHeader))%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *cdrWriter) u16(v uint16) {
	w.align(2)
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *cdrWriter) u32(v uint32) {
	w.align(4)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *cdrWriter) u64(v uint64) {
	w.align(8)
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *cdrWriter) encode(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			w.buf = append(w.buf, 1)
		} else {
			w.buf = append(w.buf, 0)
		}
	case reflect.Int8:
		w.buf = append(w.buf, byte(v.Int()))
	case reflect.Uint8:
		w.buf = append(w.buf, byte(v.Uint()))
	case reflect.Int16:
		w.u16(uint16(v.Int()))
	case reflect.Uint16:
		w.u16(uint16(v.Uint()))
	case reflect.Int32:
		w.u32(uint32(v.Int()))
	case reflect.Uint32:
		w.u32(uint32(v.Uint()))
	case reflect.Float32:
		w.u32(math.Float32bits(float32(v.Float())))
	case reflect.Int, reflect.Int64:
		w.u64(uint64(v.Int()))
	case reflect.Uint, reflect.Uint64:
		w.u64(v.Uint())
	case reflect.Float64:
		w.u64(math.Float64bits(v.Float()))
	case reflect.String:
		s := v.String()
		w.u32(uint32(len(s) + 1))
		w.buf = append(w.buf, s...)
		w.buf = append(w.buf, 0)
	case reflect.Slice:
		w.u32(uint32(v.Len()))
		return w.elems(v)
	case reflect.Array:
		return w.elems(v)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := w.encode(v.Field(i)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("cdr: unsupported kind %s", v.Kind())
	}
	return nil
}

func (w *cdrWriter) elems(v reflect.Value) error {
	if v.Type().Elem().Kind() == reflect.Uint8 {
		for i := 0; i < v.Len(); i++ {
			w.buf = append(w.buf, byte(v.Index(i).Uint()))
		}
		return nil
	}
	for i := 0; i < v.Len(); i++ {
		if err := w.encode(v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

type cdrReader struct {
	buf []byte
	pos int
}

func deserialize(data []byte, v reflect.Value) error {
	if len(data) < len(cdrHeader) {
		return errShortBuffer
	}
	if data[0] != cdrHeader[0] || data[1] != cdrHeader[1] {
		return fmt.Errorf("cdr: unsupported encapsulation %#02x%02x", data[0], data[1])
	}
	r := cdrReader{buf: data, pos: len(cdrHeader)}
	return r.decode(v)
}

func (r *cdrReader) align(n int) {
	for (r.pos-len(cdrHeader))%n != 0 {
		r.pos++
	}
}

func (r *cdrReader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errShortBuffer
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *cdrReader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *cdrReader) u16() (uint16, error) {
	r.align(2)
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *cdrReader) u32() (uint32, error) {
	r.align(4)
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *cdrReader) u64() (uint64, error) {
	r.align(8)
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *cdrReader) decode(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		b, err := r.u8()
		if err != nil {
			return err
		}
		v.SetBool(b != 0)
	case reflect.Int8:
		b, err := r.u8()
		if err != nil {
			return err
		}
		v.SetInt(int64(int8(b)))
	case reflect.Uint8:
		b, err := r.u8()
		if err != nil {
			return err
		}
		v.SetUint(uint64(b))
	case reflect.Int16:
		x, err := r.u16()
		if err != nil {
			return err
		}
		v.SetInt(int64(int16(x)))
	case reflect.Uint16:
		x, err := r.u16()
		if err != nil {
			return err
		}
		v.SetUint(uint64(x))
	case reflect.Int32:
		x, err := r.u32()
		if err != nil {
			return err
		}
		v.SetInt(int64(int32(x)))
	case reflect.Uint32:
		x, err := r.u32()
		if err != nil {
			return err
		}
		v.SetUint(uint64(x))
	case reflect.Float32:
		x, err := r.u32()
		if err != nil {
			return err
		}
		v.SetFloat(float64(math.Float32frombits(x)))
	case reflect.Int, reflect.Int64:
		x, err := r.u64()
		if err != nil {
			return err
		}
		v.SetInt(int64(x))
	case reflect.Uint, reflect.Uint64:
		x, err := r.u64()
		if err != nil {
			return err
		}
		v.SetUint(x)
	case reflect.Float64:
		x, err := r.u64()
		if err != nil {
			return err
		}
		v.SetFloat(math.Float64frombits(x))
	case reflect.String:
		n, err := r.u32()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("cdr: string without terminator")
		}
		b, err := r.take(int(n))
		if err != nil {
			return err
		}
		v.SetString(string(b[:n-1]))
	case reflect.Slice:
		n, err := r.u32()
		if err != nil {
			return err
		}
		if int(n) > len(r.buf)-r.pos && v.Type().Elem().Size() > 0 {
			return errShortBuffer
		}
		v.Set(reflect.MakeSlice(v.Type(), int(n), int(n)))
		return r.elems(v)
	case reflect.Array:
		return r.elems(v)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := r.decode(v.Field(i)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("cdr: unsupported kind %s", v.Kind())
	}
	return nil
}

func (r *cdrReader) elems(v reflect.Value) error {
	for i := 0; i < v.Len(); i++ {
		if err := r.decode(v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}
