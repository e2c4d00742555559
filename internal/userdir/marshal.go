package userdir

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
)

// Marshal and Unmarshal walk a directory struct field-by-field via
// reflection rather than a hand-written byte offset table per struct
// (the teacher's internal/uapi/marshal.go approach for its small,
// fixed ioctl structs) because userdir's three size-discriminated
// layouts share a growing prefix of fields — a reflect walk lets
// Marshal/Unmarshal handle all three without duplicating the ScanDir
// encoding three times. Every multi-byte field is little-endian, and
// every struct is serialized in declaration order with no implicit
// padding — the explicit Spare fields on ModuleHeader/DriveInfo stand
// in for the vendor struct's real compiler-inserted alignment bytes,
// reconciling "size mismatches between SDK versions" the way
// original_source's padded structs do (spec.md §6).
func Marshal(d *Directory) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := marshalValue(buf, reflect.ValueOf(d.Scans)); err != nil {
		return nil, err
	}
	if d.Layout >= LayoutEnhanced {
		if err := marshalValue(buf, reflect.ValueOf(d.Header)); err != nil {
			return nil, err
		}
	}
	if d.Layout >= LayoutEnhancedWithDriveInfo {
		if err := marshalValue(buf, reflect.ValueOf(d.Drive)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Unmarshal detects the layout from len(data) and decodes accordingly.
func Unmarshal(data []byte) (*Directory, error) {
	layout, err := DetectLayout(len(data))
	if err != nil {
		return nil, err
	}
	d := &Directory{Layout: layout}
	r := bytes.NewReader(data)
	if err := unmarshalValue(r, reflect.ValueOf(&d.Scans).Elem()); err != nil {
		return nil, fmt.Errorf("userdir: decoding scan table: %w", err)
	}
	if layout >= LayoutEnhanced {
		if err := unmarshalValue(r, reflect.ValueOf(&d.Header).Elem()); err != nil {
			return nil, fmt.Errorf("userdir: decoding module header: %w", err)
		}
	}
	if layout >= LayoutEnhancedWithDriveInfo {
		if err := unmarshalValue(r, reflect.ValueOf(&d.Drive).Elem()); err != nil {
			return nil, fmt.Errorf("userdir: decoding drive info: %w", err)
		}
	}
	return d, nil
}

func marshalValue(buf *bytes.Buffer, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := marshalValue(buf, v.Field(i)); err != nil {
				return err
			}
		}
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := marshalValue(buf, v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Uint8:
		buf.WriteByte(byte(v.Uint()))
	case reflect.Int32:
		return binary.Write(buf, binary.LittleEndian, int32(v.Int()))
	case reflect.Uint32:
		return binary.Write(buf, binary.LittleEndian, uint32(v.Uint()))
	case reflect.Uint64:
		return binary.Write(buf, binary.LittleEndian, v.Uint())
	case reflect.Float64:
		return binary.Write(buf, binary.LittleEndian, v.Float())
	default:
		return fmt.Errorf("userdir: unsupported field kind %s", v.Kind())
	}
	return nil
}

func unmarshalValue(r *bytes.Reader, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := unmarshalValue(r, v.Field(i)); err != nil {
				return err
			}
		}
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := unmarshalValue(r, v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Uint8:
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		v.SetUint(uint64(b))
	case reflect.Int32:
		var x int32
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return err
		}
		v.SetInt(int64(x))
	case reflect.Uint32:
		var x uint32
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return err
		}
		v.SetUint(uint64(x))
	case reflect.Uint64:
		var x uint64
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return err
		}
		v.SetUint(x)
	case reflect.Float64:
		var x float64
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return err
		}
		v.SetFloat(x)
	default:
		return fmt.Errorf("userdir: unsupported field kind %s", v.Kind())
	}
	return nil
}

// sizeOf computes a value's marshaled size without actually encoding
// it, used once at package init to derive each Layout's total size.
func sizeOf(v interface{}) int {
	return sizeOfValue(reflect.ValueOf(v))
}

func sizeOfValue(v reflect.Value) int {
	switch v.Kind() {
	case reflect.Struct:
		n := 0
		for i := 0; i < v.NumField(); i++ {
			n += sizeOfValue(v.Field(i))
		}
		return n
	case reflect.Array:
		if v.Len() == 0 {
			return 0
		}
		return v.Len() * sizeOfValue(v.Index(0))
	case reflect.Uint8:
		return 1
	case reflect.Int32, reflect.Uint32:
		return 4
	case reflect.Uint64, reflect.Float64:
		return 8
	default:
		panic(fmt.Sprintf("userdir: unsupported field kind %s", v.Kind()))
	}
}
