package register

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	candle "github.com/samsamfire/gocandle"
)

// Encode value into its little endian wire representation.
// The Go type of value must match t exactly : uint8 for U8, []float32 for
// F32 arrays of the right arity, string for strings no longer than the width.
func Encode(t Type, value any) ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w : invalid type %v", candle.ErrTypeMismatch, t)
	}
	buf := make([]byte, t.Width())
	if err := EncodeToBuffer(t, value, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Same as [Encode] but writes into buf which must be at least t.Width() long
func EncodeToBuffer(t Type, value any, buf []byte) error {
	if len(buf) < t.Width() {
		return fmt.Errorf("%w : buffer too small for %v", candle.ErrInvalidArgs, t)
	}
	mismatch := func() error {
		return fmt.Errorf("%w : %T for %v", candle.ErrTypeMismatch, value, t)
	}
	if t.IsString() {
		s, ok := value.(string)
		if !ok {
			return mismatch()
		}
		if len(s) > t.Count {
			return fmt.Errorf("%w : string of %d bytes for %v", candle.ErrTypeMismatch, len(s), t)
		}
		n := copy(buf, s)
		for i := n; i < t.Count; i++ {
			buf[i] = 0
		}
		return nil
	}
	if !t.IsArray() {
		if !putScalar(t.Elem, value, buf) {
			return mismatch()
		}
		return nil
	}
	size := t.Elem.Size()
	var ok bool
	switch values := value.(type) {
	case []uint8:
		ok = encodeSlice(t, U8, values, buf, size)
	case []uint16:
		ok = encodeSlice(t, U16, values, buf, size)
	case []uint32:
		ok = encodeSlice(t, U32, values, buf, size)
	case []int8:
		ok = encodeSlice(t, I8, values, buf, size)
	case []int16:
		ok = encodeSlice(t, I16, values, buf, size)
	case []int32:
		ok = encodeSlice(t, I32, values, buf, size)
	case []float32:
		ok = encodeSlice(t, F32, values, buf, size)
	}
	if !ok {
		return mismatch()
	}
	return nil
}

func encodeSlice[T any](t Type, kind Kind, values []T, buf []byte, size int) bool {
	if t.Elem != kind || len(values) != t.Count {
		return false
	}
	for i, v := range values {
		putScalar(kind, v, buf[i*size:])
	}
	return true
}

func putScalar(kind Kind, value any, buf []byte) bool {
	switch v := value.(type) {
	case uint8:
		if kind != U8 {
			return false
		}
		buf[0] = v
	case int8:
		if kind != I8 {
			return false
		}
		buf[0] = byte(v)
	case uint16:
		if kind != U16 {
			return false
		}
		binary.LittleEndian.PutUint16(buf, v)
	case int16:
		if kind != I16 {
			return false
		}
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case uint32:
		if kind != U32 {
			return false
		}
		binary.LittleEndian.PutUint32(buf, v)
	case int32:
		if kind != I32 {
			return false
		}
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case float32:
		if kind != F32 {
			return false
		}
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	default:
		return false
	}
	return true
}

// Decode data into the Go value matching t.
// data must be exactly t.Width() bytes long.
func Decode(t Type, data []byte) (any, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w : invalid type %v", candle.ErrTypeMismatch, t)
	}
	if len(data) != t.Width() {
		return nil, fmt.Errorf("%w : got %d bytes for %v", candle.ErrMalformedPayload, len(data), t)
	}
	if t.IsString() {
		if end := bytes.IndexByte(data, 0); end >= 0 {
			data = data[:end]
		}
		return string(data), nil
	}
	if !t.IsArray() {
		return getScalar(t.Elem, data), nil
	}
	size := t.Elem.Size()
	switch t.Elem {
	case U8:
		return decodeSlice[uint8](t, data, size), nil
	case U16:
		return decodeSlice[uint16](t, data, size), nil
	case U32:
		return decodeSlice[uint32](t, data, size), nil
	case I8:
		return decodeSlice[int8](t, data, size), nil
	case I16:
		return decodeSlice[int16](t, data, size), nil
	case I32:
		return decodeSlice[int32](t, data, size), nil
	default:
		return decodeSlice[float32](t, data, size), nil
	}
}

func decodeSlice[T any](t Type, data []byte, size int) []T {
	values := make([]T, t.Count)
	for i := range values {
		values[i] = getScalar(t.Elem, data[i*size:]).(T)
	}
	return values
}

func getScalar(kind Kind, data []byte) any {
	switch kind {
	case U8:
		return data[0]
	case I8:
		return int8(data[0])
	case U16:
		return binary.LittleEndian.Uint16(data)
	case I16:
		return int16(binary.LittleEndian.Uint16(data))
	case U32:
		return binary.LittleEndian.Uint32(data)
	case I32:
		return int32(binary.LittleEndian.Uint32(data))
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(data))
	}
}

// Interpret the low bits of raw as a two's complement value
func SignExtend(raw uint32, bits int) int32 {
	if bits <= 0 || bits >= 32 {
		return int32(raw)
	}
	shift := 32 - bits
	return int32(raw<<shift) >> shift
}

// Parse a textual value into the Go value matching t.
// Arrays are given as comma separated elements.
func ParseValue(t Type, s string) (any, error) {
	if t.IsString() {
		return s, nil
	}
	if !t.IsArray() {
		return parseScalar(t.Elem, strings.TrimSpace(s))
	}
	fields := strings.Split(s, ",")
	if len(fields) != t.Count {
		return nil, fmt.Errorf("%w : %d elements for %v", candle.ErrTypeMismatch, len(fields), t)
	}
	buf := make([]byte, t.Width())
	size := t.Elem.Size()
	for i, field := range fields {
		v, err := parseScalar(t.Elem, strings.TrimSpace(field))
		if err != nil {
			return nil, err
		}
		putScalar(t.Elem, v, buf[i*size:])
	}
	return Decode(t, buf)
}

func parseScalar(kind Kind, s string) (any, error) {
	var (
		u   uint64
		i   int64
		f   float64
		err error
	)
	switch kind {
	case U8, U16, U32:
		u, err = strconv.ParseUint(s, 0, kind.Size()*8)
	case I8, I16, I32:
		i, err = strconv.ParseInt(s, 0, kind.Size()*8)
	case F32:
		f, err = strconv.ParseFloat(s, 32)
	}
	if err != nil {
		return nil, fmt.Errorf("%w : %v", candle.ErrTypeMismatch, err)
	}
	switch kind {
	case U8:
		return uint8(u), nil
	case U16:
		return uint16(u), nil
	case U32:
		return uint32(u), nil
	case I8:
		return int8(i), nil
	case I16:
		return int16(i), nil
	case I32:
		return int32(i), nil
	default:
		return float32(f), nil
	}
}
