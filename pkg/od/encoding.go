package od

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	candle "github.com/samsamfire/gocandle"
)

// EncodeFromString value from EDS into bytes respecting canopen datatype
func EncodeFromString(value string, dataType uint8) ([]byte, error) {
	switch dataType {
	case VISIBLE_STRING, OCTET_STRING, UNICODE_STRING:
		return []byte(value), nil
	case DOMAIN:
		return []byte{}, nil
	}
	if value == "" {
		// Treat empty string as a 0 value
		value = "0"
	}
	size := DataTypeSize(dataType)
	if size == 0 {
		return nil, fmt.Errorf("%w : data type x%x", candle.ErrTypeMismatch, dataType)
	}
	var raw uint64
	switch dataType {
	case REAL32:
		parsed, err := strconv.ParseFloat(value, 32)
		if err == nil {
			raw = uint64(math.Float32bits(float32(parsed)))
			break
		}
		// Hex values are the IEEE bit pattern
		raw, err = strconv.ParseUint(value, 0, 32)
		if err != nil {
			return nil, err
		}
	case REAL64:
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			raw = math.Float64bits(parsed)
			break
		}
		raw, err = strconv.ParseUint(value, 0, 64)
		if err != nil {
			return nil, err
		}
	case INTEGER8, INTEGER16, INTEGER32, INTEGER64:
		parsed, err := strconv.ParseInt(value, 0, size*8)
		if err != nil {
			return nil, err
		}
		raw = uint64(parsed)
	default:
		parsed, err := strconv.ParseUint(value, 0, size*8)
		if err != nil {
			return nil, err
		}
		raw = parsed
	}
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, raw)
	return data[:size], nil
}

// Decode byte array given the CANopen data type
// Function will return either string, int64, uint64, or float64
func DecodeToType(data []byte, dataType uint8) (any, error) {
	if size := DataTypeSize(dataType); size > 0 && len(data) != size {
		return nil, fmt.Errorf("%w : %v bytes for data type x%x", candle.ErrMalformedPayload, len(data), dataType)
	}
	switch dataType {
	case BOOLEAN, UNSIGNED8:
		return uint64(data[0]), nil
	case INTEGER8:
		return int64(int8(data[0])), nil
	case UNSIGNED16:
		return uint64(binary.LittleEndian.Uint16(data)), nil
	case INTEGER16:
		return int64(int16(binary.LittleEndian.Uint16(data))), nil
	case UNSIGNED32:
		return uint64(binary.LittleEndian.Uint32(data)), nil
	case INTEGER32:
		return int64(int32(binary.LittleEndian.Uint32(data))), nil
	case UNSIGNED64:
		return binary.LittleEndian.Uint64(data), nil
	case INTEGER64:
		return int64(binary.LittleEndian.Uint64(data)), nil
	case REAL32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), nil
	case REAL64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	case VISIBLE_STRING, OCTET_STRING, UNICODE_STRING:
		return string(data), nil
	case DOMAIN:
		return data, nil
	}
	return nil, fmt.Errorf("%w : data type x%x", candle.ErrTypeMismatch, dataType)
}

// Decode byte array given the CANopen data type into a printable string
func DecodeToString(data []byte, dataType uint8, base int) (string, error) {
	value, err := DecodeToType(data, dataType)
	if err != nil {
		return "", err
	}
	switch v := value.(type) {
	case uint64:
		return strconv.FormatUint(v, base), nil
	case int64:
		return strconv.FormatInt(v, base), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case string:
		return v, nil
	}
	return fmt.Sprintf("% x", data), nil
}
