package od

import (
	"testing"

	candle "github.com/samsamfire/gocandle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefault(t *testing.T) {
	od := Default()
	require.NotNil(t, od)
	assert.Greater(t, od.Len(), 200)

	t.Run("variable", func(t *testing.T) {
		entry, err := od.Entry(0x1000, 0)
		assert.Nil(t, err)
		assert.Equal(t, "Device type", entry.Name)
		assert.Equal(t, UNSIGNED32, entry.DataType)
		assert.Equal(t, []byte{0x92, 0x01, 0, 0}, entry.Default)
		assert.True(t, entry.Readable())
		assert.False(t, entry.Writable())
	})
	t.Run("record member", func(t *testing.T) {
		entry, err := od.Entry(0x2000, 6)
		assert.Nil(t, err)
		assert.Equal(t, "Motor Name", entry.Name)
		assert.Equal(t, "Motor Settings", entry.ObjectName)
		assert.True(t, entry.Segmented())
		assert.True(t, entry.Writable())
	})
	t.Run("hex real default", func(t *testing.T) {
		entry, err := od.Entry(0x2000, 2)
		assert.Nil(t, err)
		assert.Equal(t, REAL32, entry.DataType)
		assert.Equal(t, []byte{0, 0, 0, 0}, entry.Default)
	})
	t.Run("unknown", func(t *testing.T) {
		_, err := od.Entry(0x1000, 1)
		assert.ErrorIs(t, err, candle.ErrUnknownIndex)
		_, err = od.Entry(0x5FFF, 0)
		assert.ErrorIs(t, err, candle.ErrUnknownIndex)
	})
	t.Run("lookup by name", func(t *testing.T) {
		entry, err := od.Lookup("Controlword")
		assert.Nil(t, err)
		assert.EqualValues(t, 0x6040, entry.Index)
		// Shared by many records, only qualified name works
		_, err = od.Lookup("Highest sub-index supported")
		assert.ErrorIs(t, err, candle.ErrUnknownIndex)
		entry, err = od.Lookup("Motor Settings.Pole pairs")
		assert.Nil(t, err)
		assert.EqualValues(t, 0x2000, entry.Index)
		assert.EqualValues(t, 1, entry.SubIndex)
		_, err = od.Lookup("controlword")
		assert.ErrorIs(t, err, candle.ErrUnknownIndex)
	})
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("[2000sub1]\nParameterName=orphan\nDataType=0x7\nAccessType=rw\n"))
	assert.NotNil(t, err)
	_, err = Parse([]byte("[2000]\nParameterName=no access\nDataType=0x7\n"))
	assert.NotNil(t, err)
	_, err = Parse([]byte("[2000]\nParameterName=bad default\nDataType=0x5\nAccessType=rw\nDefaultValue=0x1FF\n"))
	assert.NotNil(t, err)
}

func TestEncoding(t *testing.T) {
	data, err := EncodeFromString("-2", INTEGER16)
	assert.Nil(t, err)
	assert.Equal(t, []byte{0xFE, 0xFF}, data)
	s, err := DecodeToString(data, INTEGER16, 10)
	assert.Nil(t, err)
	assert.Equal(t, "-2", s)

	data, err = EncodeFromString("1.5", REAL32)
	assert.Nil(t, err)
	v, err := DecodeToType(data, REAL32)
	assert.Nil(t, err)
	assert.Equal(t, 1.5, v)

	// Hex reals are bit patterns
	data, err = EncodeFromString("0x3FC00000", REAL32)
	assert.Nil(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xC0, 0x3F}, data)
	data, err = EncodeFromString("0x3FF8000000000000", REAL64)
	assert.Nil(t, err)
	v, err = DecodeToType(data, REAL64)
	assert.Nil(t, err)
	assert.Equal(t, 1.5, v)
	_, err = EncodeFromString("0x1FFFFFFFF", REAL32)
	assert.NotNil(t, err)

	_, err = DecodeToType([]byte{1, 2, 3}, UNSIGNED32)
	assert.ErrorIs(t, err, candle.ErrMalformedPayload)
	_, err = EncodeFromString("1", 0x40)
	assert.ErrorIs(t, err, candle.ErrTypeMismatch)
}
