package od

import "strings"

// CANopen data types
const (
	BOOLEAN        uint8 = 0x01
	INTEGER8       uint8 = 0x02
	INTEGER16      uint8 = 0x03
	INTEGER32      uint8 = 0x04
	UNSIGNED8      uint8 = 0x05
	UNSIGNED16     uint8 = 0x06
	UNSIGNED32     uint8 = 0x07
	REAL32         uint8 = 0x08
	VISIBLE_STRING uint8 = 0x09
	OCTET_STRING   uint8 = 0x0A
	UNICODE_STRING uint8 = 0x0B
	DOMAIN         uint8 = 0x0F
	REAL64         uint8 = 0x11
	INTEGER64      uint8 = 0x15
	UNSIGNED64     uint8 = 0x1B
)

// Object types
const (
	ObjectTypeDOMAIN uint8 = 2
	ObjectTypeVAR    uint8 = 7
	ObjectTypeARRAY  uint8 = 8
	ObjectTypeRECORD uint8 = 9
)

// Object dictionary object attribute
const (
	AttributeSdoR  uint8 = 0x01 // SDO server may read from the variable
	AttributeSdoW  uint8 = 0x02 // SDO server may write to the variable
	AttributeSdoRw uint8 = 0x03 // SDO server may read from or write to the variable
	AttributeTpdo  uint8 = 0x04 // Variable is mappable into TPDO (can be read)
	AttributeRpdo  uint8 = 0x08 // Variable is mappable into RPDO (can be written)
	AttributeTrpdo uint8 = 0x0C // Variable is mappable into TPDO or RPDO
	AttributeStr   uint8 = 0x80 // Variable length string
)

// Size in bytes of a data type, 0 for variable length types
func DataTypeSize(dataType uint8) int {
	switch dataType {
	case BOOLEAN, UNSIGNED8, INTEGER8:
		return 1
	case UNSIGNED16, INTEGER16:
		return 2
	case UNSIGNED32, INTEGER32, REAL32:
		return 4
	case UNSIGNED64, INTEGER64, REAL64:
		return 8
	}
	return 0
}

func isSigned(dataType uint8) bool {
	return dataType == INTEGER8 || dataType == INTEGER16 || dataType == INTEGER32 || dataType == INTEGER64
}

// Attribute from the EDS access type and pdo mapping
func EncodeAttribute(accessType string, pdoMapping bool, dataType uint8) uint8 {
	var attribute uint8

	switch strings.ToLower(accessType) {
	case "rw", "rww", "rwr":
		attribute = AttributeSdoRw
	case "ro", "const":
		attribute = AttributeSdoR
	case "wo":
		attribute = AttributeSdoW
	default:
		attribute = AttributeSdoRw
	}
	if pdoMapping {
		attribute |= AttributeTrpdo
	}
	if dataType == VISIBLE_STRING || dataType == OCTET_STRING {
		attribute |= AttributeStr
	}
	return attribute
}

func DecodeAttribute(attribute uint8) string {
	switch attribute & AttributeSdoRw {
	case AttributeSdoRw:
		return "rw"
	case AttributeSdoR:
		return "ro"
	case AttributeSdoW:
		return "wo"
	}
	return "rw"
}
