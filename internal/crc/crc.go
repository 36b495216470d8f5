package crc

// CRC16 CCITT (polynomial 0x1021), no reflection
type CRC16 uint16

// Update crc with a single byte
func (crc *CRC16) Single(chr byte) {
	c := uint16(*crc) ^ uint16(chr)<<8
	for i := 0; i < 8; i++ {
		if c&0x8000 != 0 {
			c = c<<1 ^ 0x1021
		} else {
			c <<= 1
		}
	}
	*crc = CRC16(c)
}

// Update crc with a block of bytes
func (crc *CRC16) Block(block []byte) {
	for _, b := range block {
		crc.Single(b)
	}
}
