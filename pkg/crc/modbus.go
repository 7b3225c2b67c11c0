package crc

import "github.com/sigurn/crc16"

// table is the precomputed 256-entry Modbus table (reflected 0x8005, init 0xFFFF)
var table = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC16 calculates the Modbus RTU CRC16 checksum
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, table)
}

// VerifyCRC verifies the CRC16 checksum of a Modbus RTU frame
// Returns true if the trailing two bytes (little-endian) match the CRC of everything before them
func VerifyCRC(data []byte) bool {
	if len(data) < 2 {
		return false
	}

	calculatedCRC := CRC16(data[:len(data)-2])

	// Extract CRC from message (little-endian: CRC low byte first, then high byte)
	messageCRC := uint16(data[len(data)-2]) | (uint16(data[len(data)-1]) << 8)

	return calculatedCRC == messageCRC
}

// AppendCRC returns a copy of data with the CRC16 checksum appended low byte first
func AppendCRC(data []byte) []byte {
	crc := CRC16(data)

	result := make([]byte, len(data)+2)
	copy(result, data)
	result[len(data)] = byte(crc & 0xFF)
	result[len(data)+1] = byte(crc >> 8)

	return result
}
