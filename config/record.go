package config

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// Flash record framing. The JSON payload is wrapped in a small header so
// a blank or half-programmed sector is detected on the next boot rather
// than parsed as garbage. The whole record is written with one program
// operation, which is what gives the store its replace-whole semantics.
const (
	recordMagic   = 0x414e4331 // "ANC1"
	recordHdrSize = 4 + 2 + 4  // magic + length + crc
	// MaxRecordSize bounds the framed record to one 4KB flash sector.
	MaxRecordSize = 4096
)

// Framing errors.
var (
	ErrNoRecord      = errors.New("config: no record present")
	ErrCorruptRecord = errors.New("config: record failed checksum")
)

// EncodeRecord frames a JSON payload for flash storage into buf.
func EncodeRecord(buf, payload []byte) ([]byte, error) {
	if recordHdrSize+len(payload) > MaxRecordSize || recordHdrSize+len(payload) > len(buf) {
		return nil, errors.New("config: record too large")
	}
	binary.LittleEndian.PutUint32(buf[0:], recordMagic)
	binary.LittleEndian.PutUint16(buf[4:], uint16(len(payload)))
	binary.LittleEndian.PutUint32(buf[6:], crc32.ChecksumIEEE(payload))
	copy(buf[recordHdrSize:], payload)
	return buf[:recordHdrSize+len(payload)], nil
}

// DecodeRecord extracts the JSON payload from a framed flash record.
// An erased sector (all 0xFF) reads as ErrNoRecord so first boot is
// distinguishable from corruption.
func DecodeRecord(sector []byte) ([]byte, error) {
	if len(sector) < recordHdrSize {
		return nil, ErrNoRecord
	}
	magic := binary.LittleEndian.Uint32(sector[0:])
	if magic == 0xffffffff {
		return nil, ErrNoRecord
	}
	if magic != recordMagic {
		return nil, ErrCorruptRecord
	}
	n := int(binary.LittleEndian.Uint16(sector[4:]))
	if recordHdrSize+n > len(sector) {
		return nil, ErrCorruptRecord
	}
	payload := sector[recordHdrSize : recordHdrSize+n]
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(sector[6:]) {
		return nil, ErrCorruptRecord
	}
	return payload, nil
}
