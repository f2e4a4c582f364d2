//go:build tinygo

package device

import "errors"

var ErrRecordTooLarge = errors.New("device: config record exceeds sector")

// ConfigFlash stores the settings record in its own flash sector. It
// backs the config store; the record framing and CRC live there, this
// type only moves bytes.
type ConfigFlash struct {
	buf [SectorSize]byte
}

func (f *ConfigFlash) ReadRecord() ([]byte, error) {
	ReadFlash(ConfigSectorOffset, f.buf[:])
	return f.buf[:], nil
}

func (f *ConfigFlash) WriteRecord(rec []byte) error {
	if len(rec) > SectorSize {
		return ErrRecordTooLarge
	}
	// Pad up to a page boundary with erased-state bytes.
	n := (len(rec) + PageSize - 1) / PageSize * PageSize
	copy(f.buf[:], rec)
	for i := len(rec); i < n; i++ {
		f.buf[i] = 0xFF
	}
	EraseSector(ConfigSectorOffset)
	return WritePages(ConfigSectorOffset, f.buf[:n])
}
