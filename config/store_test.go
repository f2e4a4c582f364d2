package config

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// memBackend mimics a flash sector: reads return the last whole record
// written, or an erased (all 0xFF) sector before the first write.
type memBackend struct {
	sector []byte
	writes int
}

func newMemBackend() *memBackend {
	return &memBackend{sector: bytes.Repeat([]byte{0xff}, MaxRecordSize)}
}

func (m *memBackend) ReadRecord() ([]byte, error) {
	return m.sector, nil
}

func (m *memBackend) WriteRecord(rec []byte) error {
	m.sector = bytes.Repeat([]byte{0xff}, MaxRecordSize)
	copy(m.sector, rec)
	m.writes++
	return nil
}

func TestStoreBlankSectorLoadsDefaults(t *testing.T) {
	s := NewStore(newMemBackend(), nil)
	cfg, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HasCredentials() {
		t.Error("blank sector must not yield credentials")
	}
	if cfg.Port != DefaultPort || cfg.DataInterval != DefaultInterval {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestStoreSaveLoadPreservesUntouchedFields(t *testing.T) {
	s := NewStore(newMemBackend(), nil)
	cfg := Default()
	cfg.SetBackendURL("http://10.0.0.2:8811/temprec")
	cfg.DataInterval = 120 * time.Second
	cfg.OnBattery = true
	if err := s.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Credential update path: merge new ssid/password, leave the rest.
	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	loaded.SSID = "field-net"
	loaded.Password = "field-pw"
	if err := s.Save(loaded); err != nil {
		t.Fatalf("Save: %v", err)
	}

	final, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if final.SSID != "field-net" || final.Password != "field-pw" {
		t.Errorf("credentials not updated: %+v", final)
	}
	if final.BackendURL != "http://10.0.0.2:8811/temprec" ||
		final.DataInterval != 120*time.Second || !final.OnBattery {
		t.Errorf("untouched fields changed: %+v", final)
	}
}

func TestStoreReadSSID(t *testing.T) {
	s := NewStore(newMemBackend(), nil)
	if ssid, err := s.ReadSSID(); err != nil || ssid != "" {
		t.Errorf("blank store ReadSSID = %q, %v", ssid, err)
	}
	cfg := Default()
	cfg.SSID = "new-net"
	cfg.BackendURL = "http://h:1/r"
	cfg.Port = 1
	if err := s.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ssid, _ := s.ReadSSID(); ssid != "new-net" {
		t.Errorf("ReadSSID = %q, want new-net", ssid)
	}
}

func TestDecodeRecordCorruption(t *testing.T) {
	var buf [MaxRecordSize]byte
	rec, err := EncodeRecord(buf[:], []byte(`{"ssid":"x"}`))
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	// Flip a payload byte: checksum must catch it.
	rec[recordHdrSize] ^= 0x01
	if _, err := DecodeRecord(rec); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("DecodeRecord on corrupt payload = %v, want ErrCorruptRecord", err)
	}

	erased := bytes.Repeat([]byte{0xff}, 64)
	if _, err := DecodeRecord(erased); !errors.Is(err, ErrNoRecord) {
		t.Errorf("DecodeRecord on erased sector = %v, want ErrNoRecord", err)
	}

	if _, err := DecodeRecord([]byte{0xde, 0xad}); !errors.Is(err, ErrNoRecord) {
		t.Errorf("DecodeRecord on short input = %v, want ErrNoRecord", err)
	}
}

func TestEncodeRecordRoundTrip(t *testing.T) {
	var buf [MaxRecordSize]byte
	payload := []byte(`{"ssid":"home","port":8811}`)
	rec, err := EncodeRecord(buf[:], payload)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	got, err := DecodeRecord(rec)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: %s", got)
	}
}
