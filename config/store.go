package config

import (
	"log/slog"
)

// Backend reads and replaces the raw framed record. The device backend
// is a reserved flash sector; tests use an in-memory one. Store must
// replace the whole record in a single operation so a reboot mid-write
// cannot produce a torn read.
type Backend interface {
	ReadRecord() ([]byte, error)
	WriteRecord([]byte) error
}

// Store loads, validates and persists the device configuration.
type Store struct {
	backend Backend
	log     *slog.Logger
	buf     [MaxRecordSize]byte
}

// NewStore returns a Store over the given backend. logger may be nil.
func NewStore(backend Backend, logger *slog.Logger) *Store {
	return &Store{backend: backend, log: logger}
}

// Load reads and decodes the persisted configuration. A blank backend
// yields the defaults (which route boot into AP fallback, since they
// carry no credentials). Defaulted optional fields are logged.
func (s *Store) Load() (Config, error) {
	raw, err := s.backend.ReadRecord()
	if err != nil {
		return Config{}, err
	}
	payload, err := DecodeRecord(raw)
	if err == ErrNoRecord {
		if s.log != nil {
			s.log.Warn("config:no-record")
		}
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	cfg, defaulted, err := Unmarshal(payload)
	if err != nil {
		return Config{}, err
	}
	if s.log != nil {
		for _, key := range defaulted {
			s.log.Warn("config:field-defaulted", slog.String("field", key))
		}
	}
	return cfg, nil
}

// Save encodes and persists cfg, replacing the previous record whole.
func (s *Store) Save(cfg Config) error {
	payload, err := cfg.Marshal(s.buf[recordHdrSize:])
	if err != nil {
		return err
	}
	record, err := EncodeRecord(s.buf[:], payload)
	if err != nil {
		return err
	}
	if err := s.backend.WriteRecord(record); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info("config:saved", slog.Int("bytes", len(record)))
	}
	return nil
}

// ReadSSID re-reads only the stored SSID. The AP fallback window polls
// this to detect that an operator pushed new credentials.
func (s *Store) ReadSSID() (string, error) {
	cfg, err := s.Load()
	if err != nil {
		return "", err
	}
	return cfg.SSID, nil
}
