package config

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestUnmarshalDefaults(t *testing.T) {
	input := `{"ssid":"home","password":"pw","backend_url":"http://192.168.1.10:8811/temprec"}`
	cfg, defaulted, err := Unmarshal([]byte(input))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if cfg.Port != 8811 {
		t.Errorf("Port = %d, want 8811 (adopted from URL)", cfg.Port)
	}
	if cfg.DataInterval != 300*time.Second {
		t.Errorf("DataInterval = %v, want 300s", cfg.DataInterval)
	}
	if cfg.OnBattery {
		t.Error("OnBattery should default false")
	}
	want := map[string]bool{"data_interval": true, "onBattery": true}
	for _, f := range defaulted {
		if !want[f] {
			t.Errorf("unexpected defaulted field %q", f)
		}
		delete(want, f)
	}
	for f := range want {
		t.Errorf("field %q not reported as defaulted", f)
	}
}

func TestUnmarshalPortFieldWins(t *testing.T) {
	input := `{"ssid":"home","password":"pw","backend_url":"http://host:9000/rec","port":8811}`
	cfg, _, err := Unmarshal([]byte(input))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if cfg.Port != 8811 {
		t.Errorf("Port = %d, want 8811", cfg.Port)
	}
	if cfg.BackendURL != "http://host:8811/rec" {
		t.Errorf("BackendURL = %q, want authority rewritten to 8811", cfg.BackendURL)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Default()
		c.BackendURL = "http://host:8811/temprec"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(c *Config) {}, nil},
		{"port zero", func(c *Config) { c.Port = 0 }, ErrBadPort},
		{"port high", func(c *Config) { c.Port = 70000 }, ErrBadPort},
		{"port max", func(c *Config) { c.Port = 65535 }, nil},
		{"interval low", func(c *Config) { c.DataInterval = 59 * time.Second }, ErrBadInterval},
		{"interval min", func(c *Config) { c.DataInterval = 60 * time.Second }, nil},
		{"no backend", func(c *Config) { c.BackendURL = "" }, ErrMissingBackend},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			if err := c.Validate(); !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	orig := Config{
		SSID:          "home-net",
		Password:      `p"ss`,
		BackendURL:    "http://192.168.1.10:9001/temprec",
		Port:          9001,
		DataInterval:  600 * time.Second,
		OnBattery:     true,
		BrokerAddr:    "192.168.1.11:1883",
		CollectorAddr: "192.168.1.12:4318",
	}
	var buf [1024]byte
	data, err := orig.Marshal(buf[:])
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// The persisted form must be plain JSON readable by any tool.
	var check map[string]interface{}
	if err := json.Unmarshal(data, &check); err != nil {
		t.Fatalf("marshaled record is not valid JSON: %v\n%s", err, data)
	}
	if check["data_interval"].(float64) != 600 {
		t.Errorf("data_interval = %v, want 600", check["data_interval"])
	}

	got, defaulted, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(defaulted) != 0 {
		t.Errorf("defaulted = %v, want none", defaulted)
	}
	if got != orig {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, orig)
	}
}

func TestMarshalRoundTripNonASCIICredentials(t *testing.T) {
	// SSIDs are opaque octet strings; accented names are common in
	// the field and must survive persistence byte for byte.
	orig := Default()
	orig.SSID = "café-net"
	orig.Password = "pässwörd42"
	orig.BackendURL = "http://192.168.1.10:8811/temprec"

	var buf [1024]byte
	data, err := orig.Marshal(buf[:])
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, _, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.SSID != orig.SSID {
		t.Errorf("SSID = %q, want %q", got.SSID, orig.SSID)
	}
	if got.Password != orig.Password {
		t.Errorf("Password = %q, want %q", got.Password, orig.Password)
	}
}

func TestSetPortRewritesURL(t *testing.T) {
	c := Default()
	c.SetBackendURL("http://example.local/temprec")
	if c.BackendURL != "http://example.local:8811/temprec" {
		t.Errorf("BackendURL = %q", c.BackendURL)
	}
	if err := c.SetPort(9000); err != nil {
		t.Fatalf("SetPort: %v", err)
	}
	if c.BackendURL != "http://example.local:9000/temprec" {
		t.Errorf("BackendURL = %q after SetPort", c.BackendURL)
	}
	if err := c.SetPort(0); err == nil {
		t.Error("SetPort(0) accepted")
	}
}

func TestSetBackendURLAdoptsPort(t *testing.T) {
	c := Default()
	c.SetBackendURL("http://example.local:9443/rec")
	if c.Port != 9443 {
		t.Errorf("Port = %d, want 9443", c.Port)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	if _, _, err := Unmarshal([]byte(`{"ssid": }`)); err == nil {
		t.Error("malformed input accepted")
	}
}
