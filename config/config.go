// Package config holds the device's persisted operating configuration:
// station credentials, backend endpoint, reporting interval and power
// mode. The record lives in a reserved flash sector as a single framed
// JSON object and is always replaced whole, never patched in place.
package config

import (
	"errors"
	"time"

	"openenterprise/airnode/jsonw"
)

// Defaults applied when the persisted record omits optional fields.
const (
	DefaultPort     = 8811
	DefaultInterval = 300 * time.Second
	MinInterval     = 60 * time.Second
)

// Validation errors.
var (
	ErrBadPort        = errors.New("config: port outside [1,65535]")
	ErrBadInterval    = errors.New("config: data interval below 60s")
	ErrMissingBackend = errors.New("config: backend_url missing")
)

// Config is the device's operating configuration. SSID and Password may
// be empty, which sends the boot sequence into access-point fallback.
type Config struct {
	SSID         string
	Password     string
	BackendURL   string
	Port         int
	DataInterval time.Duration
	OnBattery    bool

	// Optional endpoints for the reading mirror and log export.
	BrokerAddr    string
	CollectorAddr string
}

// Default returns a Config with all optional fields at their defaults
// and no credentials.
func Default() Config {
	return Config{
		Port:         DefaultPort,
		DataInterval: DefaultInterval,
	}
}

// HasCredentials reports whether a station join can be attempted.
func (c *Config) HasCredentials() bool {
	return c.SSID != ""
}

// Validate checks the full record as required before entering the
// reporting loop. Empty credentials are legal; a missing backend is not.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrBadPort
	}
	if c.DataInterval < MinInterval {
		return ErrBadInterval
	}
	if c.BackendURL == "" {
		return ErrMissingBackend
	}
	return nil
}

// SetPort updates the port and rewrites the backend URL's authority to
// match, keeping the two representations consistent.
func (c *Config) SetPort(port int) error {
	if port < 1 || port > 65535 {
		return ErrBadPort
	}
	c.Port = port
	c.BackendURL = rewriteURLPort(c.BackendURL, port)
	return nil
}

// SetBackendURL updates the backend URL and adopts its explicit
// authority port when present; otherwise the URL is rewritten to carry
// the configured port.
func (c *Config) SetBackendURL(url string) {
	if p := urlPort(url); p > 0 {
		c.BackendURL = url
		c.Port = p
		return
	}
	c.BackendURL = rewriteURLPort(url, c.Port)
}

// Marshal encodes the config as its persisted JSON object into buf,
// returning the encoded slice.
func (c *Config) Marshal(buf []byte) ([]byte, error) {
	w := jsonw.NewWriter(buf)
	w.Byte('{')
	w.Field("ssid")
	w.String(c.SSID)
	w.Byte(',')
	w.Field("password")
	w.String(c.Password)
	w.Byte(',')
	w.Field("backend_url")
	w.String(c.BackendURL)
	w.Byte(',')
	w.Field("port")
	w.Int(c.Port)
	w.Byte(',')
	w.Field("data_interval")
	w.Int(int(c.DataInterval / time.Second))
	w.Byte(',')
	w.Field("onBattery")
	w.Bool(c.OnBattery)
	if c.BrokerAddr != "" {
		w.Byte(',')
		w.Field("broker_addr")
		w.String(c.BrokerAddr)
	}
	if c.CollectorAddr != "" {
		w.Byte(',')
		w.Field("collector_addr")
		w.String(c.CollectorAddr)
	}
	w.Byte('}')
	if w.Overflowed() {
		return nil, errors.New("config: record too large")
	}
	return w.Bytes(), nil
}

// Unmarshal decodes a persisted JSON object. Missing optional fields
// fall back to defaults; their keys are returned so the caller can log
// the substitution. The backend URL and port are reconciled after
// decoding: an explicit port field wins, otherwise a port carried in
// the URL is adopted.
func Unmarshal(data []byte) (Config, []string, error) {
	c := Config{}
	seen := map[string]bool{}
	err := jsonw.Object(data, func(key string, v jsonw.Value) bool {
		seen[key] = true
		switch key {
		case "ssid":
			c.SSID = v.Str
		case "password":
			c.Password = v.Str
		case "backend_url":
			c.BackendURL = v.Str
		case "port":
			c.Port = int(v.Int)
		case "data_interval":
			c.DataInterval = time.Duration(v.Int) * time.Second
		case "onBattery":
			c.OnBattery = v.Bool
		case "broker_addr":
			c.BrokerAddr = v.Str
		case "collector_addr":
			c.CollectorAddr = v.Str
		}
		return true
	})
	if err != nil {
		return Config{}, nil, err
	}

	var defaulted []string
	if !seen["port"] {
		if p := urlPort(c.BackendURL); p > 0 {
			c.Port = p
		} else {
			c.Port = DefaultPort
			defaulted = append(defaulted, "port")
		}
	}
	if !seen["data_interval"] {
		c.DataInterval = DefaultInterval
		defaulted = append(defaulted, "data_interval")
	}
	if !seen["onBattery"] {
		defaulted = append(defaulted, "onBattery")
	}
	c.BackendURL = rewriteURLPort(c.BackendURL, c.Port)
	return c, defaulted, nil
}

// urlPort extracts an explicit authority port from a URL, or 0.
func urlPort(url string) int {
	_, hostport, _ := splitURL(url)
	for i := len(hostport) - 1; i >= 0; i-- {
		if hostport[i] == ':' {
			n := 0
			s := hostport[i+1:]
			if s == "" {
				return 0
			}
			for _, b := range []byte(s) {
				if b < '0' || b > '9' {
					return 0
				}
				n = n*10 + int(b-'0')
				if n > 65535 {
					return 0
				}
			}
			return n
		}
		if hostport[i] == ']' { // IPv6 literal without port
			return 0
		}
	}
	return 0
}

// rewriteURLPort returns url with its authority port forced to port.
// A URL without scheme or host is returned unchanged.
func rewriteURLPort(url string, port int) string {
	scheme, hostport, rest := splitURL(url)
	if scheme == "" || hostport == "" {
		return url
	}
	host := hostport
	for i := len(hostport) - 1; i >= 0; i-- {
		if hostport[i] == ':' {
			host = hostport[:i]
			break
		}
		if hostport[i] == ']' {
			break
		}
	}
	return scheme + "://" + host + ":" + itoa(port) + rest
}

// splitURL breaks scheme://host[:port]/rest into its three parts.
func splitURL(url string) (scheme, hostport, rest string) {
	sep := -1
	for i := 0; i+2 < len(url); i++ {
		if url[i] == ':' && url[i+1] == '/' && url[i+2] == '/' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return "", "", ""
	}
	scheme = url[:sep]
	remainder := url[sep+3:]
	for i := 0; i < len(remainder); i++ {
		if remainder[i] == '/' {
			return scheme, remainder[:i], remainder[i:]
		}
	}
	return scheme, remainder, ""
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [6]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
