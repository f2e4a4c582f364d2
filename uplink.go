package main

import (
	"errors"

	"openenterprise/airnode/jsonw"
)

var (
	errNotConnected = errors.New("uplink: not connected")
	errNoResponse   = errors.New("uplink: no response")
)

// statusError reports a non-2xx backend response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	var buf [32]byte
	n := copyString(buf[:], "uplink: http status ")
	n += copyInt(buf[n:], e.code)
	return string(buf[:n])
}

// transportError wraps a socket-level failure during the POST.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "uplink: transport: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// buildReadingPayload writes the telemetry JSON body into buf and
// returns its length, or 0 when buf is too small. Field names match
// what the backend's ingest endpoint expects.
func buildReadingPayload(buf []byte, r sensorReading) int {
	w := jsonw.NewWriter(buf)
	w.Raw("{")
	w.Field("temperature")
	w.Fixed2(int64(r.TempCenti))
	w.Raw(",")
	w.Field("humidity")
	w.Fixed2(int64(r.HumidityCenti))
	w.Raw(",")
	w.Field("pressure")
	w.Fixed2(int64(r.PressureCenti))
	w.Raw(",")
	w.Field("gas_resistance")
	w.Int(int(r.GasOhms))
	w.Raw(",")
	w.Field("aqi")
	w.Int(int(r.AQI))
	w.Raw("}")
	if w.Overflowed() {
		return 0
	}
	return w.Len()
}

// buildPOSTRequest assembles the full POST request for the ingest
// endpoint into buf and returns its length, or 0 when buf is too
// small.
func buildPOSTRequest(buf []byte, host, path string, body []byte) int {
	n := 0
	n += copyString(buf[n:], "POST ")
	n += copyString(buf[n:], path)
	n += copyString(buf[n:], " HTTP/1.1\r\nHost: ")
	n += copyString(buf[n:], host)
	n += copyString(buf[n:], "\r\nContent-Type: application/json\r\nContent-Length: ")
	n += copyInt(buf[n:], len(body))
	n += copyString(buf[n:], "\r\nConnection: close\r\n\r\n")
	if n+len(body) > len(buf) {
		return 0
	}
	n += copy(buf[n:], body)
	return n
}

// classifyUplinkResponse extracts the status code from a raw HTTP
// response. The ingest endpoint answers 200 on accepted records and
// nothing else counts as success, so any other code maps to
// statusError.
func classifyUplinkResponse(resp []byte) error {
	code := parseHTTPStatus(resp)
	if code == 0 {
		return errNoResponse
	}
	if code != 200 {
		return &statusError{code: code}
	}
	return nil
}

// parseHTTPStatus pulls the 3-digit code out of an HTTP/1.x status
// line. Returns 0 when the line is not recognisable.
func parseHTTPStatus(resp []byte) int {
	if len(resp) < 12 {
		return 0
	}
	if string(resp[:5]) != "HTTP/" {
		return 0
	}
	sp := indexByte(resp[:12], ' ')
	if sp < 0 || sp+4 > len(resp) {
		return 0
	}
	code := 0
	for _, c := range resp[sp+1 : sp+4] {
		if c < '0' || c > '9' {
			return 0
		}
		code = code*10 + int(c-'0')
	}
	return code
}

// splitBackendURL breaks an http URL into host, port and path. Only
// plain http is supported; TLS is beyond what the node can terminate.
func splitBackendURL(url string) (host string, port uint16, path string, err error) {
	const scheme = "http://"
	if len(url) < len(scheme) || url[:len(scheme)] != scheme {
		return "", 0, "", errors.New("uplink: backend url must be http")
	}
	rest := url[len(scheme):]

	slash := -1
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			slash = i
			break
		}
	}
	authority := rest
	path = "/"
	if slash >= 0 {
		authority = rest[:slash]
		path = rest[slash:]
	}
	if authority == "" {
		return "", 0, "", errors.New("uplink: backend url has no host")
	}

	host = authority
	port = 80
	for i := len(authority) - 1; i >= 0; i-- {
		if authority[i] == ':' {
			host = authority[:i]
			p := 0
			for _, c := range authority[i+1:] {
				if c < '0' || c > '9' {
					return "", 0, "", errors.New("uplink: bad port in backend url")
				}
				p = p*10 + int(c-'0')
			}
			if p < 1 || p > 65535 {
				return "", 0, "", errors.New("uplink: bad port in backend url")
			}
			port = uint16(p)
			break
		}
	}
	if host == "" {
		return "", 0, "", errors.New("uplink: backend url has no host")
	}
	return host, port, path, nil
}
