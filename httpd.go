package main

import (
	"errors"
	"log/slog"
	"time"

	"openenterprise/airnode/jsonw"
)

const (
	portalPort       = uint16(80)
	portalBufSize    = 4096
	maxConfigBody    = 512
	maxSSIDLen       = 32
	maxPassphraseLen = 64
	minPassphraseLen = 8
)

var (
	errRequestIncomplete = errors.New("portal: request incomplete")
	errBadRequest        = errors.New("portal: malformed request")
	errRequestTooLarge   = errors.New("portal: request too large")
)

type httpRequest struct {
	method        string
	path          string
	contentLength int
	body          []byte
}

// parseHTTPRequest parses a request out of buf. It returns
// errRequestIncomplete while the headers or body have not fully
// arrived yet so the caller can keep reading.
func parseHTTPRequest(buf []byte) (httpRequest, error) {
	var req httpRequest
	headerEnd := findHeaderEnd(buf)
	if headerEnd < 0 {
		if len(buf) >= portalBufSize {
			return req, errRequestTooLarge
		}
		return req, errRequestIncomplete
	}

	head := buf[:headerEnd]
	lineEnd := indexByte(head, '\n')
	if lineEnd < 0 {
		lineEnd = len(head)
	}
	line := trimCR(head[:lineEnd])

	sp1 := indexByte(line, ' ')
	if sp1 <= 0 {
		return req, errBadRequest
	}
	rest := line[sp1+1:]
	sp2 := indexByte(rest, ' ')
	if sp2 <= 0 {
		return req, errBadRequest
	}
	req.method = string(line[:sp1])
	req.path = string(rest[:sp2])

	req.contentLength = parseContentLength(head[lineEnd:])
	if req.contentLength > maxConfigBody {
		return req, errRequestTooLarge
	}

	body := buf[headerEnd+4:]
	if len(body) < req.contentLength {
		return req, errRequestIncomplete
	}
	req.body = body[:req.contentLength]
	return req, nil
}

func findHeaderEnd(buf []byte) int {
	for i := 0; i+3 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' && buf[i+2] == '\r' && buf[i+3] == '\n' {
			return i
		}
	}
	return -1
}

func indexByte(b []byte, c byte) int {
	for i := range b {
		if b[i] == c {
			return i
		}
	}
	return -1
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}

// parseContentLength walks header lines for Content-Length, matching
// the name case-insensitively. Returns 0 when absent or unparseable.
func parseContentLength(head []byte) int {
	const name = "content-length:"
	for len(head) > 0 {
		lineEnd := indexByte(head, '\n')
		var line []byte
		if lineEnd < 0 {
			line = head
			head = nil
		} else {
			line = head[:lineEnd]
			head = head[lineEnd+1:]
		}
		line = trimCR(line)
		if len(line) < len(name) {
			continue
		}
		match := true
		for i := 0; i < len(name); i++ {
			c := line[i]
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			if c != name[i] {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		v := line[len(name):]
		n := 0
		seen := false
		for _, c := range v {
			if c == ' ' || c == '\t' {
				continue
			}
			if c < '0' || c > '9' {
				return 0
			}
			n = n*10 + int(c-'0')
			seen = true
		}
		if seen {
			return n
		}
		return 0
	}
	return 0
}

type scanResult struct {
	SSID string
	RSSI int
}

// portalDeps wires the portal handler to the rest of the node. scan
// and saveCredentials are only exercised in access point mode.
type portalDeps struct {
	mode            func() connState
	reading         *readingCell
	scan            func() ([]scanResult, error)
	saveCredentials func(ssid, passphrase string) error
	scheduleRestart func()
	apSSID          string
	log             *slog.Logger
	now             func() time.Time
}

// handlePortalRequest routes one request and writes the full response
// into out, returning its length. The scan and config endpoints only
// work while the node is in access point fallback mode.
func handlePortalRequest(deps *portalDeps, req httpRequest, out []byte) int {
	setupMode := deps.mode() == stateAPFallback

	switch {
	case req.method == "GET" && req.path == "/":
		return writePortalPage(out, setupMode)

	case req.method == "GET" && req.path == "/api/sensor":
		return writeSensorResponse(deps, out)

	case req.method == "GET" && req.path == "/api/scan":
		if !setupMode {
			return writeJSONError(out, 403, "scan requires setup mode")
		}
		return writeScanResponse(deps, out)

	case req.method == "POST" && req.path == "/api/config":
		if !setupMode {
			return writeJSONError(out, 403, "configuration requires setup mode")
		}
		return handleConfigUpdate(deps, req.body, out)

	default:
		return writeJSONError(out, 404, "not found")
	}
}

func writeSensorResponse(deps *portalDeps, out []byte) int {
	r, ok := deps.reading.Load()
	if !ok {
		return writeJSONError(out, 503, "no reading yet")
	}
	var body [256]byte
	w := jsonw.NewWriter(body[:])
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
	w.Raw(",")
	w.Field("age_seconds")
	w.Int(int(deps.now().Sub(r.Taken) / time.Second))
	w.Raw("}")
	if w.Overflowed() {
		return writeJSONError(out, 500, "response too large")
	}
	return writeHTTPResponse(out, 200, "application/json", w.Bytes())
}

func writeScanResponse(deps *portalDeps, out []byte) int {
	results, err := deps.scan()
	if errors.Is(err, errScanUnsupported) {
		return writeJSONError(out, 501, "scan not supported")
	}
	if err != nil {
		deps.log.Error("portal:scan-failed", slog.String("err", err.Error()))
		return writeJSONError(out, 500, "scan failed")
	}
	results = sortScanResults(results, deps.apSSID)

	var body [1536]byte
	w := jsonw.NewWriter(body[:])
	w.Raw("{")
	w.Field("networks")
	w.Raw("[")
	for i, r := range results {
		if i > 0 {
			w.Raw(",")
		}
		w.Raw("{")
		w.Field("ssid")
		w.String(r.SSID)
		w.Raw(",")
		w.Field("rssi")
		w.Int(r.RSSI)
		w.Raw("}")
	}
	w.Raw("]}")
	if w.Overflowed() {
		return writeJSONError(out, 500, "response too large")
	}
	return writeHTTPResponse(out, 200, "application/json", w.Bytes())
}

func handleConfigUpdate(deps *portalDeps, body []byte, out []byte) int {
	var ssid, passphrase string
	err := jsonw.Object(body, func(key string, v jsonw.Value) bool {
		switch key {
		case "ssid":
			if v.Kind == jsonw.KindString {
				ssid = v.Str
			}
		case "password":
			if v.Kind == jsonw.KindString {
				passphrase = v.Str
			}
		}
		return true
	})
	if err != nil {
		return writeJSONError(out, 400, "invalid JSON")
	}
	if ssid == "" {
		return writeJSONError(out, 400, "ssid required")
	}
	if len(ssid) > maxSSIDLen {
		return writeJSONError(out, 400, "ssid too long")
	}
	if len(passphrase) > maxPassphraseLen {
		return writeJSONError(out, 400, "password too long")
	}
	if len(passphrase) > 0 && len(passphrase) < minPassphraseLen {
		return writeJSONError(out, 400, "password too short")
	}

	if err := deps.saveCredentials(ssid, passphrase); err != nil {
		deps.log.Error("portal:save-failed", slog.String("err", err.Error()))
		return writeJSONError(out, 500, "save failed")
	}
	deps.log.Info("portal:credentials-saved", slog.String("ssid", ssid))

	var respBody [96]byte
	w := jsonw.NewWriter(respBody[:])
	w.Raw("{")
	w.Field("success")
	w.Bool(true)
	w.Raw(",")
	w.Field("message")
	w.String("credentials saved, restarting")
	w.Raw("}")
	n := writeHTTPResponse(out, 200, "application/json", w.Bytes())

	if deps.scheduleRestart != nil {
		deps.scheduleRestart()
	}
	return n
}

func writeJSONError(out []byte, status int, msg string) int {
	var body [160]byte
	w := jsonw.NewWriter(body[:])
	w.Raw("{")
	w.Field("success")
	w.Bool(false)
	w.Raw(",")
	w.Field("error")
	w.String(msg)
	w.Raw("}")
	return writeHTTPResponse(out, status, "application/json", w.Bytes())
}

func statusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 501:
		return "Not Implemented"
	case 503:
		return "Service Unavailable"
	default:
		return "Internal Server Error"
	}
}

// writeHTTPResponse assembles status line, headers and body into out
// and returns the total length. Responses that would not fit are
// truncated to zero so the caller drops the connection instead of
// sending a half response.
func writeHTTPResponse(out []byte, status int, contentType string, body []byte) int {
	n := 0
	n += copyString(out[n:], "HTTP/1.1 ")
	n += copyInt(out[n:], status)
	n += copyString(out[n:], " ")
	n += copyString(out[n:], statusText(status))
	n += copyString(out[n:], "\r\nContent-Type: ")
	n += copyString(out[n:], contentType)
	n += copyString(out[n:], "\r\nContent-Length: ")
	n += copyInt(out[n:], len(body))
	n += copyString(out[n:], "\r\nConnection: close\r\n\r\n")
	if n+len(body) > len(out) {
		return 0
	}
	n += copy(out[n:], body)
	return n
}

func copyString(dst []byte, s string) int {
	return copy(dst, s)
}

func copyInt(dst []byte, n int) int {
	if n == 0 {
		return copy(dst, "0")
	}
	var buf [12]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return copy(dst, buf[i:])
}
