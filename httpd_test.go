package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseHTTPRequest(t *testing.T) {
	req, err := parseHTTPRequest([]byte("GET /api/sensor HTTP/1.1\r\nHost: 192.168.4.1\r\n\r\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.method != "GET" || req.path != "/api/sensor" {
		t.Errorf("parsed %q %q", req.method, req.path)
	}

	req, err = parseHTTPRequest([]byte("POST /api/config HTTP/1.1\r\ncontent-length: 16\r\n\r\n{\"ssid\":\"homes\"}"))
	if err != nil {
		t.Fatalf("parse with body: %v", err)
	}
	if string(req.body) != `{"ssid":"homes"}` {
		t.Errorf("body = %q", req.body)
	}
}

func TestParseHTTPRequestIncomplete(t *testing.T) {
	cases := []string{
		"GET / HT",
		"GET / HTTP/1.1\r\nHost: x\r\n",
		"POST /api/config HTTP/1.1\r\nContent-Length: 20\r\n\r\n{\"ssid\"",
	}
	for _, c := range cases {
		if _, err := parseHTTPRequest([]byte(c)); !errors.Is(err, errRequestIncomplete) {
			t.Errorf("parse(%q) err = %v, want errRequestIncomplete", c, err)
		}
	}
}

func TestParseHTTPRequestMalformed(t *testing.T) {
	for _, c := range []string{"\r\n\r\n", "GET\r\n\r\n", "GET /\r\n\r\n"} {
		if _, err := parseHTTPRequest([]byte(c)); !errors.Is(err, errBadRequest) {
			t.Errorf("parse(%q) err = %v, want errBadRequest", c, err)
		}
	}
}

func TestParseHTTPRequestBodyTooLarge(t *testing.T) {
	raw := "POST /api/config HTTP/1.1\r\nContent-Length: 9999\r\n\r\n"
	if _, err := parseHTTPRequest([]byte(raw)); !errors.Is(err, errRequestTooLarge) {
		t.Errorf("oversized body err = %v, want errRequestTooLarge", err)
	}
}

type portalHarness struct {
	deps    *portalDeps
	mode    connState
	saved   [][2]string
	saveErr error
	scans   []scanResult
	scanErr error
	restart int
}

func newPortalHarness() *portalHarness {
	h := &portalHarness{mode: stateAPFallback}
	cell := &readingCell{}
	h.deps = &portalDeps{
		mode:    func() connState { return h.mode },
		reading: cell,
		scan:    func() ([]scanResult, error) { return h.scans, h.scanErr },
		saveCredentials: func(ssid, pass string) error {
			if h.saveErr != nil {
				return h.saveErr
			}
			h.saved = append(h.saved, [2]string{ssid, pass})
			return nil
		},
		scheduleRestart: func() { h.restart++ },
		apSSID:          "airnode-setup",
		log:             discardLogger(),
		now:             time.Now,
	}
	return h
}

func (h *portalHarness) do(t *testing.T, raw string) (int, map[string]any, string) {
	t.Helper()
	req, err := parseHTTPRequest([]byte(raw))
	if err != nil {
		t.Fatalf("parse(%q): %v", raw, err)
	}
	var out [4096]byte
	n := handlePortalRequest(h.deps, req, out[:])
	if n == 0 {
		t.Fatalf("handler produced no response for %q", raw)
	}
	resp := string(out[:n])
	statusLine, rest, ok := strings.Cut(resp, "\r\n")
	if !ok {
		t.Fatalf("no status line in %q", resp)
	}
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		t.Fatalf("bad status line %q", statusLine)
	}
	status := 0
	for _, c := range parts[1] {
		status = status*10 + int(c-'0')
	}
	_, body, _ := strings.Cut(rest, "\r\n\r\n")
	var decoded map[string]any
	if strings.HasPrefix(body, "{") {
		if err := json.Unmarshal([]byte(body), &decoded); err != nil {
			t.Fatalf("response body is not valid JSON: %v\n%s", err, body)
		}
	}
	return status, decoded, body
}

func TestPortalSensorEndpoint(t *testing.T) {
	h := newPortalHarness()

	status, body, _ := h.do(t, "GET /api/sensor HTTP/1.1\r\n\r\n")
	if status != 503 {
		t.Errorf("no reading yet: status = %d, want 503", status)
	}
	if body["success"] != false {
		t.Errorf("error body = %v", body)
	}

	h.deps.reading.Store(sensorReading{
		TempCenti:     2150,
		HumidityCenti: 4025,
		PressureCenti: 101234,
		GasOhms:       180000,
		AQI:           110,
		Taken:         time.Now().Add(-30 * time.Second),
	})
	status, body, _ = h.do(t, "GET /api/sensor HTTP/1.1\r\n\r\n")
	if status != 200 {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["temperature"] != 21.50 {
		t.Errorf("temperature = %v, want 21.50", body["temperature"])
	}
	if body["gas_resistance"] != float64(180000) {
		t.Errorf("gas_resistance = %v", body["gas_resistance"])
	}
	if body["aqi"] != float64(110) {
		t.Errorf("aqi = %v", body["aqi"])
	}
	if age := body["age_seconds"].(float64); age < 29 || age > 31 {
		t.Errorf("age_seconds = %v, want about 30", age)
	}
}

func TestPortalScanEndpoint(t *testing.T) {
	h := newPortalHarness()
	h.scans = []scanResult{
		{SSID: "weak", RSSI: -80},
		{SSID: "", RSSI: -10},
		{SSID: "airnode-setup", RSSI: -20},
		{SSID: "strong", RSSI: -40},
	}

	status, body, _ := h.do(t, "GET /api/scan HTTP/1.1\r\n\r\n")
	if status != 200 {
		t.Fatalf("status = %d, want 200", status)
	}
	nets := body["networks"].([]any)
	if len(nets) != 2 {
		t.Fatalf("networks = %v, want strong and weak only", nets)
	}
	first := nets[0].(map[string]any)
	if first["ssid"] != "strong" {
		t.Errorf("first network = %v, want strongest", first)
	}
}

func TestPortalScanErrors(t *testing.T) {
	h := newPortalHarness()

	h.scanErr = errScanUnsupported
	status, body, _ := h.do(t, "GET /api/scan HTTP/1.1\r\n\r\n")
	if status != 501 {
		t.Errorf("unsupported scan: status = %d, want 501", status)
	}
	if body["success"] != false {
		t.Errorf("unsupported scan body = %v", body)
	}

	h.scanErr = errors.New("radio busy")
	status, _, _ = h.do(t, "GET /api/scan HTTP/1.1\r\n\r\n")
	if status != 500 {
		t.Errorf("failed scan: status = %d, want 500", status)
	}
}

func TestPortalModeGating(t *testing.T) {
	h := newPortalHarness()
	h.mode = stateConnected

	status, body, _ := h.do(t, "GET /api/scan HTTP/1.1\r\n\r\n")
	if status != 403 || body["success"] != false {
		t.Errorf("scan in station mode: status = %d body = %v, want 403", status, body)
	}

	payload := `{"ssid":"homenet","password":"hunter22"}`
	status, _, _ = h.do(t, "POST /api/config HTTP/1.1\r\nContent-Length: "+itoaTest(len(payload))+"\r\n\r\n"+payload)
	if status != 403 {
		t.Errorf("config in station mode: status = %d, want 403", status)
	}
	if len(h.saved) != 0 || h.restart != 0 {
		t.Error("config must not be saved outside setup mode")
	}

	// Sensor endpoint stays available in station mode.
	h.deps.reading.Store(sensorReading{Taken: time.Now()})
	status, _, _ = h.do(t, "GET /api/sensor HTTP/1.1\r\n\r\n")
	if status != 200 {
		t.Errorf("sensor in station mode: status = %d, want 200", status)
	}
}

func TestPortalConfigUpdate(t *testing.T) {
	h := newPortalHarness()
	payload := `{"ssid":"homenet","password":"hunter22"}`
	raw := "POST /api/config HTTP/1.1\r\nContent-Length: " + itoaTest(len(payload)) + "\r\n\r\n" + payload

	status, body, _ := h.do(t, raw)
	if status != 200 || body["success"] != true {
		t.Fatalf("status = %d body = %v", status, body)
	}
	if len(h.saved) != 1 || h.saved[0] != [2]string{"homenet", "hunter22"} {
		t.Errorf("saved = %v", h.saved)
	}
	if h.restart != 1 {
		t.Errorf("restart scheduled %d times, want 1", h.restart)
	}
}

func TestPortalConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"malformed", `{"ssid":`},
		{"missing ssid", `{"password":"hunter22"}`},
		{"empty ssid", `{"ssid":"","password":"hunter22"}`},
		{"ssid too long", `{"ssid":"` + strings.Repeat("x", 33) + `","password":"hunter22"}`},
		{"password too short", `{"ssid":"homenet","password":"abc"}`},
		{"password too long", `{"ssid":"homenet","password":"` + strings.Repeat("x", 65) + `"}`},
	}
	for _, tc := range cases {
		h := newPortalHarness()
		raw := "POST /api/config HTTP/1.1\r\nContent-Length: " + itoaTest(len(tc.payload)) + "\r\n\r\n" + tc.payload
		status, _, _ := h.do(t, raw)
		if status != 400 {
			t.Errorf("%s: status = %d, want 400", tc.name, status)
		}
		if len(h.saved) != 0 || h.restart != 0 {
			t.Errorf("%s: invalid payload must not save or restart", tc.name)
		}
	}

	// Open network, empty passphrase is allowed.
	h := newPortalHarness()
	payload := `{"ssid":"cafe","password":""}`
	raw := "POST /api/config HTTP/1.1\r\nContent-Length: " + itoaTest(len(payload)) + "\r\n\r\n" + payload
	if status, _, _ := h.do(t, raw); status != 200 {
		t.Errorf("open network: status = %d, want 200", status)
	}
}

func TestPortalNotFound(t *testing.T) {
	h := newPortalHarness()
	status, _, _ := h.do(t, "GET /api/unknown HTTP/1.1\r\n\r\n")
	if status != 404 {
		t.Errorf("status = %d, want 404", status)
	}
	status, _, _ = h.do(t, "DELETE / HTTP/1.1\r\n\r\n")
	if status != 404 {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestPortalIndexPage(t *testing.T) {
	h := newPortalHarness()
	status, _, body := h.do(t, "GET / HTTP/1.1\r\n\r\n")
	if status != 200 {
		t.Fatalf("status = %d, want 200", status)
	}
	if !strings.Contains(body, `data-mode="setup"`) {
		t.Error("setup mode page should carry the setup marker")
	}

	h.mode = stateConnected
	_, _, body = h.do(t, "GET / HTTP/1.1\r\n\r\n")
	if !strings.Contains(body, `data-mode="station"`) {
		t.Error("station mode page should carry the station marker")
	}
}

func TestSortScanResults(t *testing.T) {
	in := []scanResult{
		{SSID: "b", RSSI: -70},
		{SSID: "a", RSSI: -50},
		{SSID: "a", RSSI: -45},
		{SSID: "", RSSI: -10},
		{SSID: "self", RSSI: -5},
		{SSID: "c", RSSI: -60},
	}
	got := sortScanResults(in, "self")
	want := []scanResult{{SSID: "a", RSSI: -45}, {SSID: "c", RSSI: -60}, {SSID: "b", RSSI: -70}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func itoaTest(n int) string {
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
