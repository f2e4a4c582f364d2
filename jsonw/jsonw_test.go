package jsonw

import (
	"encoding/json"
	"testing"
)

func TestWriterProducesValidJSON(t *testing.T) {
	var buf [256]byte
	w := NewWriter(buf[:])

	w.Byte('{')
	w.Field("name")
	w.String("air\"node\n")
	w.Byte(',')
	w.Field("count")
	w.Int(-42)
	w.Byte(',')
	w.Field("big")
	w.Uint64(18446744073709551615)
	w.Byte(',')
	w.Field("on")
	w.Bool(true)
	w.Byte(',')
	w.Field("temp")
	w.Fixed2(2153)
	w.Byte('}')

	if w.Overflowed() {
		t.Fatal("unexpected overflow")
	}

	var got map[string]interface{}
	if err := json.Unmarshal(w.Bytes(), &got); err != nil {
		t.Fatalf("output does not parse: %v\n%s", err, w.Bytes())
	}
	if got["name"] != "air\"node\n" {
		t.Errorf("name = %q", got["name"])
	}
	if got["count"].(float64) != -42 {
		t.Errorf("count = %v", got["count"])
	}
	if got["on"] != true {
		t.Errorf("on = %v", got["on"])
	}
	if got["temp"].(float64) != 21.53 {
		t.Errorf("temp = %v", got["temp"])
	}
}

func TestWriterStringNonASCII(t *testing.T) {
	cases := []string{
		"café-net",
		"pässwörd42",
		"日本語SSID",
		"mixed\tctrl\x01byte",
	}
	for _, s := range cases {
		var buf [128]byte
		w := NewWriter(buf[:])
		w.String(s)
		if w.Overflowed() {
			t.Fatalf("overflow writing %q", s)
		}
		var got string
		if err := json.Unmarshal(w.Bytes(), &got); err != nil {
			t.Fatalf("output for %q does not parse: %v\n%s", s, err, w.Bytes())
		}
		if got != s {
			t.Errorf("round trip of %q = %q", s, got)
		}
	}
}

func TestWriterFixed2(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{50, "0.50"},
		{100, "1.00"},
		{2153, "21.53"},
		{-2153, "-21.53"},
		{101325, "1013.25"},
	}
	var buf [32]byte
	for _, tc := range tests {
		w := NewWriter(buf[:])
		w.Fixed2(tc.in)
		if string(w.Bytes()) != tc.want {
			t.Errorf("Fixed2(%d) = %s, want %s", tc.in, w.Bytes(), tc.want)
		}
	}
}

func TestWriterOverflow(t *testing.T) {
	var buf [4]byte
	w := NewWriter(buf[:])
	w.Raw("12345678")
	if !w.Overflowed() {
		t.Error("expected overflow flag")
	}
	if w.Len() > len(buf) {
		t.Errorf("Len = %d exceeds buffer", w.Len())
	}
	w.Reset()
	if w.Overflowed() || w.Len() != 0 {
		t.Error("Reset did not clear state")
	}
}

func TestObjectWalk(t *testing.T) {
	input := `{
		"ssid": "home-net",
		"password": "s3cr\"et",
		"port": 8811,
		"data_interval": 300,
		"on_battery": true,
		"nested": {"skip": [1,2,3]},
		"empty": null
	}`

	got := map[string]Value{}
	err := Object([]byte(input), func(key string, v Value) bool {
		got[key] = v
		return true
	})
	if err != nil {
		t.Fatalf("Object: %v", err)
	}

	if v := got["ssid"]; v.Kind != KindString || v.Str != "home-net" {
		t.Errorf("ssid = %+v", v)
	}
	if v := got["password"]; v.Str != `s3cr"et` {
		t.Errorf("password = %+v", v)
	}
	if v := got["port"]; v.Kind != KindInt || v.Int != 8811 {
		t.Errorf("port = %+v", v)
	}
	if v := got["on_battery"]; v.Kind != KindBool || !v.Bool {
		t.Errorf("on_battery = %+v", v)
	}
	if v := got["empty"]; v.Kind != KindNull {
		t.Errorf("empty = %+v", v)
	}
	if _, ok := got["nested"]; ok {
		t.Error("nested value should be skipped without callback")
	}
}

func TestObjectMalformed(t *testing.T) {
	bad := []string{
		"",
		"[1,2]",
		"{",
		`{"a"}`,
		`{"a":}`,
		`{"a":1,}`,
		`{"a":tru}`,
		`{"a":"unterminated`,
		`{"a":1 "b":2}`,
	}
	for _, in := range bad {
		if err := Object([]byte(in), func(string, Value) bool { return true }); err == nil {
			t.Errorf("Object(%q) accepted malformed input", in)
		}
	}
}

func TestObjectEarlyStop(t *testing.T) {
	calls := 0
	err := Object([]byte(`{"a":1,"b":2,"c":3}`), func(string, Value) bool {
		calls++
		return false
	})
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestObjectNegativeAndFraction(t *testing.T) {
	got := map[string]Value{}
	err := Object([]byte(`{"a":-17,"b":3.99,"c":1e3}`), func(key string, v Value) bool {
		got[key] = v
		return true
	})
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	if got["a"].Int != -17 {
		t.Errorf("a = %+v", got["a"])
	}
	// Fractions truncate toward zero.
	if got["b"].Int != 3 {
		t.Errorf("b = %+v", got["b"])
	}
	if got["c"].Int != 1 {
		t.Errorf("c = %+v", got["c"])
	}
}
