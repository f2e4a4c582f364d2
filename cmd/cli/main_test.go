package main

import (
	"bytes"
	"testing"
)

func TestStripTelnetIAC(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{
			name:  "no IAC",
			input: []byte("Password: "),
			want:  []byte("Password: "),
		},
		{
			name:  "will echo prefix",
			input: []byte{0xFF, 0xFB, 0x01, 'P', 'a', 's', 's'},
			want:  []byte("Pass"),
		},
		{
			name:  "wont echo suffix",
			input: []byte{'o', 'k', 0xFF, 0xFC, 0x01},
			want:  []byte("ok"),
		},
		{
			name:  "two byte command",
			input: []byte{0xFF, 0xF1, 'x'},
			want:  []byte("x"),
		},
		{
			name:  "interleaved",
			input: []byte{'a', 0xFF, 0xFB, 0x01, 'b', 0xFF, 0xFE, 0x03, 'c'},
			want:  []byte("abc"),
		},
		{
			name:  "empty",
			input: []byte{},
			want:  []byte{},
		},
		{
			name:  "trailing bare IAC kept",
			input: []byte{'a', 0xFF},
			want:  []byte{'a', 0xFF},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := stripTelnetIAC(tc.input)
			if !bytes.Equal(got, tc.want) {
				t.Errorf("stripTelnetIAC(%v) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
