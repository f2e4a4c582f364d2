// Package jsonw provides allocation-free JSON building and a lenient
// flat-object scanner sized for firmware use. The writer appends into a
// caller-provided buffer; the scanner walks a single JSON object without
// reflection and skips values it does not understand.
package jsonw

// Writer builds JSON into a fixed buffer. Writes past the end of the
// buffer are dropped; Overflowed reports whether that happened.
type Writer struct {
	buf      []byte
	pos      int
	overflow bool
}

// NewWriter returns a Writer appending into buf starting at offset 0.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Reset rewinds the writer to the start of its buffer.
func (w *Writer) Reset() {
	w.pos = 0
	w.overflow = false
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.pos
}

// Bytes returns the written portion of the buffer.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.pos]
}

// Overflowed reports whether any write was dropped for lack of space.
func (w *Writer) Overflowed() bool {
	return w.overflow
}

// Raw appends s verbatim.
func (w *Writer) Raw(s string) {
	if w.pos+len(s) > len(w.buf) {
		w.overflow = true
		return
	}
	copy(w.buf[w.pos:], s)
	w.pos += len(s)
}

// Byte appends a single byte.
func (w *Writer) Byte(b byte) {
	if w.pos >= len(w.buf) {
		w.overflow = true
		return
	}
	w.buf[w.pos] = b
	w.pos++
}

// String appends s as a quoted JSON string. Control characters are
// escaped; everything else passes through verbatim so UTF-8 text such
// as accented SSIDs survives a round trip.
func (w *Writer) String(s string) {
	const hexDigits = "0123456789abcdef"
	w.Byte('"')
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch b {
		case '"':
			w.Raw(`\"`)
		case '\\':
			w.Raw(`\\`)
		case '\n':
			w.Raw(`\n`)
		case '\r':
			w.Raw(`\r`)
		case '\t':
			w.Raw(`\t`)
		default:
			if b < 0x20 {
				w.Raw(`\u00`)
				w.Byte(hexDigits[b>>4])
				w.Byte(hexDigits[b&0xF])
			} else {
				w.Byte(b)
			}
		}
	}
	w.Byte('"')
}

// Field appends `"key":` ready for a value.
func (w *Writer) Field(key string) {
	w.String(key)
	w.Byte(':')
}

// Int appends n in decimal.
func (w *Writer) Int(n int) {
	w.Int64(int64(n))
}

// Int64 appends n in decimal.
func (w *Writer) Int64(n int64) {
	if n == 0 {
		w.Byte('0')
		return
	}
	if n < 0 {
		w.Byte('-')
		n = -n
	}
	w.Uint64(uint64(n))
}

// Uint64 appends n in decimal.
func (w *Writer) Uint64(n uint64) {
	if n == 0 {
		w.Byte('0')
		return
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	for ; i < len(digits); i++ {
		w.Byte(digits[i])
	}
}

// Bool appends true or false.
func (w *Writer) Bool(b bool) {
	if b {
		w.Raw("true")
	} else {
		w.Raw("false")
	}
}

// Fixed2 appends v/100 with exactly two decimal places, e.g. 2153 -> 21.53.
// Sensor values are carried as centi-units to avoid float formatting.
func (w *Writer) Fixed2(v int64) {
	if v < 0 {
		w.Byte('-')
		v = -v
	}
	w.Int64(v / 100)
	w.Byte('.')
	frac := v % 100
	w.Byte(byte('0' + frac/10))
	w.Byte(byte('0' + frac%10))
}
