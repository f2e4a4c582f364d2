package jsonw

import "errors"

// ErrSyntax is returned when the scanner cannot make sense of the input.
var ErrSyntax = errors.New("jsonw: malformed object")

// ValueKind discriminates scanned values.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindString
	KindInt
	KindBool
	KindNull
)

// Value is one scanned member value. Strings are unescaped into a fresh
// string; numbers are integers only (fractions are truncated).
type Value struct {
	Kind ValueKind
	Str  string
	Int  int64
	Bool bool
}

// Object walks the members of a single flat JSON object, calling fn for
// each key/value pair. Nested objects and arrays are skipped without a
// callback. fn returning false stops the walk early without error.
func Object(data []byte, fn func(key string, v Value) bool) error {
	i := skipSpace(data, 0)
	if i >= len(data) || data[i] != '{' {
		return ErrSyntax
	}
	i = skipSpace(data, i+1)
	if i < len(data) && data[i] == '}' {
		return nil
	}
	for {
		key, next, err := scanString(data, i)
		if err != nil {
			return err
		}
		i = skipSpace(data, next)
		if i >= len(data) || data[i] != ':' {
			return ErrSyntax
		}
		i = skipSpace(data, i+1)

		var v Value
		v, i, err = scanValue(data, i)
		if err != nil {
			return err
		}
		if v.Kind != KindInvalid && !fn(key, v) {
			return nil
		}

		i = skipSpace(data, i)
		if i >= len(data) {
			return ErrSyntax
		}
		switch data[i] {
		case ',':
			i = skipSpace(data, i+1)
		case '}':
			return nil
		default:
			return ErrSyntax
		}
	}
}

func skipSpace(data []byte, i int) int {
	for i < len(data) {
		switch data[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

func scanString(data []byte, i int) (string, int, error) {
	if i >= len(data) || data[i] != '"' {
		return "", i, ErrSyntax
	}
	i++
	var out []byte
	for i < len(data) {
		b := data[i]
		switch b {
		case '"':
			return string(out), i + 1, nil
		case '\\':
			i++
			if i >= len(data) {
				return "", i, ErrSyntax
			}
			switch data[i] {
			case '"':
				out = append(out, '"')
			case '\\':
				out = append(out, '\\')
			case '/':
				out = append(out, '/')
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'u':
				if i+4 >= len(data) {
					return "", i, ErrSyntax
				}
				code, ok := parseHex4(data[i+1 : i+5])
				if !ok {
					return "", i, ErrSyntax
				}
				i += 4
				// Only Latin-1 escapes decode to a byte; anything
				// wider is replaced since no caller emits it.
				if code < 0x100 {
					out = append(out, byte(code))
				} else {
					out = append(out, '?')
				}
			default:
				return "", i, ErrSyntax
			}
			i++
		default:
			out = append(out, b)
			i++
		}
	}
	return "", i, ErrSyntax
}

func scanValue(data []byte, i int) (Value, int, error) {
	if i >= len(data) {
		return Value{}, i, ErrSyntax
	}
	switch b := data[i]; {
	case b == '"':
		s, next, err := scanString(data, i)
		if err != nil {
			return Value{}, next, err
		}
		return Value{Kind: KindString, Str: s}, next, nil
	case b == 't':
		if hasPrefix(data[i:], "true") {
			return Value{Kind: KindBool, Bool: true}, i + 4, nil
		}
		return Value{}, i, ErrSyntax
	case b == 'f':
		if hasPrefix(data[i:], "false") {
			return Value{Kind: KindBool}, i + 5, nil
		}
		return Value{}, i, ErrSyntax
	case b == 'n':
		if hasPrefix(data[i:], "null") {
			return Value{Kind: KindNull}, i + 4, nil
		}
		return Value{}, i, ErrSyntax
	case b == '-' || (b >= '0' && b <= '9'):
		return scanNumber(data, i)
	case b == '{' || b == '[':
		next, err := skipComposite(data, i)
		return Value{}, next, err
	default:
		return Value{}, i, ErrSyntax
	}
}

func scanNumber(data []byte, i int) (Value, int, error) {
	neg := false
	if data[i] == '-' {
		neg = true
		i++
	}
	if i >= len(data) || data[i] < '0' || data[i] > '9' {
		return Value{}, i, ErrSyntax
	}
	var n int64
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		n = n*10 + int64(data[i]-'0')
		i++
	}
	// Truncate any fraction or exponent.
	if i < len(data) && data[i] == '.' {
		i++
		for i < len(data) && data[i] >= '0' && data[i] <= '9' {
			i++
		}
	}
	if i < len(data) && (data[i] == 'e' || data[i] == 'E') {
		i++
		if i < len(data) && (data[i] == '+' || data[i] == '-') {
			i++
		}
		for i < len(data) && data[i] >= '0' && data[i] <= '9' {
			i++
		}
	}
	if neg {
		n = -n
	}
	return Value{Kind: KindInt, Int: n}, i, nil
}

// skipComposite advances past a balanced object or array, honoring
// strings so braces inside them do not count.
func skipComposite(data []byte, i int) (int, error) {
	depth := 0
	for i < len(data) {
		switch data[i] {
		case '{', '[':
			depth++
			i++
		case '}', ']':
			depth--
			i++
			if depth == 0 {
				return i, nil
			}
		case '"':
			_, next, err := scanString(data, i)
			if err != nil {
				return next, err
			}
			i = next
		default:
			i++
		}
	}
	return i, ErrSyntax
}

func parseHex4(data []byte) (uint16, bool) {
	var v uint16
	for _, b := range data[:4] {
		v <<= 4
		switch {
		case b >= '0' && b <= '9':
			v |= uint16(b - '0')
		case b >= 'a' && b <= 'f':
			v |= uint16(b-'a') + 10
		case b >= 'A' && b <= 'F':
			v |= uint16(b-'A') + 10
		default:
			return 0, false
		}
	}
	return v, true
}

func hasPrefix(data []byte, s string) bool {
	if len(data) < len(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if data[i] != s[i] {
			return false
		}
	}
	return true
}
