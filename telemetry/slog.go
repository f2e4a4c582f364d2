//go:build tinygo

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// SlogHandler fans slog records out to the serial console and, at Info
// and above, into the log export queue. The firmware's subsystem:event
// message style passes through unchanged; up to four attributes are
// folded into the queued line as key=value pairs.
type SlogHandler struct {
	console slog.Handler
	group   string
}

// NewSlogHandler returns a handler writing text records to w
// (typically machine.Serial) while mirroring Info and above into the
// export queue.
func NewSlogHandler(w io.Writer, opts *slog.HandlerOptions) *SlogHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &SlogHandler{console: slog.NewTextHandler(w, opts)}
}

func (h *SlogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level)
}

func (h *SlogHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.console.Handle(ctx, r)
	if r.Level < slog.LevelInfo {
		// Debug stays on the serial console only; the queue is small.
		return err
	}
	var line recordLine
	line.record(h.group, r)
	Log(severityFor(r.Level), line.String())
	return err
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SlogHandler{console: h.console.WithAttrs(attrs), group: h.group}
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &SlogHandler{console: h.console.WithGroup(name), group: group}
}

// severityFor maps slog levels onto the OTLP severity numbers the
// export format wants.
func severityFor(level slog.Level) uint8 {
	switch {
	case level >= slog.LevelError:
		return SeverityError
	case level >= slog.LevelWarn:
		return SeverityWarn
	case level >= slog.LevelInfo:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}

// recordLine flattens a record into a fixed buffer sized to the body a
// queued LogEntry can carry. Writes past the end are dropped.
type recordLine struct {
	buf [128]byte
	n   int
}

func (l *recordLine) record(group string, r slog.Record) {
	if group != "" {
		l.str(group)
		l.byte(':')
	}
	l.str(r.Message)

	attrs := 0
	r.Attrs(func(a slog.Attr) bool {
		if attrs >= 4 || l.n >= len(l.buf)-10 {
			return false
		}
		l.byte(' ')
		l.str(a.Key)
		l.byte('=')
		l.value(a.Value)
		attrs++
		return true
	})
}

func (l *recordLine) String() string { return string(l.buf[:l.n]) }

func (l *recordLine) str(s string) {
	for i := 0; i < len(s) && l.n < len(l.buf); i++ {
		l.buf[l.n] = s[i]
		l.n++
	}
}

func (l *recordLine) byte(b byte) {
	if l.n < len(l.buf) {
		l.buf[l.n] = b
		l.n++
	}
}

func (l *recordLine) value(v slog.Value) {
	switch v.Kind() {
	case slog.KindString:
		l.str(v.String())
	case slog.KindInt64:
		l.int(v.Int64())
	case slog.KindUint64:
		l.uint(v.Uint64())
	case slog.KindBool:
		if v.Bool() {
			l.str("true")
		} else {
			l.str("false")
		}
	case slog.KindDuration:
		l.duration(v.Duration())
	case slog.KindFloat64:
		// Truncated; the queue line is for eyeballs, not math.
		l.int(int64(v.Float64()))
	default:
		l.byte('?')
	}
}

func (l *recordLine) int(n int64) {
	if n < 0 {
		l.byte('-')
		n = -n
	}
	l.uint(uint64(n))
}

func (l *recordLine) uint(n uint64) {
	if n == 0 {
		l.byte('0')
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
		l.byte(digits[i])
	}
}

// duration renders in the coarsest unit that keeps a whole number.
func (l *recordLine) duration(d time.Duration) {
	switch {
	case d == 0:
		l.str("0s")
	case d >= time.Second:
		l.int(int64(d / time.Second))
		l.byte('s')
	case d >= time.Millisecond:
		l.int(int64(d / time.Millisecond))
		l.str("ms")
	case d >= time.Microsecond:
		l.int(int64(d / time.Microsecond))
		l.str("us")
	default:
		l.int(int64(d))
		l.str("ns")
	}
}
