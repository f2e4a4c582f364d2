//go:build tinygo

package main

import (
	"errors"
	"log/slog"
	"net/netip"
	"time"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const (
	uplinkTimeout = 10 * time.Second
	uplinkRetries = 2
)

// Pre-allocated uplink buffers. TxBuf holds headers plus the payload.
var (
	uplinkRxBuf   [512]byte
	uplinkTxBuf   [1024]byte
	uplinkBodyBuf [512]byte
	uplinkRespBuf [256]byte
)

// uplinkTransport POSTs readings to the backend over a raw TCP
// connection. The backend host must be an IP literal; the node carries
// no resolver.
type uplinkTransport struct {
	stack func() *xnet.StackAsync
	log   *slog.Logger

	host string
	dst  netip.AddrPort
	path string
}

func newUplinkTransport(stack func() *xnet.StackAsync, backendURL string, logger *slog.Logger) (*uplinkTransport, error) {
	host, port, path, err := splitBackendURL(backendURL)
	if err != nil {
		return nil, err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil, errors.New("uplink: backend host must be an IP address")
	}
	return &uplinkTransport{
		stack: stack,
		log:   logger,
		host:  host,
		dst:   netip.AddrPortFrom(addr, port),
		path:  path,
	}, nil
}

// Upload sends one reading. Errors are classified so the caller can
// log transport faults apart from backend rejections.
func (u *uplinkTransport) Upload(r sensorReading) error {
	s := u.stack()
	if s == nil {
		return errNotConnected
	}

	bodyLen := buildReadingPayload(uplinkBodyBuf[:], r)
	if bodyLen == 0 {
		return errors.New("uplink: payload too large")
	}

	var conn tcp.Conn
	err := conn.Configure(tcp.ConnConfig{
		RxBuf:             uplinkRxBuf[:],
		TxBuf:             uplinkTxBuf[:],
		TxPacketQueueSize: 3,
	})
	if err != nil {
		return &transportError{err: err}
	}

	rstack := s.StackRetrying(5 * time.Millisecond)
	lport := uint16(s.Prand32()>>17) + 1024

	err = rstack.DoDialTCP(&conn, lport, u.dst, uplinkTimeout, uplinkRetries)
	if err != nil {
		conn.Abort()
		return &transportError{err: err}
	}

	// Give the stack time to fully establish connection
	time.Sleep(50 * time.Millisecond)
	if !conn.State().IsSynchronized() {
		conn.Abort()
		return &transportError{err: errors.New("connection not established")}
	}

	conn.SetDeadline(time.Now().Add(uplinkTimeout))

	conn.Write([]byte("POST "))
	conn.Write([]byte(u.path))
	conn.Write([]byte(" HTTP/1.1\r\nHost: "))
	conn.Write([]byte(u.host))
	conn.Write([]byte("\r\nContent-Type: application/json\r\nContent-Length: "))
	writeConnInt(&conn, bodyLen)
	conn.Write([]byte("\r\nConnection: close\r\n\r\n"))
	conn.Flush()
	time.Sleep(50 * time.Millisecond)

	if _, err := conn.Write(uplinkBodyBuf[:bodyLen]); err != nil {
		conn.Abort()
		return &transportError{err: err}
	}
	conn.Flush()
	time.Sleep(50 * time.Millisecond)

	respLen, _ := conn.Read(uplinkRespBuf[:])

	conn.Close()
	for i := 0; i < 10 && !conn.State().IsClosed(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	conn.Abort()

	// Discard ARP query to free slot for next connection
	s.DiscardResolveHardwareAddress6(u.dst.Addr())

	if err := classifyUplinkResponse(uplinkRespBuf[:respLen]); err != nil {
		return err
	}
	u.log.Info("uplink:sent",
		slog.Int("bytes", bodyLen),
		slog.Int("aqi", int(r.AQI)),
	)
	return nil
}

// writeConnInt writes an integer to the TCP connection
func writeConnInt(conn *tcp.Conn, n int) {
	if n == 0 {
		conn.Write([]byte{'0'})
		return
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	conn.Write(buf[i:])
}
