//go:build tinygo

package main

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

// Pre-allocated portal buffers. The response buffer must hold the
// embedded page plus headers.
var (
	portalRxBuf  [portalBufSize]byte
	portalTxBuf  [2048]byte
	portalReqBuf [portalBufSize]byte
	portalOutBuf [8192]byte
)

// portalServer accepts one connection at a time on the portal port,
// serves a single request and closes. Browsers reconnect per request
// because every response carries Connection: close.
func portalServer(stack *xnet.StackAsync, deps *portalDeps, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("portal:panic-recovered")
		}
	}()

	var conn tcp.Conn
	err := conn.Configure(tcp.ConnConfig{
		RxBuf:             portalRxBuf[:],
		TxBuf:             portalTxBuf[:],
		TxPacketQueueSize: 2,
	})
	if err != nil {
		logger.Error("portal:configure-failed", slog.String("err", err.Error()))
		return
	}

	logger.Info("portal:ready", slog.Int("port", int(portalPort)))

	for {
		conn.Abort()
		time.Sleep(100 * time.Millisecond)

		err = stack.ListenTCP(&conn, portalPort)
		if err != nil {
			logger.Error("portal:listen-failed", slog.String("err", err.Error()))
			time.Sleep(3 * time.Second)
			continue
		}

		for conn.State().IsPreestablished() {
			time.Sleep(10 * time.Millisecond)
		}
		if !conn.State().IsSynchronized() {
			conn.Abort()
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("portal:request-panic")
				}
			}()
			servePortalConn(&conn, deps, logger)
		}()

		conn.Close()
		for i := 0; i < 30 && !conn.State().IsClosed(); i++ {
			time.Sleep(100 * time.Millisecond)
		}
		conn.Abort()
	}
}

// servePortalConn reads one request off the connection and answers it.
// A request that never completes within the timeout is dropped without
// a response.
func servePortalConn(conn *tcp.Conn, deps *portalDeps, logger *slog.Logger) {
	deadline := time.Now().Add(5 * time.Second)
	total := 0

	for time.Now().Before(deadline) {
		if conn.State().IsClosed() || conn.State().IsClosing() {
			return
		}
		n, err := conn.Read(portalReqBuf[total:])
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			return
		}
		if n == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		total += n

		req, perr := parseHTTPRequest(portalReqBuf[:total])
		if errors.Is(perr, errRequestIncomplete) && total < len(portalReqBuf) {
			continue
		}

		var respLen int
		if perr != nil {
			logger.Warn("portal:bad-request", slog.String("err", perr.Error()))
			respLen = writeJSONError(portalOutBuf[:], 400, "malformed request")
		} else {
			logger.Debug("portal:request",
				slog.String("method", req.method),
				slog.String("path", req.path),
			)
			respLen = handlePortalRequest(deps, req, portalOutBuf[:])
		}
		if respLen == 0 {
			return
		}

		written := 0
		for written < respLen {
			chunk := respLen - written
			if chunk > 1024 {
				chunk = 1024
			}
			n, err := conn.Write(portalOutBuf[written : written+chunk])
			if err != nil {
				return
			}
			written += n
			conn.Flush()
			time.Sleep(20 * time.Millisecond)
		}
		return
	}
	logger.Warn("portal:request-timeout")
}
