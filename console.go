//go:build tinygo

package main

import (
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"openenterprise/airnode/credentials"
	"openenterprise/airnode/device"
	"openenterprise/airnode/telemetry"
	"openenterprise/airnode/version"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const (
	consolePort    = uint16(23) // Telnet port
	consoleBufSize = 1024
)

// Pre-allocated console buffers
var (
	consoleRxBuf [consoleBufSize]byte
	consoleTxBuf [consoleBufSize]byte
	consoleBuf   [consoleBufSize]byte
	startTime    time.Time
)

// Authentication state for brute-force protection
var (
	authFailures    int
	lastFailureTime time.Time
)

// Console commands
const (
	cmdHelp           = "help"
	cmdStatus         = "status"
	cmdRead           = "read"
	cmdSensor         = "sensor"
	cmdTime           = "time"
	cmdVersion        = "version"
	cmdNet            = "net"
	cmdUplink         = "uplink"
	cmdConfig         = "config"
	cmdInterval       = "interval"
	cmdReboot         = "reboot"
	cmdTelemetry      = "telemetry"
	cmdTelemetryFlush = "telemetry-flush"
)

// consoleServer runs a TCP debug console on port 23
func consoleServer(
	stack *xnet.StackAsync,
	logger *slog.Logger,
	refreshChan chan struct{},
) {
	// Recover from any panics to keep console server running
	defer func() {
		if r := recover(); r != nil {
			logger.Error("console:panic-recovered")
		}
	}()

	var conn tcp.Conn
	err := conn.Configure(tcp.ConnConfig{
		RxBuf:             consoleRxBuf[:],
		TxBuf:             consoleTxBuf[:],
		TxPacketQueueSize: 3,
	})
	if err != nil {
		logger.Error("console:configure-failed", slog.String("err", err.Error()))
		return
	}

	ourAddr := netip.AddrPortFrom(stack.Addr(), consolePort)
	logger.Info("console:listening", slog.String("addr", ourAddr.String()))

	for {
		// Always abort any previous state before listening
		conn.Abort()
		time.Sleep(100 * time.Millisecond)

		// Check lockout before accepting new connections
		if checkLockout() {
			lockout := getLockoutDuration()
			logger.Info("console:lockout", slog.Int("failures", authFailures), slog.Duration("remaining", lockout-time.Since(lastFailureTime)))
			time.Sleep(1 * time.Second)
			continue
		}

		// Listen for incoming connection
		err = stack.ListenTCP(&conn, consolePort)
		if err != nil {
			logger.Error("console:listen-failed", slog.String("err", err.Error()))
			time.Sleep(3 * time.Second)
			continue
		}

		// Wait for connection with timeout
		waitCount := 0
		for conn.State().IsPreestablished() && waitCount < 6000 {
			time.Sleep(10 * time.Millisecond)
			waitCount++
		}

		if !conn.State().IsSynchronized() {
			conn.Abort()
			continue
		}

		logger.Info("console:connected", slog.String("ip", formatRemoteIP(conn.RemoteAddr())))

		// Authenticate before allowing access
		if !authenticateConsole(&conn) {
			logger.Info("console:auth-failed", slog.Int("failures", authFailures))
			conn.Close()
			for i := 0; i < 10 && !conn.State().IsClosed(); i++ {
				time.Sleep(100 * time.Millisecond)
			}
			conn.Abort()
			continue
		}

		logger.Info("console:authenticated")

		// Send welcome message
		writeConsole(&conn, "Openenterprise Airnode Debug Console\r\nType 'help' for commands\r\n> ")
		flushConsole(&conn)

		// Handle commands with recovery
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("console:session-panic")
				}
			}()
			handleConsoleSession(&conn, stack, logger, refreshChan)
		}()

		// Clean up connection
		conn.Close()
		for i := 0; i < 30 && !conn.State().IsClosed(); i++ {
			time.Sleep(100 * time.Millisecond)
		}
		conn.Abort()
		logger.Info("console:disconnected")
	}
}

// handleConsoleSession handles a single console session
func handleConsoleSession(conn *tcp.Conn, stack *xnet.StackAsync, logger *slog.Logger, refreshChan chan struct{}) {
	var cmdLen int
	var readBuf [64]byte // Separate read buffer
	var skipIAC int      // Bytes to skip for telnet IAC sequence

	for {
		// Check connection state (RxDataOpen detects CLOSE_WAIT from client disconnect)
		if conn.State().IsClosed() || conn.State().IsClosing() || !conn.State().RxDataOpen() {
			return
		}

		n, err := conn.Read(readBuf[:])
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			return
		}

		if n == 0 {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		// Copy to command buffer with bounds check
		gotNewline := false
		for i := 0; i < n && cmdLen < len(consoleBuf)-1; i++ {
			b := readBuf[i]

			// Skip remaining bytes from telnet IAC sequence
			if skipIAC > 0 {
				skipIAC--
				continue
			}

			// Handle telnet IAC (Interpret As Command) sequences
			// IAC = 0xFF, followed by command byte and possibly option byte
			if b == 0xFF {
				skipIAC = 2 // Skip command + option (safe default)
				continue
			}

			if b == '\n' || b == '\r' {
				// Skip consecutive CR/LF (telnet sends \r\n)
				if gotNewline {
					continue
				}
				gotNewline = true
				// Allow TCP stack time to process pending packets
				time.Sleep(10 * time.Millisecond)
				// Process command
				if cmdLen > 0 {
					processCommand(conn, stack, consoleBuf[:cmdLen], logger, refreshChan)
				}
				cmdLen = 0
				conn.Write([]byte("> "))
				conn.Flush()
				// Allow TCP stack time to process packets
				time.Sleep(50 * time.Millisecond)
			} else if b >= 32 && b < 127 { // Printable ASCII only
				consoleBuf[cmdLen] = b
				cmdLen++
				gotNewline = false
			}
		}

		// Prevent buffer overflow
		if cmdLen >= len(consoleBuf)-1 {
			cmdLen = 0
			writeConsole(conn, "\r\nLine too long\r\n> ")
			flushConsole(conn)
		}
	}
}

// processCommand handles a single console command
func processCommand(conn *tcp.Conn, stack *xnet.StackAsync, cmd []byte, logger *slog.Logger, refreshChan chan struct{}) {
	// Recover from panics to keep console running
	defer func() {
		if r := recover(); r != nil {
			logger.Error("console:command-panic")
		}
	}()

	switch {
	case bytesEqual(cmd, []byte(cmdHelp)):
		writeConsole(conn, "Commands: help version status net uplink sensor time config [url <u>|port <n>]\r\n")
		writeConsole(conn, "  read, interval <dur>, reboot\r\n")
		writeConsole(conn, "  telemetry, telemetry-flush\r\n")

	case bytesEqual(cmd, []byte(cmdStatus)):
		if healthMon.Healthy() {
			writeConsole(conn, "Status: OK\r\n")
		} else {
			writeConsole(conn, "Status: UNHEALTHY (reset pending)\r\n")
		}
		writeConsole(conn, "Uploads: ")
		writeInt(conn, uplinkStats.successCount)
		writeConsole(conn, " ok / ")
		writeInt(conn, uplinkStats.failCount)
		writeConsole(conn, " failed\r\n")
		writeConsole(conn, "Last upload: ")
		if uplinkStats.lastSuccess.IsZero() {
			writeConsole(conn, "never\r\n")
		} else {
			writeConsole(conn, uplinkStats.lastSuccess.Format("15:04:05"))
			writeConsole(conn, " (")
			mins := int(time.Since(uplinkStats.lastSuccess).Minutes())
			writeInt(conn, mins)
			writeConsole(conn, "m ago)\r\n")
		}

	case bytesEqual(cmd, []byte(cmdRead)):
		writeConsole(conn, "Triggering measurement cycle...\r\n")
		select {
		case refreshChan <- struct{}{}:
			writeConsole(conn, "Cycle triggered\r\n")
		default:
			writeConsole(conn, "Cycle already pending\r\n")
		}

	case bytesEqual(cmd, []byte(cmdSensor)):
		r, ok := lastReading.Load()
		if !ok {
			writeConsole(conn, "No reading yet\r\n")
			break
		}
		writeConsole(conn, "Temperature:    ")
		writeFixed2(conn, int(r.TempCenti))
		writeConsole(conn, " C\r\nHumidity:       ")
		writeFixed2(conn, int(r.HumidityCenti))
		writeConsole(conn, " %\r\nPressure:       ")
		writeFixed2(conn, int(r.PressureCenti))
		writeConsole(conn, " hPa\r\nGas resistance: ")
		writeInt(conn, int(r.GasOhms))
		writeConsole(conn, " ohm\r\nAQI:            ")
		writeInt(conn, int(r.AQI))
		writeConsole(conn, "\r\nTaken:          ")
		writeConsole(conn, r.Taken.Format("15:04:05"))
		writeConsole(conn, " (")
		writeInt(conn, int(time.Since(r.Taken).Seconds()))
		writeConsole(conn, "s ago)\r\n")

	case bytesEqual(cmd, []byte(cmdTime)):
		now := time.Now()
		writeConsole(conn, "Time: ")
		writeConsole(conn, now.Format("2006-01-02 15:04:05"))
		writeConsole(conn, " UTC\r\n")

	case bytesEqual(cmd, []byte(cmdVersion)):
		writeConsole(conn, "Openenterprise Airnode\r\n")
		writeConsole(conn, "  Version: ")
		writeConsole(conn, version.Version)
		writeConsole(conn, "\r\n  Git SHA: ")
		writeConsole(conn, version.GitSHA)
		writeConsole(conn, "\r\n  Built:   ")
		writeConsole(conn, version.BuildDate)
		writeConsole(conn, "\r\n")

	case bytesEqual(cmd, []byte(cmdNet)):
		writeConsole(conn, "Network Status:\r\n")
		writeConsole(conn, "  IP Address: ")
		writeConsole(conn, stack.Addr().String())
		writeConsole(conn, "\r\n  Console:    port ")
		writeInt(conn, int(consolePort))
		writeConsole(conn, "\r\n  Portal:     port ")
		writeInt(conn, int(portalPort))
		writeConsole(conn, "\r\n  Uptime:     ")
		writeUptime(conn)
		writeConsole(conn, "\r\n")

	case bytesEqual(cmd, []byte(cmdUplink)):
		writeConsole(conn, "Uplink Quality:\r\n")
		writeConsole(conn, "  Connected:     ")
		if uplinkStats.connectTime.IsZero() {
			writeConsole(conn, "unknown\r\n")
		} else {
			writeDurationSince(conn, uplinkStats.connectTime)
			writeConsole(conn, "\r\n")
		}
		total := uplinkStats.successCount + uplinkStats.failCount
		writeConsole(conn, "  Uploads:       ")
		writeInt(conn, uplinkStats.successCount)
		writeConsole(conn, "/")
		writeInt(conn, total)
		if total > 0 {
			pct := (uplinkStats.successCount * 100) / total
			writeConsole(conn, " (")
			writeInt(conn, pct)
			writeConsole(conn, "%)")
		}
		writeConsole(conn, "\r\n")
		writeConsole(conn, "  Last success:  ")
		if uplinkStats.lastSuccess.IsZero() {
			writeConsole(conn, "never\r\n")
		} else {
			writeConsole(conn, uplinkStats.lastSuccess.Format("15:04:05"))
			writeConsole(conn, " (")
			mins := int(time.Since(uplinkStats.lastSuccess).Minutes())
			writeInt(conn, mins)
			writeConsole(conn, "m ago)\r\n")
		}
		writeConsole(conn, "  Reconnects:    ")
		writeInt(conn, uplinkStats.reconnectCount)
		writeConsole(conn, "\r\n")

	case len(cmd) >= 6 && bytesEqual(cmd[:6], []byte(cmdConfig)) && (len(cmd) == 6 || cmd[6] == ' '):
		// "config url <u>" and "config port <n>" update the backend
		// endpoint, keeping the URL authority and port field in step.
		switch {
		case len(cmd) > 11 && bytesEqual(cmd[7:11], []byte("url ")):
			nodeConfig.SetBackendURL(string(cmd[11:]))
			writeConsole(conn, "Backend: ")
			writeConsole(conn, nodeConfig.BackendURL)
			writeConsole(conn, " (port ")
			writeInt(conn, nodeConfig.Port)
			writeConsole(conn, ")\r\n")
			persistNodeConfig(conn, logger)

		case len(cmd) > 12 && bytesEqual(cmd[7:12], []byte("port ")):
			port := parsePort(cmd[12:])
			if err := nodeConfig.SetPort(port); err != nil {
				writeConsole(conn, "Invalid port\r\n")
				break
			}
			writeConsole(conn, "Backend: ")
			writeConsole(conn, nodeConfig.BackendURL)
			writeConsole(conn, " (port ")
			writeInt(conn, nodeConfig.Port)
			writeConsole(conn, ")\r\n")
			persistNodeConfig(conn, logger)

		case len(cmd) == 6:
			writeConsole(conn, "Configuration:\r\n")
			writeConsole(conn, "  SSID:      ")
			writeConsole(conn, nodeConfig.SSID)
			writeConsole(conn, "\r\n  Backend:   ")
			writeConsole(conn, nodeConfig.BackendURL)
			writeConsole(conn, "\r\n  Port:      ")
			writeInt(conn, nodeConfig.Port)
			writeConsole(conn, "\r\n  Interval:  ")
			writeInt(conn, int(nodeConfig.DataInterval.Seconds()))
			writeConsole(conn, "s\r\n  Power:     ")
			if nodeConfig.OnBattery {
				writeConsole(conn, "battery (deep sleep)\r\n")
			} else {
				writeConsole(conn, "external (continuous)\r\n")
			}

		default:
			writeConsole(conn, "Usage: config [url <url>|port <n>]\r\n")
		}

	case len(cmd) >= 8 && bytesEqual(cmd[:8], []byte(cmdInterval)):
		// "interval 30s" overrides, "interval 0" clears
		if len(cmd) <= 9 {
			writeConsole(conn, "Interval override: ")
			if debugIntervalOverride == 0 {
				writeConsole(conn, "off (using configured ")
				writeInt(conn, int(nodeConfig.DataInterval.Seconds()))
				writeConsole(conn, "s)\r\n")
			} else {
				writeInt(conn, int(debugIntervalOverride.Seconds()))
				writeConsole(conn, "s\r\n")
			}
		} else {
			arg := cmd[9:] // skip "interval "
			dur := parseDuration(arg)
			debugIntervalOverride = dur
			writeConsole(conn, "Interval override set to: ")
			if dur == 0 {
				writeConsole(conn, "off\r\n")
			} else {
				writeInt(conn, int(dur.Seconds()))
				writeConsole(conn, "s\r\n")
			}
		}

	case bytesEqual(cmd, []byte(cmdReboot)):
		writeConsole(conn, "Rebooting device...\r\n")
		conn.Flush()
		time.Sleep(100 * time.Millisecond)
		device.Reset()

	case bytesEqual(cmd, []byte(cmdTelemetry)):
		enabled, qLogs, qMetrics, sLogs, sMetrics, errs, collector := telemetry.Status()
		writeConsole(conn, "Telemetry Status:\r\n")
		writeConsole(conn, "  Enabled:    ")
		if enabled {
			writeConsole(conn, "yes\r\n")
		} else {
			writeConsole(conn, "no\r\n")
		}
		writeConsole(conn, "  Collector:  ")
		writeConsole(conn, collector)
		writeConsole(conn, "\r\n  Queued:\r\n")
		writeConsole(conn, "    Logs:     ")
		writeInt(conn, qLogs)
		writeConsole(conn, "\r\n    Metrics:  ")
		writeInt(conn, qMetrics)
		writeConsole(conn, "\r\n  Sent:\r\n")
		writeConsole(conn, "    Logs:     ")
		writeInt(conn, sLogs)
		writeConsole(conn, "\r\n    Metrics:  ")
		writeInt(conn, sMetrics)
		writeConsole(conn, "\r\n  Errors:     ")
		writeInt(conn, errs)
		writeConsole(conn, "\r\n")

	case bytesEqual(cmd, []byte(cmdTelemetryFlush)):
		writeConsole(conn, "Flushing telemetry queues...\r\n")
		telemetry.Flush()
		writeConsole(conn, "Flush complete\r\n")

	default:
		writeConsole(conn, "Unknown command: ")
		conn.Write(cmd)
		writeConsole(conn, "\r\nType 'help' for commands\r\n")
	}
	// Flush and allow TCP stack time to process packets
	conn.Flush()
	time.Sleep(50 * time.Millisecond)
}

// writeConsole writes a string to the console connection (no flush)
func writeConsole(conn *tcp.Conn, s string) {
	conn.Write([]byte(s))
}

// flushConsole flushes the console output
func flushConsole(conn *tcp.Conn) {
	conn.Flush()
}

// parsePort parses a decimal port argument. Returns 0 on any
// non-digit or overflow, which SetPort rejects.
func parsePort(arg []byte) int {
	if len(arg) == 0 {
		return 0
	}
	n := 0
	for _, c := range arg {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
		if n > 65535 {
			return 0
		}
	}
	return n
}

// persistNodeConfig saves the current configuration to flash and
// reports the result on the console.
func persistNodeConfig(conn *tcp.Conn, logger *slog.Logger) {
	if configStore == nil {
		writeConsole(conn, "Config store unavailable\r\n")
		return
	}
	if err := configStore.Save(nodeConfig); err != nil {
		logger.Error("console:config-save-failed", slog.String("err", err.Error()))
		writeConsole(conn, "Save failed\r\n")
		return
	}
	writeConsole(conn, "Saved\r\n")
}

// writeInt writes an integer to the console
func writeInt(conn *tcp.Conn, n int) {
	if n < 0 {
		conn.Write([]byte{'-'})
		n = -n
	}
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

// writeFixed2 writes a centi-unit value with two decimal places
func writeFixed2(conn *tcp.Conn, v int) {
	if v < 0 {
		conn.Write([]byte{'-'})
		v = -v
	}
	writeInt(conn, v/100)
	frac := v % 100
	conn.Write([]byte{'.', byte('0' + frac/10), byte('0' + frac%10)})
}

// writeUptime writes the uptime in human-readable format
func writeUptime(conn *tcp.Conn) {
	if startTime.IsZero() {
		conn.Write([]byte("unknown"))
		return
	}
	writeDurationSince(conn, startTime)
}

// writeDurationSince writes the elapsed time since a timestamp
func writeDurationSince(conn *tcp.Conn, since time.Time) {
	d := time.Since(since)
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	writeInt(conn, hours)
	conn.Write([]byte("h "))
	writeInt(conn, mins)
	conn.Write([]byte("m "))
	writeInt(conn, secs)
	conn.Write([]byte("s"))
}

// initConsole initializes the console module
func initConsole() {
	startTime = time.Now()
}

// getLockoutDuration returns the lockout duration based on failure count
func getLockoutDuration() time.Duration {
	switch {
	case authFailures >= 10:
		return 5 * time.Minute
	case authFailures >= 5:
		return 30 * time.Second
	case authFailures >= 3:
		return 5 * time.Second
	default:
		return 0
	}
}

// checkLockout checks if we're in a lockout period
// Returns true if connection should be rejected
func checkLockout() bool {
	lockout := getLockoutDuration()
	if lockout == 0 {
		return false
	}
	return time.Since(lastFailureTime) < lockout
}

// recordFailure records an authentication failure
func recordFailure() {
	authFailures++
	lastFailureTime = time.Now()
}

// resetFailures resets the failure counter on successful auth
func resetFailures() {
	authFailures = 0
}

// Telnet protocol bytes for echo control
var (
	telnetWillEcho = []byte{0xFF, 0xFB, 0x01} // IAC WILL ECHO - server handles echo (client stops)
	telnetWontEcho = []byte{0xFF, 0xFC, 0x01} // IAC WONT ECHO - server stops echo (client resumes)
)

// authenticateConsole prompts for password and verifies
// Returns true if authenticated, false otherwise
func authenticateConsole(conn *tcp.Conn) bool {
	// Disable client echo for password entry
	conn.Write(telnetWillEcho)
	writeConsole(conn, "Password: ")
	flushConsole(conn)

	// Read password with timeout
	var passBuf [64]byte
	var readBuf [64]byte
	var passLen int
	var skipIAC int // Bytes to skip for telnet IAC sequence
	deadline := time.Now().Add(10 * time.Second)

	// Helper to restore echo before returning
	restoreEcho := func() {
		conn.Write(telnetWontEcho)
		writeConsole(conn, "\r\n")
		flushConsole(conn)
	}

	for time.Now().Before(deadline) {
		if conn.State().IsClosed() || conn.State().IsClosing() || !conn.State().RxDataOpen() {
			restoreEcho()
			return false
		}

		n, err := conn.Read(readBuf[:])
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			restoreEcho()
			return false
		}

		if n == 0 {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		// Process received bytes
		for i := 0; i < n && passLen < len(passBuf)-1; i++ {
			b := readBuf[i]

			// Skip remaining bytes from telnet IAC sequence
			if skipIAC > 0 {
				skipIAC--
				continue
			}

			// Handle telnet IAC (Interpret As Command) sequences
			// IAC = 0xFF, followed by command byte and possibly option byte
			if b == 0xFF {
				skipIAC = 2 // Skip command + option
				continue
			}

			if b == '\n' || b == '\r' {
				// Got newline, verify password using constant-time comparison
				restoreEcho()
				password := passBuf[:passLen]
				expected := []byte(credentials.ConsolePassword())
				if subtle.ConstantTimeCompare(password, expected) == 1 {
					resetFailures()
					return true
				}
				recordFailure()
				return false
			} else if b >= 32 && b < 127 {
				passBuf[passLen] = b
				passLen++
			}
		}

		// Check for buffer overflow
		if passLen >= len(passBuf)-1 {
			restoreEcho()
			recordFailure()
			return false
		}
	}

	// Timeout
	restoreEcho()
	recordFailure()
	return false
}

// parseDuration parses simple duration strings like "30s", "5m", "1h", or "0"
func parseDuration(s []byte) time.Duration {
	if len(s) == 0 {
		return 0
	}

	// Parse the number part
	var num int
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		num = num*10 + int(s[i]-'0')
		i++
	}

	// If just "0" or no unit, treat as seconds
	if i >= len(s) {
		return time.Duration(num) * time.Second
	}

	// Parse unit
	switch s[i] {
	case 's', 'S':
		return time.Duration(num) * time.Second
	case 'm', 'M':
		return time.Duration(num) * time.Minute
	case 'h', 'H':
		return time.Duration(num) * time.Hour
	default:
		return time.Duration(num) * time.Second
	}
}

// formatRemoteIP formats a remote IP address as a string for logging
func formatRemoteIP(addr []byte) string {
	if len(addr) == 4 {
		// IPv4
		var buf [15]byte // max "255.255.255.255"
		pos := 0
		for i := 0; i < 4; i++ {
			if i > 0 {
				buf[pos] = '.'
				pos++
			}
			pos += writeIntToBuf(buf[pos:], int(addr[i]))
		}
		return string(buf[:pos])
	}
	return "unknown"
}

// writeIntToBuf writes an integer to a byte buffer, returns bytes written
func writeIntToBuf(buf []byte, n int) int {
	if n == 0 {
		buf[0] = '0'
		return 1
	}
	var digits [3]byte
	i := len(digits)
	for n > 0 && i > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	copy(buf, digits[i:])
	return len(digits) - i
}

// bytesEqual compares two byte slices
func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
