//go:build tinygo

package main

import (
	"errors"
	"log/slog"
	"net/netip"
	"time"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
	mqtt "github.com/soypat/natiu-mqtt"
)

const (
	mqttTimeout = 10 * time.Second
	mqttRetries = 3
	tcpBufSize  = 2030 // MTU - ethhdr - iphdr - tcphdr
	mqttBufSize = 512
)

// Readings are mirrored to this topic when a broker is configured.
var topicReading = []byte("airnode/reading")

// Pre-allocated buffers for memory efficiency
var (
	mirrorRxBuf   [tcpBufSize]byte
	mirrorTxBuf   [tcpBufSize]byte
	mqttUserBuf   [mqttBufSize]byte
	mirrorBodyBuf [mqttBufSize]byte
)

// MQTT publish flags (QoS0, not retained, not dup)
var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

// publishReadingMirror connects to the MQTT broker, publishes the
// reading as the same JSON object the uplink sends, and disconnects.
// The mirror is best effort; a failure is logged by the caller and
// never counts against upload health.
func publishReadingMirror(
	stack *xnet.StackAsync,
	brokerAddr netip.AddrPort,
	r sensorReading,
	logger *slog.Logger,
) error {
	body := buildReadingPayload(mirrorBodyBuf[:], r)
	if len(body) == 0 {
		return errors.New("mirror payload overflow")
	}

	// Create retrying stack for dial with retries
	rstack := stack.StackRetrying(5 * time.Millisecond)

	// Configure TCP connection with pre-allocated buffers
	var conn tcp.Conn
	err := conn.Configure(tcp.ConnConfig{
		RxBuf:             mirrorRxBuf[:],
		TxBuf:             mirrorTxBuf[:],
		TxPacketQueueSize: 3,
	})
	if err != nil {
		return err
	}

	// MQTT client configuration with zero-allocation decoder
	cfg := mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: mqttUserBuf[:]},
	}

	var varconn mqtt.VariablesConnect
	// Append random suffix to client ID to avoid conflicts with parallel units
	clientID := make([]byte, 0, 24)
	clientID = append(clientID, "airnode-"...)
	clientID = appendHex(clientID, uint16(stack.Prand32()))
	varconn.SetDefaultMQTT(clientID)
	client := mqtt.NewClient(cfg)

	// Random local port
	lport := uint16(stack.Prand32()>>17) + 1024
	logger.Info("mirror:dialing",
		slog.String("broker", brokerAddr.String()),
		slog.String("clientid", string(clientID)),
		slog.Uint64("localport", uint64(lport)),
	)

	// Dial TCP with retries
	err = rstack.DoDialTCP(&conn, lport, brokerAddr, mqttTimeout, mqttRetries)
	if err != nil {
		logger.Error("mirror:dial-failed", slog.String("err", err.Error()))
		closeMirrorConn(&conn, stack, brokerAddr)
		return err
	}

	// Start MQTT connection
	conn.SetDeadline(time.Now().Add(mqttTimeout))
	err = client.StartConnect(&conn, &varconn)
	if err != nil {
		logger.Error("mirror:start-connect-failed", slog.String("err", err.Error()))
		closeMirrorConn(&conn, stack, brokerAddr)
		return err
	}

	// Wait for MQTT connection
	retries := 50
	for retries > 0 && !client.IsConnected() {
		time.Sleep(100 * time.Millisecond)
		err = client.HandleNext()
		if err != nil {
			logger.Warn("mirror:handle-next", slog.String("err", err.Error()))
		}
		retries--
	}
	if !client.IsConnected() {
		logger.Error("mirror:connect-timeout")
		closeMirrorConn(&conn, stack, brokerAddr)
		return errors.New("mqtt connect timeout")
	}

	// Publish the reading
	conn.SetDeadline(time.Now().Add(mqttTimeout))
	pubVar := mqtt.VariablesPublish{
		TopicName:        topicReading,
		PacketIdentifier: uint16(stack.Prand32()),
	}
	err = client.PublishPayload(pubFlags, pubVar, body)
	if err != nil {
		logger.Error("mirror:publish-failed", slog.String("err", err.Error()))
		closeMirrorConn(&conn, stack, brokerAddr)
		return err
	}
	logger.Info("mirror:published",
		slog.String("topic", string(topicReading)),
		slog.Int("bytes", len(body)),
	)

	// Let the publish drain before disconnecting
	for i := 0; i < 5; i++ {
		time.Sleep(100 * time.Millisecond)
		client.HandleNext()
	}

	// Disconnect cleanly
	client.Disconnect(errors.New("session complete"))
	closeMirrorConn(&conn, stack, brokerAddr)
	return nil
}

// closeMirrorConn closes the TCP connection and waits for it to close
func closeMirrorConn(conn *tcp.Conn, stack *xnet.StackAsync, addr netip.AddrPort) {
	conn.Close()
	for i := 0; i < 50 && !conn.State().IsClosed(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	conn.Abort()

	// Discard ARP query to free slot for next connection
	stack.DiscardResolveHardwareAddress6(addr.Addr())
}

// appendHex appends a uint16 as 4 hex characters to the byte slice
func appendHex(b []byte, v uint16) []byte {
	const hexDigits = "0123456789abcdef"
	return append(b,
		hexDigits[(v>>12)&0xf],
		hexDigits[(v>>8)&0xf],
		hexDigits[(v>>4)&0xf],
		hexDigits[v&0xf],
	)
}
