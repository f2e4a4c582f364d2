//go:build tinygo

package main

import (
	"log/slog"
	"net/netip"
	"time"

	"github.com/soypat/cyw43439"
	"github.com/soypat/cyw43439/examples/cywnet"
	"github.com/soypat/lneto/x/xnet"
)

const (
	wifiHostname = "airnode"
	// Portal + uplink + debug console.
	wifiMaxTCPPorts = 3
	// 2.4GHz channel for the setup access point.
	apChannel = 6
)

// apGatewayAddr is the node's address while hosting the setup portal.
var apGatewayAddr = netip.AddrFrom4([4]byte{192, 168, 4, 1})

// netStack is the slice of cywnet.Stack the pump and servers need, so
// the hand-wired AP stack can stand in for it.
type netStack interface {
	Device() *cyw43439.Device
	LnetoStack() *xnet.StackAsync
	RecvAndSend() (send, recv int, err error)
}

// picoWifi owns the CYW43439 radio and its network stack. It satisfies
// the station interface used by the connect policy.
type picoWifi struct {
	cystack   netStack
	netLogger *slog.Logger
	log       *slog.Logger
	pumping   bool
	feed      func()
}

func newPicoWifi(netLogger, logger *slog.Logger, feed func()) *picoWifi {
	return &picoWifi{netLogger: netLogger, log: logger, feed: feed}
}

// Connected reports the driver's link state, so a dropped association
// shows up here without any bookkeeping of our own.
func (w *picoWifi) Connected() bool {
	cystack := w.cystack
	if cystack == nil {
		return false
	}
	return cystack.Device().IsLinkUp()
}

// Join brings the radio up as a station and runs DHCP. The cywnet
// setup performs chip init and WPA2 association in one call, so a nil
// return means the link is already up.
func (w *picoWifi) Join(ssid, passphrase string) error {
	devcfg := cyw43439.DefaultWifiConfig()
	devcfg.Logger = w.netLogger

	cystack, err := cywnet.NewConfiguredPicoWithStack(ssid, passphrase, devcfg, cywnet.StackConfig{
		Hostname:    wifiHostname,
		MaxTCPPorts: wifiMaxTCPPorts,
	})
	if err != nil {
		return err
	}
	w.cystack = cystack
	w.startPump()

	dhcpResults, err := cystack.SetupWithDHCP(cywnet.DHCPConfig{})
	if err != nil {
		return err
	}
	w.log.Info("dhcp:complete", slog.String("addr", dhcpResults.AssignedAddr.String()))
	return nil
}

// Leave drops our stack reference. The driver has no disassociate
// call; the link state clears once the AP ages the client out.
func (w *picoWifi) Leave() error {
	return nil
}

// Reset tears down stack state so the next Join reinitialises the chip
// from scratch. The driver has no partial deinit; a full reinit is the
// only reliable way out of an unclassified firmware fault.
func (w *picoWifi) Reset() error {
	w.cystack = nil
	time.Sleep(100 * time.Millisecond)
	return nil
}

// StartAP brings the radio up as an access point for the configuration
// portal, statically addressed at the conventional setup gateway.
func (w *picoWifi) StartAP(ssid, passphrase string) error {
	devcfg := cyw43439.DefaultWifiConfig()
	devcfg.Logger = w.netLogger

	cystack, err := newAPStack(ssid, passphrase, devcfg, apGatewayAddr)
	if err != nil {
		return err
	}
	w.cystack = cystack
	w.startPump()
	w.log.Info("wifi:ap-up",
		slog.String("ssid", ssid),
		slog.String("addr", apGatewayAddr.String()),
	)
	return nil
}

// ScanNetworks reports nearby access points for the portal. The driver
// exposes no scan ioctls at this version, so the portal answers 501
// and falls back to manual SSID entry.
func (w *picoWifi) ScanNetworks() ([]scanResult, error) {
	return nil, errScanUnsupported
}

func (w *picoWifi) Stack() *xnet.StackAsync {
	if w.cystack == nil {
		return nil
	}
	return w.cystack.LnetoStack()
}

func (w *picoWifi) Addr() netip.Addr {
	if w.cystack == nil {
		return netip.Addr{}
	}
	return w.cystack.LnetoStack().Addr()
}

// startPump runs packet processing in the background. Only one pump
// goroutine ever runs; Join after Reset reuses it against the new
// stack reference.
func (w *picoWifi) startPump() {
	if w.pumping {
		return
	}
	w.pumping = true
	go func() {
		var count int
		for {
			cystack := w.cystack
			if cystack == nil {
				time.Sleep(pollTime)
				continue
			}
			send, recv, _ := cystack.RecvAndSend()
			if send == 0 && recv == 0 {
				time.Sleep(pollTime)
			}
			count++
			if count >= 100 {
				w.feed()
				count = 0
			}
		}
	}()
}

// apStack wires the radio in AP mode to an lneto stack by hand. cywnet
// ships only the station constructor, so this repeats its ethernet
// plumbing against Device.StartAP with a static address in place of
// DHCP.
type apStack struct {
	s       xnet.StackAsync
	dev     *cyw43439.Device
	sendbuf []byte
}

func newAPStack(ssid, passphrase string, devcfg cyw43439.Config, addr netip.Addr) (*apStack, error) {
	start := time.Now()
	dev := cyw43439.NewPicoWDevice()
	if err := dev.Init(devcfg); err != nil {
		return nil, err
	}
	if err := dev.StartAP(ssid, passphrase, apChannel); err != nil {
		return nil, err
	}
	mac, err := dev.HardwareAddr6()
	if err != nil {
		return nil, err
	}

	ap := &apStack{dev: dev, sendbuf: make([]byte, cyw43439.MTU)}
	err = ap.s.Reset(xnet.StackConfig{
		StaticAddress:   addr,
		Hostname:        wifiHostname,
		MaxTCPConns:     wifiMaxTCPPorts,
		RandSeed:        time.Since(start).Nanoseconds(),
		HardwareAddress: mac,
		MTU:             cyw43439.MTU,
	})
	if err != nil {
		return nil, err
	}
	dev.RecvEthHandle(func(pkt []byte) error {
		return ap.s.Demux(pkt, 0)
	})
	return ap, nil
}

func (a *apStack) Device() *cyw43439.Device     { return a.dev }
func (a *apStack) LnetoStack() *xnet.StackAsync { return &a.s }

func (a *apStack) RecvAndSend() (send, recv int, err error) {
	gotRecv, err := a.dev.PollOne()
	if gotRecv {
		recv = 1
	}
	var errSend error
	send, errSend = a.s.Encapsulate(a.sendbuf, -1, 0)
	if errSend != nil {
		err = errSend
	}
	if send == 0 {
		return send, recv, err
	}
	if errTx := a.dev.SendEth(a.sendbuf[:send]); errTx != nil {
		err = errTx
	}
	return send, recv, err
}
