//go:build tinygo

package main

// WARNING: default -scheduler=cores unsupported, compile with -scheduler=tasks set!

import (
	"log/slog"
	"machine"
	"net/netip"
	"time"

	"openenterprise/airnode/config"
	"openenterprise/airnode/credentials"
	"openenterprise/airnode/device"
	"openenterprise/airnode/telemetry"
	"openenterprise/airnode/version"
)

const pollTime = 5 * time.Millisecond

// Channel for manual refresh requests from console
var refreshChan = make(chan struct{}, 1)

// Debug interval override (0 = use configured interval)
var debugIntervalOverride time.Duration

// Global state shared with the console
var (
	healthMon   *healthMonitor
	lastReading readingCell
	nodeConfig  config.Config
	configStore *config.Store
)

// Uplink quality tracking
var uplinkStats struct {
	connectTime    time.Time // When WiFi connected
	lastSuccess    time.Time // Last successful upload
	successCount   int       // Total successful uploads
	failCount      int       // Total failed uploads
	reconnectCount int       // Number of reconnects
}

// fatalError handles unrecoverable errors by waiting for watchdog reset
// with a software reset fallback. This ensures the device always recovers.
func fatalError(msg string) {
	println(msg)
	// Stop feeding watchdog
	if healthMon != nil {
		healthMon.MarkUnhealthy()
	}
	// Wait for watchdog timeout (8s timeout + margin)
	// If watchdog doesn't trigger, fall back to software reset
	for i := 0; i < 15; i++ {
		time.Sleep(time.Second)
	}
	// Watchdog didn't trigger - use software reset
	println("Watchdog timeout - forcing software reset...")
	device.Reset()
	// Should never reach here
	for {
		time.Sleep(time.Second)
	}
}

func main() {
	time.Sleep(2 * time.Second) // Give time to connect to USB and monitor output.
	println("========================================")
	println("  Openenterprise Airnode")
	println("  Version:", version.Version)
	println("  Git SHA:", version.GitSHA)
	println("  Built:  ", version.BuildDate)
	println("========================================")

	// Setup application logger (debug level for our code). The handler
	// also queues INFO and above for the collector when one is configured.
	logger := slog.New(telemetry.NewSlogHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Setup network stack logger (error+4 level to suppress all network noise)
	// The cywnet library logs "packet dropped" at ERROR level which is normal for WiFi
	netLogger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.Level(12), // Higher than ERROR(8) to suppress all network stack logging
	}))

	initConsole()

	// Status LED
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	ind := newIndicator(led.Set)

	// Configure watchdog for reliability (8 second timeout)
	machine.Watchdog.Configure(machine.WatchdogConfig{
		TimeoutMillis: 8000,
	})
	machine.Watchdog.Start()
	logger.Info("init:watchdog-started")

	healthMon = newHealthMonitor(machine.Watchdog.Update, logger)

	// Load persisted configuration from flash
	store := config.NewStore(&device.ConfigFlash{}, logger)
	configStore = store
	cfg, err := store.Load()
	if err != nil {
		// A corrupt record is not fatal; defaults carry no credentials
		// and route boot into the setup portal.
		logger.Error("config:load-failed", slog.String("err", err.Error()))
		cfg = config.Default()
	}
	nodeConfig = cfg
	logger.Info("config:loaded",
		slog.String("ssid", nodeConfig.SSID),
		slog.String("backend", nodeConfig.BackendURL),
		slog.Duration("interval", nodeConfig.DataInterval),
		slog.Bool("onBattery", nodeConfig.OnBattery),
	)

	// Register WiFi shutdown callback for reboot paths
	device.SetWiFiShutdown(func() {
		// Note: TinyGo's cyw43439 driver doesn't have a full deinit,
		// but stopping processing helps ensure clean state before reboot
		logger.Info("device:wifi-shutdown")
		time.Sleep(100 * time.Millisecond) // Allow pending packets to drain
	})

	wifi := newPicoWifi(netLogger, logger, healthMon.Feed)

	logger.Info("init:complete")

	// Decide between station operation and the setup portal. The portal
	// runs when no credentials are stored or when the stored ones fail
	// the bounded first connect.
	needSetup := !nodeConfig.HasCredentials()
	if !needSetup {
		err = connectStation(wifi, nodeConfig.SSID, nodeConfig.Password, defaultConnectPolicy(), ind, logger)
		if err != nil {
			logger.Error("wifi:connect-exhausted", slog.String("err", err.Error()))
			needSetup = true
		}
	} else {
		logger.Info("wifi:no-credentials")
	}
	if needSetup {
		runSetupMode(wifi, store, ind, logger)
		// runSetupMode only returns through a device reset
		fatalError("Setup mode exited - waiting for reset...")
	}

	uplinkStats.connectTime = time.Now()

	if err := nodeConfig.Validate(); err != nil {
		logger.Error("config:invalid", slog.String("err", err.Error()))
		fatalError("Invalid configuration - waiting for reset...")
	}

	transport, err := newUplinkTransport(wifi.Stack, nodeConfig.BackendURL, logger)
	if err != nil {
		logger.Error("uplink:bad-backend", slog.String("err", err.Error()))
		fatalError("Invalid backend address - waiting for reset...")
	}

	stack := wifi.Stack()

	// Start debug console server
	go consoleServer(stack, logger, refreshChan)

	// Portal stays up in station mode for read-only sensor access
	deps := &portalDeps{
		mode:            func() connState { return stateConnected },
		reading:         &lastReading,
		scan:            wifi.ScanNetworks,
		saveCredentials: saveCredentials(store, logger),
		scheduleRestart: scheduleRestart(logger),
		apSSID:          credentials.APSSID(),
		log:             logger,
		now:             time.Now,
	}
	go portalServer(stack, deps, logger)

	// Optional log and metric export
	if nodeConfig.CollectorAddr != "" {
		collectorAddr, err := netip.ParseAddrPort(nodeConfig.CollectorAddr)
		if err != nil {
			logger.Error("telemetry:bad-collector", slog.String("err", err.Error()))
		} else if err := telemetry.Init(stack, logger, collectorAddr); err != nil {
			logger.Error("telemetry:init-failed", slog.String("err", err.Error()))
		}
	}

	// Optional MQTT reading mirror
	var brokerAddr netip.AddrPort
	mirror := false
	if nodeConfig.BrokerAddr != "" {
		brokerAddr, err = netip.ParseAddrPort(nodeConfig.BrokerAddr)
		if err != nil {
			logger.Error("mirror:bad-broker", slog.String("err", err.Error()))
		} else {
			mirror = true
		}
	}

	// Bring up the sensor. The first Init may fail with the sensor still
	// warming up; the acquisition loop recovers on its own.
	dev, err := newBME680Device()
	if err != nil {
		logger.Error("sensor:bus-init-failed", slog.String("err", err.Error()))
		fatalError("Sensor bus init failed - waiting for reset...")
	}
	if err := dev.Init(); err != nil {
		logger.Warn("sensor:init-failed", slog.String("err", err.Error()))
	}
	powerOff, powerOn := sensorPowerControl()
	rec := defaultSensorRecovery(powerOff, powerOn)

	// Main measurement loop
	for {
		healthMon.Feed()
		cycleStart := time.Now()

		r := acquireReading(dev, rec, ind, healthMon.Feed, logger)
		lastReading.Store(r)
		logger.Info("cycle:reading",
			slog.Int("tempCenti", int(r.TempCenti)),
			slog.Int("humCenti", int(r.HumidityCenti)),
			slog.Int("pressCenti", int(r.PressureCenti)),
			slog.Int("gasOhms", int(r.GasOhms)),
			slog.Int("aqi", int(r.AQI)),
		)

		healthMon.Feed()

		// Reconnect if the link dropped during the wait
		wasConnected := wifi.Connected()
		err = ensureConnected(wifi, nodeConfig.SSID, nodeConfig.Password, defaultConnectPolicy(), ind, logger)
		if err == nil {
			if !wasConnected {
				uplinkStats.reconnectCount++
			}
			err = transport.Upload(r)
		}

		if err != nil {
			logger.Error("cycle:upload-failed", slog.String("err", err.Error()))
			uplinkStats.failCount++
			healthMon.Failure()
		} else {
			uplinkStats.successCount++
			uplinkStats.lastSuccess = time.Now()
			healthMon.Success()
			if mirror {
				if merr := publishReadingMirror(wifi.Stack(), brokerAddr, r, logger); merr != nil {
					logger.Warn("mirror:failed", slog.String("err", merr.Error()))
				}
			}
		}

		healthMon.Feed()

		interval := nodeConfig.DataInterval
		if debugIntervalOverride > 0 {
			interval = debugIntervalOverride
			logger.Info("cycle:debug-interval", slog.Duration("interval", interval))
		}
		delay := nextCycleDelay(interval, time.Since(cycleStart))

		if nodeConfig.OnBattery {
			deepSleep(delay, logger)
			// Deep sleep reboots on wake; reaching here means it failed
			fatalError("Deep sleep failed - waiting for reset...")
		}

		logger.Info("cycle:waiting", slog.Duration("delay", delay))
		ind.off()
		waitCycle(delay, refreshChan, healthMon.Feed, logger)
	}
}

// deepSleep powers the node down for the remainder of the cycle. The
// ROM delayed reboot accounts for boot overhead so wall-clock spacing
// between samples stays near the configured interval.
func deepSleep(delay time.Duration, logger *slog.Logger) {
	sleepFor := delay - deepSleepOverhead
	if sleepFor < minCycleDelay {
		sleepFor = minCycleDelay
	}
	logger.Info("cycle:deep-sleep", slog.Duration("duration", sleepFor))
	telemetry.Flush()
	time.Sleep(200 * time.Millisecond) // Let serial output drain
	if err := device.DeepSleepMillis(uint32(sleepFor / time.Millisecond)); err != nil {
		logger.Error("sleep:failed", slog.String("err", err.Error()))
		device.Reset()
	}
	// The ROM call does not return; belt and braces
	for i := 0; i < 20; i++ {
		time.Sleep(time.Second)
	}
	device.Reset()
}

// runSetupMode brings up the open access point with the configuration
// portal and supervises the bounded setup window. It ends in a device
// reset, either because the operator saved new credentials or because
// the window elapsed.
func runSetupMode(wifi *picoWifi, store *config.Store, ind *indicator, logger *slog.Logger) {
	ind.solid()

	err := wifi.StartAP(credentials.APSSID(), credentials.APPassphrase())
	if err != nil {
		logger.Error("wifi:ap-failed", slog.String("err", err.Error()))
		fatalError("AP setup failed - waiting for reset...")
	}

	deps := &portalDeps{
		mode:            func() connState { return stateAPFallback },
		reading:         &lastReading,
		scan:            wifi.ScanNetworks,
		saveCredentials: saveCredentials(store, logger),
		scheduleRestart: scheduleRestart(logger),
		apSSID:          credentials.APSSID(),
		log:             logger,
		now:             time.Now,
	}
	go portalServer(wifi.Stack(), deps, logger)

	fw := newFallbackWindow(store.ReadSSID, func(reason string) {
		restartDevice(reason, logger)
	}, healthMon.Feed)
	fw.run(logger)
}

// saveCredentials returns the portal's credential save hook. The full
// record is replaced with only the station fields changed.
func saveCredentials(store *config.Store, logger *slog.Logger) func(ssid, passphrase string) error {
	return func(ssid, passphrase string) error {
		cfg, err := store.Load()
		if err != nil {
			logger.Warn("config:reload-failed", slog.String("err", err.Error()))
			cfg = nodeConfig
		}
		cfg.SSID = ssid
		cfg.Password = passphrase
		return store.Save(cfg)
	}
}

// scheduleRestart returns the portal's restart hook. The delay lets the
// HTTP response reach the client before the link goes down.
func scheduleRestart(logger *slog.Logger) func() {
	return func() {
		go func() {
			time.Sleep(2 * time.Second)
			restartDevice("portal save", logger)
		}()
	}
}

func restartDevice(reason string, logger *slog.Logger) {
	logger.Info("device:restart", slog.String("reason", reason))
	time.Sleep(200 * time.Millisecond) // Let serial output drain
	device.Reset()
	for {
		time.Sleep(time.Second)
	}
}
