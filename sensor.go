package main

import (
	"log/slog"
	"sync"
	"time"
)

// sensorReading is one environmental sample. Temperature, humidity and
// pressure are carried in centi-units to avoid floating point on the
// hot path; gas resistance is in ohms.
type sensorReading struct {
	TempCenti     int32 // centi-degrees Celsius
	HumidityCenti int32 // centi-percent relative humidity
	PressureCenti int32 // centi-hectopascals
	GasOhms       int32
	AQI           int16
	Taken         time.Time
}

// sensorDevice is the BME680 hardware boundary.
type sensorDevice interface {
	// Init configures the sensor after power-up. Safe to call again
	// after a power cycle.
	Init() error
	Read() (rawSample, error)
}

type rawSample struct {
	TempCenti     int32
	HumidityCenti int32
	PressureCenti int32
	GasOhms       int32
}

// sensorRecovery describes how to bring a wedged sensor back. When the
// board has no power-enable line both power funcs are nil and recovery
// degrades to a plain delay before reinit.
type sensorRecovery struct {
	powerOff   func()
	powerOn    func()
	settle     time.Duration // off time before repowering
	initDelay  time.Duration // time after repower before Init
	retryDelay time.Duration // delay when no power control exists
	sleep      func(time.Duration)
}

func defaultSensorRecovery(powerOff, powerOn func()) sensorRecovery {
	return sensorRecovery{
		powerOff:   powerOff,
		powerOn:    powerOn,
		settle:     5 * time.Second,
		initDelay:  500 * time.Millisecond,
		retryDelay: 5 * time.Second,
		sleep:      time.Sleep,
	}
}

// acquireReading samples the sensor, retrying until a sample arrives.
// Every failure runs the recovery sequence, flashes the fault pattern
// and feeds the watchdog through feed so the retry loop itself never
// trips a hardware reset.
func acquireReading(dev sensorDevice, rec sensorRecovery, ind *indicator, feed func(), logger *slog.Logger) sensorReading {
	for attempt := 1; ; attempt++ {
		raw, err := dev.Read()
		if err == nil {
			r := sensorReading{
				TempCenti:     raw.TempCenti,
				HumidityCenti: raw.HumidityCenti,
				PressureCenti: raw.PressureCenti,
				GasOhms:       raw.GasOhms,
				AQI:           int16(airQualityIndex(int(raw.GasOhms))),
				Taken:         time.Now(),
			}
			if attempt > 1 {
				logger.Info("sensor:recovered", slog.Int("attempt", attempt))
			}
			return r
		}

		logger.Error("sensor:read-failed",
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)
		if ind != nil {
			ind.sensorFault()
		}
		feed()
		recoverSensor(dev, rec, feed, logger)
	}
}

// recoverSensor power-cycles the sensor when the board can, otherwise
// waits out retryDelay, then reinitialises.
func recoverSensor(dev sensorDevice, rec sensorRecovery, feed func(), logger *slog.Logger) {
	if rec.powerOff != nil && rec.powerOn != nil {
		logger.Warn("sensor:power-cycle", slog.Duration("settle", rec.settle))
		rec.powerOff()
		sleepFeeding(rec.settle, rec.sleep, feed)
		rec.powerOn()
		sleepFeeding(rec.initDelay, rec.sleep, feed)
	} else {
		logger.Warn("sensor:retry-delay", slog.Duration("delay", rec.retryDelay))
		sleepFeeding(rec.retryDelay, rec.sleep, feed)
	}
	if err := dev.Init(); err != nil {
		logger.Error("sensor:reinit-failed", slog.String("err", err.Error()))
	}
}

// sleepFeeding sleeps in one second slices so the watchdog stays fed
// through long recovery waits.
func sleepFeeding(d time.Duration, sleep func(time.Duration), feed func()) {
	for d > time.Second {
		sleep(time.Second)
		feed()
		d -= time.Second
	}
	if d > 0 {
		sleep(d)
	}
	feed()
}

// readingCell holds the latest sample for the portal and console to
// report.
type readingCell struct {
	mu  sync.Mutex
	r   sensorReading
	set bool
}

func (c *readingCell) Store(r sensorReading) {
	c.mu.Lock()
	c.r = r
	c.set = true
	c.mu.Unlock()
}

func (c *readingCell) Load() (sensorReading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.r, c.set
}
