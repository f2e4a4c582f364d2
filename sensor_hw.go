//go:build tinygo

package main

import (
	"errors"
	"machine"

	"openenterprise/airnode/bme680"
)

// Sensor wiring: BME680 on I2C0 with an optional high-side power
// switch on GP22 so a wedged sensor can be power-cycled.
const sensorPowerPin = machine.GP22

var errSensorNotConnected = errors.New("sensor: bme680 not responding")

// bme680Device adapts the driver to the acquisition loop.
type bme680Device struct {
	dev bme680.Device
}

func newBME680Device() (*bme680Device, error) {
	err := machine.I2C0.Configure(machine.I2CConfig{
		SCL: machine.I2C0_SCL_PIN,
		SDA: machine.I2C0_SDA_PIN,
	})
	if err != nil {
		return nil, err
	}
	return &bme680Device{dev: bme680.New(machine.I2C0)}, nil
}

func (d *bme680Device) Init() error {
	d.dev.Configure()
	if !d.dev.Connected() {
		return errSensorNotConnected
	}
	return nil
}

// Read takes one sample. Driver units: temperature in milli-degrees,
// pressure in milli-pascals, humidity in centi-percent, gas in ohms.
func (d *bme680Device) Read() (rawSample, error) {
	var s rawSample

	temp, err := d.dev.ReadTemperature()
	if err != nil {
		return s, err
	}
	press, err := d.dev.ReadPressure()
	if err != nil {
		return s, err
	}
	hum, err := d.dev.ReadHumidity()
	if err != nil {
		return s, err
	}
	gas, err := d.dev.ReadGasResistance()
	if err != nil {
		return s, err
	}

	s.TempCenti = temp / 10
	s.PressureCenti = press / 1000 // milli-Pa to centi-hPa
	s.HumidityCenti = hum
	s.GasOhms = gas
	return s, nil
}

// sensorPowerControl configures the power switch pin and returns the
// off/on hooks for the recovery sequence.
func sensorPowerControl() (powerOff, powerOn func()) {
	pin := sensorPowerPin
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pin.High()
	return func() { pin.Low() }, func() { pin.High() }
}
