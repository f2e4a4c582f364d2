// Package bme680 provides a driver for the BME680 digital temperature,
// humidity, pressure and gas sensor by Bosch.
//
// Datasheet:
// https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bme680-ds001.pdf
package bme680

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

type Oversampling byte
type Mode byte
type FilterCoefficient byte

var (
	errTimeout    = errors.New("bme680: measurement timed out")
	errGasInvalid = errors.New("bme680: gas measurement not valid")
)

// calibration holds the per-device compensation parameters read at
// Configure time.
type calibration struct {
	t1 uint16
	t2 int16
	t3 int8

	p1  uint16
	p2  int16
	p3  int8
	p4  int16
	p5  int16
	p6  int8
	p7  int8
	p8  int16
	p9  int16
	p10 uint8

	h1 uint16
	h2 uint16
	h3 int8
	h4 int8
	h5 int8
	h6 uint8
	h7 int8

	gh1 int8
	gh2 int16
	gh3 int8

	resHeatRange uint8
	resHeatVal   int8
	rangeSwErr   int8
}

// Config holds the measurement profile written at Configure time.
type Config struct {
	Temperature Oversampling
	Pressure    Oversampling
	Humidity    Oversampling
	IIR         FilterCoefficient
	// Gas heater setpoint in degrees Celsius and hold time in
	// milliseconds.
	HeaterTemp int32
	HeaterMs   uint16
	// Ambient temperature estimate used for the heater resistance
	// calculation.
	AmbientTemp int32
}

// Device wraps an I2C connection to a BME680 device.
type Device struct {
	bus         drivers.I2C
	Address     uint16
	calibration calibration
	Config      Config
}

// New creates a new BME680 connection. The I2C bus must already be
// configured.
//
// This function only creates the Device object, it does not touch the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: Address,
	}
}

// Configure sets up the device with the default indoor air quality
// profile: 8x/4x/2x oversampling, filter coefficient 3, gas heater at
// 320C for 150ms.
func (d *Device) Configure() {
	d.ConfigureWithSettings(Config{})
}

// ConfigureWithSettings resets the device, reads the calibration
// parameters and writes the measurement profile.
func (d *Device) ConfigureWithSettings(config Config) {
	d.Config = config
	if d.Config == (Config{}) {
		d.Config = Config{
			Temperature: Sampling8X,
			Pressure:    Sampling4X,
			Humidity:    Sampling2X,
			IIR:         Coeff3,
			HeaterTemp:  320,
			HeaterMs:    150,
			AmbientTemp: 25,
		}
	}

	d.Reset()

	if err := d.readCalibration(); err != nil {
		return
	}

	d.writeRegister(REG_CONFIG, byte(d.Config.IIR)<<2)
	d.writeRegister(REG_GAS_WAIT_0, encodeGasWait(d.Config.HeaterMs))
	d.writeRegister(REG_RES_HEAT_0, d.heaterResistance(d.Config.HeaterTemp, d.Config.AmbientTemp))
	// run_gas with heater profile 0
	d.writeRegister(REG_CTRL_GAS_1, 1<<4)
}

// Connected returns whether a BME680 has been found.
// It does a "who am I" request and checks the response.
func (d *Device) Connected() bool {
	data := []byte{0}
	d.readRegister(WHO_AM_I, data)
	return data[0] == CHIP_ID
}

// Reset performs a soft reset, returning all registers to their
// power-on defaults.
func (d *Device) Reset() {
	d.writeRegister(CMD_RESET, 0xB6)
	time.Sleep(10 * time.Millisecond)
}

// ReadTemperature returns the temperature in celsius milli degrees (°C/1000).
func (d *Device) ReadTemperature() (int32, error) {
	f, err := d.measure()
	if err != nil {
		return 0, err
	}
	t, _ := d.compensateTemp(f.tempADC)
	return 10 * t, nil
}

// ReadPressure returns the pressure in milli pascals (mPa).
func (d *Device) ReadPressure() (int32, error) {
	f, err := d.measure()
	if err != nil {
		return 0, err
	}
	_, tFine := d.compensateTemp(f.tempADC)
	return 1000 * d.compensatePressure(f.pressADC, tFine), nil
}

// ReadHumidity returns the relative humidity in hundredths of a percent.
func (d *Device) ReadHumidity() (int32, error) {
	f, err := d.measure()
	if err != nil {
		return 0, err
	}
	_, tFine := d.compensateTemp(f.tempADC)
	return d.compensateHumidity(f.humADC, tFine) / 10, nil
}

// ReadGasResistance returns the gas sensor resistance in ohms. Higher
// resistance means cleaner air.
func (d *Device) ReadGasResistance() (int32, error) {
	f, err := d.measure()
	if err != nil {
		return 0, err
	}
	if !f.gasOK {
		return 0, errGasInvalid
	}
	return d.compensateGas(f.gasADC, f.gasRange), nil
}

// field carries the raw ADC words of one measurement cycle.
type field struct {
	tempADC  int32
	pressADC int32
	humADC   int32
	gasADC   int32
	gasRange uint8
	gasOK    bool
}

// measure triggers one forced-mode cycle and burst reads the data
// registers once the new data flag comes up.
func (d *Device) measure() (field, error) {
	var f field

	err := d.writeRegister(REG_CTRL_HUM, byte(d.Config.Humidity))
	if err != nil {
		return f, err
	}
	err = d.writeRegister(REG_CTRL_MEAS,
		byte(d.Config.Temperature)<<5|byte(d.Config.Pressure)<<2|byte(ModeForced))
	if err != nil {
		return f, err
	}

	var data [15]byte
	ready := false
	for i := 0; i < 50; i++ {
		if err := d.readRegister(REG_STATUS, data[:1]); err != nil {
			return f, err
		}
		if data[0]&statusNewData != 0 {
			ready = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !ready {
		return f, errTimeout
	}

	if err := d.readRegister(REG_STATUS, data[:]); err != nil {
		return f, err
	}
	f.pressADC = int32(data[2])<<12 | int32(data[3])<<4 | int32(data[4])>>4
	f.tempADC = int32(data[5])<<12 | int32(data[6])<<4 | int32(data[7])>>4
	f.humADC = int32(data[8])<<8 | int32(data[9])
	f.gasADC = int32(data[13])<<2 | int32(data[14])>>6
	f.gasRange = data[14] & gasRange
	f.gasOK = data[14]&gasValid != 0
	return f, nil
}

func (d *Device) readCalibration() error {
	var c1 [25]byte
	var c2 [16]byte
	if err := d.readRegister(REG_COEFF_1, c1[:]); err != nil {
		return err
	}
	if err := d.readRegister(REG_COEFF_2, c2[:]); err != nil {
		return err
	}

	cal := &d.calibration
	cal.t2 = readInt(c1[1], c1[2])
	cal.t3 = int8(c1[3])
	cal.p1 = readUint(c1[5], c1[6])
	cal.p2 = readInt(c1[7], c1[8])
	cal.p3 = int8(c1[9])
	cal.p4 = readInt(c1[11], c1[12])
	cal.p5 = readInt(c1[13], c1[14])
	cal.p7 = int8(c1[15])
	cal.p6 = int8(c1[16])
	cal.p8 = readInt(c1[19], c1[20])
	cal.p9 = readInt(c1[21], c1[22])
	cal.p10 = c1[23]

	cal.h2 = uint16(c2[0])<<4 | uint16(c2[1])>>4
	cal.h1 = uint16(c2[2])<<4 | uint16(c2[1])&0x0F
	cal.h3 = int8(c2[3])
	cal.h4 = int8(c2[4])
	cal.h5 = int8(c2[5])
	cal.h6 = c2[6]
	cal.h7 = int8(c2[7])
	cal.t1 = readUint(c2[8], c2[9])
	cal.gh2 = readInt(c2[10], c2[11])
	cal.gh1 = int8(c2[12])
	cal.gh3 = int8(c2[13])

	var reg [1]byte
	if err := d.readRegister(REG_RES_HEAT_RNG, reg[:]); err != nil {
		return err
	}
	cal.resHeatRange = (reg[0] & 0x30) >> 4
	if err := d.readRegister(REG_RES_HEAT_VAL, reg[:]); err != nil {
		return err
	}
	cal.resHeatVal = int8(reg[0])
	if err := d.readRegister(REG_RANGE_SW_ERR, reg[:]); err != nil {
		return err
	}
	cal.rangeSwErr = int8(reg[0]&0xF0) / 16
	return nil
}

// compensateTemp converts the raw reading to centi degrees using the
// datasheet integer formulas, and returns the t_fine carry the other
// channels need.
func (d *Device) compensateTemp(tempADC int32) (int32, int64) {
	cal := &d.calibration
	var1 := int64(tempADC>>3) - int64(cal.t1)<<1
	var2 := (var1 * int64(cal.t2)) >> 11
	var3 := ((var1 >> 1) * (var1 >> 1)) >> 12
	var3 = (var3 * (int64(cal.t3) << 4)) >> 14
	tFine := var2 + var3
	return int32((tFine*5 + 128) >> 8), tFine
}

// compensatePressure converts the raw reading to pascals.
func (d *Device) compensatePressure(pressADC int32, tFine int64) int32 {
	cal := &d.calibration
	var1 := (tFine >> 1) - 64000
	var2 := ((((var1 >> 2) * (var1 >> 2)) >> 11) * int64(cal.p6)) >> 2
	var2 = var2 + ((var1 * int64(cal.p5)) << 1)
	var2 = (var2 >> 2) + (int64(cal.p4) << 16)
	var1 = (((((var1 >> 2) * (var1 >> 2)) >> 13) * (int64(cal.p3) << 5)) >> 3) +
		((int64(cal.p2) * var1) >> 1)
	var1 = var1 >> 18
	var1 = ((32768 + var1) * int64(cal.p1)) >> 15
	if var1 == 0 {
		return 0
	}
	p := int64(1048576 - pressADC)
	p = (p - (var2 >> 12)) * 3125
	if p >= 0x40000000 {
		p = (p / var1) << 1
	} else {
		p = (p << 1) / var1
	}
	var1 = (int64(cal.p9) * (((p >> 3) * (p >> 3)) >> 13)) >> 12
	var2 = ((p >> 2) * int64(cal.p8)) >> 13
	var3 := ((p >> 8) * (p >> 8) * (p >> 8) * int64(cal.p10)) >> 17
	return int32(p + ((var1 + var2 + var3 + (int64(cal.p7) << 7)) >> 4))
}

// compensateHumidity converts the raw reading to milli percent
// relative humidity, clamped to the physical range.
func (d *Device) compensateHumidity(humADC int32, tFine int64) int32 {
	cal := &d.calibration
	tempScaled := (tFine*5 + 128) >> 8
	var1 := int64(humADC) - int64(cal.h1)*16 -
		((tempScaled*int64(cal.h3))/100)>>1
	var2 := (int64(cal.h2) *
		((tempScaled*int64(cal.h4))/100 +
			((tempScaled*((tempScaled*int64(cal.h5))/100))>>6)/100 +
			1<<14)) >> 10
	var3 := var1 * var2
	var4 := (int64(cal.h6)<<7 + (tempScaled*int64(cal.h7))/100) >> 4
	var5 := ((var3 >> 14) * (var3 >> 14)) >> 10
	var6 := (var4 * var5) >> 1
	h := (((var3 + var6) >> 10) * 1000) >> 12
	if h > 100000 {
		h = 100000
	} else if h < 0 {
		h = 0
	}
	return int32(h)
}

// Gas range constants from the datasheet; they fold the ADC range
// scaling into the resistance calculation.
var gasRangeConst1 = [16]int64{
	2147483647, 2147483647, 2147483647, 2147483647,
	2147483647, 2126008810, 2147483647, 2130303777,
	2147483647, 2147483647, 2143188679, 2136746228,
	2147483647, 2126008810, 2147483647, 2147483647,
}

var gasRangeConst2 = [16]int64{
	4096000000, 2048000000, 1024000000, 512000000,
	255744255, 127110228, 64000000, 32258064,
	16016016, 8000000, 4000000, 2000000,
	1000000, 500000, 250000, 125000,
}

// compensateGas converts the raw reading to ohms.
func (d *Device) compensateGas(gasADC int32, rangeIdx uint8) int32 {
	cal := &d.calibration
	var1 := ((1340 + 5*int64(cal.rangeSwErr)) * gasRangeConst1[rangeIdx]) >> 16
	var2 := (int64(gasADC) << 15) - 16777216 + var1
	var3 := (gasRangeConst2[rangeIdx] * var1) >> 9
	return int32((var3 + (var2 >> 1)) / var2)
}

// heaterResistance converts a heater temperature target to the
// register setpoint using the per-device heater calibration.
func (d *Device) heaterResistance(target, ambient int32) uint8 {
	cal := &d.calibration
	if target > 400 {
		target = 400
	}
	var1 := (int64(ambient) * int64(cal.gh3) / 1000) * 256
	var2 := (int64(cal.gh1) + 784) *
		(((int64(cal.gh2)+154009)*int64(target)*5/100 + 3276800) / 10)
	var3 := var1 + (var2 >> 1)
	var4 := var3 / (int64(cal.resHeatRange) + 4)
	var5 := 131*int64(cal.resHeatVal) + 65536
	x100 := (var4/var5 - 250) * 34
	return uint8((x100 + 50) / 100)
}

// encodeGasWait packs a millisecond hold time into the gas_wait
// register format: a 6 bit value with a 1/4/16/64x multiplier.
func encodeGasWait(ms uint16) byte {
	factor := byte(0)
	for ms > 63 && factor < 3 {
		ms /= 4
		factor++
	}
	if ms > 63 {
		ms = 63
	}
	return factor<<6 | byte(ms)
}

func (d *Device) readRegister(reg uint8, buf []byte) error {
	return d.bus.Tx(d.Address, []byte{reg}, buf)
}

func (d *Device) writeRegister(reg uint8, val byte) error {
	return d.bus.Tx(d.Address, []byte{reg, val}, nil)
}

// readUint converts two little endian bytes to uint16.
func readUint(lsb, msb byte) uint16 {
	return uint16(msb)<<8 | uint16(lsb)
}

// readInt converts two little endian bytes to int16.
func readInt(lsb, msb byte) int16 {
	return int16(readUint(lsb, msb))
}
