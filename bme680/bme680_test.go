package bme680

import (
	"errors"
	"testing"
)

// fakeBus is a 256-register I2C endpoint. Reads copy out of the
// register file, writes store into it.
type fakeBus struct {
	regs   [256]byte
	err    error
	writes map[byte]byte
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	if b.err != nil {
		return b.err
	}
	if len(w) == 0 {
		return errors.New("empty write buffer")
	}
	reg := w[0]
	if len(r) > 0 {
		for i := range r {
			r[i] = b.regs[int(reg)+i]
		}
		return nil
	}
	for i := 1; i < len(w); i++ {
		b.regs[int(reg)+i-1] = w[i]
		if b.writes != nil {
			b.writes[reg+byte(i-1)] = w[i]
		}
	}
	return nil
}

// Calibration and data registers captured from a real sensor profile.
var testCoeff1 = [25]byte{
	0x00, 0xA4, 0x66, 0x03, 0x00, 0xFF, 0x8E, 0x56, 0xD7, 0x58,
	0x00, 0xC6, 0x1E, 0x88, 0xFF, 0x26, 0x1E, 0x00, 0x00, 0x6F,
	0xF0, 0xCB, 0xF9, 0x1E, 0x00,
}

var testCoeff2 = [16]byte{
	0x3F, 0xAC, 0x2D, 0x00, 0x2D, 0x14, 0x78, 0x9C, 0x0E, 0x66,
	0xAF, 0xE8, 0xE2, 0x12, 0x00, 0x00,
}

// One measurement: temp adc 501240, pressure adc 415148, humidity adc
// 18325, gas adc 600 in range 5, valid and heater-stable.
var testField = [15]byte{
	0x80, 0x00, 0x65, 0x5A, 0xC0, 0x7A, 0x5F, 0x80, 0x47, 0x95,
	0x00, 0x00, 0x00, 0x96, 0x35,
}

func newTestDevice() (*Device, *fakeBus) {
	bus := &fakeBus{writes: map[byte]byte{}}
	bus.regs[WHO_AM_I] = CHIP_ID
	copy(bus.regs[REG_COEFF_1:], testCoeff1[:])
	copy(bus.regs[REG_COEFF_2:], testCoeff2[:])
	bus.regs[REG_RES_HEAT_VAL] = 0x2F
	bus.regs[REG_RES_HEAT_RNG] = 0x10
	bus.regs[REG_RANGE_SW_ERR] = 0x00
	copy(bus.regs[REG_STATUS:], testField[:])
	dev := New(bus)
	return &dev, bus
}

func TestConnected(t *testing.T) {
	dev, bus := newTestDevice()
	if !dev.Connected() {
		t.Error("chip id present, Connected() = false")
	}
	bus.regs[WHO_AM_I] = 0x60
	if dev.Connected() {
		t.Error("wrong chip id, Connected() = true")
	}
}

func TestConfigureWritesProfile(t *testing.T) {
	dev, bus := newTestDevice()
	dev.Configure()

	if got := bus.writes[REG_CTRL_GAS_1]; got != 1<<4 {
		t.Errorf("ctrl_gas_1 = %#02x, want run_gas set", got)
	}
	if got := bus.writes[REG_GAS_WAIT_0]; got != 0x65 {
		t.Errorf("gas_wait_0 = %#02x, want 0x65 (150ms)", got)
	}
	if got := bus.writes[REG_RES_HEAT_0]; got != 117 {
		t.Errorf("res_heat_0 = %d, want 117 for 320C at 25C ambient", got)
	}
	if got := bus.writes[REG_CONFIG]; got != byte(Coeff3)<<2 {
		t.Errorf("config = %#02x, want IIR coeff 3", got)
	}
}

func TestCompensatedReadings(t *testing.T) {
	dev, _ := newTestDevice()
	dev.Configure()

	temp, err := dev.ReadTemperature()
	if err != nil {
		t.Fatalf("ReadTemperature: %v", err)
	}
	if temp != 26070 {
		t.Errorf("temperature = %d milli-degC, want 26070", temp)
	}

	press, err := dev.ReadPressure()
	if err != nil {
		t.Fatalf("ReadPressure: %v", err)
	}
	if press != 86628000 {
		t.Errorf("pressure = %d milli-Pa, want 86628000", press)
	}

	hum, err := dev.ReadHumidity()
	if err != nil {
		t.Fatalf("ReadHumidity: %v", err)
	}
	if hum != 3256 {
		t.Errorf("humidity = %d centi-%%, want 3256", hum)
	}

	gas, err := dev.ReadGasResistance()
	if err != nil {
		t.Fatalf("ReadGasResistance: %v", err)
	}
	if gas != 232818 {
		t.Errorf("gas resistance = %d ohms, want 232818", gas)
	}
}

func TestGasInvalidReported(t *testing.T) {
	dev, bus := newTestDevice()
	dev.Configure()

	bus.regs[REG_STATUS+14] &^= gasValid
	if _, err := dev.ReadGasResistance(); !errors.Is(err, errGasInvalid) {
		t.Errorf("invalid gas err = %v, want errGasInvalid", err)
	}
}

func TestMeasureTimesOut(t *testing.T) {
	dev, bus := newTestDevice()
	dev.Configure()

	bus.regs[REG_STATUS] = 0
	if _, err := dev.ReadTemperature(); !errors.Is(err, errTimeout) {
		t.Errorf("no new data err = %v, want errTimeout", err)
	}
}

func TestEncodeGasWait(t *testing.T) {
	cases := []struct {
		ms   uint16
		want byte
	}{
		{25, 0x19},
		{63, 0x3F},
		{100, 0x59},
		{150, 0x65},
		{5000, 0xFF},
	}
	for _, tc := range cases {
		if got := encodeGasWait(tc.ms); got != tc.want {
			t.Errorf("encodeGasWait(%d) = %#02x, want %#02x", tc.ms, got, tc.want)
		}
	}
}
