package bme680

// Constants/addresses used for I2C.

// The I2C address which this device listens to.
const Address = 0x76

// Registers. Names and addresses follow the datasheet.
const (
	REG_STATUS       = 0x1D
	REG_RES_HEAT_0   = 0x5A
	REG_GAS_WAIT_0   = 0x64
	REG_CTRL_GAS_1   = 0x71
	REG_CTRL_HUM     = 0x72
	REG_CTRL_MEAS    = 0x74
	REG_CONFIG       = 0x75
	REG_COEFF_1      = 0x89
	REG_COEFF_2      = 0xE1
	REG_RES_HEAT_VAL = 0x00
	REG_RES_HEAT_RNG = 0x02
	REG_RANGE_SW_ERR = 0x04
	CMD_RESET        = 0xE0

	WHO_AM_I = 0xD0
	CHIP_ID  = 0x61
)

// Status register bits.
const (
	statusNewData = 0x80
)

// Gas data bits in the second gas register.
const (
	gasValid   = 0x20
	heatStable = 0x10
	gasRange   = 0x0F
)

// Oversampling codes shared by the ctrl_hum and ctrl_meas fields.
const (
	SamplingOff Oversampling = iota
	Sampling1X
	Sampling2X
	Sampling4X
	Sampling8X
	Sampling16X
)

// The sensor measures only on demand; forced mode triggers one cycle
// and drops back to sleep.
const (
	ModeSleep  Mode = 0x00
	ModeForced Mode = 0x01
)

// IIR filter coefficients for the temperature and pressure signals.
const (
	Coeff0 FilterCoefficient = iota
	Coeff1
	Coeff3
	Coeff7
	Coeff15
	Coeff31
	Coeff63
	Coeff127
)
