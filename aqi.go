package main

// Air quality index derivation from BME680 gas resistance. Lower
// resistance means more volatile organics in the air and a higher
// index. The index is piecewise linear between category boundaries:
//
//	resistance (ohms)   index
//	>= 1,000,000        0
//	500,000             25
//	200,000             50
//	100,000             100
//	50,000              150
//	25,000              300
//	0                   500
//
// Integer arithmetic throughout; divisions truncate toward zero, which
// keeps adjacent bands non-increasing at every boundary. The result is
// clamped to [0,500].
func airQualityIndex(gasOhms int) int {
	var aqi int
	switch {
	case gasOhms <= 0:
		return 500
	case gasOhms >= 1000000:
		return 0
	case gasOhms >= 500000:
		aqi = 25 * (1000000 - gasOhms) / 500000
	case gasOhms >= 200000:
		aqi = 25 + (500000-gasOhms)*25/300000
	case gasOhms >= 100000:
		aqi = 100 + (100000-gasOhms)*50/100000
	case gasOhms >= 50000:
		aqi = 150 + (50000-gasOhms)*50/50000
	case gasOhms >= 25000:
		aqi = 200 + (50000-gasOhms)*100/25000
	default:
		aqi = 300 + (25000-gasOhms)*200/25000
	}
	if aqi < 0 {
		return 0
	}
	if aqi > 500 {
		return 500
	}
	return aqi
}
