package wire

import (
	"fmt"
	"math/bits"
)

// Temperature is the coarse lane temperature range reported by hardware.
type Temperature uint8

const (
	TempBelow50 Temperature = iota
	Temp50To60
	Temp60To70
	Temp70To80
	Temp80To90
	Temp90To100
	Temp100To110
	TempAbove110
)

var temperatureNames = [...]string{
	"< 50C",
	"[50-60C]",
	"[60-70C]",
	"[70-80C]",
	"[80-90C]",
	"[90-100C]",
	"[100-110C]",
	"> 110C",
}

func (t Temperature) String() string {
	if int(t) < len(temperatureNames) {
		return temperatureNames[t]
	}
	return fmt.Sprintf("temperature(%d)", uint8(t))
}

// TemperatureOf decodes the temperature byte of a result word.
func TemperatureOf(w Word) Temperature {
	n := bits.OnesCount8(w.Temperature())
	if n > int(TempAbove110) {
		n = int(TempAbove110)
	}
	return Temperature(n)
}

// TemperatureFromCelsius returns the range holding celsius.
func TemperatureFromCelsius(celsius int) Temperature {
	switch {
	case celsius < 50:
		return TempBelow50
	case celsius < 60:
		return Temp50To60
	case celsius < 70:
		return Temp60To70
	case celsius < 80:
		return Temp70To80
	case celsius < 90:
		return Temp80To90
	case celsius < 100:
		return Temp90To100
	case celsius < 110:
		return Temp100To110
	default:
		return TempAbove110
	}
}

// TemperatureByte encodes t as the byte a lane reports.
func TemperatureByte(t Temperature) uint8 {
	if t > TempAbove110 {
		t = TempAbove110
	}
	return uint8(1)<<uint(t) - 1
}
