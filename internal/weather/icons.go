package weather

import (
	"math"
	"strconv"
)

// Slot variants used to index an IconTable entry.
const (
	SlotDay   = 0
	SlotNight = 1
)

// IconTable maps a numeric sky-condition code to its [day, night] icon pair.
type IconTable map[int][2]string

// DefaultIcons maps SMHI Wsymb2 codes to weather-icons class names.
func DefaultIcons() IconTable {
	return IconTable{
		1:  {"wi-day-sunny", "wi-night-clear"},
		2:  {"wi-day-sunny-overcast", "wi-night-partly-cloudy"},
		3:  {"wi-day-cloudy", "wi-night-alt-cloudy"},
		4:  {"wi-day-cloudy", "wi-night-alt-cloudy"},
		5:  {"wi-day-cloudy", "wi-night-alt-cloudy"},
		6:  {"wi-cloudy", "wi-cloudy"},
		7:  {"wi-day-fog", "wi-night-fog"},
		8:  {"wi-day-showers", "wi-night-alt-showers"},
		9:  {"wi-day-showers", "wi-night-alt-showers"},
		10: {"wi-day-showers", "wi-night-alt-showers"},
		11: {"wi-day-thunderstorm", "wi-night-alt-thunderstorm"},
		12: {"wi-day-sleet", "wi-night-alt-sleet"},
		13: {"wi-day-sleet", "wi-night-alt-sleet"},
		14: {"wi-day-sleet", "wi-night-alt-sleet"},
		15: {"wi-day-snow", "wi-night-alt-snow"},
		16: {"wi-day-snow", "wi-night-alt-snow"},
		17: {"wi-day-snow", "wi-night-alt-snow"},
		18: {"wi-day-rain", "wi-night-alt-rain"},
		19: {"wi-day-rain", "wi-night-alt-rain"},
		20: {"wi-day-rain", "wi-night-alt-rain"},
		21: {"wi-day-lightning", "wi-night-alt-lightning"},
		22: {"wi-day-sleet", "wi-night-alt-sleet"},
		23: {"wi-day-sleet", "wi-night-alt-sleet"},
		24: {"wi-day-sleet", "wi-night-alt-sleet"},
		25: {"wi-day-snow", "wi-night-alt-snow"},
		26: {"wi-day-snow", "wi-night-alt-snow"},
		27: {"wi-day-snow", "wi-night-alt-snow"},
	}
}

// Merge returns a copy of t with the entries of override applied on top.
func (t IconTable) Merge(override IconTable) IconTable {
	out := make(IconTable, len(t)+len(override))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Icon resolves a sky-condition symbol to an icon for the given slot.
// Text symbols are passed through, numeric codes without a table entry are
// returned as their decimal form, and null symbols yield "".
func (t IconTable) Icon(symbol Value, slot int) string {
	if symbol.Number == nil {
		return symbol.Text
	}
	n := *symbol.Number
	if n != math.Trunc(n) {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	pair, ok := t[int(n)]
	if !ok || slot < SlotDay || slot > SlotNight {
		return strconv.Itoa(int(n))
	}
	return pair[slot]
}
