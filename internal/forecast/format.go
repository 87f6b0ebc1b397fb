package forecast

import (
	"fmt"
	"math"
	"strings"
)

// Display control bytes understood by chat clients.
const (
	Bold          = '\x02'
	Color         = '\x03'
	Reset         = '\x0f'
	Monospace     = '\x11'
	Reverse       = '\x16'
	Italic        = '\x1d'
	Strikethrough = '\x1e'
	Underline     = '\x1f'
)

type TempVariant int

const (
	Pair TempVariant = iota
	Low
	High
)

var compass = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

func FtoC(f float64) float64 {
	return (f - 32) * 5 / 9
}

func MphToKmh(mph float64) float64 {
	return mph * 1.60934
}

// TempColor maps a Fahrenheit temperature to a two-digit colour code.
func TempColor(f float64) string {
	switch {
	case f > 100:
		return "04"
	case f > 85:
		return "07"
	case f > 75:
		return "08"
	case f > 60:
		return "09"
	case f > 40:
		return "11"
	case f > 10:
		return "12"
	default:
		return "15"
	}
}

// FormatTemp renders f as a coloured "F/C" pair; Low and High prefix a bold
// arrow.
func FormatTemp(variant TempVariant, f float64) string {
	var arrow string
	switch variant {
	case Low:
		arrow = "\x02↓\x02"
	case High:
		arrow = "\x02↑\x02"
	}
	return fmt.Sprintf("\x03%s%s%.1fF/%.1fC\x03", TempColor(f), arrow, f, FtoC(f))
}

// WindDirection returns the 16-point compass name for a bearing in degrees.
// Bearings outside [0, 360) map to N.
func WindDirection(bearing float64) string {
	if bearing < 0 || bearing >= 360 || math.IsNaN(bearing) {
		return compass[0]
	}
	idx := int(math.Floor(bearing/22.5+0.5)) % len(compass)
	return compass[idx]
}

// UVRisk returns the risk label and colour code for a UV index.
func UVRisk(uv float64) (string, string) {
	switch {
	case uv <= 2.9:
		return "Low", "03"
	case uv <= 5.9:
		return "Moderate", "08"
	case uv <= 7.9:
		return "High", "07"
	case uv <= 10.9:
		return "Very high", "04"
	default:
		return "Extreme", "06"
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// StripDisplayMarkup removes formatting control bytes and colour sequences.
// A colour sequence is \x03 followed by up to two foreground digits and,
// only when a foreground was given, a comma plus up to two background digits.
func StripDisplayMarkup(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		c := text[i]
		switch c {
		case Bold, Reset, Monospace, Reverse, Italic, Strikethrough, Underline:
			i++
		case Color:
			i++
			fg := 0
			for fg < 2 && i < len(text) && isDigit(text[i]) {
				i++
				fg++
			}
			if fg > 0 && i+1 < len(text) && text[i] == ',' && isDigit(text[i+1]) {
				i += 2
				if i < len(text) && isDigit(text[i]) {
					i++
				}
			}
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
