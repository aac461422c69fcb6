package render

import "image/color"

var (
	// threatColors maps a threat level to the color its overlay is painted
	// with, 1 is okay, 2 is a warning and 3 is danger
	threatColors = map[int]color.RGBA{
		1: {R: 0, G: 255, B: 0, A: 255},   // #00FF00
		2: {R: 255, G: 165, B: 0, A: 255}, // #FFA500
		3: {R: 255, G: 0, B: 0, A: 255},   // #FF0000
	}

	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 50, A: 255}
	Pink   = color.RGBA{R: 255, G: 0, B: 255, A: 255}

	// clock panel colors
	PanelGrey  = color.RGBA{R: 50, G: 50, B: 50, A: 255}
	ClockGreen = color.RGBA{R: 5, G: 100, B: 5, A: 255}
)

// ThreatColor returns the overlay color for a threat level, levels without
// a color of their own are drawn in black
func ThreatColor(level int) color.RGBA {
	if clr, ok := threatColors[level]; ok {
		return clr
	}
	return Black
}
