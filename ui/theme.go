package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"

	"veritas-client/llm"
)

// customTheme wraps the default theme with a configurable font size
type customTheme struct {
	baseFontSize float32
	baseTheme    fyne.Theme
}

// newCustomTheme creates a new custom theme with the specified font size
func newCustomTheme(baseFontSize int, isDark bool) fyne.Theme {
	var base fyne.Theme
	if isDark {
		base = theme.DarkTheme()
	} else {
		base = theme.LightTheme()
	}

	return &customTheme{
		baseFontSize: float32(baseFontSize),
		baseTheme:    base,
	}
}

func (t *customTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	// Read-only entries keep the normal text color
	if name == theme.ColorNameDisabled {
		return t.baseTheme.Color(theme.ColorNameForeground, variant)
	}
	return t.baseTheme.Color(name, variant)
}

func (t *customTheme) Font(style fyne.TextStyle) fyne.Resource {
	return t.baseTheme.Font(style)
}

func (t *customTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return t.baseTheme.Icon(name)
}

func (t *customTheme) Size(name fyne.ThemeSizeName) float32 {
	switch name {
	case theme.SizeNameText:
		return t.baseFontSize
	case theme.SizeNameHeadingText:
		return t.baseFontSize * 1.5
	case theme.SizeNameSubHeadingText:
		return t.baseFontSize * 1.2
	case theme.SizeNameCaptionText:
		return t.baseFontSize * 0.85
	default:
		return t.baseTheme.Size(name)
	}
}

// verdictRGBA matches the terminal verdict colors
func verdictRGBA(v llm.Verdict) color.Color {
	switch v {
	case llm.VerdictAuthentic:
		return color.RGBA{R: 0x8b, G: 0xc3, B: 0x4a, A: 0xff}
	case llm.VerdictSuspicious:
		return color.RGBA{R: 0xff, G: 0xc1, B: 0x07, A: 0xff}
	case llm.VerdictFakeGenerated:
		return color.RGBA{R: 0xe5, G: 0x39, B: 0x35, A: 0xff}
	}
	return color.RGBA{R: 0x80, G: 0x8a, B: 0x99, A: 0xff}
}
