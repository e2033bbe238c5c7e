package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/parley/pkg/prefs"
)

type Style struct {
	UserMessage      lipgloss.Style
	AssistantMessage lipgloss.Style
	Input            lipgloss.Style
	FocusedInput     lipgloss.Style
	TitleBar         lipgloss.Style
	StatusBar        lipgloss.Style
	ErrorBar         lipgloss.Style
}

type accentColors struct {
	Light string
	Dark  string
}

var accentPalette = map[prefs.AccentColor]accentColors{
	prefs.AccentIndigo: {Light: "#4F46E5", Dark: "#818CF8"},
	prefs.AccentBlue:   {Light: "#2563EB", Dark: "#60A5FA"},
	prefs.AccentPurple: {Light: "#9333EA", Dark: "#C084FC"},
	prefs.AccentGreen:  {Light: "#16A34A", Dark: "#4ADE80"},
}

func NewStyles(p prefs.Preferences) *Style {
	accent, ok := accentPalette[p.AccentColor]
	if !ok {
		accent = accentPalette[prefs.AccentIndigo]
	}
	accentColor := lipgloss.AdaptiveColor{Light: accent.Light, Dark: accent.Dark}
	mutedColor := lipgloss.AdaptiveColor{Light: "#CCCCCC", Dark: "#444444"}
	errorColor := lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"}

	padding := 1
	if p.MessageLayout == prefs.LayoutCompact {
		padding = 0
	}

	return &Style{
		UserMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(padding, 1).
			BorderForeground(accentColor),
		AssistantMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(padding, 1).
			BorderForeground(mutedColor),
		Input: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(mutedColor),
		FocusedInput: lipgloss.NewStyle().Border(lipgloss.ThickBorder()).
			Padding(0, 1).
			BorderForeground(accentColor),
		TitleBar: lipgloss.NewStyle().Bold(true).
			Foreground(accentColor).
			Padding(0, 1),
		StatusBar: lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1),
		ErrorBar: lipgloss.NewStyle().Bold(true).
			Foreground(errorColor).
			Padding(0, 1),
	}
}
