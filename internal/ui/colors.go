package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/playroom/internal/models"
)

const (
	purple = lipgloss.Color("#7D56F4")
	green  = lipgloss.Color("#04B575")
	red    = lipgloss.Color("#FF5F5F")
	amber  = lipgloss.Color("#FFA500")
	grey   = lipgloss.Color("#626262")
)

var styles = newTheme()

// theme is the console stylesheet
type theme struct {
	heading lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	notice  lipgloss.Style
	hint    lipgloss.Style
	field   lipgloss.Style
	states  map[models.State]lipgloss.Style
}

func newTheme() *theme {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	badge := func(c lipgloss.Color) lipgloss.Style { return fg(c).Bold(true).Padding(0, 1) }

	return &theme{
		heading: fg(purple).Bold(true).MarginBottom(1),
		success: fg(green).Bold(true),
		failure: fg(red).Bold(true),
		notice:  fg(amber),
		hint:    fg(grey).Italic(true),
		field:   fg(grey).Width(12),
		states: map[models.State]lipgloss.Style{
			models.StatePending:    badge(amber),
			models.StateInProgress: badge(purple),
			models.StateApproved:   badge(green),
			models.StateRejected:   badge(red),
		},
	}
}

// badge renders s in its state color.
func (t *theme) badge(s models.State) string {
	style, ok := t.states[s]
	if !ok {
		style = t.hint
	}
	return style.Render(string(s))
}
