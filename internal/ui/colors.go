package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Spotify green for titles; the rest follow the usual ok/error/warning colors.
var Default = NewPalette("#1DB954", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	label lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		label: NewStyle(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// Header renders title between two rules as wide as the title.
func (p *Palette) Header(title string) string {
	rule := strings.Repeat("═", max(lipgloss.Width(title), 39))
	return fmt.Sprintf("%s\n%s\n%s\n", rule, p.title.Render(title), rule)
}

func (p *Palette) Title(s string) string { return p.title.Render(s) }

// OK prefixes s with a check mark.
func (p *Palette) OK(s string) string { return p.ok.Render("✓ " + s) }

// Err prefixes s with a cross.
func (p *Palette) Err(s string) string { return p.err.Render("✗ " + s) }

// Warn prefixes s with a warning sign.
func (p *Palette) Warn(s string) string { return p.warn.Render("⚠ " + s) }

func (p *Palette) Help(s string) string { return p.help.Render(s) }

// Field renders an indented "Label: value" line.
func (p *Palette) Field(label string, value any) string {
	return fmt.Sprintf("   %s %v", p.label.Render(label+":"), value)
}
