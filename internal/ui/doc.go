// Package ui holds the terminal styles used by the spotkit CLI.
//
// [Palette] wraps named [lipgloss.Style] values; lipgloss drops the colors when output is not a terminal, so the
// rendered text stays plain in pipes and tests.
package ui
