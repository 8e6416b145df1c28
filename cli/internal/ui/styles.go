package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary    = lipgloss.Color("#f472b6")
	Secondary  = lipgloss.Color("#7C3AED")
	Success    = lipgloss.Color("#10B981")
	Warning    = lipgloss.Color("#F59E0B")
	Error      = lipgloss.Color("#EF4444")
	Muted      = lipgloss.Color("#6B7280")
	Foreground = lipgloss.Color("#F9FAFB")

	headerBackground = lipgloss.Color("#1F2937")
)

var (
	SuccessStyle = lipgloss.NewStyle().Bold(true).Foreground(Success)
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(Error)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	// StatusStyle is the badge showing the call state.
	StatusStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(Foreground).Background(Primary)

	// LabelStyle pads stat labels so values line up.
	LabelStyle = lipgloss.NewStyle().Width(14).Foreground(Muted)

	RoomBoxStyle  = lipgloss.NewStyle().Padding(1, 2).Border(lipgloss.DoubleBorder()).BorderForeground(Success)
	StatsBoxStyle = lipgloss.NewStyle().Padding(0, 2).Border(lipgloss.RoundedBorder()).BorderForeground(Secondary)

	ContainerStyle = lipgloss.NewStyle().Margin(1, 2)
	HeaderStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 2).MarginBottom(1).
			Foreground(Primary).Background(headerBackground)
	FooterStyle  = lipgloss.NewStyle().MarginTop(1).Foreground(Muted)
	SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)
)

const (
	IconCall    = "📞"
	IconVideo   = "🎥"
	IconLock    = "🔒"
	IconUnlock  = "🔓"
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconInfo    = "ℹ️"
	IconPeer    = "👤"
	IconWaiting = "⏳"
	IconCopy    = "📋"
	IconWeb     = "🌐"
)

// Notices go to stderr; stdout only ever carries the room box.
var notices io.Writer = os.Stderr

func notice(icon, msg string) {
	fmt.Fprintln(notices, icon, msg)
}

func PrintError(msg string) {
	notice(ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintWarning(msg string) {
	notice(WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	notice(SuccessStyle.Render(IconSuccess), msg)
}

func PrintInfo(msg string) {
	notice(IconInfo, msg)
}

func PrintInfof(format string, args ...any) {
	PrintInfo(fmt.Sprintf(format, args...))
}
