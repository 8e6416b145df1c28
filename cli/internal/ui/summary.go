package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/talkr-dev/talkr/cli/internal/utils"
)

// CallSummary is printed once the call is over.
type CallSummary struct {
	RoomID   string
	Role     string
	Peer     string
	Outcome  string
	Duration time.Duration

	FramesSent     uint64
	FramesReceived uint64
	BytesReceived  uint64
	// Dropped counts frames discarded by the cipher pipeline.
	Dropped uint64
}

func CallSummaryView(title string, s CallSummary) string {
	peer := s.Peer
	if peer == "" {
		peer = "-"
	}

	t := table.NewWriter()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Room", s.RoomID},
		{"Role", s.Role},
		{"Peer", peer},
		{"Outcome", s.Outcome},
		{"Duration", utils.FormatTimeDuration(s.Duration)},
		{"Frames sent", s.FramesSent},
		{"Frames received", s.FramesReceived},
		{"Received", utils.FormatSize(int64(s.BytesReceived))},
		{"Avg bitrate in", utils.FormatBitrate(int64(s.BytesReceived), s.Duration)},
		{"Frames dropped", s.Dropped},
	})
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Color.Header = text.Colors{text.FgHiMagenta, text.Bold}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	return t.Render()
}

func RenderCallSummary(title string, s CallSummary) {
	fmt.Fprintln(os.Stderr, CallSummaryView(title, s))
}
