package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// CallSummary holds the figures shown after a call ends.
type CallSummary struct {
	RoomID   string
	Code     string
	Duration time.Duration
	Peers    int
}

// RenderCallSummary prints the end-of-call summary table.
func RenderCallSummary(title string, s CallSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter

	t.AppendRows([]table.Row{
		{"Room", s.RoomID},
		{"Code", s.Code},
		{"Duration", formatDuration(s.Duration)},
		{"Participants seen", s.Peers},
	})
	t.Render()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%02ds", m, s)
}
