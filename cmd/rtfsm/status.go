package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/comalice/rtfsm"
	"github.com/comalice/rtfsm/internal/core"
	"github.com/comalice/rtfsm/realtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	faultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

var machineColumns = []string{"ID", "DEFINITION", "VERSION", "STATE", "PREV", "VALID", "PAUSED", "TRANS", "RUNTIME"}

func transitionLine(machine int, t rtfsm.StateTransition) string {
	event := fmt.Sprintf("e%d", t.Event)
	if t.Event == rtfsm.EventTimeout {
		event = "tup"
	}
	return fmt.Sprintf("m%d %12s  s%d -> s%d  %s", machine, t.TS, t.Previous, t.State, event)
}

// renderStatus lays out the machine table and loop counters. Without
// styled the output is plain text suitable for pipes and logs.
func renderStatus(status []core.MachineStatus, stats realtime.Stats, styled bool) string {
	style := func(s lipgloss.Style) lipgloss.Style {
		if styled {
			return s
		}
		return lipgloss.NewStyle()
	}

	rows := make([][]string, 0, len(status))
	for _, s := range status {
		rows = append(rows, []string{
			fmt.Sprint(s.ID),
			s.Definition,
			shortVersion(s.Version),
			fmt.Sprint(s.State),
			fmt.Sprint(s.Previous),
			yesNo(s.Valid),
			yesNo(s.Paused),
			fmt.Sprint(s.Transitions),
			s.Runtime.String(),
		})
	}
	widths := make([]int, len(machineColumns))
	for i, c := range machineColumns {
		widths[i] = len(c)
	}
	for _, r := range rows {
		for i, cell := range r {
			widths[i] = max(widths[i], len(cell))
		}
	}

	var b strings.Builder
	b.WriteString(style(titleStyle).Render("rtfsm status"))
	b.WriteString("\n\n")
	b.WriteString(style(headerStyle).Render(pad(machineColumns, widths)))
	b.WriteByte('\n')
	for i, r := range rows {
		line := pad(r, widths)
		switch {
		case !status[i].Valid:
			line = style(faultStyle).Render(line)
		case status[i].Paused:
			line = style(dimStyle).Render(line)
		default:
			line = style(okStyle).Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	faults := stats.Jitters + stats.Overruns + stats.IOErrors + stats.InternalErrors + stats.AIOverflows + stats.Dropped
	counterStyle := style(okStyle)
	if faults > 0 {
		counterStyle = style(faultStyle)
	}
	counters := []string{
		fmt.Sprintf("cycles      %d", stats.Cycles),
		fmt.Sprintf("last/max    %s / %s", stats.LastCycle, stats.MaxCycle),
		counterStyle.Render(fmt.Sprintf("jitters     %d  overruns %d  resyncs %d", stats.Jitters, stats.Overruns, stats.Resyncs)),
		counterStyle.Render(fmt.Sprintf("io errors   %d  internal %d  dropped %d", stats.IOErrors, stats.InternalErrors, stats.Dropped)),
		fmt.Sprintf("ai          %d overflows  %d restarts", stats.AIOverflows, stats.AIRestarts),
		fmt.Sprintf("skipped     %d writes", stats.SkippedWrites),
	}
	b.WriteByte('\n')
	b.WriteString(style(boxStyle).Render(strings.Join(counters, "\n")))
	return b.String()
}

func pad(cells []string, widths []int) string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c + strings.Repeat(" ", widths[i]-len(c))
	}
	return strings.Join(out, "  ")
}

func shortVersion(v string) string {
	if len(v) > 8 {
		return v[:8]
	}
	return v
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
