package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/openmined/thumbtree/internal/reconcile"
)

var (
	red   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	label = lipgloss.NewStyle().Width(12)
)

type summary struct {
	reconcile.Stats
	DryRun bool `json:"dry_run"`
}

func printSummary(w io.Writer, stats reconcile.Stats, dryRun, asJSON bool) error {
	if asJSON {
		data, err := json.Marshal(summary{Stats: stats, DryRun: dryRun})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	title := "thumbtree summary"
	if dryRun {
		title += " (dry run)"
	}

	var sb strings.Builder
	sb.WriteString(cyan.Render(title) + "\n")
	row := func(name string, value string, style lipgloss.Style) {
		sb.WriteString("  " + label.Render(name) + style.Render(value) + "\n")
	}

	created := fmt.Sprintf("%s files, %s directories, %s symlinks",
		humanize.Comma(int64(stats.Rendered)),
		humanize.Comma(int64(stats.Directories)),
		humanize.Comma(int64(stats.Symlinks)))
	row("created", created, green)
	row("updated", humanize.Comma(int64(stats.Updated)), green)
	row("unchanged", humanize.Comma(int64(stats.Unchanged)), gray)
	row("removed", humanize.Comma(int64(stats.Removed)), red)
	row("suppressed", humanize.Comma(int64(stats.Suppressed))+" RAW files", gray)
	if stats.Skipped > 0 {
		row("skipped", humanize.Comma(int64(stats.Skipped)), red)
	}
	row("written", humanize.Bytes(uint64(stats.BytesWritten)), cyan)

	_, err := io.WriteString(w, sb.String())
	return err
}
