// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/parbench/internal/strategy"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Palette, deep ocean teals.
var (
	colorTitle   = lipgloss.Color("#2CD7C7")
	colorAccent  = lipgloss.Color("#20B9B4")
	colorBorder  = lipgloss.Color("#16858E")
	colorMuted   = lipgloss.Color("#2C4A54")
	colorWarning = lipgloss.Color("#F4D03F")
)

// TextOptions controls RenderText.
type TextOptions struct {
	// Color enables ANSI styling. Use ColorEnabled to decide it.
	Color bool
}

// ColorEnabled resolves a color mode ("auto", "always", "never") for f.
// "auto" colors only when f is a terminal and NO_COLOR is unset.
func ColorEnabled(mode string, f *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type textStyles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	name    lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
	header  lipgloss.Style
	cell    lipgloss.Style
	best    lipgloss.Style
	border  lipgloss.Style
}

func newTextStyles(w io.Writer, color bool) textStyles {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return textStyles{
		title:   r.NewStyle().Bold(true).Foreground(colorTitle),
		label:   r.NewStyle().Foreground(colorAccent),
		name:    r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(colorMuted),
		warning: r.NewStyle().Foreground(colorWarning),
		header:  r.NewStyle().Bold(true).Foreground(colorTitle).Padding(0, 1),
		cell:    r.NewStyle().Padding(0, 1),
		best:    r.NewStyle().Bold(true).Foreground(colorTitle).Padding(0, 1),
		border:  r.NewStyle().Foreground(colorBorder),
	}
}

// RenderText writes the human-readable report to w.
//
// Description:
//
//	Three blocks: the environment header, one detail block per strategy
//	in execution order, and a summary table followed by the verdict and
//	any warnings. Unavailable strategies print UnavailableLabel. Batch
//	latencies always carry SyntheticLabel.
func RenderText(w io.Writer, rep *ComparisonReport, opts TextOptions) error {
	st := newTextStyles(w, opts.Color)
	var b strings.Builder

	b.WriteString(st.title.Render("Concurrency strategy comparison"))
	b.WriteString("\n\n")
	writeHeader(&b, st, rep)
	b.WriteString("\n")

	for _, e := range rep.Entries {
		writeEntry(&b, st, e)
		b.WriteString("\n")
	}

	b.WriteString(st.title.Render("Performance summary"))
	b.WriteString("\n")
	b.WriteString(summaryTable(st, rep))
	b.WriteString("\n\n")

	b.WriteString(st.name.Render(rep.Verdict))
	b.WriteString("\n")

	if hasSynthetic(rep) {
		b.WriteString(st.muted.Render(fmt.Sprintf(
			"Latencies marked %q are compute time divided by item count for batch runs, not measured per item.",
			SyntheticLabel)))
		b.WriteString("\n")
	}
	for _, warning := range rep.Warnings {
		b.WriteString(st.warning.Render("⚠ " + warning))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeHeader(b *strings.Builder, st textStyles, rep *ComparisonReport) {
	topo := rep.Environment.Topology
	cpu := fmt.Sprintf("%d logical, %d allowed", topo.LogicalCPUs, topo.AllowedCPUs)
	if topo.PhysicalCores > 0 {
		cpu += fmt.Sprintf(", %d physical x %d threads", topo.PhysicalCores, topo.ThreadsPerCore)
	}
	if topo.Brand != "" {
		cpu += " (" + strings.TrimSpace(topo.Brand) + ")"
	}

	batch := "n/a"
	if rep.Environment.BatchParallelism > 0 {
		batch = fmt.Sprintf("%d", rep.Environment.BatchParallelism)
	}

	avg := "n/a"
	if rep.Corpus.Files > 0 {
		avg = humanize.Bytes(uint64(rep.Corpus.AvgFileBytes))
	}

	rows := [][2]string{
		{"Directory", rep.Root},
		{"Files", humanize.Comma(int64(rep.Corpus.Files))},
		{"Total size", humanize.Bytes(rep.Corpus.TotalBytes)},
		{"Average file size", avg},
		{"CPU", cpu},
		{"Workers", fmt.Sprintf("%d", rep.Environment.Workers)},
		{"Batch parallelism", batch},
		{"Run", rep.RunID.String()},
	}
	for _, row := range rows {
		fmt.Fprintf(b, "%s %s\n", st.label.Render(fmt.Sprintf("%-18s", row[0]+":")), row[1])
	}
}

func writeEntry(b *strings.Builder, st textStyles, e Entry) {
	r := e.Result
	fmt.Fprintf(b, "%s %s %s\n",
		st.name.Render(r.StrategyName+"."),
		st.name.Render(r.Label),
		st.muted.Render("("+describe(r)+")"),
	)

	if r.Unavailable {
		fmt.Fprintf(b, "   %s: %s\n", UnavailableLabel, r.UnavailableReason)
		return
	}

	fmt.Fprintf(b, "   I/O time:        %s\n", formatDuration(r.IOTime))
	fmt.Fprintf(b, "   Processing time: %s\n", formatDuration(r.ComputeTime))
	fmt.Fprintf(b, "   Total time:      %s\n", formatDuration(r.TotalTime))
	fmt.Fprintf(b, "   Avg latency:     %s\n", latencyCell(e))
	if l := e.Summary.Latency; l != nil {
		fmt.Fprintf(b, "   Latency p50/p90/p99: %s / %s / %s (max %s)\n",
			formatMicros(l.P50), formatMicros(l.P90), formatMicros(l.P99), formatMicros(l.Max))
	}
	fmt.Fprintf(b, "   Throughput:      %s\n", throughputCell(e))
	fmt.Fprintf(b, "   Items:           %s (%s)\n", humanize.Comma(int64(r.ItemCount)), humanize.Bytes(r.ByteCount))
}

func describe(r strategy.RunResult) string {
	read := "sequential read"
	if r.ParallelRead {
		read = "parallel read"
	}
	compute := "per-item " + r.Primitive
	if r.BatchDispatch {
		compute = "batch " + r.Primitive
	}
	return read + ", " + compute
}

func summaryTable(st textStyles, rep *ComparisonReport) string {
	rows := make([][]string, 0, len(rep.Entries))
	bestRow := -1
	for i, e := range rep.Entries {
		if e.Rank == 1 {
			bestRow = i
		}
		if e.Result.Unavailable {
			rows = append(rows, []string{
				e.Result.StrategyName, e.Result.Label, UnavailableLabel, "-", "-", "-", "-",
			})
			continue
		}
		rows = append(rows, []string{
			e.Result.StrategyName,
			e.Result.Label,
			formatDuration(e.Result.TotalTime),
			throughputCell(e),
			latencyCell(e),
			ratioCell(e, rep.Baseline),
			rankCell(e),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.border).
		Headers("Strategy", "Method", "Time", "Throughput", "Avg latency", "vs baseline", "Rank").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return st.header
			case row == bestRow:
				return st.best
			default:
				return st.cell
			}
		})
	return t.Render()
}

func latencyCell(e Entry) string {
	if e.Result.Unavailable {
		return "-"
	}
	if e.Result.ItemCount == 0 {
		return "n/a"
	}
	s := formatMicros(e.Summary.AvgLatency)
	if e.Summary.LatencySynthetic {
		s += " (" + SyntheticLabel + ")"
	}
	return s
}

func throughputCell(e Entry) string {
	if !e.Summary.ThroughputDefined {
		return "undefined"
	}
	return fmt.Sprintf("%.2f MB/s", e.Summary.ThroughputMBps)
}

func ratioCell(e Entry, baseline string) string {
	if e.Result.StrategyName == baseline && e.RatioDefined {
		return "baseline"
	}
	if !e.RatioDefined {
		return "undefined"
	}
	return fmt.Sprintf("%.2fx", e.Ratio)
}

func rankCell(e Entry) string {
	if !e.Ranked() {
		return "-"
	}
	return fmt.Sprintf("%d", e.Rank)
}

func formatMicros(d time.Duration) string {
	return fmt.Sprintf("%.2fµs", float64(d)/float64(time.Microsecond))
}

func hasSynthetic(rep *ComparisonReport) bool {
	for _, e := range rep.Entries {
		if e.Summary.LatencySynthetic && e.Result.ItemCount > 0 {
			return true
		}
	}
	return false
}
