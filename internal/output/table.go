// Package output renders scan results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"cloudauditor/internal/domain"
)

var severityColor = map[domain.Severity]lipgloss.Color{
	domain.SeverityCritical: lipgloss.Color("196"),
	domain.SeverityHigh:     lipgloss.Color("208"),
	domain.SeverityMedium:   lipgloss.Color("220"),
	domain.SeverityLow:      lipgloss.Color("75"),
	domain.SeverityInfo:     lipgloss.Color("250"),
}

// WriteJSON writes the scan detail as indented JSON to w.
func WriteJSON(w io.Writer, d domain.ScanDetail) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// WriteSummary prints the scan header and one line per compliance framework.
func WriteSummary(w io.Writer, d domain.ScanDetail) {
	fmt.Fprintf(w, "Target: %s (%s)\n", d.Target, d.Scope)
	fmt.Fprintf(w, "Status: %s\n", d.Status)
	fmt.Fprintf(w, "Findings: %d (%d critical, %d high)\n", d.FindingsCount, d.CriticalCount, d.HighCount)
	if d.EvidenceHash != "" {
		fmt.Fprintf(w, "Evidence: %s\n", d.EvidenceHash)
	}
	if len(d.Compliance) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, fw := range d.Compliance {
		fmt.Fprintf(w, "%-6s %3d%%  %d passed, %d failed, %d n/a\n",
			fw.ShortName, fw.Score, fw.PassedControls, fw.FailedControls, fw.NAControls)
	}
}

// WriteFindings renders vulnerabilities as a table, most severe first.
func WriteFindings(w io.Writer, vulns []domain.Vulnerability, noColor bool) {
	if len(vulns) == 0 {
		fmt.Fprintln(w, "\nNo findings.")
		return
	}

	sorted := append([]domain.Vulnerability(nil), vulns...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Score() > sorted[j].Severity.Score()
	})

	headers := []string{"Severity", "CVSS", "Title", "Category", "Resource"}
	rows := make([][]string, 0, len(sorted))
	for _, v := range sorted {
		rows = append(rows, []string{
			string(v.Severity),
			strconv.FormatFloat(v.CVSSScore, 'f', 1, 64),
			truncate(v.Title, 48),
			truncate(v.Category, 28),
			truncate(v.AffectedResource, 32),
		})
	}

	fmt.Fprintln(w)
	if noColor {
		writeSimpleTable(w, headers, rows)
		return
	}

	t := table.New().
		Headers(headers...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
			}
			style := lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("250"))
			if col == 0 && row >= 0 && row < len(sorted) {
				style = style.Foreground(severityColor[sorted[row].Severity])
			}
			return style
		})
	for _, row := range rows {
		t.Row(row...)
	}
	fmt.Fprintln(w, t.Render())
}

func writeSimpleTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprintf(w, "%-*s", widths[i], cell)
		}
		fmt.Fprintln(w)
	}
	writeRow(headers)
	sep := make([]string, len(widths))
	for i, n := range widths {
		sep[i] = strings.Repeat("-", n)
	}
	writeRow(sep)
	for _, row := range rows {
		writeRow(row)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
