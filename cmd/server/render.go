package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/TFMV/ignis/pkg/models"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// renderFrames renders every frame as a titled table.
func renderFrames(frames []*models.ResultFrame) string {
	parts := make([]string, 0, len(frames))
	for _, f := range frames {
		parts = append(parts, renderFrame(f))
	}
	return strings.Join(parts, "\n\n")
}

func renderFrame(f *models.ResultFrame) string {
	title := titleStyle.Render(fmt.Sprintf("%s (%d rows)", f.RefID, len(f.Rows)))
	if f.Empty() {
		return lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("no data"))
	}

	headers := make([]string, len(f.Fields))
	for i, field := range f.Fields {
		headers[i] = field.Name
	}

	rows := make([][]string, len(f.Rows))
	for r, row := range f.Rows {
		rows[r] = make([]string, len(row))
		for c, v := range row {
			rows[r][c] = formatCell(v)
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)

	return lipgloss.JoinVertical(lipgloss.Left, title, t.String())
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

// renderHealth renders a probe result on one line.
func renderHealth(r *models.HealthResult) string {
	if r.Status == models.HealthStatusSuccess {
		line := okStyle.Render("OK") + " " + r.Message
		if r.Version != "" {
			line += mutedStyle.Render(" (grid " + r.Version + ")")
		}
		return line
	}
	return failStyle.Render("FAIL") + " " + r.Message
}

// renderOptions renders metric find values as text=value lines.
func renderOptions(values []models.MetricFindValue) string {
	if len(values) == 0 {
		return mutedStyle.Render("no options")
	}
	lines := make([]string, len(values))
	for i, v := range values {
		lines[i] = v.Text
	}
	return strings.Join(lines, "\n")
}
