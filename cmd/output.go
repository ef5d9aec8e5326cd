package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	domaintodo "todoapi/internal/domain/todo"
	"todoapi/internal/errs"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
)

func writeTodos(w io.Writer, format string, items []domaintodo.Snapshot) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(items); err != nil {
			return errs.Wrap(err, "encode json output")
		}
		return nil
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(items); err != nil {
			return errs.Wrap(err, "encode yaml output")
		}
		if err := enc.Close(); err != nil {
			return errs.Wrap(err, "flush yaml output")
		}
		return nil
	case "", "table":
		if _, err := fmt.Fprintln(w, renderTable(items)); err != nil {
			return errs.Wrap(err, "write table output")
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func renderTable(items []domaintodo.Snapshot) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "DESCRIPTION", "DONE").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return dimStyle
			default:
				return cellStyle
			}
		})
	for _, item := range items {
		desc := ""
		if item.Description != nil {
			desc = *item.Description
		}
		done := "no"
		if item.Completed {
			done = "yes"
		}
		t.Row(item.ID.String(), item.Title, desc, done)
	}
	return t.String()
}
