package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/dependents/pkg/deps"
	apperrors "github.com/matzehuels/dependents/pkg/errors"
)

// Output formats accepted by --output.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var outputFormats = []string{formatTable, formatJSON, formatYAML}

func validateFormat(format string) error {
	if !slices.Contains(outputFormats, format) {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "unknown output format %q (want one of %v)", format, outputFormats)
	}
	return nil
}

// writeOutput encodes v as JSON or YAML, or renders the table built by tbl.
func writeOutput(w io.Writer, format string, v any, tbl func() *table.Table) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		_, err := fmt.Fprintln(w, tbl().Render())
		return err
	}
}

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorCyan).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
)

// newTable returns a table with the shared border and header styling.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		}).
		Headers(headers...)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// edgeTable lists dependents edges.
func edgeTable(edges []deps.Edge) func() *table.Table {
	return func() *table.Table {
		t := newTable("PROJECT", "FILE", "DEPENDS ON PROJECT", "DEPENDS ON FILE")
		for _, e := range edges {
			t.Row(itoa(e.ProjectID), itoa(e.FileID), itoa(e.DependencyProjectID), itoa(e.DependencyFileID))
		}
		return t
	}
}

// skippedTable lists retry queue entries.
func skippedTable(rows []deps.SkippedFile) func() *table.Table {
	return func() *table.Table {
		t := newTable("PROJECT", "FILE", "REASON", "QUEUED", "URL")
		for _, s := range rows {
			t.Row(itoa(s.ProjectID), itoa(s.FileID), reasonStyle(s.Reason).Render(s.Reason.String()), strconv.FormatInt(s.Timestamp, 10), s.URL)
		}
		return t
	}
}

// fileTable lists file identifiers.
func fileTable(ids []deps.FileIdentifier) func() *table.Table {
	return func() *table.Table {
		t := newTable("PROJECT", "FILE")
		for _, f := range ids {
			t.Row(itoa(f.ProjectID), itoa(f.FileID))
		}
		return t
	}
}
