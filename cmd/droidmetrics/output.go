package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const ErrUnknownFormat = errors.ErrorCode("cli_unknown_format")

// Format selects how a command prints its result.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

func parseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", errors.New().WithMessage(ErrUnknownFormat, "unknown format "+strconv.Quote(s)+" (table, json, yaml)")
	}
}

// addFormatFlag registers --format and returns a getter for the parsed value.
func addFormatFlag(cmd *cobra.Command) func() (Format, error) {
	var raw string
	cmd.Flags().StringVarP(&raw, "format", "f", string(FormatTable), "Output format (table, json, yaml)")

	return func() (Format, error) {
		return parseFormat(raw)
	}
}

// render prints v as JSON or YAML, or calls human for the table format.
func render(w io.Writer, format Format, v any, human func()) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, v)
	case FormatYAML:
		return writeYAML(w, v)
	default:
		human()
		return nil
	}
}

const (
	colorAccent = lipgloss.Color("#06B6D4")
	colorMuted  = lipgloss.Color("#6B7280")
	colorGood   = lipgloss.Color("#22C55E")
	colorBad    = lipgloss.Color("#EF4444")
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleLabel  = lipgloss.NewStyle().Foreground(colorMuted).Width(18)
	styleGood   = lipgloss.NewStyle().Foreground(colorGood)
	styleBad    = lipgloss.NewStyle().Foreground(colorBad)
)

func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		}).
		Headers(headers...).
		Rows(rows...)

	fmt.Fprintln(w, t.Render())
}

// field is one label/value line of a detail view.
type field struct {
	label string
	value string
}

func renderFields(w io.Writer, title string, fields []field) {
	fmt.Fprintln(w, styleTitle.Render(title))
	for _, f := range fields {
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, styleLabel.Render(f.label), f.value))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// writeYAML goes through JSON so the json tags name the keys and keep their
// order.
func writeYAML(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return err
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}

	return enc.Close()
}

// blockStyle clears the flow and quoting styles the JSON input left behind.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func formatFloat(v *float64, unit string) string {
	if v == nil {
		return "-"
	}

	return strconv.FormatFloat(*v, 'f', 1, 64) + unit
}

func formatInt(v *int, unit string) string {
	if v == nil {
		return "-"
	}

	return strconv.Itoa(*v) + unit
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return t.Local().Format(time.DateTime)
}
