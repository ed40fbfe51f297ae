// Package render provides centralized output rendering for the dredge CLI.
//
// Format selection rules:
//   - If output is a TTY, default to table
//   - If output is not a TTY, default to json
//   - --format flag always overrides defaults
//   - Invalid formats are errors
//
// Table output is derived from the same JSON encoding the json format
// uses, so column names and field visibility never drift between the two.
//
// Color handling:
//   - --no-color affects table output only
//   - TUI mode is unaffected by --no-color (uses its own styling)
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/dredge/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // Let caller decide default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from CLI context, applying the TTY
// default when no format flag is set.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	formatStr := c.String("format")
	format, err := ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	// Apply default format based on TTY detection
	if format == "" {
		if isTTY(os.Stdout) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color"),
		out:     os.Stdout,
	}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
	}
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI initiates TUI mode for the given view type.
// TUI is opt-in only and limited to read-only views.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	return enc.Encode(data)
}

// field is one key of a JSON object, in encoding order.
type field struct {
	key string
	val json.RawMessage
}

func (r *Renderer) renderTable(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	switch kindOf(raw) {
	case '[':
		return r.renderRowTable(raw)
	case '{':
		return r.renderFieldTable(raw)
	default:
		_, err := fmt.Fprintln(r.out, cellText(raw))
		return err
	}
}

// renderRowTable prints a header row and one line per element. Columns
// are the union of keys across all elements, in first-seen order.
func (r *Renderer) renderRowTable(raw json.RawMessage) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(r.out, "(no results)")
		return nil
	}

	if kindOf(rows[0]) != '{' {
		// Scalar list, one value per line
		for _, row := range rows {
			fmt.Fprintln(r.out, cellText(row))
		}
		return nil
	}

	var columns []string
	cells := make([]map[string]json.RawMessage, 0, len(rows))
	seen := map[string]bool{}
	for _, row := range rows {
		fields, err := objectFields(row)
		if err != nil {
			return err
		}
		cell := make(map[string]json.RawMessage, len(fields))
		for _, f := range fields {
			if !seen[f.key] {
				seen[f.key] = true
				columns = append(columns, f.key)
			}
			cell[f.key] = f.val
		}
		cells = append(cells, cell)
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, strings.Join(columns, "\t"))
	for _, cell := range cells {
		vals := make([]string, 0, len(columns))
		for _, col := range columns {
			vals = append(vals, cellText(cell[col]))
		}
		fmt.Fprintln(w, strings.Join(vals, "\t"))
	}
	return nil
}

// renderFieldTable prints one "key: value" line per object field.
func (r *Renderer) renderFieldTable(raw json.RawMessage) error {
	fields, err := objectFields(raw)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	for _, f := range fields {
		fmt.Fprintf(w, "%s:\t%s\n", f.key, cellText(f.val))
	}
	return nil
}

// objectFields decodes a JSON object preserving key order, which the
// generic map decoding would lose.
func objectFields(raw json.RawMessage) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in object", tok)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		fields = append(fields, field{key: key, val: val})
	}
	return fields, nil
}

// cellText renders one JSON value for a table cell. Strings are
// unquoted, nulls are blank, arrays collapse to a count, and nested
// objects (run totals, window bounds) inline as compact JSON.
func cellText(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return string(raw)
		}
		return s
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return string(raw)
		}
		if len(items) == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", len(items))
	default:
		// Objects stay as compact JSON; numbers and booleans are
		// already in display form.
		return string(raw)
	}
}

// kindOf returns the leading syntactic byte of a JSON value.
func kindOf(raw json.RawMessage) byte {
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}

// isTTY returns true if the writer is a TTY.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
