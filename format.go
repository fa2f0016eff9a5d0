package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Column layout for printTable.
const (
	columnGap  = "  "
	timeLayout = "2006-01-02 15:04"
)

// statusf writes progress and confirmation messages to stderr so stdout
// stays clean for data. --quiet silences it.
func statusf(format string, args ...any) {
	if flagQuiet {
		return
	}

	fmt.Fprintf(os.Stderr, format, args...)
}

// printJSON writes v as indented JSON, the shape every --json output uses.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// formatSize renders a byte count in binary units, e.g. "1.5 KiB".
func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}

	return humanize.IBytes(uint64(n))
}

// formatTime renders t in UTC so task and journal timestamps line up across
// machines. The zero time prints as "-".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.UTC().Format(timeLayout)
}

// columnWidths returns the widest cell of each column, headers included.
func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))

	for _, row := range append([][]string{headers}, rows...) {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], len(row[i]))
		}
	}

	return widths
}

// printTable writes headers and rows as left-aligned columns. Rows shorter
// than headers leave their trailing columns blank.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := columnWidths(headers, rows)

	var b strings.Builder

	for _, row := range append([][]string{headers}, rows...) {
		b.Reset()

		for i, width := range widths {
			var cell string
			if i < len(row) {
				cell = row[i]
			}

			if i > 0 {
				b.WriteString(columnGap)
			}

			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", width-len(cell)))
		}

		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}
}
