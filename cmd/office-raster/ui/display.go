package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// Table displays data in a formatted table.
func Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))

	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", utf8.RuneCountInString(headers[i]))
	}
	fmt.Fprintln(w, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	_ = w.Flush()
}

func box(w io.Writer, title, content string) {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	maxWidth := utf8.RuneCountInString(title)
	for _, line := range lines {
		if n := utf8.RuneCountInString(strings.TrimSpace(line)); n > maxWidth {
			maxWidth = n
		}
	}
	if maxWidth < 40 {
		maxWidth = 40
	}

	horizontal := strings.Repeat("─", maxWidth+2)
	fmt.Fprintf(w, "┌%s┐\n", horizontal)
	if title != "" {
		fmt.Fprintf(w, "│ %s │\n", pad(title, maxWidth))
		fmt.Fprintf(w, "├%s┤\n", horizontal)
	}
	for _, line := range lines {
		fmt.Fprintf(w, "│ %s │\n", pad(strings.TrimSpace(line), maxWidth))
	}
	fmt.Fprintf(w, "└%s┘\n", horizontal)
}

// pad right-pads s to width runes; %-*s counts bytes.
func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// ErrorBox displays an error message in a box on stderr.
func ErrorBox(title, message string) {
	fmt.Fprintln(stderr)
	box(stderr, "✗ "+title, message)
	fmt.Fprintln(stderr)
}

// FormatDuration formats a duration in a human-readable way. Durations under
// ten seconds keep one decimal.
func FormatDuration(d time.Duration) string {
	if d < 10*time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	d = d.Round(time.Second)

	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// FileSize returns the human-readable size of the file at path, or "-" when
// it cannot be read.
func FileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "-"
	}
	return humanize.Bytes(uint64(info.Size()))
}

// KeyValue displays a key-value pair in a formatted way.
func KeyValue(key, value string) {
	fmt.Fprintf(stdout, "  %s: %s\n", key, value)
}

// Step displays a step indicator message.
func Step(format string, args ...interface{}) {
	fmt.Fprintf(stdout, "→ %s\n", fmt.Sprintf(format, args...))
}
