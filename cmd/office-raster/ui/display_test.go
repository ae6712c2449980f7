package ui

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.5s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 4*time.Second, "3m 4s"},
		{2*time.Hour + time.Minute + 9*time.Second, "2h 1m 9s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}

func TestFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slide_1.png")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 2000), 0644))

	assert.Equal(t, "2.0 kB", FileSize(path))
	assert.Equal(t, "-", FileSize(filepath.Join(t.TempDir(), "missing.png")))
}

func TestTable(t *testing.T) {
	var out bytes.Buffer
	defer SetOutput(&out, &out)()

	Table([]string{"Artifact", "Size"}, [][]string{{"slide_1.png", "2.0 kB"}})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "--------"))
	assert.Contains(t, lines[2], "slide_1.png")
}

func TestBox(t *testing.T) {
	var out bytes.Buffer
	box(&out, "✗ Conversion failed", "stage: exporting\nkind: export_failed")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	width := len([]rune(lines[0]))
	for _, line := range lines {
		assert.Equal(t, width, len([]rune(line)), line)
	}
}

func TestSpinnerOffTerminal(t *testing.T) {
	var out bytes.Buffer
	defer SetOutput(&out, &out)()
	noColorFlag = true
	defer func() { noColorFlag = false }()

	s := NewSpinner("Opening report.docx")
	s.Start()
	s.UpdateMessage("Opening report.docx")
	s.UpdateMessage("Exporting")
	s.Stop()

	assert.Equal(t, "→ Opening report.docx\n→ Exporting\n", out.String())
}
