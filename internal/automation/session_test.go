package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/office-raster/internal/domain"
)

func TestSession_Exclusive(t *testing.T) {
	app := NewFake("session-exclusive", nil)

	first, err := Acquire(app)
	require.NoError(t, err)

	_, err = Acquire(NewFake("session-exclusive", nil))
	assert.Equal(t, domain.KindAutomationUnavailable, domain.KindOf(err))

	other, err := Acquire(NewFake("session-other", nil))
	require.NoError(t, err)
	require.NoError(t, other.Release(context.Background()))

	require.NoError(t, first.Release(context.Background()))
	require.NoError(t, first.Release(context.Background()), "release is idempotent")

	again, err := Acquire(app)
	require.NoError(t, err)
	require.NoError(t, again.Release(context.Background()))
}

func TestSession_ReleaseClosesDocument(t *testing.T) {
	ctx := context.Background()
	app := NewFake("session-close", nil)
	s, err := Acquire(app)
	require.NoError(t, err)

	_, err = s.Open(ctx, "/docs/a.docx")
	require.NoError(t, err)
	require.NoError(t, s.Export(ctx, "/out/a_temp.pdf", ExportOptions{Format: ExportPDF}))
	require.NoError(t, s.Release(ctx))

	assert.Equal(t, []string{
		"open /docs/a.docx",
		"export /out/a_temp.pdf PDF",
		"close /docs/a.docx",
	}, app.Calls())
}

func TestSession_ReleaseFreesOnCloseFailure(t *testing.T) {
	ctx := context.Background()
	app := NewFake("session-close-fail", nil)
	app.CloseErr = errors.New("window busy")

	s, err := Acquire(app)
	require.NoError(t, err)
	_, err = s.Open(ctx, "/docs/a.docx")
	require.NoError(t, err)
	assert.Error(t, s.Release(ctx))

	again, err := Acquire(app)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestSession_ExportWithoutOpen(t *testing.T) {
	s, err := Acquire(NewFake("session-no-open", nil))
	require.NoError(t, err)
	defer s.Release(context.Background())

	err = s.Export(context.Background(), "/out", ExportOptions{Format: ExportTIFF})
	assert.Equal(t, domain.KindExportFailed, domain.KindOf(err))
}

func TestWriteFrames(t *testing.T) {
	dir := t.TempDir()
	produce := WriteFrames("deck", "deck", []byte("one"), []byte("two"))
	require.NoError(t, produce(dir, ExportOptions{Format: ExportTIFF}))

	entries, err := os.ReadDir(filepath.Join(dir, "deck"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "deck.001.tiff", entries[0].Name())
	assert.Equal(t, "deck.002.tiff", entries[1].Name())

	jpegDir := t.TempDir()
	require.NoError(t, WriteFrames("deck", "", []byte("x"))(jpegDir, ExportOptions{Format: ExportJPEG}))
	assert.FileExists(t, filepath.Join(jpegDir, "deck.001.jpeg"))
}

func TestWriteFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "r_temp.pdf")
	require.NoError(t, WriteFile([]byte("%PDF"))(dest, ExportOptions{Format: ExportPDF}))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
}
