package automation

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/office-raster/internal/domain"
	"github.com/spherical/office-raster/internal/exec"
)

// replyWith makes osascript answer reply on stdout.
func replyWith(reply string) exec.RunFn {
	return func(_ context.Context, cmd *exec.Command) error {
		if cmd.Stdout != nil {
			_, _ = io.WriteString(cmd.Stdout, reply+"\n")
		}
		return nil
	}
}

func mockContext(t *testing.T, run exec.RunFn) (context.Context, *exec.CommandCollector) {
	t.Helper()
	mock := &exec.CommandCollector{}
	mock.SetDelegateRun(run)
	return exec.NewContext(context.Background(), mock.Run), mock
}

func TestWord_OpenProbesApplication(t *testing.T) {
	ctx, mock := mockContext(t, replyWith("Microsoft Word"))
	word := NewWord(Options{OSAScript: "/usr/bin/osascript", Timeout: time.Second})

	doc, err := word.Open(ctx, "/docs/report.docx")
	require.NoError(t, err)
	assert.Equal(t, "/docs/report.docx", doc.Path)
	assert.False(t, doc.Closed())

	cmds := mock.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "/usr/bin/osascript", cmds[0].Name)
	assert.Equal(t, "-e", cmds[0].Args[0])
	assert.Equal(t, `tell application "Microsoft Word" to get name`, cmds[0].Args[1])
	assert.Equal(t, time.Second, cmds[0].Timeout)
}

func TestWord_OpenPermissionDenied(t *testing.T) {
	ctx, _ := mockContext(t, func(context.Context, *exec.Command) error {
		return &exec.ExitError{
			Command: "osascript",
			Stderr:  "execution error: Not authorized to send Apple events to Microsoft Word. (-1743)",
			Err:     errors.New("exit status 1"),
		}
	})

	_, err := NewWord(Options{}).Open(ctx, "/docs/report.docx")
	require.Error(t, err)
	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindAutomationPermissionDenied, de.Kind)
	assert.Equal(t, domain.StateOpening, de.Stage)
	assert.Contains(t, de.Diagnostic, "-1743")
}

func TestWord_ExportSuccessClosesDocument(t *testing.T) {
	ctx, mock := mockContext(t, replyWith("success"))
	word := NewWord(Options{})
	doc := &Document{Path: "/docs/report.docx"}

	require.NoError(t, word.Export(ctx, doc, "/out/report_temp.pdf", ExportOptions{Format: ExportPDF}))
	assert.True(t, doc.Closed())

	script := mock.Commands()[0].Args[1]
	assert.Contains(t, script, `save as theDoc file name "/out/report_temp.pdf" file format format PDF`)

	// Already closed by the export script.
	require.NoError(t, word.Close(ctx, doc))
	assert.Len(t, mock.Commands(), 1)
}

func TestWord_ExportErrorReply(t *testing.T) {
	ctx, _ := mockContext(t, replyWith("error:export: The file could not be saved (-34)"))
	err := NewWord(Options{}).Export(ctx, &Document{Path: "/docs/r.docx"}, "/out/r_temp.pdf", ExportOptions{Format: ExportPDF})

	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindExportFailed, de.Kind)
	assert.Equal(t, domain.StateExporting, de.Stage)
	assert.Equal(t, "error:export: The file could not be saved (-34)", de.Diagnostic)
}

func TestWord_ExportRejectsFrames(t *testing.T) {
	ctx, mock := mockContext(t, replyWith("success"))
	err := NewWord(Options{}).Export(ctx, &Document{Path: "/docs/r.docx"}, "/out", ExportOptions{Format: ExportTIFF})
	assert.Equal(t, domain.KindExportFailed, domain.KindOf(err))
	assert.Empty(t, mock.Commands())
}

func TestKeynote_CloseStepFailureRetriedByClose(t *testing.T) {
	ctx, mock := mockContext(t, replyWith("error:close: Keynote got an error (-1708)"))
	keynote := NewKeynote(Options{})
	doc := &Document{Path: "/decks/deck.pptx"}

	require.NoError(t, keynote.Export(ctx, doc, "/out/temp_tiff", ExportOptions{Format: ExportTIFF}))
	assert.False(t, doc.Closed())

	mock.SetDelegateRun(replyWith(""))
	require.NoError(t, keynote.Close(ctx, doc))
	assert.True(t, doc.Closed())

	cmds := mock.Commands()
	require.Len(t, cmds, 2)
	assert.True(t, strings.Contains(cmds[1].Args[1], `close (every document whose name is "deck.pptx") without saving`))
}

func TestKeynote_ExportTimeout(t *testing.T) {
	ctx, _ := mockContext(t, func(context.Context, *exec.Command) error {
		return errors.Wrap(exec.ErrTimeout, "osascript killed")
	})
	err := NewKeynote(Options{}).Export(ctx, &Document{Path: "/decks/deck.key"}, "/out/temp_tiff", ExportOptions{Format: ExportJPEG})
	assert.Equal(t, domain.KindAutomationTimeout, domain.KindOf(err))
}

func TestApplicationNames(t *testing.T) {
	assert.Equal(t, "Microsoft Word", NewWord(Options{}).Name())
	assert.Equal(t, "Keynote", NewKeynote(Options{}).Name())
	assert.Equal(t, "Keynote Beta", NewKeynote(Options{Application: "Keynote Beta"}).Name())
}
