package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/office-raster/cmd/office-raster/ui"
	"github.com/spherical/office-raster/internal/domain"
	"github.com/spherical/office-raster/pkg/officeraster"
)

var (
	convertDPI    int
	convertFormat string
	convertDir    string
	convertName   string
	convertMode   string
	convertDirect bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <source>",
	Short: "Convert a document or slide deck to images",
	Long: `Convert exports the source through Microsoft Word (documents) or Keynote
(slide decks) and rasterizes the result at the requested DPI.

Documents produce <dir>/<name>.<format>. Slide decks produce
<dir>/slide_1..slide_N; frames that cannot be converted are skipped
and numbering stays contiguous.`,
	Example: `  office-raster convert report.docx --dpi 600 --format jpeg --dir ./out
  office-raster convert deck.key
  office-raster convert deck.pptx --direct`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().IntVar(&convertDPI, "dpi", 0, "output resolution, 1-10000 (default from config, 300)")
	convertCmd.Flags().StringVar(&convertFormat, "format", "", "output format: png or jpeg (default from config, png)")
	convertCmd.Flags().StringVar(&convertDir, "dir", "", "output directory")
	convertCmd.Flags().StringVar(&convertName, "name", "", "output base name for documents (default source name)")
	convertCmd.Flags().StringVar(&convertMode, "mode", officeraster.ModeAuto, "conversion mode: auto, page or slides")
	convertCmd.Flags().BoolVar(&convertDirect, "direct", false, "keep Keynote's JPEG export as final slides")

	rootCmd.AddCommand(convertCmd)
}

// convertOptions builds the facade request from the convert flags.
func convertOptions(source string) officeraster.Options {
	return officeraster.Options{
		Source:     source,
		OutputDir:  convertDir,
		OutputName: convertName,
		DPI:        convertDPI,
		Format:     strings.ToLower(convertFormat),
		Mode:       convertMode,
		Direct:     convertDirect,
	}
}

// checkFlags rejects flag values that the facade would read as "not set".
func checkFlags(cmd *cobra.Command) error {
	if cmd.Flags().Changed("dpi") && convertDPI < 1 {
		return domain.InvalidJobError(fmt.Sprintf("dpi must be between 1 and %d, got %d", domain.MaxDPI, convertDPI))
	}
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	if err := checkFlags(cmd); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := officeraster.NewClient(appConfig, officeraster.WithLogger(logger))
	job, err := client.Resolve(convertOptions(args[0]))
	if err != nil {
		return err
	}

	ui.Section("Office Raster")
	ui.KeyValue("Source", job.SourcePath())
	ui.KeyValue("Mode", string(job.Mode()))
	ui.KeyValue("Resolution", fmt.Sprintf("%d DPI", job.DPI()))
	ui.KeyValue("Format", job.Extension())
	ui.KeyValue("Output", job.OutputDir())
	if job.Direct() {
		ui.Info("Keeping Keynote's JPEG export as the final slides")
	}
	ui.Newline()

	outcome := watch(ctx, client, job)
	return report(job, outcome)
}

// watch renders job progress until the outcome arrives.
func watch(ctx context.Context, client *officeraster.Client, job *officeraster.Job) *officeraster.Outcome {
	view := newProgressView(job)
	defer view.close()

	var outcome *officeraster.Outcome
	for event := range client.Process(ctx, job) {
		if event.Type == officeraster.EventComplete {
			outcome, _ = event.Payload.(*officeraster.Outcome)
			continue
		}
		view.handle(event)
	}
	return outcome
}

func report(job *officeraster.Job, outcome *officeraster.Outcome) error {
	if outcome == nil {
		return &exitError{code: 1, err: fmt.Errorf("conversion of %s ended without an outcome", job.SourcePath())}
	}

	for _, w := range outcome.Warnings {
		ui.Warning("%s: %s", w.Stage, w.Message)
	}

	if !outcome.Succeeded() {
		failure := outcome.Failure
		if failure == nil {
			failure = domain.NewError(domain.KindExportFailed, "conversion failed", nil)
		}
		ui.ErrorBox("Conversion failed", failureDetails(failure))
		return &exitError{code: domain.ExitCode(failure.Kind), err: failure}
	}

	rows := make([][]string, 0, len(outcome.Artifacts))
	for _, path := range outcome.Artifacts {
		rows = append(rows, []string{filepath.Base(path), ui.FileSize(path)})
	}
	ui.Table([]string{"Artifact", "Size"}, rows)
	ui.Newline()
	ui.Success("Wrote %s to %s in %s", plural(len(outcome.Artifacts), "image"), job.OutputDir(), ui.FormatDuration(outcome.Duration))
	return nil
}

// failureDetails formats the stage, diagnostic and remediation of a failure.
func failureDetails(err *domain.Error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Stage: %s\n", err.Stage)
	fmt.Fprintf(&sb, "Error: %s\n", err.Kind)
	fmt.Fprintf(&sb, "Message: %s\n", err.Message)
	if err.Diagnostic != "" {
		fmt.Fprintf(&sb, "Diagnostic: %s\n", err.Diagnostic)
	} else if err.Err != nil {
		fmt.Fprintf(&sb, "Diagnostic: %v\n", err.Err)
	}
	if hint := remediation(err.Kind); hint != "" {
		fmt.Fprintf(&sb, "\nHint: %s", hint)
	}
	return sb.String()
}

func remediation(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindUnsupportedPlatform:
		return "office-raster needs macOS with Word or Keynote installed."
	case domain.KindSourceNotFound:
		return "Check the source path."
	case domain.KindAutomationUnavailable:
		return "Install Microsoft Word (documents) or Keynote (slide decks), or close other conversions using it."
	case domain.KindAutomationPermissionDenied:
		return "Allow your terminal to control the application in System Settings > Privacy & Security > Automation."
	case domain.KindAutomationTimeout:
		return "Dismiss any dialog in the application, or raise automation.timeout."
	case domain.KindExportFailed:
		return "Open the document in the application once to check it is not damaged or protected."
	case domain.KindArtifactNotFound:
		return "The application reported success but wrote nothing; check free disk space and the output directory."
	case domain.KindRasterToolFailed:
		return "Check that sips and qlmanage are available (office-raster version), or lower the DPI."
	case domain.KindOutputFailed:
		return "Check that the output directory is writable."
	default:
		return ""
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// progressView shows a spinner while the application works and a bar while
// slide frames convert.
type progressView struct {
	source  string
	spinner *ui.Spinner
	bar     *ui.ProgressBar
}

func newProgressView(job *officeraster.Job) *progressView {
	return &progressView{source: filepath.Base(job.SourcePath())}
}

func (v *progressView) handle(event officeraster.StreamEvent) {
	switch event.Type {
	case officeraster.EventStateChanged:
		v.state(event.State)
	case officeraster.EventFrameConverted, officeraster.EventFrameSkipped:
		v.frame(event)
	}
}

func (v *progressView) state(state officeraster.State) {
	message := stateMessage(state, v.source)
	if message == "" {
		return
	}
	if v.bar != nil {
		return
	}
	if v.spinner == nil {
		v.spinner = ui.NewSpinner(message)
		v.spinner.Start()
		return
	}
	v.spinner.UpdateMessage(message)
}

func (v *progressView) frame(event officeraster.StreamEvent) {
	if v.bar == nil {
		if v.spinner != nil {
			v.spinner.Stop()
			v.spinner = nil
		}
		v.bar = ui.NewProgressBar(int64(event.TotalFrames), "Converting slides")
	}
	v.bar.Set(int64(event.Frame))
}

func (v *progressView) close() {
	if v.bar != nil {
		v.bar.Finish()
	}
	if v.spinner != nil {
		v.spinner.Stop()
	}
}

func stateMessage(state officeraster.State, source string) string {
	switch state {
	case domain.StateOpening:
		return "Opening " + source
	case domain.StateExporting:
		return "Exporting " + source
	case domain.StateLocating:
		return "Locating export"
	case domain.StateConverting:
		return "Rasterizing"
	case domain.StateNormalizing:
		return "Naming outputs"
	case domain.StateCleaningUp:
		return "Cleaning up"
	default:
		return ""
	}
}
