package automation

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/spherical/office-raster/internal/domain"
	"github.com/spherical/office-raster/internal/exec"
)

// Script steps reported in error replies.
const (
	stepOpen   = "open"
	stepExport = "export"
	stepClose  = "close"
	stepProbe  = "probe"
)

// AppleScript error numbers.
const (
	errNotAuthorized = -1743
	errCantGetObject = -1728
	errAppNotFound   = -10814
	errAppNotRunning = -600
)

const replyErrorPrefix = "error:"

var quoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Quote escapes s for use inside an AppleScript string literal.
func Quote(s string) string {
	return quoter.Replace(s)
}

var funcs = template.FuncMap{"q": Quote}

var probeTemplate = template.Must(template.New("probe").Funcs(funcs).Parse(
	`tell application "{{q .App}}" to get name`))

// Word opens read-only, saves as PDF and closes without saving in one call.
var wordExportTemplate = template.Must(template.New("word-export").Funcs(funcs).Parse(`tell application "{{q .App}}"
	activate
	delay 1
	set currentStep to "open"
	try
		set theDoc to open file name "{{q .Source}}" with read only
		delay 1
		set currentStep to "export"
		save as theDoc file name "{{q .Destination}}" file format format PDF
		set currentStep to "close"
		close theDoc saving no
		return "success"
	on error errMsg number errNum
		if currentStep is "export" then
			try
				close theDoc saving no
			end try
		end if
		return "error:" & currentStep & ": " & errMsg & " (" & errNum & ")"
	end try
end tell`))

var wordCloseTemplate = template.Must(template.New("word-close").Funcs(funcs).Parse(`tell application "{{q .App}}"
	close (every document whose name is "{{q .Name}}") saving no
end tell`))

var keynoteExportTemplate = template.Must(template.New("keynote-export").Funcs(funcs).Parse(`tell application "{{q .App}}"
	set currentStep to "open"
	try
		set theDoc to open POSIX file "{{q .Source}}"
		set currentStep to "export"
		export theDoc to POSIX file "{{q .Destination}}" as slide images with properties {image format:{{.ImageFormat}}, all stages:false, skipped slides:false}
		set currentStep to "close"
		close theDoc without saving
		return "success"
	on error errMsg number errNum
		if currentStep is "export" then
			try
				close theDoc without saving
			end try
		end if
		return "error:" & currentStep & ": " & errMsg & " (" & errNum & ")"
	end try
end tell`))

var keynoteCloseTemplate = template.Must(template.New("keynote-close").Funcs(funcs).Parse(`tell application "{{q .App}}"
	close (every document whose name is "{{q .Name}}") without saving
end tell`))

type scriptData struct {
	App         string
	Source      string
	Destination string
	Name        string
	ImageFormat ExportFormat
}

func render(t *template.Template, data scriptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render %s script", t.Name())
	}
	return buf.String(), nil
}

// Reply is the parsed result line of an export script.
type Reply struct {
	OK      bool
	Step    string
	Message string
	Number  int
}

var errNumberPattern = regexp.MustCompile(`\((-?\d+)\)\s*$`)

// ParseReply parses the output of a script that answers "success" or
// "error:<step>: <message> (<number>)". Output without an error prefix
// counts as success.
func ParseReply(output string) Reply {
	out := strings.TrimSpace(output)
	if !strings.HasPrefix(out, replyErrorPrefix) {
		return Reply{OK: true}
	}
	rest := strings.TrimSpace(strings.TrimPrefix(out, replyErrorPrefix))
	reply := Reply{Step: stepExport, Message: rest}
	if step, msg, found := strings.Cut(rest, ":"); found && isStep(step) {
		reply.Step = step
		reply.Message = strings.TrimSpace(msg)
	}
	reply.Number = errorNumber(reply.Message)
	return reply
}

func isStep(s string) bool {
	switch s {
	case stepOpen, stepExport, stepClose, stepProbe:
		return true
	}
	return false
}

func errorNumber(text string) int {
	m := errNumberPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func stageOf(step string) domain.State {
	if step == stepOpen || step == stepProbe {
		return domain.StateOpening
	}
	return domain.StateExporting
}

// classify turns a script failure into a domain error. diagnostic is the
// script reply or the runner's standard error; runErr is the runner error,
// if the runner itself failed.
func classify(app, step, diagnostic string, runErr error) *domain.Error {
	stage := stageOf(step)
	if runErr != nil && errors.Is(runErr, exec.ErrTimeout) {
		return domain.AutomationTimeoutError(app+" did not answer in time", runErr).
			WithStage(stage).WithDiagnostic(diagnostic)
	}

	cause := runErr
	if cause == nil {
		cause = errors.New(diagnostic)
	}
	number := errorNumber(diagnostic)
	lower := strings.ToLower(diagnostic)

	switch {
	case number == errNotAuthorized || strings.Contains(lower, "not authorized"):
		return domain.AutomationPermissionDeniedError("not authorized to send Apple events to "+app, cause).
			WithStage(domain.StateOpening).WithDiagnostic(diagnostic)
	case number == errAppNotFound || strings.Contains(lower, "can't get application") ||
		strings.Contains(lower, "can’t get application"):
		return domain.AutomationUnavailableError(app+" is not installed", cause).
			WithStage(domain.StateOpening).WithDiagnostic(diagnostic)
	case step == stepProbe && (number == errCantGetObject || number == errAppNotRunning || runErr != nil):
		return domain.AutomationUnavailableError(app+" did not answer", cause).
			WithStage(domain.StateOpening).WithDiagnostic(diagnostic)
	case number == errCantGetObject && step == stepOpen:
		return domain.AutomationUnavailableError(app+" could not be reached", cause).
			WithStage(stage).WithDiagnostic(diagnostic)
	}

	return domain.ExportFailedError(app+" failed at "+step, cause).
		WithStage(stage).WithDiagnostic(diagnostic)
}
