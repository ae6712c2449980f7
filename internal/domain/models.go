package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxDPI is the highest resolution a job may request.
const MaxDPI = 10000

// Mode selects between one output image and a sequence of slide images.
type Mode string

const (
	ModeSinglePage Mode = "page"
	ModeSlideBatch Mode = "slides"
)

// Format is the raster format of the final artifacts.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// DefaultFormat is the lossless format.
const DefaultFormat = FormatPNG

// ParseFormat accepts the format names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	default:
		return "", InvalidJobError(fmt.Sprintf("unsupported format %q (want png or jpeg)", s))
	}
}

// Extension is the file extension used for the format, without the dot.
func (f Format) Extension() string {
	return string(f)
}

var (
	pageExtensions  = []string{".doc", ".docx", ".rtf", ".odt", ".pages"}
	slideExtensions = []string{".ppt", ".pptx", ".key", ".odp"}
)

// InferMode picks the job mode from the source document's extension.
func InferMode(sourcePath string) (Mode, error) {
	ext := strings.ToLower(filepath.Ext(sourcePath))
	for _, e := range pageExtensions {
		if ext == e {
			return ModeSinglePage, nil
		}
	}
	for _, e := range slideExtensions {
		if ext == e {
			return ModeSlideBatch, nil
		}
	}
	return "", InvalidJobError(fmt.Sprintf("cannot infer conversion mode from extension %q", ext))
}

// JobSpec is the caller-supplied description of a conversion job.
type JobSpec struct {
	SourcePath string
	OutputDir  string
	OutputName string
	DPI        int
	Format     Format
	Mode       Mode
	// Direct exports JPEG frames and only renames them. SlideBatch only.
	Direct bool
}

// Job is an immutable, validated conversion job.
type Job struct {
	id   string
	spec JobSpec
}

// NewJob validates spec and freezes it into a Job. Paths are made absolute.
func NewJob(spec JobSpec) (*Job, error) {
	if strings.TrimSpace(spec.SourcePath) == "" {
		return nil, InvalidJobError("source path cannot be empty")
	}
	if spec.DPI < 1 || spec.DPI > MaxDPI {
		return nil, InvalidJobError(fmt.Sprintf("dpi must be between 1 and %d, got %d", MaxDPI, spec.DPI))
	}
	if spec.Format != FormatPNG && spec.Format != FormatJPEG {
		return nil, InvalidJobError(fmt.Sprintf("unsupported format %q", spec.Format))
	}
	switch spec.Mode {
	case ModeSinglePage:
		if spec.Direct {
			return nil, InvalidJobError("direct export is only available for slide decks")
		}
		if strings.TrimSpace(spec.OutputName) == "" {
			return nil, InvalidJobError("output name cannot be empty")
		}
		if strings.ContainsRune(spec.OutputName, filepath.Separator) {
			return nil, InvalidJobError(fmt.Sprintf("output name %q must not contain a path separator", spec.OutputName))
		}
	case ModeSlideBatch:
		if spec.Direct {
			spec.Format = FormatJPEG
		}
	default:
		return nil, InvalidJobError(fmt.Sprintf("unsupported mode %q", spec.Mode))
	}
	if strings.TrimSpace(spec.OutputDir) == "" {
		return nil, InvalidJobError("output directory cannot be empty")
	}

	src, err := filepath.Abs(spec.SourcePath)
	if err != nil {
		return nil, NewError(KindInvalidJob, "resolve source path", err)
	}
	out, err := filepath.Abs(spec.OutputDir)
	if err != nil {
		return nil, NewError(KindInvalidJob, "resolve output directory", err)
	}
	spec.SourcePath = src
	spec.OutputDir = out

	return &Job{id: uuid.NewString(), spec: spec}, nil
}

func (j *Job) ID() string         { return j.id }
func (j *Job) SourcePath() string { return j.spec.SourcePath }
func (j *Job) OutputDir() string  { return j.spec.OutputDir }
func (j *Job) OutputName() string { return j.spec.OutputName }
func (j *Job) DPI() int           { return j.spec.DPI }
func (j *Job) Format() Format     { return j.spec.Format }
func (j *Job) Mode() Mode         { return j.spec.Mode }
func (j *Job) Direct() bool       { return j.spec.Direct }

// Spec returns a copy of the job's parameters.
func (j *Job) Spec() JobSpec { return j.spec }

// Extension is the extension of the final artifacts. Direct JPEG exports keep
// the "jpg" extension the editor writes.
func (j *Job) Extension() string {
	if j.spec.Direct {
		return "jpg"
	}
	return j.spec.Format.Extension()
}

// SourceStem is the source file name without its extension.
func (j *Job) SourceStem() string {
	return SourceStem(j.spec.SourcePath)
}

// SourceStem returns the base name of path without its extension.
func SourceStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// State is a pipeline state.
type State string

const (
	StateIdle        State = "Idle"
	StateOpening     State = "Opening"
	StateExporting   State = "Exporting"
	StateLocating    State = "Locating"
	StateConverting  State = "Converting"
	StateNormalizing State = "Normalizing"
	StateCleaningUp  State = "CleaningUp"
	StateSucceeded   State = "Succeeded"
	StateFailed      State = "Failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Warning is a non-fatal problem attached to an outcome.
type Warning struct {
	Stage   State     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s (%s): %s", w.Kind, w.Stage, w.Message)
}

// Outcome is the terminal result of a job.
type Outcome struct {
	JobID     string        `json:"job_id"`
	State     State         `json:"state"`
	Artifacts []string      `json:"artifacts,omitempty"`
	Failure   *Error        `json:"-"`
	Warnings  []Warning     `json:"warnings,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Succeeded reports whether the job produced its final artifacts.
func (o *Outcome) Succeeded() bool {
	return o.State == StateSucceeded
}

// Err returns the failure as an error, or nil on success.
func (o *Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

// EventType represents the type of stream event
type EventType string

const (
	EventStateChanged   EventType = "state_changed"
	EventFrameConverted EventType = "frame_converted"
	EventFrameSkipped   EventType = "frame_skipped"
	EventWarning        EventType = "warning"
	EventComplete       EventType = "complete"
)

// StreamEvent represents an event emitted while a job runs
type StreamEvent struct {
	Type        EventType   `json:"type"`
	State       State       `json:"state,omitempty"`
	Frame       int         `json:"frame,omitempty"`
	TotalFrames int         `json:"total_frames,omitempty"`
	Payload     interface{} `json:"payload,omitempty"` // status message, Warning or *Outcome
	Timestamp   time.Time   `json:"timestamp"`
}
