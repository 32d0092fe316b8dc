package dispatch

import (
	"errors"
	"time"

	"voxelbuild.ai/internal/command"
	"voxelbuild.ai/internal/geometry"
)

type Kind string

const (
	KindIgnored     Kind = "ignored"
	KindMoved       Kind = "moved"
	KindSkipped     Kind = "skipped"
	KindPassThrough Kind = "pass_through"
	KindNoCommand   Kind = "no_command"
	KindBuilt       Kind = "built"
)

type BuildStatus string

const (
	BuildBuilt   BuildStatus = "built"
	BuildSkipped BuildStatus = "skipped"
	// BuildFailed means some fills were sent before the world rejected one.
	BuildFailed BuildStatus = "failed"
)

// BuildResult reports one instruction of a request.
type BuildResult struct {
	Instruction command.BuildInstruction `json:"instruction"`
	Material    string                   `json:"material"`
	GroundY     int                      `json:"ground_y"`
	SafePoint   geometry.Point           `json:"safe_point"`
	Status      BuildStatus              `json:"status"`
	Fills       int                      `json:"fills"`
	Err         string                   `json:"error,omitempty"`
}

// Outcome is the record of one handled request.
type Outcome struct {
	Request    Request       `json:"request"`
	Kind       Kind          `json:"kind"`
	Translated string        `json:"translated,omitempty"`
	Commands   []string      `json:"commands,omitempty"`
	Builds     []BuildResult `json:"builds,omitempty"`
	Err        string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

func (o Outcome) Duration() time.Duration { return o.FinishedAt.Sub(o.StartedAt) }

// Recorder receives every outcome after it is handled.
type Recorder interface {
	Record(Outcome) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Outcome) error

func (f RecorderFunc) Record(o Outcome) error { return f(o) }

// MultiRecorder fans an outcome out to every recorder and joins their errors.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(o Outcome) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
