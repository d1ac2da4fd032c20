package annotation

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyLabel is returned when the label text is empty after trimming.
	ErrEmptyLabel = errors.New("annotation: label is empty")

	// ErrLabelLineBreak is returned when the label would split the one-line label record.
	ErrLabelLineBreak = errors.New("annotation: label contains a line break")

	// ErrDegenerateRegion is returned for zero-area, inverted or out-of-bounds crop regions.
	ErrDegenerateRegion = errors.New("annotation: degenerate crop region")

	// ErrIOFailure marks every failure to create the output directory or write an artifact.
	ErrIOFailure = errors.New("annotation: io failure")

	// ErrInvalidBaseName is returned when an upload name has no usable stem.
	ErrInvalidBaseName = errors.New("annotation: invalid base filename")

	errInvalidRaster = errors.New("image is empty")
)

// Artifact names the file an export failure belongs to.
type Artifact string

const (
	ArtifactDirectory Artifact = "directory"
	ArtifactLabel     Artifact = "label"
	ArtifactImage     Artifact = "image"
)

// ExportError reports which artifact failed to be written and why.
// errors.Is(err, ErrIOFailure) is true for every ExportError.
type ExportError struct {
	Artifact Artifact
	Path     string
	Err      error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("failed to write %s %s: %v", e.Artifact, e.Path, e.Err)
}

func (e *ExportError) Unwrap() []error {
	return []error{ErrIOFailure, e.Err}
}
