// Package annotation turns a user-drawn crop of an image plus a label into a
// normalized bounding-box label file and a cropped image file.
//
// For an upload named "tooth_12.png" the exporter writes
//
//	<OutputDir>/tooth_12.txt   "cavity 0.250000 0.500000 0.250000 0.500000\n"
//	<OutputDir>/tooth_12.jpg   the cropped pixels
//
// Exporting the same base name again overwrites both files without warning;
// downstream tooling relies on these fixed names. Writes go through a
// temporary file and a rename, and concurrent exports of the same base name
// are serialized, so the last export wins and no file is ever left half written.
// The label and image files are written independently: if the image write
// fails after the label was written, the label file stays on disk and the
// returned *ExportError names the image artifact.
package annotation

import (
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/dental-vision/internal/utils"
	"github.com/menta2k/dental-vision/pkg/processing"
)

// Config holds configuration for the exporter
type Config struct {
	// OutputDir receives every exported artifact. It is created on demand.
	OutputDir string
	// ImageFormat is the encoding and extension of cropped images: jpg, png or webp.
	ImageFormat string
	// Quality is used for jpg and webp output (1-100).
	Quality int
}

// DefaultConfig returns the exporter defaults
func DefaultConfig() Config {
	return Config{
		OutputDir:   "annotations",
		ImageFormat: "jpg",
		Quality:     95,
	}
}

// Exporter writes label and crop artifacts into a single flat directory.
// It holds no per-session state and is safe for concurrent use.
type Exporter struct {
	config Config
	logger *zap.Logger
	locks  pathLocks
}

// New creates an Exporter with default configuration
func New() *Exporter {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an Exporter with custom configuration.
// Zero fields fall back to the defaults.
func NewWithConfig(config Config) *Exporter {
	def := DefaultConfig()
	if config.OutputDir == "" {
		config.OutputDir = def.OutputDir
	}
	if config.ImageFormat == "" {
		config.ImageFormat = def.ImageFormat
	}
	config.ImageFormat = strings.ToLower(strings.TrimPrefix(config.ImageFormat, "."))
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = def.Quality
	}
	return &Exporter{
		config: config,
		logger: zap.NewNop(),
	}
}

// SetLogger replaces the exporter's logger
func (e *Exporter) SetLogger(logger *zap.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// OutputDir returns the directory artifacts are written to
func (e *Exporter) OutputDir() string {
	return e.config.OutputDir
}

// LabelPath returns the label file path for a base filename
func (e *Exporter) LabelPath(baseFilename string) string {
	return filepath.Join(e.config.OutputDir, baseFilename+".txt")
}

// ImagePath returns the cropped image path for a base filename
func (e *Exporter) ImagePath(baseFilename string) string {
	return filepath.Join(e.config.OutputDir, baseFilename+"."+e.config.ImageFormat)
}

// CropImage validates region against src and returns the cropped pixels.
// Region coordinates are relative to the top-left corner of src.
func CropImage(src image.Image, region CropRegion) (image.Image, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source image", ErrDegenerateRegion)
	}
	b := src.Bounds()
	if err := CheckRegion(region, b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	return processing.NewProcessor().CropImageToRect(src, region.Rect().Add(b.Min))
}

// ExportCroppedImage writes image to OutputDir/<baseFilename>.<ext>,
// replacing any existing file, and returns the written path.
func (e *Exporter) ExportCroppedImage(img image.Image, baseFilename string) (string, error) {
	if err := checkBaseFilename(baseFilename); err != nil {
		return "", err
	}

	unlock := e.locks.lock(filepath.Join(e.config.OutputDir, baseFilename))
	defer unlock()

	if err := e.ensureOutputDir(); err != nil {
		return "", err
	}
	path, err := e.writeImage(img, baseFilename)
	if err != nil {
		return "", err
	}

	e.logger.Info("exported cropped image", zap.String("path", path))
	return path, nil
}

// ExportLabelAndImage writes the label line to OutputDir/<baseFilename>.txt
// (truncating any previous content) and then the cropped image.
//
// The label and region are checked before anything touches the disk, so an
// empty label or a degenerate region leaves the output directory untouched.
// When the image write fails, the already written label path is returned
// together with an *ExportError for the image.
func (e *Exporter) ExportLabelAndImage(baseFilename string, width, height int, region CropRegion, label string, cropped image.Image) (labelPath, imagePath string, err error) {
	record, err := NewLabelRecord(label, region, width, height)
	if err != nil {
		return "", "", err
	}
	if err := checkBaseFilename(baseFilename); err != nil {
		return "", "", err
	}

	unlock := e.locks.lock(filepath.Join(e.config.OutputDir, baseFilename))
	defer unlock()

	if err := e.ensureOutputDir(); err != nil {
		return "", "", err
	}

	labelPath = e.LabelPath(baseFilename)
	err = utils.WriteFileAtomic(labelPath, func(w io.Writer) error {
		_, err := io.WriteString(w, record.Line())
		return err
	})
	if err != nil {
		return "", "", &ExportError{Artifact: ArtifactLabel, Path: labelPath, Err: err}
	}

	imagePath, err = e.writeImage(cropped, baseFilename)
	if err != nil {
		e.logger.Warn("label written but image export failed",
			zap.String("label_path", labelPath),
			zap.Error(err),
		)
		return labelPath, "", err
	}

	e.logger.Info("exported annotation",
		zap.String("label", record.Label),
		zap.Stringer("region", region),
		zap.String("label_path", labelPath),
		zap.String("image_path", imagePath),
	)
	return labelPath, imagePath, nil
}

func (e *Exporter) ensureOutputDir() error {
	if err := utils.EnsureDir(e.config.OutputDir); err != nil {
		return &ExportError{Artifact: ArtifactDirectory, Path: e.config.OutputDir, Err: err}
	}
	return nil
}

func (e *Exporter) writeImage(img image.Image, baseFilename string) (string, error) {
	path := e.ImagePath(baseFilename)
	if img == nil || img.Bounds().Empty() {
		return "", &ExportError{Artifact: ArtifactImage, Path: path, Err: errInvalidRaster}
	}
	err := utils.WriteFileAtomic(path, func(w io.Writer) error {
		return processing.EncodeImage(w, img, e.config.ImageFormat, e.config.Quality, false)
	})
	if err != nil {
		return "", &ExportError{Artifact: ArtifactImage, Path: path, Err: err}
	}
	return path, nil
}

func checkBaseFilename(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidBaseName, name)
	}
	return nil
}

// pathLocks hands out one mutex per export target and forgets it once
// nobody holds or waits for it.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (p *pathLocks) lock(key string) (unlock func()) {
	p.mu.Lock()
	if p.locks == nil {
		p.locks = make(map[string]*refMutex)
	}
	m, ok := p.locks[key]
	if !ok {
		m = &refMutex{}
		p.locks[key] = m
	}
	m.refs++
	p.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		p.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}
