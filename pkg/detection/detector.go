package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/menta2k/dental-vision/pkg/client"
	"github.com/menta2k/dental-vision/pkg/processing"
	"github.com/menta2k/dental-vision/pkg/types"
)

// Confidence bounds accepted from the user
const (
	MinConfidence     = 0.25
	MaxConfidence     = 1.0
	DefaultConfidence = 0.40
)

// ErrInvalidConfidence is returned for thresholds outside [MinConfidence, MaxConfidence]
var ErrInvalidConfidence = errors.New("confidence threshold out of range")

// DefaultClasses are the finding labels the prompts ask for
var DefaultClasses = []string{
	"caries",
	"deep caries",
	"periapical lesion",
	"impacted tooth",
	"crown",
	"filling",
	"implant",
	"root canal treatment",
	"missing tooth",
	"bone loss",
}

const detectionPrompt = `You are a dental radiograph object detector.

Return JSON only:
{
  "findings": [
    {"label": "string", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence"
}

RULES
- Coordinates are normalized to [0,1]; x,y is the top-left corner of the box.
- label must be one of: %s.
- Only report findings with confidence >= %.2f.
- If nothing is found return {"findings": [], "description": "no findings"}.
- JSON only. No markdown, no code fences, no comments.`

const segmentationPrompt = `You are a dental radiograph instance segmenter.

Return JSON only:
{
  "findings": [
    {"label": "string", "confidence": 0.0,
     "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
     "polygon": [{"x": 0.0, "y": 0.0}]}
  ],
  "description": "short neutral sentence"
}

RULES
- Coordinates are normalized to [0,1]; x,y is the top-left corner of the box.
- polygon outlines the finding with at least 3 points, clockwise.
- label must be one of: %s.
- Only report findings with confidence >= %.2f.
- If nothing is found return {"findings": [], "description": "no findings"}.
- JSON only. No markdown, no code fences, no comments.`

// Config holds the model names and how images are sent to them
type Config struct {
	DetectionModel    string
	SegmentationModel string
	// SendFormat, SendSize and SendQuality control the image payload
	SendFormat  string
	SendSize    int
	SendQuality int
	Classes     []string
}

// DefaultConfig returns the detector defaults
func DefaultConfig() Config {
	return Config{
		DetectionModel:    "dental-detect",
		SegmentationModel: "dental-segment",
		SendFormat:        "jpg",
		SendSize:          1536,
		SendQuality:       85,
		Classes:           DefaultClasses,
	}
}

// Options are the per-request choices of the user
type Options struct {
	Task       types.Task
	Confidence float64
}

// Detector delegates detection and segmentation to a pretrained vision model
type Detector struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
	logger    *zap.Logger
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient, config Config) *Detector {
	if len(config.Classes) == 0 {
		config.Classes = DefaultClasses
	}
	return &Detector{
		client:    client,
		processor: processing.NewProcessor(),
		config:    config,
		logger:    zap.NewNop(),
	}
}

// SetLogger replaces the detector's logger
func (d *Detector) SetLogger(logger *zap.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// ModelFor returns the configured model name for a task
func (d *Detector) ModelFor(task types.Task) (string, error) {
	switch task {
	case types.TaskDetection, "":
		return d.config.DetectionModel, nil
	case types.TaskSegmentation:
		return d.config.SegmentationModel, nil
	default:
		return "", fmt.Errorf("unknown task %q", task)
	}
}

// ValidateConfidence checks a user supplied threshold; zero selects the default
func ValidateConfidence(confidence float64) (float64, error) {
	if confidence == 0 {
		return DefaultConfidence, nil
	}
	if confidence < MinConfidence || confidence > MaxConfidence {
		return 0, fmt.Errorf("%w: %.2f not in [%.2f, %.2f]", ErrInvalidConfidence, confidence, MinConfidence, MaxConfidence)
	}
	return confidence, nil
}

// Detect runs the model for opts.Task over img and keeps findings at or above
// the confidence threshold, ordered by descending confidence.
func (d *Detector) Detect(ctx context.Context, img image.Image, opts Options) (*types.DetectionResult, error) {
	if d.client == nil {
		return nil, errors.New("vision client is not configured")
	}
	if opts.Task == "" {
		opts.Task = types.TaskDetection
	}
	confidence, err := ValidateConfidence(opts.Confidence)
	if err != nil {
		return nil, err
	}
	model, err := d.ModelFor(opts.Task)
	if err != nil {
		return nil, err
	}

	imgB64, err := d.processor.PrepareImageForModel(img, d.config.SendFormat, d.config.SendSize, d.config.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	prompt := d.prompt(opts.Task, confidence)
	result, err := d.client.Detect(ctx, model, prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("%s model %s failed: %w", opts.Task, model, err)
	}

	result.Task = opts.Task
	result.Model = model
	raw := len(result.Findings)
	result.Findings = filterFindings(result.Findings, confidence)

	d.logger.Debug("model answered",
		zap.String("task", string(opts.Task)),
		zap.String("model", model),
		zap.Int("raw_findings", raw),
		zap.Int("kept_findings", len(result.Findings)),
		zap.Float64("confidence", confidence),
	)
	return result, nil
}

func (d *Detector) prompt(task types.Task, confidence float64) string {
	classes := strings.Join(d.config.Classes, ", ")
	if task == types.TaskSegmentation {
		return fmt.Sprintf(segmentationPrompt, classes, confidence)
	}
	return fmt.Sprintf(detectionPrompt, classes, confidence)
}

// filterFindings normalizes every finding and drops empty, degenerate or
// low-confidence ones
func filterFindings(findings []types.Finding, threshold float64) []types.Finding {
	out := make([]types.Finding, 0, len(findings))
	for _, f := range findings {
		f.Label = normalizeLabel(f.Label)
		f.Confidence = clamp(f.Confidence, 0, 1)
		f.Box = normalizeBox(f.Box)
		for i := range f.Polygon {
			f.Polygon[i] = types.Point{X: clamp(f.Polygon[i].X, 0, 1), Y: clamp(f.Polygon[i].Y, 0, 1)}
		}

		if f.Label == "" || f.Box.W == 0 || f.Box.H == 0 || f.Confidence < threshold {
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox keeps the box inside the unit square
func normalizeBox(b types.Box) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}

// normalizeLabel lowercases and collapses whitespace
func normalizeLabel(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}
