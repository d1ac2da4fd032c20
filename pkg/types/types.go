package types

import (
	"fmt"
	"strings"
)

// Box represents a normalized bounding box with coordinates in [0,1] range.
// X and Y are the top-left corner.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Point is a normalized image coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Finding is a single object reported by the model
type Finding struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	// Polygon is only set for segmentation results
	Polygon []Point `json:"polygon,omitempty"`
}

// DetectionResult contains the complete result returned for one image
type DetectionResult struct {
	Task        Task      `json:"task"`
	Model       string    `json:"model"`
	Findings    []Finding `json:"findings"`
	Description string    `json:"description"`
}

// Task selects which pretrained model is asked
type Task string

const (
	TaskDetection    Task = "detection"
	TaskSegmentation Task = "segmentation"
)

// ParseTask accepts the task names case-insensitively; empty means detection.
func ParseTask(s string) (Task, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "detection", "detect":
		return TaskDetection, nil
	case "segmentation", "segment":
		return TaskSegmentation, nil
	default:
		return "", fmt.Errorf("unknown task %q (use detection or segmentation)", s)
	}
}
