package analyzer

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/menta2k/dental-vision/pkg/processing"
)

// ErrUnsupportedFormat is returned for uploads in a format outside Config.SupportedFormats
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ErrImageTooSmall is returned when either side is below Config.MinImageSize
var ErrImageTooSmall = errors.New("image too small")

// ImageAnalyzer decodes and validates uploaded images
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
}

// DefaultConfig accepts the formats the upload form offers
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpg", "jpeg", "png", "bmp", "webp"},
		MinImageSize:     32,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
	Format      string  `json:"format"`
}

// Upload is a decoded source image, read-only for the rest of its session
type Upload struct {
	Image image.Image
	Info  ImageInfo
}

// LoadImage loads an image from file
func (a *ImageAnalyzer) LoadImage(filepath string) (*Upload, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	return a.Decode(data)
}

// LoadImageFromReader loads an image from an io.Reader
func (a *ImageAnalyzer) LoadImageFromReader(reader io.Reader) (*Upload, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return a.Decode(data)
}

// Decode decodes raw bytes, checks the format and validates the dimensions
func (a *ImageAnalyzer) Decode(data []byte) (*Upload, error) {
	img, format, err := processing.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if !a.isFormatSupported(format) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if err := a.ValidateImage(img); err != nil {
		return nil, err
	}

	info := a.GetImageInfo(img)
	info.Format = format
	return &Upload{Image: img, Info: info}, nil
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
		// image.Decode names JPEG files "jpeg"
		if strings.EqualFold(supported, "jpg") && strings.EqualFold(format, "jpeg") {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("%w: %dx%d (minimum: %d)",
			ErrImageTooSmall, bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}
