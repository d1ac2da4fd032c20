// Package dentalvision turns regions of dental images into labelled
// training data.
//
// A region of an uploaded image is saved either as a cropped image alone or as
// a cropped image plus a one-line label file holding the class name and the
// region's normalized center and size:
//
//	cavity 0.250000 0.500000 0.250000 0.500000
//
// Basic usage:
//
//	package main
//
//	import (
//		"log"
//
//		dentalvision "github.com/menta2k/dental-vision"
//		"github.com/menta2k/dental-vision/pkg/annotation"
//	)
//
//	func main() {
//		a := dentalvision.New("annotations")
//
//		img, err := a.LoadImage("patient_12.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		region := annotation.CropRegion{Left: 100, Top: 150, Right: 300, Bottom: 450}
//		labelPath, imagePath, err := a.ExportAnnotation(img, region, "cavity")
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Println(labelPath, imagePath)
//	}
//
// The package consists of these components:
//
// 1. Analyzer (pkg/analyzer): decodes and validates uploads
// 2. Annotation (pkg/annotation): region math, label records and the exporter
// 3. Detection (pkg/detection): delegates detection and segmentation to a vision model
// 4. Processing (pkg/processing): image codecs, cropping and result rendering
package dentalvision

import (
	"fmt"
	"image"

	"github.com/menta2k/dental-vision/pkg/analyzer"
	"github.com/menta2k/dental-vision/pkg/annotation"
)

// Version of the dental vision library
const Version = "1.0.0"

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

// Image is a decoded source image together with the base name its
// exports are written under.
type Image struct {
	Upload   *analyzer.Upload
	BaseName string
}

// Width of the source image in pixels
func (img *Image) Width() int { return img.Upload.Info.Width }

// Height of the source image in pixels
func (img *Image) Height() int { return img.Upload.Info.Height }

// Annotator provides a high-level interface for exporting annotations
type Annotator struct {
	analyzer *analyzer.ImageAnalyzer
	exporter *annotation.Exporter
}

// New creates an Annotator writing to outputDir with default settings
func New(outputDir string) *Annotator {
	config := annotation.DefaultConfig()
	config.OutputDir = outputDir
	return NewWithConfig(analyzer.DefaultConfig(), config)
}

// NewWithConfig creates an Annotator with custom configuration
func NewWithConfig(analyzerConfig analyzer.Config, exportConfig annotation.Config) *Annotator {
	return &Annotator{
		analyzer: analyzer.NewWithConfig(analyzerConfig),
		exporter: annotation.NewWithConfig(exportConfig),
	}
}

// Exporter returns the underlying exporter
func (a *Annotator) Exporter() *annotation.Exporter {
	return a.exporter
}

// LoadImage decodes an image file; exports are named after its file name
func (a *Annotator) LoadImage(path string) (*Image, error) {
	baseName, err := annotation.BaseFilename(path)
	if err != nil {
		return nil, err
	}
	upload, err := a.analyzer.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	return &Image{Upload: upload, BaseName: baseName}, nil
}

// ExportCrop saves only the cropped region
func (a *Annotator) ExportCrop(img *Image, region annotation.CropRegion) (string, error) {
	cropped, err := annotation.CropImage(img.Upload.Image, region)
	if err != nil {
		return "", err
	}
	return a.exporter.ExportCroppedImage(cropped, img.BaseName)
}

// ExportAnnotation saves the label file and the cropped region
func (a *Annotator) ExportAnnotation(img *Image, region annotation.CropRegion, label string) (labelPath, imagePath string, err error) {
	if _, err := annotation.ValidateLabel(label); err != nil {
		return "", "", err
	}
	cropped, err := annotation.CropImage(img.Upload.Image, region)
	if err != nil {
		return "", "", err
	}
	return a.exporter.ExportLabelAndImage(img.BaseName, img.Width(), img.Height(), region, label, cropped)
}
