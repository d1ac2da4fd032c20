package detection

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/menta2k/dental-vision/pkg/types"
)

type fakeClient struct {
	result *types.DetectionResult
	err    error

	model  string
	prompt string
	imgB64 string
}

func (f *fakeClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeClient) Detect(ctx context.Context, model, prompt, imgB64 string) (*types.DetectionResult, error) {
	f.model, f.prompt, f.imgB64 = model, prompt, imgB64
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testImage() image.Image {
	return image.NewGray(image.Rect(0, 0, 64, 48))
}

func TestDetectFiltersAndOrders(t *testing.T) {
	fc := &fakeClient{result: &types.DetectionResult{
		Findings: []types.Finding{
			{Label: "Crown", Confidence: 0.55, Box: types.Box{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}},
			{Label: "  Deep   Caries ", Confidence: 0.93, Box: types.Box{X: 0.8, Y: 0.8, W: 0.5, H: 0.5}},
			{Label: "filling", Confidence: 0.20, Box: types.Box{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}},
			{Label: "", Confidence: 0.99, Box: types.Box{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}},
			{Label: "implant", Confidence: 0.99, Box: types.Box{X: 0.1, Y: 0.1, W: 0, H: 0.2}},
		},
	}}
	d := NewDetector(fc, DefaultConfig())

	result, err := d.Detect(context.Background(), testImage(), Options{Task: types.TaskDetection, Confidence: 0.5})
	require.NoError(t, err)
	require.Equal(t, types.TaskDetection, result.Task)
	require.Equal(t, "dental-detect", result.Model)
	require.Len(t, result.Findings, 2)

	require.Equal(t, "deep caries", result.Findings[0].Label)
	require.InDelta(t, 0.2, result.Findings[0].Box.W, 1e-9, "box is clipped to the image")
	require.Equal(t, "crown", result.Findings[1].Label)

	require.Equal(t, "dental-detect", fc.model)
	require.Contains(t, fc.prompt, "periapical lesion")
	require.Contains(t, fc.prompt, "0.50")
	require.NotEmpty(t, fc.imgB64)
}

func TestDetectSegmentationUsesSegmentationModel(t *testing.T) {
	fc := &fakeClient{result: &types.DetectionResult{
		Findings: []types.Finding{{
			Label:      "implant",
			Confidence: 0.9,
			Box:        types.Box{X: 0.1, Y: 0.1, W: 0.2, H: 0.2},
			Polygon:    []types.Point{{X: -0.1, Y: 0.1}, {X: 0.3, Y: 1.4}, {X: 0.2, Y: 0.2}},
		}},
	}}
	d := NewDetector(fc, DefaultConfig())

	result, err := d.Detect(context.Background(), testImage(), Options{Task: types.TaskSegmentation})
	require.NoError(t, err)
	require.Equal(t, "dental-segment", fc.model)
	require.True(t, strings.Contains(fc.prompt, "polygon"))
	require.Equal(t, types.Point{X: 0, Y: 0.1}, result.Findings[0].Polygon[0])
	require.Equal(t, types.Point{X: 0.3, Y: 1}, result.Findings[0].Polygon[1])
}

func TestDetectErrors(t *testing.T) {
	d := NewDetector(&fakeClient{err: errors.New("connection refused")}, DefaultConfig())

	_, err := d.Detect(context.Background(), testImage(), Options{Confidence: 0.1})
	require.ErrorIs(t, err, ErrInvalidConfidence)

	_, err = d.Detect(context.Background(), testImage(), Options{Task: "classification"})
	require.ErrorContains(t, err, "unknown task")

	_, err = d.Detect(context.Background(), testImage(), Options{})
	require.ErrorContains(t, err, "connection refused")

	_, err = NewDetector(nil, DefaultConfig()).Detect(context.Background(), testImage(), Options{})
	require.Error(t, err)
}

func TestValidateConfidence(t *testing.T) {
	c, err := ValidateConfidence(0)
	require.NoError(t, err)
	require.Equal(t, DefaultConfidence, c)

	for _, ok := range []float64{0.25, 0.5, 1} {
		c, err := ValidateConfidence(ok)
		require.NoError(t, err)
		require.Equal(t, ok, c)
	}
	for _, bad := range []float64{0.24, 1.01, -1} {
		_, err := ValidateConfidence(bad)
		require.ErrorIs(t, err, ErrInvalidConfidence)
	}
}
