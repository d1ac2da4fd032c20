package annotation

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeNormalizedBox(t *testing.T) {
	tests := []struct {
		name          string
		region        CropRegion
		width, height int
		want          NormalizedBox
	}{
		{
			name:   "centered portrait region",
			region: CropRegion{Left: 100, Top: 150, Right: 300, Bottom: 450},
			width:  800,
			height: 600,
			want:   NormalizedBox{XCenter: 0.25, YCenter: 0.5, Width: 0.25, Height: 0.5},
		},
		{
			name:   "full image",
			region: CropRegion{Left: 0, Top: 0, Right: 1000, Bottom: 1000},
			width:  1000,
			height: 1000,
			want:   NormalizedBox{XCenter: 0.5, YCenter: 0.5, Width: 1, Height: 1},
		},
		{
			name:   "single pixel in the corner",
			region: CropRegion{Left: 9, Top: 9, Right: 10, Bottom: 10},
			width:  10,
			height: 10,
			want:   NormalizedBox{XCenter: 0.95, YCenter: 0.95, Width: 0.1, Height: 0.1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeNormalizedBox(tt.region, tt.width, tt.height)
			require.NoError(t, err)
			require.InDelta(t, tt.want.XCenter, got.XCenter, 1e-12)
			require.InDelta(t, tt.want.YCenter, got.YCenter, 1e-12)
			require.InDelta(t, tt.want.Width, got.Width, 1e-12)
			require.InDelta(t, tt.want.Height, got.Height, 1e-12)
		})
	}
}

func TestComputeNormalizedBoxDegenerate(t *testing.T) {
	tests := []struct {
		name          string
		region        CropRegion
		width, height int
	}{
		{"zero width", CropRegion{50, 50, 50, 200}, 800, 600},
		{"zero height", CropRegion{10, 80, 60, 80}, 800, 600},
		{"inverted", CropRegion{300, 450, 100, 150}, 800, 600},
		{"negative left", CropRegion{-1, 0, 10, 10}, 800, 600},
		{"negative top", CropRegion{0, -5, 10, 10}, 800, 600},
		{"right beyond width", CropRegion{0, 0, 801, 10}, 800, 600},
		{"bottom beyond height", CropRegion{0, 0, 10, 601}, 800, 600},
		{"zero image width", CropRegion{0, 0, 1, 1}, 0, 600},
		{"negative image height", CropRegion{0, 0, 1, 1}, 800, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeNormalizedBox(tt.region, tt.width, tt.height)
			require.ErrorIs(t, err, ErrDegenerateRegion)
		})
	}
}

func TestComputeNormalizedBoxRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		width := 1 + rng.Intn(4000)
		height := 1 + rng.Intn(4000)
		left := rng.Intn(width)
		right := left + 1 + rng.Intn(width-left)
		top := rng.Intn(height)
		bottom := top + 1 + rng.Intn(height-top)
		region := CropRegion{Left: left, Top: top, Right: right, Bottom: bottom}

		box, err := ComputeNormalizedBox(region, width, height)
		require.NoError(t, err)
		for _, v := range []float64{box.XCenter, box.YCenter, box.Width, box.Height} {
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0)
		}

		// Recover the region from the six-decimal text form
		var label string
		var parsed NormalizedBox
		line := LabelRecord{Label: "x", Box: box}.Line()
		_, err = fmt.Sscanf(line, "%s %f %f %f %f", &label, &parsed.XCenter, &parsed.YCenter, &parsed.Width, &parsed.Height)
		require.NoError(t, err)

		require.Equal(t, region, Denormalize(parsed, width, height), "image %dx%d line %q", width, height, line)
	}
}

func TestCropRegionSize(t *testing.T) {
	r := CropRegion{Left: 10, Top: 20, Right: 110, Bottom: 70}

	require.Equal(t, 100, r.Width())
	require.Equal(t, 50, r.Height())
	require.Equal(t, 100, r.Rect().Dx())
	require.Equal(t, "(10,20)-(110,70)", r.String())
}
