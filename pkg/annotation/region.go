package annotation

import (
	"fmt"
	"image"
	"math"
)

// CropRegion is an axis-aligned rectangle in source-image pixel coordinates.
type CropRegion struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width returns the horizontal extent of the region
func (r CropRegion) Width() int { return r.Right - r.Left }

// Height returns the vertical extent of the region
func (r CropRegion) Height() int { return r.Bottom - r.Top }

// Rect converts the region to an image.Rectangle
func (r CropRegion) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom)
}

func (r CropRegion) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}

// NormalizedBox is a center/size box expressed as fractions of the image size.
type NormalizedBox struct {
	XCenter float64 `json:"x_center"`
	YCenter float64 `json:"y_center"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// CheckRegion reports ErrDegenerateRegion unless
// 0 <= left < right <= width and 0 <= top < bottom <= height.
func CheckRegion(region CropRegion, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrDegenerateRegion, width, height)
	}
	if region.Width() <= 0 || region.Height() <= 0 {
		return fmt.Errorf("%w: %s has no area", ErrDegenerateRegion, region)
	}
	if region.Left < 0 || region.Top < 0 || region.Right > width || region.Bottom > height {
		return fmt.Errorf("%w: %s outside %dx%d", ErrDegenerateRegion, region, width, height)
	}
	return nil
}

// ComputeNormalizedBox converts a pixel region to a normalized center/size box.
func ComputeNormalizedBox(region CropRegion, width, height int) (NormalizedBox, error) {
	if err := CheckRegion(region, width, height); err != nil {
		return NormalizedBox{}, err
	}

	w, h := float64(width), float64(height)
	left, top := float64(region.Left), float64(region.Top)
	right, bottom := float64(region.Right), float64(region.Bottom)

	return NormalizedBox{
		XCenter: clamp((left+right)/2/w, 0, 1),
		YCenter: clamp((top+bottom)/2/h, 0, 1),
		Width:   clamp((right-left)/w, 0, 1),
		Height:  clamp((bottom-top)/h, 0, 1),
	}, nil
}

// Denormalize maps a normalized box back to the nearest pixel region.
func Denormalize(box NormalizedBox, width, height int) CropRegion {
	w, h := float64(width), float64(height)
	return CropRegion{
		Left:   int(math.Round((box.XCenter - box.Width/2) * w)),
		Top:    int(math.Round((box.YCenter - box.Height/2) * h)),
		Right:  int(math.Round((box.XCenter + box.Width/2) * w)),
		Bottom: int(math.Round((box.YCenter + box.Height/2) * h)),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
