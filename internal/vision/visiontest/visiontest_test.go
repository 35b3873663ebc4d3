package visiontest

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fusioncam/internal/vision"
)

func fillGray(m *image.Gray, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.SetGray(x, y, color.Gray{Y: 255})
		}
	}
}

func countOn(m *image.Gray) int {
	n := 0
	for _, p := range m.Pix {
		if p > 0 {
			n++
		}
	}
	return n
}

func TestToHSVPrimaries(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    vision.HSV
	}{
		{"red", 255, 0, 0, vision.HSV{H: 0, S: 255, V: 255}},
		{"green", 0, 255, 0, vision.HSV{H: 60, S: 255, V: 255}},
		{"blue", 0, 0, 255, vision.HSV{H: 120, S: 255, V: 255}},
		{"yellow", 255, 255, 0, vision.HSV{H: 30, S: 255, V: 255}},
		{"black", 0, 0, 0, vision.HSV{}},
		{"grey", 128, 128, 128, vision.HSV{V: 128}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToHSV(tt.r, tt.g, tt.b))
		})
	}
}

func TestColorMaskKeepsOnlyMatchingPixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 5; x++ {
			img.SetRGBA(x, y, color.RGBA{0, 0, 255, 255})
		}
	}

	blue := vision.HSVRange{Lower: vision.HSV{H: 100, S: 50, V: 50}, Upper: vision.HSV{H: 130, S: 255, V: 255}}
	mask, err := Ops{}.ColorMask(img, blue, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, countOn(mask))
	assert.Equal(t, uint8(255), mask.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), mask.GrayAt(9, 9).Y)
}

func TestDilateGrowsByKernel(t *testing.T) {
	m := image.NewGray(image.Rect(0, 0, 11, 11))
	m.SetGray(5, 5, color.Gray{Y: 255})

	assert.Equal(t, 9, countOn(Dilate(m, 1)))
	assert.Equal(t, 25, countOn(Dilate(m, 2)))
	assert.Equal(t, 1, countOn(Dilate(m, 0)))
}

func TestOpenRemovesSpecks(t *testing.T) {
	m := image.NewGray(image.Rect(0, 0, 30, 30))
	m.SetGray(2, 2, color.Gray{Y: 255})
	fillGray(m, image.Rect(10, 10, 20, 20))

	out := Open(m, 5)
	assert.Equal(t, uint8(0), out.GrayAt(2, 2).Y)
	assert.Equal(t, 100, countOn(out))
}

func TestBackgroundThresholdIsStrict(t *testing.T) {
	bg := NewBackground()
	require.NoError(t, bg.Seed(image.NewGray(image.Rect(0, 0, 2, 1))))

	// alpha 0 keeps the seeded estimate of 0
	frame := image.NewGray(image.Rect(0, 0, 2, 1))
	frame.Pix = []uint8{25, 26}
	mask, err := bg.Foreground(frame, 0, 25, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 255}, mask.Pix)
}

func TestBackgroundBlendsExponentially(t *testing.T) {
	bg := NewBackground()
	require.NoError(t, bg.Seed(image.NewGray(image.Rect(0, 0, 1, 1))))

	frame := image.NewGray(image.Rect(0, 0, 1, 1))
	frame.Pix[0] = 100
	// estimate 50 after blending, difference 50
	mask, err := bg.Foreground(frame, 0.5, 49, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), mask.Pix[0])

	// estimate 75, difference 25
	mask, err = bg.Foreground(frame, 0.5, 25, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), mask.Pix[0])

	require.NoError(t, bg.Close())
	assert.True(t, bg.Closed())
}

func TestRegionFinderSeparatesBlobs(t *testing.T) {
	m := image.NewGray(image.Rect(0, 0, 20, 20))
	fillGray(m, image.Rect(1, 1, 4, 4))
	fillGray(m, image.Rect(10, 10, 12, 14))
	// diagonal neighbour joins the first blob
	m.SetGray(4, 4, color.Gray{Y: 255})

	got, err := RegionFinder{}.FindContours(m)
	require.NoError(t, err)

	want := []vision.Contour{
		{Bounds: image.Rect(1, 1, 5, 5), Area: 10},
		{Bounds: image.Rect(10, 10, 12, 14), Area: 8},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("contours mismatch (-want +got):\n%s", diff)
	}
}

func TestRegionFinderEmptyMask(t *testing.T) {
	got, err := RegionFinder{}.FindContours(image.NewGray(image.Rect(0, 0, 5, 5)))
	require.NoError(t, err)
	assert.Empty(t, got)
}
