package motion

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fusioncam/internal/detection"
	"fusioncam/internal/vision"
	"fusioncam/internal/vision/visiontest"
)

func newModel() *Model {
	return NewModel(DefaultConfig(), visiontest.NewBackground(), visiontest.RegionFinder{})
}

func flat(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func withBlock(base *image.Gray, r image.Rectangle, v uint8) *image.Gray {
	g := image.NewGray(base.Bounds())
	copy(g.Pix, base.Pix)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			g.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return g
}

func TestFirstUpdateReturnsNoRegions(t *testing.T) {
	frames := []*image.Gray{
		flat(64, 48, 0),
		withBlock(flat(64, 48, 0), image.Rect(0, 0, 64, 48), 255),
		withBlock(flat(64, 48, 10), image.Rect(5, 5, 40, 40), 250),
	}

	for _, f := range frames {
		m := newModel()
		regions, err := m.Update(f)
		require.NoError(t, err)
		assert.Empty(t, regions)
		assert.True(t, m.Initialized())
	}
}

func TestUpdateFindsMovingBlock(t *testing.T) {
	m := newModel()
	bg := flat(120, 100, 20)

	_, err := m.Update(bg)
	require.NoError(t, err)

	regions, err := m.Update(withBlock(bg, image.Rect(30, 10, 50, 90), 220))
	require.NoError(t, err)
	require.Len(t, regions, 1)

	r := regions[0]
	// 20x80 block grown by two 3x3 dilations
	assert.Equal(t, detection.BBox{X: 28, Y: 8, Width: 24, Height: 84}, r.BBox)
	assert.Equal(t, float64(24*84), r.Area)
	assert.Equal(t, detection.MotionVertical, r.Class)
}

func TestStaticSceneProducesNothing(t *testing.T) {
	m := newModel()
	bg := flat(50, 50, 100)
	for i := 0; i < 3; i++ {
		regions, err := m.Update(bg)
		require.NoError(t, err)
		assert.Empty(t, regions)
	}
}

func TestResetReinitializes(t *testing.T) {
	m := newModel()
	bg := flat(80, 80, 0)
	moved := withBlock(bg, image.Rect(10, 10, 50, 50), 255)

	_, _ = m.Update(bg)
	m.Reset()
	assert.False(t, m.Initialized())

	regions, err := m.Update(moved)
	require.NoError(t, err)
	assert.Empty(t, regions, "update after reset only seeds the background")
}

func TestFrameSizeChangeReinitializes(t *testing.T) {
	m := newModel()
	_, _ = m.Update(flat(40, 40, 0))

	regions, err := m.Update(withBlock(flat(80, 80, 0), image.Rect(0, 0, 60, 60), 255))
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestFilterRegionsDropsSmallAreas(t *testing.T) {
	contours := []vision.Contour{
		{Bounds: image.Rect(0, 0, 10, 10), Area: 100},
		{Bounds: image.Rect(0, 0, 30, 30), Area: 600},
		{Bounds: image.Rect(0, 0, 100, 100), Area: 5000},
	}

	regions := FilterRegions(contours, 500)
	require.Len(t, regions, 2)
	assert.Equal(t, 600.0, regions[0].Area)
	assert.Equal(t, 5000.0, regions[1].Area)
}

func TestClassifyPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		aspect float64
		extent float64
		want   detection.MotionClass
	}{
		{"wide beats extent", 2.5, 0.8, detection.MotionHorizontal},
		{"tall beats extent", 0.4, 0.8, detection.MotionVertical},
		{"compact", 1.0, 0.8, detection.MotionPersonLike},
		{"extent lower bound exclusive", 1.0, 0.7, detection.MotionUnknown},
		{"extent upper bound exclusive", 1.0, 0.9, detection.MotionUnknown},
		{"aspect 2 is not horizontal", 2.0, 0.5, detection.MotionUnknown},
		{"aspect 0.5 is not vertical", 0.5, 0.5, detection.MotionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.aspect, tt.extent))
			assert.Equal(t, tt.want, Classify(tt.aspect, tt.extent), "deterministic")
		})
	}
}

func TestUpdateWithoutProvidersFails(t *testing.T) {
	_, err := NewModel(DefaultConfig(), nil, visiontest.RegionFinder{}).Update(flat(8, 8, 0))
	assert.ErrorIs(t, err, ErrNoBackend)

	_, err = NewModel(DefaultConfig(), visiontest.NewBackground(), nil).Update(flat(8, 8, 0))
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestCloseReleasesBackground(t *testing.T) {
	bg := visiontest.NewBackground()
	m := NewModel(DefaultConfig(), bg, visiontest.RegionFinder{})
	require.NoError(t, m.Close())
	assert.True(t, bg.Closed())
}
