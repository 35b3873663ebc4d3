package detection

import (
	"encoding/json"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrontalFaceQualifier(t *testing.T) {
	tests := []struct {
		eyes int
		want Qualifier
	}{
		{0, QualifierMedium},
		{1, QualifierMedium},
		{2, QualifierHigh},
		{3, QualifierHigh},
	}

	for _, tt := range tests {
		d := NewFrontalFace(BBox{X: 1, Y: 2, Width: 30, Height: 30}, tt.eyes)
		require.NotNil(t, d.Face)
		assert.Equal(t, tt.want, d.Face.Confidence, "eyes=%d", tt.eyes)
		assert.Equal(t, tt.eyes, *d.Face.EyesDetected)
		assert.NoError(t, d.Validate())
	}
}

func TestClamp(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 80)

	tests := []struct {
		name string
		in   BBox
		want BBox
	}{
		{"inside", BBox{10, 10, 20, 20}, BBox{10, 10, 20, 20}},
		{"overflow right", BBox{90, 10, 30, 20}, BBox{90, 10, 10, 20}},
		{"negative origin", BBox{-5, -5, 20, 20}, BBox{0, 0, 15, 15}},
		{"fully outside", BBox{200, 200, 10, 10}, BBox{100, 80, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Clamp(bounds)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Within(bounds))
		})
	}
}

func TestValidateRejectsMissingPayload(t *testing.T) {
	d := Detection{Kind: KindMovingObject, BBox: BBox{Width: 1, Height: 1}}
	assert.Error(t, d.Validate())

	d = Detection{Kind: "bogus"}
	assert.Error(t, d.Validate())

	d = NewColorObject(BBox{Width: -1}, "red", 10)
	assert.Error(t, d.Validate())
}

func TestJSONCarriesOnlyKindPayload(t *testing.T) {
	d := NewColorObject(BBox{X: 1, Y: 2, Width: 3, Height: 4}, "blue", 1500)
	data, err := json.Marshal(d)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "color_object", raw["kind"])
	assert.Contains(t, raw, "color")
	assert.NotContains(t, raw, "face")
	assert.NotContains(t, raw, "motion")
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Unknown", NewRecognizedFace(BBox{}, "Unknown", 0, 0.9, false).Label())
	assert.Equal(t, "alice (0.70)", NewRecognizedFace(BBox{}, "alice", 0.7, 0.3, true).Label())
	assert.Equal(t, "Red Object", NewColorObject(BBox{}, "red", 1200).Label())
	assert.Equal(t, "Person-like Movement (900)", NewMovingObject(BBox{}, MotionAttributes{Area: 900, Class: MotionPersonLike}).Label())
}
