package faces

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fusioncam/internal/vision"
)

// colorEncoder treats the top-left pixel as the face: its red and green
// channels become a 2-d encoding, and a black pixel means no face.
type colorEncoder struct {
	calls int
}

func (e *colorEncoder) Encode(img image.Image) ([]vision.EncodedFace, error) {
	e.calls++
	b := img.Bounds()
	r, g, _, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	if r == 0 && g == 0 {
		return nil, nil
	}
	enc := []float64{float64(r>>8) / 255, float64(g>>8) / 255}
	return []vision.EncodedFace{
		{Box: b, Encoding: enc},
		{Box: b, Encoding: []float64{9, 9}},
	}, nil
}

func (e *colorEncoder) Close() error { return nil }

func writePNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestLoadCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "known_faces")

	g, err := Load(dir, &colorEncoder{})
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadSkipsBadFilesAndKeepsFirstFace(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "alice.PNG"), color.RGBA{255, 0, 0, 255})
	writePNG(t, filepath.Join(dir, "bob.png"), color.RGBA{0, 255, 0, 255})
	writePNG(t, filepath.Join(dir, "noface.png"), color.RGBA{0, 0, 0, 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not a jpeg"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	enc := &colorEncoder{}
	g, err := Load(dir, enc)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob"}, g.Names())
	assert.Equal(t, 3, enc.calls, "broken.jpg fails to decode before encoding")

	want := []Entry{
		{Name: "alice", Encoding: Encoding{1, 0}},
		{Name: "bob", Encoding: Encoding{0, 1}},
	}
	if diff := cmp.Diff(want, g.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadWithoutEncoder(t *testing.T) {
	g, err := Load(t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrNoEncoder)
	assert.Equal(t, 0, g.Len())
}

func TestRegisterAllowsDuplicates(t *testing.T) {
	g := NewGallery()
	g.Register("alice", Encoding{0, 0})
	g.Register("alice", Encoding{1, 1})
	assert.Equal(t, []string{"alice", "alice"}, g.Names())
}

func TestRegisterCopiesEncoding(t *testing.T) {
	g := NewGallery()
	enc := Encoding{0.5, 0.5}
	g.Register("alice", enc)
	enc[0] = 9
	assert.Equal(t, Encoding{0.5, 0.5}, g.Entries()[0].Encoding)
}

func TestEnrollSavesAndRegisters(t *testing.T) {
	dir := t.TempDir()
	g := NewGallery()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})

	require.NoError(t, g.Enroll(dir, "carol", img, &colorEncoder{}))
	assert.Equal(t, []string{"carol"}, g.Names())
	assert.FileExists(t, filepath.Join(dir, "carol.jpg"))

	assert.ErrorIs(t, g.Enroll(dir, "../evil", img, &colorEncoder{}), ErrInvalidName)
	assert.ErrorIs(t, g.Enroll(dir, "dave", image.NewRGBA(image.Rect(0, 0, 8, 8)), &colorEncoder{}), ErrNoFace)
	assert.ErrorIs(t, g.Enroll(dir, "erin", img, nil), ErrNoEncoder)
	assert.Equal(t, 1, g.Len())
}

func TestMatchEmptyGallery(t *testing.T) {
	m := NewMatcher(0)
	got := m.Match(Encoding{1, 2, 3}, NewGallery())
	assert.Equal(t, Match{Name: Unknown}, got)
}

func TestMatchSelfIsExact(t *testing.T) {
	g := NewGallery()
	g.Register("alice", Encoding{0.1, 0.2, 0.3})
	g.Register("bob", Encoding{0.9, 0.8, 0.7})

	m := NewMatcher(DefaultThreshold)
	for _, e := range g.Entries() {
		got := m.Match(e.Encoding, g)
		assert.Equal(t, Match{Name: e.Name, Confidence: 1, Known: true}, got)
	}
}

func TestMatchThreshold(t *testing.T) {
	g := NewGallery()
	g.Register("alice", Encoding{0, 0})
	m := NewMatcher(0.6)

	near := m.Match(Encoding{0.3, 0}, g)
	assert.Equal(t, "alice", near.Name)
	assert.True(t, near.Known)
	assert.InDelta(t, 0.7, near.Confidence, 1e-9)

	far := m.Match(Encoding{0.9, 0}, g)
	assert.Equal(t, Unknown, far.Name)
	assert.False(t, far.Known)
	assert.Zero(t, far.Confidence)
	assert.InDelta(t, 0.9, far.Distance, 1e-9)
}

func TestMatchThresholdIsInclusive(t *testing.T) {
	g := NewGallery()
	g.Register("alice", Encoding{0, 0})

	got := NewMatcher(0.5).Match(Encoding{0, 0.5}, g)
	assert.Equal(t, "alice", got.Name, "distance equal to the threshold still matches")
	assert.True(t, got.Known)
	assert.InDelta(t, 0.5, got.Distance, 1e-12)
	assert.InDelta(t, 0.5, got.Confidence, 1e-12)

	got = NewMatcher(0.5).Match(Encoding{0, 0.5000001}, g)
	assert.False(t, got.Known)
}

func TestMatchTieGoesToFirstEntry(t *testing.T) {
	g := NewGallery()
	g.Register("first", Encoding{1, 0})
	g.Register("second", Encoding{-1, 0})

	got := NewMatcher(2).Match(Encoding{0, 0}, g)
	assert.Equal(t, "first", got.Name)
}

func TestMatchConfidenceIsNotClamped(t *testing.T) {
	g := NewGallery()
	g.Register("far", Encoding{1.5, 0})

	got := NewMatcher(2).Match(Encoding{0, 0}, g)
	assert.Equal(t, "far", got.Name)
	assert.InDelta(t, -0.5, got.Confidence, 1e-9)
}

func TestMatchSkipsMismatchedLengths(t *testing.T) {
	g := NewGallery()
	g.Register("short", Encoding{0})
	g.Register("ok", Encoding{0.1, 0})

	got := NewMatcher(0.6).Match(Encoding{0, 0}, g)
	assert.Equal(t, "ok", got.Name)
}
