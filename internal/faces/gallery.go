// Package faces holds the named face encodings known to the session and the
// nearest-neighbour matcher over them
package faces

import (
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"fusioncam/internal/vision"
)

var (
	// ErrNoEncoder is returned when loading or enrolling without an encoder
	ErrNoEncoder = errors.New("no face encoder available")
	// ErrNoFace is returned when an enrolment image yields no encoding
	ErrNoFace = errors.New("no face found in image")
	// ErrInvalidName is returned for names that cannot be used as file names
	ErrInvalidName = errors.New("invalid face name")
)

// Encoding is a fixed-length face feature vector
type Encoding []float64

// Entry is one named encoding
type Entry struct {
	Name     string   `json:"name"`
	Encoding Encoding `json:"-"`
}

// Gallery is the in-memory set of known faces. Entries are kept in
// insertion order; duplicate names are allowed.
type Gallery struct {
	entries []Entry
	mu      sync.RWMutex
}

// NewGallery returns an empty gallery
func NewGallery() *Gallery {
	return &Gallery{}
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// IsImageFile reports whether name has a supported image extension
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// Load builds a gallery from the image files in dir, one entry per file named
// after the file without its extension. Only the first face of each image is
// kept. Unreadable files and images without a face are logged and skipped.
// A missing dir is created and yields an empty gallery.
func Load(dir string, enc vision.FaceEncoder) (*Gallery, error) {
	g := NewGallery()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return g, fmt.Errorf("create gallery dir %s: %w", dir, err)
	}
	if enc == nil {
		return g, ErrNoEncoder
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return g, fmt.Errorf("read gallery dir %s: %w", dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	for _, f := range files {
		if f.IsDir() || !IsImageFile(f.Name()) {
			continue
		}
		path := filepath.Join(dir, f.Name())
		name := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))

		img, err := vision.LoadRGBA(path)
		if err != nil {
			log.Printf("[Gallery] Warning: skipping %s: %v", path, err)
			continue
		}
		encoding, err := firstEncoding(img, enc)
		if err != nil {
			log.Printf("[Gallery] Warning: skipping %s: %v", path, err)
			continue
		}
		g.Register(name, encoding)
		log.Printf("[Gallery] Loaded face: %s", name)
	}

	log.Printf("[Gallery] %d known faces loaded from %s", g.Len(), dir)
	return g, nil
}

// Register appends an entry
func (g *Gallery) Register(name string, encoding Encoding) {
	e := make(Encoding, len(encoding))
	copy(e, encoding)

	g.mu.Lock()
	g.entries = append(g.entries, Entry{Name: name, Encoding: e})
	g.mu.Unlock()
}

// Enroll stores img as <dir>/<name>.jpg and registers its first face
func (g *Gallery) Enroll(dir, name string, img image.Image, enc vision.FaceEncoder) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if enc == nil {
		return ErrNoEncoder
	}

	encoding, err := firstEncoding(img, enc)
	if err != nil {
		return fmt.Errorf("enroll %s: %w", name, err)
	}

	path := filepath.Join(dir, name+".jpg")
	if err := vision.SaveJPEG(path, img, 95); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}

	g.Register(name, encoding)
	log.Printf("[Gallery] Registered face: %s", name)
	return nil
}

// Entries returns a snapshot of the gallery in insertion order
func (g *Gallery) Entries() []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Entry, len(g.entries))
	copy(out, g.entries)
	return out
}

// Names returns the entry names in insertion order
func (g *Gallery) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of entries
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

func firstEncoding(img image.Image, enc vision.FaceEncoder) (Encoding, error) {
	found, err := enc.Encode(img)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNoFace
	}
	return Encoding(found[0].Encoding), nil
}
