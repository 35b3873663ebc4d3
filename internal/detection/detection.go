package detection

import (
	"fmt"
	"image"
	"strings"
)

// Kind identifies which detector produced a Detection and which attribute
// payload it carries
type Kind string

const (
	KindFrontalFace    Kind = "frontal_face"
	KindProfileFace    Kind = "profile_face"
	KindRecognizedFace Kind = "recognized_face"
	KindPersonBody     Kind = "person_body"
	KindMovingObject   Kind = "moving_object"
	KindColorObject    Kind = "color_object"
)

// Kinds lists every detection kind in declaration order
var Kinds = []Kind{
	KindFrontalFace,
	KindProfileFace,
	KindRecognizedFace,
	KindPersonBody,
	KindMovingObject,
	KindColorObject,
}

// Qualifier is the coarse confidence attached to cascade hits
type Qualifier string

const (
	QualifierHigh   Qualifier = "high"
	QualifierMedium Qualifier = "medium"
)

// MotionClass is the shape-based label given to a moving region
type MotionClass string

const (
	MotionHorizontal MotionClass = "horizontal_movement"
	MotionVertical   MotionClass = "vertical_movement"
	MotionPersonLike MotionClass = "person_like_movement"
	MotionUnknown    MotionClass = "unknown_motion"
)

// BBox is an axis-aligned box in pixel space
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FromRect converts an image.Rectangle into a BBox
func FromRect(r image.Rectangle) BBox {
	r = r.Canon()
	return BBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect returns the box as an image.Rectangle
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Clamp returns the part of the box that lies within bounds.
// A box entirely outside bounds collapses to a zero-sized box at the
// nearest corner, so width and height never go negative.
func (b BBox) Clamp(bounds image.Rectangle) BBox {
	r := b.Rect().Canon().Intersect(bounds)
	if r.Empty() {
		x := min(max(b.X, bounds.Min.X), bounds.Max.X)
		y := min(max(b.Y, bounds.Min.Y), bounds.Max.Y)
		return BBox{X: x, Y: y}
	}
	return FromRect(r)
}

// Within reports whether the box is non-negative and inside bounds
func (b BBox) Within(bounds image.Rectangle) bool {
	if b.Width < 0 || b.Height < 0 {
		return false
	}
	return b.X >= bounds.Min.X && b.Y >= bounds.Min.Y &&
		b.X+b.Width <= bounds.Max.X && b.Y+b.Height <= bounds.Max.Y
}

// FaceAttributes is carried by frontal and profile face detections
type FaceAttributes struct {
	Confidence   Qualifier `json:"confidence"`
	EyesDetected *int      `json:"eyes_detected,omitempty"`
}

// RecognitionAttributes is carried by recognized face detections.
// Confidence is 1 - distance and is not clamped.
type RecognitionAttributes struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
	Known      bool    `json:"known"`
}

// BodyAttributes is carried by person body detections
type BodyAttributes struct {
	Confidence Qualifier `json:"confidence"`
}

// MotionAttributes is carried by moving object detections
type MotionAttributes struct {
	Area        float64     `json:"area"`
	AspectRatio float64     `json:"aspect_ratio"`
	Extent      float64     `json:"extent"`
	Class       MotionClass `json:"motion_class"`
}

// ColorAttributes is carried by color object detections
type ColorAttributes struct {
	ColorName string  `json:"color_name"`
	Area      float64 `json:"area"`
}

// Detection is a single detector hit. Exactly one attribute payload is set,
// selected by Kind. Use the New* constructors to build well-formed values.
type Detection struct {
	Kind        Kind                   `json:"kind"`
	BBox        BBox                   `json:"bbox"`
	Face        *FaceAttributes        `json:"face,omitempty"`
	Recognition *RecognitionAttributes `json:"recognition,omitempty"`
	Body        *BodyAttributes        `json:"body,omitempty"`
	Motion      *MotionAttributes      `json:"motion,omitempty"`
	Color       *ColorAttributes       `json:"color,omitempty"`
}

// NewFrontalFace builds a frontal face detection; the qualifier is high
// when at least two eyes were found inside the face box
func NewFrontalFace(box BBox, eyes int) Detection {
	q := QualifierMedium
	if eyes >= 2 {
		q = QualifierHigh
	}
	return Detection{
		Kind: KindFrontalFace,
		BBox: box,
		Face: &FaceAttributes{Confidence: q, EyesDetected: &eyes},
	}
}

// NewProfileFace builds a profile face detection
func NewProfileFace(box BBox) Detection {
	return Detection{
		Kind: KindProfileFace,
		BBox: box,
		Face: &FaceAttributes{Confidence: QualifierMedium},
	}
}

// NewRecognizedFace builds a recognized face detection
func NewRecognizedFace(box BBox, name string, confidence, distance float64, known bool) Detection {
	return Detection{
		Kind: KindRecognizedFace,
		BBox: box,
		Recognition: &RecognitionAttributes{
			Name:       name,
			Confidence: confidence,
			Distance:   distance,
			Known:      known,
		},
	}
}

// NewPersonBody builds a person body detection
func NewPersonBody(box BBox) Detection {
	return Detection{
		Kind: KindPersonBody,
		BBox: box,
		Body: &BodyAttributes{Confidence: QualifierMedium},
	}
}

// NewMovingObject builds a moving object detection
func NewMovingObject(box BBox, attrs MotionAttributes) Detection {
	return Detection{
		Kind:   KindMovingObject,
		BBox:   box,
		Motion: &attrs,
	}
}

// NewColorObject builds a color object detection
func NewColorObject(box BBox, colorName string, area float64) Detection {
	return Detection{
		Kind:  KindColorObject,
		BBox:  box,
		Color: &ColorAttributes{ColorName: colorName, Area: area},
	}
}

// Label returns the short caption drawn next to the detection
func (d Detection) Label() string {
	switch d.Kind {
	case KindFrontalFace:
		return "Face"
	case KindProfileFace:
		return "Profile"
	case KindRecognizedFace:
		if d.Recognition == nil || !d.Recognition.Known {
			return "Unknown"
		}
		return fmt.Sprintf("%s (%.2f)", d.Recognition.Name, d.Recognition.Confidence)
	case KindPersonBody:
		return "Person Detected"
	case KindMovingObject:
		if d.Motion == nil {
			return "Moving Object"
		}
		return fmt.Sprintf("%s (%.0f)", d.Motion.Class.Title(), d.Motion.Area)
	case KindColorObject:
		if d.Color == nil {
			return "Color Object"
		}
		return fmt.Sprintf("%s Object", titleCase(d.Color.ColorName))
	default:
		return string(d.Kind)
	}
}

// Validate checks that the payload matches the kind and the box is sane
func (d Detection) Validate() error {
	if d.BBox.Width < 0 || d.BBox.Height < 0 {
		return fmt.Errorf("%s: negative box size %dx%d", d.Kind, d.BBox.Width, d.BBox.Height)
	}

	var ok bool
	switch d.Kind {
	case KindFrontalFace, KindProfileFace:
		ok = d.Face != nil
	case KindRecognizedFace:
		ok = d.Recognition != nil
	case KindPersonBody:
		ok = d.Body != nil
	case KindMovingObject:
		ok = d.Motion != nil
	case KindColorObject:
		ok = d.Color != nil
	default:
		return fmt.Errorf("unknown detection kind %q", d.Kind)
	}
	if !ok {
		return fmt.Errorf("%s: missing attribute payload", d.Kind)
	}
	return nil
}

// Title returns the human readable form used on overlays
func (c MotionClass) Title() string {
	switch c {
	case MotionHorizontal:
		return "Horizontal Movement"
	case MotionVertical:
		return "Vertical Movement"
	case MotionPersonLike:
		return "Person-like Movement"
	default:
		return "Unknown Motion"
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
