package cv

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"fusioncam/internal/vision"
)

// Ops converts and segments frames with OpenCV
type Ops struct{}

// Grayscale converts img with cv::cvtColor
func (Ops) Grayscale(img image.Image) (*image.Gray, error) {
	gray, err := grayMat(img)
	if err != nil {
		return nil, err
	}
	defer gray.Close()
	return toGray(gray, img.Bounds().Min)
}

// ColorMask thresholds the HSV form of img with cv::inRange and opens the
// result with a square kernel
func (Ops) ColorMask(img image.Image, rng vision.HSVRange, openKernel int) (*image.Gray, error) {
	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer bgr.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, scalar(rng.Lower), scalar(rng.Upper), &mask)

	if openKernel > 1 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(openKernel, openKernel))
		defer kernel.Close()
		gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)
	}
	return toGray(mask, img.Bounds().Min)
}

// Background keeps a CV_32F running average updated with
// cv::accumulateWeighted
type Background struct {
	acc    gocv.Mat
	kernel gocv.Mat
	seeded bool
	mu     sync.Mutex
}

// NewBackground allocates an empty estimator; Close releases it
func NewBackground() *Background {
	return &Background{
		acc:    gocv.NewMat(),
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
	}
}

func (b *Background) Seed(frame image.Image) error {
	gray, err := grayMat(frame)
	if err != nil {
		return err
	}
	defer gray.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	gray.ConvertTo(&b.acc, gocv.MatTypeCV32F)
	b.seeded = true
	return nil
}

func (b *Background) Foreground(frame image.Image, alpha float64, threshold uint8, iterations int) (*image.Gray, error) {
	gray, err := grayMat(frame)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	b.mu.Lock()
	if !b.seeded {
		b.mu.Unlock()
		return nil, errors.New("background not seeded")
	}
	gocv.AccumulatedWeighted(gray, &b.acc, alpha)
	estimate := gocv.NewMat()
	gocv.ConvertScaleAbs(b.acc, &estimate, 1, 0)
	b.mu.Unlock()
	defer estimate.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, estimate, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, float32(threshold), 255, gocv.ThresholdBinary)

	for i := 0; i < iterations; i++ {
		gocv.Dilate(mask, &mask, b.kernel)
	}
	return toGray(mask, frame.Bounds().Min)
}

// Close releases the native buffers
func (b *Background) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seeded = false
	return errors.Join(b.acc.Close(), b.kernel.Close())
}

// grayMat converts img to a single channel Mat. ImageToMatRGB lays pixels
// out in BGR order.
func grayMat(img image.Image) (gocv.Mat, error) {
	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("convert frame: %w", err)
	}
	defer bgr.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	return gray, nil
}

// toGray copies a CV_8UC1 Mat into an image.Gray positioned at origin
func toGray(m gocv.Mat, origin image.Point) (*image.Gray, error) {
	img, err := m.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert mask: %w", err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("unexpected mask image %T", img)
	}
	gray.Rect = gray.Rect.Add(origin)
	return gray, nil
}

func scalar(c vision.HSV) gocv.Scalar {
	return gocv.NewScalar(float64(c.H), float64(c.S), float64(c.V), 0)
}

var (
	_ vision.GrayConverter       = Ops{}
	_ vision.ColorMasker         = Ops{}
	_ vision.BackgroundEstimator = (*Background)(nil)
)
