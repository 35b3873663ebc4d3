package cv

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"fusioncam/internal/pipeline"
	"fusioncam/internal/vision"
)

// CaptureSource pulls frames from a camera index, video file or stream URL
// through cv::VideoCapture
type CaptureSource struct {
	device  string
	capture *gocv.VideoCapture
	mat     gocv.Mat
	seq     uint64
	mu      sync.Mutex
}

// OpenCapture opens device, which may be a numeric camera index or any
// path/URL OpenCV understands
func OpenCapture(device string) (*CaptureSource, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", device, err)
	}
	log.Printf("[Capture] Opened %s", device)
	return &CaptureSource{
		device:  device,
		capture: capture,
		mat:     gocv.NewMat(),
	}, nil
}

// Next blocks until the next frame is read. A failed read or an empty
// frame is treated as end of stream.
func (s *CaptureSource) Next(ctx context.Context) (*pipeline.FrameData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, io.EOF
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame from %s: %w", s.device, err)
	}

	s.seq++
	var rgba *image.RGBA
	if r, ok := img.(*image.RGBA); ok {
		rgba = r
	} else {
		rgba = vision.CloneRGBA(img)
	}

	return &pipeline.FrameData{
		Source:    s.device,
		Index:     s.seq,
		Timestamp: time.Now(),
		Image:     rgba,
	}, nil
}

// Close releases the native capture handle
func (s *CaptureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mat.Close()
	return s.capture.Close()
}

var _ pipeline.FrameSource = (*CaptureSource)(nil)
