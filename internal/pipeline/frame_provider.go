package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fusioncam/internal/vision"
)

// OpenSource picks a frame source for device: a directory replays its
// images, an HTTP(S) image URL is polled, anything else goes through ffmpeg
func OpenSource(ctx context.Context, device string, fps, width, height int) (FrameSource, error) {
	if device == "" {
		return nil, ErrNoFrameSource
	}
	if info, err := os.Stat(device); err == nil && info.IsDir() {
		return NewDirectorySource(device)
	}
	if isHTTPImageEndpoint(device) {
		return NewHTTPSnapshotSource(device, fps), nil
	}
	return StartFFmpegSource(ctx, device, fps, width, height)
}

func isHTTPImageEndpoint(device string) bool {
	return (strings.HasPrefix(device, "http://") || strings.HasPrefix(device, "https://")) &&
		(strings.Contains(device, ".jpg") || strings.Contains(device, ".jpeg") || strings.Contains(device, "image"))
}

// DirectorySource replays the image files of a directory in name order
type DirectorySource struct {
	dir   string
	files []string
	next  int
	seq   uint64
	mu    sync.Mutex
}

// NewDirectorySource lists the images in dir
func NewDirectorySource(dir string) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".jpg" && ext != ".jpeg" && ext != ".png") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	log.Printf("[FrameProvider] Replaying %d frames from %s", len(files), dir)
	return &DirectorySource{dir: dir, files: files}, nil
}

// Len returns the number of frames the directory holds
func (s *DirectorySource) Len() int {
	return len(s.files)
}

// Next decodes the next file. Undecodable files are logged and skipped.
func (s *DirectorySource) Next(ctx context.Context) (*FrameData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.next < len(s.files) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := s.files[s.next]
		s.next++

		img, err := vision.LoadRGBA(path)
		if err != nil {
			log.Printf("[FrameProvider] Skipping %s: %v", path, err)
			continue
		}
		s.seq++
		return &FrameData{Source: s.dir, Index: s.seq, Timestamp: time.Now(), Image: img}, nil
	}
	return nil, io.EOF
}

func (s *DirectorySource) Close() error {
	return nil
}

// HTTPSnapshotSource polls a still-image URL at a fixed rate
type HTTPSnapshotSource struct {
	url      string
	client   *http.Client
	interval time.Duration
	last     time.Time
	seq      uint64
}

// NewHTTPSnapshotSource polls url at most fps times per second, and no more
// often than every 100ms
func NewHTTPSnapshotSource(url string, fps int) *HTTPSnapshotSource {
	if fps <= 0 {
		fps = 5
	}
	interval := time.Second / time.Duration(fps)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return &HTTPSnapshotSource{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		interval: interval,
	}
}

// Next waits for the next poll slot and fetches a frame, retrying failed
// fetches until ctx is done
func (s *HTTPSnapshotSource) Next(ctx context.Context) (*FrameData, error) {
	for {
		if wait := s.interval - time.Since(s.last); wait > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		s.last = time.Now()

		frame, err := s.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[FrameProvider] Error fetching frame from %s: %v", s.url, err)
			continue
		}
		return frame, nil
	}
}

func (s *HTTPSnapshotSource) fetch(ctx context.Context) (*FrameData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	img, err := vision.DecodeRGBA(data)
	if err != nil {
		return nil, err
	}
	s.seq++
	return &FrameData{Source: s.url, Index: s.seq, Timestamp: time.Now(), Image: img}, nil
}

func (s *HTTPSnapshotSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// FFmpegSource decodes a camera, RTSP/HTTP stream or video file through an
// ffmpeg MJPEG pipe. Frames are delivered through a small buffer; when the
// consumer falls behind the newest frame is dropped.
type FFmpegSource struct {
	device  string
	cmd     *exec.Cmd
	frames  chan []byte
	seq     atomic.Uint64
	dropped atomic.Uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

// StartFFmpegSource launches ffmpeg for device
func StartFFmpegSource(ctx context.Context, device string, fps, width, height int) (*FFmpegSource, error) {
	if fps <= 0 {
		fps = 15
	}
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(device, fps, width, height)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	s := &FFmpegSource{
		device: device,
		cmd:    cmd,
		frames: make(chan []byte, 2),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// Consume stderr silently
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()
	go s.readFrames(stdout)

	log.Printf("[FrameProvider] Started ffmpeg capture (device: %s, fps: %d)", device, fps)
	return s, nil
}

func ffmpegArgs(device string, fps, width, height int) []string {
	out := []string{"-f", "image2pipe", "-vcodec", "mjpeg", "-r", fmt.Sprintf("%d", fps), "-q:v", "5", "-"}
	switch {
	case strings.HasPrefix(device, "rtsp://"):
		return append([]string{"-rtsp_transport", "tcp", "-i", device}, out...)
	case strings.HasPrefix(device, "/dev/"):
		// V4L2 device (USB camera)
		in := []string{"-f", "v4l2", "-framerate", fmt.Sprintf("%d", fps)}
		if width > 0 && height > 0 {
			in = append(in, "-video_size", fmt.Sprintf("%dx%d", width, height))
		}
		return append(append(in, "-i", device), out...)
	default:
		return append([]string{"-i", device}, out...)
	}
}

func (s *FFmpegSource) readFrames(stdout io.Reader) {
	defer close(s.done)
	defer close(s.frames)

	frameBuffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)

	for {
		n, err := stdout.Read(chunk)
		if n > 0 {
			frameBuffer = append(frameBuffer, chunk[:n]...)
			for {
				frame := extractJPEGFrame(&frameBuffer)
				if frame == nil {
					break
				}
				select {
				case s.frames <- frame:
				default:
					s.dropped.Add(1)
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("[FrameProvider] Error reading frame: %v", err)
			}
			return
		}
	}
}

// Next blocks until ffmpeg yields a frame. io.EOF means ffmpeg exited.
func (s *FFmpegSource) Next(ctx context.Context) (*FrameData, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case data, ok := <-s.frames:
			if !ok {
				return nil, io.EOF
			}
			img, err := vision.DecodeRGBA(data)
			if err != nil {
				log.Printf("[FrameProvider] Dropping corrupt frame: %v", err)
				continue
			}
			return &FrameData{
				Source:    s.device,
				Index:     s.seq.Add(1),
				Timestamp: time.Now(),
				Image:     img,
			}, nil
		}
	}
}

// Dropped returns how many frames were discarded because the consumer was slow
func (s *FFmpegSource) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops ffmpeg and waits for the reader to finish
func (s *FFmpegSource) Close() error {
	s.cancel()
	<-s.done
	if err := s.cmd.Wait(); err != nil && !strings.Contains(err.Error(), "killed") {
		return fmt.Errorf("ffmpeg exited: %w", err)
	}
	return nil
}

// extractJPEGFrame removes and returns the first complete JPEG in buffer
func extractJPEGFrame(buffer *[]byte) []byte {
	buf := *buffer
	if len(buf) < 4 {
		return nil
	}

	// Find JPEG start marker (FFD8)
	startIdx := -1
	for i := 0; i < len(buf)-1; i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		// Keep a trailing 0xFF that may start the next marker
		*buffer = buf[len(buf)-1:]
		return nil
	}

	// Find JPEG end marker (FFD9)
	endIdx := -1
	for i := startIdx + 2; i < len(buf)-1; i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		if startIdx > 0 {
			*buffer = buf[startIdx:]
		}
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, buf[startIdx:endIdx])
	*buffer = buf[endIdx:]
	return frame
}

var (
	_ FrameSource = (*DirectorySource)(nil)
	_ FrameSource = (*HTTPSnapshotSource)(nil)
	_ FrameSource = (*FFmpegSource)(nil)
)
