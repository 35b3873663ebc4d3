package stream

import (
	"fmt"
	"image"
	"log"
	"net/http"
	"sync"

	"fusioncam/internal/pipeline"
	"fusioncam/internal/vision"
)

// DefaultQuality is the JPEG quality used for streamed frames
const DefaultQuality = 80

// MJPEGStream serves the latest annotated frame as a multipart MJPEG stream
// and as single snapshots. It receives frames from the pipeline event bus.
type MJPEGStream struct {
	quality int

	clients   map[chan []byte]bool
	clientsMu sync.RWMutex

	latest     *image.RGBA // Annotated canvas of the last frame
	latestJPEG []byte      // Encoded form of latest, nil until requested
	frameSeq   uint64
	frameMu    sync.RWMutex
}

// NewMJPEGStream creates a stream; quality <= 0 uses DefaultQuality
func NewMJPEGStream(quality int) *MJPEGStream {
	if quality <= 0 {
		quality = DefaultQuality
	}
	return &MJPEGStream{
		quality: quality,
		clients: make(map[chan []byte]bool),
	}
}

// OnFrameResult implements pipeline.FrameResultHandler. Frames are encoded
// only when a stream client is connected; snapshots encode on demand.
func (s *MJPEGStream) OnFrameResult(result *pipeline.FrameResult) {
	if result == nil || result.Annotated == nil {
		return
	}

	s.frameMu.Lock()
	s.latest = result.Annotated
	s.latestJPEG = nil
	s.frameSeq++
	seq := s.frameSeq
	s.frameMu.Unlock()

	if s.ClientCount() == 0 {
		return
	}

	frame, err := s.encodeLatest()
	if err != nil {
		log.Printf("[Stream] Failed to encode frame %d: %v", result.FrameIndex, err)
		return
	}

	s.clientsMu.RLock()
	for ch := range s.clients {
		select {
		case ch <- frame:
		default:
			// Client is slow, skip frame
		}
	}
	s.clientsMu.RUnlock()

	if seq%100 == 0 {
		log.Printf("[Stream] Frame seq: %d", seq)
	}
}

// encodeLatest returns the JPEG of the latest frame, encoding it once
func (s *MJPEGStream) encodeLatest() ([]byte, error) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	if s.latest == nil {
		return nil, nil
	}
	if s.latestJPEG == nil {
		data, err := vision.EncodeJPEG(s.latest, s.quality)
		if err != nil {
			return nil, err
		}
		s.latestJPEG = data
	}
	return s.latestJPEG, nil
}

// CurrentFrame returns the latest frame as JPEG, or nil before the first frame
func (s *MJPEGStream) CurrentFrame() ([]byte, error) {
	return s.encodeLatest()
}

// FrameSeq returns the number of frames received
func (s *MJPEGStream) FrameSeq() uint64 {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.frameSeq
}

// ClientCount returns the number of connected stream clients
func (s *MJPEGStream) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// ServeHTTP streams frames until the client goes away
func (s *MJPEGStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientCh := make(chan []byte, 5)
	s.clientsMu.Lock()
	s.clients[clientCh] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, clientCh)
		s.clientsMu.Unlock()
	}()

	log.Printf("[Stream] Client connected from %s", r.RemoteAddr)

	// Start with the frame on screen so idle pipelines still show something
	if frame, err := s.encodeLatest(); err == nil && frame != nil {
		writePart(w, frame)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			log.Printf("[Stream] Client disconnected from %s", r.RemoteAddr)
			return
		case frame := <-clientCh:
			if err := writePart(w, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writePart(w http.ResponseWriter, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\r\n")
	return err
}

// SnapshotHandler serves the latest frame as a single JPEG
type SnapshotHandler struct {
	stream *MJPEGStream
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(stream *MJPEGStream) *SnapshotHandler {
	return &SnapshotHandler{stream: stream}
}

// ServeHTTP serves a single JPEG snapshot
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	frame, err := h.stream.CurrentFrame()
	if err != nil {
		http.Error(w, fmt.Sprintf("Encode failed: %v", err), http.StatusInternalServerError)
		return
	}
	if frame == nil {
		http.Error(w, "No frame available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(frame)))
	w.Write(frame)
}

var _ pipeline.FrameResultHandler = (*MJPEGStream)(nil)
