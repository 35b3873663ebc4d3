// Package eventlog keeps the append-only history of per-frame detection
// batches and snapshots it to a JSON file
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"fusioncam/internal/detection"
	"fusioncam/internal/mode"
)

// ErrOutOfOrder is returned when an entry does not strictly follow the last
// frame index or moves the timestamp backwards
var ErrOutOfOrder = errors.New("log entry out of order")

// TimestampFormat is ISO-8601 with microseconds and zone offset
const TimestampFormat = "2006-01-02T15:04:05.000000Z07:00"

// Entry is one logged frame batch
type Entry struct {
	Timestamp  string                `json:"timestamp"`
	FrameIndex uint64                `json:"frame_index"`
	Mode       mode.Mode             `json:"mode"`
	Detections []detection.Detection `json:"detections"`

	at time.Time
}

// NewEntry builds an entry stamped with at
func NewEntry(at time.Time, frameIndex uint64, m mode.Mode, dets []detection.Detection) Entry {
	return Entry{
		Timestamp:  at.Format(TimestampFormat),
		FrameIndex: frameIndex,
		Mode:       m,
		Detections: dets,
		at:         at,
	}
}

// Time returns the entry timestamp
func (e Entry) Time() time.Time {
	if e.at.IsZero() {
		t, _ := time.Parse(TimestampFormat, e.Timestamp)
		return t
	}
	return e.at
}

// KindCount is one row of a summary
type KindCount struct {
	Kind  detection.Kind `json:"kind"`
	Count int            `json:"count"`
}

// Log is the in-memory history plus its backing file. Entries are never
// edited or removed once appended.
type Log struct {
	path       string
	flushEvery int

	entries []Entry
	pending int
	mu      sync.RWMutex
}

// Option configures a Log
type Option func(*Log)

// WithFlushEvery batches file rewrites to one per n appended entries.
// Persist always writes regardless.
func WithFlushEvery(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.flushEvery = n
		}
	}
}

// New creates an empty log backed by path. An empty path keeps the log in
// memory only.
func New(path string, opts ...Option) *Log {
	l := &Log{path: path, flushEvery: 1}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the backing file path
func (l *Log) Path() string {
	return l.path
}

// Append adds e when it carries at least one detection and reports whether
// it was stored. Frame indexes must strictly increase and timestamps must
// not decrease.
func (l *Log) Append(e Entry) (bool, error) {
	if len(e.Detections) == 0 {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.entries); n > 0 {
		last := l.entries[n-1]
		if e.FrameIndex <= last.FrameIndex {
			return false, fmt.Errorf("%w: frame %d after %d", ErrOutOfOrder, e.FrameIndex, last.FrameIndex)
		}
		if e.Time().Before(last.Time()) {
			return false, fmt.Errorf("%w: timestamp %s before %s", ErrOutOfOrder, e.Timestamp, last.Timestamp)
		}
	}

	dets := make([]detection.Detection, len(e.Detections))
	copy(dets, e.Detections)
	e.Detections = dets
	if e.at.IsZero() {
		e.at = e.Time()
	}

	l.entries = append(l.entries, e)
	l.pending++
	return true, nil
}

// Flush persists when at least flushEvery entries were appended since the
// last write
func (l *Log) Flush() error {
	l.mu.RLock()
	due := l.pending >= l.flushEvery
	l.mu.RUnlock()
	if !due {
		return nil
	}
	return l.Persist()
}

// Persist rewrites the backing file with every entry, via a temp file and
// rename so readers never see a partial document
func (l *Log) Persist() error {
	if l.path == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create log dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close log: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("replace log %s: %w", l.path, err)
	}

	l.pending = 0
	return nil
}

// Len returns the number of stored entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Recent returns the last n entries in insertion order. n <= 0 yields an
// empty slice; n beyond the length yields the whole log.
func (l *Log) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tail := Tail(l.entries, n)
	out := make([]Entry, len(tail))
	copy(out, tail)
	return out
}

// Tail returns the last n entries of a slice without copying. n <= 0 yields
// an empty slice; n beyond the length yields all of them.
func Tail(entries []Entry, n int) []Entry {
	n = min(max(n, 0), len(entries))
	return entries[len(entries)-n:]
}

// Summarize counts detections by kind over the last window entries, sorted
// by kind name
func (l *Log) Summarize(window int) []KindCount {
	return Summarize(l.Recent(window))
}

// Summarize counts detections by kind across entries, sorted by kind name
func Summarize(entries []Entry) []KindCount {
	counts := make(map[detection.Kind]int)
	for _, e := range entries {
		for _, d := range e.Detections {
			counts[d.Kind]++
		}
	}

	out := make([]KindCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, KindCount{Kind: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// ReadFile loads a persisted log document
func ReadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse log %s: %w", path, err)
	}
	return entries, nil
}

// PrintSummary writes the summary block the operator sees on the console
func PrintSummary(counts []KindCount, entries int) {
	log.Printf("[EventLog] === Detection Summary ===")
	if entries == 0 {
		log.Printf("[EventLog] No detections recorded yet.")
		return
	}
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	log.Printf("[EventLog] Total recent detections: %d", total)
	for _, c := range counts {
		log.Printf("[EventLog]   %s: %d", c.Kind, c.Count)
	}
}
