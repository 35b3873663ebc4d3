package pipeline

import (
	"bufio"
	"context"
	"io"
	"log"

	"fusioncam/internal/mode"
)

// CommandQueue collects operator commands from any number of producers
// (stdin, websocket, HTTP) for the driver to poll once per frame
type CommandQueue struct {
	ch chan mode.Command
}

// NewCommandQueue creates a queue holding up to size pending commands
func NewCommandQueue(size int) *CommandQueue {
	if size <= 0 {
		size = 16
	}
	return &CommandQueue{ch: make(chan mode.Command, size)}
}

// Submit enqueues cmd, returning false when the queue is full
func (q *CommandQueue) Submit(cmd mode.Command) bool {
	select {
	case q.ch <- cmd:
		return true
	default:
		log.Printf("[Commands] Queue full, dropping %s", cmd.Kind)
		return false
	}
}

// SubmitText parses and enqueues a text command. Unrecognized input is
// ignored and reported as false.
func (q *CommandQueue) SubmitText(text string) bool {
	cmd, ok := mode.ParseCommand(text)
	if !ok {
		return false
	}
	return q.Submit(cmd)
}

// Poll returns the oldest pending command without blocking
func (q *CommandQueue) Poll() (mode.Command, bool) {
	select {
	case cmd := <-q.ch:
		return cmd, true
	default:
		return mode.Command{}, false
	}
}

// ReadLines feeds every line of r into the queue until r is exhausted or
// ctx is done
func (q *CommandQueue) ReadLines(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		cmd, ok := mode.ParseCommand(line)
		if !ok {
			if line != "" {
				log.Printf("[Commands] Ignoring unknown command %q", line)
			}
			continue
		}
		q.Submit(cmd)
	}
}

var _ CommandSource = (*CommandQueue)(nil)
