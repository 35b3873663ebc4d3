package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"fusioncam/internal/pipeline"
)

// progressSource reports replay progress for finite sources
type progressSource struct {
	pipeline.FrameSource
	bar *progressbar.ProgressBar
}

func newProgressSource(src pipeline.FrameSource, total int, name string) *progressSource {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(fmt.Sprintf("Replaying %s", name)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	return &progressSource{FrameSource: src, bar: bar}
}

func (s *progressSource) Next(ctx context.Context) (*pipeline.FrameData, error) {
	frame, err := s.FrameSource.Next(ctx)
	switch {
	case err == nil:
		s.bar.Add(1)
	case errors.Is(err, io.EOF):
		s.bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	return frame, err
}
