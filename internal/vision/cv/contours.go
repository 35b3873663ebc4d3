package cv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"fusioncam/internal/vision"
)

// ContourFinder extracts external contours with cv::findContours. Areas are
// polygon areas as computed by cv::contourArea.
type ContourFinder struct{}

func (ContourFinder) FindContours(mask *image.Gray) ([]vision.Contour, error) {
	mat, err := gocv.ImageGrayToMatGray(vision.Compact(mask))
	if err != nil {
		return nil, fmt.Errorf("convert mask: %w", err)
	}
	defer mat.Close()

	contours := gocv.FindContours(mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	origin := mask.Bounds().Min
	out := make([]vision.Contour, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		out = append(out, vision.Contour{
			Bounds: gocv.BoundingRect(c).Add(origin),
			Area:   gocv.ContourArea(c),
		})
	}
	return out, nil
}

var _ vision.ContourFinder = ContourFinder{}
