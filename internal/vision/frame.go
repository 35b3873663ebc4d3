// Package vision holds the image helpers shared by every detector and the
// provider contracts (cascades, masks, contours, face encoders) that the
// native backends implement.
package vision

import (
	"image"

	"golang.org/x/image/draw"
)

// CloneRGBA returns a fresh RGBA copy of img, origin preserved
func CloneRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// Downscale shrinks img by an integer factor using bilinear sampling.
// A factor <= 1 returns a copy at full size.
func Downscale(img image.Image, factor int) *image.RGBA {
	if factor <= 1 {
		return CloneRGBA(img)
	}
	b := img.Bounds()
	w := max(b.Dx()/factor, 1)
	h := max(b.Dy()/factor, 1)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// ScaleRect maps a rectangle found on a downscaled frame back to full size
func ScaleRect(r image.Rectangle, factor int) image.Rectangle {
	if factor <= 1 {
		return r
	}
	return image.Rect(r.Min.X*factor, r.Min.Y*factor, r.Max.X*factor, r.Max.Y*factor)
}

// SubGray returns the part of gray inside r, sharing pixels with the parent
func SubGray(gray *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(gray.Bounds())
	if r.Empty() {
		return image.NewGray(image.Rectangle{})
	}
	return gray.SubImage(r).(*image.Gray)
}

// Compact returns gray as a tightly packed image anchored at (0,0), copying
// only when gray is a sub-image or offset. Native backends need this layout.
func Compact(gray *image.Gray) *image.Gray {
	b := gray.Bounds()
	if b.Min == (image.Point{}) && gray.Stride == b.Dx() {
		return gray
	}
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], gray.Pix[gray.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	return out
}
