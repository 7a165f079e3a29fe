package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Frame is a normalized JPEG frame
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// Normalize decodes a JPEG, PNG or BMP image, scales it to width x height when it differs,
// and encodes it as JPEG at the given quality. width or height <= 0 keeps the source size.
// JPEG input already at the target size is passed through untouched.
func Normalize(data []byte, width, height, quality int) (Frame, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}

	bounds := img.Bounds()
	resize := width > 0 && height > 0 && (bounds.Dx() != width || bounds.Dy() != height)

	if format == "jpeg" && !resize {
		return Frame{Data: data, Width: bounds.Dx(), Height: bounds.Dy()}, nil
	}

	if resize {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
		img = dst
	}

	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	out := img.Bounds()
	return Frame{Data: buf.Bytes(), Width: out.Dx(), Height: out.Dy()}, nil
}
