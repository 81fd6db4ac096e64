// Package imaging normalises uploaded item photos.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Defaults for stored item photos.
const (
	DefaultMaxDimension = 1600
	DefaultQuality      = 82
)

// ErrUnsupported is returned for uploads that are not JPEG, PNG or WebP.
var ErrUnsupported = errors.New("unsupported image format, use JPEG, PNG or WebP")

var accepted = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Options tunes Process.
type Options struct {
	MaxDimension int
	Quality      int
}

// Photo is a normalised JPEG ready for storage.
type Photo struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Process normalises a photo with the default options.
func Process(r io.Reader) (*Photo, error) {
	return ProcessWith(r, Options{})
}

// ProcessWith sniffs the upload, fits it inside opts.MaxDimension and
// re-encodes it as JPEG. Transparent areas become white.
func ProcessWith(r io.Reader, opts Options) (*Photo, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if !accepted[http.DetectContentType(data)] {
		return nil, ErrUnsupported
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	w, h := fit(src.Bounds().Dx(), src.Bounds().Dy(), opts.MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return &Photo{Data: buf.Bytes(), MIME: "image/jpeg", Width: w, Height: h}, nil
}

// fit scales w×h down so the longer side is at most max. Smaller images keep
// their size.
func fit(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		return max, clampMin(h * max / w)
	}
	return clampMin(w * max / h), max
}

func clampMin(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
