// Package imaging decodes, bounds, re-encodes and thumbnails page images.
package imaging

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/mattsolo1/grove-scanner/pkg/naming"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
)

const (
	DefaultMaxDimension = 2048
	DefaultJPEGQuality  = 85
	DefaultThumbSize    = 200
)

// Options bound the processing. Zero fields take the defaults.
type Options struct {
	MaxDimension int
	JPEGQuality  int
	ThumbSize    int
}

// Processor is safe for concurrent use.
type Processor struct {
	opts Options
}

// New returns a processor with opts, defaults filled in.
func New(opts Options) *Processor {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if opts.ThumbSize <= 0 {
		opts.ThumbSize = DefaultThumbSize
	}
	return &Processor{opts: opts}
}

func (p *Processor) Options() Options { return p.opts }

// Decode reads a jpeg, png or webp image.
func (p *Processor) Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, scanerr.E(scanerr.KindInvalidArgument, "decode image", err)
	}
	return img, nil
}

// Bound scales img down so that neither side exceeds MaxDimension, keeping
// the aspect ratio. Smaller images are returned as is.
func (p *Processor) Bound(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	limit := p.opts.MaxDimension
	if w <= limit && h <= limit {
		return img
	}

	var nw, nh int
	if w >= h {
		nw, nh = limit, h*limit/w
	} else {
		nw, nh = w*limit/h, limit
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Thumbnail fills a ThumbSize square with the center of img.
func (p *Processor) Thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	size := p.opts.ThumbSize
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)
	return dst
}

// CanEncode reports whether the extension names an output format.
func CanEncode(ext string) bool {
	switch ext {
	case "jpg", "jpeg", "png":
		return true
	}
	return false
}

// Encode writes img in the format implied by ext (without the dot).
func (p *Processor) Encode(w io.Writer, img image.Image, ext string) error {
	var err error
	switch ext {
	case "jpg", "jpeg":
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: p.opts.JPEGQuality})
	case "png":
		err = png.Encode(w, img)
	case "webp":
		return scanerr.Errorf(scanerr.KindInvalidArgument, "encode image", "webp output is not supported")
	default:
		return scanerr.Errorf(scanerr.KindInvalidArgument, "encode image", "unsupported format %q", ext)
	}
	if err != nil {
		return scanerr.E(scanerr.KindIOFailure, "encode image", err)
	}
	return nil
}

// Process decodes r, bounds it and writes it to w in the format of filename.
func (p *Processor) Process(r io.Reader, w io.Writer, filename string) error {
	ext := naming.Extension(filename)
	if !CanEncode(ext) {
		return p.Encode(w, nil, ext)
	}
	img, err := p.Decode(r)
	if err != nil {
		return err
	}
	return p.Encode(w, p.Bound(img), ext)
}

// Footprint approximates the in-memory size of a decoded image in bytes.
func Footprint(img image.Image) int64 {
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}
