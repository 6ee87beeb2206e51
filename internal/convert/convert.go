// Package convert turns encoded images into GIF bytes.
//
// Static sources become a single-frame GIF no larger than StaticMaxDim on
// either axis. Animated GIF sources keep at most maxFrames frames, each
// composited onto the logical screen, scaled to fit FrameMaxDim, and carry
// their original delay. Palettes come from a median-cut quantizer sized by
// the quality hint, with Floyd-Steinberg dithering.
//
// Convert never panics: decoder or encoder panics surface as ErrDecode.
package convert

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	"github.com/ericpauley/go-quantize/quantize"
	_ "golang.org/x/image/bmp" // register decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

// Pipeline defaults and bounds.
const (
	DefaultQuality   = 80
	DefaultMaxFrames = 30
	StaticMaxDim     = 1024
	FrameMaxDim      = 512

	// DefaultFrameDelay is 100ms in GIF centiseconds.
	DefaultFrameDelay = 10
)

var (
	// ErrDecode covers empty, corrupt or unsupported input.
	ErrDecode = errors.New("cannot decode image")
	// ErrNoFrames is returned when an animated source has no frames.
	ErrNoFrames = errors.New("image has no frames")
	// ErrEncode is returned when GIF encoding fails.
	ErrEncode = errors.New("cannot encode gif")
)

// Convert decodes data and re-encodes it as GIF. Non-positive quality or
// maxFrames select the defaults.
func Convert(data []byte, quality, maxFrames int) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: panic: %v", ErrDecode, r)
		}
	}()

	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if format == "gif" {
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if len(g.Image) == 0 {
			return nil, ErrNoFrames
		}
		if len(g.Image) > 1 {
			return encodeAnimated(g, quality, maxFrames)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return encodeStatic(img, quality)
}

// PaletteSize maps a 1..100 quality hint to a palette of 2..256 colors.
func PaletteSize(quality int) int {
	n := quality * 256 / 100
	if n < 2 {
		n = 2
	}
	if n > 256 {
		n = 256
	}
	return n
}

func encodeStatic(img image.Image, quality int) ([]byte, error) {
	rgba := fitWithin(flatten(img), StaticMaxDim)

	var buf bytes.Buffer
	err := gif.Encode(&buf, rgba, &gif.Options{
		NumColors: PaletteSize(quality),
		Quantizer: quantize.MedianCutQuantizer{},
		Drawer:    draw.FloydSteinberg,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

func encodeAnimated(g *gif.GIF, quality, maxFrames int) ([]byte, error) {
	screen := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if screen.Empty() {
		for _, fr := range g.Image {
			screen = screen.Union(fr.Bounds())
		}
	}
	canvas := image.NewRGBA(screen)

	n := len(g.Image)
	if n > maxFrames {
		n = maxFrames
	}
	out := &gif.GIF{
		Image:     make([]*image.Paletted, 0, n),
		Delay:     make([]int, 0, n),
		LoopCount: 0,
	}
	colors := PaletteSize(quality)

	for i := 0; i < n; i++ {
		fr := g.Image[i]
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		var saved *image.RGBA
		if disposal == gif.DisposalPrevious {
			saved = cloneRGBA(canvas)
		}

		draw.Draw(canvas, fr.Bounds(), fr, fr.Bounds().Min, draw.Over)

		frame := fitWithin(flatten(canvas), FrameMaxDim)
		out.Image = append(out.Image, quantizeFrame(frame, colors))

		delay := 0
		if i < len(g.Delay) {
			delay = g.Delay[i]
		}
		if delay <= 0 {
			delay = DefaultFrameDelay
		}
		out.Delay = append(out.Delay, delay)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, fr.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			if saved != nil {
				canvas = saved
			}
		}
	}

	if len(out.Image) == 0 {
		return nil, ErrNoFrames
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// flatten draws img over an opaque black background. GIF frames carry no
// partial alpha.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// fitWithin scales img down so neither side exceeds limit, preserving the
// aspect ratio. Images that already fit are returned unchanged.
func fitWithin(img *image.RGBA, limit int) *image.RGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= limit && h <= limit {
		return img
	}
	nw, nh := limit, limit
	if w >= h {
		nh = h * limit / w
	} else {
		nw = w * limit / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func quantizeFrame(img *image.RGBA, colors int) *image.Paletted {
	q := quantize.MedianCutQuantizer{}
	pal := q.Quantize(make(color.Palette, 0, colors), img)
	if len(pal) == 0 {
		pal = color.Palette{color.Black}
	}
	p := image.NewPaletted(img.Bounds(), pal)
	draw.FloydSteinberg.Draw(p, img.Bounds(), img, img.Bounds().Min)
	return p
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
