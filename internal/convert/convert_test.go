package convert

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), uint8(x + y), uint8(128 + x%128)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 3), 40, uint8(y * 5), 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

// animatedGIF builds n frames of w x h; frame i is filled with palette
// color i so ordering can be checked after re-encoding.
func animatedGIF(t *testing.T, n, w, h int, delay int) []byte {
	t.Helper()
	g := &gif.GIF{}
	for i := 0; i < n; i++ {
		fr := image.NewPaletted(image.Rect(0, 0, w, h), palette.Plan9)
		idx := uint8((i * 37) % len(palette.Plan9))
		for p := range fr.Pix {
			fr.Pix[p] = idx
		}
		g.Image = append(g.Image, fr)
		g.Delay = append(g.Delay, delay)
		g.Disposal = append(g.Disposal, gif.DisposalNone)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatalf("gif encode: %v", err)
	}
	return buf.Bytes()
}

func TestPaletteSize(t *testing.T) {
	cases := map[int]int{1: 2, 0: 2, 50: 128, 80: 204, 100: 256, 200: 256}
	for in, want := range cases {
		if got := PaletteSize(in); got != want {
			t.Fatalf("PaletteSize(%d) = %d; want %d", in, got, want)
		}
	}
}

func TestConvert_StaticSmall_SingleFrame(t *testing.T) {
	for name, data := range map[string][]byte{
		"png":  pngBytes(t, 64, 32),
		"jpeg": jpegBytes(t, 40, 70),
	} {
		out, err := Convert(data, 80, 30)
		if err != nil {
			t.Fatalf("%s: Convert: %v", name, err)
		}
		g, err := gif.DecodeAll(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("%s: decode output: %v", name, err)
		}
		if len(g.Image) != 1 {
			t.Fatalf("%s: expected 1 frame, got %d", name, len(g.Image))
		}
		in, _, _ := image.DecodeConfig(bytes.NewReader(data))
		b := g.Image[0].Bounds()
		if b.Dx() != in.Width || b.Dy() != in.Height {
			t.Fatalf("%s: small image must keep size, got %v", name, b)
		}
	}
}

func TestConvert_StaticLarge_FitsWithinBox(t *testing.T) {
	out, err := Convert(pngBytes(t, 2048, 1000), 50, 0)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	cfg, err := gif.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if cfg.Width > StaticMaxDim || cfg.Height > StaticMaxDim {
		t.Fatalf("output %dx%d exceeds %d", cfg.Width, cfg.Height, StaticMaxDim)
	}
	if cfg.Width != 1024 || cfg.Height != 500 {
		t.Fatalf("aspect ratio not preserved: %dx%d", cfg.Width, cfg.Height)
	}
	if pal, ok := cfg.ColorModel.(color.Palette); !ok || len(pal) > PaletteSize(50) {
		t.Fatalf("palette missing or larger than quality bound: %v", cfg.ColorModel)
	}
}

func TestConvert_Animated_CapsFramesKeepsOrderAndSize(t *testing.T) {
	src := animatedGIF(t, 40, 600, 300, 0)
	out, err := Convert(src, 80, 30)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	g, err := gif.DecodeAll(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(g.Image) != 30 {
		t.Fatalf("expected 30 frames, got %d", len(g.Image))
	}
	if g.LoopCount != 0 {
		t.Fatalf("expected infinite loop (0), got %d", g.LoopCount)
	}
	for i, fr := range g.Image {
		b := fr.Bounds()
		if b.Dx() > FrameMaxDim || b.Dy() > FrameMaxDim {
			t.Fatalf("frame %d is %v, exceeds %d", i, b, FrameMaxDim)
		}
		if g.Delay[i] != DefaultFrameDelay {
			t.Fatalf("frame %d delay %d; want default %d", i, g.Delay[i], DefaultFrameDelay)
		}
	}

	// Frames are solid colors; compare the center pixel to the source order.
	orig, _ := gif.DecodeAll(bytes.NewReader(src))
	for i := range g.Image {
		want := orig.Image[i].At(0, 0)
		got := g.Image[i].At(g.Image[i].Bounds().Dx()/2, g.Image[i].Bounds().Dy()/2)
		if !closeColor(want, got) {
			t.Fatalf("frame %d color %v does not match source %v", i, got, want)
		}
	}
}

func TestConvert_Animated_FewerFramesThanCap(t *testing.T) {
	out, err := Convert(animatedGIF(t, 3, 20, 20, 7), 80, 30)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	g, _ := gif.DecodeAll(bytes.NewReader(out))
	if len(g.Image) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(g.Image))
	}
	for i, d := range g.Delay {
		if d != 7 {
			t.Fatalf("frame %d delay %d; want 7", i, d)
		}
	}
}

func TestConvert_FailureSentinels(t *testing.T) {
	good := pngBytes(t, 8, 8)
	cases := map[string][]byte{
		"empty":           nil,
		"garbage":         []byte("definitely not an image"),
		"truncated":       good[:len(good)/2],
		"gif header only": []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00"),
	}
	for name, data := range cases {
		out, err := Convert(data, 80, 30)
		if err == nil || out != nil {
			t.Fatalf("%s: expected failure, got %d bytes, err=%v", name, len(out), err)
		}
		if !errors.Is(err, ErrDecode) && !errors.Is(err, ErrNoFrames) {
			t.Fatalf("%s: unexpected error kind: %v", name, err)
		}
	}
}

func TestFitWithin_Portrait(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 900))
	got := fitWithin(img, 512)
	if got.Bounds().Dx() != 170 || got.Bounds().Dy() != 512 {
		t.Fatalf("unexpected size %v", got.Bounds())
	}
	if same := fitWithin(img, 1024); same != img {
		t.Fatalf("image within bounds must be returned unchanged")
	}
}

func closeColor(a, b color.Color) bool {
	ar, ag, ab, _ := a.RGBA()
	br, bg, bb, _ := b.RGBA()
	d := func(x, y uint32) uint32 {
		if x > y {
			return x - y
		}
		return y - x
	}
	const tol = 0x1800
	return d(ar, br) < tol && d(ag, bg) < tol && d(ab, bb) < tol
}
