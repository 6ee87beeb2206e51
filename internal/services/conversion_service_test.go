package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/tbourn/go-gif-bot/internal/convert"
	"github.com/tbourn/go-gif-bot/internal/domain"
)

type stubFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *stubFetcher) Download(ctx context.Context, url string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestIsGIFName(t *testing.T) {
	cases := map[string]bool{
		"cat.gif":           true,
		"CAT.GIF":           true,
		"cat.gif?width=100": true,
		"cat.png":           false,
		"gif":               false,
		"archive.gif.png":   false,
		"":                  false,
	}
	for in, want := range cases {
		if got := IsGIFName(in); got != want {
			t.Fatalf("IsGIFName(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestOutputName(t *testing.T) {
	cases := map[string]string{
		"photo.png":      "photo_converted.gif",
		"my.photo.jpeg":  "my.photo_converted.gif",
		"noext":          "noext_converted.gif",
		"":               "image_converted.gif",
		"dir/inner.webp": "inner_converted.gif",
		".png":           "image_converted.gif",
	}
	for in, want := range cases {
		if got := OutputName(in); got != want {
			t.Fatalf("OutputName(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestConversion_PassThrough_BytesUnchanged(t *testing.T) {
	f := &stubFetcher{}
	called := false
	svc := &ConversionService{
		Fetcher: f,
		Encode: func([]byte, int, int) ([]byte, error) {
			called = true
			return nil, errors.New("must not be called")
		},
	}
	orig := []byte("GIF89a-original-bytes")

	res, err := svc.Convert(context.Background(), Source{URL: "https://cdn/x.gif", FileName: "x.GIF", FileSize: 21, Data: orig})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if called || f.calls != 0 {
		t.Fatalf("pass-through must skip fetch and convert (convert=%v fetch=%d)", called, f.calls)
	}
	if !res.PassThrough || res.ConversionType != domain.ConversionPassthrough {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !bytes.Equal(res.Data, orig) || res.URL != "https://cdn/x.gif" || res.FileName != "x.GIF" {
		t.Fatalf("pass-through must return the original deliverable: %+v", res)
	}
}

func TestConversion_DownloadsAndConverts(t *testing.T) {
	f := &stubFetcher{data: tinyPNG(t)}
	svc := NewConversionService(f, 80, 30)

	res, err := svc.Convert(context.Background(), Source{URL: "https://cdn/photo.png?x=1", FileName: "photo.png"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected one download, got %d", f.calls)
	}
	if res.PassThrough || res.ConversionType != domain.ConversionImageToGIF || res.FileName != "photo_converted.gif" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.SourceSize != int64(len(f.data)) {
		t.Fatalf("source size = %d; want %d", res.SourceSize, len(f.data))
	}
	if _, err := gif.DecodeAll(bytes.NewReader(res.Data)); err != nil {
		t.Fatalf("output is not a gif: %v", err)
	}
}

func TestConversion_UsesInlineData(t *testing.T) {
	f := &stubFetcher{err: errors.New("should not download")}
	svc := NewConversionService(f, 80, 30)
	res, err := svc.Convert(context.Background(), Source{FileName: "a.png", FileSize: 99, Data: tinyPNG(t)})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if f.calls != 0 || res.SourceSize != 99 {
		t.Fatalf("expected inline data to be used, calls=%d size=%d", f.calls, res.SourceSize)
	}
}

func TestConversion_Errors(t *testing.T) {
	svc := NewConversionService(&stubFetcher{err: context.DeadlineExceeded}, 80, 30)
	if _, err := svc.Convert(context.Background(), Source{URL: "https://x/y.png", FileName: "y.png"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}

	svc = NewConversionService(&stubFetcher{data: []byte("junk")}, 80, 30)
	if _, err := svc.Convert(context.Background(), Source{URL: "https://x/y.png", FileName: "y.png"}); !errors.Is(err, convert.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}

	if _, err := svc.Convert(context.Background(), Source{FileName: "y.png"}); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("expected ErrEmptySource, got %v", err)
	}
}
