// Package services – ConversionService
//
// This file implements the ConversionService, which turns a selected source
// image into a deliverable GIF. Sources whose file name already carries a
// .gif extension are passed through untouched; everything else is fetched
// (unless the caller already holds the bytes) and re-encoded. The service
// knows nothing about Discord: callers hand it a Source and deliver the
// Result however they like.
package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-gif-bot/internal/convert"
	"github.com/tbourn/go-gif-bot/internal/domain"
	"github.com/tbourn/go-gif-bot/internal/metrics"
)

// Downloader fetches source bytes for a URL.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// ConvertFunc encodes image bytes as GIF. convert.Convert satisfies it.
type ConvertFunc func(data []byte, quality, maxFrames int) ([]byte, error)

// Source is the image selected for conversion. Data, when set, is used
// instead of downloading URL.
type Source struct {
	URL      string
	FileName string
	FileSize int64
	Data     []byte
}

// Result is the deliverable produced for a Source.
type Result struct {
	// Data holds the GIF bytes. For a pass-through it is the caller's
	// original bytes, or nil when only a URL was supplied.
	Data []byte
	// FileName is the attachment name to deliver under.
	FileName string
	// URL is the original source URL (set for pass-through results).
	URL string
	// PassThrough reports that no conversion took place.
	PassThrough bool
	// ConversionType is the tag recorded in usage statistics.
	ConversionType string
	// SourceSize is the size of the source image in bytes, when known.
	SourceSize int64
}

// ConversionService glues the fetcher and the converter together.
type ConversionService struct {
	Fetcher   Downloader
	Encode    ConvertFunc
	Quality   int
	MaxFrames int
}

// NewConversionService returns a service using convert.Convert.
func NewConversionService(f Downloader, quality, maxFrames int) *ConversionService {
	return &ConversionService{
		Fetcher:   f,
		Encode:    convert.Convert,
		Quality:   quality,
		MaxFrames: maxFrames,
	}
}

// IsGIFName reports whether name carries a .gif extension, ignoring case
// and any query string.
func IsGIFName(name string) bool {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.EqualFold(path.Ext(name), ".gif")
}

// OutputName derives "<stem>_converted.gif" from a source file name.
func OutputName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		stem = "image"
	}
	return stem + "_converted.gif"
}

// Convert produces the deliverable for src.
func (s *ConversionService) Convert(ctx context.Context, src Source) (*Result, error) {
	tr := otel.Tracer("services/ConversionService")
	ctx, span := tr.Start(ctx, "Convert",
		trace.WithAttributes(
			attribute.String("source.name", src.FileName),
			attribute.Int64("source.size", src.FileSize),
		),
	)
	defer span.End()

	if src.URL == "" && len(src.Data) == 0 {
		return nil, ErrEmptySource
	}

	if IsGIFName(src.FileName) {
		metrics.Conversions.WithLabelValues(domain.ConversionPassthrough, "ok").Inc()
		span.SetAttributes(attribute.Bool("conversion.passthrough", true))
		size := src.FileSize
		if size == 0 {
			size = int64(len(src.Data))
		}
		return &Result{
			Data:           src.Data,
			FileName:       src.FileName,
			URL:            src.URL,
			PassThrough:    true,
			ConversionType: domain.ConversionPassthrough,
			SourceSize:     size,
		}, nil
	}

	start := time.Now()
	out, err := s.convert(ctx, src)
	metrics.ConversionDuration.WithLabelValues(domain.ConversionImageToGIF).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Conversions.WithLabelValues(domain.ConversionImageToGIF, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "convert")
		return nil, err
	}
	metrics.Conversions.WithLabelValues(domain.ConversionImageToGIF, "ok").Inc()
	return out, nil
}

func (s *ConversionService) convert(ctx context.Context, src Source) (*Result, error) {
	data := src.Data
	if len(data) == 0 {
		if s.Fetcher == nil {
			return nil, fmt.Errorf("download %s: no fetcher configured", src.URL)
		}
		var err error
		data, err = s.Fetcher.Download(ctx, src.URL)
		if err != nil {
			return nil, fmt.Errorf("download: %w", err)
		}
	}

	fn := s.Encode
	if fn == nil {
		fn = convert.Convert
	}
	gifData, err := fn(data, s.Quality, s.MaxFrames)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}

	size := src.FileSize
	if size == 0 {
		size = int64(len(data))
	}
	return &Result{
		Data:           gifData,
		FileName:       OutputName(src.FileName),
		URL:            src.URL,
		ConversionType: domain.ConversionImageToGIF,
		SourceSize:     size,
	}, nil
}
