// Package fetch validates and downloads remote source images.
//
// ProbeIsImage issues a HEAD request under a short timeout and never fails
// loudly. Download performs a GET under a longer timeout, rejects non-image
// responses and reads the body in fixed-size chunks so that an oversized
// response is abandoned as soon as it crosses the size ceiling.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-gif-bot/internal/metrics"
)

const (
	// DefaultProbeTimeout bounds ProbeIsImage.
	DefaultProbeTimeout = 5 * time.Second
	// DefaultDownloadTimeout bounds Download.
	DefaultDownloadTimeout = 30 * time.Second
	// DefaultMaxBytes is the download ceiling (25 MiB).
	DefaultMaxBytes int64 = 25 << 20

	chunkSize = 8 << 10
)

var (
	// ErrBadStatus is returned when the server answers with a non-200 status.
	ErrBadStatus = errors.New("unexpected response status")
	// ErrNotImage is returned when the response content type is not image/*.
	ErrNotImage = errors.New("response is not an image")
	// ErrTooLarge is returned when the body exceeds the size ceiling.
	ErrTooLarge = errors.New("image exceeds size limit")
)

// Options configures a Fetcher. Zero values fall back to the defaults.
type Options struct {
	ProbeTimeout    time.Duration
	DownloadTimeout time.Duration
	MaxBytes        int64
	Client          *http.Client
}

// Fetcher probes and downloads images over HTTP. It is safe for concurrent
// use.
type Fetcher struct {
	client          *http.Client
	probeTimeout    time.Duration
	downloadTimeout time.Duration
	maxBytes        int64
}

// New returns a Fetcher configured by opts.
func New(opts Options) *Fetcher {
	f := &Fetcher{
		client:          opts.Client,
		probeTimeout:    opts.ProbeTimeout,
		downloadTimeout: opts.DownloadTimeout,
		maxBytes:        opts.MaxBytes,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.probeTimeout <= 0 {
		f.probeTimeout = DefaultProbeTimeout
	}
	if f.downloadTimeout <= 0 {
		f.downloadTimeout = DefaultDownloadTimeout
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	return f
}

// MaxBytes reports the configured download ceiling.
func (f *Fetcher) MaxBytes() int64 { return f.maxBytes }

func isImageType(ct string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "image/")
}

// ProbeIsImage reports whether url answers a HEAD request with status 200
// and an image/* content type. Timeouts, transport errors and any other
// response all yield false.
func (f *Fetcher) ProbeIsImage(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		metrics.Fetches.WithLabelValues("probe", "error").Inc()
		return false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("image probe failed")
		metrics.Fetches.WithLabelValues("probe", "error").Inc()
		return false
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK && isImageType(resp.Header.Get("Content-Type"))
	if ok {
		metrics.Fetches.WithLabelValues("probe", "ok").Inc()
	} else {
		metrics.Fetches.WithLabelValues("probe", "rejected").Inc()
	}
	return ok
}

// Download fetches url with the configured ceiling and timeout.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, error) {
	return f.DownloadWithLimit(ctx, url, f.maxBytes, f.downloadTimeout)
}

// DownloadWithLimit fetches url, failing with ErrBadStatus, ErrNotImage or
// ErrTooLarge, or with a wrapped context error when timeout elapses. A
// declared Content-Length above maxBytes fails before the body is read.
func (f *Fetcher) DownloadWithLimit(ctx context.Context, url string, maxBytes int64, timeout time.Duration) ([]byte, error) {
	tr := otel.Tracer("fetch/Fetcher")
	ctx, span := tr.Start(ctx, "Download",
		trace.WithAttributes(attribute.Int64("fetch.max_bytes", maxBytes)),
	)
	defer span.End()

	if maxBytes <= 0 {
		maxBytes = f.maxBytes
	}
	if timeout <= 0 {
		timeout = f.downloadTimeout
	}

	data, outcome, err := f.download(ctx, url, maxBytes, timeout)
	metrics.Fetches.WithLabelValues("download", outcome).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	metrics.DownloadedBytes.Observe(float64(len(data)))
	span.SetAttributes(attribute.Int("fetch.bytes", len(data)))
	return data, nil
}

func (f *Fetcher) download(ctx context.Context, url string, maxBytes int64, timeout time.Duration) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "error", fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "error", fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "rejected", fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !isImageType(ct) {
		return nil, "rejected", fmt.Errorf("%w: %q", ErrNotImage, ct)
	}
	if resp.ContentLength > maxBytes {
		return nil, "too_large", fmt.Errorf("%w: declared %d > %d", ErrTooLarge, resp.ContentLength, maxBytes)
	}

	capHint := resp.ContentLength
	if capHint <= 0 || capHint > maxBytes {
		capHint = chunkSize
	}
	buf := make([]byte, 0, capHint)
	chunk := make([]byte, chunkSize)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			if int64(len(buf)+n) > maxBytes {
				return nil, "too_large", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
			}
			buf = append(buf, chunk[:n]...)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, "error", fmt.Errorf("read body: %w", rerr)
		}
	}
	return buf, "ok", nil
}
