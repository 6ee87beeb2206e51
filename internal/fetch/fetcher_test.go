package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeIsImage(t *testing.T) {
	cases := []struct {
		name   string
		status int
		ctype  string
		want   bool
	}{
		{"png 200", http.StatusOK, "image/png", true},
		{"uppercase type", http.StatusOK, "IMAGE/JPEG", true},
		{"html 200", http.StatusOK, "text/html; charset=utf-8", false},
		{"not found", http.StatusNotFound, "image/png", false},
		{"redirect target non-200", http.StatusNoContent, "image/png", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodHead {
					t.Errorf("expected HEAD, got %s", r.Method)
				}
				w.Header().Set("Content-Type", tc.ctype)
				w.WriteHeader(tc.status)
			})
			f := New(Options{})
			if got := f.ProbeIsImage(context.Background(), srv.URL+"/x.png"); got != tc.want {
				t.Fatalf("ProbeIsImage = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestProbeIsImage_TimeoutAndBadURL(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.Header().Set("Content-Type", "image/png")
	})
	f := New(Options{ProbeTimeout: 50 * time.Millisecond})
	if f.ProbeIsImage(context.Background(), srv.URL) {
		t.Fatalf("expected false on timeout")
	}
	if f.ProbeIsImage(context.Background(), "://bad url") {
		t.Fatalf("expected false on malformed url")
	}
	if f.ProbeIsImage(context.Background(), "http://127.0.0.1:1/nothing") {
		t.Fatalf("expected false on connection failure")
	}
}

func TestDownload_Success(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, 20000) // spans several chunks
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	})
	f := New(Options{})
	got, err := f.Download(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("body mismatch: got %d bytes", len(got))
	}
}

func TestDownload_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.WriteHeader(http.StatusForbidden)
			},
			want: ErrBadStatus,
		},
		{
			name: "content type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html></html>"))
			},
			want: ErrNotImage,
		},
		{
			name: "declared length",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Header().Set("Content-Length", strconv.Itoa(4096))
				_, _ = w.Write(make([]byte, 4096))
			},
			want: ErrTooLarge,
		},
		{
			name: "streamed length",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				fl, _ := w.(http.Flusher)
				// No Content-Length: chunked transfer.
				for i := 0; i < 4; i++ {
					_, _ = w.Write(make([]byte, 1024))
					if fl != nil {
						fl.Flush()
					}
				}
			},
			want: ErrTooLarge,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, tc.handler)
			f := New(Options{})
			_, err := f.DownloadWithLimit(context.Background(), srv.URL, 2048, time.Second)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDownload_Timeout(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	f := New(Options{DownloadTimeout: 50 * time.Millisecond})
	_, err := f.Download(context.Background(), srv.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	f := New(Options{})
	if f.MaxBytes() != DefaultMaxBytes || f.probeTimeout != DefaultProbeTimeout || f.downloadTimeout != DefaultDownloadTimeout {
		t.Fatalf("defaults not applied: %+v", f)
	}
}
