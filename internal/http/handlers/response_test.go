package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func envelopeRouter(rid string, lg *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", rid)
		if lg != nil {
			c.Set("logger", lg)
		}
		c.Next()
	})
	return r
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
	return resp
}

func TestFail_ServerErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	lg := zerolog.New(&buf)
	r := envelopeRouter("rid-500", &lg)
	r.GET("/boom", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "could not load stats")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	resp := decodeEnvelope(t, w)
	if resp.RequestID != "rid-500" || resp.Code != ErrCodeStatsFailed || resp.Message != "could not load stats" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), `"route":"/boom"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}
}

func TestFail_ClientErrorNotLogged_AndOK(t *testing.T) {
	var buf bytes.Buffer
	lg := zerolog.New(&buf)
	r := envelopeRouter("rid-404", &lg)
	r.GET("/missing", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "guild not found")
	})
	r.GET("/ok", func(c *gin.Context) {
		ok(c, http.StatusOK, gin.H{"users": 2})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	if resp := decodeEnvelope(t, w); resp.RequestID != "rid-404" || resp.Code != ErrCodeNotFound {
		t.Fatalf("unexpected 404 body: %+v", resp)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx must not be logged by fail, got: %s", buf.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"users":2`) {
		t.Fatalf("unexpected ok response: %d %s", w.Code, w.Body.String())
	}
}
