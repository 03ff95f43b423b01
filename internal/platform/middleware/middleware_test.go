package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fertility/cds/internal/platform/auth"
)

func TestRequestID_Generated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	h := RequestID()(func(c echo.Context) error {
		seen, _ = c.Get("request_id").(string)
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}
	if seen == "" {
		t.Fatal("expected request_id in context")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("expected response header %q, got %q", seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_Propagated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if err := h(c); err != nil {
		t.Fatal(err)
	}
	if rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("expected propagated id, got %q", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_RecordsStatusFromHTTPError(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := Logger(logger)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	})
	_ = h(c)

	out := buf.String()
	if !strings.Contains(out, `"status":404`) {
		t.Errorf("expected status 404 in log, got %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected warn level, got %s", out)
	}
}

func TestLogger_ServerErrorLoggedAtError(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	h := Logger(logger)(func(c echo.Context) error { return errors.New("boom") })
	_ = h(c)

	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("expected error level, got %s", buf.String())
	}
}

type countingObserver map[string]int

func (o countingObserver) ObservePanic(route string) { o[route]++ }

func TestRecovery(t *testing.T) {
	var logs bytes.Buffer
	obs := countingObserver{}
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/consultations", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, "user-7"))
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/consultations")

	h := Recovery(zerolog.New(&logs), obs)(func(c echo.Context) error {
		panic("nil map write")
	})
	err := h(c)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %T", err)
	}
	if he.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", he.Code)
	}
	if he.Message != "internal server error" {
		t.Errorf("panic value leaked to client: %v", he.Message)
	}
	if obs["/api/v1/consultations"] != 1 {
		t.Errorf("expected one observed panic, got %v", obs)
	}
	for _, want := range []string{`"route":"/api/v1/consultations"`, `"user_id":"user-7"`, `"method":"POST"`, "nil map write"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("expected log to contain %s, got %s", want, logs.String())
		}
	}
}

func TestRecovery_CommittedResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	h := Recovery(zerolog.Nop())(func(c echo.Context) error {
		c.Response().WriteHeader(http.StatusOK)
		panic("after write")
	})
	if err := h(c); err != nil {
		t.Errorf("expected nil error once the response is committed, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status to stay 200, got %d", rec.Code)
	}
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", r)
		}
	}()
	_ = Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic(http.ErrAbortHandler)
	})(c)
}

func TestSecurityHeaders(t *testing.T) {
	mw := SecurityHeaders(DefaultSecurityHeadersConfig())
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	tests := []struct {
		name    string
		path    string
		proto   string
		hsts    bool
		noStore bool
	}{
		{"api over http", "/api/v1/patients", "", false, true},
		{"api behind tls proxy", "/api/v1/patients", "https", true, true},
		{"health", "/health", "https", true, false},
		{"metrics", "/metrics", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.proto != "" {
				req.Header.Set(echo.HeaderXForwardedProto, tt.proto)
			}
			rec := httptest.NewRecorder()
			if err := mw(ok)(echo.New().NewContext(req, rec)); err != nil {
				t.Fatal(err)
			}
			if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("expected nosniff")
			}
			if got := rec.Header().Get("Strict-Transport-Security") != ""; got != tt.hsts {
				t.Errorf("HSTS present = %v, want %v", got, tt.hsts)
			}
			if got := rec.Header().Get("Cache-Control") == "no-store"; got != tt.noStore {
				t.Errorf("no-store = %v, want %v", got, tt.noStore)
			}
		})
	}
}

func TestSecurityHeaders_HSTSDisabled(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	req.Header.Set(echo.HeaderXForwardedProto, "https")
	rec := httptest.NewRecorder()

	h := SecurityHeaders(SecurityHeadersConfig{NoStorePrefix: "/api/"})(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(echo.New().NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if v := rec.Header().Get("Strict-Transport-Security"); v != "" {
		t.Errorf("expected no HSTS header, got %q", v)
	}
}

func TestBodyLimit_ContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 2048)))
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	h := BodyLimit("1K")(func(c echo.Context) error {
		called = true
		return nil
	})
	err := h(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
	if called {
		t.Error("handler should not run")
	}
}

func TestBodyLimit_StreamWithoutLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 2048)))
	req.ContentLength = -1
	c := e.NewContext(req, httptest.NewRecorder())

	var readErr error
	h := BodyLimit("1K")(func(c echo.Context) error {
		_, readErr = io.ReadAll(c.Request().Body)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}
	if readErr == nil {
		t.Error("expected read error past the limit")
	}
}

func TestBodyLimit_UnderLimit(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"hi"}`))
	c := e.NewContext(req, httptest.NewRecorder())

	var body []byte
	h := BodyLimit("1K")(func(c echo.Context) error {
		var err error
		body, err = io.ReadAll(c.Request().Body)
		return err
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"message":"hi"}` {
		t.Errorf("unexpected body %q", body)
	}
}

func TestParseLimit(t *testing.T) {
	tests := map[string]int64{
		"1M":    1 << 20,
		"512K":  512 << 10,
		"2G":    2 << 30,
		"100":   100,
		"64kb":  64 << 10,
		"bogus": 1 << 20,
		"":      1 << 20,
	}
	for in, want := range tests {
		if got := parseLimit(in); got != want {
			t.Errorf("parseLimit(%q) = %d, want %d", in, got, want)
		}
	}
}
