package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fertility/cds/internal/platform/apperr"
	"github.com/fertility/cds/internal/platform/db"
)

type fixedCounter struct {
	n   int
	err error
}

func (f fixedCounter) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.n, f.err
}

func sources() []Source {
	return []Source{
		{"clinics", fixedCounter{n: 2}},
		{"patients", fixedCounter{n: 40}},
		{"cycles", fixedCounter{n: 55}},
		{"labResults", fixedCounter{n: 210}},
		{"predictions", fixedCounter{n: 17}},
	}
}

func TestService_Stats(t *testing.T) {
	pool := &db.PoolStats{TotalConns: 4, MaxConns: 20}
	svc := NewService(sources(), func() *db.PoolStats { return pool }, "gpt-4o-mini")

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"clinics": 2, "patients": 40, "cycles": 55, "labResults": 210, "predictions": 17,
	}, st.Counts)
	assert.Equal(t, pool, st.Pool)
	assert.Equal(t, "gpt-4o-mini", st.Model)
}

func TestService_Stats_CountFailure(t *testing.T) {
	srcs := append(sources(), Source{"documents", fixedCounter{err: apperr.Store("count documents", errors.New("boom"))}})
	svc := NewService(srcs, nil, "m")

	_, err := svc.Stats(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperr.Status(err))
}

func TestHandler_GetStats(t *testing.T) {
	h := NewHandler(NewService(sources(), nil, "m"))
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil), rec)

	require.NoError(t, h.GetStats(c))
	var body Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Counts, 5)
	assert.Nil(t, body.Pool)
}

func TestHandler_GetStats_Failure(t *testing.T) {
	h := NewHandler(NewService([]Source{{"patients", fixedCounter{err: errors.New("down")}}}, nil, "m"))
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := h.GetStats(c)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
	assert.Equal(t, "failed to gather statistics", httpErr.Message)
}
