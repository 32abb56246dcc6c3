package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/nfrund/classroom/internal/domain"
)

type memberDirectory map[string]domain.Member

func (d memberDirectory) Member(ctx context.Context, userID string) (domain.Member, error) {
	m, ok := d[userID]
	if !ok {
		return domain.Member{}, domain.ErrNotFound
	}
	return m, nil
}

func TestIdentify(t *testing.T) {
	dir := memberDirectory{
		"t1": {User: domain.User{ID: "t1", Username: "mrivera"}, Role: domain.RoleTeacher},
	}
	e := echo.New()
	e.GET("/whoami", func(c echo.Context) error {
		m, ok := MemberFrom(c)
		if !ok {
			return c.String(http.StatusOK, "anonymous")
		}
		return c.String(http.StatusOK, m.Username+":"+m.Role.String())
	}, Identify(dir))

	tests := []struct {
		name     string
		target   string
		header   string
		wantCode int
		wantBody string
	}{
		{name: "anonymous", target: "/whoami", wantCode: http.StatusOK, wantBody: "anonymous"},
		{name: "header", target: "/whoami", header: "t1", wantCode: http.StatusOK, wantBody: "mrivera:teacher"},
		{name: "query", target: "/whoami?userId=t1", wantCode: http.StatusOK, wantBody: "mrivera:teacher"},
		{name: "unknown", target: "/whoami?userId=ghost", wantCode: http.StatusForbidden, wantBody: "unknown user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(HeaderUserID, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	e := echo.New()
	e.GET("/ping", func(c echo.Context) error {
		FromContext(c.Request().Context()).Info("inside handler")
		return c.String(http.StatusOK, "pong")
	}, Logger(base))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), "inside handler")
	assert.Contains(t, buf.String(), "Request handled")
	assert.Contains(t, buf.String(), "status=200")
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}
