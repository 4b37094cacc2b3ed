package echoapi_test

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iradukundapaci/communiserver-sub002/core/analytics"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	testutil "github.com/iradukundapaci/communiserver-sub002/tests"
)

func TestAnalyticsAPI(t *testing.T) {
	app := newTestApp(t)
	_, adminToken := app.userWithToken(t, permission.RoleAdmin)
	_, isiboToken := app.userWithToken(t, permission.RoleIsiboLeader)
	testutil.CreateHierarchy(t, app.env.LocationSvc, "one")

	runHTTPTests(t, app, []httpTest{
		{
			name:     "no permission",
			method:   http.MethodGet,
			path:     "/api/v1/analytics/overview",
			token:    isiboToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "invalid period",
			method:   http.MethodGet,
			path:     "/api/v1/analytics/tasks?period=2w",
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: map[string]string{"period": "period must be one of 7d, 30d, 90d or 1y"},
		},
		{
			name:     "start without end",
			method:   http.MethodGet,
			path:     "/api/v1/analytics/reports?start=2025-01-01",
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "reversed range",
			method:   http.MethodGet,
			path:     "/api/v1/analytics/timeseries?start=2025-02-01&end=2025-01-01",
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "range too long",
			method:   http.MethodGet,
			path:     "/api/v1/analytics/timeseries?start=0001-01-01&end=9999-12-31",
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: map[string]string{"end": "range cannot span more than 366 days"},
		},
	})

	t.Run("users", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/v1/analytics/users", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var stats analytics.UserStats
		decode(t, rec, &stats)
		assert.Equal(t, 2, stats.Total)
		assert.Equal(t, 1, stats.ByRole[permission.RoleAdmin])
		assert.Equal(t, 1, stats.ByRole[permission.RoleIsiboLeader])
	})

	t.Run("leadership", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/v1/analytics/leadership", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var stats analytics.LeadershipStats
		decode(t, rec, &stats)
		require.Len(t, stats.Levels, len(location.LeaderLevels))
		for _, lvl := range stats.Levels {
			assert.Equal(t, 1, lvl.Total, lvl.Level)
			assert.Zero(t, lvl.WithLeader, lvl.Level)
		}
		assert.Zero(t, stats.Overall)
	})

	t.Run("time series covers the period", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/v1/analytics/timeseries?period=7d", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var points []analytics.SeriesPoint
		decode(t, rec, &points)
		assert.Len(t, points, 7)
	})

	t.Run("overview", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/v1/analytics/overview?start=2025-01-01&end=2025-01-31", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var o analytics.Overview
		decode(t, rec, &o)
		assert.Equal(t, "2025-01-01", o.Range.Start.Format("2006-01-02"))
		assert.Len(t, o.TimeSeries, 31)
		assert.Equal(t, 2, o.Users.Total)
		assert.Zero(t, o.Tasks.Total)
	})
}

func TestAnalyticsAPI_export(t *testing.T) {
	app := newTestApp(t)
	_, leaderToken := app.userWithToken(t, permission.RoleVillageLeader)
	_, isiboToken := app.userWithToken(t, permission.RoleIsiboLeader)

	rec := app.do(http.MethodGet, "/api/v1/analytics/export.pdf", isiboToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	tests := []struct {
		path        string
		contentType string
		magic       []byte
		ext         string
	}{
		{"/api/v1/analytics/export.pdf?period=7d", "application/pdf", []byte("%PDF"), ".pdf"},
		{
			"/api/v1/analytics/export.xlsx?period=90d",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			[]byte("PK"),
			".xlsx",
		},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			rec := app.do(http.MethodGet, tt.path, leaderToken, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.contentType, rec.Header().Get(echo.HeaderContentType))
			assert.Regexp(t, `^attachment; filename="analytics-\d{8}-\d{6}\`+tt.ext+`"$`,
				rec.Header().Get(echo.HeaderContentDisposition))
			assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), tt.magic))
		})
	}

	rec = app.do(http.MethodGet, "/api/v1/analytics/export.xlsx?period=3d", leaderToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
