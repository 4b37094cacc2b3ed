package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	"github.com/iradukundapaci/communiserver-sub002/core/setting"
)

func TestSettingAPI(t *testing.T) {
	app := newTestApp(t)
	_, adminToken := app.userWithToken(t, permission.RoleAdmin)
	_, leaderToken := app.userWithToken(t, permission.RoleCellLeader)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "no permission",
			method:   http.MethodGet,
			path:     "/api/v1/settings",
			token:    leaderToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "empty list",
			method:   http.MethodGet,
			path:     "/api/v1/settings",
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: []setting.Setting{},
		},
		{
			name:     "invalid name",
			method:   http.MethodPut,
			path:     "/api/v1/settings/bad-name",
			body:     setting.PutSetting{Value: "x"},
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown setting",
			method:   http.MethodGet,
			path:     "/api/v1/settings/umuganda_day",
			token:    adminToken,
			wantCode: http.StatusNotFound,
		},
	})

	// the path wins over the body
	rec := app.do(http.MethodPut, "/api/v1/settings/Umuganda_Day", adminToken, setting.PutSetting{Name: "other", Value: "last saturday"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s setting.Setting
	decode(t, rec, &s)
	assert.Equal(t, "umuganda_day", s.Name)
	assert.Equal(t, "last saturday", s.Value)

	rec = app.do(http.MethodPut, "/api/v1/settings/umuganda_day", adminToken, setting.PutSetting{Value: "first saturday"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(http.MethodGet, "/api/v1/settings", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var settings []setting.Setting
	decode(t, rec, &settings)
	require.Len(t, settings, 1)
	assert.Equal(t, "first saturday", settings[0].Value)

	rec = app.do(http.MethodDelete, "/api/v1/settings/umuganda_day", adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.do(http.MethodGet, "/api/v1/settings/umuganda_day", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
