package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/iradukundapaci/communiserver-sub002/apps/api/echo"
	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
	testutil "github.com/iradukundapaci/communiserver-sub002/tests"
)

func TestUserAPI_create(t *testing.T) {
	app := newTestApp(t)
	_, adminToken := app.userWithToken(t, permission.RoleAdmin)
	_, leaderToken := app.userWithToken(t, permission.RoleCellLeader)
	path := "/api/v1/users"

	newUser := user.NewUser{
		Names:           "Eric Habimana",
		Email:           "eric@test.rw",
		Phone:           "+250788555001",
		Role:            "isibo_leader",
		Password:        testutil.Password,
		PasswordConfirm: testutil.Password,
	}

	runHTTPTests(t, app, []httpTest{
		{
			name:     "no permission",
			method:   http.MethodPost,
			path:     path,
			body:     newUser,
			token:    leaderToken,
			wantCode: http.StatusForbidden,
			wantData: httpErr{Error: "permission denied"},
		},
		{
			name:   "invalid data",
			method: http.MethodPost,
			path:   path,
			body: user.NewUser{
				Email:           "not-an-email",
				Phone:           "123",
				Role:            "mayor",
				Password:        testutil.Password,
				PasswordConfirm: "other",
			},
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
	})

	rec := app.do(http.MethodPost, path, adminToken, newUser)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var usr user.User
	decode(t, rec, &usr)
	assert.Equal(t, permission.RoleIsiboLeader, usr.Role)
	require.NotNil(t, usr.Profile)
	assert.Equal(t, "Eric Habimana", usr.Profile.Names)

	rec = app.do(http.MethodPost, path, adminToken, newUser)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUserAPI_query(t *testing.T) {
	app := newTestApp(t)
	_, adminToken := app.userWithToken(t, permission.RoleAdmin)
	_, citizenToken := app.userWithToken(t, permission.RoleCitizen)
	for i := 0; i < 3; i++ {
		app.createUser(t, permission.RoleIsiboLeader)
	}

	rec := app.do(http.MethodGet, "/api/v1/users", citizenToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodGet, "/api/v1/users?page=1&size=2", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page core.Page[user.User]
	decode(t, rec, &page)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 5, page.Meta.TotalItems)
	assert.Equal(t, 3, page.Meta.TotalPages)

	rec = app.do(http.MethodGet, "/api/v1/users?role=isibo_leader", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.Equal(t, 3, page.Meta.TotalItems)
	for _, u := range page.Items {
		assert.Equal(t, permission.RoleIsiboLeader, u.Role)
	}

	rec = app.do(http.MethodGet, "/api/v1/users?q=nothing-matches", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"items": [], "meta": {"totalItems": 0, "itemCount": 0, "itemsPerPage": 10, "totalPages": 0, "currentPage": 1}}`,
		rec.Body.String(),
	)
}

func TestUserAPI_detail(t *testing.T) {
	app := newTestApp(t)
	admin, adminToken := app.userWithToken(t, permission.RoleAdmin)
	citizen, citizenToken := app.userWithToken(t, permission.RoleCitizen)
	other := app.createUser(t, permission.RoleCitizen)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "citizen cannot see others",
			method:   http.MethodGet,
			path:     "/api/v1/users/" + other.ID,
			token:    citizenToken,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "citizen sees themselves",
			method:   http.MethodGet,
			path:     "/api/v1/users/" + citizen.ID,
			token:    citizenToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "citizen cannot update themselves here",
			method:   http.MethodPatch,
			path:     "/api/v1/users/" + citizen.ID,
			body:     user.UpdateUser{Names: "New Name"},
			token:    citizenToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "unknown id",
			method:   http.MethodGet,
			path:     "/api/v1/users/a0000000-0000-0000-0000-000000000000",
			token:    adminToken,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "admin cannot delete themselves",
			method:   http.MethodDelete,
			path:     "/api/v1/users/" + admin.ID,
			token:    adminToken,
			wantCode: http.StatusForbidden,
		},
	})

	t.Run("admin updates", func(t *testing.T) {
		inactive := false
		rec := app.do(http.MethodPatch, "/api/v1/users/"+other.ID, adminToken, user.UpdateUser{
			Role:     "house_representative",
			IsActive: &inactive,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		decode(t, rec, &usr)
		assert.Equal(t, permission.RoleHouseRepresentative, usr.Role)
		assert.False(t, usr.IsActive)
		assert.Equal(t, other.Email, usr.Email)
	})

	t.Run("admin deletes", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/v1/users/"+other.ID, adminToken, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = app.do(http.MethodGet, "/api/v1/users/"+other.ID, adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUserAPI_me(t *testing.T) {
	app := newTestApp(t)
	usr, token := app.userWithToken(t, permission.RoleCitizen)
	path := "/api/v1/users/me"

	rec := app.do(http.MethodPatch, path, token, map[string]interface{}{"role": "ADMIN"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(http.MethodPatch, path, token, user.UpdateUser{Names: " Jeanne Mukamana ", Phone: "+250788777000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got user.User
	decode(t, rec, &got)
	assert.Equal(t, usr.ID, got.ID)
	assert.Equal(t, "+250788777000", got.Phone)
	assert.Equal(t, usr.Email, got.Email)
	require.NotNil(t, got.Profile)
	assert.Equal(t, "Jeanne Mukamana", got.Profile.Names)

	rec = app.do(http.MethodPatch, path, app.systemToken(), user.UpdateUser{Names: "System"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPermissionAPI(t *testing.T) {
	app := newTestApp(t)
	_, token := app.userWithToken(t, permission.RoleIsiboLeader)

	rec := app.do(http.MethodGet, "/api/v1/roles", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []permission.Role
	decode(t, rec, &roles)
	assert.Equal(t, permission.Roles, roles)

	rec = app.do(http.MethodGet, "/api/v1/permissions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var perms echoapi.PermissionsResponse
	decode(t, rec, &perms)
	assert.Equal(t, permission.RoleIsiboLeader, perms.Role)
	assert.Equal(t, permission.Strings(permission.ForRole("ISIBO_LEADER")), perms.Permissions)

	rec = app.do(http.MethodGet, "/api/v1/roles/citizen/permissions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["view_activities"]`, rec.Body.String())

	rec = app.do(http.MethodGet, "/api/v1/roles/mayor/permissions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
