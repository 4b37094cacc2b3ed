package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/iradukundapaci/communiserver-sub002/apps/api/echo"
	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
	cachesvc "github.com/iradukundapaci/communiserver-sub002/services/cache"
	logsvc "github.com/iradukundapaci/communiserver-sub002/services/logger"
	pdfsvc "github.com/iradukundapaci/communiserver-sub002/services/pdf"
	spreadsheetsvc "github.com/iradukundapaci/communiserver-sub002/services/spreadsheet"
	testutil "github.com/iradukundapaci/communiserver-sub002/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantData interface{}
}

type testApp struct {
	env     *testutil.Env
	server  echoapi.Server
	storage *fakeStorage
	seq     int64
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	env := testutil.NewEnv()
	storage := new(fakeStorage)
	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           env.Conf,
		Logger:         logsvc.NewNopLogger(),
		Validate:       env.Validate,
		Translator:     env.Translator,
		UserSvc:        env.UserSvc,
		LocationSvc:    env.LocationSvc,
		ActivitySvc:    env.ActivitySvc,
		AnalyticsSvc:   env.AnalyticsSvc,
		SettingSvc:     env.SettingSvc,
		Denylist:       cachesvc.NewMemoryDenylist(),
		Storage:        storage,
		PDF:            pdfsvc.NewRenderer(),
		XLSX:           spreadsheetsvc.NewRenderer(),
		DisableReqLogs: true,
	})
	return &testApp{env: env, server: server, storage: storage}
}

func (app *testApp) systemToken() string {
	return app.env.Conf.Server.SystemToken
}

func (app *testApp) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.([]byte); ok {
			buf.Write(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

// createUser stores an active user with the given role; the email and phone are unique per app.
func (app *testApp) createUser(t *testing.T, role permission.Role) user.User {
	t.Helper()
	n := atomic.AddInt64(&app.seq, 1)
	return testutil.CreateUser(
		t, app.env.UserRepo,
		fmt.Sprintf("User %d", n),
		fmt.Sprintf("user%d@test.rw", n),
		fmt.Sprintf("+2507880%05d", n),
		testutil.Password, role, true,
	)
}

func (app *testApp) login(t *testing.T, login, pwd string) echoapi.TokenResponse {
	t.Helper()
	rec := app.do(http.MethodPost, "/api/v1/auth/login", "", echoapi.LoginRequest{Login: login, Password: pwd})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tokens echoapi.TokenResponse
	decode(t, rec, &tokens)
	return tokens
}

// userWithToken creates a user with role and logs them in.
func (app *testApp) userWithToken(t *testing.T, role permission.Role) (user.User, string) {
	t.Helper()
	usr := app.createUser(t, role)
	return usr, app.login(t, usr.Email, testutil.Password).AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	want, err := json.Marshal(tt.wantData)
	require.NoError(t, err)
	ok, err := jsonBytesEqual(rec.Body.Bytes(), want)
	require.NoError(t, err, rec.Body.String())
	assert.True(t, ok, "data = %s; wantData %s", rec.Body.String(), want)
}

// fakeStorage records uploads in memory.
type fakeStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *fakeStorage) Upload(_ context.Context, filename, contentType string, r io.Reader, size int64) (core.UploadedFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.UploadedFile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	key := fmt.Sprintf("evidence/%d-%s", len(s.files)+1, filename)
	s.files[key] = data
	return core.UploadedFile{
		Key:         key,
		URL:         "https://files.test.rw/" + key,
		ContentType: contentType,
		Size:        size,
	}, nil
}
