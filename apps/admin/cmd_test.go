package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
	inmemdb "github.com/iradukundapaci/communiserver-sub002/storage/database/inmem"
	testutil "github.com/iradukundapaci/communiserver-sub002/tests"
)

func setup() (*commandLine, user.Repository) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	return &commandLine{usrRepo: repo, now: core.UTCNow}, repo
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		assert.EqualError(t, err, tt.wantErrStr)
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		if pwd == "" {
			return nil, nil
		}
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup()

	var ran []string
	runMigrationFunc = func(_ *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "isibo_members", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
	assert.Equal(t, []string{"up", "up-to", "down-to", "status", "create"}, ran)
}

func Test_commandLine_addUser(t *testing.T) {
	cli, repo := setup()
	existing := testutil.CreateUser(t, repo, "Old Names", "existing@test.rw", "+250788000001", "old",
		permission.RoleCitizen, false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "missing flags", args: []string{"adduser", "-email", "a@test.rw"}, wantErr: errHelp},
		{
			name:    "no password",
			args:    []string{"adduser", "-email", "a@test.rw", "-phone", "+250788000002", "-names", "Admin"},
			wantErr: errHelp,
		},
		{
			name:       "unknown role",
			args:       []string{"adduser", "-email", "a@test.rw", "-phone", "+250788000002", "-names", "Admin", "-role", "mayor"},
			extra:      extra{pwd: testutil.Password},
			wantErrStr: "\"mayor\": no such role",
		},
		{
			name:  "new admin",
			args:  []string{"adduser", "-email", " Admin@Test.rw ", "-phone", "+250788000002", "-names", "Admin"},
			extra: extra{pwd: testutil.Password},
		},
		{
			name: "existing user",
			args: []string{"adduser", "-email", existing.Email, "-phone", existing.Phone, "-names", "New Names",
				"-role", "village_leader"},
			extra: extra{pwd: testutil.Password},
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	ctx := context.Background()
	admin, err := repo.GetUser(ctx, user.GetFilter{Email: "admin@test.rw"})
	require.NoError(t, err)
	assert.Equal(t, permission.RoleAdmin, admin.Role)
	assert.True(t, admin.IsActive)
	assert.True(t, admin.IsVerified())
	assert.NoError(t, admin.CheckPassword(testutil.Password))
	require.NotNil(t, admin.Profile)
	assert.Equal(t, "Admin", admin.Profile.Names)

	updated, err := repo.GetUser(ctx, user.GetFilter{ID: existing.ID})
	require.NoError(t, err)
	assert.Equal(t, permission.RoleVillageLeader, updated.Role)
	assert.True(t, updated.IsActive)
	assert.NoError(t, updated.CheckPassword(testutil.Password))
	require.NotNil(t, updated.Profile)
	assert.Equal(t, existing.Profile.ID, updated.Profile.ID)
	assert.Equal(t, "New Names", updated.Profile.Names)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, repo := setup()
	usr := testutil.CreateUser(t, repo, "User", "awe@test.rw", "+250788000003", "mdr", permission.RoleCitizen, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "login but no password", args: []string{"resetpassword", "-login", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-login", "lol"}, extra: extra{pwd: "lol"}, wantErr: core.NewNotFoundError("user")},
		{name: "reset with email", args: []string{"resetpassword", "-login", usr.Email}, extra: extra{pwd: "lol"}},
		{name: "reset with phone", args: []string{"resetpassword", "-login", usr.Phone}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			tt.check(t, err)
			if err != nil {
				return
			}
			refreshed, err := repo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.False(t, bytes.Equal(refreshed.PasswordHash, usr.PasswordHash), "failed to update new password")
			assert.NoError(t, refreshed.CheckPassword(pwd))
			assert.Empty(t, refreshed.RefreshToken)
		})
	}
}
