package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
	testutil "github.com/iradukundapaci/communiserver-sub002/tests"
)

func newUser(names, email, phone string) user.NewUser {
	return user.NewUser{
		Names:           names,
		Email:           email,
		Phone:           phone,
		Password:        testutil.Password,
		PasswordConfirm: testutil.Password,
	}
}

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	nu := newUser(" Jean Mugisha ", " JEAN@test.rw ", "+250788000001")
	require.NoError(t, nu.Validate(ctx, env.Validate, env.UserSvc))
	usr, err := env.UserSvc.Create(ctx, nu)
	require.NoError(t, err)

	assert.NotEmpty(t, usr.ID)
	assert.Equal(t, "jean@test.rw", usr.Email)
	assert.Equal(t, permission.RoleCitizen, usr.Role)
	assert.True(t, usr.IsActive)
	assert.False(t, usr.IsVerified())
	assert.NoError(t, usr.CheckPassword(testutil.Password))
	require.NotNil(t, usr.Profile)
	assert.Equal(t, "Jean Mugisha", usr.Profile.Names)
	assert.Empty(t, usr.Profile.Positions)

	t.Run("explicit role", func(t *testing.T) {
		nu := newUser("Aline", "aline@test.rw", "+250788000002")
		nu.Role = "village_leader"
		require.NoError(t, nu.Validate(ctx, env.Validate, env.UserSvc))
		usr, err := env.UserSvc.Create(ctx, nu)
		require.NoError(t, err)
		assert.Equal(t, permission.RoleVillageLeader, usr.Role)
	})

	t.Run("email taken", func(t *testing.T) {
		nu := newUser("Other", "Jean@Test.rw", "+250788000009")
		err := nu.Validate(ctx, env.Validate, env.UserSvc)
		var cerr *core.ConflictError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "email", cerr.Field)
	})

	t.Run("phone taken", func(t *testing.T) {
		nu := newUser("Other", "other@test.rw", "+250788000001")
		err := nu.Validate(ctx, env.Validate, env.UserSvc)
		var cerr *core.ConflictError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "phone", cerr.Field)
	})

	t.Run("invalid input", func(t *testing.T) {
		nu := newUser("", "not-an-email", "12")
		nu.Role = "KING"
		nu.PasswordConfirm = "other"
		err := nu.Validate(ctx, env.Validate, env.UserSvc)
		var verrs validator.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		assert.Subset(t, fields, []string{"names", "email", "phone", "role", "passwordConfirm"})
	})

	t.Run("weak password", func(t *testing.T) {
		nu := newUser("Eric", "eric@test.rw", "+250788000003")
		nu.Password, nu.PasswordConfirm = "12345678", "12345678"
		err := nu.Validate(ctx, env.Validate, env.UserSvc)
		var verrs validator.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "password", verrs[0].Field())
	})
}

func TestService_Register(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	nu := newUser("Jean", "jean@test.rw", "+250788000001")
	nu.Role = string(permission.RoleAdmin)
	usr, err := env.UserSvc.Register(ctx, nu)
	require.NoError(t, err)
	assert.Equal(t, permission.RoleCitizen, usr.Role)

	sent := env.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "jean@test.rw", sent[0].To[0].Address)
	assert.Equal(t, "verification", sent[0].TemplateName)
	assert.Contains(t, sent[0].TextContent, testutil.VerificationCode)
}

func TestService_Verify(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	usr, err := env.UserSvc.Register(ctx, newUser("Jean", "jean@test.rw", "+250788000001"))
	require.NoError(t, err)

	_, err = env.UserSvc.Verify(ctx, "jean@test.rw", "000000")
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, user.ErrInvalidCode, verr.Err)

	_, err = env.UserSvc.Verify(ctx, "nobody@test.rw", testutil.VerificationCode)
	require.ErrorAs(t, err, &verr)

	verified, err := env.UserSvc.Verify(ctx, " JEAN@test.rw", testutil.VerificationCode)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified())

	// verifying again is harmless
	again, err := env.UserSvc.Verify(ctx, "jean@test.rw", "999999")
	require.NoError(t, err)
	assert.Equal(t, verified.VerifiedAt, again.VerifiedAt)

	err = env.UserSvc.RequestVerification(ctx, "jean@test.rw")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, user.ErrAlreadyVerified, verr.Err)

	_, err = env.UserRepo.GetVerification(ctx, usr.ID, testutil.VerificationCode)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Verify_expired(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	usr, err := env.UserSvc.Create(ctx, newUser("Jean", "jean@test.rw", "+250788000001"))
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	_, err = env.UserRepo.CreateVerification(ctx, user.Verification{
		UserID: usr.ID, Code: "654321", ExpiresAt: past, CreatedAt: past.Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = env.UserSvc.Verify(ctx, "jean@test.rw", "654321")
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, user.ErrInvalidCode, verr.Err)

	// a new request replaces the stale code
	require.NoError(t, env.UserSvc.RequestVerification(ctx, "jean@test.rw"))
	_, err = env.UserRepo.GetVerification(ctx, usr.ID, "654321")
	assert.True(t, core.IsNotFound(err))

	n, err := env.UserSvc.PurgeExpiredVerifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = env.UserSvc.Verify(ctx, "jean@test.rw", testutil.VerificationCode)
	assert.NoError(t, err)
}

func TestService_PurgeExpiredVerifications(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Jean", "jean@test.rw", "+250788000001", testutil.Password, permission.RoleCitizen, true)

	now := time.Now().UTC()
	for i, expiresAt := range []time.Time{now.Add(-2 * time.Hour), now.Add(-time.Minute), now.Add(time.Hour)} {
		_, err := env.UserRepo.CreateVerification(ctx, user.Verification{
			UserID: usr.ID, Code: string(rune('1' + i)), ExpiresAt: expiresAt, CreatedAt: expiresAt.Add(-15 * time.Minute),
		})
		require.NoError(t, err)
	}

	n, err := env.UserSvc.PurgeExpiredVerifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = env.UserRepo.GetVerification(ctx, usr.ID, "3")
	assert.NoError(t, err)
}

func TestService_Update(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	jean := testutil.CreateUser(t, env.UserRepo, "Jean", "jean@test.rw", "+250788000001", testutil.Password, permission.RoleCitizen, true)
	testutil.CreateUser(t, env.UserRepo, "Aline", "aline@test.rw", "+250788000002", testutil.Password, permission.RoleCitizen, true)

	inactive := false
	uu := user.UpdateUser{Names: "Jean Mugisha", Role: "isibo_leader", IsActive: &inactive}
	require.NoError(t, uu.Validate(ctx, jean, env.Validate, env.UserSvc))
	usr, err := env.UserSvc.Update(ctx, jean.ID, uu)
	require.NoError(t, err)
	assert.Equal(t, "jean@test.rw", usr.Email)
	assert.Equal(t, permission.RoleIsiboLeader, usr.Role)
	assert.False(t, usr.IsActive)
	require.NotNil(t, usr.Profile)
	assert.Equal(t, "Jean Mugisha", usr.Profile.Names)

	uu = user.UpdateUser{Email: "aline@test.rw"}
	err = uu.Validate(ctx, usr, env.Validate, env.UserSvc)
	assert.True(t, core.IsConflict(err))

	pwd := "N3w-Passw0rd!"
	uu = user.UpdateUser{Password: pwd, PasswordConfirm: pwd}
	require.NoError(t, uu.Validate(ctx, usr, env.Validate, env.UserSvc))
	usr, err = env.UserSvc.Update(ctx, jean.ID, uu)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword(pwd))

	_, err = env.UserSvc.Update(ctx, "missing", user.UpdateUser{})
	assert.True(t, core.IsNotFound(err))
}

func TestService_Query(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	testutil.CreateUser(t, env.UserRepo, "Jean Mugisha", "jean@test.rw", "+250788000001", "", permission.RoleCitizen, true, base)
	testutil.CreateUser(t, env.UserRepo, "Aline Uwase", "aline@test.rw", "+250788000002", "", permission.RoleCellLeader, true, base.Add(time.Minute))
	testutil.CreateUser(t, env.UserRepo, "Eric Habimana", "eric@test.rw", "+250788000003", "", permission.RoleCitizen, false, base.Add(2*time.Minute))

	page, err := env.UserSvc.Query(ctx, user.QueryFilter{Role: "citizen"}, core.PageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "eric@test.rw", page.Items[0].Email)

	active := true
	page, err = env.UserSvc.Query(ctx, user.QueryFilter{Role: "citizen", IsActive: &active}, core.PageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "jean@test.rw", page.Items[0].Email)

	page, err = env.UserSvc.Query(ctx, user.QueryFilter{}, core.PageQuery{Search: "uwase"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "aline@test.rw", page.Items[0].Email)
}

func TestService_Delete(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	jean := testutil.CreateUser(t, env.UserRepo, "Jean", "jean@test.rw", "+250788000001", testutil.Password, permission.RoleCitizen, true)

	require.NoError(t, env.UserSvc.Delete(ctx, jean.ID))
	_, err := env.UserSvc.GetByID(ctx, jean.ID)
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsNotFound(env.UserSvc.Delete(ctx, jean.ID)))

	// the email is free again
	_, err = env.UserSvc.Create(ctx, newUser("Jean", "jean@test.rw", "+250788000001"))
	assert.NoError(t, err)
}

func TestService_GetByLogin(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	jean := testutil.CreateUser(t, env.UserRepo, "Jean", "jean@test.rw", "+250788000001", testutil.Password, permission.RoleCitizen, true)

	for _, login := range []string{"jean@test.rw", " JEAN@TEST.RW ", "+250788000001"} {
		usr, err := env.UserSvc.GetByLogin(ctx, login)
		require.NoError(t, err, login)
		assert.Equal(t, jean.ID, usr.ID)
	}
	_, err := env.UserSvc.GetByLogin(ctx, "nobody@test.rw")
	assert.True(t, core.IsNotFound(err))
}

func TestService_RefreshToken(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	jean := testutil.CreateUser(t, env.UserRepo, "Jean", "jean@test.rw", "+250788000001", testutil.Password, permission.RoleCitizen, true)

	token, err := env.UserSvc.IssueRefreshToken(ctx, jean)
	require.NoError(t, err)
	require.Len(t, token, 64)

	stored, err := env.UserSvc.GetByID(ctx, jean.ID)
	require.NoError(t, err)
	assert.NotEqual(t, token, stored.RefreshToken, "only the hash is stored")

	usr, err := env.UserSvc.GetByRefreshToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, jean.ID, usr.ID)

	// rotation invalidates the previous token
	next, err := env.UserSvc.IssueRefreshToken(ctx, usr)
	require.NoError(t, err)
	_, err = env.UserSvc.GetByRefreshToken(ctx, token)
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, env.UserSvc.RevokeRefreshToken(ctx, jean.ID))
	_, err = env.UserSvc.GetByRefreshToken(ctx, next)
	assert.True(t, core.IsNotFound(err))
	_, err = env.UserSvc.GetByRefreshToken(ctx, "")
	assert.True(t, core.IsNotFound(err))
}

func TestService_PasswordReset(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	jean := testutil.CreateUser(t, env.UserRepo, "Jean", "jean@test.rw", "+250788000001", testutil.Password, permission.RoleCitizen, true)
	_, err := env.UserSvc.IssueRefreshToken(ctx, jean)
	require.NoError(t, err)

	require.NoError(t, env.UserSvc.RequestPasswordReset(ctx, "jean@test.rw"))
	sent := env.Mail.SentMessages()
	require.Len(t, sent, 1)
	data := sent[0].TemplateData.(map[string]interface{})
	uid, token := data["UID"].(string), data["Token"].(string)
	assert.Equal(t, user.EncodeUID(jean), uid)

	pwd := "Fresh-Start9!"
	bad := user.ResetUserPassword{UID: uid, Token: "nope", Password: pwd, PasswordConfirm: pwd}
	var verr *core.ValidationError
	require.ErrorAs(t, env.UserSvc.ResetPassword(ctx, bad), &verr)
	assert.Equal(t, "token", verr.Fields[0].Field)

	bad = user.ResetUserPassword{UID: "%%%", Token: token, Password: pwd, PasswordConfirm: pwd}
	require.ErrorAs(t, env.UserSvc.ResetPassword(ctx, bad), &verr)
	assert.Equal(t, "uid", verr.Fields[0].Field)

	data2 := user.ResetUserPassword{UID: uid, Token: token, Password: pwd, PasswordConfirm: pwd}
	require.NoError(t, data2.Validate(env.Validate))
	require.NoError(t, env.UserSvc.ResetPassword(ctx, data2))

	usr, err := env.UserSvc.GetByID(ctx, jean.ID)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword(pwd))
	assert.Empty(t, usr.RefreshToken)

	// the token is bound to the old password
	assert.Error(t, env.UserSvc.ResetPassword(ctx, data2))

	inactive := testutil.CreateUser(t, env.UserRepo, "Eric", "eric@test.rw", "+250788000003", testutil.Password, permission.RoleCitizen, false)
	assert.True(t, core.IsNotFound(env.UserSvc.RequestPasswordReset(ctx, inactive.Email)))
}

func TestService_Profiles(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	jean := testutil.CreateUser(t, env.UserRepo, "Jean", "jean@test.rw", "+250788000001", testutil.Password, permission.RoleCitizen, true)

	profileID, err := env.UserSvc.EnsureProfile(ctx, jean.ID)
	require.NoError(t, err)
	assert.Equal(t, jean.Profile.ID, profileID)

	require.NoError(t, env.UserSvc.SetPosition(ctx, profileID, location.LevelVillage, "v1"))
	require.NoError(t, env.UserSvc.SetPosition(ctx, profileID, location.LevelVillage, "v2"))
	// a stale location id leaves the position alone
	require.NoError(t, env.UserSvc.ClearPosition(ctx, profileID, location.LevelVillage, "v1"))

	prof, err := env.UserSvc.GetProfile(ctx, jean.ID)
	require.NoError(t, err)
	assert.Equal(t, []user.Position{{Level: location.LevelVillage, LocationID: "v2"}}, prof.Positions)

	up := user.UpdateProfile{Names: "  Jean Mugisha "}
	require.NoError(t, up.Validate(env.Validate))
	prof, err = env.UserSvc.UpdateProfile(ctx, jean.ID, up)
	require.NoError(t, err)
	assert.Equal(t, "Jean Mugisha", prof.Names)

	assert.True(t, core.IsNotFound(env.UserSvc.UserExists(ctx, "missing")))
}
