package sqlxrepos

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
)

var userRowColumns = []string{
	"id", "email", "phone", "password_hash", "role", "is_active", "refresh_token",
	"verified_at", "last_login", "created_at", "updated_at", "deleted_at",
}

func TestUserRepository_CheckUniqueness(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	excluded := newID()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT email, phone FROM users WHERE deleted_at IS NULL AND (email = $1 OR phone = $2) AND id NOT IN ($3)")).
		WithArgs("jean@test.rw", "+250788000001", excluded).
		WillReturnRows(sqlmock.NewRows([]string{"email", "phone"}).AddRow("other@test.rw", "+250788000001"))

	err := repo.CheckUniqueness(context.Background(), "jean@test.rw", "+250788000001", excluded, "not-a-uuid")
	assert.Equal(t, user.ErrPhoneExists, err)

	mock.ExpectQuery("SELECT email, phone FROM users").
		WithArgs("jean@test.rw", "+250788000001").
		WillReturnRows(sqlmock.NewRows([]string{"email", "phone"}))
	assert.NoError(t, repo.CheckUniqueness(context.Background(), "jean@test.rw", "+250788000001"))
}

func TestUserRepository_CreateUser_conflict(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "users_email_key"})

	_, err := repo.CreateUser(context.Background(), user.User{Email: "jean@test.rw", Role: permission.RoleCitizen})
	require.True(t, core.IsConflict(err))
	assert.Equal(t, user.ErrEmailExists.Error(), err.Error())
}

func TestUserRepository_GetUser(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	userID, profileID, cellID := newID(), newID(), newID()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE (email = $1 OR phone = $2) AND deleted_at IS NULL")).
		WithArgs("jean@test.rw", "jean@test.rw").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			userID, "jean@test.rw", "+250788000001", []byte("hash"), "CELL_LEADER", true, "",
			now, nil, now, now, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE user_id IN ($1)")).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "names", "created_at", "updated_at"}).
			AddRow(profileID, userID, "Jean Mugisha", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM profile_positions WHERE profile_id IN ($1)")).
		WithArgs(profileID).
		WillReturnRows(sqlmock.NewRows([]string{"profile_id", "level", "location_id"}).
			AddRow(profileID, "cell", cellID))

	usr, err := repo.GetUser(context.Background(), user.GetFilter{Login: "jean@test.rw"})
	require.NoError(t, err)
	assert.Equal(t, userID, usr.ID)
	assert.Equal(t, permission.RoleCellLeader, usr.Role)
	assert.True(t, usr.IsVerified())
	assert.Nil(t, usr.LastLogin)
	require.NotNil(t, usr.Profile)
	assert.Equal(t, "Jean Mugisha", usr.Profile.Names)
	assert.True(t, usr.Profile.Leads(location.LevelCell, cellID))
}

func TestUserRepository_GetUser_notFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	_, err := repo.GetUser(context.Background(), user.GetFilter{ID: "42"})
	assert.True(t, core.IsNotFound(err))

	mock.ExpectQuery("FROM users WHERE refresh_token").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(userRowColumns))
	_, err = repo.GetUser(context.Background(), user.GetFilter{RefreshToken: "abc"})
	assert.True(t, core.IsNotFound(err))
}

func TestUserRepository_QueryUsers(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	now := time.Now().UTC()
	active := true

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM users WHERE deleted_at IS NULL AND role = $1 AND is_active = $2 AND " +
			"(email ILIKE $3 OR phone ILIKE $4 OR id IN (SELECT user_id FROM profiles WHERE names ILIKE $5))")).
		WithArgs("CITIZEN", true, "%jean%", "%jean%", "%jean%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id LIMIT $6 OFFSET $7")).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			newID(), "jean@test.rw", "+250788000001", []byte("hash"), "CITIZEN", true, "",
			nil, nil, now, now, nil))
	mock.ExpectQuery("FROM profiles WHERE user_id IN").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "names", "created_at", "updated_at"}))

	page, err := repo.QueryUsers(context.Background(),
		user.QueryFilter{Role: "CITIZEN", IsActive: &active},
		core.PageQuery{Page: 1, Size: 10, Search: "jean"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Nil(t, page.Items[0].Profile)
	assert.Equal(t, 1, page.Meta.TotalItems)
}

func TestUserRepository_SetPosition(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	profileID, villageID := newID(), newID()

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO profile_positions (profile_id, level, location_id) VALUES ($1, $2, $3) " +
			"ON CONFLICT (profile_id, level) DO UPDATE SET location_id = EXCLUDED.location_id")).
		WithArgs(profileID, "village", villageID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetPosition(context.Background(), profileID, user.Position{Level: location.LevelVillage, LocationID: villageID})
	require.NoError(t, err)
}

func TestUserRepository_DeleteExpiredVerifications(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM verifications WHERE expires_at <= $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExpiredVerifications(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestUserRepository_DeleteUser(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	id := newID()
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET deleted_at = $1, refresh_token = '' WHERE id = $2 AND deleted_at IS NULL")).
		WithArgs(now, id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteUser(context.Background(), id, now)
	assert.True(t, core.IsNotFound(err))
}
