package sqlxrepos

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/setting"
)

var settingRowColumns = []string{"id", "name", "value", "created_at", "updated_at"}

func TestSettingRepository_UpsertSetting(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSettingRepository(db)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	id := newID()

	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO settings (id, name, value, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) " +
			"ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at")).
		WithArgs(sqlmock.AnyArg(), "landing_title", "Umuganda", now, now).
		WillReturnRows(sqlmock.NewRows(settingRowColumns).AddRow(id, "landing_title", "Umuganda", created, now))

	s, err := repo.UpsertSetting(context.Background(), setting.Setting{
		Name: "landing_title", Value: "Umuganda", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, id, s.ID)
	assert.Equal(t, created, s.CreatedAt)
}

func TestSettingRepository_ListSettings(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSettingRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM settings ORDER BY name")).
		WillReturnRows(sqlmock.NewRows(settingRowColumns).
			AddRow(newID(), "a", "1", now, now).
			AddRow(newID(), "b", "2", now, now))

	settings, err := repo.ListSettings(context.Background())
	require.NoError(t, err)
	require.Len(t, settings, 2)
	assert.Equal(t, "a", settings[0].Name)
}

func TestSettingRepository_GetAndDelete_notFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSettingRepository(db)

	mock.ExpectQuery("FROM settings WHERE name").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(settingRowColumns))
	_, err := repo.GetSetting(context.Background(), "missing")
	assert.True(t, core.IsNotFound(err))

	mock.ExpectExec("DELETE FROM settings").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, core.IsNotFound(repo.DeleteSetting(context.Background(), "missing")))
}
