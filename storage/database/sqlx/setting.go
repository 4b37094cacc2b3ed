package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core/setting"
)

const settingColumns = "id, name, value, created_at, updated_at"

type settingRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Value     string    `db:"value"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row settingRow) setting() setting.Setting {
	return setting.Setting{
		ID:        row.ID,
		Name:      row.Name,
		Value:     row.Value,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type settingRepository struct {
	base
}

var _ setting.Repository = (*settingRepository)(nil)

func NewSettingRepository(db *sqlx.DB) setting.Repository {
	return &settingRepository{base{db: db}}
}

func (repo *settingRepository) ListSettings(ctx context.Context) ([]setting.Setting, error) {
	settings := make([]setting.Setting, 0)
	var rows []settingRow
	if err := repo.exec(ctx).SelectContext(ctx, &rows, "SELECT "+settingColumns+" FROM settings ORDER BY name"); err != nil {
		return nil, errors.Wrap(err, "listing settings")
	}
	for _, row := range rows {
		settings = append(settings, row.setting())
	}
	return settings, nil
}

func (repo *settingRepository) GetSetting(ctx context.Context, name string) (setting.Setting, error) {
	exec := repo.exec(ctx)
	var row settingRow
	if err := exec.GetContext(ctx, &row, exec.Rebind("SELECT "+settingColumns+" FROM settings WHERE name = ?"), name); err != nil {
		return setting.Setting{}, translate(err, "setting", "getting setting")
	}
	return row.setting(), nil
}

func (repo *settingRepository) UpsertSetting(ctx context.Context, s setting.Setting) (setting.Setting, error) {
	exec := repo.exec(ctx)
	q := insertSQL("settings", "id", "name", "value", "created_at", "updated_at") +
		" ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at RETURNING " + settingColumns
	var row settingRow
	if err := exec.GetContext(ctx, &row, exec.Rebind(q), newID(), s.Name, s.Value, s.CreatedAt.UTC(), s.UpdatedAt.UTC()); err != nil {
		return setting.Setting{}, errors.Wrap(err, "upserting setting")
	}
	return row.setting(), nil
}

func (repo *settingRepository) DeleteSetting(ctx context.Context, name string) error {
	exec := repo.exec(ctx)
	res, err := exec.ExecContext(ctx, exec.Rebind("DELETE FROM settings WHERE name = ?"), name)
	if err != nil {
		return errors.Wrap(err, "deleting setting")
	}
	return affected(res, "setting")
}
