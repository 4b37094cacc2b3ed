package inmemdb

import (
	"context"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/setting"
)

type settingRepository struct {
	db *DB
}

func NewSettingRepository(db *DB) setting.Repository {
	return &settingRepository{db: db}
}

func (repo *settingRepository) ListSettings(context.Context) ([]setting.Setting, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	settings := make([]setting.Setting, 0, len(repo.db.settings))
	for _, s := range repo.db.settings {
		settings = append(settings, *s)
	}
	sortByString(settings,
		func(s setting.Setting) string { return s.Name },
		func(s setting.Setting) string { return s.ID },
	)
	return settings, nil
}

func (repo *settingRepository) GetSetting(_ context.Context, name string) (setting.Setting, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	s, ok := repo.db.settings[name]
	if !ok {
		return setting.Setting{}, core.NewNotFoundError("setting")
	}
	return *s, nil
}

func (repo *settingRepository) UpsertSetting(_ context.Context, s setting.Setting) (setting.Setting, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if orig, ok := repo.db.settings[s.Name]; ok {
		orig.Value = s.Value
		orig.UpdatedAt = s.UpdatedAt
		return *orig, nil
	}
	s.ID = newID()
	stored := s
	repo.db.settings[s.Name] = &stored
	return s, nil
}

func (repo *settingRepository) DeleteSetting(_ context.Context, name string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.settings[name]; !ok {
		return core.NewNotFoundError("setting")
	}
	delete(repo.db.settings, name)
	return nil
}
