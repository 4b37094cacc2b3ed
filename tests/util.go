// Package testutil wires the services on the in-memory database for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/activity"
	"github.com/iradukundapaci/communiserver-sub002/core/analytics"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	"github.com/iradukundapaci/communiserver-sub002/core/setting"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
	emailsvc "github.com/iradukundapaci/communiserver-sub002/services/email"
	inmemdb "github.com/iradukundapaci/communiserver-sub002/storage/database/inmem"
)

const (
	// VerificationCode is the code every verification mail carries.
	VerificationCode = "123456"
	Password         = "Umuganda#2024"
)

type Env struct {
	Conf       *core.Config
	DB         *inmemdb.DB
	Mail       *emailsvc.ConsoleServiceMock
	Validate   *validator.Validate
	Translator ut.Translator

	UserRepo     user.Repository
	LocationRepo location.Repository
	ActivityRepo activity.Repository

	UserSvc      user.Service
	LocationSvc  location.Service
	ActivitySvc  activity.Service
	SettingSvc   setting.Service
	AnalyticsSvc analytics.Service
}

// NewValidator returns a validator with every custom tag registered, and its translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	permission.InitValidators(validate, translator)
	location.InitValidators(validate, translator)
	activity.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func NewEnv() *Env {
	conf := core.NewTestConfig()
	db := inmemdb.Open()
	validate, translator := NewValidator()
	env := &Env{
		Conf:         conf,
		DB:           db,
		Mail:         emailsvc.NewConsoleServiceMock(conf),
		Validate:     validate,
		Translator:   translator,
		UserRepo:     inmemdb.NewUserRepository(db),
		LocationRepo: inmemdb.NewLocationRepository(db),
		ActivityRepo: inmemdb.NewActivityRepository(db),
	}
	env.UserSvc = user.NewServiceMock(db, env.UserRepo, env.Mail, conf, VerificationCode)
	env.LocationSvc = location.NewService(db, env.LocationRepo, env.UserSvc, env.Validate)
	env.ActivitySvc = activity.NewService(db, env.ActivityRepo, env.LocationSvc, env.Validate)
	env.SettingSvc = setting.NewService(inmemdb.NewSettingRepository(db), env.Validate)
	env.AnalyticsSvc = analytics.NewService(inmemdb.NewAnalyticsStore(db))
	return env
}

// CreateUser stores a verified, active user with a profile, bypassing validation.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	names, email, phone, pwd string,
	role permission.Role,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Email:      email,
		Phone:      phone,
		Role:       role,
		IsActive:   isActive,
		VerifiedAt: &tstamp,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	ctx := context.Background()
	usr, err := repo.CreateUser(ctx, usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	prof, err := repo.CreateProfile(ctx, user.Profile{
		UserID:    usr.ID,
		Names:     names,
		Positions: []user.Position{},
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("createProfile() failed: %v", err)
	}
	usr.Profile = &prof
	return usr
}

// Hierarchy is one branch of the location tree, province down to house.
type Hierarchy struct {
	Province, District, Sector, Cell, Village, Isibo, House location.Node
}

// CreateHierarchy builds a full branch; the isibo gets the given members.
// Province and cell names are suffixed with `tag` so that branches can coexist.
func CreateHierarchy(t *testing.T, svc location.Service, tag string, members ...location.MemberInput) Hierarchy {
	t.Helper()
	ctx := context.Background()
	create := func(level location.Level, nn location.NewNode) location.Node {
		n, err := svc.Create(ctx, level, nn)
		if err != nil {
			t.Fatalf("create %s failed: %v", level, err)
		}
		return n
	}

	var h Hierarchy
	h.Province = create(location.LevelProvince, location.NewNode{Name: "Kigali " + tag})
	h.District = create(location.LevelDistrict, location.NewNode{Name: "Gasabo", ParentID: h.Province.ID})
	h.Sector = create(location.LevelSector, location.NewNode{Name: "Kimironko", ParentID: h.District.ID})
	h.Cell = create(location.LevelCell, location.NewNode{Name: "Bibare " + tag, ParentID: h.Sector.ID})
	h.Village = create(location.LevelVillage, location.NewNode{Name: "Amahoro", ParentID: h.Cell.ID})
	h.Isibo = create(location.LevelIsibo, location.NewNode{Name: "Ubumwe", ParentID: h.Village.ID, Members: members})
	h.House = create(location.LevelHouse, location.NewNode{Code: "H-001", Street: "KG 11 Ave", ParentID: h.Isibo.ID})
	return h
}
