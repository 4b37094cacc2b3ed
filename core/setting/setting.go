// Package setting is the process-wide name/value configuration store.
package setting

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
)

type Setting struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PutSetting struct {
	Name  string `json:"name" validate:"required,max=100,alphanum_"`
	Value string `json:"value"`
}

func (ps *PutSetting) Validate(validate *validator.Validate) error {
	ps.Name = core.CleanString(ps.Name, true /* lower */)
	return validate.Struct(ps)
}

type (
	Repository interface {
		ListSettings(ctx context.Context) ([]Setting, error)
		GetSetting(ctx context.Context, name string) (Setting, error)
		// UpsertSetting creates the setting or replaces its value.
		UpsertSetting(ctx context.Context, s Setting) (Setting, error)
		DeleteSetting(ctx context.Context, name string) error
	}

	Service interface {
		List(ctx context.Context) ([]Setting, error)
		Get(ctx context.Context, name string) (Setting, error)
		// Value returns the value of name, or def when it is not set.
		Value(ctx context.Context, name, def string) (string, error)
		Put(ctx context.Context, ps PutSetting) (Setting, error)
		Delete(ctx context.Context, name string) error
	}

	service struct {
		repo     Repository
		validate *validator.Validate
		now      core.NowFunc
	}
)

func NewService(repo Repository, validate *validator.Validate) Service {
	return &service{repo: repo, validate: validate, now: core.UTCNow}
}

func (svc *service) List(ctx context.Context) ([]Setting, error) {
	settings, err := svc.repo.ListSettings(ctx)
	if settings == nil {
		settings = []Setting{}
	}
	return settings, errors.Wrap(err, "listing settings")
}

func (svc *service) Get(ctx context.Context, name string) (Setting, error) {
	s, err := svc.repo.GetSetting(ctx, core.CleanString(name, true /* lower */))
	return s, errors.Wrap(err, "getting setting")
}

func (svc *service) Value(ctx context.Context, name, def string) (string, error) {
	s, err := svc.Get(ctx, name)
	if err != nil {
		if core.IsNotFound(err) {
			return def, nil
		}
		return "", err
	}
	return s.Value, nil
}

func (svc *service) Put(ctx context.Context, ps PutSetting) (Setting, error) {
	if err := ps.Validate(svc.validate); err != nil {
		return Setting{}, err
	}
	now := svc.now()
	s, err := svc.repo.UpsertSetting(ctx, Setting{Name: ps.Name, Value: ps.Value, CreatedAt: now, UpdatedAt: now})
	return s, errors.Wrap(err, "saving setting")
}

func (svc *service) Delete(ctx context.Context, name string) error {
	return errors.Wrap(svc.repo.DeleteSetting(ctx, core.CleanString(name, true /* lower */)), "deleting setting")
}
