package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	"github.com/iradukundapaci/communiserver-sub002/core/setting"
)

type settingApi struct {
	svc setting.Service
}

func registerSettingAPI(g *echo.Group, authed echo.MiddlewareFunc, svc setting.Service) {
	api := settingApi{svc: svc}

	sg := g.Group("/settings", authed, permissionMiddleware(permission.ManageSettings))
	sg.GET("", api.list)
	sg.GET("/:name", api.retrieve)
	sg.PUT("/:name", api.put)
	sg.DELETE("/:name", api.destroy)
}

func (api *settingApi) list(ctx echo.Context) error {
	settings, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing settings")
	}
	return ctx.JSON(http.StatusOK, settings)
}

func (api *settingApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("name"))
	if err != nil {
		return errors.Wrap(err, "getting setting")
	}
	return ctx.JSON(http.StatusOK, s)
}

// put creates or replaces the setting named in the path; a name in the body is ignored.
func (api *settingApi) put(ctx echo.Context) error {
	var data setting.PutSetting
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PutSetting")
	}
	data.Name = ctx.Param("name")

	s, err := api.svc.Put(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "saving setting")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("name")); err != nil {
		return errors.Wrap(err, "deleting setting")
	}
	return ctx.NoContent(http.StatusNoContent)
}
