package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
)

// locationApi serves the nodes of a single level of the hierarchy.
type locationApi struct {
	svc   location.Service
	level location.Level
}

func registerLocationAPI(g *echo.Group, authed echo.MiddlewareFunc, svc location.Service) {
	view := permissionMiddleware(permission.ViewLocations)
	for _, level := range location.Levels {
		api := locationApi{svc: svc, level: level}

		manage := permissionMiddleware(permission.ManageLocations)
		if level == location.LevelHouse {
			manage = permissionMiddleware(permission.ManageLocations, permission.ManageHouses)
		}

		lg := g.Group("/"+level.Plural(), authed)
		lg.POST("", api.create, manage)
		lg.GET("", api.query, view)
		lg.GET("/:id", api.retrieve, view)
		lg.PATCH("/:id", api.update, manage)
		lg.DELETE("/:id", api.destroy, manage)

		if level.HasLeader() {
			assign := permissionMiddleware(permission.AssignLeaders)
			lg.POST("/:id/leader", api.assignLeader, assign)
			lg.DELETE("/:id/leader", api.removeLeader, assign)
		}
		if level == location.LevelHouse {
			lg.POST("/:id/representative", api.assignRepresentative, manage)
			lg.DELETE("/:id/representative", api.removeRepresentative, manage)
		}
	}
}

// Handlers

func (api *locationApi) create(ctx echo.Context) error {
	var data location.NewNode
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNode")
	}

	node, err := api.svc.Create(ctx.Request().Context(), api.level, data)
	if err != nil {
		return errors.Wrapf(err, "creating %s", api.level)
	}
	return ctx.JSON(http.StatusCreated, node)
}

func (api *locationApi) query(ctx echo.Context) error {
	filter := location.QueryFilter{ParentID: ctx.QueryParam("parentId")}

	nodes, err := api.svc.Query(ctx.Request().Context(), api.level, filter, bindPage(ctx))
	if err != nil {
		return errors.Wrapf(err, "querying %s", api.level.Plural())
	}
	return ctx.JSON(http.StatusOK, nodes)
}

func (api *locationApi) retrieve(ctx echo.Context) error {
	unscoped, err := bindWithDeleted(ctx)
	if err != nil {
		return err
	}

	node, err := api.svc.Get(ctx.Request().Context(), api.level, ctx.Param("id"), unscoped)
	if err != nil {
		return errors.Wrapf(err, "getting %s", api.level)
	}
	return ctx.JSON(http.StatusOK, node)
}

func (api *locationApi) update(ctx echo.Context) error {
	var data location.UpdateNode
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateNode")
	}

	node, err := api.svc.Update(ctx.Request().Context(), api.level, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrapf(err, "updating %s", api.level)
	}
	return ctx.JSON(http.StatusOK, node)
}

func (api *locationApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), api.level, ctx.Param("id")); err != nil {
		return errors.Wrapf(err, "deleting %s", api.level)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *locationApi) assignLeader(ctx echo.Context) error {
	var data AssignUserRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignUserRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	node, err := api.svc.AssignLeader(ctx.Request().Context(), api.level, ctx.Param("id"), data.UserID)
	if err != nil {
		return errors.Wrapf(err, "assigning %s leader", api.level)
	}
	return ctx.JSON(http.StatusOK, node)
}

func (api *locationApi) removeLeader(ctx echo.Context) error {
	node, err := api.svc.RemoveLeader(ctx.Request().Context(), api.level, ctx.Param("id"))
	if err != nil {
		return errors.Wrapf(err, "removing %s leader", api.level)
	}
	return ctx.JSON(http.StatusOK, node)
}

func (api *locationApi) assignRepresentative(ctx echo.Context) error {
	var data AssignUserRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignUserRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	node, err := api.svc.AssignRepresentative(ctx.Request().Context(), ctx.Param("id"), data.UserID)
	if err != nil {
		return errors.Wrap(err, "assigning house representative")
	}
	return ctx.JSON(http.StatusOK, node)
}

func (api *locationApi) removeRepresentative(ctx echo.Context) error {
	node, err := api.svc.RemoveRepresentative(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "removing house representative")
	}
	return ctx.JSON(http.StatusOK, node)
}

type AssignUserRequest struct {
	UserID string `json:"userId"`
}

func (ar *AssignUserRequest) Validate() error {
	ar.UserID = core.CleanString(ar.UserID)
	if ar.UserID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "userId", Error: "this field is required"})
	}
	return nil
}
