package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/analytics"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
)

type analyticsApi struct {
	svc     analytics.Service
	appName string
	pdf     core.DocumentRenderer
	xlsx    core.DocumentRenderer
	now     core.NowFunc
}

func registerAnalyticsAPI(
	g *echo.Group,
	authed echo.MiddlewareFunc,
	svc analytics.Service,
	appName string,
	pdf, xlsx core.DocumentRenderer,
) {
	api := analyticsApi{svc: svc, appName: appName, pdf: pdf, xlsx: xlsx, now: core.UTCNow}

	ag := g.Group("/analytics", authed)
	view := permissionMiddleware(permission.ViewAnalytics)
	ag.GET("/overview", api.overview, view)
	ag.GET("/users", api.users, view)
	ag.GET("/leadership", api.leadership, view)
	ag.GET("/tasks", api.tasks, view)
	ag.GET("/reports", api.reports, view)
	ag.GET("/timeseries", api.timeSeries, view)

	export := permissionMiddleware(permission.ExportReports)
	ag.GET("/export.pdf", api.exporter(api.pdf), export)
	ag.GET("/export.xlsx", api.exporter(api.xlsx), export)
}

func (api *analyticsApi) bindRange(ctx echo.Context) (analytics.Range, error) {
	return analytics.ParseRange(ctx.QueryParam("period"), ctx.QueryParam("start"), ctx.QueryParam("end"), api.now())
}

// Handlers

func (api *analyticsApi) overview(ctx echo.Context) error {
	r, err := api.bindRange(ctx)
	if err != nil {
		return err
	}
	o, err := api.svc.Overview(ctx.Request().Context(), r)
	if err != nil {
		return errors.Wrap(err, "computing overview")
	}
	return ctx.JSON(http.StatusOK, o)
}

func (api *analyticsApi) users(ctx echo.Context) error {
	stats, err := api.svc.Users(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing user stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *analyticsApi) leadership(ctx echo.Context) error {
	stats, err := api.svc.Leadership(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing leadership stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *analyticsApi) tasks(ctx echo.Context) error {
	r, err := api.bindRange(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.Tasks(ctx.Request().Context(), r)
	if err != nil {
		return errors.Wrap(err, "computing task stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *analyticsApi) reports(ctx echo.Context) error {
	r, err := api.bindRange(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.Reports(ctx.Request().Context(), r)
	if err != nil {
		return errors.Wrap(err, "computing report stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *analyticsApi) timeSeries(ctx echo.Context) error {
	r, err := api.bindRange(ctx)
	if err != nil {
		return err
	}
	points, err := api.svc.TimeSeries(ctx.Request().Context(), r)
	if err != nil {
		return errors.Wrap(err, "computing time series")
	}
	return ctx.JSON(http.StatusOK, points)
}

// exporter renders the overview of the requested range as a downloadable document.
func (api *analyticsApi) exporter(renderer core.DocumentRenderer) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		r, err := api.bindRange(ctx)
		if err != nil {
			return err
		}
		usr, err := getContextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}

		o, err := api.svc.Overview(ctx.Request().Context(), r)
		if err != nil {
			return errors.Wrap(err, "computing overview")
		}
		generatedBy := usr.Email
		if usr.Profile != nil && usr.Profile.Names != "" {
			generatedBy = usr.Profile.Names
		}
		if generatedBy == "" {
			generatedBy = usr.ID
		}

		var buf bytes.Buffer
		if err := renderer.Render(&buf, analytics.BuildDocument(o, api.appName, generatedBy)); err != nil {
			return errors.Wrap(err, "rendering analytics document")
		}

		filename := fmt.Sprintf("analytics-%s%s", o.GeneratedAt.Format("20060102-150405"), renderer.Extension())
		ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
		return ctx.Blob(http.StatusOK, renderer.ContentType(), buf.Bytes())
	}
}
