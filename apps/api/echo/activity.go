package echoapi

import (
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/activity"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
)

const (
	maxEvidenceSize  = 10 << 20 // per file
	maxEvidenceFiles = 10
)

var (
	errNoFiles            = core.NewValidationError(nil, core.FieldError{Field: "files", Error: "at least one file is required"})
	errTooManyFiles       = core.NewValidationError(nil, core.FieldError{Field: "files", Error: "too many files"})
	errFileTooLarge       = core.NewValidationError(nil, core.FieldError{Field: "files", Error: "file exceeds 10MB"})
	errStorageUnavailable = echo.NewHTTPError(http.StatusServiceUnavailable, "file storage is not configured")
)

type activityApi struct {
	svc     activity.Service
	storage core.FileStorage
}

func registerActivityAPI(g *echo.Group, authed echo.MiddlewareFunc, svc activity.Service, storage core.FileStorage) {
	api := activityApi{svc: svc, storage: storage}

	// un-authed endpoints
	g.GET("/public/activities", api.queryPublicActivities)

	ag := g.Group("/activities", authed)
	manageActivities := permissionMiddleware(permission.ManageActivities)
	ag.POST("", api.createActivity, manageActivities)
	ag.GET("", api.queryActivities, permissionMiddleware(permission.ViewActivities))
	ag.GET("/:id", api.retrieveActivity, permissionMiddleware(permission.ViewActivities))
	ag.PATCH("/:id", api.updateActivity, manageActivities)
	ag.DELETE("/:id", api.destroyActivity, manageActivities)

	tg := g.Group("/tasks", authed)
	manageTasks := permissionMiddleware(permission.ManageTasks)
	tg.POST("", api.createTask, manageTasks)
	tg.GET("", api.queryTasks, permissionMiddleware(permission.ViewTasks))
	tg.GET("/:id", api.retrieveTask, permissionMiddleware(permission.ViewTasks))
	tg.PATCH("/:id", api.updateTask, manageTasks)
	tg.PATCH("/:id/status", api.updateTaskStatus, permissionMiddleware(permission.ManageTasks, permission.CreateReports))
	tg.DELETE("/:id", api.destroyTask, manageTasks)

	rg := g.Group("/reports", authed)
	createReports := permissionMiddleware(permission.CreateReports)
	rg.POST("", api.createReport, createReports)
	rg.POST("/evidence", api.uploadEvidence, permissionMiddleware(permission.UploadFiles))
	rg.GET("", api.queryReports, permissionMiddleware(permission.ViewReports))
	rg.GET("/:id", api.retrieveReport, permissionMiddleware(permission.ViewReports))
	rg.PATCH("/:id", api.updateReport, createReports)
	rg.DELETE("/:id", api.destroyReport, createReports)
}

// Activities

func (api *activityApi) createActivity(ctx echo.Context) error {
	var data activity.NewActivity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewActivity")
	}

	act, err := api.svc.CreateActivity(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating activity")
	}
	return ctx.JSON(http.StatusCreated, act)
}

func bindActivityFilter(ctx echo.Context) activity.ActivityFilter {
	return activity.ActivityFilter{
		VillageID: ctx.QueryParam("villageId"),
		FromStr:   ctx.QueryParam("from"),
		ToStr:     ctx.QueryParam("to"),
	}
}

func (api *activityApi) queryActivities(ctx echo.Context) error {
	acts, err := api.svc.QueryActivities(ctx.Request().Context(), bindActivityFilter(ctx), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}
	return ctx.JSON(http.StatusOK, acts)
}

// queryPublicActivities lists the latest activities for the landing page.
func (api *activityApi) queryPublicActivities(ctx echo.Context) error {
	acts, err := api.svc.QueryActivities(ctx.Request().Context(), activity.ActivityFilter{}, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying public activities")
	}
	return ctx.JSON(http.StatusOK, acts)
}

func (api *activityApi) retrieveActivity(ctx echo.Context) error {
	unscoped, err := bindWithDeleted(ctx)
	if err != nil {
		return err
	}

	act, err := api.svc.GetActivity(ctx.Request().Context(), ctx.Param("id"), unscoped)
	if err != nil {
		return errors.Wrap(err, "getting activity")
	}
	return ctx.JSON(http.StatusOK, act)
}

func (api *activityApi) updateActivity(ctx echo.Context) error {
	var data activity.UpdateActivity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateActivity")
	}

	act, err := api.svc.UpdateActivity(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating activity")
	}
	return ctx.JSON(http.StatusOK, act)
}

func (api *activityApi) destroyActivity(ctx echo.Context) error {
	if err := api.svc.DeleteActivity(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting activity")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Tasks

func (api *activityApi) createTask(ctx echo.Context) error {
	var data activity.NewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}

	task, err := api.svc.CreateTask(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, task)
}

func (api *activityApi) queryTasks(ctx echo.Context) error {
	filter := activity.TaskFilter{
		ActivityID: ctx.QueryParam("activityId"),
		IsiboID:    ctx.QueryParam("isiboId"),
		Status:     ctx.QueryParam("status"),
	}

	tasks, err := api.svc.QueryTasks(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying tasks")
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *activityApi) retrieveTask(ctx echo.Context) error {
	unscoped, err := bindWithDeleted(ctx)
	if err != nil {
		return err
	}

	task, err := api.svc.GetTask(ctx.Request().Context(), ctx.Param("id"), unscoped)
	if err != nil {
		return errors.Wrap(err, "getting task")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *activityApi) updateTask(ctx echo.Context) error {
	var data activity.UpdateTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTask")
	}

	task, err := api.svc.UpdateTask(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *activityApi) updateTaskStatus(ctx echo.Context) error {
	var data activity.UpdateStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}

	task, err := api.svc.UpdateStatus(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating task status")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *activityApi) destroyTask(ctx echo.Context) error {
	if err := api.svc.DeleteTask(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Reports

func (api *activityApi) createReport(ctx echo.Context) error {
	var data activity.NewReport
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReport")
	}

	report, err := api.svc.CreateReport(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating report")
	}
	return ctx.JSON(http.StatusCreated, report)
}

func (api *activityApi) queryReports(ctx echo.Context) error {
	filter := activity.ReportFilter{
		TaskID:     ctx.QueryParam("taskId"),
		ActivityID: ctx.QueryParam("activityId"),
	}

	reports, err := api.svc.QueryReports(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying reports")
	}
	return ctx.JSON(http.StatusOK, reports)
}

func (api *activityApi) retrieveReport(ctx echo.Context) error {
	unscoped, err := bindWithDeleted(ctx)
	if err != nil {
		return err
	}

	report, err := api.svc.GetReport(ctx.Request().Context(), ctx.Param("id"), unscoped)
	if err != nil {
		return errors.Wrap(err, "getting report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *activityApi) updateReport(ctx echo.Context) error {
	var data activity.UpdateReport
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateReport")
	}

	report, err := api.svc.UpdateReport(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *activityApi) destroyReport(ctx echo.Context) error {
	if err := api.svc.DeleteReport(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting report")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// uploadEvidence stores the multipart `files` (or `file`) and returns one public URL per file.
func (api *activityApi) uploadEvidence(ctx echo.Context) error {
	if api.storage == nil {
		return errStorageUnavailable
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return core.NewValidationError(errors.Wrap(err, "reading multipart form"))
	}
	files := append(form.File["files"], form.File["file"]...)
	switch {
	case len(files) == 0:
		return errNoFiles
	case len(files) > maxEvidenceFiles:
		return errTooManyFiles
	}

	uploaded := make([]core.UploadedFile, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxEvidenceSize {
			return errFileTooLarge
		}
		file, err := api.upload(ctx, fh)
		if err != nil {
			return errors.Wrapf(err, "uploading %s", fh.Filename)
		}
		uploaded = append(uploaded, file)
	}
	return ctx.JSON(http.StatusCreated, EvidenceResponse{Files: uploaded})
}

func (api *activityApi) upload(ctx echo.Context, fh *multipart.FileHeader) (core.UploadedFile, error) {
	src, err := fh.Open()
	if err != nil {
		return core.UploadedFile{}, err
	}
	defer src.Close()
	return api.storage.Upload(ctx.Request().Context(), fh.Filename, fh.Header.Get(echo.HeaderContentType), src, fh.Size)
}

type EvidenceResponse struct {
	Files []core.UploadedFile `json:"files"`
}
