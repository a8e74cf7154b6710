package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/sheetflow/sheetflow/common"
	"github.com/sheetflow/sheetflow/db/repository"
	"github.com/sheetflow/sheetflow/model"
	"github.com/sheetflow/sheetflow/publisher"
)

// Edge implements the HTTP handlers of §6's HTTP surface, wired around the
// task repository, the schema store, and the publisher.
type Edge struct {
	tasks     *repository.TaskRepository
	schemas   repository.SchemaStore
	publisher *publisher.Publisher
	logger    *logrus.Entry
}

// NewEdge wires an Edge around its three collaborators.
func NewEdge(tasks *repository.TaskRepository, schemas repository.SchemaStore, pub *publisher.Publisher, logger *logrus.Entry) *Edge {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Edge{tasks: tasks, schemas: schemas, publisher: pub, logger: logger}
}

// uploadResponse is returned by both upload endpoints on acceptance.
type uploadResponse struct {
	TaskID     string `json:"task_id"`
	ImportName string `json:"import_name"`
}

// UploadValidation handles `POST /validation/upload/{import_name}?new={bool}`.
// Unless new=true, an import with a non-terminal validation task in flight
// returns that cached list instead of enqueuing a duplicate request.
func (e *Edge) UploadValidation(c echo.Context) error {
	ctx := c.Request().Context()
	importName := c.Param("import_name")
	if importName == "" {
		return httpError(common.ErrMissingIdentifier)
	}

	if !queryBool(c, "new") {
		if cached, err := e.tasks.GetByImport(ctx, importName, model.KindValidation); err != nil {
			return httpError(err)
		} else if pending := filterNonTerminal(cached); len(pending) > 0 {
			return c.JSON(http.StatusAccepted, pending)
		}
	}

	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing multipart file field \"file\"")
	}
	src, err := file.Open()
	if err != nil {
		return httpError(err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return httpError(err)
	}

	metadata := model.FileMetadata{
		Filename:    file.Filename,
		ContentType: file.Header.Get(echo.HeaderContentType),
		Size:        file.Size,
	}

	taskID, err := e.publisher.PublishValidation(string(model.OpValidationUpload), importName, data, metadata)
	if err != nil {
		return httpError(err)
	}

	now := time.Now().UTC()
	task := model.Task{
		TaskID:     taskID,
		Kind:       model.KindValidation,
		Status:     model.StatusAccepted,
		ImportName: importName,
		UploadDate: now,
		UpdateDate: now,
	}
	if err := e.tasks.Set(ctx, task); err != nil {
		e.logger.WithError(err).WithField("task_id", taskID).Warn("accepted task failed to persist")
	}

	return c.JSON(http.StatusAccepted, uploadResponse{TaskID: taskID, ImportName: importName})
}

// ValidationStatus handles `GET /validation/status?task_id=…|import_name=…`.
func (e *Edge) ValidationStatus(c echo.Context) error {
	ctx := c.Request().Context()

	if taskID := c.QueryParam("task_id"); taskID != "" {
		task, found, err := e.tasks.Get(ctx, taskID, model.KindValidation)
		if err != nil {
			return httpError(err)
		}
		if !found {
			return httpError(repository.ErrTaskNotFound)
		}
		return c.JSON(http.StatusOK, task)
	}

	if importName := c.QueryParam("import_name"); importName != "" {
		tasks, err := e.tasks.GetByImport(ctx, importName, model.KindValidation)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, tasks)
	}

	return httpError(common.ErrMissingIdentifier)
}

// UploadSchema handles `POST /schemas/upload/{import_name}?raw={bool}&new={bool}`.
func (e *Edge) UploadSchema(c echo.Context) error {
	ctx := c.Request().Context()
	importName := c.Param("import_name")
	if importName == "" {
		return httpError(common.ErrMissingIdentifier)
	}

	if !queryBool(c, "new") {
		if cached, err := e.tasks.GetByImport(ctx, importName, model.KindSchemas); err != nil {
			return httpError(err)
		} else if pending := filterNonTerminal(cached); len(pending) > 0 {
			return c.JSON(http.StatusAccepted, pending)
		}
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return httpError(err)
	}
	var schema json.RawMessage = body
	if !json.Valid(schema) {
		return echo.NewHTTPError(http.StatusBadRequest, "request body is not valid JSON")
	}

	raw := queryBool(c, "raw")
	taskID, err := e.publisher.PublishSchemaUpdate(string(model.OpSchemaUpdate), importName, schema, raw)
	if err != nil {
		return httpError(err)
	}

	now := time.Now().UTC()
	task := model.Task{
		TaskID:     taskID,
		Kind:       model.KindSchemas,
		Status:     model.StatusReceivedSchemaUpdate,
		ImportName: importName,
		UploadDate: now,
		UpdateDate: now,
	}
	if err := e.tasks.Set(ctx, task); err != nil {
		e.logger.WithError(err).WithField("task_id", taskID).Warn("accepted task failed to persist")
	}

	return c.JSON(http.StatusAccepted, uploadResponse{TaskID: taskID, ImportName: importName})
}

// RemoveSchema handles `DELETE /schemas/remove/{import_name}`.
func (e *Edge) RemoveSchema(c echo.Context) error {
	ctx := c.Request().Context()
	importName := c.Param("import_name")
	if importName == "" {
		return httpError(common.ErrMissingIdentifier)
	}

	result, err := e.schemas.Delete(ctx, importName)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"result": string(result)})
}

// httpError translates err into an echo.HTTPError per §6/§7's error-code
// table: bad credentials, missing identifier, and not-found get their
// dedicated codes; transient-transport kinds become 503; validation kinds
// become 400; everything else is a 500.
func httpError(err error) error {
	switch {
	case errors.Is(err, common.ErrBadCredentials):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, common.ErrMissingIdentifier):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case common.KindOf(err) == common.KindTransient:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case common.KindOf(err) == common.KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// queryBool parses a ?name=true/false query flag, defaulting to false.
func queryBool(c echo.Context, name string) bool {
	return c.QueryParam(name) == "true"
}

// filterNonTerminal returns the subset of tasks still in flight, per the
// status taxonomy's processing statuses.
func filterNonTerminal(tasks []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		switch t.Status {
		case model.StatusSuccess, model.StatusWarning, model.StatusCompleted, model.StatusPublished,
			model.StatusFailedPublishingResult, model.StatusFailedCreatingSchema,
			model.StatusFailedSavingSchema, model.StatusFailedRemovingSchema, model.StatusError:
			continue
		default:
			out = append(out, t)
		}
	}
	return out
}
