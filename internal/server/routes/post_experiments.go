package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/internal/queue"
	"github.com/bel-commons/bel-commons/internal/server/middleware"
	"github.com/bel-commons/bel-commons/internal/timing"
	"github.com/bel-commons/bel-commons/internal/util"
	"github.com/bel-commons/bel-commons/pkg/heat"
	"github.com/bel-commons/bel-commons/pkg/logger"
)

// CreateExperimentHandler queues a heat diffusion run of an omics data set
// over the subgraph of a stored query.
func CreateExperimentHandler(c echo.Context) error {
	type createExperimentBody struct {
		QueryID      int64 `json:"query_id" validate:"required,numeric"`
		OmicID       int64 `json:"omic_id" validate:"required,numeric"`
		Permutations int32 `json:"permutations"`
	}

	type createExperimentResponse struct {
		Message    string         `json:"message"`
		Experiment *db.Experiment `json:"experiment,omitempty"`
	}

	data := new(createExperimentBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createExperimentResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createExperimentResponse{
			Message: "Invalid request body",
		})
	}
	if data.Permutations <= 0 {
		data.Permutations = heat.DefaultPermutations
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, createExperimentResponse{
			Message: "Unauthorized",
		})
	}

	// The query check covers the assembly rights.
	_, _, status, msg := loadAuthorizedQuery(c, data.QueryID)
	if status != 0 {
		return c.JSON(status, createExperimentResponse{Message: msg})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	q := db.New(app.DBConn)

	omic, err := q.GetOmic(ctx, data.OmicID)
	if err != nil {
		return c.JSON(http.StatusNotFound, createExperimentResponse{
			Message: "Omics data set not found",
		})
	}
	if !omic.Public && omic.UserID != user.UserID && !middleware.IsAdmin(user) {
		return c.JSON(http.StatusNotFound, createExperimentResponse{
			Message: "Omics data set not found",
		})
	}

	experiment, err := q.CreateExperiment(ctx, db.CreateExperimentParams{
		UserID:       user.UserID,
		QueryID:      data.QueryID,
		OmicID:       data.OmicID,
		Permutations: data.Permutations,
	})
	if err != nil {
		logger.Error("Failed to create experiment", "err", err)
		return c.JSON(http.StatusInternalServerError, createExperimentResponse{
			Message: "Internal server error",
		})
	}

	msgBytes, err := json.Marshal(queue.ExperimentMsg{
		Message:      "Experiment queued",
		ExperimentID: experiment.ID,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createExperimentResponse{
			Message: "Internal server error",
		})
	}
	if err := queue.PublishFIFO(app.Queue, queue.ExperimentQueue, msgBytes); err != nil {
		logger.Error("Failed to publish experiment message", "experiment_id", experiment.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, createExperimentResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, createExperimentResponse{
		Message:    "Experiment queued",
		Experiment: &experiment,
	})
}

func GetExperimentsHandler(c echo.Context) error {
	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	experiments, err := q.ListExperimentsForUser(ctx, user.UserID)
	if err != nil {
		logger.Error("Failed to list experiments", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if experiments == nil {
		experiments = make([]db.Experiment, 0)
	}

	return c.JSON(http.StatusOK, experiments)
}

func GetExperimentHandler(c echo.Context) error {
	type getExperimentParams struct {
		ID int64 `param:"id" validate:"required,numeric"`
	}

	type getExperimentResponse struct {
		Message    string               `json:"message"`
		Experiment *db.Experiment       `json:"experiment,omitempty"`
		Progress   *util.ReportProgress `json:"progress,omitempty"`
	}

	params := new(getExperimentParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getExperimentResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getExperimentResponse{
			Message: "Invalid request params",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, getExperimentResponse{
			Message: "Unauthorized",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	experiment, err := q.GetExperiment(ctx, params.ID)
	if err != nil {
		return c.JSON(http.StatusNotFound, getExperimentResponse{
			Message: "Experiment not found",
		})
	}
	if experiment.UserID != user.UserID && !middleware.IsAdmin(user) {
		return c.JSON(http.StatusForbidden, getExperimentResponse{
			Message: "Forbidden",
		})
	}

	estimate, err := timing.AverageProcessingTime(ctx, timing.StatExperiment, conn)
	if err != nil {
		logger.Warn("Failed to estimate experiment duration", "experiment_id", experiment.ID, "err", err)
		estimate = 0
	}
	progress := util.BuildExperimentProgress(experiment, estimate, time.Now())

	return c.JSON(http.StatusOK, getExperimentResponse{
		Message:    "Experiment found",
		Experiment: &experiment,
		Progress:   &progress,
	})
}
