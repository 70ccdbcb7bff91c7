package routes

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/internal/server/middleware"
	"github.com/bel-commons/bel-commons/internal/timing"
	"github.com/bel-commons/bel-commons/internal/util"
	"github.com/bel-commons/bel-commons/pkg/logger"
)

func GetReportsHandler(c echo.Context) error {
	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	reports, err := q.ListReportsForUser(ctx, user.UserID)
	if err != nil {
		logger.Error("Failed to list reports", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if reports == nil {
		reports = make([]db.Report, 0)
	}

	return c.JSON(http.StatusOK, reports)
}

func GetReportHandler(c echo.Context) error {
	type getReportParams struct {
		ID int64 `param:"id" validate:"required,numeric"`
	}

	type getReportResponse struct {
		Message  string               `json:"message"`
		Report   *db.Report           `json:"report,omitempty"`
		Progress *util.ReportProgress `json:"progress,omitempty"`
	}

	params := new(getReportParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getReportResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getReportResponse{
			Message: "Invalid request params",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, getReportResponse{
			Message: "Unauthorized",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	report, err := q.GetReport(ctx, params.ID)
	if err != nil {
		return c.JSON(http.StatusNotFound, getReportResponse{
			Message: "Report not found",
		})
	}
	if report.UserID != user.UserID && !middleware.IsAdmin(user) {
		return c.JSON(http.StatusForbidden, getReportResponse{
			Message: "Forbidden",
		})
	}

	// The size of the stored document is not tracked on the report, so the
	// estimate falls back to the recent mean parse duration.
	estimate, err := timing.AverageProcessingTime(ctx, timing.StatBELParse, conn)
	if err != nil {
		logger.Warn("Failed to estimate parse duration", "report_id", report.ID, "err", err)
		estimate = 0
	}
	progress := util.BuildReportProgress(report, estimate, time.Now())

	return c.JSON(http.StatusOK, getReportResponse{
		Message:  "Report found",
		Report:   &report,
		Progress: &progress,
	})
}
