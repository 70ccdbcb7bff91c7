package routes

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/internal/queue"
	"github.com/bel-commons/bel-commons/internal/server/middleware"
	"github.com/bel-commons/bel-commons/internal/storage"
	"github.com/bel-commons/bel-commons/pkg/logger"
)

// UploadNetworkHandler accepts a BEL script as multipart/form-data, stores
// the source and queues a report for the worker.
func UploadNetworkHandler(c echo.Context) error {
	type uploadBody struct {
		Public           bool `form:"public"`
		AllowNested      bool `form:"allow_nested"`
		CitationClearing bool `form:"citation_clearing"`
		InferOrigin      bool `form:"infer_origin"`
	}

	type uploadResponse struct {
		Message string     `json:"message"`
		Report  *db.Report `json:"report,omitempty"`
	}

	data := new(uploadBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "Invalid request body",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "No BEL document provided",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, uploadResponse{
			Message: "Unauthorized",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "Could not open file",
		})
	}
	defer src.Close()

	source, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "Could not read file",
		})
	}
	sourceHash := sha256.Sum256(source)

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	docID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, uploadResponse{
			Message: "Internal server error",
		})
	}
	key, err := storage.PutDocument(ctx, app.S3, docID, bytes.NewReader(source))
	if err != nil {
		logger.Error("Failed to store BEL document", "err", err)
		return c.JSON(http.StatusInternalServerError, uploadResponse{
			Message: "Internal server error",
		})
	}

	q := db.New(app.DBConn)
	report, err := q.CreateReport(ctx, db.CreateReportParams{
		UserID:           user.UserID,
		SourceName:       file.Filename,
		SourceKey:        key,
		SourceHash:       hex.EncodeToString(sourceHash[:]),
		Public:           data.Public,
		AllowNested:      data.AllowNested,
		CitationClearing: data.CitationClearing,
		InferOrigin:      data.InferOrigin,
	})
	if err != nil {
		logger.Error("Failed to create report", "err", err)
		return c.JSON(http.StatusInternalServerError, uploadResponse{
			Message: "Internal server error",
		})
	}

	msgBytes, err := json.Marshal(queue.UploadMsg{
		Message:  "BEL document uploaded",
		ReportID: report.ID,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, uploadResponse{
			Message: "Internal server error",
		})
	}
	if err := queue.PublishFIFO(app.Queue, queue.UploadQueue, msgBytes); err != nil {
		logger.Error("Failed to publish upload message", "report_id", report.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, uploadResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, uploadResponse{
		Message: "Upload queued",
		Report:  &report,
	})
}
