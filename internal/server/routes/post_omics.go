package routes

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/internal/server/middleware"
	"github.com/bel-commons/bel-commons/internal/storage"
	"github.com/bel-commons/bel-commons/pkg/logger"
)

// omicView leaves the storage key out of listings.
type omicView struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	SourceName  string `json:"source_name"`
	GeneColumn  string `json:"gene_column"`
	DataColumn  string `json:"data_column"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`
}

func toOmicView(o db.Omic) omicView {
	v := omicView{
		ID:         o.ID,
		UserID:     o.UserID,
		SourceName: o.SourceName,
		GeneColumn: o.GeneColumn,
		DataColumn: o.DataColumn,
		Public:     o.Public,
	}
	if o.Description.Valid {
		v.Description = o.Description.String
	}
	return v
}

// CreateOmicHandler accepts a differential gene expression table as
// multipart/form-data. The table stays in object storage as uploaded; the
// row records which columns carry the gene symbol and the measured value.
func CreateOmicHandler(c echo.Context) error {
	type createOmicBody struct {
		GeneColumn  string `form:"gene_column" validate:"required"`
		DataColumn  string `form:"data_column" validate:"required"`
		Description string `form:"description"`
		Public      bool   `form:"public"`
	}

	type createOmicResponse struct {
		Message string    `json:"message"`
		Omic    *omicView `json:"omic,omitempty"`
	}

	data := new(createOmicBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createOmicResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createOmicResponse{
			Message: "Invalid request body",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, createOmicResponse{
			Message: "No omics table provided",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, createOmicResponse{
			Message: "Unauthorized",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, createOmicResponse{
			Message: "Could not open file",
		})
	}
	defer src.Close()

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	tableID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createOmicResponse{
			Message: "Internal server error",
		})
	}
	key, err := storage.PutOmicTable(ctx, app.S3, tableID, src)
	if err != nil {
		logger.Error("Failed to store omics table", "err", err)
		return c.JSON(http.StatusInternalServerError, createOmicResponse{
			Message: "Internal server error",
		})
	}

	q := db.New(app.DBConn)
	omic, err := q.CreateOmic(ctx, db.CreateOmicParams{
		UserID:      user.UserID,
		SourceName:  file.Filename,
		SourceKey:   key,
		GeneColumn:  data.GeneColumn,
		DataColumn:  data.DataColumn,
		Description: pgtype.Text{String: data.Description, Valid: data.Description != ""},
		Public:      data.Public,
	})
	if err != nil {
		logger.Error("Failed to create omic", "err", err)
		return c.JSON(http.StatusInternalServerError, createOmicResponse{
			Message: "Internal server error",
		})
	}

	view := toOmicView(omic)
	return c.JSON(http.StatusOK, createOmicResponse{
		Message: "Omics data set created",
		Omic:    &view,
	})
}

func GetOmicsHandler(c echo.Context) error {
	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	omics, err := q.ListOmicsVisibleTo(ctx, user.UserID)
	if err != nil {
		logger.Error("Failed to list omics", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	views := make([]omicView, 0, len(omics))
	for _, o := range omics {
		views = append(views, toOmicView(o))
	}
	return c.JSON(http.StatusOK, views)
}

// SetOmicPublicHandler toggles visibility, the only mutable field on a
// data set.
func SetOmicPublicHandler(c echo.Context) error {
	type setPublicBody struct {
		ID     int64 `param:"id" validate:"required,numeric"`
		Public bool  `json:"public"`
	}

	data := new(setPublicBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	omic, err := q.GetOmic(ctx, data.ID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Omics data set not found"})
	}
	if omic.UserID != user.UserID && !middleware.IsAdmin(user) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Only the owner may change visibility"})
	}

	if err := q.SetOmicPublic(ctx, db.SetOmicPublicParams{ID: data.ID, Public: data.Public}); err != nil {
		logger.Error("Failed to update omic visibility", "omic_id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Visibility updated"})
}

func DeleteOmicHandler(c echo.Context) error {
	type deleteOmicParams struct {
		ID int64 `param:"id" validate:"required,numeric"`
	}

	params := new(deleteOmicParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	q := db.New(app.DBConn)

	omic, err := q.GetOmic(ctx, params.ID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Omics data set not found"})
	}
	if omic.UserID != user.UserID && !middleware.IsAdmin(user) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Only the owner may delete a data set"})
	}

	if err := q.DeleteOmic(ctx, params.ID); err != nil {
		logger.Error("Failed to delete omic", "omic_id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if err := storage.DeleteDocument(ctx, app.S3, omic.SourceKey); err != nil {
		logger.Warn("Failed to delete omics table from storage", "omic_id", params.ID, "err", err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Omics data set deleted"})
}
