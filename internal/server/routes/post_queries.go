package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/internal/querystore"
	"github.com/bel-commons/bel-commons/internal/rights"
	"github.com/bel-commons/bel-commons/internal/server/middleware"
	"github.com/bel-commons/bel-commons/pkg/logger"
	"github.com/bel-commons/bel-commons/pkg/pipeline"
	"github.com/bel-commons/bel-commons/pkg/query"
)

type queryResponse struct {
	Message string       `json:"message"`
	Query   *query.Query `json:"query,omitempty"`
}

// CreateQueryHandler builds a new root query over a set of networks. Seeds
// and pipeline arrive in the envelope format the registry understands.
func CreateQueryHandler(c echo.Context) error {
	type createQueryBody struct {
		NetworkIDs []int64         `json:"network_ids" validate:"required,min=1"`
		Seeds      json.RawMessage `json:"seeds"`
		Pipeline   json.RawMessage `json:"pipeline"`
	}

	data := new(createQueryBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, queryResponse{
			Message: "Unauthorized",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	seeds, err := app.Registry.DecodeSeeds(data.Seeds)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownOperation) {
			return c.JSON(http.StatusBadRequest, queryResponse{
				Message: err.Error(),
			})
		}
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid seeds",
		})
	}
	steps, err := app.Registry.DecodePipeline(data.Pipeline)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownOperation) {
			return c.JSON(http.StatusBadRequest, queryResponse{
				Message: err.Error(),
			})
		}
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid pipeline",
		})
	}

	checker := rights.NewChecker(db.New(app.DBConn))
	ok, err := checker.MayRunAssembly(ctx, middleware.Subject(user), data.NetworkIDs)
	if err != nil {
		logger.Error("Failed to check assembly rights", "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{
			Message: "Internal server error",
		})
	}
	if !ok {
		return c.JSON(http.StatusForbidden, queryResponse{
			Message: "You may not query one of these networks",
		})
	}

	store := querystore.New(app.DBConn).WithUser(user.UserID)
	builder := query.NewBuilder(store, app.Registry)
	created, err := builder.Build(ctx, data.NetworkIDs, seeds, steps)
	if err != nil {
		if errors.Is(err, query.ErrEmptyAssembly) {
			return c.JSON(http.StatusBadRequest, queryResponse{
				Message: "A query needs at least one network",
			})
		}
		logger.Error("Failed to build query", "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, queryResponse{
		Message: "Query created",
		Query:   &created,
	})
}

// loadAuthorizedQuery fetches the query and verifies the caller may run its
// assembly. A rights miss looks like a missing query on purpose.
func loadAuthorizedQuery(c echo.Context, id int64) (query.Query, *query.Builder, int, string) {
	user := c.(*middleware.AppContext).User
	if user == nil {
		return query.Query{}, nil, http.StatusUnauthorized, "Unauthorized"
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	store := querystore.New(app.DBConn).WithUser(user.UserID)
	builder := query.NewBuilder(store, app.Registry)

	stored, err := store.GetQuery(ctx, id)
	if err != nil {
		return query.Query{}, nil, http.StatusNotFound, "Query not found"
	}

	assembly, err := store.GetAssembly(ctx, stored.AssemblyID)
	if err != nil {
		return query.Query{}, nil, http.StatusNotFound, "Query not found"
	}
	checker := rights.NewChecker(db.New(app.DBConn))
	ok, err := checker.MayRunAssembly(ctx, middleware.Subject(user), assembly.NetworkIDs)
	if err != nil || !ok {
		return query.Query{}, nil, http.StatusNotFound, "Query not found"
	}

	return stored, builder, 0, ""
}

func GetQueryHandler(c echo.Context) error {
	type getQueryParams struct {
		ID int64 `param:"id" validate:"required,numeric"`
	}

	params := new(getQueryParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: "Invalid request params"})
	}

	stored, _, status, msg := loadAuthorizedQuery(c, params.ID)
	if status != 0 {
		return c.JSON(status, queryResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, queryResponse{
		Message: "Query found",
		Query:   &stored,
	})
}

// GetQueryAncestorsHandler walks the derivation chain up to the root.
func GetQueryAncestorsHandler(c echo.Context) error {
	type getQueryParams struct {
		ID int64 `param:"id" validate:"required,numeric"`
	}

	type ancestorsResponse struct {
		Message   string        `json:"message"`
		Ancestors []query.Query `json:"ancestors,omitempty"`
	}

	params := new(getQueryParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, ancestorsResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, ancestorsResponse{Message: "Invalid request params"})
	}

	_, builder, status, msg := loadAuthorizedQuery(c, params.ID)
	if status != 0 {
		return c.JSON(status, ancestorsResponse{Message: msg})
	}

	chain, err := builder.Ancestors(c.Request().Context(), params.ID)
	if err != nil {
		logger.Error("Failed to walk query ancestors", "query_id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, ancestorsResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, ancestorsResponse{
		Message:   "Ancestors found",
		Ancestors: chain,
	})
}

// RunQueryHandler executes the query and returns the resulting subgraph.
func RunQueryHandler(c echo.Context) error {
	type runQueryParams struct {
		ID int64 `param:"id" validate:"required,numeric"`
	}

	params := new(runQueryParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: "Invalid request params"})
	}

	stored, builder, status, msg := loadAuthorizedQuery(c, params.ID)
	if status != 0 {
		return c.JSON(status, queryResponse{Message: msg})
	}

	g, err := builder.Run(c.Request().Context(), stored)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownOperation) {
			return c.JSON(http.StatusBadRequest, queryResponse{Message: err.Error()})
		}
		logger.Error("Failed to run query", "query_id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, g)
}

// AppendQuerySeedHandler derives a child query with one more seed.
func AppendQuerySeedHandler(c echo.Context) error {
	type appendSeedBody struct {
		ID   int64           `param:"id" validate:"required,numeric"`
		Op   string          `json:"op" validate:"required"`
		Args json.RawMessage `json:"args"`
	}

	data := new(appendSeedBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	seed, err := app.Registry.NewSeed(data.Op, data.Args)
	if err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: err.Error()})
	}

	stored, builder, status, msg := loadAuthorizedQuery(c, data.ID)
	if status != 0 {
		return c.JSON(status, queryResponse{Message: msg})
	}

	child, err := builder.BuildSeeded(c.Request().Context(), stored, seed)
	if err != nil {
		logger.Error("Failed to derive query", "parent_id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, queryResponse{
		Message: "Query derived",
		Query:   &child,
	})
}

// AppendQueryStepHandler derives a child query with one more pipeline step.
func AppendQueryStepHandler(c echo.Context) error {
	type appendStepBody struct {
		ID   int64           `param:"id" validate:"required,numeric"`
		Op   string          `json:"op" validate:"required"`
		Args json.RawMessage `json:"args"`
	}

	data := new(appendStepBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	step, err := app.Registry.NewStep(data.Op, data.Args)
	if err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: err.Error()})
	}

	stored, builder, status, msg := loadAuthorizedQuery(c, data.ID)
	if status != 0 {
		return c.JSON(status, queryResponse{Message: msg})
	}

	child, err := builder.BuildAppended(c.Request().Context(), stored, step)
	if err != nil {
		logger.Error("Failed to derive query", "parent_id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, queryResponse{
		Message: "Query derived",
		Query:   &child,
	})
}
