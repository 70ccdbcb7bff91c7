package routes

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/labstack/echo/v4"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/internal/rights"
	"github.com/bel-commons/bel-commons/internal/server/middleware"
	"github.com/bel-commons/bel-commons/pkg/logger"
)

// projectRole returns the caller's role in the project, or "" for none.
func projectRole(c echo.Context, projectID int64) string {
	user := c.(*middleware.AppContext).User
	if user == nil {
		return ""
	}
	if middleware.IsAdmin(user) {
		return "owner"
	}
	conn := c.(*middleware.AppContext).App.DBConn
	role, err := db.New(conn).GetProjectRole(c.Request().Context(), db.GetProjectRoleParams{
		ProjectID: projectID,
		UserID:    user.UserID,
	})
	if err != nil {
		return ""
	}
	return role
}

// CreateProjectHandler creates a project with the caller as owner.
func CreateProjectHandler(c echo.Context) error {
	type createProjectBody struct {
		Name        string `json:"name" validate:"required"`
		Description string `json:"description"`
	}

	type createProjectResponse struct {
		Message string      `json:"message"`
		Project *db.Project `json:"project,omitempty"`
	}

	data := new(createProjectBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createProjectResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createProjectResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, createProjectResponse{
			Message: "Unauthorized",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	tx, err := conn.Begin(ctx)
	if err != nil {
		logger.Error("Failed to begin transaction", "err", err)
		return c.JSON(http.StatusInternalServerError, createProjectResponse{
			Message: "Internal server error",
		})
	}
	defer tx.Rollback(ctx)
	qtx := db.New(conn).WithTx(tx)

	project, err := qtx.CreateProject(ctx, db.CreateProjectParams{
		Name:        data.Name,
		Description: pgtype.Text{String: data.Description, Valid: data.Description != ""},
	})
	if err != nil {
		logger.Error("Failed to create project", "err", err)
		return c.JSON(http.StatusInternalServerError, createProjectResponse{
			Message: "Internal server error",
		})
	}
	if err := qtx.AddProjectUser(ctx, db.AddProjectUserParams{
		ProjectID: project.ID,
		UserID:    user.UserID,
		Role:      "owner",
	}); err != nil {
		logger.Error("Failed to add project owner", "err", err)
		return c.JSON(http.StatusInternalServerError, createProjectResponse{
			Message: "Internal server error",
		})
	}
	if err := tx.Commit(ctx); err != nil {
		logger.Error("Failed to commit transaction", "err", err)
		return c.JSON(http.StatusInternalServerError, createProjectResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, createProjectResponse{
		Message: "Project created",
		Project: &project,
	})
}

func GetProjectsHandler(c echo.Context) error {
	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	projects, err := q.ListProjectsForUser(ctx, user.UserID)
	if err != nil {
		logger.Error("Failed to list projects", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if projects == nil {
		projects = make([]db.Project, 0)
	}

	return c.JSON(http.StatusOK, projects)
}

func GetProjectHandler(c echo.Context) error {
	type getProjectParams struct {
		ID int64 `param:"id" validate:"required,numeric"`
	}

	type getProjectResponse struct {
		Message  string           `json:"message"`
		Project  *db.Project      `json:"project,omitempty"`
		Users    []db.ProjectUser `json:"users,omitempty"`
		Networks []networkView    `json:"networks,omitempty"`
	}

	params := new(getProjectParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getProjectResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getProjectResponse{Message: "Invalid request params"})
	}

	if projectRole(c, params.ID) == "" {
		return c.JSON(http.StatusForbidden, getProjectResponse{Message: "You are not a member of this project"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	project, err := q.GetProject(ctx, params.ID)
	if err != nil {
		return c.JSON(http.StatusNotFound, getProjectResponse{Message: "Project not found"})
	}
	users, err := q.ListProjectUsers(ctx, params.ID)
	if err != nil {
		logger.Error("Failed to list project users", "project_id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, getProjectResponse{Message: "Internal server error"})
	}
	networks, err := q.ListProjectNetworks(ctx, params.ID)
	if err != nil {
		logger.Error("Failed to list project networks", "project_id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, getProjectResponse{Message: "Internal server error"})
	}
	views := make([]networkView, 0, len(networks))
	for _, n := range networks {
		views = append(views, toNetworkView(n))
	}

	return c.JSON(http.StatusOK, getProjectResponse{
		Message:  "Project found",
		Project:  &project,
		Users:    users,
		Networks: views,
	})
}

func DeleteProjectHandler(c echo.Context) error {
	type deleteProjectParams struct {
		ID int64 `param:"id" validate:"required,numeric"`
	}

	params := new(deleteProjectParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	if projectRole(c, params.ID) != "owner" {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Only the project owner may delete it"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	if err := db.New(conn).DeleteProject(ctx, params.ID); err != nil {
		logger.Error("Failed to delete project", "project_id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Project deleted"})
}

// AddProjectUserHandler adds a member. Membership makes every network of
// the project visible to the new member.
func AddProjectUserHandler(c echo.Context) error {
	type addUserBody struct {
		ID     int64  `param:"id" validate:"required,numeric"`
		UserID string `json:"user_id" validate:"required"`
		Role   string `json:"role"`
	}

	data := new(addUserBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if data.Role == "" {
		data.Role = "member"
	}

	if projectRole(c, data.ID) != "owner" {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Only the project owner may add members"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	if err := db.New(conn).AddProjectUser(ctx, db.AddProjectUserParams{
		ProjectID: data.ID,
		UserID:    data.UserID,
		Role:      data.Role,
	}); err != nil {
		logger.Error("Failed to add project member", "project_id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Member added"})
}

func RemoveProjectUserHandler(c echo.Context) error {
	type removeUserBody struct {
		ID     int64  `param:"id" validate:"required,numeric"`
		UserID string `json:"user_id" validate:"required"`
	}

	data := new(removeUserBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if projectRole(c, data.ID) != "owner" {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Only the project owner may remove members"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	if err := db.New(conn).RemoveProjectUser(ctx, db.RemoveProjectUserParams{
		ProjectID: data.ID,
		UserID:    data.UserID,
	}); err != nil {
		logger.Error("Failed to remove project member", "project_id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Member removed"})
}

// AddProjectNetworkHandler attaches a network the caller can already see to
// the project, sharing it transitively with all members.
func AddProjectNetworkHandler(c echo.Context) error {
	type addNetworkBody struct {
		ID        int64 `param:"id" validate:"required,numeric"`
		NetworkID int64 `json:"network_id" validate:"required,numeric"`
	}

	data := new(addNetworkBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if projectRole(c, data.ID) == "" {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "You are not a member of this project"})
	}

	user := c.(*middleware.AppContext).User
	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	checker := rights.NewChecker(q)
	ok, err := checker.MayAccess(ctx, middleware.Subject(user), data.NetworkID)
	if err != nil || !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Network not found"})
	}

	if err := q.AddProjectNetwork(ctx, db.AddProjectNetworkParams{
		ProjectID: data.ID,
		NetworkID: data.NetworkID,
	}); err != nil {
		logger.Error("Failed to attach network", "project_id", data.ID, "network_id", data.NetworkID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Network attached"})
}

func RemoveProjectNetworkHandler(c echo.Context) error {
	type removeNetworkBody struct {
		ID        int64 `param:"id" validate:"required,numeric"`
		NetworkID int64 `json:"network_id" validate:"required,numeric"`
	}

	data := new(removeNetworkBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if projectRole(c, data.ID) == "" {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "You are not a member of this project"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	if err := db.New(conn).RemoveProjectNetwork(ctx, db.RemoveProjectNetworkParams{
		ProjectID: data.ID,
		NetworkID: data.NetworkID,
	}); err != nil {
		logger.Error("Failed to detach network", "project_id", data.ID, "network_id", data.NetworkID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Network detached"})
}
