package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/internal/rights"
	"github.com/bel-commons/bel-commons/internal/server/middleware"
	"github.com/bel-commons/bel-commons/pkg/logger"
)

// networkView strips the serialized graph out of listings. Clients fetch
// the graph itself from the dedicated endpoint.
type networkView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	ContentHash string `json:"content_hash"`
	Public      bool   `json:"public"`
	UploaderID  string `json:"uploader_id,omitempty"`
}

func toNetworkView(n db.Network) networkView {
	v := networkView{
		ID:          n.ID,
		Name:        n.Name,
		Version:     n.Version,
		ContentHash: n.ContentHash,
		Public:      n.Public,
	}
	if n.UploaderID.Valid {
		v.UploaderID = n.UploaderID.String
	}
	return v
}

func GetNetworksHandler(c echo.Context) error {
	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	checker := rights.NewChecker(db.New(conn))

	networks, err := checker.VisibleNetworks(ctx, middleware.Subject(user))
	if err != nil {
		logger.Error("Failed to list networks", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	views := make([]networkView, 0, len(networks))
	for _, n := range networks {
		views = append(views, toNetworkView(n))
	}
	return c.JSON(http.StatusOK, views)
}

func GetNetworkHandler(c echo.Context) error {
	type getNetworkParams struct {
		ID int64 `param:"id" validate:"required,numeric"`
	}

	params := new(getNetworkParams)
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
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)
	checker := rights.NewChecker(q)

	ok, err := checker.MayAccess(ctx, middleware.Subject(user), params.ID)
	if err != nil || !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Network not found"})
	}

	network, err := q.GetNetwork(ctx, params.ID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Network not found"})
	}

	return c.JSON(http.StatusOK, toNetworkView(network))
}

// GetNetworkGraphHandler streams the stored graph document.
func GetNetworkGraphHandler(c echo.Context) error {
	type getNetworkParams struct {
		ID int64 `param:"id" validate:"required,numeric"`
	}

	params := new(getNetworkParams)
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
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)
	checker := rights.NewChecker(q)

	ok, err := checker.MayAccess(ctx, middleware.Subject(user), params.ID)
	if err != nil || !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Network not found"})
	}

	network, err := q.GetNetwork(ctx, params.ID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Network not found"})
	}

	return c.JSONBlob(http.StatusOK, network.Graph)
}

func DeleteNetworkHandler(c echo.Context) error {
	type deleteNetworkParams struct {
		ID int64 `param:"id" validate:"required,numeric"`
	}

	params := new(deleteNetworkParams)
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
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)
	checker := rights.NewChecker(q)

	ok, err := checker.MayModify(ctx, middleware.Subject(user), params.ID)
	if err != nil || !ok {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Only the uploader may delete a network"})
	}

	if err := q.DeleteNetwork(ctx, params.ID); err != nil {
		logger.Error("Failed to delete network", "network_id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Network deleted"})
}

// ShareNetworkHandler grants another user read access to a network.
func ShareNetworkHandler(c echo.Context) error {
	type shareBody struct {
		ID     int64  `param:"id" validate:"required,numeric"`
		UserID string `json:"user_id" validate:"required"`
	}

	data := new(shareBody)
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
	checker := rights.NewChecker(q)

	ok, err := checker.MayModify(ctx, middleware.Subject(user), data.ID)
	if err != nil || !ok {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Only the uploader may share a network"})
	}

	if err := q.ShareNetworkWithUser(ctx, db.ShareNetworkWithUserParams{
		NetworkID: data.ID,
		UserID:    data.UserID,
	}); err != nil {
		logger.Error("Failed to share network", "network_id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Network shared"})
}

func UnshareNetworkHandler(c echo.Context) error {
	type unshareBody struct {
		ID     int64  `param:"id" validate:"required,numeric"`
		UserID string `json:"user_id" validate:"required"`
	}

	data := new(unshareBody)
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
	checker := rights.NewChecker(q)

	ok, err := checker.MayModify(ctx, middleware.Subject(user), data.ID)
	if err != nil || !ok {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Only the uploader may unshare a network"})
	}

	if err := q.UnshareNetworkWithUser(ctx, db.UnshareNetworkWithUserParams{
		NetworkID: data.ID,
		UserID:    data.UserID,
	}); err != nil {
		logger.Error("Failed to unshare network", "network_id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Network unshared"})
}

// PublishNetworkHandler toggles the public flag.
func PublishNetworkHandler(c echo.Context) error {
	type publishBody struct {
		ID     int64 `param:"id" validate:"required,numeric"`
		Public bool  `json:"public"`
	}

	data := new(publishBody)
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
	checker := rights.NewChecker(q)

	ok, err := checker.MayModify(ctx, middleware.Subject(user), data.ID)
	if err != nil || !ok {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Only the uploader may publish a network"})
	}

	if err := q.SetNetworkPublic(ctx, db.SetNetworkPublicParams{
		ID:     data.ID,
		Public: data.Public,
	}); err != nil {
		logger.Error("Failed to set network visibility", "network_id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Network visibility updated"})
}

// GetNetworkSummaryHandler returns the parse-time summary stored on the
// completed report, falling back to recomputing nothing: no report, no
// summary.
func GetNetworkSummaryHandler(c echo.Context) error {
	type getNetworkParams struct {
		ID int64 `param:"id" validate:"required,numeric"`
	}

	params := new(getNetworkParams)
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
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)
	checker := rights.NewChecker(q)

	ok, err := checker.MayAccess(ctx, middleware.Subject(user), params.ID)
	if err != nil || !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Network not found"})
	}

	summary, err := q.GetNetworkSummary(ctx, params.ID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No summary for this network"})
	}
	if !json.Valid(summary) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No summary for this network"})
	}

	return c.JSONBlob(http.StatusOK, summary)
}
