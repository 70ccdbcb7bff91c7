package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/internal/server/middleware"
	"github.com/bel-commons/bel-commons/pkg/logger"
)

// VoteEdgeHandler records agreement or disagreement with a curated edge.
// One vote per user per edge; voting again changes the vote.
func VoteEdgeHandler(c echo.Context) error {
	type voteBody struct {
		EdgeKey string `param:"key" validate:"required"`
		Agreed  bool   `json:"agreed"`
	}

	data := new(voteBody)
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

	if err := q.UpsertEdgeVote(ctx, db.UpsertEdgeVoteParams{
		EdgeKey: data.EdgeKey,
		UserID:  user.UserID,
		Agreed:  data.Agreed,
	}); err != nil {
		logger.Error("Failed to record edge vote", "edge_key", data.EdgeKey, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Vote recorded"})
}

// CommentEdgeHandler attaches a free-text curation comment to an edge.
func CommentEdgeHandler(c echo.Context) error {
	type commentBody struct {
		EdgeKey string `param:"key" validate:"required"`
		Comment string `json:"comment" validate:"required"`
	}

	type commentResponse struct {
		Message string          `json:"message"`
		Comment *db.EdgeComment `json:"comment,omitempty"`
	}

	data := new(commentBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, commentResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, commentResponse{Message: "Invalid request body"})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, commentResponse{Message: "Unauthorized"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	comment, err := q.CreateEdgeComment(ctx, db.CreateEdgeCommentParams{
		EdgeKey: data.EdgeKey,
		UserID:  user.UserID,
		Comment: data.Comment,
	})
	if err != nil {
		logger.Error("Failed to record edge comment", "edge_key", data.EdgeKey, "err", err)
		return c.JSON(http.StatusInternalServerError, commentResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, commentResponse{
		Message: "Comment recorded",
		Comment: &comment,
	})
}

// GetEdgeCurationHandler returns the vote tally and comments for an edge.
func GetEdgeCurationHandler(c echo.Context) error {
	type curationParams struct {
		EdgeKey string `param:"key" validate:"required"`
	}

	type curationResponse struct {
		EdgeKey   string           `json:"edge_key"`
		Agreed    int64            `json:"agreed"`
		Disagreed int64            `json:"disagreed"`
		Comments  []db.EdgeComment `json:"comments"`
	}

	params := new(curationParams)
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

	votes, err := q.CountEdgeVotes(ctx, params.EdgeKey)
	if err != nil {
		logger.Error("Failed to count edge votes", "edge_key", params.EdgeKey, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	comments, err := q.ListEdgeComments(ctx, params.EdgeKey)
	if err != nil {
		logger.Error("Failed to list edge comments", "edge_key", params.EdgeKey, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if comments == nil {
		comments = make([]db.EdgeComment, 0)
	}

	return c.JSON(http.StatusOK, curationResponse{
		EdgeKey:   params.EdgeKey,
		Agreed:    votes.Agreed,
		Disagreed: votes.Disagreed,
		Comments:  comments,
	})
}
