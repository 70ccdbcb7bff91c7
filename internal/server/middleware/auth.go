package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/pkg/logger"
)

var allPermissions = []string{
	"network.upload",
	"network.view:all",
	"network.delete",
	"network.share",
	"network.publish",
	"project.create",
	"project.update",
	"project.delete",
	"project.view:all",
	"project.add:user",
	"project.remove:user",
	"project.add:network",
	"project.remove:network",
	"query.create",
	"experiment.create",
	"omic.create",
	"edge.vote",
	"edge.comment",
}

// userPermissions is what a plain account can do without an explicit grant.
var userPermissions = []string{
	"network.upload",
	"project.create",
	"project.add:user",
	"project.remove:user",
	"project.add:network",
	"project.remove:network",
	"query.create",
	"experiment.create",
	"omic.create",
	"edge.vote",
	"edge.comment",
}

func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		token := strings.Split(authHeader, " ")[1]
		cc := c.(*AppContext)
		app := cc.App

		// Master API Key bypass
		if app.MasterAPIKey != "" && app.MasterUserID != "" && app.MasterUserRole != "" && token == app.MasterAPIKey {
			cc.User = &AppUser{
				UserID:      app.MasterUserID,
				Role:        app.MasterUserRole,
				Permissions: allPermissions,
			}
			return next(c)
		}

		k := *app.Key
		parsed, err := jwt.Parse(token, k.Keyfunc)
		if err != nil || !parsed.Valid {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		userID, ok := claims["sub"].(string)
		if !ok || userID == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid user ID"})
		}

		email, _ := claims["email"].(string)
		name, _ := claims["name"].(string)

		role := "user"
		if roleClaim, ok := claims["role"].(string); ok {
			role = roleClaim
		}

		var permissions []string
		if permsClaim, ok := claims["permissions"].([]any); ok {
			for _, p := range permsClaim {
				if pStr, ok := p.(string); ok {
					permissions = append(permissions, pStr)
				}
			}
		}
		if len(permissions) == 0 {
			if role == "admin" {
				permissions = allPermissions
			} else {
				permissions = userPermissions
			}
		}

		// Keep the local account in sync with the identity provider so
		// ownership and share rows have a user to point at.
		q := db.New(app.DBConn)
		if _, err := q.UpsertUser(c.Request().Context(), db.UpsertUserParams{
			ID:    userID,
			Email: email,
			Name:  name,
			Role:  role,
		}); err != nil {
			logger.Error("Failed to sync user account", "user_id", userID, "err", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		}

		cc.User = &AppUser{
			UserID:      userID,
			Email:       email,
			Name:        name,
			Role:        role,
			Permissions: permissions,
		}

		return next(c)
	}
}
