package server

import (
	"github.com/labstack/echo/v4"

	"github.com/bel-commons/bel-commons/internal/server/middleware"
	"github.com/bel-commons/bel-commons/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Upload and report routes
	apiRoutes.POST("/uploads", routes.UploadNetworkHandler, middleware.RequirePermission("network.upload"))
	apiRoutes.GET("/reports", routes.GetReportsHandler)
	apiRoutes.GET("/reports/:id", routes.GetReportHandler)

	// Network routes
	apiRoutes.GET("/networks", routes.GetNetworksHandler)
	apiRoutes.GET("/networks/:id", routes.GetNetworkHandler)
	apiRoutes.GET("/networks/:id/graph", routes.GetNetworkGraphHandler)
	apiRoutes.GET("/networks/:id/summary", routes.GetNetworkSummaryHandler)
	apiRoutes.DELETE("/networks/:id", routes.DeleteNetworkHandler)
	apiRoutes.POST("/networks/:id/share", routes.ShareNetworkHandler, middleware.RequirePermission("network.share"))
	apiRoutes.POST("/networks/:id/unshare", routes.UnshareNetworkHandler, middleware.RequirePermission("network.share"))
	apiRoutes.POST("/networks/:id/public", routes.PublishNetworkHandler, middleware.RequirePermission("network.publish"))

	// Query routes
	apiRoutes.POST("/queries", routes.CreateQueryHandler, middleware.RequirePermission("query.create"))
	apiRoutes.GET("/queries/:id", routes.GetQueryHandler)
	apiRoutes.GET("/queries/:id/ancestors", routes.GetQueryAncestorsHandler)
	apiRoutes.GET("/queries/:id/run", routes.RunQueryHandler)
	apiRoutes.POST("/queries/:id/seed", routes.AppendQuerySeedHandler, middleware.RequirePermission("query.create"))
	apiRoutes.POST("/queries/:id/pipeline", routes.AppendQueryStepHandler, middleware.RequirePermission("query.create"))

	// Experiment routes
	apiRoutes.POST("/experiments", routes.CreateExperimentHandler, middleware.RequirePermission("experiment.create"))
	apiRoutes.GET("/experiments", routes.GetExperimentsHandler)
	apiRoutes.GET("/experiments/:id", routes.GetExperimentHandler)

	// Omics data routes
	apiRoutes.POST("/omics", routes.CreateOmicHandler, middleware.RequirePermission("omic.create"))
	apiRoutes.GET("/omics", routes.GetOmicsHandler)
	apiRoutes.POST("/omics/:id/public", routes.SetOmicPublicHandler)
	apiRoutes.DELETE("/omics/:id", routes.DeleteOmicHandler)

	// Project routes
	apiRoutes.GET("/projects", routes.GetProjectsHandler)
	apiRoutes.POST("/projects", routes.CreateProjectHandler, middleware.RequirePermission("project.create"))
	apiRoutes.GET("/projects/:id", routes.GetProjectHandler)
	apiRoutes.DELETE("/projects/:id", routes.DeleteProjectHandler)
	apiRoutes.POST("/projects/:id/users", routes.AddProjectUserHandler, middleware.RequirePermission("project.add:user"))
	apiRoutes.DELETE("/projects/:id/users", routes.RemoveProjectUserHandler, middleware.RequirePermission("project.remove:user"))
	apiRoutes.POST("/projects/:id/networks", routes.AddProjectNetworkHandler, middleware.RequirePermission("project.add:network"))
	apiRoutes.DELETE("/projects/:id/networks", routes.RemoveProjectNetworkHandler, middleware.RequirePermission("project.remove:network"))

	// Edge curation routes
	apiRoutes.GET("/edges/:key", routes.GetEdgeCurationHandler)
	apiRoutes.POST("/edges/:key/vote", routes.VoteEdgeHandler, middleware.RequirePermission("edge.vote"))
	apiRoutes.POST("/edges/:key/comments", routes.CommentEdgeHandler, middleware.RequirePermission("edge.comment"))
}
