package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gleamops/fieldops-api/internal/middleware"
	"github.com/gleamops/fieldops-api/internal/models"
	"github.com/gleamops/fieldops-api/internal/service"
	"github.com/gleamops/fieldops-api/pkg/config"
	"github.com/gleamops/fieldops-api/pkg/logger"
	"github.com/gleamops/fieldops-api/pkg/middleware/cors"
	"github.com/gleamops/fieldops-api/pkg/middleware/requestid"
)

// RouterDeps bundles everything the router needs.
type RouterDeps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Auth     *service.AuthService
	Metrics  *service.MetricsService
	Health   *HealthHandler
	Planning *PlanningHandler
	Periods  *SchedulePeriodHandler
	Trades   *ShiftTradeHandler
}

// NewRouter assembles the middleware chain and the full route table.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.Middleware())
	router.Use(logger.GinMiddleware(deps.Logger))
	router.Use(cors.New(deps.Config.CORS.AllowedOrigins))
	router.Use(middleware.Metrics(deps.Metrics))

	router.GET("/health", deps.Health.Live)
	router.GET("/ready", deps.Health.Ready)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	api := router.Group(deps.Config.APIPrefix)
	api.Use(middleware.JWT(deps.Auth))

	planning := api.Group("/planning")
	planning.GET("/boards", deps.Planning.ListBoards)
	planning.GET("/boards/:boardId/items", deps.Planning.ListItems)

	planningWrite := planning.Group("", middleware.RequireMinRole(models.RoleSupervisor))
	planningWrite.GET("/boards/:boardId/items/:itemId/drift", deps.Planning.Drift)
	planningWrite.POST("/boards/:boardId/items/:itemId/proposals", deps.Planning.CreateProposal)
	planningWrite.POST("/boards/:boardId/items/:itemId/apply", deps.Planning.Apply)
	planningWrite.POST("/boards/:boardId/items/:itemId/resolve-drift", deps.Planning.ResolveDrift)

	schedule := api.Group("/schedule")
	schedule.GET("/periods", deps.Periods.List)
	schedule.GET("/periods/:id/validate", deps.Periods.Validate)
	schedule.GET("/conflicts", deps.Periods.ListConflicts)
	schedule.GET("/conflicts/export", deps.Periods.ExportConflicts)
	schedule.GET("/trades", deps.Trades.List)
	schedule.POST("/trades", deps.Trades.Create)
	schedule.POST("/trades/:id/accept", deps.Trades.Accept)
	schedule.POST("/trades/:id/cancel", deps.Trades.Cancel)

	scheduleManage := schedule.Group("", middleware.RequireMinRole(models.RoleSupervisor))
	scheduleManage.POST("/periods", deps.Periods.Create)
	scheduleManage.POST("/conflicts/resolve", deps.Periods.ResolveConflicts)
	scheduleManage.POST("/trades/:id/approve", deps.Trades.Approve)
	scheduleManage.POST("/trades/:id/apply", deps.Trades.Apply)
	scheduleManage.POST("/trades/:id/deny", deps.Trades.Deny)

	periodAdmin := schedule.Group("", middleware.RequireMinRole(models.RoleManager))
	periodAdmin.POST("/periods/:id/publish", deps.Periods.Publish)
	periodAdmin.POST("/periods/:id/lock", deps.Periods.Lock)
	periodAdmin.POST("/periods/:id/archive", deps.Periods.Archive)

	return router
}
