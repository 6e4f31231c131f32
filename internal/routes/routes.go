// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"serial-gateway/internal/config"
	"serial-gateway/internal/handler"
	"serial-gateway/internal/middleware"
	"serial-gateway/internal/utils"
)

// Router holds the monitor handlers
type Router struct {
	config         *config.Config
	logger         *zap.Logger
	healthHandler  *handler.HealthHandler
	sessionHandler *handler.SessionHandler
	wsHandler      *handler.WebSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	healthHandler *handler.HealthHandler,
	sessionHandler *handler.SessionHandler,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:         config,
		logger:         logger,
		healthHandler:  healthHandler,
		sessionHandler: sessionHandler,
		wsHandler:      wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(serviceLogger))
	router.Use(middleware.LoggingMiddleware(serviceLogger))
	router.Use(middleware.CORSMiddleware(&r.config.Monitor))

	r.logger.Debug("Middleware configured")
}

// addRoutes sets up all monitor routes
func (r *Router) addRoutes(router *gin.Engine) {
	r.healthHandler.RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/ports", r.sessionHandler.ListPorts)
		apiV1.GET("/sessions", r.sessionHandler.ListSessions)
		apiV1.GET("/events", r.sessionHandler.ListEvents)
		apiV1.GET("/events/summary", r.sessionHandler.SummarizeEvents)
	}

	r.wsHandler.RegisterRoutes(router.Group("/ws"))

	r.addDocumentationRoutes(router)

	r.logger.Debug("All routes configured successfully")
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
