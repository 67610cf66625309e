package handler

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"saga-server/internal/config"
	"saga-server/internal/delivery/websocket"
	"saga-server/internal/reconciler"
	"saga-server/internal/service"
)

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(
	cfg *config.Config,
	sessionService service.SessionService,
	hub *websocket.Hub,
	rec *reconciler.Reconciler,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapRequestLogger(logger))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
	}))

	prom := ginprometheus.NewPrometheus("saga")
	prom.Use(router)

	h := NewSessionHandler(sessionService, logger)
	ws := NewWSHandler(hub, rec, logger)

	api := router.Group("/api")
	{
		sessions := api.Group("/sessions")
		{
			sessions.POST("", h.createSession)
			sessions.GET("/:code", h.getSession)
			sessions.POST("/:code/join", h.joinSession)
			sessions.POST("/:code/start", h.startSession)
			sessions.POST("/:code/end", h.endSession)
			sessions.POST("/:code/actions", h.submitAction)
			sessions.POST("/:code/reveal", h.revealRoll)
			sessions.POST("/:code/equip", h.equipItem)
			sessions.POST("/:code/unstick", h.forceUnstick)
		}
	}

	router.GET("/ws/sessions/:code", ws.serve)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}

// zapRequestLogger logs each request the way the rest of the service logs.
func zapRequestLogger(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("HTTP")
	return func(c *gin.Context) {
		c.Next()
		log.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
		)
	}
}
