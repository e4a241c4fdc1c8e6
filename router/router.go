package router

import (
	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/proxy"
	"github.com/mcmanager/minimanager/router/middleware"
	"github.com/mcmanager/minimanager/server"
)

// Configure configures the routing infrastructure for this daemon instance.
func Configure(m *server.Manager, backend proxy.Backend) *gin.Engine {
	gin.SetMode("release")

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.AttachRequestID(), middleware.CaptureErrors(), middleware.RecordMetrics())
	router.Use(middleware.AttachServerManager(m), middleware.AttachProxy(backend))
	// Requests are only logged in debug mode.
	router.Use(gin.LoggerWithFormatter(func(params gin.LogFormatterParams) string {
		log.WithFields(log.Fields{
			"client_ip":  params.ClientIP,
			"status":     params.StatusCode,
			"latency":    params.Latency,
			"request_id": params.Keys["request_id"],
		}).Debugf("%s %s", params.MethodColor()+params.Method+params.ResetColor(), params.Path)

		return ""
	}))

	// Every route below requires the node token and is rate limited per address.
	protected := router.Group("/api")
	protected.Use(middleware.RateLimit(config.Get().Api.RateLimit), middleware.RequireAuthorization())
	protected.GET("/system", getSystemInformation)
	protected.GET("/worlds", getAllWorlds)
	protected.POST("/worlds", postCreateWorld)

	// These are world specific routes, and require that the request be authorized, and
	// that the world exist on this node.
	world := protected.Group("/worlds/:world")
	world.Use(middleware.WorldExists())
	{
		world.GET("", getWorld)
		world.DELETE("", deleteWorld)

		world.GET("/activity", getWorldActivity)
		world.POST("/power", postWorldPower)
		world.POST("/commands", postWorldCommands)
		world.GET("/properties", getWorldProperties)
		world.PUT("/properties", putWorldProperties)

		files := world.Group("/files")
		{
			files.GET("/contents", getWorldFileContents)
			files.PUT("/contents", putWorldFileContents)
			files.DELETE("/contents", deleteWorldFile)
			files.GET("/list-directory", getWorldListDirectory)
		}
	}

	return router
}
