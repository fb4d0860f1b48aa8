// Package api is the thin HTTP boundary the out-of-scope TES API handler
// would call through: task creation (insert + launch Torc Job), get, list,
// and cancel. Routing/OpenAPI surface is intentionally minimal; grounded on
// the teacher's internal/registry/server.go gin+cors wiring.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/poiesis-tes/poiesis/internal/config"
	"github.com/poiesis-tes/poiesis/internal/logging"
	"github.com/poiesis-tes/poiesis/internal/orchestrator"
	"github.com/poiesis-tes/poiesis/internal/persistence"
)

// Server bundles the ports the API handlers read and write through.
type Server struct {
	Persist persistence.Port
	Orch    orchestrator.Port
	Config  *config.Config
	Log     *logging.Logger
}

// Run builds the router and blocks serving on cfg.Port.
func (s *Server) Run() error {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AddAllowHeaders("Authorization")
	r.Use(cors.New(corsCfg))

	auth := jwtAuthMiddleware(s.Config)

	v1 := r.Group("/ga4gh/tes/v1", auth)
	v1.POST("/tasks", s.createTask)
	v1.GET("/tasks", s.listTasks)
	v1.GET("/tasks/:id", s.getTask)
	v1.POST("/tasks/:id:cancel", s.cancelTask)
	v1.GET("/service-info", s.serviceInfo)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "UP"}) })

	return r.Run(":" + s.Config.Port)
}
