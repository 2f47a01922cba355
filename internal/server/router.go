package server

import (
  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"
  "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
  "github.com/petitionwatch/backend/internal/handlers"
)

type RouterConfig struct {
  ServiceName     string
  AllowOrigins    []string
  PetitionHandler *handlers.PetitionHandler
  TrackerHandler  *handlers.TrackerHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  if cfg.ServiceName != "" {
    router.Use(otelgin.Middleware(cfg.ServiceName))
  }

  // Cors
  origins := cfg.AllowOrigins
  if len(origins) == 0 {
    origins = []string{"http://localhost:3000"}
  }
  router.Use(cors.New(cors.Config{
    AllowOrigins:     origins,
    AllowMethods:     []string{"GET", "OPTIONS"},
    AllowHeaders:     []string{"Content-Type", "X-Requested-With"},
    AllowCredentials: false,
  }))

  router.GET("/healthcheck", handlers.HealthCheck)

  api := router.Group("/api")
  {
    api.GET("/petitions", cfg.PetitionHandler.ListPetitions)
    api.GET("/petitions/:id", cfg.PetitionHandler.GetPetition)
    api.GET("/petitions/:id/records", cfg.PetitionHandler.GetPetitionRecords)
    api.GET("/petitions/:id/breakdown/:geography", cfg.PetitionHandler.GetPetitionBreakdown)
    api.GET("/trending", cfg.TrackerHandler.GetTrending)
    api.GET("/runs", cfg.TrackerHandler.ListRuns)
  }

  return router
}
