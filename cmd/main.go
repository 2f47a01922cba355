package main

import (
  "context"
  "fmt"
  "os"
  "time"
  "github.com/petitionwatch/backend/internal/logger"
  "github.com/petitionwatch/backend/internal/utils"
  "github.com/petitionwatch/backend/internal/db"
  "github.com/petitionwatch/backend/internal/observability"
  "github.com/petitionwatch/backend/internal/repos"
  "github.com/petitionwatch/backend/internal/services"
  "github.com/petitionwatch/backend/internal/handlers"
  "github.com/petitionwatch/backend/internal/server"
  "github.com/petitionwatch/backend/internal/clients/wpets"
  rediscache "github.com/petitionwatch/backend/internal/clients/redis"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  log.Info("Loading environment variables from main...")
  maxRetries := utils.GetEnvAsInt("WPETS_MAX_RETRIES", 3, log)
  backoff := utils.GetEnvAsDuration("WPETS_RETRY_BACKOFF", 3*time.Second, log)
  trendSince := utils.GetEnvAsDuration("TREND_SINCE", time.Hour, log)
  trendMargin := utils.GetEnvAsDuration("TREND_MARGIN", 5*time.Minute, log)
  handleMissing := utils.GetEnv("TREND_HANDLE_MISSING", string(services.HandleMissingReindex), log)
  trendCacheTTL := utils.GetEnvAsDuration("TRENDING_CACHE_TTL", 5*time.Minute, log)
  trendingSize := utils.GetEnvAsInt("TRENDING_SIZE", 50, log)

  // OTel
  shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
    ServiceName: utils.GetEnv("OTEL_SERVICE_NAME", "petitionwatch-api", log),
    Environment: utils.GetEnv("APP_ENV", "development", log),
    Version:     utils.GetEnv("APP_VERSION", "", log),
  })
  defer shutdownOTel(context.Background())

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  petitionRepo := repos.NewPetitionRepo(thePG, log)
  recordRepo := repos.NewRecordRepo(thePG, log)
  pollRunRepo := repos.NewPollRunRepo(thePG, log)

  // Clients
  log.Info("Setting up Clients from main...")
  wpetsClient := wpets.NewClient(log)
  trackerCache, err := rediscache.NewTrackerCache(log)
  if err != nil {
    log.Warn("Could not init TrackerCache, serving without cache", "error", err)
    trackerCache = nil
  }

  // Services
  log.Info("Setting up Services from main...")
  poller := services.NewPoller(thePG, log, petitionRepo, recordRepo, wpetsClient)
  reconciler := services.NewReconciler(thePG, log, petitionRepo, wpetsClient)
  trendRanker := services.NewTrendRanker(thePG, log, petitionRepo, recordRepo)
  trackerService := services.NewTrackerService(
    thePG,
    log,
    poller,
    reconciler,
    trendRanker,
    petitionRepo,
    pollRunRepo,
    trackerCache,
    services.TrackerConfig{
      MaxRetries:    maxRetries,
      Backoff:       backoff,
      TrendSince:    trendSince,
      TrendMargin:   trendMargin,
      HandleMissing: services.HandleMissingPolicy(handleMissing),
      TrendCacheTTL: trendCacheTTL,
      TrendingSize:  trendingSize,
    },
  )
  petitionService := services.NewPetitionService(thePG, log, petitionRepo, recordRepo)
  runHistoryService := services.NewRunHistoryService(thePG, log, pollRunRepo)

  // Handlers
  log.Info("Setting up handlers from main...")
  petitionHandler := handlers.NewPetitionHandler(log, petitionService)
  trackerHandler := handlers.NewTrackerHandler(log, trackerService, runHistoryService)

  // Router
  log.Info("Setting up router from main...")
  router := server.NewRouter(server.RouterConfig{
    ServiceName:     utils.GetEnv("OTEL_SERVICE_NAME", "petitionwatch-api", log),
    PetitionHandler: petitionHandler,
    TrackerHandler:  trackerHandler,
  })

  port := utils.GetEnv("PORT", "8080", log)
  fmt.Printf("Server listening on :%s\n", port)
  if err := router.Run(":" + port); err != nil {
    log.Warn("Server failed", "error", err)
  }
}
