package main

import (
  "context"
  "fmt"
  "os"
  "os/signal"
  "syscall"
  "time"
  "github.com/robfig/cron"
  "github.com/petitionwatch/backend/internal/logger"
  "github.com/petitionwatch/backend/internal/utils"
  "github.com/petitionwatch/backend/internal/db"
  "github.com/petitionwatch/backend/internal/observability"
  "github.com/petitionwatch/backend/internal/repos"
  "github.com/petitionwatch/backend/internal/services"
  "github.com/petitionwatch/backend/internal/types"
  "github.com/petitionwatch/backend/internal/clients/wpets"
  rediscache "github.com/petitionwatch/backend/internal/clients/redis"
)

// The tracker daemon drives the recurring work: polling signature counts,
// discovering new petitions, and recomputing trend indexes after each poll.
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
  log.Info("Loading environment variables from tracker...")
  pollEvery := utils.GetEnvAsDuration("POLL_INTERVAL", 5*time.Minute, log)
  geoPollEvery := utils.GetEnvAsDuration("GEO_POLL_INTERVAL", time.Hour, log)
  discoverEvery := utils.GetEnvAsDuration("DISCOVER_INTERVAL", time.Hour, log)
  maxRetries := utils.GetEnvAsInt("WPETS_MAX_RETRIES", 3, log)
  backoff := utils.GetEnvAsDuration("WPETS_RETRY_BACKOFF", 3*time.Second, log)
  trendSince := utils.GetEnvAsDuration("TREND_SINCE", time.Hour, log)
  trendMargin := utils.GetEnvAsDuration("TREND_MARGIN", 5*time.Minute, log)
  handleMissing := utils.GetEnv("TREND_HANDLE_MISSING", string(services.HandleMissingReindex), log)
  trendCacheTTL := utils.GetEnvAsDuration("TRENDING_CACHE_TTL", 5*time.Minute, log)
  trendingSize := utils.GetEnvAsInt("TRENDING_SIZE", 50, log)

  // OTel
  shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
    ServiceName: utils.GetEnv("OTEL_SERVICE_NAME", "petitionwatch-tracker", log),
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
  petitionRepo := repos.NewPetitionRepo(thePG, log)
  recordRepo := repos.NewRecordRepo(thePG, log)
  pollRunRepo := repos.NewPollRunRepo(thePG, log)

  // Clients
  wpetsClient := wpets.NewClient(log)
  trackerCache, err := rediscache.NewTrackerCache(log)
  if err != nil {
    log.Warn("Could not init TrackerCache, running without run locks", "error", err)
    trackerCache = nil
  }

  // Services
  poller := services.NewPoller(thePG, log, petitionRepo, recordRepo, wpetsClient)
  reconciler := services.NewReconciler(thePG, log, petitionRepo, wpetsClient)
  trendRanker := services.NewTrendRanker(thePG, log, petitionRepo, recordRepo)
  tracker := services.NewTrackerService(
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

  // Schedule
  log.Info("Setting up schedule from tracker...",
    "poll_interval", pollEvery, "geo_poll_interval", geoPollEvery, "discover_interval", discoverEvery)
  c := cron.New()
  mustSchedule(c, log, fmt.Sprintf("@every %s", pollEvery), func() {
    runJob(log, "poll", func(ctx context.Context) (*types.PollRun, error) {
      run, err := tracker.RunPoll(ctx, false)
      if err != nil {
        return run, err
      }
      // Trend indexes are recomputed off the base records a poll just wrote.
      if _, terr := tracker.RunTrendUpdate(ctx); terr != nil {
        log.Error("trend update failed", "error", terr)
      }
      return run, nil
    })
  })
  mustSchedule(c, log, fmt.Sprintf("@every %s", geoPollEvery), func() {
    runJob(log, "geo_poll", func(ctx context.Context) (*types.PollRun, error) {
      return tracker.RunPoll(ctx, true)
    })
  })
  mustSchedule(c, log, fmt.Sprintf("@every %s", discoverEvery), func() {
    runJob(log, "discover", func(ctx context.Context) (*types.PollRun, error) {
      return tracker.RunDiscovery(ctx, "open")
    })
  })
  c.Start()
  defer c.Stop()

  // Populate once on boot so a fresh database starts tracking immediately.
  runJob(log, "discover", func(ctx context.Context) (*types.PollRun, error) {
    return tracker.RunDiscovery(ctx, "open")
  })

  quit := make(chan os.Signal, 1)
  signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
  sig := <-quit
  log.Info("Shutting down tracker...", "signal", sig.String())
}

func mustSchedule(c *cron.Cron, log *logger.Logger, spec string, job func()) {
  if err := c.AddFunc(spec, job); err != nil {
    log.Fatal("could not schedule job", "spec", spec, "error", err)
  }
}

func runJob(log *logger.Logger, kind string, op func(context.Context) (*types.PollRun, error)) {
  ctx, cancel := context.WithTimeout(context.Background(), 25*time.Minute)
  defer cancel()
  run, err := op(ctx)
  if err != nil {
    log.Error("tracker job failed", "kind", kind, "error", err)
    return
  }
  if run == nil {
    return
  }
  log.Info("tracker job finished", "kind", kind, "run_id", run.ID, "succeeded", run.Succeeded)
}
