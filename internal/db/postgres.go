package db

import (
  "fmt"
  "gorm.io/driver/postgres"
  "gorm.io/gorm"
  "github.com/petitionwatch/backend/internal/types"
  "github.com/petitionwatch/backend/internal/utils"
  "github.com/petitionwatch/backend/internal/logger"
)

type PostgresService struct {
  db *gorm.DB
  log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
  serviceLog := log.With("service", "PostgresService")

  log.Info("Loading environment variables...")
  postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
  postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
  postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
  postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
  postgresName := utils.GetEnv("POSTGRES_NAME", "petitionwatch", log)

  dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

  log.Info("Connecting to Postgres...")
  db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
    DisableForeignKeyConstraintWhenMigrating: true,
  })
  if err != nil {
    log.Error("Failed to connect to Postgres", "error", err)
    return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
  }

  return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
  s.log.Info("Auto migrating postgres tables...")
  err := s.db.AutoMigrate(
    &types.Petition{},
    &types.Record{},
    &types.SignaturesByCountry{},
    &types.SignaturesByRegion{},
    &types.SignaturesByConstituency{},
    &types.PollRun{},
  )
  if err != nil {
    s.log.Error("Auto migration failed for postgres tables", "error", err)
    return err
  }
  s.log.Info("Configuring foreign key relationships for postgres tables...")
  constraints := []struct {
    table string
    name  string
    sql   string
  }{
    {
      table: "record",
      name:  "fk_record_petition_id",
      sql: `
        ALTER TABLE "record"
        ADD CONSTRAINT "fk_record_petition_id"
        FOREIGN KEY ("petition_id")
        REFERENCES "petition"("id")
        ON DELETE CASCADE
      `,
    },
    {
      table: "signatures_by_country",
      name:  "fk_sig_country_record_id",
      sql: `
        ALTER TABLE "signatures_by_country"
        ADD CONSTRAINT "fk_sig_country_record_id"
        FOREIGN KEY ("record_id")
        REFERENCES "record"("id")
        ON DELETE CASCADE
      `,
    },
    {
      table: "signatures_by_region",
      name:  "fk_sig_region_record_id",
      sql: `
        ALTER TABLE "signatures_by_region"
        ADD CONSTRAINT "fk_sig_region_record_id"
        FOREIGN KEY ("record_id")
        REFERENCES "record"("id")
        ON DELETE CASCADE
      `,
    },
    {
      table: "signatures_by_constituency",
      name:  "fk_sig_constituency_record_id",
      sql: `
        ALTER TABLE "signatures_by_constituency"
        ADD CONSTRAINT "fk_sig_constituency_record_id"
        FOREIGN KEY ("record_id")
        REFERENCES "record"("id")
        ON DELETE CASCADE
      `,
    },
  }
  for _, c := range constraints {
    drop := fmt.Sprintf(`ALTER TABLE %q DROP CONSTRAINT IF EXISTS %q`, c.table, c.name)
    if err := s.db.Exec(drop).Error; err != nil {
      s.log.Warn("Could not drop existing constraint", "constraint", c.name, "error", err)
    }
    if err := s.db.Exec(c.sql).Error; err != nil {
      return fmt.Errorf("Failed to add %s: %w", c.name, err)
    }
  }
  return nil
}

func (s *PostgresService) DB() *gorm.DB {
  return s.db
}
