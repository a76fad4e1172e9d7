package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/fastfish/assortment-engine/internal/analytics"
	"github.com/fastfish/assortment-engine/internal/cache"
	"github.com/fastfish/assortment-engine/internal/config"
	"github.com/fastfish/assortment-engine/internal/pipeline"
	"github.com/fastfish/assortment-engine/internal/repository"
	"github.com/fastfish/assortment-engine/internal/repository/postgres"
	"github.com/fastfish/assortment-engine/internal/rules"
	"github.com/fastfish/assortment-engine/internal/service"
	"github.com/fastfish/assortment-engine/internal/storage"
	"github.com/fastfish/assortment-engine/pkg/logger"
)

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Database connection string for run bookkeeping",
		EnvVars: []string{"DATABASE_URL"},
	}
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: could not load .env file: %v", err)
	}

	app := &cli.App{
		Name:  "engine",
		Usage: "Run the assortment recommendation engine",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Evaluate all rules for one period, or every period found in the input directory",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:  "period",
						Usage: "Period label to process (e.g. 202506A); processes all discovered periods when empty",
					},
					&cli.BoolFlag{
						Name:  "store",
						Usage: "Store consolidated results in the recommendations table",
					},
				},
				Action: runEngine,
			},
			{
				Name:  "ingest",
				Usage: "Download period snapshot files from a shared Drive folder into the input directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "folder-id",
						Usage: "Drive folder holding the period's uploads (defaults to DRIVE_FOLDER_ID)",
					},
				},
				Action: runIngest,
			},
			{
				Name:  "archive",
				Usage: "Upload a period's consolidated output to the archive bucket",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "period",
						Usage:    "Period label whose consolidated output should be archived",
						Required: true,
					},
				},
				Action: runArchive,
			},
			{
				Name:  "load",
				Usage: "Backfill a consolidated CSV into the recommendations table",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:     "file",
						Usage:    "Path to a consolidated_<period>.csv file",
						Required: true,
					},
				},
				Action: runLoad,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runEngine(c *cli.Context) error {
	cfg := config.Load()
	logger.SetLevel(cfg.Server.Mode)

	pipelineCfg := pipeline.DefaultConfig()
	pipelineCfg.InputDir = cfg.Engine.InputDir
	pipelineCfg.IntermediateDir = cfg.Engine.IntermediateDir
	pipelineCfg.OutputDir = cfg.Engine.OutputDir
	if cfg.Engine.WorkerCount > 0 {
		pipelineCfg.WorkerCount = cfg.Engine.WorkerCount
	}

	var runRepo *pipeline.Repository
	if dbURL := c.String("db-url"); dbURL != "" {
		db, err := sql.Open("pgx", dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		runRepo = pipeline.NewRepository(db)
	}

	orchestrator := pipeline.NewOrchestrator(pipelineCfg, rules.DefaultRuleConfig(), rules.DefaultReference(), runRepo)

	periods := []string{c.String("period")}
	if periods[0] == "" {
		discovered, err := pipeline.DiscoverPeriods(pipelineCfg.InputDir)
		if err != nil {
			return err
		}
		if len(discovered) == 0 {
			return fmt.Errorf("no observation files found in %s", pipelineCfg.InputDir)
		}
		periods = discovered
	}

	var recService *service.RecommendationService
	if c.Bool("store") {
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to results database: %w", err)
		}
		defer db.Close()

		summaryCache, err := cache.NewSummaryCache(cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		recService = service.NewRecommendationService(repository.NewRecommendationRepository(db), summaryCache)
	}

	var archiver *storage.Archiver
	if cfg.Archive.Enabled {
		var err error
		archiver, err = newArchiver(cfg.Archive)
		if err != nil {
			return err
		}
	}

	for _, period := range periods {
		out, err := orchestrator.RunPeriod(c.Context, period)
		if err != nil {
			return fmt.Errorf("period %s failed: %w", period, err)
		}

		if recService != nil {
			if err := recService.StoreResults(c.Context, period, out.Consolidated()); err != nil {
				return fmt.Errorf("failed to store results for %s: %w", period, err)
			}
		}

		if archiver != nil {
			localPath := filepath.Join(pipelineCfg.OutputDir, fmt.Sprintf("consolidated_%s.csv", period))
			if _, err := archiver.ArchiveFile(c.Context, period, localPath); err != nil {
				return fmt.Errorf("failed to archive %s: %w", period, err)
			}
		}
	}

	return nil
}

func runIngest(c *cli.Context) error {
	cfg := config.Load()
	logger.SetLevel(cfg.Server.Mode)

	folderID := c.String("folder-id")
	if folderID == "" {
		folderID = cfg.Drive.FolderID
	}
	if folderID == "" {
		return fmt.Errorf("a Drive folder id is required (--folder-id or DRIVE_FOLDER_ID)")
	}

	ingestService, err := newIngestService(cfg)
	if err != nil {
		return err
	}

	paths, err := ingestService.IngestFolder(c.Context, folderID)
	if err != nil {
		return err
	}
	log.Printf("Ingested %d files into %s", len(paths), cfg.Engine.InputDir)
	return nil
}

func runArchive(c *cli.Context) error {
	cfg := config.Load()
	logger.SetLevel(cfg.Server.Mode)

	archiver, err := newArchiver(cfg.Archive)
	if err != nil {
		return err
	}

	period := c.String("period")
	localPath := filepath.Join(cfg.Engine.OutputDir, fmt.Sprintf("consolidated_%s.csv", period))
	key, err := archiver.ArchiveFile(c.Context, period, localPath)
	if err != nil {
		return err
	}
	log.Printf("Archived %s as %s", localPath, key)
	return nil
}

func runLoad(c *cli.Context) error {
	cfg := config.Load()
	logger.SetLevel(cfg.Server.Mode)

	dbURL := c.String("db-url")
	if dbURL == "" {
		return fmt.Errorf("a database connection string is required (--db-url or DATABASE_URL)")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	loader := analytics.NewResultLoader(db)
	rows, err := loader.LoadConsolidatedFile(context.Background(), c.String("file"))
	if err != nil {
		return err
	}
	log.Printf("Loaded %d rows from %s", rows, c.String("file"))
	return nil
}

func newArchiver(archiveCfg config.ArchiveConfig) (*storage.Archiver, error) {
	client, err := storage.NewS3Client(storage.S3Config{
		Endpoint:  archiveCfg.Endpoint,
		AccessKey: archiveCfg.AccessKey,
		SecretKey: archiveCfg.SecretKey,
		Bucket:    archiveCfg.Bucket,
		Region:    archiveCfg.Region,
		UseSSL:    archiveCfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive storage: %w", err)
	}
	return storage.NewArchiver(client, archiveCfg.KeyPrefix), nil
}
