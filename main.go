package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"referee-hand/config"
	"referee-hand/models"
	"referee-hand/providers"
	"referee-hand/providers/auditlog"
	"referee-hand/providers/email"
	"referee-hand/providers/scrape"
	"referee-hand/services"
	"referee-hand/storage"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	manuscriptsReconciledCounter prometheus.Counter
	evidenceDroppedCounter       prometheus.Counter
	statusAnomaliesCounter       prometheus.Counter
)

func init() {
	manuscriptsReconciledCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "manuscripts_reconciled_total",
			Help: "Total number of manuscripts reconciled into canonical snapshots.",
		},
	)
	evidenceDroppedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "evidence_events_dropped_total",
			Help: "Total number of malformed evidence records dropped during normalization.",
		},
	)
	statusAnomaliesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "status_anomalies_total",
			Help: "Total number of referee status anomalies flagged for audit review.",
		},
	)
	prometheus.MustRegister(manuscriptsReconciledCounter, evidenceDroppedCounter, statusAnomaliesCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		logging.Fatal("Rules load error", zap.Error(err))
	}
	logging.Info("Rules loaded",
		zap.Int("aliases", len(rules.Aliases)),
		zap.Int("exclusions", len(rules.Exclusions)))

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to manuscripts database.")

	// Auto-Migration
	if gin.Mode() == gin.DebugMode {
		logging.Info("Debug mode detected. Dropping tables for fresh start.")
		db.Migrator().DropTable(
			&models.ExpertiseTag{}, &models.AuditEvent{}, &models.File{},
			&models.Referee{}, &models.Author{}, &models.EvidenceRecord{}, &models.Manuscript{},
		)
	}
	logging.Info("Running database auto-migration...")
	db.AutoMigrate(
		&models.Manuscript{}, &models.Author{}, &models.Referee{},
		&models.ExpertiseTag{}, &models.File{}, &models.AuditEvent{},
		&models.EvidenceRecord{},
	)

	// Setup Services
	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	repo := storage.NewRepository(db, logging)

	normalizers := []providers.Normalizer{
		email.NewNormalizer(logging),
		scrape.NewNormalizer(logging),
		auditlog.NewNormalizer(logging),
	}
	reconcileService := services.NewReconcileService(cfg, rules, repo, logging, normalizers)
	reconcileService.DroppedCounter = evidenceDroppedCounter
	reconcileService.AnomalyCounter = statusAnomaliesCounter

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupManuscriptRoutes(router, repo, logging)
	setupRefereeRoutes(router, repo, logging)
	setupEvidenceRoutes(router, repo, logging)
	setupReconcileRoutes(router, reconcileService)
	setupFileRoutes(router, repo, s3Client, cfg, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled reconciliation sweep...")
		count, err := reconcileService.RunAll(context.Background())
		if err != nil {
			logging.Error("Cron reconciliation failed", zap.Error(err))
		} else {
			logging.Info("Cron reconciliation completed", zap.Int("manuscripts", count))
			manuscriptsReconciledCounter.Add(float64(count))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupManuscriptRoutes(router *gin.Engine, repo *storage.Repository, log *zap.Logger) {
	rg := router.Group("/manuscripts")

	// GET über den Natural Key; liefert den vollen Snapshot inkl. Children.
	rg.GET("/:journal/:external", func(c *gin.Context) {
		m, err := repo.Get(c.Request.Context(), c.Param("journal"), c.Param("external"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "manuscript not found"})
				return
			}
			log.Error("Database query for manuscript failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, m)
	})

	// Body-gesteuerter Endpunkt für gefilterte Listen.
	rg.POST("/query", func(c *gin.Context) {
		var req storage.ManuscriptFilter
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		manuscripts, err := repo.Query(c.Request.Context(), req)
		if err != nil {
			log.Error("Database query for manuscripts failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, manuscripts)
	})
}

func setupRefereeRoutes(router *gin.Engine, repo *storage.Repository, log *zap.Logger) {
	rg := router.Group("/referees")

	rg.GET("/:journal/:external", func(c *gin.Context) {
		m, err := repo.Get(c.Request.Context(), c.Param("journal"), c.Param("external"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "manuscript not found"})
				return
			}
			log.Error("Database query for referees failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, m.Referees)
	})
}

func setupEvidenceRoutes(router *gin.Engine, repo *storage.Repository, log *zap.Logger) {
	rg := router.Group("/evidence")

	type EvidenceInput struct {
		JournalID  string          `json:"journal_id" binding:"required"`
		ExternalID string          `json:"external_id" binding:"required"`
		SourceKind string          `json:"source_kind" binding:"required"`
		Payload    json.RawMessage `json:"payload" binding:"required"`
	}

	save := func(c *gin.Context, input EvidenceInput) (bool, error) {
		sum := sha256.Sum256(input.Payload)
		record := models.EvidenceRecord{
			ReceivedAt:  time.Now().UTC(),
			JournalID:   input.JournalID,
			ExternalID:  input.ExternalID,
			Fingerprint: hex.EncodeToString(sum[:]),
			SourceKind:  input.SourceKind,
			Payload:     []byte(input.Payload),
		}
		return repo.SaveEvidence(c.Request.Context(), &record)
	}

	// POST - einzelner Evidence-Datensatz
	rg.POST("/", func(c *gin.Context) {
		var input EvidenceInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		inserted, err := save(c, input)
		if err != nil {
			log.Error("Failed to store evidence record", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if !inserted {
			// Re-Ingestion desselben Payloads ist ein No-op.
			c.JSON(http.StatusOK, gin.H{"inserted": false})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"inserted": true})
	})

	// POST - Batch, z.B. ein kompletter Postfach-Abruf
	rg.POST("/batch", func(c *gin.Context) {
		var inputs []EvidenceInput
		if err := c.ShouldBindJSON(&inputs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		inserted, skipped := 0, 0
		for _, input := range inputs {
			if input.JournalID == "" || input.ExternalID == "" || input.SourceKind == "" {
				skipped++
				continue
			}
			ok, err := save(c, input)
			if err != nil {
				log.Error("Failed to store evidence record", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}
			if ok {
				inserted++
			} else {
				skipped++
			}
		}
		c.JSON(http.StatusOK, gin.H{"inserted": inserted, "skipped": skipped})
	})
}

func setupReconcileRoutes(router *gin.Engine, svc *services.ReconcileService) {
	rg := router.Group("/reconcile")

	// Asynchroner Sweep über alle Manuskripte mit Evidence.
	rg.POST("/all", func(c *gin.Context) {
		go func() {
			count, err := svc.RunAll(context.Background())
			if err != nil {
				svc.Logger.Error("Async reconciliation sweep failed", zap.Error(err))
			} else {
				manuscriptsReconciledCounter.Add(float64(count))
				svc.Logger.Info("Async reconciliation sweep completed", zap.Int("manuscripts", count))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Reconciliation for all manuscripts triggered."})
	})

	// Synchron für ein einzelnes Manuskript; liefert den Snapshot zurück.
	rg.POST("/manuscript/:journal/:external", func(c *gin.Context) {
		key := models.ManuscriptKey{JournalID: c.Param("journal"), ExternalID: c.Param("external")}
		snapshot, err := svc.RunOne(c.Request.Context(), key)
		if err != nil {
			svc.Logger.Error("Reconciliation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
			return
		}
		manuscriptsReconciledCounter.Inc()
		c.JSON(http.StatusOK, snapshot)
	})
}

// setupFileRoutes konfiguriert den content-addressed Artefakt-Upload.
func setupFileRoutes(router *gin.Engine, repo *storage.Repository, s3Client *awss3.Client, cfg *config.Config, log *zap.Logger) {
	rg := router.Group("/files")

	// POST - Datei-Bytes hochladen und ans Manuskript hängen. Key im Bucket ist
	// die Checksum; derselbe Inhalt unter zwei Dateinamen wird einmal gespeichert.
	rg.POST("/:journal/:external", func(c *gin.Context) {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil || len(data) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty file body"})
			return
		}
		sum := sha256.Sum256(data)
		checksum := hex.EncodeToString(sum[:])

		link, err := storage.UploadArtifact(c.Request.Context(), s3Client, cfg, checksum, data)
		if err != nil {
			log.Error("Artifact upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
			return
		}

		file := models.File{
			DocumentType: c.Query("document_type"),
			Filename:     c.Query("filename"),
			Checksum:     checksum,
			StoragePath:  link,
			SizeBytes:    int64(len(data)),
		}
		if err := repo.AttachFile(c.Request.Context(), c.Param("journal"), c.Param("external"), file); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "manuscript not found"})
				return
			}
			log.Error("Failed to attach file", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"checksum":     checksum,
			"storage_path": link,
			"size_bytes":   len(data),
			"message":      fmt.Sprintf("File attached to %s/%s.", c.Param("journal"), c.Param("external")),
		})
	})
}
