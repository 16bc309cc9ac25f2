package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contractguard/contractguard/internal/config"
	"github.com/contractguard/contractguard/internal/handler"
	"github.com/contractguard/contractguard/internal/middleware"
	"github.com/contractguard/contractguard/internal/pkg/logger"
	"github.com/contractguard/contractguard/internal/repository"
	"github.com/contractguard/contractguard/internal/retrieval"
	"github.com/contractguard/contractguard/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 0. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 1. Initialize Logger
	logger.Init(cfg.Server.LogLevel)

	// 2. Initialize Persistence
	// Clause / Audit / Idempotency stores (Postgres > Memory)
	var (
		db          *sqlx.DB
		clauseStore service.ClauseStore
		auditStore  service.AuditStore
		idemStore   service.IdempotencyStore
		tenantRepo  service.TenantRepo
	)
	if cfg.Database.DSN != "" {
		db, err = repository.NewDB(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		logger.Info("✅ Connected to PostgreSQL")
		clauseStore = repository.NewPostgresClauseStore(db)
		auditStore = repository.NewPostgresAuditStore(db)
		idemStore = repository.NewPostgresIdempotencyStore(db)
		tenantRepo = repository.NewPostgresTenantRepo(db)
	} else {
		logger.Warn("⚠️ No database configured, using in-memory stores (non-durable)")
		clauseStore = repository.NewMemClauseStore()
		auditStore = repository.NewMemAuditStore()
		idemStore = repository.NewMemIdempotencyStore()
	}

	// Idempotency Persistence (Redis > whatever we chose above)
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis")
			idemStore = repository.NewRedisIdempotencyStore(redisClient)
		} else {
			logger.Error("⚠️ Failed to connect to Redis, idempotency stays on primary store", "error", err)
		}
	}

	// Semantic Retrieval (optional: absent config means structural-only verdicts)
	var (
		embedder service.Embedder
		searcher service.Searcher
		corpusIx service.Indexer
	)
	if cfg.Retrieval.Endpoint != "" {
		embedder = retrieval.NewEmbeddingClient(cfg.Retrieval)
		if db != nil {
			ix := retrieval.NewPGVectorIndex(db, cfg.Retrieval.Dimensions)
			searcher, corpusIx = ix, ix
		} else {
			ix := retrieval.NewMemoryIndex()
			searcher, corpusIx = ix, ix
		}
		logger.Info("✅ Semantic retrieval enabled", "model", cfg.Retrieval.Model)
	} else {
		logger.Warn("⚠️ No embedding endpoint configured, semantic retrieval disabled")
	}

	// 3. Initialize Core Services
	tenantManager := service.NewTenantManager(cfg, tenantRepo)
	ruleEngine := service.NewRuleEngine(cfg.Rules.ExclusionLists)
	retriever := service.NewSemanticRetriever(embedder, searcher, cfg.Retrieval)
	corpusIndexer := service.NewCorpusIndexer(embedder, corpusIx, cfg.Retrieval)
	assessor := service.NewRiskAssessor(cfg.Workflow)
	guard := service.NewIdempotencyGuard(idemStore, cfg.Idempotency)
	ledger := service.NewAuditLedger(auditStore, cfg.Audit)
	analyzer := service.NewAnalyzer(clauseStore, ruleEngine, retriever, assessor, guard, ledger)

	// 过期幂等条目的后台清理（只有 Postgres 需要；Redis 靠 TTL，内存存储读时剔除）
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	if pgIdem, ok := idemStore.(*repository.PostgresIdempotencyStore); ok {
		interval := time.Duration(cfg.Database.CleanupIntervalMinutes) * time.Minute
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := pgIdem.Cleanup(cleanupCtx, cfg.Idempotency.Retention()); err != nil {
						logger.Error("idempotency cleanup failed", "error", err.Error())
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	// 4. Initialize Handlers
	complianceHandler := handler.NewComplianceHandler(analyzer)
	auditHandler := handler.NewAuditHandler(ledger)
	contractHandler := handler.NewContractHandler(clauseStore, corpusIndexer)

	// 5. Setup Router
	r := gin.New()
	r.Use(gin.Recovery())

	// Global Middleware
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.MetricsMiddleware())

	// Health / Readiness / Version
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "contractguard"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(503, gin.H{"status": "unavailable", "reason": "database unreachable"})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":    "contractguard",
			"git_commit": cfg.Build.GitCommit,
			"build_time": cfg.Build.BuildTime,
		})
	})

	// Metrics Endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API V1 Routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg, tenantManager))
	v1.Use(middleware.RateLimitMiddleware(tenantManager))
	{
		v1.POST("/compliance/check", complianceHandler.Check)
		v1.GET("/audit/records", auditHandler.List)
		v1.GET("/audit/records/:id", auditHandler.Get)
		v1.GET("/audit/stream", auditHandler.Stream)
	}

	// Admin Routes
	admin := r.Group("/admin")
	admin.Use(middleware.AdminMiddleware(cfg))
	{
		admin.POST("/contracts/:id/clauses", contractHandler.PublishClause)
		admin.GET("/contracts/:id/clauses", contractHandler.ListClauses)
		admin.POST("/precedents", contractHandler.PublishPrecedent)
		admin.GET("/audit/verify", auditHandler.Verify)
	}

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 ContractGuard started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cleanupCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}
	if db != nil {
		db.Close()
	}

	logger.Info("Server exiting")
}
