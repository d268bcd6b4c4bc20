package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"chain-bridge.backend/internal/config"
	"chain-bridge.backend/internal/domain/entities"
	"chain-bridge.backend/internal/infrastructure/blockchain"
	"chain-bridge.backend/internal/infrastructure/jobs"
	"chain-bridge.backend/internal/infrastructure/models"
	"chain-bridge.backend/internal/infrastructure/quorum"
	"chain-bridge.backend/internal/infrastructure/repositories"
	"chain-bridge.backend/internal/interfaces/http/handlers"
	"chain-bridge.backend/internal/interfaces/http/middleware"
	"chain-bridge.backend/internal/usecases"
	"chain-bridge.backend/pkg/jwt"
	"chain-bridge.backend/pkg/logger"
	"chain-bridge.backend/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	runServer = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB  = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	// Load .env file
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := loadCfg()

	// Initialize Logger
	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	// Initialize Redis
	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(context.Background(), "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(context.Background(), "Redis initialized")

	// Set Gin mode
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database using GORM
	dsn := cfg.Database.URL()
	db, err := openDB(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Printf("⚠️ Database not available: %v (endpoints will return errors)", err)
	} else {
		log.Println("✅ Connected to PostgreSQL via GORM")
		if err := db.AutoMigrate(&models.BridgeTransfer{}, &models.DetectedAttack{}); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	// Initialize JWT service for the operator surface
	jwtService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry)

	// Initialize repositories
	transferRepo := repositories.NewTransferRepository(db)
	attackLogRepo := repositories.NewAttackLogRepository(db)

	// Initialize chain adapters
	registry, err := buildAdapterRegistry(cfg)
	if err != nil {
		return err
	}

	// Initialize the approval quorum
	approvers, err := quorum.ParseApprovers(cfg.Quorum.Approvers)
	if err != nil {
		return fmt.Errorf("failed to parse quorum approvers: %w", err)
	}
	quorumService, err := quorum.NewSignatureQuorum(cfg.Quorum.Threshold, approvers)
	if err != nil {
		return fmt.Errorf("failed to build quorum: %w", err)
	}

	// Initialize usecases
	rateLimiter := usecases.NewRateLimiter(cfg.RateLimit)
	detector := usecases.NewFlashLoanDetector(cfg.Detector, attackLogRepo)
	idemStore := redis.NewIdempotencyStore("bridge:transfer")
	orchestrator := usecases.NewBridgeOrchestrator(
		cfg.Bridge, transferRepo, registry, rateLimiter, detector, quorumService, idemStore)

	// Initialize handlers
	transferHandler := handlers.NewTransferHandler(orchestrator)
	chainHandler := handlers.NewChainHandler(registry)
	adminHandler := handlers.NewAdminHandler(rateLimiter, detector)

	// Start background jobs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	expiryJob := jobs.NewTransferExpiryJob(orchestrator, cfg.Bridge.SweepInterval)
	go expiryJob.Start(ctx)

	// Resume transfers interrupted by the previous shutdown
	if resumed, err := orchestrator.ResumePending(ctx); err != nil {
		log.Printf("⚠️ Failed to resume pending transfers: %v", err)
	} else if resumed > 0 {
		log.Printf("🔁 Resumed %d pending transfers", resumed)
	}

	// Initialize router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	registerHealthRoute(r)
	registerMetricsRoute(r)
	registerAPIV1Routes(r, routeDeps{
		transferHandler: transferHandler,
		chainHandler:    chainHandler,
		adminHandler:    adminHandler,
		authMiddleware:  middleware.DualAuthMiddleware(jwtService, cfg.Security.AdminAPIKeyHash),
	})

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("🛑 Shutting down server...")
		expiryJob.Stop()
		rateLimiter.Stop()
		cancel()
	}()

	// Start server
	log.Printf("🚀 Chain-Bridge Backend starting on port %s", cfg.Server.Port)
	log.Printf("📚 API: http://localhost:%s/api/v1", cfg.Server.Port)
	log.Printf("❤️ Health: http://localhost:%s/health", cfg.Server.Port)

	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func buildAdapterRegistry(cfg *config.Config) (*blockchain.AdapterRegistry, error) {
	registry := blockchain.NewAdapterRegistry()

	var evmSender blockchain.TxSender
	if cfg.Chains.EVM.SenderKey != "" {
		networkID, err := evmNetworkID(cfg.Chains.EVM.ChainID)
		if err != nil {
			return nil, err
		}
		sender, err := blockchain.NewEVMKeySender(cfg.Chains.EVM.RPCURL, cfg.Chains.EVM.SenderKey, networkID)
		if err != nil {
			return nil, fmt.Errorf("failed to build EVM sender: %w", err)
		}
		log.Printf("🔑 EVM hot wallet: %s", sender.Address())
		evmSender = sender
	}

	evmAdapter, err := blockchain.NewEVMAdapter(adapterConfig(cfg.Chains.EVM), evmSender, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build EVM adapter: %w", err)
	}
	registry.Register(cfg.Chains.EVM.ChainID, evmAdapter)

	utxoRPC := blockchain.NewBitcoindRPC(cfg.Chains.UTXO.RPCURL, cfg.Chains.UTXO.RPCUser, cfg.Chains.UTXO.RPCPassword)
	registry.Register(cfg.Chains.UTXO.ChainID,
		blockchain.NewUTXOAdapter(adapterConfig(cfg.Chains.UTXO), utxoRPC, nil, nil))

	ledgerRPC := blockchain.NewLedgerJSONRPC(cfg.Chains.Ledger.RPCURL)
	registry.Register(cfg.Chains.Ledger.ChainID,
		blockchain.NewLedgerAdapter(adapterConfig(cfg.Chains.Ledger), ledgerRPC, nil))

	return registry, nil
}

func adapterConfig(c config.ChainConfig) entities.ChainAdapterConfig {
	return entities.ChainAdapterConfig{
		ChainID:        c.ChainID,
		Name:           c.Name,
		RPCURL:         c.RPCURL,
		WSURL:          c.WSURL,
		Confirmations:  c.Confirmations,
		MaxRetries:     c.MaxRetries,
		RetryBackoff:   c.RetryBackoff,
		RequestTimeout: c.RequestTimeout,
		RPCRateLimit:   c.RPCRateLimit,
	}
}

// evmNetworkID extracts the numeric network id from a CAIP-2 chain id like
// eip155:84532
func evmNetworkID(chainID string) (int64, error) {
	_, raw, ok := strings.Cut(chainID, ":")
	if !ok {
		return 0, fmt.Errorf("chain id %q is not namespace:reference", chainID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chain id %q has non-numeric reference", chainID)
	}
	return id, nil
}
