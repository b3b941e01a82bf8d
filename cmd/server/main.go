package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"aiforge-core/api/rest/middleware"
	"aiforge-core/api/rest/routes"
	"aiforge-core/config"
	"aiforge-core/core/announce"
	"aiforge-core/core/memstore"
	"aiforge-core/core/models"
	"aiforge-core/core/monitoring"
	"aiforge-core/core/nft"
	"aiforge-core/core/payment"
	"aiforge-core/core/registry"
	"aiforge-core/core/repository"
	"aiforge-core/core/revenue"
	"aiforge-core/core/scheduler"
	"aiforge-core/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// stores groups the persistence ports of every service
type stores struct {
	nodes    registry.Store
	counter  monitoring.NodeCounter
	jobs     scheduler.Store
	payments payment.Store
	confirms revenue.PaymentSource
	revenue  revenue.Store
	catalog  revenue.Catalog
	nft      nft.Store
	admins   middleware.AdminWalletLookup
	ping     func(ctx context.Context) error
	close    func() error
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.DatabaseURL == "" || cfg.DatabaseURL == "memory" {
		log.Warn("Using in-memory store; data is lost on restart")
		mem := memstore.New()
		for _, w := range cfg.AdminWallets {
			mem.AddAdminWallet(w)
		}
		return &stores{
			nodes:    mem,
			counter:  mem,
			jobs:     mem,
			payments: mem,
			confirms: mem,
			revenue:  mem,
			catalog:  mem,
			nft:      mem,
			admins:   mem,
			ping:     func(context.Context) error { return nil },
			close:    func() error { return nil },
		}, nil
	}

	db, err := repository.NewDB(ctx, cfg.DatabaseURL, repository.PoolConfig{})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Println("Database connected successfully")

	nodeRepo := repository.NewNodeRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	return &stores{
		nodes:    nodeRepo,
		counter:  nodeRepo,
		jobs:     repository.NewJobRepository(db),
		payments: paymentRepo,
		confirms: paymentRepo,
		revenue:  repository.NewRevenueRepository(db),
		catalog:  catalogRepo,
		nft:      repository.NewNFTRepository(db),
		admins:   catalogRepo,
		ping:     db.PingContext,
		close:    db.Close,
	}, nil
}

func openChains(ctx context.Context, cfg *config.Config) payment.ChainRouter {
	router := payment.ChainRouter{}
	if cfg.EthereumRPCURL != "" {
		eth, err := payment.DialEthereum(ctx, cfg.EthereumRPCURL)
		if err != nil {
			log.Errorf("Ethereum RPC unavailable, verification disabled: %v", err)
		} else {
			router[models.NetworkEthereum] = payment.NewBreakerClient("ethereum", eth)
		}
	}
	if cfg.TronRPCURL != "" {
		tron := payment.NewTronClient(cfg.TronRPCURL, cfg.RPCTimeout)
		router[models.NetworkTron] = payment.NewBreakerClient("tron", tron)
	}
	return router
}

func openBlobs(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.Storage.Bucket == "" {
		log.Warn("No storage bucket configured; artifacts are kept in memory")
		return storage.NewMemoryBlobStore(), nil
	}
	s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
	})
	if err != nil {
		return nil, err
	}
	return s3Store, nil
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.close()

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(promRegistry)

	// Announcements: websocket hub always, redis queue when configured
	hub := announce.NewHub()
	announcers := scheduler.MultiAnnouncer{hub}
	var queue *announce.RedisQueue
	if cfg.RedisURL != "" {
		queue, err = announce.NewRedisQueue(cfg.RedisURL, cfg.QueueKey)
		if err != nil {
			log.Fatalf("Failed to configure redis: %v", err)
		}
		defer queue.Close()
		announcers = append(announcers, queue)
	}

	nodeRegistry := registry.NewRegistry(st.nodes, cfg.NodeStaleAfter)
	sched := scheduler.NewScheduler(st.jobs, announcers, metrics, nodeRegistry.StaleCutoff, cfg.QueueTimeout)

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to configure storage: %v", err)
	}
	content := storage.NewContentStore(blobs, cfg.Storage.MaxUploadBytes)
	artifacts := storage.NewArtifactManager(content, sched)

	fees, err := cfg.FeeTable()
	if err != nil {
		log.Fatalf("Invalid fee table: %v", err)
	}
	payments := payment.NewService(st.payments, openChains(ctx, cfg), payment.Settings{
		Fees:                  fees,
		RequiredConfirmations: cfg.Confirmations(),
		PlatformWallets:       cfg.Wallets(),
		RPCTimeout:            cfg.RPCTimeout,
	}, metrics)

	minSplit, err := cfg.MinSplit()
	if err != nil {
		log.Fatalf("Invalid minimum split: %v", err)
	}
	revenueEngine := revenue.NewEngine(st.revenue, st.catalog, st.confirms, metrics, minSplit)

	subPct, apiPct, err := cfg.NFTPercents()
	if err != nil {
		log.Fatalf("Invalid NFT reward percentages: %v", err)
	}
	nftEngine := nft.NewEngine(st.nft, revenueEngine, subPct, apiPct, metrics)

	// Background workers
	if cfg.NodeSweepInterval > 0 {
		go nodeRegistry.Start(ctx, cfg.NodeSweepInterval)
	}
	if cfg.MetricsInterval > 0 {
		go metrics.Start(ctx, st.counter, cfg.MetricsInterval)
	}

	r := mux.NewRouter()
	routes.SetupRoutes(r, routes.Dependencies{
		Registry:      nodeRegistry,
		Scheduler:     sched,
		Artifacts:     artifacts,
		Content:       content,
		Announcements: hub,
		Payments:      payments,
		Revenue:       revenueEngine,
		NFT:           nftEngine,
		Nodes:         st.counter,
		Policy:        middleware.NewWalletPolicy(cfg.AdminWallets, st.admins),
		MaxUpload:     cfg.Storage.MaxUploadBytes,
	})

	r.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})).Methods("GET")

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := st.ping(pingCtx); err != nil {
			log.Warnf("Health check: database: %v", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if queue != nil {
			if err := queue.Ping(pingCtx); err != nil {
				// Announcements are advisory; polling still works
				log.Warnf("Health check: redis: %v", err)
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Start server
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
