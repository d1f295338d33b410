package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/chirino/temporal-memory-store/internal/config"
	"github.com/chirino/temporal-memory-store/internal/plugin/route/admin"
	"github.com/chirino/temporal-memory-store/internal/plugin/route/memories"
	routesystem "github.com/chirino/temporal-memory-store/internal/plugin/route/system"
	registryembed "github.com/chirino/temporal-memory-store/internal/registry/embed"
	registrymigrate "github.com/chirino/temporal-memory-store/internal/registry/migrate"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
	"github.com/chirino/temporal-memory-store/internal/security"
	"github.com/chirino/temporal-memory-store/internal/service"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.MemoryStore
	Router          *gin.Engine
	Running         *RunningServers
	Scheduler       *service.Scheduler
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	if err := s.Running.Close(ctx); err != nil {
		return err
	}
	return s.Store.Close()
}

// StartServer initializes all subsystems and starts the HTTP server.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting temporal memory store",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"embedding", cfg.EmbedType,
	)

	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	if cfg.DatastoreMigrateAtStart {
		if err := registrymigrate.RunAll(ctx); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}

	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	var embedder registryembed.Embedder
	if cfg.EmbedType != "" && cfg.EmbedType != "none" {
		embedLoader, err := registryembed.Select(cfg.EmbedType)
		if err != nil {
			log.Warn("Embedder not available", "kind", cfg.EmbedType, "err", err)
		} else {
			embedder, err = embedLoader(ctx)
			if err != nil {
				log.Warn("Failed to initialize embedder", "kind", cfg.EmbedType, "err", err)
			}
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/healthz", "/readyz", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(security.AdminAuditMiddleware(false))
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	tenantMW := security.TenantMiddleware(cfg)

	writeSvc := service.NewWriteService(store, embedder, cfg)
	retrievalSvc := service.NewRetrievalService(store, embedder, cfg)
	adminSvc := service.NewAdminService(store, cfg)
	decaySvc := service.NewDecayService(store, cfg)

	memories.MountRoutes(router, writeSvc, retrievalSvc, tenantMW)
	admin.MountRoutes(router, adminSvc, decaySvc)

	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		routesystem.MountRoutes(mgmtRouter, store)

		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		_, closeManagement, err = startManagementServer(mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else {
		routesystem.MountRoutes(router, store)
	}

	interval := cfg.DecayInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	scheduler := service.NewScheduler(decaySvc, interval)
	go scheduler.Start(ctx)

	running, err := StartSinglePortHTTP(ctx, cfg.Listener, router)
	if err != nil {
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Router:          router,
		Running:         running,
		Scheduler:       scheduler,
		closeManagement: closeManagement,
	}, nil
}
