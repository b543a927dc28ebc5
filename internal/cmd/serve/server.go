package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/cmd/common"
	"github.com/chirino/student-memory-service/internal/config"
	"github.com/chirino/student-memory-service/internal/monitoring"
	"github.com/chirino/student-memory-service/internal/plugin/route/students"
	routesystem "github.com/chirino/student-memory-service/internal/plugin/route/system"
	registryroute "github.com/chirino/student-memory-service/internal/registry/route"
	"github.com/chirino/student-memory-service/internal/service"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Runtime         *common.Runtime
	Router          *gin.Engine
	Running         *RunningServers
	stopBackground  context.CancelFunc
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopBackground()
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	err := s.Running.Close(ctx)
	routesystem.Reset()
	s.Runtime.Close()
	return err
}

// StartServer initializes all subsystems and starts HTTP on a single port.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting student memory service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"contextBudget", cfg.ContextBudget,
		"maxActiveFacts", cfg.MaxActiveFacts,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := monitoring.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	monitoring.InitMetrics(metricsLabels)

	// Migrations, store, cache, policy and the memory service.
	rt, err := common.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	routesystem.SetReadinessCheck(rt.Store.Ping)

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(monitoring.AccessLogMiddleware())
	} else {
		router.Use(monitoring.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(monitoring.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Mount main route plugins on the main router.
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}
	students.MountRoutes(router, rt.Service)

	// Start background services
	bgCtx, stopBackground := context.WithCancel(ctx)
	pruner := service.NewFactPruner(rt.Store, cfg.MaxActiveFacts, cfg.PruneBatchSize, cfg.PruneInterval)
	go pruner.Start(bgCtx)

	fail := func(err error) (*Server, error) {
		stopBackground()
		rt.Close()
		return nil, err
	}

	// Mount management route plugins. If a dedicated management port is configured,
	// run them on a bare gin engine served by the management server. Otherwise,
	// mount them on the main router.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(monitoring.AccessLogMiddleware())
		}
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(mgmtRouter); err != nil {
				return fail(fmt.Errorf("failed to load management routes: %w", err))
			}
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		mgmt, err := startManagementServer(mgmtCfg, mgmtRouter)
		if err != nil {
			return fail(fmt.Errorf("failed to start management server: %w", err))
		}
		closeManagement = mgmt.Close
	} else {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(router); err != nil {
				return fail(fmt.Errorf("failed to load management routes: %w", err))
			}
		}
	}

	running, err := StartSinglePortHTTP(ctx, cfg.Listener, router)
	if err != nil {
		if closeManagement != nil {
			_ = closeManagement(context.Background())
		}
		return fail(err)
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Runtime:         rt,
		Router:          router,
		Running:         running,
		stopBackground:  stopBackground,
		closeManagement: closeManagement,
	}, nil
}
