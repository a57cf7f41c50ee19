// Command agent runs the MedicApp offline-first sync agent: a durable local
// replica of the patient collection, a pending-operation queue drained on
// reconnect, and the HTTP/WebSocket surface the UI talks to.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medicapp-sync/internal/config"
	"medicapp-sync/internal/handler"
	"medicapp-sync/internal/middleware"
	"medicapp-sync/internal/netmon"
	"medicapp-sync/internal/repository"
	"medicapp-sync/internal/service"
	"medicapp-sync/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		logger.Fatal("failed to build CouchDB client", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ensureDatabase(ctx, client, cfg.Database.Name, logger)

	store, err := repository.OpenLocalStore(cfg.Local.Path)
	if err != nil {
		logger.Fatal("failed to open local store", zap.Error(err))
	}
	defer store.Close()

	documents := repository.NewCouchDocumentService(client, cfg.Database.Name)
	userRepo := repository.NewUserRepository(client, cfg.Database.Name)

	monitor := netmon.New(&netmon.CouchProber{Client: client}, cfg.Sync.ProbeInterval, logger)
	monitor.Start(ctx)

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxClients,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
		logger,
	)
	go wsManager.Run()

	sessionService := service.NewSessionService(
		store,
		cfg.Session.Secret,
		cfg.Session.Duration,
		cfg.Session.RenewThreshold,
		logger,
	)
	go sessionService.Run(ctx)
	sessionService.OnSessionChange(wsManager.NotifySession)

	syncService := service.NewSyncService(store, documents, monitor, logger)
	syncService.SetNotifier(wsManager)

	recordService := service.NewRecordService(store, documents, monitor, logger)
	authService := service.NewAuthService(userRepo, sessionService)

	monitor.OnReconnect(func() {
		if err := syncService.SyncPendingChanges(ctx); err != nil {
			logger.Error("queue drain failed", zap.Error(err))
		}
	})
	monitor.OnDisconnect(func() {
		if status, err := syncService.GetSyncStatus(); err == nil {
			wsManager.NotifySyncStatus(status)
		}
	})

	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(syncService))

	authHandler := handler.NewAuthHandler(authService, sessionService)
	patientHandler := handler.NewPatientHandler(syncService)
	recordHandler := handler.NewRecordHandler(recordService)
	syncHandler := handler.NewSyncHandler(syncService)
	wsHandler := handler.NewWebSocketHandler(wsManager, sessionService, logger)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(sessionService))

	protected.HandleFunc("/auth/logout", authHandler.Logout).Methods("POST", "OPTIONS")
	protected.HandleFunc("/auth/me", authHandler.Me).Methods("GET", "OPTIONS")

	protected.HandleFunc("/patients", patientHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/patients", patientHandler.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/patients/{id}", patientHandler.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/patients", middleware.RequireAdmin(patientHandler.Delete)).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/prehospital-records", recordHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/prehospital-records", recordHandler.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/prehospital-records/{id}", recordHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/prehospital-records/{id}", recordHandler.Delete).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/sync/status", syncHandler.Status).Methods("GET", "OPTIONS")
	protected.HandleFunc("/sync/force", syncHandler.ForceSync).Methods("POST", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)
	r.HandleFunc("/health", healthHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting sync agent",
			zap.String("addr", addr),
			zap.String("env", cfg.Server.Env),
			zap.String("couch", fmt.Sprintf("%s:%s", cfg.Database.Host, cfg.Database.Port)),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}

	logger.Info("stopped")
}

// ensureDatabase creates the remote database when reachable. A failure here
// is the offline case, not a fatal one: the agent starts and works locally.
func ensureDatabase(ctx context.Context, client *kivik.Client, name string, logger *zap.Logger) {
	exists, err := client.DBExists(ctx, name)
	if err != nil {
		logger.Warn("remote store unreachable at startup, continuing offline", zap.Error(err))
		return
	}

	if !exists {
		if err := client.CreateDB(ctx, name); err != nil {
			logger.Warn("failed to create remote database", zap.Error(err))
			return
		}
		logger.Info("created remote database", zap.String("name", name))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Server.Env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"medicapp-sync"}`))
}
