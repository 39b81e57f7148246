package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"adsum/internal/config"
	"adsum/internal/domain"
	"adsum/internal/handler"
	"adsum/internal/hub"
	"adsum/internal/loader"
	"adsum/internal/netinfo"
	"adsum/internal/probe"
	"adsum/internal/repository/sqlite"
	"adsum/internal/roster"
	"adsum/internal/service"
	"adsum/internal/tracker"
	"adsum/internal/watcher"
)

//go:embed web/*
var webFS embed.FS

func main() {
	// Command line flags override the config file
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	configPath := flag.String("config", "", "config file path (default: search standard locations)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load configuration
	var (
		cfg     *config.Config
		cfgPath string
		err     error
	)
	if *configPath != "" {
		cfg, cfgPath, err = config.LoadFromPath(*configPath)
	} else {
		cfg, cfgPath, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.HTTP.Listen = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	// Tee logs into a rotated file when one is configured
	if cfg.Logging.File != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
		}))
	}

	log.Println("Starting Adsum server...")
	if cfgPath != "" {
		log.Printf("Config loaded: %s", cfgPath)
	} else {
		log.Printf("No config file found, running with defaults")
	}

	// Initialize SQLite repository
	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer repo.Close()
	log.Printf("Database opened: %s", cfg.Database.Path)

	// Initialize event bus
	eventBus := service.NewEventBus()

	// Initialize SSE hub
	sseHub := hub.New()
	go sseHub.Run()

	// Connect event bus to SSE hub
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for event := range eventChan {
			sseHub.Broadcast(event)
		}
	}()

	// Initialize presence service and replay open sessions
	store := roster.New()
	svc := service.NewPresenceService(store, repo, eventBus)

	ctx := context.Background()
	if err := svc.Restore(ctx); err != nil {
		log.Fatalf("Failed to restore sessions: %v", err)
	}

	// Optional roster import
	if cfg.Roster.Path != "" {
		importRoster(ctx, svc, cfg.Roster.Path)
	}

	// Scan targets: configured subnets, or whatever the host can see
	subnets := cfg.Scan.Subnets
	if len(subnets) == 0 {
		detected, err := netinfo.DetectSubnets()
		if err != nil {
			log.Fatalf("No subnets configured and auto-detection failed: %v", err)
		}
		subnets = detected
		log.Printf("Auto-detected subnets: %v", subnets)
	}

	// Probe selection. A probe that cannot run on this host is a
	// startup failure, not something to discover on the first cycle.
	prober, err := buildProber(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s probe: %v", cfg.Scan.Probe, err)
	}
	if err := prober.Check(ctx); err != nil {
		log.Fatalf("Probe %s is not usable: %v", prober.Name(), err)
	}

	// Start the presence tracker
	tr := tracker.New(prober, svc, eventBus, tracker.Settings{
		Subnets:         subnets,
		Interval:        cfg.Scan.Interval.Duration(),
		ScanTimeout:     cfg.Scan.Timeout.Duration(),
		Debounce:        cfg.Scan.Debounce.Duration(),
		ForceLogoutHour: *cfg.Scan.ForceLogoutHour,
		ActiveHours:     cfg.ActiveHoursWindow(),
	})

	trackerCtx, trackerCancel := context.WithCancel(context.Background())
	if err := tr.Start(trackerCtx); err != nil {
		log.Fatalf("Failed to start tracker: %v", err)
	}

	// Hot-reload scan targets when the config file changes
	if cfgPath != "" {
		w := watcher.New(cfgPath, func() {
			reloaded, _, err := config.LoadFromPath(cfgPath)
			if err != nil {
				log.Printf("Config reload failed, keeping current settings: %v", err)
				return
			}
			targets := reloaded.Scan.Subnets
			if len(targets) == 0 {
				targets = subnets
			}
			tr.UpdateTargets(targets, reloaded.Scan.Debounce.Duration())
		})
		go func() {
			if err := w.Watch(trackerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Config watcher stopped: %v", err)
			}
		}()
	}

	// Initialize HTTP handlers
	presenceHandler := handler.NewPresenceHandler(svc)
	presenceHandler.SetStatusReporter(tr)

	// Setup routes
	mux := http.NewServeMux()

	// User endpoints
	mux.HandleFunc("POST /api/users", presenceHandler.CreateUser)
	mux.HandleFunc("GET /api/users", presenceHandler.ListUsers)
	mux.HandleFunc("GET /api/users/{mac}", presenceHandler.GetUser)

	// Session endpoints
	mux.HandleFunc("POST /api/users/{mac}/login", presenceHandler.Login)
	mux.HandleFunc("POST /api/users/{mac}/logout", presenceHandler.Logout)
	mux.HandleFunc("POST /api/logout", presenceHandler.LogoutAll)

	// Reporting endpoints
	mux.HandleFunc("GET /api/hours", presenceHandler.Hours)
	mux.HandleFunc("GET /api/status", presenceHandler.Status)

	// SSE events endpoint
	mux.Handle("GET /events", sseHub)

	// Static files from embedded filesystem
	webContent, err := fs.Sub(webFS, "web")
	if err != nil {
		log.Fatalf("Failed to get embedded web content: %v", err)
	}
	mux.Handle("/", http.FileServer(http.FS(webContent)))

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	// Create server
	server := &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.HTTP.Listen)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop the tracker first so no transition races the shutdown
	trackerCancel()
	tr.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// buildProber constructs the scan probe named by the config.
func buildProber(cfg *config.Config) (probe.Prober, error) {
	switch cfg.Scan.Probe {
	case "arp":
		return probe.NewARP(probe.DefaultARPConfig()), nil
	case "ssh":
		return probe.NewSSHNeighbor(probe.SSHConfig{
			Host:    cfg.SSH.Host,
			Port:    cfg.SSH.Port,
			User:    cfg.SSH.User,
			KeyPath: cfg.SSH.KeyPath,
		})
	default:
		return probe.NewNmap(), nil
	}
}

// importRoster registers every user from a YAML roster file. Users that
// are already registered are skipped; anything else is a startup
// failure, because a half-imported roster is worse than none.
func importRoster(ctx context.Context, svc *service.PresenceService, path string) {
	users, err := loader.LoadRoster(path)
	if err != nil {
		log.Fatalf("Failed to load roster %s: %v", path, err)
	}

	imported, skipped := 0, 0
	for _, u := range users {
		switch err := svc.CreateUser(ctx, u); {
		case err == nil:
			imported++
		case errors.Is(err, domain.ErrDuplicateUser):
			skipped++
		default:
			log.Fatalf("Failed to import roster user %s: %v", u.Name, err)
		}
	}
	log.Printf("Roster import: %d added, %d already registered", imported, skipped)
}
