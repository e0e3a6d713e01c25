package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/billchurch/webssh2-sub007/internal/audit"
	"github.com/billchurch/webssh2-sub007/internal/auth"
	"github.com/billchurch/webssh2-sub007/internal/bus"
	"github.com/billchurch/webssh2-sub007/internal/config"
	"github.com/billchurch/webssh2-sub007/internal/connpool"
	"github.com/billchurch/webssh2-sub007/internal/crypto"
	"github.com/billchurch/webssh2-sub007/internal/database"
	"github.com/billchurch/webssh2-sub007/internal/events"
	"github.com/billchurch/webssh2-sub007/internal/handlers"
	"github.com/billchurch/webssh2-sub007/internal/logging"
	"github.com/billchurch/webssh2-sub007/internal/middleware"
	"github.com/billchurch/webssh2-sub007/internal/monitor"
	"github.com/billchurch/webssh2-sub007/internal/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
)

func main() {
	// Handle CLI commands before starting the server
	if len(os.Args) > 1 && os.Args[1] == "--hash-password" {
		runHashPassword()
		return
	}

	listen := flag.String("listen", "", "listen address (host:port), overrides WEBSSH2_LISTEN_HOST/PORT")
	flag.Parse()

	config.Load()
	logging.Init(config.Cfg.LogPath)

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	audit.InitGlobal(database.DB, config.Cfg.AuditRetentionDays)

	// Event bus with its publish middleware, outermost first.
	b := bus.New(bus.Config{
		MaxQueueSize: config.Cfg.BusMaxQueueSize,
		MaxRetries:   config.Cfg.BusMaxRetries,
	})
	b.Use(bus.EventLogger())
	deduper := bus.NewDeduper(config.Duration(config.Cfg.BusDedupWindow, time.Second))
	b.Use(deduper.Middleware())
	limiter := bus.NewRateLimiter(config.Duration(config.Cfg.BusRateLimitWindow, time.Second), config.Cfg.BusRateLimitMax)
	b.Use(limiter.Middleware())
	metrics := bus.NewMetrics()
	b.Use(metrics.Middleware())

	store := session.NewStore()
	pool := connpool.New()

	registerCoreSubscriptions(b)

	if err := seedTargets(config.Cfg.TargetsPath); err != nil {
		log.Printf("WARNING: seed targets: %v", err)
	}

	mon := monitor.New(b, config.Duration(config.Cfg.MonitorInterval, monitor.DefaultInterval), store.Count, pool.Count)
	mon.Start(context.Background())

	tokens := auth.NewTokenStore(config.Duration(config.Cfg.APITokenTTL, auth.DefaultTokenTTL))

	// Token cleanup goroutine
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			tokens.Cleanup()
		}
	}()

	handlers.Bus = b
	handlers.Store = store
	handlers.Pool = pool
	handlers.TokenStore = tokens
	handlers.Mon = mon
	handlers.BusMetrics = metrics

	sched := cron.New()
	sched.AddFunc("@every 2m", func() {
		sweepIdleSessions(pool, store, config.Duration(config.Cfg.IdleTimeout, 30*time.Minute))
	})
	sched.AddFunc("@daily", purgeAuditLogs)
	sched.Start()

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (no auth)
	r.Get("/health", handlers.HealthCheck)

	// Admin login (no auth)
	r.Post("/api/auth/login", handlers.Login)

	// Ad-hoc SSH terminal. Credentials come from HTTP Basic auth; the SSH
	// server itself is the authority that accepts or rejects them.
	r.Get("/ws/ssh/{host}", handlers.SSHTerminalWS)

	// Token-protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(tokens))

		// Admin API (compressed JSON)
		r.Group(func(r chi.Router) {
			r.Use(gziphandler.GzipHandler)

			r.Post("/api/auth/logout", handlers.Logout)
			r.Get("/api/stats", handlers.GetStats)
			r.Get("/api/sessions", handlers.ListSessions)
			r.Get("/api/sessions/{id}", handlers.GetSession)
			r.Delete("/api/sessions/{id}", handlers.DeleteSession)
			r.Get("/api/audit", handlers.QueryAuditLogs)

			r.Get("/api/targets", handlers.ListTargets)
			r.Post("/api/targets", handlers.CreateTarget)
			r.Put("/api/targets/{name}", handlers.UpdateTarget)
			r.Delete("/api/targets/{name}", handlers.DeleteTarget)
		})

		// Terminal WebSockets: no response compression on upgraded
		// connections.
		r.Get("/ws/target/{name}", handlers.TargetTerminalWS)
		r.Get("/ws/local", handlers.LocalTerminalWS)
	})

	addr := *listen
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", config.Cfg.ListenHost, config.Cfg.ListenPort)
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	mon.Stop()
	sched.Stop()
	pool.Clear()

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
	if err := b.Flush(flushCtx); err != nil {
		log.Printf("Bus flush: %v", err)
	}
	cancelFlush()
	b.Clear()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// registerCoreSubscriptions wires the gateway's standing event handlers:
// terminal auth successes flow into the audit log, and system health
// transitions reach the process log.
func registerCoreSubscriptions(b *bus.Bus) {
	b.Subscribe(events.EventAuthSuccess, func(e events.Event) error {
		p, ok := e.Payload.(events.AuthPayload)
		if !ok {
			return nil
		}
		if a := audit.Get(); a != nil {
			a.Log(logging.LevelInfo, logging.Entry{
				Event:   audit.EventAuthSuccess,
				Message: "terminal authentication succeeded",
				Context: map[string]any{"session_id": p.SessionID, "username": p.Username},
			})
		}
		return nil
	})

	b.Subscribe(events.EventSystemHealth, func(e events.Event) error {
		p, ok := e.Payload.(events.HealthPayload)
		if !ok {
			return nil
		}
		if p.Status == events.HealthDegraded {
			log.Printf("WARNING: system degraded: %s", strings.Join(p.Reasons, "; "))
		} else {
			log.Printf("System health restored")
		}
		return nil
	}, bus.WithPriority(bus.High))

	b.Subscribe(events.EventSystemError, func(e events.Event) error {
		p, ok := e.Payload.(events.NoticePayload)
		if !ok {
			return nil
		}
		log.Printf("ERROR: [%s] %s: %s", p.Component, p.Message, p.Err)
		return nil
	})
}

// seedTargets loads the YAML targets file into the database and merges its
// host allowlist into the runtime config. File passwords are encrypted before
// they are stored; rows already in the database win over file entries.
func seedTargets(path string) error {
	tf, err := config.LoadTargets(path)
	if err != nil {
		return err
	}
	if len(tf.AllowedHosts) > 0 {
		config.Cfg.AllowedHosts = append(config.Cfg.AllowedHosts, tf.AllowedHosts...)
	}

	for _, t := range tf.Targets {
		if _, err := database.GetTargetByName(t.Name); err == nil {
			continue
		}
		encrypted := ""
		if t.Password != "" {
			encrypted, err = crypto.Encrypt(t.Password)
			if err != nil {
				return fmt.Errorf("encrypt password for target %q: %w", t.Name, err)
			}
		}
		row := database.Target{
			Name:     t.Name,
			Host:     t.Host,
			Port:     t.Port,
			Username: t.Username,
			Password: encrypted,
		}
		if err := database.CreateTarget(&row); err != nil {
			return fmt.Errorf("create target %q: %w", t.Name, err)
		}
		log.Printf("Seeded target %s (%s:%d)", t.Name, t.Host, t.Port)
	}
	return nil
}

func runHashPassword() {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	password := fs.String("password", "", "Password to hash")
	fs.Parse(os.Args[2:])

	if *password == "" {
		fmt.Fprintln(os.Stderr, "Usage: webssh2 --hash-password --password <pass>")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	fmt.Printf("WEBSSH2_ADMIN_PASSWORD_HASH=%s\n", hash)
}
