package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/obsidianstack/volumectl/internal/api"
	"github.com/obsidianstack/volumectl/internal/auth"
	"github.com/obsidianstack/volumectl/internal/catalog"
	"github.com/obsidianstack/volumectl/internal/config"
	"github.com/obsidianstack/volumectl/internal/metrics"
	"github.com/obsidianstack/volumectl/internal/registry"
	"github.com/obsidianstack/volumectl/internal/settings"
	"github.com/obsidianstack/volumectl/internal/store"
	"github.com/obsidianstack/volumectl/internal/volume"
	"github.com/obsidianstack/volumectl/internal/ws"
)

func main() {
	configPath := flag.String("config", "volumectl.yaml", "path to config file; defaults are used if it does not exist")
	uiDir := flag.String("ui-dir", "", "serve the volume editor static files from this directory; leave empty to disable")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("volumectl starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Info("config file not found, using defaults", "config", *configPath)
		cfg = config.Default()
	case err != nil:
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Log.SlogLevel())

	slog.Info("config loaded",
		"volume_file", filepath.Join(cfg.Settings.Dir, cfg.Settings.File),
		"watch", cfg.Settings.WatchEnabled(),
		"assets_dir", cfg.Content.AssetsDir,
		"http_addr", cfg.HTTP.Addr(),
		"auth_mode", cfg.HTTP.Auth.Mode,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Known identifiers: scanned once from the assets tree, plus any listed
	// explicitly in the config.
	cat := loadCatalog(cfg.Content)

	mt := metrics.New()
	st := store.New(cfg.Settings.Dir, cat, store.WithFileName(cfg.Settings.File))
	mgr := settings.New(st,
		settings.WithWatch(cfg.Settings.WatchEnabled()),
		settings.WithSettleDelay(cfg.Settings.SettleDelay),
		settings.WithDebounce(cfg.Settings.Debounce),
		settings.WithMetrics(mt),
	)
	reg := registry.New()
	resolver := settings.NewResolver(mgr, reg)

	// WebSocket hub pushes the table to editors on change and on a tick.
	hub := ws.New(mgr, cfg.HTTP.BroadcastInterval)
	mgr.OnChange(func(*volume.Table) { hub.Notify() })
	go hub.Run(ctx)

	mgr.Start(ctx)
	defer mgr.Close()
	slog.Info("volume settings ready", "state", mgr.State().String(), "entries", mgr.Snapshot().Len())

	mt.Gauge("volumectl_table_entries", "Identifiers in the current volume table.",
		func() float64 { return float64(mgr.Snapshot().Len()) })
	mt.Gauge("volumectl_registered_handles", "Audio handles mapped to identifiers.",
		func() float64 { return float64(reg.Len()) })
	mt.Gauge("volumectl_known_identifiers", "Identifiers found in the content catalog.",
		func() float64 { return float64(cat.Len()) })
	mt.Gauge("volumectl_ws_clients", "Connected volume editors.",
		func() float64 { return float64(hub.Count()) })
	mt.Gauge("volumectl_watching", "1 when external edits are picked up automatically.",
		func() float64 {
			if mgr.State() == settings.StateReady {
				return 1
			}
			return 0
		})

	key := cfg.HTTP.Auth.Key()
	if cfg.HTTP.Auth.Mode == "apikey" && key == "" {
		slog.Warn("api key auth configured but key is empty, API is unprotected",
			"key_env", cfg.HTTP.Auth.KeyEnv)
	}
	protect := auth.APIKey(cfg.HTTP.Auth.Mode, cfg.HTTP.Auth.Header, key)

	// Combined HTTP server: REST API + WebSocket hub + metrics.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", protect(api.New(resolver, mgr, reg, cat)))
	httpMux.Handle("/ws/volumes", protect(hub))
	httpMux.Handle("/metrics", mt)

	if *uiDir != "" {
		fileSrv := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			// Unknown paths get index.html so the editor can route client-side.
			path := filepath.Join(*uiDir, filepath.FromSlash(r.URL.Path))
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, filepath.Join(*uiDir, "index.html"))
				return
			}
			fileSrv.ServeHTTP(w, r)
		})
		slog.Info("serving editor static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTP.Addr())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("volumectl shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// loadCatalog scans the assets tree and adds configured identifiers. A scan
// failure leaves only the configured identifiers.
func loadCatalog(cc config.ContentConfig) *catalog.Catalog {
	extra := make([]volume.Identifier, 0, len(cc.Identifiers))
	for _, s := range cc.Identifiers {
		id, err := volume.ParseIdentifier(s)
		if err != nil {
			slog.Warn("ignoring configured identifier", "id", s, "err", err)
			continue
		}
		extra = append(extra, id)
	}

	cat, err := catalog.Scan(cc.AssetsDir, extra...)
	if err != nil {
		slog.Warn("content scan failed, using configured identifiers only",
			"assets_dir", cc.AssetsDir, "err", err)
		return catalog.Static(extra...)
	}
	return cat
}
