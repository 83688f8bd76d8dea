// ABOUTME: Entry point for the bothive module host.
// ABOUTME: Runs the registry, settings store, database, and control API.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/bothive/bothive/internal/config"
	"github.com/bothive/bothive/internal/control"
	"github.com/bothive/bothive/internal/db"
	"github.com/bothive/bothive/internal/logbuf"
	"github.com/bothive/bothive/internal/registry"
	"github.com/bothive/bothive/internal/settings"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _           _   _     _
 | |__   ___ | |_| |__ (_)_   _____
 | '_ \ / _ \| __| '_ \| \ \ / / _ \
 | |_) | (_) | |_| | | | |\ V /  __/
 |_.__/ \___/ \__|_| |_|_| \_/ \___|
`

// getConfigPath returns the path to the host config file.
// Priority: BOTHIVE_CONFIG env var > XDG_CONFIG_HOME/bothive/bothive.yaml > ~/.config/bothive/bothive.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BOTHIVE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bothive.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "bothive", "bothive.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: bothive <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve      Start the module host")
		fmt.Println("  init       Create a starter config file")
		fmt.Println("  health     Check host health")
		fmt.Println("  modules    List modules on a running host")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "modules":
		err = runModules(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logs := logbuf.NewBuffer(cfg.Logging.BufferLines)
	logger := setupLogger(cfg.Logging, logs)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Modules:  %s\n", cfg.Modules.Dir)
	fmt.Println()

	logger.Info("starting bothive",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"modules_dir", cfg.Modules.Dir,
	)

	// Settings store
	backend, err := settings.NewFileBackend(cfg.Settings.Path, logger)
	if err != nil {
		return fmt.Errorf("creating settings backend: %w", err)
	}
	store, err := settings.NewStore(backend, logger)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	// Shared database handle; opened lazily on first module use
	database := db.New(cfg.Database.Path, logger)

	// Module registry
	reg := registry.New(cfg.Modules.Dir, store, database, logger,
		registry.WithSetupTimeout(cfg.Modules.SetupTimeout))

	if _, err := reg.Discover(); err != nil {
		return fmt.Errorf("discovering modules: %w", err)
	}

	if cfg.Modules.Autoload {
		started := time.Now()
		loaded := reg.LoadAll()
		logger.Info("modules loaded",
			"loaded", loaded,
			"total", len(reg.List()),
			"elapsed", time.Since(started).Round(time.Millisecond),
		)
	}

	// Control facade and HTTP API
	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	facade := control.New(reg, logs, logger, version, stop)

	server := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: facade.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control API listening", "addr", cfg.Server.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-serveCtx.Done():
	case err := <-errCh:
		stop()
		logger.Error("control API failed", "error", err)
	}

	// Graceful shutdown: stop the API, unload modules, flush settings,
	// then tear down the database exactly once.
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("control API shutdown failed", "error", err)
	}

	reg.Close()

	if err := store.Close(); err != nil {
		logger.Error("flushing settings failed", "error", err)
	}
	if err := database.Close(); err != nil {
		logger.Error("closing database failed", "error", err)
	}

	logger.Info("bothive stopped")
	return nil
}

const starterConfig = `server:
  http_addr: "localhost:5566"

modules:
  dir: "modules"
  autoload: true
  setup_timeout: "30s"

settings:
  path: "settings.json"

database:
  path: "bothive.db"

logging:
  level: "info"
  format: "text"
  buffer_lines: 500
`

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Wrote %s\n", configPath)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/status", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runModules(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/modules", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("listing modules failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var list control.ListModulesResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)
	for _, m := range list.Modules {
		switch m.State {
		case "loaded":
			green.Printf("  ● ")
		case "error":
			red.Printf("  ● ")
		default:
			gray.Printf("  ○ ")
		}
		fmt.Printf("%-16s %s", m.ID, m.State)
		if m.Error != "" {
			gray.Printf("  (%s)", m.Error)
		}
		fmt.Println()
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig, logs *logbuf.Buffer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(logbuf.NewHandler(handler, logs))
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs), then record attrs
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
