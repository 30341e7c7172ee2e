package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"wiimwatch/internal/api"
	"wiimwatch/internal/app"
	"wiimwatch/internal/config"
	"wiimwatch/internal/console"
	"wiimwatch/internal/logging"
	"wiimwatch/internal/metrics"
	"wiimwatch/internal/models"
	"wiimwatch/internal/mqtt"
	"wiimwatch/internal/scan"
	"wiimwatch/internal/server"
	"wiimwatch/internal/settings"
	"wiimwatch/internal/view"
)

const (
	appName = "wiimwatch"
	version = "0.3.0"
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage:\n")
	fmt.Fprintf(out, "  %s [flags] <qr-payload>       watch a process or tag, e.g. process:42 or tag/7\n", appName)
	fmt.Fprintf(out, "  %s [flags] settings [opts]    show or change the stored settings\n\n", appName)
	flag.PrintDefaults()
}

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML)")
		addr       = flag.String("addr", "", "address for the web screen, overrides http.addr")
	)
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Addr = *addr
	}

	store, err := settings.NewStore(cfg.SettingsPath, cfg.Seed())
	if err != nil {
		log.Fatalf("initialise settings: %v", err)
	}

	args := flag.Args()
	if len(args) > 0 && args[0] == "settings" {
		if err := runSettings(store, args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}
	if len(args) != 1 {
		flag.Usage()
		os.Exit(2)
	}

	target, err := scan.Parse(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v: %q\n", err, args[0])
		os.Exit(2)
	}

	sessionID := uuid.NewString()
	logger := logging.New(os.Stderr, cfg, appName, version).With("session", sessionID)
	slog.SetDefault(logger)

	if err := watch(cfg, store, target, sessionID, logger); err != nil {
		if errors.Is(err, app.ErrExitRequested) {
			os.Exit(1)
		}
		logger.Error("session failed", "error", err)
		os.Exit(1)
	}
}

func watch(cfg config.Config, store *settings.Store, target models.Target, sessionID string, logger *slog.Logger) error {
	screen := view.NewScreen(sessionID, target)
	stats := metrics.New()
	screen.AddListener(stats)

	var prompter *console.Prompter
	if cfg.Console.Enabled {
		screen.AddListener(console.NewRenderer(os.Stdout))
		prompter = console.NewPrompter(os.Stdin, os.Stdout)
	}

	var forwarder *mqtt.Forwarder
	if cfg.MQTT.Enabled {
		mqttCfg := cfg.MQTT
		mqttCfg.ClientID = fmt.Sprintf("%s-%s", mqttCfg.ClientID, sessionID[:8])
		forwarder = mqtt.NewForwarder(mqttCfg, sessionID, logger.With("component", "mqtt"))
	}

	session := app.New(app.Options{
		Target:    target,
		Store:     store,
		Fetcher:   api.NewClient(time.Duration(cfg.RequestTimeout) * time.Second),
		Screen:    screen,
		Recorder:  stats,
		Forwarder: forwarder,
		Prompter:  prompter,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HTTP.Enabled {
		srv := server.New(cfg.HTTP.Addr, screen, session, stats.Handler(), logger.With("component", "http"))
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("server shutdown", "error", err)
			}
		}()
		go func() {
			logger.Info("web screen listening", "addr", cfg.HTTP.Addr)
			if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "error", err)
			}
		}()
	}

	current := store.Current()
	logger.Info("watching", "target", target.String(), "server", current.ServerAddress, "interval", current.Interval())

	err := session.Run(ctx)
	// Unblock the shutdown goroutine when the user exits from the dialog.
	stop()
	if forwarder != nil {
		select {
		case <-forwarder.Done():
		case <-time.After(2 * time.Second):
		}
	}
	return err
}

func runSettings(store *settings.Store, args []string) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	var (
		baseURL  = fs.String("server", "", "WIIM API base url")
		interval = fs.Int("interval", 0, "update interval in 100ms steps")
		apiKey   = fs.String("api-key", "", "bearer token sent with every request")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cur := store.Current()
	patch := settings.Settings{ServerAddress: *baseURL, UpdateInterval: *interval, APIKey: *apiKey}
	if patch != (settings.Settings{}) {
		next := cur.Merge(patch)
		if err := store.Update(next); err != nil {
			return err
		}
		cur = next
	}

	fmt.Printf("settings file:   %s\n", store.Path())
	fmt.Printf("server address:  %s\n", cur.ServerAddress)
	fmt.Printf("update interval: %d (%s)\n", cur.UpdateInterval, cur.Interval())
	fmt.Printf("api key set:     %t\n", cur.APIKey != "")
	return nil
}
