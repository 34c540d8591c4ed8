package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/herald/internal/auth"
	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/delivery"
	"github.com/mattjoyce/herald/internal/events"
	"github.com/mattjoyce/herald/internal/lock"
	"github.com/mattjoyce/herald/internal/log"
	"github.com/mattjoyce/herald/internal/storage"
	"github.com/mattjoyce/herald/internal/tui"
	"github.com/mattjoyce/herald/internal/webhook"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		if hasHelpFlag(args) {
			printStartHelp()
			return 0
		}
		return runStart(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "config":
		return runConfigNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		*configPath = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("herald starting", "version", version, "config", *configPath)

	pidLockPath := filepath.Join(filepath.Dir(cfg.State.Path), "herald.lock")
	pidLock, err := lock.Acquire(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	store := storage.NewMessageStore(db)
	hub := events.NewHub(cfg.Delivery.HistoryLimit)

	deliverer := delivery.New(delivery.Config{
		RatePerMinute: cfg.Delivery.RatePerMinute,
		Burst:         cfg.Delivery.Burst,
	}, store, hub, log.WithComponent("delivery"))

	bots := make([]auth.Bot, 0, len(cfg.Bots))
	for _, b := range cfg.Bots {
		bots = append(bots, auth.Bot{Name: b.Name, APIKey: b.APIKey, Stream: b.Stream})
	}
	registry := auth.NewRegistry(bots)
	logger.Info("bots loaded", "count", registry.Len())

	maxBodySize, err := config.ParseMaxBodySize(cfg.Server.MaxBodySize)
	if err != nil {
		logger.Error("invalid max_body_size", "value", cfg.Server.MaxBodySize, "error", err)
		return 1
	}

	server := webhook.New(webhook.Config{
		Listen:      cfg.Server.Listen,
		MaxBodySize: maxBodySize,
	}, registry, deliverer, store, hub, log.WithComponent("webhook"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && err != context.Canceled {
			errCh <- err
		}
	}()

	logger.Info("herald running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("herald stopped")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "Gateway API URL")
	apiKey := fs.String("api-key", os.Getenv("HERALD_API_KEY"), "Bot API key")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or HERALD_API_KEY env var.")
		return 1
	}

	m := tui.NewMonitor(*apiURL, *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration check FAILED: %v\n", err)
		return 1
	}

	fmt.Println("Configuration check PASSED.")
	fmt.Printf("  listen:  %s\n", cfg.Server.Listen)
	fmt.Printf("  state:   %s\n", cfg.State.Path)
	fmt.Printf("  bots:    %d\n", len(cfg.Bots))
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	shown := newConfigView(cfg)

	if *jsonOut {
		data, _ := json.MarshalIndent(shown, "", "  ")
		fmt.Println(string(data))
	} else {
		data, _ := yaml.Marshal(shown)
		fmt.Print(string(data))
	}
	return 0
}

// configView is the printable shape of a resolved configuration. Bots live
// in a separate credential file and carry yaml:"-" on Config, so they get an
// explicit section here, with API keys redacted.
type configView struct {
	Service  config.ServiceConfig  `yaml:"service" json:"service"`
	State    config.StateConfig    `yaml:"state" json:"state"`
	Server   config.ServerConfig   `yaml:"server" json:"server"`
	Delivery config.DeliveryConfig `yaml:"delivery" json:"delivery"`
	BotsFile string                `yaml:"bots_file" json:"bots_file"`
	Bots     []botView             `yaml:"bots" json:"bots"`
}

type botView struct {
	Name   string `yaml:"name" json:"name"`
	APIKey string `yaml:"api_key" json:"api_key"`
	Stream string `yaml:"stream" json:"stream"`
}

func newConfigView(cfg *config.Config) configView {
	view := configView{
		Service:  cfg.Service,
		State:    cfg.State,
		Server:   cfg.Server,
		Delivery: cfg.Delivery,
		BotsFile: cfg.BotsFile,
		Bots:     make([]botView, len(cfg.Bots)),
	}
	for i, b := range cfg.Bots {
		view.Bots[i] = botView{Name: b.Name, APIKey: "[redacted]", Stream: b.Stream}
	}
	return view
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	target := *configPath
	if target == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		target = discovered
	}

	configDir := target
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		configDir = filepath.Dir(target)
	}

	botsFilename := "bots.yaml"
	if cfg, err := readConfigDocument(configDir); err == nil && cfg.BotsFile != "" {
		botsFilename = cfg.BotsFile
	}
	botsDir := configDir
	if filepath.IsAbs(botsFilename) {
		botsDir = filepath.Dir(botsFilename)
		botsFilename = filepath.Base(botsFilename)
	}

	hash, err := config.GenerateChecksums(botsDir, botsFilename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration locked.\n")
	fmt.Printf("  HASH %s: %s\n", botsFilename, hash)
	fmt.Printf("  WROTE %s\n", filepath.Join(botsDir, ".checksums"))
	return 0
}

// readConfigDocument parses config.yaml without bots-file resolution or
// validation; config lock must work even when the manifest is stale.
func readConfigDocument(configDir string) (*config.Config, error) {
	data, err := os.ReadFile(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		return nil, err
	}
	cfg := config.Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	info := struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
	}{
		Version: strings.TrimSpace(version),
		Commit:  "unknown",
	}
	if commit := readBuildSetting("vcs.revision"); commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("herald %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	return 0
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func loadConfigForTool(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			return nil, err
		}
		configPath = discovered
	}
	return config.Load(configPath)
}

// --- HELP ---

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`herald - Webhook-to-chat notification gateway

Usage:
  herald <command> [flags]

Commands:
  start             Start the gateway service in foreground
  watch             Real-time delivery monitoring TUI
  config check      Validate syntax, policy, and integrity
  config show       Show resolved configuration (keys redacted)
  config lock       Authorize current state (update integrity hashes)
  version           Show version information
  help              Show this help message

Use 'herald <command> --help' for command-specific flags.
`)
}

func printStartHelp() {
	fmt.Println("Usage: herald start [--config PATH]")
	fmt.Println("Start the gateway service in the foreground.")
}

func printWatchHelp() {
	fmt.Println("Usage: herald watch [flags]")
	fmt.Println()
	fmt.Println("Real-time delivery monitoring TUI.")
	fmt.Println("Shows gateway health, delivered messages, and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Gateway API URL (default: http://localhost:8080)")
	fmt.Println("  --api-key KEY    Bot API key (or HERALD_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓              Scroll messages")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: herald config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, show, lock")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: herald config check [--config PATH]")
	fmt.Println("Validate configuration syntax, bots file, and integrity manifest.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: herald config show [--config PATH] [--json]")
	fmt.Println("Show the resolved configuration with API keys redacted.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: herald config lock [--config PATH]")
	fmt.Println("Authorize current bots file state by regenerating integrity hashes.")
}
