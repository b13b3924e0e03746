// ABOUTME: Entry point for the ankimcp server
// ABOUTME: Serves a flashcard collection to MCP clients over JSON-RPC

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/ankimcp/ankimcp/internal/config"
	"github.com/ankimcp/ankimcp/internal/gateway"
	"github.com/ankimcp/ankimcp/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
               _     _
  __ _  _ __ | | __(_) _ __ ___    ___  _ __
 / _' || '_ \| |/ /| || '_ ' _ \  / __|| '_ \
| (_| || | | ||   < | || | | | | || (__ | |_) |
 \__,_||_| |_||_|\_\|_||_| |_| |_| \___|| .__/
                                        |_|
`

// getConfigPath returns the path to the config file.
// Priority: ANKIMCP_CONFIG env var > ./ankimcp.yaml > XDG_CONFIG_HOME/ankimcp/config.yaml > ~/.config/ankimcp/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ANKIMCP_CONFIG"); envPath != "" {
		return envPath
	}

	if _, err := os.Stat("ankimcp.yaml"); err == nil {
		return "ankimcp.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "ankimcp.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "ankimcp", "config.yaml")
}

// getDataPath returns the path to the ankimcp data directory.
// Priority: XDG_DATA_HOME/ankimcp > ~/.local/share/ankimcp
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "ankimcp")
}

// loadConfig loads the config file, falling back to defaults when none exists.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func printUsage() {
	fmt.Println("Usage: ankimcp <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the MCP server (default)")
	fmt.Println("  init      Create a config file interactively")
	fmt.Println("  seed      Create a sample SQLite collection")
	fmt.Println("  health    Check server health")
	fmt.Println("  version   Print the version")
	fmt.Println("  help      Show this help")
}

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "seed":
		err = runSeed(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Printf("ankimcp %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger, levelVar := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		fmt.Println("Config:     (defaults, no config file)")
	} else {
		fmt.Printf("Config:     %s\n", configPath)
	}
	green.Print("    ▶ ")
	fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	if cfg.Collection.Backend == config.BackendSQLite {
		fmt.Printf("Collection: sqlite (%s)\n", cfg.Collection.Path)
	} else {
		fmt.Println("Collection: memory (sample data)")
	}
	green.Print("    ▶ ")
	if cfg.Permissions != nil {
		fmt.Println("Policy:     configured")
	} else {
		fmt.Println("Policy:     permissive (no permissions section)")
	}

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale:  ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting ankimcp",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"backend", cfg.Collection.Backend,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger, levelVar)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// setupLogger builds the root logger. The returned LevelVar is shared with
// the MCP server so logging/setLevel requests take effect process-wide.
func setupLogger(cfg config.LoggingConfig) (*slog.Logger, *slog.LevelVar) {
	levelVar := new(slog.LevelVar)
	switch cfg.Level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info":
		levelVar.Set(slog.LevelInfo)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{
		Level: levelVar,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: levelVar,
		}
	}

	return slog.New(handler), levelVar
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
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

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
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

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
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

	var body struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("unhealthy: status %q", body.Status)
	}

	fmt.Printf("healthy (%s at %s)\n", body.Service, cfg.Server.HTTPAddr)
	return nil
}

// runSeed creates a sample SQLite collection for trying the server out.
// Usage: ankimcp seed [--path FILE]
func runSeed(ctx context.Context) error {
	var path string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--path" || arg == "-p":
			if i+1 >= len(args) {
				return fmt.Errorf("--path requires a value")
			}
			path = args[i+1]
			i++
		case strings.HasPrefix(arg, "--path="):
			path = strings.TrimPrefix(arg, "--path=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if path == "" {
		cfg, err := loadConfig(getConfigPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		path = cfg.Collection.Path
	}
	if path == "" {
		path = filepath.Join(getDataPath(), "collection.db")
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("collection already exists at %s (remove it first)", path)
	}

	col, err := store.NewSQLiteCollection(path)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	defer col.Close()

	if err := store.SeedSampleData(ctx, col); err != nil {
		return fmt.Errorf("seeding collection: %w", err)
	}

	decks, err := col.ListDecks(ctx)
	if err != nil {
		return fmt.Errorf("listing decks: %w", err)
	}
	notes, err := col.SearchNotes(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("listing notes: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created collection: %s\n", path)
	green.Printf("  ✓ Seeded %d decks and %d notes\n", len(decks), len(notes))
	fmt.Println()
	fmt.Println("To serve it:")
	fmt.Println("  ankimcp serve")
	fmt.Println()
	fmt.Println("with this in your config:")
	fmt.Println("  collection:")
	fmt.Println("    backend: \"sqlite\"")
	fmt.Printf("    path: %q\n", path)

	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("ankimcp configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultCollectionPath := filepath.Join(getDataPath(), "collection.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	// Collection
	fmt.Println("\n--- Collection Configuration ---")
	backend := prompt(reader, "Collection backend (memory/sqlite)", config.BackendMemory)
	var collectionPath string
	if backend == config.BackendSQLite {
		collectionPath = prompt(reader, "SQLite collection path", defaultCollectionPath)
	}

	// Tailscale
	fmt.Println("\n--- Tailscale Configuration ---")
	enableTailscale := prompt(reader, "Enable Tailscale?", "no")
	tailscaleEnabled := strings.ToLower(enableTailscale) == "yes" || strings.ToLower(enableTailscale) == "y"

	var tsHostname, tsAuthKey string
	var tsEphemeral, tsHTTPS bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "ankimcp")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for TS_AUTHKEY)", "")
		ephemeralStr := prompt(reader, "Ephemeral node?", "no")
		tsEphemeral = strings.ToLower(ephemeralStr) == "yes" || strings.ToLower(ephemeralStr) == "y"
		httpsStr := prompt(reader, "Enable HTTPS (Tailscale certs)?", "no")
		tsHTTPS = strings.ToLower(httpsStr) == "yes" || strings.ToLower(httpsStr) == "y"
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# ankimcp configuration\n")
	cfg.WriteString("# Generated by ankimcp init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("collection:\n")
	cfg.WriteString(fmt.Sprintf("  backend: \"%s\"\n", backend))
	if collectionPath != "" {
		cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", collectionPath))
	}
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: \"%s\"\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: \"%s\"\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
		cfg.WriteString(fmt.Sprintf("  https: %t\n", tsHTTPS))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("# Uncomment to restrict what connected clients may do.\n")
	cfg.WriteString("# permissions:\n")
	cfg.WriteString("#   global:\n")
	cfg.WriteString("#     read: true\n")
	cfg.WriteString("#     write: true\n")
	cfg.WriteString("#     delete: false\n")
	cfg.WriteString("#   mode: \"allowlist\"\n")
	cfg.WriteString("#   deck_permissions:\n")
	cfg.WriteString("#     allowlist: []\n")
	cfg.WriteString("#   protected_decks:\n")
	cfg.WriteString("#     - \"Default\"\n")

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Println("  ankimcp serve")
	if backend == config.BackendSQLite {
		fmt.Println("\nTo create the sample collection first:")
		fmt.Println("  ankimcp seed")
	}

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
