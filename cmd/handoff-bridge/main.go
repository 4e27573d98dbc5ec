// ABOUTME: Entry point for the handoff-bridge server
// ABOUTME: Brokers agent input requests to paired mobile devices

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
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
	"github.com/google/uuid"

	"github.com/2389/handoff-bridge/internal/auth"
	"github.com/2389/handoff-bridge/internal/config"
	"github.com/2389/handoff-bridge/internal/server"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                     _       __  __     _          _     _
| |__   __ _ _ __   __| | ___ / _|/ _|   | |__  _ __(_) __| | __ _  ___
| '_ \ / _' | '_ \ / _' |/ _ \ |_| |_ ___| '_ \| '__| |/ _' |/ _' |/ _ \
| | | | (_| | | | | (_| | (_) |  _|  _|__| |_) | |  | | (_| | (_| |  __/
|_| |_|\__,_|_| |_|\__,_|\___/|_| |_|    |_.__/|_|  |_|\__,_|\__, |\___|
                                                             |___/
`

// getConfigPath returns the path to the bridge config file.
// Priority: HANDOFF_CONFIG env var > XDG_CONFIG_HOME/handoff/bridge.yaml > ~/.config/handoff/bridge.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HANDOFF_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bridge.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "handoff", "bridge.yaml")
}

// getDataPath returns the path to the handoff data directory.
// Priority: XDG_DATA_HOME/handoff > ~/.local/share/handoff
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "handoff")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: handoff-bridge <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve              Start the bridge server")
		fmt.Println("  init               Create a new config file interactively")
		fmt.Println("  pair --name NAME   Issue a pairing token for a new device")
		fmt.Println("  health             Check bridge health")
		fmt.Println("  status             Show connected devices and pending requests")
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
	case "pair":
		err = runPair()
	case "health":
		err = runHealth(ctx)
	case "status":
		err = runStatus(ctx)
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

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	if cfg.Push.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Push:      %s\n", cfg.Push.Endpoint)
	}
	if cfg.Discovery.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("mDNS:      ")
		cyan.Println(cfg.Discovery.Instance)
	}

	fmt.Println()

	logger.Info("starting handoff-bridge",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	server.Version = version
	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

// runPair issues a signed pairing token for a new device. The token is
// entered (or scanned) in the mobile app, which presents it on the
// websocket handshake.
func runPair() error {
	var deviceName string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--name requires a value")
			}
			deviceName = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			deviceName = strings.TrimPrefix(arg, "--name=")
		case strings.HasPrefix(arg, "-n="):
			deviceName = strings.TrimPrefix(arg, "-n=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	deviceName = strings.TrimSpace(deviceName)
	if deviceName == "" {
		return fmt.Errorf("--name flag is required")
	}
	if len(deviceName) > 100 {
		return fmt.Errorf("device name exceeds maximum length of 100 characters")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tokens, err := auth.NewDeviceTokens([]byte(cfg.Auth.PairingSecret), cfg.Auth.DeviceTokenTTL)
	if err != nil {
		return fmt.Errorf("creating token signer: %w", err)
	}

	deviceID := uuid.New().String()
	token, err := tokens.Issue(deviceID, deviceName)
	if err != nil {
		return fmt.Errorf("issuing pairing token: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	green.Println("  Pairing token issued")
	fmt.Println()
	fmt.Printf("  Device ID:   %s\n", deviceID)
	fmt.Printf("  Device name: %s\n", deviceName)
	fmt.Println()
	cyan.Println("  Enter this token in the mobile app:")
	fmt.Println()
	fmt.Printf("  %s\n", token)
	fmt.Println()

	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
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

	return slog.New(handler)
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

	// Handler-level attrs first (from WithAttrs)
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

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
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

	fmt.Println("healthy")
	return nil
}

// statusView mirrors the /api/status response shape.
type statusView struct {
	Sessions []struct {
		DeviceID    string    `json:"device_id"`
		Name        string    `json:"name"`
		Live        bool      `json:"live"`
		LastSeen    time.Time `json:"last_seen"`
		PushCapable bool      `json:"push_capable"`
	} `json:"sessions"`
	LiveCount       int `json:"live_count"`
	PushDevices     int `json:"push_devices"`
	PendingRequests int `json:"pending_requests"`
}

func runStatus(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/status", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Auth.APIToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var view statusView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return fmt.Errorf("decoding status: %w", err)
	}

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	fmt.Printf("Live devices: %d   Push-only: %d   Pending requests: %d\n",
		view.LiveCount, view.PushDevices-countLive(view), view.PendingRequests)
	fmt.Println()

	if len(view.Sessions) == 0 {
		gray.Println("no devices known")
		return nil
	}

	for _, s := range view.Sessions {
		if s.Live {
			green.Print("  ● ")
		} else {
			gray.Print("  ○ ")
		}
		fmt.Printf("%-24s %s", s.Name, s.DeviceID)
		if s.PushCapable {
			gray.Print("  [push]")
		}
		if !s.LastSeen.IsZero() {
			gray.Printf("  last seen %s", s.LastSeen.Format("15:04:05"))
		}
		fmt.Println()
	}

	return nil
}

// countLive counts push-capable sessions that are also live, so the
// push-only figure in the status line does not double count them.
func countLive(view statusView) int {
	n := 0
	for _, s := range view.Sessions {
		if s.Live && s.PushCapable {
			n++
		}
	}
	return n
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("handoff-bridge configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "bridge.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "0.0.0.0:8787")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Push Notifications ---")
	enablePush := prompt(reader, "Enable push fallback?", "yes")
	pushEnabled := strings.ToLower(enablePush) == "yes" || strings.ToLower(enablePush) == "y"
	pushEndpoint := ""
	if pushEnabled {
		pushEndpoint = prompt(reader, "Push endpoint", "https://exp.host/--/api/v2/push/send")
	}

	fmt.Println("\n--- Discovery ---")
	enableDiscovery := prompt(reader, "Advertise on local network (mDNS)?", "yes")
	discoveryEnabled := strings.ToLower(enableDiscovery) == "yes" || strings.ToLower(enableDiscovery) == "y"
	instance := ""
	if discoveryEnabled {
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "handoff-bridge"
		}
		instance = prompt(reader, "Instance name", hostname)
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	apiToken, err := randomSecret()
	if err != nil {
		return fmt.Errorf("generating API token: %w", err)
	}
	pairingSecret, err := randomSecret()
	if err != nil {
		return fmt.Errorf("generating pairing secret: %w", err)
	}

	var cfg strings.Builder
	cfg.WriteString("# handoff-bridge configuration\n")
	cfg.WriteString("# Generated by handoff-bridge init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  api_token: \"%s\"\n", apiToken))
	cfg.WriteString(fmt.Sprintf("  pairing_secret: \"%s\"\n", pairingSecret))
	cfg.WriteString("  device_token_ttl: \"2160h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("broker:\n")
	cfg.WriteString("  default_timeout: \"60s\"\n")
	cfg.WriteString("  liveness_interval: \"30s\"\n")
	cfg.WriteString("  grace_period: \"5m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("push:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", pushEnabled))
	if pushEnabled {
		cfg.WriteString(fmt.Sprintf("  endpoint: \"%s\"\n", pushEndpoint))
	}
	cfg.WriteString("\n")

	cfg.WriteString("export:\n")
	cfg.WriteString(fmt.Sprintf("  dir: \"%s\"\n", filepath.Join(defaultDataPath, "exports")))
	cfg.WriteString("  html: false\n")
	cfg.WriteString("\n")

	cfg.WriteString("discovery:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", discoveryEnabled))
	if discoveryEnabled {
		cfg.WriteString(fmt.Sprintf("  instance: \"%s\"\n", instance))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  handoff-bridge serve              # start the bridge")
	fmt.Println("  handoff-bridge pair --name Phone  # pair your first device")

	return nil
}

func randomSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
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
