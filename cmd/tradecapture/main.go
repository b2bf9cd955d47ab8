package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradecapture/tradecapture/internal/api"
	"github.com/tradecapture/tradecapture/internal/audit"
	"github.com/tradecapture/tradecapture/internal/config"
	"github.com/tradecapture/tradecapture/internal/store"
	"github.com/tradecapture/tradecapture/internal/validation"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tradecapture",
		Short: "In-memory trade capture document store",
		Long:  "TradeCapture — validated storage for trade documents.\nEvery mutation is gated by structural and business-rule validation and recorded in the audit log.",
	}

	var configFile string
	var port int
	var devMode bool

	// ─── start ───
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the trade capture server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(configFile, port, devMode)
		},
	}
	startCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: tradecapture.yaml)")
	startCmd.Flags().IntVarP(&port, "port", "p", 0, "Override HTTP port (default: 7450)")
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Dev mode: verbose logs, CORS *")

	// ─── init ───
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}

	// ─── status ───
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show running status and store stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(port)
		},
	}

	// ─── version ───
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("TradeCapture %s\n", version)
			fmt.Printf("  Commit:  %s\n", commit)
			fmt.Printf("  Built:   %s\n", buildDate)
		},
	}

	// ─── trade ───
	tradeCmd := &cobra.Command{
		Use:   "trade",
		Short: "Trade inspection commands",
	}

	var tradeBook string
	tradeListCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTradeList(port, tradeBook)
		},
	}
	tradeListCmd.Flags().StringVar(&tradeBook, "book", "", "Filter by book")

	tradeShowCmd := &cobra.Command{
		Use:   "show [trade-id]",
		Short: "Show a full trade record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTradeShow(port, args[0])
		},
	}

	tradeCountCmd := &cobra.Command{
		Use:   "count",
		Short: "Count stored trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTradeCount(port, tradeBook)
		},
	}
	tradeCountCmd.Flags().StringVar(&tradeBook, "book", "", "Filter by book")

	var deleteUser, deleteIntent string
	tradeDeleteCmd := &cobra.Command{
		Use:   "delete [trade-id]",
		Short: "Delete a trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTradeDelete(port, args[0], deleteUser, deleteIntent)
		},
	}
	tradeDeleteCmd.Flags().StringVar(&deleteUser, "user", "", "User recorded in the audit context (required)")
	tradeDeleteCmd.Flags().StringVar(&deleteIntent, "intent", "", "Intent recorded in the audit context (required)")

	tradeCmd.AddCommand(tradeListCmd, tradeShowCmd, tradeCountCmd, tradeDeleteCmd)

	// ─── audit ───
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit log commands",
	}

	var auditTradeID string
	auditListCmd := &cobra.Command{
		Use:   "list",
		Short: "List audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditList(port, auditTradeID)
		},
	}
	auditListCmd.Flags().StringVar(&auditTradeID, "trade", "", "Filter by trade id")

	auditVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify audit log hash chain integrity",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := resolvePort(port)
			resp, err := http.Get(fmt.Sprintf("http://localhost:%d/api/audit/verify", p))
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()
			var result struct {
				Valid    bool `json:"valid"`
				BrokenAt int  `json:"brokenAt"`
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			if result.Valid {
				fmt.Println("✓ Audit hash chain intact")
			} else {
				fmt.Printf("✗ Audit hash chain broken at entry %d\n", result.BrokenAt)
			}
			return nil
		},
	}

	auditCmd.AddCommand(auditListCmd, auditVerifyCmd)

	// ─── rules ───
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Validation rule commands",
	}

	rulesReloadCmd := &cobra.Command{
		Use:   "reload",
		Short: "Hot-reload validation rules without restart",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := resolvePort(port)
			resp, err := http.Post(fmt.Sprintf("http://localhost:%d/api/config/reload", p), "application/json", nil)
			if err != nil {
				return fmt.Errorf("failed to connect to TradeCapture: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode == 200 {
				fmt.Println("✓ Validation rules reloaded")
			} else {
				fmt.Printf("✗ Reload failed (HTTP %d)\n", resp.StatusCode)
			}
			return nil
		},
	}
	rulesCmd.AddCommand(rulesReloadCmd)

	rootCmd.AddCommand(startCmd, initCmd, statusCmd, versionCmd, tradeCmd, auditCmd, rulesCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runStart(configFile string, portOverride int, devMode bool) error {
	// Load config
	cfgLoader := config.NewLoader(nil)
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := cfgLoader.Load(configFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	cfg := cfgLoader.Get()

	if portOverride > 0 {
		cfg.Server.Port = portOverride
	}
	if devMode {
		cfg.Server.CORS = true
		cfg.Server.LogLevel = "debug"
	}

	// Setup logger
	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	// Initialize audit log
	auditLog, err := audit.NewSQLiteLog(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open audit storage: %w", err)
	}
	if err := auditLog.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize audit storage: %w", err)
	}
	defer func() { _ = auditLog.Close() }()

	// Build the validator set from config; swappable so hot reload can
	// replace it in place.
	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build validators: %w", err)
	}
	validator := validation.NewSwappable(registry)

	rebuild := func(c *config.Config) error {
		reg, err := buildRegistry(c, logger)
		if err != nil {
			return err
		}
		validator.Swap(reg)
		logger.Info("validators rebuilt",
			"required_fields", len(c.Validation.RequiredFields),
			"rules", len(c.Validation.Rules),
		)
		return nil
	}

	// Document store
	documentStore := store.New(validator, auditLog, logger)

	// API server
	apiServer := api.NewServer(cfg.Server, documentStore, auditLog, cfgLoader, rebuild, logger)

	// Hot-reload validation rules on config file change
	if configFile != "" {
		if err := cfgLoader.Watch(func(c *config.Config) {
			if err := rebuild(c); err != nil {
				logger.Error("hot-reload failed, keeping previous validators", "error", err)
			}
		}); err != nil {
			logger.Error("failed to watch config for hot-reload", "error", err)
		}
		defer cfgLoader.Stop()
	}

	// Print startup banner
	fmt.Println()
	fmt.Println("  TradeCapture v" + version)
	fmt.Printf("  → API:      http://localhost:%d/api\n", cfg.Server.Port)
	fmt.Printf("  → Events:   ws://localhost:%d/api/ws/events\n", cfg.Server.Port)
	fmt.Printf("  → Audit:    %s (%s)\n", cfg.Storage.Driver, cfg.Storage.Path)
	fmt.Printf("  → Required: %d fields, %d date checks, %d rules\n",
		len(cfg.Validation.RequiredFields), len(cfg.Validation.DateFields), len(cfg.Validation.Rules))
	fmt.Println()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down...")
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()
		_ = apiServer.Shutdown(shutCtx)
	}()

	logger.Info("starting HTTP server", "port", cfg.Server.Port)
	if err := apiServer.Start(api.APIAddr(cfg.Server.Port)); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// buildRegistry assembles the validator registry from a config snapshot:
// structural + date checks always, plus the configured CEL rules.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*validation.Registry, error) {
	universal := []validation.Validator{
		validation.NewStructuralValidator(cfg.Validation.RequiredFields, cfg.Validation.AllowEmptyFields),
		validation.NewBusinessRuleValidator(cfg.Validation.DateFields),
	}

	if len(cfg.Validation.Rules) > 0 {
		rules := make([]validation.Rule, 0, len(cfg.Validation.Rules))
		for _, rc := range cfg.Validation.Rules {
			rules = append(rules, validation.Rule{
				Name:      rc.Name,
				Condition: rc.Condition,
				Severity:  rc.Severity,
				Message:   rc.Message,
			})
		}
		rv, err := validation.NewRuleValidator(rules, logger)
		if err != nil {
			return nil, err
		}
		universal = append(universal, rv)
	}

	return validation.NewRegistry(universal...), nil
}

// ─── Init ───

func runInit() error {
	configPath := "tradecapture.yaml"
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("  ⚠ %s already exists (skipping)\n", configPath)
		return nil
	}
	if err := config.GenerateDefault(configPath); err != nil {
		return err
	}
	fmt.Printf("  ✓ Generated %s\n", configPath)
	fmt.Println()
	fmt.Println("  Next steps:")
	fmt.Println("    tradecapture start        # Start the server")
	fmt.Println("    tradecapture status       # Check it is running")
	return nil
}

// ─── HTTP client commands ───

func runStatus(port int) error {
	p := resolvePort(port)
	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/api/stats", p))
	if err != nil {
		fmt.Printf("TradeCapture is not running on port %d\n", p)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	var stats map[string]interface{}
	if err := decodeJSON(resp, &stats); err != nil {
		return err
	}

	fmt.Println("TradeCapture Status")
	fmt.Println("─────────────────")
	for k, v := range stats {
		fmt.Printf("  %-20s %v\n", k+":", v)
	}
	return nil
}

func runTradeList(port int, book string) error {
	p := resolvePort(port)
	body := queryBody(book)
	resp, err := http.Post(fmt.Sprintf("http://localhost:%d/api/trades/query", p), "application/json", strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result struct {
		Trades []map[string]interface{} `json:"trades"`
		Total  int                      `json:"total"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	if len(result.Trades) == 0 {
		fmt.Println("No trades found.")
		return nil
	}

	fmt.Printf("%-28s %-8s %-26s %s\n", "ID", "VERSION", "UPDATED", "BOOK")
	fmt.Println(strings.Repeat("─", 80))
	for _, rec := range result.Trades {
		data, _ := rec["data"].(map[string]interface{})
		common, _ := data["common"].(map[string]interface{})
		fmt.Printf("%-28v %-8v %-26v %v\n", rec["id"], rec["version"], rec["updatedAt"], common["book"])
	}
	fmt.Printf("\n%d of %d trades\n", len(result.Trades), result.Total)
	return nil
}

func runTradeShow(port int, tradeID string) error {
	p := resolvePort(port)
	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/api/trades/%s", p, tradeID))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		fmt.Printf("Trade %s not found.\n", tradeID)
		return nil
	}

	var result map[string]interface{}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runTradeCount(port int, book string) error {
	p := resolvePort(port)
	body := queryBody(book)
	resp, err := http.Post(fmt.Sprintf("http://localhost:%d/api/trades/count", p), "application/json", strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result struct {
		Count int `json:"count"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	fmt.Printf("%d trades\n", result.Count)
	return nil
}

func runTradeDelete(port int, tradeID, user, intent string) error {
	if user == "" || intent == "" {
		return fmt.Errorf("--user and --intent are required: deletes are recorded in the audit log")
	}

	p := resolvePort(port)
	body := fmt.Sprintf(`{"context":{"user":%q,"agent":"tradecapture-cli","action":"delete","intent":%q}}`, user, intent)
	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("http://localhost:%d/api/trades/%s", p, tradeID), strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result struct {
		Deleted int `json:"deleted"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	if result.Deleted > 0 {
		fmt.Printf("✓ Trade %s deleted\n", tradeID)
	} else {
		fmt.Printf("Trade %s was not present (nothing deleted)\n", tradeID)
	}
	return nil
}

func runAuditList(port int, tradeID string) error {
	p := resolvePort(port)
	url := fmt.Sprintf("http://localhost:%d/api/audit?limit=50", p)
	if tradeID != "" {
		url += "&tradeId=" + tradeID
	}

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result struct {
		Entries []map[string]interface{} `json:"entries"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	if len(result.Entries) == 0 {
		fmt.Println("No audit entries found.")
		return nil
	}

	fmt.Printf("%-26s %-18s %-20s %s\n", "TIMESTAMP", "OPERATION", "TRADE", "USER")
	fmt.Println(strings.Repeat("─", 85))
	for _, e := range result.Entries {
		ctx, _ := e["context"].(map[string]interface{})
		fmt.Printf("%-26v %-18v %-20v %v\n", e["timestamp"], e["operation"], e["tradeId"], ctx["user"])
	}
	return nil
}

// ─── Shared helpers ───

func queryBody(book string) string {
	if book == "" {
		return `{"limit":50}`
	}
	return fmt.Sprintf(`{"filter":{"common.book":{"eq":%q}},"limit":50}`, book)
}

func findConfigFile() string {
	candidates := []string{
		"tradecapture.yaml",
		"tradecapture.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "tradecapture", "config.yaml"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func resolvePort(port int) int {
	if port == 0 {
		return 7450
	}
	return port
}

func decodeJSON(resp *http.Response, v interface{}) error {
	return json.NewDecoder(resp.Body).Decode(v)
}
