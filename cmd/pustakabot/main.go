package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pustakalab/pustakabot/internal/analytics"
	"github.com/pustakalab/pustakabot/internal/api"
	"github.com/pustakalab/pustakabot/internal/bot"
	"github.com/pustakalab/pustakabot/internal/catalog"
	"github.com/pustakalab/pustakabot/internal/genai"
	"github.com/pustakalab/pustakabot/internal/guard"
	"github.com/pustakalab/pustakabot/internal/messaging"
	"github.com/pustakalab/pustakabot/internal/responses"
	"github.com/pustakalab/pustakabot/internal/session"
	"github.com/pustakalab/pustakabot/internal/twiliowhatsapp"
	"github.com/pustakalab/pustakabot/internal/util"
	"github.com/pustakalab/pustakabot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PustakaBot state data
	DefaultStateDir = "/var/lib/pustakabot"
	// DefaultResponsesFileName is the default static response table filename
	DefaultResponsesFileName = "responses.json"
	// DefaultAnalyticsFileName is the default analytics SQLite database filename
	DefaultAnalyticsFileName = "analytics.db"
	// DefaultWhatsAppFileName is the default whatsmeow SQLite database filename
	DefaultWhatsAppFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", *flags.stateDir)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("PustakaBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("PustakaBot exited successfully")
}

func run(ctx context.Context, flags Flags) error {
	// Static response table with hot reload.
	respStore, err := responses.NewStore(
		responses.WithPath(*flags.responsesPath),
		responses.WithBackupDir(filepath.Join(*flags.stateDir, "backups")),
	)
	if err != nil {
		return err
	}
	if err := respStore.Watch(ctx); err != nil {
		slog.Warn("Response table hot reload unavailable", "error", err)
	}

	// Catalog facade over the university ILS database.
	cat, err := catalog.NewFacade(catalog.WithDSN(*flags.catalogDSN))
	if err != nil {
		return err
	}
	defer cat.Close()

	// Local analytics log.
	stats, err := analytics.NewStore(analytics.WithDSN(*flags.analyticsDSN))
	if err != nil {
		return err
	}
	defer stats.Close()

	// Abuse guard and session store.
	abuseGuard := guard.New()
	sessions := session.NewStore(
		session.WithTimeoutMessage(respStore.Template(responses.TemplateSessionTimeout)),
	)

	// Dialogue engine options.
	menuMode, err := bot.ParseSearchMenuMode(*flags.searchMenuMode)
	if err != nil {
		return err
	}
	engineOpts := []bot.Option{
		bot.WithRecorder(stats),
		bot.WithSearchMenuMode(menuMode),
	}
	if *flags.openaiKey != "" {
		completer, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, bot.WithCompleter(completer))
	} else {
		slog.Warn("OPENAI_API_KEY not set; LLM fallback disabled")
	}
	engine := bot.NewEngine(abuseGuard, sessions, respStore, cat, engineOpts...)

	// Message transport.
	msgService, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	dispatcher := messaging.NewDispatcher(msgService, engine)
	dispatcher.Start(ctx)
	sessions.StartSweep(ctx, dispatcher)

	// API server (process-message for external gateways, admin panel, stats).
	serverOpts := []api.Option{
		api.WithAddr(*flags.apiAddr),
		api.WithAdminCredentials(*flags.adminUser, *flags.adminPass),
		api.WithStats(stats),
		api.WithLibraryCounter(cat),
	}
	// The Twilio transport receives messages over HTTP, so its webhook shares
	// the API listener.
	if twilioService, ok := msgService.(*messaging.TwilioService); ok {
		serverOpts = append(serverOpts, api.WithRoute(messaging.TwilioWebhookPath, twilioService.WebhookHandler))
	}
	server := api.NewServer(engine, respStore, serverOpts...)

	slog.Info("Bootstrapping PustakaBot", "transport", *flags.transport, "api_addr", *flags.apiAddr, "search_menu_mode", menuMode)
	return server.Run(ctx)
}

// buildMessagingService selects the WhatsApp transport.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	switch strings.ToLower(*flags.transport) {
	case "twilio":
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	default:
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.whatsappDSN)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	}
}

// Config holds environment configuration
type Config struct {
	StateDir       string
	ResponsesPath  string
	CatalogDSN     string
	AnalyticsDSN   string
	WhatsAppDSN    string
	OpenAIKey      string
	APIAddr        string
	AdminUser      string
	AdminPass      string
	Transport      string
	SearchMenuMode string
	NumericCode    bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	responsesPath  *string
	catalogDSN     *string
	analyticsDSN   *string
	whatsappDSN    *string
	openaiKey      *string
	apiAddr        *string
	adminUser      *string
	adminPass      *string
	transport      *string
	searchMenuMode *string
	qrOutput       *string
	numeric        *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:       util.GetEnv("PUSTAKABOT_STATE_DIR", DefaultStateDir),
		ResponsesPath:  os.Getenv("RESPONSES_PATH"),
		CatalogDSN:     os.Getenv("CATALOG_DATABASE_URL"),
		AnalyticsDSN:   os.Getenv("ANALYTICS_DB_PATH"),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		APIAddr:        util.GetEnv("API_ADDR", api.DefaultAddr),
		AdminUser:      os.Getenv("ADMIN_USER"),
		AdminPass:      os.Getenv("ADMIN_PASS"),
		Transport:      util.GetEnv("TRANSPORT", "whatsmeow"),
		SearchMenuMode: os.Getenv("SEARCH_MENU_MODE"),
		NumericCode:    util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
	}

	if config.ResponsesPath == "" {
		config.ResponsesPath = filepath.Join(config.StateDir, DefaultResponsesFileName)
	}
	if config.AnalyticsDSN == "" {
		config.AnalyticsDSN = filepath.Join(config.StateDir, DefaultAnalyticsFileName)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppFileName)
	}

	slog.Debug("environment variables loaded",
		"PUSTAKABOT_STATE_DIR", config.StateDir,
		"RESPONSES_PATH", config.ResponsesPath,
		"CATALOG_DATABASE_URL_SET", config.CatalogDSN != "",
		"ANALYTICS_DB_PATH", config.AnalyticsDSN,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"ADMIN_CREDENTIALS_SET", config.AdminUser != "" && config.AdminPass != "",
		"TRANSPORT", config.Transport,
		"SEARCH_MENU_MODE", config.SearchMenuMode)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for PustakaBot data (overrides $PUSTAKABOT_STATE_DIR)"),
		responsesPath:  flag.String("responses-path", config.ResponsesPath, "path to the static response table (overrides $RESPONSES_PATH)"),
		catalogDSN:     flag.String("catalog-dsn", config.CatalogDSN, "PostgreSQL DSN of the library catalog (overrides $CATALOG_DATABASE_URL)"),
		analyticsDSN:   flag.String("analytics-dsn", config.AnalyticsDSN, "SQLite path for the analytics log (overrides $ANALYTICS_DB_PATH)"),
		whatsappDSN:    flag.String("whatsapp-dsn", config.WhatsAppDSN, "database DSN for the whatsmeow session store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		adminUser:      flag.String("admin-user", config.AdminUser, "admin panel username (overrides $ADMIN_USER)"),
		adminPass:      flag.String("admin-pass", config.AdminPass, "admin panel password (overrides $ADMIN_PASS)"),
		transport:      flag.String("transport", config.Transport, "message transport: whatsmeow or twilio (overrides $TRANSPORT)"),
		searchMenuMode: flag.String("search-menu-mode", config.SearchMenuMode, "menu option 1 behavior: book_id, universal, or criteria (overrides $SEARCH_MENU_MODE)"),
		qrOutput:       flag.String("qr-output", "", "path to write login QR code"),
		numeric:        flag.Bool("numeric-code", config.NumericCode, "use numeric login code instead of QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"responsesPath", *flags.responsesPath,
		"catalogDSN_set", *flags.catalogDSN != "",
		"transport", *flags.transport,
		"apiAddr", *flags.apiAddr)

	return flags
}
