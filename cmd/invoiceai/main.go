package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoiceai/internal/chat"
	"github.com/zombor/invoiceai/internal/extraction"
	"github.com/zombor/invoiceai/internal/invoice"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoiceai")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		dbPath          = fs.StringLong("db", "invoiceai.db", "Database file path")
		archivePath     = fs.StringLong("archive", "./invoices", "Directory for archived XLSX invoices (empty disables archiving)")
		extractorType   = fs.StringLong("extractor", "gemini", "Extraction backend: 'gemini' or 'ollama'")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel     = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL       = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel     = fs.StringLong("ollama-model", "llama3.1", "Ollama model name (needs structured output support)")
		defaultCurrency = fs.StringLong("default-currency", "NGN", "ISO 4217 currency used when a message states none")
		extractTimeout  = fs.DurationLong("extract-timeout", 20*time.Second, "Timeout for one extraction attempt")
		extractAttempts = fs.IntLong("extract-attempts", 3, "Extraction attempts before giving up on a message")
		requireDueDate  = fs.BoolLong("require-due-date", "Require a due date before an invoice can be confirmed")
		sessionTTL      = fs.DurationLong("session-ttl", 24*time.Hour, "Drop chat sessions idle for longer than this")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICEAI"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	currency := invoice.NormalizeCurrency(*defaultCurrency)
	if !invoice.KnownCurrency(currency) {
		slog.Error("Invalid default currency", "currency", *defaultCurrency)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := invoice.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize extraction backend based on type
	var backend extraction.Backend
	switch *extractorType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		backend, err = extraction.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		backend, err = extraction.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "gemini or ollama")
		os.Exit(1)
	}

	extractor := extraction.New(backend, extraction.Config{
		DefaultCurrency: currency,
		AttemptTimeout:  *extractTimeout,
		MaxAttempts:     *extractAttempts,
	}, slog.Default())
	defer extractor.Close()

	// Initialize archive storage
	var store invoice.Storage
	if *archivePath != "" {
		slog.Info("Initializing storage...", "path", *archivePath)
		local, err := invoice.NewLocalStorage(*archivePath)
		if err != nil {
			slog.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
		store = local
	}

	// Initialize services
	invoiceService := invoice.NewService(db, store)
	engine := chat.NewEngine(extractor, invoiceService, invoiceService, chat.Options{
		DefaultCurrency: currency,
		RequireDueDate:  *requireDueDate,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.RunSessionSweeper(ctx, time.Minute, *sessionTTL)

	// Initialize server
	basicAuth := chat.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := chat.NewServer(engine, invoiceService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
