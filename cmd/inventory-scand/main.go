package main

import (
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
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/decode"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/history"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/pipeline"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/session"
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

	fs := ff.NewFlagSet("inventory-scand")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "inventory-scand.db", "Database file path")
		archivePath   = fs.StringLong("archive", "./scans", "Scan image archive directory")
		ocrBackend    = fs.StringLong("ocr", "gemini", "OCR backend: 'gemini', 'ollama' or 'tesseract'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")
		tesseractLang = fs.StringLong("tesseract-lang", "eng", "Tesseract language pack")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		scanInterval  = fs.DurationLong("scan-interval", 2*time.Second, "Live-session frame sampling interval")
		scanTimeout   = fs.DurationLong("scan-timeout", 30*time.Second, "Live-session timeout with no accepted identifier")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVENTORY_SCAND"),
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

	// Initialize database
	slog.Info("Initializing database...")
	db, err := history.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize OCR backend
	var ocr decode.TextRecognizer
	switch *ocrBackend {
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
		slog.Info("Initializing Gemini OCR...", "model", *geminiModel)
		ocr, err = decode.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama OCR...", "url", *ollamaURL, "model", *ollamaModel)
		ocr, err = decode.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	case "tesseract":
		slog.Info("Initializing Tesseract OCR...", "language", *tesseractLang)
		ocr, err = decode.NewTesseract(*tesseractLang)
		if err != nil {
			slog.Error("Failed to initialize Tesseract", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid OCR backend", "backend", *ocrBackend, "valid", "gemini, ollama or tesseract")
		os.Exit(1)
	}

	adapter := decode.NewAdapter(decode.NewZXingDecoder(), decode.NewRawQRDecoder(), ocr)
	defer adapter.Close()

	// Initialize image archive
	slog.Info("Initializing archive...")
	store, err := history.NewLocalStorage(*archivePath)
	if err != nil {
		slog.Error("Failed to initialize archive", "error", err)
		os.Exit(1)
	}

	// Initialize pipeline and service
	detector := pipeline.New(adapter, slog.Default())
	scanService := history.NewService(db, detector, store)

	// Initialize session manager and server
	sessions := session.NewManager()
	defer sessions.CloseAll()

	server := history.NewServer(history.ServerConfig{
		Service:  scanService,
		Sessions: sessions,
		BasicAuth: history.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		},
		ScanInterval: *scanInterval,
		ScanTimeout:  *scanTimeout,
	})

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
