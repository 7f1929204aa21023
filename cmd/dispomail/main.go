package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/dispomail/dispomail/internal/config"
	"github.com/dispomail/dispomail/internal/database"
	"github.com/dispomail/dispomail/pkg/models"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "generate":
		run(handleGenerate, args)
	case "list":
		run(handleList, args)
	case "verify":
		run(handleVerify, args)
	case "expire":
		run(handleExpire, args)
	case "tag":
		run(handleTag, args)
	case "export":
		run(handleExport, args)
	case "import":
		run(handleImport, args)
	case "stats":
		run(handleStats, args)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`dispomail - disposable address manager

Usage:
  dispomail <command> [options]

Commands:
  generate   Generate a new disposable address
  list       List managed mailboxes
  verify     Retrieve the verification code for a mailbox
  expire     Expire stale unverified mailboxes
  tag        Assign or clear a mailbox tag
  export     Export mailboxes to CSV or JSON
  import     Import mailboxes from CSV or JSON
  stats      Show aggregate mailbox statistics
  help       Show this help message

Examples:
  dispomail generate --prefix shop --tag shopping
  dispomail verify --address alexw4k212@example.com
  dispomail export --format csv --out mailboxes.csv
  dispomail import --in mailboxes.json

Use 'dispomail <command> --help' for more information about a command.
`)
}

// app bundles what every command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *database.DB
}

func run(handler func(ctx context.Context, a *app, args []string) error, args []string) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// cancel on Ctrl+C so verification loops abort instead of sleeping out
	// their full interval
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if err := handler(ctx, &app{cfg: cfg, logger: logger, db: db}, args); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// pretty colored output for console
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func statusFilter(value string) (models.VerificationStatus, error) {
	switch value {
	case "":
		return "", nil
	case "pending", "verified", "failed", "expired":
		return models.VerificationStatus(value), nil
	default:
		return "", fmt.Errorf("unknown status %q", value)
	}
}

// exportableWriter opens the output target, stdout by default.
func exportableWriter(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func printMailbox(mb *models.Mailbox) {
	line := fmt.Sprintf("%-40s %-9s attempts=%d", mb.Address, mb.Status, mb.AttemptCount)
	if mb.VerifyCode != "" {
		line += " code=" + mb.VerifyCode
	}
	fmt.Println(line)
}
