package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nhle/mail-archive/internal/analyse"
	"github.com/nhle/mail-archive/internal/config"
	"github.com/nhle/mail-archive/internal/ingest"
	"github.com/nhle/mail-archive/internal/model"
	"github.com/nhle/mail-archive/internal/source/imap"
	"github.com/nhle/mail-archive/internal/store"
)

const (
	actionFetch   = "fetch"
	actionAnalyse = "analyse"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("MAILARCHIVE_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Credentials must resolve before any ingestion begins.
	creds, err := cfg.Credentials()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("creating database directory", zap.Error(err))
		}
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer st.Close()

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("What would you like to do?").
			Options(
				huh.NewOption("Fetch all emails", actionFetch),
				huh.NewOption("Analyse emails", actionAnalyse),
			).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		logger.Fatal("reading menu choice", zap.Error(err))
	}

	ctx := context.Background()

	switch choice {
	case actionFetch:
		fetchAll(ctx, logger, st, cfg, creds)
	case actionAnalyse:
		if err := analyse.New(st, os.Stdout).Run(ctx); err != nil {
			logger.Fatal("analysing emails", zap.Error(err))
		}
	}
}

// fetchAll archives every configured account in turn. A failed folder
// is reported but never halts the run: ingestion is idempotent and
// the next invocation retries whatever is still missing.
func fetchAll(
	ctx context.Context,
	logger *zap.Logger,
	st store.Store,
	cfg *config.Config,
	creds []model.Credentials,
) {
	engine := ingest.New(st, logger, cfg.FolderWorkers)

	for _, cred := range creds {
		logger.Info("fetching emails", zap.String("account", cred.Username))

		src := imap.NewClient(cred)
		report, err := engine.FetchAll(ctx, src, cred.Username, ingest.AllFolders)
		if err != nil {
			logger.Error("account fetch failed",
				zap.String("account", cred.Username), zap.Error(err))
			continue
		}

		if report.Failed() {
			logger.Warn("account finished with failed folders",
				zap.String("account", cred.Username),
				zap.Strings("folders", report.FailedFolders()),
			)
		}
	}
}

// newLogger builds a console zap logger at the configured level.
func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		lvl,
	)

	return zap.New(core)
}
