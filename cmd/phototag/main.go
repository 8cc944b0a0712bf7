// Command phototag uploads photos to the image-tagging service and collects
// the generated titles, descriptions and keywords.
//
// Usage:
//
//	PHOTOTAG_BASE_URL=https://... PHOTOTAG_TOKEN=... phototag [flags] pattern...
//
// Patterns are doublestar globs, absolute or relative to the current
// directory, e.g. "**/*.jpg". Variables from a .env file in the current
// directory are loaded before flags are resolved.
//
// Flags:
//
//	-config string        Path to YAML config file (default: .phototag.yaml)
//	-base-url string      Service base URL
//	-token string         Access token
//	-refresh-token string Refresh token
//	-refresh-url string   Token refresh endpoint
//	-field key=value      Extra form field (repeatable)
//	-out string           Path to save the batch JSON (default: ~/.phototag/batches/<id>.json)
//	-csv string           Path to export results as CSV
//	-plain                Print progress lines instead of the TUI
//	-log-file string      Write logs to this file
//	-log-level string     Log level: debug, info, warn, error (default: info)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fwojciec/phototag"
	bt "github.com/fwojciec/phototag/bubbletea"
	tagcsv "github.com/fwojciec/phototag/csv"
	"github.com/fwojciec/phototag/imageapi"
	"github.com/fwojciec/phototag/imagefile"
	tagjson "github.com/fwojciec/phototag/json"
	"github.com/fwojciec/phototag/jwt"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "phototag: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse flags.
	var (
		fields     fieldsFlag
		configPath = flag.String("config", defaultConfigPath, "Path to YAML config file")
		baseURL    = flag.String("base-url", "", "Service base URL")
		token      = flag.String("token", "", "Access token")
		refresh    = flag.String("refresh-token", "", "Refresh token")
		refreshURL = flag.String("refresh-url", "", "Token refresh endpoint")
		outPath    = flag.String("out", "", "Path to save the batch JSON")
		csvPath    = flag.String("csv", "", "Path to export results as CSV")
		plain      = flag.Bool("plain", false, "Print progress lines instead of the TUI")
		logFile    = flag.String("log-file", "", "Write logs to this file")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Var(&fields, "field", "Extra form field key=value (repeatable)")
	flag.Parse()

	patterns := flag.Args()
	if len(patterns) == 0 {
		return errors.New("no patterns given, e.g. phototag '**/*.jpg'")
	}

	// A missing .env is not an error.
	envErr := godotenv.Load()

	fc, err := loadFileConfig(*configPath)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(flagValues{
		baseURL:      *baseURL,
		token:        *token,
		refreshToken: *refresh,
		refreshURL:   *refreshURL,
		logFile:      *logFile,
		logLevel:     *logLevel,
		fields:       fields,
	}, envValues{
		baseURL:      os.Getenv("PHOTOTAG_BASE_URL"),
		token:        os.Getenv("PHOTOTAG_TOKEN"),
		refreshToken: os.Getenv("PHOTOTAG_REFRESH_TOKEN"),
	}, fc)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg.logFile, cfg.logLevel, *plain)
	if err != nil {
		return err
	}
	defer closeLog()
	defer func() { _ = logger.Sync() }()
	if envErr != nil {
		logger.Debug("no .env file loaded", zap.Error(envErr))
	}

	// Handle OS signals for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Collect and validate photos.
	paths, err := imagefile.Glob(".", patterns)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no files matched")
	}
	files, err := imagefile.OpenAll(ctx, paths, cfg.images)
	if err != nil {
		return err
	}
	logger.Info("collected photos", zap.Int("count", len(files)))

	// Build the client.
	tokens := jwt.New(cfg.token, cfg.refreshToken,
		jwt.WithRefreshURL(cfg.refreshURL),
		jwt.WithLogger(logger.Named("jwt")),
	)
	client := imageapi.New(cfg.baseURL,
		imageapi.WithTokenSource(tokens),
		imageapi.WithLogger(logger.Named("imageapi")),
	)
	req := phototag.UploadRequest{Files: files, Fields: cfg.fields}
	upload := func(ctx context.Context, onProgress func(phototag.ProgressEvent)) (phototag.BatchResult, error) {
		raw, err := client.UploadBatch(ctx, req, onProgress)
		if err != nil {
			return phototag.BatchResult{}, err
		}
		return phototag.DecodeBatchResult(raw)
	}

	// Run the upload.
	batch := phototag.Batch{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Files:     paths,
	}
	if *plain {
		batch.Result, err = runPlain(ctx, upload, os.Stdout)
	} else {
		batch.Result, err = runTUI(ctx, upload, len(files))
	}
	if err != nil {
		return err
	}

	// Persist results.
	savePath := *outPath
	if savePath == "" {
		savePath = defaultBatchPath(batch.ID)
	}
	if err := tagjson.Save(savePath, batch); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Batch saved to %s\n", savePath)

	if *csvPath != "" {
		if err := writeCSV(*csvPath, batch.Result); err != nil {
			return fmt.Errorf("export CSV: %w", err)
		}
		fmt.Fprintf(os.Stderr, "CSV written to %s\n", *csvPath)
	}
	return nil
}

func runTUI(ctx context.Context, upload bt.UploadFunc, n int) (phototag.BatchResult, error) {
	final, err := bt.Run(ctx, bt.New(upload, phototag.DefaultTheme(), bt.Config{Files: n}))
	if err != nil {
		return phototag.BatchResult{}, fmt.Errorf("TUI: %w", err)
	}
	if final.Running() {
		return phototag.BatchResult{}, errors.New("interrupted before the upload finished")
	}
	if err := final.Err(); err != nil {
		return phototag.BatchResult{}, err
	}
	return final.Result(), nil
}

// runPlain runs the upload without the TUI, printing one line per progress
// event and a summary per image.
func runPlain(ctx context.Context, upload bt.UploadFunc, w io.Writer) (phototag.BatchResult, error) {
	result, err := upload(ctx, func(e phototag.ProgressEvent) {
		fmt.Fprintf(w, "progress: %d/%d (%d%%)\n", e.Processed, e.Total, e.Percentage)
	})
	if err != nil {
		return phototag.BatchResult{}, err
	}
	for _, img := range result.Images {
		if img.Error != "" {
			fmt.Fprintf(w, "%s: error: %s\n", img.Filename, img.Error)
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", img.Filename, img.Title)
	}
	fmt.Fprintf(w, "tagged %d of %d\n", len(result.Images)-result.Failed(), len(result.Images))
	return result, nil
}

func writeCSV(path string, r phototag.BatchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tagcsv.Write(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// newLogger builds a JSON logger writing to path. Without a path it logs to
// stderr in plain mode and nowhere in TUI mode, where stderr would corrupt
// the screen.
func newLogger(path string, level zapcore.Level, plain bool) (*zap.Logger, func(), error) {
	var ws zapcore.WriteSyncer
	closeFn := func() {}
	switch {
	case path != "":
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		ws = zapcore.AddSync(f)
		closeFn = func() { f.Close() }
	case plain:
		ws = zapcore.Lock(os.Stderr)
	default:
		return zap.NewNop(), closeFn, nil
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), ws, level)
	return zap.New(core), closeFn, nil
}

func defaultBatchPath(id string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".phototag", "batches", id+".json")
}
