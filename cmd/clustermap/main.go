package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/OCAP2/clustermap/internal/config"
	"github.com/OCAP2/clustermap/internal/logging"
	intOtel "github.com/OCAP2/clustermap/internal/otel"
	"github.com/OCAP2/clustermap/internal/session"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// DBLogger is handed to the database layer
	DBLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// Session holds the map being served, and tags every log record with it
	Session = session.NewContext()

	SessionStartTime time.Time = time.Now()

	logFile    *os.File
	metricFile *os.File
)

const usage = `clustermap %s (%s)

Usage:
  clustermap serve <map>              serve <map> over the HTTP API
  clustermap render <map> [out]       write a GeoJSON snapshot of <map>
                                      (stdout when out is omitted, zstd when out ends in .zst)
  clustermap import <map> <file>      store the map options in <file> as <map>
  clustermap list                     list stored maps
  clustermap delete <map>             delete a stored map
`

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, usage, CurrentVersion, BuildDate)
		os.Exit(2)
	}

	command := strings.ToLower(args[0])
	if err := setup(command); err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		os.Exit(1)
	}

	err := run(command, args[1:])
	shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	switch command {
	case "serve":
		if len(args) != 1 {
			return errUsage
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, args[0])
	case "render":
		if len(args) < 1 || len(args) > 2 {
			return errUsage
		}
		out := ""
		if len(args) == 2 {
			out = args[1]
		}
		return render(args[0], out)
	case "import":
		if len(args) != 2 {
			return errUsage
		}
		return importMap(args[0], args[1])
	case "list":
		return listMaps()
	case "delete":
		if len(args) != 1 {
			return errUsage
		}
		return deleteMap(args[0])
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

var errUsage = errors.New("wrong number of arguments, run without arguments for usage")

// setup loads .env and the config file, then initializes logging and OTel.
func setup(command string) error {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Getenv("CLUSTERMAP_LOGLEVEL"), logging.Outputs{File: os.Stderr})
	Logger = SlogManager.Logger()

	configDir := os.Getenv("CLUSTERMAP_CONFIG_DIR")
	if configDir == "" {
		configDir = "."
	}
	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Debug("Loaded config", "dir", configDir)
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	logFilePath := logging.LogFilePath(logsDir, command, SessionStartTime)
	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}

	if err := initOTel(logsDir, command); err != nil {
		Logger.Warn("Failed to initialize OTel, continuing without it", "error", err)
	}

	out := logging.Outputs{
		File:    io.MultiWriter(logFile, os.Stderr),
		Context: Session.LogAttrs,
	}
	if command != "serve" {
		// keep stdout and stderr clean for one-shot commands
		out.File = logFile
	}
	if OTelProvider != nil {
		out.Provider = OTelProvider.LoggerProvider()
	}
	if config.GetBool("graylog.enabled") {
		gw, err := logging.NewGraylogWriter(config.GetString("graylog.address"))
		if err != nil {
			Logger.Warn("Graylog disabled", "error", err)
		} else {
			out.Graylog = gw
		}
	}

	SlogManager.Setup(config.GetString("logLevel"), out)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)

	level, err := zerolog.ParseLevel(strings.ToLower(config.GetString("logLevel")))
	if err != nil {
		level = zerolog.InfoLevel
	}
	DBLogger = zerolog.New(logFile).Level(level).With().Timestamp().Str("component", "database").Logger()

	Logger.Info("clustermap starting", "version", CurrentVersion, "build", BuildDate, "command", command, "logFile", logFilePath)
	return nil
}

func initOTel(logsDir, command string) error {
	cfg := config.GetOTelConfig()
	if !cfg.Enabled {
		return nil
	}

	var err error
	metricPath := filepath.Join(logsDir, fmt.Sprintf("%s.%s.%s.metrics.json", logging.ServiceName, command, SessionStartTime.Format("20060102_150405")))
	metricFile, err = os.Create(metricPath)
	if err != nil {
		return fmt.Errorf("creating metric file: %w", err)
	}

	OTelProvider, err = intOtel.New(intOtel.Config{
		Enabled:      true,
		ServiceName:  cfg.ServiceName,
		BatchTimeout: cfg.BatchTimeout,
		MetricWriter: metricFile,
		Endpoint:     cfg.Endpoint,
		Insecure:     cfg.Insecure,
	})
	if err != nil {
		OTelProvider = nil
		return err
	}
	OTelProvider.Install()
	return nil
}

func shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "OTel shutdown: %v\n", err)
		}
	}
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "log flush: %v\n", err)
	}
	if metricFile != nil {
		metricFile.Close()
	}
	if logFile != nil {
		logFile.Close()
	}
}
