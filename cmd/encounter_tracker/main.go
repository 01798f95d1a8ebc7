package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bossmod/tracker/internal/api"
	"github.com/bossmod/tracker/internal/config"
	"github.com/bossmod/tracker/internal/dispatcher"
	"github.com/bossmod/tracker/internal/logging"
	"github.com/bossmod/tracker/internal/module"
	"github.com/bossmod/tracker/internal/monitor"
	intOtel "github.com/bossmod/tracker/internal/otel"
	"github.com/bossmod/tracker/internal/parser"
	"github.com/bossmod/tracker/internal/replay"
	"github.com/bossmod/tracker/internal/session"
	"github.com/bossmod/tracker/internal/storage"
	"github.com/bossmod/tracker/internal/worker"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "encounter_tracker"
)

// LiveSession is the session fed from the host command stream.
const LiveSession = "live"

// app holds everything built during startup so it can be torn down in order.
type app struct {
	logManager *logging.SlogManager
	logger     *slog.Logger
	dbLog      zerolog.Logger
	logFile    *os.File
	otel       *intOtel.Provider

	registry *module.Registry
	conds    *module.Conditions
	watcher  *module.Watcher

	backend  storage.Backend
	sessions *session.Manager
	recorder *replay.Writer
	monitor  *monitor.Service
	uploader *api.Client

	dispatcher *dispatcher.Dispatcher
	// encounter is the name of the live encounter, read by the log context.
	encounter atomic.Pointer[string]
}

func main() {
	configDir := "."
	args := os.Args[1:]
	if len(args) > 1 && args[0] == "-config" {
		configDir = args[1]
		args = args[2:]
	}

	a, err := setup(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	cmd := "serve"
	if len(args) > 0 {
		cmd = strings.ToLower(args[0])
		args = args[1:]
	}

	switch cmd {
	case "serve":
		err = a.serve(os.Stdin, os.Stdout)
	case "replay":
		err = a.replayFiles(args, os.Stdout)
	case "tree":
		err = a.printTrees(args, os.Stdout)
	case "validate":
		err = a.validate(args, os.Stdout)
	case "version":
		fmt.Println(CurrentVersion, BuildDate)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}

	a.shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// setup loads config and builds logging and the encounter registry. Storage and
// sessions are only built by the commands that need them.
func setup(configDir string) (*app, error) {
	a := &app{logManager: logging.NewSlogManager()}
	a.logManager.Setup(nil, "info", nil)
	a.logger = a.logManager.Logger()

	if err := config.Load(configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		a.logger.Info("Loaded config")
	}

	if err := a.setupLogging(); err != nil {
		return nil, err
	}

	tc := config.GetTrackerConfig()
	a.registry = module.NewRegistry()
	a.conds = module.DefaultConditions()
	if _, err := os.Stat(tc.DefinitionsDir); err == nil {
		n, err := module.LoadDir(tc.DefinitionsDir, a.registry, a.conds)
		if err != nil {
			return nil, fmt.Errorf("failed to load encounter definitions: %w", err)
		}
		a.logger.Info("Loaded encounter definitions", "dir", tc.DefinitionsDir, "count", n)
	} else {
		a.logger.Warn("Definitions directory not found", "dir", tc.DefinitionsDir)
	}

	return a, nil
}

func (a *app) setupLogging() error {
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}

	path := logging.LogFilePath(logsDir, AppName, time.Now())
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		a.logger.Error("Failed to create/open log file!", "error", err, "path", path)
	} else {
		a.logFile = f
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var w io.Writer
		if a.logFile != nil {
			w = a.logFile
		}
		a.otel, err = intOtel.New(context.Background(), intOtel.FromConfig(otelCfg, w))
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
		}
	}

	var sinks []io.Writer
	gc := config.GetGraylogConfig()
	if gc.Enabled {
		gw, err := logging.NewGraylogWriter(gc.Address, AppName)
		if err != nil {
			a.logger.Error("Failed to connect to Graylog", "error", err, "address", gc.Address)
		} else {
			sinks = append(sinks, gw)
		}
	}

	var provider *sdklog.LoggerProvider
	if a.otel != nil {
		provider = a.otel.LoggerProvider()
	}
	level := viper.GetString("logLevel")
	var file io.Writer
	if a.logFile != nil {
		file = a.logFile
	}
	a.logManager.SetContextProvider(a.logContext)
	a.logManager.Setup(file, level, provider, sinks...)
	a.logger = a.logManager.Logger()
	a.dbLog = logging.NewZerolog(file, level, a.logContext)
	a.logger.Info("Logging configured", "path", path, "level", level, "graylog", len(sinks) > 0)
	return nil
}

// startLive builds storage, the live session, the replay recorder and the
// dispatcher used by serve.
func (a *app) startLive() error {
	tc := config.GetTrackerConfig()

	if tc.WatchDefinitions {
		w, err := module.NewWatcher(tc.DefinitionsDir, a.registry, a.conds, tc.WatchDebounce, a.logger)
		if err != nil {
			a.logger.Error("Failed to watch definitions", "error", err)
		} else {
			a.watcher = w
		}
	}

	backend, err := storage.NewBackend(config.GetStorageConfig(), a.logger, a.dbLog)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to init storage backend: %w", err)
	}
	a.backend = backend
	a.logger.Info("Storage initialized", "type", config.GetStorageConfig().Type)

	ui := config.GetStorageConfig().Websocket
	if base, err := api.BaseURLFromStream(ui.URL); err != nil {
		a.logger.Warn("UI server address unusable", "error", err, "url", ui.URL)
	} else {
		client := api.New(base, ui.Secret)
		go a.checkServerStatus(client)
		if ui.UploadExports {
			a.uploader = client
		}
	}

	a.sessions = session.NewManager()
	err = a.sessions.Open(LiveSession, session.Dependencies{
		Registry:            a.registry,
		Backend:             backend,
		Logger:              a.logger,
		FinishCastsOnRemove: tc.FinishCastsOnRemove,
	})
	if err != nil {
		return err
	}
	if tc.ReplayDir != "" {
		path := filepath.Join(tc.ReplayDir, replay.NewFileName(AppName, time.Now()))
		rec, err := replay.Create(path)
		if err != nil {
			a.logger.Error("Failed to create replay file", "error", err, "path", path)
		} else {
			a.recorder = rec
			a.logger.Info("Recording replay", "path", path)
		}
	}

	d, err := dispatcher.New(logging.NewZerologAdapter(a.dbLog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	a.registerLifecycleHandlers(d)
	worker.NewManager(worker.Dependencies{
		Parser:      parser.NewParser(a.logger),
		Sessions:    a.sessions,
		SessionName: LiveSession,
		Recorder:    a.recorder,
		LogManager:  a.logManager,
	}).RegisterHandlers(d)
	a.dispatcher = d

	a.monitor = monitor.NewService(monitor.Dependencies{
		Sessions:   a.sessions,
		Backend:    backend,
		StatusFile: filepath.Join(viper.GetString("logsDir"), "status.json"),
		Logger:     a.logger,
	})
	if err := a.monitor.Start(); err != nil {
		a.logger.Warn("Status monitor not started", "error", err)
	}
	return nil
}

// logContext adds the live encounter to every log record. It must not take
// the session lock since sessions log while holding it.
func (a *app) logContext() []slog.Attr {
	if name := a.encounter.Load(); name != nil && *name != "" {
		return []slog.Attr{slog.String("encounter", *name)}
	}
	return nil
}

func (a *app) registerLifecycleHandlers(d *dispatcher.Dispatcher) {
	d.Register(":VERSION:", func(e dispatcher.Event) (any, error) {
		return []string{CurrentVersion, BuildDate}, nil
	})
	d.Register(":ENCOUNTERS:", func(e dispatcher.Event) (any, error) {
		return a.registry.OIDs(), nil
	})
}

// serve reads tab-separated commands from r, one per line, and writes one
// result line per command to w.
func (a *app) serve(r io.Reader, w io.Writer) error {
	if err := a.startLive(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for sc.Scan() {
			lines <- sc.Text()
		}
		scanErr <- sc.Err()
	}()

	a.logger.Info("Accepting commands", "commands", a.dispatcher.Commands())
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Interrupted, shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			fmt.Fprintln(w, a.dispatchLine(line))
		}
	}
}

func (a *app) dispatchLine(line string) string {
	parts := strings.Split(line, "\t")
	res, err := a.dispatcher.Dispatch(dispatcher.Event{
		Command:   parts[0],
		Args:      parts[1:],
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Sprintf("ERROR\t%v", err)
	}
	if fr, ok := res.(worker.FrameResult); ok {
		a.encounter.Store(&fr.Encounter)
		if fr.Finished > 0 {
			a.uploadFinished()
		}
	}
	return fmt.Sprintf("OK\t%v", res)
}

func (a *app) checkServerStatus(c *api.Client) {
	if err := c.Healthcheck(); err != nil {
		a.logger.Info("UI server is offline", "error", err)
	} else {
		a.logger.Info("UI server is online")
	}
}

// uploadFinished sends the file exported for the last finished live
// encounter to the UI server.
func (a *app) uploadFinished() {
	exp, ok := a.backend.(storage.Exporter)
	if !ok || a.uploader == nil {
		return
	}
	path := exp.LastExportPath()
	if path == "" {
		return
	}

	var meta api.UploadMetadata
	_ = a.sessions.With(LiveSession, func(s *session.Session) error {
		results := s.Results()
		if len(results) == 0 {
			return nil
		}
		r := results[len(results)-1]
		meta = api.UploadMetadata{
			EncounterName: r.Trace.Name,
			OID:           r.Trace.OID,
			Zone:          r.Encounter.Zone,
			Duration:      r.Trace.Duration().Seconds(),
		}
		return nil
	})

	if err := a.uploader.Upload(path, meta); err != nil {
		a.logger.Error("Failed to upload encounter", "error", err, "path", path)
		return
	}
	a.logger.Info("Uploaded encounter", "path", path, "encounter", meta.EncounterName)
}

func (a *app) shutdown() {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.sessions != nil {
		a.sessions.CloseAll(time.Time{})
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.logger.Error("Failed to close replay file", "error", err)
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("Failed to close storage backend", "error", err)
		}
	}
	if a.watcher != nil {
		_ = a.watcher.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	_ = a.logManager.Flush(ctx)
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
