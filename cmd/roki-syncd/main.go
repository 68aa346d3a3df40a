package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/the13nth/roki-vscode-sub004/internal/backup"
	"github.com/the13nth/roki-vscode-sub004/internal/config"
	"github.com/the13nth/roki-vscode-sub004/internal/conflict"
	"github.com/the13nth/roki-vscode-sub004/internal/event"
	"github.com/the13nth/roki-vscode-sub004/internal/journal"
	"github.com/the13nth/roki-vscode-sub004/internal/logging"
	"github.com/the13nth/roki-vscode-sub004/internal/syncer"
	"github.com/the13nth/roki-vscode-sub004/internal/watch"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("roki-syncd starting",
		slog.String("version", Version),
		slog.Int("projects", len(cfg.ProjectDirs)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer jrnl.Close()

	bus := event.NewBus(cfg.EventBuffer)
	defer bus.Close()

	backups := backup.NewStore(cfg.BackupRetention, bus, logging.ForComponent(logger, "backup"))
	registry := conflict.NewRegistry(backups, bus, jrnl, logging.ForComponent(logger, "conflict"))
	source := watch.NewFSSource(logging.ForComponent(logger, "watch"))
	bridge := syncer.New(source, registry, bus, jrnl, logging.ForComponent(logger, "syncer"))

	g, gctx := errgroup.WithContext(ctx)

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	g.Go(func() error {
		logEvents(gctx, events, logger)
		return nil
	})

	for _, dir := range cfg.ProjectDirs {
		if err := bridge.Start(gctx, dir); err != nil {
			bridge.StopAll()
			return fmt.Errorf("starting sync for %s: %w", dir, err)
		}
	}

	<-gctx.Done()
	bridge.StopAll()

	return g.Wait()
}

// logEvents mirrors engine events onto the log until the context ends.
// A real frontend would subscribe to the bus the same way.
func logEvents(ctx context.Context, events <-chan event.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}

			logEvent(ev, logger)
		}
	}
}

func logEvent(ev event.Event, logger *slog.Logger) {
	base := logger.With(slog.String("project", ev.Project()))

	switch e := ev.(type) {
	case event.ConflictDetected:
		base.Warn("conflict detected", slog.String("id", e.ConflictID), slog.String("path", e.FilePath), slog.String("type", e.Type))
	case event.ConflictResolved:
		base.Info("conflict resolved", slog.String("id", e.ConflictID), slog.String("strategy", e.Strategy))
	case event.ResolutionError:
		base.Error("resolution error", slog.String("id", e.ConflictID), slog.String("error", e.Err))
	case event.BackupCreated:
		base.Debug("backup created", slog.String("backup", e.BackupPath))
	case event.BackupError:
		base.Error("backup error", slog.String("path", e.FilePath), slog.String("error", e.Err))
	case event.FileRestored:
		base.Info("file restored", slog.String("target", e.TargetPath))
	case event.RestoreError:
		base.Error("restore error", slog.String("backup", e.BackupPath), slog.String("error", e.Err))
	case event.DocumentUpdated:
		base.Info("document updated", slog.String("document", e.Document), slog.Int("bytes", len(e.Content)))
	case event.ProgressUpdated:
		base.Info("progress updated", slog.Int("total", e.Total), slog.Int("completed", e.Completed))
	case event.ContextAssetUpdated:
		base.Info("context asset updated", slog.String("asset", e.Asset), slog.String("action", e.Action))
	case event.SyncStarted:
		base.Info("sync started")
	case event.SyncStopped:
		base.Info("sync stopped")
	case event.SyncError:
		base.Warn("sync error", slog.String("kind", string(e.Kind)), slog.String("error", e.Err))
	}
}
