package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/OCAP2/clustermap/internal/config"
	"github.com/OCAP2/clustermap/internal/dispatcher"
	"github.com/OCAP2/clustermap/internal/engine/headless"
	"github.com/OCAP2/clustermap/internal/influx"
	"github.com/OCAP2/clustermap/internal/monitor"
	"github.com/OCAP2/clustermap/internal/server"
	"github.com/OCAP2/clustermap/internal/snapshot"
	"github.com/OCAP2/clustermap/internal/storage"
	"github.com/OCAP2/clustermap/internal/worker"
	"github.com/OCAP2/clustermap/pkg/clustermap"
)

// statsQueueSize bounds the render stats waiting for the influx writer
const statsQueueSize = 1000

// newWorker builds a worker rendering into a fresh headless container
func newWorker(backend storage.Backend) *worker.Manager {
	container := config.GetServerConfig().Container
	eng := headless.New()
	eng.AddContainer(container)

	return worker.NewManager(worker.Dependencies{
		Engine:    eng,
		Container: container,
		Session:   Session,
		Backend:   backend,
		Logger:    Logger,
		Options: []clustermap.Option{
			clustermap.WithLogger(Logger),
			clustermap.WithEnvironment(config.GetEnvironment()),
			clustermap.WithMapDefaults(config.GetMapDefaults()),
			clustermap.WithMarkerDefaults(config.GetMarkerDefaults()),
		},
	})
}

func serve(ctx context.Context, name string) error {
	backend, err := initStorage()
	if err != nil {
		return err
	}
	defer closeStorage(backend)

	eventDispatcher, err := dispatcher.New(Logger)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	workerManager := newWorker(backend)
	workerManager.RegisterHandlers(eventDispatcher)

	monitorDeps := monitor.Dependencies{
		Dispatcher: eventDispatcher,
		Worker:     workerManager,
		Logger:     Logger,
		Interval:   config.GetMonitorConfig().Interval,
		StatusFile: config.GetMonitorConfig().StatusFile,
	}
	if q, ok := backend.(revisionQueue); ok {
		monitorDeps.PendingRevisions = q.PendingRevisions
	}

	influxLogger := DBLogger.With().Str("component", "influx").Logger()
	influxManager := influx.NewManager(influxLogger, config.GetInfluxConfig(), config.GetString("influx.backupPath"))
	switch err := influxManager.Connect(ctx); {
	case errors.Is(err, influx.ErrDisabled):
		Logger.Debug("Render stats disabled")
	case err != nil:
		Logger.Warn("Render stats unavailable", "error", err)
	default:
		worker.RegisterStats(eventDispatcher, influxManager.Handler(), statsQueueSize)
		monitorDeps.Sink = influxManager.WriteStats
	}
	defer func() {
		if err := influxManager.Close(); err != nil {
			Logger.Error("Failed to close influx writer", "error", err)
		}
	}()
	// drain queued stats before the writer closes
	defer eventDispatcher.Close()

	if _, err := eventDispatcher.Dispatch(dispatcher.Command{
		Name:   worker.CmdMapLoad,
		Params: map[string]string{"name": name},
	}); err != nil {
		return err
	}

	monitorService := monitor.NewService(monitorDeps)
	if err := monitorService.Start(); err != nil {
		return err
	}
	defer monitorService.Stop()

	srv := server.New(server.Dependencies{
		Dispatcher: eventDispatcher,
		Monitor:    monitorService,
		Backend:    backend,
		Logger:     Logger,
	})
	return srv.Run(ctx, config.GetServerConfig().Address)
}

func render(name, out string) error {
	backend, err := initStorage()
	if err != nil {
		return err
	}
	defer closeStorage(backend)

	if _, err := backend.LoadMap(name); err != nil {
		return err
	}
	c, err := newWorker(backend).Load(name)
	if err != nil {
		return err
	}
	defer c.Destroy()

	fc, err := snapshot.Build(c)
	if err != nil {
		return err
	}
	if out == "" {
		return snapshot.Encode(os.Stdout, fc)
	}
	if err := snapshot.Write(out, fc); err != nil {
		return err
	}
	Logger.Info("Snapshot written", "path", out,
		"markers", snapshot.Count(fc, snapshot.KindMarker),
		"clusters", snapshot.Count(fc, snapshot.KindCluster))
	return nil
}

func importMap(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var opts clustermap.Options
	if err := json.Unmarshal(data, &opts); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	backend, err := initStorage()
	if err != nil {
		return err
	}
	defer closeStorage(backend)

	c, err := newWorker(backend).Replace(name, opts)
	if err != nil {
		return err
	}
	defer c.Destroy()

	fmt.Printf("imported %s: %d markers\n", name, c.Len())
	return nil
}

func listMaps() error {
	backend, err := initStorage()
	if err != nil {
		return err
	}
	defer closeStorage(backend)

	names, err := backend.ListMaps()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func deleteMap(name string) error {
	backend, err := initStorage()
	if err != nil {
		return err
	}
	defer closeStorage(backend)

	if err := backend.DeleteMap(name); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", name)
	return nil
}
