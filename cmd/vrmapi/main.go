package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/raterudder/vrmapi/pkg/config"
	"github.com/raterudder/vrmapi/pkg/log"
	"github.com/raterudder/vrmapi/pkg/node"
	"github.com/raterudder/vrmapi/pkg/server"
	"github.com/raterudder/vrmapi/pkg/sink"
	"github.com/raterudder/vrmapi/pkg/storage"
	"github.com/raterudder/vrmapi/pkg/vrm"
)

func main() {
	// init packages
	client := vrm.Configured()
	s := storage.Configured()
	publisher := sink.Configured()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	nodes := node.NewMap()

	// init server
	srv := server.Configured(nodes, s, publisher, reg)

	configPath := lflag.String("config", "vrmapi.toml", "Path of the TOML node definition file")
	once := lflag.Bool("once", false, "Run every node once, publish the results and exit")

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	// the console sink owns stdout
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	log.SetDefaultLogger(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := publisher.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close sinks", "error", err)
		}
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close context store", "error", err)
		}
	}()

	file, err := config.Load(*configPath)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load config", slog.String("path", *configPath), slog.Any("error", err))
		os.Exit(1)
	}
	if len(file.Nodes) == 0 {
		log.Ctx(ctx).ErrorContext(ctx, "no nodes configured", slog.String("path", *configPath))
		os.Exit(1)
	}

	metrics := node.NewMetrics(reg)
	intervals := map[string]config.Node{}
	for _, nc := range file.Nodes {
		nodes.Add(node.New(nc.Config, client, s, metrics))
		intervals[nc.Name] = nc
	}

	if *once {
		if err := runOnce(ctx, nodes, publisher); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	publish := func(ctx context.Context, n *node.Node, res node.Result) {
		if err := publisher.Publish(ctx, n.Name(), res); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to publish result", slog.String("node", n.Name()), slog.Any("error", err))
		}
	}

	var wg sync.WaitGroup
	for _, n := range nodes.Nodes() {
		done := node.StartPoller(ctx, n, intervals[n.Name()].Interval, publish)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-done
		}()
	}

	if srv.Enabled() {
		// Run will block until context is canceled or error happens
		if err := srv.Run(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
			cancel()
			wg.Wait()
			os.Exit(1)
		}
	} else {
		<-ctx.Done()
	}
	wg.Wait()
	log.Ctx(ctx).InfoContext(ctx, "exited cleanly")
}

func runOnce(ctx context.Context, nodes *node.Map, publisher sink.Publisher) error {
	var errs []error
	for _, n := range nodes.Nodes() {
		res, err := n.Handle(ctx, node.Message{})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
		if err := publisher.Publish(ctx, n.Name(), res); err != nil {
			errs = append(errs, fmt.Errorf("%s: publish: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
