package main

import (
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/soundpatch/soundpatch/internal/broadcast"
	"github.com/soundpatch/soundpatch/internal/config"
	"github.com/soundpatch/soundpatch/internal/proto"
	"github.com/soundpatch/soundpatch/internal/sink"
	"github.com/soundpatch/soundpatch/internal/source"
	"github.com/soundpatch/soundpatch/internal/switcher"
)

func main() {
	configFilePath := flag.String("config", "soundpatch.yaml", "Set the file path to the config file.")
	flag.Parse()

	cfg, err := config.Load(*configFilePath)
	if err != nil {
		slog.Error("error during config read", "err", err)
		panic(err)
	}

	logFilePointer, err := config.ConfigureLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		slog.Error("error during logger configuration", "err", err)
		panic(err)
	}
	if logFilePointer != nil {
		defer logFilePointer.Close()
	}

	slog.Info("welcome to soundpatch")

	// --------------------------------------------------------------------------------
	// Bring up every sink, then every source. Any failure aborts the whole
	// process before a single control connection is served.

	sinks := make(map[string]*sink.Sink)
	for _, endpoint := range cfg.Outputs {
		snk, err := sink.New(endpoint)
		if err != nil {
			slog.Error("error when creating sink",
				"name", endpoint.Name,
				"err", err,
			)
			panic(err)
		}
		sinks[endpoint.Name] = snk
		slog.Info("created sink", "name", snk.Name(), "kind", snk.Kind())
	}

	sources := make(map[string]*source.Source)
	for _, endpoint := range cfg.Sources {
		// Every sink gets one switcher slot for this source; the source's
		// broadcaster delivers each chunk to all of them.
		ports := make([]*switcher.Port[*sink.Sender], 0, len(sinks))
		for _, snk := range sinks {
			ports = append(ports, snk.AddSource(endpoint.Name))
		}

		src, err := source.New(endpoint, broadcast.New(ports))
		if err != nil {
			slog.Error("error when creating source",
				"name", endpoint.Name,
				"err", err,
			)
			panic(err)
		}
		sources[endpoint.Name] = src
		slog.Info("created source", "name", src.Name(), "kind", src.Kind())
	}

	slog.Info("initialisation completed",
		"sinks", len(sinks),
		"sources", len(sources),
	)

	// --------------------------------------------------------------------------------

	sinkStates := make(map[string]proto.SinkState, len(sinks))
	for name, snk := range sinks {
		sinkStates[name] = snk
	}
	sourceStates := make(map[string]proto.SourceState, len(sources))
	for name, src := range sources {
		sourceStates[name] = src
	}
	state := proto.NewState(sinkStates, sourceStates)

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		slog.Error("error when opening control listener",
			"listen", cfg.Listen,
			"err", err,
		)
		panic(err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		slog.Info("shutting down", "signal", sig.String())
		listener.Close()
	}()

	if err := proto.NewServer(state).Serve(listener); err != nil {
		slog.Debug("control plane stopped", "err", err)
	}

	// --------------------------------------------------------------------------------
	// Stop sources before sinks so no broadcaster delivers into a sink
	// whose consumer is already gone; every backend goroutine is joined.

	for name, src := range sources {
		if err := src.Close(); err != nil {
			slog.Error("error while closing source", "name", name, "err", err)
		}
	}
	for name, snk := range sinks {
		if err := snk.Close(); err != nil {
			slog.Error("error while closing sink", "name", name, "err", err)
		}
	}

	slog.Info("goodbye")
}
