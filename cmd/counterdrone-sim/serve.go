package main

import (
	"context"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"counterdrone-sim/internal/api"
	"counterdrone-sim/internal/broadcast"
	"counterdrone-sim/internal/config"
	"counterdrone-sim/internal/logging"
	"counterdrone-sim/internal/sim"
	"counterdrone-sim/internal/sink"
)

var (
	serveConfigPath   string
	serveSchemaPath   string
	serveTUI          bool
	serveQuiet        bool
	serveNoAPI        bool
	serveRecord       string
	serveRecordAlerts string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation, broadcast loop and HTTP API",
	Long:  "serve ticks the drone simulation, publishes every snapshot and alert to the configured observers and exposes the control API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serveConfigPath, serveSchemaPath)
		if err != nil {
			return err
		}
		applyServeFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		var logOut io.Writer = os.Stderr
		if cfg.Outputs.TUI {
			// The alt screen owns the terminal.
			logOut = io.Discard
		}
		log, err := logging.NewWith(logOut, cfg.Logging.Format, cfg.Logging.Level)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		var engineOpts []sim.Option
		if cfg.Simulation.Seed != 0 {
			engineOpts = append(engineOpts, sim.WithRand(rand.New(rand.NewSource(cfg.Simulation.Seed))))
		}
		engine := sim.New(engineOpts...)
		settings := cfg.EngineSettings()
		if err := engine.Initialize(settings); err != nil {
			return err
		}
		log.Info("simulation initialized", "drones", settings.DroneCount, "interval", settings.TickInterval,
			"lat", settings.Region.Center.Latitude, "lon", settings.Region.Center.Longitude)

		opts := cfg.BroadcastOptions()
		opts.Logger = log
		loop := broadcast.New(engine, opts)
		defer loop.Stop()

		set, err := buildObservers(ctx, cfg, settings)
		if err != nil {
			return err
		}
		for _, obs := range set.observers {
			if _, err := loop.Register(obs); err != nil {
				return err
			}
		}
		if set.tui != nil {
			set.tui.SetJammer(func(id string, power float64) error {
				_, err := engine.ApplyEffect(id, sim.JamSignal{Magnitude: power})
				return err
			})
		}

		if err := loop.Start(ctx); err != nil {
			return err
		}

		var apiErr chan error
		if cfg.Server.Enabled {
			apiErr = make(chan error, 1)
			srv := api.NewServer(engine, loop, log)
			go func() { apiErr <- srv.Start(ctx, cfg.Server.ListenAddr) }()
			if set.tui != nil {
				set.tui.SetAPIStatus(true)
			}
		}

		if err := awaitShutdown(ctx, apiErr); err != nil {
			log.Error("api server failed", "err", err)
			return err
		}
		log.Info("shutting down", "ticks", loop.Stats().Ticks)
		return nil
	},
}

// awaitShutdown blocks until ctx is done or the API server exits. After
// cancellation it waits for the server to finish its graceful shutdown. A
// nil apiErr means no server is running.
func awaitShutdown(ctx context.Context, apiErr <-chan error) error {
	select {
	case <-ctx.Done():
	case err := <-apiErr:
		return err
	}
	if apiErr == nil {
		return nil
	}
	return <-apiErr
}

// applyServeFlags layers explicitly set command-line flags over cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("tui") {
		cfg.Outputs.TUI = serveTUI
		if serveTUI {
			cfg.Outputs.Stdout = false
		}
	}
	if flags.Changed("quiet") && serveQuiet {
		cfg.Outputs.Stdout = false
	}
	if flags.Changed("no-api") && serveNoAPI {
		cfg.Server.Enabled = false
	}
	if serveRecord != "" {
		cfg.Outputs.File.Stream = serveRecord
	}
	if serveRecordAlerts != "" {
		cfg.Outputs.File.Alerts = serveRecordAlerts
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "config/simulation.yaml", "Path to simulation configuration YAML")
	serveCmd.Flags().StringVar(&serveSchemaPath, "schema", "schemas/simulation.cue", "Path to CUE schema file")
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "Show the interactive terminal UI instead of printing to STDOUT")
	serveCmd.Flags().BoolVar(&serveQuiet, "quiet", false, "Do not print the stream to STDOUT")
	serveCmd.Flags().BoolVar(&serveNoAPI, "no-api", false, "Disable the HTTP API")
	serveCmd.Flags().StringVar(&serveRecord, "record", "", "Record the stream to this JSONL file for replay")
	serveCmd.Flags().StringVar(&serveRecordAlerts, "record-alerts", "", "Also write alerts to this JSONL file (requires --record)")
}
