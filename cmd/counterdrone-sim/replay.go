package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"counterdrone-sim/internal/config"
	"counterdrone-sim/internal/logging"
	"counterdrone-sim/internal/sink"
)

var (
	replayInput      string
	replaySpeed      float64
	replayTarget     string
	replayConfigPath string
	replaySchemaPath string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded stream",
	Long:  "replay feeds a JSONL recording made with serve --record into one observer, honoring the recorded timing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		if replaySpeed < 0 {
			return fmt.Errorf("speed must not be negative, got %v", replaySpeed)
		}
		cfg, err := config.Load(replayConfigPath, replaySchemaPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if logFormat != "" {
			cfg.Logging.Format = logFormat
		}
		log, err := logging.NewWith(os.Stderr, cfg.Logging.Format, cfg.Logging.Level)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		obs, err := newObserver(ctx, cfg, cfg.EngineSettings(), replayTarget)
		if err != nil {
			return err
		}
		defer obs.Close()

		n, err := sink.ReplayLogFile(ctx, replayInput, obs, replaySpeed)
		log.Info("replay finished", "messages", n, "target", replayTarget)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a recorded JSONL stream")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 replays without delays)")
	replayCmd.Flags().StringVar(&replayTarget, "to", kindStdout, "Observer to replay into: stdout, greptimedb, nats or redis")
	replayCmd.Flags().StringVar(&replayConfigPath, "config", "", "Optional configuration YAML with output endpoints")
	replayCmd.Flags().StringVar(&replaySchemaPath, "schema", "schemas/simulation.cue", "Path to CUE schema file")
	replayCmd.MarkFlagRequired("input")
}
