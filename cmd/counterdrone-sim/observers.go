package main

import (
	"context"
	"fmt"

	"counterdrone-sim/internal/broadcast"
	"counterdrone-sim/internal/config"
	"counterdrone-sim/internal/logging"
	"counterdrone-sim/internal/sim"
	"counterdrone-sim/internal/sink"
)

// Observer kinds accepted by newObserver.
const (
	kindStdout   = "stdout"
	kindTUI      = "tui"
	kindFile     = "file"
	kindGreptime = "greptimedb"
	kindNATS     = "nats"
	kindRedis    = "redis"
)

// enabledKinds lists the observers cfg turns on, in registration order.
func enabledKinds(cfg *config.Config) []string {
	var kinds []string
	switch {
	case cfg.Outputs.TUI:
		kinds = append(kinds, kindTUI)
	case cfg.Outputs.Stdout:
		kinds = append(kinds, kindStdout)
	}
	if cfg.Outputs.File.Stream != "" {
		kinds = append(kinds, kindFile)
	}
	if cfg.Outputs.Greptime.Endpoint != "" {
		kinds = append(kinds, kindGreptime)
	}
	if cfg.Outputs.NATS.URL != "" {
		kinds = append(kinds, kindNATS)
	}
	if cfg.Outputs.Redis.Addr != "" {
		kinds = append(kinds, kindRedis)
	}
	return kinds
}

// newObserver connects one sink.
func newObserver(ctx context.Context, cfg *config.Config, settings sim.Settings, kind string) (broadcast.Observer, error) {
	switch kind {
	case kindStdout:
		return sink.NewStdoutObserver(&settings), nil
	case kindTUI:
		return sink.NewTUIObserver(settings), nil
	case kindFile:
		return sink.NewFileObserver(cfg.Outputs.File.Stream, cfg.Outputs.File.Alerts)
	case kindGreptime:
		return sink.NewGreptimeObserver(cfg.Outputs.Greptime.Endpoint, cfg.Outputs.Greptime.Database, logging.FromContext(ctx))
	case kindNATS:
		return sink.NewNATSObserver(cfg.Outputs.NATS.URL, cfg.Outputs.NATS.SubjectPrefix)
	case kindRedis:
		return sink.NewRedisObserver(cfg.Outputs.Redis.Addr)
	}
	return nil, fmt.Errorf("unknown observer %q", kind)
}

type observerSet struct {
	observers []broadcast.Observer
	tui       *sink.TUIObserver
}

// buildObservers connects every enabled sink. On error the ones already
// opened are closed.
func buildObservers(ctx context.Context, cfg *config.Config, settings sim.Settings) (observerSet, error) {
	log := logging.FromContext(ctx)
	var set observerSet
	for _, kind := range enabledKinds(cfg) {
		obs, err := newObserver(ctx, cfg, settings, kind)
		if err != nil {
			for _, o := range set.observers {
				o.Close()
			}
			return observerSet{}, fmt.Errorf("%s observer: %w", kind, err)
		}
		if t, ok := obs.(*sink.TUIObserver); ok {
			set.tui = t
		}
		set.observers = append(set.observers, obs)
		log.Info("observer configured", "observer", kind)
	}
	return set, nil
}
