package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"counterdrone-sim/internal/sim"
)

const (
	defaultJamPower    = 50
	defaultJamSeconds  = 30
	maxEffectSeconds   = 300
	defaultFlagSeconds = 60
)

type jamRequest struct {
	DroneID    string `json:"drone_id"`
	PowerLevel *int   `json:"power_level"`
	Duration   *int   `json:"duration"`
}

type emergencyJamRequest struct {
	PowerLevel *int `json:"power_level"`
	Duration   *int `json:"duration"`
}

type landRequest struct {
	DroneID string `json:"drone_id"`
}

type flagRequest struct {
	DroneID  string `json:"drone_id"`
	Kind     string `json:"kind"`
	Duration *int   `json:"duration"`
}

func requireDrone(id string) error {
	if strings.TrimSpace(id) == "" {
		return &sim.ConfigError{Field: "drone_id", Reason: "is required"}
	}
	return nil
}

// seconds reads an optional duration in whole seconds bounded by maxEffectSeconds.
func seconds(field string, v *int, def int) (time.Duration, error) {
	n := def
	if v != nil {
		n = *v
	}
	if n < 1 || n > maxEffectSeconds {
		return 0, &sim.ConfigError{Field: field, Reason: fmt.Sprintf("must be between 1 and %d seconds, got %d", maxEffectSeconds, n)}
	}
	return time.Duration(n) * time.Second, nil
}

// jamParams applies the jamming defaults and bounds.
func jamParams(powerLevel, duration *int) (int, time.Duration, error) {
	power := defaultJamPower
	if powerLevel != nil {
		power = *powerLevel
	}
	if power < 1 || power > 100 {
		return 0, 0, &sim.ConfigError{Field: "power_level", Reason: fmt.Sprintf("must be between 1 and 100, got %d", power)}
	}
	dur, err := seconds("duration", duration, defaultJamSeconds)
	if err != nil {
		return 0, 0, err
	}
	return power, dur, nil
}

func (s *Server) handleJam(w http.ResponseWriter, r *http.Request) {
	var req jamRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireDrone(req.DroneID); err != nil {
		s.fail(w, r, err)
		return
	}
	power, dur, err := jamParams(req.PowerLevel, req.Duration)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.engine.ApplyEffect(req.DroneID, sim.JamSignal{Magnitude: float64(power), Duration: dur})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("jamming applied", "drone_id", req.DroneID, "power", power, "jammed", res.Drone.Status.Jammed)
	success(w, fmt.Sprintf("Jamming activated against drone %s", req.DroneID), map[string]any{
		"drone": res.Drone,
		"jamming_details": map[string]any{
			"power_level": power,
			"duration":    dur.Seconds(),
			"jammed":      res.Drone.Status.Jammed,
		},
	})
}

func (s *Server) handleLand(w http.ResponseWriter, r *http.Request) {
	var req landRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireDrone(req.DroneID); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.engine.ApplyEffect(req.DroneID, sim.ForceLand{})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("forced landing", "drone_id", req.DroneID)
	success(w, fmt.Sprintf("Drone %s forced to land", req.DroneID), map[string]any{
		"drone":   res.Drone,
		"removed": res.Removed,
	})
}

func (s *Server) handleFlag(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireDrone(req.DroneID); err != nil {
		s.fail(w, r, err)
		return
	}
	dur, err := seconds("duration", req.Duration, defaultFlagSeconds)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.engine.ApplyEffect(req.DroneID, sim.MarkFlag{Kind: req.Kind, Duration: dur})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("drone flagged", "drone_id", req.DroneID, "kind", strings.TrimSpace(req.Kind))
	success(w, fmt.Sprintf("Drone %s flagged %s", req.DroneID, strings.TrimSpace(req.Kind)), map[string]any{
		"drone": res.Drone,
	})
}

func (s *Server) handleStopJam(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.engine.ApplyEffect(id, sim.ClearEffect{Kind: sim.EffectJam})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("jamming stopped", "drone_id", id)
	success(w, fmt.Sprintf("Jamming against drone %s stopped", id), map[string]any{
		"drone": res.Drone,
	})
}

func (s *Server) handleClearFlag(w http.ResponseWriter, r *http.Request) {
	id, kind := r.PathValue("id"), r.PathValue("kind")
	if kind == sim.EffectJam {
		s.fail(w, r, &sim.ConfigError{Field: "kind", Reason: "use DELETE /api/countermeasures/jam/{id} to stop jamming"})
		return
	}
	res, err := s.engine.ApplyEffect(id, sim.ClearEffect{Kind: kind})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("flag cleared", "drone_id", id, "kind", kind)
	success(w, fmt.Sprintf("Flag %s cleared on drone %s", kind, id), map[string]any{
		"drone": res.Drone,
	})
}

// applyAll applies eff to every current drone. Drones removed in between are skipped.
func (s *Server) applyAll(eff sim.Effect) ([]string, error) {
	ids := []string{}
	for _, d := range s.engine.Drones(sim.DroneFilter{}) {
		if _, err := s.engine.ApplyEffect(d.ID, eff); err != nil {
			if errors.Is(err, sim.ErrNotFound) {
				continue
			}
			return ids, err
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (s *Server) handleEmergencyJam(w http.ResponseWriter, r *http.Request) {
	var req emergencyJamRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	power, dur, err := jamParams(req.PowerLevel, req.Duration)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids, err := s.applyAll(sim.JamSignal{Magnitude: float64(power), Duration: dur})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Warn("emergency jamming", "drones", len(ids), "power", power)
	success(w, fmt.Sprintf("Emergency jamming activated against %d drones", len(ids)), map[string]any{
		"count":     len(ids),
		"drone_ids": ids,
	})
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	ids, err := s.applyAll(sim.ClearEffect{})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Warn("all countermeasures stopped", "drones", len(ids))
	success(w, fmt.Sprintf("All countermeasures stopped on %d drones", len(ids)), map[string]any{
		"count":     len(ids),
		"drone_ids": ids,
	})
}
