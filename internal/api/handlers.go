package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"counterdrone-sim/internal/geo"
	"counterdrone-sim/internal/sim"
	"counterdrone-sim/internal/telemetry"
	"counterdrone-sim/internal/threat"
)

// activeWindow is how recently a drone must have been updated to count as active.
const activeWindow = 60 * time.Second

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &sim.ConfigError{Field: key, Reason: fmt.Sprintf("not a boolean: %q", raw)}
	}
	return &v, nil
}

func (s *Server) handleListDrones(w http.ResponseWriter, r *http.Request) {
	var f sim.DroneFilter
	active, err := queryBool(r, "active_only")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if active != nil && *active {
		f.ActiveWithin = activeWindow
	}
	if raw := r.URL.Query().Get("min_threat"); raw != "" {
		lvl, err := threat.Parse(raw)
		if err != nil {
			s.fail(w, r, &sim.ConfigError{Field: "min_threat", Reason: err.Error()})
			return
		}
		f.MinThreat = lvl
	}
	if raw := r.URL.Query().Get("drone_type"); raw != "" {
		dt := telemetry.DroneType(raw)
		if !dt.Valid() {
			s.fail(w, r, &sim.ConfigError{Field: "drone_type", Reason: fmt.Sprintf("unknown type %q", raw)})
			return
		}
		f.Type = dt
	}
	drones := s.engine.Drones(f)
	success(w, fmt.Sprintf("%d drones", len(drones)), map[string]any{
		"count":  len(drones),
		"drones": drones,
	})
}

func (s *Server) handleGetDrone(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.Drone(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, "drone found", map[string]any{"drone": d})
}

func (s *Server) handleAddDrone(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.AddDrone()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("drone added", "drone_id", d.ID, "type", d.Type)
	success(w, fmt.Sprintf("Test drone added with ID %s", d.ID), map[string]any{"drone": d})
}

func (s *Server) handleRemoveDrone(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.RemoveDrone(id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("drone removed", "drone_id", id)
	success(w, fmt.Sprintf("Drone %s removed", id), nil)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	var f sim.AlertFilter
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(w, r, &sim.ConfigError{Field: "limit", Reason: fmt.Sprintf("must be a non-negative integer, got %q", raw)})
			return
		}
		f.Limit = n
	}
	ack, err := queryBool(r, "acknowledged")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f.Acknowledged = ack
	alerts := s.engine.Alerts(f)
	if alerts == nil {
		alerts = []telemetry.Alert{}
	}
	success(w, fmt.Sprintf("%d alerts", len(alerts)), map[string]any{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.AcknowledgeAlert(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	success(w, fmt.Sprintf("Alert %s acknowledged", a.ID), map[string]any{"alert": a})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	success(w, "statistics", map[string]any{
		"stats":       s.engine.Stats(),
		"top_threats": s.engine.HighestThreats(5),
	})
}

func regionView(r geo.Region) map[string]any {
	return map[string]any{
		"center":   r.Center,
		"width":    r.Width,
		"height":   r.Height,
		"rotation": r.Rotation,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Settings()
	simulator := map[string]any{
		"active":            s.engine.Initialized(),
		"num_drones":        len(s.engine.Drones(sim.DroneFilter{})),
		"target_drones":     st.DroneCount,
		"max_drones":        st.MaxDrones,
		"update_interval":   st.TickInterval.Seconds(),
		"spawn_probability": st.SpawnProbability,
		"border":            regionView(st.Region),
	}
	body := map[string]any{
		"simulator": simulator,
		"system": map[string]any{
			"version": Version,
			"uptime":  time.Since(s.started).Round(time.Second).String(),
		},
	}
	if s.hub != nil {
		body["broadcast"] = s.hub.Stats()
	}
	success(w, "online", body)
}

// configRequest mirrors the fields accepted by the simulator config endpoint.
// Border fields are merged into the current region.
type configRequest struct {
	NumDrones        *int     `json:"num_drones"`
	UpdateInterval   *float64 `json:"update_interval"`
	SpawnProbability *float64 `json:"spawn_probability"`
	BorderCenterLat  *float64 `json:"border_center_lat"`
	BorderCenterLon  *float64 `json:"border_center_lon"`
	BorderWidth      *float64 `json:"border_width"`
	BorderHeight     *float64 `json:"border_height"`
	BorderRotation   *float64 `json:"border_rotation"`
}

func (c configRequest) reconfig(current geo.Region) (sim.Reconfig, error) {
	rc := sim.Reconfig{DroneCount: c.NumDrones, SpawnProbability: c.SpawnProbability}
	if c.UpdateInterval != nil {
		v := *c.UpdateInterval
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return sim.Reconfig{}, &sim.ConfigError{Field: "update_interval", Reason: fmt.Sprintf("must be positive seconds, got %v", v)}
		}
		d := time.Duration(v * float64(time.Second))
		rc.TickInterval = &d
	}
	if (c.BorderCenterLat == nil) != (c.BorderCenterLon == nil) {
		return sim.Reconfig{}, &sim.ConfigError{Field: "border_center", Reason: "latitude and longitude must be set together"}
	}
	region := current
	changed := false
	if c.BorderCenterLat != nil {
		region.Center = geo.Point{Latitude: *c.BorderCenterLat, Longitude: *c.BorderCenterLon}
		changed = true
	}
	for _, f := range []struct {
		src *float64
		dst *float64
	}{
		{c.BorderWidth, &region.Width},
		{c.BorderHeight, &region.Height},
		{c.BorderRotation, &region.Rotation},
	} {
		if f.src != nil {
			*f.dst = *f.src
			changed = true
		}
	}
	if changed {
		rc.Region = &region
	}
	return rc, nil
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	rc, err := req.reconfig(s.engine.Settings().Region)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	next, err := s.engine.Reconfigure(rc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("simulator reconfigured", "drones", next.DroneCount, "interval", next.TickInterval)
	success(w, "Simulator configuration updated", map[string]any{
		"updates": map[string]any{
			"num_drones":        next.DroneCount,
			"update_interval":   next.TickInterval.Seconds(),
			"spawn_probability": next.SpawnProbability,
			"border":            regionView(next.Region),
		},
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("simulator reset")
	success(w, "Simulator reset successfully", nil)
}
