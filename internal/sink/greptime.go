package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"counterdrone-sim/internal/broadcast"
)

const (
	TracksTable = "drone_tracks"
	AlertsTable = "drone_alerts"
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeObserver stores drone tracks and alerts as time series in GreptimeDB.
type GreptimeObserver struct {
	client      greptimeClient
	tracksTable string
	alertsTable string
	log         *slog.Logger
}

// NewGreptimeObserver connects to endpoint (host:port) and writes into database.
func NewGreptimeObserver(endpoint, database string, log *slog.Logger) (*GreptimeObserver, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, fmt.Errorf("greptime endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("greptime port %q: %w", portStr, err)
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &GreptimeObserver{client: client, tracksTable: TracksTable, alertsTable: AlertsTable, log: log}, nil
}

// Name implements broadcast.Named.
func (w *GreptimeObserver) Name() string { return "greptimedb" }

type column struct {
	name string
	typ  types.ColumnType
}

// newTable declares tags first, then fields, then the ts time index.
func newTable(name string, tags, fields []column) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	for _, c := range tags {
		if err := tbl.AddTagColumn(c.name, c.typ); err != nil {
			return nil, fmt.Errorf("tag %s: %w", c.name, err)
		}
	}
	for _, c := range fields {
		if err := tbl.AddFieldColumn(c.name, c.typ); err != nil {
			return nil, fmt.Errorf("field %s: %w", c.name, err)
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

// Send writes one snapshot as a batch of track rows, or one alert row.
func (w *GreptimeObserver) Send(ctx context.Context, msg broadcast.Message) error {
	var (
		tbl  *table.Table
		name string
		err  error
	)
	switch msg.Type {
	case broadcast.TypeDrones:
		if len(msg.Drones) == 0 {
			return nil
		}
		name = w.tracksTable
		tbl, err = w.tracks(msg)
	case broadcast.TypeAlert:
		name = w.alertsTable
		tbl, err = w.alert(msg)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Error("greptime write failed", "table", name, "err", err)
		return err
	}
	return nil
}

func (w *GreptimeObserver) tracks(msg broadcast.Message) (*table.Table, error) {
	tbl, err := newTable(w.tracksTable,
		[]column{
			{"drone_id", types.STRING},
			{"drone_type", types.STRING},
		},
		[]column{
			{"lat", types.FLOAT64},
			{"lon", types.FLOAT64},
			{"alt", types.FLOAT64},
			{"speed", types.FLOAT64},
			{"heading", types.FLOAT64},
			{"signal_strength", types.FLOAT64},
			{"threat_level", types.STRING},
			{"confidence", types.FLOAT64},
			{"battery", types.FLOAT64},
			{"jammed", types.BOOLEAN},
			{"tick", types.INT64},
		})
	if err != nil {
		return nil, err
	}
	for _, d := range msg.Drones {
		if err := tbl.AddRow(
			d.ID, string(d.Type),
			d.Location.Latitude, d.Location.Longitude, d.Location.Altitude,
			d.Speed, d.Heading, d.SignalStrength, string(d.ThreatLevel),
			d.Confidence, d.Metadata.Battery, d.Status.Jammed, int64(msg.Tick),
			d.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("track row %s: %w", d.ID, err)
		}
	}
	return tbl, nil
}

func (w *GreptimeObserver) alert(msg broadcast.Message) (*table.Table, error) {
	tbl, err := newTable(w.alertsTable,
		[]column{
			{"alert_type", types.STRING},
		},
		[]column{
			{"alert_id", types.STRING},
			{"drone_id", types.STRING},
			{"threat_level", types.STRING},
			{"description", types.STRING},
			{"lat", types.FLOAT64},
			{"lon", types.FLOAT64},
		})
	if err != nil {
		return nil, err
	}
	a := msg.Alert
	if err := tbl.AddRow(
		string(a.AlertType),
		a.ID, a.DroneID, string(a.ThreatLevel), a.Description,
		a.Location.Latitude, a.Location.Longitude,
		a.Timestamp,
	); err != nil {
		return nil, fmt.Errorf("alert row %s: %w", a.ID, err)
	}
	return tbl, nil
}

// Close is a no-op; the ingester client holds no per-observer resources.
func (w *GreptimeObserver) Close() error { return nil }
