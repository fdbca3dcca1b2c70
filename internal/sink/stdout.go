// Observer printing the broadcast stream to STDOUT
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"counterdrone-sim/internal/broadcast"
	"counterdrone-sim/internal/sim"
	"counterdrone-sim/internal/telemetry"
)

// StdoutObserver prints messages as JSON lines, or as colorized text when
// STDOUT is a terminal.
type StdoutObserver struct {
	settings *sim.Settings
	out      io.Writer
	colorize bool
	once     sync.Once
}

// NewStdoutObserver writes to os.Stdout and colorizes when it is a TTY.
// settings may be nil; when set, an overview is printed before the first line.
func NewStdoutObserver(settings *sim.Settings) *StdoutObserver {
	return &StdoutObserver{
		settings: settings,
		out:      os.Stdout,
		colorize: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// Name implements broadcast.Named.
func (w *StdoutObserver) Name() string { return "stdout" }

// Send prints one message.
func (w *StdoutObserver) Send(_ context.Context, msg broadcast.Message) error {
	if !w.colorize {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w.out, string(data))
		return err
	}
	w.once.Do(w.printOverview)
	switch msg.Type {
	case broadcast.TypeDrones:
		fmt.Fprintf(w.out, "%s[%s]%s %sTICK %d%s drones=%d\n",
			colorGray, msg.Timestamp.Format(time.RFC3339), colorReset,
			colorBlue, msg.Tick, colorReset, len(msg.Drones))
		for _, d := range msg.Drones {
			w.printDrone(d)
		}
	case broadcast.TypeAlert:
		a := msg.Alert
		fmt.Fprintf(w.out, "%s[%s]%s %sALERT%s type=%s %sdrone=%s%s %sthreat=%s%s %s\n",
			colorGray, a.Timestamp.Format(time.RFC3339), colorReset,
			colorRed, colorReset, a.AlertType,
			colorWhite(), a.DroneID, colorReset,
			threatColor(a.ThreatLevel), a.ThreatLevel, colorReset,
			a.Description)
	}
	return nil
}

func (w *StdoutObserver) printDrone(d telemetry.Drone) {
	fmt.Fprintf(w.out, "  %sdrone=%s%s ", colorWhite(), d.ID, colorReset)
	fmt.Fprintf(w.out, "%stype=%s%s ", colorBlue, d.Type, colorReset)
	fmt.Fprintf(w.out, "%slat=%.5f%s ", colorGreen, d.Location.Latitude, colorReset)
	fmt.Fprintf(w.out, "%slon=%.5f%s ", colorYellow, d.Location.Longitude, colorReset)
	fmt.Fprintf(w.out, "%salt=%.1f%s ", colorMagenta, d.Location.Altitude, colorReset)
	fmt.Fprintf(w.out, "%sspd=%.1f%s ", colorYellow, d.Speed, colorReset)
	fmt.Fprintf(w.out, "%shdg=%.1f%s ", colorCyan, d.Heading, colorReset)
	fmt.Fprintf(w.out, "%ssig=%.0f%s ", colorGray, d.SignalStrength, colorReset)
	fmt.Fprintf(w.out, "%sthreat=%s%s", threatColor(d.ThreatLevel), d.ThreatLevel, colorReset)
	if d.Status.Jammed {
		fmt.Fprintf(w.out, " %sjammed%s", colorMagenta, colorReset)
	}
	fmt.Fprintln(w.out)
}

func (w *StdoutObserver) printOverview() {
	if w.settings == nil {
		return
	}
	s := w.settings
	fmt.Fprintln(w.out, "Simulation Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Region Center:\t%.4f, %.4f\n", s.Region.Center.Latitude, s.Region.Center.Longitude)
	fmt.Fprintf(tw, "Region Size (deg):\t%.3f x %.3f\n", s.Region.Width, s.Region.Height)
	fmt.Fprintf(tw, "Rotation (deg):\t%.1f\n", s.Region.Rotation)
	fmt.Fprintf(tw, "Restricted Fraction:\t%.2f\n", s.RestrictedFraction)
	fmt.Fprintf(tw, "Drones:\t%d (max %d)\n", s.DroneCount, s.MaxDrones)
	fmt.Fprintf(tw, "Tick Interval:\t%s\n", s.TickInterval)
	fmt.Fprintf(tw, "Boundary Policy:\t%s\n", s.Boundary)
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Close is a no-op; STDOUT stays open.
func (w *StdoutObserver) Close() error { return nil }
