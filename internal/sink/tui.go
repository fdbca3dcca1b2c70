package sink

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"counterdrone-sim/internal/broadcast"
	"counterdrone-sim/internal/sim"
	"counterdrone-sim/internal/telemetry"
	"counterdrone-sim/internal/threat"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// JamFunc applies a jamming effect from the TUI.
type JamFunc func(droneID string, power float64) error

// logMsg carries a log line for the event viewport.
type logMsg struct{ line string }

// alertMsg carries an alert and its rendered line.
type alertMsg struct {
	line  string
	alert telemetry.Alert
}

type snapshotMsg struct{ broadcast.Message }

// apiMsg reports HTTP API status.
type apiMsg struct{ active bool }

type setJammerMsg struct{ fn JamFunc }

type jamResultMsg struct {
	droneID string
	power   float64
	err     error
}

const (
	maxLogLines         = 1000
	maxTableRows        = 8
	maxSectionHeightPct = 0.2
	highAltThreshold    = 300.0
	fallbackJamPower    = 60.0
)

// TUIObserver renders the stream in a bubbletea terminal UI.
type TUIObserver struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIObserver starts a bubbletea program and returns a TUIObserver.
// Quitting the UI interrupts the process so the server shuts down with it.
func NewTUIObserver(settings sim.Settings) *TUIObserver {
	w := &TUIObserver{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(settings), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Name implements broadcast.Named.
func (w *TUIObserver) Name() string { return "tui" }

// Send forwards a message to the UI.
func (w *TUIObserver) Send(_ context.Context, msg broadcast.Message) error {
	switch msg.Type {
	case broadcast.TypeDrones:
		high := 0
		for _, d := range msg.Drones {
			if d.ThreatLevel.AtLeast(threat.High) {
				high++
			}
		}
		w.program.Send(logMsg{line: fmt.Sprintf("%s[%s]%s %sTICK %d%s drones=%d %shigh=%d%s",
			colorGray, msg.Timestamp.Format(time.RFC3339), colorReset,
			colorBlue, msg.Tick, colorReset, len(msg.Drones),
			colorRed, high, colorReset)})
		w.program.Send(snapshotMsg{msg})
	case broadcast.TypeAlert:
		a := *msg.Alert
		line := fmt.Sprintf("%s[%s]%s %s%s%s %sdrone=%s%s %sthreat=%s%s %s",
			colorGray, a.Timestamp.Format(time.RFC3339), colorReset,
			colorRed, strings.ToUpper(string(a.AlertType)), colorReset,
			colorWhite(), a.DroneID, colorReset,
			threatColor(a.ThreatLevel), a.ThreatLevel, colorReset,
			a.Description)
		w.program.Send(alertMsg{line: line, alert: a})
	}
	return nil
}

// SetAPIStatus updates the HTTP API indicator.
func (w *TUIObserver) SetAPIStatus(active bool) {
	w.program.Send(apiMsg{active: active})
}

// SetJammer registers the callback used by the jam dialog.
func (w *TUIObserver) SetJammer(fn JamFunc) {
	w.program.Send(setJammerMsg{fn: fn})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIObserver) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	settings     sim.Settings
	table        table.Model
	vp           viewport.Model
	alertVP      viewport.Model
	logs         []string
	alertLogs    []string
	drones       []telemetry.Drone
	tick         uint64
	alertCount   int
	api          bool
	wrap         bool
	autoscroll   bool
	summary      bool
	help         bool
	showMap      bool
	header       string
	headerHeight int
	height       int
	jam          JamFunc
	jamInput     textinput.Model
	jamDialog    bool
}

func newTUIModel(settings sim.Settings) tuiModel {
	cols := []table.Column{
		{Title: "Drone", Width: 22},
		{Title: "Type", Width: 10},
		{Title: "Lat", Width: 9},
		{Title: "Lon", Width: 9},
		{Title: "Alt", Width: 6},
		{Title: "Sig", Width: 4},
		{Title: "Threat", Width: 8},
		{Title: "Status", Width: 10},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(2))
	return tuiModel{
		settings:   settings,
		table:      t,
		vp:         viewport.New(0, 0),
		alertVP:    viewport.New(0, 0),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.alertVP.Width = msg.Width
		m.height = msg.Height
		m.refreshHeader()
		m.updateViewportHeight()
		m.refreshViewport()
		m.refreshAlerts()
	case tea.KeyMsg:
		if m.jamDialog {
			switch msg.Type {
			case tea.KeyEnter:
				m.jamDialog = false
				m.updateViewportHeight()
				id, power, err := parseJamInput(m.jamInput.Value())
				if err != nil {
					m.appendLog(fmt.Sprintf("%sJAM%s %v", colorRed, colorReset, err))
					return m, nil
				}
				return m, jamCmd(m.jam, id, power)
			case tea.KeyEsc:
				m.jamDialog = false
				m.updateViewportHeight()
			default:
				var cmd tea.Cmd
				m.jamInput, cmd = m.jamInput.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
				m.updateViewportHeight()
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			m.refreshHeader()
			m.updateViewportHeight()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
				m.alertVP.GotoBottom()
			}
			return m, nil
		case "x":
			m.jamInput = textinput.New()
			m.jamInput.Placeholder = "drone_id,power"
			if len(m.drones) > 0 {
				m.jamInput.SetValue(fmt.Sprintf("%s,%.0f", m.drones[0].ID, fallbackJamPower))
			}
			m.jamInput.CursorEnd()
			m.jamInput.Focus()
			m.jamDialog = true
			m.updateViewportHeight()
			return m, nil
		case "m":
			m.showMap = !m.showMap
			return m, nil
		case "t":
			m.summary = !m.summary
			m.updateViewportHeight()
			return m, nil
		case "h", "?":
			m.help = !m.help
			m.updateViewportHeight()
			return m, nil
		}
		if !m.autoscroll {
			switch msg.String() {
			case "j", "down":
				m.vp.LineDown(1)
				m.alertVP.LineDown(1)
			case "k", "up":
				m.vp.LineUp(1)
				m.alertVP.LineUp(1)
			case "pgdown", "ctrl+n":
				m.vp.LineDown(10)
				m.alertVP.LineDown(10)
			case "pgup", "ctrl+p":
				m.vp.LineUp(10)
				m.alertVP.LineUp(10)
			default:
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				m.alertVP, _ = m.alertVP.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		return m, nil
	case logMsg:
		m.appendLog(msg.line)
	case alertMsg:
		m.alertLogs = append(m.alertLogs, msg.line)
		if len(m.alertLogs) > maxLogLines {
			m.alertLogs = m.alertLogs[len(m.alertLogs)-maxLogLines:]
		}
		m.alertCount++
		m.updateViewportHeight()
		m.refreshAlerts()
	case snapshotMsg:
		m.tick = msg.Tick
		m.drones = append(m.drones[:0:0], msg.Drones...)
		sort.SliceStable(m.drones, func(i, j int) bool {
			return m.drones[i].ThreatLevel.Rank() > m.drones[j].ThreatLevel.Rank()
		})
		m.table.SetRows(droneRows(m.drones))
		n := len(m.drones)
		if n > maxTableRows {
			n = maxTableRows
		}
		m.table.SetHeight(n + 1)
		m.refreshHeader()
		m.updateViewportHeight()
	case apiMsg:
		m.api = msg.active
	case setJammerMsg:
		m.jam = msg.fn
	case jamResultMsg:
		if msg.err != nil {
			m.appendLog(fmt.Sprintf("%sJAM%s drone=%s failed: %v", colorRed, colorReset, msg.droneID, msg.err))
		} else {
			m.appendLog(fmt.Sprintf("%sJAM%s drone=%s power=%.0f", colorMagenta, colorReset, msg.droneID, msg.power))
		}
	}
	return m, nil
}

func jamCmd(fn JamFunc, id string, power float64) tea.Cmd {
	return func() tea.Msg {
		if fn == nil {
			return jamResultMsg{droneID: id, power: power, err: fmt.Errorf("jamming unavailable")}
		}
		return jamResultMsg{droneID: id, power: power, err: fn(id, power)}
	}
}

func parseJamInput(s string) (string, float64, error) {
	parts := strings.Split(s, ",")
	id := strings.TrimSpace(parts[0])
	if id == "" {
		return "", 0, fmt.Errorf("drone id required")
	}
	power := fallbackJamPower
	if len(parts) > 1 {
		p, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return "", 0, fmt.Errorf("invalid power %q", parts[1])
		}
		power = p
	}
	return id, power, nil
}

func droneRows(drones []telemetry.Drone) []table.Row {
	rows := make([]table.Row, 0, len(drones))
	for _, d := range drones {
		status := "active"
		switch {
		case d.Status.ControlCompromised:
			status = "compromised"
		case d.Status.Jammed:
			status = "jammed"
		case len(d.Status.Flags) > 0:
			kinds := make([]string, 0, len(d.Status.Flags))
			for k := range d.Status.Flags {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			status = strings.Join(kinds, ",")
		}
		rows = append(rows, table.Row{
			d.ID,
			string(d.Type),
			fmt.Sprintf("%.5f", d.Location.Latitude),
			fmt.Sprintf("%.5f", d.Location.Longitude),
			fmt.Sprintf("%.0f", d.Location.Altitude),
			fmt.Sprintf("%.0f", d.SignalStrength),
			string(d.ThreatLevel),
			status,
		})
	}
	return rows
}

func (m *tuiModel) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshViewport()
}

func (m *tuiModel) refreshHeader() {
	s := m.settings
	line := fmt.Sprintf("%sREGION%s center=%.4f,%.4f size=%.3fx%.3f rot=%.0f restricted=%.2f boundary=%s interval=%s",
		colorBlue, colorReset,
		s.Region.Center.Latitude, s.Region.Center.Longitude,
		s.Region.Width, s.Region.Height, s.Region.Rotation,
		s.RestrictedFraction, s.Boundary, s.TickInterval)
	if m.wrap && m.vp.Width > 0 {
		line = wordwrap.String(line, m.vp.Width)
	}
	m.header = lipgloss.JoinVertical(lipgloss.Left, line, m.table.View())
	m.headerHeight = lipgloss.Height(m.header)
}

func (m *tuiModel) updateViewportHeight() {
	bottomHeight := lipgloss.Height(m.renderBottom())
	maxLines := m.maxSectionLines()

	alertLines := len(m.alertLogs)
	if alertLines == 0 {
		alertLines = 1
	}
	if alertLines > maxLines {
		alertLines = maxLines
	}
	m.alertVP.Height = alertLines

	dialog := 0
	if m.jamDialog {
		dialog = 2
	}
	h := m.height - m.headerHeight - bottomHeight - (1 + m.alertVP.Height) - dialog - 3
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.alertVP.GotoBottom()
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshAlerts() {
	content := "none"
	if len(m.alertLogs) > 0 {
		content = strings.Join(m.alertLogs, "\n")
	}
	m.alertVP.SetContent(content)
	if m.autoscroll {
		m.alertVP.GotoBottom()
	}
}

func (m tuiModel) maxSectionLines() int {
	h := int(float64(m.height) * maxSectionHeightPct)
	if h < 1 {
		h = 1
	}
	return h
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	body := m.vp.View()
	if m.showMap {
		body = m.renderMap(m.vp.Width, m.vp.Height)
	}
	sections := []string{
		m.header,
		divider,
		body,
		divider,
		"Alerts:",
		m.alertVP.View(),
	}
	if m.jamDialog {
		sections = append(sections, divider, "Jam drone (id,power): "+m.jamInput.View())
	}
	sections = append(sections, divider, m.renderBottom())
	return strings.Join(sections, "\n")
}

func indicator(on bool) string {
	c := lipgloss.Color("9")
	if on {
		c = lipgloss.Color("10")
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m tuiModel) renderBottom() string {
	state := fmt.Sprintf("%sSTATE%s %stick=%d%s %sdrones=%d%s %salerts=%d%s",
		colorBlue, colorReset,
		colorGreen, m.tick, colorReset,
		colorCyan, len(m.drones), colorReset,
		colorRed, m.alertCount, colorReset)
	line := fmt.Sprintf("%s | API %s | Wrap %s | Scroll %s | Summary %s | Map %s | Help %s",
		state, indicator(m.api), indicator(m.wrap), indicator(m.autoscroll),
		indicator(m.summary), indicator(m.showMap), indicator(m.help))
	if m.summary {
		return fmt.Sprintf("%s\n%s", m.renderSummary(), line)
	}
	return line
}

func (m tuiModel) renderSummary() string {
	byType := make(map[telemetry.DroneType]int)
	byThreat := make(map[threat.Level]int)
	var signal float64
	jammed := 0
	for _, d := range m.drones {
		byType[d.Type]++
		byThreat[d.ThreatLevel]++
		signal += d.SignalStrength
		if d.Status.Jammed {
			jammed++
		}
	}
	avg := 0.0
	if len(m.drones) > 0 {
		avg = signal / float64(len(m.drones))
	}
	var typeParts, threatParts []string
	for _, t := range telemetry.DroneTypes {
		typeParts = append(typeParts, fmt.Sprintf("%s=%d", t, byType[t]))
	}
	for _, l := range threat.Levels {
		threatParts = append(threatParts, fmt.Sprintf("%s%s=%d%s", threatColor(l), l, byThreat[l], colorReset))
	}
	return fmt.Sprintf("%sSUMMARY%s %savg_sig=%.1f%s %sjammed=%d%s [%s] [%s]",
		colorBlue, colorReset, colorCyan, avg, colorReset, colorMagenta, jammed, colorReset,
		strings.Join(typeParts, " "), strings.Join(threatParts, " "))
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" w  toggle wrap",
		" s  toggle auto-scroll",
		" x  jam a drone (id,power)",
		" t  toggle summary footer",
		" m  toggle map view",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}

func headingIcon(h float64) string {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	switch {
	case h >= 45 && h < 135:
		return ">"
	case h >= 135 && h < 225:
		return "v"
	case h >= 225 && h < 315:
		return "<"
	default:
		return "^"
	}
}

func altitudeIcon(h, alt float64) string {
	icon := headingIcon(h)
	if alt >= highAltThreshold {
		switch icon {
		case "^":
			return "▲"
		case ">":
			return "▶"
		case "v":
			return "▼"
		case "<":
			return "◀"
		}
	}
	return icon
}

// renderMap plots drones on a character grid spanning the region plus a
// margin. Rotation is ignored for the frame.
func (m tuiModel) renderMap(width, height int) string {
	if width < 3 || height < 3 {
		return ""
	}
	r := m.settings.Region
	span := math.Max(r.Width, r.Height) * 1.2
	minLat, maxLat := r.Center.Latitude-span/2, r.Center.Latitude+span/2
	minLon, maxLon := r.Center.Longitude-span/2, r.Center.Longitude+span/2

	grid := make([][]string, height)
	for y := range grid {
		grid[y] = make([]string, width)
		for x := range grid[y] {
			grid[y][x] = " "
		}
	}
	cell := func(lat, lon float64) (int, int, bool) {
		x := int((lon - minLon) / (maxLon - minLon) * float64(width-1))
		y := int((maxLat - lat) / (maxLat - minLat) * float64(height-1))
		return x, y, x >= 0 && x < width && y >= 0 && y < height
	}
	for _, corner := range [][2]float64{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}} {
		if x, y, ok := cell(r.Center.Latitude+corner[0]*r.Height/2, r.Center.Longitude+corner[1]*r.Width/2); ok {
			grid[y][x] = colorGray + "+" + colorReset
		}
	}
	if x, y, ok := cell(r.Center.Latitude, r.Center.Longitude); ok {
		grid[y][x] = colorBlue + "x" + colorReset
	}
	for _, d := range m.drones {
		if x, y, ok := cell(d.Location.Latitude, d.Location.Longitude); ok {
			grid[y][x] = threatColor(d.ThreatLevel) + altitudeIcon(d.Heading, d.Location.Altitude) + colorReset
		}
	}
	lines := make([]string, height)
	for y := range grid {
		lines[y] = strings.Join(grid[y], "")
	}
	return strings.Join(lines, "\n")
}
