package sink

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"counterdrone-sim/internal/sim"
)

type fakeProgram struct{ msgs []tea.Msg }

func (f *fakeProgram) Send(msg tea.Msg) { f.msgs = append(f.msgs, msg) }

func TestTUIObserverMessages(t *testing.T) {
	p := &fakeProgram{}
	w := &TUIObserver{program: p}
	if err := w.Send(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, ok := p.msgs[0].(logMsg); !ok {
		t.Fatalf("expected logMsg, got %T", p.msgs[0])
	}
	if _, ok := p.msgs[1].(snapshotMsg); !ok {
		t.Fatalf("expected snapshotMsg, got %T", p.msgs[1])
	}
	if err := w.Send(context.Background(), testAlert()); err != nil {
		t.Fatalf("alert: %v", err)
	}
	if am, ok := p.msgs[2].(alertMsg); !ok || !strings.Contains(am.line, "BORDER_VIOLATION") {
		t.Fatalf("expected alertMsg, got %#v", p.msgs[2])
	}
	w.SetAPIStatus(true)
	if _, ok := p.msgs[3].(apiMsg); !ok {
		t.Fatalf("expected apiMsg, got %T", p.msgs[3])
	}
}

func TestSnapshotFillsTable(t *testing.T) {
	m := newTUIModel(sim.DefaultSettings())
	mi, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = mi.(tuiModel)
	mi, _ = m.Update(snapshotMsg{testSnapshot()})
	m = mi.(tuiModel)
	if m.tick != 4 || len(m.table.Rows()) != 1 {
		t.Fatalf("table not updated: tick=%d rows=%d", m.tick, len(m.table.Rows()))
	}
	if m.table.Rows()[0][6] != "high" {
		t.Fatalf("threat column = %s", m.table.Rows()[0][6])
	}
	if !strings.Contains(m.View(), "drone-1-abc") {
		t.Fatalf("drone missing from view")
	}
}

func TestWrapToggle(t *testing.T) {
	m := newTUIModel(sim.DefaultSettings())
	mi, _ := m.Update(tea.WindowSizeMsg{Width: 20, Height: 30})
	m = mi.(tuiModel)
	long := "one two three four five six"
	mi, _ = m.Update(logMsg{line: long})
	m = mi.(tuiModel)
	lines := strings.Split(m.vp.View(), "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[1]) != "" {
		t.Fatalf("expected single line before wrap")
	}
	before := m.header
	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	m = mi.(tuiModel)
	if !m.wrap {
		t.Fatalf("wrap not toggled")
	}
	lines = strings.Split(m.vp.View(), "\n")
	if strings.TrimSpace(lines[1]) == "" {
		t.Fatalf("expected wrapped content on second line")
	}
	if strings.Count(m.header, "\n") <= strings.Count(before, "\n") {
		t.Fatalf("expected region line to wrap")
	}
}

func TestScrollToggle(t *testing.T) {
	m := newTUIModel(sim.DefaultSettings())
	m.vp.Height = 1
	m.vp.Width = 20
	mi, _ := m.Update(logMsg{line: "l1"})
	m = mi.(tuiModel)
	mi, _ = m.Update(logMsg{line: "l2"})
	m = mi.(tuiModel)
	if m.vp.YOffset != 1 {
		t.Fatalf("expected YOffset 1, got %d", m.vp.YOffset)
	}
	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	m = mi.(tuiModel)
	if m.autoscroll {
		t.Fatalf("autoscroll should be off")
	}
	mi, _ = m.Update(logMsg{line: "l3"})
	m = mi.(tuiModel)
	if m.vp.YOffset != 1 {
		t.Fatalf("expected YOffset unchanged, got %d", m.vp.YOffset)
	}
	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = mi.(tuiModel)
	if m.vp.YOffset != 0 {
		t.Fatalf("expected YOffset 0 after scrolling up, got %d", m.vp.YOffset)
	}
	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	m = mi.(tuiModel)
	if !m.autoscroll {
		t.Fatalf("autoscroll should be on")
	}
	expected := len(m.logs) - m.vp.Height
	if m.vp.YOffset != expected {
		t.Fatalf("expected YOffset %d, got %d", expected, m.vp.YOffset)
	}
}

func TestJamDialog(t *testing.T) {
	var gotID string
	var gotPower float64
	m := newTUIModel(sim.DefaultSettings())
	mi, _ := m.Update(setJammerMsg{fn: func(id string, power float64) error {
		gotID, gotPower = id, power
		return nil
	}})
	m = mi.(tuiModel)
	mi, _ = m.Update(snapshotMsg{testSnapshot()})
	m = mi.(tuiModel)

	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	m = mi.(tuiModel)
	if !m.jamDialog {
		t.Fatalf("jam dialog not opened")
	}
	if v := m.jamInput.Value(); v != "drone-1-abc,60" {
		t.Fatalf("dialog prefill = %q", v)
	}
	mi, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = mi.(tuiModel)
	if m.jamDialog || cmd == nil {
		t.Fatalf("enter should close the dialog and return a command")
	}
	res := cmd()
	if gotID != "drone-1-abc" || gotPower != 60 {
		t.Fatalf("jammer called with %s/%v", gotID, gotPower)
	}
	mi, _ = m.Update(res)
	m = mi.(tuiModel)
	if !strings.Contains(m.logs[len(m.logs)-1], "drone=drone-1-abc power=60") {
		t.Fatalf("jam result not logged: %q", m.logs[len(m.logs)-1])
	}
}

func TestJamCommandWithoutJammer(t *testing.T) {
	res := jamCmd(nil, "d1", 50)().(jamResultMsg)
	if res.err == nil {
		t.Fatalf("expected error without jammer")
	}
	if _, _, err := parseJamInput(",40"); err == nil {
		t.Fatalf("expected error for missing id")
	}
	if _, _, err := parseJamInput("d1,loud"); err == nil {
		t.Fatalf("expected error for bad power")
	}
	id, power, err := parseJamInput(" d1 ")
	if err != nil || id != "d1" || power != fallbackJamPower {
		t.Fatalf("unexpected parse %s/%v/%v", id, power, err)
	}
}
