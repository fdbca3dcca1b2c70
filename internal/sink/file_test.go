package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"counterdrone-sim/internal/broadcast"
	"counterdrone-sim/internal/telemetry"
)

type collectObserver struct{ msgs []broadcast.Message }

func (c *collectObserver) Send(_ context.Context, m broadcast.Message) error {
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *collectObserver) Close() error { return nil }

func TestFileObserver(t *testing.T) {
	dir := t.TempDir()
	stream := filepath.Join(dir, "stream.jsonl")
	alerts := filepath.Join(dir, "alerts.jsonl")
	fw, err := NewFileObserver(stream, alerts)
	if err != nil {
		t.Fatalf("NewFileObserver: %v", err)
	}
	ctx := context.Background()
	if err := fw.Send(ctx, testSnapshot()); err != nil {
		t.Fatalf("send snapshot: %v", err)
	}
	if err := fw.Send(ctx, testAlert()); err != nil {
		t.Fatalf("send alert: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(stream)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 stream lines, got %d", len(lines))
	}
	var first broadcast.Message
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if first.Type != broadcast.TypeDrones || first.Tick != 4 || first.Drones[0].ID != "drone-1-abc" {
		t.Fatalf("unexpected snapshot %+v", first)
	}

	data, err = os.ReadFile(alerts)
	if err != nil {
		t.Fatalf("read alerts: %v", err)
	}
	var a telemetry.Alert
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if a.ID != "a1" || a.AlertType != telemetry.AlertBorderViolation {
		t.Fatalf("unexpected alert %+v", a)
	}
}

func TestReplayLog(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	first := testSnapshot()
	second := testSnapshot()
	second.Tick = 5
	second.Timestamp = first.Timestamp.Add(50 * time.Millisecond)
	for _, m := range []broadcast.Message{first, testAlert(), second} {
		if err := enc.Encode(m); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	c := &collectObserver{}
	start := time.Now()
	n, err := ReplayLog(context.Background(), &buf, c, 1)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 3 || len(c.msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", n)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatalf("replay did not honor recorded timing")
	}
	if c.msgs[1].Type != broadcast.TypeAlert || c.msgs[2].Tick != 5 {
		t.Fatalf("messages out of order: %+v", c.msgs)
	}
}

func TestReplayLogCancelled(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	first := testSnapshot()
	second := testSnapshot()
	second.Timestamp = first.Timestamp.Add(time.Hour)
	enc.Encode(first)
	enc.Encode(second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	n, err := ReplayLog(ctx, &buf, &collectObserver{}, 1)
	if err == nil || n != 1 {
		t.Fatalf("expected cancellation after first message, got n=%d err=%v", n, err)
	}
}

func TestReplayLogBadInput(t *testing.T) {
	_, err := ReplayLog(context.Background(), strings.NewReader(`{"type":"drones"}`+"\n"+`not json`), &collectObserver{}, 0)
	if err == nil {
		t.Fatalf("expected decode error")
	}
}
