package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"counterdrone-sim/internal/broadcast"
)

// DefaultSubjectPrefix roots the subjects NATSObserver publishes on:
// <prefix>.drones for snapshots and <prefix>.alerts.<alert_type> for alerts.
const DefaultSubjectPrefix = "counterdrone"

type natsConn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSObserver republishes the stream on NATS subjects.
type NATSObserver struct {
	conn   natsConn
	prefix string
}

// NewNATSObserver connects to url.
func NewNATSObserver(url, prefix string) (*NATSObserver, error) {
	nc, err := nats.Connect(url, nats.Name("counterdrone-sim"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSObserver(nc, prefix), nil
}

func newNATSObserver(conn natsConn, prefix string) *NATSObserver {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSObserver{conn: conn, prefix: prefix}
}

// Name implements broadcast.Named.
func (n *NATSObserver) Name() string { return "nats" }

// Subject returns the subject msg is published on.
func (n *NATSObserver) Subject(msg broadcast.Message) string {
	if msg.Type == broadcast.TypeAlert && msg.Alert != nil {
		return fmt.Sprintf("%s.alerts.%s", n.prefix, msg.Alert.AlertType)
	}
	return n.prefix + "." + string(msg.Type)
}

// Send publishes msg and waits for the server to acknowledge the flush.
func (n *NATSObserver) Send(ctx context.Context, msg broadcast.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := n.conn.Publish(n.Subject(msg), data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return n.conn.FlushWithContext(ctx)
}

// Close drains pending messages and closes the connection.
func (n *NATSObserver) Close() error {
	return n.conn.Drain()
}
