package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"counterdrone-sim/internal/broadcast"
)

// ReplayLog replays a recorded stream from r to obs. A speed >0 scales the
// recorded gaps between snapshots (2 plays twice as fast); speed <= 0 plays
// without delay. Replay stops early when ctx is cancelled.
func ReplayLog(ctx context.Context, r io.Reader, obs broadcast.Observer, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var msg broadcast.Message
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("decode message %d: %w", n+1, err)
		}
		if msg.Type == broadcast.TypeDrones {
			if !prev.IsZero() && speed > 0 {
				diff := msg.Timestamp.Sub(prev)
				if speed != 1 {
					diff = time.Duration(float64(diff) / speed)
				}
				if diff > 0 {
					select {
					case <-ctx.Done():
						return n, ctx.Err()
					case <-time.After(diff):
					}
				}
			}
			prev = msg.Timestamp
		}
		if err := obs.Send(ctx, msg); err != nil {
			return n, err
		}
		n++
	}
}

// ReplayLogFile opens a recording and replays it.
func ReplayLogFile(ctx context.Context, path string, obs broadcast.Observer, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, obs, speed)
}
