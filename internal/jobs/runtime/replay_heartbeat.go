// Package runtime holds background jobs that run alongside a replay.
package runtime

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	ReplayHeartbeatKeyPrefix = "banbench:run:"
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultHeartbeatTTL      = 30 * time.Second
)

// HeartbeatState is what gets published for dashboards watching a replay.
type HeartbeatState struct {
	RunID    string    `json:"run_id"`
	Emitted  int       `json:"emitted"`
	Skipped  int       `json:"skipped"`
	LastTS   time.Time `json:"last_ts,omitzero"`
	Updated  time.Time `json:"updated"`
	Finished bool      `json:"finished"`
}

// Heartbeat periodically publishes replay progress under a TTL key so a
// stalled or killed run disappears from the active set on its own.
type Heartbeat struct {
	client *redis.Client
	runID  string
	state  atomic.Value
}

func NewHeartbeat(client *redis.Client, runID string) *Heartbeat {
	hb := &Heartbeat{client: client, runID: runID}
	hb.state.Store(HeartbeatState{RunID: runID})
	return hb
}

// Update replaces the published progress on the next tick. Safe to call from
// the replay goroutine.
func (hb *Heartbeat) Update(state HeartbeatState) {
	state.RunID = hb.runID
	hb.state.Store(state)
}

// Run publishes until ctx is cancelled, then marks the run finished one last
// time.
func (hb *Heartbeat) Run(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if ttl <= 0 {
		ttl = DefaultHeartbeatTTL
	}

	hb.publish(ctx, ttl, false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hb.publish(context.Background(), ttl, true)
			return
		case <-ticker.C:
			hb.publish(ctx, ttl, false)
		}
	}
}

func (hb *Heartbeat) publish(ctx context.Context, ttl time.Duration, finished bool) {
	state := hb.state.Load().(HeartbeatState)
	state.Updated = time.Now().UTC()
	state.Finished = finished

	payload, err := json.Marshal(state)
	if err != nil {
		log.Error("cannot marshal heartbeat state", "error", err)
		return
	}
	key := ReplayHeartbeatKeyPrefix + hb.runID
	if err := hb.client.SetEx(ctx, key, string(payload), ttl).Err(); err != nil {
		log.Error("failed to update replay heartbeat", "key", key, "error", err)
	}
}

// CountActiveRuns reports how many replays are currently publishing.
func CountActiveRuns(ctx context.Context, client *redis.Client) (int, error) {
	keys, err := client.Keys(ctx, ReplayHeartbeatKeyPrefix+"*").Result()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
