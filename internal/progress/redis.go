package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/MimeLyc/sales-playbook/pkg/log"
)

const DefaultChannelPrefix = "playbook:progress:"

// RedisBridge publishes events on a redis channel per job and replays every
// event received on those channels into the local bus, so subscribers
// connected to any instance see progress of jobs driven by another.
type RedisBridge struct {
	client *redis.Client
	local  *Bus
	prefix string
}

var _ Publisher = (*RedisBridge)(nil)

func NewRedisBridge(client *redis.Client, local *Bus, prefix string) *RedisBridge {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisBridge{client: client, local: local, prefix: prefix}
}

// Publish falls back to local delivery when redis is unreachable.
func (r *RedisBridge) Publish(jobID string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error("Failed to encode progress event for job %s: %v", jobID, err)
		return
	}
	if err := r.client.Publish(context.Background(), r.prefix+jobID, payload).Err(); err != nil {
		log.Warn("Redis publish for job %s failed, delivering locally: %v", jobID, err)
		r.local.Publish(jobID, ev)
	}
}

// Run relays redis messages into the local bus until ctx is done.
func (r *RedisBridge) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s*: %w", r.prefix, err)
	}
	log.Info("Relaying progress events from redis channels %s*", r.prefix)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			jobID, ev, err := r.decode(msg.Channel, msg.Payload)
			if err != nil {
				log.Warn("Dropping malformed progress message on %s: %v", msg.Channel, err)
				continue
			}
			r.local.Publish(jobID, ev)
		}
	}
}

func (r *RedisBridge) decode(channel, payload string) (string, Event, error) {
	if !strings.HasPrefix(channel, r.prefix) {
		return "", Event{}, fmt.Errorf("unexpected channel %q", channel)
	}
	jobID := strings.TrimPrefix(channel, r.prefix)
	if jobID == "" {
		return "", Event{}, fmt.Errorf("channel %q has no job id", channel)
	}
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return "", Event{}, err
	}
	return jobID, ev, nil
}
