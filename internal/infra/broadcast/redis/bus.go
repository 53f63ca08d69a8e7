// Package redis broadcasts committed change events over Redis pub/sub so
// several daemons sharing one database can refresh their cached documents.
package redis

import (
	"alignercore/pkg/domain"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "alignercore:changes"

// Logger is the subset of the service logger the bus reports to.
type Logger interface {
	Warn(msg string, kv ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}

// Config carries the connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Bus publishes and subscribes to one Redis channel.
type Bus struct {
	log     Logger
	rdb     *goredis.Client
	channel string
	origin  string
}

// New connects to Redis and verifies the connection. Events published by
// this bus carry origin so subscribers can skip their own writes.
func New(cfg Config, origin string, log Logger) (*Bus, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	if log == nil {
		log = nopLogger{}
	}
	ch := strings.TrimSpace(cfg.Channel)
	if ch == "" {
		ch = DefaultChannel
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{log: log, rdb: rdb, channel: ch, origin: origin}, nil
}

type envelope struct {
	Origin string             `json:"origin,omitempty"`
	Event  domain.ChangeEvent `json:"event"`
}

// Publish sends event on the channel.
func (b *Bus) Publish(ctx context.Context, event domain.ChangeEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	raw, err := json.Marshal(envelope{Origin: b.origin, Event: event})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Subscribe calls fn for each event published by other origins until ctx
// is done. It returns once Redis has confirmed the subscription.
func (b *Bus) Subscribe(ctx context.Context, fn func(domain.ChangeEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	if fn == nil {
		return fmt.Errorf("callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					b.log.Warn("bad change event payload", "channel", b.channel, "error", err)
					continue
				}
				if env.Origin != "" && env.Origin == b.origin {
					continue
				}
				fn(env.Event)
			}
		}
	}()
	return nil
}

// Close releases the Redis connection pool.
func (b *Bus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
