package redisstore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/otpvault/pkg/logger"
)

// Preferences is a vault.PreferenceStore on Redis. Every write publishes
// the changed key on a channel, which Watch subscribes to.
type Preferences struct {
	client  redis.UniversalClient
	prefix  string
	channel string
	log     *slog.Logger
}

// NewPreferences returns a PreferenceStore keyed under cfg.KeyPrefix that
// announces changes on cfg.Channel.
func NewPreferences(client redis.UniversalClient, cfg Config, log *slog.Logger) *Preferences {
	if log == nil {
		log = slog.Default()
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "otpvault:preferences"
	}
	return &Preferences{
		client:  client,
		prefix:  cfg.KeyPrefix,
		channel: channel,
		log:     log.With(logger.Component("redisstore")),
	}
}

// Get returns the stored value, or nil when the key is missing.
func (p *Preferences) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := p.client.Get(ctx, p.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return value, err
}

// Set writes the value and publishes the key in one MULTI block.
func (p *Preferences) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.prefix+key, value, 0)
		pipe.Publish(ctx, p.channel, key)
		return nil
	})
	return err
}

// Delete removes the key and publishes it.
func (p *Preferences) Delete(ctx context.Context, key string) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, p.prefix+key)
		pipe.Publish(ctx, p.channel, key)
		return nil
	})
	return err
}

// Watch streams the value of key after every change. A slow reader only
// sees the latest value. The subscription is confirmed before Watch
// returns, so no later write is missed.
func (p *Preferences) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	sub := p.client.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	ch := make(chan []byte, 1)
	go func() {
		defer close(ch)
		defer func() { _ = sub.Close() }()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload != key {
					continue
				}
				value, err := p.Get(ctx, key)
				if err != nil {
					p.log.WarnContext(ctx, "failed to read changed preference", logger.Error(err))
					continue
				}
				offerLatest(ch, value)
			}
		}
	}()

	return ch, nil
}

// offerLatest sends v, replacing an unread value if the buffer is full.
func offerLatest(ch chan []byte, v []byte) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
