package pgstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/otpvault/pkg/logger"
)

// notifyChannel carries the key of every changed preference.
const notifyChannel = "otpvault_preferences"

// Preferences is a vault.PreferenceStore on PostgreSQL. Watch is backed by
// LISTEN/NOTIFY and holds one pool connection per watcher.
type Preferences struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPreferences returns a PreferenceStore over the preferences table.
// Writes notify Watch subscribers through pg_notify.
func NewPreferences(pool *pgxpool.Pool, log *slog.Logger) *Preferences {
	if log == nil {
		log = slog.Default()
	}
	return &Preferences{pool: pool, log: log.With(logger.Component("pgstore"))}
}

// Get returns the stored value, or nil when the key is missing.
func (p *Preferences) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM preferences WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return value, err
}

// Set upserts the value and notifies watchers in the same transaction.
func (p *Preferences) Set(ctx context.Context, key string, value []byte) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO preferences (key, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			key, value,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, key)
		return err
	})
}

// Delete removes the key. Watchers are notified only if a row was deleted.
func (p *Preferences) Delete(ctx context.Context, key string) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM preferences WHERE key = $1`, key)
		if err != nil || tag.RowsAffected() == 0 {
			return err
		}
		_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, key)
		return err
	})
}

// Watch streams the value of key after every committed change. A slow
// reader only sees the latest value. A dropped listener connection is
// re-established with backoff until ctx is done.
func (p *Preferences) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	conn, err := p.listen(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, 1)
	go func() {
		defer close(ch)

		err := p.forward(ctx, conn, key, ch)
		if err == nil {
			return
		}
		p.log.WarnContext(ctx, "preference listener failed, reconnecting", logger.Error(err))

		b := retry.WithCappedDuration(5*time.Second, retry.NewFibonacci(200*time.Millisecond))
		err = retry.Do(ctx, b, func(ctx context.Context) error {
			conn, err := p.listen(ctx)
			if err != nil {
				return retry.RetryableError(err)
			}
			// changes made while disconnected were never announced
			value, err := p.Get(ctx, key)
			if err != nil {
				p.unlisten(ctx, conn)
				return retry.RetryableError(err)
			}
			offerLatest(ch, value)

			if err := p.forward(ctx, conn, key, ch); err != nil {
				p.log.WarnContext(ctx, "preference listener failed, reconnecting", logger.Error(err))
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			p.log.ErrorContext(ctx, "preference watch stopped", logger.Error(err))
		}
	}()

	return ch, nil
}

func (p *Preferences) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, err
	}
	return conn, nil
}

// unlisten returns conn to the pool without the subscription.
func (p *Preferences) unlisten(ctx context.Context, conn *pgxpool.Conn) {
	_, _ = conn.Exec(context.WithoutCancel(ctx), "UNLISTEN "+notifyChannel)
	conn.Release()
}

// forward sends the value of key after each notification naming it. It
// returns nil once ctx is done and the connection error otherwise.
func (p *Preferences) forward(ctx context.Context, conn *pgxpool.Conn, key string, ch chan []byte) error {
	defer p.unlisten(ctx, conn)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		if n.Payload != key {
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
