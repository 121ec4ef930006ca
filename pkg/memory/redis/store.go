// Package redis provides a Redis-backed [memory.ExchangeStore].
//
// Each session is a capped list of JSON-encoded exchanges, newest at the
// head, so the archive keeps a bounded window per conversation. A set of
// session IDs supports searches across sessions. Keyword search runs
// client-side with [memory.Matches].
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/maxassist/pkg/memory"
)

const defaultPrefix = "maxassist"

var (
	_ memory.ExchangeStore = (*Store)(nil)
	_ memory.Pinger        = (*Store)(nil)
)

// Store is the Redis-backed exchange archive. All methods are safe for
// concurrent use.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	retention int64
}

// Option is a functional option for Store.
type Option func(*Store)

// WithPrefix sets the key prefix. Default "maxassist".
func WithPrefix(p string) Option {
	return func(s *Store) { s.prefix = p }
}

// WithRetention caps the number of exchanges kept per session. Zero or
// negative keeps everything. Default 100.
func WithRetention(n int) Option {
	return func(s *Store) { s.retention = int64(n) }
}

// New connects to the Redis server at url (redis://[:password@]host:port/db)
// and verifies the connection.
func New(ctx context.Context, url string, opts ...Option) (*Store, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis store: parse url: %w", err)
	}
	client := redis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis store: ping: %w", err)
	}
	return NewWithClient(client, opts...), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix, retention: 100}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) sessionKey(id string) string { return s.prefix + ":exchanges:" + id }
func (s *Store) indexKey() string            { return s.prefix + ":sessions" }

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping implements [memory.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// record is the stored JSON shape of an exchange.
type record struct {
	Input     string    `json:"input"`
	Response  string    `json:"response"`
	Intent    string    `json:"intent,omitempty"`
	Topic     string    `json:"topic,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// SaveExchange implements [memory.ExchangeStore].
func (s *Store) SaveExchange(ctx context.Context, ex memory.Exchange) error {
	if ex.Timestamp.IsZero() {
		ex.Timestamp = time.Now()
	}
	b, err := json.Marshal(record{
		Input:     ex.Input,
		Response:  ex.Response,
		Intent:    ex.Intent,
		Topic:     ex.Topic,
		Timestamp: ex.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("redis store: encode exchange: %w", err)
	}

	key := s.sessionKey(ex.SessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, b)
		if s.retention > 0 {
			pipe.LTrim(ctx, key, 0, s.retention-1)
		}
		pipe.SAdd(ctx, s.indexKey(), ex.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: save exchange: %w", err)
	}
	return nil
}

// RecentExchanges implements [memory.ExchangeStore].
func (s *Store) RecentExchanges(ctx context.Context, sessionID string, limit int) ([]memory.Exchange, error) {
	if limit <= 0 {
		return []memory.Exchange{}, nil
	}
	raw, err := s.client.LRange(ctx, s.sessionKey(sessionID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: recent exchanges: %w", err)
	}
	return decode(sessionID, raw)
}

// SearchExchanges implements [memory.ExchangeStore].
func (s *Store) SearchExchanges(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.Exchange, error) {
	sessions := []string{opts.SessionID}
	if opts.SessionID == "" {
		ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
		if err != nil {
			return nil, fmt.Errorf("redis store: list sessions: %w", err)
		}
		sessions = ids
	}

	out := []memory.Exchange{}
	for _, id := range sessions {
		raw, err := s.client.LRange(ctx, s.sessionKey(id), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("redis store: search %s: %w", id, err)
		}
		exs, err := decode(id, raw)
		if err != nil {
			return nil, err
		}
		for _, ex := range exs {
			if memory.Matches(ex, query, opts) {
				out = append(out, ex)
			}
		}
	}
	memory.SortNewestFirst(out)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// DeleteSession implements [memory.ExchangeStore].
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(sessionID))
		pipe.SRem(ctx, s.indexKey(), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: delete session: %w", err)
	}
	return nil
}

func decode(sessionID string, raw []string) ([]memory.Exchange, error) {
	out := make([]memory.Exchange, 0, len(raw))
	for _, r := range raw {
		var rec record
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, fmt.Errorf("redis store: decode exchange: %w", err)
		}
		out = append(out, memory.Exchange{
			SessionID: sessionID,
			Input:     rec.Input,
			Response:  rec.Response,
			Intent:    rec.Intent,
			Topic:     rec.Topic,
			Timestamp: rec.Timestamp,
		})
	}
	return out, nil
}
