package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultRedisPrefix = "bridge-relay"

// advanceScript writes the cursor only when the new height is greater.
var advanceScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'height')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'height', ARGV[1], 'updated_at', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[3])
return 1
`)

// RedisStore keeps cursors as hashes and the ledger as one hash of JSON records.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// OpenRedis connects to url (redis://host:port/db) and verifies the connection.
func OpenRedis(url string) (*RedisStore, error) {
	if url == "" {
		return nil, errors.New("redis url is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	s := NewRedisStore(redis.NewClient(opt), defaultRedisPrefix)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return s, nil
}

// NewRedisStore wraps an existing client. Keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("store not initialized")
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) cursorKey(chain, kind string) string {
	return s.prefix + ":cursor:" + chain + ":" + kind
}

func (s *RedisStore) cursorIndex() string { return s.prefix + ":cursors" }
func (s *RedisStore) ledgerKey() string   { return s.prefix + ":ledger" }

func (s *RedisStore) GetCursor(ctx context.Context, chain, kind string) (uint64, bool, error) {
	v, err := s.client.HGet(ctx, s.cursorKey(chain, kind), "height").Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get cursor: %w", err)
	}
	h, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("get cursor: bad height %q", v)
	}
	return h, true, nil
}

func (s *RedisStore) AdvanceCursor(ctx context.Context, chain, kind string, height uint64) error {
	if chain == "" || kind == "" {
		return errors.New("chain and kind required")
	}
	err := advanceScript.Run(ctx, s.client,
		[]string{s.cursorKey(chain, kind), s.cursorIndex()},
		strconv.FormatUint(height, 10), time.Now().UTC().Format(time.RFC3339Nano), chain+":"+kind,
	).Err()
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

func (s *RedisStore) ResetCursor(ctx context.Context, chain, kind string, height uint64) error {
	if chain == "" || kind == "" {
		return errors.New("chain and kind required")
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.cursorKey(chain, kind), "height", strconv.FormatUint(height, 10), "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
		p.SAdd(ctx, s.cursorIndex(), chain+":"+kind)
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}
	return nil
}

func (s *RedisStore) ListCursors(ctx context.Context) ([]Cursor, error) {
	members, err := s.client.SMembers(ctx, s.cursorIndex()).Result()
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	sort.Strings(members)
	out := make([]Cursor, 0, len(members))
	for _, m := range members {
		chain, kind, ok := strings.Cut(m, ":")
		if !ok {
			continue
		}
		vals, err := s.client.HGetAll(ctx, s.cursorKey(chain, kind)).Result()
		if err != nil {
			return nil, fmt.Errorf("list cursors: %w", err)
		}
		h, err := strconv.ParseUint(vals["height"], 10, 64)
		if err != nil {
			continue
		}
		c := Cursor{Chain: chain, Kind: kind, Height: h}
		c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, vals["updated_at"])
		out = append(out, c)
	}
	return out, nil
}

func (s *RedisStore) Claim(ctx context.Context, rec Record) (bool, error) {
	if err := rec.Key.validate(); err != nil {
		return false, err
	}
	now := time.Now().UTC()
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	rec.CreatedAt, rec.UpdatedAt = now, now
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", rec.Key, err)
	}
	ok, err := s.client.HSetNX(ctx, s.ledgerKey(), rec.Key.String(), data).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", rec.Key, err)
	}
	return ok, nil
}

func (s *RedisStore) Complete(ctx context.Context, key Key, status Status, relayTx, detail string) error {
	if err := key.validate(); err != nil {
		return err
	}
	rec, ok, err := s.Lookup(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("complete %s: not claimed", key)
	}
	rec.Status, rec.RelayTx, rec.Detail = status, relayTx, detail
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	if err := s.client.HSet(ctx, s.ledgerKey(), key.String(), data).Err(); err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, key Key) (Record, bool, error) {
	data, err := s.client.HGet(ctx, s.ledgerKey(), key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("lookup %s: %w", key, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("lookup %s: %w", key, err)
	}
	return rec, true, nil
}

func (s *RedisStore) Forget(ctx context.Context, key Key) (bool, error) {
	n, err := s.client.HDel(ctx, s.ledgerKey(), key.String()).Result()
	if err != nil {
		return false, fmt.Errorf("forget %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) ListProcessed(ctx context.Context, limit int) ([]Record, error) {
	all, err := s.client.HGetAll(ctx, s.ledgerKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list processed: %w", err)
	}
	out := make([]Record, 0, len(all))
	for field, v := range all {
		var rec Record
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("list processed: decode %s: %w", field, err)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Key.String() > out[j].Key.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
