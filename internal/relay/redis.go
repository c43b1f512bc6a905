package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/AmanBang/meshcall/internal/config"
)

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

// RedisStore persists rooms and undelivered signals in Redis, keyed as
// room:<id>, code:<code> and signals:<roomID>:<to>. TTLs replace the
// in-memory sweep. Signals are msgpack-encoded.
type RedisStore struct {
	client    *redis.Client
	roomTTL   time.Duration
	signalTTL time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig, roomTTL, signalTTL time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStore{client: client, roomTTL: roomTTL, signalTTL: signalTTL}, nil
}

func roomKey(id string) string   { return "room:" + id }
func codeKey(code string) string { return "code:" + code }

func signalsKey(roomID, to string) string { return "signals:" + roomID + ":" + to }

func (s *RedisStore) CreateRoom(ctx context.Context, room Room) error {
	data, err := msgpack.Marshal(room)
	if err != nil {
		return fmt.Errorf("encoding room: %w", err)
	}

	ok, err := s.client.SetNX(ctx, roomKey(room.ID), data, s.roomTTL).Result()
	if err != nil {
		return fmt.Errorf("storing room: %w", err)
	}
	if !ok {
		return ErrRoomExists
	}
	if err := s.client.Set(ctx, codeKey(room.Code), room.ID, s.roomTTL).Err(); err != nil {
		return fmt.Errorf("storing room code: %w", err)
	}
	return nil
}

func (s *RedisStore) GetRoom(ctx context.Context, idOrCode string) (Room, error) {
	id := idOrCode
	if len(idOrCode) == roomCodeLength {
		mapped, err := s.client.Get(ctx, codeKey(idOrCode)).Result()
		switch {
		case err == nil:
			id = mapped
		case errors.Is(err, redis.Nil):
		default:
			return Room{}, fmt.Errorf("resolving room code: %w", err)
		}
	}

	data, err := s.client.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("loading room: %w", err)
	}

	var room Room
	if err := msgpack.Unmarshal(data, &room); err != nil {
		return Room{}, fmt.Errorf("decoding room: %w", err)
	}
	return room, nil
}

func (s *RedisStore) StoreSignal(ctx context.Context, roomID, to string, sig StoredSignal) error {
	data, err := msgpack.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encoding signal: %w", err)
	}

	key := signalsKey(roomID, to)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.signalTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing signal: %w", err)
	}
	return nil
}

func (s *RedisStore) PendingSignals(ctx context.Context, roomID, to string) ([]StoredSignal, error) {
	items, err := s.client.LRange(ctx, signalsKey(roomID, to), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading signals: %w", err)
	}

	sigs := make([]StoredSignal, 0, len(items))
	for _, item := range items {
		var sig StoredSignal
		if err := msgpack.Unmarshal([]byte(item), &sig); err != nil {
			// A single corrupt entry must not block the rest.
			continue
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func (s *RedisStore) ClearSignals(ctx context.Context, roomID, to, from string) error {
	key := signalsKey(roomID, to)
	items, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("loading signals: %w", err)
	}

	kept := make([]any, 0, len(items))
	for _, item := range items {
		var sig StoredSignal
		if err := msgpack.Unmarshal([]byte(item), &sig); err != nil {
			continue
		}
		if sig.From != from {
			kept = append(kept, item)
		}
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(kept) > 0 {
		pipe.RPush(ctx, key, kept...)
		pipe.Expire(ctx, key, s.signalTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rewriting signals: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
