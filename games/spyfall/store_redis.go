/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "spyfall:room:"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// TTL is refreshed on every write, so idle rooms expire on their own
	// even if no reaper is running.
	TTL time.Duration
}

// RedisStore keeps each room as a JSON string under spyfall:room:<code>.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(opts RedisOptions) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		ttl: opts.TTL,
	}
}

func redisKey(code string) string {
	return redisKeyPrefix + code
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis: %v", ErrConnectionFailure, err)
	}

	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, code string) (*Room, error) {
	data, err := s.client.Get(ctx, redisKey(code)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	case err != nil:
		return nil, fmt.Errorf("%w: redis get %s: %v", ErrConnectionFailure, code, err)
	}

	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decoding room %s: %w", code, err)
	}

	return &room, nil
}

func (s *RedisStore) Set(ctx context.Context, room *Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encoding room %s: %w", room.Code, err)
	}

	if err := s.client.Set(ctx, redisKey(room.Code), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set %s: %v", ErrConnectionFailure, room.Code, err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, redisKey(code)).Err(); err != nil {
		return fmt.Errorf("%w: redis del %s: %v", ErrConnectionFailure, code, err)
	}

	return nil
}

func (s *RedisStore) Exists(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis exists %s: %v", ErrConnectionFailure, code, err)
	}

	return n > 0, nil
}

func (s *RedisStore) Codes(ctx context.Context) ([]string, error) {
	var codes []string

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		codes = append(codes, strings.TrimPrefix(iter.Val(), redisKeyPrefix))
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: redis scan: %v", ErrConnectionFailure, err)
	}

	sort.Strings(codes)

	return codes, nil
}
