package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/annel0/voxelgen/internal/logging"
	"github.com/annel0/voxelgen/internal/vec"
	"github.com/annel0/voxelgen/internal/world"
	"github.com/go-redis/redis/v8"
)

// RedisDeltaRepo хранит правки в Redis: hash на чанк (поле "x:y:z" -> JSON вокселя)
// и множество координат чанков с правками.
type RedisDeltaRepo struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisDeltaRepo подключается к Redis и проверяет соединение.
func NewRedisDeltaRepo(ctx context.Context, addr, keyPrefix string) (*RedisDeltaRepo, error) {
	if keyPrefix == "" {
		keyPrefix = "voxel:delta:"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("Redis delta repo connected at %s", addr)
	return &RedisDeltaRepo{client: client, keyPrefix: keyPrefix}, nil
}

func coordField(v vec.Vec3) string {
	return fmt.Sprintf("%d:%d:%d", v.X, v.Y, v.Z)
}

func parseCoordField(s string) (vec.Vec3, error) {
	var v vec.Vec3
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &v.X, &v.Y, &v.Z); err != nil {
		return vec.Vec3{}, fmt.Errorf("некорректная координата %q: %w", s, err)
	}
	return v, nil
}

func (r *RedisDeltaRepo) chunkKey(chunk vec.Vec3) string {
	return r.keyPrefix + coordField(chunk)
}

func (r *RedisDeltaRepo) indexKey() string {
	return r.keyPrefix + "chunks"
}

func (r *RedisDeltaRepo) Save(ctx context.Context, d VoxelDelta) error {
	if err := validateDelta(d); err != nil {
		return err
	}
	data, err := json.Marshal(d.Voxel)
	if err != nil {
		return fmt.Errorf("failed to marshal voxel: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.chunkKey(d.Chunk), coordField(d.Local), data)
		pipe.SAdd(ctx, r.indexKey(), coordField(d.Chunk))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save delta %s/%s: %w", d.Chunk, d.Local, err)
	}
	return nil
}

func (r *RedisDeltaRepo) LoadChunk(ctx context.Context, chunk vec.Vec3) ([]VoxelDelta, error) {
	fields, err := r.client.HGetAll(ctx, r.chunkKey(chunk)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load deltas of %s: %w", chunk, err)
	}

	out := make([]VoxelDelta, 0, len(fields))
	for field, raw := range fields {
		local, err := parseCoordField(field)
		if err != nil {
			logging.Warn("Пропуск правки чанка %s: %v", chunk, err)
			continue
		}
		var v world.Voxel
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			logging.Warn("Пропуск правки %s/%s: %v", chunk, local, err)
			continue
		}
		out = append(out, VoxelDelta{Chunk: chunk, Local: local, Voxel: v})
	}
	sortDeltas(out)
	return out, nil
}

func (r *RedisDeltaRepo) LoadAll(ctx context.Context) ([]VoxelDelta, error) {
	members, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list delta chunks: %w", err)
	}

	var out []VoxelDelta
	for _, m := range members {
		chunk, err := parseCoordField(m)
		if err != nil {
			logging.Warn("Пропуск записи индекса правок: %v", err)
			continue
		}
		ds, err := r.LoadChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, ds...)
	}
	sortDeltas(out)
	return out, nil
}

func (r *RedisDeltaRepo) DeleteChunk(ctx context.Context, chunk vec.Vec3) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.chunkKey(chunk))
		pipe.SRem(ctx, r.indexKey(), coordField(chunk))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete deltas of %s: %w", chunk, err)
	}
	return nil
}

func (r *RedisDeltaRepo) Close() error {
	return r.client.Close()
}
