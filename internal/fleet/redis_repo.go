package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// RedisNodeRepo is a NodeRepo backed by Redis, sharing node presence
// across platform instances the way a single ConnectionRegistry cannot
// when the platform runs as more than one process. Grounded on
// fabric/redis_store.go's spoke-index shape and
// gateway/ratelimit.RedisRepository's connect-and-ping-on-construct idiom.
type RedisNodeRepo struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisNodeRepo(addr, password string, db int, keyPrefix string) (*RedisNodeRepo, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("fleet: connecting to redis: %w", err)
	}

	if keyPrefix == "" {
		keyPrefix = "wopr:nodes:"
	}
	return &RedisNodeRepo{client: client, keyPrefix: keyPrefix}, nil
}

func (r *RedisNodeRepo) Close() error {
	return r.client.Close()
}

func (r *RedisNodeRepo) nodeKey(nodeID string) string {
	return r.keyPrefix + nodeID
}

func (r *RedisNodeRepo) Get(ctx context.Context, nodeID string) (domain.Node, bool, error) {
	data, err := r.client.Get(ctx, r.nodeKey(nodeID)).Bytes()
	if err == redis.Nil {
		return domain.Node{}, false, nil
	}
	if err != nil {
		return domain.Node{}, false, fmt.Errorf("fleet: redis get node: %w", err)
	}
	var node domain.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return domain.Node{}, false, fmt.Errorf("fleet: unmarshaling node: %w", err)
	}
	return node, true, nil
}

func (r *RedisNodeRepo) Upsert(ctx context.Context, node domain.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("fleet: marshaling node: %w", err)
	}
	if err := r.client.Set(ctx, r.nodeKey(node.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("fleet: redis set node: %w", err)
	}
	return r.client.SAdd(ctx, r.keyPrefix+"index", node.ID).Err()
}

func (r *RedisNodeRepo) List(ctx context.Context) ([]domain.Node, error) {
	ids, err := r.client.SMembers(ctx, r.keyPrefix+"index").Result()
	if err != nil {
		return nil, fmt.Errorf("fleet: listing node index: %w", err)
	}

	out := make([]domain.Node, 0, len(ids))
	for _, id := range ids {
		node, ok, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, node)
		}
	}
	return out, nil
}
