package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "WealthPilot/internal/errors"
)

// RedisStoreConfig 描述 Redis 会话存储的连接参数。
type RedisStoreConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore 将会话以 JSON 形式保存在 Redis,按 TTL 过期。
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore 创建 Redis 会话存储。
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "wealthpilot:session:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisStore{client: client, keyPrefix: prefix, ttl: ttl}, nil
}

// Load 读取并反序列化会话。
func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, r.keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取会话失败")
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSessionCorrupted, err, "会话数据无法解析")
	}
	return &sess, nil
}

// Save 序列化会话并刷新 TTL。
func (r *RedisStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话为空")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化会话失败")
	}
	if err := r.client.Set(ctx, r.keyPrefix+sess.ID, raw, r.ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入会话失败")
	}
	return nil
}

// Delete 删除会话。
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.keyPrefix+id).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除会话失败")
	}
	return nil
}

// Close 关闭 Redis 连接。
func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
