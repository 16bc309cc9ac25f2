package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/contractguard/contractguard/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore 基于 Redis 的幂等存储。
// Reserve 用 SET NX PX 抢占，TTL 由 Redis 托管，不需要清理任务。
type RedisIdempotencyStore struct {
	client *RedisClient
	prefix string
}

func NewRedisIdempotencyStore(client *RedisClient) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client: client,
		prefix: "idem:",
	}
}

func (s *RedisIdempotencyStore) key(tenantID, key string) string {
	return s.prefix + tenantID + ":" + key
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, entry *model.IdempotencyEntry) (*model.IdempotencyEntry, bool, error) {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	payload, err := encodeIdemEntry(entry)
	if err != nil {
		return nil, false, err
	}

	ok, err := s.client.Client.SetNX(ctx, s.key(entry.TenantID, entry.Key), payload, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}

	existing, err := s.Get(ctx, entry.TenantID, entry.Key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.New("idempotency entry expired during reserve")
	}
	return existing, false, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, tenantID, key, auditID string, response []byte, expiresAt time.Time) error {
	entry := &model.IdempotencyEntry{
		TenantID:  tenantID,
		Key:       key,
		State:     model.IdemCompleted,
		AuditID:   auditID,
		Response:  response,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
	// 保留预占时的 fingerprint
	if existing, err := s.Get(ctx, tenantID, key); err == nil && existing != nil {
		entry.Fingerprint = existing.Fingerprint
		entry.CreatedAt = existing.CreatedAt
	}
	payload, err := encodeIdemEntry(entry)
	if err != nil {
		return err
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Hour
	}
	return s.client.Client.Set(ctx, s.key(tenantID, key), payload, ttl).Err()
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, tenantID, key string) (*model.IdempotencyEntry, error) {
	raw, err := s.client.Client.Get(ctx, s.key(tenantID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeIdemEntry(raw, tenantID, key)
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, tenantID, key string) error {
	return s.client.Client.Del(ctx, s.key(tenantID, key)).Err()
}

type idemWire struct {
	State       string `json:"state"`
	Fingerprint string `json:"fingerprint"`
	AuditID     string `json:"audit_id,omitempty"`
	Response    string `json:"response,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	ExpiresAt   int64  `json:"expires_at"`
}

func encodeIdemEntry(entry *model.IdempotencyEntry) (string, error) {
	wire := idemWire{
		State:       string(entry.State),
		Fingerprint: entry.Fingerprint,
		AuditID:     entry.AuditID,
		Response:    base64.StdEncoding.EncodeToString(entry.Response),
		CreatedAt:   entry.CreatedAt.Unix(),
		ExpiresAt:   entry.ExpiresAt.Unix(),
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeIdemEntry(raw, tenantID, key string) (*model.IdempotencyEntry, error) {
	var wire idemWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	response, _ := base64.StdEncoding.DecodeString(wire.Response)
	return &model.IdempotencyEntry{
		TenantID:    tenantID,
		Key:         key,
		State:       model.IdempotencyState(wire.State),
		Fingerprint: wire.Fingerprint,
		AuditID:     wire.AuditID,
		Response:    response,
		CreatedAt:   time.Unix(wire.CreatedAt, 0).UTC(),
		ExpiresAt:   time.Unix(wire.ExpiresAt, 0).UTC(),
	}, nil
}
