package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient opens a redis client and verifies connectivity.
func NewClient(addr, password string, db int) (*redis.Client, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return cli, nil
}

// PresenceStore mirrors the fanout's in-memory presence into redis so other
// processes can read who is online. It is advisory: the hub's tables are
// the live record, this mirror only survives for dashboards and siblings.
type PresenceStore struct {
	cli    *redis.Client
	prefix string
}

type presenceRecord struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func NewPresenceStore(cli *redis.Client, prefix string) *PresenceStore {
	return &PresenceStore{cli: cli, prefix: prefix}
}

func (s *PresenceStore) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *PresenceStore) SetOnline(ctx context.Context, userID string) error {
	return s.set(ctx, userID, "online")
}

func (s *PresenceStore) SetOffline(ctx context.Context, userID string) error {
	return s.set(ctx, userID, "offline")
}

func (s *PresenceStore) set(ctx context.Context, userID, status string) error {
	b, _ := json.Marshal(presenceRecord{Status: status, LastSeen: time.Now().Unix()})
	return s.cli.Set(ctx, s.key(userID), b, 24*time.Hour).Err()
}

func (s *PresenceStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	b, err := s.cli.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var rec presenceRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return false, err
	}
	return rec.Status == "online", nil
}
