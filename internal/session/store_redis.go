package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenNotFound = errors.New("session token not found")

// Token records where a seat-holder belongs so a reconnect can restore
// the seat after a transport drop or a server restart.
type Token struct {
	RoomID string `json:"room_id"`
	Seat   string `json:"seat"`
}

// TokenStore keeps reconnection tokens in redis under sess:<token>.
type TokenStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewTokenStore(rdb *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{rdb: rdb, ttl: ttl}
}

func (s *TokenStore) key(token string) string { return "sess:" + strings.TrimSpace(token) }

func (s *TokenStore) Save(ctx context.Context, token string, t Token) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(token), raw, s.ttl).Err()
}

func (s *TokenStore) Load(ctx context.Context, token string) (Token, error) {
	raw, err := s.rdb.Get(ctx, s.key(token)).Bytes()
	if err == redis.Nil {
		return Token{}, ErrTokenNotFound
	}
	if err != nil {
		return Token{}, err
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return Token{}, err
	}
	return t, nil
}

func (s *TokenStore) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, s.key(token)).Err()
}

// Refresh extends the token lifetime after a successful reconnect.
func (s *TokenStore) Refresh(ctx context.Context, token string) error {
	return s.rdb.Expire(ctx, s.key(token), s.ttl).Err()
}

// SweepOrphans deletes tokens whose room no longer exists, so the idle
// room sweep does not leave sessions pointing at nothing. Returns the
// number of tokens removed.
func (s *TokenStore) SweepOrphans(ctx context.Context, alive func(roomID string) bool) (int, error) {
	removed := 0
	iter := s.rdb.Scan(ctx, 0, "sess:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var t Token
		if err := json.Unmarshal(raw, &t); err != nil || !alive(t.RoomID) {
			if err := s.rdb.Del(ctx, key).Err(); err == nil {
				removed++
			}
		}
	}
	return removed, iter.Err()
}
