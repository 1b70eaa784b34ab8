package sharelink

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store handles single-use certificate download tokens. A token grants one
// unauthenticated download of a certificate PDF and expires on first use or
// after its TTL, whichever comes first.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a new share link store
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// TokenData represents the data stored in Redis for a share token
type TokenData struct {
	CertificateID int `json:"certificateId"`
}

// GenerateToken generates a random token string
func GenerateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func key(token string) string {
	return fmt.Sprintf("share:token:%s", token)
}

// CreateToken creates a new download token in Redis
func (s *Store) CreateToken(ctx context.Context, certificateID int, ttl time.Duration) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	jsonData, err := json.Marshal(TokenData{CertificateID: certificateID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token data: %w", err)
	}

	if err := s.rdb.Set(ctx, key(token), jsonData, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store token in Redis: %w", err)
	}
	return token, nil
}

// ConsumeToken atomically consumes a token and returns the certificate ID.
// This is the ONLY place where a token should be consumed.
// Uses Lua script to ensure atomicity: check existence, read data, delete key
func (s *Store) ConsumeToken(ctx context.Context, token string) (int, error) {
	script := `
		local key = KEYS[1]
		local data = redis.call('GET', key)
		if not data then
			return nil
		end
		redis.call('DEL', key)
		return data
	`

	result, err := s.rdb.Eval(ctx, script, []string{key(token)}).Result()
	if err == redis.Nil || result == nil {
		return 0, fmt.Errorf("token not found or already consumed")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to execute consume script: %w", err)
	}

	jsonData, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from Redis")
	}

	var data TokenData
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return 0, fmt.Errorf("failed to unmarshal token data: %w", err)
	}
	return data.CertificateID, nil
}
