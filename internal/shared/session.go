package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session identifies an authenticated tenant session.
type Session struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenant_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// SessionManager stores bearer-token sessions in Redis.
type SessionManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, ttl time.Duration) *SessionManager {
	return &SessionManager{client: client, ttl: ttl}
}

func (sm *SessionManager) key(token string) string {
	return "session:" + token
}

// Create issues a new session token for the tenant.
func (sm *SessionManager) Create(ctx context.Context, tenantID string) (*Session, error) {
	if tenantID == "" {
		return nil, errors.New("shared: tenant id required")
	}
	sess := &Session{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		IssuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := sm.client.Set(ctx, sm.key(sess.ID), payload, sm.ttl).Err(); err != nil {
		return nil, fmt.Errorf("shared: store session: %w", err)
	}
	return sess, nil
}

// Get resolves a session token. Returns ErrNotFound for unknown or expired tokens.
func (sm *SessionManager) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	payload, err := sm.client.Get(ctx, sm.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("shared: load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("shared: decode session: %w", err)
	}
	return &sess, nil
}

// Destroy removes a session token. Destroying an unknown token is a no-op.
func (sm *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return sm.client.Del(ctx, sm.key(token)).Err()
}

// BearerToken extracts the bearer token from an Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
