package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// principalStore resolves bearer API keys to principals. Keys are stored
// as sha256 hex digests; the raw key never touches the database.
type principalStore interface {
	GetByAPIKeyHash(ctx context.Context, tenantID string, keyHash string) (Principal, bool, error)
}

func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	token := strings.TrimSpace(raw[len(prefix):])
	return token, token != ""
}

func hashAPIKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type principalPGStore struct {
	pool *pgxpool.Pool
}

func newPrincipalPGStore(pool *pgxpool.Pool) principalStore {
	return &principalPGStore{pool: pool}
}

func (s *principalPGStore) GetByAPIKeyHash(ctx context.Context, tenantID string, keyHash string) (Principal, bool, error) {
	var p Principal
	err := s.pool.QueryRow(ctx, `
SELECT p.id::text, p.tenant_id::text, p.role_slug, p.status, p.email
FROM iam.principals p
JOIN iam.api_keys k ON k.principal_id = p.id
WHERE p.tenant_id = $1
  AND k.key_sha256 = $2
  AND k.revoked_at IS NULL
LIMIT 1
`, tenantID, keyHash).Scan(&p.ID, &p.TenantID, &p.RoleSlug, &p.Status, &p.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, false, nil
		}
		return Principal{}, false, err
	}
	return p, true, nil
}

type principalMemoryStore struct {
	mu    sync.Mutex
	byKey map[string]Principal // tenantID + "\x00" + keyHash
}

func newPrincipalMemoryStore() *principalMemoryStore {
	return &principalMemoryStore{byKey: map[string]Principal{}}
}

// AddKey registers a raw API key for a principal. Test seeding helper.
func (s *principalMemoryStore) AddKey(rawKey string, p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[p.TenantID+"\x00"+hashAPIKey(rawKey)] = p
}

func (s *principalMemoryStore) GetByAPIKeyHash(_ context.Context, tenantID string, keyHash string) (Principal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byKey[tenantID+"\x00"+keyHash]
	return p, ok, nil
}
