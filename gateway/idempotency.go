package gateway

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// IdempotencyHeader carries the client-chosen key that makes a gateway
// submission replay-safe: a retried request with the same key receives the
// cached first response instead of enqueueing a second transaction.
const IdempotencyHeader = "Idempotency-Key"

const idempotencySchema = `
CREATE TABLE IF NOT EXISTS idempotency (
	key        TEXT PRIMARY KEY,
	status     INTEGER NOT NULL,
	body       BLOB NOT NULL,
	created_at INTEGER NOT NULL
);`

// IdempotencyStore persists first responses keyed by the client's
// idempotency key. SQLite keeps replays durable across gateway restarts.
type IdempotencyStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// CachedResponse is a replayable stored response.
type CachedResponse struct {
	Status int
	Body   []byte
}

// OpenIdempotencyStore opens (and migrates) the store at path. Entries older
// than ttl are ignored and eventually purged.
func OpenIdempotencyStore(path string, ttl time.Duration) (*IdempotencyStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("gateway: idempotency store path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("gateway: open idempotency store: %w", err)
	}
	if _, err := db.Exec(idempotencySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("gateway: migrate idempotency store: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *IdempotencyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Lookup returns the cached response for a key if one exists and is fresh.
func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (*CachedResponse, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("gateway: idempotency store unavailable")
	}
	row := s.db.QueryRowContext(ctx, `SELECT status, body, created_at FROM idempotency WHERE key = ?`, key)
	var (
		status    int
		body      []byte
		createdAt int64
	)
	if err := row.Scan(&status, &body, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if s.now().Unix()-createdAt > int64(s.ttl.Seconds()) {
		return nil, false, nil
	}
	return &CachedResponse{Status: status, Body: body}, true, nil
}

// Save records the first response for a key. A concurrent duplicate insert
// keeps the earlier entry.
func (s *IdempotencyStore) Save(ctx context.Context, key string, status int, body []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gateway: idempotency store unavailable")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO idempotency (key, status, body, created_at) VALUES (?, ?, ?, ?)`,
		key, status, body, s.now().Unix())
	return err
}

// Purge removes expired entries; the router runs it opportunistically.
func (s *IdempotencyStore) Purge(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	cutoff := s.now().Add(-s.ttl).Unix()
	_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency WHERE created_at < ?`, cutoff)
	return err
}

// responseRecorder captures a handler's output so it can be cached.
type responseRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware replays cached responses for repeated idempotency keys and
// caches first responses. Requests without the header pass straight through.
func (s *IdempotencyStore) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if key == "" || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		if cached, ok, err := s.Lookup(r.Context(), key); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotent-Replay", "true")
			w.WriteHeader(cached.Status)
			_, _ = w.Write(cached.Body)
			return
		}
		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		// Only successful responses are worth replaying; errors may be
		// transient and the client should retry them for real.
		if recorder.status < 500 {
			_ = s.Save(r.Context(), key, recorder.status, recorder.buf.Bytes())
		}
	})
}
