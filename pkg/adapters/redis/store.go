package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultSessionPrefix namespaces every key written by the session store.
const DefaultSessionPrefix = "tutorgraph:session:"

// noExpiry is the index score of sessions stored without a TTL (2100-01-01).
const noExpiry = 4102444800

// Store implements ports.StateStore using Redis.
// Sessions live under <prefix><id>; a sorted set <prefix>index scores each ID by its expiry.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// StoreOption configures the session store.
type StoreOption func(*Store)

// WithSessionPrefix sets the key prefix for sessions.
func WithSessionPrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithSessionTTL sets the expiration for sessions. Zero keeps them forever.
func WithSessionTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// NewStore creates a session store connected to addr.
func NewStore(addr string, opts ...StoreOption) *Store {
	return NewStoreFromClient(backend.NewClient(&backend.Options{Addr: addr}), opts...)
}

// NewStoreFromClient creates a session store from an existing client.
func NewStoreFromClient(client *backend.Client, opts ...StoreOption) *Store {
	s := &Store{
		client: client,
		prefix: DefaultSessionPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.StateStore = (*Store)(nil)

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save writes the state and indexes the session in one pipeline.
func (s *Store) Save(ctx context.Context, sessionID string, state domain.State) error {
	if sessionID == "" {
		return errors.New("sessionID cannot be empty")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	score := float64(noExpiry)
	if s.ttl > 0 {
		score = float64(time.Now().Add(s.ttl).Unix())
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(sessionID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: sessionID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return nil
}

// Load reads the session.
func (s *Store) Load(ctx context.Context, sessionID string) (domain.State, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return domain.State{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var state domain.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.State{}, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}
	return state, nil
}

// Delete removes the session and its index entry.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// List prunes expired index entries and returns the rest.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
