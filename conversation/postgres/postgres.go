// Package postgres implements the conversation store on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	guardowl "github.com/guardowl/guardowl"
)

// Store persists conversations as single rows with a JSONB message log.
// Appends run as one upsert statement so concurrent pairs on the same
// conversation interleave but are never lost; row-level atomicity is the
// ordering guarantee.
type Store struct {
	pool      *pgxpool.Pool
	tableName string
}

// Option configures the store.
type Option func(*Store)

// WithTableName sets a custom table name.
func WithTableName(name string) Option {
	return func(s *Store) {
		s.tableName = name
	}
}

// New creates a PostgreSQL conversation store.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:      pool,
		tableName: "conversations",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Find returns the stored messages, or (nil, nil) for unknown ids.
func (s *Store) Find(ctx context.Context, conversationID string) ([]guardowl.Message, error) {
	query := fmt.Sprintf(`
		SELECT messages
		FROM %s
		WHERE conversation_id = $1
	`, s.tableName)

	var messagesJSON []byte
	err := s.pool.QueryRow(ctx, query, conversationID).Scan(&messagesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	var messages []guardowl.Message
	if err := json.Unmarshal(messagesJSON, &messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	return messages, nil
}

// AppendPair appends a (user, agent) pair in one upsert. The JSONB
// concatenation happens inside the statement, so two racing appends
// both land; their relative order is whatever the row updates decide.
func (s *Store) AppendPair(ctx context.Context, conversationID string, userMsg, agentMsg guardowl.Message) (bool, error) {
	pairJSON, err := json.Marshal([]guardowl.Message{userMsg, agentMsg})
	if err != nil {
		return false, fmt.Errorf("marshaling message pair: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (conversation_id, messages, created_at, updated_at)
		VALUES ($1, $2::jsonb, now(), now())
		ON CONFLICT (conversation_id) DO UPDATE SET
			messages = %s.messages || EXCLUDED.messages,
			updated_at = now()
		RETURNING (xmax = 0)
	`, s.tableName, s.tableName)

	var created bool
	if err := s.pool.QueryRow(ctx, query, conversationID, pairJSON).Scan(&created); err != nil {
		return false, fmt.Errorf("appending message pair: %w", err)
	}
	return created, nil
}

// Delete removes a conversation, reporting how many rows were removed.
func (s *Store) Delete(ctx context.Context, conversationID string) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE conversation_id = $1`, s.tableName)

	tag, err := s.pool.Exec(ctx, query, conversationID)
	if err != nil {
		return 0, fmt.Errorf("deleting conversation: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Migration returns the SQL to create the conversations table.
func Migration(tableName string) string {
	if tableName == "" {
		tableName = "conversations"
	}
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			conversation_id TEXT PRIMARY KEY,
			messages JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_%s_updated_at ON %s (updated_at DESC);
	`, tableName, tableName, tableName)
}
