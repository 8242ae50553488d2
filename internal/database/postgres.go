package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	dbconfig "globalchat/pkg/database"
	"globalchat/pkg/types"
)

// PGStore is the PostgreSQL implementation of interfaces.Store.
// Unlike SQLite, concurrent writers are left to the server.
type PGStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPGStore connects a pool to config.DSN and verifies it with a ping.
func NewPGStore(ctx context.Context, config *dbconfig.Config, log *slog.Logger) (*PGStore, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolConfig.MaxConns = int32(config.MaxConnections)
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &PGStore{pool: pool, log: log}, nil
}

func (s *PGStore) SaveMessage(ctx context.Context, message *types.Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	translations, err := translationsJSON(message)
	if err != nil {
		return fmt.Errorf("failed to marshal translations: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO messages (content, original_language, sender_id, recipient_id, created_at, translations)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		RETURNING id`,
		message.Content,
		message.OriginalLanguage,
		message.SenderID,
		message.RecipientID,
		message.CreatedAt,
		string(translations),
	).Scan(&message.ID)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	message.EnsureCache()
	return nil
}

func (s *PGStore) GetMessage(ctx context.Context, id int64) (*types.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return msg, nil
}

func (s *PGStore) ListMessages(ctx context.Context, viewerID string, skip, limit int) ([]*types.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.recipient_id IS NULL OR m.sender_id = $1 OR m.recipient_id = $1
		ORDER BY m.id DESC
		LIMIT $2 OFFSET $3`, viewerID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []*types.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// AddTranslation merges one language with jsonb_set, guarded by key absence.
func (s *PGStore) AddTranslation(ctx context.Context, id int64, language, text string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET translations = jsonb_set(translations, ARRAY[$2::text], to_jsonb($3::text))
		WHERE id = $1 AND original_language <> $2 AND NOT (translations ? $2)`,
		id, language, text)
	if err != nil {
		return fmt.Errorf("failed to merge translation: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check message: %w", err)
	}
	if !exists {
		return types.ErrMessageNotFound
	}
	return nil
}

func (s *PGStore) DeleteMessage(ctx context.Context, id int64, requesterID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var senderID string
	err = tx.QueryRow(ctx, `SELECT sender_id FROM messages WHERE id = $1 FOR UPDATE`, id).Scan(&senderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load message owner: %w", err)
	}
	if senderID != requesterID {
		return types.ErrForbidden
	}
	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PGStore) GetUser(ctx context.Context, id string) (*types.Identity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, preferred_language, auto_translate
		FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (s *PGStore) UpsertUser(ctx context.Context, user *types.Identity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, preferred_language, auto_translate)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			preferred_language = EXCLUDED.preferred_language,
			auto_translate = EXCLUDED.auto_translate`,
		user.ID, user.Username, user.PreferredLanguage, user.AutoTranslate)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *PGStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
