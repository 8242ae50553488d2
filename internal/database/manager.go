package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	dbconfig "globalchat/pkg/database"
	"globalchat/pkg/types"
)

var marshalJSON = json.Marshal

// Manager is the SQLite implementation of interfaces.Store
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	log          *slog.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the configured SQLite database and starts the writer.
// The schema must already be migrated.
func NewManager(config *dbconfig.Config, log *slog.Logger) (*Manager, error) {
	db, err := dbconfig.OpenSQLite(config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		config:       config,
		log:          log,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && retryable(err) && m.config.WriteRetryDelay > 0 {
				m.log.Warn("Database write failed, retrying", "error", err, "delay", m.config.WriteRetryDelay)
				time.Sleep(m.config.WriteRetryDelay)
				err = op.operation(m.db)
				if err != nil {
					m.log.Error("Database write failed after retry", "error", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.log.Debug("Database write loop shutting down")
			return
		}
	}
}

// retryable excludes outcomes that another attempt cannot change.
func retryable(err error) bool {
	return !errors.Is(err, types.ErrMessageNotFound) &&
		!errors.Is(err, types.ErrForbidden) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrShuttingDown
	}
}

// SaveMessage inserts a message and assigns its ID and CreatedAt
func (m *Manager) SaveMessage(ctx context.Context, message *types.Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	translations, err := translationsJSON(message)
	if err != nil {
		return fmt.Errorf("failed to marshal translations: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO messages (content, original_language, sender_id, recipient_id, created_at, translations)
			VALUES (?, ?, ?, ?, ?, ?)`,
			message.Content,
			message.OriginalLanguage,
			message.SenderID,
			message.RecipientID,
			message.CreatedAt,
			string(translations),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message id: %w", err)
		}
		message.ID = id
		message.EnsureCache()
		return nil
	})
}

// GetMessage loads one message by ID
func (m *Manager) GetMessage(ctx context.Context, id int64) (*types.Message, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	row := m.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return msg, nil
}

// ListMessages returns a page of messages visible to viewerID
func (m *Manager) ListMessages(ctx context.Context, viewerID string, skip, limit int) ([]*types.Message, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.recipient_id IS NULL OR m.sender_id = ? OR m.recipient_id = ?
		ORDER BY m.id DESC
		LIMIT ? OFFSET ?`, viewerID, viewerID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// AddTranslation merges one language into the stored cache
// TECHNICAL DISCOVERY: json_insert never replaces an existing key, so two
// writers racing on the same language keep the first value
func (m *Manager) AddTranslation(ctx context.Context, id int64, language, text string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE messages
			SET translations = json_insert(translations, '$."' || ? || '"', ?)
			WHERE id = ? AND original_language <> ?`,
			language, text, id, language)
		if err != nil {
			return fmt.Errorf("failed to merge translation: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		var exists int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check message: %w", err)
		}
		if exists == 0 {
			return types.ErrMessageNotFound
		}
		return nil
	})
}

// DeleteMessage removes a message owned by requesterID
func (m *Manager) DeleteMessage(ctx context.Context, id int64, requesterID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var senderID string
		err = tx.QueryRowContext(ctx, `SELECT sender_id FROM messages WHERE id = ?`, id).Scan(&senderID)
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrMessageNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load message owner: %w", err)
		}
		if senderID != requesterID {
			return types.ErrForbidden
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete message: %w", err)
		}
		return tx.Commit()
	})
}

// GetUser loads a user profile
func (m *Manager) GetUser(ctx context.Context, id string) (*types.Identity, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, username, preferred_language, auto_translate
		FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// UpsertUser creates or updates a user profile
func (m *Manager) UpsertUser(ctx context.Context, user *types.Identity) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO users (id, username, preferred_language, auto_translate)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				username = excluded.username,
				preferred_language = excluded.preferred_language,
				auto_translate = excluded.auto_translate`,
			user.ID, user.Username, user.PreferredLanguage, user.AutoTranslate)
		if err != nil {
			return fmt.Errorf("failed to upsert user: %w", err)
		}
		return nil
	})
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for schema validation
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
