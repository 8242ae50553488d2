package database

import (
	"fmt"
	"time"

	"globalchat/pkg/types"
)

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

// messageColumns is shared by both backends; the join hydrates the sender.
const messageColumns = `
	m.id, m.content, m.original_language, m.sender_id, m.recipient_id,
	m.created_at, m.translations, u.username, u.preferred_language`

func scanMessage(row rowScanner) (*types.Message, error) {
	var (
		msg          types.Message
		recipient    *string
		createdAt    time.Time
		translations []byte
		username     *string
		senderLang   *string
	)
	err := row.Scan(
		&msg.ID,
		&msg.Content,
		&msg.OriginalLanguage,
		&msg.SenderID,
		&recipient,
		&createdAt,
		&translations,
		&username,
		&senderLang,
	)
	if err != nil {
		return nil, err
	}

	msg.RecipientID = recipient
	msg.CreatedAt = createdAt.UTC()
	if username != nil {
		msg.Sender = &types.SenderSummary{Username: *username}
		if senderLang != nil {
			msg.Sender.PreferredLanguage = *senderLang
		}
	}

	// TECHNICAL DISCOVERY: The source language is dropped on load so a
	// hand-edited row can never leak it back into the cache
	msg.Translations, err = types.ParseTranslations(translations, msg.OriginalLanguage)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal translations for message %d: %w", msg.ID, err)
	}
	return &msg, nil
}

func scanUser(row rowScanner) (*types.Identity, error) {
	var user types.Identity
	if err := row.Scan(&user.ID, &user.Username, &user.PreferredLanguage, &user.AutoTranslate); err != nil {
		return nil, err
	}
	return &user, nil
}

// translationsJSON encodes a message's cache for insertion, minus the source language.
func translationsJSON(msg *types.Message) ([]byte, error) {
	entries := map[string]string{}
	if msg.Translations != nil {
		entries = msg.Translations.Snapshot()
	}
	delete(entries, msg.OriginalLanguage)
	return marshalJSON(entries)
}
