package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"avito-helper/models"
)

// SaveConversation inserts or replaces the row for conv.ChatID.
// Terminal conversations are not stored; use DeleteConversation for them.
func (db *DB) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.State.Terminal() {
		return db.DeleteConversation(ctx, conv.ChatID)
	}

	var maxPrice sql.NullInt64
	if conv.MaxPrice != nil {
		maxPrice = sql.NullInt64{Int64: int64(*conv.MaxPrice), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO `+Schema+`.conversations (chat_id, state, query, max_price, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chat_id) DO UPDATE SET
			state = EXCLUDED.state,
			query = EXCLUDED.query,
			max_price = EXCLUDED.max_price,
			updated_at = EXCLUDED.updated_at
	`, conv.ChatID, conv.State.String(), conv.Query, maxPrice, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conversation %d: %w", conv.ChatID, err)
	}
	return nil
}

// DeleteConversation removes the row for chatID, if any
func (db *DB) DeleteConversation(ctx context.Context, chatID int64) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM `+Schema+`.conversations WHERE chat_id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %d: %w", chatID, err)
	}
	return nil
}

// LoadConversations returns every stored conversation, oldest first
func (db *DB) LoadConversations(ctx context.Context) ([]*models.Conversation, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT chat_id, state, query, max_price, updated_at
		FROM `+Schema+`.conversations
		ORDER BY updated_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		var (
			conv     models.Conversation
			state    string
			maxPrice sql.NullInt64
		)
		if err := rows.Scan(&conv.ChatID, &state, &conv.Query, &maxPrice, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}

		parsed, ok := models.ParseState(state)
		if !ok {
			slog.Warn("skipping conversation with unknown state", "chat_id", conv.ChatID, "state", state)
			continue
		}
		conv.State = parsed
		if maxPrice.Valid {
			price := int(maxPrice.Int64)
			conv.MaxPrice = &price
		}
		conversations = append(conversations, &conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}
	return conversations, nil
}
