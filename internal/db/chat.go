package db

import (
	"context"
	"log"
)

// SaveChatMessage persists one chat line. Best-effort: a failed insert is
// logged and the message still reaches the room.
func (m *Manager) SaveChatMessage(ctx context.Context, empNo, content string) {
	if _, err := m.Exec(ctx,
		`INSERT INTO chat_message (sender_emp_no, content) VALUES ($1, $2)`,
		empNo, content,
	); err != nil {
		log.Printf("[CHAT] ❌ message save failed: %v", err)
	}
}
