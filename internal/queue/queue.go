// Package queue persists messages that could not be delivered while the
// connection was down. Items are stored FIFO per kind and removed when
// popped; a pop that later fails to replay must re-push explicitly.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternmail/tern/internal/smtp"
)

// Kind partitions the queue into independent FIFO lanes.
type Kind string

const (
	// KindDraft holds messages to be uploaded to the drafts folder.
	KindDraft Kind = "draft"
	// KindOutbox holds messages to be resubmitted over SMTP.
	KindOutbox Kind = "outbox"
	// KindCompose holds periodic backups of in-progress compositions.
	KindCompose Kind = "compose"
)

// Item is one stored entry.
type Item struct {
	ID        int64
	Kind      Kind
	ClientID  string
	Payload   []byte
	CreatedAt time.Time
}

// Push appends an item to the given lane.
func (db *DB) Push(kind Kind, clientID string, payload []byte) error {
	_, err := db.Exec(`
		INSERT INTO queue_items (kind, client_id, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		string(kind), clientID, payload, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("queue push %s: %w", kind, err)
	}
	return nil
}

// Pop removes and returns all items of the given lane in insertion order.
func (db *DB) Pop(kind Kind) ([]Item, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("queue pop %s: %w", kind, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.Query(`
		SELECT id, client_id, payload, created_at
		FROM queue_items WHERE kind = ? ORDER BY id ASC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("queue pop %s: %w", kind, err)
	}
	var items []Item
	for rows.Next() {
		it := Item{Kind: kind}
		var createdAt int64
		if err := rows.Scan(&it.ID, &it.ClientID, &it.Payload, &createdAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("queue pop %s: %w", kind, err)
		}
		it.CreatedAt = time.UnixMilli(createdAt)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("queue pop %s: %w", kind, err)
	}
	_ = rows.Close()

	if _, err := tx.Exec(`DELETE FROM queue_items WHERE kind = ?`, string(kind)); err != nil {
		return nil, fmt.Errorf("queue pop %s: %w", kind, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("queue pop %s: %w", kind, err)
	}
	return items, nil
}

// Len reports how many items are stored in the given lane.
func (db *DB) Len(kind Kind) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM queue_items WHERE kind = ?`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue len %s: %w", kind, err)
	}
	return n, nil
}

// PushMessage stores an outgoing message in the given lane.
func (db *DB) PushMessage(kind Kind, o smtp.Outgoing) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("queue marshal: %w", err)
	}
	return db.Push(kind, o.SessionID, payload)
}

// PopMessages removes and decodes all outgoing messages in the given lane.
func (db *DB) PopMessages(kind Kind) ([]smtp.Outgoing, error) {
	items, err := db.Pop(kind)
	if err != nil {
		return nil, err
	}
	out := make([]smtp.Outgoing, 0, len(items))
	for _, it := range items {
		var o smtp.Outgoing
		if err := json.Unmarshal(it.Payload, &o); err != nil {
			return nil, fmt.Errorf("queue decode item %d: %w", it.ID, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// DeleteComposeBackup removes the stored backup for a compose session, used
// when the session ends in a successful send or an explicit discard.
func (db *DB) DeleteComposeBackup(sessionID string) error {
	_, err := db.Exec(`DELETE FROM queue_items WHERE kind = ? AND client_id = ?`,
		string(KindCompose), sessionID)
	if err != nil {
		return fmt.Errorf("queue delete backup: %w", err)
	}
	return nil
}

// ReplaceComposeBackup overwrites any stored backup for the same compose
// session, keeping at most one backup per session.
func (db *DB) ReplaceComposeBackup(o smtp.Outgoing) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("queue marshal: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("queue replace backup: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`DELETE FROM queue_items WHERE kind = ? AND client_id = ?`,
		string(KindCompose), o.SessionID)
	if err != nil {
		return fmt.Errorf("queue replace backup: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO queue_items (kind, client_id, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		string(KindCompose), o.SessionID, payload, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("queue replace backup: %w", err)
	}
	return tx.Commit()
}
