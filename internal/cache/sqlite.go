// Package cache keeps the last known message history per room in a local
// SQLite file, so a room still opens with content when the backend's history
// endpoint is unreachable.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/minjae-lab/collabchat/internal/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	room_kind   TEXT    NOT NULL,
	room_id     INTEGER NOT NULL,
	message_id  INTEGER NOT NULL,
	sender_id   INTEGER NOT NULL,
	sender_name TEXT    NOT NULL,
	body        TEXT    NOT NULL,
	instant     TEXT    NOT NULL,
	PRIMARY KEY (room_kind, room_id, message_id)
);
`

// Cache implements chat.HistoryCache on SQLite.
type Cache struct {
	db *sql.DB
}

// New opens (or creates) the cache database at dbPath. ":memory:" works for
// tests.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// SaveHistory replaces the cached history of a room with the given confirmed
// messages. Pending messages are skipped; they have no stable identity yet.
func (c *Cache) SaveHistory(ctx context.Context, room chat.RoomRef, msgs []chat.Message) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE room_kind = ? AND room_id = ?`,
		string(room.Kind), room.ID,
	); err != nil {
		return fmt.Errorf("clear room: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO messages
			(room_kind, room_id, message_id, sender_id, sender_name, body, instant)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if !m.Confirmed() || m.Pending {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			string(room.Kind), room.ID, m.ID, m.SenderID, m.SenderName, m.Body,
			m.Instant.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert message %d: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Append adds one confirmed message to a room's cached history.
func (c *Cache) Append(ctx context.Context, room chat.RoomRef, msg chat.Message) error {
	if !msg.Confirmed() || msg.Pending {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages
			(room_kind, room_id, message_id, sender_id, sender_name, body, instant)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		string(room.Kind), room.ID, msg.ID, msg.SenderID, msg.SenderName, msg.Body,
		msg.Instant.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append message %d: %w", msg.ID, err)
	}
	return nil
}

// LoadHistory returns a room's cached messages ordered by instant. Mine is
// recomputed against selfID; it is never persisted.
func (c *Cache) LoadHistory(ctx context.Context, room chat.RoomRef, selfID int64) ([]chat.Message, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT message_id, sender_id, sender_name, body, instant
		FROM messages
		WHERE room_kind = ? AND room_id = ?
		ORDER BY instant ASC, message_id ASC
	`, string(room.Kind), room.ID)
	if err != nil {
		return nil, fmt.Errorf("query room: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		var instant string
		if err := rows.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.Body, &instant); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, instant)
		if err != nil {
			// An unreadable row is worse than a missing one.
			continue
		}
		m.Room = room
		m.Instant = t
		m.Mine = m.SenderID == selfID
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return msgs, nil
}
