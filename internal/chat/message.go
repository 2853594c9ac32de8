package chat

import (
	"strconv"
	"time"

	"github.com/minjae-lab/collabchat/internal/proto"
	"github.com/minjae-lab/collabchat/internal/timeparse"
)

// RoomKind distinguishes project channels from direct-message rooms.
type RoomKind string

const (
	RoomKindProject RoomKind = "project"
	RoomKindDirect  RoomKind = "direct"
)

// RoomRef identifies one chat room. The zero value means no room.
type RoomRef struct {
	Kind RoomKind
	ID   int64
}

// IsZero reports whether the reference points at no room.
func (r RoomRef) IsZero() bool {
	return r.Kind == "" && r.ID == 0
}

// Valid reports whether the reference names a dialable room: a known kind and
// a positive id.
func (r RoomRef) Valid() bool {
	return (r.Kind == RoomKindProject || r.Kind == RoomKindDirect) && r.ID > 0
}

func (r RoomRef) String() string {
	if r.IsZero() {
		return "none"
	}
	return string(r.Kind) + "/" + strconv.FormatInt(r.ID, 10)
}

// Identity is the session user, resolved once and immutable afterwards.
type Identity struct {
	UserID int64
	Name   string
}

// Message is the domain model for one chat message.
//
// ID is the server-assigned identifier and stays zero until the server
// confirms the message. LocalID is minted at send time and only meaningful
// while Pending. Mine is derived from SenderID, never taken from the wire.
type Message struct {
	ID         int64
	LocalID    string
	Room       RoomRef
	SenderID   int64
	SenderName string
	Body       string
	Instant    time.Time
	Mine       bool
	Pending    bool
}

// Confirmed reports whether the server has assigned an id.
func (m Message) Confirmed() bool {
	return m.ID != 0
}

// FromRecord converts a raw wire record into a Message bound to the given
// room. The instant is always recomputed from the raw timestamps.
func FromRecord(rec proto.MessageRecord, room RoomRef, selfID int64) Message {
	return Message{
		ID:         rec.MessageID,
		LocalID:    rec.TempID,
		Room:       room,
		SenderID:   rec.UserID,
		SenderName: rec.Username,
		Body:       rec.Body,
		Instant:    timeparse.Normalize(timeparse.Raw{ISO: rec.TimestampISO, Display: rec.Timestamp}),
		Mine:       rec.UserID == selfID,
	}
}

// FromRecords converts a batch of wire records, as returned by a history fetch.
func FromRecords(recs []proto.MessageRecord, room RoomRef, selfID int64) []Message {
	msgs := make([]Message, 0, len(recs))
	for _, rec := range recs {
		msgs = append(msgs, FromRecord(rec, room, selfID))
	}
	return msgs
}
