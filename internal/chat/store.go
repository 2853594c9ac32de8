package chat

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/minjae-lab/collabchat/internal/timeparse"
)

// Store is the authoritative ordered message list for one room. The list is
// always sorted by Instant ascending with stable ties (arrival order).
//
// Store is not safe for concurrent use; the owning Session serializes access.
type Store struct {
	msgs []Message
	log  *zerolog.Logger
}

// NewStore builds an empty store.
func NewStore(logger *zerolog.Logger) *Store {
	if logger == nil {
		disabled := zerolog.Nop()
		logger = &disabled
	}
	return &Store{log: logger}
}

// LoadHistory replaces the confirmed content wholesale. Pending messages
// already in the list survive the replace: a send racing the history fetch
// must stay visible, only a room switch discards it.
func (s *Store) LoadHistory(msgs []Message) {
	var pending []Message
	for _, m := range s.msgs {
		if m.Pending {
			pending = append(pending, m)
		}
	}

	s.msgs = make([]Message, 0, len(msgs)+len(pending))
	for _, m := range msgs {
		if m.Body == "" {
			s.log.Warn().Int64("message_id", m.ID).Msg("dropping malformed history message")
			continue
		}
		m.Pending = false
		s.msgs = append(s.msgs, m)
	}
	sort.SliceStable(s.msgs, func(i, j int) bool {
		return s.msgs[i].Instant.Before(s.msgs[j].Instant)
	})

	for _, m := range pending {
		s.insert(m)
	}
}

// Reconcile folds one incoming message into the list.
//
// A record whose LocalID matches a pending message is the confirmation of an
// optimistic send: the server fields are merged in place and the position is
// kept, so the message the user already sees does not jump even if the server
// timestamp drifts from the optimistic one. A record whose ID is already
// present is a duplicate delivery and is dropped. Anything else is inserted
// in timestamp order.
func (s *Store) Reconcile(incoming Message) error {
	if incoming.Body == "" {
		s.log.Warn().
			Int64("message_id", incoming.ID).
			Str("local_id", incoming.LocalID).
			Msg("rejecting malformed message")
		return chatError(ErrCodeMalformedMessage, "message without body")
	}

	if incoming.LocalID != "" {
		if i := s.findPending(incoming.LocalID); i >= 0 {
			merged := incoming
			merged.LocalID = s.msgs[i].LocalID
			merged.Pending = false
			s.msgs[i] = merged
			return nil
		}
	}

	if incoming.Confirmed() && s.contains(incoming.ID) {
		return nil
	}

	s.insert(incoming)
	return nil
}

// Messages returns a copy of the ordered list.
func (s *Store) Messages() []Message {
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of messages in the list.
func (s *Store) Len() int {
	return len(s.msgs)
}

// TimelineEntry is one rendered row: the message plus whether a date divider
// belongs above it.
type TimelineEntry struct {
	Message
	NewDay bool
}

// Timeline returns the ordered list annotated with date-divider flags. The
// flag is computed from Instant calendar dates only; raw timestamp strings in
// different source formats are not comparable.
func (s *Store) Timeline() []TimelineEntry {
	entries := make([]TimelineEntry, len(s.msgs))
	for i, m := range s.msgs {
		entries[i] = TimelineEntry{
			Message: m,
			NewDay:  i == 0 || !timeparse.SameDay(s.msgs[i-1].Instant, m.Instant),
		}
	}
	return entries
}

func (s *Store) findPending(localID string) int {
	for i, m := range s.msgs {
		if m.Pending && m.LocalID == localID {
			return i
		}
	}
	return -1
}

func (s *Store) contains(id int64) bool {
	for _, m := range s.msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

// insert places the message after every entry with an instant at or before
// its own, keeping ties stable by arrival order.
func (s *Store) insert(msg Message) {
	i := sort.Search(len(s.msgs), func(i int) bool {
		return s.msgs[i].Instant.After(msg.Instant)
	})
	s.msgs = append(s.msgs, Message{})
	copy(s.msgs[i+1:], s.msgs[i:])
	s.msgs[i] = msg
}
