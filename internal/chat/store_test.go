package chat

import (
	"errors"
	"testing"
	"time"
)

var testRoom = RoomRef{Kind: RoomKindProject, ID: 7}

func at(h, m int) time.Time {
	return time.Date(2024, 5, 1, h, m, 0, 0, time.Local)
}

func confirmed(id int64, body string, instant time.Time) Message {
	return Message{ID: id, Room: testRoom, SenderID: 2, SenderName: "yuna", Body: body, Instant: instant}
}

func TestLoadHistorySorts(t *testing.T) {
	s := NewStore(nil)
	s.LoadHistory([]Message{
		confirmed(3, "third", at(11, 0)),
		confirmed(1, "first", at(9, 0)),
		confirmed(2, "second", at(10, 0)),
	})

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []int64{1, 2, 3} {
		if msgs[i].ID != want {
			t.Errorf("position %d: got id %d, want %d", i, msgs[i].ID, want)
		}
	}
}

func TestReconcileInsertsInTimestampOrder(t *testing.T) {
	s := NewStore(nil)
	s.LoadHistory([]Message{
		confirmed(1, "early", at(9, 0)),
		confirmed(3, "late", at(11, 0)),
	})

	if err := s.Reconcile(confirmed(2, "middle", at(10, 0))); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	msgs := s.Messages()
	if msgs[1].ID != 2 {
		t.Fatalf("expected id 2 in the middle, got %+v", msgs)
	}
}

func TestReconcileStableTies(t *testing.T) {
	s := NewStore(nil)
	ts := at(9, 0)

	for id := int64(1); id <= 4; id++ {
		if err := s.Reconcile(confirmed(id, "tie", ts)); err != nil {
			t.Fatalf("reconcile: %v", err)
		}
	}

	msgs := s.Messages()
	for i, want := range []int64{1, 2, 3, 4} {
		if msgs[i].ID != want {
			t.Errorf("position %d: got id %d, want %d (arrival order must break ties)", i, msgs[i].ID, want)
		}
	}
}

func TestReconcileDuplicateIDIsIdempotent(t *testing.T) {
	s := NewStore(nil)
	msg := confirmed(5, "once", at(9, 0))

	for i := 0; i < 3; i++ {
		if err := s.Reconcile(msg); err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
	}

	if s.Len() != 1 {
		t.Fatalf("expected 1 message after duplicate deliveries, got %d", s.Len())
	}
}

func TestReconcileLocalEchoMergesInPlace(t *testing.T) {
	s := NewStore(nil)
	s.LoadHistory([]Message{confirmed(1, "hi", at(9, 0))})

	pending := Message{
		LocalID:  "local-abc",
		Room:     testRoom,
		SenderID: 1,
		Body:     "yo",
		Instant:  at(9, 1),
		Mine:     true,
		Pending:  true,
	}
	if err := s.Reconcile(pending); err != nil {
		t.Fatalf("optimistic insert: %v", err)
	}

	// Server confirmation with drifted timestamp. Position must not jump.
	echo := Message{
		ID:       99,
		LocalID:  "local-abc",
		Room:     testRoom,
		SenderID: 1,
		Body:     "yo",
		Instant:  at(8, 0),
		Mine:     true,
	}
	if err := s.Reconcile(echo); err != nil {
		t.Fatalf("echo: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d: %+v", len(msgs), msgs)
	}
	got := msgs[1]
	if got.ID != 99 || got.Pending || !got.Mine {
		t.Fatalf("expected confirmed own message at position 1, got %+v", got)
	}
}

func TestReconcileEchoThenDuplicateDelivery(t *testing.T) {
	// A self-originated message can arrive twice: once matched by local id,
	// then again as a plain broadcast carrying the same server id.
	s := NewStore(nil)

	pending := Message{LocalID: "local-1", Room: testRoom, SenderID: 1, Body: "yo", Instant: at(9, 0), Mine: true, Pending: true}
	if err := s.Reconcile(pending); err != nil {
		t.Fatal(err)
	}
	echo := Message{ID: 42, LocalID: "local-1", Room: testRoom, SenderID: 1, Body: "yo", Instant: at(9, 0), Mine: true}
	if err := s.Reconcile(echo); err != nil {
		t.Fatal(err)
	}
	dup := Message{ID: 42, Room: testRoom, SenderID: 1, Body: "yo", Instant: at(9, 0), Mine: true}
	if err := s.Reconcile(dup); err != nil {
		t.Fatal(err)
	}

	if s.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", s.Len())
	}
}

func TestReconcileRejectsMissingBody(t *testing.T) {
	s := NewStore(nil)

	err := s.Reconcile(Message{ID: 1, Room: testRoom, Instant: at(9, 0)})
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected malformed message error, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("malformed message must not be inserted")
	}
}

func TestLoadHistoryKeepsPendingMessages(t *testing.T) {
	s := NewStore(nil)

	pending := Message{LocalID: "local-1", Room: testRoom, SenderID: 1, Body: "racing", Instant: at(9, 5), Mine: true, Pending: true}
	if err := s.Reconcile(pending); err != nil {
		t.Fatal(err)
	}

	s.LoadHistory([]Message{confirmed(1, "old", at(9, 0))})

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("pending message lost across history load: %+v", msgs)
	}
	if msgs[0].ID != 1 {
		t.Fatalf("expected history row first, got %+v", msgs[0])
	}
	if msgs[1].LocalID != "local-1" || !msgs[1].Pending {
		t.Fatalf("expected pending message to survive, got %+v", msgs[1])
	}

	// The echo still confirms it in place afterwards.
	echo := Message{ID: 42, LocalID: "local-1", Room: testRoom, SenderID: 1, Body: "racing", Instant: at(9, 6), Mine: true}
	if err := s.Reconcile(echo); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 || s.Messages()[1].ID != 42 {
		t.Fatalf("echo after history load: %+v", s.Messages())
	}
}

func TestLoadHistoryDropsMalformedAndClearsPending(t *testing.T) {
	s := NewStore(nil)
	s.LoadHistory([]Message{
		{ID: 1, Room: testRoom, Instant: at(9, 0)}, // no body
		{ID: 2, Room: testRoom, Body: "ok", Instant: at(9, 1), Pending: true},
	})

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Pending {
		t.Error("history messages are never pending")
	}
}

func TestTimelineDateDividers(t *testing.T) {
	s := NewStore(nil)
	s.LoadHistory([]Message{
		confirmed(1, "a", time.Date(2024, 5, 1, 23, 50, 0, 0, time.Local)),
		confirmed(2, "b", time.Date(2024, 5, 1, 23, 59, 0, 0, time.Local)),
		confirmed(3, "c", time.Date(2024, 5, 2, 0, 5, 0, 0, time.Local)),
	})

	entries := s.Timeline()
	want := []bool{true, false, true}
	for i, e := range entries {
		if e.NewDay != want[i] {
			t.Errorf("entry %d: NewDay = %v, want %v", i, e.NewDay, want[i])
		}
	}
}

func TestScenarioHistorySendEcho(t *testing.T) {
	s := NewStore(nil)
	s.LoadHistory([]Message{confirmed(1, "hi", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))})

	pending := Message{LocalID: "L1", Room: testRoom, SenderID: 1, Body: "yo", Instant: time.Date(2024, 5, 1, 9, 0, 3, 0, time.UTC), Mine: true, Pending: true}
	if err := s.Reconcile(pending); err != nil {
		t.Fatal(err)
	}
	echo := Message{ID: 99, LocalID: "L1", Room: testRoom, SenderID: 1, Body: "yo", Instant: time.Date(2024, 5, 1, 9, 0, 5, 0, time.UTC), Mine: true}
	if err := s.Reconcile(echo); err != nil {
		t.Fatal(err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != 1 || msgs[1].ID != 99 {
		t.Fatalf("unexpected order: %+v", msgs)
	}
	if msgs[1].Pending {
		t.Error("echo must clear pending")
	}
}
