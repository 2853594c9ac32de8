package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/minjae-lab/collabchat/internal/proto"
)

var errChannelClosed = errors.New("channel closed")

// fakeChannel is an in-memory Channel fed by tests.
type fakeChannel struct {
	inbound chan proto.MessageRecord

	mu     sync.Mutex
	sent   []proto.SendPayload
	closed bool
	done   chan struct{}

	sendErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		inbound: make(chan proto.MessageRecord, 16),
		done:    make(chan struct{}),
	}
}

func (c *fakeChannel) Recv(ctx context.Context) (proto.MessageRecord, error) {
	select {
	case rec := <-c.inbound:
		return rec, nil
	case <-c.done:
		return proto.MessageRecord{}, errChannelClosed
	case <-ctx.Done():
		return proto.MessageRecord{}, ctx.Err()
	}
}

func (c *fakeChannel) Send(_ context.Context, p proto.SendPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, p)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) sentPayloads() []proto.SendPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]proto.SendPayload, len(c.sent))
	copy(out, c.sent)
	return out
}

// push delivers an inbound record as if the server broadcast it.
func (c *fakeChannel) push(rec proto.MessageRecord) {
	c.inbound <- rec
}

// fakeDialer hands out one fakeChannel per dial.
type fakeDialer struct {
	mu      sync.Mutex
	dialed  []RoomRef
	chans   []*fakeChannel
	dialErr error
}

func (d *fakeDialer) Dial(_ context.Context, room RoomRef) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	ch := newFakeChannel()
	d.dialed = append(d.dialed, room)
	d.chans = append(d.chans, ch)
	return ch, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

func (d *fakeDialer) lastChannel() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.chans) == 0 {
		return nil
	}
	return d.chans[len(d.chans)-1]
}

// fakeHistory serves canned history, optionally gated so tests can hold the
// fetch outstanding while events arrive.
type fakeHistory struct {
	mu      sync.Mutex
	recs    map[RoomRef][]proto.MessageRecord
	err     error
	gate    chan struct{} // when non-nil, History blocks until closed
	fetched []RoomRef
}

func (h *fakeHistory) History(ctx context.Context, room RoomRef) ([]proto.MessageRecord, error) {
	h.mu.Lock()
	gate := h.gate
	h.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.fetched = append(h.fetched, room)
	if h.err != nil {
		return nil, h.err
	}
	return h.recs[room], nil
}

func (h *fakeHistory) fetchCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.fetched)
}

// fakeMetadata resolves project names from a map.
type fakeMetadata struct {
	names map[int64]string
	err   error
}

func (m *fakeMetadata) ProjectName(_ context.Context, projectID int64) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	name, ok := m.names[projectID]
	if !ok {
		return "", errors.New("no such project")
	}
	return name, nil
}

// memCache is an in-memory HistoryCache.
type memCache struct {
	mu   sync.Mutex
	data map[RoomRef][]Message
}

func newMemCache() *memCache {
	return &memCache{data: map[RoomRef][]Message{}}
}

func (c *memCache) SaveHistory(_ context.Context, room RoomRef, msgs []Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(msgs))
	copy(out, msgs)
	c.data[room] = out
	return nil
}

func (c *memCache) Append(_ context.Context, room RoomRef, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[room] = append(c.data[room], msg)
	return nil
}

func (c *memCache) LoadHistory(_ context.Context, room RoomRef, selfID int64) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]Message, len(c.data[room]))
	copy(msgs, c.data[room])
	for i := range msgs {
		msgs[i].Mine = msgs[i].SenderID == selfID
	}
	return msgs, nil
}

// waitFor polls until the condition holds or the test deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return s.State() == want })
}
