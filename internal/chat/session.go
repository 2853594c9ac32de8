package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/minjae-lab/collabchat/internal/proto"
)

// Channel is one live bidirectional stream bound to a single room.
type Channel interface {
	// Recv blocks until the next inbound record or a read error.
	Recv(ctx context.Context) (proto.MessageRecord, error)
	// Send transmits an outbound message.
	Send(ctx context.Context, p proto.SendPayload) error
	// Close shuts the stream down. Safe to call more than once.
	Close() error
}

// Dialer opens a channel for a room.
type Dialer interface {
	Dial(ctx context.Context, room RoomRef) (Channel, error)
}

// HistoryFetcher loads a room's message history.
type HistoryFetcher interface {
	History(ctx context.Context, room RoomRef) ([]proto.MessageRecord, error)
}

// HistoryCache persists the last known history per room so a room still opens
// with content when the history fetch fails. Implementations live outside
// this package; nil disables caching.
type HistoryCache interface {
	SaveHistory(ctx context.Context, room RoomRef, msgs []Message) error
	Append(ctx context.Context, room RoomRef, msg Message) error
	LoadHistory(ctx context.Context, room RoomRef, selfID int64) ([]Message, error)
}

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionDeps are the collaborators a session consumes.
type SessionDeps struct {
	Dialer  Dialer
	History HistoryFetcher
	Cache   HistoryCache // optional
	Logger  *zerolog.Logger
	// OnUpdate is invoked after every visible change to the message list or
	// the session state. Optional.
	OnUpdate func()
}

// Session owns the live channel of exactly one room for its whole life.
// Switching rooms means closing this session and building a new one; a broken
// channel never silently resurrects.
//
// Inbound records that arrive while the history fetch is still outstanding
// are queued and replayed after history lands, so a late history snapshot can
// never overwrite a live event that logically followed it.
type Session struct {
	room RoomRef
	self Identity
	deps SessionDeps
	log  *zerolog.Logger

	mu          sync.Mutex
	state       State
	ch          Channel
	ctx         context.Context
	cancel      context.CancelFunc
	store       *Store
	historyDone bool
	backlog     []proto.MessageRecord
	lastErr     *Error
}

// NewSession builds an idle session for the given room.
func NewSession(room RoomRef, self Identity, deps SessionDeps) *Session {
	logger := deps.Logger
	if logger == nil {
		disabled := zerolog.Nop()
		logger = &disabled
	}
	return &Session{
		room:  room,
		self:  self,
		deps:  deps,
		log:   logger,
		state: StateIdle,
		store: NewStore(logger),
	}
}

// Start opens the channel and loads history. It returns immediately; the
// connection work happens off the caller's goroutine.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	go s.connect(runCtx)
}

func (s *Session) connect(ctx context.Context) {
	ch, err := s.deps.Dialer.Dial(ctx, s.room)
	if err != nil {
		s.log.Warn().Err(err).Stringer("room", s.room).Msg("channel dial failed")
		s.closeWith(chatError(ErrCodeChannelError, "channel dial failed"))
		return
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Closed while dialing.
		s.mu.Unlock()
		_ = ch.Close()
		return
	}
	s.ch = ch
	s.state = StateOpen
	s.mu.Unlock()
	s.notify()

	go s.readLoop(ctx, ch)
	s.loadHistory(ctx)
}

func (s *Session) loadHistory(ctx context.Context) {
	recs, err := s.deps.History.History(ctx, s.room)
	if ctx.Err() != nil {
		// Superseded by a room switch; whatever arrived belongs to a room
		// that is no longer active.
		return
	}

	var msgs []Message
	if err != nil {
		s.log.Warn().Err(err).Stringer("room", s.room).Msg("history load failed")
		msgs = s.cachedHistory(ctx)
		s.setErr(chatError(ErrCodeHistoryLoadFailed, "history load failed"))
	} else {
		msgs = FromRecords(recs, s.room, s.self.UserID)
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.store.LoadHistory(msgs)
	s.historyDone = true
	backlog := s.backlog
	s.backlog = nil
	for _, rec := range backlog {
		s.applyLocked(rec)
	}
	s.mu.Unlock()
	s.notify()

	if err == nil && s.deps.Cache != nil {
		if cacheErr := s.deps.Cache.SaveHistory(ctx, s.room, msgs); cacheErr != nil {
			s.log.Debug().Err(cacheErr).Stringer("room", s.room).Msg("history cache write failed")
		}
	}
}

func (s *Session) cachedHistory(ctx context.Context) []Message {
	if s.deps.Cache == nil {
		return nil
	}
	msgs, err := s.deps.Cache.LoadHistory(ctx, s.room, s.self.UserID)
	if err != nil {
		s.log.Debug().Err(err).Stringer("room", s.room).Msg("history cache read failed")
		return nil
	}
	if len(msgs) > 0 {
		s.log.Info().Stringer("room", s.room).Int("count", len(msgs)).Msg("serving cached history")
	}
	return msgs
}

func (s *Session) readLoop(ctx context.Context, ch Channel) {
	for {
		rec, err := ch.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn().Err(err).Stringer("room", s.room).Msg("channel read failed")
				s.closeWith(chatError(ErrCodeChannelError, "channel read failed"))
			}
			return
		}
		s.apply(rec)
	}
}

// apply folds one inbound record into the store, or queues it while history
// is still outstanding. Records for a closed session are discarded.
func (s *Session) apply(rec proto.MessageRecord) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	if !s.historyDone {
		s.backlog = append(s.backlog, rec)
		s.mu.Unlock()
		return
	}
	confirmed := s.applyLocked(rec)
	ctx := s.ctx
	s.mu.Unlock()
	s.notify()

	if confirmed != nil && s.deps.Cache != nil {
		if err := s.deps.Cache.Append(ctx, s.room, *confirmed); err != nil {
			s.log.Debug().Err(err).Stringer("room", s.room).Msg("history cache append failed")
		}
	}
}

// applyLocked reconciles a record under s.mu and returns the confirmed
// message when one was produced.
func (s *Session) applyLocked(rec proto.MessageRecord) *Message {
	msg := FromRecord(rec, s.room, s.self.UserID)
	if err := s.store.Reconcile(msg); err != nil {
		return nil
	}
	if msg.Confirmed() {
		return &msg
	}
	return nil
}

// Send transmits a message. The optimistic copy is inserted into the store
// before the network write, so the sender sees it instantly regardless of
// latency.
func (s *Session) Send(body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return chatError(ErrCodeMalformedMessage, "empty message body")
	}

	s.mu.Lock()
	if s.state != StateOpen {
		state := s.state
		s.mu.Unlock()
		return chatError(ErrCodeNotConnected, "cannot send in state "+state.String())
	}

	msg := Message{
		LocalID:    "local-" + uuid.NewString(),
		Room:       s.room,
		SenderID:   s.self.UserID,
		SenderName: s.self.Name,
		Body:       body,
		Instant:    time.Now(),
		Mine:       true,
		Pending:    true,
	}
	_ = s.store.Reconcile(msg)
	ch := s.ch
	ctx := s.ctx
	s.mu.Unlock()
	s.notify()

	payload := proto.SendPayload{
		Body:   body,
		UserID: s.self.UserID,
		TempID: msg.LocalID,
	}
	if err := ch.Send(ctx, payload); err != nil {
		s.log.Warn().Err(err).Stringer("room", s.room).Msg("channel write failed")
		s.closeWith(chatError(ErrCodeChannelError, "channel write failed"))
		return chatError(ErrCodeChannelError, "channel write failed")
	}
	return nil
}

// Close tears the session down synchronously: after it returns, no event from
// this session's channel can reach the store. Idempotent. No update callback
// fires; the caller initiated the change.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	if s.cancel != nil {
		s.cancel()
	}
	ch := s.ch
	s.ch = nil
	s.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
}

func (s *Session) closeWith(errv *Error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.lastErr = errv
	if s.cancel != nil {
		s.cancel()
	}
	ch := s.ch
	s.ch = nil
	s.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	s.notify()
}

func (s *Session) setErr(errv *Error) {
	s.mu.Lock()
	s.lastErr = errv
	s.mu.Unlock()
}

// Room returns the room this session is bound to.
func (s *Session) Room() RoomRef {
	return s.room
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the last non-fatal error the session recorded, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		return nil
	}
	return s.lastErr
}

// Messages returns a snapshot of the ordered message list.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Messages()
}

// Timeline returns a snapshot of the ordered list with date-divider flags.
func (s *Session) Timeline() []TimelineEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Timeline()
}

func (s *Session) notify() {
	if s.deps.OnUpdate != nil {
		s.deps.OnUpdate()
	}
}
