package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// MetadataLookup resolves display metadata for project rooms.
type MetadataLookup interface {
	ProjectName(ctx context.Context, projectID int64) (string, error)
}

// Placeholder titles used when metadata is missing. A visible placeholder
// beats failing the whole view.
const (
	placeholderProject = "unknown project"
	placeholderPartner = "direct message"
)

// SelectorDeps are the collaborators a selector passes to its sessions.
type SelectorDeps struct {
	Dialer   Dialer
	History  HistoryFetcher
	Metadata MetadataLookup
	Cache    HistoryCache // optional
	Logger   *zerolog.Logger
	OnUpdate func() // optional, forwarded to sessions
}

// Selector tracks the active room and owns the one live session. Selecting a
// different room always tears the previous session down fully before the new
// one is built, so no event of the old room can leak into the new one.
type Selector struct {
	self Identity
	deps SelectorDeps
	log  *zerolog.Logger

	mu      sync.Mutex
	active  RoomRef
	session *Session
	title   string
}

// NewSelector builds a selector with no active room.
func NewSelector(self Identity, deps SelectorDeps) *Selector {
	logger := deps.Logger
	if logger == nil {
		disabled := zerolog.Nop()
		logger = &disabled
	}
	return &Selector{self: self, deps: deps, log: logger}
}

// Select activates a room. Re-selecting the already active room is a no-op:
// the running session is left untouched. For direct rooms the caller supplies
// the partner display name; for project rooms the name is resolved via the
// metadata lookup with a placeholder fallback.
func (sel *Selector) Select(ctx context.Context, kind RoomKind, id int64, partnerName string) error {
	ref := RoomRef{Kind: kind, ID: id}
	if !ref.Valid() {
		return chatError(ErrCodeMalformedMessage, "invalid room reference")
	}

	sel.mu.Lock()
	defer sel.mu.Unlock()

	if sel.session != nil && sel.active == ref {
		return nil
	}
	sel.activateLocked(ctx, ref, partnerName)
	return nil
}

// Reselect tears down and rebuilds the active room's session. This is the
// caller-driven reconnect path: the core never retries on its own.
func (sel *Selector) Reselect(ctx context.Context) error {
	sel.mu.Lock()
	defer sel.mu.Unlock()

	if sel.session == nil {
		return ErrNoActiveRoom
	}
	sel.activateLocked(ctx, sel.active, sel.title)
	return nil
}

// activateLocked closes the old session, then builds and starts the new one,
// strictly in that order. The project name lookup is a network call and runs
// off the caller's goroutine; the title shows a placeholder until it lands.
func (sel *Selector) activateLocked(ctx context.Context, ref RoomRef, partnerName string) {
	if sel.session != nil {
		sel.session.Close()
		sel.session = nil
	}

	sel.active = ref
	sel.title = immediateTitle(ref, partnerName)

	session := NewSession(ref, sel.self, SessionDeps{
		Dialer:   sel.deps.Dialer,
		History:  sel.deps.History,
		Cache:    sel.deps.Cache,
		Logger:   sel.deps.Logger,
		OnUpdate: sel.deps.OnUpdate,
	})
	session.Start(ctx)
	sel.session = session

	if ref.Kind == RoomKindProject && sel.deps.Metadata != nil {
		go sel.resolveProjectTitle(ctx, ref)
	}

	sel.log.Info().Stringer("room", ref).Str("title", sel.title).Msg("room selected")
}

// immediateTitle is what the room shows before any lookup completes.
func immediateTitle(ref RoomRef, partnerName string) string {
	if ref.Kind == RoomKindDirect {
		if partnerName == "" {
			return placeholderPartner
		}
		return partnerName
	}
	return placeholderProject
}

// resolveProjectTitle updates the title once the metadata lookup lands. A
// lookup that finishes after the room changed is discarded.
func (sel *Selector) resolveProjectTitle(ctx context.Context, ref RoomRef) {
	name, err := sel.deps.Metadata.ProjectName(ctx, ref.ID)
	if err != nil || name == "" {
		sel.log.Warn().Err(err).Int64("project_id", ref.ID).Msg("project name lookup failed")
		return
	}

	sel.mu.Lock()
	if sel.session == nil || sel.active != ref {
		sel.mu.Unlock()
		return
	}
	sel.title = name
	sel.mu.Unlock()

	if sel.deps.OnUpdate != nil {
		sel.deps.OnUpdate()
	}
}

// Session returns the active session, or nil when no room is selected.
func (sel *Selector) Session() *Session {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	return sel.session
}

// Active returns the active room reference and whether one is selected.
func (sel *Selector) Active() (RoomRef, bool) {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	return sel.active, sel.session != nil
}

// Title returns the display name of the active room.
func (sel *Selector) Title() string {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	return sel.title
}

// Close tears down the active session, if any.
func (sel *Selector) Close() {
	sel.mu.Lock()
	defer sel.mu.Unlock()
	if sel.session != nil {
		sel.session.Close()
		sel.session = nil
		sel.active = RoomRef{}
		sel.title = ""
	}
}
