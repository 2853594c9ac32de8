// stubd is a small in-memory stand-in for the collaboration backend. It
// serves the REST endpoints and websocket rooms the chat client expects, so
// the client can be exercised end to end without the real deployment.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/minjae-lab/collabchat/internal/log"
	"github.com/minjae-lab/collabchat/internal/proto"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := log.New(*level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := newHub()
	hub.seed()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, hub, logger)

	srv := &stdhttp.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", *addr).Msg("stub backend listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited")
	}
	logger.Info().Msg("server stopped")
}

func registerRoutes(router *gin.Engine, hub *hub, logger *zerolog.Logger) {
	router.GET("/api/messages/:id/", func(c *gin.Context) {
		historyHandler(c, hub, "project")
	})
	router.GET("/api/dm_rooms/:id/messages/", func(c *gin.Context) {
		historyHandler(c, hub, "direct")
	})
	router.GET("/api/project_name/:id/", func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		c.JSON(stdhttp.StatusOK, proto.ProjectNameResponse{
			ProjectName: fmt.Sprintf("Project %d", id),
		})
	})
	router.GET("/api/users/name/", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, proto.CurrentUserResponse{UserID: 1, Name: "dev"})
	})
	router.GET("/api/projects/:id/", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, proto.ProjectListResponse{Projects: hub.projectRooms()})
	})
	router.GET("/api/dm_rooms/:id/", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, proto.DirectRoomListResponse{DMRooms: hub.directRooms()})
	})

	// The dm path nests under the project path, so a single wildcard route
	// dispatches both: /chat/ws/chat/{id}/ and /chat/ws/chat/dm/{id}/.
	router.GET("/chat/ws/chat/*room", func(c *gin.Context) {
		kind := "project"
		tail := strings.Trim(c.Param("room"), "/")
		if rest, ok := strings.CutPrefix(tail, "dm/"); ok {
			kind = "direct"
			tail = rest
		}
		id, err := strconv.ParseInt(tail, 10, 64)
		if err != nil {
			c.JSON(stdhttp.StatusBadRequest, gin.H{"error": "invalid room id"})
			return
		}
		serveRoom(c, hub, kind, id, logger)
	})
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(stdhttp.StatusBadRequest, gin.H{"error": "invalid room id"})
		return 0, false
	}
	return id, true
}

func historyHandler(c *gin.Context, hub *hub, kind string) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	c.JSON(stdhttp.StatusOK, proto.HistoryResponse{Messages: hub.history(kind, id)})
}

func serveRoom(c *gin.Context, hub *hub, kind string, id int64, logger *zerolog.Logger) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		logger.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub := hub.subscribe(kind, id)
	defer hub.unsubscribe(kind, id, sub)

	// Writer goroutine: everything the room broadcasts goes to this conn.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-sub.ch:
				if !ok {
					return
				}
				if err := wsjson.Write(ctx, conn, rec); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		var payload proto.SendPayload
		if err := wsjson.Read(ctx, conn, &payload); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					logger.Warn().Err(err).Msg("ws read error")
				}
			}
			conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}
		if payload.Body == "" {
			continue
		}
		hub.post(kind, id, payload, sub)
	}
}

// subscriber is one websocket connection inside a room.
type subscriber struct {
	ch chan proto.MessageRecord
}

type room struct {
	msgs []proto.MessageRecord
	subs map[*subscriber]struct{}
}

// hub holds all rooms and their connected subscribers.
type hub struct {
	mu     sync.Mutex
	rooms  map[string]*room
	nextID int64
}

func newHub() *hub {
	return &hub{rooms: make(map[string]*room), nextID: 1}
}

func roomKey(kind string, id int64) string {
	return kind + "/" + strconv.FormatInt(id, 10)
}

func (h *hub) room(kind string, id int64) *room {
	key := roomKey(kind, id)
	r, ok := h.rooms[key]
	if !ok {
		r = &room{subs: make(map[*subscriber]struct{})}
		h.rooms[key] = r
	}
	return r
}

func (h *hub) history(kind string, id int64) []proto.MessageRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.room(kind, id)
	out := make([]proto.MessageRecord, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (h *hub) subscribe(kind string, id int64) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &subscriber{ch: make(chan proto.MessageRecord, 16)}
	h.room(kind, id).subs[sub] = struct{}{}
	return sub
}

func (h *hub) unsubscribe(kind string, id int64, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.room(kind, id).subs, sub)
	close(sub.ch)
}

// post stores an inbound message and broadcasts it to the room. The sender's
// copy carries the temp_id so the client can reconcile its optimistic echo;
// everyone else gets the record without it.
func (h *hub) post(kind string, id int64, payload proto.SendPayload, from *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	rec := proto.MessageRecord{
		MessageID:    h.nextID,
		Body:         payload.Body,
		UserID:       payload.UserID,
		Username:     usernameFor(payload.UserID),
		Timestamp:    displayTime(now),
		TimestampISO: now.Format(time.RFC3339),
	}
	h.nextID++

	r := h.room(kind, id)
	r.msgs = append(r.msgs, rec)

	for sub := range r.subs {
		out := rec
		if sub == from {
			out.TempID = payload.TempID
		}
		select {
		case sub.ch <- out:
		default:
			// Slow consumer. Dropping beats blocking the whole room.
		}
	}
}

func (h *hub) projectRooms() []proto.ProjectRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	return []proto.ProjectRoom{
		{ProjectID: 1, ProjectName: "Project 1"},
		{ProjectID: 2, ProjectName: "Project 2"},
	}
}

func (h *hub) directRooms() []proto.DirectRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	return []proto.DirectRoom{
		{RoomID: 1, PartnerID: 2, PartnerName: "partner"},
	}
}

// seed puts a few messages in project room 1 so a fresh client has history to
// load, mixing the timestamp shapes the real backend emits.
func (h *hub) seed() {
	h.mu.Lock()
	defer h.mu.Unlock()

	earlier := time.Now().Add(-time.Hour)
	r := h.room("project", 1)
	r.msgs = append(r.msgs,
		proto.MessageRecord{
			MessageID:    h.nextID,
			Body:         "welcome to the stub room",
			UserID:       2,
			Username:     "partner",
			Timestamp:    displayTime(earlier),
			TimestampISO: earlier.Format(time.RFC3339),
		},
		proto.MessageRecord{
			MessageID: h.nextID + 1,
			Body:      "this one only has a display timestamp",
			UserID:    2,
			Username:  "partner",
			Timestamp: displayTime(earlier.Add(time.Minute)),
		},
	)
	h.nextID += 2
}

// displayTime renders the backend's legacy "M/D HH:MM" form.
func displayTime(t time.Time) string {
	return fmt.Sprintf("%d/%d %02d:%02d", int(t.Month()), t.Day(), t.Hour(), t.Minute())
}

func usernameFor(userID int64) string {
	if userID == 1 {
		return "dev"
	}
	return "user-" + strconv.FormatInt(userID, 10)
}
