package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/minjae-lab/collabchat/internal/chat"
	"github.com/minjae-lab/collabchat/internal/config"
	"github.com/minjae-lab/collabchat/internal/proto"
)

// startEchoServer accepts one websocket connection and echoes every send
// payload back as a confirmed message record, the way the backend does.
func startEchoServer(t *testing.T) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/chat/ws/chat/") {
			http.NotFound(w, r)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusInternalError, "server shutdown")

		ctx := r.Context()
		var nextID int64 = 100
		for {
			var p proto.SendPayload
			if err := wsjson.Read(ctx, conn, &p); err != nil {
				return
			}
			rec := proto.MessageRecord{
				MessageID:    nextID,
				Body:         p.Body,
				UserID:       p.UserID,
				Username:     "minjae",
				Timestamp:    "5/1 09:00",
				TimestampISO: "2024-05-01T09:00:00+09:00",
				TempID:       p.TempID,
			}
			nextID++
			if err := wsjson.Write(ctx, conn, rec); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testDialer(ts *httptest.Server) *Dialer {
	return NewDialer(config.Config{
		WSBaseURL:   strings.Replace(ts.URL, "http", "ws", 1),
		DialTimeout: 2 * time.Second,
	}, nil)
}

func TestDialerRoundTrip(t *testing.T) {
	ts := startEchoServer(t)
	dialer := testDialer(ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := dialer.Dial(ctx, chat.RoomRef{Kind: chat.RoomKindProject, ID: 7})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	payload := proto.SendPayload{Body: "hello", UserID: 1, TempID: "local-1"}
	if err := ch.Send(ctx, payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	rec, err := ch.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if rec.Body != "hello" || rec.TempID != "local-1" || rec.MessageID == 0 {
		t.Fatalf("unexpected echo: %+v", rec)
	}
}

func TestDialerDirectRoomPath(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer ts.Close()

	dialer := testDialer(ts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := dialer.Dial(ctx, chat.RoomRef{Kind: chat.RoomKindDirect, ID: 3})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	ch.Close()

	if gotPath != "/chat/ws/chat/dm/3/" {
		t.Errorf("path = %q, want /chat/ws/chat/dm/3/", gotPath)
	}
}

func TestDialerFailsOnRefusedEndpoint(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer ts.Close()

	dialer := testDialer(ts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := dialer.Dial(ctx, chat.RoomRef{Kind: chat.RoomKindProject, ID: 7}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestRecvFailsAfterServerClose(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		conn.Close(websocket.StatusGoingAway, "bye")
	}))
	defer ts.Close()

	dialer := testDialer(ts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := dialer.Dial(ctx, chat.RoomRef{Kind: chat.RoomKindProject, ID: 7})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	if _, err := ch.Recv(ctx); err == nil {
		t.Fatal("expected read error after server close")
	}
}
