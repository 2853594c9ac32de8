package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/minjae-lab/collabchat/internal/chat"
	"github.com/minjae-lab/collabchat/internal/config"
	"github.com/minjae-lab/collabchat/internal/proto"
)

// Dialer opens the live websocket channel for a room. It implements
// chat.Dialer.
type Dialer struct {
	baseURL string
	token   string
	timeout time.Duration
	log     *zerolog.Logger
}

// NewDialer builds a websocket dialer from configuration.
func NewDialer(cfg config.Config, logger *zerolog.Logger) *Dialer {
	if logger == nil {
		disabled := zerolog.Nop()
		logger = &disabled
	}
	return &Dialer{
		baseURL: strings.TrimRight(cfg.WSBaseURL, "/"),
		token:   cfg.Token,
		timeout: cfg.DialTimeout,
		log:     logger,
	}
}

// Dial connects to the room's channel endpoint.
func (d *Dialer) Dial(ctx context.Context, room chat.RoomRef) (chat.Channel, error) {
	var url string
	switch room.Kind {
	case chat.RoomKindProject:
		url = fmt.Sprintf("%s/chat/ws/chat/%d/", d.baseURL, room.ID)
	case chat.RoomKindDirect:
		url = fmt.Sprintf("%s/chat/ws/chat/dm/%d/", d.baseURL, room.ID)
	default:
		return nil, fmt.Errorf("unknown room kind %q", room.Kind)
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	opts := &websocket.DialOptions{}
	if d.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + d.token}}
	}

	conn, _, err := websocket.Dial(dialCtx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	d.log.Debug().Str("url", url).Msg("channel opened")
	return &wsChannel{conn: conn}, nil
}

// wsChannel adapts a websocket connection to the chat.Channel contract.
type wsChannel struct {
	conn *websocket.Conn
}

func (ch *wsChannel) Recv(ctx context.Context) (proto.MessageRecord, error) {
	var rec proto.MessageRecord
	if err := wsjson.Read(ctx, ch.conn, &rec); err != nil {
		return proto.MessageRecord{}, err
	}
	return rec, nil
}

func (ch *wsChannel) Send(ctx context.Context, p proto.SendPayload) error {
	return wsjson.Write(ctx, ch.conn, p)
}

func (ch *wsChannel) Close() error {
	return ch.conn.Close(websocket.StatusNormalClosure, "room closed")
}
