// Package backend talks to the collaboration server: REST for history, room
// metadata and rosters, websocket for the live message channel.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/minjae-lab/collabchat/internal/chat"
	"github.com/minjae-lab/collabchat/internal/config"
	"github.com/minjae-lab/collabchat/internal/proto"
)

// Client is the REST side of the backend. It implements chat.HistoryFetcher
// and chat.MetadataLookup.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zerolog.Logger
}

// NewClient builds a REST client from configuration.
func NewClient(cfg config.Config, logger *zerolog.Logger) *Client {
	if logger == nil {
		disabled := zerolog.Nop()
		logger = &disabled
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		log:     logger,
	}
}

// History fetches the message history of a room.
func (c *Client) History(ctx context.Context, room chat.RoomRef) ([]proto.MessageRecord, error) {
	var path string
	switch room.Kind {
	case chat.RoomKindProject:
		path = fmt.Sprintf("/api/messages/%d/", room.ID)
	case chat.RoomKindDirect:
		path = fmt.Sprintf("/api/dm_rooms/%d/messages/", room.ID)
	default:
		return nil, fmt.Errorf("unknown room kind %q", room.Kind)
	}

	var resp proto.HistoryResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return resp.Messages, nil
}

// ProjectName resolves a project room's display name.
func (c *Client) ProjectName(ctx context.Context, projectID int64) (string, error) {
	var resp proto.ProjectNameResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/api/project_name/%d/", projectID), &resp); err != nil {
		return "", fmt.Errorf("fetch project name: %w", err)
	}
	return resp.ProjectName, nil
}

// CurrentUser asks the backend who the session user is.
func (c *Client) CurrentUser(ctx context.Context) (chat.Identity, error) {
	var resp proto.CurrentUserResponse
	if err := c.getJSON(ctx, "/api/users/name/", &resp); err != nil {
		return chat.Identity{}, fmt.Errorf("fetch current user: %w", err)
	}
	if resp.UserID == 0 {
		return chat.Identity{}, fmt.Errorf("backend returned no user id")
	}
	return chat.Identity{UserID: resp.UserID, Name: resp.Name}, nil
}

// ListProjectRooms fetches the project rooms the user participates in,
// newest activity first. Callers refresh explicitly; there is no timer.
func (c *Client) ListProjectRooms(ctx context.Context, userID int64) ([]proto.ProjectRoom, error) {
	var resp proto.ProjectListResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/api/projects/%d/", userID), &resp); err != nil {
		return nil, fmt.Errorf("fetch project rooms: %w", err)
	}
	return resp.Projects, nil
}

// ListDirectRooms fetches the user's direct-message rooms, newest activity
// first.
func (c *Client) ListDirectRooms(ctx context.Context, userID int64) ([]proto.DirectRoom, error) {
	var resp proto.DirectRoomListResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/api/dm_rooms/%d/", userID), &resp); err != nil {
		return nil, fmt.Errorf("fetch dm rooms: %w", err)
	}
	return resp.DMRooms, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("backend request failed")
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
