package proto

// MessageRecord is the raw message shape the backend emits, both as a history
// element and as a websocket push. TempID is echoed back only for messages this
// client sent optimistically.
type MessageRecord struct {
	MessageID    int64  `json:"message_id,omitempty"`
	Body         string `json:"message"`
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	Timestamp    string `json:"timestamp,omitempty"`     // display form, "M/D HH:MM"
	TimestampISO string `json:"timestamp_iso,omitempty"` // canonical form when present
	TempID       string `json:"temp_id,omitempty"`
}

// SendPayload is what the client writes to the channel for an outbound message.
type SendPayload struct {
	Body   string `json:"message"`
	UserID int64  `json:"user_id"`
	TempID string `json:"temp_id"`
}

// HistoryResponse wraps a room's message history.
type HistoryResponse struct {
	Messages []MessageRecord `json:"messages"`
}

// ProjectNameResponse wraps a project metadata lookup.
type ProjectNameResponse struct {
	ProjectName string `json:"project_name"`
}

// CurrentUserResponse identifies the session user.
type CurrentUserResponse struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// ProjectRoom is one entry of the project room list.
type ProjectRoom struct {
	ProjectID         int64  `json:"project_id"`
	ProjectName       string `json:"project_name"`
	LatestMessageTime string `json:"latest_message_time,omitempty"`
}

// DirectRoom is one entry of the direct-message room list.
type DirectRoom struct {
	RoomID            int64  `json:"room_id"`
	PartnerID         int64  `json:"partner_id"`
	PartnerName       string `json:"partner_name"`
	LatestMessageTime string `json:"latest_message_time,omitempty"`
}

// ProjectListResponse wraps the project room list.
type ProjectListResponse struct {
	Projects []ProjectRoom `json:"projects"`
}

// DirectRoomListResponse wraps the direct-message room list.
type DirectRoomListResponse struct {
	DMRooms []DirectRoom `json:"dm_rooms"`
}
