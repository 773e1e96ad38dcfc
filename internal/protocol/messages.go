package protocol

import "encoding/json"

// Message kinds on the room-coordination channel. Names match the
// coordination server's event set.
const (
	KindJoinRoom              = "join_room"
	KindJoinResult            = "join_result"
	KindLeaveRoom             = "leave_room"
	KindIsHost                = "is_host"
	KindRoomUsersUpdate       = "room_users_update"
	KindSyncAction            = "sync_action"
	KindSyncTime              = "sync_time"
	KindSyncMagnetLink        = "sync_magnet_link"
	KindTorrentMetadataUpdate = "torrent_metadata_update"
	KindAgentFileAnnounce     = "agent_file_announce"
	KindAgentDownloadProgress = "agent_download_progress"
	KindUserJoined            = "user_joined"
	KindError                 = "error"
)

// ErrUnauthorized is the error string the coordination server returns when a
// room requires a password and the join request did not carry a valid one.
const ErrUnauthorized = "Unauthorized"

type Action string

const (
	ActionPlay  Action = "PLAY"
	ActionPause Action = "PAUSE"
	ActionSeek  Action = "SEEK"
)

// SyncMessage is an explicit playback command broadcast to the room.
type SyncMessage struct {
	RoomID           string  `json:"roomId"`
	Action           Action  `json:"action"`
	Time             float64 `json:"time"`
	SenderGeneration int64   `json:"senderGeneration"`
}

// DriftSample is the host's periodic clock heartbeat. It carries no action:
// it never forces play or pause on a viewer.
type DriftSample struct {
	RoomID string  `json:"roomId"`
	Time   float64 `json:"time"`
}

type JoinRequest struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password,omitempty"`
	ClientID string `json:"clientId"`
}

type JoinResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type LeaveRequest struct {
	RoomID string `json:"roomId"`
}

// MagnetShare carries the raw source spec from the host so every viewer
// resolves it through its own local agent.
type MagnetShare struct {
	RoomID string `json:"roomId"`
	Magnet string `json:"magnet"`
	Type   string `json:"type,omitempty"`
}

type MetadataUpdate struct {
	RoomID   string  `json:"roomId"`
	Duration float64 `json:"duration"`
}

type AgentFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	IP   string `json:"ip,omitempty"`
	Port int    `json:"port,omitempty"`
}

type FileAnnounce struct {
	RoomID string    `json:"roomId"`
	File   AgentFile `json:"file"`
}

type DownloadProgress struct {
	RoomID   string  `json:"roomId"`
	Progress float64 `json:"progress"`
	Speed    float64 `json:"speed"`
	FileName string  `json:"fileName"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Envelope struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

type InboundEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}
