package channel

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"chitrakatha/internal/protocol"
)

// Callbacks receives inbound room-channel messages. Unset callbacks are
// skipped. They are invoked from the read loop goroutine, one at a time.
type Callbacks struct {
	OnJoinResult       func(protocol.JoinResult)
	OnIsHost           func(bool)
	OnRoomUsersUpdate  func(int)
	OnSyncAction       func(protocol.SyncMessage)
	OnSyncTime         func(protocol.DriftSample)
	OnSyncMagnetLink   func(protocol.MagnetShare)
	OnMetadataUpdate   func(protocol.MetadataUpdate)
	OnFileAnnounce     func(protocol.FileAnnounce)
	OnDownloadProgress func(protocol.DownloadProgress)
	OnUserJoined       func()
	OnDisconnect       func(error)
}

// Client is the websocket connection to the room-coordination server.
type Client struct {
	conn      *websocket.Conn
	callbacks Callbacks

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the coordination server and starts the read loop.
func Dial(ctx context.Context, url string, callbacks Callbacks) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:      conn,
		callbacks: callbacks,
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closeOnce.Do(func() { close(c.done) })
			if c.callbacks.OnDisconnect != nil {
				c.callbacks.OnDisconnect(err)
			}
			return
		}
		var inbound protocol.InboundEnvelope
		if err := json.Unmarshal(data, &inbound); err != nil {
			log.Printf("channel: unmarshal message error: %v", err)
			continue
		}
		c.dispatch(inbound)
	}
}

func (c *Client) dispatch(inbound protocol.InboundEnvelope) {
	switch inbound.Kind {
	case protocol.KindJoinResult:
		var result protocol.JoinResult
		if decode(inbound.Data, &result) && c.callbacks.OnJoinResult != nil {
			c.callbacks.OnJoinResult(result)
		}
	case protocol.KindIsHost:
		var isHost bool
		if decode(inbound.Data, &isHost) && c.callbacks.OnIsHost != nil {
			c.callbacks.OnIsHost(isHost)
		}
	case protocol.KindRoomUsersUpdate:
		var count int
		if decode(inbound.Data, &count) && c.callbacks.OnRoomUsersUpdate != nil {
			c.callbacks.OnRoomUsersUpdate(count)
		}
	case protocol.KindSyncAction:
		var msg protocol.SyncMessage
		if decode(inbound.Data, &msg) && c.callbacks.OnSyncAction != nil {
			c.callbacks.OnSyncAction(msg)
		}
	case protocol.KindSyncTime:
		var sample protocol.DriftSample
		if decode(inbound.Data, &sample) && c.callbacks.OnSyncTime != nil {
			c.callbacks.OnSyncTime(sample)
		}
	case protocol.KindSyncMagnetLink:
		var share protocol.MagnetShare
		if decode(inbound.Data, &share) && c.callbacks.OnSyncMagnetLink != nil {
			c.callbacks.OnSyncMagnetLink(share)
		}
	case protocol.KindTorrentMetadataUpdate:
		var update protocol.MetadataUpdate
		if decode(inbound.Data, &update) && c.callbacks.OnMetadataUpdate != nil {
			c.callbacks.OnMetadataUpdate(update)
		}
	case protocol.KindAgentFileAnnounce:
		var announce protocol.FileAnnounce
		if decode(inbound.Data, &announce) && c.callbacks.OnFileAnnounce != nil {
			c.callbacks.OnFileAnnounce(announce)
		}
	case protocol.KindAgentDownloadProgress:
		var progress protocol.DownloadProgress
		if decode(inbound.Data, &progress) && c.callbacks.OnDownloadProgress != nil {
			c.callbacks.OnDownloadProgress(progress)
		}
	case protocol.KindUserJoined:
		if c.callbacks.OnUserJoined != nil {
			c.callbacks.OnUserJoined()
		}
	default:
		log.Printf("channel: unknown message kind %q", inbound.Kind)
	}
}

func decode(data json.RawMessage, out interface{}) bool {
	if err := json.Unmarshal(data, out); err != nil {
		log.Printf("channel: decode payload error: %v", err)
		return false
	}
	return true
}

func (c *Client) emit(kind string, data interface{}) error {
	payload, err := json.Marshal(protocol.Envelope{Kind: kind, Data: data})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) EmitJoinRoom(req protocol.JoinRequest) error {
	return c.emit(protocol.KindJoinRoom, req)
}

func (c *Client) EmitLeaveRoom(req protocol.LeaveRequest) error {
	return c.emit(protocol.KindLeaveRoom, req)
}

func (c *Client) EmitSyncAction(msg protocol.SyncMessage) error {
	return c.emit(protocol.KindSyncAction, msg)
}

func (c *Client) EmitDriftSample(sample protocol.DriftSample) error {
	return c.emit(protocol.KindSyncTime, sample)
}

func (c *Client) EmitMagnetShare(share protocol.MagnetShare) error {
	return c.emit(protocol.KindSyncMagnetLink, share)
}

func (c *Client) EmitMetadataUpdate(update protocol.MetadataUpdate) error {
	return c.emit(protocol.KindTorrentMetadataUpdate, update)
}

func (c *Client) EmitFileAnnounce(announce protocol.FileAnnounce) error {
	return c.emit(protocol.KindAgentFileAnnounce, announce)
}

// Done is closed once the read loop exits.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}
