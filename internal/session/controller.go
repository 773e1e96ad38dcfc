package session

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/RanFeng/ilog"
	"github.com/google/uuid"

	"chitrakatha/internal/acquisition"
	"chitrakatha/internal/channel"
	"chitrakatha/internal/playback"
	"chitrakatha/internal/protocol"
	"chitrakatha/internal/roomsync"
)

// Role is this client's part in the room. Exactly one member is the host,
// whose playback clock is authoritative.
type Role int

const (
	RoleViewer Role = iota
	RoleHost
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "viewer"
}

// Channel is the outbound half of the room-coordination connection. The
// websocket client implements it; tests substitute a recorder.
type Channel interface {
	EmitJoinRoom(protocol.JoinRequest) error
	EmitLeaveRoom(protocol.LeaveRequest) error
	EmitSyncAction(protocol.SyncMessage) error
	EmitDriftSample(protocol.DriftSample) error
	EmitMagnetShare(protocol.MagnetShare) error
	EmitMetadataUpdate(protocol.MetadataUpdate) error
	EmitFileAnnounce(protocol.FileAnnounce) error
}

// durationSink is implemented by surfaces whose duration is fed externally,
// like the built-in clock surface.
type durationSink interface {
	SetDuration(seconds float64)
}

// Status is the session snapshot the UI boundary reads.
type Status struct {
	RoomID           string              `json:"roomId,omitempty"`
	Role             string              `json:"role"`
	ParticipantCount int                 `json:"participantCount"`
	Playing          bool                `json:"playing"`
	CurrentTime      float64             `json:"currentTime"`
	Duration         float64             `json:"duration"`
	SourceHandle     string              `json:"sourceHandle,omitempty"`
	SourceGeneration int64               `json:"sourceGeneration"`
	AgentOnline      bool                `json:"agentOnline"`
	RemoteFile       *protocol.AgentFile `json:"remoteFile,omitempty"`
}

// Controller owns the room session lifecycle and wires the sync, playback
// and acquisition components together. All state it owns lives for exactly
// one join/leave cycle: leaving and rejoining behaves like a fresh session.
type Controller struct {
	surface      playback.Surface
	orchestrator *acquisition.Orchestrator
	clientID     string

	// test hooks; zero means the component defaults
	gateWindow        time.Duration
	heartbeatInterval time.Duration

	mu               sync.Mutex
	channel          Channel
	active           bool
	roomID           string
	role             Role
	participantCount int
	generation       int64
	sourceHandle     string
	remoteFile       *protocol.AgentFile
	pendingJoin      chan protocol.JoinResult

	gate          *playback.Gate
	observer      *playback.Observer
	adapter       *roomsync.Adapter
	corrector     *roomsync.Corrector
	recovery      *RecoveryManager
	recoveryToken playback.Token
}

func NewController(surface playback.Surface, agent *acquisition.AgentClient) *Controller {
	c := &Controller{
		surface:  surface,
		clientID: uuid.NewString(),
	}
	c.orchestrator = acquisition.NewOrchestrator(agent, c.handleAgentDuration)
	return c
}

// AttachChannel installs the room-coordination connection. Must happen
// before Join.
func (c *Controller) AttachChannel(ch Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channel = ch
}

// Callbacks wires this controller's handlers into the channel client.
func (c *Controller) Callbacks() channel.Callbacks {
	return channel.Callbacks{
		OnJoinResult:       c.HandleJoinResult,
		OnIsHost:           c.HandleIsHost,
		OnRoomUsersUpdate:  c.HandleRoomUsersUpdate,
		OnSyncAction:       c.HandleSyncAction,
		OnSyncTime:         c.HandleSyncTime,
		OnSyncMagnetLink:   c.HandleSyncMagnetLink,
		OnMetadataUpdate:   c.HandleMetadataUpdate,
		OnFileAnnounce:     c.HandleFileAnnounce,
		OnDownloadProgress: c.HandleDownloadProgress,
		OnUserJoined:       c.HandleUserJoined,
		OnDisconnect: func(err error) {
			log.Printf("session: room channel disconnected: %v", err)
		},
	}
}

func (c *Controller) Orchestrator() *acquisition.Orchestrator { return c.orchestrator }

// Generation returns the current source generation.
func (c *Controller) Generation() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Join requests room membership. An Unauthorized rejection without a
// password maps to ErrPasswordRequired (prompt, not a failure); with a
// password it maps to ErrBadPassword.
func (c *Controller) Join(ctx context.Context, roomID, password string) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	ch := c.channel
	if ch == nil {
		c.mu.Unlock()
		return fmt.Errorf("no room channel attached")
	}
	pending := make(chan protocol.JoinResult, 1)
	c.pendingJoin = pending
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pendingJoin = nil
		c.mu.Unlock()
	}()

	err := ch.EmitJoinRoom(protocol.JoinRequest{
		RoomID:   roomID,
		Password: password,
		ClientID: c.clientID,
	})
	if err != nil {
		return err
	}

	select {
	case result := <-pending:
		if result.Success {
			c.activate(ctx, roomID)
			return nil
		}
		if result.Error == protocol.ErrUnauthorized {
			if password == "" {
				return ErrPasswordRequired
			}
			return ErrBadPassword
		}
		return fmt.Errorf("join rejected: %s", result.Error)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) activate(ctx context.Context, roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.active = true
	c.role = RoleViewer
	c.generation = 0
	c.participantCount = 0
	c.sourceHandle = ""
	c.remoteFile = nil

	if c.gateWindow > 0 {
		c.gate = playback.NewGateWithWindow(c.gateWindow)
	} else {
		c.gate = playback.NewGate()
	}
	c.observer = playback.NewObserver(c.surface, c.gate)
	c.adapter = roomsync.NewAdapter(roomID, c.observer, c.gate, c.channel, c.Generation)
	c.corrector = roomsync.NewCorrector(roomID, c.observer, c.channel)
	if c.heartbeatInterval > 0 {
		c.corrector.SetInterval(c.heartbeatInterval)
	}
	c.recovery = NewRecoveryManager()
	observer := c.observer
	adapter := c.adapter
	c.mu.Unlock()

	adapter.Start()
	token := observer.Subscribe(func(kind playback.EventKind, seconds float64) {
		if kind == playback.EventDurationKnown {
			c.handleDurationKnown(seconds)
		}
	})
	c.mu.Lock()
	c.recoveryToken = token
	c.mu.Unlock()
	c.orchestrator.StartStatusPoll(roomID)
	ilog.EventInfo(ctx, "room_joined", "roomId", roomID, "clientId", c.clientID)
}

// Leave tears the session down completely: every listener unsubscribed,
// every scheduled task cancelled, all state discarded.
func (c *Controller) Leave() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	roomID := c.roomID
	ch := c.channel
	adapter := c.adapter
	corrector := c.corrector
	gate := c.gate
	observer := c.observer
	recovery := c.recovery
	recoveryToken := c.recoveryToken
	c.recoveryToken = 0
	c.roomID = ""
	c.role = RoleViewer
	c.participantCount = 0
	c.generation = 0
	c.sourceHandle = ""
	c.remoteFile = nil
	c.adapter = nil
	c.corrector = nil
	c.gate = nil
	c.observer = nil
	c.recovery = nil
	c.mu.Unlock()

	corrector.StopHeartbeat()
	adapter.Stop()
	observer.Unsubscribe(recoveryToken)
	observer.UnsubscribeAll()
	gate.Cancel()
	recovery.Reset()
	c.orchestrator.Close()
	if err := ch.EmitLeaveRoom(protocol.LeaveRequest{RoomID: roomID}); err != nil {
		log.Printf("session: leave emit failed: %v", err)
	}
	ilog.EventInfo(context.Background(), "room_left", "roomId", roomID)
}

// SelectSource resolves a new media source and swaps playback onto it. On
// the host the raw spec is also shared with the room (peer-symmetric
// acquisition). The outgoing position is checkpointed for recovery.
func (c *Controller) SelectSource(ctx context.Context, spec acquisition.SourceSpec) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	c.prepareSwapLocked()
	c.mu.Unlock()

	stream, err := c.orchestrator.Resolve(ctx, spec)
	if err != nil {
		return err
	}
	return c.commitSwap(stream.ID, stream.URL)
}

// SelectLocalFile shares a file on disk through the local agent and swaps
// playback onto its stream. The host announces it so viewers can pull it
// agent-to-agent.
func (c *Controller) SelectLocalFile(ctx context.Context, path string) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	c.prepareSwapLocked()
	c.mu.Unlock()

	stream, err := c.orchestrator.Resolve(ctx, acquisition.SourceSpec{Value: path, Type: acquisition.SourceFile})
	if err != nil {
		return err
	}
	if err := c.commitSwap(stream.ID, stream.URL); err != nil {
		return err
	}
	if stream.File != nil {
		c.announceFile(ctx, *stream.File)
	}
	return nil
}

// prepareSwapLocked checkpoints the outgoing source. The checkpoint is
// stamped with the generation the swap will produce, so it survives exactly
// until the next swap supersedes it.
func (c *Controller) prepareSwapLocked() {
	if c.sourceHandle == "" {
		return
	}
	c.recovery.Capture(c.observer.CurrentTime(), c.observer.Playing(), c.generation+1)
}

func (c *Controller) commitSwap(handle, streamURL string) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	c.generation++
	c.sourceHandle = handle
	observer := c.observer
	c.mu.Unlock()
	return observer.Load(streamURL)
}

// StartRemoteDownload pulls the most recently announced peer file through
// the local agent. Playback swaps to it when the download completes.
func (c *Controller) StartRemoteDownload(ctx context.Context) error {
	c.mu.Lock()
	remote := c.remoteFile
	active := c.active
	c.mu.Unlock()
	if !active {
		return ErrNotInRoom
	}
	if remote == nil {
		return ErrNoRemoteFile
	}
	targetURL := fmt.Sprintf("http://%s:%d/stream/%s", remote.IP, remote.Port, remote.ID)
	return c.orchestrator.Agent().StartDownload(ctx, targetURL, remote.Name)
}

// Local user controls. These hit the surface directly, so the resulting
// events pass the open gate and are broadcast as genuine actions.

func (c *Controller) Play() error            { return c.surface.Play() }
func (c *Controller) Pause() error           { return c.surface.Pause() }
func (c *Controller) SeekTo(s float64) error { return c.surface.SeekTo(s) }

// ReportDuration feeds a duration learned outside the agent (e.g. by an
// attached player) into the surface.
func (c *Controller) ReportDuration(seconds float64) {
	if sink, ok := c.surface.(durationSink); ok {
		sink.SetDuration(seconds)
	}
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := Status{
		RoomID:           c.roomID,
		Role:             c.role.String(),
		ParticipantCount: c.participantCount,
		CurrentTime:      c.surface.CurrentTime(),
		Duration:         c.surface.Duration(),
		SourceHandle:     c.sourceHandle,
		SourceGeneration: c.generation,
		AgentOnline:      c.orchestrator.LastStatus().Online,
		RemoteFile:       c.remoteFile,
	}
	if c.observer != nil {
		status.Playing = c.observer.Playing()
	}
	return status
}

// Inbound channel handlers.

func (c *Controller) HandleJoinResult(result protocol.JoinResult) {
	c.mu.Lock()
	pending := c.pendingJoin
	c.pendingJoin = nil
	c.mu.Unlock()
	if pending != nil {
		pending <- result
	}
}

func (c *Controller) HandleIsHost(isHost bool) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	if isHost {
		c.role = RoleHost
	} else {
		c.role = RoleViewer
	}
	corrector := c.corrector
	roomID := c.roomID
	ch := c.channel
	c.mu.Unlock()

	if isHost {
		corrector.StartHeartbeat()
		c.orchestrator.SetAnnouncer(func(spec acquisition.SourceSpec) {
			if spec.Type == acquisition.SourceFile {
				return
			}
			err := ch.EmitMagnetShare(protocol.MagnetShare{
				RoomID: roomID,
				Magnet: spec.Value,
				Type:   string(spec.Type),
			})
			if err != nil {
				log.Printf("session: magnet share emit failed: %v", err)
			}
		})
	} else {
		corrector.StopHeartbeat()
		c.orchestrator.SetAnnouncer(nil)
	}
	ilog.EventInfo(context.Background(), "role_assigned", "roomId", roomID, "isHost", isHost)
}

func (c *Controller) HandleRoomUsersUpdate(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.participantCount = count
}

func (c *Controller) HandleSyncAction(msg protocol.SyncMessage) {
	c.mu.Lock()
	adapter := c.adapter
	roomID := c.roomID
	c.mu.Unlock()
	if adapter == nil || msg.RoomID != roomID {
		return
	}
	adapter.HandleSyncAction(context.Background(), msg)
}

func (c *Controller) HandleSyncTime(sample protocol.DriftSample) {
	c.mu.Lock()
	corrector := c.corrector
	roomID := c.roomID
	role := c.role
	c.mu.Unlock()
	if corrector == nil || sample.RoomID != roomID || role == RoleHost {
		return
	}
	corrector.HandleDriftSample(context.Background(), sample)
}

// HandleSyncMagnetLink resolves the host's shared spec through this
// client's own agent. Resolution can take a while, so it runs off the read
// loop.
func (c *Controller) HandleSyncMagnetLink(share protocol.MagnetShare) {
	c.mu.Lock()
	active := c.active
	roomID := c.roomID
	role := c.role
	c.mu.Unlock()
	if !active || share.RoomID != roomID || role == RoleHost {
		return
	}
	spec := acquisition.SourceSpec{Value: share.Magnet, Type: acquisition.SourceMagnet}
	if share.Type == string(acquisition.SourceURL) {
		spec.Type = acquisition.SourceURL
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.SelectSource(ctx, spec); err != nil {
			log.Printf("session: shared source resolution failed: %v", err)
		}
	}()
}

func (c *Controller) HandleMetadataUpdate(update protocol.MetadataUpdate) {
	c.mu.Lock()
	active := c.active
	role := c.role
	c.mu.Unlock()
	if !active || role == RoleHost || update.Duration <= 0 {
		return
	}
	if sink, ok := c.surface.(durationSink); ok {
		sink.SetDuration(update.Duration)
	}
}

func (c *Controller) HandleFileAnnounce(announce protocol.FileAnnounce) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || announce.RoomID != c.roomID {
		return
	}
	file := announce.File
	c.remoteFile = &file
}

func (c *Controller) HandleDownloadProgress(progress protocol.DownloadProgress) {
	c.mu.Lock()
	active := c.active
	roomID := c.roomID
	c.mu.Unlock()
	if !active || progress.RoomID != roomID {
		return
	}
	if progress.Progress < 100 {
		return
	}
	downloadURL := c.orchestrator.Agent().DownloadURL(progress.FileName)
	c.mu.Lock()
	if c.active {
		c.prepareSwapLocked()
	}
	c.mu.Unlock()
	if err := c.commitSwap(progress.FileName, downloadURL); err != nil {
		log.Printf("session: loading completed download failed: %v", err)
	}
}

// HandleUserJoined re-announces the agent's active file so late joiners
// learn about it.
func (c *Controller) HandleUserJoined() {
	c.mu.Lock()
	active := c.active
	role := c.role
	c.mu.Unlock()
	if !active || role != RoleHost {
		return
	}
	status := c.orchestrator.LastStatus()
	if status.ActiveFile == nil {
		return
	}
	c.announceFile(context.Background(), *status.ActiveFile)
}

func (c *Controller) announceFile(ctx context.Context, file protocol.AgentFile) {
	c.mu.Lock()
	roomID := c.roomID
	role := c.role
	ch := c.channel
	c.mu.Unlock()
	if role != RoleHost || roomID == "" {
		return
	}
	status := c.orchestrator.LastStatus()
	file.IP = status.IP
	file.Port = agentPort(c.orchestrator.Agent().BaseURL())
	err := ch.EmitFileAnnounce(protocol.FileAnnounce{RoomID: roomID, File: file})
	if err != nil {
		log.Printf("session: file announce emit failed: %v", err)
		return
	}
	ilog.EventInfo(ctx, "file_announced", "roomId", roomID, "file", file.Name)
}

// handleAgentDuration fires when the metadata poll learns the duration.
// The host shares it with the room; either way the surface learns it.
func (c *Controller) handleAgentDuration(seconds float64) {
	if sink, ok := c.surface.(durationSink); ok {
		sink.SetDuration(seconds)
	}
	c.mu.Lock()
	active := c.active
	role := c.role
	roomID := c.roomID
	ch := c.channel
	c.mu.Unlock()
	if !active || role != RoleHost {
		return
	}
	err := ch.EmitMetadataUpdate(protocol.MetadataUpdate{RoomID: roomID, Duration: seconds})
	if err != nil {
		log.Printf("session: metadata update emit failed: %v", err)
	}
}

// handleDurationKnown consumes the pending checkpoint once the swapped-in
// source is seekable.
func (c *Controller) handleDurationKnown(seconds float64) {
	c.mu.Lock()
	recovery := c.recovery
	observer := c.observer
	generation := c.generation
	c.mu.Unlock()
	if recovery == nil || observer == nil {
		return
	}
	ctx := context.Background()
	cp, ok := recovery.Consume(ctx, generation)
	if !ok {
		return
	}
	ilog.EventInfo(ctx, "checkpoint_restored",
		"time", cp.Time, "wasPlaying", cp.WasPlaying, "generation", cp.Generation)
	if cp.WasPlaying {
		_ = observer.Apply(ctx, protocol.ActionPlay, cp.Time, true)
	} else {
		_ = observer.Apply(ctx, protocol.ActionSeek, cp.Time, false)
	}
}

func agentPort(baseURL string) int {
	u, err := url.Parse(baseURL)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return 0
	}
	return port
}
