package acquisition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"chitrakatha/internal/protocol"
)

var (
	// ErrAgentUnreachable means the local acquisition agent could not be
	// contacted at all.
	ErrAgentUnreachable = errors.New("local agent unreachable")

	// ErrAcquisitionFailed means the agent answered but reported it could
	// not turn the source into a stream.
	ErrAcquisitionFailed = errors.New("acquisition failed")
)

// SourceType classifies a source for the agent.
type SourceType string

const (
	SourceURL    SourceType = "url"
	SourceMagnet SourceType = "magnet"
	SourceFile   SourceType = "file"
)

// SourceSpec is what the user (or a host broadcast) asks to watch.
type SourceSpec struct {
	Value string
	Type  SourceType
}

// AgentStatus mirrors the agent's GET /status response.
type AgentStatus struct {
	Online     bool                `json:"online"`
	Room       string              `json:"room"`
	ActiveFile *protocol.AgentFile `json:"activeFile"`
	IP         string              `json:"ip"`
}

// AgentClient talks to the out-of-process acquisition agent over its local
// HTTP surface.
type AgentClient struct {
	baseURL string
	http    *retryablehttp.Client
}

func NewAgentClient(baseURL string) *AgentClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil
	return &AgentClient{baseURL: baseURL, http: client}
}

// BaseURL returns the agent endpoint, e.g. http://127.0.0.1:3000.
func (c *AgentClient) BaseURL() string { return c.baseURL }

// StreamURL is the playable endpoint for a resolved stream.
func (c *AgentClient) StreamURL(streamID string) string {
	return fmt.Sprintf("%s/stream/%s", c.baseURL, streamID)
}

// DownloadURL is the playable endpoint for a completed agent download.
func (c *AgentClient) DownloadURL(fileName string) string {
	return fmt.Sprintf("%s/downloads/%s", c.baseURL, fileName)
}

type playRequest struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type playResponse struct {
	Success  bool   `json:"success"`
	StreamID string `json:"streamId"`
	Error    string `json:"error"`
}

// Play asks the agent to resolve a URL or magnet into a stream.
func (c *AgentClient) Play(ctx context.Context, spec SourceSpec) (string, error) {
	var resp playResponse
	err := c.post(ctx, "/play", playRequest{URL: spec.Value, Type: string(spec.Type)}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("%w: %s", ErrAcquisitionFailed, resp.Error)
	}
	return resp.StreamID, nil
}

type metadataResponse struct {
	Duration float64 `json:"duration"`
}

// Metadata fetches the known duration for a stream; zero means not yet known.
func (c *AgentClient) Metadata(ctx context.Context, streamID string) (float64, error) {
	var resp metadataResponse
	if err := c.get(ctx, "/metadata/"+streamID, &resp); err != nil {
		return 0, err
	}
	return resp.Duration, nil
}

func (c *AgentClient) Status(ctx context.Context) (AgentStatus, error) {
	var status AgentStatus
	if err := c.get(ctx, "/status", &status); err != nil {
		return AgentStatus{}, err
	}
	return status, nil
}

type joinRoomRequest struct {
	RoomID string `json:"roomId"`
}

// JoinRoom tells the agent which room it belongs to so its transfers can be
// attributed to it.
func (c *AgentClient) JoinRoom(ctx context.Context, roomID string) error {
	return c.post(ctx, "/join-room", joinRoomRequest{RoomID: roomID}, nil)
}

type selectFileRequest struct {
	FilePath string `json:"filePath"`
}

type selectFileResponse struct {
	Success bool               `json:"success"`
	File    protocol.AgentFile `json:"file"`
	Error   string             `json:"error"`
}

// SelectFile points the agent at a local file to share and stream.
func (c *AgentClient) SelectFile(ctx context.Context, path string) (protocol.AgentFile, error) {
	var resp selectFileResponse
	if err := c.post(ctx, "/select-file", selectFileRequest{FilePath: path}, &resp); err != nil {
		return protocol.AgentFile{}, err
	}
	if !resp.Success {
		return protocol.AgentFile{}, fmt.Errorf("%w: %s", ErrAcquisitionFailed, resp.Error)
	}
	return resp.File, nil
}

type startDownloadRequest struct {
	TargetURL string `json:"targetUrl"`
	FileName  string `json:"fileName"`
}

type startDownloadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// StartDownload begins an agent-to-agent transfer from a peer's stream URL.
func (c *AgentClient) StartDownload(ctx context.Context, targetURL, fileName string) error {
	var resp startDownloadResponse
	if err := c.post(ctx, "/start-download", startDownloadRequest{TargetURL: targetURL, FileName: fileName}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrAcquisitionFailed, resp.Error)
	}
	return nil
}

func (c *AgentClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *AgentClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *AgentClient) do(req *retryablehttp.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("agent response: %w", err)
	}
	return nil
}
