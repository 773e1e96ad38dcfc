package acquisition

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeAgent stands in for the out-of-process acquisition agent.
type fakeAgent struct {
	mu            sync.Mutex
	playFail      string
	metadataCalls int
	// duration returned per metadata call index (1-based); zero otherwise
	durationAt map[int]float64
	joinedRoom string
	status     AgentStatus
}

func (f *fakeAgent) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/play", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail := f.playFail
		f.mu.Unlock()
		if fail != "" {
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": fail})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "streamId": "stream-7"})
	})
	mux.HandleFunc("/metadata/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.metadataCalls++
		duration := f.durationAt[f.metadataCalls]
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]float64{"duration": duration})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.status
		f.mu.Unlock()
		json.NewEncoder(w).Encode(status)
	})
	mux.HandleFunc("/join-room", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RoomID string `json:"roomId"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.joinedRoom = req.RoomID
		f.status.Room = req.RoomID
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	mux.HandleFunc("/select-file", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"file":    map[string]interface{}{"id": "file-1", "name": "movie.mp4", "size": 1024},
		})
	})
	mux.HandleFunc("/start-download", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	return mux
}

func (f *fakeAgent) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadataCalls
}

func newTestOrchestrator(t *testing.T, agent *fakeAgent, onDuration func(float64)) *Orchestrator {
	t.Helper()
	server := httptest.NewServer(agent.handler())
	t.Cleanup(server.Close)
	o := NewOrchestrator(NewAgentClient(server.URL), onDuration)
	o.SetPollInterval(5 * time.Millisecond)
	o.SetStatusInterval(5 * time.Millisecond)
	t.Cleanup(o.Close)
	return o
}

func TestResolveURL(t *testing.T) {
	agent := &fakeAgent{}
	o := newTestOrchestrator(t, agent, nil)

	stream, err := o.Resolve(context.Background(), SourceSpec{Value: "http://example.com/v.mp4", Type: SourceURL})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if stream.ID != "stream-7" {
		t.Errorf("unexpected stream id %q", stream.ID)
	}
	if stream.URL != o.Agent().StreamURL("stream-7") {
		t.Errorf("unexpected stream url %q", stream.URL)
	}
	if agent.calls() != 0 {
		t.Error("a URL source should not start the metadata poll")
	}
}

func TestResolveFile(t *testing.T) {
	agent := &fakeAgent{}
	o := newTestOrchestrator(t, agent, nil)

	stream, err := o.Resolve(context.Background(), SourceSpec{Value: "/media/movie.mp4", Type: SourceFile})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if stream.ID != "file-1" || stream.File == nil || stream.File.Name != "movie.mp4" {
		t.Errorf("unexpected stream %+v", stream)
	}
}

func TestResolveAgentFailure(t *testing.T) {
	agent := &fakeAgent{playFail: "no peers"}
	o := newTestOrchestrator(t, agent, nil)

	_, err := o.Resolve(context.Background(), SourceSpec{Value: "magnet:?xt=x", Type: SourceMagnet})
	if !errors.Is(err, ErrAcquisitionFailed) {
		t.Errorf("expected ErrAcquisitionFailed, got %v", err)
	}
}

func TestResolveAgentUnreachable(t *testing.T) {
	client := NewAgentClient("http://127.0.0.1:1")
	client.http.RetryMax = 0
	o := NewOrchestrator(client, nil)
	defer o.Close()

	_, err := o.Resolve(context.Background(), SourceSpec{Value: "http://example.com/v.mp4", Type: SourceURL})
	if !errors.Is(err, ErrAgentUnreachable) {
		t.Errorf("expected ErrAgentUnreachable, got %v", err)
	}
}

func TestMetadataPollStopsOnPositiveDuration(t *testing.T) {
	agent := &fakeAgent{durationAt: map[int]float64{4: 5400}}
	var mu sync.Mutex
	var reported []float64
	o := newTestOrchestrator(t, agent, func(d float64) {
		mu.Lock()
		reported = append(reported, d)
		mu.Unlock()
	})

	o.PollMetadata("stream-7")

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := len(reported) > 0
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("duration never reported")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if reported[0] != 5400 {
		t.Errorf("expected duration 5400, got %v", reported)
	}
	calls := agent.calls()
	if calls != 4 {
		t.Errorf("poll should stop immediately after attempt 4, saw %d calls", calls)
	}
	time.Sleep(30 * time.Millisecond)
	if agent.calls() != calls {
		t.Error("poll kept running after a positive duration")
	}
}

func TestMetadataPollGivesUpSilently(t *testing.T) {
	agent := &fakeAgent{}
	var mu sync.Mutex
	var reported []float64
	o := newTestOrchestrator(t, agent, func(d float64) {
		mu.Lock()
		reported = append(reported, d)
		mu.Unlock()
	})

	o.PollMetadata("stream-7")

	deadline := time.Now().Add(2 * time.Second)
	for agent.calls() < MetadataPollAttempts {
		if time.Now().After(deadline) {
			t.Fatalf("poll made only %d attempts", agent.calls())
		}
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(30 * time.Millisecond)

	if agent.calls() != MetadataPollAttempts {
		t.Errorf("expected exactly %d attempts, got %d", MetadataPollAttempts, agent.calls())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 0 {
		t.Errorf("an exhausted poll must not report a duration, got %v", reported)
	}
}

func TestCloseCancelsPoll(t *testing.T) {
	agent := &fakeAgent{}
	o := newTestOrchestrator(t, agent, nil)

	o.PollMetadata("stream-7")
	time.Sleep(15 * time.Millisecond)
	o.Close()
	calls := agent.calls()
	time.Sleep(30 * time.Millisecond)
	if agent.calls() > calls+1 {
		t.Error("poll kept running after Close")
	}
}

func TestAnnouncerFiresOnResolve(t *testing.T) {
	agent := &fakeAgent{}
	o := newTestOrchestrator(t, agent, nil)

	var mu sync.Mutex
	var announced []SourceSpec
	o.SetAnnouncer(func(spec SourceSpec) {
		mu.Lock()
		announced = append(announced, spec)
		mu.Unlock()
	})

	spec := SourceSpec{Value: "magnet:?xt=urn:btih:abc", Type: SourceMagnet}
	if _, err := o.Resolve(context.Background(), spec); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(announced) != 1 || announced[0] != spec {
		t.Errorf("expected the raw spec to be announced once, got %v", announced)
	}
}

func TestStatusPollJoinsAgentToRoom(t *testing.T) {
	agent := &fakeAgent{status: AgentStatus{Online: true, IP: "192.168.1.5"}}
	o := newTestOrchestrator(t, agent, nil)

	o.StartStatusPoll("room-9")

	deadline := time.Now().Add(2 * time.Second)
	for {
		agent.mu.Lock()
		joined := agent.joinedRoom
		agent.mu.Unlock()
		if joined == "room-9" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("agent was never joined to the room")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if status := o.LastStatus(); !status.Online || status.IP != "192.168.1.5" {
		t.Errorf("unexpected last status %+v", status)
	}
}
