package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brickdrive/brickdrive/internal/bridge"
	"github.com/brickdrive/brickdrive/internal/gamepad"
	"github.com/brickdrive/brickdrive/pkg/options"
)

type stubInput struct{}

func (stubInput) Ready() bool                     { return true }
func (stubInput) Latest() (gamepad.State, uint64) { return gamepad.State{}, 0 }
func (stubInput) Changes() <-chan struct{}        { return nil }
func (stubInput) Status() string                  { return "ready" }

type stubSink struct{}

func (stubSink) Ready() bool { return false }
func (stubSink) SendDrive(ctx context.Context, speed, angle int, lights byte) error {
	return nil
}
func (stubSink) SendStop(ctx context.Context) error                { return nil }
func (stubSink) SetLEDColor(ctx context.Context, color byte) error { return nil }
func (stubSink) Status() string                                    { return "scanning" }

func newTestServer(t *testing.T) (*httptest.Server, *bridge.Loop) {
	t.Helper()
	loop := bridge.NewLoop(
		bridge.LoopConfig{Tick: time.Second, FailSafeWindow: time.Second},
		stubInput{}, stubSink{},
	)
	s := NewServer(options.NewHttpOptions(), loop)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, loop
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var snap bridge.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.GamepadStatus != "ready" {
		t.Fatalf("gamepad status = %q", snap.GamepadStatus)
	}
	if snap.HubStatus != "scanning" {
		t.Fatalf("hub status = %q", snap.HubStatus)
	}
	if snap.Mode != "normal" {
		t.Fatalf("mode = %q", snap.Mode)
	}
}

func TestEStopEndpoint(t *testing.T) {
	ts, loop := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/estop", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d", resp.StatusCode)
	}
	if !loop.Forced() {
		t.Fatal("estop not engaged")
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/estop", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status = %d", resp.StatusCode)
	}
	if loop.Forced() {
		t.Fatal("estop not released")
	}

	// Wrong method is rejected by the router.
	resp, err = http.Get(ts.URL + "/api/v1/estop")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET estop status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWebsocketStream(t *testing.T) {
	ts, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap bridge.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.HubStatus != "scanning" {
		t.Fatalf("streamed hub status = %q", snap.HubStatus)
	}
}
