package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/brickdrive/brickdrive/internal/bridge"
	"github.com/brickdrive/brickdrive/internal/drive"
	"github.com/brickdrive/brickdrive/pkg/mqtt"
	"github.com/brickdrive/brickdrive/pkg/mqtt/topic"
)

type published struct {
	topic   string
	qos     int
	retain  bool
	payload []byte
}

// fakeClient records publishes.
type fakeClient struct {
	mu        sync.Mutex
	published []published
}

func (f *fakeClient) Start(ctx context.Context) error           { return nil }
func (f *fakeClient) Disconnect(ctx context.Context)            {}
func (f *fakeClient) AwaitConnection(ctx context.Context) error { return nil }

func (f *fakeClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic, qos, retain, append([]byte(nil), payload...)})
	return nil
}

func (f *fakeClient) Subscribe(ctx context.Context, topic string, qos int, handler mqtt.MessageHandler) error {
	return nil
}

func (f *fakeClient) Unsubscribe(ctx context.Context, topic string) error { return nil }

func (f *fakeClient) onTopic(t string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.published {
		if p.topic == t {
			out = append(out, p)
		}
	}
	return out
}

// fakeSource serves a fixed snapshot.
type fakeSource struct {
	mu   sync.Mutex
	snap bridge.Snapshot
}

func (f *fakeSource) Snapshot() bridge.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) set(s bridge.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = s
}

func TestPublisherLifecycle(t *testing.T) {
	client := &fakeClient{}
	topics := topic.NewBuilder("brickdrive/v1")
	source := &fakeSource{}
	source.set(bridge.Snapshot{HubStatus: "ready", Mode: "normal"})

	p := NewPublisher(Config{DeviceID: "car-01", Interval: 5 * time.Millisecond}, client, topics, source)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(client.onTopic("brickdrive/v1/status/car-01")) >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	online := client.onTopic("brickdrive/v1/online/car-01")
	if len(online) < 2 {
		t.Fatalf("expected online and offline flags, got %d messages", len(online))
	}
	if string(online[0].payload) != "online" || !online[0].retain {
		t.Fatalf("first online message = %+v", online[0])
	}
	if string(online[len(online)-1].payload) != "offline" {
		t.Fatal("offline flag not published on shutdown")
	}

	statuses := client.onTopic("brickdrive/v1/status/car-01")
	if len(statuses) == 0 {
		t.Fatal("no status published")
	}
	if !statuses[0].retain {
		t.Fatal("status not retained")
	}
	var snap bridge.Snapshot
	if err := json.Unmarshal(statuses[0].payload, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.HubStatus != "ready" {
		t.Fatalf("published hub status = %q", snap.HubStatus)
	}
}

func TestPublisherCommandStreamOnlyOnChange(t *testing.T) {
	client := &fakeClient{}
	topics := topic.NewBuilder("brickdrive/v1")
	source := &fakeSource{}
	source.set(bridge.Snapshot{LastCommand: drive.Command{Speed: 10}})

	p := NewPublisher(Config{DeviceID: "car-01", Interval: 2 * time.Millisecond}, client, topics, source)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	commandTopic := "brickdrive/v1/command/car-01"
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(client.onTopic(commandTopic)) >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// Several more intervals with an unchanged command add nothing.
	time.Sleep(20 * time.Millisecond)
	if got := len(client.onTopic(commandTopic)); got != 1 {
		t.Fatalf("unchanged command published %d times", got)
	}

	source.set(bridge.Snapshot{LastCommand: drive.Command{Speed: 42}})
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(client.onTopic(commandTopic)) >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	cmds := client.onTopic(commandTopic)
	if len(cmds) < 2 {
		t.Fatal("changed command was not published")
	}
	var cmd drive.Command
	if err := json.Unmarshal(cmds[len(cmds)-1].payload, &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Speed != 42 {
		t.Fatalf("streamed speed = %d, want 42", cmd.Speed)
	}
}

func TestWillFor(t *testing.T) {
	topics := topic.NewBuilder("brickdrive/v1")
	willTopic, payload := WillFor(topics, "car-01")
	if willTopic != "brickdrive/v1/online/car-01" {
		t.Fatalf("will topic = %q", willTopic)
	}
	if string(payload) != "offline" {
		t.Fatalf("will payload = %q", payload)
	}
}
