package hub

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/brickdrive/brickdrive/internal/ble"
	"github.com/brickdrive/brickdrive/internal/ble/bletest"
)

func testConfig() Config {
	return Config{
		NamePattern:      "Technic Move",
		ScanTimeout:      time.Second,
		ConnectTimeout:   time.Second,
		CalibrationDelay: time.Millisecond,
	}
}

func newFakeHub(log *bletest.CallLog) (*bletest.Central, *bletest.Peripheral, *bletest.Characteristic) {
	central := bletest.NewCentral()
	peripheral := bletest.NewPeripheral(log)
	char := peripheral.AddCharacteristic(ServiceLWP, CharLWP)
	central.AddDevice(ble.Advertisement{
		Address: "90:84:2B:44:55:66",
		Name:    "Technic Move  ",
		RSSI:    -55,
	}, peripheral)
	return central, peripheral, char
}

func waitReady(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Ready() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("link never became ready, state %s", c.Status())
}

func TestClientHandshakeCalibratesBeforeReady(t *testing.T) {
	log := &bletest.CallLog{}
	central, peripheral, char := newFakeHub(log)
	c := NewClient(central, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	waitReady(t, c)

	writes := char.Writes()
	if len(writes) != 2 {
		t.Fatalf("expected 2 calibration writes before ready, got %d", len(writes))
	}
	frames := EncodeCalibration()
	if !bytes.Equal(writes[0], frames[0]) || !bytes.Equal(writes[1], frames[1]) {
		t.Fatalf("calibration frames wrong: %x, %x", writes[0], writes[1])
	}

	// Discovery happens while connecting; pairing follows it and precedes
	// every write.
	entries := log.Entries()
	if len(entries) < 2 || entries[0] != "discover:"+string(ServiceLWP) || entries[1] != "pair" {
		t.Fatalf("handshake order wrong: %v", entries)
	}
	if peripheral.PairCalls != 1 {
		t.Fatalf("pair called %d times, want 1", peripheral.PairCalls)
	}

	cancel()
	<-done
}

func TestClientSendRequiresReady(t *testing.T) {
	central, _, _ := newFakeHub(&bletest.CallLog{})
	c := NewClient(central, testConfig())

	err := c.SendDrive(context.Background(), 10, 0, LightsOff)
	if !errors.Is(err, ble.ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestClientSendDrive(t *testing.T) {
	central, peripheral, char := newFakeHub(&bletest.CallLog{})
	c := NewClient(central, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	waitReady(t, c)

	if err := c.SendDrive(ctx, 50, -30, LightsOn); err != nil {
		t.Fatal(err)
	}
	want, _ := EncodeDrive(50, -30, LightsOn)
	if got := char.LastWrite(); !bytes.Equal(got, want) {
		t.Fatalf("wire frame = %x, want %x", got, want)
	}

	// Out-of-range values never reach the wire.
	before := len(char.Writes())
	if err := c.SendDrive(ctx, 127, 0, LightsOff); !errors.Is(err, ErrInvalidCommandRange) {
		t.Fatalf("err = %v, want ErrInvalidCommandRange", err)
	}
	if len(char.Writes()) != before {
		t.Fatal("rejected frame was written")
	}

	peripheral.DropLink()
	if err := <-done; !errors.Is(err, ble.ErrLinkError) {
		t.Fatalf("Run returned %v, want link error", err)
	}
	if err := c.SendStop(context.Background()); !errors.Is(err, ble.ErrNotReady) {
		t.Fatalf("send after drop = %v, want ErrNotReady", err)
	}
}

func TestClientPairingFailureAbortsSession(t *testing.T) {
	central, peripheral, char := newFakeHub(&bletest.CallLog{})
	peripheral.PairErr = ble.ErrPairingFailed
	c := NewClient(central, testConfig())

	err := c.Run(context.Background())
	if !errors.Is(err, ble.ErrPairingFailed) {
		t.Fatalf("Run returned %v, want pairing failure", err)
	}
	if len(char.Writes()) != 0 {
		t.Fatal("frames written on unauthenticated link")
	}

	// The failure reason stays visible while the supervisor backs off.
	status := c.Status()
	if !strings.HasPrefix(status, StateError) || !strings.Contains(status, "pairing") {
		t.Fatalf("status after failed session = %q, want error with reason", status)
	}
}

func TestClientCalibrationWriteFailure(t *testing.T) {
	central, _, char := newFakeHub(&bletest.CallLog{})
	char.WriteErr = errors.New("write rejected")
	c := NewClient(central, testConfig())

	err := c.Run(context.Background())
	if !errors.Is(err, ble.ErrInitializationFailed) {
		t.Fatalf("Run returned %v, want ErrInitializationFailed", err)
	}
	if c.Ready() {
		t.Fatal("ready despite failed calibration")
	}
}
