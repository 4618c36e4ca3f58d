package options

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	o := NewBridgeOptions()

	if o.Adapter != "hci0" {
		t.Fatalf("adapter = %q", o.Adapter)
	}
	if o.Gamepad.DeadZone != 0.03 {
		t.Fatalf("dead zone = %v", o.Gamepad.DeadZone)
	}
	if o.Control.Tick != 20*time.Millisecond {
		t.Fatalf("tick = %v", o.Control.Tick)
	}
	if o.Control.FailSafeWindow != 500*time.Millisecond {
		t.Fatalf("fail-safe window = %v", o.Control.FailSafeWindow)
	}
	if o.Control.Backoff != 5*time.Second {
		t.Fatalf("backoff = %v", o.Control.Backoff)
	}
	if o.Control.MaxAttempts != 0 {
		t.Fatalf("max attempts = %d, want unbounded", o.Control.MaxAttempts)
	}
	if o.Mqtt.Enabled() {
		t.Fatal("telemetry enabled without a broker")
	}

	if err := o.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	o := NewBridgeOptions()
	o.Gamepad.DeadZone = 1.5
	if err := o.Validate(); err == nil {
		t.Fatal("dead zone 1.5 accepted")
	}

	o = NewBridgeOptions()
	o.Control.FailSafeWindow = 5 * time.Millisecond
	if err := o.Validate(); err == nil {
		t.Fatal("fail-safe window below tick accepted")
	}

	o = NewBridgeOptions()
	o.Hub.Name = ""
	if err := o.Validate(); err == nil {
		t.Fatal("empty hub name accepted")
	}
}

func TestCompleteDerivesClientID(t *testing.T) {
	o := NewBridgeOptions()
	o.Mqtt.Broker = "mqtt://localhost:1883"
	o.DeviceID = "car-01"

	if err := o.Complete(); err != nil {
		t.Fatal(err)
	}
	if o.Mqtt.ClientID != "brickdrive-car-01" {
		t.Fatalf("client id = %q", o.Mqtt.ClientID)
	}
}

func TestConfigConversion(t *testing.T) {
	o := NewBridgeOptions()
	cfg := o.Config()

	if cfg.Gamepad.NamePattern != "Xbox Wireless Controller" {
		t.Fatalf("gamepad name = %q", cfg.Gamepad.NamePattern)
	}
	if cfg.Hub.NamePattern != "Technic Move" {
		t.Fatalf("hub name = %q", cfg.Hub.NamePattern)
	}
	if cfg.Hub.CalibrationDelay != 100*time.Millisecond {
		t.Fatalf("calibration delay = %v", cfg.Hub.CalibrationDelay)
	}
	if cfg.Loop.Tick != o.Control.Tick {
		t.Fatalf("tick not carried over")
	}
}
