package hub

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func TestEncodeDrive(t *testing.T) {
	frame, err := EncodeDrive(50, -30, LightsOn)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x0d, 0x00, 0x81, 0x36, 0x11, 0x51, 0x00, 0x03, 0x00, 0x32, 0xe2, 0x64, 0x00}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame = %x, want %x", frame, want)
	}
}

func TestEncodeDriveRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		speed  int
		angle  int
		lights byte
	}{
		{"speed too high", 127, 0, LightsOff},
		{"speed too low", -101, 0, LightsOff},
		{"angle too high", 0, 101, LightsOff},
		{"angle too low", 0, -128, LightsOff},
		{"lights invalid", 0, 0, 0x01},
		{"lights invalid high", 0, 0, 0xff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeDrive(tt.speed, tt.angle, tt.lights); !errors.Is(err, ErrInvalidCommandRange) {
				t.Fatalf("err = %v, want ErrInvalidCommandRange", err)
			}
		})
	}
}

func TestStopFrame(t *testing.T) {
	want, err := EncodeDrive(0, 0, LightsOff)
	if err != nil {
		t.Fatal(err)
	}
	if got := StopFrame(); !bytes.Equal(got, want) {
		t.Fatalf("stop frame = %x, want %x", got, want)
	}
}

func TestEncodeCalibration(t *testing.T) {
	frames := EncodeCalibration()

	want1, _ := hex.DecodeString("0d008136115100030000001000")
	want2, _ := hex.DecodeString("0d008136115100030000000800")

	if !bytes.Equal(frames[0], want1) {
		t.Fatalf("first frame = %x, want %x", frames[0], want1)
	}
	if !bytes.Equal(frames[1], want2) {
		t.Fatalf("second frame = %x, want %x", frames[1], want2)
	}
}

func TestEncodeMotorPower(t *testing.T) {
	frame, err := EncodeMotorPower(0x00, -100)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x08, 0x00, 0x81, 0x00, 0x00, 0x51, 0x00, 0x9c}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame = %x, want %x", frame, want)
	}

	if _, err := EncodeMotorPower(0x01, 101); !errors.Is(err, ErrInvalidCommandRange) {
		t.Fatalf("err = %v, want ErrInvalidCommandRange", err)
	}
}

func TestEncodeMotorStop(t *testing.T) {
	brake := EncodeMotorStop(0x01, true)
	if brake[7] != 0x7f {
		t.Fatalf("brake end state = %#x, want 0x7f", brake[7])
	}
	coast := EncodeMotorStop(0x01, false)
	if coast[7] != 0x00 {
		t.Fatalf("coast end state = %#x, want 0x00", coast[7])
	}
}

func TestEncodeLEDColor(t *testing.T) {
	frame, err := EncodeLEDColor(ColorRed)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x08, 0x00, 0x81, 0x32, 0x00, 0x51, 0x00, 0x09}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame = %x, want %x", frame, want)
	}

	if _, err := EncodeLEDColor(11); !errors.Is(err, ErrInvalidCommandRange) {
		t.Fatalf("err = %v, want ErrInvalidCommandRange", err)
	}
}

func TestEncodeLEDRGB(t *testing.T) {
	frame := EncodeLEDRGB(0x10, 0x20, 0x30)
	want := []byte{0x0a, 0x00, 0x81, 0x32, 0x00, 0x51, 0x01, 0x10, 0x20, 0x30}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame = %x, want %x", frame, want)
	}
}
