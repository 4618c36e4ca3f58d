package gamepad

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func neutralReport() []byte {
	p := make([]byte, 15)
	for i := 0; i < 8; i += 2 {
		binary.LittleEndian.PutUint16(p[i:], 0x8000)
	}
	return p
}

func TestDecodeReportTooShort(t *testing.T) {
	_, err := DecodeReport(make([]byte, 14))
	if !errors.Is(err, ErrMalformedReport) {
		t.Fatalf("expected ErrMalformedReport, got %v", err)
	}
}

func TestDecodeReportAxes(t *testing.T) {
	tests := []struct {
		name   string
		raw    uint16
		offset int
		get    func(State) float64
		want   float64
	}{
		{"left x min", 0, 0, func(s State) float64 { return s.LeftX }, -1.0},
		{"left x max", 0xffff, 0, func(s State) float64 { return s.LeftX }, 1.0},
		{"left y inverted min", 0, 2, func(s State) float64 { return s.LeftY }, 1.0},
		{"left y inverted max", 0xffff, 2, func(s State) float64 { return s.LeftY }, -1.0},
		{"right x max", 0xffff, 4, func(s State) float64 { return s.RightX }, 1.0},
		{"right y inverted min", 0, 6, func(s State) float64 { return s.RightY }, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := neutralReport()
			binary.LittleEndian.PutUint16(p[tt.offset:], tt.raw)
			s, err := DecodeReport(p)
			if err != nil {
				t.Fatal(err)
			}
			if got := tt.get(s); math.Abs(got-tt.want) > 1e-4 {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeReportCenterIsNearZero(t *testing.T) {
	s, err := DecodeReport(neutralReport())
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []float64{s.LeftX, s.LeftY, s.RightX, s.RightY} {
		if math.Abs(v) > 1e-4 {
			t.Fatalf("center axis not near zero: %v", v)
		}
	}
}

func TestDecodeReportTriggers(t *testing.T) {
	p := neutralReport()
	binary.LittleEndian.PutUint16(p[8:], 1023)
	binary.LittleEndian.PutUint16(p[10:], 512)

	s, err := DecodeReport(p)
	if err != nil {
		t.Fatal(err)
	}
	if s.LeftTrigger != 1.0 {
		t.Fatalf("left trigger = %v, want 1.0", s.LeftTrigger)
	}
	if math.Abs(s.RightTrigger-0.5005) > 1e-3 {
		t.Fatalf("right trigger = %v, want ~0.5", s.RightTrigger)
	}
}

func TestDecodeReportDPad(t *testing.T) {
	tests := []struct {
		raw  byte
		want DPad
	}{
		{0x00, DPadCenter},
		{0x01, DPadUp},
		{0x02, DPadUpRight},
		{0x05, DPadDown},
		{0x08, DPadUpLeft},
		{0x09, DPadCenter},
		{0x0f, DPadCenter},
		{0xff, DPadCenter},
	}
	for _, tt := range tests {
		p := neutralReport()
		p[12] = tt.raw
		s, err := DecodeReport(p)
		if err != nil {
			t.Fatal(err)
		}
		if s.DPad != tt.want {
			t.Errorf("dpad raw %#x = %v, want %v", tt.raw, s.DPad, tt.want)
		}
	}
}

func TestDecodeReportButtons(t *testing.T) {
	p := neutralReport()
	p[13] = 0x01
	s, err := DecodeReport(p)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Buttons.A {
		t.Fatal("A not set")
	}
	if s.Buttons.B || s.Buttons.X || s.Buttons.Y || s.Buttons.LB || s.Buttons.RB ||
		s.Buttons.View || s.Buttons.Menu || s.Buttons.LS || s.Buttons.RS || s.Buttons.Share {
		t.Fatalf("unexpected extra buttons in %+v", s.Buttons)
	}

	p[13] = 0x40 | 0x80
	p[14] = 0x04 | 0x20
	s, _ = DecodeReport(p)
	if !s.Buttons.LB || !s.Buttons.RB || !s.Buttons.View || !s.Buttons.LS {
		t.Fatalf("bumpers/view/ls not decoded: %+v", s.Buttons)
	}
	if s.Buttons.A {
		t.Fatal("A set unexpectedly")
	}
}

func TestApplyDeadZone(t *testing.T) {
	const dz = 0.03

	if got := ApplyDeadZone(0.02, dz); got != 0 {
		t.Fatalf("inside dead zone: got %v, want 0", got)
	}
	if got := ApplyDeadZone(-0.029, dz); got != 0 {
		t.Fatalf("inside dead zone: got %v, want 0", got)
	}
	if got := ApplyDeadZone(1.0, dz); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("full deflection: got %v, want 1.0", got)
	}
	if got := ApplyDeadZone(-1.0, dz); math.Abs(got+1.0) > 1e-9 {
		t.Fatalf("full deflection: got %v, want -1.0", got)
	}
	// Continuous at the boundary.
	if got := ApplyDeadZone(dz+1e-9, dz); got > 1e-6 {
		t.Fatalf("discontinuity at boundary: %v", got)
	}
	// Monotone on the rescaled range.
	prev := -2.0
	for v := -1.0; v <= 1.0; v += 0.01 {
		got := ApplyDeadZone(v, dz)
		if got < prev {
			t.Fatalf("not monotone at %v: %v < %v", v, got, prev)
		}
		prev = got
	}
}
