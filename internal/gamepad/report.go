// Package gamepad decodes Xbox wireless controller HID input reports and
// maintains the controller BLE link.
package gamepad

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedReport marks input reports too short to decode.
var ErrMalformedReport = errors.New("gamepad: malformed input report")

// reportLen is the minimum HID input report length the decoder accepts.
// Longer reports are fine; trailing bytes are ignored.
const reportLen = 15

// DPad is the 9-way hat switch position.
type DPad uint8

const (
	DPadCenter DPad = iota
	DPadUp
	DPadUpRight
	DPadRight
	DPadDownRight
	DPadDown
	DPadDownLeft
	DPadLeft
	DPadUpLeft
)

func (d DPad) String() string {
	switch d {
	case DPadCenter:
		return "center"
	case DPadUp:
		return "up"
	case DPadUpRight:
		return "up-right"
	case DPadRight:
		return "right"
	case DPadDownRight:
		return "down-right"
	case DPadDown:
		return "down"
	case DPadDownLeft:
		return "down-left"
	case DPadLeft:
		return "left"
	case DPadUpLeft:
		return "up-left"
	}
	return fmt.Sprintf("dpad(%d)", uint8(d))
}

// Buttons is the decoded button set of one report.
type Buttons struct {
	A, B, X, Y bool
	LB, RB     bool
	View, Menu bool
	LS, RS     bool
	Share      bool
}

// State is one fully decoded controller snapshot. Axes are in [-1, 1]
// with up and right positive; triggers are in [0, 1].
type State struct {
	LeftX, LeftY   float64
	RightX, RightY float64
	LeftTrigger    float64
	RightTrigger   float64
	DPad           DPad
	Buttons        Buttons
}

// DecodeReport parses a raw HID input report.
//
// Layout: four uint16 little-endian stick axes at bytes 0..7, two 10-bit
// triggers at bytes 8..11, the hat switch at byte 12 (0 or 15 center,
// 1..8 clockwise from up), and two button bytes at 13..14.
func DecodeReport(p []byte) (State, error) {
	if len(p) < reportLen {
		return State{}, fmt.Errorf("%w: %d bytes", ErrMalformedReport, len(p))
	}

	var s State
	s.LeftX = axis(binary.LittleEndian.Uint16(p[0:2]))
	s.LeftY = -axis(binary.LittleEndian.Uint16(p[2:4]))
	s.RightX = axis(binary.LittleEndian.Uint16(p[4:6]))
	s.RightY = -axis(binary.LittleEndian.Uint16(p[6:8]))
	s.LeftTrigger = trigger(binary.LittleEndian.Uint16(p[8:10]))
	s.RightTrigger = trigger(binary.LittleEndian.Uint16(p[10:12]))

	switch hat := p[12]; {
	case hat >= 1 && hat <= 8:
		s.DPad = DPad(hat)
	default:
		s.DPad = DPadCenter
	}

	b := p[13]
	s.Buttons.A = b&0x01 != 0
	s.Buttons.B = b&0x02 != 0
	s.Buttons.X = b&0x08 != 0
	s.Buttons.Y = b&0x10 != 0
	s.Buttons.LB = b&0x40 != 0
	s.Buttons.RB = b&0x80 != 0

	b = p[14]
	s.Buttons.Share = b&0x01 != 0
	s.Buttons.View = b&0x04 != 0
	s.Buttons.Menu = b&0x08 != 0
	s.Buttons.LS = b&0x20 != 0
	s.Buttons.RS = b&0x40 != 0

	return s, nil
}

// axis maps a raw 0..65535 stick sample onto [-1, 1].
func axis(raw uint16) float64 {
	return float64(raw)/32767.5 - 1.0
}

// trigger maps a raw 10-bit trigger sample onto [0, 1].
func trigger(raw uint16) float64 {
	v := float64(raw) / 1023.0
	if v > 1.0 {
		v = 1.0
	}
	return v
}

// ApplyDeadZone zeroes axis values within dz of center and rescales the
// remaining travel so output still spans the full [-1, 1] range. Output is
// continuous at the dead-zone boundary.
func ApplyDeadZone(v, dz float64) float64 {
	if dz <= 0 {
		return v
	}
	switch {
	case v > dz:
		return (v - dz) / (1 - dz)
	case v < -dz:
		return (v + dz) / (1 - dz)
	default:
		return 0
	}
}

// WithDeadZone returns a copy of s with the dead zone applied to all four
// stick axes. Triggers are left untouched.
func (s State) WithDeadZone(dz float64) State {
	s.LeftX = ApplyDeadZone(s.LeftX, dz)
	s.LeftY = ApplyDeadZone(s.LeftY, dz)
	s.RightX = ApplyDeadZone(s.RightX, dz)
	s.RightY = ApplyDeadZone(s.RightY, dz)
	return s
}
