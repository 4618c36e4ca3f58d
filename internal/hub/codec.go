// Package hub encodes LEGO wireless-protocol command frames for the
// Technic Move hub and maintains the hub BLE link.
package hub

import (
	"errors"
	"fmt"
)

// ErrInvalidCommandRange marks command parameters outside the wire format's
// accepted range. The codec never clamps; a caller holding an out-of-range
// value has a bug upstream.
var ErrInvalidCommandRange = errors.New("hub: command parameter out of range")

// Lights byte values accepted by the drive frame.
const (
	LightsOff byte = 0x00
	LightsOn  byte = 0x64
)

// Port ids on the Technic Move hub.
const (
	PortDrive = 0x36 // combined drive/steering virtual port
	PortLED   = 0x32
)

// Frame constants of the LEGO wireless protocol.
const (
	cmdPortOutput    = 0x81
	startupImmediate = 0x51
	modePower        = 0x00
	modeRGB          = 0x01
	endStateBrake    = 0x7F
	endStateFloat    = 0x00
	noFeedback       = 0x00
	driveSubCommand  = 0x11
	driveCompletion  = 0x03
)

// Color ids of the hub's palette LED mode.
const (
	ColorOff       byte = 0
	ColorPink      byte = 1
	ColorPurple    byte = 2
	ColorBlue      byte = 3
	ColorLightBlue byte = 4
	ColorCyan      byte = 5
	ColorGreen     byte = 6
	ColorYellow    byte = 7
	ColorOrange    byte = 8
	ColorRed       byte = 9
	ColorWhite     byte = 10
)

// EncodeDrive builds the combined speed/steering/lights frame.
// speed and angle must be in [-100, 100]; lights must be LightsOff or
// LightsOn. Negative values go on the wire as two's-complement bytes.
func EncodeDrive(speed, angle int, lights byte) ([]byte, error) {
	if speed < -100 || speed > 100 {
		return nil, fmt.Errorf("%w: speed %d", ErrInvalidCommandRange, speed)
	}
	if angle < -100 || angle > 100 {
		return nil, fmt.Errorf("%w: angle %d", ErrInvalidCommandRange, angle)
	}
	if lights != LightsOff && lights != LightsOn {
		return nil, fmt.Errorf("%w: lights %#02x", ErrInvalidCommandRange, lights)
	}

	return []byte{
		0x0d, 0x00, cmdPortOutput, PortDrive,
		driveSubCommand, startupImmediate, 0x00, driveCompletion, 0x00,
		byte(speed), byte(angle), lights, 0x00,
	}, nil
}

// StopFrame is the fail-safe drive frame: zero speed, zero steering,
// lights untouched off.
func StopFrame() []byte {
	frame, _ := EncodeDrive(0, 0, LightsOff)
	return frame
}

// EncodeCalibration returns the two steering calibration frames. They must
// be written in order with a short pause between them; the hub centers the
// steering rack in response.
func EncodeCalibration() [2][]byte {
	return [2][]byte{
		{0x0d, 0x00, cmdPortOutput, PortDrive, driveSubCommand, startupImmediate, 0x00, driveCompletion, 0x00, 0x00, 0x00, 0x10, 0x00},
		{0x0d, 0x00, cmdPortOutput, PortDrive, driveSubCommand, startupImmediate, 0x00, driveCompletion, 0x00, 0x00, 0x00, 0x08, 0x00},
	}
}

// EncodeMotorPower builds a raw power frame for a single motor port.
// power must be in [-100, 100].
func EncodeMotorPower(port byte, power int) ([]byte, error) {
	if power < -100 || power > 100 {
		return nil, fmt.Errorf("%w: power %d", ErrInvalidCommandRange, power)
	}
	return []byte{
		0x08, 0x00, cmdPortOutput, port,
		noFeedback, startupImmediate, modePower, byte(power),
	}, nil
}

// EncodeMotorStop builds a stop frame for a single motor port. brake holds
// the shaft; otherwise the motor coasts.
func EncodeMotorStop(port byte, brake bool) []byte {
	end := byte(endStateFloat)
	if brake {
		end = endStateBrake
	}
	return []byte{
		0x08, 0x00, cmdPortOutput, port,
		noFeedback, startupImmediate, modePower, end,
	}
}

// EncodeLEDColor builds a palette-color frame for the hub LED.
func EncodeLEDColor(color byte) ([]byte, error) {
	if color > ColorWhite {
		return nil, fmt.Errorf("%w: color %d", ErrInvalidCommandRange, color)
	}
	return []byte{
		0x08, 0x00, cmdPortOutput, PortLED,
		noFeedback, startupImmediate, modePower, color,
	}, nil
}

// EncodeLEDRGB builds a custom RGB frame for the hub LED.
func EncodeLEDRGB(r, g, b byte) []byte {
	return []byte{
		0x0a, 0x00, cmdPortOutput, PortLED,
		noFeedback, startupImmediate, modeRGB, r, g, b,
	}
}
