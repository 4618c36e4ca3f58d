package bluez

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func charObject(uuid string) map[string]map[string]dbus.Variant {
	return map[string]map[string]dbus.Variant{
		"org.bluez.GattCharacteristic1": {
			"UUID": dbus.MakeVariant(uuid),
		},
	}
}

func TestCharacteristicPathsFrom(t *testing.T) {
	device := dbus.ObjectPath("/org/bluez/hci0/dev_90_84_2B_44_55_66")
	other := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")

	objects := map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		device + "/service000a/char000b": charObject("00001624-1212-EFDE-1623-785FEABCD123"),
		device + "/service000a/char000d": charObject("00002a4d-0000-1000-8000-00805f9b34fb"),
		// Another device's characteristic must not leak in.
		other + "/service0001/char0002": charObject("00001624-1212-efde-1623-785feabcd123"),
		// Non-characteristic objects under the device are skipped.
		device + "/service000a": {
			"org.bluez.GattService1": {
				"UUID": dbus.MakeVariant("00001623-1212-efde-1623-785feabcd123"),
			},
		},
		device: {
			"org.bluez.Device1": {
				"Paired": dbus.MakeVariant(true),
			},
		},
	}

	paths := characteristicPathsFrom(objects, device)
	if len(paths) != 2 {
		t.Fatalf("resolved %d characteristics, want 2: %v", len(paths), paths)
	}

	// BlueZ reports UUIDs in varying case; lookup is lowercase.
	if got := paths["00001624-1212-efde-1623-785feabcd123"]; got != device+"/service000a/char000b" {
		t.Fatalf("lwp path = %q", got)
	}
	if got := paths["00002a4d-0000-1000-8000-00805f9b34fb"]; got != device+"/service000a/char000d" {
		t.Fatalf("input report path = %q", got)
	}
}

func TestDevicePath(t *testing.T) {
	c := &Central{adapterName: "hci0"}
	got := c.devicePath("F4:6A:D7:11:22:33")
	if got != "/org/bluez/hci0/dev_F4_6A_D7_11_22_33" {
		t.Fatalf("device path = %q", got)
	}
}
