package adb

import (
	"context"
	"strings"

	"codeberg.org/mutker/droidmetrics/internal/errors"
)

// DeviceState is the connection state reported by "adb devices".
type DeviceState string

const (
	StateDevice       DeviceState = "device"
	StateOffline      DeviceState = "offline"
	StateUnauthorized DeviceState = "unauthorized"
	StateRecovery     DeviceState = "recovery"
)

type Device struct {
	Serial string      `json:"serial"`
	State  DeviceState `json:"state"`
}

// Online reports whether commands can be sent to the device.
func (d Device) Online() bool {
	return d.State == StateDevice
}

// ParseDevices parses "adb devices" output, skipping the header and daemon
// notices.
func ParseDevices(output string) []Device {
	var devices []Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, Device{Serial: fields[0], State: DeviceState(fields[1])})
	}

	return devices
}

// ListDevices returns every device the bridge knows about.
func ListDevices(ctx context.Context, runner Commander) ([]Device, error) {
	out, err := runner.Run(ctx, "devices", Global())
	if err != nil {
		return nil, err
	}

	return ParseDevices(out), nil
}

// Connect resolves the device to use. With an empty serial the first online
// device is chosen. The error is systemic when no usable device exists.
func Connect(ctx context.Context, runner Commander, serial string) (Device, error) {
	errFactory := errors.New()

	devices, err := ListDevices(ctx, runner)
	if err != nil {
		if IsSystemic(err) {
			return Device{}, err
		}
		return Device{}, errFactory.Wrap(ErrNoDevice, err)
	}

	for _, d := range devices {
		if serial != "" && d.Serial != serial {
			continue
		}
		if !d.Online() {
			if serial != "" {
				return Device{}, errFactory.WithData(ErrDeviceState, d)
			}
			continue
		}
		return d, nil
	}

	if serial != "" {
		return Device{}, errFactory.WithData(ErrNoDevice, serial)
	}

	return Device{}, errFactory.New(ErrNoDevice)
}
